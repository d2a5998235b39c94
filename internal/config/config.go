// Package config holds the settings of a termset run.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/cognicore/termset/internal/logging"
	"github.com/cognicore/termset/pkg/termset/annotate/dictionary"
	"github.com/cognicore/termset/pkg/termset/document"
	"github.com/cognicore/termset/pkg/termset/internalerr"
	"github.com/cognicore/termset/pkg/termset/snapshot"
	"github.com/cognicore/termset/pkg/termset/snapshot/objectstore"
)

// Linker kinds.
const (
	LinkerDictionary = "dictionary"
	LinkerRemote     = "remote"
)

// Config is the root configuration.
type Config struct {
	Linker             LinkerConfig   `mapstructure:"linker"`
	Threshold          float64        `mapstructure:"threshold"`
	CheckpointInterval int            `mapstructure:"checkpoint_interval"`
	MaxDocs            int            `mapstructure:"max_docs"`
	Workers            int            `mapstructure:"workers"`
	Input              InputConfig    `mapstructure:"input"`
	Output             OutputConfig   `mapstructure:"output"`
	Stoplist           StoplistConfig `mapstructure:"stoplist"`
	Log                logging.Config `mapstructure:"log"`
	Metrics            MetricsConfig  `mapstructure:"metrics"`
}

// LinkerConfig selects and configures the entity linker.
type LinkerConfig struct {
	// Kind is "dictionary" (local YAML or MRCONSO.RRF) or "remote".
	Kind     string `mapstructure:"kind"`
	Ontology string `mapstructure:"ontology"`

	Dictionary string   `mapstructure:"dictionary"`
	Sources    []string `mapstructure:"sources"`
	Language   string   `mapstructure:"language"`

	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
}

// RRFOptions returns the MRCONSO filter for a dictionary linker.
func (l LinkerConfig) RRFOptions() dictionary.RRFOptions {
	return dictionary.RRFOptions{Sources: l.Sources, Language: l.Language}
}

// InputConfig locates the corpus.
type InputConfig struct {
	Path       string `mapstructure:"path"`
	Encoding   string `mapstructure:"encoding"`
	TextColumn string `mapstructure:"text_column"`
	TextField  string `mapstructure:"text_field"`
	StripHTML  bool   `mapstructure:"strip_html"`
}

// Options returns the document loading options.
func (i InputConfig) Options() document.Options {
	return document.Options{
		Encoding:   i.Encoding,
		TextColumn: i.TextColumn,
		TextField:  i.TextField,
		StripHTML:  i.StripHTML,
	}
}

// OutputConfig lists where checkpoints go. Path is required; SQLite and
// ObjectStore are optional extra sinks.
type OutputConfig struct {
	Path        string               `mapstructure:"path"`
	Atomic      bool                 `mapstructure:"atomic"`
	Compression snapshot.Compression `mapstructure:"compression"`
	Progress    bool                 `mapstructure:"progress"`
	SQLite      string               `mapstructure:"sqlite"`
	ObjectStore objectstore.Config   `mapstructure:"object_store"`
}

// StoplistConfig extends or replaces the leading-token stoplist.
type StoplistConfig struct {
	Path  string   `mapstructure:"path"`
	Terms []string `mapstructure:"terms"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Default values.
const (
	DefaultThreshold          = 0.7
	DefaultCheckpointInterval = 50
	DefaultOntology           = "umls"
	DefaultTimeout            = 60 * time.Second
)

// Defaults returns a config with every default applied.
func Defaults() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Linker.Kind == "" {
		cfg.Linker.Kind = LinkerDictionary
	}
	if cfg.Linker.Ontology == "" {
		cfg.Linker.Ontology = DefaultOntology
	}
	if cfg.Linker.Timeout == 0 {
		cfg.Linker.Timeout = DefaultTimeout
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = DefaultCheckpointInterval
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	if cfg.Input.Encoding == "" {
		cfg.Input.Encoding = "utf-8"
	}
	if cfg.Input.TextColumn == "" {
		cfg.Input.TextColumn = document.DefaultTextColumn
	}
	if cfg.Input.TextField == "" {
		cfg.Input.TextField = document.DefaultTextField
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

// Validate checks settings that cannot be defaulted. Every problem is
// reported, each wrapped with ErrConfiguration.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{internalerr.ErrConfiguration}, args...)...))
	}

	switch c.Linker.Kind {
	case LinkerDictionary:
		if c.Linker.Dictionary == "" {
			add("linker.dictionary is required for the dictionary linker")
		}
	case LinkerRemote:
		if c.Linker.BaseURL == "" {
			add("linker.base_url is required for the remote linker")
		}
		if c.Linker.RateLimit < 0 {
			add("linker.rate_limit must not be negative")
		}
	default:
		add("unknown linker kind %q", c.Linker.Kind)
	}

	if c.Threshold < 0 || c.Threshold > 1 {
		add("threshold %v outside [0, 1]", c.Threshold)
	}
	if c.MaxDocs < 0 {
		add("max_docs must not be negative")
	}
	if c.Workers < 1 {
		add("workers must be at least 1")
	}

	switch c.Output.Compression {
	case "", snapshot.CompressionNone, snapshot.CompressionGzip, snapshot.CompressionZstd:
	default:
		add("unknown output.compression %q", c.Output.Compression)
	}
	if store := c.Output.ObjectStore; store.Endpoint != "" && store.Bucket == "" {
		add("output.object_store.bucket is required when an endpoint is set")
	}

	return errors.Join(errs...)
}

// ValidateRun additionally requires the input and output paths an annotate
// run needs.
func (c *Config) ValidateRun() error {
	var errs []error
	if err := c.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Input.Path == "" {
		errs = append(errs, fmt.Errorf("%w: input.path is required", internalerr.ErrConfiguration))
	}
	if c.Output.Path == "" {
		errs = append(errs, fmt.Errorf("%w: output.path is required", internalerr.ErrConfiguration))
	}
	return errors.Join(errs...)
}
