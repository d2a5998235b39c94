package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/cognicore/termset/pkg/termset/internalerr"
)

const envPrefix = "TERMSET"

// newViper returns a viper instance reading TERMSET_* variables, with
// nested keys joined by "_" (linker.base_url -> TERMSET_LINKER_BASE_URL).
// Every key gets a default so Unmarshal sees environment overrides.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := Defaults()
	v.SetDefault("linker.kind", d.Linker.Kind)
	v.SetDefault("linker.ontology", d.Linker.Ontology)
	v.SetDefault("linker.dictionary", "")
	v.SetDefault("linker.sources", []string{})
	v.SetDefault("linker.language", "")
	v.SetDefault("linker.base_url", "")
	v.SetDefault("linker.api_key", "")
	v.SetDefault("linker.timeout", d.Linker.Timeout)
	v.SetDefault("linker.rate_limit", 0.0)
	v.SetDefault("threshold", d.Threshold)
	v.SetDefault("checkpoint_interval", d.CheckpointInterval)
	v.SetDefault("max_docs", 0)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("input.path", "")
	v.SetDefault("input.encoding", d.Input.Encoding)
	v.SetDefault("input.text_column", d.Input.TextColumn)
	v.SetDefault("input.text_field", d.Input.TextField)
	v.SetDefault("input.strip_html", false)
	v.SetDefault("output.path", "")
	v.SetDefault("output.atomic", true)
	v.SetDefault("output.compression", "")
	v.SetDefault("output.progress", false)
	v.SetDefault("output.sqlite", "")
	v.SetDefault("output.object_store.endpoint", "")
	v.SetDefault("output.object_store.access_key", "")
	v.SetDefault("output.object_store.secret_key", "")
	v.SetDefault("output.object_store.bucket", "")
	v.SetDefault("output.object_store.prefix", "")
	v.SetDefault("output.object_store.secure", false)
	v.SetDefault("output.object_store.region", "")
	v.SetDefault("output.object_store.compression", "")
	v.SetDefault("stoplist.path", "")
	v.SetDefault("stoplist.terms", []string{})
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output_paths", []string{})
	v.SetDefault("metrics.addr", "")
	return v
}

// Load reads the YAML file at path and applies TERMSET_* overrides and
// defaults. An empty path reads the environment only. The result is not
// validated; callers apply command-line overrides first.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: read config %q: %w", internalerr.ErrConfiguration, path, err)
		}
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: decode config: %w", internalerr.ErrConfiguration, err)
	}
	ApplyDefaults(cfg)
	return cfg, nil
}
