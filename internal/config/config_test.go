package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/termset/pkg/termset/internalerr"
	"github.com/cognicore/termset/pkg/termset/snapshot"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "termset.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, LinkerDictionary, cfg.Linker.Kind)
	assert.Equal(t, "umls", cfg.Linker.Ontology)
	assert.Equal(t, 60*time.Second, cfg.Linker.Timeout)
	assert.Equal(t, 0.7, cfg.Threshold)
	assert.Equal(t, 50, cfg.CheckpointInterval)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, "TEXT", cfg.Input.TextColumn)
	assert.Equal(t, "utf-8", cfg.Input.Encoding)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
linker:
  kind: remote
  ontology: mesh
  base_url: http://localhost:8080
  timeout: 5s
  rate_limit: 4
threshold: 0.85
checkpoint_interval: 25
workers: 4
input:
  path: notes.csv
  encoding: latin1
output:
  path: terms.json.gz
  compression: gzip
  progress: true
  object_store:
    endpoint: localhost:9000
    bucket: terms
stoplist:
  terms: [without]
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.ValidateRun())

	assert.Equal(t, LinkerRemote, cfg.Linker.Kind)
	assert.Equal(t, "mesh", cfg.Linker.Ontology)
	assert.Equal(t, "http://localhost:8080", cfg.Linker.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Linker.Timeout)
	assert.Equal(t, 4.0, cfg.Linker.RateLimit)
	assert.Equal(t, 0.85, cfg.Threshold)
	assert.Equal(t, 25, cfg.CheckpointInterval)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "latin1", cfg.Input.Options().Encoding)
	assert.Equal(t, "TEXT", cfg.Input.Options().TextColumn)
	assert.Equal(t, snapshot.CompressionGzip, cfg.Output.Compression)
	assert.True(t, cfg.Output.Atomic)
	assert.True(t, cfg.Output.Progress)
	assert.Equal(t, "terms", cfg.Output.ObjectStore.Bucket)
	assert.Equal(t, []string{"without"}, cfg.Stoplist.Terms)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "threshold: 0.8\nlinker:\n  dictionary: concepts.yaml\n")
	t.Setenv("TERMSET_THRESHOLD", "0.9")
	t.Setenv("TERMSET_LINKER_ONTOLOGY", "rxnorm")
	t.Setenv("TERMSET_OUTPUT_PATH", "out.json")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.9, cfg.Threshold)
	assert.Equal(t, "rxnorm", cfg.Linker.Ontology)
	assert.Equal(t, "concepts.yaml", cfg.Linker.Dictionary)
	assert.Equal(t, "out.json", cfg.Output.Path)
}

func TestLoadEnvOnly(t *testing.T) {
	t.Setenv("TERMSET_WORKERS", "8")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 0.7, cfg.Threshold)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, internalerr.ErrConfiguration))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"dictionary ok", func(c *Config) { c.Linker.Dictionary = "d.yaml" }, true},
		{"dictionary missing", func(c *Config) {}, false},
		{"remote without url", func(c *Config) { c.Linker.Kind = LinkerRemote }, false},
		{"remote ok", func(c *Config) { c.Linker.Kind = LinkerRemote; c.Linker.BaseURL = "http://x" }, true},
		{"unknown kind", func(c *Config) { c.Linker.Kind = "regex" }, false},
		{"threshold high", func(c *Config) { c.Linker.Dictionary = "d"; c.Threshold = 1.5 }, false},
		{"negative max docs", func(c *Config) { c.Linker.Dictionary = "d"; c.MaxDocs = -1 }, false},
		{"bad compression", func(c *Config) { c.Linker.Dictionary = "d"; c.Output.Compression = "lz4" }, false},
		{"object store without bucket", func(c *Config) {
			c.Linker.Dictionary = "d"
			c.Output.ObjectStore.Endpoint = "localhost:9000"
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, internalerr.ErrConfiguration))
		})
	}
}

func TestValidateRun(t *testing.T) {
	cfg := Defaults()
	cfg.Linker.Dictionary = "d.yaml"

	err := cfg.ValidateRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input.path")
	assert.Contains(t, err.Error(), "output.path")

	cfg.Input.Path = "notes.csv"
	cfg.Output.Path = "terms.json"
	assert.NoError(t, cfg.ValidateRun())
}
