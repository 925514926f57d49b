package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	require.NoError(t, cfg.Validate())

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(`
workflow_dir: wf
result_dirs:
  - results/msgf_results
  - " results/msgf_results "
source_suffixes: [_msgf]
workers: 8
log_level: debug
log_pretty: false
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wf", cfg.WorkflowDir)
	assert.Equal(t, []string{"results/msgf_results"}, cfg.ResultDirs)
	assert.Equal(t, []string{"_msgf"}, cfg.SourceSuffixes)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.Pretty())

	// Untouched keys keep their defaults
	def := DefaultConfig()
	assert.Equal(t, def.MzMLDir, cfg.MzMLDir)
	assert.Equal(t, def.CacheFile, cfg.CacheFile)
	assert.Equal(t, def.IdentificationExts, cfg.IdentificationExts)
	assert.Nil(t, cfg.ScoreAccessions)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("workers: [1"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestMergeDoesNotAliasBase(t *testing.T) {
	base := DefaultConfig()
	merged := Merge(base, &Config{LogPretty: new(bool)})
	assert.False(t, merged.Pretty())
	assert.True(t, base.Pretty())

	merged.ResultDirs[0] = "changed"
	assert.Equal(t, "results/comet_results", base.ResultDirs[0])
}

func TestValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"workers":    func(c *Config) { c.Workers = 0 },
		"raw ext":    func(c *Config) { c.RawDataExt = "mzML" },
		"no id exts": func(c *Config) { c.IdentificationExts = nil },
		"bad id ext": func(c *Config) { c.IdentificationExts = []string{"idXML"} },
		"cache file": func(c *Config) { c.CacheFile = "" },
		"log level":  func(c *Config) { c.LogLevel = "loud" },
	}
	for name, mutate := range tests {
		cfg := DefaultConfig()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: Validate returned nil", name)
		}
	}
}
