// Package config loads the psmcache YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/524D/psmcache/internal/logger"
)

// FileName is the configuration file looked up in a workspace.
const FileName = "psmcache.yaml"

// Config holds application configuration.
type Config struct {
	// WorkflowDir is the workflow directory, relative to the workspace.
	WorkflowDir string `yaml:"workflow_dir"`

	// ResultDirs hold identification documents, relative to WorkflowDir.
	// They are scanned in this order.
	ResultDirs []string `yaml:"result_dirs,omitempty"`

	// MzMLDir holds the raw-data documents, relative to the workspace.
	MzMLDir string `yaml:"mzml_dir"`

	// CacheFile is the SQLite cache, relative to WorkflowDir.
	CacheFile string `yaml:"cache_file"`

	// SourceSuffixes are stripped from identification file stems when the
	// document does not name its raw-data files.
	SourceSuffixes []string `yaml:"source_suffixes,omitempty"`

	RawDataExt         string   `yaml:"raw_data_ext"`
	IdentificationExts []string `yaml:"identification_exts,omitempty"`

	// ScoreAccessions is the mzIdentML score preference, most preferred first.
	// Empty means the built-in list.
	ScoreAccessions []string `yaml:"score_accessions,omitempty"`

	// Workers is the number of raw-data documents parsed concurrently.
	Workers int `yaml:"workers"`

	LogLevel  string `yaml:"log_level"`
	LogPretty *bool  `yaml:"log_pretty,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	pretty := true
	return &Config{
		WorkflowDir: "topp-workflow",
		ResultDirs: []string{
			"results/comet_results",
			"results/percolator_results",
			"results/filter_results",
		},
		MzMLDir:            "mzML-files",
		CacheFile:          "results/insight_cache/psmcache.db",
		SourceSuffixes:     []string{"_comet", "_per", "_filter"},
		RawDataExt:         ".mzML",
		IdentificationExts: []string{".idXML", ".mzid"},
		Workers:            4,
		LogLevel:           "info",
		LogPretty:          &pretty,
	}
}

// Load loads configuration from path on top of the defaults.
// Returns default config if the file doesn't exist.
func Load(path string) (*Config, error) {
	cfg, err := loadFileRaw(path)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// loadFileRaw returns a zero config if path is empty or does not exist.
func loadFileRaw(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Merge combines base and overlay configs. Overlay scalars win when
// non-zero, overlay lists replace base lists when non-empty.
func Merge(base, overlay *Config) *Config {
	result := *base

	if overlay.WorkflowDir != "" {
		result.WorkflowDir = overlay.WorkflowDir
	}
	if overlay.MzMLDir != "" {
		result.MzMLDir = overlay.MzMLDir
	}
	if overlay.CacheFile != "" {
		result.CacheFile = overlay.CacheFile
	}
	if overlay.RawDataExt != "" {
		result.RawDataExt = overlay.RawDataExt
	}
	if overlay.Workers != 0 {
		result.Workers = overlay.Workers
	}
	if overlay.LogLevel != "" {
		result.LogLevel = overlay.LogLevel
	}
	if overlay.LogPretty != nil {
		pretty := *overlay.LogPretty
		result.LogPretty = &pretty
	}

	result.ResultDirs = replaceList(base.ResultDirs, overlay.ResultDirs)
	result.SourceSuffixes = replaceList(base.SourceSuffixes, overlay.SourceSuffixes)
	result.IdentificationExts = replaceList(base.IdentificationExts, overlay.IdentificationExts)
	result.ScoreAccessions = replaceList(base.ScoreAccessions, overlay.ScoreAccessions)
	return &result
}

// replaceList returns a trimmed copy of overlay, or of base if overlay has
// no non-blank entries.
func replaceList(base, overlay []string) []string {
	if out := cleanList(overlay); out != nil {
		return out
	}
	return cleanList(base)
}

func cleanList(in []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Pretty reports whether console logging is enabled.
func (c *Config) Pretty() bool {
	return c.LogPretty != nil && *c.LogPretty
}

// Validate checks the configuration for values the engine cannot use.
func (c *Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if !strings.HasPrefix(c.RawDataExt, ".") || len(c.RawDataExt) < 2 {
		errs = append(errs, fmt.Errorf("raw_data_ext must be an extension like .mzML, got %q", c.RawDataExt))
	}
	if len(c.IdentificationExts) == 0 {
		errs = append(errs, errors.New("identification_exts must not be empty"))
	}
	for _, ext := range c.IdentificationExts {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			errs = append(errs, fmt.Errorf("identification extension must start with a dot, got %q", ext))
		}
	}
	if c.CacheFile == "" {
		errs = append(errs, errors.New("cache_file must not be empty"))
	}
	if !logger.ValidLevel(c.LogLevel) {
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	return errors.Join(errs...)
}
