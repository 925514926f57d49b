// Package workflow builds the PSM and peak caches of a workspace and reads
// them back for display.
package workflow

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/524D/psmcache/internal/config"
	"github.com/524D/psmcache/internal/docerr"
	"github.com/524D/psmcache/internal/fileindex"
	"github.com/524D/psmcache/internal/logger"
	"github.com/524D/psmcache/internal/psm"
	"github.com/524D/psmcache/internal/spectra"
	"github.com/524D/psmcache/internal/store"
	"github.com/524D/psmcache/internal/summary"
)

// TableReport describes one cached PSM table.
type TableReport struct {
	CacheID string           `json:"cache_id"`
	Path    string           `json:"path"`
	Summary summary.PSMTable `json:"summary"`
}

// Report is the outcome of Run.
type Report struct {
	RunID       string            `json:"run_id"`
	Workspace   string            `json:"workspace"`
	CachePath   string            `json:"cache_path"`
	Files       []string          `json:"files"`
	Tables      []TableReport     `json:"tables"`
	Peaks       summary.PeakTable `json:"peaks"`
	MissingDirs []string          `json:"missing_dirs,omitempty"`
	Elapsed     time.Duration     `json:"elapsed"`
}

// CachePath returns the cache database of workspace.
func CachePath(cfg *config.Config, workspace string) string {
	return filepath.Join(workspace, cfg.WorkflowDir, cfg.CacheFile)
}

// CacheID returns the id a PSM table is cached under: the stem of its
// identification document.
func CacheID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Run flattens every identification document in the configured result
// directories, builds the peak table of the raw-data directory and stores
// both in st. All tables share one filename index map, so file indices
// join across them.
//
// Missing result directories are skipped; it is an error when none of
// them exists, or when the raw-data directory is missing.
func Run(cfg *config.Config, workspace string, st *store.Store, log zerolog.Logger) (*Report, error) {
	t := time.Now()
	log = logger.Component(log, "workflow")
	report := &Report{Workspace: workspace, CachePath: st.Path()}
	idx := fileindex.New()
	opts := psm.Options{
		Suffixes:        cfg.SourceSuffixes,
		RawDataExt:      cfg.RawDataExt,
		ScoreAccessions: cfg.ScoreAccessions,
		Logger:          logger.Component(log, "psm"),
	}

	workflowDir := filepath.Join(workspace, cfg.WorkflowDir)
	var tables []store.CachedTable
	seen := make(map[string]string)
	for _, rd := range cfg.ResultDirs {
		dir := filepath.Join(workflowDir, rd)
		paths, err := listIdentifications(dir, cfg.IdentificationExts)
		if docerr.Is(err, docerr.KindNotFound) {
			log.Info().Str("dir", dir).Msg("no results yet, skipping")
			report.MissingDirs = append(report.MissingDirs, dir)
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, path := range paths {
			id := CacheID(path)
			if prev, ok := seen[id]; ok {
				return nil, fmt.Errorf("cache id %q used by both %s and %s", id, prev, path)
			}
			seen[id] = path

			table, err := psm.BuildTable(path, idx, opts)
			if err != nil {
				return nil, err
			}
			tables = append(tables, store.CachedTable{CacheID: id, Table: table})
			report.Tables = append(report.Tables, TableReport{
				CacheID: id,
				Path:    path,
				Summary: summary.Table(&table),
			})
			log.Info().Str("cache_id", id).Int("psms", len(table.Records)).Msg("built PSM table")
		}
	}
	if len(cfg.ResultDirs) > 0 && len(report.MissingDirs) == len(cfg.ResultDirs) {
		return nil, docerr.NewNotFound(workflowDir, fmt.Errorf("none of the result directories exists"))
	}

	b := spectra.Builder{
		Ext:     cfg.RawDataExt,
		Workers: cfg.Workers,
		Logger:  logger.Component(log, "spectra"),
	}
	peaks, _, err := b.Build(filepath.Join(workspace, cfg.MzMLDir), idx)
	if err != nil {
		return nil, err
	}
	report.Peaks = summary.Peaks(peaks)
	report.Files = idx.Names()

	run, err := st.ReplaceRun(&store.Snapshot{
		Workspace: workspace,
		Files:     report.Files,
		Tables:    tables,
		Peaks:     peaks,
	})
	if err != nil {
		return nil, fmt.Errorf("store cache: %w", err)
	}
	report.RunID = run.ID
	report.Elapsed = time.Since(t)
	log.Info().
		Str("run_id", run.ID).
		Int("tables", len(tables)).
		Int("files", len(report.Files)).
		Int("peaks", len(peaks)).
		Dur("elapsed", report.Elapsed).
		Msg("cache updated")
	return report, nil
}

// listIdentifications returns the identification documents of dir sorted
// by filename.
func listIdentifications(dir string, exts []string) ([]string, error) {
	var paths []string
	for _, ext := range exts {
		p, err := spectra.ListDocuments(dir, ext)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p...)
	}
	sort.Strings(paths)
	return paths, nil
}

// Match is a cached PSM together with the peaks of its spectrum.
type Match struct {
	CacheID string               `json:"cache_id"`
	PSM     psm.Record           `json:"psm"`
	Peaks   []spectra.PeakRecord `json:"peaks"`
}

// Lookup returns row idIdx of the cached table cacheID joined with its
// peaks. A cache that was never built is reported as NotFound.
func Lookup(st *store.Store, cacheID string, idIdx int) (Match, error) {
	ok, err := st.HasCache(cacheID)
	if err != nil {
		return Match{}, err
	}
	if !ok {
		return Match{}, docerr.NewNotFound(st.Path(), fmt.Errorf("no cached table %q", cacheID))
	}
	rec, err := st.PSM(cacheID, idIdx)
	if err != nil {
		return Match{}, err
	}
	peaks, err := st.Peaks(rec.FileIndex, rec.ScanID)
	if err != nil {
		return Match{}, err
	}
	return Match{CacheID: cacheID, PSM: rec, Peaks: peaks}, nil
}
