// Package spectra builds the flat MS2 peak table of a directory of mzML
// documents.
package spectra

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/524D/psmcache/internal/docerr"
	"github.com/524D/psmcache/internal/fileindex"
	"github.com/524D/psmcache/internal/mzml"
	"github.com/524D/psmcache/internal/nativeid"
)

// DefaultExt is the extension of the documents that are scanned.
const DefaultExt = ".mzML"

// Only fragmentation spectra are cached
const cachedMSLevel = 2

// PeakRecord is one row of the flat peak table.
type PeakRecord struct {
	PeakID    int     `json:"peak_id"`
	FileIndex int     `json:"file_index"`
	ScanID    int     `json:"scan_id"`
	Mass      float64 `json:"mass"`
	Intensity float64 `json:"intensity"`
}

// ListDocuments returns the paths of the files in dir with extension ext,
// ordered by filename. The extension match is case sensitive, so listed
// names agree with names derived as stem + ext. A directory that is missing,
// is not a directory or cannot be read is reported as NotFound.
func ListDocuments(dir string, ext string) ([]string, error) {
	if ext == "" {
		ext = DefaultExt
	}
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, docerr.NewNotFound(dir, err)
	}
	var paths []string
	for _, de := range dirEntries {
		if de.IsDir() || filepath.Ext(de.Name()) != ext {
			continue
		}
		paths = append(paths, filepath.Join(dir, de.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Builder scans directories of raw-data documents.
type Builder struct {
	Ext     string // Document extension, DefaultExt if empty
	Workers int    // Documents parsed concurrently, 1 if < 1
	Logger  zerolog.Logger
}

// Build parses every document of dir and returns its MS2 peaks, one
// record per peak. Filenames not yet known to idx are registered in
// filename order before any document is parsed, and per-document results
// are merged in that same order, so the output does not depend on Workers.
// PeakID counts from 0 over the whole directory. Build returns idx, or
// the map it created when idx is nil.
func (b *Builder) Build(dir string, idx *fileindex.Map) ([]PeakRecord, *fileindex.Map, error) {
	paths, err := ListDocuments(dir, b.Ext)
	if err != nil {
		return nil, idx, err
	}
	if idx == nil {
		idx = fileindex.New()
	}
	fileIndices := make([]int, len(paths))
	for i, p := range paths {
		fileIndices[i] = idx.Index(filepath.Base(p))
	}

	t := time.Now()
	perFile := make([][]PeakRecord, len(paths))
	var g errgroup.Group
	workers := b.Workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)
	for i := range paths {
		g.Go(func() error {
			peaks, err := filePeaks(paths[i], fileIndices[i])
			if err != nil {
				return err
			}
			perFile[i] = peaks
			b.Logger.Debug().
				Str("path", paths[i]).
				Int("file_index", fileIndices[i]).
				Int("peaks", len(peaks)).
				Msg("read raw-data document")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, idx, err
	}

	n := 0
	for _, peaks := range perFile {
		n += len(peaks)
	}
	records := make([]PeakRecord, 0, n)
	for _, peaks := range perFile {
		for _, p := range peaks {
			p.PeakID = len(records)
			records = append(records, p)
		}
	}
	b.Logger.Info().
		Str("dir", dir).
		Int("documents", len(paths)).
		Int("peaks", len(records)).
		Dur("elapsed", time.Since(t)).
		Msg("built spectra cache")
	return records, idx, nil
}

// filePeaks returns the MS2 peaks of one document. PeakID is left 0.
func filePeaks(path string, fileIndex int) ([]PeakRecord, error) {
	specs, err := mzml.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var peaks []PeakRecord
	for _, s := range specs {
		if s.MSLevel != cachedMSLevel {
			continue
		}
		scanID := nativeid.ScanNumber(s.NativeID)
		for _, p := range s.Peaks {
			peaks = append(peaks, PeakRecord{
				FileIndex: fileIndex,
				ScanID:    scanID,
				Mass:      p.Mz,
				Intensity: p.Intens,
			})
		}
	}
	return peaks, nil
}
