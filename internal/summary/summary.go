// Package summary computes descriptive statistics of PSM and peak tables.
package summary

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/524D/psmcache/internal/psm"
	"github.com/524D/psmcache/internal/spectra"
)

// Scores describes the score column of a PSM table, ignoring NaN scores.
// All values are 0 when no score is a number.
type Scores struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Median float64 `json:"median"`
}

// PSMTable summarizes a flat PSM table.
type PSMTable struct {
	Rows           int      `json:"rows"`
	Scans          int      `json:"scans"` // distinct (file_index, scan_id)
	Files          int      `json:"files"`
	Sequences      int      `json:"sequences"`
	Unassigned     int      `json:"unassigned"` // rows without a raw-data filename
	ChargeCounts   []int    `json:"charge_counts"`
	Score          Scores   `json:"score"`
	SourceFiles    []string `json:"source_files,omitempty"`
	ScoreType      string   `json:"score_type,omitempty"`
	Identification string   `json:"identification,omitempty"`
}

// PeakTable summarizes a flat peak table.
type PeakTable struct {
	Peaks          int     `json:"peaks"`
	Scans          int     `json:"scans"`
	Files          int     `json:"files"`
	TotalIntensity float64 `json:"total_intensity"`
	MaxIntensity   float64 `json:"max_intensity"`
	MeanPeaks      float64 `json:"mean_peaks_per_scan"`
}

// PSMs summarizes records. ChargeCounts[z] is the number of rows with
// charge z, up to the highest charge seen.
func PSMs(records []psm.Record) PSMTable {
	s := PSMTable{Rows: len(records)}
	if len(records) == 0 {
		return s
	}
	scans := make(map[psm.ScanKey]struct{})
	files := make(map[int]struct{})
	seqs := make(map[string]struct{})
	scores := make([]float64, 0, len(records))
	maxCharge := 0
	for _, r := range records {
		scans[r.Key()] = struct{}{}
		files[r.FileIndex] = struct{}{}
		seqs[r.Sequence] = struct{}{}
		if !math.IsNaN(r.Score) {
			scores = append(scores, r.Score)
		}
		if r.Filename == "" {
			s.Unassigned++
		}
		if r.Charge > maxCharge {
			maxCharge = r.Charge
		}
	}
	s.Scans = len(scans)
	s.Files = len(files)
	s.Sequences = len(seqs)
	s.ChargeCounts = make([]int, maxCharge+1)
	for _, r := range records {
		if r.Charge >= 0 {
			s.ChargeCounts[r.Charge]++
		}
	}
	s.Score = describe(scores)
	return s
}

// Table summarizes a psm.Table, including its document level fields.
func Table(t *psm.Table) PSMTable {
	s := PSMs(t.Records)
	s.SourceFiles = t.SourceFiles
	s.ScoreType = t.ScoreType
	s.Identification = t.Path
	return s
}

// describe summarizes x. NaN values must be filtered out by the caller.
func describe(x []float64) Scores {
	if len(x) == 0 {
		return Scores{}
	}
	sorted := make([]float64, len(x))
	copy(sorted, x)
	sort.Float64s(sorted)
	mean, std := stat.MeanStdDev(sorted, nil)
	if len(sorted) < 2 {
		std = 0
	}
	return Scores{
		Min:    floats.Min(sorted),
		Max:    floats.Max(sorted),
		Mean:   mean,
		StdDev: std,
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
	}
}

// Peaks summarizes a peak table.
func Peaks(peaks []spectra.PeakRecord) PeakTable {
	s := PeakTable{Peaks: len(peaks)}
	if len(peaks) == 0 {
		return s
	}
	type scanKey struct{ file, scan int }
	scans := make(map[scanKey]struct{})
	files := make(map[int]struct{})
	intens := make([]float64, 0, len(peaks))
	for _, p := range peaks {
		scans[scanKey{p.FileIndex, p.ScanID}] = struct{}{}
		files[p.FileIndex] = struct{}{}
		if !math.IsNaN(p.Intensity) {
			intens = append(intens, p.Intensity)
		}
	}
	s.Scans = len(scans)
	s.Files = len(files)
	if len(intens) > 0 {
		s.TotalIntensity = floats.Sum(intens)
		s.MaxIntensity = floats.Max(intens)
	}
	s.MeanPeaks = float64(len(peaks)) / float64(len(scans))
	return s
}
