package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/524D/psmcache/internal/psm"
	"github.com/524D/psmcache/internal/spectra"
)

// Run describes one stored snapshot.
type Run struct {
	ID        string
	Workspace string
	CreatedAt time.Time
}

// CachedTable is a PSM table stored under a cache id.
type CachedTable struct {
	CacheID string
	Table   psm.Table
}

// Snapshot is everything one workflow run produced. Files lists the
// filename index map in index order.
type Snapshot struct {
	Workspace string
	Files     []string
	Tables    []CachedTable
	Peaks     []spectra.PeakRecord
}

// ReplaceRun replaces the cache content with snap in a single transaction,
// so readers see either the previous run or the new one.
func (s *Store) ReplaceRun(snap *Snapshot) (Run, error) {
	now := time.Now()
	id, err := generateULID(now)
	if err != nil {
		return Run{}, err
	}
	run := Run{ID: id, Workspace: snap.Workspace, CreatedAt: time.UnixMilli(now.UnixMilli())}

	tx, err := s.db.Begin()
	if err != nil {
		return Run{}, err
	}
	defer tx.Rollback()

	for _, table := range []string{"peaks", "psms", "psm_tables", "files", "runs"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return Run{}, fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO runs (id, workspace, created_at) VALUES (?, ?, ?)`,
		run.ID, run.Workspace, run.CreatedAt.UnixMilli()); err != nil {
		return Run{}, err
	}
	for i, name := range snap.Files {
		if _, err := tx.Exec(`INSERT INTO files (file_index, filename) VALUES (?, ?)`, i, name); err != nil {
			return Run{}, fmt.Errorf("insert file %s: %w", name, err)
		}
	}
	if err := insertTables(tx, run.ID, snap.Tables); err != nil {
		return Run{}, err
	}
	if err := insertPeaks(tx, snap.Peaks); err != nil {
		return Run{}, err
	}
	if err := tx.Commit(); err != nil {
		return Run{}, err
	}
	return run, nil
}

func insertTables(tx *sql.Tx, runID string, tables []CachedTable) error {
	stmt, err := tx.Prepare(`
		INSERT INTO psms (
			cache_id, id_idx, scan_id, file_index, filename, sequence,
			charge, mz, rt, score, protein_accession
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ct := range tables {
		sourceFiles := ct.Table.SourceFiles
		if sourceFiles == nil {
			sourceFiles = []string{}
		}
		data, err := json.Marshal(sourceFiles)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO psm_tables (cache_id, run_id, path, format, score_type, source_files_json)
			VALUES (?, ?, ?, ?, ?, ?)
		`, ct.CacheID, runID, ct.Table.Path, ct.Table.Format, ct.Table.ScoreType, string(data)); err != nil {
			return fmt.Errorf("insert table %s: %w", ct.CacheID, err)
		}
		for _, r := range ct.Table.Records {
			if _, err := stmt.Exec(ct.CacheID, r.IDIdx, r.ScanID, r.FileIndex, r.Filename,
				r.Sequence, r.Charge, nullFloat(r.Mz), nullFloat(r.RT), nullFloat(r.Score),
				r.ProteinAccession); err != nil {
				return fmt.Errorf("insert psm %s/%d: %w", ct.CacheID, r.IDIdx, err)
			}
		}
	}
	return nil
}

func insertPeaks(tx *sql.Tx, peaks []spectra.PeakRecord) error {
	stmt, err := tx.Prepare(`
		INSERT INTO peaks (peak_id, file_index, scan_id, mass, intensity)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, p := range peaks {
		if _, err := stmt.Exec(p.PeakID, p.FileIndex, p.ScanID, nullFloat(p.Mass), nullFloat(p.Intensity)); err != nil {
			return fmt.Errorf("insert peak %d: %w", p.PeakID, err)
		}
	}
	return nil
}

// LatestRun returns the stored run, ErrNotFound if the cache is empty.
func (s *Store) LatestRun() (Run, error) {
	var run Run
	var createdAt int64
	err := s.db.QueryRow(`SELECT id, workspace, created_at FROM runs ORDER BY created_at DESC LIMIT 1`).
		Scan(&run.ID, &run.Workspace, &createdAt)
	if err == sql.ErrNoRows {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, err
	}
	run.CreatedAt = time.UnixMilli(createdAt)
	return run, nil
}

// HasCache reports whether a PSM table is stored under cacheID.
func (s *Store) HasCache(cacheID string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM psm_tables WHERE cache_id = ?`, cacheID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CacheIDs returns the stored cache ids in sorted order.
func (s *Store) CacheIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT cache_id FROM psm_tables ORDER BY cache_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Table returns the PSM table stored under cacheID.
func (s *Store) Table(cacheID string) (psm.Table, error) {
	var t psm.Table
	var sourceFiles string
	err := s.db.QueryRow(`
		SELECT path, format, score_type, source_files_json
		FROM psm_tables
		WHERE cache_id = ?
	`, cacheID).Scan(&t.Path, &t.Format, &t.ScoreType, &sourceFiles)
	if err == sql.ErrNoRows {
		return psm.Table{}, fmt.Errorf("table %q: %w", cacheID, ErrNotFound)
	}
	if err != nil {
		return psm.Table{}, err
	}
	if err := json.Unmarshal([]byte(sourceFiles), &t.SourceFiles); err != nil {
		return psm.Table{}, fmt.Errorf("table %q: source files: %w", cacheID, err)
	}
	t.Records, err = s.PSMs(cacheID)
	if err != nil {
		return psm.Table{}, err
	}
	return t, nil
}

const psmColumns = `id_idx, scan_id, file_index, filename, sequence, charge, mz, rt, score, protein_accession`

// PSMs returns the rows of a PSM table ordered by id_idx.
func (s *Store) PSMs(cacheID string) ([]psm.Record, error) {
	rows, err := s.db.Query(`SELECT `+psmColumns+` FROM psms WHERE cache_id = ? ORDER BY id_idx`, cacheID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := []psm.Record{}
	for rows.Next() {
		r, err := scanPSM(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// PSM returns one row of a PSM table.
func (s *Store) PSM(cacheID string, idIdx int) (psm.Record, error) {
	row := s.db.QueryRow(`SELECT `+psmColumns+` FROM psms WHERE cache_id = ? AND id_idx = ?`, cacheID, idIdx)
	r, err := scanPSM(row)
	if err == sql.ErrNoRows {
		return psm.Record{}, fmt.Errorf("psm %s/%d: %w", cacheID, idIdx, ErrNotFound)
	}
	return r, err
}

// scanner covers *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanPSM(sc scanner) (psm.Record, error) {
	var r psm.Record
	var mz, rt, score sql.NullFloat64
	err := sc.Scan(&r.IDIdx, &r.ScanID, &r.FileIndex, &r.Filename, &r.Sequence,
		&r.Charge, &mz, &rt, &score, &r.ProteinAccession)
	r.Mz, r.RT, r.Score = floatOrNaN(mz), floatOrNaN(rt), floatOrNaN(score)
	return r, err
}

// nullFloat binds NaN as NULL, which is what SQLite would store anyway.
func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// Peaks returns the peaks of one scan ordered by peak_id.
func (s *Store) Peaks(fileIndex, scanID int) ([]spectra.PeakRecord, error) {
	rows, err := s.db.Query(`
		SELECT peak_id, file_index, scan_id, mass, intensity
		FROM peaks
		WHERE file_index = ? AND scan_id = ?
		ORDER BY peak_id
	`, fileIndex, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	peaks := []spectra.PeakRecord{}
	for rows.Next() {
		var p spectra.PeakRecord
		var mass, intensity sql.NullFloat64
		if err := rows.Scan(&p.PeakID, &p.FileIndex, &p.ScanID, &mass, &intensity); err != nil {
			return nil, err
		}
		p.Mass, p.Intensity = floatOrNaN(mass), floatOrNaN(intensity)
		peaks = append(peaks, p)
	}
	return peaks, rows.Err()
}

// NumPeaks returns the size of the peak table.
func (s *Store) NumPeaks() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM peaks`).Scan(&n)
	return n, err
}

// Files returns the stored filename index map, ordered by index.
func (s *Store) Files() ([]string, error) {
	rows, err := s.db.Query(`SELECT filename FROM files ORDER BY file_index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
