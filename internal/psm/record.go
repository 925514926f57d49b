package psm

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/524D/psmcache/internal/ident"
)

// Record is one row of the flat PSM table: a single hit together with the
// spectrum it was assigned to.
type Record struct {
	IDIdx            int     `json:"id_idx"`
	ScanID           int     `json:"scan_id"`
	FileIndex        int     `json:"file_index"`
	Filename         string  `json:"filename"`
	Sequence         string  `json:"sequence"`
	Charge           int     `json:"charge"`
	Mz               float64 `json:"mz"`
	RT               float64 `json:"rt"`
	Score            float64 `json:"score"`
	ProteinAccession string  `json:"protein_accession"`
}

// MarshalJSON writes NaN values, which JSON cannot represent, as null.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	return json.Marshal(struct {
		plain
		Mz    *float64 `json:"mz"`
		RT    *float64 `json:"rt"`
		Score *float64 `json:"score"`
	}{plain(r), finite(r.Mz), finite(r.RT), finite(r.Score)})
}

func finite(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// ResolvedEntry is an identification entry with its resolved reference.
type ResolvedEntry struct {
	ident.Entry
	Ref Reference
}

// Flatten emits one Record per hit, in entry then hit order. IDIdx counts
// from 0 over the whole output; entries without hits add no rows.
func Flatten(entries []ResolvedEntry) []Record {
	n := 0
	for i := range entries {
		n += len(entries[i].Hits)
	}
	records := make([]Record, 0, n)
	for i := range entries {
		e := &entries[i]
		for _, h := range e.Hits {
			records = append(records, Record{
				IDIdx:            len(records),
				ScanID:           e.Ref.ScanID,
				FileIndex:        e.Ref.FileIndex,
				Filename:         e.Ref.Filename,
				Sequence:         h.Sequence,
				Charge:           h.Charge,
				Mz:               e.MassToCharge,
				RT:               e.RetentionTime,
				Score:            h.Score,
				ProteinAccession: h.JoinedAccessions(),
			})
		}
	}
	return records
}

// ScanKey is the join key between PSM and peak tables.
type ScanKey struct {
	FileIndex int
	ScanID    int
}

// Key returns the scan key of r.
func (r *Record) Key() ScanKey {
	return ScanKey{FileIndex: r.FileIndex, ScanID: r.ScanID}
}

// GroupByScan groups records by scan key. Records keep their table order
// within a group.
func GroupByScan(records []Record) map[ScanKey][]Record {
	groups := make(map[ScanKey][]Record)
	for _, r := range records {
		k := r.Key()
		groups[k] = append(groups[k], r)
	}
	return groups
}

// SortedKeys returns the keys of groups ordered by file index, then scan.
func SortedKeys(groups map[ScanKey][]Record) []ScanKey {
	keys := make([]ScanKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].FileIndex != keys[j].FileIndex {
			return keys[i].FileIndex < keys[j].FileIndex
		}
		return keys[i].ScanID < keys[j].ScanID
	})
	return keys
}
