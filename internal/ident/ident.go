// Package ident holds the identification model shared by the idXML and
// mzIdentML readers.
package ident

import "strings"

// AccessionSeparator joins the protein accessions of a hit.
const AccessionSeparator = ";"

// Document is the content of one identification document.
type Document struct {
	Path      string // Path the document was read from, empty for readers
	Format    string // "idXML" or "mzIdentML"
	ScoreType string // Name of the hit score, if the document declares one
	// Raw-data basenames the identifications were made on, in document order.
	// Empty when the document does not embed them.
	SourceFiles []string
	Entries     []Entry
}

// Entry is one spectrum-level identification result.
type Entry struct {
	RetentionTime float64
	MassToCharge  float64
	// Metadata that older documents may lack; nil when absent
	SpectrumReference *string
	SourceFileIndex   *int
	Hits              []Hit
}

// Hit is one candidate peptide assignment of an entry.
type Hit struct {
	Sequence          string
	Charge            int
	Score             float64
	ProteinAccessions []string
}

// JoinedAccessions returns the protein accessions separated by ";", or the
// empty string when the hit has no protein evidence.
func (h Hit) JoinedAccessions() string {
	return strings.Join(h.ProteinAccessions, AccessionSeparator)
}

// NumHits returns the total number of hits over all entries.
func (d *Document) NumHits() int {
	n := 0
	for _, e := range d.Entries {
		n += len(e.Hits)
	}
	return n
}

// SpectrumRef returns the spectrum reference, or "" if absent.
func (e *Entry) SpectrumRef() string {
	if e.SpectrumReference == nil {
		return ""
	}
	return *e.SpectrumReference
}
