// Package idxml reads OpenMS idXML identification documents.
package idxml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/524D/psmcache/internal/docerr"
	"github.com/524D/psmcache/internal/fileindex"
	"github.com/524D/psmcache/internal/ident"
)

// Format is the ident.Document format name of idXML documents.
const Format = "idXML"

// Read reads idXML content from an io.Reader
func Read(reader io.Reader) (ident.Document, error) {
	var content idXMLContent
	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel
	err := d.Decode(&content)
	if err != nil {
		return ident.Document{}, docerr.NewMalformedDocument("", "cannot decode idXML", err)
	}
	return content.document()
}

// ReadFile reads the idXML document at path.
func ReadFile(path string) (ident.Document, error) {
	f, err := docerr.Open(path)
	if err != nil {
		return ident.Document{}, err
	}
	defer f.Close()
	doc, err := Read(f)
	if err != nil {
		return doc, docerr.WithPath(err, path)
	}
	doc.Path = path
	return doc, nil
}

func (c *idXMLContent) document() (ident.Document, error) {
	doc := ident.Document{Format: Format}

	// Protein hit ids are unique over the whole document, peptide hits
	// of any run may refer to them. Each run's spectra_data list is
	// appended to doc.SourceFiles; offsets[i] is where run i's list starts.
	accessions := make(map[string]string)
	offsets := make([]int, len(c.Runs))
	counts := make([]int, len(c.Runs))
	for i, run := range c.Runs {
		for _, ph := range run.ProteinIdentification.ProteinHits {
			accessions[ph.ID] = ph.Accession
		}
		offsets[i] = len(doc.SourceFiles)
		for _, up := range run.ProteinIdentification.UserParams {
			if up.Name == metaSpectraData {
				doc.SourceFiles = append(doc.SourceFiles, parseStringList(up.Value)...)
			}
		}
		counts[i] = len(doc.SourceFiles) - offsets[i]
	}

	for r, run := range c.Runs {
		for i := range run.PeptideIdentifications {
			pepID := &run.PeptideIdentifications[i]
			entry, err := pepID.entry(accessions)
			if err != nil {
				return doc, err
			}
			if counts[r] > 0 {
				entry.SourceFileIndex = runFileIndex(entry.SourceFileIndex, offsets[r], counts[r])
			}
			if doc.ScoreType == "" {
				doc.ScoreType = pepID.ScoreType
			}
			doc.Entries = append(doc.Entries, entry)
		}
	}
	return doc, nil
}

// runFileIndex maps an id_merge_index, which counts within the spectra_data
// list of its own run, to an index into the document-wide list. An absent
// index selects the first file of the run, and stays absent in the first
// run. An index outside the run's list gives -1, which does not resolve to
// any file.
func runFileIndex(local *int, offset, count int) *int {
	if local == nil && offset == 0 {
		return nil
	}
	idx := offset
	if local != nil {
		idx = -1
		if *local >= 0 && *local < count {
			idx = offset + *local
		}
	}
	return &idx
}

func (p *peptideIdentification) entry(accessions map[string]string) (ident.Entry, error) {
	e := ident.Entry{
		RetentionTime: p.RT,
		MassToCharge:  p.MZ,
	}

	// spectrum_reference moved from a UserParam to an attribute in later
	// idXML versions, accept both
	if p.SpectrumReference != nil {
		ref := *p.SpectrumReference
		e.SpectrumReference = &ref
	}
	for _, up := range p.UserParams {
		switch up.Name {
		case metaSpectrumReference:
			if e.SpectrumReference == nil {
				ref := up.Value
				e.SpectrumReference = &ref
			}
		case metaMergeIndex:
			// A merge index that is not a number is treated as absent
			if idx, err := strconv.Atoi(strings.TrimSpace(up.Value)); err == nil {
				e.SourceFileIndex = &idx
			}
		}
	}

	e.Hits = make([]ident.Hit, 0, len(p.Hits))
	for _, h := range p.Hits {
		hit := ident.Hit{
			Sequence:          h.Sequence,
			Charge:            h.Charge,
			Score:             h.Score,
			ProteinAccessions: []string{},
		}
		for _, ref := range strings.Fields(h.ProteinRefs) {
			acc, ok := accessions[ref]
			if !ok {
				return e, docerr.NewMalformedDocument("",
					fmt.Sprintf("peptide hit %s refers to unknown protein hit %q", h.Sequence, ref), nil)
			}
			hit.ProteinAccessions = append(hit.ProteinAccessions, acc)
		}
		e.Hits = append(e.Hits, hit)
	}
	return e, nil
}

// parseStringList splits an OpenMS string list value like
// "[/data/a.mzML, file:///data/b.mzML]" into basenames.
func parseStringList(v string) []string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "[")
	v = strings.TrimSuffix(v, "]")
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, fileindex.BaseName(s))
	}
	return out
}
