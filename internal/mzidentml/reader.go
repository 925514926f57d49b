// Package mzidentml reads mzIdentML identification documents into the
// shared identification model.
package mzidentml

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/524D/psmcache/internal/docerr"
	"github.com/524D/psmcache/internal/fileindex"
	"github.com/524D/psmcache/internal/ident"
)

// Format is the ident.Document format name of mzIdentML documents.
const Format = "mzIdentML"

// Read reads mzIdentML content from io.reader
func Read(reader io.Reader) (MzIdentML, error) {
	var mzIdentML MzIdentML
	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel
	err := d.Decode(&mzIdentML.content)
	if err != nil {
		return mzIdentML, docerr.NewMalformedDocument("", "cannot decode mzIdentML", err)
	}
	mzIdentML.buildIndexes()
	return mzIdentML, nil
}

// ReadFile reads the mzIdentML document at path and converts it with
// the given score preference (DefaultScoreAccessions if empty).
func ReadFile(path string, scoreAccessions []string) (ident.Document, error) {
	f, err := docerr.Open(path)
	if err != nil {
		return ident.Document{}, err
	}
	defer f.Close()
	m, err := Read(f)
	if err != nil {
		return ident.Document{}, docerr.WithPath(err, path)
	}
	doc, err := m.Document(scoreAccessions)
	if err != nil {
		return doc, docerr.WithPath(err, path)
	}
	doc.Path = path
	return doc, nil
}

func (m *MzIdentML) buildIndexes() {
	m.pepID2Idx = make(map[string]int, len(m.content.Peptide))
	for i, p := range m.content.Peptide {
		m.pepID2Idx[p.ID] = i
	}
	m.evidenceID2Idx = make(map[string]int, len(m.content.PeptideEvidence))
	for i, pe := range m.content.PeptideEvidence {
		m.evidenceID2Idx[pe.ID] = i
	}
	m.dbSeqID2Idx = make(map[string]int, len(m.content.DBSequence))
	for i, s := range m.content.DBSequence {
		m.dbSeqID2Idx[s.ID] = i
	}
	m.spectraID2Idx = make(map[string]int, len(m.content.SpectraData))
	for i, sd := range m.content.SpectraData {
		m.spectraID2Idx[sd.ID] = i
	}
}

// NumResults returns the number of spectrum identification results
func (m *MzIdentML) NumResults() int {
	return len(m.content.SpectrumIdentificationResult)
}

// SourceFiles returns the basenames of the input spectra files, in the
// order of the Inputs section
func (m *MzIdentML) SourceFiles() []string {
	var files []string
	for _, sd := range m.content.SpectraData {
		name := fileindex.BaseName(sd.Location)
		if name == "" {
			name = fileindex.BaseName(sd.Name)
		}
		files = append(files, name)
	}
	return files
}

// Document converts the identifications into an ident.Document. Each
// SpectrumIdentificationResult becomes one entry, each of its items a hit.
func (m *MzIdentML) Document(scoreAccessions []string) (ident.Document, error) {
	if len(scoreAccessions) == 0 {
		scoreAccessions = DefaultScoreAccessions
	}
	doc := ident.Document{
		Format:      Format,
		SourceFiles: m.SourceFiles(),
	}
	doc.Entries = make([]ident.Entry, 0, m.NumResults())
	for i := range m.content.SpectrumIdentificationResult {
		sir := &m.content.SpectrumIdentificationResult[i]
		entry, scoreName, err := m.entry(sir, scoreAccessions)
		if err != nil {
			return doc, err
		}
		if doc.ScoreType == "" {
			doc.ScoreType = scoreName
		}
		doc.Entries = append(doc.Entries, entry)
	}
	return doc, nil
}

func (m *MzIdentML) entry(sir *spectrumIdentificationResult, scoreAccessions []string) (
	ident.Entry, string, error) {

	var e ident.Entry
	if sir.SpectrumID != "" {
		ref := sir.SpectrumID
		e.SpectrumReference = &ref
	}
	if idx, ok := m.spectraID2Idx[sir.SpectraDataRef]; ok {
		e.SourceFileIndex = &idx
	}

	rt, err := retentionTime(sir.CvPar)
	if err != nil {
		return e, "", docerr.NewMalformedDocument("",
			fmt.Sprintf("invalid retention time for spectrum %q", sir.SpectrumID), err)
	}
	e.RetentionTime = rt
	if len(sir.SpectrumIdentificationItem) > 0 {
		e.MassToCharge = sir.SpectrumIdentificationItem[0].ExperimentalMassToCharge
	}

	var scoreName string
	e.Hits = make([]ident.Hit, 0, len(sir.SpectrumIdentificationItem))
	for _, sii := range sir.SpectrumIdentificationItem {
		pepIdx, ok := m.pepID2Idx[sii.PeptideRef]
		if !ok {
			return e, "", docerr.NewMalformedDocument("",
				fmt.Sprintf("unknown peptide_ref %q", sii.PeptideRef), nil)
		}
		hit := ident.Hit{
			Sequence:          modifiedSequence(&m.content.Peptide[pepIdx]),
			Charge:            sii.ChargeState,
			ProteinAccessions: []string{},
		}
		score, name, err := hitScore(sii.CvPar, scoreAccessions)
		if err != nil {
			return e, "", docerr.NewMalformedDocument("",
				fmt.Sprintf("invalid score for spectrum %q", sir.SpectrumID), err)
		}
		hit.Score = score
		if scoreName == "" {
			scoreName = name
		}
		for _, ref := range sii.PeptideEvidenceRef {
			peIdx, ok := m.evidenceID2Idx[ref.PeptideEvidenceRef]
			if !ok {
				return e, "", docerr.NewMalformedDocument("",
					fmt.Sprintf("unknown peptideEvidence_ref %q", ref.PeptideEvidenceRef), nil)
			}
			dbIdx, ok := m.dbSeqID2Idx[m.content.PeptideEvidence[peIdx].DBSequenceRef]
			if !ok {
				return e, "", docerr.NewMalformedDocument("",
					fmt.Sprintf("unknown dBSequence_ref %q", m.content.PeptideEvidence[peIdx].DBSequenceRef), nil)
			}
			hit.ProteinAccessions = append(hit.ProteinAccessions, m.content.DBSequence[dbIdx].Accession)
		}
		e.Hits = append(e.Hits, hit)
	}
	return e, scoreName, nil
}

// retentionTime returns the retention time in seconds, or -1 if none of
// the known CV terms is present.
func retentionTime(cvs []cvParam) (float64, error) {
	rt := float64(-1)
	prio := math.MaxInt32
	for _, cv := range cvs {
		// There are multiple CV terms that can be used to report the
		// retention time. In order of decreasing preference we use:
		// 1. MS:1000016 - scan start time
		// 2. MS:1000894 - retention time
		// 3. MS:1000826 - elution time
		// 4. MS:1001114 - retention time (deprecated)
		p := 0
		switch cv.Accession {
		case "MS:1000016":
			p = 1
		case "MS:1000894":
			p = 2
		case "MS:1000826":
			p = 3
		case "MS:1001114":
			p = 4
		}
		// If a (higher priority) term was found, process/store the retention time
		if p == 0 || p >= prio {
			continue
		}
		prio = p
		retentionTime, err := strconv.ParseFloat(cv.Value, 64)
		if err != nil {
			return -1, err
		}
		// Check if the retention time is in minutes, otherwise assume it's seconds
		if cv.UnitAccession == "UO:0000031" || cv.UnitAccession == "MS:1000038" {
			retentionTime *= 60
		}
		rt = retentionTime
	}
	return rt, nil
}

// hitScore picks the score of an identification item. The first accession
// of the preference list that is present wins; without any, the first
// numeric CV term is used.
func hitScore(cvs []cvParam, accessions []string) (float64, string, error) {
	for _, acc := range accessions {
		for _, cv := range cvs {
			if cv.Accession == acc {
				score, err := strconv.ParseFloat(cv.Value, 64)
				if err != nil {
					return 0, "", err
				}
				return score, cv.Name, nil
			}
		}
	}
	for _, cv := range cvs {
		if score, err := strconv.ParseFloat(cv.Value, 64); err == nil {
			return score, cv.Name, nil
		}
	}
	return 0, "", nil
}

// modifiedSequence annotates the peptide sequence with modification mass
// shifts, e.g. PEPTM[+15.9949]IDE. Terminal modifications go before the
// first or after the last residue.
func modifiedSequence(p *peptide) string {
	if len(p.Modification) == 0 {
		return p.PeptideSequence
	}
	residues := []rune(p.PeptideSequence)
	after := make([][]string, len(residues)+2)
	for _, mod := range p.Modification {
		loc := 0
		if mod.Location != nil {
			loc = *mod.Location
		}
		if loc < 0 {
			loc = 0
		}
		if loc > len(residues)+1 {
			loc = len(residues) + 1
		}
		after[loc] = append(after[loc], fmt.Sprintf("[%+.4f]", mod.MonoisotopicMassDelta))
	}

	var b strings.Builder
	b.WriteString(strings.Join(after[0], ""))
	for i, r := range residues {
		b.WriteRune(r)
		b.WriteString(strings.Join(after[i+1], ""))
	}
	b.WriteString(strings.Join(after[len(residues)+1], ""))
	return b.String()
}
