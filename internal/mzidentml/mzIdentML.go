package mzidentml

import (
	"encoding/xml"
)

// Types for parsing mzIdentML

// MzIdentML holds only the part of mzIdentML files
// in which we are interrested
type MzIdentML struct {
	pepID2Idx      map[string]int
	evidenceID2Idx map[string]int
	dbSeqID2Idx    map[string]int
	spectraID2Idx  map[string]int
	content        mzIdentMLContent
}

type mzIdentMLContent struct {
	XMLName                      xml.Name                       `xml:"MzIdentML"`
	DBSequence                   []dbSequence                   `xml:"SequenceCollection>DBSequence"`
	Peptide                      []peptide                      `xml:"SequenceCollection>Peptide"`
	PeptideEvidence              []peptideEvidence              `xml:"SequenceCollection>PeptideEvidence"`
	SpectraData                  []spectraData                  `xml:"DataCollection>Inputs>SpectraData"`
	SpectrumIdentificationResult []spectrumIdentificationResult `xml:"DataCollection>AnalysisData>SpectrumIdentificationList>SpectrumIdentificationResult"`
}

type dbSequence struct {
	ID        string `xml:"id,attr"`
	Accession string `xml:"accession,attr"`
}

type peptide struct {
	ID              string `xml:"id,attr"`
	PeptideSequence string
	Modification    []modification
}

type modification struct {
	// Location is 1-based, 0 is the N-terminus and length+1 the C-terminus
	Location *int `xml:"location,attr"`
	// Note: monoisotopicMassDelta is optional according the the schema, but
	// appears to be no other way to determine mass shift, as other
	// corresponding cvParam's don't carry this info either
	MonoisotopicMassDelta float64 `xml:"monoisotopicMassDelta,attr"`
}

type peptideEvidence struct {
	ID            string `xml:"id,attr"`
	PeptideRef    string `xml:"peptide_ref,attr"`
	DBSequenceRef string `xml:"dBSequence_ref,attr"`
}

type spectraData struct {
	ID       string `xml:"id,attr"`
	Location string `xml:"location,attr"`
	Name     string `xml:"name,attr"`
}

type spectrumIdentificationResult struct {
	SpectrumID                 string `xml:"spectrumID,attr"`
	SpectraDataRef             string `xml:"spectraData_ref,attr"`
	SpectrumIdentificationItem []spectrumIdentificationItem
	CvPar                      []cvParam `xml:"cvParam"`
}

type spectrumIdentificationItem struct {
	ChargeState              int                  `xml:"chargeState,attr"`
	ExperimentalMassToCharge float64              `xml:"experimentalMassToCharge,attr"`
	PeptideRef               string               `xml:"peptide_ref,attr"`
	Rank                     int                  `xml:"rank,attr"`
	PeptideEvidenceRef       []peptideEvidenceRef `xml:"PeptideEvidenceRef"`
	CvPar                    []cvParam            `xml:"cvParam"`
}

type peptideEvidenceRef struct {
	PeptideEvidenceRef string `xml:"peptideEvidence_ref,attr"`
}

type cvParam struct {
	Accession     string `xml:"accession,attr"`
	Name          string `xml:"name,attr"`
	Value         string `xml:"value,attr"`
	UnitAccession string `xml:"unitAccession,attr"`
}

// DefaultScoreAccessions lists the PSM score CV terms that are used as hit
// score, in order of preference
var DefaultScoreAccessions = []string{
	"MS:1002257", // Comet:expectation value
	"MS:1001330", // X!Tandem:expect
	"MS:1002052", // MS-GF:SpecEValue
	"MS:1001328", // OMSSA:evalue
	"MS:1001171", // Mascot:score
	"MS:1001950", // PEAKS:peptideScore
}
