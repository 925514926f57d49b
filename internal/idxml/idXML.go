package idxml

import "encoding/xml"

// Types for parsing idXML. Only the parts that end up in the
// identification table are decoded.

type idXMLContent struct {
	XMLName xml.Name            `xml:"IdXML"`
	Version string              `xml:"version,attr"`
	Runs    []identificationRun `xml:"IdentificationRun"`
}

type identificationRun struct {
	SearchEngine           string                  `xml:"search_engine,attr"`
	SearchEngineVersion    string                  `xml:"search_engine_version,attr"`
	ProteinIdentification  proteinIdentification   `xml:"ProteinIdentification"`
	PeptideIdentifications []peptideIdentification `xml:"PeptideIdentification"`
}

type proteinIdentification struct {
	ScoreType   string       `xml:"score_type,attr"`
	ProteinHits []proteinHit `xml:"ProteinHit"`
	UserParams  []userParam  `xml:"UserParam"`
}

type proteinHit struct {
	ID        string `xml:"id,attr"`
	Accession string `xml:"accession,attr"`
}

type peptideIdentification struct {
	ScoreType         string       `xml:"score_type,attr"`
	HigherScoreBetter string       `xml:"higher_score_better,attr"`
	MZ                float64      `xml:"MZ,attr"`
	RT                float64      `xml:"RT,attr"`
	SpectrumReference *string      `xml:"spectrum_reference,attr"`
	Hits              []peptideHit `xml:"PeptideHit"`
	UserParams        []userParam  `xml:"UserParam"`
}

type peptideHit struct {
	Score       float64     `xml:"score,attr"`
	Sequence    string      `xml:"sequence,attr"`
	Charge      int         `xml:"charge,attr"`
	ProteinRefs string      `xml:"protein_refs,attr"`
	UserParams  []userParam `xml:"UserParam"`
}

type userParam struct {
	Type  string `xml:"type,attr"`
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// Meta value names used by OpenMS tools
const (
	metaSpectrumReference = "spectrum_reference"
	metaMergeIndex        = "id_merge_index"
	metaSpectraData       = "spectra_data"
)
