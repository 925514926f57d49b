package mzml

import (
	"encoding/xml"
	"errors"
)

// MzML wraps the contents of the mzML file
type MzML struct {
	content  mzMLContent
	index2id []string
	id2Index map[string]int
}

// Peak contains the actual ms peak info
type Peak struct {
	Mz     float64
	Intens float64
}

// Spectrum is one acquisition event with its decoded peaks
type Spectrum struct {
	Index         int    // Position of the spectrum in the file
	NativeID      string // Vendor identifier, e.g. "controllerType=0 controllerNumber=1 scan=43"
	MSLevel       int
	RetentionTime float64 // Scan start time in seconds, -1 if not stored
	PrecursorMz   float64 // m/z of the first selected ion, 0 if none
	Peaks         []Peak
}

// The mzML content that we read. Only what is needed to build spectra
// is parsed, everything else in the file is skipped.
type mzMLContent struct {
	XMLName xml.Name `xml:"http://psi.hupo.org/ms/mzml mzML"`
	Version string   `xml:"version,attr,omitempty"`
	CvList  *cvList  `xml:"cvList"`
	Run     run      `xml:"run"`
}

type cvList struct {
	Count int  `xml:"count,attr"`
	Cv    []cv `xml:"cv"`
}

type cv struct {
	ID       string `xml:"id,attr"`
	FullName string `xml:"fullName,attr,omitempty"`
	URI      string `xml:"URI,attr,omitempty"`
}

type run struct {
	ID                                string       `xml:"id,attr,omitempty"`
	DefaultInstrumentConfigurationRef string       `xml:"defaultInstrumentConfigurationRef,attr,omitempty"`
	SpectrumList                      spectrumList `xml:"spectrumList"`
}

type spectrumList struct {
	Count                    int        `xml:"count,attr"`
	DefaultDataProcessingRef string     `xml:"defaultDataProcessingRef,attr,omitempty"`
	Spectrum                 []spectrum `xml:"spectrum,omitempty"`
}

type spectrum struct {
	Index              int       `xml:"index,attr"`
	ID                 string    `xml:"id,attr"`
	DefaultArrayLength int       `xml:"defaultArrayLength,attr"`
	CvPar              []CVParam `xml:"cvParam,omitempty"`
	ScanList           *scanList `xml:"scanList"`
	// precursorList is a slice, only the current version of
	// the encoding/xml package does not handle "omitempty" properly on
	// structures, and we don't want precursorList tags to appear in
	// e.g. ms1 spectra
	PrecursorList       []precursorList     `xml:"precursorList,omitempty"`
	BinaryDataArrayList binaryDataArrayList `xml:"binaryDataArrayList"`
}

type binaryDataArrayList struct {
	Count           int               `xml:"count,attr"`
	BinaryDataArray []binaryDataArray `xml:"binaryDataArray"`
}

type binaryDataArray struct {
	EncodedLength int       `xml:"encodedLength,attr"`
	ArrayLength   int       `xml:"arrayLength,attr,omitempty"`
	CvPar         []CVParam `xml:"cvParam,omitempty"`
	Binary        string    `xml:"binary"`
}

type scanList struct {
	Count int       `xml:"count,attr"`
	CvPar []CVParam `xml:"cvParam,omitempty"`
	Scan  []scan    `xml:"scan"`
}

type scan struct {
	CvPar []CVParam `xml:"cvParam,omitempty"`
}

type precursorList struct {
	Count     int         `xml:"count,attr"`
	Precursor []precursor `xml:"precursor"`
}

type precursor struct {
	SpectrumRef     string          `xml:"spectrumRef,attr,omitempty"`
	SelectedIonList selectedIonList `xml:"selectedIonList"`
}

type selectedIonList struct {
	Count       int           `xml:"count,attr"`
	SelectedIon []selectedIon `xml:"selectedIon"`
}

type selectedIon struct {
	CvPar []CVParam `xml:"cvParam,omitempty"`
}

// CVParam contains values and attributes of a mzML Controlled Vocabulary term
// (http://www.peptideatlas.org/tmp/mzML1.1.0.html)
type CVParam struct {
	CvRef         string `xml:"cvRef,attr,omitempty"`
	Accession     string `xml:"accession,attr,omitempty"`
	Name          string `xml:"name,attr,omitempty"`
	Value         string `xml:"value,attr,omitempty"`
	UnitCvRef     string `xml:"unitCvRef,attr,omitempty"`
	UnitAccession string `xml:"unitAccession,attr,omitempty"`
	UnitName      string `xml:"unitName,attr,omitempty"`
}

// CV terms used when reading and writing spectra
const (
	cvMSLevel         = `MS:1000511`
	cvScanStartTime   = `MS:1000016`
	cvSelectedIonMz   = `MS:1000744`
	cvMzArray         = `MS:1000514`
	cvIntensityArray  = `MS:1000515`
	cvZlib            = `MS:1000574`
	cvNoCompression   = `MS:1000576`
	cvFloat32         = `MS:1000521`
	cvFloat64         = `MS:1000523`
	cvUnitMinute      = `UO:0000031`
	cvUnitMinuteMS    = `MS:1000038`
	cvUnitSecond      = `UO:0000010`
	cvUnitMz          = `MS:1000040`
	cvUnitCounts      = `MS:1000131`
	cvMS1Spectrum     = `MS:1000579`
	cvMSnSpectrum     = `MS:1000580`
	cvCentroidSpectra = `MS:1000127`
)

var (
	// ErrInvalidScanID means an invalid scan id is supplied
	ErrInvalidScanID = errors.New("MzML: invalid scan id")
	// ErrInvalidScanIndex means an invalid scan index is supplied
	ErrInvalidScanIndex = errors.New("MzML: invalid scan index")
	// ErrUnknownUnit means the file contains a unit that the software cannot handle
	ErrUnknownUnit = errors.New("MzML: can't handle unit")
	// ErrUnsupportedEncoding means a binary array uses a compression that cannot be decoded
	ErrUnsupportedEncoding = errors.New("MzML: unsupported binary encoding")
	// ErrNoContent means the input contains no mzML element
	ErrNoContent = errors.New("MzML: no mzML element found")
)
