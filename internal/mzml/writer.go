package mzml

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"io"
	"math"
	"strconv"
)

// Encoding selects how peak arrays are written
type Encoding struct {
	Zlib   bool
	Bits64 bool
}

// Write writes spectra as a minimal mzML document. Spectrum.Index is
// ignored, spectra are numbered in slice order.
func Write(writer io.Writer, spectra []Spectrum, enc Encoding) error {
	if _, err := io.WriteString(writer, xml.Header); err != nil {
		return err
	}
	xe := xml.NewEncoder(writer)
	// FIXME: We want readable XML, with XML tags starting on a new line.
	// GO's Encode doesn't always insert newlines, and using
	// Indent only works if the indent string is not empty,
	// resuling in a single space indent.
	xe.Indent(` `, `  `)

	var content mzMLContent
	content.XMLName = xml.Name{Space: "http://psi.hupo.org/ms/mzml", Local: "mzML"}
	content.Version = "1.1.0"
	content.CvList = &cvList{
		Count: 2,
		Cv: []cv{
			{ID: "MS", FullName: "Proteomics Standards Initiative Mass Spectrometry Ontology",
				URI: "https://raw.githubusercontent.com/HUPO-PSI/psi-ms-CV/master/psi-ms.obo"},
			{ID: "UO", FullName: "Unit Ontology",
				URI: "https://raw.githubusercontent.com/bio-ontology-research-group/unit-ontology/master/unit.obo"},
		},
	}
	content.Run.ID = "run"
	content.Run.SpectrumList.Count = len(spectra)
	content.Run.SpectrumList.Spectrum = make([]spectrum, len(spectra))
	for i, s := range spectra {
		spec, err := encodeSpectrum(i, s, enc)
		if err != nil {
			return err
		}
		content.Run.SpectrumList.Spectrum[i] = spec
	}

	if err := xe.Encode(&content); err != nil {
		return err
	}
	return xe.Flush()
}

func encodeSpectrum(i int, s Spectrum, enc Encoding) (spectrum, error) {
	spec := spectrum{
		Index:              i,
		ID:                 s.NativeID,
		DefaultArrayLength: len(s.Peaks),
	}
	msLevel := s.MSLevel
	if msLevel == 0 {
		msLevel = 1
	}
	kind := CVParam{CvRef: "MS", Accession: cvMSnSpectrum, Name: "MSn spectrum"}
	if msLevel == 1 {
		kind = CVParam{CvRef: "MS", Accession: cvMS1Spectrum, Name: "MS1 spectrum"}
	}
	spec.CvPar = []CVParam{
		{CvRef: "MS", Accession: cvMSLevel, Name: "ms level", Value: strconv.Itoa(msLevel)},
		kind,
		{CvRef: "MS", Accession: cvCentroidSpectra, Name: "centroid spectrum"},
	}
	if s.RetentionTime >= 0 {
		spec.ScanList = &scanList{
			Count: 1,
			CvPar: []CVParam{{CvRef: "MS", Accession: "MS:1000795", Name: "no combination"}},
			Scan: []scan{{CvPar: []CVParam{{
				CvRef:         "MS",
				Accession:     cvScanStartTime,
				Name:          "scan start time",
				Value:         strconv.FormatFloat(s.RetentionTime, 'f', -1, 64),
				UnitCvRef:     "UO",
				UnitAccession: cvUnitSecond,
				UnitName:      "second",
			}}}},
		}
	}
	if s.PrecursorMz > 0 {
		spec.PrecursorList = []precursorList{{
			Count: 1,
			Precursor: []precursor{{
				SelectedIonList: selectedIonList{
					Count: 1,
					SelectedIon: []selectedIon{{CvPar: []CVParam{{
						CvRef:         "MS",
						Accession:     cvSelectedIonMz,
						Name:          "selected ion m/z",
						Value:         strconv.FormatFloat(s.PrecursorMz, 'f', 8, 64),
						UnitCvRef:     "MS",
						UnitAccession: cvUnitMz,
						UnitName:      "m/z",
					}}}},
				},
			}},
		}}
	}

	mz, err := encodeArray(s.Peaks, enc, true)
	if err != nil {
		return spec, err
	}
	intens, err := encodeArray(s.Peaks, enc, false)
	if err != nil {
		return spec, err
	}
	spec.BinaryDataArrayList = binaryDataArrayList{
		Count:           2,
		BinaryDataArray: []binaryDataArray{mz, intens},
	}
	return spec, nil
}

func encodeArray(p []Peak, enc Encoding, mzArray bool) (binaryDataArray, error) {
	b64, err := encodeBinary(p, enc.Zlib, enc.Bits64, mzArray)
	if err != nil {
		return binaryDataArray{}, err
	}
	var cvs []CVParam
	if enc.Bits64 {
		cvs = append(cvs, CVParam{CvRef: "MS", Accession: cvFloat64, Name: "64-bit float"})
	} else {
		cvs = append(cvs, CVParam{CvRef: "MS", Accession: cvFloat32, Name: "32-bit float"})
	}
	if enc.Zlib {
		cvs = append(cvs, CVParam{CvRef: "MS", Accession: cvZlib, Name: "zlib compression"})
	} else {
		cvs = append(cvs, CVParam{CvRef: "MS", Accession: cvNoCompression, Name: "no compression"})
	}
	if mzArray {
		cvs = append(cvs, CVParam{CvRef: "MS", Accession: cvMzArray, Name: "m/z array",
			UnitCvRef: "MS", UnitAccession: cvUnitMz, UnitName: "m/z"})
	} else {
		cvs = append(cvs, CVParam{CvRef: "MS", Accession: cvIntensityArray, Name: "intensity array",
			UnitCvRef: "MS", UnitAccession: cvUnitCounts, UnitName: "number of detector counts"})
	}
	return binaryDataArray{
		EncodedLength: len(b64),
		CvPar:         cvs,
		Binary:        b64,
	}, nil
}

func encodeBinary(p []Peak, zlibCompression bool, bits64 bool, mzArray bool) (
	string, error) {

	var data []byte
	var rawUncompressed []byte

	// Some code duplication below in order to optimize loops
	if bits64 {
		// Allocate room for uncompressed binary data
		rawUncompressed = make([]byte, len(p)*8)
		if mzArray {
			for i, peak := range p {
				u64bits := math.Float64bits(peak.Mz)
				binary.LittleEndian.PutUint64(rawUncompressed[(8*i):], u64bits)
			}
		} else {
			for i, peak := range p {
				u64bits := math.Float64bits(peak.Intens)
				binary.LittleEndian.PutUint64(rawUncompressed[(8*i):], u64bits)
			}
		}
	} else {
		rawUncompressed = make([]byte, len(p)*4)
		if mzArray {
			for i, peak := range p {
				u32bits := math.Float32bits(float32(peak.Mz))
				binary.LittleEndian.PutUint32(rawUncompressed[(4*i):], u32bits)
			}
		} else {
			for i, peak := range p {
				u32bits := math.Float32bits(float32(peak.Intens))
				binary.LittleEndian.PutUint32(rawUncompressed[(4*i):], u32bits)
			}
		}
	}
	if zlibCompression {
		var b bytes.Buffer
		z := zlib.NewWriter(&b)
		if _, err := z.Write(rawUncompressed); err != nil {
			return "", err
		}
		// zlib writer must explicitly be closed here, otherwise result is invalid
		if err := z.Close(); err != nil {
			return "", err
		}
		data = b.Bytes()
	} else {
		data = rawUncompressed
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
