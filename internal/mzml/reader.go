// Package mzml reads spectra from mzML raw-data documents.
package mzml

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"golang.org/x/net/html/charset"

	"github.com/524D/psmcache/internal/docerr"
)

// Read reads mzML file from an io.Reader
func Read(reader io.Reader) (MzML, error) {
	var mzML MzML
	found := false

	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel

	// We are only interested in mzML content, so skip over indexedmzML
	// and everything else
	for {
		t, tokenErr := d.Token()
		if tokenErr != nil {
			if tokenErr == io.EOF {
				break
			}
			return mzML, docerr.NewMalformedDocument("", "cannot decode mzML", tokenErr)
		}
		switch t := t.(type) {
		case xml.StartElement:
			if t.Name.Local == "mzML" {
				if err := d.DecodeElement(&mzML.content, &t); err != nil {
					return mzML, docerr.NewMalformedDocument("", "cannot decode mzML", err)
				}
				found = true
			}
		}
	}
	if !found {
		return mzML, docerr.NewMalformedDocument("", "", ErrNoContent)
	}

	if err := mzML.traverseScan(); err != nil {
		return mzML, docerr.NewMalformedDocument("", "inconsistent spectrum index", err)
	}
	return mzML, nil
}

// ReadFile reads all spectra of the mzML document at path, in file order.
func ReadFile(path string) ([]Spectrum, error) {
	f, err := docerr.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	mzML, err := Read(f)
	if err != nil {
		return nil, docerr.WithPath(err, path)
	}
	specs, err := mzML.Spectra()
	if err != nil {
		return nil, docerr.WithPath(err, path)
	}
	return specs, nil
}

// arrayEncoding holds the CV terms of a mzML binarydata section
//
// CV Terms for binary data compression
// MS:1000574 zlib compression
// MS:1000576 No Compression
// MS:1002312 MS-Numpress linear prediction compression
// MS:1002313 MS-Numpress positive integer compression
// MS:1002314 MS-Numpress short logged float compression
// MS:1002746 MS-Numpress linear prediction compression followed by zlib compression
// MS:1002747 MS-Numpress positive integer compression followed by zlib compression
// MS:1002748 MS-Numpress short logged float compression followed by zlib compression
//
// CV Terms for binary data array types
// MS:1000514 m/z array
// MS:1000515 intensity array
//
// CV Terms for binary-data-type
// MS:1000521 32-bit float
// MS:1000523 64-bit float
type arrayEncoding struct {
	zlib           bool // Default: no compression
	bits64         bool // Default: 32 bits
	mzArray        bool
	intensityArray bool
	numpress       string
}

func binaryDataPars(binaryDataArray *binaryDataArray) arrayEncoding {
	var enc arrayEncoding
	for _, cvParam := range binaryDataArray.CvPar {
		switch cvParam.Accession {
		case cvZlib:
			enc.zlib = true
		case cvMzArray:
			enc.mzArray = true
		case cvIntensityArray:
			enc.intensityArray = true
		case cvFloat64:
			enc.bits64 = true
		case `MS:1002312`, `MS:1002313`, `MS:1002314`,
			`MS:1002746`, `MS:1002747`, `MS:1002748`:
			enc.numpress = cvParam.Accession
		}
	}
	return enc
}

// decodeArray returns the values stored in a binary data array
func decodeArray(binaryDataArray *binaryDataArray, enc arrayEncoding) ([]float64, error) {
	if enc.numpress != "" {
		return nil, docerr.NewMalformedDocument("",
			"MS-Numpress compression (CV term "+enc.numpress+")", ErrUnsupportedEncoding)
	}
	data, err := base64.StdEncoding.DecodeString(binaryDataArray.Binary)
	if err != nil {
		return nil, docerr.NewCorruptPeakData("", "invalid base64 in binary data array: "+err.Error())
	}
	// Some writers leave empty arrays uncompressed even when zlib is declared
	if enc.zlib && len(data) > 0 {
		z, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, docerr.NewCorruptPeakData("", "invalid zlib data: "+err.Error())
		}
		defer z.Close()
		d, err := io.ReadAll(z)
		if err != nil {
			return nil, docerr.NewCorruptPeakData("", "invalid zlib data: "+err.Error())
		}
		data = d
	}

	wordSize := 4
	if enc.bits64 {
		wordSize = 8
	}
	if len(data)%wordSize != 0 {
		return nil, docerr.NewCorruptPeakData("",
			fmt.Sprintf("binary array of %d bytes is not a multiple of %d", len(data), wordSize))
	}
	cnt := len(data) / wordSize
	values := make([]float64, cnt)
	if enc.bits64 {
		for i := 0; i < cnt; i++ {
			bits := binary.LittleEndian.Uint64(data[i*8:])
			values[i] = math.Float64frombits(bits)
		}
	} else {
		for i := 0; i < cnt; i++ {
			bits := binary.LittleEndian.Uint32(data[i*4:])
			values[i] = float64(math.Float32frombits(bits))
		}
	}
	return values, nil
}

// NumSpecs returns the number of spectra
func (f *MzML) NumSpecs() int {
	return len(f.content.Run.SpectrumList.Spectrum)
}

// RetentionTime returns the retention time of a spectrum in seconds,
// or -1 if the spectrum has no scan start time
func (f *MzML) RetentionTime(scanIndex int) (float64, error) {
	if scanIndex < 0 || scanIndex >= f.NumSpecs() {
		return 0.0, ErrInvalidScanIndex
	}
	sl := f.content.Run.SpectrumList.Spectrum[scanIndex].ScanList
	if sl == nil {
		return -1.0, nil
	}
	for _, scan := range sl.Scan {
		for _, cvParam := range scan.CvPar {
			if cvParam.Accession == cvScanStartTime {
				retentionTime, err := strconv.ParseFloat(cvParam.Value, 64)
				if err != nil {
					return -1.0, err
				}
				switch cvParam.UnitAccession {
				case cvUnitMinute, cvUnitMinuteMS:
					retentionTime *= 60
				case cvUnitSecond, "":
				default:
					return -1.0, ErrUnknownUnit
				}
				return retentionTime, nil
			}
		}
	}
	return -1.0, nil
}

// MSLevel returns the MS level of a scan
func (f *MzML) MSLevel(scanIndex int) (int, error) {
	if scanIndex < 0 || scanIndex >= f.NumSpecs() {
		return 0, ErrInvalidScanIndex
	}

	for _, cvParam := range f.content.Run.SpectrumList.Spectrum[scanIndex].CvPar {
		if cvParam.Accession == cvMSLevel {
			msLevel, err := strconv.ParseInt(cvParam.Value, 10, 64)
			return int(msLevel), err
		}
	}
	return 1, nil // If nothing else, guess it's MS1
}

// PrecursorMz returns the m/z of the first selected ion of a spectrum,
// or 0 if the spectrum has no precursor
func (f *MzML) PrecursorMz(scanIndex int) (float64, error) {
	if scanIndex < 0 || scanIndex >= f.NumSpecs() {
		return 0.0, ErrInvalidScanIndex
	}
	for _, pl := range f.content.Run.SpectrumList.Spectrum[scanIndex].PrecursorList {
		for _, p := range pl.Precursor {
			for _, ion := range p.SelectedIonList.SelectedIon {
				for _, cvParam := range ion.CvPar {
					if cvParam.Accession == cvSelectedIonMz {
						return strconv.ParseFloat(cvParam.Value, 64)
					}
				}
			}
		}
	}
	return 0.0, nil
}

// ReadScan reads the peaks of a single scan.
// scanIndex is the sequence number of the scan in the mzML file,
// This is not the same as the scan number that is specified
// in the mzML file! To read a scan using the mzML number,
// use ReadScan(f, ScanIndex(f, scanNum))
//
// The m/z and intensity arrays must have the same length, otherwise
// a CorruptPeakData error is returned.
func (f *MzML) ReadScan(scanIndex int) ([]Peak, error) {
	if scanIndex < 0 || scanIndex >= f.NumSpecs() {
		return nil, ErrInvalidScanIndex
	}
	spec := &f.content.Run.SpectrumList.Spectrum[scanIndex]

	var mz, intens []float64
	for i := range spec.BinaryDataArrayList.BinaryDataArray {
		b := &spec.BinaryDataArrayList.BinaryDataArray[i]
		enc := binaryDataPars(b)
		// We are only interrested in mz and intensity
		if !enc.mzArray && !enc.intensityArray {
			continue
		}
		values, err := decodeArray(b, enc)
		if err != nil {
			return nil, err
		}
		if enc.mzArray {
			mz = values
		} else {
			intens = values
		}
	}
	if len(mz) != len(intens) {
		return nil, docerr.NewCorruptPeakData("",
			fmt.Sprintf("spectrum %q has %d m/z values but %d intensities",
				spec.ID, len(mz), len(intens)))
	}

	p := make([]Peak, len(mz))
	for i := range mz {
		p[i].Mz = mz[i]
		p[i].Intens = intens[i]
	}
	return p, nil
}

// Spectra decodes all spectra in file order
func (f *MzML) Spectra() ([]Spectrum, error) {
	specs := make([]Spectrum, f.NumSpecs())
	for i := range specs {
		s, err := f.Spectrum(i)
		if err != nil {
			return nil, err
		}
		specs[i] = s
	}
	return specs, nil
}

// Spectrum decodes the spectrum at scanIndex
func (f *MzML) Spectrum(scanIndex int) (Spectrum, error) {
	var s Spectrum
	if scanIndex < 0 || scanIndex >= f.NumSpecs() {
		return s, ErrInvalidScanIndex
	}
	s.Index = scanIndex
	s.NativeID = f.index2id[scanIndex]

	var err error
	s.MSLevel, err = f.MSLevel(scanIndex)
	if err != nil {
		return s, docerr.NewMalformedDocument("",
			fmt.Sprintf("invalid ms level for spectrum %q", s.NativeID), err)
	}
	s.RetentionTime, err = f.RetentionTime(scanIndex)
	if errors.Is(err, ErrUnknownUnit) {
		s.RetentionTime = -1
	} else if err != nil {
		return s, docerr.NewMalformedDocument("",
			fmt.Sprintf("invalid scan start time for spectrum %q", s.NativeID), err)
	}
	s.PrecursorMz, err = f.PrecursorMz(scanIndex)
	if err != nil {
		return s, docerr.NewMalformedDocument("",
			fmt.Sprintf("invalid precursor m/z for spectrum %q", s.NativeID), err)
	}
	s.Peaks, err = f.ReadScan(scanIndex)
	if err != nil {
		return s, err
	}
	return s, nil
}

// traverseScan traverses all scans,
// collects info of all scans and
// and fills the arrays f.index2id and f.id2Index to make scans accessible
func (f *MzML) traverseScan() error {
	f.index2id = make([]string, f.NumSpecs())
	f.id2Index = make(map[string]int, f.NumSpecs())

	for i := range f.content.Run.SpectrumList.Spectrum {
		if err := f.addSpecToIndex(i); err != nil {
			return err
		}
	}
	return nil
}

func (f *MzML) addSpecToIndex(i int) error {
	if i != f.content.Run.SpectrumList.Spectrum[i].Index {
		return ErrInvalidScanIndex
	}
	f.index2id[i] = f.content.Run.SpectrumList.Spectrum[i].ID
	f.id2Index[f.content.Run.SpectrumList.Spectrum[i].ID] = i
	return nil
}

// ScanIndex converts a scan identifier (the string used in the mzML file)
// into an index that is used to access the scans
func (f *MzML) ScanIndex(scanID string) (int, error) {
	if index, ok := f.id2Index[scanID]; ok {
		return index, nil
	}
	return 0, ErrInvalidScanID
}

// ScanID converts a scan index (used to access the scan data) into a scan id
// (used in the mzML file)
func (f *MzML) ScanID(scanIndex int) (string, error) {
	if scanIndex >= 0 && scanIndex < f.NumSpecs() {
		return f.index2id[scanIndex], nil
	}
	return "", ErrInvalidScanIndex
}
