package mzml

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/524D/psmcache/internal/docerr"
)

var testSpectra = []Spectrum{
	{
		NativeID:      "controllerType=0 controllerNumber=1 scan=41",
		MSLevel:       1,
		RetentionTime: 326.5,
		Peaks:         []Peak{{Mz: 400.25, Intens: 1000}, {Mz: 401.5, Intens: 20}},
	},
	{
		NativeID:      "controllerType=0 controllerNumber=1 scan=42",
		MSLevel:       2,
		RetentionTime: 327,
		PrecursorMz:   445.125,
		Peaks:         []Peak{{Mz: 101.5, Intens: 5}, {Mz: 202.25, Intens: 7.5}, {Mz: 303, Intens: 1}},
	},
	{
		NativeID:      "controllerType=0 controllerNumber=1 scan=43",
		MSLevel:       2,
		RetentionTime: -1,
		PrecursorMz:   500.5,
	},
}

func writeTestMzML(t *testing.T, spectra []Spectrum, enc Encoding) []byte {
	t.Helper()
	var b bytes.Buffer
	if err := Write(&b, spectra, enc); err != nil {
		t.Fatalf("Write: error return %v", err)
	}
	return b.Bytes()
}

func TestWriteReadRoundTrip(t *testing.T) {
	encodings := []Encoding{
		{},
		{Zlib: true},
		{Bits64: true},
		{Zlib: true, Bits64: true},
	}
	for _, enc := range encodings {
		data := writeTestMzML(t, testSpectra, enc)
		f, err := Read(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("Read %+v: error return %v", enc, err)
		}
		if n := f.NumSpecs(); n != 3 {
			t.Errorf("NumSpecs: %d, should be 3", n)
		}
		got, err := f.Spectra()
		if err != nil {
			t.Fatalf("Spectra %+v: error return %v", enc, err)
		}
		want := make([]Spectrum, len(testSpectra))
		for i, s := range testSpectra {
			want[i] = s
			want[i].Index = i
			if want[i].Peaks == nil {
				want[i].Peaks = []Peak{}
			}
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Spectra %+v mismatch (-want +got):\n%s", enc, diff)
		}
	}
}

func TestAccessors(t *testing.T) {
	f, err := Read(bytes.NewReader(writeTestMzML(t, testSpectra, Encoding{Zlib: true})))
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}

	msLevel, err := f.MSLevel(1)
	if err != nil {
		t.Errorf("MSLevel: error return %v", err)
	}
	if msLevel != 2 {
		t.Errorf("MSLevel: %d, should be 2", msLevel)
	}
	_, err = f.MSLevel(3)
	if err != ErrInvalidScanIndex {
		t.Errorf("MSLevel: error return %v, should be ErrInvalidScanIndex", err)
	}

	_, err = f.ScanIndex(`blabla`)
	if err != ErrInvalidScanID {
		t.Errorf("ScanIndex: error return %v, should be ErrInvalidScanID", err)
	}
	scanIndex, err := f.ScanIndex(`controllerType=0 controllerNumber=1 scan=42`)
	if err != nil {
		t.Errorf("ScanIndex: error return %v", err)
	}
	if scanIndex != 1 {
		t.Errorf("ScanIndex: %d, should be 1", scanIndex)
	}

	_, err = f.ScanID(666666)
	if err != ErrInvalidScanIndex {
		t.Errorf("ScanID: error return %v, should be ErrInvalidScanIndex", err)
	}
	scanID, err := f.ScanID(2)
	if err != nil {
		t.Errorf("ScanID: error return %v", err)
	}
	if scanID != `controllerType=0 controllerNumber=1 scan=43` {
		t.Errorf("ScanID: %s, should be controllerType=0 controllerNumber=1 scan=43", scanID)
	}

	_, err = f.ReadScan(-1)
	if err != ErrInvalidScanIndex {
		t.Errorf("ReadScan: error return %v, should be ErrInvalidScanIndex", err)
	}
	_, err = f.Spectrum(5)
	if err != ErrInvalidScanIndex {
		t.Errorf("Spectrum: error return %v, should be ErrInvalidScanIndex", err)
	}
}

// spectrumXML builds a single-spectrum document with hand made binary arrays
func spectrumXML(arrays string, extraCv string) string {
	return `<?xml version="1.0" encoding="utf-8"?>
<indexedmzML xmlns="http://psi.hupo.org/ms/mzml">
<mzML xmlns="http://psi.hupo.org/ms/mzml" version="1.1.0">
 <run id="r">
  <spectrumList count="1">
   <spectrum index="0" id="scan=9" defaultArrayLength="2">
    <cvParam cvRef="MS" accession="MS:1000511" name="ms level" value="2"/>
    <scanList count="1"><scan>
     <cvParam cvRef="MS" accession="MS:1000016" name="scan start time" value="1.5" unitCvRef="UO" unitAccession="UO:0000031" unitName="minute"/>
     ` + extraCv + `
    </scan></scanList>
    <binaryDataArrayList count="2">` + arrays + `</binaryDataArrayList>
   </spectrum>
  </spectrumList>
 </run>
</mzML>
<indexList count="1"><index name="spectrum"><offset idRef="scan=9">0</offset></index></indexList>
</indexedmzML>`
}

func arrayXML(accession string, compression string, b64 string) string {
	return fmt.Sprintf(`<binaryDataArray encodedLength="%d">
     <cvParam cvRef="MS" accession="MS:1000523" name="64-bit float"/>
     <cvParam cvRef="MS" accession="%s" name="compression"/>
     <cvParam cvRef="MS" accession="%s" name="array"/>
     <binary>%s</binary></binaryDataArray>`, len(b64), compression, accession, b64)
}

func TestReadIndexedMinutes(t *testing.T) {
	peaks := []Peak{{Mz: 100, Intens: 1}, {Mz: 200, Intens: 2}}
	mz, _ := encodeBinary(peaks, false, true, true)
	in, _ := encodeBinary(peaks, false, true, false)
	doc := spectrumXML(arrayXML(cvMzArray, cvNoCompression, mz)+arrayXML(cvIntensityArray, cvNoCompression, in), "")

	f, err := Read(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}
	s, err := f.Spectrum(0)
	if err != nil {
		t.Fatalf("Spectrum: error return %v", err)
	}
	if math.Abs(s.RetentionTime-90) > 1e-9 {
		t.Errorf("RetentionTime: %f, should be 90", s.RetentionTime)
	}
	if diff := cmp.Diff(peaks, s.Peaks); diff != "" {
		t.Errorf("Peaks mismatch (-want +got):\n%s", diff)
	}
}

func TestReadScanMismatchedArrays(t *testing.T) {
	mz, _ := encodeBinary([]Peak{{Mz: 100}, {Mz: 200}}, false, true, true)
	in, _ := encodeBinary([]Peak{{Intens: 1}}, false, true, false)
	doc := spectrumXML(arrayXML(cvMzArray, cvNoCompression, mz)+arrayXML(cvIntensityArray, cvNoCompression, in), "")

	f, err := Read(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}
	_, err = f.ReadScan(0)
	if !docerr.Is(err, docerr.KindCorruptPeakData) {
		t.Errorf("ReadScan: error return %v, should be CORRUPT_PEAK_DATA", err)
	}
	_, err = f.Spectra()
	if !docerr.Is(err, docerr.KindCorruptPeakData) {
		t.Errorf("Spectra: error return %v, should be CORRUPT_PEAK_DATA", err)
	}
}

func TestReadScanMissingIntensityArray(t *testing.T) {
	mz, _ := encodeBinary([]Peak{{Mz: 100}, {Mz: 200}}, true, true, true)
	doc := spectrumXML(arrayXML(cvMzArray, cvZlib, mz), "")

	f, err := Read(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}
	_, err = f.ReadScan(0)
	if !docerr.Is(err, docerr.KindCorruptPeakData) {
		t.Errorf("ReadScan: error return %v, should be CORRUPT_PEAK_DATA", err)
	}
}

func TestReadScanBadBinary(t *testing.T) {
	tests := map[string]string{
		"base64":    arrayXML(cvMzArray, cvNoCompression, "!!!") + arrayXML(cvIntensityArray, cvNoCompression, ""),
		"zlib":      arrayXML(cvMzArray, cvZlib, "AAAAAAAAAAA=") + arrayXML(cvIntensityArray, cvNoCompression, ""),
		"wordsize":  arrayXML(cvMzArray, cvNoCompression, "AAAA") + arrayXML(cvIntensityArray, cvNoCompression, ""),
		"truncated": arrayXML(cvMzArray, cvNoCompression, "AAAAAAAAAAAAAAAAAAAAAAAAAAA=") + arrayXML(cvIntensityArray, cvNoCompression, ""),
	}
	for name, arrays := range tests {
		f, err := Read(strings.NewReader(spectrumXML(arrays, "")))
		if err != nil {
			t.Fatalf("%s: Read: error return %v", name, err)
		}
		_, err = f.ReadScan(0)
		if !docerr.Is(err, docerr.KindCorruptPeakData) {
			t.Errorf("%s: ReadScan: error return %v, should be CORRUPT_PEAK_DATA", name, err)
		}
	}
}

func TestReadScanNumpress(t *testing.T) {
	doc := spectrumXML(arrayXML(cvMzArray, `MS:1002312`, "")+arrayXML(cvIntensityArray, cvNoCompression, ""), "")
	f, err := Read(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}
	_, err = f.ReadScan(0)
	if !docerr.Is(err, docerr.KindMalformedDocument) {
		t.Errorf("ReadScan: error return %v, should be MALFORMED_DOCUMENT", err)
	}
}

func TestReadMalformed(t *testing.T) {
	tests := map[string]string{
		"empty":      ``,
		"no mzML":    `<foo><bar/></foo>`,
		"broken xml": `<mzML xmlns="http://psi.hupo.org/ms/mzml"><run>`,
		"wrong ns":   `<mzML xmlns="urn:other"><run/></mzML>`,
		"bad index": `<mzML xmlns="http://psi.hupo.org/ms/mzml"><run><spectrumList count="1">
			<spectrum index="3" id="scan=1" defaultArrayLength="0"/></spectrumList></run></mzML>`,
	}
	for name, doc := range tests {
		_, err := Read(strings.NewReader(doc))
		if !docerr.Is(err, docerr.KindMalformedDocument) {
			t.Errorf("%s: Read error = %v, want MALFORMED_DOCUMENT", name, err)
		}
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.mzML")
	if err := os.WriteFile(path, writeTestMzML(t, testSpectra, Encoding{Zlib: true}), 0o644); err != nil {
		t.Fatal(err)
	}
	specs, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: error return %v", err)
	}
	if len(specs) != 3 {
		t.Errorf("ReadFile: %d spectra, should be 3", len(specs))
	}

	_, err = ReadFile(filepath.Join(dir, "missing.mzML"))
	if !docerr.Is(err, docerr.KindNotFound) {
		t.Errorf("ReadFile(missing): error return %v, should be NOT_FOUND", err)
	}
}
