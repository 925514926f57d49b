package idxml

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/524D/psmcache/internal/docerr"
	"github.com/524D/psmcache/internal/ident"
)

const testDoc = `<?xml version="1.0" encoding="UTF-8"?>
<?xml-stylesheet type="text/xsl" href="https://www.openms.de/xml-stylesheet/IdXML.xsl" ?>
<IdXML version="1.5" xsi:noNamespaceSchemaLocation="https://www.openms.de/xml-schema/IdXML_1_5.xsd" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
	<SearchParameters id="SP_0" db="human.fasta" charges="2,3" mass_type="monoisotopic" peak_mass_tolerance="0.02" precursor_peak_tolerance="10"/>
	<IdentificationRun date="2024-05-01T10:00:00" search_engine="Comet" search_engine_version="2023.01" search_parameters_ref="SP_0">
		<ProteinIdentification score_type="" higher_score_better="true" significance_threshold="0">
			<ProteinHit id="PH_0" accession="P12345" score="0" sequence="">
				<UserParam type="string" name="target_decoy" value="target"/>
			</ProteinHit>
			<ProteinHit id="PH_1" accession="Q99999" score="0" sequence=""/>
			<UserParam type="stringList" name="spectra_data" value="[file:///data/raw/02COVID.mzML, /data/raw/03COVID.mzML]"/>
		</ProteinIdentification>
		<PeptideIdentification score_type="expect" higher_score_better="false" significance_threshold="0" MZ="445.1200" RT="1234.5" spectrum_reference="controllerType=0 controllerNumber=1 scan=1234">
			<PeptideHit score="0.001" sequence="PEPTIDE" charge="2" aa_before="K" aa_after="R" protein_refs="PH_0">
				<UserParam type="float" name="MS:1002252" value="3.2"/>
			</PeptideHit>
			<PeptideHit score="0.5" sequence="PEPTM(Oxidation)IDE" charge="3" protein_refs="PH_1 PH_0"/>
			<UserParam type="int" name="id_merge_index" value="1"/>
		</PeptideIdentification>
		<PeptideIdentification score_type="expect" higher_score_better="false" significance_threshold="0" MZ="500.25" RT="1300">
			<UserParam type="string" name="spectrum_reference" value="controllerType=0 controllerNumber=1 scan=1300"/>
		</PeptideIdentification>
		<PeptideIdentification score_type="expect" higher_score_better="false" significance_threshold="0" MZ="612.3" RT="1400.25">
			<PeptideHit score="0.02" sequence="DECOYK" charge="2"/>
			<UserParam type="string" name="id_merge_index" value="first"/>
		</PeptideIdentification>
	</IdentificationRun>
</IdXML>
`

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestRead(t *testing.T) {
	doc, err := Read(strings.NewReader(testDoc))
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}

	want := ident.Document{
		Format:      Format,
		ScoreType:   "expect",
		SourceFiles: []string{"02COVID.mzML", "03COVID.mzML"},
		Entries: []ident.Entry{
			{
				RetentionTime:     1234.5,
				MassToCharge:      445.12,
				SpectrumReference: strPtr("controllerType=0 controllerNumber=1 scan=1234"),
				SourceFileIndex:   intPtr(1),
				Hits: []ident.Hit{
					{Sequence: "PEPTIDE", Charge: 2, Score: 0.001, ProteinAccessions: []string{"P12345"}},
					{Sequence: "PEPTM(Oxidation)IDE", Charge: 3, Score: 0.5, ProteinAccessions: []string{"Q99999", "P12345"}},
				},
			},
			{
				RetentionTime:     1300,
				MassToCharge:      500.25,
				SpectrumReference: strPtr("controllerType=0 controllerNumber=1 scan=1300"),
				Hits:              []ident.Hit{},
			},
			{
				RetentionTime: 1400.25,
				MassToCharge:  612.3,
				Hits: []ident.Hit{
					{Sequence: "DECOYK", Charge: 2, Score: 0.02, ProteinAccessions: []string{}},
				},
			},
		},
	}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Errorf("Read mismatch (-want +got):\n%s", diff)
	}
	if n := doc.NumHits(); n != 3 {
		t.Errorf("NumHits is %d, expected 3", n)
	}
}

func TestReadEmptyDocument(t *testing.T) {
	doc, err := Read(strings.NewReader(`<IdXML version="1.5"></IdXML>`))
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}
	if len(doc.Entries) != 0 || len(doc.SourceFiles) != 0 {
		t.Errorf("Read: expected empty document, got %+v", doc)
	}
}

func TestReadMalformed(t *testing.T) {
	tests := map[string]string{
		"empty":        ``,
		"not xml":      `this is not xml`,
		"wrong root":   `<MzIdentML></MzIdentML>`,
		"truncated":    `<IdXML><IdentificationRun><PeptideIdentification MZ="1" RT="2">`,
		"bad float":    `<IdXML><IdentificationRun><PeptideIdentification MZ="abc" RT="2"/></IdentificationRun></IdXML>`,
		"bad charge":   `<IdXML><IdentificationRun><PeptideIdentification><PeptideHit charge="two"/></PeptideIdentification></IdentificationRun></IdXML>`,
		"unknown prot": `<IdXML><IdentificationRun><PeptideIdentification><PeptideHit sequence="K" protein_refs="PH_9"/></PeptideIdentification></IdentificationRun></IdXML>`,
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
	path := filepath.Join(dir, "02COVID_comet.idXML")
	if err := os.WriteFile(path, []byte(testDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: error return %v", err)
	}
	if doc.Path != path {
		t.Errorf("Path is %q, expected %q", doc.Path, path)
	}
	if len(doc.Entries) != 3 {
		t.Errorf("Entries is %d, expected 3", len(doc.Entries))
	}

	_, err = ReadFile(filepath.Join(dir, "missing.idXML"))
	if !docerr.Is(err, docerr.KindNotFound) {
		t.Errorf("ReadFile(missing) error = %v, want NOT_FOUND", err)
	}

	bad := filepath.Join(dir, "bad.idXML")
	if err := os.WriteFile(bad, []byte("<IdXML>"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = ReadFile(bad)
	if !docerr.Is(err, docerr.KindMalformedDocument) {
		t.Errorf("ReadFile(bad) error = %v, want MALFORMED_DOCUMENT", err)
	}
	if err != nil && !strings.Contains(err.Error(), bad) {
		t.Errorf("ReadFile(bad) error %q does not name the path", err)
	}
}

func TestParseStringList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"[]", nil},
		{"[a.mzML]", []string{"a.mzML"}},
		{"[/x/a.mzML,/y/b.mzML]", []string{"a.mzML", "b.mzML"}},
		{" [ file:///x/a.mzML , C:\\raw\\b.mzML ] ", []string{"a.mzML", "b.mzML"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, parseStringList(tt.in)); diff != "" {
			t.Errorf("parseStringList(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

const multiRunDoc = `<?xml version="1.0" encoding="UTF-8"?>
<IdXML version="1.5">
	<IdentificationRun search_engine="Comet">
		<ProteinIdentification score_type="" higher_score_better="true">
			<UserParam type="stringList" name="spectra_data" value="[a.mzML]"/>
		</ProteinIdentification>
		<PeptideIdentification score_type="expect" higher_score_better="false" MZ="400" RT="10" spectrum_reference="scan=1">
			<PeptideHit score="0.1" sequence="AAA" charge="2"/>
			<UserParam type="int" name="id_merge_index" value="0"/>
		</PeptideIdentification>
	</IdentificationRun>
	<IdentificationRun search_engine="Comet">
		<ProteinIdentification score_type="" higher_score_better="true">
			<UserParam type="stringList" name="spectra_data" value="[b.mzML, c.mzML]"/>
		</ProteinIdentification>
		<PeptideIdentification score_type="expect" higher_score_better="false" MZ="500" RT="20" spectrum_reference="scan=2">
			<PeptideHit score="0.2" sequence="BBB" charge="2"/>
			<UserParam type="int" name="id_merge_index" value="0"/>
		</PeptideIdentification>
		<PeptideIdentification score_type="expect" higher_score_better="false" MZ="600" RT="30" spectrum_reference="scan=3">
			<PeptideHit score="0.3" sequence="CCC" charge="2"/>
			<UserParam type="int" name="id_merge_index" value="1"/>
		</PeptideIdentification>
		<PeptideIdentification score_type="expect" higher_score_better="false" MZ="700" RT="40" spectrum_reference="scan=4">
			<PeptideHit score="0.4" sequence="DDD" charge="2"/>
		</PeptideIdentification>
		<PeptideIdentification score_type="expect" higher_score_better="false" MZ="800" RT="50" spectrum_reference="scan=5">
			<PeptideHit score="0.5" sequence="EEE" charge="2"/>
			<UserParam type="int" name="id_merge_index" value="2"/>
		</PeptideIdentification>
	</IdentificationRun>
</IdXML>
`

func TestReadMultipleRuns(t *testing.T) {
	doc, err := Read(strings.NewReader(multiRunDoc))
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}
	if diff := cmp.Diff([]string{"a.mzML", "b.mzML", "c.mzML"}, doc.SourceFiles); diff != "" {
		t.Errorf("SourceFiles mismatch (-want +got):\n%s", diff)
	}

	// id_merge_index counts within the spectra_data list of its own run
	want := []*int{intPtr(0), intPtr(1), intPtr(2), intPtr(1), intPtr(-1)}
	var got []*int
	for _, e := range doc.Entries {
		got = append(got, e.SourceFileIndex)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SourceFileIndex mismatch (-want +got):\n%s", diff)
	}
}
