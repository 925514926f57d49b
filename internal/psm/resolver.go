// Package psm turns identification documents into flat peptide-spectrum
// match tables keyed by (file index, scan number).
package psm

import (
	"strings"

	"github.com/524D/psmcache/internal/fileindex"
	"github.com/524D/psmcache/internal/ident"
	"github.com/524D/psmcache/internal/nativeid"
)

// DefaultSuffixes are the stage tokens that search, rescoring and filtering
// tools append to the stem of an identification file.
var DefaultSuffixes = []string{"_comet", "_per", "_filter"}

// DefaultRawDataExt is the extension of raw-data documents.
const DefaultRawDataExt = ".mzML"

// Reference locates the spectrum an entry was identified from.
type Reference struct {
	FileIndex int
	ScanID    int
	Filename  string
}

// Resolver maps identification entries to raw-data references.
type Resolver struct {
	Suffixes   []string
	RawDataExt string
}

// NewResolver returns a Resolver, using the defaults for empty arguments.
func NewResolver(suffixes []string, rawDataExt string) *Resolver {
	if len(suffixes) == 0 {
		suffixes = DefaultSuffixes
	}
	if rawDataExt == "" {
		rawDataExt = DefaultRawDataExt
	}
	return &Resolver{Suffixes: suffixes, RawDataExt: rawDataExt}
}

// DeriveSourceFilename guesses the raw-data filename from the name of an
// identification document, e.g. 02COVID_per_filter.idXML gives 02COVID.mzML.
// Suffix tokens are removed from the end of the stem until none matches.
func (r *Resolver) DeriveSourceFilename(idPath string) string {
	base := fileindex.BaseName(idPath)
	stem := base
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		stem = base[:i]
	}
	for trimmed := true; trimmed; {
		trimmed = false
		for _, s := range r.Suffixes {
			if s != "" && len(stem) > len(s) && strings.HasSuffix(stem, s) {
				stem = strings.TrimSuffix(stem, s)
				trimmed = true
			}
		}
	}
	if stem == "" {
		return ""
	}
	return stem + r.RawDataExt
}

// SourceFiles returns the raw-data basenames for doc: the list embedded in
// the document when it has one, otherwise the name derived from doc.Path.
func (r *Resolver) SourceFiles(doc *ident.Document) []string {
	if len(doc.SourceFiles) > 0 {
		return doc.SourceFiles
	}
	derived := r.DeriveSourceFilename(doc.Path)
	if derived == "" {
		return nil
	}
	return []string{derived}
}

// Resolve determines file and scan of entry. sourceFiles is the list
// returned by SourceFiles. FileIndex is the index of the filename in idx;
// with a nil idx it is the position in sourceFiles.
//
// Missing or out of range metadata never fails: the scan number defaults to
// 0, and an entry whose file cannot be determined gets FileIndex 0 and an
// empty Filename.
func (r *Resolver) Resolve(entry *ident.Entry, sourceFiles []string, idx *fileindex.Map) Reference {
	ref := Reference{ScanID: nativeid.ScanNumber(entry.SpectrumRef())}

	local := 0
	if entry.SourceFileIndex != nil {
		local = *entry.SourceFileIndex
		if local < 0 || local >= len(sourceFiles) {
			return ref
		}
	}
	if local >= len(sourceFiles) {
		return ref
	}
	ref.Filename = fileindex.BaseName(sourceFiles[local])
	if ref.Filename == "" {
		return ref
	}
	if idx == nil {
		ref.FileIndex = local
	} else {
		ref.FileIndex = idx.Index(ref.Filename)
	}
	return ref
}
