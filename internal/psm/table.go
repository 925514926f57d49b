package psm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/524D/psmcache/internal/docerr"
	"github.com/524D/psmcache/internal/fileindex"
	"github.com/524D/psmcache/internal/ident"
	"github.com/524D/psmcache/internal/idxml"
	"github.com/524D/psmcache/internal/mzidentml"
)

// Options controls how identification documents become tables.
type Options struct {
	Suffixes        []string // Stage tokens stripped when deriving source filenames
	RawDataExt      string
	ScoreAccessions []string // mzIdentML score preference
	Logger          zerolog.Logger
}

// Table is the flat PSM table of one identification document.
type Table struct {
	Path        string
	Format      string
	ScoreType   string
	SourceFiles []string
	Records     []Record
}

// ReadDocument parses an identification document, choosing the reader by
// file extension (.idXML or .mzid, case insensitive).
func ReadDocument(path string, scoreAccessions []string) (ident.Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".idxml":
		return idxml.ReadFile(path)
	case ".mzid", ".mzidentml":
		return mzidentml.ReadFile(path, scoreAccessions)
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return ident.Document{}, docerr.NewNotFound(path, err)
		}
		return ident.Document{}, err
	}
	return ident.Document{}, docerr.NewMalformedDocument(path,
		fmt.Sprintf("unsupported identification format %q", filepath.Ext(path)), nil)
}

// BuildTable reads the identification document at path and flattens it.
// The source files are registered in idx in list order before entries are
// resolved, so a fresh idx hands out the same indices as the document.
func BuildTable(path string, idx *fileindex.Map, opts Options) (Table, error) {
	doc, err := ReadDocument(path, opts.ScoreAccessions)
	if err != nil {
		return Table{}, err
	}
	if doc.Path == "" {
		doc.Path = path
	}
	return TableFromDocument(&doc, idx, opts), nil
}

// TableFromDocument resolves and flattens an already parsed document.
func TableFromDocument(doc *ident.Document, idx *fileindex.Map, opts Options) Table {
	r := NewResolver(opts.Suffixes, opts.RawDataExt)
	sourceFiles := r.SourceFiles(doc)
	if idx != nil {
		for _, f := range sourceFiles {
			idx.Index(f)
		}
	}

	resolved := make([]ResolvedEntry, len(doc.Entries))
	for i := range doc.Entries {
		resolved[i] = ResolvedEntry{
			Entry: doc.Entries[i],
			Ref:   r.Resolve(&doc.Entries[i], sourceFiles, idx),
		}
	}
	t := Table{
		Path:        doc.Path,
		Format:      doc.Format,
		ScoreType:   doc.ScoreType,
		SourceFiles: sourceFiles,
		Records:     Flatten(resolved),
	}
	opts.Logger.Debug().
		Str("path", doc.Path).
		Str("format", doc.Format).
		Int("entries", len(doc.Entries)).
		Int("records", len(t.Records)).
		Strs("source_files", sourceFiles).
		Msg("flattened identification document")
	return t
}
