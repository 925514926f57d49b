// Package docerr defines the failure taxonomy for reading identification and
// raw-data documents.
package docerr

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Kind classifies a document failure.
type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindMalformedDocument Kind = "MALFORMED_DOCUMENT"
	KindCorruptPeakData   Kind = "CORRUPT_PEAK_DATA"
)

// Error is a document failure with the path it concerns.
type Error struct {
	Kind    Kind
	Path    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewNotFound creates an error for a document path that does not exist.
func NewNotFound(path string, err error) *Error {
	return &Error{
		Kind:    KindNotFound,
		Path:    path,
		Message: "document not found",
		Err:     err,
	}
}

// NewMalformedDocument creates an error for input that is not a valid
// document of the expected schema.
func NewMalformedDocument(path string, msg string, err error) *Error {
	if msg == "" {
		msg = "malformed document"
	}
	return &Error{
		Kind:    KindMalformedDocument,
		Path:    path,
		Message: msg,
		Err:     err,
	}
}

// NewCorruptPeakData creates an error for binary peak arrays that cannot be
// aligned into mass/intensity pairs.
func NewCorruptPeakData(path string, msg string) *Error {
	return &Error{
		Kind:    KindCorruptPeakData,
		Path:    path,
		Message: msg,
	}
}

// WithPath returns err with the document path filled in when err is an
// *Error without one. Other errors are returned unchanged.
func WithPath(err error, path string) error {
	var dErr *Error
	if errors.As(err, &dErr) && dErr.Path == "" {
		cp := *dErr
		cp.Path = path
		return &cp
	}
	return err
}

// Open opens the document at path, reporting a missing path as NotFound.
func Open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewNotFound(path, err)
		}
		return nil, err
	}
	return f, nil
}

// Is reports whether err (or any error it wraps) is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Kind == kind
	}
	return false
}

// Guidance returns the message shown to a user for err. Missing and malformed
// documents mean the upstream workflow has to be run again.
func Guidance(err error) string {
	switch {
	case err == nil:
		return ""
	case Is(err, KindNotFound):
		return "Result files not found. Please re-run the workflow."
	case Is(err, KindMalformedDocument), Is(err, KindCorruptPeakData):
		return "Result files could not be read. Please re-run the workflow."
	}
	return err.Error()
}
