// Package fileindex maps raw-data filenames to stable integer indices.
//
// The same Map must be passed to both the identification side and the
// spectra cache builder when their tables are to be joined on file index.
package fileindex

import (
	"path"
	"strings"
	"sync"
)

// Map assigns indices to filenames in encounter order. Names are reduced to
// their basename, so "/data/a.mzML" and "a.mzML" share one index.
type Map struct {
	mu    sync.Mutex
	names []string
	index map[string]int
}

// New returns a Map with the seed names registered in order.
func New(seed ...string) *Map {
	m := &Map{index: make(map[string]int, len(seed))}
	for _, name := range seed {
		m.Index(name)
	}
	return m
}

// Index returns the index of name, assigning the next unused index if the
// name has not been seen before. The empty name is never registered and
// maps to 0.
func (m *Map) Index(name string) int {
	name = baseName(name)
	if name == "" {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.index[name]; ok {
		return i
	}
	if m.index == nil {
		m.index = make(map[string]int)
	}
	i := len(m.names)
	m.names = append(m.names, name)
	m.index[name] = i
	return i
}

// Lookup returns the index of name without registering it.
func (m *Map) Lookup(name string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[baseName(name)]
	return i, ok
}

// Name returns the filename registered at index i.
func (m *Map) Name(i int) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.names) {
		return "", false
	}
	return m.names[i], true
}

// Len returns the number of registered filenames.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.names)
}

// Names returns the registered filenames ordered by index.
func (m *Map) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Snapshot returns a copy of the name to index mapping.
func (m *Map) Snapshot() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.index))
	for k, v := range m.index {
		out[k] = v
	}
	return out
}

// BaseName reduces a path or URL-like location to its final element.
func BaseName(name string) string {
	return baseName(name)
}

func baseName(name string) string {
	if name == "" {
		return ""
	}
	// Windows separators may appear in documents written on another host
	b := path.Base(strings.ReplaceAll(name, `\`, "/"))
	if b == "." || b == "/" {
		return ""
	}
	return b
}
