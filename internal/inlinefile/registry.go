// SPDX-License-Identifier: MPL-2.0

package inlinefile

import (
	"slices"
	"strings"
	"sync"

	"buildlog-cli/pkg/invocation"
)

type (
	// Registry holds files that exist only as side effects in a log, keyed by
	// resolved destination path. It is safe for concurrent use.
	Registry struct {
		mu    sync.RWMutex
		files map[string]*entry
	}

	// entry is one synthesized file. written is false while the file was
	// only ever appended to, so a later Merge extends the earlier content
	// instead of replacing it.
	entry struct {
		content strings.Builder
		written bool
	}
)

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		files: make(map[string]*entry),
	}
}

// Write replaces the content stored for path.
func (r *Registry) Write(path, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := &entry{written: true}
	e.content.WriteString(content)
	r.files[path] = e
}

// Append concatenates content to whatever is stored for path.
func (r *Registry) Append(path, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.appendLocked(path, content)
}

func (r *Registry) appendLocked(path, content string) {
	e, ok := r.files[path]
	if !ok {
		e = &entry{}
		r.files[path] = e
	}
	e.content.WriteString(content)
}

// Merge applies the files of src on top of r as if the writes recorded in
// src had happened after those in r: a written file replaces r's content
// and an append-only file extends it. Merging the registries of several
// logs in input order is independent of the order they were parsed in.
func (r *Registry) Merge(src *Registry) {
	if src == r {
		return
	}
	src.mu.RLock()
	defer src.mu.RUnlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	for path, e := range src.files {
		if e.written {
			merged := &entry{written: true}
			merged.content.WriteString(e.content.String())
			r.files[path] = merged
			continue
		}
		r.appendLocked(path, e.content.String())
	}
}

// Lookup returns the content stored for path.
// Returns "", false if nothing was synthesized there.
func (r *Registry) Lookup(path string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.files[path]
	if !ok {
		return "", false
	}
	return e.content.String(), true
}

// Len returns the number of stored files.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.files)
}

// Records returns all stored files sorted by path.
func (r *Registry) Records() []invocation.FileRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]invocation.FileRecord, 0, len(r.files))
	for path, e := range r.files {
		records = append(records, invocation.FileRecord{Path: path, Content: e.content.String()})
	}
	slices.SortFunc(records, func(a, b invocation.FileRecord) int {
		return strings.Compare(a.Path, b.Path)
	})
	return records
}
