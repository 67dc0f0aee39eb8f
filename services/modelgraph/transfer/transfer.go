// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package transfer provides the values that cross the controller boundary
// for cut, copy, paste and delete.
//
// A Selection names elements by UID. A Container carries cloned element
// subtrees. Neither holds a pointer into a controller's tree or indices.
package transfer

import (
	"github.com/AleutianAI/modelgraph/services/modelgraph/model"
	"github.com/AleutianAI/modelgraph/services/modelgraph/uid"
)

// Index names one selected element and the owner it was selected under.
type Index struct {
	Element uid.UID
	Owner   uid.UID
}

// Selection is an ordered set of Index values.
//
// The zero value is an empty selection ready to use.
type Selection struct {
	indices []Index
	seen    map[uid.UID]struct{}
}

// NewSelection builds a selection from indices, dropping duplicates.
func NewSelection(indices ...Index) *Selection {
	s := &Selection{}
	for _, idx := range indices {
		s.Append(idx.Element, idx.Owner)
	}
	return s
}

// Append adds an element. A second append of the same element UID is
// ignored and reports false.
func (s *Selection) Append(element, owner uid.UID) bool {
	if s.seen == nil {
		s.seen = make(map[uid.UID]struct{})
	}
	if _, ok := s.seen[element]; ok {
		return false
	}
	s.seen[element] = struct{}{}
	s.indices = append(s.indices, Index{Element: element, Owner: owner})
	return true
}

// Indices returns the selection in insertion order.
// The returned slice must not be modified.
func (s *Selection) Indices() []Index {
	if s == nil {
		return nil
	}
	return s.indices
}

// Contains reports whether element is selected.
func (s *Selection) Contains(element uid.UID) bool {
	if s == nil {
		return false
	}
	_, ok := s.seen[element]
	return ok
}

// Len returns the number of selected elements.
func (s *Selection) Len() int {
	if s == nil {
		return 0
	}
	return len(s.indices)
}

// IsEmpty reports whether nothing is selected.
func (s *Selection) IsEmpty() bool { return s.Len() == 0 }

// Entry is one element held by a Container.
type Entry struct {
	Element model.Element

	// Root is true unless the element lies inside the subtree of another
	// entry of the same container.
	Root bool
}

// Container holds cloned element subtrees for transfer.
//
// The zero value is an empty container ready to use.
type Container struct {
	entries []Entry
}

// Submit appends element. Callers pass clones; the container never clones
// on its own. Root flags of all entries are recomputed.
func (c *Container) Submit(element model.Element) {
	if element == nil {
		return
	}
	c.entries = append(c.entries, Entry{Element: element})
	c.recomputeRoots()
}

// SubmitEntry appends an entry keeping its root flag as given. Decoders use
// it to restore a container exactly as it was encoded.
func (c *Container) SubmitEntry(e Entry) {
	if e.Element == nil {
		return
	}
	c.entries = append(c.entries, e)
}

// recomputeRoots marks an entry non-root when its UID also occurs inside
// the subtree of another entry.
func (c *Container) recomputeRoots() {
	nested := make(map[uid.UID]struct{})
	for _, e := range c.entries {
		o, ok := e.Element.(*model.Object)
		if !ok {
			continue
		}
		model.Walk(o, func(d model.Element) bool {
			if d != e.Element {
				nested[d.UID()] = struct{}{}
			}
			return true
		})
	}
	for i := range c.entries {
		_, inside := nested[c.entries[i].Element.UID()]
		c.entries[i].Root = !inside
	}
}

// Entries returns all entries in submission order.
// The returned slice must not be modified.
func (c *Container) Entries() []Entry {
	if c == nil {
		return nil
	}
	return c.entries
}

// Elements returns every element in submission order.
func (c *Container) Elements() []model.Element {
	if c == nil {
		return nil
	}
	out := make([]model.Element, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.Element)
	}
	return out
}

// Roots returns the root elements in submission order.
func (c *Container) Roots() []model.Element {
	if c == nil {
		return nil
	}
	var out []model.Element
	for _, e := range c.entries {
		if e.Root {
			out = append(out, e.Element)
		}
	}
	return out
}

// Len returns the number of entries.
func (c *Container) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}
