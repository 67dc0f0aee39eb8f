// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model provides the element types of the model graph.
//
// The model graph is a tree of Objects (packages, classes, components,
// diagrams, items) plus typed Relations connecting two Objects by UID.
// Relations are owned by an Object (usually a common ancestor), not by
// their endpoints.
//
// # Closed Union
//
// Element is a sealed interface. Only *Object and *Relation implement it,
// so a type switch over the two is exhaustive. Kind-specific behavior is
// dispatched through Visitor.
//
// # Ownership Model
//
// Every Object exclusively owns its children and its owned relations. The
// owner back-reference is a weak pointer and never keeps the owner alive.
//
// # Thread Safety
//
// Elements are NOT safe for concurrent use. All mutation is expected to go
// through a single writer (see the controller package).
package model

import (
	"slices"
	"weak"

	"github.com/AleutianAI/modelgraph/services/modelgraph/uid"
)

// Flags is a bitset of element flags.
type Flags uint32

const (
	// FlagReverseEngineered marks elements created by reverse engineering
	// source code rather than by direct editing.
	FlagReverseEngineered Flags = 1 << iota
)

// Has reports whether all bits of f2 are set in f.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

// Element is the common interface of Object and Relation.
type Element interface {
	// UID returns the element's identifier.
	UID() uid.UID

	// Owner returns the owning Object, or nil for the root and for
	// detached elements.
	Owner() *Object

	// Stereotypes returns the ordered stereotype set.
	Stereotypes() []string

	// SetStereotypes replaces the stereotype set. Duplicates are dropped,
	// first occurrence wins.
	SetStereotypes(stereotypes []string)

	// Flags returns the element flags.
	Flags() Flags

	// SetFlags replaces the element flags.
	SetFlags(flags Flags)

	// RenewUID assigns a fresh UID and returns it.
	RenewUID() uid.UID

	// Accept dispatches to the Visitor method for the concrete kind.
	Accept(v Visitor)

	isElement()
}

// base holds the state shared by all elements.
type base struct {
	uid         uid.UID
	owner       weak.Pointer[Object]
	stereotypes []string
	flags       Flags
}

func (b *base) UID() uid.UID { return b.uid }

func (b *base) Owner() *Object { return b.owner.Value() }

func (b *base) setOwner(o *Object) {
	if o == nil {
		b.owner = weak.Pointer[Object]{}
		return
	}
	b.owner = weak.Make(o)
}

func (b *base) Stereotypes() []string { return b.stereotypes }

func (b *base) SetStereotypes(stereotypes []string) {
	b.stereotypes = dedupe(stereotypes)
}

func (b *base) Flags() Flags { return b.flags }

func (b *base) SetFlags(flags Flags) { b.flags = flags }

// RenewUID is the only way to change a UID after construction. The
// controller uses it when duplicating elements on paste and when
// synthesizing a UID for an element created with uid.Invalid.
func (b *base) RenewUID() uid.UID {
	b.uid = uid.New()
	return b.uid
}

func (b *base) isElement() {}

// assignBase copies the editable base fields. UID and owner stay.
func (b *base) assignBase(src *base) {
	b.stereotypes = slices.Clone(src.stereotypes)
	b.flags = src.flags
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// OwnerUID returns the UID of e's owner, or uid.Invalid if e has none.
func OwnerUID(e Element) uid.UID {
	if e == nil {
		return uid.Invalid
	}
	if o := e.Owner(); o != nil {
		return o.UID()
	}
	return uid.Invalid
}

// IsAncestor reports whether ancestor is a strict ancestor of e.
func IsAncestor(ancestor *Object, e Element) bool {
	if ancestor == nil || e == nil {
		return false
	}
	for o := e.Owner(); o != nil; o = o.Owner() {
		if o == ancestor {
			return true
		}
	}
	return false
}

// Depth returns the number of ancestors of e. The root has depth 0.
func Depth(e Element) int {
	d := 0
	for o := e.Owner(); o != nil; o = o.Owner() {
		d++
	}
	return d
}
