// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package uid provides the identifier type for model graph elements.
//
// A UID identifies exactly one element for its entire lifetime. UIDs are
// random (v4) UUIDs, so a freshly generated UID never equals Invalid.
//
// # Ordering
//
// UIDs have a total byte order (Compare, Less, Sort) so that iteration
// over UID-keyed maps can be made deterministic.
package uid

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// UID is a globally unique, comparable element identifier.
//
// The zero value is Invalid.
type UID uuid.UUID

// Invalid is the sentinel for "no element". It is never produced by New.
var Invalid = UID(uuid.Nil)

// New returns a fresh random UID.
func New() UID {
	return UID(uuid.New())
}

// Parse decodes the canonical string form of a UID.
//
// Inputs:
//
//	s - A UUID string such as "6ba7b810-9dad-11d1-80b4-00c04fd430c8".
//
// Outputs:
//
//	UID - The decoded identifier.
//	error - Non-nil if s is not a valid UUID.
func Parse(s string) (UID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Invalid, fmt.Errorf("parse uid %q: %w", s, err)
	}
	return UID(u), nil
}

// MustParse is like Parse but panics on malformed input.
// Intended for constants and tests.
func MustParse(s string) UID {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

// FromBytes builds a UID from its 16-byte binary form.
func FromBytes(b []byte) (UID, error) {
	u, err := uuid.FromBytes(b)
	if err != nil {
		return Invalid, fmt.Errorf("uid from bytes: %w", err)
	}
	return UID(u), nil
}

// IsValid reports whether u is not the Invalid sentinel.
func (u UID) IsValid() bool {
	return u != Invalid
}

// String returns the canonical UUID string.
func (u UID) String() string {
	return uuid.UUID(u).String()
}

// Bytes returns a copy of the 16-byte binary form.
func (u UID) Bytes() []byte {
	b := make([]byte, len(u))
	copy(b, u[:])
	return b
}

// MarshalText implements encoding.TextMarshaler.
func (u UID) MarshalText() ([]byte, error) {
	return uuid.UUID(u).MarshalText()
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *UID) UnmarshalText(data []byte) error {
	var id uuid.UUID
	if err := id.UnmarshalText(data); err != nil {
		return fmt.Errorf("unmarshal uid: %w", err)
	}
	*u = UID(id)
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (u UID) MarshalBinary() ([]byte, error) {
	return u.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (u *UID) UnmarshalBinary(data []byte) error {
	id, err := FromBytes(data)
	if err != nil {
		return err
	}
	*u = id
	return nil
}

// Compare returns -1, 0 or +1 comparing a and b byte-wise.
func Compare(a, b UID) int {
	return bytes.Compare(a[:], b[:])
}

// Less reports whether a sorts before b.
func Less(a, b UID) bool {
	return Compare(a, b) < 0
}

// Sort orders ids in place by Compare.
func Sort(ids []UID) {
	slices.SortFunc(ids, Compare)
}
