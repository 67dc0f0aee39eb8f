// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

// Clone deep-copies e, preserving every UID.
//
// Description:
//
//	Objects are cloned with all children and owned relations, recursively.
//	Relations are cloned as leaves. The unloaded marker of packages is kept.
//	The returned root has no owner.
//
// Inputs:
//
//	e - The element to clone. May be nil.
//
// Outputs:
//
//	Element - The clone, or nil if e is nil.
func Clone(e Element) Element {
	switch v := e.(type) {
	case *Object:
		if v == nil {
			return nil
		}
		return CloneObject(v)
	case *Relation:
		if v == nil {
			return nil
		}
		return CloneRelation(v)
	default:
		return nil
	}
}

// CloneObject deep-copies o and its subtree.
func CloneObject(o *Object) *Object {
	c := NewObjectWithUID(o.kind, o.uid, "")
	c.AssignFrom(o)
	c.unloaded = o.unloaded
	if len(o.children) > 0 {
		c.children = make([]*Object, 0, len(o.children))
		for _, child := range o.children {
			cc := CloneObject(child)
			cc.setOwner(c)
			c.children = append(c.children, cc)
		}
	}
	if len(o.relations) > 0 {
		c.relations = make([]*Relation, 0, len(o.relations))
		for _, r := range o.relations {
			rc := CloneRelation(r)
			rc.setOwner(c)
			c.relations = append(c.relations, rc)
		}
	}
	return c
}

// CloneRelation copies r.
func CloneRelation(r *Relation) *Relation {
	c := NewRelationWithUID(r.kind, r.uid, r.endA, r.endB)
	c.AssignFrom(r)
	return c
}

// Walk visits e and, for objects, every descendant in pre-order: an
// object, then its owned relations, then each child subtree.
//
// fn returning false prunes the subtree below the element it was called
// with. Walk does not stop at unloaded packages; callers that must skip
// them check IsUnloaded and return false.
func Walk(e Element, fn func(Element) bool) {
	if !fn(e) {
		return
	}
	o, ok := e.(*Object)
	if !ok {
		return
	}
	for _, r := range o.relations {
		fn(r)
	}
	for _, child := range o.children {
		Walk(child, fn)
	}
}
