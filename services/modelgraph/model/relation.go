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

import (
	"fmt"

	"github.com/AleutianAI/modelgraph/services/modelgraph/uid"
)

// RelationKind discriminates the Relation variants.
type RelationKind int

const (
	// RelationKindUnknown is the zero value and never produced by constructors.
	RelationKindUnknown RelationKind = iota

	// RelationKindDependency is a directed usage dependency.
	RelationKindDependency

	// RelationKindInheritance connects a derived class (end A) to its
	// base class (end B).
	RelationKindInheritance

	// RelationKindAssociation connects two association ends.
	RelationKindAssociation
)

var relationKindNames = map[RelationKind]string{
	RelationKindUnknown:     "unknown",
	RelationKindDependency:  "dependency",
	RelationKindInheritance: "inheritance",
	RelationKindAssociation: "association",
}

// String returns the string representation of the RelationKind.
func (k RelationKind) String() string {
	if name, ok := relationKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseRelationKind is the inverse of RelationKind.String.
func ParseRelationKind(s string) (RelationKind, error) {
	for k, name := range relationKindNames {
		if name == s && k != RelationKindUnknown {
			return k, nil
		}
	}
	return RelationKindUnknown, fmt.Errorf("unknown relation kind %q", s)
}

// Direction of a dependency.
type Direction int

const (
	DirectionAToB Direction = iota
	DirectionBToA
	DirectionBidirectional
)

// DependencyDetails holds the dependency-specific fields.
type DependencyDetails struct {
	Direction Direction
}

// EndKind of an association end.
type EndKind int

const (
	EndKindAssociation EndKind = iota
	EndKindAggregation
	EndKindComposition
)

// AssociationEnd describes one side of an association.
type AssociationEnd struct {
	Name        string
	Cardinality string
	Navigable   bool
	Kind        EndKind
}

// AssociationDetails holds both ends of an association.
type AssociationDetails struct {
	A AssociationEnd
	B AssociationEnd
}

// Relation is a typed edge between two Objects, referenced by UID.
//
// Description:
//
//	A Relation is owned by an Object (its owner), not by its endpoints.
//	Endpoints are plain UIDs so that a relation can be cloned, transferred
//	and remapped without holding pointers into a controller's tree.
//
//	Dependency is set for RelationKindDependency, Association for
//	RelationKindAssociation. Inheritance has no extra fields.
type Relation struct {
	base

	kind RelationKind
	name string
	endA uid.UID
	endB uid.UID

	// Dependency is set for RelationKindDependency.
	Dependency *DependencyDetails

	// Association is set for RelationKindAssociation.
	Association *AssociationDetails
}

// NewRelationWithUID creates a detached relation.
func NewRelationWithUID(kind RelationKind, id, endA, endB uid.UID) *Relation {
	r := &Relation{kind: kind, endA: endA, endB: endB}
	r.uid = id
	switch kind {
	case RelationKindDependency:
		r.Dependency = &DependencyDetails{}
	case RelationKindAssociation:
		r.Association = &AssociationDetails{}
	}
	return r
}

// NewDependency creates a dependency from a to b with a fresh UID.
func NewDependency(a, b uid.UID) *Relation {
	return NewRelationWithUID(RelationKindDependency, uid.New(), a, b)
}

// NewInheritance creates an inheritance from derived to baseClass with a
// fresh UID.
func NewInheritance(derived, baseClass uid.UID) *Relation {
	return NewRelationWithUID(RelationKindInheritance, uid.New(), derived, baseClass)
}

// NewAssociation creates an association between a and b with a fresh UID.
func NewAssociation(a, b uid.UID) *Relation {
	return NewRelationWithUID(RelationKindAssociation, uid.New(), a, b)
}

// Kind returns the relation variant.
func (r *Relation) Kind() RelationKind { return r.kind }

// Name returns the display name.
func (r *Relation) Name() string { return r.name }

// SetName sets the display name.
func (r *Relation) SetName(name string) { r.name = name }

// EndA returns the UID of the first endpoint.
func (r *Relation) EndA() uid.UID { return r.endA }

// EndB returns the UID of the second endpoint.
func (r *Relation) EndB() uid.UID { return r.endB }

// SetEndA rebinds the first endpoint. Inside a controller, wrap the call
// in StartUpdateRelation/FinishUpdateRelation.
func (r *Relation) SetEndA(id uid.UID) { r.endA = id }

// SetEndB rebinds the second endpoint.
func (r *Relation) SetEndB(id uid.UID) { r.endB = id }

// Touches reports whether id is one of the endpoints.
func (r *Relation) Touches(id uid.UID) bool {
	return r.endA == id || r.endB == id
}

// Accept dispatches on the relation kind.
func (r *Relation) Accept(v Visitor) {
	switch r.kind {
	case RelationKindDependency:
		v.VisitDependency(r)
	case RelationKindInheritance:
		v.VisitInheritance(r)
	case RelationKindAssociation:
		v.VisitAssociation(r)
	default:
		panic(fmt.Sprintf("model: relation %s has unknown kind %d", r.uid, r.kind))
	}
}

// AssignFrom copies the editable fields of src into r: name, stereotypes,
// flags, endpoints and kind details. UID and owner are left alone.
func (r *Relation) AssignFrom(src *Relation) {
	r.assignBase(&src.base)
	r.name = src.name
	r.endA = src.endA
	r.endB = src.endB
	if src.Dependency != nil {
		d := *src.Dependency
		r.Dependency = &d
	} else {
		r.Dependency = nil
	}
	if src.Association != nil {
		a := *src.Association
		r.Association = &a
	} else {
		r.Association = nil
	}
}

// String returns a short description for logs.
func (r *Relation) String() string {
	return fmt.Sprintf("%s %s->%s (%s)", r.kind, r.endA, r.endB, r.uid)
}
