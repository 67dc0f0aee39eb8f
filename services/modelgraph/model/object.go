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
	"slices"
	"time"

	"github.com/AleutianAI/modelgraph/services/modelgraph/uid"
)

// ObjectKind discriminates the Object variants.
type ObjectKind int

const (
	// ObjectKindUnknown is the zero value and never produced by constructors.
	ObjectKindUnknown ObjectKind = iota

	// ObjectKindPackage is a namespace that can own other objects.
	ObjectKindPackage

	// ObjectKindClass is a class with members and template parameters.
	ObjectKindClass

	// ObjectKindComponent is a deployable component.
	ObjectKindComponent

	// ObjectKindDiagram is a UML-style diagram.
	ObjectKindDiagram

	// ObjectKindCanvasDiagram is a free-form canvas diagram.
	ObjectKindCanvasDiagram

	// ObjectKindItem is a generic item with a variety tag.
	ObjectKindItem
)

var objectKindNames = map[ObjectKind]string{
	ObjectKindUnknown:       "unknown",
	ObjectKindPackage:       "package",
	ObjectKindClass:         "class",
	ObjectKindComponent:     "component",
	ObjectKindDiagram:       "diagram",
	ObjectKindCanvasDiagram: "canvas-diagram",
	ObjectKindItem:          "item",
}

// String returns the string representation of the ObjectKind.
func (k ObjectKind) String() string {
	if name, ok := objectKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseObjectKind is the inverse of ObjectKind.String.
func ParseObjectKind(s string) (ObjectKind, error) {
	for k, name := range objectKindNames {
		if name == s && k != ObjectKindUnknown {
			return k, nil
		}
	}
	return ObjectKindUnknown, fmt.Errorf("unknown object kind %q", s)
}

// Visibility of a class member.
type Visibility int

const (
	VisibilityUnspecified Visibility = iota
	VisibilityPublic
	VisibilityProtected
	VisibilityPrivate
)

// MemberKind discriminates attributes from methods.
type MemberKind int

const (
	MemberKindAttribute MemberKind = iota
	MemberKindMethod
)

// Member is one class member. Members are values and carry no UID.
type Member struct {
	Kind        MemberKind
	Visibility  Visibility
	Declaration string
}

// ClassDetails holds the class-specific fields.
type ClassDetails struct {
	Namespace          string
	TemplateParameters []string
	Members            []Member
}

func (d *ClassDetails) clone() *ClassDetails {
	if d == nil {
		return nil
	}
	return &ClassDetails{
		Namespace:          d.Namespace,
		TemplateParameters: slices.Clone(d.TemplateParameters),
		Members:            slices.Clone(d.Members),
	}
}

// ItemDetails holds the item-specific fields.
type ItemDetails struct {
	Variety       string
	ShapeEditable bool
}

// DiagramDetails holds the fields shared by Diagram and CanvasDiagram.
type DiagramDetails struct {
	LastModified time.Time
}

// Object is a tree node of the model graph.
//
// Description:
//
//	An Object owns an ordered sequence of child Objects and an ordered
//	sequence of Relations. The row of an Object is its index in its
//	owner's children; the row of a Relation is its index in its owner's
//	relations.
//
//	Exactly one of Class, Item or Diagram is non-nil for the matching
//	kinds; all are nil for packages and components.
//
// Thread Safety:
//
//	Not safe for concurrent use.
type Object struct {
	base

	kind      ObjectKind
	name      string
	children  []*Object
	relations []*Relation
	unloaded  bool

	// Class is set for ObjectKindClass.
	Class *ClassDetails

	// Item is set for ObjectKindItem.
	Item *ItemDetails

	// Diagram is set for ObjectKindDiagram and ObjectKindCanvasDiagram.
	Diagram *DiagramDetails
}

// NewObjectWithUID creates a detached object of the given kind.
//
// Inputs:
//
//	kind - The object variant. Must not be ObjectKindUnknown.
//	id - The UID to use. uid.Invalid is allowed; the controller
//	     synthesizes a UID on insertion.
//	name - The display name.
//
// Outputs:
//
//	*Object - The new object, with kind details allocated.
func NewObjectWithUID(kind ObjectKind, id uid.UID, name string) *Object {
	o := &Object{kind: kind, name: name}
	o.uid = id
	switch kind {
	case ObjectKindClass:
		o.Class = &ClassDetails{}
	case ObjectKindItem:
		o.Item = &ItemDetails{}
	case ObjectKindDiagram, ObjectKindCanvasDiagram:
		o.Diagram = &DiagramDetails{}
	}
	return o
}

// NewObject creates a detached object with a fresh UID.
func NewObject(kind ObjectKind, name string) *Object {
	return NewObjectWithUID(kind, uid.New(), name)
}

// NewPackage creates a detached package with a fresh UID.
func NewPackage(name string) *Object { return NewObject(ObjectKindPackage, name) }

// NewClass creates a detached class with a fresh UID.
func NewClass(name string) *Object { return NewObject(ObjectKindClass, name) }

// NewComponent creates a detached component with a fresh UID.
func NewComponent(name string) *Object { return NewObject(ObjectKindComponent, name) }

// NewDiagram creates a detached diagram with a fresh UID.
func NewDiagram(name string) *Object { return NewObject(ObjectKindDiagram, name) }

// NewCanvasDiagram creates a detached canvas diagram with a fresh UID.
func NewCanvasDiagram(name string) *Object { return NewObject(ObjectKindCanvasDiagram, name) }

// NewItem creates a detached item with a fresh UID.
func NewItem(name, variety string) *Object {
	o := NewObject(ObjectKindItem, name)
	o.Item.Variety = variety
	return o
}

// Kind returns the object variant.
func (o *Object) Kind() ObjectKind { return o.kind }

// IsPackage reports whether o is a package.
func (o *Object) IsPackage() bool { return o != nil && o.kind == ObjectKindPackage }

// Name returns the display name.
func (o *Object) Name() string { return o.name }

// SetName sets the display name. Inside a controller, wrap the call in
// StartUpdateObject/FinishUpdateObject.
func (o *Object) SetName(name string) { o.name = name }

// IsUnloaded reports whether o is a package whose subtree is currently
// detached from the controller indices.
func (o *Object) IsUnloaded() bool { return o.unloaded }

// SetUnloaded sets the unloaded marker. Only the controller's
// unload/load and paste paths call this.
func (o *Object) SetUnloaded(unloaded bool) { o.unloaded = unloaded }

// Children returns the owned child objects in row order.
// The returned slice must not be modified.
func (o *Object) Children() []*Object { return o.children }

// Relations returns the owned relations in row order.
// The returned slice must not be modified.
func (o *Object) Relations() []*Relation { return o.relations }

// ChildRow returns the row of child, or -1.
func (o *Object) ChildRow(child *Object) int {
	return slices.Index(o.children, child)
}

// RelationRow returns the row of r, or -1.
func (o *Object) RelationRow(r *Relation) int {
	return slices.Index(o.relations, r)
}

// InsertChild inserts child at row and sets its owner. A row outside
// [0, len] appends.
//
// This is a raw tree mutation that does not touch any index. Use the
// controller to edit a model that is under control.
func (o *Object) InsertChild(row int, child *Object) int {
	if row < 0 || row > len(o.children) {
		row = len(o.children)
	}
	o.children = slices.Insert(o.children, row, child)
	child.setOwner(o)
	return row
}

// RemoveChildAt detaches and returns the child at row.
func (o *Object) RemoveChildAt(row int) *Object {
	child := o.children[row]
	o.children = slices.Delete(o.children, row, row+1)
	child.setOwner(nil)
	return child
}

// InsertRelation inserts r at row and sets its owner. A row outside
// [0, len] appends.
func (o *Object) InsertRelation(row int, r *Relation) int {
	if row < 0 || row > len(o.relations) {
		row = len(o.relations)
	}
	o.relations = slices.Insert(o.relations, row, r)
	r.setOwner(o)
	return row
}

// RemoveRelationAt detaches and returns the relation at row.
func (o *Object) RemoveRelationAt(row int) *Relation {
	r := o.relations[row]
	o.relations = slices.Delete(o.relations, row, row+1)
	r.setOwner(nil)
	return r
}

// Accept dispatches on the object kind.
func (o *Object) Accept(v Visitor) {
	switch o.kind {
	case ObjectKindPackage:
		v.VisitPackage(o)
	case ObjectKindClass:
		v.VisitClass(o)
	case ObjectKindComponent:
		v.VisitComponent(o)
	case ObjectKindDiagram:
		v.VisitDiagram(o)
	case ObjectKindCanvasDiagram:
		v.VisitCanvasDiagram(o)
	case ObjectKindItem:
		v.VisitItem(o)
	default:
		panic(fmt.Sprintf("model: object %s has unknown kind %d", o.uid, o.kind))
	}
}

// AssignFrom copies the editable fields of src into o: name, stereotypes,
// flags and kind details. UID, owner, children, relations and the
// unloaded marker are left alone.
func (o *Object) AssignFrom(src *Object) {
	o.assignBase(&src.base)
	o.name = src.name
	o.Class = src.Class.clone()
	if src.Item != nil {
		item := *src.Item
		o.Item = &item
	} else {
		o.Item = nil
	}
	if src.Diagram != nil {
		d := *src.Diagram
		o.Diagram = &d
	} else {
		o.Diagram = nil
	}
}

// NearestPackage returns o if it is a package, otherwise the nearest
// owning package, or nil.
func (o *Object) NearestPackage() *Object {
	for p := o; p != nil; p = p.Owner() {
		if p.IsPackage() {
			return p
		}
	}
	return nil
}

// String returns a short description for logs.
func (o *Object) String() string {
	return fmt.Sprintf("%s %q (%s)", o.kind, o.name, o.uid)
}
