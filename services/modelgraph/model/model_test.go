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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/modelgraph/services/modelgraph/uid"
)

// kindRecorder records which Visit method was called.
type kindRecorder struct {
	calls []string
}

func (k *kindRecorder) VisitPackage(*Object)       { k.calls = append(k.calls, "package") }
func (k *kindRecorder) VisitClass(*Object)         { k.calls = append(k.calls, "class") }
func (k *kindRecorder) VisitComponent(*Object)     { k.calls = append(k.calls, "component") }
func (k *kindRecorder) VisitDiagram(*Object)       { k.calls = append(k.calls, "diagram") }
func (k *kindRecorder) VisitCanvasDiagram(*Object) { k.calls = append(k.calls, "canvas-diagram") }
func (k *kindRecorder) VisitItem(*Object)          { k.calls = append(k.calls, "item") }
func (k *kindRecorder) VisitDependency(*Relation)  { k.calls = append(k.calls, "dependency") }
func (k *kindRecorder) VisitInheritance(*Relation) { k.calls = append(k.calls, "inheritance") }
func (k *kindRecorder) VisitAssociation(*Relation) { k.calls = append(k.calls, "association") }

func TestAccept_DispatchesOnKind(t *testing.T) {
	a, b := uid.New(), uid.New()
	elements := []Element{
		NewPackage("p"),
		NewClass("c"),
		NewComponent("k"),
		NewDiagram("d"),
		NewCanvasDiagram("cd"),
		NewItem("i", "box"),
		NewDependency(a, b),
		NewInheritance(a, b),
		NewAssociation(a, b),
	}

	rec := &kindRecorder{}
	for _, e := range elements {
		e.Accept(rec)
	}

	assert.Equal(t, []string{
		"package", "class", "component", "diagram", "canvas-diagram",
		"item", "dependency", "inheritance", "association",
	}, rec.calls)
}

func TestKindStrings_RoundTrip(t *testing.T) {
	for k := ObjectKindPackage; k <= ObjectKindItem; k++ {
		got, err := ParseObjectKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	for k := RelationKindDependency; k <= RelationKindAssociation; k++ {
		got, err := ParseRelationKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseObjectKind("unknown")
	assert.Error(t, err)
	_, err = ParseRelationKind("bogus")
	assert.Error(t, err)
}

func TestStereotypes_OrderedSet(t *testing.T) {
	c := NewClass("C")
	c.SetStereotypes([]string{"entity", "boundary", "entity", "control", "boundary"})
	assert.Equal(t, []string{"entity", "boundary", "control"}, c.Stereotypes())

	c.SetStereotypes(nil)
	assert.Empty(t, c.Stereotypes())
}

func TestFlags(t *testing.T) {
	c := NewClass("C")
	assert.False(t, c.Flags().Has(FlagReverseEngineered))
	c.SetFlags(FlagReverseEngineered)
	assert.True(t, c.Flags().Has(FlagReverseEngineered))
}

func TestInsertRemoveChild_MaintainsOwner(t *testing.T) {
	p := NewPackage("p")
	a := NewClass("A")
	b := NewClass("B")
	c := NewClass("C")

	assert.Equal(t, 0, p.InsertChild(-1, a))
	assert.Equal(t, 1, p.InsertChild(99, c))
	assert.Equal(t, 1, p.InsertChild(1, b))

	assert.Equal(t, []*Object{a, b, c}, p.Children())
	assert.Same(t, p, b.Owner())
	assert.Equal(t, p.UID(), OwnerUID(b))
	assert.Equal(t, 2, p.ChildRow(c))

	removed := p.RemoveChildAt(1)
	assert.Same(t, b, removed)
	assert.Nil(t, b.Owner())
	assert.Equal(t, uid.Invalid, OwnerUID(b))
	assert.Equal(t, -1, p.ChildRow(b))
}

func TestInsertRemoveRelation_MaintainsOwner(t *testing.T) {
	p := NewPackage("p")
	r := NewDependency(uid.New(), uid.New())

	p.InsertRelation(0, r)
	assert.Same(t, p, r.Owner())
	assert.Equal(t, 0, p.RelationRow(r))

	p.RemoveRelationAt(0)
	assert.Nil(t, r.Owner())
	assert.Empty(t, p.Relations())
}

func TestAncestryAndDepth(t *testing.T) {
	root := NewPackage("root")
	sub := NewPackage("sub")
	cls := NewClass("C")
	root.InsertChild(-1, sub)
	sub.InsertChild(-1, cls)

	assert.Equal(t, 0, Depth(root))
	assert.Equal(t, 1, Depth(sub))
	assert.Equal(t, 2, Depth(cls))

	assert.True(t, IsAncestor(root, cls))
	assert.True(t, IsAncestor(sub, cls))
	assert.False(t, IsAncestor(cls, cls))
	assert.False(t, IsAncestor(cls, root))

	assert.Same(t, sub, cls.NearestPackage())
	assert.Same(t, sub, sub.NearestPackage())
}

func TestCloneObject_DeepAndPreservesUIDs(t *testing.T) {
	root := NewPackage("root")
	root.SetStereotypes([]string{"system"})
	root.SetUnloaded(true)
	a := NewClass("A")
	a.Class.Namespace = "ns"
	a.Class.Members = []Member{{Kind: MemberKindMethod, Visibility: VisibilityPublic, Declaration: "run()"}}
	b := NewClass("B")
	d := NewDiagram("D")
	d.Diagram.LastModified = time.Unix(1700000000, 0)
	root.InsertChild(-1, a)
	root.InsertChild(-1, b)
	root.InsertChild(-1, d)
	dep := NewDependency(a.UID(), b.UID())
	dep.Dependency.Direction = DirectionBidirectional
	root.InsertRelation(-1, dep)

	c := CloneObject(root)

	require.NotSame(t, root, c)
	assert.Equal(t, root.UID(), c.UID())
	assert.Nil(t, c.Owner())
	assert.True(t, c.IsUnloaded())
	assert.Equal(t, []string{"system"}, c.Stereotypes())
	require.Len(t, c.Children(), 3)
	require.Len(t, c.Relations(), 1)

	ca := c.Children()[0]
	assert.NotSame(t, a, ca)
	assert.Equal(t, a.UID(), ca.UID())
	assert.Same(t, c, ca.Owner())
	assert.Equal(t, "ns", ca.Class.Namespace)
	assert.Equal(t, a.Class.Members, ca.Class.Members)
	assert.Equal(t, d.Diagram.LastModified, c.Children()[2].Diagram.LastModified)

	cr := c.Relations()[0]
	assert.Equal(t, dep.UID(), cr.UID())
	assert.Same(t, c, cr.Owner())
	assert.Equal(t, DirectionBidirectional, cr.Dependency.Direction)

	// Mutating the clone leaves the original untouched.
	ca.Class.Members[0].Declaration = "stop()"
	ca.SetName("A2")
	assert.Equal(t, "run()", a.Class.Members[0].Declaration)
	assert.Equal(t, "A", a.Name())
}

func TestClone_NilAndTypedNil(t *testing.T) {
	assert.Nil(t, Clone(nil))
	var o *Object
	assert.Nil(t, Clone(o))
	var r *Relation
	assert.Nil(t, Clone(r))
}

func TestAssignFrom_CopiesEditableFieldsOnly(t *testing.T) {
	p := NewPackage("p")
	orig := NewClass("Orig")
	p.InsertChild(-1, orig)

	src := NewClass("Renamed")
	src.SetStereotypes([]string{"x"})
	src.Class.TemplateParameters = []string{"T"}

	id := orig.UID()
	orig.AssignFrom(src)

	assert.Equal(t, id, orig.UID())
	assert.Same(t, p, orig.Owner())
	assert.Equal(t, "Renamed", orig.Name())
	assert.Equal(t, []string{"x"}, orig.Stereotypes())
	assert.Equal(t, []string{"T"}, orig.Class.TemplateParameters)

	r := NewAssociation(uid.New(), uid.New())
	rs := NewAssociation(uid.New(), uid.New())
	rs.Association.A.Cardinality = "0..*"
	rid := r.UID()
	r.AssignFrom(rs)
	assert.Equal(t, rid, r.UID())
	assert.Equal(t, rs.EndA(), r.EndA())
	assert.Equal(t, rs.EndB(), r.EndB())
	assert.Equal(t, "0..*", r.Association.A.Cardinality)
}

func TestRenewUID(t *testing.T) {
	c := NewObjectWithUID(ObjectKindClass, uid.Invalid, "C")
	assert.False(t, c.UID().IsValid())
	id := c.RenewUID()
	assert.True(t, id.IsValid())
	assert.Equal(t, id, c.UID())
}

func TestWalk_PreOrderAndPrune(t *testing.T) {
	root := NewPackage("root")
	sub := NewPackage("sub")
	a := NewClass("A")
	b := NewClass("B")
	root.InsertChild(-1, sub)
	root.InsertChild(-1, b)
	sub.InsertChild(-1, a)
	r := NewDependency(a.UID(), b.UID())
	root.InsertRelation(-1, r)

	var seen []uid.UID
	Walk(root, func(e Element) bool {
		seen = append(seen, e.UID())
		return true
	})
	assert.Equal(t, []uid.UID{root.UID(), r.UID(), sub.UID(), a.UID(), b.UID()}, seen)

	seen = nil
	Walk(root, func(e Element) bool {
		seen = append(seen, e.UID())
		return e != Element(sub)
	})
	assert.Equal(t, []uid.UID{root.UID(), r.UID(), sub.UID(), b.UID()}, seen)
}

func TestObjectVisitor_RoutesByElementType(t *testing.T) {
	var objects, relations int
	v := ObjectVisitor{
		VisitObject:   func(*Object) { objects++ },
		VisitRelation: func(*Relation) { relations++ },
	}
	NewItem("i", "v").Accept(v)
	NewPackage("p").Accept(v)
	NewInheritance(uid.New(), uid.New()).Accept(v)
	assert.Equal(t, 2, objects)
	assert.Equal(t, 1, relations)

	// Nil callbacks are skipped.
	NewClass("c").Accept(ObjectVisitor{})
}
