// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package projection

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/modelgraph/services/modelgraph/controller"
	"github.com/AleutianAI/modelgraph/services/modelgraph/model"
	"github.com/AleutianAI/modelgraph/services/modelgraph/transfer"
	"github.com/AleutianAI/modelgraph/services/modelgraph/uid"
	"github.com/AleutianAI/modelgraph/services/modelgraph/undo"
)

type harness struct {
	t    *testing.T
	c    *controller.Controller
	undo *undo.Stack
	tree *Tree
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	stack := undo.NewStack(20, undo.WithLogger(quiet))
	c, err := controller.New(
		controller.WithLogger(quiet),
		controller.WithUndo(stack),
		controller.WithVerifyEachMutation(true),
	)
	require.NoError(t, err)
	tree := New(c, WithLogger(quiet))
	c.AddListener(tree)
	h := &harness{t: t, c: c, undo: stack, tree: tree}
	t.Cleanup(func() {
		assert.NoError(t, tree.Verify())
		assert.Zero(t, tree.Resyncs(), "every event applied incrementally")
	})
	return h
}

// step runs fn and checks the projection right after.
func (h *harness) step(fn func() error) {
	h.t.Helper()
	require.NoError(h.t, fn())
	require.NoError(h.t, h.tree.Verify())
}

func (h *harness) add(parent, obj *model.Object) *model.Object {
	h.t.Helper()
	h.step(func() error { return h.c.AddObject(parent, obj) })
	return obj
}

func labels(rows []*Node) []string {
	out := make([]string, 0, len(rows))
	for _, n := range rows {
		out = append(out, n.Label)
	}
	return out
}

func TestTree_IncrementalEdits(t *testing.T) {
	h := newHarness(t)
	root := h.c.RootPackage()

	lib := h.add(root, model.NewPackage("lib"))
	a := h.add(lib, model.NewClass("A"))
	b := h.add(root, model.NewClass("B"))
	r := model.NewDependency(a.UID(), b.UID())
	h.step(func() error { return h.c.AddRelation(lib, r) })

	assert.Equal(t, []string{"root", "lib", "A", "A -> B", "B"}, labels(h.tree.Rows()))
	d, ok := h.tree.Depth(r.UID())
	require.True(t, ok)
	assert.Equal(t, 2, d)

	h.step(func() error {
		return h.c.UpdateObject(b, func(o *model.Object) error {
			o.SetName("Base")
			o.SetStereotypes([]string{"entity"})
			return nil
		})
	})
	assert.Equal(t, "A -> Base", h.tree.Node(r.UID()).Label)
	assert.Equal(t, "«entity» Base", h.tree.Node(b.UID()).Label)

	h.step(func() error { return h.c.RemoveObject(b) })
	assert.Nil(t, h.tree.Node(r.UID()))
	assert.Nil(t, h.tree.Node(b.UID()))

	h.step(h.undo.Undo)
	h.step(h.undo.Undo)
	assert.Equal(t, "A -> B", h.tree.Node(r.UID()).Label)
}

func TestTree_MoveRecomputesDepth(t *testing.T) {
	h := newHarness(t)
	root := h.c.RootPackage()
	outer := h.add(root, model.NewPackage("outer"))
	inner := h.add(outer, model.NewPackage("inner"))
	deep := h.add(inner, model.NewClass("Deep"))
	self := model.NewDependency(deep.UID(), deep.UID())
	h.step(func() error { return h.c.AddRelation(deep, self) })

	d, _ := h.tree.Depth(deep.UID())
	assert.Equal(t, 3, d)
	d, _ = h.tree.Depth(self.UID())
	assert.Equal(t, 4, d)

	h.step(func() error { return h.c.MoveObject(root, inner) })

	d, _ = h.tree.Depth(inner.UID())
	assert.Equal(t, 1, d)
	d, _ = h.tree.Depth(deep.UID())
	assert.Equal(t, 2, d)
	d, _ = h.tree.Depth(self.UID())
	assert.Equal(t, 3, d)
	assert.Same(t, h.tree.Root(), h.tree.Node(inner.UID()).Parent())

	h.step(func() error { return h.c.MoveRelation(outer, self) })
	d, _ = h.tree.Depth(self.UID())
	assert.Equal(t, 2, d)

	h.step(h.undo.Undo)
	h.step(h.undo.Undo)
	d, _ = h.tree.Depth(deep.UID())
	assert.Equal(t, 3, d)
}

func TestTree_UnloadHidesChildren(t *testing.T) {
	h := newHarness(t)
	lib := h.add(h.c.RootPackage(), model.NewPackage("lib"))
	inner := h.add(lib, model.NewClass("Inner"))

	h.step(func() error { return h.c.UnloadPackage(lib) })
	n := h.tree.Node(lib.UID())
	require.NotNil(t, n)
	assert.Empty(t, n.Children())
	assert.Equal(t, "lib (unloaded)", n.Label)
	assert.Nil(t, h.tree.Node(inner.UID()))

	h.step(func() error { return h.c.LoadPackage(lib) })
	assert.NotNil(t, h.tree.Node(inner.UID()))
	assert.Equal(t, 3, h.tree.Len())
}

func TestTree_PasteAndCut(t *testing.T) {
	h := newHarness(t)
	root := h.c.RootPackage()
	lib := h.add(root, model.NewPackage("lib"))
	a := h.add(lib, model.NewClass("A"))
	b := h.add(lib, model.NewClass("B"))
	h.step(func() error { return h.c.AddRelation(lib, model.NewInheritance(a.UID(), b.UID())) })

	sel := transfer.NewSelection()
	sel.Append(lib.UID(), root.UID())
	container := h.c.CopyElements(sel)

	h.step(func() error {
		_, err := h.c.PasteElements(root, container)
		return err
	})
	assert.Equal(t, 9, h.tree.Len())

	h.step(func() error {
		_, err := h.c.CutElements(sel)
		return err
	})
	assert.Equal(t, 5, h.tree.Len())
	assert.Equal(t, []string{"root", "lib", "A", "B", "A --|> B"}, labels(h.tree.Rows()))
}

func TestTree_PasteLabelsResolveInAnyOrder(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness) *transfer.Selection
		want  string
	}{
		{
			name: "relation root first",
			setup: func(h *harness) *transfer.Selection {
				root := h.c.RootPackage()
				a := h.add(root, model.NewClass("A"))
				b := h.add(root, model.NewClass("B"))
				r := model.NewDependency(a.UID(), b.UID())
				h.step(func() error { return h.c.AddRelation(root, r) })
				sel := transfer.NewSelection()
				sel.Append(r.UID(), root.UID())
				sel.Append(a.UID(), root.UID())
				sel.Append(b.UID(), root.UID())
				return sel
			},
			want: "A -> B",
		},
		{
			name: "nested relation into a later root",
			setup: func(h *harness) *transfer.Selection {
				root := h.c.RootPackage()
				p1 := h.add(root, model.NewPackage("p1"))
				p2 := h.add(root, model.NewPackage("p2"))
				a := h.add(p1, model.NewClass("A"))
				b := h.add(p2, model.NewClass("B"))
				h.step(func() error { return h.c.AddRelation(p1, model.NewDependency(a.UID(), b.UID())) })
				sel := transfer.NewSelection()
				sel.Append(p1.UID(), root.UID())
				sel.Append(p2.UID(), root.UID())
				return sel
			},
			want: "A -> B",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			sel := tt.setup(h)
			before := h.c.RelationCount()

			var pasted []model.Element
			h.step(func() error {
				var err error
				pasted, err = h.c.PasteElements(h.c.RootPackage(), h.c.CopyElements(sel))
				return err
			})
			require.Equal(t, before+1, h.c.RelationCount())

			var got []string
			for _, root := range pasted {
				model.Walk(root, func(e model.Element) bool {
					if r, ok := e.(*model.Relation); ok {
						got = append(got, h.tree.Node(r.UID()).Label)
					}
					return true
				})
			}
			assert.Equal(t, []string{tt.want}, got)

			h.step(h.undo.Undo)
			h.step(h.undo.Redo)
		})
	}
}

func TestTree_RemoveDuringOpenUpdate(t *testing.T) {
	h := newHarness(t)
	root := h.c.RootPackage()
	a := h.add(root, model.NewClass("A"))
	b := h.add(root, model.NewClass("B"))
	r := model.NewDependency(a.UID(), b.UID())
	h.step(func() error { return h.c.AddRelation(root, r) })

	require.NoError(t, h.c.StartUpdateRelation(r))
	r.SetEndB(a.UID())
	h.step(func() error { return h.c.RemoveObject(b) })
	assert.Nil(t, h.tree.Node(r.UID()))
	assert.Equal(t, []string{"root", "A"}, labels(h.tree.Rows()))
	assert.ErrorIs(t, h.c.FinishUpdateRelation(r, false), controller.ErrNoUpdateInProgress)
}

func TestTree_ResetRebuilds(t *testing.T) {
	h := newHarness(t)
	h.add(h.c.RootPackage(), model.NewClass("Gone"))

	fresh := model.NewPackage("fresh")
	fresh.InsertChild(-1, model.NewComponent("K"))
	h.step(func() error { return h.c.SetRootPackage(fresh) })

	assert.Equal(t, []string{"fresh", "K"}, labels(h.tree.Rows()))
}

func TestTree_OutOfSyncDetected(t *testing.T) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := controller.New(controller.WithLogger(quiet))
	require.NoError(t, err)
	tree := New(c, WithLogger(quiet))

	// Not registered as a listener, so it misses this insert.
	require.NoError(t, c.AddObject(c.RootPackage(), model.NewClass("Missed")))
	assert.ErrorIs(t, tree.Verify(), ErrOutOfSync)
}

func TestTree_UnmatchedEventResyncs(t *testing.T) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := controller.New(controller.WithLogger(quiet))
	require.NoError(t, err)
	tree := New(c, WithLogger(quiet))

	cls := model.NewClass("C")
	require.NoError(t, c.AddObject(c.RootPackage(), cls))
	// A remove for a node the tree never saw forces a rebuild.
	tree.HandleEvent(controller.Event{
		Type:    controller.EventRemoveObject,
		Phase:   controller.PhaseEnd,
		Owner:   c.RootPackage().UID(),
		Row:     0,
		Element: cls,
	})
	assert.Equal(t, 1, tree.Resyncs())
	assert.NoError(t, tree.Verify())
}

func TestLabel(t *testing.T) {
	a := model.NewClass("A")
	b := model.NewClass("B")
	lookup := func(e ...*model.Object) func(id uid.UID) model.Element {
		return func(id uid.UID) model.Element {
			for _, o := range e {
				if o.UID() == id {
					return o
				}
			}
			return nil
		}
	}(a, b)

	cls := model.NewClass("Vec")
	cls.Class.Namespace = "geo"
	cls.Class.TemplateParameters = []string{"T", "N"}
	item := model.NewItem("Sensor", "hexagon")
	bidi := model.NewDependency(a.UID(), b.UID())
	bidi.Dependency.Direction = model.DirectionBidirectional
	bidi.SetName("uses")
	assoc := model.NewAssociation(a.UID(), b.UID())
	assoc.Association.A = model.AssociationEnd{Cardinality: "1", Kind: model.EndKindComposition}
	assoc.Association.B = model.AssociationEnd{Cardinality: "*", Navigable: true}
	dangling := model.NewInheritance(a.UID(), model.NewClass("x").UID())

	tests := []struct {
		name string
		e    model.Element
		want string
	}{
		{"class", cls, "geo::Vec<T, N>"},
		{"item", item, "Sensor [hexagon]"},
		{"bidirectional dependency", bidi, "uses: A <-> B"},
		{"association", assoc, "A [1] *--> [*] B"},
		{"dangling end", dangling, "A --|> ?"},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Label(tt.e, lookup))
		})
	}
}
