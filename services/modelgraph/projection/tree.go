// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package projection keeps a row-based view of a controller's model tree.
//
// A Tree listens to controller notifications and applies each structural
// change to its own node tree without rescanning the model. Depth is
// cached per node and only recomputed for a moved subtree. Reset
// notifications rebuild the whole view.
package projection

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/AleutianAI/modelgraph/services/modelgraph/controller"
	"github.com/AleutianAI/modelgraph/services/modelgraph/model"
	"github.com/AleutianAI/modelgraph/services/modelgraph/uid"
)

// ErrOutOfSync is returned by Verify when the projection differs from a
// fresh rebuild.
var ErrOutOfSync = errors.New("projection out of sync")

// Source is the read side of a controller that a Tree projects.
// *controller.Controller implements it.
type Source interface {
	RootPackage() *model.Object
	FindElement(id uid.UID) model.Element
}

// Node is one projected element.
type Node struct {
	UID      uid.UID
	Kind     string
	Label    string
	Depth    int
	Relation bool

	parent    *Node
	objects   []*Node
	relations []*Node
}

// Parent returns the owning node, or nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the child object nodes followed by the owned relation
// nodes.
func (n *Node) Children() []*Node {
	out := make([]*Node, 0, len(n.objects)+len(n.relations))
	out = append(out, n.objects...)
	return append(out, n.relations...)
}

// Option configures a Tree.
type Option func(*Tree)

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(t *Tree) {
		if l != nil {
			t.logger = l
		}
	}
}

// Tree is a controller.Listener that mirrors the model tree.
//
// Thread Safety:
//
//	Events are applied under a write lock; readers may run on other
//	goroutines.
type Tree struct {
	mu      sync.RWMutex
	source  Source
	root    *Node
	nodes   map[uid.UID]*Node
	resyncs int
	logger  *slog.Logger
}

// New creates a Tree for source and builds it once.
func New(source Source, opts ...Option) *Tree {
	t := &Tree{
		source: source,
		nodes:  make(map[uid.UID]*Node),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "projection.Tree")
	t.rebuild()
	return t
}

// HandleEvent applies one notification. Structural changes are applied on
// the end event, once the model reflects them.
func (t *Tree) HandleEvent(ev controller.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ev.Phase == controller.PhaseNotice {
		switch ev.Type {
		case controller.EventRelationEndChanged, controller.EventPackageRenamed:
			t.relabel(ev.Element)
		}
		return
	}
	if ev.Phase != controller.PhaseEnd {
		return
	}

	var err error
	switch ev.Type {
	case controller.EventReset:
		t.rebuild()
	case controller.EventInsertObject, controller.EventInsertRelation:
		err = t.insert(ev.Owner, ev.Row, ev.Element)
	case controller.EventRemoveObject, controller.EventRemoveRelation:
		err = t.remove(ev.Owner, ev.Row, ev.Element)
	case controller.EventMoveObject, controller.EventMoveRelation:
		err = t.move(ev)
	case controller.EventUpdateObject, controller.EventUpdateRelation:
		t.relabel(ev.Element)
	}
	if err != nil {
		t.resyncs++
		t.logger.Warn("projection resynchronized",
			slog.String("event", ev.Type.String()),
			slog.String("error", err.Error()))
		t.rebuild()
	}
}

// rebuild discards every node and projects the source from scratch.
func (t *Tree) rebuild() {
	clear(t.nodes)
	t.root = nil
	if t.source == nil || t.source.RootPackage() == nil {
		return
	}
	t.root = t.build(t.source.RootPackage(), nil, 0)
}

// build projects e with its loaded subtree and indexes every node.
func (t *Tree) build(e model.Element, parent *Node, depth int) *Node {
	n := &Node{
		UID:    e.UID(),
		Label:  Label(e, t.source.FindElement),
		Depth:  depth,
		parent: parent,
	}
	t.nodes[n.UID] = n
	switch v := e.(type) {
	case *model.Relation:
		n.Kind = v.Kind().String()
		n.Relation = true
	case *model.Object:
		n.Kind = v.Kind().String()
		if v.IsUnloaded() {
			return n
		}
		for _, child := range v.Children() {
			n.objects = append(n.objects, t.build(child, n, depth+1))
		}
		for _, r := range v.Relations() {
			n.relations = append(n.relations, t.build(r, n, depth+1))
		}
	}
	return n
}

func (t *Tree) insert(owner uid.UID, row int, e model.Element) error {
	parent := t.nodes[owner]
	if parent == nil || e == nil {
		return fmt.Errorf("insert under unknown owner %s", owner)
	}
	n := t.build(e, parent, parent.Depth+1)
	list := parent.list(n.Relation)
	if row < 0 || row > len(*list) {
		return fmt.Errorf("insert row %d out of range", row)
	}
	*list = slices.Insert(*list, row, n)
	return nil
}

func (t *Tree) remove(owner uid.UID, row int, e model.Element) error {
	parent := t.nodes[owner]
	if parent == nil || e == nil {
		return fmt.Errorf("remove under unknown owner %s", owner)
	}
	_, isRelation := e.(*model.Relation)
	list := parent.list(isRelation)
	if row < 0 || row >= len(*list) || (*list)[row].UID != e.UID() {
		return fmt.Errorf("remove of %s at row %d does not match", e.UID(), row)
	}
	n := (*list)[row]
	*list = slices.Delete(*list, row, row+1)
	t.unindex(n)
	return nil
}

func (t *Tree) move(ev controller.Event) error {
	from := t.nodes[ev.FormerOwner]
	to := t.nodes[ev.Owner]
	if from == nil || to == nil || ev.Element == nil {
		return fmt.Errorf("move between unknown owners %s and %s", ev.FormerOwner, ev.Owner)
	}
	_, isRelation := ev.Element.(*model.Relation)
	src := from.list(isRelation)
	if ev.FormerRow < 0 || ev.FormerRow >= len(*src) || (*src)[ev.FormerRow].UID != ev.Element.UID() {
		return fmt.Errorf("move of %s from row %d does not match", ev.Element.UID(), ev.FormerRow)
	}
	n := (*src)[ev.FormerRow]
	*src = slices.Delete(*src, ev.FormerRow, ev.FormerRow+1)

	dst := to.list(isRelation)
	if ev.Row < 0 || ev.Row > len(*dst) {
		return fmt.Errorf("move row %d out of range", ev.Row)
	}
	*dst = slices.Insert(*dst, ev.Row, n)
	n.parent = to
	n.setDepth(to.Depth + 1)
	return nil
}

func (t *Tree) relabel(e model.Element) {
	if e == nil {
		return
	}
	if n := t.nodes[e.UID()]; n != nil {
		n.Label = Label(e, t.source.FindElement)
	}
}

func (t *Tree) unindex(n *Node) {
	delete(t.nodes, n.UID)
	for _, c := range n.objects {
		t.unindex(c)
	}
	for _, c := range n.relations {
		t.unindex(c)
	}
}

func (n *Node) list(relation bool) *[]*Node {
	if relation {
		return &n.relations
	}
	return &n.objects
}

func (n *Node) setDepth(d int) {
	n.Depth = d
	for _, c := range n.objects {
		c.setDepth(d + 1)
	}
	for _, c := range n.relations {
		c.setDepth(d + 1)
	}
}

// Rows returns every node in pre-order: a node, its child objects, then
// its relations.
func (t *Tree) Rows() []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*Node
	var walk func(*Node)
	walk = func(n *Node) {
		out = append(out, n)
		for _, c := range n.objects {
			walk(c)
		}
		for _, c := range n.relations {
			walk(c)
		}
	}
	if t.root != nil {
		walk(t.root)
	}
	return out
}

// Root returns the root node, or nil.
func (t *Tree) Root() *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

// Node returns the node for id, or nil.
func (t *Tree) Node(id uid.UID) *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[id]
}

// Depth returns the cached depth of id.
func (t *Tree) Depth(id uid.UID) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	if !ok {
		return 0, false
	}
	return n.Depth, true
}

// Len returns the number of projected nodes.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// Resyncs returns how often an event could not be applied incrementally
// and the tree was rebuilt instead.
func (t *Tree) Resyncs() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.resyncs
}

// Verify compares the projection with a fresh rebuild from the source.
func (t *Tree) Verify() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	fresh := &Tree{source: t.source, nodes: make(map[uid.UID]*Node)}
	fresh.rebuild()
	if len(fresh.nodes) != len(t.nodes) {
		return fmt.Errorf("%w: %d nodes, rebuild has %d", ErrOutOfSync, len(t.nodes), len(fresh.nodes))
	}
	if (t.root == nil) != (fresh.root == nil) {
		return fmt.Errorf("%w: root presence differs", ErrOutOfSync)
	}
	if t.root == nil {
		return nil
	}
	return sameNode(t.root, fresh.root)
}

func sameNode(got, want *Node) error {
	if got.UID != want.UID || got.Kind != want.Kind || got.Label != want.Label ||
		got.Depth != want.Depth || got.Relation != want.Relation {
		return fmt.Errorf("%w: node %s (%s %q depth %d) differs from %s (%s %q depth %d)",
			ErrOutOfSync, got.UID, got.Kind, got.Label, got.Depth,
			want.UID, want.Kind, want.Label, want.Depth)
	}
	if len(got.objects) != len(want.objects) || len(got.relations) != len(want.relations) {
		return fmt.Errorf("%w: children of %s differ", ErrOutOfSync, got.UID)
	}
	for i := range got.objects {
		if got.objects[i].parent != got {
			return fmt.Errorf("%w: parent link of %s", ErrOutOfSync, got.objects[i].UID)
		}
		if err := sameNode(got.objects[i], want.objects[i]); err != nil {
			return err
		}
	}
	for i := range got.relations {
		if got.relations[i].parent != got {
			return fmt.Errorf("%w: parent link of %s", ErrOutOfSync, got.relations[i].UID)
		}
		if err := sameNode(got.relations[i], want.relations[i]); err != nil {
			return err
		}
	}
	return nil
}
