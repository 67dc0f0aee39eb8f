// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package controller owns a model graph and mediates every mutation of it.
//
// The Controller holds the root package, two UID indices (objects and
// relations) and a reverse index from object UID to the relations incident
// on it. Every structural change goes through the Controller, which keeps
// tree and indices in lockstep, emits matched begin/end notifications, and
// records reversible commands on an undo stack.
//
// # Ownership Model
//
// The tree exclusively owns every reachable element. The indices are
// non-owning lookups into the tree. VerifyModelIntegrity rebuilds them from
// scratch and compares.
//
// # Thread Safety
//
// Controller is NOT safe for concurrent use. It assumes a single writer;
// callers that need concurrency serialize externally. Listeners are called
// synchronously on the writer's goroutine and must not mutate the model.
//
// # Unloaded Packages
//
// An unloaded package stays in the tree and in the object index, but its
// children and owned relations are not indexed. Lookups, traversals and
// verification stop at unloaded packages.
package controller

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/AleutianAI/modelgraph/services/modelgraph/model"
	"github.com/AleutianAI/modelgraph/services/modelgraph/uid"
	"github.com/AleutianAI/modelgraph/services/modelgraph/undo"
)

// UndoRecorder is the transaction boundary the controller reports to.
// *undo.Stack implements it.
type UndoRecorder interface {
	// Push records an already-applied command.
	Push(cmd undo.Command)

	// BeginMacro opens a compound step with an outer label.
	BeginMacro(label string)

	// EndMacro closes the innermost compound step.
	EndMacro() error

	// Clear drops all recorded steps.
	Clear()
}

// Option is a functional option for configuring a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithUndo sets the undo recorder. Without one, nothing is recorded.
func WithUndo(u UndoRecorder) Option {
	return func(c *Controller) {
		c.undo = u
	}
}

// WithListener adds a notification listener.
func WithListener(l Listener) Option {
	return func(c *Controller) {
		if l != nil {
			c.listeners = append(c.listeners, l)
		}
	}
}

// WithVerifyEachMutation runs VerifyModelIntegrity after every mutation
// and panics on a violation. Intended for tests and debug builds.
func WithVerifyEachMutation(enabled bool) Option {
	return func(c *Controller) {
		c.verifyEach = enabled
	}
}

// WithRootPackage sets the initial root package. Default is a new empty
// package named "root".
func WithRootPackage(root *model.Object) Option {
	return func(c *Controller) {
		c.initialRoot = root
	}
}

// pendingUpdate is the state captured by a start-update call. element is
// the live element being updated; object or relation holds its fields as
// they were at the start.
type pendingUpdate struct {
	element  model.Element
	object   *model.Object
	relation *model.Relation
}

// Controller owns a model graph.
//
// Description:
//
//	See the package documentation for the ownership and threading model.
//	All mutating methods validate their preconditions first and return a
//	wrapped sentinel error without touching the model when one fails.
type Controller struct {
	root      *model.Object
	objects   map[uid.UID]*model.Object
	relations map[uid.UID]*model.Relation

	// incident maps an object UID to the relations touching it, with a
	// count per relation (a relation from an object to itself counts 2).
	incident map[uid.UID]map[uid.UID]int

	pending map[uid.UID]pendingUpdate

	undo        UndoRecorder
	listeners   []Listener
	logger      *slog.Logger
	verifyEach  bool
	initialRoot *model.Object
}

// New creates a controller.
//
// Outputs:
//
//	*Controller - The controller, with the root indexed.
//	error - Non-nil if the root given by WithRootPackage is not a package
//	        or repeats a UID.
func New(opts ...Option) (*Controller, error) {
	c := &Controller{
		objects:   make(map[uid.UID]*model.Object),
		relations: make(map[uid.UID]*model.Relation),
		incident:  make(map[uid.UID]map[uid.UID]int),
		pending:   make(map[uid.UID]pendingUpdate),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "controller.Controller")

	root := c.initialRoot
	c.initialRoot = nil
	if root == nil {
		root = model.NewPackage("root")
	}
	if err := c.SetRootPackage(root); err != nil {
		return nil, err
	}
	return c, nil
}

// AddListener registers a listener after construction.
func (c *Controller) AddListener(l Listener) {
	if l != nil {
		c.listeners = append(c.listeners, l)
	}
}

// RootPackage returns the root package.
func (c *Controller) RootPackage() *model.Object { return c.root }

// ObjectCount returns the number of indexed objects, root included.
func (c *Controller) ObjectCount() int { return len(c.objects) }

// RelationCount returns the number of indexed relations.
func (c *Controller) RelationCount() int { return len(c.relations) }

// FindObject returns the indexed object with the given UID, or nil.
func (c *Controller) FindObject(id uid.UID) *model.Object {
	return c.objects[id]
}

// FindRelation returns the indexed relation with the given UID, or nil.
func (c *Controller) FindRelation(id uid.UID) *model.Relation {
	return c.relations[id]
}

// FindElement returns the indexed object or relation with the given UID,
// or nil.
func (c *Controller) FindElement(id uid.UID) model.Element {
	if o, ok := c.objects[id]; ok {
		return o
	}
	if r, ok := c.relations[id]; ok {
		return r
	}
	return nil
}

// GetOwnerKey returns the UID of e's owner, or uid.Invalid for the root
// and for detached elements.
func (c *Controller) GetOwnerKey(e model.Element) uid.UID {
	return model.OwnerUID(e)
}

// GetObject returns the child at row of owner, or nil if out of range.
// A nil owner means the root package, whose only row 0 is the root itself.
func (c *Controller) GetObject(row int, owner *model.Object) *model.Object {
	if owner == nil {
		if row == 0 {
			return c.root
		}
		return nil
	}
	if !c.isIndexedObject(owner) || owner.IsUnloaded() {
		return nil
	}
	children := owner.Children()
	if row < 0 || row >= len(children) {
		return nil
	}
	return children[row]
}

// isIndexedObject reports whether o is the object indexed under its UID.
func (c *Controller) isIndexedObject(o *model.Object) bool {
	return o != nil && c.objects[o.UID()] == o
}

func (c *Controller) isIndexedRelation(r *model.Relation) bool {
	return r != nil && c.relations[r.UID()] == r
}

// isIndexed reports whether any element with id is indexed.
func (c *Controller) isIndexed(id uid.UID) bool {
	_, o := c.objects[id]
	_, r := c.relations[id]
	return o || r
}

// requireObject validates an object argument.
func (c *Controller) requireObject(o *model.Object, what string) error {
	if o == nil {
		return fmt.Errorf("%w: %s", ErrNilElement, what)
	}
	if !c.isIndexedObject(o) {
		return fmt.Errorf("%w: %s %s", ErrNotInModel, what, o.UID())
	}
	return nil
}

// requirePackage validates a loaded package argument.
func (c *Controller) requirePackage(p *model.Object, what string) error {
	if err := c.requireObject(p, what); err != nil {
		return err
	}
	if !p.IsPackage() {
		return fmt.Errorf("%w: %s %s", ErrNotAPackage, what, p)
	}
	if p.IsUnloaded() {
		return fmt.Errorf("%w: %s %s", ErrPackageUnloaded, what, p)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Index maintenance
// -----------------------------------------------------------------------------

// mapObjects indexes o and its loaded object descendants. Relations are
// not indexed here so that endpoint checks can see the whole subtree.
func (c *Controller) mapObjects(o *model.Object) {
	c.objects[o.UID()] = o
	if o.IsUnloaded() {
		return
	}
	for _, child := range o.Children() {
		c.mapObjects(child)
	}
}

// subtreeRelations lists the relations owned by o and its loaded
// descendants. Relations of an unloaded package are not part of the
// loaded subtree.
func subtreeRelations(o *model.Object) []*model.Relation {
	var out []*model.Relation
	var walk func(*model.Object)
	walk = func(n *model.Object) {
		if n.IsUnloaded() {
			return
		}
		out = append(out, n.Relations()...)
		for _, child := range n.Children() {
			walk(child)
		}
	}
	walk(o)
	return out
}

// subtreeObjects lists o and its loaded object descendants in pre-order.
func subtreeObjects(o *model.Object) []*model.Object {
	var out []*model.Object
	var walk func(*model.Object)
	walk = func(n *model.Object) {
		out = append(out, n)
		if n.IsUnloaded() {
			return
		}
		for _, child := range n.Children() {
			walk(child)
		}
	}
	walk(o)
	return out
}

// mapSubtree indexes o with its loaded descendants and their relations.
func (c *Controller) mapSubtree(o *model.Object) {
	c.mapObjects(o)
	for _, r := range subtreeRelations(o) {
		c.mapRelation(r)
	}
}

// unmapSubtree removes o, its loaded descendants and their relations from
// the indices.
func (c *Controller) unmapSubtree(o *model.Object) {
	for _, r := range subtreeRelations(o) {
		c.unmapRelation(r)
	}
	for _, n := range subtreeObjects(o) {
		delete(c.objects, n.UID())
	}
}

func (c *Controller) mapRelation(r *model.Relation) {
	c.relations[r.UID()] = r
	c.indexIncident(r.UID(), r.EndA(), r.EndB())
}

func (c *Controller) unmapRelation(r *model.Relation) {
	delete(c.relations, r.UID())
	c.unindexIncident(r.UID(), r.EndA(), r.EndB())
}

func (c *Controller) indexIncident(rel uid.UID, ends ...uid.UID) {
	for _, end := range ends {
		set := c.incident[end]
		if set == nil {
			set = make(map[uid.UID]int)
			c.incident[end] = set
		}
		set[rel]++
	}
}

func (c *Controller) unindexIncident(rel uid.UID, ends ...uid.UID) {
	for _, end := range ends {
		set := c.incident[end]
		if set == nil {
			continue
		}
		if set[rel] <= 1 {
			delete(set, rel)
		} else {
			set[rel]--
		}
		if len(set) == 0 {
			delete(c.incident, end)
		}
	}
}

// resetIndices drops all index state. Open updates must be closed first.
func (c *Controller) resetIndices() {
	clear(c.objects)
	clear(c.relations)
	clear(c.incident)
}

// closePending ends every open update selected by match, in UID order, as
// a cancelled finish would. Relation fields go back to the start snapshot
// so the incident index keeps matching the tree; object fields stay as the
// caller left them. Callers run it before unindexing the elements and
// outside any other bracket.
func (c *Controller) closePending(match func(pendingUpdate) bool) {
	if len(c.pending) == 0 {
		return
	}
	ids := slices.Collect(maps.Keys(c.pending))
	uid.Sort(ids)
	for _, id := range ids {
		p := c.pending[id]
		if !match(p) {
			continue
		}
		delete(c.pending, id)
		ev := Event{Phase: PhaseEnd, Row: rowOf(p.element), Owner: model.OwnerUID(p.element), Element: p.element}
		switch v := p.element.(type) {
		case *model.Object:
			ev.Type = EventUpdateObject
		case *model.Relation:
			ev.Type = EventUpdateRelation
			v.AssignFrom(p.relation)
		}
		c.emit(ev)
		c.logger.Warn("open update closed by structural change",
			slog.String("element", p.element.UID().String()))
	}
}

// closeUpdate closes the open update on e, if any.
func (c *Controller) closeUpdate(e model.Element) {
	c.closePending(func(p pendingUpdate) bool { return p.element == e })
}

// closeUpdatesWithin closes the open updates that unindexing top's subtree
// would orphan: objects below top, relations owned below top, and
// relations whose indexed endpoints lie below top. With self set, top
// itself counts as below.
func (c *Controller) closeUpdatesWithin(top *model.Object, self bool) {
	inside := func(o *model.Object) bool {
		return o != nil && ((self && o == top) || model.IsAncestor(top, o))
	}
	c.closePending(func(p pendingUpdate) bool {
		switch v := p.element.(type) {
		case *model.Object:
			return inside(v)
		case *model.Relation:
			return model.IsAncestor(top, v) ||
				inside(c.objects[p.relation.EndA()]) ||
				inside(c.objects[p.relation.EndB()])
		}
		return false
	})
}

// -----------------------------------------------------------------------------
// Notification and transaction helpers
// -----------------------------------------------------------------------------

func (c *Controller) emit(ev Event) {
	for _, l := range c.listeners {
		l.HandleEvent(ev)
	}
}

// bracket emits the begin event, runs fn, and emits the matching end event
// even if fn panics.
func (c *Controller) bracket(ev Event, fn func()) {
	ev.Phase = PhaseBegin
	c.emit(ev)
	defer func() {
		ev.Phase = PhaseEnd
		c.emit(ev)
	}()
	fn()
}

func (c *Controller) notice(ev Event) {
	ev.Phase = PhaseNotice
	c.emit(ev)
}

func (c *Controller) modified() {
	c.notice(Event{Type: EventModified})
}

func (c *Controller) push(cmd undo.Command) {
	if c.undo != nil {
		c.undo.Push(cmd)
	}
}

// beginMacro opens an undo macro and returns the function closing it.
func (c *Controller) beginMacro(label string) func() {
	if c.undo == nil {
		return func() {}
	}
	c.undo.BeginMacro(label)
	return func() {
		if err := c.undo.EndMacro(); err != nil {
			c.logger.Error("unbalanced undo macro",
				slog.String("label", label),
				slog.String("error", err.Error()))
		}
	}
}

func (c *Controller) clearUndo() {
	if c.undo != nil {
		c.undo.Clear()
	}
}

// checkpoint runs the integrity check in verify-each-mutation mode.
func (c *Controller) checkpoint(operation string) {
	if !c.verifyEach {
		return
	}
	if err := c.VerifyModelIntegrity(); err != nil {
		panic(fmt.Sprintf("controller: %s left model inconsistent: %v", operation, err))
	}
}

// finish records metrics and runs the checkpoint for a public operation.
func (c *Controller) finish(operation string, err error) error {
	recordOperation(operation, err)
	if err != nil {
		c.logger.Debug("operation rejected",
			slog.String("operation", operation),
			slog.String("error", err.Error()))
		return err
	}
	c.checkpoint(operation)
	return nil
}

// -----------------------------------------------------------------------------
// Root management
// -----------------------------------------------------------------------------

// SetRootPackage replaces the whole model.
//
// Description:
//
//	The new root is indexed with all loaded descendants. Relations whose
//	endpoints do not resolve inside the new tree are pruned from it. The
//	change is bracketed by reset notifications and clears the undo
//	history. Open updates are ended before the reset begins. A nil root
//	installs a new empty package.
//
// Outputs:
//
//	error - ErrNotAPackage, ErrAlreadyOwned or ErrDuplicateUID. The
//	        previous model is kept on error.
func (c *Controller) SetRootPackage(root *model.Object) error {
	if root == nil {
		root = model.NewPackage("root")
	}
	if !root.IsPackage() {
		return c.finish("set_root", fmt.Errorf("%w: root %s", ErrNotAPackage, root))
	}
	if root.Owner() != nil {
		return c.finish("set_root", fmt.Errorf("%w: root %s", ErrAlreadyOwned, root))
	}
	if err := checkSubtreeUIDs(root, nil); err != nil {
		return c.finish("set_root", err)
	}

	c.closePending(func(pendingUpdate) bool { return true })
	c.bracket(Event{Type: EventReset}, func() {
		synthesizeUIDs(root)
		c.root = root
		c.resetIndices()
		c.mapObjects(root)
		pruned := c.mapRelationsPruning(subtreeRelations(root))
		recordPruned(pruned)
	})
	c.clearUndo()
	c.modified()
	c.logger.Debug("root package set",
		slog.String("root", root.UID().String()),
		slog.Int("objects", len(c.objects)),
		slog.Int("relations", len(c.relations)))
	return c.finish("set_root", nil)
}

// mapRelationsPruning indexes each relation whose endpoints resolve and
// removes the others from their owners. It returns the number pruned.
// Callers run it inside a reset bracket.
func (c *Controller) mapRelationsPruning(rels []*model.Relation) int {
	pruned := 0
	for _, r := range rels {
		if c.objects[r.EndA()] != nil && c.objects[r.EndB()] != nil {
			c.mapRelation(r)
			continue
		}
		if owner := r.Owner(); owner != nil {
			owner.RemoveRelationAt(owner.RelationRow(r))
		}
		pruned++
		c.logger.Warn("pruned dangling relation",
			slog.String("relation", r.UID().String()),
			slog.String("end_a", r.EndA().String()),
			slog.String("end_b", r.EndB().String()))
	}
	return pruned
}

// checkSubtreeUIDs rejects a subtree that repeats a UID internally or
// reuses one already indexed. Invalid UIDs are skipped; they get a fresh
// UID on insertion. A nil index means only internal repeats are checked.
func checkSubtreeUIDs(o *model.Object, indexed func(uid.UID) bool) error {
	seen := make(map[uid.UID]struct{})
	check := func(e model.Element) error {
		id := e.UID()
		if !id.IsValid() {
			return nil
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s repeated within subtree", ErrDuplicateUID, id)
		}
		seen[id] = struct{}{}
		if indexed != nil && indexed(id) {
			return fmt.Errorf("%w: %s already indexed", ErrDuplicateUID, id)
		}
		return nil
	}
	for _, n := range subtreeObjects(o) {
		if err := check(n); err != nil {
			return err
		}
	}
	for _, r := range subtreeRelations(o) {
		if err := check(r); err != nil {
			return err
		}
	}
	return nil
}

// synthesizeUIDs gives a fresh UID to every element of the loaded subtree
// that carries uid.Invalid.
func synthesizeUIDs(o *model.Object) {
	for _, n := range subtreeObjects(o) {
		if !n.UID().IsValid() {
			n.RenewUID()
		}
	}
	for _, r := range subtreeRelations(o) {
		if !r.UID().IsValid() {
			r.RenewUID()
		}
	}
}
