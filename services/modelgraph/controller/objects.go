// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package controller

import (
	"fmt"
	"log/slog"

	"github.com/AleutianAI/modelgraph/services/modelgraph/model"
	"github.com/AleutianAI/modelgraph/services/modelgraph/uid"
)

// Undo labels.
const (
	LabelAddObject      = "Add Object"
	LabelDeleteObject   = "Delete Object"
	LabelUpdateObject   = "Update Object"
	LabelMoveObject     = "Move Object"
	LabelAddRelation    = "Add Relation"
	LabelDeleteRelation = "Delete Relation"
	LabelUpdateRelation = "Update Relation"
	LabelMoveRelation   = "Move Relation"
	LabelCut            = "Cut"
	LabelPaste          = "Paste"
	LabelDelete         = "Delete"
)

// AddObject appends obj to the children of parent.
//
// Description:
//
//	obj may carry a whole subtree, including owned relations; everything
//	is indexed. Elements with uid.Invalid get a fresh UID. The insertion
//	is bracketed by insert notifications and recorded as "Add Object".
//
// Inputs:
//
//	parent - An indexed, loaded package.
//	obj - A detached object.
//
// Outputs:
//
//	error - ErrNilElement, ErrNotInModel, ErrNotAPackage, ErrPackageUnloaded,
//	        ErrAlreadyOwned, ErrDuplicateUID or ErrEndpointNotFound.
func (c *Controller) AddObject(parent, obj *model.Object) error {
	if err := c.requirePackage(parent, "parent"); err != nil {
		return c.finish("add_object", err)
	}
	if err := c.checkInsertable(obj); err != nil {
		return c.finish("add_object", err)
	}

	synthesizeUIDs(obj)
	row := c.insertObject(parent, -1, obj)
	c.push(newAddCommand(c, LabelAddObject, snapshotObject(obj, parent.UID(), row)))
	c.logger.Debug("object added",
		slog.String("object", obj.String()),
		slog.String("parent", parent.UID().String()),
		slog.Int("row", row))
	return c.finish("add_object", nil)
}

// checkInsertable validates a detached subtree for insertion.
func (c *Controller) checkInsertable(obj *model.Object) error {
	if obj == nil {
		return fmt.Errorf("%w: object", ErrNilElement)
	}
	if obj.Owner() != nil || obj == c.root {
		return fmt.Errorf("%w: object %s", ErrAlreadyOwned, obj)
	}
	if err := checkSubtreeUIDs(obj, c.isIndexed); err != nil {
		return err
	}
	inSubtree := make(map[uid.UID]struct{})
	for _, n := range subtreeObjects(obj) {
		inSubtree[n.UID()] = struct{}{}
	}
	for _, r := range subtreeRelations(obj) {
		for _, end := range []uid.UID{r.EndA(), r.EndB()} {
			if _, ok := inSubtree[end]; ok && end.IsValid() {
				continue
			}
			if c.objects[end] == nil {
				return fmt.Errorf("%w: relation %s end %s", ErrEndpointNotFound, r.UID(), end)
			}
		}
	}
	return nil
}

// insertObject is the non-recording insertion used by AddObject, paste and
// undo. It returns the row used.
func (c *Controller) insertObject(parent *model.Object, row int, obj *model.Object) int {
	if row < 0 || row > len(parent.Children()) {
		row = len(parent.Children())
	}
	c.bracket(Event{Type: EventInsertObject, Row: row, Owner: parent.UID(), Element: obj}, func() {
		parent.InsertChild(row, obj)
		c.mapSubtree(obj)
	})
	c.modified()
	return row
}

// RemoveObject removes obj with its subtree.
//
// Description:
//
//	Every relation incident on obj or a loaded descendant is removed
//	first, each with its own remove bracket. Then obj is detached and its
//	subtree unindexed. Everything is recorded inside one "Delete Object"
//	undo macro.
//
// Outputs:
//
//	error - ErrNilElement, ErrNotInModel or ErrRootRemoval.
func (c *Controller) RemoveObject(obj *model.Object) error {
	if err := c.requireObject(obj, "object"); err != nil {
		return c.finish("remove_object", err)
	}
	if obj == c.root {
		return c.finish("remove_object", ErrRootRemoval)
	}

	end := c.beginMacro(LabelDeleteObject)
	c.removeObjectCascade(obj, true)
	end()
	return c.finish("remove_object", nil)
}

// removeObjectCascade removes the relations incident on obj's subtree and
// then obj. With record set, every step is pushed to the undo recorder.
func (c *Controller) removeObjectCascade(obj *model.Object, record bool) {
	c.closeUpdatesWithin(obj, true)
	pruned := 0
	for _, r := range c.FindRelationsOfObject(obj) {
		if !c.isIndexedRelation(r) {
			continue
		}
		owner := r.Owner()
		row := owner.RelationRow(r)
		snap := snapshotRelation(r, owner.UID(), row)
		c.removeRelation(r)
		if record {
			c.push(newRemoveCommand(c, LabelDeleteRelation, snap))
		}
		pruned++
	}

	owner := obj.Owner()
	row := owner.ChildRow(obj)
	snap := snapshotObject(obj, owner.UID(), row)
	c.removeObject(obj)
	if record {
		c.push(newRemoveCommand(c, LabelDeleteObject, snap))
	}
	c.logger.Debug("object removed",
		slog.String("object", obj.String()),
		slog.Int("cascaded_relations", pruned))
}

// removeObject is the non-recording detach. The caller removes incident
// relations first.
func (c *Controller) removeObject(obj *model.Object) {
	owner := obj.Owner()
	row := owner.ChildRow(obj)
	c.bracket(Event{Type: EventRemoveObject, Row: row, Owner: owner.UID(), Element: obj}, func() {
		c.unmapSubtree(obj)
		owner.RemoveChildAt(row)
	})
	c.modified()
}

// MoveObject moves obj to the end of newOwner's children.
//
// Description:
//
//	UIDs of obj, its descendants and all relations are preserved. Moving
//	to the current owner does nothing. Recorded as "Move Object".
//
// Outputs:
//
//	error - ErrNilElement, ErrNotInModel, ErrNotAPackage,
//	        ErrPackageUnloaded or ErrCyclicMove.
func (c *Controller) MoveObject(newOwner, obj *model.Object) error {
	if err := c.requirePackage(newOwner, "new owner"); err != nil {
		return c.finish("move_object", err)
	}
	if err := c.requireObject(obj, "object"); err != nil {
		return c.finish("move_object", err)
	}
	if newOwner == obj || model.IsAncestor(obj, newOwner) || obj == c.root {
		return c.finish("move_object", fmt.Errorf("%w: %s under %s", ErrCyclicMove, obj, newOwner))
	}
	former := obj.Owner()
	if former == newOwner {
		return c.finish("move_object", nil)
	}

	formerRow := former.ChildRow(obj)
	row := c.moveObject(obj, newOwner, -1)
	c.push(newMoveCommand(c, LabelMoveObject, obj.UID(), former.UID(), formerRow, newOwner.UID(), row))
	return c.finish("move_object", nil)
}

// moveObject is the non-recording move. It returns the new row.
func (c *Controller) moveObject(obj, newOwner *model.Object, row int) int {
	former := obj.Owner()
	formerRow := former.ChildRow(obj)
	if row < 0 || row > len(newOwner.Children()) {
		row = len(newOwner.Children())
	}
	ev := Event{
		Type:        EventMoveObject,
		Row:         row,
		Owner:       newOwner.UID(),
		FormerRow:   formerRow,
		FormerOwner: former.UID(),
		Element:     obj,
	}
	c.bracket(ev, func() {
		former.RemoveChildAt(formerRow)
		newOwner.InsertChild(row, obj)
	})
	c.modified()
	c.logger.Debug("object moved",
		slog.String("object", obj.String()),
		slog.String("from", former.UID().String()),
		slog.String("to", newOwner.UID().String()))
	return row
}

// StartUpdateObject opens an in-place update of obj's fields.
//
// Description:
//
//	Emits the begin-update event and captures the fields for undo. Every
//	call must be followed by FinishUpdateObject.
//
// Outputs:
//
//	error - ErrNilElement, ErrNotInModel or ErrUpdateInProgress. No event
//	        is emitted on error.
func (c *Controller) StartUpdateObject(obj *model.Object) error {
	if err := c.requireObject(obj, "object"); err != nil {
		return c.finish("start_update_object", err)
	}
	if _, busy := c.pending[obj.UID()]; busy {
		return c.finish("start_update_object", fmt.Errorf("%w: %s", ErrUpdateInProgress, obj))
	}
	c.pending[obj.UID()] = pendingUpdate{element: obj, object: fieldSnapshot(obj)}
	c.emit(Event{Type: EventUpdateObject, Phase: PhaseBegin, Row: rowOf(obj), Owner: model.OwnerUID(obj), Element: obj})
	return c.finish("start_update_object", nil)
}

// FinishUpdateObject closes an update opened by StartUpdateObject.
//
// Description:
//
//	Always emits the end-update event. Unless cancelled, it records
//	"Update Object", emits a relation-end-changed notice for every
//	relation directly incident on obj, a package-renamed notice when a
//	package name changed, and a modified notice. A cancelled update keeps
//	whatever the caller changed; use UpdateObject for automatic rollback.
//
//	If obj is removed, unloaded or replaced by SetRootPackage while the
//	update is open, the end-update event is emitted at that point and a
//	later FinishUpdateObject returns ErrNoUpdateInProgress.
//
// Outputs:
//
//	error - ErrNilElement, ErrNoUpdateInProgress, or ErrNotInModel when
//	        obj only shares the UID of the object being updated.
func (c *Controller) FinishUpdateObject(obj *model.Object, cancelled bool) error {
	if obj == nil {
		return c.finish("finish_update_object", fmt.Errorf("%w: object", ErrNilElement))
	}
	p, ok := c.pending[obj.UID()]
	if !ok || p.object == nil {
		return c.finish("finish_update_object", fmt.Errorf("%w: %s", ErrNoUpdateInProgress, obj))
	}
	if p.element != model.Element(obj) {
		return c.finish("finish_update_object", fmt.Errorf("%w: object %s is not the indexed instance", ErrNotInModel, obj.UID()))
	}
	delete(c.pending, obj.UID())
	c.emit(Event{Type: EventUpdateObject, Phase: PhaseEnd, Row: rowOf(obj), Owner: model.OwnerUID(obj), Element: obj})
	if cancelled {
		return c.finish("finish_update_object", nil)
	}

	c.push(newUpdateObjectCommand(c, obj.UID(), p.object, fieldSnapshot(obj)))
	c.objectChanged(obj, p.object.Name())
	return c.finish("finish_update_object", nil)
}

// objectChanged emits the notices that follow a committed object update.
func (c *Controller) objectChanged(obj *model.Object, oldName string) {
	for _, rid := range c.sortedIncident(obj.UID()) {
		r := c.relations[rid]
		c.notice(Event{Type: EventRelationEndChanged, Row: rowOf(r), Owner: model.OwnerUID(r), Element: r})
	}
	if obj.IsPackage() && obj.Name() != oldName {
		c.notice(Event{Type: EventPackageRenamed, Row: rowOf(obj), Owner: model.OwnerUID(obj), Element: obj, OldName: oldName})
	}
	c.modified()
}

// UpdateObject runs mutate inside a start/finish pair. If mutate returns
// an error the fields are restored, the update is finished as cancelled
// and the error is returned.
func (c *Controller) UpdateObject(obj *model.Object, mutate func(*model.Object) error) error {
	if err := c.StartUpdateObject(obj); err != nil {
		return err
	}
	if err := mutate(obj); err != nil {
		obj.AssignFrom(c.pending[obj.UID()].object)
		if ferr := c.FinishUpdateObject(obj, true); ferr != nil {
			return ferr
		}
		return err
	}
	return c.FinishUpdateObject(obj, false)
}

// assignObject is the non-recording field replacement used by undo.
func (c *Controller) assignObject(obj, fields *model.Object) {
	oldName := obj.Name()
	ev := Event{Type: EventUpdateObject, Row: rowOf(obj), Owner: model.OwnerUID(obj), Element: obj}
	c.bracket(ev, func() {
		obj.AssignFrom(fields)
	})
	c.objectChanged(obj, oldName)
}

// fieldSnapshot copies the editable fields of obj into a detached object
// without children.
func fieldSnapshot(obj *model.Object) *model.Object {
	s := model.NewObjectWithUID(obj.Kind(), obj.UID(), "")
	s.AssignFrom(obj)
	return s
}

// rowOf returns the row of e in its owner, or 0 for the root.
func rowOf(e model.Element) int {
	owner := e.Owner()
	if owner == nil {
		return 0
	}
	switch v := e.(type) {
	case *model.Object:
		return owner.ChildRow(v)
	case *model.Relation:
		return owner.RelationRow(v)
	}
	return -1
}
