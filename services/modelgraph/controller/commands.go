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

	"github.com/AleutianAI/modelgraph/services/modelgraph/model"
	"github.com/AleutianAI/modelgraph/services/modelgraph/uid"
)

// Undo commands capture only the affected subtree: UIDs, owner UID, row
// and a detached clone. Applying a command looks elements up by UID and
// goes through the non-recording helpers, so notifications still flow but
// nothing is pushed back onto the undo recorder.

// elementSnapshot is a detached clone of an element and where it lived.
type elementSnapshot struct {
	element model.Element
	owner   uid.UID
	row     int
}

func snapshotObject(o *model.Object, owner uid.UID, row int) elementSnapshot {
	return elementSnapshot{element: model.CloneObject(o), owner: owner, row: row}
}

func snapshotRelation(r *model.Relation, owner uid.UID, row int) elementSnapshot {
	return elementSnapshot{element: model.CloneRelation(r), owner: owner, row: row}
}

// structureCommand inserts or removes one element subtree.
type structureCommand struct {
	c     *Controller
	label string
	added bool
	snap  elementSnapshot
}

func newAddCommand(c *Controller, label string, snap elementSnapshot) *structureCommand {
	return &structureCommand{c: c, label: label, added: true, snap: snap}
}

func newRemoveCommand(c *Controller, label string, snap elementSnapshot) *structureCommand {
	return &structureCommand{c: c, label: label, snap: snap}
}

func (s *structureCommand) Label() string { return s.label }

func (s *structureCommand) Undo() error {
	if s.added {
		return s.remove()
	}
	return s.insert()
}

func (s *structureCommand) Redo() error {
	if s.added {
		return s.insert()
	}
	return s.remove()
}

func (s *structureCommand) insert() error {
	c := s.c
	owner := c.objects[s.snap.owner]
	if owner == nil {
		return fmt.Errorf("%w: owner %s", ErrNotInModel, s.snap.owner)
	}
	if owner.IsUnloaded() {
		return fmt.Errorf("%w: owner %s", ErrPackageUnloaded, owner)
	}
	switch e := model.Clone(s.snap.element).(type) {
	case *model.Object:
		if err := checkSubtreeUIDs(e, c.isIndexed); err != nil {
			return err
		}
		c.insertObject(owner, s.snap.row, e)
	case *model.Relation:
		if c.isIndexed(e.UID()) {
			return fmt.Errorf("%w: %s", ErrDuplicateUID, e.UID())
		}
		if err := c.checkEndpoints(e); err != nil {
			return err
		}
		c.insertRelation(owner, s.snap.row, e)
	}
	c.checkpoint(s.label)
	return nil
}

func (s *structureCommand) remove() error {
	c := s.c
	switch s.snap.element.(type) {
	case *model.Object:
		o := c.objects[s.snap.element.UID()]
		if o == nil {
			return fmt.Errorf("%w: object %s", ErrNotInModel, s.snap.element.UID())
		}
		if o == c.root {
			return ErrRootRemoval
		}
		c.removeObjectCascade(o, false)
	case *model.Relation:
		r := c.relations[s.snap.element.UID()]
		if r == nil {
			return fmt.Errorf("%w: relation %s", ErrNotInModel, s.snap.element.UID())
		}
		c.removeRelation(r)
	}
	c.checkpoint(s.label)
	return nil
}

// moveCommand moves an object or relation between two owners.
type moveCommand struct {
	c           *Controller
	label       string
	element     uid.UID
	formerOwner uid.UID
	formerRow   int
	newOwner    uid.UID
	newRow      int
}

func newMoveCommand(c *Controller, label string, element, formerOwner uid.UID, formerRow int, newOwner uid.UID, newRow int) *moveCommand {
	return &moveCommand{
		c:           c,
		label:       label,
		element:     element,
		formerOwner: formerOwner,
		formerRow:   formerRow,
		newOwner:    newOwner,
		newRow:      newRow,
	}
}

func (m *moveCommand) Label() string { return m.label }

func (m *moveCommand) Undo() error { return m.apply(m.formerOwner, m.formerRow) }

func (m *moveCommand) Redo() error { return m.apply(m.newOwner, m.newRow) }

func (m *moveCommand) apply(ownerID uid.UID, row int) error {
	c := m.c
	owner := c.objects[ownerID]
	if owner == nil {
		return fmt.Errorf("%w: owner %s", ErrNotInModel, ownerID)
	}
	if owner.IsUnloaded() {
		return fmt.Errorf("%w: owner %s", ErrPackageUnloaded, owner)
	}
	switch e := c.FindElement(m.element).(type) {
	case *model.Object:
		if owner == e || model.IsAncestor(e, owner) {
			return fmt.Errorf("%w: %s under %s", ErrCyclicMove, e, owner)
		}
		c.moveObject(e, owner, row)
	case *model.Relation:
		c.moveRelation(e, owner, row)
	default:
		return fmt.Errorf("%w: %s", ErrNotInModel, m.element)
	}
	c.checkpoint(m.label)
	return nil
}

// updateObjectCommand swaps the editable fields of an object.
type updateObjectCommand struct {
	c      *Controller
	id     uid.UID
	before *model.Object
	after  *model.Object
}

func newUpdateObjectCommand(c *Controller, id uid.UID, before, after *model.Object) *updateObjectCommand {
	return &updateObjectCommand{c: c, id: id, before: before, after: after}
}

func (u *updateObjectCommand) Label() string { return LabelUpdateObject }

func (u *updateObjectCommand) Undo() error { return u.apply(u.before) }

func (u *updateObjectCommand) Redo() error { return u.apply(u.after) }

func (u *updateObjectCommand) apply(fields *model.Object) error {
	o := u.c.objects[u.id]
	if o == nil {
		return fmt.Errorf("%w: object %s", ErrNotInModel, u.id)
	}
	u.c.assignObject(o, fields)
	u.c.checkpoint(LabelUpdateObject)
	return nil
}

// updateRelationCommand swaps the fields and endpoints of a relation.
type updateRelationCommand struct {
	c      *Controller
	id     uid.UID
	before *model.Relation
	after  *model.Relation
}

func newUpdateRelationCommand(c *Controller, id uid.UID, before, after *model.Relation) *updateRelationCommand {
	return &updateRelationCommand{c: c, id: id, before: before, after: after}
}

func (u *updateRelationCommand) Label() string { return LabelUpdateRelation }

func (u *updateRelationCommand) Undo() error { return u.apply(u.before) }

func (u *updateRelationCommand) Redo() error { return u.apply(u.after) }

func (u *updateRelationCommand) apply(fields *model.Relation) error {
	r := u.c.relations[u.id]
	if r == nil {
		return fmt.Errorf("%w: relation %s", ErrNotInModel, u.id)
	}
	if err := u.c.checkEndpoints(fields); err != nil {
		return err
	}
	u.c.assignRelation(r, fields)
	u.c.checkpoint(LabelUpdateRelation)
	return nil
}
