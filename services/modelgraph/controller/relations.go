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
	"maps"
	"slices"

	"github.com/AleutianAI/modelgraph/services/modelgraph/model"
	"github.com/AleutianAI/modelgraph/services/modelgraph/uid"
)

// AddRelation appends rel to the relations owned by owner.
//
// Inputs:
//
//	owner - An indexed object whose relations are loaded. Any kind.
//	rel - A detached relation whose endpoints resolve to indexed objects.
//
// Outputs:
//
//	error - ErrNilElement, ErrNotInModel, ErrPackageUnloaded,
//	        ErrAlreadyOwned, ErrDuplicateUID or ErrEndpointNotFound.
func (c *Controller) AddRelation(owner *model.Object, rel *model.Relation) error {
	if err := c.requireRelationOwner(owner); err != nil {
		return c.finish("add_relation", err)
	}
	if err := c.checkRelationInsertable(rel); err != nil {
		return c.finish("add_relation", err)
	}

	if !rel.UID().IsValid() {
		rel.RenewUID()
	}
	row := c.insertRelation(owner, -1, rel)
	c.push(newAddCommand(c, LabelAddRelation, snapshotRelation(rel, owner.UID(), row)))
	c.logger.Debug("relation added",
		slog.String("relation", rel.String()),
		slog.String("owner", owner.UID().String()))
	return c.finish("add_relation", nil)
}

func (c *Controller) requireRelationOwner(owner *model.Object) error {
	if err := c.requireObject(owner, "owner"); err != nil {
		return err
	}
	if owner.IsUnloaded() {
		return fmt.Errorf("%w: owner %s", ErrPackageUnloaded, owner)
	}
	return nil
}

func (c *Controller) checkRelationInsertable(rel *model.Relation) error {
	if rel == nil {
		return fmt.Errorf("%w: relation", ErrNilElement)
	}
	if rel.Owner() != nil {
		return fmt.Errorf("%w: relation %s", ErrAlreadyOwned, rel)
	}
	if rel.UID().IsValid() && c.isIndexed(rel.UID()) {
		return fmt.Errorf("%w: %s already indexed", ErrDuplicateUID, rel.UID())
	}
	return c.checkEndpoints(rel)
}

func (c *Controller) checkEndpoints(rel *model.Relation) error {
	if c.objects[rel.EndA()] == nil {
		return fmt.Errorf("%w: relation %s end A %s", ErrEndpointNotFound, rel.UID(), rel.EndA())
	}
	if c.objects[rel.EndB()] == nil {
		return fmt.Errorf("%w: relation %s end B %s", ErrEndpointNotFound, rel.UID(), rel.EndB())
	}
	return nil
}

// insertRelation is the non-recording insertion. It returns the row used.
func (c *Controller) insertRelation(owner *model.Object, row int, rel *model.Relation) int {
	if row < 0 || row > len(owner.Relations()) {
		row = len(owner.Relations())
	}
	c.bracket(Event{Type: EventInsertRelation, Row: row, Owner: owner.UID(), Element: rel}, func() {
		owner.InsertRelation(row, rel)
		c.mapRelation(rel)
	})
	c.modified()
	return row
}

// RemoveRelation removes rel and drops it from both endpoints' incident
// sets. Recorded as "Delete Relation".
//
// Outputs:
//
//	error - ErrNilElement or ErrNotInModel.
func (c *Controller) RemoveRelation(rel *model.Relation) error {
	if rel == nil {
		return c.finish("remove_relation", fmt.Errorf("%w: relation", ErrNilElement))
	}
	if !c.isIndexedRelation(rel) {
		return c.finish("remove_relation", fmt.Errorf("%w: relation %s", ErrNotInModel, rel.UID()))
	}

	c.closeUpdate(rel)
	owner := rel.Owner()
	snap := snapshotRelation(rel, owner.UID(), owner.RelationRow(rel))
	c.removeRelation(rel)
	c.push(newRemoveCommand(c, LabelDeleteRelation, snap))
	c.logger.Debug("relation removed", slog.String("relation", rel.String()))
	return c.finish("remove_relation", nil)
}

// removeRelation is the non-recording removal.
func (c *Controller) removeRelation(rel *model.Relation) {
	c.closeUpdate(rel)
	owner := rel.Owner()
	row := owner.RelationRow(rel)
	c.bracket(Event{Type: EventRemoveRelation, Row: row, Owner: owner.UID(), Element: rel}, func() {
		c.unmapRelation(rel)
		owner.RemoveRelationAt(row)
	})
	c.modified()
}

// MoveRelation moves rel to the end of newOwner's relations. Endpoints and
// UID are unchanged. Moving to the current owner does nothing. Recorded
// as "Move Relation".
//
// Outputs:
//
//	error - ErrNilElement, ErrNotInModel or ErrPackageUnloaded.
func (c *Controller) MoveRelation(newOwner *model.Object, rel *model.Relation) error {
	if err := c.requireRelationOwner(newOwner); err != nil {
		return c.finish("move_relation", err)
	}
	if rel == nil {
		return c.finish("move_relation", fmt.Errorf("%w: relation", ErrNilElement))
	}
	if !c.isIndexedRelation(rel) {
		return c.finish("move_relation", fmt.Errorf("%w: relation %s", ErrNotInModel, rel.UID()))
	}
	former := rel.Owner()
	if former == newOwner {
		return c.finish("move_relation", nil)
	}

	formerRow := former.RelationRow(rel)
	row := c.moveRelation(rel, newOwner, -1)
	c.push(newMoveCommand(c, LabelMoveRelation, rel.UID(), former.UID(), formerRow, newOwner.UID(), row))
	return c.finish("move_relation", nil)
}

// moveRelation is the non-recording move. It returns the new row.
func (c *Controller) moveRelation(rel *model.Relation, newOwner *model.Object, row int) int {
	former := rel.Owner()
	formerRow := former.RelationRow(rel)
	if row < 0 || row > len(newOwner.Relations()) {
		row = len(newOwner.Relations())
	}
	ev := Event{
		Type:        EventMoveRelation,
		Row:         row,
		Owner:       newOwner.UID(),
		FormerRow:   formerRow,
		FormerOwner: former.UID(),
		Element:     rel,
	}
	c.bracket(ev, func() {
		former.RemoveRelationAt(formerRow)
		newOwner.InsertRelation(row, rel)
	})
	c.modified()
	return row
}

// StartUpdateRelation opens an in-place update of rel, including its
// endpoints.
//
// Outputs:
//
//	error - ErrNilElement, ErrNotInModel or ErrUpdateInProgress.
func (c *Controller) StartUpdateRelation(rel *model.Relation) error {
	if rel == nil {
		return c.finish("start_update_relation", fmt.Errorf("%w: relation", ErrNilElement))
	}
	if !c.isIndexedRelation(rel) {
		return c.finish("start_update_relation", fmt.Errorf("%w: relation %s", ErrNotInModel, rel.UID()))
	}
	if _, busy := c.pending[rel.UID()]; busy {
		return c.finish("start_update_relation", fmt.Errorf("%w: %s", ErrUpdateInProgress, rel))
	}
	c.pending[rel.UID()] = pendingUpdate{element: rel, relation: model.CloneRelation(rel)}
	c.emit(Event{Type: EventUpdateRelation, Phase: PhaseBegin, Row: rowOf(rel), Owner: model.OwnerUID(rel), Element: rel})
	return c.finish("start_update_relation", nil)
}

// FinishUpdateRelation closes an update opened by StartUpdateRelation.
//
// Description:
//
//	Always emits the end-update event. If the relation's endpoints were
//	changed to objects that are not indexed, the fields are rolled back,
//	the update counts as cancelled and ErrEndpointNotFound is returned.
//	Otherwise the incident index follows the new endpoints and, unless
//	cancelled, "Update Relation" is recorded.
//
//	Removing rel, or an object it touches, while the update is open ends
//	the update there: the fields are restored and the end-update event is
//	emitted before the removal.
//
// Outputs:
//
//	error - ErrNilElement, ErrNoUpdateInProgress, ErrNotInModel (rel only
//	        shares the UID of the relation being updated) or
//	        ErrEndpointNotFound.
func (c *Controller) FinishUpdateRelation(rel *model.Relation, cancelled bool) error {
	if rel == nil {
		return c.finish("finish_update_relation", fmt.Errorf("%w: relation", ErrNilElement))
	}
	p, ok := c.pending[rel.UID()]
	if !ok || p.relation == nil {
		return c.finish("finish_update_relation", fmt.Errorf("%w: %s", ErrNoUpdateInProgress, rel))
	}
	if p.element != model.Element(rel) {
		return c.finish("finish_update_relation", fmt.Errorf("%w: relation %s is not the indexed instance", ErrNotInModel, rel.UID()))
	}
	delete(c.pending, rel.UID())

	endpointErr := c.checkEndpoints(rel)
	if endpointErr != nil {
		rel.AssignFrom(p.relation)
		cancelled = true
	}
	c.reindexEndpoints(rel, p.relation.EndA(), p.relation.EndB())
	c.emit(Event{Type: EventUpdateRelation, Phase: PhaseEnd, Row: rowOf(rel), Owner: model.OwnerUID(rel), Element: rel})
	if cancelled {
		return c.finish("finish_update_relation", endpointErr)
	}

	c.push(newUpdateRelationCommand(c, rel.UID(), p.relation, model.CloneRelation(rel)))
	c.modified()
	return c.finish("finish_update_relation", nil)
}

// UpdateRelation runs mutate inside a start/finish pair, restoring the
// fields and cancelling if mutate fails.
func (c *Controller) UpdateRelation(rel *model.Relation, mutate func(*model.Relation) error) error {
	if err := c.StartUpdateRelation(rel); err != nil {
		return err
	}
	if err := mutate(rel); err != nil {
		rel.AssignFrom(c.pending[rel.UID()].relation)
		if ferr := c.FinishUpdateRelation(rel, true); ferr != nil {
			return ferr
		}
		return err
	}
	return c.FinishUpdateRelation(rel, false)
}

// reindexEndpoints moves rel's incident entries from the old endpoints to
// the current ones.
func (c *Controller) reindexEndpoints(rel *model.Relation, oldA, oldB uid.UID) {
	if oldA == rel.EndA() && oldB == rel.EndB() {
		return
	}
	c.unindexIncident(rel.UID(), oldA, oldB)
	c.indexIncident(rel.UID(), rel.EndA(), rel.EndB())
}

// assignRelation is the non-recording field replacement used by undo.
func (c *Controller) assignRelation(rel, fields *model.Relation) {
	oldA, oldB := rel.EndA(), rel.EndB()
	ev := Event{Type: EventUpdateRelation, Row: rowOf(rel), Owner: model.OwnerUID(rel), Element: rel}
	c.bracket(ev, func() {
		rel.AssignFrom(fields)
		c.reindexEndpoints(rel, oldA, oldB)
	})
	c.modified()
}

// FindRelationsOfObject returns the relations incident on obj or on any
// of its loaded descendants, each once, ordered by UID.
//
// Description:
//
//	Uses the incident index only; no relation is scanned. Returns nil for
//	nil or unindexed objects.
func (c *Controller) FindRelationsOfObject(obj *model.Object) []*model.Relation {
	if !c.isIndexedObject(obj) {
		return nil
	}
	found := make(map[uid.UID]struct{})
	for _, n := range subtreeObjects(obj) {
		for rid := range c.incident[n.UID()] {
			found[rid] = struct{}{}
		}
	}
	if len(found) == 0 {
		return nil
	}
	ids := slices.Collect(maps.Keys(found))
	uid.Sort(ids)
	out := make([]*model.Relation, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.relations[id])
	}
	return out
}

// sortedIncident returns the relations directly incident on id, ordered
// by UID.
func (c *Controller) sortedIncident(id uid.UID) []uid.UID {
	set := c.incident[id]
	if len(set) == 0 {
		return nil
	}
	ids := slices.Collect(maps.Keys(set))
	uid.Sort(ids)
	return ids
}
