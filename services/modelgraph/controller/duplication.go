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
	"github.com/AleutianAI/modelgraph/services/modelgraph/transfer"
	"github.com/AleutianAI/modelgraph/services/modelgraph/uid"
)

// resolveSelection maps a selection to indexed elements, dropping UIDs
// that do not resolve, and simplifies it: an element is dropped when one
// of its ancestors is also selected.
func (c *Controller) resolveSelection(sel *transfer.Selection) []model.Element {
	var resolved []model.Element
	selectedObjects := make(map[*model.Object]struct{})
	for _, idx := range sel.Indices() {
		e := c.FindElement(idx.Element)
		if e == nil {
			continue
		}
		resolved = append(resolved, e)
		if o, ok := e.(*model.Object); ok {
			selectedObjects[o] = struct{}{}
		}
	}

	var simplified []model.Element
	for _, e := range resolved {
		covered := false
		for o := e.Owner(); o != nil; o = o.Owner() {
			if _, ok := selectedObjects[o]; ok {
				covered = true
				break
			}
		}
		if !covered {
			simplified = append(simplified, e)
		}
	}
	return simplified
}

// CopyElements snapshots the selected elements into a Container.
//
// Description:
//
//	The selection is simplified first, so a selected descendant of a
//	selected object is carried once, inside its ancestor's clone. Each
//	surviving element is deep-cloned with its UIDs unchanged. Unresolved
//	UIDs are skipped. The model is not modified.
func (c *Controller) CopyElements(sel *transfer.Selection) *transfer.Container {
	container := &transfer.Container{}
	for _, e := range c.resolveSelection(sel) {
		container.Submit(model.Clone(e))
	}
	return container
}

// CutElements copies the selection and then deletes it, recorded as one
// "Cut" step.
//
// Outputs:
//
//	*transfer.Container - Equal to what CopyElements returns for sel.
//	error - ErrRootRemoval if the root is selected; nothing is deleted.
func (c *Controller) CutElements(sel *transfer.Selection) (*transfer.Container, error) {
	elements := c.resolveSelection(sel)
	if err := c.checkDeletable(elements); err != nil {
		return nil, c.finish("cut", err)
	}
	container := &transfer.Container{}
	for _, e := range elements {
		container.Submit(model.Clone(e))
	}

	end := c.beginMacro(LabelCut)
	c.deleteResolved(elements)
	end()
	return container, c.finish("cut", nil)
}

// DeleteElements removes the selected elements as one "Delete" step.
//
// Description:
//
//	The selection is simplified first, so selecting a package and one of
//	its children removes the package (and thereby the child) once.
//	Relations already removed by an earlier cascade are skipped.
//
// Outputs:
//
//	error - ErrRootRemoval if the root is selected; nothing is deleted.
func (c *Controller) DeleteElements(sel *transfer.Selection) error {
	elements := c.resolveSelection(sel)
	if err := c.checkDeletable(elements); err != nil {
		return c.finish("delete", err)
	}

	end := c.beginMacro(LabelDelete)
	c.deleteResolved(elements)
	end()
	return c.finish("delete", nil)
}

func (c *Controller) checkDeletable(elements []model.Element) error {
	for _, e := range elements {
		if e == model.Element(c.root) {
			return ErrRootRemoval
		}
	}
	return nil
}

func (c *Controller) deleteResolved(elements []model.Element) {
	for _, e := range elements {
		switch v := e.(type) {
		case *model.Object:
			if !c.isIndexedObject(v) {
				continue
			}
			c.removeObjectCascade(v, true)
		case *model.Relation:
			if !c.isIndexedRelation(v) {
				continue
			}
			c.closeUpdate(v)
			owner := v.Owner()
			snap := snapshotRelation(v, owner.UID(), owner.RelationRow(v))
			c.removeRelation(v)
			c.push(newRemoveCommand(c, LabelDeleteRelation, snap))
		}
	}
	c.logger.Debug("elements deleted", slog.Int("count", len(elements)))
}

// PasteElements inserts a fresh duplicate of the container's roots.
//
// Description:
//
//	The roots are cloned again so the container stays reusable. Every
//	pasted element gets a new UID; relation endpoints inside the batch are
//	remapped to the new UIDs, and relations with an endpoint outside the
//	batch are dropped, including relations nested in pasted objects.
//	Objects go into owner if it is a package, otherwise into owner's
//	nearest package; relations go into owner. Pasted packages are marked
//	loaded. All objects are inserted before any relation, so a relation
//	is never indexed ahead of its endpoints whatever the container order.
//	Everything is recorded as one "Paste" step.
//
// Outputs:
//
//	[]model.Element - The inserted roots, in container order.
//	error - ErrNilElement, ErrNotInModel or ErrPackageUnloaded. Nothing is
//	        inserted on error.
func (c *Controller) PasteElements(owner *model.Object, container *transfer.Container) ([]model.Element, error) {
	if err := c.requireRelationOwner(owner); err != nil {
		return nil, c.finish("paste", err)
	}
	target := owner.NearestPackage()
	if target == nil {
		return nil, c.finish("paste", fmt.Errorf("%w: no package above %s", ErrNotAPackage, owner))
	}
	if target.IsUnloaded() {
		return nil, c.finish("paste", fmt.Errorf("%w: %s", ErrPackageUnloaded, target))
	}

	batch := make([]model.Element, 0, container.Len())
	for _, e := range container.Roots() {
		batch = append(batch, model.Clone(e))
	}
	remap := renewBatch(batch)
	batch, dropped := rewriteBatchRelations(batch, remap)

	// Objects go in before any relation so every endpoint resolves when
	// its relation is indexed.
	deferred := detachCrossRootRelations(batch)
	end := c.beginMacro(LabelPaste)
	for _, e := range batch {
		if v, ok := e.(*model.Object); ok {
			row := c.insertObject(target, -1, v)
			c.push(newAddCommand(c, LabelAddObject, snapshotObject(v, target.UID(), row)))
		}
	}
	for _, d := range deferred {
		row := c.insertRelation(d.owner, d.row, d.relation)
		c.push(newAddCommand(c, LabelAddRelation, snapshotRelation(d.relation, d.owner.UID(), row)))
	}
	for _, e := range batch {
		if v, ok := e.(*model.Relation); ok {
			row := c.insertRelation(owner, -1, v)
			c.push(newAddCommand(c, LabelAddRelation, snapshotRelation(v, owner.UID(), row)))
		}
	}
	end()

	recordPasted(len(batch))
	c.logger.Debug("elements pasted",
		slog.String("owner", owner.UID().String()),
		slog.Int("roots", len(batch)),
		slog.Int("dropped_relations", dropped))
	return batch, c.finish("paste", nil)
}

// heldRelation is a relation taken out of a pasted object until every
// object of the batch is indexed.
type heldRelation struct {
	owner    *model.Object
	row      int
	relation *model.Relation
}

// detachCrossRootRelations removes, from every object root of the batch,
// the nested relations with an endpoint outside that root. They are
// returned in an order that puts each back at its original row when
// reinserted front to back.
func detachCrossRootRelations(batch []model.Element) []heldRelation {
	var held []heldRelation
	for _, root := range batch {
		o, ok := root.(*model.Object)
		if !ok {
			continue
		}
		local := make(map[uid.UID]struct{})
		for _, n := range subtreeObjects(o) {
			local[n.UID()] = struct{}{}
		}
		for _, n := range subtreeObjects(o) {
			for row, r := range n.Relations() {
				_, okA := local[r.EndA()]
				_, okB := local[r.EndB()]
				if !okA || !okB {
					held = append(held, heldRelation{owner: n, row: row, relation: r})
				}
			}
		}
	}
	for i := len(held) - 1; i >= 0; i-- {
		held[i].owner.RemoveRelationAt(held[i].row)
	}
	return held
}

// renewBatch gives every element in the batch a fresh UID, clears the
// unloaded marker of pasted packages, and returns the old-to-new map.
func renewBatch(batch []model.Element) map[uid.UID]uid.UID {
	remap := make(map[uid.UID]uid.UID)
	for _, root := range batch {
		model.Walk(root, func(e model.Element) bool {
			old := e.UID()
			remap[old] = e.RenewUID()
			if o, ok := e.(*model.Object); ok {
				o.SetUnloaded(false)
			}
			return true
		})
	}
	return remap
}

// rewriteBatchRelations remaps relation endpoints and removes relations
// that point outside the batch. Only object UIDs count as batch members.
// It returns the surviving roots and the number of relations dropped.
func rewriteBatchRelations(batch []model.Element, remap map[uid.UID]uid.UID) ([]model.Element, int) {
	objectIDs := make(map[uid.UID]struct{})
	for _, root := range batch {
		model.Walk(root, func(e model.Element) bool {
			if o, ok := e.(*model.Object); ok {
				objectIDs[o.UID()] = struct{}{}
			}
			return true
		})
	}

	// rewrite reports whether r can be kept.
	rewrite := func(r *model.Relation) bool {
		a, okA := remap[r.EndA()]
		b, okB := remap[r.EndB()]
		if !okA || !okB {
			return false
		}
		if _, ok := objectIDs[a]; !ok {
			return false
		}
		if _, ok := objectIDs[b]; !ok {
			return false
		}
		r.SetEndA(a)
		r.SetEndB(b)
		return true
	}

	dropped := 0
	kept := batch[:0]
	for _, root := range batch {
		switch v := root.(type) {
		case *model.Relation:
			if !rewrite(v) {
				dropped++
				continue
			}
		case *model.Object:
			model.Walk(v, func(e model.Element) bool {
				o, ok := e.(*model.Object)
				if !ok {
					return true
				}
				for i := len(o.Relations()) - 1; i >= 0; i-- {
					if !rewrite(o.Relations()[i]) {
						o.RemoveRelationAt(i)
						dropped++
					}
				}
				return true
			})
		}
		kept = append(kept, root)
	}
	return kept, dropped
}
