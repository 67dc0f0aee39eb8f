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

// UnloadPackage detaches pkg's contents from the indices.
//
// Description:
//
//	pkg itself stays indexed; its children (recursively) and its owned
//	relations are unindexed but remain in the tree, and pkg is marked
//	unloaded. Relations owned outside pkg that touch an unloaded object
//	would dangle, so they are removed from the tree. The change is
//	bracketed by reset notifications, is not undoable, and clears the
//	undo history. Open updates on anything that leaves the index are
//	ended before the reset begins.
//
// Outputs:
//
//	error - ErrNilElement, ErrNotInModel, ErrNotAPackage or
//	        ErrPackageUnloaded.
func (c *Controller) UnloadPackage(pkg *model.Object) error {
	if err := c.requirePackage(pkg, "package"); err != nil {
		return c.finish("unload", err)
	}

	c.closeUpdatesWithin(pkg, false)
	pruned := 0
	c.bracket(Event{Type: EventReset}, func() {
		inside := make(map[uid.UID]struct{})
		var contents []*model.Object
		for _, child := range pkg.Children() {
			for _, n := range subtreeObjects(child) {
				inside[n.UID()] = struct{}{}
				contents = append(contents, n)
			}
		}

		// Prune relations owned outside pkg's contents that touch them.
		for _, n := range contents {
			for _, rid := range c.sortedIncident(n.UID()) {
				r := c.relations[rid]
				if r == nil || ownedWithin(r, pkg) {
					continue
				}
				c.unmapRelation(r)
				owner := r.Owner()
				owner.RemoveRelationAt(owner.RelationRow(r))
				pruned++
				c.logger.Warn("pruned relation into unloaded package",
					slog.String("relation", r.String()),
					slog.String("package", pkg.UID().String()))
			}
		}

		for _, r := range pkg.Relations() {
			c.unmapRelation(r)
		}
		for _, child := range pkg.Children() {
			c.unmapSubtree(child)
		}
		pkg.SetUnloaded(true)
	})
	recordPruned(pruned)
	c.clearUndo()
	c.modified()
	c.logger.Info("package unloaded",
		slog.String("package", pkg.String()),
		slog.Int("pruned_relations", pruned))
	return c.finish("unload", nil)
}

// ownedWithin reports whether r is owned by pkg or by a descendant of pkg.
func ownedWithin(r *model.Relation, pkg *model.Object) bool {
	owner := r.Owner()
	return owner == pkg || model.IsAncestor(pkg, owner)
}

// LoadPackage re-indexes the contents of an unloaded package.
//
// Description:
//
//	Existing UIDs are kept; this is the inverse of UnloadPackage, not a
//	paste. UID collisions are rejected before anything changes. Relations
//	inside pkg whose endpoints no longer resolve are removed from the
//	tree. Bracketed by reset notifications, not undoable, clears the undo
//	history.
//
// Outputs:
//
//	error - ErrNilElement, ErrNotInModel, ErrNotAPackage, ErrPackageLoaded
//	        or ErrDuplicateUID.
func (c *Controller) LoadPackage(pkg *model.Object) error {
	if err := c.requireObject(pkg, "package"); err != nil {
		return c.finish("load", err)
	}
	if !pkg.IsPackage() {
		return c.finish("load", fmt.Errorf("%w: %s", ErrNotAPackage, pkg))
	}
	if !pkg.IsUnloaded() {
		return c.finish("load", fmt.Errorf("%w: %s", ErrPackageLoaded, pkg))
	}

	// Check the contents as if pkg were loaded, without mutating it.
	staged := model.NewPackage("")
	for _, child := range pkg.Children() {
		staged.InsertChild(-1, model.CloneObject(child))
	}
	for _, r := range pkg.Relations() {
		staged.InsertRelation(-1, model.CloneRelation(r))
	}
	if err := checkSubtreeUIDs(staged, nil); err != nil {
		return c.finish("load", err)
	}
	for _, n := range subtreeObjects(staged)[1:] {
		if c.isIndexed(n.UID()) {
			return c.finish("load", fmt.Errorf("%w: %s already indexed", ErrDuplicateUID, n.UID()))
		}
	}
	for _, r := range subtreeRelations(staged) {
		if c.isIndexed(r.UID()) {
			return c.finish("load", fmt.Errorf("%w: %s already indexed", ErrDuplicateUID, r.UID()))
		}
	}

	pruned := 0
	c.bracket(Event{Type: EventReset}, func() {
		pkg.SetUnloaded(false)
		for _, child := range pkg.Children() {
			c.mapObjects(child)
		}
		pruned = c.mapRelationsPruning(subtreeRelations(pkg))
	})
	recordPruned(pruned)
	c.clearUndo()
	c.modified()
	c.logger.Info("package loaded",
		slog.String("package", pkg.String()),
		slog.Int("pruned_relations", pruned))
	return c.finish("load", nil)
}
