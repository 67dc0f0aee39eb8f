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

// Visitor has one method per concrete element kind. Adding a kind adds a
// method here, so every implementation fails to compile until it handles
// the new kind.
type Visitor interface {
	VisitPackage(o *Object)
	VisitClass(o *Object)
	VisitComponent(o *Object)
	VisitDiagram(o *Object)
	VisitCanvasDiagram(o *Object)
	VisitItem(o *Object)
	VisitDependency(r *Relation)
	VisitInheritance(r *Relation)
	VisitAssociation(r *Relation)
}

// ObjectVisitor routes every object kind to VisitObject and every relation
// kind to VisitRelation. Nil callbacks are skipped.
type ObjectVisitor struct {
	VisitObject   func(o *Object)
	VisitRelation func(r *Relation)
}

func (v ObjectVisitor) object(o *Object) {
	if v.VisitObject != nil {
		v.VisitObject(o)
	}
}

func (v ObjectVisitor) relation(r *Relation) {
	if v.VisitRelation != nil {
		v.VisitRelation(r)
	}
}

func (v ObjectVisitor) VisitPackage(o *Object)       { v.object(o) }
func (v ObjectVisitor) VisitClass(o *Object)         { v.object(o) }
func (v ObjectVisitor) VisitComponent(o *Object)     { v.object(o) }
func (v ObjectVisitor) VisitDiagram(o *Object)       { v.object(o) }
func (v ObjectVisitor) VisitCanvasDiagram(o *Object) { v.object(o) }
func (v ObjectVisitor) VisitItem(o *Object)          { v.object(o) }
func (v ObjectVisitor) VisitDependency(r *Relation)  { v.relation(r) }
func (v ObjectVisitor) VisitInheritance(r *Relation) { v.relation(r) }
func (v ObjectVisitor) VisitAssociation(r *Relation) { v.relation(r) }
