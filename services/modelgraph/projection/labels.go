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
	"strings"

	"github.com/AleutianAI/modelgraph/services/modelgraph/model"
	"github.com/AleutianAI/modelgraph/services/modelgraph/uid"
)

// labeler renders the display label of one element. Relation labels name
// their endpoints, resolved through lookup.
type labeler struct {
	lookup func(uid.UID) model.Element
	out    string
}

// Label returns the display label of e. Endpoints that do not resolve are
// rendered as "?".
func Label(e model.Element, lookup func(uid.UID) model.Element) string {
	if e == nil {
		return ""
	}
	l := &labeler{lookup: lookup}
	e.Accept(l)
	return l.out
}

func decorate(e model.Element, name string) string {
	st := e.Stereotypes()
	if len(st) == 0 {
		return name
	}
	return "«" + strings.Join(st, ", ") + "» " + name
}

func (l *labeler) endName(id uid.UID) string {
	if l.lookup == nil {
		return "?"
	}
	o, ok := l.lookup(id).(*model.Object)
	if !ok || o == nil {
		return "?"
	}
	return o.Name()
}

func (l *labeler) VisitPackage(o *model.Object) {
	l.out = decorate(o, o.Name())
	if o.IsUnloaded() {
		l.out += " (unloaded)"
	}
}

func (l *labeler) VisitClass(o *model.Object) {
	name := o.Name()
	if d := o.Class; d != nil {
		if d.Namespace != "" {
			name = d.Namespace + "::" + name
		}
		if len(d.TemplateParameters) > 0 {
			name += "<" + strings.Join(d.TemplateParameters, ", ") + ">"
		}
	}
	l.out = decorate(o, name)
}

func (l *labeler) VisitComponent(o *model.Object) { l.out = decorate(o, o.Name()) }

func (l *labeler) VisitDiagram(o *model.Object) { l.out = decorate(o, o.Name()) }

func (l *labeler) VisitCanvasDiagram(o *model.Object) { l.out = decorate(o, o.Name()) }

func (l *labeler) VisitItem(o *model.Object) {
	name := o.Name()
	if o.Item != nil && o.Item.Variety != "" {
		name += " [" + o.Item.Variety + "]"
	}
	l.out = decorate(o, name)
}

func (l *labeler) relation(r *model.Relation, arrow string) {
	text := l.endName(r.EndA()) + " " + arrow + " " + l.endName(r.EndB())
	if r.Name() != "" {
		text = r.Name() + ": " + text
	}
	l.out = decorate(r, text)
}

func (l *labeler) VisitDependency(r *model.Relation) {
	arrow := "->"
	if r.Dependency != nil {
		switch r.Dependency.Direction {
		case model.DirectionBToA:
			arrow = "<-"
		case model.DirectionBidirectional:
			arrow = "<->"
		}
	}
	l.relation(r, arrow)
}

func (l *labeler) VisitInheritance(r *model.Relation) { l.relation(r, "--|>") }

func (l *labeler) VisitAssociation(r *model.Relation) {
	arrow := "--"
	if d := r.Association; d != nil {
		arrow = endMark(d.A, true) + arrow + endMark(d.B, false)
		if d.A.Cardinality != "" || d.B.Cardinality != "" {
			arrow = "[" + d.A.Cardinality + "] " + arrow + " [" + d.B.Cardinality + "]"
		}
	}
	l.relation(r, arrow)
}

// endMark draws the decoration of one association end.
func endMark(end model.AssociationEnd, left bool) string {
	switch end.Kind {
	case model.EndKindAggregation:
		return "o"
	case model.EndKindComposition:
		return "*"
	}
	if end.Navigable {
		if left {
			return "<"
		}
		return ">"
	}
	return ""
}
