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
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/modelgraph/services/modelgraph/model"
	"github.com/AleutianAI/modelgraph/services/modelgraph/uid"
	"github.com/AleutianAI/modelgraph/services/modelgraph/undo"
)

// recorder collects events and checks that brackets never interleave.
type recorder struct {
	t      *testing.T
	events []Event
	open   []EventType
}

func (r *recorder) HandleEvent(ev Event) {
	r.events = append(r.events, ev)
	switch ev.Phase {
	case PhaseBegin:
		r.open = append(r.open, ev.Type)
	case PhaseEnd:
		if assert.NotEmpty(r.t, r.open, "end %s without begin", ev.Type) {
			top := r.open[len(r.open)-1]
			assert.Equal(r.t, top, ev.Type, "end %s closes begin %s", ev.Type, top)
			r.open = r.open[:len(r.open)-1]
		}
	}
}

func (r *recorder) reset() { r.events = nil }

// begins returns the types of all begin events, in order.
func (r *recorder) begins() []EventType {
	var out []EventType
	for _, ev := range r.events {
		if ev.Phase == PhaseBegin {
			out = append(out, ev.Type)
		}
	}
	return out
}

// notices returns all notice events of the given type.
func (r *recorder) notices(typ EventType) []Event {
	var out []Event
	for _, ev := range r.events {
		if ev.Phase == PhaseNotice && ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	t    *testing.T
	c    *Controller
	undo *undo.Stack
	rec  *recorder
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFixture builds a controller that verifies integrity after every
// mutation and checks bracket matching on every event.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	rec := &recorder{t: t}
	stack := undo.NewStack(50, undo.WithLogger(quietLogger()))
	all := append([]Option{
		WithLogger(quietLogger()),
		WithUndo(stack),
		WithListener(rec),
		WithVerifyEachMutation(true),
	}, opts...)
	c, err := New(all...)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.Empty(t, rec.open, "unterminated notification bracket")
		assert.NoError(t, c.VerifyModelIntegrity())
	})
	rec.reset()
	return &fixture{t: t, c: c, undo: stack, rec: rec}
}

func (f *fixture) root() *model.Object { return f.c.RootPackage() }

func (f *fixture) pkg(parent *model.Object, name string) *model.Object {
	f.t.Helper()
	p := model.NewPackage(name)
	require.NoError(f.t, f.c.AddObject(parent, p))
	return p
}

func (f *fixture) class(parent *model.Object, name string) *model.Object {
	f.t.Helper()
	o := model.NewClass(name)
	require.NoError(f.t, f.c.AddObject(parent, o))
	return o
}

func (f *fixture) dep(owner, a, b *model.Object) *model.Relation {
	f.t.Helper()
	r := model.NewDependency(a.UID(), b.UID())
	require.NoError(f.t, f.c.AddRelation(owner, r))
	return r
}

// fixedUID returns a deterministic UID whose last byte is n.
func fixedUID(n int) uid.UID {
	return uid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012x", n))
}

// shape renders the structure of an element subtree without UIDs.
// Relation endpoints are rendered by the names of the objects they
// resolve to in names.
func shape(e model.Element, names map[uid.UID]string) string {
	var b strings.Builder
	var walk func(model.Element, int)
	walk = func(e model.Element, depth int) {
		indent := strings.Repeat("  ", depth)
		switch v := e.(type) {
		case *model.Object:
			fmt.Fprintf(&b, "%s%s %s\n", indent, v.Kind(), v.Name())
			var rels []string
			for _, r := range v.Relations() {
				rels = append(rels, fmt.Sprintf("%s  %s %s->%s", indent, r.Kind(), names[r.EndA()], names[r.EndB()]))
			}
			sort.Strings(rels)
			for _, s := range rels {
				b.WriteString(s + "\n")
			}
			for _, child := range v.Children() {
				walk(child, depth+1)
			}
		case *model.Relation:
			fmt.Fprintf(&b, "%s%s %s->%s\n", indent, v.Kind(), names[v.EndA()], names[v.EndB()])
		}
	}
	walk(e, 0)
	return b.String()
}

// nameIndex maps every object UID under the given roots to its name.
func nameIndex(roots ...model.Element) map[uid.UID]string {
	out := make(map[uid.UID]string)
	for _, root := range roots {
		model.Walk(root, func(e model.Element) bool {
			if o, ok := e.(*model.Object); ok {
				out[o.UID()] = o.Name()
			}
			return true
		})
	}
	return out
}

// subtreeUIDs collects every UID under e.
func subtreeUIDs(e model.Element) map[uid.UID]struct{} {
	out := make(map[uid.UID]struct{})
	model.Walk(e, func(d model.Element) bool {
		out[d.UID()] = struct{}{}
		return true
	})
	return out
}
