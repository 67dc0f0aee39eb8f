// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/modelgraph/services/modelgraph/model"
	"github.com/AleutianAI/modelgraph/services/modelgraph/uid"
)

func TestSelection_DropsDuplicates(t *testing.T) {
	a, b, owner := uid.New(), uid.New(), uid.New()

	var s Selection
	assert.True(t, s.IsEmpty())
	assert.True(t, s.Append(a, owner))
	assert.True(t, s.Append(b, owner))
	assert.False(t, s.Append(a, uid.New()))

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []Index{{a, owner}, {b, owner}}, s.Indices())
	assert.True(t, s.Contains(a))
	assert.False(t, s.Contains(owner))
}

func TestNewSelection(t *testing.T) {
	a := uid.New()
	s := NewSelection(Index{Element: a}, Index{Element: a})
	assert.Equal(t, 1, s.Len())

	var nilSel *Selection
	assert.Equal(t, 0, nilSel.Len())
	assert.False(t, nilSel.Contains(a))
	assert.Nil(t, nilSel.Indices())
}

func TestContainer_RootFlags(t *testing.T) {
	pkg := model.NewPackage("p")
	cls := model.NewClass("C")
	pkg.InsertChild(-1, cls)
	loose := model.NewClass("Loose")
	rel := model.NewDependency(cls.UID(), loose.UID())
	pkg.InsertRelation(-1, rel)

	var c Container
	// Submitting the nested class first and its package later still ends
	// with the class marked non-root.
	c.Submit(cls)
	require.True(t, c.Entries()[0].Root)

	c.Submit(pkg)
	c.Submit(loose)
	c.Submit(rel)

	require.Equal(t, 4, c.Len())
	assert.False(t, c.Entries()[0].Root, "class nested in submitted package")
	assert.True(t, c.Entries()[1].Root)
	assert.True(t, c.Entries()[2].Root)
	assert.False(t, c.Entries()[3].Root, "relation owned by submitted package")

	assert.Equal(t, []model.Element{pkg, loose}, c.Roots())
	assert.Equal(t, []model.Element{cls, pkg, loose, rel}, c.Elements())
}

func TestContainer_SubmitEntryKeepsFlags(t *testing.T) {
	var c Container
	cls := model.NewClass("C")
	c.SubmitEntry(Entry{Element: cls, Root: false})
	c.SubmitEntry(Entry{})

	require.Equal(t, 1, c.Len())
	assert.False(t, c.Entries()[0].Root)
	assert.Empty(t, c.Roots())

	c.Submit(nil)
	assert.Equal(t, 1, c.Len())
}
