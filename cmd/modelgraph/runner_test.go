// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/modelgraph/services/modelgraph/clipboard"
	"github.com/AleutianAI/modelgraph/services/modelgraph/config"
	"github.com/AleutianAI/modelgraph/services/modelgraph/controller"
	"github.com/AleutianAI/modelgraph/services/modelgraph/undo"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Controller.VerifyEachMutation = true
	return cfg
}

func memoryStore(t *testing.T) *clipboard.Store {
	t.Helper()
	s, err := clipboard.Open(clipboard.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func runYAML(t *testing.T, cfg config.Config, store *clipboard.Store, doc string) (*Runner, Result, error) {
	t.Helper()
	s, err := ParseScenario([]byte(doc))
	require.NoError(t, err)
	s.Name = t.Name()
	r, err := NewRunner(s, cfg, store, quietLogger())
	require.NoError(t, err)
	res, err := r.Run(context.Background())
	return r, res, err
}

func TestParseScenario_Versions(t *testing.T) {
	tests := []struct {
		version string
		ok      bool
	}{
		{"", true},
		{"1", true},
		{"1.4", true},
		{"v1.0.0", true},
		{"2.0", false},
		{"v0.9", false},
		{"latest", false},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			_, err := ParseScenario([]byte("version: \"" + tt.version + "\"\nsteps: []\n"))
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrUnsupportedVersion)
			}
		})
	}
}

func TestParseScenario_Rejects(t *testing.T) {
	_, err := ParseScenario([]byte("steps:\n  - {op: explode}\n"))
	assert.ErrorIs(t, err, ErrUnknownOp)

	_, err = ParseScenario([]byte("steps:\n  - {op: verify, colour: red}\n"))
	assert.Error(t, err, "unknown step fields are rejected")
}

func TestLoadScenario_NameFromFile(t *testing.T) {
	s, err := LoadScenario("testdata/broken.yaml")
	require.NoError(t, err)
	assert.Equal(t, "broken", s.Name)
	assert.Len(t, s.Steps, 2)
}

func TestRunner_Basics(t *testing.T) {
	s, err := LoadScenario("testdata/basics.yaml")
	require.NoError(t, err)
	r, err := NewRunner(s, testConfig(), memoryStore(t), quietLogger())
	require.NoError(t, err)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{
		Scenario:  "basics",
		Steps:     21,
		Objects:   11,
		Relations: 4,
		UndoDepth: 1,
	}, res)
	require.NoError(t, r.Tree().Verify())
	assert.Equal(t, 15, r.Tree().Len())
}

func TestRunner_StepErrorsCarryContext(t *testing.T) {
	_, _, err := runYAML(t, testConfig(), nil, `
steps:
  - {op: add-package, name: lib}
  - {op: move, target: root, parent: lib}
`)
	require.Error(t, err)
	assert.ErrorIs(t, err, controller.ErrCyclicMove)
	assert.Contains(t, err.Error(), "step 1 (move)")
}

func TestRunner_ExpectError(t *testing.T) {
	_, _, err := runYAML(t, testConfig(), nil, `
steps:
  - {op: add-class, name: A}
  - {op: add-class, name: B, parent: A, expect_error: true}
  - {op: undo, expect_error: false}
  - {op: undo, expect_error: true}
`)
	require.NoError(t, err)

	_, _, err = runYAML(t, testConfig(), nil, "steps:\n  - {op: undo}\n")
	assert.ErrorIs(t, err, undo.ErrNothingToUndo)

	_, _, err = runYAML(t, testConfig(), nil, `
steps:
  - {op: add-class, name: A, expect_error: true}
`)
	assert.ErrorIs(t, err, ErrExpectedFailure)
}

func TestRunner_References(t *testing.T) {
	_, _, err := runYAML(t, testConfig(), nil, `
steps:
  - {op: delete, targets: [ghost]}
`)
	assert.ErrorIs(t, err, ErrUnknownRef)

	_, _, err = runYAML(t, testConfig(), nil, `
steps:
  - {op: add-class, name: A}
  - {op: delete, target: A}
  - {op: rename, target: A, name: again}
`)
	assert.ErrorIs(t, err, ErrUnknownRef, "a deleted element no longer resolves")

	_, _, err = runYAML(t, testConfig(), nil, `
steps:
  - {op: add-class, name: A}
  - {op: add-class, name: B}
  - {op: add-dependency, a: A, b: B, ref: d}
  - {op: add-class, name: C, parent: d}
`)
	assert.ErrorIs(t, err, ErrStepArgument)

	_, _, err = runYAML(t, testConfig(), nil, "steps:\n  - {op: add-class}\n")
	assert.ErrorIs(t, err, ErrStepArgument)
}

func TestRunner_RelationStepsAndRename(t *testing.T) {
	r, res, err := runYAML(t, testConfig(), nil, `
steps:
  - {op: add-package, name: lib}
  - {op: add-class, name: Base, parent: lib}
  - {op: add-class, name: Derived, parent: lib}
  - {op: add-inheritance, a: Derived, b: Base, ref: inh}
  - {op: add-dependency, a: Derived, b: Base, parent: root, name: uses}
  - {op: rename, target: uses, name: needs}
  - {op: move, target: inh, parent: root}
  - {op: verify}
`)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Relations)

	rels := r.Controller().RootPackage().Relations()
	require.Len(t, rels, 2)
	assert.Equal(t, "needs", rels[0].Name())
}

func TestRunner_UndoDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Undo.Enabled = false
	_, res, err := runYAML(t, cfg, nil, `
steps:
  - {op: add-class, name: A}
  - {op: undo, expect_error: true}
  - {op: redo, expect_error: true}
`)
	require.NoError(t, err)
	assert.Equal(t, 0, res.UndoDepth)
}

func TestRunner_CutPasteAndRedo(t *testing.T) {
	_, res, err := runYAML(t, testConfig(), nil, `
steps:
  - {op: add-package, name: src}
  - {op: add-package, name: dst}
  - {op: add-class, name: A, parent: src}
  - {op: cut, target: A}
  - {op: paste, parent: dst, refs: [A2]}
  - {op: rename, target: A2, name: Moved}
  - {op: undo}
  - {op: undo}
  - {op: redo}
  - {op: verify}
`)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Objects, "root, src, dst and the pasted copy")
	assert.Equal(t, 2, res.UndoDepth, "cut and paste stay, the rename is undone")
}

func TestRunner_ClipboardSlots(t *testing.T) {
	store := memoryStore(t)
	_, _, err := runYAML(t, testConfig(), store, `
steps:
  - {op: add-class, name: A}
  - {op: paste, expect_error: true}
  - {op: clipboard-put, slot: main, expect_error: true}
  - {op: copy, target: A}
  - {op: clipboard-put, slot: main}
`)
	require.NoError(t, err)

	_, res, err := runYAML(t, testConfig(), store, `
steps:
  - {op: clipboard-get, slot: missing, expect_error: true}
  - {op: clipboard-get, slot: main}
  - {op: paste, refs: [A]}
  - {op: rename, target: A, name: FromSlot}
`)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Objects)

	_, _, err = runYAML(t, testConfig(), nil, "steps:\n  - {op: clipboard-get, slot: main}\n")
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestRunner_Cancelled(t *testing.T) {
	s, err := ParseScenario([]byte("steps:\n  - {op: verify}\n"))
	require.NoError(t, err)
	r, err := NewRunner(s, testConfig(), nil, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRenderTree(t *testing.T) {
	r, _, err := runYAML(t, testConfig(), nil, `
steps:
  - {op: add-package, name: lib}
  - {op: add-class, name: A, parent: lib}
  - {op: add-class, name: B, parent: lib}
  - {op: add-dependency, a: A, b: B}
`)
	require.NoError(t, err)

	plain := lipgloss.NewStyle()
	var buf bytes.Buffer
	renderTree(&buf, "demo", r.Tree(), treeStyles{
		Package: plain, Object: plain, Relation: plain, Guide: plain, Header: plain,
	})
	assert.Equal(t, strings.Join([]string{
		"demo",
		"[package] root",
		"├ [package] lib",
		"│ ├ [class] A",
		"│ ├ [class] B",
		"│ ├ [dependency] A -> B",
		"",
	}, "\n"), buf.String())
}
