// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package undo provides a bounded undo/redo stack with macro grouping.
//
// Commands are recorded after they have been applied: Push never calls
// Redo. Compound edits are grouped between BeginMacro and EndMacro so that
// one Undo reverts all of them. Macros nest; the outermost label names
// the recorded step.
//
// # Thread Safety
//
// Stack is NOT safe for concurrent use. It follows the single-writer
// discipline of the controller that feeds it.
package undo

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/modelgraph/services/modelgraph/history"
)

// DefaultMaxDepth is the undo depth used when none is configured.
const DefaultMaxDepth = 100

var (
	// ErrNothingToUndo is returned by Undo on an empty stack.
	ErrNothingToUndo = errors.New("nothing to undo")

	// ErrNothingToRedo is returned by Redo on an empty redo list.
	ErrNothingToRedo = errors.New("nothing to redo")

	// ErrMacroOpen is returned by Undo and Redo while a macro is being
	// recorded.
	ErrMacroOpen = errors.New("macro still open")

	// ErrNoOpenMacro is returned by EndMacro without a matching BeginMacro.
	ErrNoOpenMacro = errors.New("no open macro")
)

var undoOperations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modelgraph_undo_operations_total",
	Help: "Undo stack operations by kind",
}, []string{"operation"})

// Command is one recorded, reversible edit.
type Command interface {
	// Label is the user-facing name of the edit, e.g. "Delete Object".
	Label() string

	// Undo reverts the edit.
	Undo() error

	// Redo re-applies the edit after an Undo.
	Redo() error
}

// Macro is a labeled group of commands undone and redone as one step.
type Macro struct {
	label    string
	commands []Command
}

// Label returns the macro label.
func (m *Macro) Label() string { return m.label }

// Commands returns the grouped commands in recording order.
func (m *Macro) Commands() []Command { return m.commands }

// Undo reverts the grouped commands newest first.
func (m *Macro) Undo() error {
	for i := len(m.commands) - 1; i >= 0; i-- {
		if err := m.commands[i].Undo(); err != nil {
			return fmt.Errorf("undo %q step %d: %w", m.label, i, err)
		}
	}
	return nil
}

// Redo re-applies the grouped commands oldest first.
func (m *Macro) Redo() error {
	for i, c := range m.commands {
		if err := c.Redo(); err != nil {
			return fmt.Errorf("redo %q step %d: %w", m.label, i, err)
		}
	}
	return nil
}

// Stack records commands for undo and redo.
//
// Description:
//
//	The undo side is a history.RingBuffer used as a LIFO; once MaxDepth
//	steps are recorded the oldest step is dropped. The redo side is
//	cleared by every new Push.
type Stack struct {
	undo   *history.RingBuffer[Command]
	redo   []Command
	open   []*Macro
	logger *slog.Logger
}

// Option configures a Stack.
type Option func(*Stack)

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Stack) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStack creates a stack keeping at most maxDepth undo steps.
// A non-positive maxDepth means DefaultMaxDepth.
func NewStack(maxDepth int, opts ...Option) *Stack {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	s := &Stack{
		undo:   history.NewRingBuffer[Command](maxDepth),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "undo.Stack")
	return s
}

// Push records an already-applied command and clears the redo list.
// While a macro is open, the command joins the innermost macro instead.
func (s *Stack) Push(cmd Command) {
	if cmd == nil {
		return
	}
	if n := len(s.open); n > 0 {
		s.open[n-1].commands = append(s.open[n-1].commands, cmd)
		return
	}
	s.record(cmd)
}

func (s *Stack) record(cmd Command) {
	s.redo = s.redo[:0]
	if dropped, evicted := s.undo.Push(cmd); evicted {
		undoOperations.WithLabelValues("evict").Inc()
		s.logger.Debug("undo depth exceeded, dropping oldest step",
			slog.String("label", dropped.Label()))
	}
	undoOperations.WithLabelValues("push").Inc()
}

// BeginMacro opens a macro. Nested macros merge into the enclosing one.
func (s *Stack) BeginMacro(label string) {
	s.open = append(s.open, &Macro{label: label})
}

// EndMacro closes the innermost macro. Closing the outermost macro records
// it as one step; an empty macro records nothing.
func (s *Stack) EndMacro() error {
	n := len(s.open)
	if n == 0 {
		return ErrNoOpenMacro
	}
	m := s.open[n-1]
	s.open = s.open[:n-1]
	if n > 1 {
		parent := s.open[n-2]
		parent.commands = append(parent.commands, m.commands...)
		return nil
	}
	if len(m.commands) > 0 {
		s.record(m)
	}
	return nil
}

// InMacro reports whether a macro is open.
func (s *Stack) InMacro() bool { return len(s.open) > 0 }

// Undo reverts the newest step and moves it to the redo list.
//
// Outputs:
//
//	error - ErrNothingToUndo, ErrMacroOpen, or the command's own error. A
//	        failing step is dropped from the history.
func (s *Stack) Undo() error {
	if s.InMacro() {
		return ErrMacroOpen
	}
	cmd, ok := s.undo.PopNewest()
	if !ok {
		return ErrNothingToUndo
	}
	undoOperations.WithLabelValues("undo").Inc()
	if err := cmd.Undo(); err != nil {
		s.logger.Error("undo failed", slog.String("label", cmd.Label()), slog.String("error", err.Error()))
		return fmt.Errorf("undo %q: %w", cmd.Label(), err)
	}
	s.redo = append(s.redo, cmd)
	return nil
}

// Redo re-applies the newest undone step.
func (s *Stack) Redo() error {
	if s.InMacro() {
		return ErrMacroOpen
	}
	n := len(s.redo)
	if n == 0 {
		return ErrNothingToRedo
	}
	cmd := s.redo[n-1]
	s.redo = s.redo[:n-1]
	undoOperations.WithLabelValues("redo").Inc()
	if err := cmd.Redo(); err != nil {
		s.logger.Error("redo failed", slog.String("label", cmd.Label()), slog.String("error", err.Error()))
		return fmt.Errorf("redo %q: %w", cmd.Label(), err)
	}
	s.undo.Push(cmd)
	return nil
}

// CanUndo reports whether Undo has a step to revert.
func (s *Stack) CanUndo() bool { return !s.InMacro() && s.undo.Len() > 0 }

// CanRedo reports whether Redo has a step to re-apply.
func (s *Stack) CanRedo() bool { return !s.InMacro() && len(s.redo) > 0 }

// UndoLabel returns the label of the step Undo would revert, or "".
func (s *Stack) UndoLabel() string {
	if cmd, ok := s.undo.PeekNewest(); ok {
		return cmd.Label()
	}
	return ""
}

// RedoLabel returns the label of the step Redo would re-apply, or "".
func (s *Stack) RedoLabel() string {
	if n := len(s.redo); n > 0 {
		return s.redo[n-1].Label()
	}
	return ""
}

// Labels returns the undo labels oldest first.
func (s *Stack) Labels() []string {
	items := s.undo.Items()
	out := make([]string, len(items))
	for i, c := range items {
		out[i] = c.Label()
	}
	return out
}

// Len returns the number of undo steps.
func (s *Stack) Len() int { return s.undo.Len() }

// Clear drops all undo and redo steps. Commands already collected by an
// open macro are dropped too, but the macro stays open.
func (s *Stack) Clear() {
	s.undo.Clear()
	s.redo = nil
	for _, m := range s.open {
		m.commands = nil
	}
	undoOperations.WithLabelValues("clear").Inc()
}
