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
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/modelgraph/services/modelgraph/clipboard"
	"github.com/AleutianAI/modelgraph/services/modelgraph/config"
	"github.com/AleutianAI/modelgraph/services/modelgraph/controller"
	"github.com/AleutianAI/modelgraph/services/modelgraph/model"
	"github.com/AleutianAI/modelgraph/services/modelgraph/projection"
	"github.com/AleutianAI/modelgraph/services/modelgraph/telemetry"
	"github.com/AleutianAI/modelgraph/services/modelgraph/transfer"
	"github.com/AleutianAI/modelgraph/services/modelgraph/uid"
	"github.com/AleutianAI/modelgraph/services/modelgraph/undo"
)

const tracerName = "modelgraph.cli"

var (
	ErrUndoDisabled   = errors.New("undo is disabled")
	ErrEmptyClipboard = errors.New("nothing copied")
	ErrNoStore        = errors.New("no clipboard store")
	ErrSlotNotFound   = errors.New("clipboard slot not found")
)

type stepHandler func(r *Runner, ctx context.Context, s Step) error

var stepHandlers = map[string]stepHandler{
	"add-package":     addObjectStep(model.NewPackage),
	"add-class":       addObjectStep(model.NewClass),
	"add-component":   addObjectStep(model.NewComponent),
	"add-diagram":     addObjectStep(model.NewDiagram),
	"add-item":        (*Runner).addItem,
	"add-dependency":  addRelationStep(model.NewDependency),
	"add-inheritance": addRelationStep(model.NewInheritance),
	"add-association": addRelationStep(model.NewAssociation),
	"rename":          (*Runner).rename,
	"move":            (*Runner).move,
	"delete":          (*Runner).delete,
	"copy":            (*Runner).copy,
	"cut":             (*Runner).cut,
	"paste":           (*Runner).paste,
	"undo":            (*Runner).undoStep,
	"redo":            (*Runner).redoStep,
	"unload":          (*Runner).unload,
	"load":            (*Runner).load,
	"verify":          (*Runner).verify,
	"clipboard-put":   (*Runner).clipboardPut,
	"clipboard-get":   (*Runner).clipboardGet,
}

// Result summarizes a finished scenario.
type Result struct {
	Scenario  string
	Steps     int
	Objects   int
	Relations int
	UndoDepth int
	Resyncs   int
}

// Runner executes one scenario against its own controller. A Runner is
// not safe for concurrent use; the clipboard store may be shared.
type Runner struct {
	scenario *Scenario
	ctrl     *controller.Controller
	undo     *undo.Stack
	tree     *projection.Tree
	store    *clipboard.Store
	refs     map[string]uid.UID
	clip     *transfer.Container
	logger   *slog.Logger
}

// NewRunner builds a controller, undo stack and projection for s.
//
// Inputs:
//
//	s - The scenario to run.
//	cfg - Controller and undo settings are taken from here.
//	store - Clipboard store for clipboard-put/get. May be nil.
//	logger - Base logger. Nil uses slog.Default().
func NewRunner(s *Scenario, cfg config.Config, store *clipboard.Store, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		scenario: s,
		store:    store,
		refs:     make(map[string]uid.UID),
		logger:   logger.With("component", "cli.Runner", "scenario", s.Name),
	}

	opts := []controller.Option{
		controller.WithLogger(logger),
		controller.WithVerifyEachMutation(cfg.Controller.VerifyEachMutation),
	}
	if cfg.Undo.Enabled {
		r.undo = undo.NewStack(cfg.Undo.MaxDepth, undo.WithLogger(logger))
		opts = append(opts, controller.WithUndo(r.undo))
	}
	ctrl, err := controller.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create controller: %w", err)
	}
	r.ctrl = ctrl
	r.tree = projection.New(ctrl, projection.WithLogger(logger))
	ctrl.AddListener(r.tree)
	return r, nil
}

// Controller returns the runner's controller.
func (r *Runner) Controller() *controller.Controller { return r.ctrl }

// Tree returns the runner's projection.
func (r *Runner) Tree() *projection.Tree { return r.tree }

// Run executes every step in order and stops at the first unexpected
// outcome. Each step is traced as its own span.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "scenario.run",
		trace.WithAttributes(attribute.String("scenario", r.scenario.Name)))
	var runErr error
	defer func() { telemetry.EndSpan(span, runErr) }()

	for i, step := range r.scenario.Steps {
		if err := ctx.Err(); err != nil {
			runErr = err
			return Result{}, err
		}
		if err := r.runStep(ctx, i, step); err != nil {
			runErr = fmt.Errorf("%s: step %d (%s): %w", r.scenario.Name, i, step.Op, err)
			return Result{}, runErr
		}
	}

	res := Result{
		Scenario:  r.scenario.Name,
		Steps:     len(r.scenario.Steps),
		Objects:   r.ctrl.ObjectCount(),
		Relations: r.ctrl.RelationCount(),
		Resyncs:   r.tree.Resyncs(),
	}
	if r.undo != nil {
		res.UndoDepth = r.undo.Len()
	}
	r.logger.Info("scenario finished",
		slog.Int("steps", res.Steps),
		slog.Int("objects", res.Objects),
		slog.Int("relations", res.Relations))
	return res, nil
}

func (r *Runner) runStep(ctx context.Context, i int, s Step) error {
	handler, ok := stepHandlers[s.Op]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOp, s.Op)
	}
	ctx, span := telemetry.StartSpan(ctx, tracerName, "scenario.step",
		trace.WithAttributes(
			attribute.Int("step.index", i),
			attribute.String("step.op", s.Op),
		))

	err := handler(r, ctx, s)
	switch {
	case err != nil && s.ExpectError:
		r.logger.Debug("expected failure", slog.Int("step", i), slog.String("error", err.Error()))
		telemetry.EndSpan(span, nil)
		return nil
	case err == nil && s.ExpectError:
		err = ErrExpectedFailure
	}
	telemetry.EndSpan(span, err)
	return err
}

// resolve maps a reference to a live element.
func (r *Runner) resolve(ref string) (model.Element, error) {
	if ref == "" || ref == "root" {
		return r.ctrl.RootPackage(), nil
	}
	id, ok := r.refs[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRef, ref)
	}
	e := r.ctrl.FindElement(id)
	if e == nil {
		return nil, fmt.Errorf("%w: %q is not in the model", ErrUnknownRef, ref)
	}
	return e, nil
}

func (r *Runner) resolveObject(ref string) (*model.Object, error) {
	e, err := r.resolve(ref)
	if err != nil {
		return nil, err
	}
	obj, ok := e.(*model.Object)
	if !ok {
		return nil, fmt.Errorf("%w: %q is a relation", ErrStepArgument, ref)
	}
	return obj, nil
}

func (r *Runner) bind(s Step, fallback string, e model.Element) {
	ref := s.Ref
	if ref == "" {
		ref = fallback
	}
	if ref != "" {
		r.refs[ref] = e.UID()
	}
}

func addObjectStep(create func(name string) *model.Object) stepHandler {
	return func(r *Runner, _ context.Context, s Step) error {
		return r.addObject(s, create(s.Name))
	}
}

func (r *Runner) addItem(_ context.Context, s Step) error {
	return r.addObject(s, model.NewItem(s.Name, s.Variety))
}

func (r *Runner) addObject(s Step, obj *model.Object) error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrStepArgument)
	}
	parent, err := r.resolveObject(s.Parent)
	if err != nil {
		return err
	}
	obj.SetStereotypes(s.Stereotypes)
	if err := r.ctrl.AddObject(parent, obj); err != nil {
		return err
	}
	r.bind(s, s.Name, obj)
	return nil
}

func addRelationStep(create func(a, b uid.UID) *model.Relation) stepHandler {
	return func(r *Runner, _ context.Context, s Step) error {
		a, err := r.resolveObject(s.A)
		if err != nil {
			return err
		}
		b, err := r.resolveObject(s.B)
		if err != nil {
			return err
		}
		owner := a.Owner()
		if s.Parent != "" || owner == nil {
			if owner, err = r.resolveObject(s.Parent); err != nil {
				return err
			}
		}
		rel := create(a.UID(), b.UID())
		rel.SetName(s.Name)
		rel.SetStereotypes(s.Stereotypes)
		if err := r.ctrl.AddRelation(owner, rel); err != nil {
			return err
		}
		r.bind(s, s.Name, rel)
		return nil
	}
}

func (r *Runner) rename(_ context.Context, s Step) error {
	e, err := r.resolve(s.Target)
	if err != nil {
		return err
	}
	switch v := e.(type) {
	case *model.Object:
		return r.ctrl.UpdateObject(v, func(o *model.Object) error {
			o.SetName(s.Name)
			return nil
		})
	case *model.Relation:
		return r.ctrl.UpdateRelation(v, func(rel *model.Relation) error {
			rel.SetName(s.Name)
			return nil
		})
	}
	return fmt.Errorf("%w: cannot rename %q", ErrStepArgument, s.Target)
}

func (r *Runner) move(_ context.Context, s Step) error {
	e, err := r.resolve(s.Target)
	if err != nil {
		return err
	}
	owner, err := r.resolveObject(s.Parent)
	if err != nil {
		return err
	}
	switch v := e.(type) {
	case *model.Object:
		return r.ctrl.MoveObject(owner, v)
	case *model.Relation:
		return r.ctrl.MoveRelation(owner, v)
	}
	return fmt.Errorf("%w: cannot move %q", ErrStepArgument, s.Target)
}

func (r *Runner) selection(s Step) (*transfer.Selection, error) {
	refs := s.Targets
	if s.Target != "" {
		refs = append([]string{s.Target}, refs...)
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: target or targets is required", ErrStepArgument)
	}
	sel := &transfer.Selection{}
	for _, ref := range refs {
		e, err := r.resolve(ref)
		if err != nil {
			return nil, err
		}
		sel.Append(e.UID(), r.ctrl.GetOwnerKey(e))
	}
	return sel, nil
}

func (r *Runner) delete(_ context.Context, s Step) error {
	sel, err := r.selection(s)
	if err != nil {
		return err
	}
	return r.ctrl.DeleteElements(sel)
}

func (r *Runner) copy(_ context.Context, s Step) error {
	sel, err := r.selection(s)
	if err != nil {
		return err
	}
	r.clip = r.ctrl.CopyElements(sel)
	return nil
}

func (r *Runner) cut(_ context.Context, s Step) error {
	sel, err := r.selection(s)
	if err != nil {
		return err
	}
	c, err := r.ctrl.CutElements(sel)
	if err != nil {
		return err
	}
	r.clip = c
	return nil
}

// paste binds the pasted roots, in order, to the names in Refs.
func (r *Runner) paste(_ context.Context, s Step) error {
	if r.clip.Len() == 0 {
		return ErrEmptyClipboard
	}
	owner, err := r.resolveObject(s.Parent)
	if err != nil {
		return err
	}
	pasted, err := r.ctrl.PasteElements(owner, r.clip)
	if err != nil {
		return err
	}
	for i, ref := range s.Refs {
		if i >= len(pasted) {
			break
		}
		r.refs[ref] = pasted[i].UID()
	}
	return nil
}

func (r *Runner) undoStep(_ context.Context, _ Step) error {
	if r.undo == nil {
		return ErrUndoDisabled
	}
	return r.undo.Undo()
}

func (r *Runner) redoStep(_ context.Context, _ Step) error {
	if r.undo == nil {
		return ErrUndoDisabled
	}
	return r.undo.Redo()
}

func (r *Runner) unload(_ context.Context, s Step) error {
	pkg, err := r.resolveObject(s.Target)
	if err != nil {
		return err
	}
	return r.ctrl.UnloadPackage(pkg)
}

func (r *Runner) load(_ context.Context, s Step) error {
	pkg, err := r.resolveObject(s.Target)
	if err != nil {
		return err
	}
	return r.ctrl.LoadPackage(pkg)
}

func (r *Runner) verify(_ context.Context, _ Step) error {
	if err := r.ctrl.VerifyModelIntegrity(); err != nil {
		return err
	}
	return r.tree.Verify()
}

func (r *Runner) clipboardPut(ctx context.Context, s Step) error {
	if r.store == nil {
		return ErrNoStore
	}
	if r.clip.Len() == 0 {
		return ErrEmptyClipboard
	}
	return r.store.Put(ctx, s.Slot, r.clip)
}

func (r *Runner) clipboardGet(ctx context.Context, s Step) error {
	if r.store == nil {
		return ErrNoStore
	}
	c, found, err := r.store.Get(ctx, s.Slot)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %q", ErrSlotNotFound, s.Slot)
	}
	r.clip = c
	return nil
}
