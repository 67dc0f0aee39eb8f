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
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/modelgraph/services/modelgraph/clipboard"
)

const watchDebounce = 200 * time.Millisecond

func newRunCmd(a *app) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "run scenario.yaml [scenario.yaml...]",
		Short: "Run scenario files, each against its own controller",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			err = a.runAll(cmd.Context(), args, store, out)
			if !watch {
				return err
			}
			if err != nil {
				fmt.Fprintln(out, "FAIL", err)
			}
			return a.watch(cmd.Context(), args, func(ctx context.Context) {
				if err := a.runAll(ctx, args, store, out); err != nil {
					fmt.Fprintln(out, "FAIL", err)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "re-run when a scenario file changes")
	return cmd
}

// runAll runs the scenarios concurrently and prints one line per result
// in argument order. The first failure cancels the rest.
func (a *app) runAll(ctx context.Context, paths []string, store *clipboard.Store, out io.Writer) error {
	results := make([]Result, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			_, res, err := a.runOne(gctx, path, store)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, res := range results {
		fmt.Fprintf(out, "ok  %s: %d steps, %d objects, %d relations, undo depth %d\n",
			res.Scenario, res.Steps, res.Objects, res.Relations, res.UndoDepth)
	}
	return nil
}

// watch calls rerun after scenario files change, debounced, until ctx is
// cancelled. Directories are watched so editors that replace files on
// save are still seen.
func (a *app) watch(ctx context.Context, paths []string, rerun func(context.Context)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	watched := make(map[string]bool, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		watched[abs] = true
		dir := filepath.Dir(abs)
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	logger := a.logger.With("component", "cli.watch")
	logger.Info("watching scenarios", slog.Int("files", len(watched)))

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !watched[event.Name] || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			logger.Debug("scenario changed", slog.String("path", event.Name))
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			fire = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				logger.Warn("watch events dropped")
				continue
			}
			return fmt.Errorf("watch: %w", err)
		case <-fire:
			fire = nil
			rerun(ctx)
		}
	}
}
