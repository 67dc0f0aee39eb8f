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
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/modelgraph/pkg/logging"
	"github.com/AleutianAI/modelgraph/services/modelgraph/clipboard"
	"github.com/AleutianAI/modelgraph/services/modelgraph/config"
	"github.com/AleutianAI/modelgraph/services/modelgraph/telemetry"
)

// app holds what PersistentPreRunE sets up for the subcommands.
type app struct {
	configPath string
	logLevel   string
	jsonLogs   bool

	cfg      config.Config
	log      *logging.Logger
	logger   *slog.Logger
	shutdown func(context.Context) error
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "modelgraph",
		Short:         "Run scripted edits against a model graph",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a modelgraph YAML config file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVar(&a.jsonLogs, "json", false, "write logs as JSON (default when stderr is not a terminal)")

	root.AddCommand(newRunCmd(a), newTreeCmd(a), newFindCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg := config.Default()
	if a.configPath != "" {
		loaded, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if cmd.Flags().Changed("json") {
		cfg.Log.JSON = a.jsonLogs
	} else if !cfg.Log.JSON && !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		cfg.Log.JSON = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	lc := cfg.LoggingConfig()
	lc.Output = cmd.ErrOrStderr()
	a.log = logging.New(lc)
	a.logger = a.log.Slog()

	shutdown, err := telemetry.Init(cmd.Context(), telemetry.Config{
		ServiceName:    cfg.Log.Service,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		TraceExporter:  cfg.Telemetry.TraceExporter,
		MetricExporter: cfg.Telemetry.MetricExporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
		Output:         cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	a.shutdown = shutdown
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	var errs []error
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(context.WithoutCancel(ctx)))
	}
	if a.log != nil {
		errs = append(errs, a.log.Close())
	}
	return errors.Join(errs...)
}

// openStore opens the clipboard store described by the config.
func (a *app) openStore() (*clipboard.Store, error) {
	cc := a.cfg.Clipboard
	store, err := clipboard.Open(clipboard.Config{
		Path:       cc.Path,
		InMemory:   cc.Path == "",
		SyncWrites: cc.SyncWrites,
		TTL:        cc.TTL,
		Logger:     a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open clipboard: %w", err)
	}
	return store, nil
}

// runOne loads and runs a single scenario.
func (a *app) runOne(ctx context.Context, path string, store *clipboard.Store) (*Runner, Result, error) {
	s, err := LoadScenario(path)
	if err != nil {
		return nil, Result{}, err
	}
	r, err := NewRunner(s, a.cfg, store, a.logger)
	if err != nil {
		return nil, Result{}, err
	}
	res, err := r.Run(ctx)
	return r, res, err
}
