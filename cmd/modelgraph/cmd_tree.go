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
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/modelgraph/services/modelgraph/model"
	"github.com/AleutianAI/modelgraph/services/modelgraph/projection"
	"github.com/AleutianAI/modelgraph/services/modelgraph/search"
)

var (
	colorTeal  = lipgloss.Color("#2CD7C7")
	colorSlate = lipgloss.Color("#2C4A54")
	colorGold  = lipgloss.Color("#F4D03F")
)

// treeStyles renders projection rows.
type treeStyles struct {
	Package  lipgloss.Style
	Object   lipgloss.Style
	Relation lipgloss.Style
	Guide    lipgloss.Style
	Header   lipgloss.Style
}

func defaultTreeStyles() treeStyles {
	return treeStyles{
		Package:  lipgloss.NewStyle().Bold(true).Foreground(colorTeal),
		Object:   lipgloss.NewStyle(),
		Relation: lipgloss.NewStyle().Italic(true).Foreground(colorGold),
		Guide:    lipgloss.NewStyle().Foreground(colorSlate),
		Header:   lipgloss.NewStyle().Bold(true).Underline(true),
	}
}

// renderTree writes one line per projected row, indented by depth.
func renderTree(w io.Writer, title string, t *projection.Tree, st treeStyles) {
	fmt.Fprintln(w, st.Header.Render(title))
	for _, n := range t.Rows() {
		guide := ""
		if n.Depth > 0 {
			guide = strings.Repeat("│ ", n.Depth-1) + "├ "
		}
		var style lipgloss.Style
		switch {
		case n.Relation:
			style = st.Relation
		case n.Kind == model.ObjectKindPackage.String():
			style = st.Package
		default:
			style = st.Object
		}
		fmt.Fprintf(w, "%s%s %s\n", st.Guide.Render(guide), st.Guide.Render("["+n.Kind+"]"), style.Render(n.Label))
	}
}

func newTreeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tree scenario.yaml",
		Short: "Run a scenario and print the resulting model tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			r, res, err := a.runOne(cmd.Context(), args[0], store)
			if err != nil {
				return err
			}
			renderTree(cmd.OutOrStdout(), res.Scenario, r.Tree(), defaultTreeStyles())
			return nil
		},
	}
}

func newFindCmd(a *app) *cobra.Command {
	opts := search.DefaultOptions()
	var kinds []string
	cmd := &cobra.Command{
		Use:   "find scenario.yaml query",
		Short: "Run a scenario and search its objects by approximate name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Kinds = opts.Kinds[:0]
			for _, k := range kinds {
				kind, err := model.ParseObjectKind(k)
				if err != nil {
					return err
				}
				opts.Kinds = append(opts.Kinds, kind)
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			r, _, err := a.runOne(cmd.Context(), args[0], store)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			matches := search.Find(r.Controller().RootPackage(), args[1], opts)
			if len(matches) == 0 {
				fmt.Fprintln(out, "no matches")
				return nil
			}
			for _, m := range matches {
				fmt.Fprintf(out, "%d\t%s\t%s\n", m.Distance, m.Object.Kind(), m.Path)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.MaxDistance, "max-distance", search.DefaultMaxDistance, "largest edit distance reported (0 = exact only)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of matches (0 = no limit)")
	cmd.Flags().BoolVar(&opts.CaseSensitive, "case-sensitive", false, "compare names as written")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "restrict to object kinds (package, class, component, diagram, canvas-diagram, item)")
	return cmd
}
