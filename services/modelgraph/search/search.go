// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package search finds objects in a model tree by approximate name.
package search

import (
	"cmp"
	"slices"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/AleutianAI/modelgraph/services/modelgraph/model"
	"github.com/AleutianAI/modelgraph/services/modelgraph/uid"
)

// DefaultMaxDistance is the edit distance allowed by DefaultOptions.
const DefaultMaxDistance = 2

// Options controls a search.
type Options struct {
	// MaxDistance is the largest edit distance reported. Zero means exact
	// matches only.
	MaxDistance int

	// Limit caps the number of matches. Zero means no limit.
	Limit int

	// CaseSensitive compares names as written. By default both sides are
	// lower-cased first.
	CaseSensitive bool

	// Kinds restricts the object kinds considered. Empty means all.
	Kinds []model.ObjectKind
}

// DefaultOptions returns case-insensitive options with DefaultMaxDistance.
func DefaultOptions() Options {
	return Options{MaxDistance: DefaultMaxDistance}
}

// Match is one object found by Find.
type Match struct {
	Object   *model.Object
	Distance int

	// Path is the slash-separated chain of names from the root.
	Path string
}

// Exact reports whether the name matched without edits.
func (m Match) Exact() bool { return m.Distance == 0 }

// Find walks the loaded objects under root and ranks them by edit
// distance between query and the object name.
//
// Description:
//
//	Children of unloaded packages are not searched. Matches are ordered
//	by distance, then path, then UID, so exact matches come first and
//	the order is deterministic.
//
// Outputs:
//
//	[]Match - Matches within opts.MaxDistance, at most opts.Limit of them.
func Find(root *model.Object, query string, opts Options) []Match {
	if root == nil {
		return nil
	}
	if !opts.CaseSensitive {
		query = strings.ToLower(query)
	}
	q := []rune(query)
	costs := levenshtein.Options{
		InsCost: 1,
		DelCost: 1,
		SubCost: 1,
		Matches: levenshtein.IdenticalRunes,
	}

	var matches []Match
	var walk func(o *model.Object, prefix string)
	walk = func(o *model.Object, prefix string) {
		path := o.Name()
		if prefix != "" {
			path = prefix + "/" + o.Name()
		}
		if len(opts.Kinds) == 0 || slices.Contains(opts.Kinds, o.Kind()) {
			name := o.Name()
			if !opts.CaseSensitive {
				name = strings.ToLower(name)
			}
			d := levenshtein.DistanceForStrings(q, []rune(name), costs)
			if d <= opts.MaxDistance {
				matches = append(matches, Match{Object: o, Distance: d, Path: path})
			}
		}
		if o.IsUnloaded() {
			return
		}
		for _, child := range o.Children() {
			walk(child, path)
		}
	}
	walk(root, "")

	slices.SortFunc(matches, func(a, b Match) int {
		return cmp.Or(
			cmp.Compare(a.Distance, b.Distance),
			strings.Compare(a.Path, b.Path),
			uid.Compare(a.Object.UID(), b.Object.UID()),
		)
	})
	if opts.Limit > 0 && len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}
	return matches
}
