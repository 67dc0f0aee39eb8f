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
	"maps"
	"strings"
	"time"

	"github.com/AleutianAI/modelgraph/services/modelgraph/model"
	"github.com/AleutianAI/modelgraph/services/modelgraph/uid"
)

// maxReportedViolations caps the violations listed in one error.
const maxReportedViolations = 10

// VerifyModelIntegrity rebuilds the indices from the tree and compares.
//
// Description:
//
//	Traverses from the root (stopping at unloaded packages) and checks
//	that no UID occurs twice across objects and relations, that every
//	owner back-reference matches the tree, that every relation endpoint
//	resolves to a reachable object, and that the live object, relation
//	and incident indices equal the rebuilt ones.
//
// Outputs:
//
//	error - nil, or an error wrapping ErrIntegrityViolation that lists the
//	        first violations found. A violation is a defect, not a
//	        recoverable condition.
func (c *Controller) VerifyModelIntegrity() error {
	start := time.Now()
	v := &verifier{
		objects:   make(map[uid.UID]*model.Object),
		relations: make(map[uid.UID]*model.Relation),
		incident:  make(map[uid.UID]map[uid.UID]int),
	}

	if c.root == nil {
		v.fail("no root package")
	} else {
		if c.root.Owner() != nil {
			v.fail("root %s has an owner", c.root.UID())
		}
		v.walk(c.root)
		v.checkEndpoints()
		v.compare(c)
	}

	recordVerify(time.Since(start), len(v.violations) == 0)
	if len(v.violations) == 0 {
		return nil
	}
	shown := v.violations
	if len(shown) > maxReportedViolations {
		shown = shown[:maxReportedViolations]
	}
	return fmt.Errorf("%w: %d violation(s): %s",
		ErrIntegrityViolation, len(v.violations), strings.Join(shown, "; "))
}

type verifier struct {
	objects    map[uid.UID]*model.Object
	relations  map[uid.UID]*model.Relation
	incident   map[uid.UID]map[uid.UID]int
	violations []string
}

func (v *verifier) fail(format string, args ...any) {
	v.violations = append(v.violations, fmt.Sprintf(format, args...))
}

func (v *verifier) claim(id uid.UID) bool {
	if !id.IsValid() {
		v.fail("invalid uid in tree")
		return false
	}
	_, o := v.objects[id]
	_, r := v.relations[id]
	if o || r {
		v.fail("uid %s used twice", id)
		return false
	}
	return true
}

func (v *verifier) walk(o *model.Object) {
	if v.claim(o.UID()) {
		v.objects[o.UID()] = o
	}
	if o.IsUnloaded() {
		return
	}
	for _, r := range o.Relations() {
		if r.Owner() != o {
			v.fail("relation %s has wrong owner back-reference", r.UID())
		}
		if v.claim(r.UID()) {
			v.relations[r.UID()] = r
			for _, end := range []uid.UID{r.EndA(), r.EndB()} {
				set := v.incident[end]
				if set == nil {
					set = make(map[uid.UID]int)
					v.incident[end] = set
				}
				set[r.UID()]++
			}
		}
	}
	for _, child := range o.Children() {
		if child.Owner() != o {
			v.fail("object %s has wrong owner back-reference", child.UID())
		}
		v.walk(child)
	}
}

func (v *verifier) checkEndpoints() {
	for id, r := range v.relations {
		if v.objects[r.EndA()] == nil {
			v.fail("relation %s end A %s does not resolve", id, r.EndA())
		}
		if v.objects[r.EndB()] == nil {
			v.fail("relation %s end B %s does not resolve", id, r.EndB())
		}
	}
}

func (v *verifier) compare(c *Controller) {
	for id, o := range c.objects {
		if v.objects[id] != o {
			v.fail("object index entry %s is not reachable", id)
		}
	}
	for id := range v.objects {
		if _, ok := c.objects[id]; !ok {
			v.fail("reachable object %s is not indexed", id)
		}
	}
	for id, r := range c.relations {
		if v.relations[id] != r {
			v.fail("relation index entry %s is not reachable", id)
		}
	}
	for id := range v.relations {
		if _, ok := c.relations[id]; !ok {
			v.fail("reachable relation %s is not indexed", id)
		}
	}
	sameCounts := func(a, b map[uid.UID]int) bool { return maps.Equal(a, b) }
	if !maps.EqualFunc(c.incident, v.incident, sameCounts) {
		v.fail("incident index differs from tree")
	}
}
