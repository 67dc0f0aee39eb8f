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
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/AleutianAI/modelgraph/services/modelgraph/config"
)

// SupportedScenarioMajor is the scenario format major version this binary
// runs.
const SupportedScenarioMajor = "v1"

var (
	ErrUnsupportedVersion = errors.New("unsupported scenario version")
	ErrUnknownOp          = errors.New("unknown step op")
	ErrUnknownRef         = errors.New("unknown reference")
	ErrStepArgument       = errors.New("invalid step argument")
	ErrExpectedFailure    = errors.New("step succeeded but was expected to fail")
)

// Scenario is a scripted sequence of model edits.
//
//	version: "1.0"
//	name: basics
//	steps:
//	  - {op: add-package, name: lib}
//	  - {op: add-class, name: A, parent: lib}
//	  - {op: add-class, name: B, parent: lib}
//	  - {op: add-dependency, a: A, b: B, ref: dep}
//	  - {op: delete, targets: [A]}
//	  - {op: undo}
type Scenario struct {
	Version string `yaml:"version"`
	Name    string `yaml:"name"`
	Steps   []Step `yaml:"steps"`
}

// Step is one scenario operation. Which fields apply depends on Op.
//
// References name elements created earlier in the same scenario: an add
// step registers its Ref (or its Name when Ref is empty), and "root" or
// an empty reference means the root package.
type Step struct {
	Op          string   `yaml:"op"`
	Ref         string   `yaml:"ref"`
	Name        string   `yaml:"name"`
	Parent      string   `yaml:"parent"`
	Target      string   `yaml:"target"`
	Targets     []string `yaml:"targets"`
	A           string   `yaml:"a"`
	B           string   `yaml:"b"`
	Variety     string   `yaml:"variety"`
	Stereotypes []string `yaml:"stereotypes"`
	Slot        string   `yaml:"slot"`
	Refs        []string `yaml:"refs"`
	ExpectError bool     `yaml:"expect_error"`
}

// LoadScenario reads, decodes and version-checks a scenario file. The
// scenario name defaults to the file's base name.
func LoadScenario(path string) (*Scenario, error) {
	data, err := config.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s, nil
}

// ParseScenario decodes a scenario strictly and checks its version.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := config.Decode(data, &s); err != nil {
		return nil, err
	}
	if err := checkVersion(s.Version); err != nil {
		return nil, err
	}
	for i, step := range s.Steps {
		if _, ok := stepHandlers[step.Op]; !ok {
			return nil, fmt.Errorf("step %d: %w: %q", i, ErrUnknownOp, step.Op)
		}
	}
	return &s, nil
}

// checkVersion accepts "", "1", "1.2", "v1.2.3" and the like with major
// version 1.
func checkVersion(version string) error {
	if version == "" {
		return nil
	}
	v := version
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return fmt.Errorf("%w: %q is not a semantic version", ErrUnsupportedVersion, version)
	}
	if semver.Major(v) != SupportedScenarioMajor {
		return fmt.Errorf("%w: %s (supported: %s)", ErrUnsupportedVersion, version, SupportedScenarioMajor)
	}
	return nil
}
