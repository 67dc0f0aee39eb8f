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

import "errors"

// Sentinel errors for controller operations.
//
// Every precondition is checked before the tree or the indices are touched,
// so an operation that returns one of these errors left the model as it was.
// Lookups never return errors; a miss is a nil result.
var (
	// ErrNilElement is returned when a required element argument is nil.
	ErrNilElement = errors.New("nil element")

	// ErrNotInModel is returned when an element argument is not indexed by
	// this controller (detached, removed, unloaded, or from another model).
	ErrNotInModel = errors.New("element not in model")

	// ErrNotAPackage is returned when an object must be a package but is not.
	ErrNotAPackage = errors.New("object is not a package")

	// ErrAlreadyOwned is returned when inserting an element that still has
	// an owner.
	ErrAlreadyOwned = errors.New("element already owned")

	// ErrDuplicateUID is returned when an inserted or loaded element reuses
	// a UID that is already indexed, or repeats a UID inside its own subtree.
	ErrDuplicateUID = errors.New("duplicate uid")

	// ErrCyclicMove is returned when moving an object under itself or one
	// of its descendants.
	ErrCyclicMove = errors.New("cyclic move")

	// ErrRootRemoval is returned when removing or deleting the root package.
	ErrRootRemoval = errors.New("cannot remove root package")

	// ErrEndpointNotFound is returned when a relation endpoint does not
	// resolve to an indexed object.
	ErrEndpointNotFound = errors.New("relation endpoint not found")

	// ErrPackageUnloaded is returned when an operation needs the contents of
	// a package that is currently unloaded.
	ErrPackageUnloaded = errors.New("package is unloaded")

	// ErrPackageLoaded is returned when loading a package that is not
	// unloaded.
	ErrPackageLoaded = errors.New("package is already loaded")

	// ErrUpdateInProgress is returned by a second start-update on the same
	// element before the first one finished.
	ErrUpdateInProgress = errors.New("update already in progress")

	// ErrNoUpdateInProgress is returned by finish-update without a matching
	// start-update.
	ErrNoUpdateInProgress = errors.New("no update in progress")

	// ErrIntegrityViolation is returned by VerifyModelIntegrity. It signals
	// a defect in the mutation algebra, not a recoverable condition.
	ErrIntegrityViolation = errors.New("model integrity violation")
)
