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
	"github.com/AleutianAI/modelgraph/services/modelgraph/model"
	"github.com/AleutianAI/modelgraph/services/modelgraph/uid"
)

// EventType identifies a structural change.
type EventType int

const (
	// EventReset brackets a wholesale change (root replaced, package
	// unloaded or loaded). Listeners rebuild on the end event.
	EventReset EventType = iota

	EventInsertObject
	EventRemoveObject
	EventUpdateObject
	EventMoveObject
	EventInsertRelation
	EventRemoveRelation
	EventUpdateRelation
	EventMoveRelation

	// EventPackageRenamed is a notice after a committed package update
	// that changed the package name. OldName holds the previous name.
	EventPackageRenamed

	// EventRelationEndChanged is a notice for every relation directly
	// incident on an object whose committed update just finished.
	EventRelationEndChanged

	// EventModified is a notice after any committed change.
	EventModified
)

var eventTypeNames = map[EventType]string{
	EventReset:              "reset",
	EventInsertObject:       "insert-object",
	EventRemoveObject:       "remove-object",
	EventUpdateObject:       "update-object",
	EventMoveObject:         "move-object",
	EventInsertRelation:     "insert-relation",
	EventRemoveRelation:     "remove-relation",
	EventUpdateRelation:     "update-relation",
	EventMoveRelation:       "move-relation",
	EventPackageRenamed:     "package-renamed",
	EventRelationEndChanged: "relation-end-changed",
	EventModified:           "modified",
}

// String returns the string representation of the EventType.
func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Phase tells whether an event opens or closes a bracket, or stands alone.
type Phase int

const (
	PhaseBegin Phase = iota
	PhaseEnd
	PhaseNotice
)

// String returns the string representation of the Phase.
func (p Phase) String() string {
	switch p {
	case PhaseBegin:
		return "begin"
	case PhaseEnd:
		return "end"
	case PhaseNotice:
		return "notice"
	default:
		return "unknown"
	}
}

// Event describes one structural notification.
//
// Description:
//
//	Every begin event is followed by exactly one end event with the same
//	Type, even when the operation fails after the begin. Brackets may nest
//	(a remove bracket is preceded by the remove brackets of the relations
//	it cascades to, all inside one undo macro), but never interleave.
//
//	Row and Owner give the position of the element: the insertion position
//	for inserts, the position being vacated for removes, the current
//	position for updates, and the new position for moves. For moves,
//	FormerRow and FormerOwner give the position before the move. Both
//	phases of a bracket carry the same positions.
type Event struct {
	Type  EventType
	Phase Phase

	Row   int
	Owner uid.UID

	FormerRow   int
	FormerOwner uid.UID

	// Element is the affected element, nil for reset and modified.
	Element model.Element

	// OldName is set for EventPackageRenamed.
	OldName string
}

// Listener receives notifications synchronously on the writer's goroutine.
type Listener interface {
	HandleEvent(ev Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ev Event)

// HandleEvent calls f(ev).
func (f ListenerFunc) HandleEvent(ev Event) { f(ev) }
