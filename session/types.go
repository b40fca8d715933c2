// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package session implements per-agent isolated namespaces forked
// copy-on-write from a workspace's main namespace, with change-set
// tracking feeding the merge engine.
package session

import "time"

// IsolationLevel is recorded on the session (Create defaults it to
// snapshot). No engine code reads it: every level gets the same
// fork-time snapshot of the in-scope paths.
type IsolationLevel string

const (
	IsolationSnapshot      IsolationLevel = "snapshot"
	IsolationReadCommitted IsolationLevel = "read_committed"
	IsolationSerializable  IsolationLevel = "serializable"
)

// Status is a Session's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusMerging   Status = "merging"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

// Scope bounds what a session may read and write, expressed as
// path.Match-style glob patterns over vnode paths plus an explicit
// code-unit allowlist.
type Scope struct {
	ReadWritePaths  []string
	ReadOnlyPaths   []string
	SpecificUnitIDs []string
}

// ChangeOp names the kind of mutation recorded in a session's change set.
type ChangeOp string

const (
	ChangeCreate ChangeOp = "create"
	ChangeUpdate ChangeOp = "update"
	ChangeDelete ChangeOp = "delete"
	ChangeMove   ChangeOp = "move"
)

// Change is one entry in a session's ordered change_set, the canonical
// merge input.
type Change struct {
	Op        ChangeOp
	EntityRef string
	OldHash   string
	NewHash   string
	At        time.Time
}

// Session is a bounded, isolated view of a workspace held by one agent.
type Session struct {
	ID             string
	AgentID        string
	WorkspaceID    string
	Namespace      string
	IsolationLevel IsolationLevel
	Scope          Scope
	BaseVersion    int64
	Status         Status
	ChangeSet      []Change
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// IsExpired reports whether the session's TTL has elapsed.
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// clone deep-copies s so callers never hold a pointer into the manager's
// own state, the same discipline core/state/memory.go's copyState applies.
func (s *Session) clone() *Session {
	cp := *s
	cp.Scope.ReadWritePaths = append([]string(nil), s.Scope.ReadWritePaths...)
	cp.Scope.ReadOnlyPaths = append([]string(nil), s.Scope.ReadOnlyPaths...)
	cp.Scope.SpecificUnitIDs = append([]string(nil), s.Scope.SpecificUnitIDs...)
	cp.ChangeSet = append([]Change(nil), s.ChangeSet...)
	return &cp
}
