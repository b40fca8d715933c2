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

// Package lock mediates concurrent access to main-namespace entities via
// typed locks, a wait-for graph with cycle detection, and a background
// sweeper that reclaims expired leases.
package lock

import "time"

// RefType names what kind of entity a Lock's EntityRef addresses.
type RefType string

const (
	RefEntity  RefType = "entity"
	RefSubtree RefType = "subtree"
	RefFile    RefType = "file"
	RefUnit    RefType = "unit"
)

// Type is a lock's mode.
type Type string

const (
	TypeExclusive       Type = "exclusive"
	TypeShared          Type = "shared"
	TypeIntentExclusive Type = "intent_exclusive"
	TypeIntentShared    Type = "intent_shared"
)

// Status is a Lock's lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusWaiting  Status = "waiting"
	StatusReleased Status = "released"
	StatusExpired  Status = "expired"
)

// WaitPolicy controls what Acquire does when a request conflicts with an
// existing grant.
type WaitPolicy string

const (
	// PolicyFailFast returns ErrLockConflict immediately on conflict.
	PolicyFailFast WaitPolicy = "fail_fast"
	// PolicyWait blocks, subject to Request.Timeout, until the lock is
	// granted, the wait would close a wait-for cycle, or the wait times out.
	PolicyWait WaitPolicy = "wait"
)

// Lock is a granted or pending hold on a workspace entity.
type Lock struct {
	ID           string
	EntityRef    string
	RefType      RefType
	LockType     Type
	OwnerSession string
	OwnerAgent   string
	AcquiredAt   time.Time
	ExpiresAt    time.Time
	Status       Status
}

// Request is the input to Acquire.
type Request struct {
	EntityRef    string
	RefType      RefType
	LockType     Type
	OwnerSession string
	OwnerAgent   string
	TTL          time.Duration
	Policy       WaitPolicy
	Timeout      time.Duration
}

// compatible implements spec.md §3's Lock compatibility matrix literally:
// held S vs req S, held IS vs req S, and held IS vs req IS are the only
// compatible pairs; every other combination conflicts.
func compatible(held, requested Type) bool {
	switch {
	case held == TypeShared && requested == TypeShared:
		return true
	case held == TypeIntentShared && requested == TypeShared:
		return true
	case held == TypeIntentShared && requested == TypeIntentShared:
		return true
	default:
		return false
	}
}
