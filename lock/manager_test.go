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

// SPDX-License-Identifier: LGPL-3.0-or-later

package lock

import (
	"context"
	"testing"
	"time"

	"github.com/cortex-dev/cortex/pkg/errors"
	"github.com/cortex-dev/cortex/store"
)

func TestManager_Acquire_SharedLocksCoexist(t *testing.T) {
	m := New(store.NewMemoryStore(), "ns")
	ctx := context.Background()

	if _, err := m.Acquire(ctx, Request{EntityRef: "a.go", RefType: RefFile, LockType: TypeShared, OwnerSession: "s1", Policy: PolicyFailFast}); err != nil {
		t.Fatalf("Acquire(s1, shared) error = %v", err)
	}
	if _, err := m.Acquire(ctx, Request{EntityRef: "a.go", RefType: RefFile, LockType: TypeShared, OwnerSession: "s2", Policy: PolicyFailFast}); err != nil {
		t.Fatalf("Acquire(s2, shared) error = %v", err)
	}
}

func TestManager_Acquire_ExclusiveConflictsFailFast(t *testing.T) {
	m := New(store.NewMemoryStore(), "ns")
	ctx := context.Background()

	if _, err := m.Acquire(ctx, Request{EntityRef: "a.go", RefType: RefFile, LockType: TypeExclusive, OwnerSession: "s1", Policy: PolicyFailFast}); err != nil {
		t.Fatalf("Acquire(s1, exclusive) error = %v", err)
	}
	_, err := m.Acquire(ctx, Request{EntityRef: "a.go", RefType: RefFile, LockType: TypeShared, OwnerSession: "s2", Policy: PolicyFailFast})
	if !errors.IsCategory(err, errors.CategoryLockConflict) {
		t.Fatalf("Acquire(s2) error = %v, want lock conflict", err)
	}
}

func TestManager_Acquire_SubtreeConflictsWithDescendant(t *testing.T) {
	m := New(store.NewMemoryStore(), "ns")
	ctx := context.Background()

	if _, err := m.Acquire(ctx, Request{EntityRef: "src", RefType: RefSubtree, LockType: TypeExclusive, OwnerSession: "s1", Policy: PolicyFailFast}); err != nil {
		t.Fatalf("Acquire(s1, subtree) error = %v", err)
	}
	_, err := m.Acquire(ctx, Request{EntityRef: "src/a.go", RefType: RefFile, LockType: TypeExclusive, OwnerSession: "s2", Policy: PolicyFailFast})
	if !errors.IsCategory(err, errors.CategoryLockConflict) {
		t.Fatalf("Acquire(s2, descendant) error = %v, want lock conflict", err)
	}
}

func TestManager_Acquire_WaitGrantsAfterRelease(t *testing.T) {
	m := New(store.NewMemoryStore(), "ns")
	ctx := context.Background()

	lk, err := m.Acquire(ctx, Request{EntityRef: "a.go", RefType: RefFile, LockType: TypeExclusive, OwnerSession: "s1", Policy: PolicyFailFast})
	if err != nil {
		t.Fatalf("Acquire(s1) error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := m.Acquire(ctx, Request{
			EntityRef: "a.go", RefType: RefFile, LockType: TypeExclusive,
			OwnerSession: "s2", Policy: PolicyWait, Timeout: 2 * time.Second,
		})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := m.Release(ctx, lk.ID, "s1"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Acquire(s2, wait) error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Acquire(s2, wait) never returned after release")
	}
}

func TestManager_Acquire_DeadlockDetected(t *testing.T) {
	m := New(store.NewMemoryStore(), "ns")
	ctx := context.Background()

	if _, err := m.Acquire(ctx, Request{EntityRef: "a.go", RefType: RefFile, LockType: TypeExclusive, OwnerSession: "s1", Policy: PolicyFailFast}); err != nil {
		t.Fatalf("Acquire(s1, a) error = %v", err)
	}
	if _, err := m.Acquire(ctx, Request{EntityRef: "b.go", RefType: RefFile, LockType: TypeExclusive, OwnerSession: "s2", Policy: PolicyFailFast}); err != nil {
		t.Fatalf("Acquire(s2, b) error = %v", err)
	}

	go m.Acquire(ctx, Request{EntityRef: "b.go", RefType: RefFile, LockType: TypeExclusive, OwnerSession: "s1", Policy: PolicyWait, Timeout: time.Second})
	time.Sleep(20 * time.Millisecond)

	_, err := m.Acquire(ctx, Request{EntityRef: "a.go", RefType: RefFile, LockType: TypeExclusive, OwnerSession: "s2", Policy: PolicyWait, Timeout: time.Second})
	if !errors.IsCategory(err, errors.CategoryDeadlockDetected) {
		t.Fatalf("Acquire(s2, a) error = %v, want deadlock detected", err)
	}
}

func TestManager_SweepExpired(t *testing.T) {
	m := New(store.NewMemoryStore(), "ns")
	ctx := context.Background()

	lk, err := m.Acquire(ctx, Request{
		EntityRef: "a.go", RefType: RefFile, LockType: TypeExclusive,
		OwnerSession: "s1", Policy: PolicyFailFast, TTL: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	n, err := m.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("SweepExpired() = %d, want 1", n)
	}

	if _, err := m.Acquire(ctx, Request{EntityRef: "a.go", RefType: RefFile, LockType: TypeExclusive, OwnerSession: "s2", Policy: PolicyFailFast}); err != nil {
		t.Fatalf("Acquire(s2) after sweep error = %v", err)
	}
	_ = lk
}

func TestManager_StartStopSweeper(t *testing.T) {
	m := New(store.NewMemoryStore(), "ns")
	m.StartSweeper(context.Background(), 5*time.Millisecond)
	time.Sleep(15 * time.Millisecond)
	if err := m.StopSweeper(); err != nil {
		t.Fatalf("StopSweeper() error = %v", err)
	}
}
