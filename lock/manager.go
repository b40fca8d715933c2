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

package lock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cortex-dev/cortex/core/resilience"
	"github.com/cortex-dev/cortex/pkg/errors"
	"github.com/cortex-dev/cortex/store"
)

const table = "lock"

// Manager grants, releases, and sweeps locks scoped to one namespace
// (typically a workspace's main namespace; the Lock Manager only ever
// mediates main-namespace mutation, never a session's own namespace).
type Manager struct {
	backend   store.Store
	namespace string

	mu        sync.Mutex
	waitFor   map[string]map[string]bool // requesting session -> blocking owner sessions
	notify    map[string]chan struct{}   // entity_ref -> broadcast-on-change channel

	sweepGroup    *errgroup.Group
	sweepCancel   context.CancelFunc
	sweepInterval time.Duration
}

// New creates a Manager over namespace.
func New(backend store.Store, namespace string) *Manager {
	return &Manager{
		backend: backend,
		namespace: namespace,
		waitFor:   make(map[string]map[string]bool),
		notify:    make(map[string]chan struct{}),
	}
}

// StartSweeper launches a background goroutine, managed by an
// errgroup.Group, that reclaims expired locks every interval until
// StopSweeper is called or ctx is canceled.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	m.sweepInterval = interval

	sweepCtx, cancel := context.WithCancel(ctx)
	m.sweepCancel = cancel
	group, groupCtx := errgroup.WithContext(sweepCtx)
	m.sweepGroup = group

	group.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				if _, err := m.SweepExpired(groupCtx); err != nil {
					return err
				}
			}
		}
	})
}

// StopSweeper cancels the background sweep goroutine and waits for it to
// return.
func (m *Manager) StopSweeper() error {
	if m.sweepCancel == nil {
		return nil
	}
	m.sweepCancel()
	err := m.sweepGroup.Wait()
	m.sweepCancel = nil
	return err
}

// Acquire grants req if compatible with every currently active lock that
// overlaps its entity_ref, or blocks/fails per req.Policy otherwise.
func (m *Manager) Acquire(ctx context.Context, req Request) (*Lock, error) {
	if req.EntityRef == "" || req.OwnerSession == "" {
		return nil, errors.ErrInvalidInput.WithMessage("entity_ref and owner_session are required")
	}
	if req.TTL <= 0 {
		req.TTL = 5 * time.Minute
	}
	if req.Policy == "" {
		req.Policy = PolicyFailFast
	}

	for {
		conflicts, err := m.conflictingOwners(ctx, req)
		if err != nil {
			return nil, err
		}
		if len(conflicts) == 0 {
			return m.grant(ctx, req)
		}
		if req.Policy == PolicyFailFast {
			return nil, errors.ErrLockConflict.WithDetail("entity_ref", req.EntityRef)
		}

		if err := m.registerWait(req.OwnerSession, conflicts); err != nil {
			return nil, err
		}

		if err := m.waitForSignal(ctx, req); err != nil {
			m.clearWait(req.OwnerSession)
			if err == resilience.ErrTimeout {
				return nil, errors.ErrLockWaitTimeout.WithDetail("entity_ref", req.EntityRef)
			}
			return nil, err
		}
		m.clearWait(req.OwnerSession)
		// Loop: re-check conflicts now that a signal woke us.
	}
}

// waitForSignal blocks until entityRef's notify channel fires or
// req.Timeout (bounded via resilience.WithTimeout) elapses.
func (m *Manager) waitForSignal(ctx context.Context, req Request) error {
	ch := m.notifyChannel(req.EntityRef)
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return resilience.WithTimeout(ctx, &resilience.TimeoutConfig{Duration: timeout}, func(ctx context.Context) error {
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func (m *Manager) notifyChannel(entityRef string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.notify[entityRef]
	if !ok {
		ch = make(chan struct{})
		m.notify[entityRef] = ch
	}
	return ch
}

func (m *Manager) broadcast(entityRef string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.notify[entityRef]; ok {
		close(ch)
		delete(m.notify, entityRef)
	}
}

// registerWait adds a wait-for edge from session to each of owners and
// rejects the request if doing so would close a cycle.
func (m *Manager) registerWait(session string, owners []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.waitFor[session] == nil {
		m.waitFor[session] = make(map[string]bool)
	}
	for _, owner := range owners {
		if owner == session {
			continue
		}
		m.waitFor[session][owner] = true
	}
	if m.hasCycleLocked(session) {
		delete(m.waitFor, session)
		return errors.ErrDeadlockDetected.WithDetail("session", session)
	}
	return nil
}

func (m *Manager) clearWait(session string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.waitFor, session)
}

// hasCycleLocked runs DFS from start over the wait-for graph. Caller
// holds m.mu.
func (m *Manager) hasCycleLocked(start string) bool {
	visited := make(map[string]bool)
	var visit func(node string) bool
	visit = func(node string) bool {
		if node == start && visited[node] {
			return true
		}
		if visited[node] {
			return false
		}
		visited[node] = true
		for next := range m.waitFor[node] {
			if next == start {
				return true
			}
			if visit(next) {
				return true
			}
		}
		return false
	}
	for next := range m.waitFor[start] {
		if next == start || visit(next) {
			return true
		}
	}
	return false
}

// conflictingOwners returns the owner_session of every active lock that
// conflicts with req under the compatibility matrix and subtree overlap
// rule.
func (m *Manager) conflictingOwners(ctx context.Context, req Request) ([]string, error) {
	res, err := m.backend.Execute(ctx, m.namespace, store.Op{
		Kind: store.OpList, Table: table, Filter: store.Row{"status": string(StatusActive)},
	})
	if err != nil {
		return nil, errors.ErrInternal.WithMessage("list active locks").Wrap(err)
	}

	var owners []string
	for _, row := range res.Rows {
		held := rowToLock(row)
		if held.OwnerSession == req.OwnerSession {
			continue
		}
		if !overlaps(held.EntityRef, held.RefType, req.EntityRef, req.RefType) {
			continue
		}
		if compatible(held.LockType, req.LockType) {
			continue
		}
		owners = append(owners, held.OwnerSession)
	}
	return owners, nil
}

// overlaps reports whether a held lock on heldRef (of heldType) and a
// requested lock on reqRef overlap: identical refs always overlap; a
// subtree ref additionally overlaps every descendant path.
func overlaps(heldRef string, heldType RefType, reqRef string, reqType RefType) bool {
	if heldRef == reqRef {
		return true
	}
	if heldType == RefSubtree && isDescendant(reqRef, heldRef) {
		return true
	}
	if reqType == RefSubtree && isDescendant(heldRef, reqRef) {
		return true
	}
	return false
}

func isDescendant(path, ancestor string) bool {
	if ancestor == "" {
		return path != ""
	}
	return strings.HasPrefix(path, ancestor+"/")
}

func (m *Manager) grant(ctx context.Context, req Request) (*Lock, error) {
	now := time.Now().UTC()
	lk := &Lock{
		ID:           uuid.NewString(),
		EntityRef:    req.EntityRef,
		RefType:      req.RefType,
		LockType:     req.LockType,
		OwnerSession: req.OwnerSession,
		OwnerAgent:   req.OwnerAgent,
		AcquiredAt:   now,
		ExpiresAt:    now.Add(req.TTL),
		Status:       StatusActive,
	}
	if _, err := m.backend.Execute(ctx, m.namespace, store.Op{
		Kind: store.OpPut, Table: table, Key: lk.ID, Row: lockToRow(lk),
	}); err != nil {
		return nil, errors.ErrInternal.WithMessage("persist lock").Wrap(err)
	}
	return lk, nil
}

// Release releases a lock held by ownerSession, notifying any waiters.
func (m *Manager) Release(ctx context.Context, lockID, ownerSession string) error {
	res, err := m.backend.Execute(ctx, m.namespace, store.Op{Kind: store.OpGet, Table: table, Key: lockID})
	if err != nil {
		return errors.ErrLockNotHeld.WithDetail("lock_id", lockID)
	}
	lk := rowToLock(res.Row)
	if lk.OwnerSession != ownerSession {
		return errors.ErrLockNotHeld.WithDetail("lock_id", lockID)
	}
	lk.Status = StatusReleased
	if _, err := m.backend.Execute(ctx, m.namespace, store.Op{
		Kind: store.OpPut, Table: table, Key: lk.ID, Row: lockToRow(lk),
	}); err != nil {
		return errors.ErrInternal.WithMessage("persist released lock").Wrap(err)
	}
	m.broadcast(lk.EntityRef)
	return nil
}

// ReleaseAllForSession releases every active lock owned by sessionID, the
// way session termination (completion or abort) cleans up its locks.
func (m *Manager) ReleaseAllForSession(ctx context.Context, sessionID string) error {
	res, err := m.backend.Execute(ctx, m.namespace, store.Op{
		Kind: store.OpList, Table: table, Filter: store.Row{"status": string(StatusActive), "owner_session": sessionID},
	})
	if err != nil {
		return errors.ErrInternal.WithMessage("list session locks").Wrap(err)
	}
	for _, row := range res.Rows {
		lk := rowToLock(row)
		if err := m.Release(ctx, lk.ID, sessionID); err != nil {
			return err
		}
	}
	return nil
}

// SweepExpired reclaims every active or waiting lock whose lease has
// passed, notifying waiters so they re-check conflicts.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	res, err := m.backend.Execute(ctx, m.namespace, store.Op{Kind: store.OpList, Table: table})
	if err != nil {
		return 0, errors.ErrInternal.WithMessage("list locks").Wrap(err)
	}
	now := time.Now().UTC()
	count := 0
	for _, row := range res.Rows {
		lk := rowToLock(row)
		if lk.Status != StatusActive && lk.Status != StatusWaiting {
			continue
		}
		if now.Before(lk.ExpiresAt) {
			continue
		}
		lk.Status = StatusExpired
		if _, err := m.backend.Execute(ctx, m.namespace, store.Op{
			Kind: store.OpPut, Table: table, Key: lk.ID, Row: lockToRow(lk),
		}); err != nil {
			return count, errors.ErrInternal.WithMessage("persist expired lock").Wrap(err)
		}
		m.broadcast(lk.EntityRef)
		count++
	}
	return count, nil
}

func lockToRow(lk *Lock) store.Row {
	return store.Row{
		"id":            lk.ID,
		"entity_ref":    lk.EntityRef,
		"ref_type":      string(lk.RefType),
		"lock_type":     string(lk.LockType),
		"owner_session": lk.OwnerSession,
		"owner_agent":   lk.OwnerAgent,
		"acquired_at":   lk.AcquiredAt,
		"expires_at":    lk.ExpiresAt,
		"status":        string(lk.Status),
	}
}

func rowToLock(row store.Row) *Lock {
	lk := &Lock{
		ID:           str(row["id"]),
		EntityRef:    str(row["entity_ref"]),
		RefType:      RefType(str(row["ref_type"])),
		LockType:     Type(str(row["lock_type"])),
		OwnerSession: str(row["owner_session"]),
		OwnerAgent:   str(row["owner_agent"]),
		Status:       Status(str(row["status"])),
	}
	if v, ok := row["acquired_at"].(time.Time); ok {
		lk.AcquiredAt = v
	}
	if v, ok := row["expires_at"].(time.Time); ok {
		lk.ExpiresAt = v
	}
	return lk
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}
