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

package session

import (
	"context"
	"testing"
	"time"

	"github.com/cortex-dev/cortex/content"
	"github.com/cortex-dev/cortex/store"
	"github.com/cortex-dev/cortex/vfs"
	"github.com/cortex-dev/cortex/workspace"
)

func newTestWorkspace(t *testing.T) (store.Store, *workspace.Manager, *workspace.Workspace) {
	t.Helper()
	backend := store.NewMemoryStore()
	wm := workspace.New(backend)
	ws, err := wm.Create(context.Background(), workspace.CreateSpec{Name: "demo", SourceType: workspace.SourceLocal})
	if err != nil {
		t.Fatalf("workspace.Create() error = %v", err)
	}
	return backend, wm, ws
}

func TestEngine_Create_ForksInScopeOnly(t *testing.T) {
	backend, wm, ws := newTestWorkspace(t)
	ctx := context.Background()

	contentStore := content.NewStore(backend)
	fs := vfs.New(ws.ID, backend, contentStore)
	for _, dir := range []string{"src", "docs"} {
		if _, err := fs.CreateDirectory(ctx, ws.Namespace+":vfs", dir, false, "alice"); err != nil {
			t.Fatalf("CreateDirectory(%s) error = %v", dir, err)
		}
	}
	if _, err := fs.WriteFile(ctx, ws.Namespace+":vfs", "src/a.go", []byte("package src"), "go", "alice"); err != nil {
		t.Fatalf("WriteFile(a.go) error = %v", err)
	}
	if _, err := fs.WriteFile(ctx, ws.Namespace+":vfs", "docs/readme.md", []byte("hi"), "markdown", "alice"); err != nil {
		t.Fatalf("WriteFile(readme.md) error = %v", err)
	}

	eng := New(backend, wm, time.Hour)
	sess, err := eng.Create(ctx, CreateSpec{
		AgentID:     "agent-1",
		WorkspaceID: ws.ID,
		Scope:       Scope{ReadWritePaths: []string{"src/*"}},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if sess.Status != StatusActive {
		t.Errorf("Create() status = %s, want active", sess.Status)
	}
	if sess.BaseVersion != ws.CurrentVersion {
		t.Errorf("Create() base_version = %d, want %d", sess.BaseVersion, ws.CurrentVersion)
	}

	sessionFS := vfs.New(ws.ID, backend, contentStore)
	if _, _, err := sessionFS.ReadFile(ctx, sess.Namespace+":vfs", "src/a.go"); err != nil {
		t.Errorf("in-scope file missing from forked namespace: %v", err)
	}
	if _, _, err := sessionFS.ReadFile(ctx, sess.Namespace+":vfs", "docs/readme.md"); err == nil {
		t.Error("out-of-scope file should have been pruned from forked namespace")
	}
}

func TestEngine_RecordChange_RejectsOutOfScopeWrite(t *testing.T) {
	backend, wm, ws := newTestWorkspace(t)
	ctx := context.Background()

	eng := New(backend, wm, time.Hour)
	sess, err := eng.Create(ctx, CreateSpec{
		AgentID:     "agent-1",
		WorkspaceID: ws.ID,
		Scope:       Scope{ReadWritePaths: []string{"src/*"}, ReadOnlyPaths: []string{"docs/*"}},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := eng.RecordChange(ctx, sess.ID, "src/a.go", Change{Op: ChangeUpdate, EntityRef: "src/a.go", At: time.Now()}); err != nil {
		t.Fatalf("RecordChange(in-scope) error = %v", err)
	}
	if err := eng.RecordChange(ctx, sess.ID, "docs/readme.md", Change{Op: ChangeUpdate, EntityRef: "docs/readme.md", At: time.Now()}); err == nil {
		t.Error("RecordChange() should reject a write to a read_only path")
	}

	got, err := eng.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.ChangeSet) != 1 {
		t.Errorf("ChangeSet = %d entries, want 1", len(got.ChangeSet))
	}
}

func TestEngine_AbortDestroysNamespace(t *testing.T) {
	backend, wm, ws := newTestWorkspace(t)
	ctx := context.Background()

	eng := New(backend, wm, time.Hour)
	sess, err := eng.Create(ctx, CreateSpec{
		AgentID:     "agent-1",
		WorkspaceID: ws.ID,
		Scope:       Scope{ReadWritePaths: []string{"*"}},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := eng.Abort(ctx, sess.ID); err != nil {
		t.Fatalf("Abort() error = %v", err)
	}
	got, err := eng.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusAborted {
		t.Errorf("Abort() status = %s, want aborted", got.Status)
	}
}

func TestEngine_ExpireOverdue(t *testing.T) {
	backend, wm, ws := newTestWorkspace(t)
	ctx := context.Background()

	eng := New(backend, wm, time.Millisecond)
	sess, err := eng.Create(ctx, CreateSpec{
		AgentID:     "agent-1",
		WorkspaceID: ws.ID,
		Scope:       Scope{ReadWritePaths: []string{"*"}},
		TTL:         time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	n, err := eng.ExpireOverdue(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("ExpireOverdue() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("ExpireOverdue() = %d, want 1", n)
	}

	got, err := eng.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusAborted {
		t.Errorf("ExpireOverdue() status = %s, want aborted", got.Status)
	}
}
