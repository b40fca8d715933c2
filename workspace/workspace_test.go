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

package workspace

import (
	"context"
	"testing"

	"github.com/cortex-dev/cortex/store"
)

func TestManager_CreateAndGet(t *testing.T) {
	backend := store.NewMemoryStore()
	m := New(backend)
	ctx := context.Background()

	ws, err := m.Create(ctx, CreateSpec{Name: "demo", WorkspaceType: TypeGoModules, SourceType: SourceLocal})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if ws.Namespace == "" {
		t.Fatal("Create() did not allocate a namespace")
	}

	got, err := m.Get(ctx, ws.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "demo" || got.Namespace != ws.Namespace {
		t.Errorf("Get() = %+v, want name=demo namespace=%s", got, ws.Namespace)
	}
}

func TestManager_Create_RejectsInvalidReadOnly(t *testing.T) {
	m := New(store.NewMemoryStore())
	_, err := m.Create(context.Background(), CreateSpec{Name: "ro", SourceType: SourceLocal, ReadOnly: true})
	if err == nil {
		t.Fatal("Create() should reject read_only with source_type local")
	}
}

func TestManager_Create_RejectsForkWithoutParent(t *testing.T) {
	m := New(store.NewMemoryStore())
	_, err := m.Create(context.Background(), CreateSpec{Name: "f", SourceType: SourceFork})
	if err == nil {
		t.Fatal("Create() should reject source_type fork without parent_workspace")
	}
}

func TestManager_Fork(t *testing.T) {
	backend := store.NewMemoryStore()
	m := New(backend)
	ctx := context.Background()

	parent, err := m.Create(ctx, CreateSpec{Name: "parent", SourceType: SourceLocal})
	if err != nil {
		t.Fatalf("Create(parent) error = %v", err)
	}

	fork, err := m.Create(ctx, CreateSpec{Name: "fork", SourceType: SourceFork, ParentWorkspace: parent.ID})
	if err != nil {
		t.Fatalf("Create(fork) error = %v", err)
	}
	if fork.Namespace == parent.Namespace {
		t.Fatal("fork should allocate its own namespace")
	}
}

func TestManager_BumpVersionAndArchive(t *testing.T) {
	backend := store.NewMemoryStore()
	m := New(backend)
	ctx := context.Background()

	ws, err := m.Create(ctx, CreateSpec{Name: "demo", SourceType: SourceLocal})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	v, err := m.BumpVersion(ctx, ws.ID)
	if err != nil {
		t.Fatalf("BumpVersion() error = %v", err)
	}
	if v != 1 {
		t.Errorf("BumpVersion() = %d, want 1", v)
	}

	if err := m.Archive(ctx, ws.ID); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	got, err := m.Get(ctx, ws.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.Archived {
		t.Error("Archive() did not mark workspace archived")
	}
}
