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

package vfs

import (
	"bytes"
	"context"
	"testing"

	"github.com/cortex-dev/cortex/content"
	"github.com/cortex-dev/cortex/pkg/errors"
	"github.com/cortex-dev/cortex/store"
)

func newTestFS() *FS {
	backend := store.NewMemoryStore()
	return New("workspace-1", backend, content.NewStore(backend))
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"":          "",
		"/":         "",
		"a/b/c":     "a/b/c",
		"/a/b/c/":   "a/b/c",
		"a/./b":     "a/b",
		"a/b/../c":  "a/c",
		"a\\b\\c":   "a/b/c",
	}
	for in, want := range cases {
		got, err := normalizePath(in)
		if err != nil {
			t.Fatalf("normalizePath(%q) error = %v", in, err)
		}
		if got != want {
			t.Errorf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}

	if _, err := normalizePath("../escape"); err == nil {
		t.Error("normalizePath(..) above root should fail")
	}
}

func TestFS_WriteAndReadFile(t *testing.T) {
	fs := newTestFS()
	ctx := context.Background()

	v, err := fs.WriteFile(ctx, "ns", "src/main.go", []byte("package main"), "go", "alice")
	if err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if v.Version != 1 || v.Status != StatusCreated {
		t.Errorf("new file version=%d status=%s, want 1/created", v.Version, v.Status)
	}

	data, got, err := fs.ReadFile(ctx, "ns", "src/main.go")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(data, []byte("package main")) {
		t.Errorf("ReadFile() = %q", data)
	}
	if got.ContentHash != v.ContentHash {
		t.Errorf("ReadFile() hash mismatch")
	}
}

func TestFS_WriteFile_RequiresParent(t *testing.T) {
	fs := newTestFS()
	ctx := context.Background()

	if _, err := fs.WriteFile(ctx, "ns", "missing/dir/file.go", []byte("x"), "go", "alice"); err == nil {
		t.Error("WriteFile() into a missing directory should fail")
	}
}

func TestFS_WriteFile_SameBytesSameMetadataIsNoOp(t *testing.T) {
	fs := newTestFS()
	ctx := context.Background()

	v1, _ := fs.WriteFile(ctx, "ns", "a.go", []byte("x"), "go", "alice")
	v2, err := fs.WriteFile(ctx, "ns", "a.go", []byte("x"), "go", "alice")
	if err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if v2.Version != v1.Version {
		t.Errorf("no-op write bumped version: %d -> %d", v1.Version, v2.Version)
	}
}

func TestFS_WriteFile_SameBytesDifferentMetadataBumpsVersion(t *testing.T) {
	fs := newTestFS()
	ctx := context.Background()

	v1, _ := fs.WriteFile(ctx, "ns", "a.go", []byte("x"), "go", "alice")
	v2, err := fs.WriteFile(ctx, "ns", "a.go", []byte("x"), "python", "alice")
	if err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if v2.Version != v1.Version+1 {
		t.Errorf("metadata-only change did not bump version: %d -> %d", v1.Version, v2.Version)
	}
}

func TestFS_CreateDirectory(t *testing.T) {
	fs := newTestFS()
	ctx := context.Background()

	if _, err := fs.CreateDirectory(ctx, "ns", "a/b/c", false, "alice"); err == nil {
		t.Error("CreateDirectory() without parents should fail when parent is missing")
	}

	v, err := fs.CreateDirectory(ctx, "ns", "a/b/c", true, "alice")
	if err != nil {
		t.Fatalf("CreateDirectory() error = %v", err)
	}
	if v.NodeType != NodeDirectory {
		t.Errorf("CreateDirectory() node type = %s", v.NodeType)
	}

	if _, err := fs.getNode(ctx, "ns", "a", false); err != nil {
		t.Errorf("ancestor a was not created: %v", err)
	}
	if _, err := fs.getNode(ctx, "ns", "a/b", false); err != nil {
		t.Errorf("ancestor a/b was not created: %v", err)
	}
}

func TestFS_Delete_RequiresRecursiveForNonEmptyDir(t *testing.T) {
	fs := newTestFS()
	ctx := context.Background()

	fs.CreateDirectory(ctx, "ns", "a", true, "alice")
	fs.WriteFile(ctx, "ns", "a/file.go", []byte("x"), "go", "alice")

	if err := fs.Delete(ctx, "ns", "a", false, "alice"); err == nil {
		t.Error("Delete() of a non-empty directory without recursive should fail")
	}

	if err := fs.Delete(ctx, "ns", "a", true, "alice"); err != nil {
		t.Fatalf("Delete(recursive) error = %v", err)
	}

	if _, _, err := fs.ReadFile(ctx, "ns", "a/file.go"); !errors.IsNotFound(err) {
		t.Errorf("ReadFile() after recursive delete = %v, want NotFound", err)
	}
}

func TestFS_Delete_Nonexistent(t *testing.T) {
	fs := newTestFS()
	ctx := context.Background()

	if err := fs.Delete(ctx, "ns", "nope", false, "alice"); !errors.IsNotFound(err) {
		t.Errorf("Delete() of nonexistent path = %v, want NotFound", err)
	}
}

func TestFS_Move(t *testing.T) {
	fs := newTestFS()
	ctx := context.Background()

	fs.WriteFile(ctx, "ns", "a.go", []byte("x"), "go", "alice")
	moved, err := fs.Move(ctx, "ns", "a.go", "b.go", false, "alice")
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if moved.Status != StatusMoved {
		t.Errorf("Move() status = %s, want moved", moved.Status)
	}

	if _, _, err := fs.ReadFile(ctx, "ns", "a.go"); !errors.IsNotFound(err) {
		t.Errorf("ReadFile() of old path after move = %v, want NotFound", err)
	}
	if data, _, err := fs.ReadFile(ctx, "ns", "b.go"); err != nil || string(data) != "x" {
		t.Errorf("ReadFile() of new path = %q, %v", data, err)
	}
}

func TestFS_Move_ConflictWithoutOverwrite(t *testing.T) {
	fs := newTestFS()
	ctx := context.Background()

	fs.WriteFile(ctx, "ns", "a.go", []byte("x"), "go", "alice")
	fs.WriteFile(ctx, "ns", "b.go", []byte("y"), "go", "alice")

	if _, err := fs.Move(ctx, "ns", "a.go", "b.go", false, "alice"); err == nil {
		t.Error("Move() onto existing target without overwrite should fail")
	}

	if _, err := fs.Move(ctx, "ns", "a.go", "b.go", true, "alice"); err != nil {
		t.Fatalf("Move(overwrite) error = %v", err)
	}
	data, _, err := fs.ReadFile(ctx, "ns", "b.go")
	if err != nil || string(data) != "x" {
		t.Errorf("Move(overwrite) content = %q, %v, want x", data, err)
	}
}

func TestFS_Copy_SharesContent(t *testing.T) {
	fs := newTestFS()
	ctx := context.Background()

	fs.WriteFile(ctx, "ns", "a.go", []byte("shared"), "go", "alice")
	cp, err := fs.Copy(ctx, "ns", "a.go", "b.go", false, "alice")
	if err != nil {
		t.Fatalf("Copy() error = %v", err)
	}

	dataA, _, _ := fs.ReadFile(ctx, "ns", "a.go")
	dataB, _, _ := fs.ReadFile(ctx, "ns", "b.go")
	if !bytes.Equal(dataA, dataB) {
		t.Errorf("Copy() diverged content: %q vs %q", dataA, dataB)
	}
	if cp.ID == "" {
		t.Error("Copy() did not assign a new vnode id")
	}
}

func TestFS_ListDirectory(t *testing.T) {
	fs := newTestFS()
	ctx := context.Background()

	fs.CreateDirectory(ctx, "ns", "pkg", true, "alice")
	fs.WriteFile(ctx, "ns", "pkg/a.go", []byte("a"), "go", "alice")
	fs.WriteFile(ctx, "ns", "pkg/b.go", []byte("b"), "go", "alice")
	fs.CreateDirectory(ctx, "ns", "pkg/sub", true, "alice")
	fs.WriteFile(ctx, "ns", "pkg/sub/c.go", []byte("c"), "go", "alice")

	direct, err := fs.ListDirectory(ctx, "ns", "pkg", false, nil)
	if err != nil {
		t.Fatalf("ListDirectory() error = %v", err)
	}
	if len(direct) != 3 {
		t.Errorf("ListDirectory(non-recursive) = %d entries, want 3", len(direct))
	}

	all, err := fs.ListDirectory(ctx, "ns", "pkg", true, nil)
	if err != nil {
		t.Fatalf("ListDirectory(recursive) error = %v", err)
	}
	if len(all) != 4 {
		t.Errorf("ListDirectory(recursive) = %d entries, want 4", len(all))
	}
}

func TestFS_GetHistory(t *testing.T) {
	fs := newTestFS()
	ctx := context.Background()

	fs.WriteFile(ctx, "ns", "a.go", []byte("v1"), "go", "alice")
	fs.WriteFile(ctx, "ns", "a.go", []byte("v2"), "go", "alice")
	fs.WriteFile(ctx, "ns", "a.go", []byte("v3"), "go", "alice")

	hist, err := fs.GetHistory(ctx, "ns", "a.go", 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("GetHistory() = %d entries, want 3", len(hist))
	}
	if hist[0].Version != 3 {
		t.Errorf("GetHistory() not newest-first: first version = %d", hist[0].Version)
	}
}

func TestFS_Restore(t *testing.T) {
	fs := newTestFS()
	ctx := context.Background()

	fs.WriteFile(ctx, "ns", "a.go", []byte("v1"), "go", "alice")
	fs.WriteFile(ctx, "ns", "a.go", []byte("v2"), "go", "alice")

	restored, err := fs.Restore(ctx, "ns", "a.go", 1, "alice")
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	data, _, err := fs.ReadFile(ctx, "ns", "a.go")
	if err != nil {
		t.Fatalf("ReadFile() after restore error = %v", err)
	}
	if string(data) != "v1" {
		t.Errorf("Restore() content = %q, want v1", data)
	}
	if restored.Version != 3 {
		t.Errorf("Restore() version = %d, want 3 (new version, not rewritten history)", restored.Version)
	}
}
