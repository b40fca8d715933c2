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

package store

import (
	"context"
	"sync"
	"testing"

	"github.com/cortex-dev/cortex/pkg/errors"
)

func TestNewMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	if s == nil {
		t.Fatal("NewMemoryStore() should not return nil")
	}
}

func TestMemoryStore_PutGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Execute(ctx, "test", Op{Kind: OpPut, Table: "vnode", Key: "k1", Row: Row{"path": "a.go"}})
	if err != nil {
		t.Fatalf("Execute(put) error = %v", err)
	}

	res, err := s.Execute(ctx, "test", Op{Kind: OpGet, Table: "vnode", Key: "k1"})
	if err != nil {
		t.Fatalf("Execute(get) error = %v", err)
	}
	if res.Row["path"] != "a.go" {
		t.Errorf("Row[path] = %v, want a.go", res.Row["path"])
	}
}

func TestMemoryStore_Get_NotFound(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Execute(ctx, "test", Op{Kind: OpGet, Table: "vnode", Key: "missing"})
	if !errors.IsNotFound(err) {
		t.Errorf("Execute(get) error = %v, want NotFound", err)
	}
}

func TestMemoryStore_List(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Execute(ctx, "test", Op{Kind: OpPut, Table: "vnode", Key: "k1", Row: Row{"lang": "go"}})
	s.Execute(ctx, "test", Op{Kind: OpPut, Table: "vnode", Key: "k2", Row: Row{"lang": "rust"}})

	res, err := s.Execute(ctx, "test", Op{Kind: OpList, Table: "vnode"})
	if err != nil {
		t.Fatalf("Execute(list) error = %v", err)
	}
	if len(res.Rows) != 2 {
		t.Errorf("List returned %d rows, want 2", len(res.Rows))
	}

	filtered, err := s.Execute(ctx, "test", Op{Kind: OpList, Table: "vnode", Filter: Row{"lang": "go"}})
	if err != nil {
		t.Fatalf("Execute(list filtered) error = %v", err)
	}
	if len(filtered.Rows) != 1 {
		t.Errorf("filtered List returned %d rows, want 1", len(filtered.Rows))
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Execute(ctx, "test", Op{Kind: OpPut, Table: "vnode", Key: "k1", Row: Row{}})

	if _, err := s.Execute(ctx, "test", Op{Kind: OpDelete, Table: "vnode", Key: "k1"}); err != nil {
		t.Fatalf("Execute(delete) error = %v", err)
	}

	_, err := s.Execute(ctx, "test", Op{Kind: OpGet, Table: "vnode", Key: "k1"})
	if !errors.IsNotFound(err) {
		t.Errorf("Execute(get) after delete = %v, want NotFound", err)
	}
}

func TestMemoryStore_Exists(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	res, _ := s.Execute(ctx, "test", Op{Kind: OpExists, Table: "vnode", Key: "k1"})
	if res.Existed {
		t.Error("Exists() before put = true, want false")
	}

	s.Execute(ctx, "test", Op{Kind: OpPut, Table: "vnode", Key: "k1", Row: Row{}})

	res, _ = s.Execute(ctx, "test", Op{Kind: OpExists, Table: "vnode", Key: "k1"})
	if !res.Existed {
		t.Error("Exists() after put = false, want true")
	}
}

func TestMemoryStore_Incr(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	res, err := s.Execute(ctx, "test", Op{Kind: OpIncr, Table: "file_content", Key: "h1", Field: "ref_count", Delta: 1})
	if err != nil {
		t.Fatalf("Execute(incr) error = %v", err)
	}
	if res.Count != 1 {
		t.Errorf("Count = %d, want 1", res.Count)
	}

	res, err = s.Execute(ctx, "test", Op{Kind: OpIncr, Table: "file_content", Key: "h1", Field: "ref_count", Delta: -1})
	if err != nil {
		t.Fatalf("Execute(incr -1) error = %v", err)
	}
	if res.Count != 0 {
		t.Errorf("Count = %d, want 0", res.Count)
	}
}

func TestMemoryStore_RelateAndTraverse(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Execute(ctx, "test", Op{Kind: OpPut, Table: "code_unit", Key: "a", Row: Row{"name": "a"}})
	s.Execute(ctx, "test", Op{Kind: OpPut, Table: "code_unit", Key: "b", Row: Row{"name": "b"}})
	s.Execute(ctx, "test", Op{Kind: OpPut, Table: "code_unit", Key: "c", Row: Row{"name": "c"}})

	s.Execute(ctx, "test", Op{Kind: OpRelate, Table: "code_unit", Key: "a", EdgeKind: "DEPENDS_ON", Target: "b"})
	s.Execute(ctx, "test", Op{Kind: OpRelate, Table: "code_unit", Key: "b", EdgeKind: "DEPENDS_ON", Target: "c"})

	res, err := s.Execute(ctx, "test", Op{Kind: OpTraverse, Table: "code_unit", Key: "a", EdgeKind: "DEPENDS_ON", Depth: 2})
	if err != nil {
		t.Fatalf("Execute(traverse) error = %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("Traverse returned %d rows, want 2", len(res.Rows))
	}

	if _, err := s.Execute(ctx, "test", Op{Kind: OpUnrelate, Table: "code_unit", Key: "a", EdgeKind: "DEPENDS_ON", Target: "b"}); err != nil {
		t.Fatalf("Execute(unrelate) error = %v", err)
	}
	res, _ = s.Execute(ctx, "test", Op{Kind: OpTraverse, Table: "code_unit", Key: "a", EdgeKind: "DEPENDS_ON", Depth: 2})
	if len(res.Rows) != 0 {
		t.Errorf("Traverse after unrelate returned %d rows, want 0", len(res.Rows))
	}
}

func TestMemoryStore_ExecuteTransaction_Commits(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.ExecuteTransaction(ctx, "test", []Op{
		{Kind: OpPut, Table: "vnode", Key: "k1", Row: Row{"path": "a.go"}},
		{Kind: OpPut, Table: "vnode", Key: "k2", Row: Row{"path": "b.go"}},
	})
	if err != nil {
		t.Fatalf("ExecuteTransaction() error = %v", err)
	}

	res, _ := s.Execute(ctx, "test", Op{Kind: OpList, Table: "vnode"})
	if len(res.Rows) != 2 {
		t.Errorf("List after transaction returned %d rows, want 2", len(res.Rows))
	}
}

func TestMemoryStore_ExecuteTransaction_RollsBackOnFailure(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Execute(ctx, "test", Op{Kind: OpPut, Table: "vnode", Key: "k1", Row: Row{"path": "a.go"}})

	_, err := s.ExecuteTransaction(ctx, "test", []Op{
		{Kind: OpPut, Table: "vnode", Key: "k2", Row: Row{"path": "b.go"}},
		{Kind: OpDelete, Table: "vnode", Key: "does-not-exist"},
	})
	if !errors.Is(err, errors.ErrTransactionAborted) {
		t.Fatalf("ExecuteTransaction() error = %v, want ErrTransactionAborted", err)
	}

	res, _ := s.Execute(ctx, "test", Op{Kind: OpList, Table: "vnode"})
	if len(res.Rows) != 1 {
		t.Errorf("List after aborted transaction returned %d rows, want 1 (rollback should discard k2)", len(res.Rows))
	}
}

func TestMemoryStore_NamespaceIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Execute(ctx, "ns1", Op{Kind: OpPut, Table: "vnode", Key: "k1", Row: Row{"v": "one"}})
	s.Execute(ctx, "ns2", Op{Kind: OpPut, Table: "vnode", Key: "k1", Row: Row{"v": "two"}})

	r1, _ := s.Execute(ctx, "ns1", Op{Kind: OpGet, Table: "vnode", Key: "k1"})
	r2, _ := s.Execute(ctx, "ns2", Op{Kind: OpGet, Table: "vnode", Key: "k1"})

	if r1.Row["v"] == r2.Row["v"] {
		t.Error("namespaces should be isolated")
	}
}

func TestMemoryStore_CopyNamespace(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Execute(ctx, "src", Op{Kind: OpPut, Table: "vnode", Key: "k1", Row: Row{"path": "a.go"}})

	if err := s.CopyNamespace(ctx, "src", "dst", true); err != nil {
		t.Fatalf("CopyNamespace() error = %v", err)
	}

	res, err := s.Execute(ctx, "dst", Op{Kind: OpGet, Table: "vnode", Key: "k1"})
	if err != nil {
		t.Fatalf("Execute(get) on copied namespace error = %v", err)
	}
	if res.Row["path"] != "a.go" {
		t.Errorf("copied row path = %v, want a.go", res.Row["path"])
	}

	// Mutating the copy must not affect the source (deep copy).
	s.Execute(ctx, "dst", Op{Kind: OpPut, Table: "vnode", Key: "k1", Row: Row{"path": "b.go"}})
	res, _ = s.Execute(ctx, "src", Op{Kind: OpGet, Table: "vnode", Key: "k1"})
	if res.Row["path"] != "a.go" {
		t.Errorf("source row mutated after copy: path = %v, want a.go", res.Row["path"])
	}
}

func TestMemoryStore_DestroyNamespace(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Execute(ctx, "test", Op{Kind: OpPut, Table: "vnode", Key: "k1", Row: Row{}})
	if err := s.DestroyNamespace(ctx, "test"); err != nil {
		t.Fatalf("DestroyNamespace() error = %v", err)
	}

	res, _ := s.Execute(ctx, "test", Op{Kind: OpList, Table: "vnode"})
	if len(res.Rows) != 0 {
		t.Errorf("List() after DestroyNamespace returned %d rows, want 0", len(res.Rows))
	}
}

func TestMemoryStore_VectorSearch(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Execute(ctx, "test", Op{Kind: OpPut, Table: "code_unit", Key: "a", Row: Row{"embedding": []float32{1, 0, 0}}})
	s.Execute(ctx, "test", Op{Kind: OpPut, Table: "code_unit", Key: "b", Row: Row{"embedding": []float32{0, 1, 0}}})
	s.Execute(ctx, "test", Op{Kind: OpPut, Table: "code_unit", Key: "c", Row: Row{"embedding": []float32{0.9, 0.1, 0}}})

	matches, err := s.VectorSearch(ctx, "test", "code_unit", "embedding", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("VectorSearch() error = %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("VectorSearch() returned %d matches, want 2", len(matches))
	}
	if matches[0].Distance > matches[1].Distance {
		t.Error("VectorSearch() results should be sorted by ascending distance")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.Execute(ctx, "test", Op{Kind: OpPut, Table: "vnode", Key: string(rune('a' + n%26)), Row: Row{"n": n}})
		}(i)
	}
	wg.Wait()

	res, err := s.Execute(ctx, "test", Op{Kind: OpList, Table: "vnode"})
	if err != nil {
		t.Fatalf("Execute(list) error = %v", err)
	}
	if len(res.Rows) == 0 {
		t.Error("concurrent Put() should have stored rows")
	}
}

func TestMemoryStore_PingAndClose(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
