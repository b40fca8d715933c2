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
	"math"
	"sort"
	"sync"

	"github.com/cortex-dev/cortex/pkg/errors"
)

// MemoryStore is an in-process implementation of Store.
//
// MemoryStore organizes rows by namespace and table, guarded by a single
// mutex, with a brute-force cosine-similarity scan standing in for an
// MTREE index. Data is not persisted and is lost when the process exits.
//
// This implementation is suitable for:
//   - Unit tests across every package that depends on Store
//   - The CLI's --store memory mode
//   - Single-instance, low-concurrency deployments
//
// For production use, use SurrealStore.
type MemoryStore struct {
	mu sync.RWMutex

	// namespace -> table -> key -> row
	data map[string]map[string]map[string]Row

	// namespace -> table -> key -> edge kind -> target keys
	edges map[string]map[string]map[string]map[string][]string

	// namespace -> index name -> spec
	indexes map[string]map[string]IndexSpec
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:    make(map[string]map[string]map[string]Row),
		edges:   make(map[string]map[string]map[string]map[string][]string),
		indexes: make(map[string]map[string]IndexSpec),
	}
}

func (m *MemoryStore) table(namespace, name string) map[string]Row {
	ns, ok := m.data[namespace]
	if !ok {
		ns = make(map[string]map[string]Row)
		m.data[namespace] = ns
	}
	t, ok := ns[name]
	if !ok {
		t = make(map[string]Row)
		ns[name] = t
	}
	return t
}

func cloneRow(r Row) Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Execute runs a single Op against a namespace.
func (m *MemoryStore) Execute(ctx context.Context, namespace string, op Op) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.apply(namespace, op)
}

// ExecuteTransaction runs every Op against a scratch copy of the affected
// tables and only commits the copy back if every Op succeeds, giving the
// same all-or-nothing guarantee a real transaction provides.
func (m *MemoryStore) ExecuteTransaction(ctx context.Context, namespace string, ops []Op) ([]*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshotNamespace(namespace)

	results := make([]*Result, 0, len(ops))
	for _, op := range ops {
		res, err := m.apply(namespace, op)
		if err != nil {
			m.restoreNamespace(namespace, snapshot)
			return nil, errors.ErrTransactionAborted.WithMessage(err.Error())
		}
		results = append(results, res)
	}
	return results, nil
}

func (m *MemoryStore) snapshotNamespace(namespace string) map[string]map[string]Row {
	ns, ok := m.data[namespace]
	if !ok {
		return nil
	}
	out := make(map[string]map[string]Row, len(ns))
	for table, rows := range ns {
		t := make(map[string]Row, len(rows))
		for k, v := range rows {
			t[k] = cloneRow(v)
		}
		out[table] = t
	}
	return out
}

func (m *MemoryStore) restoreNamespace(namespace string, snapshot map[string]map[string]Row) {
	if snapshot == nil {
		delete(m.data, namespace)
		return
	}
	m.data[namespace] = snapshot
}

func (m *MemoryStore) apply(namespace string, op Op) (*Result, error) {
	switch op.Kind {
	case OpPut:
		if op.Table == "" || op.Key == "" {
			return nil, errors.ErrInvalidInput.WithMessage("table and key are required for put")
		}
		t := m.table(namespace, op.Table)
		t[op.Key] = cloneRow(op.Row)
		return &Result{}, nil

	case OpGet:
		if op.Table == "" || op.Key == "" {
			return nil, errors.ErrInvalidInput.WithMessage("table and key are required for get")
		}
		ns, ok := m.data[namespace]
		if !ok {
			return nil, errors.ErrNotFound.WithDetail("namespace", namespace).WithDetail("table", op.Table).WithDetail("key", op.Key)
		}
		row, ok := ns[op.Table][op.Key]
		if !ok {
			return nil, errors.ErrNotFound.WithDetail("namespace", namespace).WithDetail("table", op.Table).WithDetail("key", op.Key)
		}
		return &Result{Row: cloneRow(row)}, nil

	case OpList:
		ns, ok := m.data[namespace]
		if !ok {
			return &Result{Rows: []Row{}}, nil
		}
		rows := make([]Row, 0, len(ns[op.Table]))
		for _, row := range ns[op.Table] {
			if matchesFilter(row, op.Filter) {
				rows = append(rows, cloneRow(row))
			}
		}
		return &Result{Rows: rows}, nil

	case OpDelete:
		if op.Table == "" || op.Key == "" {
			return nil, errors.ErrInvalidInput.WithMessage("table and key are required for delete")
		}
		ns, ok := m.data[namespace]
		if !ok {
			return nil, errors.ErrNotFound.WithDetail("namespace", namespace).WithDetail("key", op.Key)
		}
		if _, ok := ns[op.Table][op.Key]; !ok {
			return nil, errors.ErrNotFound.WithDetail("namespace", namespace).WithDetail("key", op.Key)
		}
		delete(ns[op.Table], op.Key)
		return &Result{}, nil

	case OpExists:
		ns, ok := m.data[namespace]
		if !ok {
			return &Result{Existed: false}, nil
		}
		_, ok = ns[op.Table][op.Key]
		return &Result{Existed: ok}, nil

	case OpIncr:
		t := m.table(namespace, op.Table)
		row, ok := t[op.Key]
		if !ok {
			row = Row{}
		}
		var current int64
		if v, ok := row[op.Field]; ok {
			current = toInt64(v)
		}
		current += op.Delta
		row[op.Field] = current
		t[op.Key] = row
		return &Result{Count: current}, nil

	case OpRelate:
		if op.Table == "" || op.Key == "" || op.EdgeKind == "" || op.Target == "" {
			return nil, errors.ErrInvalidInput.WithMessage("table, key, edge kind, and target are required for relate")
		}
		m.edgeSet(namespace, op.Table, op.Key, op.EdgeKind, op.Target)
		return &Result{}, nil

	case OpUnrelate:
		m.edgeUnset(namespace, op.Table, op.Key, op.EdgeKind, op.Target)
		return &Result{}, nil

	case OpTraverse:
		rows := m.traverse(namespace, op.Table, op.Key, op.EdgeKind, op.Depth)
		return &Result{Rows: rows}, nil

	default:
		return nil, errors.ErrInvalidInput.WithMessage("unsupported op kind").WithDetail("kind", string(op.Kind))
	}
}

func matchesFilter(row, filter Row) bool {
	for k, want := range filter {
		if got, ok := row[k]; !ok || got != want {
			return false
		}
	}
	return true
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

func (m *MemoryStore) edgeSet(namespace, table, key, edgeKind, target string) {
	ns, ok := m.edges[namespace]
	if !ok {
		ns = make(map[string]map[string]map[string][]string)
		m.edges[namespace] = ns
	}
	t, ok := ns[table]
	if !ok {
		t = make(map[string]map[string][]string)
		ns[table] = t
	}
	byKind, ok := t[key]
	if !ok {
		byKind = make(map[string][]string)
		t[key] = byKind
	}
	for _, existing := range byKind[edgeKind] {
		if existing == target {
			return
		}
	}
	byKind[edgeKind] = append(byKind[edgeKind], target)
}

func (m *MemoryStore) edgeUnset(namespace, table, key, edgeKind, target string) {
	ns, ok := m.edges[namespace]
	if !ok {
		return
	}
	byKind, ok := ns[table][key]
	if !ok {
		return
	}
	targets := byKind[edgeKind]
	for i, existing := range targets {
		if existing == target {
			byKind[edgeKind] = append(targets[:i], targets[i+1:]...)
			return
		}
	}
}

func (m *MemoryStore) traverse(namespace, table, key, edgeKind string, depth int) []Row {
	if depth <= 0 {
		depth = 1
	}
	visited := map[string]bool{key: true}
	frontier := []string{key}
	var out []Row

	rows := m.data[namespace][table]
	for d := 0; d < depth; d++ {
		var next []string
		for _, k := range frontier {
			targets := m.edges[namespace][table][k][edgeKind]
			for _, t := range targets {
				if visited[t] {
					continue
				}
				visited[t] = true
				next = append(next, t)
				if row, ok := rows[t]; ok {
					out = append(out, cloneRow(row))
				}
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}
	return out
}

// CreateNamespace allocates a new logical partition.
func (m *MemoryStore) CreateNamespace(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[name]; !ok {
		m.data[name] = make(map[string]map[string]Row)
	}
	return nil
}

// DestroyNamespace removes a namespace and every row within it.
func (m *MemoryStore) DestroyNamespace(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, name)
	delete(m.edges, name)
	delete(m.indexes, name)
	return nil
}

// CopyNamespace duplicates src into dst. deep is always honored since the
// in-memory backend has no cheaper sharing mechanism beyond Go's own
// reference semantics for the values stored within each row.
func (m *MemoryStore) CopyNamespace(ctx context.Context, src, dst string, deep bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	srcNS, ok := m.data[src]
	if !ok {
		return errors.ErrNotFound.WithDetail("namespace", src)
	}

	dstNS := make(map[string]map[string]Row, len(srcNS))
	for table, rows := range srcNS {
		t := make(map[string]Row, len(rows))
		for k, v := range rows {
			t[k] = cloneRow(v)
		}
		dstNS[table] = t
	}
	m.data[dst] = dstNS

	if srcEdges, ok := m.edges[src]; ok {
		dstEdges := make(map[string]map[string]map[string][]string, len(srcEdges))
		for table, byKey := range srcEdges {
			tb := make(map[string]map[string][]string, len(byKey))
			for key, byKind := range byKey {
				kb := make(map[string][]string, len(byKind))
				for kind, targets := range byKind {
					cp := make([]string, len(targets))
					copy(cp, targets)
					kb[kind] = cp
				}
				tb[key] = kb
			}
			dstEdges[table] = tb
		}
		m.edges[dst] = dstEdges
	}

	return nil
}

// DefineIndex records the index shape. MemoryStore does not build a real
// index structure; VectorSearch and List instead scan the table directly,
// which is acceptable at the scale this backend targets (tests, single
// instance use).
func (m *MemoryStore) DefineIndex(ctx context.Context, namespace string, spec IndexSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.indexes[namespace]
	if !ok {
		ns = make(map[string]IndexSpec)
		m.indexes[namespace] = ns
	}
	ns[spec.Name] = spec
	return nil
}

// VectorSearch performs a brute-force cosine-similarity scan over every
// row in table, ranking by distance (1 - cosine similarity) ascending.
func (m *MemoryStore) VectorSearch(ctx context.Context, namespace, table, field string, query []float32, k int) ([]VectorMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ns, ok := m.data[namespace]
	if !ok {
		return nil, nil
	}

	matches := make([]VectorMatch, 0, len(ns[table]))
	for _, row := range ns[table] {
		vec, ok := row[field].([]float32)
		if !ok || len(vec) != len(query) {
			continue
		}
		matches = append(matches, VectorMatch{
			Row:      cloneRow(row),
			Distance: 1 - cosineSimilarity(query, vec),
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// Ping always succeeds: there is no connection to lose.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op; there is nothing to release.
func (m *MemoryStore) Close() error {
	return nil
}
