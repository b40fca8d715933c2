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

// Package version provides the append-only (entity_id, version) history
// table shared by every entity kind that needs one, generalized from
// evalgo-org-eve's couchdb repository's _id/_rev preserve-revision-then-PUT
// pattern into a discriminated-operation log instead of a single current
// revision.
package version

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cortex-dev/cortex/pkg/errors"
	"github.com/cortex-dev/cortex/store"
)

// Operation tags what a History entry recorded.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpMove   Operation = "move"
	OpRename Operation = "rename"
)

// Entry is one append-only history record.
type Entry struct {
	EntityID  string
	Version   int64
	Operation Operation
	Snapshot  store.Row // full state of the entity as of this version
	ChangedBy string
	ChangedAt time.Time
}

// History is an append-only version log for one entity kind, keyed by
// (entity_id, version). (entity_id, version) is unique and versions form a
// gap-free monotonic sequence per entity, enforced by callers incrementing
// Entity.Version themselves before calling Append.
type History struct {
	backend store.Store
	table   string
}

// New creates a History over table within whatever namespace callers pass
// to its methods.
func New(backend store.Store, table string) *History {
	return &History{backend: backend, table: table}
}

func entryKey(entityID string, ver int64) string {
	return fmt.Sprintf("%s#%d", entityID, ver)
}

// AppendOp builds the store.Op to append entry, for callers that need to
// commit it alongside other operations in one transaction.
func (h *History) AppendOp(entry Entry) store.Op {
	return store.Op{
		Kind:  store.OpPut,
		Table: h.table,
		Key:   entryKey(entry.EntityID, entry.Version),
		Row: store.Row{
			"entity_id":  entry.EntityID,
			"version":    entry.Version,
			"operation":  string(entry.Operation),
			"snapshot":   entry.Snapshot,
			"changed_by": entry.ChangedBy,
			"changed_at": entry.ChangedAt,
		},
	}
}

// Append records entry directly, outside of any caller-managed transaction.
func (h *History) Append(ctx context.Context, namespace string, entry Entry) error {
	_, err := h.backend.Execute(ctx, namespace, h.AppendOp(entry))
	return err
}

// List returns up to limit entries for entityID, newest first. limit <= 0
// means unbounded.
func (h *History) List(ctx context.Context, namespace, entityID string, limit int) ([]Entry, error) {
	res, err := h.backend.Execute(ctx, namespace, store.Op{
		Kind: store.OpList, Table: h.table, Filter: store.Row{"entity_id": entityID},
	})
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(res.Rows))
	for _, row := range res.Rows {
		out = append(out, rowToEntry(row))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// At returns the entry recorded for entityID at exactly version.
func (h *History) At(ctx context.Context, namespace, entityID string, ver int64) (*Entry, error) {
	res, err := h.backend.Execute(ctx, namespace, store.Op{
		Kind: store.OpGet, Table: h.table, Key: entryKey(entityID, ver),
	})
	if err != nil {
		return nil, errors.ErrNotFound.WithDetail("entity_id", entityID).WithDetail("version", fmt.Sprintf("%d", ver))
	}
	entry := rowToEntry(res.Row)
	return &entry, nil
}

func rowToEntry(row store.Row) Entry {
	e := Entry{
		EntityID:  str(row["entity_id"]),
		Operation: Operation(str(row["operation"])),
		ChangedBy: str(row["changed_by"]),
	}
	if v, ok := row["version"].(int64); ok {
		e.Version = v
	} else if v, ok := row["version"].(int); ok {
		e.Version = int64(v)
	}
	if snap, ok := row["snapshot"].(store.Row); ok {
		e.Snapshot = snap
	}
	if t, ok := row["changed_at"].(time.Time); ok {
		e.ChangedAt = t
	}
	return e
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}
