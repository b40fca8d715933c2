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
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cortex-dev/cortex/content"
	"github.com/cortex-dev/cortex/pkg/errors"
	"github.com/cortex-dev/cortex/store"
)

const (
	tableVNode        = "vnode"
	tableVNodeVersion = "vnode_version"
)

// FS is the virtual filesystem for one workspace namespace. Vnode metadata
// lives in the backing store under the namespace the caller supplies; file
// bytes are deduplicated and reference-counted in the shared content store.
type FS struct {
	workspaceID string
	backend     store.Store
	content     *content.Store
}

// New creates a virtual filesystem view over namespace, scoped to
// workspaceID for the VNode.WorkspaceID stamped on every entry it creates.
func New(workspaceID string, backend store.Store, contentStore *content.Store) *FS {
	return &FS{workspaceID: workspaceID, backend: backend, content: contentStore}
}

func versionKey(entityID string, version int64) string {
	return fmt.Sprintf("%s#%d", entityID, version)
}

func rowToVNode(row store.Row) *VNode {
	if row == nil {
		return nil
	}
	v := &VNode{
		ID:          str(row["id"]),
		WorkspaceID: str(row["workspace_id"]),
		Path:        str(row["path"]),
		NodeType:    NodeType(str(row["node_type"])),
		ContentHash: str(row["content_hash"]),
		SizeBytes:   toInt64(row["size_bytes"]),
		Language:    str(row["language"]),
		ReadOnly:    toBool(row["read_only"]),
		Version:     toInt64(row["version"]),
		Status:      Status(str(row["status"])),
		CreatedBy:   str(row["created_by"]),
		UpdatedBy:   str(row["updated_by"]),
	}
	if t, ok := row["created_at"].(time.Time); ok {
		v.CreatedAt = t
	}
	if t, ok := row["updated_at"].(time.Time); ok {
		v.UpdatedAt = t
	}
	return v
}

func vnodeToRow(v *VNode) store.Row {
	return store.Row{
		"id":           v.ID,
		"workspace_id": v.WorkspaceID,
		"path":         v.Path,
		"node_type":    string(v.NodeType),
		"content_hash": v.ContentHash,
		"size_bytes":   v.SizeBytes,
		"language":     v.Language,
		"read_only":    v.ReadOnly,
		"version":      v.Version,
		"status":       string(v.Status),
		"created_by":   v.CreatedBy,
		"updated_by":   v.UpdatedBy,
		"created_at":   v.CreatedAt,
		"updated_at":   v.UpdatedAt,
	}
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func toBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
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

// getNode fetches the live vnode at path, namespace. Returns ErrNotFound if
// absent or tombstoned (unless includeDeleted is true).
func (f *FS) getNode(ctx context.Context, namespace, path string, includeDeleted bool) (*VNode, error) {
	res, err := f.backend.Execute(ctx, namespace, store.Op{Kind: store.OpGet, Table: tableVNode, Key: path})
	if err != nil {
		return nil, err
	}
	if res.Row == nil {
		return nil, errors.ErrNotFound.WithDetail("path", path)
	}
	v := rowToVNode(res.Row)
	if v.Status == StatusDeleted && !includeDeleted {
		return nil, errors.ErrNotFound.WithDetail("path", path)
	}
	return v, nil
}

// putVersionOp builds the op that appends a VNodeVersion snapshot for entity.
func putVersionOp(entity *VNode, op Operation, changedBy string) store.Op {
	return store.Op{
		Kind:  store.OpPut,
		Table: tableVNodeVersion,
		Key:   versionKey(entity.ID, entity.Version),
		Row: store.Row{
			"entity_id":    entity.ID,
			"version":      entity.Version,
			"operation":    string(op),
			"snapshot":     vnodeToRow(entity),
			"content_hash": entity.ContentHash,
			"changed_by":   changedBy,
			"changed_at":   time.Now(),
		},
	}
}

// ReadFile returns the bytes and current metadata of the file at path.
func (f *FS) ReadFile(ctx context.Context, namespace, path string) ([]byte, *VNode, error) {
	path, err := normalizePath(path)
	if err != nil {
		return nil, nil, err
	}
	v, err := f.getNode(ctx, namespace, path, false)
	if err != nil {
		return nil, nil, err
	}
	if v.NodeType != NodeFile {
		return nil, nil, errors.ErrInvalidInput.WithMessage("not a file").WithDetail("path", path)
	}
	data, err := f.content.Get(ctx, namespace, v.ContentHash)
	if err != nil {
		return nil, nil, err
	}
	return data, v.clone(), nil
}

// WriteFile creates or updates the file at path with data. A write whose
// bytes and language exactly match the current version is a no-op; a write
// with unchanged bytes but different metadata still bumps the version, per
// the workspace history invariant that every mutating operation advances
// version and appends a VNodeVersion.
func (f *FS) WriteFile(ctx context.Context, namespace, path string, data []byte, language, actor string) (*VNode, error) {
	path, err := normalizePath(path)
	if err != nil {
		return nil, err
	}
	if path == RootPath {
		return nil, errors.ErrInvalidInput.WithMessage("cannot write to workspace root")
	}
	parent := parentOf(path)
	if parent != RootPath {
		if _, err := f.getNode(ctx, namespace, parent, false); err != nil {
			return nil, errors.ErrNotFound.WithMessage("parent directory does not exist").WithDetail("path", parent)
		}
	}

	hash, err := f.content.Put(ctx, namespace, data)
	if err != nil {
		return nil, err
	}

	existing, err := f.getNode(ctx, namespace, path, true)
	notFound := errors.IsNotFound(err)
	if err != nil && !notFound {
		return nil, err
	}

	now := time.Now()
	if !notFound && existing.Status != StatusDeleted {
		if existing.ContentHash == hash && existing.Language == language {
			return existing.clone(), nil
		}

		prevHash := existing.ContentHash
		next := existing.clone()
		next.ContentHash = hash
		next.SizeBytes = int64(len(data))
		next.Language = language
		next.Version++
		next.Status = StatusModified
		next.UpdatedBy = actor
		next.UpdatedAt = now

		ops := []store.Op{
			{Kind: store.OpPut, Table: tableVNode, Key: path, Row: vnodeToRow(next)},
			putVersionOp(next, OpUpdate, actor),
		}
		if _, err := f.backend.ExecuteTransaction(ctx, namespace, ops); err != nil {
			return nil, err
		}
		if prevHash != "" && prevHash != hash {
			_ = f.content.Release(ctx, namespace, prevHash)
		}
		return next.clone(), nil
	}

	v := &VNode{
		ID:          uuid.NewString(),
		WorkspaceID: f.workspaceID,
		Path:        path,
		NodeType:    NodeFile,
		ContentHash: hash,
		SizeBytes:   int64(len(data)),
		Language:    language,
		Version:     1,
		Status:      StatusCreated,
		CreatedBy:   actor,
		UpdatedBy:   actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	ops := []store.Op{
		{Kind: store.OpPut, Table: tableVNode, Key: path, Row: vnodeToRow(v)},
		putVersionOp(v, OpCreate, actor),
	}
	if _, err := f.backend.ExecuteTransaction(ctx, namespace, ops); err != nil {
		return nil, err
	}
	return v.clone(), nil
}

// CreateDirectory creates a directory vnode at path. If createParents is
// true, missing ancestor directories are created along the way; otherwise
// a missing parent is an error.
func (f *FS) CreateDirectory(ctx context.Context, namespace, path string, createParents bool, actor string) (*VNode, error) {
	path, err := normalizePath(path)
	if err != nil {
		return nil, err
	}
	if path == RootPath {
		return nil, errors.ErrInvalidInput.WithMessage("workspace root always exists")
	}

	if existing, err := f.getNode(ctx, namespace, path, false); err == nil {
		if existing.NodeType != NodeDirectory {
			return nil, errors.ErrAlreadyExists.WithDetail("path", path)
		}
		return existing.clone(), nil
	}

	parent := parentOf(path)
	if parent != RootPath {
		if _, err := f.getNode(ctx, namespace, parent, false); err != nil {
			if !createParents {
				return nil, errors.ErrNotFound.WithMessage("parent directory does not exist").WithDetail("path", parent)
			}
			if _, err := f.CreateDirectory(ctx, namespace, parent, true, actor); err != nil {
				return nil, err
			}
		}
	}

	now := time.Now()
	v := &VNode{
		ID:          uuid.NewString(),
		WorkspaceID: f.workspaceID,
		Path:        path,
		NodeType:    NodeDirectory,
		Version:     1,
		Status:      StatusCreated,
		CreatedBy:   actor,
		UpdatedBy:   actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	ops := []store.Op{
		{Kind: store.OpPut, Table: tableVNode, Key: path, Row: vnodeToRow(v)},
		putVersionOp(v, OpCreate, actor),
	}
	if _, err := f.backend.ExecuteTransaction(ctx, namespace, ops); err != nil {
		return nil, err
	}
	return v.clone(), nil
}

// Delete tombstones the vnode at path. Deleting a directory with children
// requires recursive=true, in which case every descendant is tombstoned
// too and its content reference released.
func (f *FS) Delete(ctx context.Context, namespace, path string, recursive bool, actor string) error {
	path, err := normalizePath(path)
	if err != nil {
		return err
	}
	v, err := f.getNode(ctx, namespace, path, false)
	if err != nil {
		return err
	}

	victims := []*VNode{v}
	if v.NodeType == NodeDirectory {
		children, err := f.listAll(ctx, namespace)
		if err != nil {
			return err
		}
		var descendants []*VNode
		for _, c := range children {
			if c.Status != StatusDeleted && isDescendant(path, c.Path) {
				descendants = append(descendants, c)
			}
		}
		if len(descendants) > 0 && !recursive {
			return errors.ErrInvalidInput.WithMessage("directory not empty; recursive required").WithDetail("path", path)
		}
		victims = append(victims, descendants...)
	}

	now := time.Now()
	var ops []store.Op
	var releaseHashes []string
	for _, victim := range victims {
		next := victim.clone()
		next.Version++
		next.Status = StatusDeleted
		next.UpdatedBy = actor
		next.UpdatedAt = now
		ops = append(ops,
			store.Op{Kind: store.OpPut, Table: tableVNode, Key: next.Path, Row: vnodeToRow(next)},
			putVersionOp(next, OpDelete, actor),
		)
		if next.ContentHash != "" {
			releaseHashes = append(releaseHashes, next.ContentHash)
		}
	}

	if _, err := f.backend.ExecuteTransaction(ctx, namespace, ops); err != nil {
		return err
	}
	for _, h := range releaseHashes {
		_ = f.content.Release(ctx, namespace, h)
	}
	return nil
}

// Move relocates the vnode at src to dst, preserving its version history
// under the new path. Moving onto an existing, non-deleted dst fails
// unless overwrite is true.
func (f *FS) Move(ctx context.Context, namespace, src, dst string, overwrite bool, actor string) (*VNode, error) {
	return f.relocate(ctx, namespace, src, dst, overwrite, actor, true)
}

// Copy duplicates the vnode at src to dst as a new entity sharing the same
// content (reference-counted), starting a fresh version history at dst.
func (f *FS) Copy(ctx context.Context, namespace, src, dst string, overwrite bool, actor string) (*VNode, error) {
	return f.relocate(ctx, namespace, src, dst, overwrite, actor, false)
}

func (f *FS) relocate(ctx context.Context, namespace, src, dst string, overwrite bool, actor string, move bool) (*VNode, error) {
	src, err := normalizePath(src)
	if err != nil {
		return nil, err
	}
	dst, err = normalizePath(dst)
	if err != nil {
		return nil, err
	}

	srcNode, err := f.getNode(ctx, namespace, src, false)
	if err != nil {
		return nil, err
	}

	if dstExisting, err := f.getNode(ctx, namespace, dst, false); err == nil {
		if !overwrite {
			return nil, errors.ErrAlreadyExists.WithDetail("path", dst)
		}
		if err := f.Delete(ctx, namespace, dstExisting.Path, true, actor); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	var ops []store.Op

	if move {
		next := srcNode.clone()
		next.Path = dst
		next.Version++
		next.Status = StatusMoved
		next.UpdatedBy = actor
		next.UpdatedAt = now

		ops = append(ops,
			store.Op{Kind: store.OpDelete, Table: tableVNode, Key: src},
			store.Op{Kind: store.OpPut, Table: tableVNode, Key: dst, Row: vnodeToRow(next)},
			putVersionOp(next, OpMove, actor),
		)
		if _, err := f.backend.ExecuteTransaction(ctx, namespace, ops); err != nil {
			return nil, err
		}
		return next.clone(), nil
	}

	copyNode := srcNode.clone()
	copyNode.ID = uuid.NewString()
	copyNode.Path = dst
	copyNode.Version = 1
	copyNode.Status = StatusCreated
	copyNode.CreatedBy = actor
	copyNode.UpdatedBy = actor
	copyNode.CreatedAt = now
	copyNode.UpdatedAt = now

	ops = append(ops,
		store.Op{Kind: store.OpPut, Table: tableVNode, Key: dst, Row: vnodeToRow(copyNode)},
		putVersionOp(copyNode, OpCreate, actor),
	)
	if _, err := f.backend.ExecuteTransaction(ctx, namespace, ops); err != nil {
		return nil, err
	}
	if copyNode.ContentHash != "" {
		if err := f.content.Acquire(ctx, namespace, copyNode.ContentHash); err != nil {
			return nil, err
		}
	}
	return copyNode.clone(), nil
}

func (f *FS) listAll(ctx context.Context, namespace string) ([]*VNode, error) {
	res, err := f.backend.Execute(ctx, namespace, store.Op{Kind: store.OpList, Table: tableVNode})
	if err != nil {
		return nil, err
	}
	out := make([]*VNode, 0, len(res.Rows))
	for _, row := range res.Rows {
		out = append(out, rowToVNode(row))
	}
	return out, nil
}

// ListDirectory lists the vnodes directly under path, or every descendant
// when recursive is true. The workspace root is addressed by RootPath.
func (f *FS) ListDirectory(ctx context.Context, namespace, path string, recursive bool, filter *ListFilter) ([]*VNode, error) {
	path, err := normalizePath(path)
	if err != nil {
		return nil, err
	}
	if path != RootPath {
		dir, err := f.getNode(ctx, namespace, path, false)
		if err != nil {
			return nil, err
		}
		if dir.NodeType != NodeDirectory {
			return nil, errors.ErrInvalidInput.WithMessage("not a directory").WithDetail("path", path)
		}
	}

	all, err := f.listAll(ctx, namespace)
	if err != nil {
		return nil, err
	}

	includeDeleted := filter != nil && filter.IncludeDeleted
	var out []*VNode
	for _, v := range all {
		if v.Path == path {
			continue
		}
		if v.Status == StatusDeleted && !includeDeleted {
			continue
		}
		if recursive {
			if !isDescendant(path, v.Path) {
				continue
			}
		} else if !isDirectChild(path, v.Path) {
			continue
		}
		if !filter.matches(v) {
			continue
		}
		out = append(out, v.clone())
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// GetHistory returns up to limit VNodeVersion entries for path, newest
// first. limit <= 0 means unbounded.
func (f *FS) GetHistory(ctx context.Context, namespace, path string, limit int) ([]*VNodeVersion, error) {
	path, err := normalizePath(path)
	if err != nil {
		return nil, err
	}
	v, err := f.getNode(ctx, namespace, path, true)
	if err != nil {
		return nil, err
	}

	res, err := f.backend.Execute(ctx, namespace, store.Op{Kind: store.OpList, Table: tableVNodeVersion})
	if err != nil {
		return nil, err
	}

	var out []*VNodeVersion
	for _, row := range res.Rows {
		if str(row["entity_id"]) != v.ID {
			continue
		}
		out = append(out, rowToVersion(row))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func rowToVersion(row store.Row) *VNodeVersion {
	vv := &VNodeVersion{
		EntityID:    str(row["entity_id"]),
		Version:     toInt64(row["version"]),
		Operation:   Operation(str(row["operation"])),
		ContentHash: str(row["content_hash"]),
		ChangedBy:   str(row["changed_by"]),
	}
	if snap, ok := row["snapshot"].(store.Row); ok {
		vv.Snapshot = rowToVNode(snap)
	}
	if t, ok := row["changed_at"].(time.Time); ok {
		vv.ChangedAt = t
	}
	return vv
}

// Restore reverts the vnode at path to the state recorded at targetVersion,
// recording the restoration itself as a new version rather than rewriting
// history.
func (f *FS) Restore(ctx context.Context, namespace, path string, targetVersion int64, actor string) (*VNode, error) {
	path, err := normalizePath(path)
	if err != nil {
		return nil, err
	}
	current, err := f.getNode(ctx, namespace, path, true)
	if err != nil {
		return nil, err
	}

	history, err := f.GetHistory(ctx, namespace, path, 0)
	if err != nil {
		return nil, err
	}

	var target *VNode
	for _, h := range history {
		if h.Version == targetVersion && h.Snapshot != nil {
			target = h.Snapshot
			break
		}
	}
	if target == nil {
		return nil, errors.ErrNotFound.WithMessage("version not found").WithDetail("version", fmt.Sprintf("%d", targetVersion))
	}

	restored := target.clone()
	restored.ID = current.ID
	restored.Path = current.Path
	restored.Version = current.Version + 1
	restored.Status = StatusModified
	restored.UpdatedBy = actor
	restored.UpdatedAt = time.Now()

	ops := []store.Op{
		{Kind: store.OpPut, Table: tableVNode, Key: path, Row: vnodeToRow(restored)},
		putVersionOp(restored, OpUpdate, actor),
	}
	if _, err := f.backend.ExecuteTransaction(ctx, namespace, ops); err != nil {
		return nil, err
	}

	if restored.ContentHash != "" && restored.ContentHash != current.ContentHash {
		if err := f.content.Acquire(ctx, namespace, restored.ContentHash); err != nil {
			return nil, err
		}
		if current.ContentHash != "" {
			_ = f.content.Release(ctx, namespace, current.ContentHash)
		}
	}

	return restored.clone(), nil
}
