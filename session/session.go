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

package session

import (
	"context"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/cortex-dev/cortex/pkg/errors"
	"github.com/cortex-dev/cortex/store"
	"github.com/cortex-dev/cortex/vfs"
	"github.com/cortex-dev/cortex/workspace"
)

const (
	controlNamespace = "_control"
	table            = "session"
	tableUnit        = "code_unit"
)

// Engine creates, forks, and terminates sessions against a shared
// workspace manager and backing store.
type Engine struct {
	backend    store.Store
	workspaces *workspace.Manager
	defaultTTL time.Duration
}

// New creates an Engine. defaultTTL is applied when CreateSpec.TTL is zero.
func New(backend store.Store, workspaces *workspace.Manager, defaultTTL time.Duration) *Engine {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &Engine{backend: backend, workspaces: workspaces, defaultTTL: defaultTTL}
}

// CreateSpec is the input to Create.
type CreateSpec struct {
	AgentID        string
	WorkspaceID    string
	IsolationLevel IsolationLevel
	Scope          Scope
	TTL            time.Duration
}

// Create allocates a fresh namespace, copy-on-write forks the workspace's
// in-scope vnodes and code units into it, and marks the session active.
func (e *Engine) Create(ctx context.Context, spec CreateSpec) (*Session, error) {
	if spec.AgentID == "" || spec.WorkspaceID == "" {
		return nil, errors.ErrInvalidInput.WithMessage("agent_id and workspace_id are required")
	}
	if len(spec.Scope.ReadWritePaths) == 0 && len(spec.Scope.ReadOnlyPaths) == 0 {
		return nil, errors.ErrInvalidInput.WithMessage("scope must name at least one path pattern")
	}
	if spec.IsolationLevel == "" {
		spec.IsolationLevel = IsolationSnapshot
	}

	ws, err := e.workspaces.Get(ctx, spec.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if ws.Archived {
		return nil, errors.ErrReadOnly.WithMessage("workspace is archived").WithDetail("workspace_id", ws.ID)
	}

	ttl := spec.TTL
	if ttl <= 0 {
		ttl = e.defaultTTL
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:             "session_" + uuid.NewString(),
		AgentID:        spec.AgentID,
		WorkspaceID:    spec.WorkspaceID,
		Namespace:      "session_" + uuid.NewString(),
		IsolationLevel: spec.IsolationLevel,
		Scope:          spec.Scope,
		BaseVersion:    ws.CurrentVersion,
		Status:         StatusActive,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}

	if err := e.backend.CreateNamespace(ctx, sess.Namespace+":vfs"); err != nil {
		return nil, errors.ErrInternal.WithMessage("create session vfs namespace").Wrap(err)
	}
	if err := e.backend.CreateNamespace(ctx, sess.Namespace+":graph"); err != nil {
		return nil, errors.ErrInternal.WithMessage("create session graph namespace").Wrap(err)
	}

	if err := e.fork(ctx, ws.Namespace, sess); err != nil {
		return nil, err
	}

	if err := e.put(ctx, sess); err != nil {
		return nil, err
	}
	return sess.clone(), nil
}

// fork copy-on-write clones ws's vfs/graph namespaces into sess's, then
// prunes rows outside sess's scope.
func (e *Engine) fork(ctx context.Context, wsNamespace string, sess *Session) error {
	if err := e.backend.CopyNamespace(ctx, wsNamespace+":vfs", sess.Namespace+":vfs", true); err != nil {
		return errors.ErrInternal.WithMessage("fork vfs namespace").Wrap(err)
	}
	if err := e.backend.CopyNamespace(ctx, wsNamespace+":graph", sess.Namespace+":graph", true); err != nil {
		return errors.ErrInternal.WithMessage("fork graph namespace").Wrap(err)
	}

	fs := vfs.New(sess.WorkspaceID, e.backend, nil)
	entries, err := fs.ListDirectory(ctx, sess.Namespace+":vfs", vfs.RootPath, true, &vfs.ListFilter{IncludeDeleted: true})
	if err != nil {
		return errors.ErrInternal.WithMessage("list forked vnodes").Wrap(err)
	}

	outOfScope := make(map[string]bool)
	for _, v := range entries {
		if v.Path == vfs.RootPath {
			continue
		}
		if !inScope(v.Path, sess.Scope) {
			outOfScope[v.ID] = true
			if _, err := e.backend.Execute(ctx, sess.Namespace+":vfs", store.Op{
				Kind: store.OpDelete, Table: "vnode", Key: v.Path,
			}); err != nil {
				return errors.ErrInternal.WithMessage("prune out-of-scope vnode").Wrap(err)
			}
		}
	}
	if len(outOfScope) == 0 {
		return nil
	}

	res, err := e.backend.Execute(ctx, sess.Namespace+":graph", store.Op{Kind: store.OpList, Table: tableUnit})
	if err != nil {
		return errors.ErrInternal.WithMessage("list forked code units").Wrap(err)
	}
	for _, row := range res.Rows {
		fileID, _ := row["file_vnode_id"].(string)
		if !outOfScope[fileID] {
			continue
		}
		id, _ := row["id"].(string)
		if _, err := e.backend.Execute(ctx, sess.Namespace+":graph", store.Op{
			Kind: store.OpDelete, Table: tableUnit, Key: id,
		}); err != nil {
			return errors.ErrInternal.WithMessage("prune out-of-scope code unit").Wrap(err)
		}
	}
	return nil
}

// inScope reports whether p is covered by scope's read_write or
// read_only glob patterns.
func inScope(p string, scope Scope) bool {
	return matchesAny(p, scope.ReadWritePaths) || matchesAny(p, scope.ReadOnlyPaths)
}

// isWritable reports whether p may be mutated under scope: matched by a
// read_write_path glob and by no read_only_path glob.
func isWritable(p string, scope Scope) bool {
	return matchesAny(p, scope.ReadWritePaths) && !matchesAny(p, scope.ReadOnlyPaths)
}

func matchesAny(p string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, p); err == nil && ok {
			return true
		}
	}
	return false
}

// Get fetches a session by id.
func (e *Engine) Get(ctx context.Context, id string) (*Session, error) {
	res, err := e.backend.Execute(ctx, controlNamespace, store.Op{Kind: store.OpGet, Table: table, Key: id})
	if err != nil {
		return nil, err
	}
	return fromRow(res.Row), nil
}

// RecordChange appends a change to sess's change_set and checks that
// path is writable under sess's scope.
func (e *Engine) RecordChange(ctx context.Context, sessionID, path string, ch Change) error {
	sess, err := e.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status != StatusActive {
		return errors.ErrReadOnly.WithMessage("session is not active").WithDetail("status", string(sess.Status))
	}
	if !isWritable(path, sess.Scope) {
		return errors.ErrPermissionDenied.WithMessage("path is outside session's read_write scope").WithDetail("path", path)
	}
	sess.ChangeSet = append(sess.ChangeSet, ch)
	return e.put(ctx, sess)
}

// MarkMerging transitions an active session into merging, the state the
// merge engine holds it in while it attempts conflict resolution.
func (e *Engine) MarkMerging(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := e.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != StatusActive {
		return nil, errors.ErrReadOnly.WithMessage("only an active session can begin merging").WithDetail("status", string(sess.Status))
	}
	sess.Status = StatusMerging
	if err := e.put(ctx, sess); err != nil {
		return nil, err
	}
	return sess.clone(), nil
}

// Complete marks a session completed and destroys its namespace,
// releasing the isolated view. Called by the merge engine after a
// successful commit.
func (e *Engine) Complete(ctx context.Context, sessionID string) error {
	sess, err := e.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.Status = StatusCompleted
	if err := e.destroyNamespace(ctx, sess); err != nil {
		return err
	}
	return e.put(ctx, sess)
}

// Abort discards all session changes and destroys its namespace
// immediately, from any non-terminal state.
func (e *Engine) Abort(ctx context.Context, sessionID string) error {
	sess, err := e.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status == StatusCompleted || sess.Status == StatusAborted {
		return errors.ErrReadOnly.WithMessage("session already terminal").WithDetail("status", string(sess.Status))
	}
	sess.Status = StatusAborted
	if err := e.destroyNamespace(ctx, sess); err != nil {
		return err
	}
	return e.put(ctx, sess)
}

// ExpireOverdue aborts every active/suspended/merging session whose TTL
// has elapsed as of now, mirroring the lock sweeper's reclamation pass.
func (e *Engine) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	res, err := e.backend.Execute(ctx, controlNamespace, store.Op{Kind: store.OpList, Table: table})
	if err != nil {
		return 0, err
	}
	count := 0
	for _, row := range res.Rows {
		sess := fromRow(row)
		if sess.Status == StatusCompleted || sess.Status == StatusAborted {
			continue
		}
		if !sess.IsExpired(now) {
			continue
		}
		if err := e.Abort(ctx, sess.ID); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (e *Engine) destroyNamespace(ctx context.Context, sess *Session) error {
	if err := e.backend.DestroyNamespace(ctx, sess.Namespace+":vfs"); err != nil {
		return errors.ErrInternal.WithMessage("destroy session vfs namespace").Wrap(err)
	}
	if err := e.backend.DestroyNamespace(ctx, sess.Namespace+":graph"); err != nil {
		return errors.ErrInternal.WithMessage("destroy session graph namespace").Wrap(err)
	}
	return nil
}

func (e *Engine) put(ctx context.Context, sess *Session) error {
	_, err := e.backend.Execute(ctx, controlNamespace, store.Op{Kind: store.OpPut, Table: table, Key: sess.ID, Row: toRow(sess)})
	return err
}

func toRow(sess *Session) store.Row {
	changes := make([]interface{}, 0, len(sess.ChangeSet))
	for _, ch := range sess.ChangeSet {
		changes = append(changes, store.Row{
			"op":         string(ch.Op),
			"entity_ref": ch.EntityRef,
			"old_hash":   ch.OldHash,
			"new_hash":   ch.NewHash,
			"at":         ch.At,
		})
	}
	return store.Row{
		"id":                sess.ID,
		"agent_id":          sess.AgentID,
		"workspace_id":      sess.WorkspaceID,
		"namespace":         sess.Namespace,
		"isolation_level":   string(sess.IsolationLevel),
		"read_write_paths":  sess.Scope.ReadWritePaths,
		"read_only_paths":   sess.Scope.ReadOnlyPaths,
		"specific_unit_ids": sess.Scope.SpecificUnitIDs,
		"base_version":      sess.BaseVersion,
		"status":            string(sess.Status),
		"change_set":        changes,
		"created_at":        sess.CreatedAt,
		"expires_at":        sess.ExpiresAt,
	}
}

func fromRow(row store.Row) *Session {
	sess := &Session{
		ID:             str(row["id"]),
		AgentID:        str(row["agent_id"]),
		WorkspaceID:    str(row["workspace_id"]),
		Namespace:      str(row["namespace"]),
		IsolationLevel: IsolationLevel(str(row["isolation_level"])),
		Status:         Status(str(row["status"])),
		Scope: Scope{
			ReadWritePaths:  toStrings(row["read_write_paths"]),
			ReadOnlyPaths:   toStrings(row["read_only_paths"]),
			SpecificUnitIDs: toStrings(row["specific_unit_ids"]),
		},
	}
	switch v := row["base_version"].(type) {
	case int64:
		sess.BaseVersion = v
	case int:
		sess.BaseVersion = int64(v)
	}
	if v, ok := row["created_at"].(time.Time); ok {
		sess.CreatedAt = v
	}
	if v, ok := row["expires_at"].(time.Time); ok {
		sess.ExpiresAt = v
	}
	if raw, ok := row["change_set"].([]interface{}); ok {
		for _, item := range raw {
			cr, ok := item.(store.Row)
			if !ok {
				continue
			}
			ch := Change{
				Op:        ChangeOp(str(cr["op"])),
				EntityRef: str(cr["entity_ref"]),
				OldHash:   str(cr["old_hash"]),
				NewHash:   str(cr["new_hash"]),
			}
			if at, ok := cr["at"].(time.Time); ok {
				ch.At = at
			}
			sess.ChangeSet = append(sess.ChangeSet, ch)
		}
	}
	return sess
}

func toStrings(v interface{}) []string {
	raw, ok := v.([]string)
	if ok {
		return append([]string(nil), raw...)
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}
