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

// Package workspace manages the Workspace entity: the top-level container
// a VFS/Graph namespace, its sessions, and its locks all hang off of.
package workspace

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cortex-dev/cortex/pkg/errors"
	"github.com/cortex-dev/cortex/store"
)

// controlNamespace holds cross-workspace bookkeeping rows, distinct from
// any single workspace's own "<workspace>:vfs"/"<workspace>:graph"
// namespaces.
const controlNamespace = "_control"

const table = "workspace"

// SourceType names where a workspace's content originates.
type SourceType string

const (
	SourceLocal            SourceType = "local"
	SourceExternalReadOnly SourceType = "external_readonly"
	SourceFork             SourceType = "fork"
	SourceImportedDocument SourceType = "imported_document"
)

// Type names the project layout a workspace was imported as.
type Type string

const (
	TypeRustCargo           Type = "rust_cargo"
	TypeTypeScriptTurborepo Type = "typescript_turborepo"
	TypeTypeScriptNx        Type = "typescript_nx"
	TypePythonPoetry        Type = "python_poetry"
	TypeGoModules           Type = "go_modules"
	TypeMixed               Type = "mixed"
)

// Workspace is the top-level container for one codebase's vnodes, code
// units, sessions, and locks.
type Workspace struct {
	ID              string
	Name            string
	WorkspaceType   Type
	SourceType      SourceType
	ParentWorkspace string
	Namespace       string
	ReadOnly        bool
	CurrentVersion  int64
	Archived        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CreateSpec is the input to Create.
type CreateSpec struct {
	Name            string
	WorkspaceType   Type
	SourceType      SourceType
	ParentWorkspace string
	ReadOnly        bool
}

// Manager creates, looks up, forks, and archives workspaces.
type Manager struct {
	backend store.Store
}

// New creates a Manager over backend.
func New(backend store.Store) *Manager {
	return &Manager{backend: backend}
}

// Create validates spec against spec.md's Workspace invariants, allocates
// a fresh namespace, and persists the workspace row.
func (m *Manager) Create(ctx context.Context, spec CreateSpec) (*Workspace, error) {
	if spec.Name == "" {
		return nil, errors.ErrInvalidInput.WithMessage("name is required")
	}
	if spec.ReadOnly && spec.SourceType != SourceExternalReadOnly && spec.SourceType != SourceImportedDocument {
		return nil, errors.ErrInvalidInput.WithMessage("read_only requires source_type external_readonly or imported_document")
	}
	if spec.SourceType == SourceFork && spec.ParentWorkspace == "" {
		return nil, errors.ErrInvalidInput.WithMessage("source_type fork requires parent_workspace")
	}
	if spec.SourceType != SourceFork && spec.ParentWorkspace != "" {
		return nil, errors.ErrInvalidInput.WithMessage("parent_workspace is only valid for source_type fork")
	}

	ws := &Workspace{
		ID:              uuid.NewString(),
		Name:            spec.Name,
		WorkspaceType:   spec.WorkspaceType,
		SourceType:      spec.SourceType,
		ParentWorkspace: spec.ParentWorkspace,
		Namespace:       "ws_" + uuid.NewString(),
		ReadOnly:        spec.ReadOnly,
		CurrentVersion:  0,
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}

	if err := m.backend.CreateNamespace(ctx, ws.Namespace+":vfs"); err != nil {
		return nil, errors.ErrInternal.WithMessage("create vfs namespace").Wrap(err)
	}
	if err := m.backend.CreateNamespace(ctx, ws.Namespace+":graph"); err != nil {
		return nil, errors.ErrInternal.WithMessage("create graph namespace").Wrap(err)
	}

	if ws.SourceType == SourceFork {
		parent, err := m.Get(ctx, ws.ParentWorkspace)
		if err != nil {
			return nil, err
		}
		if err := m.backend.CopyNamespace(ctx, parent.Namespace+":vfs", ws.Namespace+":vfs", true); err != nil {
			return nil, errors.ErrInternal.WithMessage("fork vfs namespace").Wrap(err)
		}
		if err := m.backend.CopyNamespace(ctx, parent.Namespace+":graph", ws.Namespace+":graph", true); err != nil {
			return nil, errors.ErrInternal.WithMessage("fork graph namespace").Wrap(err)
		}
		ws.CurrentVersion = parent.CurrentVersion
	}

	if _, err := m.backend.Execute(ctx, controlNamespace, store.Op{
		Kind: store.OpPut, Table: table, Key: ws.ID, Row: toRow(ws),
	}); err != nil {
		return nil, errors.ErrInternal.WithMessage("persist workspace").Wrap(err)
	}
	return ws, nil
}

// Get fetches a workspace by id.
func (m *Manager) Get(ctx context.Context, id string) (*Workspace, error) {
	res, err := m.backend.Execute(ctx, controlNamespace, store.Op{Kind: store.OpGet, Table: table, Key: id})
	if err != nil {
		return nil, err
	}
	return fromRow(res.Row), nil
}

// BumpVersion atomically increments current_version, e.g. on a successful
// merge into the workspace namespace, and returns the new value.
func (m *Manager) BumpVersion(ctx context.Context, id string) (int64, error) {
	res, err := m.backend.Execute(ctx, controlNamespace, store.Op{
		Kind: store.OpIncr, Table: table, Key: id, Field: "current_version", Delta: 1,
	})
	if err != nil {
		return 0, err
	}
	return res.Count, nil
}

// Archive soft-deletes a workspace: it remains readable for history but
// new sessions may not be created against it.
func (m *Manager) Archive(ctx context.Context, id string) error {
	ws, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	ws.Archived = true
	ws.UpdatedAt = time.Now().UTC()
	_, err = m.backend.Execute(ctx, controlNamespace, store.Op{
		Kind: store.OpPut, Table: table, Key: ws.ID, Row: toRow(ws),
	})
	return err
}

// Destroy removes a workspace and cascades namespace removal.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	ws, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := m.backend.DestroyNamespace(ctx, ws.Namespace+":vfs"); err != nil {
		return err
	}
	if err := m.backend.DestroyNamespace(ctx, ws.Namespace+":graph"); err != nil {
		return err
	}
	_, err = m.backend.Execute(ctx, controlNamespace, store.Op{Kind: store.OpDelete, Table: table, Key: id})
	return err
}

func toRow(ws *Workspace) store.Row {
	return store.Row{
		"id":               ws.ID,
		"name":             ws.Name,
		"workspace_type":   string(ws.WorkspaceType),
		"source_type":      string(ws.SourceType),
		"parent_workspace": ws.ParentWorkspace,
		"namespace":        ws.Namespace,
		"read_only":        ws.ReadOnly,
		"current_version":  ws.CurrentVersion,
		"archived":         ws.Archived,
		"created_at":       ws.CreatedAt,
		"updated_at":       ws.UpdatedAt,
	}
}

func fromRow(row store.Row) *Workspace {
	ws := &Workspace{
		ID:              str(row["id"]),
		Name:            str(row["name"]),
		WorkspaceType:   Type(str(row["workspace_type"])),
		SourceType:      SourceType(str(row["source_type"])),
		ParentWorkspace: str(row["parent_workspace"]),
		Namespace:       str(row["namespace"]),
	}
	if v, ok := row["read_only"].(bool); ok {
		ws.ReadOnly = v
	}
	if v, ok := row["archived"].(bool); ok {
		ws.Archived = v
	}
	switch v := row["current_version"].(type) {
	case int64:
		ws.CurrentVersion = v
	case int:
		ws.CurrentVersion = int64(v)
	}
	if v, ok := row["created_at"].(time.Time); ok {
		ws.CreatedAt = v
	}
	if v, ok := row["updated_at"].(time.Time); ok {
		ws.UpdatedAt = v
	}
	return ws
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}
