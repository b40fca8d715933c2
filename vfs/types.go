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

// Package vfs implements the workspace virtual filesystem: a tree of
// vnodes backed by content-addressed bytes, with full version history and
// copy-on-write semantics for every read, the way core/state's MemoryManager
// never hands out a pointer into its own map.
package vfs

import "time"

// NodeType discriminates what a VNode represents.
type NodeType string

const (
	NodeDirectory NodeType = "directory"
	NodeFile      NodeType = "file"
	NodeSymlink   NodeType = "symlink"
	NodeDocument  NodeType = "document"
)

// Status is the synchronization state of a VNode relative to its
// workspace's upstream, if any.
type Status string

const (
	StatusSynchronized Status = "synchronized"
	StatusModified     Status = "modified"
	StatusCreated      Status = "created"
	StatusDeleted      Status = "deleted"
	StatusMoved        Status = "moved"
	StatusConflict     Status = "conflict"
)

// Operation tags what a VNodeVersion entry recorded.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpMove   Operation = "move"
	OpRename Operation = "rename"
)

// VNode is one entry in the workspace tree: a directory, file, symlink, or
// opaque document.
type VNode struct {
	ID          string
	WorkspaceID string
	Path        string // unique within workspace, normalized, no leading slash
	NodeType    NodeType
	ContentHash string // set iff NodeType == NodeFile
	SizeBytes   int64
	Language    string
	ReadOnly    bool
	Version     int64
	Status      Status
	CreatedBy   string
	UpdatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// clone returns a deep copy of v so callers never share a pointer into the
// store's own bookkeeping.
func (v *VNode) clone() *VNode {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

// VNodeVersion is one append-only history entry for a VNode.
type VNodeVersion struct {
	EntityID    string
	Version     int64
	Operation   Operation
	Snapshot    *VNode // full state of the vnode as of this version
	ContentHash string
	ChangedBy   string
	ChangedAt   time.Time
}

// ListFilter narrows ListDirectory results.
type ListFilter struct {
	NodeType       NodeType // zero value matches every type
	Language       string   // zero value matches every language
	IncludeDeleted bool
}

func (f *ListFilter) matches(v *VNode) bool {
	if f == nil {
		return true
	}
	if f.NodeType != "" && v.NodeType != f.NodeType {
		return false
	}
	if f.Language != "" && v.Language != f.Language {
		return false
	}
	return true
}
