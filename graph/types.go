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

// Package graph extracts, indexes, and queries CodeUnits and the DEFINES /
// DEPENDS_ON relationships between them, on top of store.Store's graph
// primitives.
package graph

import (
	"time"

	"github.com/cortex-dev/cortex/collaborator"
)

// Status mirrors a CodeUnit's lifecycle relative to the file it belongs
// to: active units are kept, tombstoned ones are retained for history.
type Status string

const (
	StatusActive    Status = "active"
	StatusTombstone Status = "deleted"
)

const (
	// EdgeDefines links a file vnode to every CodeUnit it contains.
	EdgeDefines = "DEFINES"

	// EdgeDependsOn links a CodeUnit to another it references.
	EdgeDependsOn = "DEPENDS_ON"
)

// CodeUnit is one function, method, class, or other named construct
// recovered from source by a collaborator.Parser.
type CodeUnit struct {
	ID            string
	FileVNodeID   string
	UnitType      string
	Name          string
	QualifiedName string // unique within the workspace's active units
	StartLine     int
	EndLine       int
	Signature     string
	Body          string
	Language      string
	Visibility    string
	Complexity    collaborator.Complexity
	Embedding     []float32
	Version       int64
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (u *CodeUnit) clone() *CodeUnit {
	if u == nil {
		return nil
	}
	cp := *u
	if u.Embedding != nil {
		cp.Embedding = append([]float32(nil), u.Embedding...)
	}
	return &cp
}

// Impact is the result of an impact analysis: units directly touched by a
// change, and units reachable transitively within the requested depth.
type Impact struct {
	Direct     []*CodeUnit
	Transitive []*CodeUnit
}

// Cycle is one strongly connected component of size > 1, or a single
// self-referential unit, found in the DEPENDS_ON subgraph.
type Cycle struct {
	UnitIDs []string
}
