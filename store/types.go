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

// Package store provides the typed query/transaction surface every other
// package in this module persists through. It hides whether the physical
// backend is an in-process map, a local SurrealDB instance, or a remote
// cluster behind a single interface (Store) supporting namespaces, secondary
// indexes, MTREE vector similarity search, and multi-statement transactions.
package store

import (
	"context"
	"time"
)

// OpKind discriminates the statement a Op performs. Every backend
// translates the same OpKind the same way, whether it executes it as a
// SurrealQL statement, a SQL statement, or a plain map mutation.
type OpKind string

const (
	// OpPut upserts Row at Table/Key, overwriting any existing row.
	OpPut OpKind = "put"

	// OpGet fetches the row at Table/Key.
	OpGet OpKind = "get"

	// OpList returns every row in Table, optionally narrowed by Filter.
	OpList OpKind = "list"

	// OpDelete removes the row at Table/Key.
	OpDelete OpKind = "delete"

	// OpExists reports whether Table/Key has a row.
	OpExists OpKind = "exists"

	// OpIncr atomically adds Delta to the integer field named by Field on
	// the row at Table/Key, creating the row with value Delta if absent.
	OpIncr OpKind = "incr"

	// OpRelate creates a graph edge of kind EdgeKind from Key (the source
	// record) to Target, with Row as edge properties.
	OpRelate OpKind = "relate"

	// OpUnrelate removes the graph edge of kind EdgeKind from Key to Target.
	OpUnrelate OpKind = "unrelate"

	// OpTraverse follows EdgeKind edges outward from Key up to Depth hops
	// and returns the reached rows.
	OpTraverse OpKind = "traverse"
)

// Op is one statement submitted to Execute, or one element of a batch
// submitted to ExecuteTransaction.
type Op struct {
	Kind OpKind

	// Table names the logical collection the op addresses (e.g. "vnode",
	// "code_unit", "lock"). Every backend maps Table to its own notion of
	// a table/collection within the caller's namespace.
	Table string

	// Key identifies a single row within Table. Required for Get, Put,
	// Delete, Exists, Incr, Relate, Unrelate, Traverse.
	Key string

	// Row holds the fields to write for Put, or the edge properties for
	// Relate.
	Row Row

	// Field and Delta parameterize Incr.
	Field string
	Delta int64

	// Filter narrows List to rows whose fields match every entry exactly.
	// An empty Filter matches every row in Table.
	Filter Row

	// EdgeKind and Target parameterize Relate, Unrelate, and Traverse.
	EdgeKind string
	Target   string
	Depth    int
}

// Row is a single decoded record. Field names follow whatever convention
// the calling package uses when it builds the Op; backends preserve them
// verbatim.
type Row map[string]interface{}

// Result is the outcome of a single Op.
type Result struct {
	// Row is set by Get when the row exists.
	Row Row

	// Rows is set by List and Traverse.
	Rows []Row

	// Existed is set by Exists.
	Existed bool

	// Count is set by Incr to the post-increment value.
	Count int64
}

// IndexKind identifies the kind of secondary index DefineIndex creates.
type IndexKind string

const (
	// IndexUnique enforces uniqueness of the indexed field(s).
	IndexUnique IndexKind = "unique"

	// IndexStandard is a non-unique lookup index.
	IndexStandard IndexKind = "standard"

	// IndexMTREE is an M-tree vector similarity index over a fixed-dimension
	// float array field.
	IndexMTREE IndexKind = "mtree"
)

// IndexSpec describes a secondary index to create on a namespace's table.
type IndexSpec struct {
	Name      string
	Table     string
	Fields    []string
	Kind      IndexKind
	Dimension int // required when Kind == IndexMTREE
}

// VectorMatch is one hit from a similarity search: the matched row plus
// its distance from the query vector (smaller is closer).
type VectorMatch struct {
	Row      Row
	Distance float64
}

// Store is the typed query/transaction interface every other package
// persists through.
type Store interface {
	// Execute runs a single Op against a namespace.
	Execute(ctx context.Context, namespace string, op Op) (*Result, error)

	// ExecuteTransaction runs a sequence of Ops atomically: either every
	// op commits or none do.
	ExecuteTransaction(ctx context.Context, namespace string, ops []Op) ([]*Result, error)

	// CreateNamespace allocates a new logical partition. Creating an
	// existing namespace is not an error.
	CreateNamespace(ctx context.Context, name string) error

	// DestroyNamespace removes a namespace and every row within it.
	DestroyNamespace(ctx context.Context, name string) error

	// CopyNamespace duplicates src into dst. When deep is true every row
	// is copied by value; content-addressed rows are always shared
	// regardless of deep, since the backend dereferences them by hash.
	CopyNamespace(ctx context.Context, src, dst string, deep bool) error

	// DefineIndex creates a secondary or MTREE index on a namespace's
	// table. Defining an existing index with the same shape is a no-op.
	DefineIndex(ctx context.Context, namespace string, spec IndexSpec) error

	// VectorSearch runs a k-nearest-neighbor query against an MTREE index
	// previously created with DefineIndex.
	VectorSearch(ctx context.Context, namespace, table, field string, query []float32, k int) ([]VectorMatch, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any underlying connections.
	Close() error
}

// ConnectionConfig holds the settings common to every remote backend:
// address, auth, and the pool tuning knobs required for multi-agent
// concurrency.
type ConnectionConfig struct {
	// Endpoints is one or more backend addresses. A single endpoint is
	// the common case; more than one enables the pool's load-balancing.
	Endpoints []string

	// Username/Password authenticate against the backend.
	Username string
	Password string

	// RootNamespace and Database select the backend's own top-level
	// namespace/database pair, distinct from the logical namespaces this
	// package creates with CreateNamespace.
	RootNamespace string
	Database      string

	// MinConns/MaxConns are carried in the config; neither Pool nor the
	// backends in this package read them, so no connection count is bounded.
	MinConns int
	MaxConns int

	// AcquireTimeout is carried in the config; no code in this package
	// reads it.
	AcquireTimeout time.Duration

	// IdleTimeout sets Pool's health-check interval (IdleTimeout/4, or 30s
	// when that is zero). No connection is evicted for being idle.
	IdleTimeout time.Duration

	// MaxConnLifetime is carried in the config; no code in this package
	// reads it, and connections are not recycled by age.
	MaxConnLifetime time.Duration

	// DialTimeout bounds establishing a new connection.
	DialTimeout time.Duration

	// MaxRetries is carried in the config; no code in this package reads
	// it, and Pool does not retry a failed operation.
	MaxRetries int

	// CircuitBreakerThreshold is the number of consecutive failures to an
	// endpoint before it is marked unhealthy for CircuitBreakerCooldown.
	CircuitBreakerThreshold int
	CircuitBreakerCooldown  time.Duration

	// Balancer selects among Endpoints when more than one is configured.
	Balancer BalancerStrategy
}

// BalancerStrategy names a load-balancing strategy across pool endpoints.
type BalancerStrategy string

const (
	BalancerRoundRobin BalancerStrategy = "round_robin"
	BalancerLeastConns BalancerStrategy = "least_conns"
	BalancerRandom     BalancerStrategy = "random"
	BalancerWeighted   BalancerStrategy = "weighted"
)

// DefaultConnectionConfig returns sensible pool defaults for a single
// local endpoint.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Endpoints:               []string{"ws://localhost:8000/rpc"},
		RootNamespace:           "cortex",
		Database:                "cortex",
		MinConns:                2,
		MaxConns:                25,
		AcquireTimeout:          5 * time.Second,
		IdleTimeout:             5 * time.Minute,
		MaxConnLifetime:         30 * time.Minute,
		DialTimeout:             5 * time.Second,
		MaxRetries:              3,
		CircuitBreakerThreshold: 5,
		CircuitBreakerCooldown:  30 * time.Second,
		Balancer:                BalancerRoundRobin,
	}
}
