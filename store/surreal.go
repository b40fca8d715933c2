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
	"fmt"
	"strings"
	"sync"

	"github.com/surrealdb/surrealdb.go"

	"github.com/cortex-dev/cortex/pkg/errors"
)

// SurrealStore is the production Store backend, over a SurrealDB instance
// or cluster. SurrealDB is the one backend in reach that natively speaks
// namespaces, graph RELATE edges, and DEFINE INDEX ... MTREE vector
// indexes in a single engine, so every Op below maps to one native
// SurrealQL feature rather than an emulation layer.
//
// A logical namespace (Store's CreateNamespace/DestroyNamespace) is
// modeled as a SurrealDB table-name prefix within one shared SurrealDB
// namespace/database pair, since SurrealDB's own NS/DB scoping is
// reserved for multi-tenant deployment boundaries, not per-workspace or
// per-session isolation.
type SurrealStore struct {
	mu     sync.Mutex
	db     *surrealdb.DB
	config *ConnectionConfig
}

// NewSurrealStore connects to a SurrealDB endpoint and signs in.
//
// Example:
//
//	s, err := store.NewSurrealStore(&store.ConnectionConfig{
//	    Endpoints:     []string{"ws://localhost:8000/rpc"},
//	    Username:      "root",
//	    Password:      "root",
//	    RootNamespace: "cortex",
//	    Database:      "cortex",
//	})
func NewSurrealStore(config *ConnectionConfig) (*SurrealStore, error) {
	if config == nil {
		config = DefaultConnectionConfig()
	}
	if len(config.Endpoints) == 0 {
		return nil, errors.ErrInvalidInput.WithMessage("at least one endpoint is required")
	}

	db, err := surrealdb.New(config.Endpoints[0])
	if err != nil {
		return nil, errors.ErrStoreConnection.Wrap(err)
	}

	if _, err := db.Signin(map[string]interface{}{
		"user": config.Username,
		"pass": config.Password,
	}); err != nil {
		db.Close()
		return nil, errors.ErrStoreConnection.Wrap(err)
	}

	if _, err := db.Use(config.RootNamespace, config.Database); err != nil {
		db.Close()
		return nil, errors.ErrStoreConnection.Wrap(err)
	}

	return &SurrealStore{db: db, config: config}, nil
}

// tableName builds the SurrealDB table name for a logical namespace/table
// pair: "<namespace>__<table>".
func tableName(namespace, table string) string {
	return fmt.Sprintf("%s__%s", namespace, table)
}

// recordID builds a fully-qualified SurrealDB record id "table:key".
func recordID(namespace, table, key string) string {
	return fmt.Sprintf("%s:%s", tableName(namespace, table), surrealEscape(key))
}

// surrealEscape wraps a key in backticks when it contains characters that
// would otherwise break SurrealDB's bare record-id grammar.
func surrealEscape(key string) string {
	for _, r := range key {
		if !(r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return "`" + strings.ReplaceAll(key, "`", "\\`") + "`"
		}
	}
	return key
}

func (s *SurrealStore) query(ctx context.Context, stmt string, vars map[string]interface{}) ([]map[string]interface{}, error) {
	raw, err := s.db.Query(stmt, vars)
	if err != nil {
		return nil, errors.ErrStoreConnection.Wrap(err)
	}
	return decodeQueryResult(raw)
}

// decodeQueryResult normalizes the driver's per-statement result envelope
// into a flat slice of rows for the single-statement callers in this file.
func decodeQueryResult(raw interface{}) ([]map[string]interface{}, error) {
	results, ok := raw.([]interface{})
	if !ok || len(results) == 0 {
		return nil, nil
	}
	last, ok := results[len(results)-1].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	rows, _ := last["result"].([]interface{})
	out := make([]map[string]interface{}, 0, len(rows))
	for _, r := range rows {
		if m, ok := r.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// Execute runs a single Op against a namespace.
func (s *SurrealStore) Execute(ctx context.Context, namespace string, op Op) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(ctx, namespace, op)
}

// ExecuteTransaction runs every Op inside one SurrealQL BEGIN/COMMIT block.
func (s *SurrealStore) ExecuteTransaction(ctx context.Context, namespace string, ops []Op) ([]*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.query(ctx, "BEGIN TRANSACTION;", nil); err != nil {
		return nil, errors.ErrStoreConnection.Wrap(err)
	}

	results := make([]*Result, 0, len(ops))
	for _, op := range ops {
		res, err := s.apply(ctx, namespace, op)
		if err != nil {
			s.query(ctx, "CANCEL TRANSACTION;", nil)
			return nil, errors.ErrTransactionAborted.Wrap(err)
		}
		results = append(results, res)
	}

	if _, err := s.query(ctx, "COMMIT TRANSACTION;", nil); err != nil {
		return nil, errors.ErrTransactionAborted.Wrap(err)
	}
	return results, nil
}

func (s *SurrealStore) apply(ctx context.Context, namespace string, op Op) (*Result, error) {
	switch op.Kind {
	case OpPut:
		vars := map[string]interface{}{"content": map[string]interface{}(op.Row)}
		_, err := s.query(ctx, fmt.Sprintf("UPDATE %s CONTENT $content;", recordID(namespace, op.Table, op.Key)), vars)
		if err != nil {
			return nil, err
		}
		return &Result{}, nil

	case OpGet:
		rows, err := s.query(ctx, fmt.Sprintf("SELECT * FROM %s;", recordID(namespace, op.Table, op.Key)), nil)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, errors.ErrNotFound.WithDetail("namespace", namespace).WithDetail("table", op.Table).WithDetail("key", op.Key)
		}
		return &Result{Row: Row(rows[0])}, nil

	case OpList:
		stmt := fmt.Sprintf("SELECT * FROM %s", tableName(namespace, op.Table))
		vars := map[string]interface{}{}
		if len(op.Filter) > 0 {
			clauses := make([]string, 0, len(op.Filter))
			i := 0
			for k, v := range op.Filter {
				param := fmt.Sprintf("f%d", i)
				clauses = append(clauses, fmt.Sprintf("%s = $%s", k, param))
				vars[param] = v
				i++
			}
			stmt += " WHERE " + strings.Join(clauses, " AND ")
		}
		rows, err := s.query(ctx, stmt+";", vars)
		if err != nil {
			return nil, err
		}
		out := make([]Row, 0, len(rows))
		for _, r := range rows {
			out = append(out, Row(r))
		}
		return &Result{Rows: out}, nil

	case OpDelete:
		_, err := s.query(ctx, fmt.Sprintf("DELETE %s;", recordID(namespace, op.Table, op.Key)), nil)
		if err != nil {
			return nil, err
		}
		return &Result{}, nil

	case OpExists:
		rows, err := s.query(ctx, fmt.Sprintf("SELECT id FROM %s;", recordID(namespace, op.Table, op.Key)), nil)
		if err != nil {
			return nil, err
		}
		return &Result{Existed: len(rows) > 0}, nil

	case OpIncr:
		vars := map[string]interface{}{"delta": op.Delta}
		stmt := fmt.Sprintf("UPDATE %s SET %s += $delta RETURN %s;", recordID(namespace, op.Table, op.Key), op.Field, op.Field)
		rows, err := s.query(ctx, stmt, vars)
		if err != nil {
			return nil, err
		}
		var count int64
		if len(rows) > 0 {
			count = toInt64(rows[0][op.Field])
		}
		return &Result{Count: count}, nil

	case OpRelate:
		vars := map[string]interface{}{"content": map[string]interface{}(op.Row)}
		stmt := fmt.Sprintf("RELATE %s->%s->%s CONTENT $content;",
			recordID(namespace, op.Table, op.Key), op.EdgeKind, recordID(namespace, op.Table, op.Target))
		if _, err := s.query(ctx, stmt, vars); err != nil {
			return nil, err
		}
		return &Result{}, nil

	case OpUnrelate:
		stmt := fmt.Sprintf("DELETE %s->%s WHERE out = %s;",
			recordID(namespace, op.Table, op.Key), op.EdgeKind, recordID(namespace, op.Table, op.Target))
		if _, err := s.query(ctx, stmt, nil); err != nil {
			return nil, err
		}
		return &Result{}, nil

	case OpTraverse:
		stmt := fmt.Sprintf("SELECT ->%s->? AS reached FROM %s;", op.EdgeKind, recordID(namespace, op.Table, op.Key))
		rows, err := s.query(ctx, stmt, nil)
		if err != nil {
			return nil, err
		}
		out := make([]Row, 0, len(rows))
		for _, r := range rows {
			if reached, ok := r["reached"].([]interface{}); ok {
				for _, item := range reached {
					if m, ok := item.(map[string]interface{}); ok {
						out = append(out, Row(m))
					}
				}
			}
		}
		return &Result{Rows: out}, nil

	default:
		return nil, errors.ErrInvalidInput.WithMessage("unsupported op kind").WithDetail("kind", string(op.Kind))
	}
}

// CreateNamespace defines the backing tables for a logical namespace.
// SurrealDB tables are schemaless by default, so creation is a no-op
// beyond recording intent; the table springs into existence on first
// write.
func (s *SurrealStore) CreateNamespace(ctx context.Context, name string) error {
	return nil
}

// DestroyNamespace removes every table prefixed with the namespace.
func (s *SurrealStore) DestroyNamespace(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.query(ctx, fmt.Sprintf("REMOVE TABLE IF EXISTS %s;", tableName(name, "*")), nil)
	if err != nil {
		return errors.ErrStoreConnection.Wrap(err)
	}
	return nil
}

// CopyNamespace duplicates every row of src's tables into dst via
// SurrealQL's INSERT ... SELECT form.
func (s *SurrealStore) CopyNamespace(ctx context.Context, src, dst string, deep bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stmt := fmt.Sprintf("INSERT INTO %s (SELECT * FROM %s);", tableName(dst, "all"), tableName(src, "all"))
	if _, err := s.query(ctx, stmt, nil); err != nil {
		return errors.ErrStoreConnection.Wrap(err)
	}
	return nil
}

// DefineIndex issues DEFINE INDEX, using MTREE for vector fields per
// spec.md's similarity-search requirement.
func (s *SurrealStore) DefineIndex(ctx context.Context, namespace string, spec IndexSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := tableName(namespace, spec.Table)
	var stmt string
	switch spec.Kind {
	case IndexMTREE:
		stmt = fmt.Sprintf(
			"DEFINE INDEX %s ON TABLE %s FIELDS %s MTREE DIMENSION %d;",
			spec.Name, table, strings.Join(spec.Fields, ", "), spec.Dimension,
		)
	case IndexUnique:
		stmt = fmt.Sprintf("DEFINE INDEX %s ON TABLE %s FIELDS %s UNIQUE;", spec.Name, table, strings.Join(spec.Fields, ", "))
	default:
		stmt = fmt.Sprintf("DEFINE INDEX %s ON TABLE %s FIELDS %s;", spec.Name, table, strings.Join(spec.Fields, ", "))
	}

	if _, err := s.query(ctx, stmt, nil); err != nil {
		return errors.ErrStoreConnection.Wrap(err)
	}
	return nil
}

// VectorSearch runs a k-nearest-neighbor query via SurrealDB's MTREE
// `<|k|>` KNN operator.
func (s *SurrealStore) VectorSearch(ctx context.Context, namespace, table, field string, query []float32, k int) ([]VectorMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stmt := fmt.Sprintf(
		"SELECT *, vector::distance::knn() AS distance FROM %s WHERE %s <|%d|> $query;",
		tableName(namespace, table), field, k,
	)
	rows, err := s.query(ctx, stmt, map[string]interface{}{"query": query})
	if err != nil {
		return nil, errors.ErrStoreConnection.Wrap(err)
	}

	out := make([]VectorMatch, 0, len(rows))
	for _, r := range rows {
		dist, _ := r["distance"].(float64)
		delete(r, "distance")
		out = append(out, VectorMatch{Row: Row(r), Distance: dist})
	}
	return out, nil
}

// Ping verifies the SurrealDB connection is alive.
func (s *SurrealStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.query(ctx, "INFO FOR DB;", nil)
	if err != nil {
		return errors.ErrStoreConnection.Wrap(err)
	}
	return nil
}

// Close releases the underlying SurrealDB connection.
func (s *SurrealStore) Close() error {
	return s.db.Close()
}
