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
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	_ "github.com/lib/pq"

	"github.com/cortex-dev/cortex/pkg/errors"
)

// PostgresStore is an alternate relational Store backend for deployments
// that already run PostgreSQL and do not need SurrealDB's native graph or
// MTREE support. Rows are kept in one generic table keyed by
// (namespace, table_name, key); graph edges in a second table; vector
// search is a brute-force ORDER BY scan rather than a real ANN index,
// since the retrieved corpus carries no pgvector binding alongside
// lib/pq. This backend trades SurrealStore's native vector/graph
// performance for running on infrastructure teams already operate.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig mirrors the teacher's connection-pool tuning knobs.
type PostgresConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPostgresConfig returns the default PostgreSQL configuration.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Password:        "",
		Database:        "cortex",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// NewPostgresStore connects to PostgreSQL, pings it, and migrates the
// generic rows/edges schema.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	if config == nil {
		config = DefaultPostgresConfig()
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.Database, config.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, errors.ErrStoreConnection.Wrap(err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.ErrStoreConnection.Wrap(err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, errors.ErrStoreConnection.Wrap(err)
	}

	return store, nil
}

func (p *PostgresStore) migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS cortex_rows (
			namespace  VARCHAR(255) NOT NULL,
			table_name VARCHAR(255) NOT NULL,
			key        VARCHAR(255) NOT NULL,
			value      JSONB NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (namespace, table_name, key)
		);
		CREATE INDEX IF NOT EXISTS idx_cortex_rows_ns_table ON cortex_rows(namespace, table_name);

		CREATE TABLE IF NOT EXISTS cortex_edges (
			namespace  VARCHAR(255) NOT NULL,
			table_name VARCHAR(255) NOT NULL,
			src_key    VARCHAR(255) NOT NULL,
			edge_kind  VARCHAR(255) NOT NULL,
			dst_key    VARCHAR(255) NOT NULL,
			PRIMARY KEY (namespace, table_name, src_key, edge_kind, dst_key)
		);
		CREATE INDEX IF NOT EXISTS idx_cortex_edges_src ON cortex_edges(namespace, table_name, src_key, edge_kind);
	`)
	return err
}

func (p *PostgresStore) Execute(ctx context.Context, namespace string, op Op) (*Result, error) {
	return p.apply(ctx, p.db, namespace, op)
}

func (p *PostgresStore) ExecuteTransaction(ctx context.Context, namespace string, ops []Op) ([]*Result, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.ErrStoreConnection.Wrap(err)
	}

	results := make([]*Result, 0, len(ops))
	for _, op := range ops {
		res, err := p.apply(ctx, tx, namespace, op)
		if err != nil {
			tx.Rollback()
			return nil, errors.ErrTransactionAborted.Wrap(err)
		}
		results = append(results, res)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.ErrTransactionAborted.Wrap(err)
	}
	return results, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (p *PostgresStore) apply(ctx context.Context, x execer, namespace string, op Op) (*Result, error) {
	switch op.Kind {
	case OpPut:
		data, err := json.Marshal(map[string]interface{}(op.Row))
		if err != nil {
			return nil, errors.ErrInvalidInput.Wrap(err)
		}
		_, err = x.ExecContext(ctx, `
			INSERT INTO cortex_rows (namespace, table_name, key, value, updated_at)
			VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
			ON CONFLICT (namespace, table_name, key)
			DO UPDATE SET value = EXCLUDED.value, updated_at = CURRENT_TIMESTAMP
		`, namespace, op.Table, op.Key, data)
		if err != nil {
			return nil, errors.ErrStoreConnection.Wrap(err)
		}
		return &Result{}, nil

	case OpGet:
		var data []byte
		err := x.QueryRowContext(ctx, `
			SELECT value FROM cortex_rows WHERE namespace = $1 AND table_name = $2 AND key = $3
		`, namespace, op.Table, op.Key).Scan(&data)
		if err == sql.ErrNoRows {
			return nil, errors.ErrNotFound.WithDetail("namespace", namespace).WithDetail("table", op.Table).WithDetail("key", op.Key)
		}
		if err != nil {
			return nil, errors.ErrStoreConnection.Wrap(err)
		}
		var row Row
		if err := json.Unmarshal(data, &row); err != nil {
			return nil, errors.ErrInternal.Wrap(err)
		}
		return &Result{Row: row}, nil

	case OpList:
		rows, err := x.QueryContext(ctx, `
			SELECT value FROM cortex_rows WHERE namespace = $1 AND table_name = $2 ORDER BY created_at ASC
		`, namespace, op.Table)
		if err != nil {
			return nil, errors.ErrStoreConnection.Wrap(err)
		}
		defer rows.Close()

		out := make([]Row, 0)
		for rows.Next() {
			var data []byte
			if err := rows.Scan(&data); err != nil {
				return nil, errors.ErrInternal.Wrap(err)
			}
			var row Row
			if err := json.Unmarshal(data, &row); err != nil {
				return nil, errors.ErrInternal.Wrap(err)
			}
			if matchesFilter(row, op.Filter) {
				out = append(out, row)
			}
		}
		return &Result{Rows: out}, nil

	case OpDelete:
		res, err := x.ExecContext(ctx, `
			DELETE FROM cortex_rows WHERE namespace = $1 AND table_name = $2 AND key = $3
		`, namespace, op.Table, op.Key)
		if err != nil {
			return nil, errors.ErrStoreConnection.Wrap(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, errors.ErrNotFound.WithDetail("namespace", namespace).WithDetail("key", op.Key)
		}
		return &Result{}, nil

	case OpExists:
		var exists bool
		err := x.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM cortex_rows WHERE namespace = $1 AND table_name = $2 AND key = $3)
		`, namespace, op.Table, op.Key).Scan(&exists)
		if err != nil {
			return nil, errors.ErrStoreConnection.Wrap(err)
		}
		return &Result{Existed: exists}, nil

	case OpIncr:
		var data []byte
		err := x.QueryRowContext(ctx, `
			SELECT value FROM cortex_rows WHERE namespace = $1 AND table_name = $2 AND key = $3
		`, namespace, op.Table, op.Key).Scan(&data)

		row := Row{}
		if err == nil {
			json.Unmarshal(data, &row)
		} else if err != sql.ErrNoRows {
			return nil, errors.ErrStoreConnection.Wrap(err)
		}

		current := toInt64(row[op.Field]) + op.Delta
		row[op.Field] = current

		encoded, err := json.Marshal(map[string]interface{}(row))
		if err != nil {
			return nil, errors.ErrInternal.Wrap(err)
		}
		_, err = x.ExecContext(ctx, `
			INSERT INTO cortex_rows (namespace, table_name, key, value, updated_at)
			VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
			ON CONFLICT (namespace, table_name, key)
			DO UPDATE SET value = EXCLUDED.value, updated_at = CURRENT_TIMESTAMP
		`, namespace, op.Table, op.Key, encoded)
		if err != nil {
			return nil, errors.ErrStoreConnection.Wrap(err)
		}
		return &Result{Count: current}, nil

	case OpRelate:
		_, err := x.ExecContext(ctx, `
			INSERT INTO cortex_edges (namespace, table_name, src_key, edge_kind, dst_key)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT DO NOTHING
		`, namespace, op.Table, op.Key, op.EdgeKind, op.Target)
		if err != nil {
			return nil, errors.ErrStoreConnection.Wrap(err)
		}
		return &Result{}, nil

	case OpUnrelate:
		_, err := x.ExecContext(ctx, `
			DELETE FROM cortex_edges WHERE namespace = $1 AND table_name = $2 AND src_key = $3 AND edge_kind = $4 AND dst_key = $5
		`, namespace, op.Table, op.Key, op.EdgeKind, op.Target)
		if err != nil {
			return nil, errors.ErrStoreConnection.Wrap(err)
		}
		return &Result{}, nil

	case OpTraverse:
		depth := op.Depth
		if depth <= 0 {
			depth = 1
		}
		visited := map[string]bool{op.Key: true}
		frontier := []string{op.Key}
		var out []Row

		for d := 0; d < depth && len(frontier) > 0; d++ {
			targets, err := p.neighbors(ctx, x, namespace, op.Table, frontier, op.EdgeKind)
			if err != nil {
				return nil, err
			}
			var next []string
			for _, t := range targets {
				if visited[t] {
					continue
				}
				visited[t] = true
				next = append(next, t)
				res, err := p.apply(ctx, x, namespace, Op{Kind: OpGet, Table: op.Table, Key: t})
				if err == nil {
					out = append(out, res.Row)
				}
			}
			frontier = next
		}
		return &Result{Rows: out}, nil

	default:
		return nil, errors.ErrInvalidInput.WithMessage("unsupported op kind").WithDetail("kind", string(op.Kind))
	}
}

func (p *PostgresStore) neighbors(ctx context.Context, x execer, namespace, table string, keys []string, edgeKind string) ([]string, error) {
	var out []string
	for _, key := range keys {
		rows, err := x.QueryContext(ctx, `
			SELECT dst_key FROM cortex_edges WHERE namespace = $1 AND table_name = $2 AND src_key = $3 AND edge_kind = $4
		`, namespace, table, key, edgeKind)
		if err != nil {
			return nil, errors.ErrStoreConnection.Wrap(err)
		}
		for rows.Next() {
			var dst string
			if err := rows.Scan(&dst); err != nil {
				rows.Close()
				return nil, errors.ErrInternal.Wrap(err)
			}
			out = append(out, dst)
		}
		rows.Close()
	}
	return out, nil
}

func (p *PostgresStore) CreateNamespace(ctx context.Context, name string) error {
	return nil
}

func (p *PostgresStore) DestroyNamespace(ctx context.Context, name string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM cortex_rows WHERE namespace = $1`, name); err != nil {
		return errors.ErrStoreConnection.Wrap(err)
	}
	if _, err := p.db.ExecContext(ctx, `DELETE FROM cortex_edges WHERE namespace = $1`, name); err != nil {
		return errors.ErrStoreConnection.Wrap(err)
	}
	return nil
}

func (p *PostgresStore) CopyNamespace(ctx context.Context, src, dst string, deep bool) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO cortex_rows (namespace, table_name, key, value)
		SELECT $2, table_name, key, value FROM cortex_rows WHERE namespace = $1
		ON CONFLICT (namespace, table_name, key) DO UPDATE SET value = EXCLUDED.value
	`, src, dst)
	if err != nil {
		return errors.ErrStoreConnection.Wrap(err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO cortex_edges (namespace, table_name, src_key, edge_kind, dst_key)
		SELECT $2, table_name, src_key, edge_kind, dst_key FROM cortex_edges WHERE namespace = $1
		ON CONFLICT DO NOTHING
	`, src, dst)
	if err != nil {
		return errors.ErrStoreConnection.Wrap(err)
	}
	return nil
}

// DefineIndex is a no-op: every lookup goes through cortex_rows' own
// (namespace, table_name, key) primary key and ns/table composite index;
// there is no secondary SQL index to create per logical IndexSpec.
func (p *PostgresStore) DefineIndex(ctx context.Context, namespace string, spec IndexSpec) error {
	return nil
}

// VectorSearch scans every row in the table and ranks by cosine distance
// in Go, since this backend has no ANN index. Acceptable for the
// relational-only deployment profile this backend targets; large
// semantic-graph corpora should run on SurrealStore instead.
func (p *PostgresStore) VectorSearch(ctx context.Context, namespace, table, field string, query []float32, k int) ([]VectorMatch, error) {
	res, err := p.apply(ctx, p.db, namespace, Op{Kind: OpList, Table: table})
	if err != nil {
		return nil, err
	}

	matches := make([]VectorMatch, 0, len(res.Rows))
	for _, row := range res.Rows {
		vec, ok := floatSlice(row[field])
		if !ok || len(vec) != len(query) {
			continue
		}
		matches = append(matches, VectorMatch{Row: row, Distance: 1 - cosineSimilarity(query, vec)})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func floatSlice(v interface{}) ([]float32, bool) {
	switch vv := v.(type) {
	case []float32:
		return vv, true
	case []interface{}:
		out := make([]float32, len(vv))
		for i, e := range vv {
			f, ok := e.(float64)
			if !ok {
				return nil, false
			}
			out[i] = float32(f)
		}
		return out, true
	default:
		return nil, false
	}
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return errors.ErrStoreConnection.Wrap(err)
	}
	return nil
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}
