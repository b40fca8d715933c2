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

// Package content deduplicates file bytes and manages their lifecycle via
// reference counting, the way sage-adk/cache derives a deterministic key
// from message content but applied to raw file bytes instead of messages.
package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/cortex-dev/cortex/pkg/errors"
	"github.com/cortex-dev/cortex/store"
)

const table = "file_content"

// Store deduplicates file bytes by content hash and reference-counts them
// across every vnode that points at the same bytes.
type Store struct {
	backend store.Store
}

// NewStore creates a content store over the given backing store.
func NewStore(backend store.Store) *Store {
	return &Store{backend: backend}
}

// Hash computes the content-addressing digest for bytes without touching
// the backing store.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Put stores bytes if absent and increments its reference count.
// Idempotent: calling Put twice with the same bytes increments the count
// twice, matching two independent owners.
func (s *Store) Put(ctx context.Context, namespace string, data []byte) (string, error) {
	hash := Hash(data)

	exists, err := s.backend.Execute(ctx, namespace, store.Op{Kind: store.OpExists, Table: table, Key: hash})
	if err != nil {
		return "", err
	}
	if !exists.Existed {
		_, err := s.backend.Execute(ctx, namespace, store.Op{
			Kind:  store.OpPut,
			Table: table,
			Key:   hash,
			Row: store.Row{
				"hash":  hash,
				"bytes": data,
				"size":  int64(len(data)),
			},
		})
		if err != nil {
			return "", err
		}
	}

	if _, err := s.backend.Execute(ctx, namespace, store.Op{
		Kind: store.OpIncr, Table: table, Key: hash, Field: "ref_count", Delta: 1,
	}); err != nil {
		return "", err
	}

	return hash, nil
}

// Get retrieves bytes by content hash. Returns NotFound if the hash is
// unknown.
func (s *Store) Get(ctx context.Context, namespace, hash string) ([]byte, error) {
	res, err := s.backend.Execute(ctx, namespace, store.Op{Kind: store.OpGet, Table: table, Key: hash})
	if err != nil {
		return nil, err
	}
	data, _ := res.Row["bytes"].([]byte)
	return data, nil
}

// Acquire increments the reference count for an existing hash, for a new
// owner (e.g. a vnode version) that starts sharing already-stored bytes.
func (s *Store) Acquire(ctx context.Context, namespace, hash string) error {
	exists, err := s.backend.Execute(ctx, namespace, store.Op{Kind: store.OpExists, Table: table, Key: hash})
	if err != nil {
		return err
	}
	if !exists.Existed {
		return errors.ErrNotFound.WithDetail("hash", hash)
	}
	_, err = s.backend.Execute(ctx, namespace, store.Op{
		Kind: store.OpIncr, Table: table, Key: hash, Field: "ref_count", Delta: 1,
	})
	return err
}

// Release decrements the reference count for a hash. Reference counts
// never go negative: releasing an unreferenced hash fails loudly rather
// than going to -1.
func (s *Store) Release(ctx context.Context, namespace, hash string) error {
	res, err := s.backend.Execute(ctx, namespace, store.Op{Kind: store.OpGet, Table: table, Key: hash})
	if err != nil {
		return err
	}

	count := toInt64(res.Row["ref_count"])
	if count <= 0 {
		return errors.ErrInvalidInput.WithMessage("release of unreferenced content").WithDetail("hash", hash)
	}

	_, err = s.backend.Execute(ctx, namespace, store.Op{
		Kind: store.OpIncr, Table: table, Key: hash, Field: "ref_count", Delta: -1,
	})
	return err
}

// GC sweeps every row whose reference count has reached zero and returns
// the number of bytes reclaimed. Hash verification runs here to detect
// corruption, since read-time verification may be deferred per spec.
func (s *Store) GC(ctx context.Context, namespace string) (int64, error) {
	res, err := s.backend.Execute(ctx, namespace, store.Op{Kind: store.OpList, Table: table})
	if err != nil {
		return 0, err
	}

	var reclaimed int64
	for _, row := range res.Rows {
		if toInt64(row["ref_count"]) > 0 {
			continue
		}

		data, _ := row["bytes"].([]byte)
		hash, _ := row["hash"].(string)
		if hash != "" && Hash(data) != hash {
			return reclaimed, errors.ErrInternal.WithMessage("content hash mismatch on GC").WithDetail("hash", hash)
		}

		if _, err := s.backend.Execute(ctx, namespace, store.Op{Kind: store.OpDelete, Table: table, Key: hash}); err != nil {
			return reclaimed, err
		}
		reclaimed += int64(len(data))
	}

	return reclaimed, nil
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
