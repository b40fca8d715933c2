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

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/cortex-dev/cortex/lock"
	apierrors "github.com/cortex-dev/cortex/pkg/errors"
)

type acquireLockRequest struct {
	EntityRef      string `json:"entity_ref"`
	RefType        string `json:"ref_type"`
	LockType       string `json:"lock_type"`
	OwnerSession   string `json:"owner_session"`
	Policy         string `json:"policy,omitempty"`
	TimeoutSeconds int64  `json:"timeout_seconds,omitempty"`
	LeaseSeconds   int64  `json:"lease_seconds,omitempty"`
}

func (s *Server) acquireLock(w http.ResponseWriter, r *http.Request) {
	var req acquireLockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), s.logger, w, err, Metadata{})
		return
	}

	lk, err := s.deps.Locks.Acquire(r.Context(), lock.Request{
		EntityRef:    req.EntityRef,
		RefType:      lock.RefType(req.RefType),
		LockType:     lock.Type(req.LockType),
		OwnerSession: req.OwnerSession,
		Policy:       lock.WaitPolicy(req.Policy),
		Timeout:      time.Duration(req.TimeoutSeconds) * time.Second,
		TTL:          time.Duration(req.LeaseSeconds) * time.Second,
	})
	if err != nil {
		writeError(r.Context(), s.logger, w, err, Metadata{})
		return
	}
	writeCreated(w, Metadata{EntityID: lk.ID}, lk)
}

func (s *Server) releaseLock(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["lock_id"]
	var req struct {
		OwnerSession string `json:"owner_session"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), s.logger, w, err, Metadata{EntityID: id})
		return
	}
	if req.OwnerSession == "" {
		writeError(r.Context(), s.logger, w, apierrors.ErrInvalidInput.WithMessage("owner_session is required"), Metadata{EntityID: id})
		return
	}
	if err := s.deps.Locks.Release(r.Context(), id, req.OwnerSession); err != nil {
		writeError(r.Context(), s.logger, w, err, Metadata{EntityID: id})
		return
	}
	writeOK(w, Metadata{EntityID: id}, nil)
}
