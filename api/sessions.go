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

	apierrors "github.com/cortex-dev/cortex/pkg/errors"
	"github.com/cortex-dev/cortex/session"
)

type createSessionRequest struct {
	AgentID        string   `json:"agent_id"`
	IsolationLevel string   `json:"isolation_level,omitempty"`
	ReadWritePaths []string `json:"read_write_paths,omitempty"`
	ReadOnlyPaths  []string `json:"read_only_paths,omitempty"`
	TTLSeconds     int64    `json:"ttl_seconds,omitempty"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	workspaceID := mux.Vars(r)["workspace_id"]
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), s.logger, w, err, Metadata{})
		return
	}

	sess, err := s.deps.Sessions.Create(r.Context(), session.CreateSpec{
		AgentID:        req.AgentID,
		WorkspaceID:    workspaceID,
		IsolationLevel: session.IsolationLevel(req.IsolationLevel),
		Scope: session.Scope{
			ReadWritePaths: req.ReadWritePaths,
			ReadOnlyPaths:  req.ReadOnlyPaths,
		},
		TTL: time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		writeError(r.Context(), s.logger, w, err, Metadata{})
		return
	}
	if s.deps.Observability != nil {
		s.deps.Observability.WorkspaceMetrics().RecordSessionOpened(workspaceID)
	}
	writeCreated(w, Metadata{EntityID: sess.ID}, sess)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["session_id"]
	sess, err := s.deps.Sessions.Get(r.Context(), id)
	if err != nil {
		writeError(r.Context(), s.logger, w, err, Metadata{EntityID: id})
		return
	}
	writeOK(w, Metadata{EntityID: sess.ID}, sess)
}

type recordChangeRequest struct {
	Op        string `json:"op"`
	EntityRef string `json:"entity_ref"`
	OldHash   string `json:"old_hash,omitempty"`
	NewHash   string `json:"new_hash,omitempty"`
}

func (s *Server) recordChange(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["session_id"]
	var req recordChangeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), s.logger, w, err, Metadata{EntityID: id})
		return
	}
	ch := session.Change{
		Op:        session.ChangeOp(req.Op),
		EntityRef: req.EntityRef,
		OldHash:   req.OldHash,
		NewHash:   req.NewHash,
		At:        time.Now().UTC(),
	}
	if err := s.deps.Sessions.RecordChange(r.Context(), id, req.EntityRef, ch); err != nil {
		writeError(r.Context(), s.logger, w, err, Metadata{EntityID: id})
		return
	}
	writeOK(w, Metadata{EntityID: id}, nil)
}

func (s *Server) abortSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["session_id"]
	if err := s.deps.Sessions.Abort(r.Context(), id); err != nil {
		writeError(r.Context(), s.logger, w, err, Metadata{EntityID: id})
		return
	}
	writeOK(w, Metadata{EntityID: id}, nil)
}

func sessionWorkspaceMismatch(sessionID, workspaceID string) error {
	return apierrors.ErrInvalidInput.WithMessage("session does not belong to workspace").
		WithDetail("session_id", sessionID).WithDetail("workspace_id", workspaceID)
}
