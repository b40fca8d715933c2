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

	"github.com/gorilla/mux"

	"github.com/cortex-dev/cortex/workspace"
)

type createWorkspaceRequest struct {
	Name            string `json:"name"`
	WorkspaceType   string `json:"workspace_type"`
	SourceType      string `json:"source_type"`
	ParentWorkspace string `json:"parent_workspace,omitempty"`
	ReadOnly        bool   `json:"read_only,omitempty"`
}

func (s *Server) createWorkspace(w http.ResponseWriter, r *http.Request) {
	var req createWorkspaceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), s.logger, w, err, Metadata{})
		return
	}

	ws, err := s.deps.Workspaces.Create(r.Context(), workspace.CreateSpec{
		Name:            req.Name,
		WorkspaceType:   workspace.Type(req.WorkspaceType),
		SourceType:      workspace.SourceType(req.SourceType),
		ParentWorkspace: req.ParentWorkspace,
		ReadOnly:        req.ReadOnly,
	})
	if err != nil {
		writeError(r.Context(), s.logger, w, err, Metadata{})
		return
	}
	writeCreated(w, Metadata{EntityID: ws.ID, CurrentVersion: &ws.CurrentVersion}, ws)
}

func (s *Server) getWorkspace(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["workspace_id"]
	ws, err := s.deps.Workspaces.Get(r.Context(), id)
	if err != nil {
		writeError(r.Context(), s.logger, w, err, Metadata{EntityID: id})
		return
	}
	writeOK(w, Metadata{EntityID: ws.ID, CurrentVersion: &ws.CurrentVersion}, ws)
}

func (s *Server) archiveWorkspace(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["workspace_id"]
	if err := s.deps.Workspaces.Archive(r.Context(), id); err != nil {
		writeError(r.Context(), s.logger, w, err, Metadata{EntityID: id})
		return
	}
	writeOK(w, Metadata{EntityID: id}, nil)
}
