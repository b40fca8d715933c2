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
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/cortex-dev/cortex/vfs"
)

func (s *Server) readFile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	workspaceID, path := vars["workspace_id"], vars["path"]

	fs, namespace, err := s.vfsTarget(r, workspaceID)
	if err != nil {
		writeError(r.Context(), s.logger, w, err, Metadata{EntityID: workspaceID})
		return
	}
	data, v, err := fs.ReadFile(r.Context(), namespace, path)
	if err != nil {
		writeError(r.Context(), s.logger, w, err, Metadata{EntityID: path})
		return
	}
	writeOK(w, Metadata{EntityID: v.ID, CurrentVersion: &v.Version}, struct {
		Content string     `json:"content"`
		VNode   *vfs.VNode `json:"vnode"`
	}{Content: string(data), VNode: v})
}

func (s *Server) writeFile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	workspaceID, path := vars["workspace_id"], vars["path"]

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(r.Context(), s.logger, w, err, Metadata{EntityID: path})
		return
	}

	fs, namespace, err := s.vfsTarget(r, workspaceID)
	if err != nil {
		writeError(r.Context(), s.logger, w, err, Metadata{EntityID: workspaceID})
		return
	}

	language := r.URL.Query().Get("language")
	actor := r.URL.Query().Get("actor")
	if actor == "" {
		actor = "api"
	}

	v, err := fs.WriteFile(r.Context(), namespace, path, body, language, actor)
	if err != nil {
		writeError(r.Context(), s.logger, w, err, Metadata{EntityID: path})
		return
	}

	if parser, ok := s.deps.Parsers[language]; ok {
		graphNamespace, gerr := s.graphNamespace(r, workspaceID)
		if gerr == nil {
			_, _ = s.deps.Graph.Extract(r.Context(), graphNamespace, v.ID, body, language, parser, actor)
		}
	}

	writeCreated(w, Metadata{EntityID: v.ID, CurrentVersion: &v.Version}, v)
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	workspaceID, path := vars["workspace_id"], vars["path"]

	recursive, _ := strconv.ParseBool(r.URL.Query().Get("recursive"))
	actor := r.URL.Query().Get("actor")
	if actor == "" {
		actor = "api"
	}

	fs, namespace, err := s.vfsTarget(r, workspaceID)
	if err != nil {
		writeError(r.Context(), s.logger, w, err, Metadata{EntityID: workspaceID})
		return
	}
	if err := fs.Delete(r.Context(), namespace, path, recursive, actor); err != nil {
		writeError(r.Context(), s.logger, w, err, Metadata{EntityID: path})
		return
	}
	writeOK(w, Metadata{EntityID: path}, nil)
}

func (s *Server) listDirectory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	workspaceID, path := vars["workspace_id"], vars["path"]

	recursive, _ := strconv.ParseBool(r.URL.Query().Get("recursive"))

	fs, namespace, err := s.vfsTarget(r, workspaceID)
	if err != nil {
		writeError(r.Context(), s.logger, w, err, Metadata{EntityID: workspaceID})
		return
	}
	entries, err := fs.ListDirectory(r.Context(), namespace, path, recursive, &vfs.ListFilter{IncludeDeleted: false})
	if err != nil {
		writeError(r.Context(), s.logger, w, err, Metadata{EntityID: workspaceID})
		return
	}
	writeOK(w, Metadata{EntityID: workspaceID}, entries)
}

// graphNamespace resolves the code-graph namespace paired with a VFS
// target the same way vfsTarget resolves the vfs namespace: session-scoped
// when ?session is set, workspace-scoped otherwise.
func (s *Server) graphNamespace(r *http.Request, workspaceID string) (string, error) {
	if sessionID := r.URL.Query().Get("session"); sessionID != "" {
		sess, err := s.deps.Sessions.Get(r.Context(), sessionID)
		if err != nil {
			return "", err
		}
		return sess.Namespace + ":graph", nil
	}
	ws, err := s.deps.Workspaces.Get(r.Context(), workspaceID)
	if err != nil {
		return "", err
	}
	return ws.Namespace + ":graph", nil
}
