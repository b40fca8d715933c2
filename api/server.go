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

	"github.com/cortex-dev/cortex/collaborator"
	"github.com/cortex-dev/cortex/content"
	"github.com/cortex-dev/cortex/graph"
	"github.com/cortex-dev/cortex/lock"
	"github.com/cortex-dev/cortex/merge"
	"github.com/cortex-dev/cortex/observability"
	"github.com/cortex-dev/cortex/observability/logging"
	"github.com/cortex-dev/cortex/session"
	"github.com/cortex-dev/cortex/store"
	"github.com/cortex-dev/cortex/vfs"
	"github.com/cortex-dev/cortex/workspace"
)

// Deps are the collaborators Server routes calls against. Every field is
// required except Observability; when it is nil, the server logs through a
// default structured logger, records no metrics, and serves no /metrics or
// /health/ routes.
type Deps struct {
	Backend      store.Store
	Workspaces   *workspace.Manager
	Sessions     *session.Engine
	Locks        *lock.Manager
	Merge        *merge.Engine
	Graph        *graph.Graph
	Content      *content.Store
	Parsers      map[string]collaborator.Parser
	Observability *observability.Manager
}

// Server wires Cortex's domain engines to an HTTP surface.
type Server struct {
	deps   Deps
	router *mux.Router
	logger logging.Logger
}

// NewServer builds the routed, middleware-wrapped HTTP handler for deps.
func NewServer(deps Deps) *Server {
	s := &Server{deps: deps, router: mux.NewRouter()}
	if deps.Observability != nil {
		s.logger = deps.Observability.Logger()
	} else {
		s.logger = logging.NewStructuredLogger(logging.LevelInfo)
	}
	s.routes()
	return s
}

// Handler returns the fully wrapped http.Handler, suitable for
// http.Server.Handler.
func (s *Server) Handler() http.Handler {
	if s.deps.Observability != nil {
		return s.deps.Observability.Middleware().Handler(s.router)
	}
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.HandleFunc("/v1/workspaces", s.createWorkspace).Methods(http.MethodPost)
	r.HandleFunc("/v1/workspaces/{workspace_id}", s.getWorkspace).Methods(http.MethodGet)
	r.HandleFunc("/v1/workspaces/{workspace_id}", s.archiveWorkspace).Methods(http.MethodDelete)

	r.HandleFunc("/v1/workspaces/{workspace_id}/sessions", s.createSession).Methods(http.MethodPost)
	r.HandleFunc("/v1/sessions/{session_id}", s.getSession).Methods(http.MethodGet)
	r.HandleFunc("/v1/sessions/{session_id}/changes", s.recordChange).Methods(http.MethodPost)
	r.HandleFunc("/v1/sessions/{session_id}/merge", s.mergeSession).Methods(http.MethodPost)
	r.HandleFunc("/v1/sessions/{session_id}/abort", s.abortSession).Methods(http.MethodPost)

	r.HandleFunc("/v1/locks", s.acquireLock).Methods(http.MethodPost)
	r.HandleFunc("/v1/locks/{lock_id}/release", s.releaseLock).Methods(http.MethodPost)

	r.HandleFunc("/v1/workspaces/{workspace_id}/files/{path:.*}", s.readFile).Methods(http.MethodGet)
	r.HandleFunc("/v1/workspaces/{workspace_id}/files/{path:.*}", s.writeFile).Methods(http.MethodPut)
	r.HandleFunc("/v1/workspaces/{workspace_id}/files/{path:.*}", s.deleteFile).Methods(http.MethodDelete)
	r.HandleFunc("/v1/workspaces/{workspace_id}/directories/{path:.*}", s.listDirectory).Methods(http.MethodGet)
	r.HandleFunc("/v1/workspaces/{workspace_id}/directories", s.listDirectory).Methods(http.MethodGet)

	if s.deps.Observability != nil {
		r.PathPrefix("/metrics").Handler(s.deps.Observability.HTTPHandler())
		r.PathPrefix("/health/").Handler(s.deps.Observability.HTTPHandler())
	}
}

// vfsTarget resolves which namespace a VFS request addresses: the
// workspace's own view by default, or a session's forked view when the
// caller passes ?session=<session_id> (validated against workspaceID so a
// session cannot be used to reach a different workspace's files).
func (s *Server) vfsTarget(r *http.Request, workspaceID string) (*vfs.FS, string, error) {
	fs := vfs.New(workspaceID, s.deps.Backend, s.deps.Content)
	if sessionID := r.URL.Query().Get("session"); sessionID != "" {
		sess, err := s.deps.Sessions.Get(r.Context(), sessionID)
		if err != nil {
			return nil, "", err
		}
		if sess.WorkspaceID != workspaceID {
			return nil, "", sessionWorkspaceMismatch(sessionID, workspaceID)
		}
		return fs, sess.Namespace + ":vfs", nil
	}
	ws, err := s.deps.Workspaces.Get(r.Context(), workspaceID)
	if err != nil {
		return nil, "", err
	}
	return fs, ws.Namespace + ":vfs", nil
}
