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
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/cortex-dev/cortex/merge"
	"github.com/cortex-dev/cortex/observability/logging"
	apierrors "github.com/cortex-dev/cortex/pkg/errors"
)

func (s *Server) mergeSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["session_id"]
	strategy := merge.Strategy(r.URL.Query().Get("strategy"))
	if strategy == "" {
		strategy = merge.StrategyAuto
	}

	report, err := s.deps.Merge.Merge(r.Context(), id, strategy)
	if err != nil {
		if apierrors.IsSyncConflict(err) && report != nil {
			// The merge failed, but the conflict report it produced is
			// still useful data for the caller to act on: surface both.
			writeSyncConflict(r.Context(), s.logger, w, err, id, report)
			return
		}
		writeError(r.Context(), s.logger, w, err, Metadata{EntityID: id})
		return
	}
	if s.deps.Observability != nil {
		s.deps.Observability.WorkspaceMetrics().RecordMergeConflicts(id, len(report.Conflicts))
	}
	writeOK(w, Metadata{EntityID: id}, report)
}

func writeSyncConflict(ctx context.Context, logger logging.Logger, w http.ResponseWriter, err error, sessionID string, report *merge.Report) {
	var adkErr *apierrors.Error
	message, details := err.Error(), map[string]interface{}(nil)
	if apierrors.As(err, &adkErr) {
		message, details = adkErr.Message, adkErr.Details
	}
	logger.Info(ctx, "merge left unresolved conflicts",
		logging.String("session_id", sessionID), logging.Int("conflict_count", len(report.Conflicts)))

	writeJSON(w, http.StatusConflict, Envelope{
		OK:       false,
		Data:     report,
		Error:    &ErrorPayload{Kind: "SYNC_CONFLICT", Message: message, Details: details},
		Metadata: Metadata{EntityID: sessionID},
	})
}
