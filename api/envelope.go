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

// Package api exposes Cortex's Workspace/Session/Lock/Merge/VFS operations
// over HTTP, routed with gorilla/mux, every response wrapped in the
// {ok, error, metadata} envelope.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cortex-dev/cortex/observability/logging"
	apierrors "github.com/cortex-dev/cortex/pkg/errors"
)

// Envelope is the response shape every cortexd endpoint returns.
type Envelope struct {
	OK       bool          `json:"ok"`
	Data     interface{}   `json:"data,omitempty"`
	Error    *ErrorPayload `json:"error,omitempty"`
	Metadata Metadata      `json:"metadata"`
}

// ErrorPayload describes a failed request.
type ErrorPayload struct {
	Kind    string                 `json:"kind"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Metadata accompanies every response, success or failure.
type Metadata struct {
	EntityID       string `json:"entity_id,omitempty"`
	CurrentVersion *int64 `json:"current_version,omitempty"`
}

// kindByCategory maps the internal error taxonomy to the boundary error
// kinds spec.md §7 names, and the HTTP status that carries each.
var kindByCategory = map[apierrors.ErrorCategory]struct {
	kind   string
	status int
}{
	apierrors.CategoryNotFound:         {"NOT_FOUND", http.StatusNotFound},
	apierrors.CategoryVersionConflict:  {"VERSION_CONFLICT", http.StatusConflict},
	apierrors.CategoryPermissionDenied: {"PERMISSION_DENIED", http.StatusForbidden},
	apierrors.CategoryLockConflict:     {"LOCK_CONFLICT", http.StatusConflict},
	apierrors.CategoryDeadlockDetected: {"DEADLOCK_DETECTED", http.StatusConflict},
	apierrors.CategoryParseError:       {"PARSE_ERROR", http.StatusUnprocessableEntity},
	apierrors.CategoryValidation:       {"VALIDATION_ERROR", http.StatusBadRequest},
	apierrors.CategorySyncConflict:     {"SYNC_CONFLICT", http.StatusConflict},
	apierrors.CategoryQuotaExceeded:    {"QUOTA_EXCEEDED", http.StatusTooManyRequests},
	apierrors.CategoryTimeout:          {"TIMEOUT", http.StatusGatewayTimeout},
	apierrors.CategoryInternal:         {"INTERNAL_ERROR", http.StatusInternalServerError},
	apierrors.CategoryOutOfScope:       {"OUT_OF_SCOPE", http.StatusBadRequest},
	apierrors.CategoryReadOnly:         {"READ_ONLY", http.StatusForbidden},
}

// writeOK writes a successful envelope carrying data.
func writeOK(w http.ResponseWriter, meta Metadata, data interface{}) {
	writeJSON(w, http.StatusOK, Envelope{OK: true, Data: data, Metadata: meta})
}

// writeCreated is writeOK at HTTP 201, for handlers that allocate a new entity.
func writeCreated(w http.ResponseWriter, meta Metadata, data interface{}) {
	writeJSON(w, http.StatusCreated, Envelope{OK: true, Data: data, Metadata: meta})
}

// writeError translates err through the category table and writes the
// matching envelope. Errors outside the known taxonomy are treated as
// INTERNAL_ERROR, the same fallback pkg/errors.Wrap applies internally.
func writeError(ctx context.Context, logger logging.Logger, w http.ResponseWriter, err error, meta Metadata) {
	kind, status := "INTERNAL_ERROR", http.StatusInternalServerError
	var details map[string]interface{}
	message := err.Error()

	var adkErr *apierrors.Error
	if apierrors.As(err, &adkErr) {
		if mapped, ok := kindByCategory[adkErr.Category]; ok {
			kind, status = mapped.kind, mapped.status
		}
		message = adkErr.Message
		details = adkErr.Details
	}

	if status >= 500 {
		logger.Error(ctx, "request failed", logging.String("kind", kind), logging.Error(err))
	}

	writeJSON(w, status, Envelope{
		OK:       false,
		Error:    &ErrorPayload{Kind: kind, Message: message, Details: details},
		Metadata: meta,
	})
}

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apierrors.ErrInvalidInput.WithMessage(err.Error())
	}
	return nil
}
