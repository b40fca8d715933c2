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

package errors

// Timeout and quota errors
var (
	// ErrTimeout indicates an operation exceeded its deadline, typically a
	// lock wait, a store round-trip, or a merge validator run.
	ErrTimeout = &Error{
		Category: CategoryTimeout,
		Code:     "TIMEOUT",
		Message:  "operation exceeded its deadline",
	}

	// ErrQuotaExceeded indicates a resource-model budget was exhausted, e.g.
	// max_open_locks_per_session or max_open_sessions_per_workspace.
	ErrQuotaExceeded = &Error{
		Category: CategoryQuotaExceeded,
		Code:     "QUOTA_EXCEEDED",
		Message:  "resource quota exceeded",
	}

	// ErrOutOfScope indicates the caller requested functionality explicitly
	// excluded by this component's Non-goals.
	ErrOutOfScope = &Error{
		Category: CategoryOutOfScope,
		Code:     "OUT_OF_SCOPE",
		Message:  "operation is out of scope for this component",
	}

	// ErrReadOnly indicates a mutation was attempted against a read-only
	// session or a workspace opened at a fixed historical version.
	ErrReadOnly = &Error{
		Category: CategoryReadOnly,
		Code:     "READ_ONLY",
		Message:  "target is read-only",
	}
)
