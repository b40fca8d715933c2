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

// Lock manager errors
var (
	// ErrLockConflict indicates the requested lock is incompatible with an
	// existing grant and the caller used the FAIL_FAST wait policy.
	ErrLockConflict = &Error{
		Category: CategoryLockConflict,
		Code:     "LOCK_CONFLICT",
		Message:  "lock request conflicts with an existing grant",
	}

	// ErrLockWaitTimeout indicates a WAIT-policy lock request exceeded its
	// wait deadline without being granted.
	ErrLockWaitTimeout = &Error{
		Category: CategoryTimeout,
		Code:     "LOCK_WAIT_TIMEOUT",
		Message:  "lock wait exceeded its deadline",
	}

	// ErrDeadlockDetected indicates granting the requested lock would close a
	// cycle in the wait-for graph.
	ErrDeadlockDetected = &Error{
		Category: CategoryDeadlockDetected,
		Code:     "DEADLOCK_DETECTED",
		Message:  "granting this lock would create a wait-for cycle",
	}

	// ErrLockNotHeld indicates a release or heartbeat referenced a lock the
	// caller does not hold.
	ErrLockNotHeld = &Error{
		Category: CategoryValidation,
		Code:     "LOCK_NOT_HELD",
		Message:  "no matching lock is held by this session",
	}

	// ErrLockExpired indicates the lock's lease passed expires_at before it
	// was released or renewed.
	ErrLockExpired = &Error{
		Category: CategoryValidation,
		Code:     "LOCK_EXPIRED",
		Message:  "lock lease has expired",
	}
)
