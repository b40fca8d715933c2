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

// Package errors defines the *Error type and the predefined sentinel errors
// every Cortex package wraps or returns. Callers branch on Category with
// errors.Is/errors.As or the IsXxx helpers; Details carries structured
// context (entity ids, paths, expected/actual versions) for logging.
//
// Sentinels are grouped by concern: store.go (backing store), lock.go (lock
// manager), merge.go (merge engine and collaborator contracts), timeout.go
// (deadlines and quotas), validation.go and internal.go (cross-cutting).
package errors
