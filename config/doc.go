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

// Package config provides configuration management for cortexd.
//
// Precedence, highest first:
//  1. Environment variables (prefixed with CORTEX_)
//  2. Configuration file (YAML or JSON, via LoadFromFile)
//  3. Default values (DefaultConfig)
//
// # Configuration Structure
//
// The configuration is organized into sections:
//   - Server: HTTP API settings
//   - Store: backing store abstraction (memory, SurrealDB, or Postgres) and
//     its connection pool
//   - Session: session engine lifetime, isolation level, and quotas
//   - Lock: lock manager wait policy, fairness, and deadlock detection
//   - Merge: merge engine strategy and validator settings
//   - Collaborator: external parser/embedder provider selection
//   - Logging: structured logging
//   - Metrics: Prometheus exposition
//
// # Usage
//
//	cfg, err := config.LoadFromFile("cortex.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Validation
//
// See Config.Validate for the complete set of rules; LoadFromFile calls it
// automatically after applying file and environment overrides.
package config
