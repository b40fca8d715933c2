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

package config

import (
	"fmt"
)

// Validate validates the entire configuration.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateStore(); err != nil {
		return err
	}

	if err := c.validateSession(); err != nil {
		return err
	}

	if err := c.validateLock(); err != nil {
		return err
	}

	if err := c.validateMerge(); err != nil {
		return err
	}

	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	return nil
}

func (c *Config) validateStore() error {
	validTypes := map[string]bool{
		"memory":   true,
		"surreal":  true,
		"postgres": true,
	}

	if !validTypes[c.Store.Type] {
		return fmt.Errorf("store type must be one of: memory, surreal, postgres")
	}

	switch c.Store.Type {
	case "surreal":
		if c.Store.Surreal.Endpoint == "" {
			return fmt.Errorf("store.surreal.endpoint must not be empty")
		}
		if c.Store.Surreal.Namespace == "" {
			return fmt.Errorf("store.surreal.namespace must not be empty")
		}
		if c.Store.Surreal.Database == "" {
			return fmt.Errorf("store.surreal.database must not be empty")
		}
	case "postgres":
		if c.Store.Postgres.Host == "" {
			return fmt.Errorf("store.postgres.host must not be empty")
		}
		if c.Store.Postgres.Port < 1 || c.Store.Postgres.Port > 65535 {
			return fmt.Errorf("store.postgres.port must be between 1 and 65535")
		}
		if c.Store.Postgres.Database == "" {
			return fmt.Errorf("store.postgres.database must not be empty")
		}
	}

	if c.Store.Pool.MaxConnections < 1 {
		return fmt.Errorf("store.pool.max_connections must be positive")
	}
	if c.Store.Pool.MinIdle < 0 || c.Store.Pool.MinIdle > c.Store.Pool.MaxConnections {
		return fmt.Errorf("store.pool.min_idle must be between 0 and max_connections")
	}

	return nil
}

func (c *Config) validateSession() error {
	validLevels := map[string]bool{
		"snapshot":        true,
		"read_committed":  true,
		"serializable":    true,
	}

	if !validLevels[c.Session.DefaultIsolationLevel] {
		return fmt.Errorf("session isolation level must be one of: snapshot, read_committed, serializable")
	}

	if c.Session.MaxOpenPerWorkspace < 1 {
		return fmt.Errorf("session.max_open_per_workspace must be positive")
	}

	return nil
}

func (c *Config) validateLock() error {
	validPolicies := map[string]bool{
		"fail_fast": true,
		"wait":      true,
	}

	if !validPolicies[c.Lock.DefaultWaitPolicy] {
		return fmt.Errorf("lock wait policy must be one of: fail_fast, wait")
	}

	if c.Lock.MaxOpenLocksPerSess < 1 {
		return fmt.Errorf("lock.max_open_locks_per_session must be positive")
	}

	if c.Lock.DefaultLeaseDuration <= 0 {
		return fmt.Errorf("lock.default_lease_duration must be positive")
	}

	return nil
}

func (c *Config) validateMerge() error {
	validStrategies := map[string]bool{
		"auto":   true,
		"mine":   true,
		"theirs": true,
		"force":  true,
	}

	if !validStrategies[c.Merge.DefaultStrategy] {
		return fmt.Errorf("merge strategy must be one of: auto, mine, theirs, force")
	}

	if c.Merge.AIAssistEnabled {
		validProviders := map[string]bool{
			"openai":    true,
			"anthropic": true,
		}
		if !validProviders[c.Merge.AIAssistProvider] {
			return fmt.Errorf("merge.ai_assist_provider must be one of: openai, anthropic when ai_assist is enabled")
		}
	}

	return nil
}
