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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFromFile loads configuration from a file (YAML or JSON), applies
// environment overrides, and validates the result. The file format is
// determined by the file extension (.yaml, .yml, or .json).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (use .yaml, .yml, or .json)", ext)
	}

	if err := cfg.LoadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadEnv loads configuration from environment variables. Environment
// variables take precedence over file-based configuration.
// Format: CORTEX_<SECTION>_<FIELD> (e.g., CORTEX_STORE_TYPE).
func (c *Config) LoadEnv() error {
	// Server config
	if v := os.Getenv("CORTEX_SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("CORTEX_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			c.Server.Port = port
		}
	}

	// Store config
	if v := os.Getenv("CORTEX_STORE_TYPE"); v != "" {
		c.Store.Type = v
	}
	if v := os.Getenv("CORTEX_STORE_SURREAL_ENDPOINT"); v != "" {
		c.Store.Surreal.Endpoint = v
	}
	if v := os.Getenv("CORTEX_STORE_SURREAL_NAMESPACE"); v != "" {
		c.Store.Surreal.Namespace = v
	}
	if v := os.Getenv("CORTEX_STORE_SURREAL_DATABASE"); v != "" {
		c.Store.Surreal.Database = v
	}
	if v := os.Getenv("CORTEX_STORE_SURREAL_USER"); v != "" {
		c.Store.Surreal.User = v
	}
	if v := os.Getenv("CORTEX_STORE_SURREAL_PASSWORD"); v != "" {
		c.Store.Surreal.Password = v
	}
	if v := os.Getenv("CORTEX_STORE_POSTGRES_HOST"); v != "" {
		c.Store.Postgres.Host = v
	}
	if v := os.Getenv("CORTEX_STORE_REDIS_HOST"); v != "" {
		c.Store.Redis.Host = v
	}

	// Session config
	if v := os.Getenv("CORTEX_SESSION_ISOLATION"); v != "" {
		c.Session.DefaultIsolationLevel = v
	}
	if v := os.Getenv("CORTEX_SESSION_MAX_OPEN"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			c.Session.MaxOpenPerWorkspace = n
		}
	}

	// Lock config
	if v := os.Getenv("CORTEX_LOCK_WAIT_POLICY"); v != "" {
		c.Lock.DefaultWaitPolicy = v
	}

	// Merge config
	if v := os.Getenv("CORTEX_MERGE_STRATEGY"); v != "" {
		c.Merge.DefaultStrategy = v
	}
	if v := os.Getenv("CORTEX_MERGE_AI_ASSIST"); v != "" {
		c.Merge.AIAssistEnabled = v == "true" || v == "1"
	}

	// Collaborator config
	if v := os.Getenv("CORTEX_EMBEDDING_PROVIDER"); v != "" {
		c.Collaborator.EmbeddingProvider = v
	}
	if v := os.Getenv("CORTEX_EMBEDDING_MODEL"); v != "" {
		c.Collaborator.EmbeddingModel = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Collaborator.EmbeddingProvider == "openai" {
		// provider reads the key itself from the same environment variable at
		// client construction time; nothing to copy onto Config.
		_ = v
	}

	// Logging config
	if v := os.Getenv("CORTEX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CORTEX_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	return nil
}
