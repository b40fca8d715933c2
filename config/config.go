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
	"time"
)

// Config is the complete configuration for a cortexd process.
type Config struct {
	Server       ServerConfig
	Store        StoreConfig
	Session      SessionConfig
	Lock         LockConfig
	Merge        MergeConfig
	Collaborator CollaboratorConfig
	Logging      LoggingConfig
	Metrics      MetricsConfig
}

// ServerConfig contains HTTP server settings for the cortexd API.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// StoreConfig selects and configures the backing store abstraction.
type StoreConfig struct {
	Type     string // "memory", "surreal", "postgres"
	Surreal  SurrealConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Pool     PoolConfig
}

// SurrealConfig contains SurrealDB connection settings for the production
// store backend (namespaces, secondary indexes, and the MTREE vector index).
type SurrealConfig struct {
	Endpoint  string
	Namespace string
	Database  string
	User      string
	Password  string
}

// PostgresConfig contains PostgreSQL settings for the relational store
// backend, used by deployments that do not need semantic-graph traversal or
// vector similarity search.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig contains Redis connection settings. They are loaded from
// file and environment, but no component in this module connects to
// Redis: the lock manager keeps its leases in the backing store.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// PoolConfig bounds the backing store's connection pool.
type PoolConfig struct {
	MaxConnections    int
	MinIdle           int
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
	AcquireTimeout    time.Duration
}

// SessionConfig bounds session lifetime and concurrency.
type SessionConfig struct {
	DefaultTTL            time.Duration
	MaxOpenPerWorkspace   int
	DefaultIsolationLevel string // "snapshot", "read_committed", "serializable"
	ReaperInterval        time.Duration
}

// LockConfig configures the lock manager's wait policy, fairness, and
// deadlock detection sweep.
type LockConfig struct {
	DefaultWaitPolicy    string // "fail_fast", "wait"
	DefaultWaitTimeout   time.Duration
	MaxOpenLocksPerSess  int
	StarvationThreshold  time.Duration
	CycleCheckInterval   time.Duration
	ExpirySweepInterval  time.Duration
	DefaultLeaseDuration time.Duration
}

// MergeConfig configures the merge engine's default strategy and validators.
type MergeConfig struct {
	DefaultStrategy  string // "auto", "mine", "theirs", "force"
	RunValidators    bool
	ValidatorTimeout time.Duration
	AIAssistEnabled  bool
	AIAssistProvider string // "openai", "anthropic"
}

// CollaboratorConfig configures the external Parser/Embedder/Ingestion
// collaborators Cortex calls out to but does not implement.
type CollaboratorConfig struct {
	EmbeddingProvider string // "openai", "anthropic", "none"
	EmbeddingModel    string
	EmbeddingDim      int
	ParserLanguages   []string
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level      string // "debug", "info", "warn", "error"
	Format     string // "json", "text"
	OutputPath string
}

// MetricsConfig contains metrics and monitoring configuration.
type MetricsConfig struct {
	Enabled bool
	Port    int
	Path    string
}

// DefaultConfig returns a configuration with production-sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Type: "memory",
			Surreal: SurrealConfig{
				Endpoint:  "ws://localhost:8000/rpc",
				Namespace: "cortex",
				Database:  "cortex",
			},
			Postgres: PostgresConfig{
				Host:    "localhost",
				Port:    5432,
				SSLMode: "disable",
			},
			Redis: RedisConfig{
				Host: "localhost",
				Port: 6379,
				DB:   0,
			},
			Pool: PoolConfig{
				MaxConnections:    20,
				MinIdle:           2,
				HealthCheckPeriod: 30 * time.Second,
				ConnectTimeout:    5 * time.Second,
				AcquireTimeout:    2 * time.Second,
			},
		},
		Session: SessionConfig{
			DefaultTTL:            2 * time.Hour,
			MaxOpenPerWorkspace:   256,
			DefaultIsolationLevel: "snapshot",
			ReaperInterval:        1 * time.Minute,
		},
		Lock: LockConfig{
			DefaultWaitPolicy:    "fail_fast",
			DefaultWaitTimeout:   10 * time.Second,
			MaxOpenLocksPerSess:  1000,
			StarvationThreshold:  30 * time.Second,
			CycleCheckInterval:   500 * time.Millisecond,
			ExpirySweepInterval:  5 * time.Second,
			DefaultLeaseDuration: 5 * time.Minute,
		},
		Merge: MergeConfig{
			DefaultStrategy:  "auto",
			RunValidators:    true,
			ValidatorTimeout: 30 * time.Second,
			AIAssistEnabled:  false,
			AIAssistProvider: "anthropic",
		},
		Collaborator: CollaboratorConfig{
			EmbeddingProvider: "none",
			EmbeddingDim:      1536,
			ParserLanguages:   []string{"go", "python", "javascript", "typescript"},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// NewConfig creates a new default configuration. It is an alias for
// DefaultConfig kept for callers migrating from the older constructor name.
func NewConfig() *Config {
	return DefaultConfig()
}
