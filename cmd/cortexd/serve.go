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

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cortex-dev/cortex/api"
	"github.com/cortex-dev/cortex/collaborator"
	"github.com/cortex-dev/cortex/config"
	"github.com/cortex-dev/cortex/content"
	"github.com/cortex-dev/cortex/graph"
	"github.com/cortex-dev/cortex/lock"
	"github.com/cortex-dev/cortex/merge"
	"github.com/cortex-dev/cortex/observability"
	"github.com/cortex-dev/cortex/session"
	"github.com/cortex-dev/cortex/store"
	"github.com/cortex-dev/cortex/workspace"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Cortex memory server",
	Long: `Start the HTTP server that exposes workspaces, sessions, locks, the
virtual filesystem, and the semantic merge engine over the Cortex REST API.

Configuration can be provided via:
  - a config file (default: ./config.yaml)
  - environment variables (CORTEX_*)
  - command-line flags (highest priority)

Example:
  cortexd serve
  cortexd serve --config cortex.yaml
  cortexd serve --port 9000 --host 0.0.0.0`,
	RunE: runServe,
}

var (
	serveConfig string
	servePort   int
	serveHost   string
)

func init() {
	serveCmd.Flags().StringVarP(&serveConfig, "config", "c", "config.yaml", "Path to configuration file")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Server port (overrides config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Server host (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(serveConfig)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}

	obs, err := buildObservability(cfg)
	if err != nil {
		return fmt.Errorf("failed to start observability: %w", err)
	}
	defer obs.Shutdown(context.Background())

	backend, err := buildStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	deps := buildDeps(backend, cfg, obs)
	handler := api.NewServer(deps).Handler()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		log.Printf("cortexd listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-sigChan:
		log.Println("shutdown signal received, draining connections")
	case err := <-errChan:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop server gracefully: %w", err)
	}
	log.Println("cortexd stopped")
	return nil
}

// loadConfig loads configuration from the specified file, falling back to
// defaults when the file does not exist; CORTEX_* environment variables
// override either.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Printf("config file not found: %s, using defaults", path)
		cfg := config.DefaultConfig()
		if err := cfg.LoadEnv(); err != nil {
			return nil, fmt.Errorf("failed to load environment variables: %w", err)
		}
		return cfg, nil
	}

	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	log.Printf("configuration loaded from %s", path)
	return cfg, nil
}

// buildStore constructs the backing Store for the configured backend type.
func buildStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Type {
	case "", "memory":
		return store.NewMemoryStore(), nil
	case "surreal":
		return store.NewSurrealStore(&store.ConnectionConfig{
			Endpoints:      []string{cfg.Surreal.Endpoint},
			Username:       cfg.Surreal.User,
			Password:       cfg.Surreal.Password,
			RootNamespace:  cfg.Surreal.Namespace,
			Database:       cfg.Surreal.Database,
			MinConns:       cfg.Pool.MinIdle,
			MaxConns:       cfg.Pool.MaxConnections,
			AcquireTimeout: cfg.Pool.AcquireTimeout,
		})
	case "postgres":
		return store.NewPostgresStore(&store.PostgresConfig{
			Host:         cfg.Postgres.Host,
			Port:         cfg.Postgres.Port,
			User:         cfg.Postgres.User,
			Password:     cfg.Postgres.Password,
			Database:     cfg.Postgres.Database,
			SSLMode:      cfg.Postgres.SSLMode,
			MaxOpenConns: cfg.Pool.MaxConnections,
			MaxIdleConns: cfg.Pool.MinIdle,
		})
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}

// buildObservability maps the cortexd-level logging/metrics config onto the
// shared observability manager.
func buildObservability(cfg *config.Config) (*observability.Manager, error) {
	obsCfg := observability.DefaultConfig()
	obsCfg.Logging.Level = cfg.Logging.Level
	obsCfg.Logging.Format = cfg.Logging.Format
	obsCfg.Logging.Output = cfg.Logging.OutputPath
	obsCfg.Metrics.Enabled = cfg.Metrics.Enabled
	obsCfg.Metrics.Port = cfg.Metrics.Port
	obsCfg.Metrics.Path = cfg.Metrics.Path

	return observability.NewManager(&observability.ManagerConfig{
		WorkspaceID: "cortexd",
		Config:      obsCfg,
	})
}

// buildDeps wires the backing store into every engine the API exposes.
func buildDeps(backend store.Store, cfg *config.Config, obs *observability.Manager) api.Deps {
	workspaces := workspace.New(backend)
	sessions := session.New(backend, workspaces, cfg.Session.DefaultTTL)
	locks := lock.New(backend, "_control")
	g := graph.New(backend)
	contentStore := content.NewStore(backend)

	parsers := buildParsers(cfg.Collaborator.ParserLanguages)

	var resolver merge.Resolver
	if cfg.Merge.AIAssistEnabled && cfg.Merge.AIAssistProvider == "anthropic" {
		resolver = merge.NewAnthropicResolver(merge.AnthropicResolverConfig{})
	}
	mergeEngine := merge.New(backend, workspaces, sessions, locks, parsers, resolver)

	return api.Deps{
		Backend:       backend,
		Workspaces:    workspaces,
		Sessions:      sessions,
		Locks:         locks,
		Merge:         mergeEngine,
		Graph:         g,
		Content:       contentStore,
		Parsers:       parsers,
		Observability: obs,
	}
}

// buildParsers constructs the Parser collaborators for every language the
// configuration names. Only Go has a real tree-sitter grammar wired in this
// build; unrecognized languages are skipped rather than failing startup,
// since a parser gap only degrades graph extraction for that language.
func buildParsers(languages []string) map[string]collaborator.Parser {
	parsers := make(map[string]collaborator.Parser)
	for _, lang := range languages {
		if lang == "go" {
			parsers[lang] = collaborator.NewTreeSitterParser()
		}
	}
	return parsers
}
