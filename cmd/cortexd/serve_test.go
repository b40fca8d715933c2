// Copyright (C) 2025 sage-x-project
// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cortex-dev/cortex/config"
)

func TestLoadConfig_FileNotFound(t *testing.T) {
	tempDir := t.TempDir()
	nonExistentPath := filepath.Join(tempDir, "nonexistent.yaml")

	cfg, err := loadConfig(nonExistentPath)
	if err != nil {
		t.Fatalf("loadConfig should return default config when file not found, got error: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config, got nil")
	}
	var _ *config.Config = cfg
}

func TestLoadConfig_ValidFile(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")

	configContent := `
store:
  type: memory
server:
  host: 127.0.0.1
  port: 8088
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to create test config file: %v", err)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Store.Type != "memory" {
		t.Errorf("expected store type 'memory', got %q", cfg.Store.Type)
	}
	if cfg.Server.Port != 8088 {
		t.Errorf("expected port 8088, got %d", cfg.Server.Port)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "invalid.yaml")

	if err := os.WriteFile(configPath, []byte("this is: not: valid: yaml::"), 0644); err != nil {
		t.Fatalf("failed to create test config file: %v", err)
	}

	if _, err := loadConfig(configPath); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestBuildStore_Memory(t *testing.T) {
	backend, err := buildStore(config.StoreConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("buildStore(memory) failed: %v", err)
	}
	if backend == nil {
		t.Fatal("expected a non-nil store")
	}
}

func TestBuildStore_Default(t *testing.T) {
	backend, err := buildStore(config.StoreConfig{})
	if err != nil {
		t.Fatalf("buildStore(default) failed: %v", err)
	}
	if backend == nil {
		t.Fatal("expected a non-nil store for an empty type")
	}
}

func TestBuildStore_Unsupported(t *testing.T) {
	if _, err := buildStore(config.StoreConfig{Type: "dynamodb"}); err == nil {
		t.Error("expected an error for an unsupported store type")
	}
}

func TestBuildParsers_OnlyKnownLanguages(t *testing.T) {
	parsers := buildParsers([]string{"go", "python", "rust"})
	if _, ok := parsers["go"]; !ok {
		t.Error("expected a parser for go")
	}
	if _, ok := parsers["python"]; ok {
		t.Error("did not expect a parser for python in this build")
	}
	if len(parsers) != 1 {
		t.Errorf("expected exactly one registered parser, got %d", len(parsers))
	}
}
