package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// runWithConfig points HEARTH_CONFIG at path and calls run with a short
// deadline so a misbehaving startup cannot hang the suite.
func runWithConfig(t *testing.T, path string) error {
	t.Helper()
	t.Setenv("HEARTH_CONFIG", path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return run(ctx)
}

func TestRun_MissingConfigFile(t *testing.T) {
	if err := runWithConfig(t, "/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("run() succeeded with a missing config file")
	}
}

func TestRun_EmptyDatabasePath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
site:
  id: test-site
database:
  path: ""
mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "test-client"
  qos: 1
influxdb:
  enabled: false
logging:
  level: error
  format: text
api:
  host: "127.0.0.1"
  port: 8199
security:
  jwt:
    secret: "test-secret-for-development-only!"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	if err := runWithConfig(t, configPath); err == nil {
		t.Fatal("run() succeeded without a database path")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("HEARTH_CONFIG", "")
	os.Unsetenv("HEARTH_CONFIG")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want default %q", got, defaultConfigPath)
	}

	t.Setenv("HEARTH_CONFIG", "/custom/path/config.yaml")
	if got := getConfigPath(); got != "/custom/path/config.yaml" {
		t.Errorf("getConfigPath() = %q, want env override", got)
	}
}

func TestSecondsOrZero(t *testing.T) {
	if got := secondsOrZero(30); got != 30*time.Second {
		t.Errorf("secondsOrZero(30) = %v, want 30s", got)
	}
	if got := secondsOrZero(0); got != 0 {
		t.Errorf("secondsOrZero(0) = %v, want 0", got)
	}
}
