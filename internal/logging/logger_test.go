// Package logging includes tests for the zap logger helpers.
package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestNewDevelopmentLogger confirms the development logger builds and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	if err != nil {
		t.Fatalf("New(true) error = %v", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

// TestNewProductionLogger ensures the production logger configuration succeeds.
func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(false)
	if err != nil {
		t.Fatalf("New(false) error = %v", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
}

func TestNewToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "scrapectl.log")
	logger, err := NewToFile(false, path)
	if err != nil {
		t.Fatalf("NewToFile() error = %v", err)
	}
	logger.Info("dashboard started")
	_ = logger.Sync()

	// #nosec G304 -- test reads from the controlled temp directory.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(raw), "dashboard started") {
		t.Fatalf("expected log line in file, got %q", raw)
	}
}
