package testsupport

import (
	"path/filepath"
	"testing"

	"recload/internal/config"
)

// NewConfig returns a validated config rooted in a per-test temp directory.
func NewConfig(t testing.TB) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Broker.URL = "amqp://127.0.0.1:5672"
	cfg.Store.DataDir = filepath.Join(base, "data")
	cfg.Store.BlobDir = filepath.Join(base, "blobs")
	cfg.Logging.Dir = filepath.Join(base, "logs")
	cfg.Pump.LockPath = filepath.Join(base, "pump.lock")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}
