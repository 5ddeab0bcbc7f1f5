package testsupport

import (
	"testing"

	"recload/internal/config"
	"recload/internal/itemstore"
	"recload/internal/logging"
)

// MustOpenStore opens a work-item store over a per-test temp directory and
// closes it when the test finishes.
func MustOpenStore(t testing.TB) (*itemstore.Store, *config.Config) {
	t.Helper()

	cfg := NewConfig(t)
	store, err := itemstore.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("open item store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, cfg
}
