package db

import (
	"path/filepath"
	"testing"
)

// OpenTestPools opens a migrated write/read pool pair in t.TempDir() and
// registers cleanup.
func OpenTestPools(t *testing.T) *Pools {
	t.Helper()

	pools, err := OpenPools(filepath.Join(t.TempDir(), "registry.sqlite"), 4)
	if err != nil {
		t.Fatalf("open test sqlite: %v", err)
	}
	t.Cleanup(func() { _ = pools.Close() })

	if err := RunMigrations(pools.Write); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return pools
}
