package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aqakit/brain/pkg/config"
)

func testWorkspace(t *testing.T) *config.Workspace {
	t.Helper()
	ws := &config.Workspace{Root: t.TempDir()}
	if err := ws.Init(); err != nil {
		t.Fatal(err)
	}
	return ws
}

func clearStorageEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{BackendEnv, PathEnv, S3BucketEnv, S3PrefixEnv, S3RegionEnv} {
		t.Setenv(key, "")
	}
}

func TestOpenDefaultsToSQLite(t *testing.T) {
	clearStorageEnv(t)
	ws := testWorkspace(t)

	backend, err := Open(context.Background(), config.StorageConfig{}, ws)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer backend.Close()

	if _, ok := backend.(*SQLite); !ok {
		t.Fatalf("default backend = %T, want *SQLite", backend)
	}
	if _, err := os.Stat(ws.HistoryPath()); err != nil {
		t.Errorf("database not created at workspace path: %v", err)
	}
}

func TestOpenExplicitFileBackend(t *testing.T) {
	clearStorageEnv(t)
	ws := testWorkspace(t)

	root := filepath.Join(t.TempDir(), "records")
	backend, err := Open(context.Background(), config.StorageConfig{Backend: "file", Path: root}, ws)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer backend.Close()

	if _, ok := backend.(*FileTree); !ok {
		t.Fatalf("backend = %T, want *FileTree", backend)
	}
	if _, err := os.Stat(root); err != nil {
		t.Errorf("file tree root not created: %v", err)
	}
}

func TestOpenEnvOverridesAutoDetect(t *testing.T) {
	clearStorageEnv(t)
	ws := testWorkspace(t)

	// A bucket variable alone would select s3; the explicit backend
	// variable wins.
	t.Setenv(S3BucketEnv, "some-bucket")
	t.Setenv(BackendEnv, "file")

	backend, err := Open(context.Background(), config.StorageConfig{}, ws)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer backend.Close()

	if _, ok := backend.(*FileTree); !ok {
		t.Fatalf("backend = %T, want *FileTree", backend)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	clearStorageEnv(t)
	ws := testWorkspace(t)

	if _, err := Open(context.Background(), config.StorageConfig{Backend: "redis"}, ws); err == nil {
		t.Fatal("unknown backend must error")
	}
}
