package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/aqakit/brain/pkg/config"
)

// Env variables consulted when no explicit backend is configured.
const (
	BackendEnv  = "AQA_STORAGE_BACKEND"
	PathEnv     = "AQA_STORAGE_PATH"
	S3BucketEnv = "AQA_S3_BUCKET"
	S3PrefixEnv = "AQA_S3_PREFIX"
	S3RegionEnv = "AQA_S3_REGION"
)

// Open selects and opens a backend. Precedence: explicit config > the
// AQA_STORAGE_BACKEND variable > S3 when a bucket variable is set > the
// embedded database in the workspace.
func Open(ctx context.Context, cfg config.StorageConfig, ws *config.Workspace) (Backend, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = os.Getenv(BackendEnv)
	}
	if backend == "" {
		if cfg.S3Bucket != "" || os.Getenv(S3BucketEnv) != "" {
			backend = "s3"
		} else {
			backend = "sqlite"
		}
	}

	switch backend {
	case "sqlite":
		path := firstNonEmpty(cfg.Path, os.Getenv(PathEnv), ws.HistoryPath())
		return NewSQLite(ctx, path)
	case "file":
		root := firstNonEmpty(cfg.Path, os.Getenv(PathEnv), ws.HistoryDir())
		return NewFileTree(root)
	case "s3":
		return NewS3(ctx, S3Config{
			Bucket: firstNonEmpty(cfg.S3Bucket, os.Getenv(S3BucketEnv)),
			Prefix: firstNonEmpty(cfg.S3Prefix, os.Getenv(S3PrefixEnv)),
			Region: firstNonEmpty(cfg.S3Region, os.Getenv(S3RegionEnv)),
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q (expected sqlite, file, or s3)", backend)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
