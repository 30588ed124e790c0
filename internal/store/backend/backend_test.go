package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/wirekit/internal/config"
	"github.com/tendant/wirekit/internal/resource"
)

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		cfg  config.Config
	}{
		{"file", config.Config{StorageBackend: config.BackendFile, DataDir: filepath.Join(dir, "files")}},
		{"sqlite", config.Config{StorageBackend: config.BackendSQLite, SQLitePath: filepath.Join(dir, "db", "wirekit.db")}},
		{"file with cache", config.Config{StorageBackend: config.BackendFile, DataDir: filepath.Join(dir, "cached"), CacheTTL: time.Minute}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			b, err := Open(ctx, &tt.cfg, nil)
			require.NoError(t, err)
			defer b.Close()

			svc, err := b.Factory(resource.Namespace("app"), "files")
			require.NoError(t, err)
			require.NoError(t, svc.Write(ctx, "k", []byte("v")))

			data, err := svc.Read(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "v", string(data))
		})
	}
}

func TestOpenUnknown(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{StorageBackend: "tape"}, nil)
	assert.Error(t, err)
}

func TestOpenS3RequiresBucket(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{StorageBackend: config.BackendS3}, nil)
	assert.Error(t, err)
}
