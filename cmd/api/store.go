package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/warmpath/backend/internal/storage"
	"github.com/warmpath/backend/internal/storage/postgres"
	"github.com/warmpath/backend/internal/storage/sqlite"
	"github.com/warmpath/backend/pkg/config"
)

// openStore connects the configured backend and applies the schema.
func openStore(ctx context.Context, sc config.StorageConfig) (storage.Store, error) {
	var (
		store storage.Store
		err   error
	)
	switch sc.Driver {
	case "postgres":
		store, err = postgres.New(ctx, sc.PostgresDSN, postgres.PoolConfig{
			MaxConns: sc.MaxConns,
			MinConns: sc.MinConns,
		})
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(sc.SQLitePath), 0o755); err != nil {
			return nil, eris.Wrap(err, "create data directory")
		}
		store, err = sqlite.NewClient(sc.SQLitePath)
	default:
		return nil, eris.Errorf("unknown storage driver %q", sc.Driver)
	}
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}

	if err := store.Migrate(ctx); err != nil {
		store.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return store, nil
}
