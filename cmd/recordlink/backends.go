package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"

	"github.com/recordlink/recordlink/internal/cli/config"
	"github.com/recordlink/recordlink/internal/collection"
)

// openBackend builds a collection from its configuration. The returned
// cleanup function closes whatever connection the backend holds.
func openBackend(ctx context.Context, cfg config.BackendConfig) (collection.Collection, func() error, error) {
	switch cfg.Kind {
	case "memory":
		return collection.NewMemory(cfg.Entity, cfg.KeyField, cfg.LocalKeyField),
			func() error { return nil }, nil

	case "postgres":
		db, err := sql.Open("pgx", cfg.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres backend: %w", err)
		}
		coll, err := collection.NewPostgres(db, cfg.Entity, cfg.KeyField, cfg.LocalKeyField)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		if err := coll.EnsureTable(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return coll, db.Close, nil

	case "sqlite":
		db, err := sql.Open("sqlite3", cfg.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite backend: %w", err)
		}
		coll, err := collection.NewSQLite(db, cfg.Entity, cfg.KeyField, cfg.LocalKeyField)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		if err := coll.EnsureTable(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return coll, db.Close, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to reach redis backend: %w", err)
		}
		return collection.NewRedis(client, cfg.Entity, cfg.KeyField, cfg.LocalKeyField),
			client.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend kind %q", cfg.Kind)
	}
}
