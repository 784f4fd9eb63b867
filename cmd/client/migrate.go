package main

import (
	"context"
	"errors"
	"log/slog"

	"example.com/resistance-client/internal/config"
	"example.com/resistance-client/internal/migrate"
)

func runMigrations(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if cfg.Postgres.URL == "" {
		return errors.New("DATABASE_URL is empty, nothing to migrate")
	}
	return migrate.Up(ctx, cfg.Postgres.URL, cfg.Postgres.MigrationsDir, log)
}
