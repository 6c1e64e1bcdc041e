// db/postgres.go
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/atlas-iam/gatekeeper/config"
	logger "github.com/atlas-iam/gatekeeper/logging"
)

var PgPool *pgxpool.Pool

func InitPostgres() error {
	dsn := config.GetString("postgres.dsn")
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("invalid postgres DSN: %w", err)
	}
	cfg.MaxConns = 20
	cfg.MaxConnLifetime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	PgPool, err = pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := PgPool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}

	logger.Info("Successfully connected to Postgres")
	return nil
}

func ClosePostgres() {
	if PgPool != nil {
		PgPool.Close()
		logger.Info("Postgres pool closed", zap.String("component", "db"))
	}
}
