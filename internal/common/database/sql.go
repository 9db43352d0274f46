package database

import (
	"context"
	"database/sql"
	"fmt"

	"outreach-engine/internal/common/config"
)

// SQLClient is the common surface of the Postgres and SQLite clients.
type SQLClient interface {
	Ping(ctx context.Context) error
	Close() error
	GetDB() *sql.DB
}

// OpenSQL opens the database selected by cfg.Driver.
func OpenSQL(cfg config.DatabaseConfig) (SQLClient, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return NewPostgres(cfg.Postgres)
	case config.DriverSQLite:
		return NewSQLite(cfg.SQLite)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
