package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthChecker implements the observability.Checker interface for a SQL store.
type HealthChecker struct {
	name string
	ping func(ctx context.Context) error
}

// NewHealthChecker creates a health checker for a PostgreSQL pool.
func NewHealthChecker(pool *pgxpool.Pool) *HealthChecker {
	h := &HealthChecker{name: "postgres"}
	if pool != nil {
		h.ping = pool.Ping
	}
	return h
}

// NewSQLHealthChecker creates a health checker for a database/sql handle, such as the SQLite store.
func NewSQLHealthChecker(name string, db *sql.DB) *HealthChecker {
	h := &HealthChecker{name: name}
	if db != nil {
		h.ping = db.PingContext
	}
	return h
}

// Name returns the component name.
func (h *HealthChecker) Name() string {
	return h.name
}

// Check pings the database.
func (h *HealthChecker) Check(ctx context.Context) error {
	if h.ping == nil {
		return fmt.Errorf("%s connection is nil", h.name)
	}
	return h.ping(ctx)
}
