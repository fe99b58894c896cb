// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and Postgres, and schema migrations.
package repo

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	_ "github.com/lib/pq" // registers the "postgres" database/sql driver
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tbourn/go-wa-inbox/internal/domain"
)

// Open dispatches on driver ("sqlite" or "postgres").
func Open(driver, dsn string) (*gorm.DB, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		return OpenSQLite(dsn)
	case "postgres", "postgresql":
		return OpenPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
}

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	if sqlDB, err := db.DB(); err == nil {
		configurePool(sqlDB, 10)
	}
	return db, nil
}

// OpenPostgres opens a Postgres database through lib/pq.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DriverName: "postgres",
		DSN:        dsn,
	}), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		configurePool(sqlDB, 25)
	}
	return db, nil
}

func configurePool(sqlDB *sql.DB, n int) {
	sqlDB.SetMaxOpenConns(n)
	sqlDB.SetMaxIdleConns(n)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
}

// Models lists every persisted type, in dependency order.
func Models() []any {
	return []any{
		&domain.WorkspaceSettings{},
		&domain.Contact{},
		&domain.Team{},
		&domain.TeamMember{},
		&domain.RoutingCategory{},
		&domain.Conversation{},
		&domain.Message{},
		&domain.ConversationEvent{},
		&domain.WebhookEvent{},
		&domain.OutboxMessage{},
		&domain.MessageTemplate{},
		&domain.Campaign{},
		&domain.CampaignRecipient{},
		&domain.Idempotency{},
	}
}

// AutoMigrate creates or updates all tables and indexes.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
