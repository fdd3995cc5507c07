// Package store provides PostgreSQL-backed persistence for the collaboration
// core: chat messages, topic posts (with their comments, likes, and approval
// state as JSONB), and the denormalized last-message summary on chat rooms.
// Schema migrations are embedded and applied at startup.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps the shared database handle and exposes the per-entity stores.
type DB struct {
	db *sql.DB
}

// Open connects to PostgreSQL using the given DSN and verifies the
// connection with a ping.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: postgres ping failed: %w", err)
	}

	return &DB{db: db}, nil
}

// Migrate applies all pending embedded migrations. A database that is
// already up to date is not an error.
func (d *DB) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: load migrations: %w", err)
	}

	driver, err := postgres.WithInstance(d.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("store: migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("store: init migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: apply migrations: %w", err)
	}
	return nil
}

// Messages returns the chat message store.
func (d *DB) Messages() *MessageStore {
	return &MessageStore{db: d.db}
}

// Topics returns the topic post store.
func (d *DB) Topics() *TopicStore {
	return &TopicStore{db: d.db}
}

// Rooms returns the chat room summary store.
func (d *DB) Rooms() *RoomStore {
	return &RoomStore{db: d.db}
}

// Close closes the underlying database handle.
func (d *DB) Close() error {
	return d.db.Close()
}
