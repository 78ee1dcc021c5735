// Package store is the Postgres persistence layer. All queries go through
// database/sql with the lib/pq driver; schema creation is idempotent so every
// service can run it at startup without coordination.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"

	"github.com/videonest/videonest/log"
)

const (
	maxOpenConns    = 10
	connMaxLifetime = 30 * time.Minute
)

// Open connects to Postgres and waits for it to become reachable. Services
// typically start alongside the database, so the initial ping retries with
// backoff instead of failing fast.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			log.LogNoVideoID("database not ready, retrying", "err", err.Error())
			return err
		}
		return nil
	}
	retries := backoff.NewExponentialBackOff()
	retries.InitialInterval = 1 * time.Second
	retries.MaxInterval = 10 * time.Second
	retries.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(ping, backoff.WithContext(retries, ctx)); err != nil {
		db.Close()
		return nil, fmt.Errorf("waiting for database: %w", err)
	}
	return db, nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS videos_info (
		uuid UUID PRIMARY KEY,
		author_id BIGINT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT now(),
		is_complete BOOLEAN NOT NULL DEFAULT FALSE,
		likes_count BIGINT NOT NULL DEFAULT 0,
		dislikes_count BIGINT NOT NULL DEFAULT 0,
		views_count BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS videos_info_author_id_idx ON videos_info (author_id)`,
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username VARCHAR(32) NOT NULL UNIQUE,
		email VARCHAR(254) NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		token_version BIGINT NOT NULL DEFAULT 1,
		date_joined TIMESTAMP NOT NULL DEFAULT now(),
		avatar TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		token VARCHAR(254) NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL DEFAULT now(),
		expires_at TIMESTAMP NOT NULL,
		is_revoked BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS refresh_tokens_user_id_idx ON refresh_tokens (user_id)`,
}

// EnsureSchema creates the tables and indexes if they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}
