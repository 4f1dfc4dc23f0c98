// Package postgres provides a checkpoint.Store backed by PostgreSQL,
// using pgx for connection pooling and golang-migrate to manage the
// checkpoint table's schema.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	// Necessary to load the postgres driver used by migrate.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var fs embed.FS

// RunMigrations runs the latest checkpoint schema migrations against dsn.
//
// Call this once at application startup, before constructing a Store.
func RunMigrations(dsn string) error {
	wrapErr := func(err error, msg string) error {
		return fmt.Errorf("postgres.RunMigrations: %s, %w", msg, err)
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return wrapErr(err, "invalid dsn format")
	}

	// Use a dedicated migrations table so this package can share a
	// database with other schema-migrated components without clashing
	// on the default 'schema_migrations' table name.
	q := u.Query()
	q.Add("x-migrations-table", "catchup_schema_migrations")
	u.RawQuery = q.Encode()

	d, err := iofs.New(fs, "migrations")
	if err != nil {
		return wrapErr(err, "failed to create iofs driver for reading migrations")
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, u.String())
	if err != nil {
		return wrapErr(err, "failed to create migrate source")
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return wrapErr(err, "failed to execute migrations")
	}

	return nil
}

// Codec converts a position to and from the text representation stored
// in the checkpoints table.
type Codec[P any] struct {
	Encode func(P) string
	Decode func(string) (P, error)
}

// Store is a checkpoint.Store implementation targeting PostgreSQL. It
// keeps a single row per subscription name in the "catchup_checkpoints"
// table, upserted on every Write.
type Store[P any] struct {
	Conn  *pgxpool.Pool
	Codec Codec[P]
}

// Read returns the last position written for name, or false if the
// subscription has never checkpointed before.
func (s Store[P]) Read(ctx context.Context, name string) (P, bool, error) {
	var zero P

	var raw string

	err := s.Conn.QueryRow(
		ctx,
		`SELECT position FROM catchup_checkpoints WHERE subscription_name = $1`,
		name,
	).Scan(&raw)

	if errors.Is(err, pgx.ErrNoRows) {
		return zero, false, nil
	}

	if err != nil {
		return zero, false, fmt.Errorf("postgres.Store: failed to query checkpoint: %w", err)
	}

	pos, err := s.Codec.Decode(raw)
	if err != nil {
		return zero, false, fmt.Errorf("postgres.Store: failed to decode checkpoint: %w", err)
	}

	return pos, true, nil
}

// Write upserts the checkpoint for name.
func (s Store[P]) Write(ctx context.Context, name string, pos P) error {
	_, err := s.Conn.Exec(
		ctx,
		`INSERT INTO catchup_checkpoints (subscription_name, position, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (subscription_name)
		DO UPDATE SET position = EXCLUDED.position, updated_at = EXCLUDED.updated_at`,
		name, s.Codec.Encode(pos),
	)
	if err != nil {
		return fmt.Errorf("postgres.Store: failed to upsert checkpoint: %w", err)
	}

	return nil
}
