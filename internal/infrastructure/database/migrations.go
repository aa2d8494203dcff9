package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
	"time"
)

// migrationFile matches "YYYYMMDD_HHMMSS_name.up.sql". Migrations only move
// forward; other files are ignored.
var migrationFile = regexp.MustCompile(`^(\d{8}_\d{6})_([a-z0-9_]+)\.up\.sql$`)

const createSchemaTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	checksum   TEXT NOT NULL,
	applied_at INTEGER NOT NULL
) STRICT`

// Migration is one versioned schema change.
type Migration struct {
	Version string
	Name    string
	Up      string
}

// Checksum identifies the up script. It is stored when the migration runs
// so later edits to an applied migration are detected.
func (m Migration) Checksum() string {
	sum := sha256.Sum256([]byte(m.Up))
	return hex.EncodeToString(sum[:])
}

// MigrationStatus pairs a migration with whether it has been applied.
type MigrationStatus struct {
	Migration
	Applied   bool
	AppliedAt time.Time
}

type appliedMigration struct {
	checksum string
	at       time.Time
}

// LoadMigrations reads the migration scripts at the root of fsys, oldest
// first. Files that do not follow the naming scheme are ignored. A nil
// fsys has no migrations.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	if fsys == nil {
		return nil, nil
	}

	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		match := migrationFile.FindStringSubmatch(name)
		if match == nil {
			continue
		}

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		if strings.TrimSpace(string(body)) == "" {
			return nil, fmt.Errorf("migration %s is empty", name)
		}
		out = append(out, Migration{Version: match[1], Name: match[2], Up: string(body)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Migrate applies every migration in fsys that has not run yet and returns
// how many were applied.
//
// Each migration runs in its own transaction; a failure leaves earlier
// migrations committed and stops before later ones. Applied migrations
// whose up script changed since they ran fail with ErrMigrationChanged.
func (db *DB) Migrate(ctx context.Context, fsys fs.FS) (int, error) {
	set, err := LoadMigrations(fsys)
	if err != nil {
		return 0, err
	}
	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, m := range set {
		if prev, ok := applied[m.Version]; ok {
			if prev.checksum != m.Checksum() {
				return n, fmt.Errorf("%w: %s_%s", ErrMigrationChanged, m.Version, m.Name)
			}
			continue
		}

		err := db.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.Up); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, name, checksum, applied_at) VALUES (?, ?, ?, ?)",
				m.Version, m.Name, m.Checksum(), time.Now().UnixMilli())
			return err
		})
		if err != nil {
			return n, fmt.Errorf("applying migration %s_%s: %w", m.Version, m.Name, err)
		}
		n++
	}
	return n, nil
}

// Status lists every migration in fsys with its applied state.
func (db *DB) Status(ctx context.Context, fsys fs.FS) ([]MigrationStatus, error) {
	set, err := LoadMigrations(fsys)
	if err != nil {
		return nil, err
	}
	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]MigrationStatus, 0, len(set))
	for _, m := range set {
		st := MigrationStatus{Migration: m}
		if prev, ok := applied[m.Version]; ok {
			st.Applied = true
			st.AppliedAt = prev.at
		}
		out = append(out, st)
	}
	return out, nil
}

func (db *DB) ensureSchemaTable(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, createSchemaTable); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}
	return nil
}

func (db *DB) appliedMigrations(ctx context.Context) (map[string]appliedMigration, error) {
	if err := db.ensureSchemaTable(ctx); err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, "SELECT version, checksum, applied_at FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("reading schema_migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]appliedMigration)
	for rows.Next() {
		var version, checksum string
		var at int64
		if err := rows.Scan(&version, &checksum, &at); err != nil {
			return nil, fmt.Errorf("scanning schema_migrations: %w", err)
		}
		out[version] = appliedMigration{checksum: checksum, at: time.UnixMilli(at).UTC()}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading schema_migrations: %w", err)
	}
	return out, nil
}

// inTx runs fn in a transaction, committing only if fn succeeds.
func (db *DB) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
