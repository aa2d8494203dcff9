package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nerrad567/gray-logic-starlink/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-starlink/internal/journal"
	"github.com/nerrad567/gray-logic-starlink/migrations"
)

// errJournalNotReady means the journal file exists but the running bridge
// has not migrated it yet.
var errJournalNotReady = errors.New("command journal schema is not current; start the bridge with journal.enabled first")

type migrationLine struct {
	Version   string     `json:"version"`
	Name      string     `json:"name"`
	Applied   bool       `json:"applied"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

// printJournal writes the newest journal entries, or the schema migration
// status with --migrations, as JSON lines. It never creates or migrates the
// database.
func printJournal(ctx context.Context, w io.Writer, inv *invocation) error {
	path := inv.cfg.Journal.Path
	if path == "" {
		return fmt.Errorf("journal.path is not set")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("command journal %s: %w", path, err)
	}

	db, err := database.Open(ctx, database.Config{
		Path:        path,
		BusyTimeout: inv.cfg.Journal.BusyTimeout,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.HealthCheck(ctx); err != nil {
		return err
	}
	status, err := db.Status(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}

	enc := json.NewEncoder(w)
	if inv.migrations {
		for _, st := range status {
			line := migrationLine{Version: st.Version, Name: st.Name, Applied: st.Applied}
			if st.Applied {
				line.AppliedAt = &st.AppliedAt
			}
			if err := enc.Encode(line); err != nil {
				return err
			}
		}
		return nil
	}

	for _, st := range status {
		if !st.Applied {
			return fmt.Errorf("%w (pending %s_%s)", errJournalNotReady, st.Version, st.Name)
		}
	}

	entries, err := journal.NewSQLiteRepository(db.DB).Recent(ctx, inv.limit)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}
