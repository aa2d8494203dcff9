// Package database opens the SQLite file behind the command journal and
// keeps its schema current.
//
// Open applies the connection pragmas through the DSN (busy timeout,
// foreign keys, immediate transactions and optionally WAL) and limits the
// pool to one connection, which matches SQLite's single writer. The file
// is created with mode 0600.
//
// Migrations are forward-only "YYYYMMDD_HHMMSS_name.up.sql" files read
// from any fs.FS. A checksum of each applied script is stored in
// schema_migrations and an edited migration is refused. Status lists which
// migrations have run.
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Journal.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
