package database

import "errors"

var (
	// ErrOpen is returned when the database file cannot be opened.
	ErrOpen = errors.New("database: open failed")

	// ErrMigrationChanged is returned when an applied migration's SQL no
	// longer matches the checksum recorded when it ran.
	ErrMigrationChanged = errors.New("database: applied migration was modified")

)
