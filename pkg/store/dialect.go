package store

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Dialect provides the database specific parts of the snapshot queries.
type Dialect interface {
	DriverName() string

	// Schema returns the statements creating the snapshots table, executed one by one.
	Schema() []string

	// UpsertSuffix is appended to the snapshot insert statement.
	UpsertSuffix(columns ...string) string

	ConfigurePlaceholder(builder sq.StatementBuilderType) sq.StatementBuilderType
}

func GetDialect(driverName string) Dialect {
	switch driverName {
	case "mysql":
		return &MySQLDialect{}
	default:
		return &SQLiteDialect{}
	}
}

type SQLiteDialect struct{}

func (d *SQLiteDialect) DriverName() string {
	return "sqlite"
}

func (d *SQLiteDialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			kind       TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			payload    BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS snapshots_name_created_at ON snapshots (name, created_at)`,
	}
}

func (d *SQLiteDialect) UpsertSuffix(columns ...string) string {
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = fmt.Sprintf("%s = excluded.%s", c, c)
	}
	return "ON CONFLICT(id) DO UPDATE SET " + strings.Join(sets, ", ")
}

func (d *SQLiteDialect) ConfigurePlaceholder(builder sq.StatementBuilderType) sq.StatementBuilderType {
	return builder
}

type MySQLDialect struct{}

func (d *MySQLDialect) DriverName() string {
	return "mysql"
}

func (d *MySQLDialect) Schema() []string {
	return []string{
		"CREATE TABLE IF NOT EXISTS `snapshots` (" +
			"`id` VARCHAR(36) NOT NULL PRIMARY KEY," +
			"`name` VARCHAR(255) NOT NULL," +
			"`kind` VARCHAR(64) NOT NULL," +
			"`created_at` BIGINT NOT NULL," +
			"`payload` LONGBLOB NOT NULL," +
			"KEY `snapshots_name_created_at` (`name`, `created_at`)" +
			")",
	}
}

func (d *MySQLDialect) UpsertSuffix(columns ...string) string {
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = fmt.Sprintf("%s = VALUES(%s)", c, c)
	}
	return "ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}

func (d *MySQLDialect) ConfigurePlaceholder(builder sq.StatementBuilderType) sq.StatementBuilderType {
	// MySQL uses the default placeholder format (?)
	return builder
}
