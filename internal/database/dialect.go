package database

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ColumnType is a portable column type.
type ColumnType string

const (
	TypeString    ColumnType = "string"
	TypeText      ColumnType = "text"
	TypeInteger   ColumnType = "integer"
	TypeReal      ColumnType = "real"
	TypeBool      ColumnType = "bool"
	TypeTimestamp ColumnType = "timestamp"
	TypeBlob      ColumnType = "blob"
)

// Dialect renders SQL for one database family.
type Dialect interface {
	// Name returns the dialect name.
	Name() string

	// Quote quotes an identifier.
	Quote(ident string) string

	// Placeholder returns the n-th (1-based) bind parameter.
	Placeholder(n int) string

	// ColumnType maps a portable type onto a column definition.
	ColumnType(t ColumnType) string

	// ListTablesQuery returns a query selecting table names LIKE its only
	// parameter.
	ListTablesQuery() string
}

// DialectFor returns the dialect of a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "pgx", "postgres":
		return postgresDialect{}, nil
	case "mysql":
		return mysqlDialect{}, nil
	case "sqlite3":
		return sqliteDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Quote(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}

func (postgresDialect) Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func (postgresDialect) ColumnType(t ColumnType) string {
	switch t {
	case TypeString, TypeText:
		return "TEXT"
	case TypeInteger:
		return "BIGINT"
	case TypeReal:
		return "DOUBLE PRECISION"
	case TypeBool:
		return "BOOLEAN"
	case TypeTimestamp:
		return "TIMESTAMPTZ"
	case TypeBlob:
		return "BYTEA"
	default:
		return string(t)
	}
}

func (postgresDialect) ListTablesQuery() string {
	return `SELECT table_name FROM information_schema.tables
WHERE table_schema = current_schema() AND table_name LIKE $1
ORDER BY table_name`
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string { return "mysql" }

func (mysqlDialect) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (mysqlDialect) Placeholder(int) string { return "?" }

func (mysqlDialect) ColumnType(t ColumnType) string {
	switch t {
	case TypeString:
		return "VARCHAR(255)"
	case TypeText:
		return "TEXT"
	case TypeInteger:
		return "BIGINT"
	case TypeReal:
		return "DOUBLE"
	case TypeBool:
		return "BOOLEAN"
	case TypeTimestamp:
		return "DATETIME(6)"
	case TypeBlob:
		return "LONGBLOB"
	default:
		return string(t)
	}
}

func (mysqlDialect) ListTablesQuery() string {
	return `SELECT table_name FROM information_schema.tables
WHERE table_schema = DATABASE() AND table_name LIKE ?
ORDER BY table_name`
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) ColumnType(t ColumnType) string {
	switch t {
	case TypeString, TypeText:
		return "TEXT"
	case TypeInteger, TypeBool:
		return "INTEGER"
	case TypeReal:
		return "REAL"
	case TypeTimestamp:
		return "TIMESTAMP"
	case TypeBlob:
		return "BLOB"
	default:
		return string(t)
	}
}

func (sqliteDialect) ListTablesQuery() string {
	return `SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE ? ORDER BY name`
}
