// Package db opens the SQL database shared by the key and verification stores.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
	"k8s.io/utils/env"

	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/logger"
)

type Type string

const (
	TypeSQLite   Type = "sqlite"
	TypePostgres Type = "postgres"

	driverSQLite   = "sqlite3"
	driverPostgres = "pgx"

	// SQLiteMemory opens an ephemeral database.
	SQLiteMemory = ":memory:"
)

// DB is a database handle that knows its dialect.
type DB struct {
	*sql.DB

	Type Type
}

// OpenSQLite opens a SQLite database at dbPath. An empty path or ":memory:" gives
// an in-memory database that lives as long as the handle.
func OpenSQLite(ctx context.Context, log *logger.Logger, dbPath string) (*DB, error) {
	if log == nil {
		log = logger.Production()
	}
	if dbPath == "" {
		dbPath = SQLiteMemory
	}

	dsn := dbPath
	if dbPath != SQLiteMemory {
		dsn = fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", dbPath)
	}

	sqlDB, err := sql.Open(driverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	configureConnectionPool(sqlDB, TypeSQLite)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if dbPath == SQLiteMemory {
		log.Info("Connected to SQLite in-memory database (ephemeral - data will be lost on restart)")
	} else {
		log.Info("Connected to SQLite database", "path", dbPath)
	}
	return &DB{DB: sqlDB, Type: TypeSQLite}, nil
}

// OpenExternal connects to an external database. Currently supports PostgreSQL only.
func OpenExternal(ctx context.Context, log *logger.Logger, databaseURL string) (*DB, error) {
	if log == nil {
		log = logger.Production()
	}
	databaseURL = strings.TrimSpace(databaseURL)

	if !strings.HasPrefix(databaseURL, "postgresql://") && !strings.HasPrefix(databaseURL, "postgres://") {
		return nil, fmt.Errorf(
			"unsupported external database URL: %q. Currently supported: postgresql://",
			redact(databaseURL))
	}

	sqlDB, err := sql.Open(driverPostgres, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}

	configureConnectionPool(sqlDB, TypePostgres)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	log.Info("Connected to external PostgreSQL database")
	return &DB{DB: sqlDB, Type: TypePostgres}, nil
}

// Placeholder returns the bind parameter for the 1-based index.
// SQLite uses ?, PostgreSQL uses $1, $2, etc.
func (d *DB) Placeholder(index int) string {
	if d.Type == TypeSQLite {
		return "?"
	}
	return fmt.Sprintf("$%d", index)
}

// Placeholders returns n comma separated bind parameters starting at index 1.
func (d *DB) Placeholders(n int) string {
	p := make([]string, n)
	for i := range p {
		p[i] = d.Placeholder(i + 1)
	}
	return strings.Join(p, ", ")
}

const (
	defaultMaxOpenConns        = 25
	defaultMaxIdleConns        = 5
	defaultConnMaxLifetimeSecs = 300
)

func configureConnectionPool(sqlDB *sql.DB, dbType Type) {
	if dbType == TypePostgres {
		maxOpenConns, _ := env.GetInt("DB_MAX_OPEN_CONNS", defaultMaxOpenConns)
		maxIdleConns, _ := env.GetInt("DB_MAX_IDLE_CONNS", defaultMaxIdleConns)
		connMaxLifetimeSecs, _ := env.GetInt("DB_CONN_MAX_LIFETIME_SECONDS", defaultConnMaxLifetimeSecs)

		sqlDB.SetMaxOpenConns(maxOpenConns)
		sqlDB.SetMaxIdleConns(maxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(connMaxLifetimeSecs) * time.Second)
	} else {
		// SQLite: a single connection avoids locking issues and keeps :memory: shared.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	}
}

// redact hides credentials in a URL-like string for error messages.
func redact(u string) string {
	at := strings.LastIndex(u, "@")
	scheme := strings.Index(u, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return u
	}
	return u[:scheme+3] + "***" + u[at:]
}
