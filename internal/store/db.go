// Package store is the engine's persistence layer: session rows under
// optimistic version CAS, the append-only action log, and the
// per-(session, idempotency-key) controller state, per spec.md §3. The
// production path runs on PostgreSQL via pgx's stdlib driver, migrated at
// boot with golang-migrate; an in-process SQLite double exercises the same
// repository contract in tests without a live Postgres instance.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	_ "modernc.org/sqlite"             // registers the "sqlite" database/sql driver
)

//go:embed migrations
var migrationsFS embed.FS

//go:embed sqlite_schema.sql
var sqliteSchemaFS embed.FS

// Dialect distinguishes the two backing engines a Store can wrap; query
// text differs only in placeholder style and JSON column handling.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Config holds PostgreSQL connection parameters, mirroring the teacher's
// pkg/database.Config.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Store wraps a *sql.DB with the dialect needed to render portable SQL for
// both backing engines.
type Store struct {
	DB      *sql.DB
	dialect Dialect
}

// NewPostgres opens a pgx-backed connection pool, applies embedded
// migrations, and returns a ready Store.
func NewPostgres(ctx context.Context, cfg Config) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	if err := runPostgresMigrations(db, cfg.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: run migrations: %w", err)
	}

	return &Store{DB: db, dialect: DialectPostgres}, nil
}

// NewPostgresDSN opens a pgx-backed connection pool from a single
// connection-string DSN (the form DATABASE_URL carries in deployment),
// applies embedded migrations, and returns a ready Store. It is the entry
// point cmd/storyengined uses; NewPostgres remains for callers that already
// hold parsed connection parameters.
func NewPostgresDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	if err := runPostgresMigrations(db, "storyengine"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: run migrations: %w", err)
	}

	return &Store{DB: db, dialect: DialectPostgres}, nil
}

func runPostgresMigrations(db *sql.DB, databaseName string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, databaseName, driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if err == migrate.ErrNoChange {
			slog.Info("database migrations up to date", "database", databaseName)
		} else {
			return fmt.Errorf("apply migrations: %w", err)
		}
	} else {
		slog.Info("database migrations applied", "database", databaseName)
	}

	return sourceDriver.Close()
}

// NewSQLite opens the pure-Go SQLite test double at path (use
// "file::memory:?cache=shared" for an ephemeral in-process database) and
// applies the hand-maintained sqlite_schema.sql directly — golang-migrate's
// source-of-truth migrations target Postgres syntax (JSONB, TIMESTAMPTZ)
// and are not reused here.
func NewSQLite(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid "database is locked"

	schema, err := fs.ReadFile(sqliteSchemaFS, "sqlite_schema.sql")
	if err != nil {
		return nil, fmt.Errorf("store: read sqlite schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: apply sqlite schema: %w", err)
	}

	return &Store{DB: db, dialect: DialectSQLite}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.DB.Close()
}

// HealthStatus reports database reachability and connection pool stats,
// surfaced by GET /health.
type HealthStatus struct {
	Status          string        `json:"status"`
	ResponseTime    time.Duration `json:"response_time_ms"`
	OpenConnections int           `json:"open_connections"`
	InUse           int           `json:"in_use"`
	Idle            int           `json:"idle"`
}

// Health pings the database and reports pool statistics.
func (s *Store) Health(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()
	if err := s.DB.PingContext(ctx); err != nil {
		return &HealthStatus{Status: "unhealthy", ResponseTime: time.Since(start)}, err
	}
	stats := s.DB.Stats()
	return &HealthStatus{
		Status:          "healthy",
		ResponseTime:    time.Since(start),
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
	}, nil
}
