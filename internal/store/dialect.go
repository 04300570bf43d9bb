package store

import (
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// postgresUniqueViolation is the SQLSTATE code Postgres raises on a unique
// constraint violation.
const postgresUniqueViolation = "23505"

// isUniqueViolation reports whether err came from a unique-constraint
// conflict, for both backing dialects. Postgres surfaces a structured
// *pgconn.PgError; the pure-Go SQLite driver's error text is matched
// directly since it does not export a typed constraint-code wrapper this
// module depends on.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == postgresUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// placeholder renders the n-th positional bind parameter for s's dialect:
// "$n" for Postgres, "?" for SQLite.
func (s *Store) placeholder(n int) string {
	if s.dialect == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// jsonPlaceholder renders a bind parameter for a JSON-typed column: cast to
// jsonb on Postgres (the column type), bound as plain TEXT on SQLite.
func (s *Store) jsonPlaceholder(n int) string {
	if s.dialect == DialectPostgres {
		return s.placeholder(n) + "::jsonb"
	}
	return s.placeholder(n)
}

// now renders the dialect's current-timestamp SQL literal.
func (s *Store) now() string {
	if s.dialect == DialectPostgres {
		return "now()"
	}
	return "strftime('%Y-%m-%dT%H:%M:%fZ','now')"
}
