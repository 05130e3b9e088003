package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation from
// Postgres (pgx or pq) or SQLite. When hints are given, at least one of them
// (a constraint name or a table.column) must appear in the violation.
func IsUniqueViolation(err error, hints ...string) bool {
	if err == nil {
		return false
	}

	var haystack []string

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		if pgxErr.Code != pgUniqueViolation {
			return false
		}
		haystack = append(haystack, pgxErr.ConstraintName, pgxErr.Message, pgxErr.Detail)
	case errors.As(err, &pqErr):
		if string(pqErr.Code) != pgUniqueViolation {
			return false
		}
		haystack = append(haystack, pqErr.Constraint, pqErr.Message, pqErr.Detail)
	default:
		msg := err.Error()
		if !errors.Is(err, gorm.ErrDuplicatedKey) &&
			!strings.Contains(msg, "duplicate key value") &&
			!strings.Contains(msg, "UNIQUE constraint failed") {
			return false
		}
		haystack = append(haystack, msg)
	}

	if len(hints) == 0 {
		return true
	}
	for _, hint := range hints {
		if hint == "" {
			continue
		}
		for _, s := range haystack {
			if strings.Contains(s, hint) {
				return true
			}
		}
	}
	return false
}

// IsNotFound reports gorm's record-not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
