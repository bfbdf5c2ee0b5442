package db

import (
	"errors"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation    = "23505"
	mysqlDuplicateEntry  = 1062
	sqliteUniqueFailure  = "UNIQUE constraint failed"
	pgUniqueViolationMsg = "duplicate key value violates unique constraint"
)

// IsDuplicateKeyErr reports whether err is a unique index violation. The
// cash day and sweep paths rely on it to turn a lost race into a domain
// error instead of a 500.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}

	// Drivers that only hand back text: sqlite, and postgres behind
	// database/sql wrappers.
	msg := err.Error()
	return strings.Contains(msg, sqliteUniqueFailure) || strings.Contains(msg, pgUniqueViolationMsg)
}
