package db

import (
	"errors"
	"fmt"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm translated", gorm.ErrDuplicatedKey, true},
		{"wrapped gorm", fmt.Errorf("insert log: %w", gorm.ErrDuplicatedKey), true},
		{"pg unique", &pgconn.PgError{Code: "23505"}, true},
		{"pg other", &pgconn.PgError{Code: "23503"}, false},
		{"mysql duplicate", &mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"}, true},
		{"mysql other", fmt.Errorf("wrap: %w", &mysqldriver.MySQLError{Number: 1452}), false},
		{"sqlite", errors.New("UNIQUE constraint failed: cash_register_logs.branch_id"), true},
		{"pg text", errors.New(`ERROR: duplicate key value violates unique constraint "uq_commission"`), true},
		{"other", errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsDuplicateKeyErr(tc.err))
		})
	}
}
