package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIsUniqueConstraintError(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"nil":             {err: nil, want: false},
		"gorm duplicated": {err: fmt.Errorf("wrap: %w", gorm.ErrDuplicatedKey), want: true},
		"postgres unique": {err: &pgconn.PgError{Code: "23505"}, want: true},
		"postgres fk":     {err: &pgconn.PgError{Code: "23503"}, want: false},
		"mysql duplicate": {err: &mysql.MySQLError{Number: 1062}, want: true},
		"mysql other":     {err: &mysql.MySQLError{Number: 1452}, want: false},
		"sqlite unique":   {err: errors.New("UNIQUE constraint failed: rooms.name"), want: true},
		"sqlite fk":       {err: errors.New("FOREIGN KEY constraint failed"), want: false},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.want, isUniqueConstraintError(tc.err))
		})
	}
}
