package recipes

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestTranslateStoreError(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		conflict bool
	}{
		{name: "gorm duplicate", err: gorm.ErrDuplicatedKey, conflict: true},
		{name: "postgres unique", err: &pgconn.PgError{Code: pgUniqueViolation}, conflict: true},
		{name: "sqlite unique", err: errors.New("UNIQUE constraint failed: ingredients.recipe_id"), conflict: true},
		{name: "gorm foreign key", err: gorm.ErrForeignKeyViolated, conflict: true},
		{name: "postgres foreign key", err: &pgconn.PgError{Code: pgForeignKeyViolation}, conflict: true},
		{name: "record not found", err: gorm.ErrRecordNotFound},
		{name: "other", err: errors.New("connection reset")},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			translated := translateStoreError(testCase.err, "taken")
			var conflictErr *ConflictError
			if testCase.conflict {
				assert.True(t, errors.As(translated, &conflictErr))
				return
			}
			assert.Same(t, testCase.err, translated)
		})
	}

	assert.Nil(t, translateStoreError(nil, "taken"))
}
