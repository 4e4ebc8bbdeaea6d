package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// IsDuplicateKeyErr reports whether err is a unique-constraint violation.
// The connection opens with TranslateError, so most violations arrive as
// gorm.ErrDuplicatedKey; raw Exec paths still surface driver messages,
// matched here as a fallback (postgres 23505, mysql 1062, sqlite 2067).
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	for _, fragment := range []string{
		"duplicate key value violates unique constraint",
		"Error 1062",
		"UNIQUE constraint failed",
	} {
		if strings.Contains(err.Error(), fragment) {
			return true
		}
	}
	return false
}
