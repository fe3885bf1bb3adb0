package store

import (
	"strings"

	domainerrors "github.com/listenupapp/listenup-sync/internal/errors"
)

// Sentinel errors. They carry domain codes so callers can match with either package.
var (
	ErrNotFound = &domainerrors.Error{
		Code:    domainerrors.CodeNotFound,
		Message: "record not found",
	}

	ErrAlreadyExists = &domainerrors.Error{
		Code:    domainerrors.CodeValidation,
		Message: "record already exists",
	}
)

// IsUniqueViolation reports whether err is a SQLite unique or primary key violation.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
