package service

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrLoginUserNotFound         = errors.New("user not found")
	ErrLoginPasswordDoesNotMatch = errors.New("password does not match")
	ErrUserExists                = errors.New("user with this username or email already exists")
	ErrTagExists                 = errors.New("tag with this text already exists")
	ErrNotFound                  = errors.New("not found")
)

// CategoryMissingError reports a category_id that references no row.
// The message names the offending id so clients can correct the input.
type CategoryMissingError struct {
	ID uint64
}

func (e *CategoryMissingError) Error() string {
	return fmt.Sprintf("category with id %d does not exist", e.ID)
}

// isUniqueViolation matches the duplicate-key errors of the postgres and
// sqlite drivers. Uniqueness is enforced by the index itself, so the
// conflict is detected after the write attempt, never by a pre-check.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
