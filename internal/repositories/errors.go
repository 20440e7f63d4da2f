// Package repositories provides the gorm-backed stores for users, tasks and
// revoked refresh tokens.
package repositories

import "errors"

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateEmail = errors.New("email already registered")
	ErrAlreadyRevoked = errors.New("token already revoked")
)
