package domain

import "errors"

var (
	UnexpectedDatabaseError = errors.New("database-error")
	ErrUserNotFound         = errors.New("user-not-found")
	ErrUnknownStatField     = errors.New("unknown-stat-field")
)
