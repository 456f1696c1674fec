// Package domain holds the sentinels shared by every repository
// implementation. Services match on these, never on a driver's errors.
package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)
