// Package memory holds process-local implementations of the domain ports.
// They back the unit tests and single-process tooling; every type is safe
// for concurrent use.
package memory

import "github.com/NordCoder/Flatwatch/internal/domain"

var (
	ErrNotFound = domain.ErrNotFound
	ErrConflict = domain.ErrConflict
)
