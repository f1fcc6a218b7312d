// Package repository defines error values shared across repositories.
// These sentinels let services distinguish failure scenarios without
// string matching.
package repository

import "errors"

// ErrConflict is returned when a write cannot proceed because of
// conflicting existing state, such as inserting a payment with a
// session id that already exists.
var ErrConflict = errors.New("conflict")
