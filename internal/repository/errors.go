// Package repository contains the MySQL and Redis data access code.  The
// sentinel values below let the service layer distinguish failure
// scenarios without inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when the requested row does not exist.
// Services translate it into a not_found failure.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write collides with an existing row,
// such as a restaurant id or table id that is already taken.
var ErrConflict = errors.New("conflict")
