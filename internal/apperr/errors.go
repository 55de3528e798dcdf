// Package apperr defines the sentinel errors shared by services and
// handlers. Services wrap these with context via fmt.Errorf("%w") and
// handlers translate them into HTTP statuses with errors.Is.
package apperr

import "errors"

// ErrNotFound is returned when the requested entity does not exist.
// Handlers translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own. Handlers translate this into an HTTP 403
// response.
var ErrForbidden = errors.New("forbidden")

// ErrAlreadyExists is returned when a create would violate the unique
// external booking id constraint. Handlers translate this into an
// HTTP 409 response.
var ErrAlreadyExists = errors.New("already exists")

// ErrBadInput is returned for malformed payloads and for stored
// ciphertext that can no longer be decrypted. Handlers translate this
// into an HTTP 400 response.
var ErrBadInput = errors.New("bad input")
