// Package common defines sentinel errors and small helpers shared by the
// credential store, the token manager and the admin CLI. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Credential lookup found no row for the username.
	ErrUserNotExist = errors.New("user does not exist")

	// Create was called for a username that already has a row.
	ErrUserAlreadyExist = errors.New("user already exists")

	// More than one row matched a username. The store is corrupt and the
	// condition must be surfaced to an operator.
	ErrInvalidData = errors.New("invalid database")

	// A stored hash could not be parsed or the hashing backend failed.
	ErrCrypto = errors.New("password hash error")

	// Plain update/delete refused because the current password is required.
	ErrReverifyRequired = errors.New("current password required")

	// The current password given to a verified update/delete did not match.
	ErrWrongPassword = errors.New("wrong password")
)
