// Package common defines shared constants and sentinel errors used across
// relay and edge components of clipsync. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Wire-level errors. A message failing validation is rejected before any
	// session or cache state is touched.
	ErrValidation = errors.New("validation error")
	ErrDecryption = errors.New("decryption failed")

	// Transfer errors.
	ErrSessionNotFound  = errors.New("session not found")
	ErrAssembly         = errors.New("assembly failed")
	ErrHashMismatch     = errors.New("hash mismatch")
	ErrOwnerUnavailable = errors.New("owner unavailable")
	ErrCanceled         = errors.New("transfer canceled")

	// Node authentication errors.
	ErrInvalidToken = errors.New("invalid token")
)
