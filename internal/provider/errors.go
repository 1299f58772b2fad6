package provider

import "errors"

var (
	// ErrInvalidCredentials indicates the upstream provider rejected the
	// supplied email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailConflict indicates an upstream account already exists for the
	// email.
	ErrEmailConflict = errors.New("email already registered")

	// ErrProvider wraps unexpected upstream failures.
	ErrProvider = errors.New("provider error")
)
