package domain

import "errors"

// Sentinel errors shared across components. Callers match with errors.Is.
var (
	// ErrNotFound is returned when a tenant-scoped record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned for malformed or incomplete receivables.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoModel is returned by the model store when no snapshot exists
	// for a tenant and kind.
	ErrNoModel = errors.New("no persisted model")

	// ErrUntrained is returned for operations that need a fitted estimator.
	ErrUntrained = errors.New("model not trained")
)
