package application

import "errors"

var (
	// ErrInvalidInput marks malformed route or query parameters. It is
	// returned before any upstream call is made.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks a payment the indexer does not know about.
	ErrNotFound = errors.New("not found")
	// ErrInvalidAmount marks a payment whose gross amount is not a decimal.
	ErrInvalidAmount = errors.New("invalid payment amount")
)
