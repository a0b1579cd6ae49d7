// Package apperrors defines the error taxonomy shared across the service.
// Callers classify failures with errors.Is against the sentinel values and
// wrap them with fmt.Errorf("...: %w", ...) to add context.
package apperrors

import "errors"

var (
	// ErrNotFound marks lookups of unknown assets, alerts, portfolios or
	// transactions.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks duplicate-state violations, such as creating an
	// identical active alert.
	ErrConflict = errors.New("conflict")

	// ErrInvalidState marks operations rejected by an entity's lifecycle,
	// such as editing a triggered alert.
	ErrInvalidState = errors.New("invalid state")

	// ErrProviderUnavailable marks network or server-side failures of the
	// market data provider.
	ErrProviderUnavailable = errors.New("market data provider unavailable")

	// ErrRateLimited marks throttling responses from the market data
	// provider.
	ErrRateLimited = errors.New("market data provider rate limited")

	// ErrValidation marks malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
)
