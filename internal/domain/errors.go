package domain

import "errors"

// Engine error taxonomy. Handlers and callers branch on these with
// errors.Is; human-readable context is added at the point of failure with
// fmt.Errorf and %w.
var (
	// ErrIdempotencyViolation is returned when a guarded transition observes
	// a payout that is no longer in the expected state. Expected under
	// concurrent admin actions; mapped to 409 at the API boundary.
	ErrIdempotencyViolation = errors.New("idempotency violation")

	// ErrInvalidTransition is returned for lifecycle moves that are never
	// legal from the payout's current state (e.g. retrying a paid payout).
	ErrInvalidTransition = errors.New("invalid payout transition")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrProviderUnavailable marks a retryable provider failure. The payout
	// stays approved and is retried by an operator or scheduled job.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrTimeout marks a transfer whose outcome is unknown. The payout stays
	// approved; the transfer status must be polled, never guessed.
	ErrTimeout = errors.New("provider timeout")

	// ErrInsufficientPrefundedBalance means the prefunded fast path cannot
	// cover the transfer; the router falls back to the standard rail.
	ErrInsufficientPrefundedBalance = errors.New("insufficient prefunded balance")

	// ErrDestinationInvalid is non-retryable: the organizer must fix their
	// payout profile before the transfer can be reattempted.
	ErrDestinationInvalid = errors.New("destination invalid")

	// ErrSettingsUnavailable is returned only when platform settings have
	// never been loaded; once warm, stale cached settings are served instead.
	ErrSettingsUnavailable = errors.New("platform settings unavailable")

	// ErrBelowMinimumPayout is returned when a payout request is smaller
	// than the configured minimum.
	ErrBelowMinimumPayout = errors.New("amount below minimum payout")

	// ErrSettlementNotReady is returned when earnings are still inside the
	// jurisdiction's settlement hold period.
	ErrSettlementNotReady = errors.New("settlement hold not elapsed")
)
