package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidSelection = errors.New("invalid selection")
	ErrSigningFailed    = errors.New("signing failed")
	ErrWSDisconnect     = errors.New("websocket disconnected")
	ErrLockHeld         = errors.New("lock already held")

	// ErrExhaustedRetries is returned by the retry executor once every
	// attempt, across every endpoint, has failed.
	ErrExhaustedRetries = errors.New("exhausted retries")

	// ErrInsufficientFunds marks a fatal gas-funding failure; it is never
	// retried and carries remediation text for the user.
	ErrInsufficientFunds = errors.New("insufficient funds for gas")

	// ErrRelayerRejected wraps the relayer's own rejection reason. Protocol
	// rejections are surfaced verbatim and never retried.
	ErrRelayerRejected = errors.New("relayer rejected order")

	// ErrMissingOrderID marks a 2xx relayer response without an order
	// identifier; without one the order can never be polled.
	ErrMissingOrderID = errors.New("relayer response missing order id")

	// ErrIllegalTransition marks a bet status update that would violate the
	// lifecycle (for example overwriting a settled record).
	ErrIllegalTransition = errors.New("illegal bet status transition")

	// ErrChainIDConflict marks an attempt to overwrite an already-assigned
	// betId/txHash with different values.
	ErrChainIDConflict = errors.New("chain ids already assigned")
)
