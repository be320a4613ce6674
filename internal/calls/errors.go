package calls

import "errors"

var (
	// ErrInvalidEvent rejects an event before any state is read or written.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrStoreUnavailable means the event was not applied; the sender should retry.
	ErrStoreUnavailable = errors.New("session store unavailable")

	ErrNotFound       = errors.New("call session not found")
	ErrTenantRequired = errors.New("tenant is required")
)
