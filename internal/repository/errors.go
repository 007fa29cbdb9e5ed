// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// admission service and handlers to distinguish between different
// failure scenarios without inspecting SQL driver errors. For example,
// ErrAlreadyQueued signals that the user already holds a live queue
// position, while ErrInvariantViolation indicates that a ledger counter
// would have gone out of range, which is a logic bug, never a user error.
package repository

import "errors"

// ErrEventNotFound is returned when the referenced event does not
// exist. Handlers should translate this into an HTTP 404 response.
var ErrEventNotFound = errors.New("event not found")

// ErrEventStarted is returned when joining or finalizing against an
// event whose scheduled start time has passed. Handlers should
// translate this into an HTTP 409 response.
var ErrEventStarted = errors.New("event already started")

// ErrPaymentRequired is returned by finalize when no payment
// confirmation reference accompanies the request. Only presence is
// checked here; validity belongs to the payment collaborator.
var ErrPaymentRequired = errors.New("payment confirmation required")

// ErrAlreadyQueued is returned by enqueue when the user already has an
// active (WAITING or OFFERED) entry for the event. Handlers should
// translate this into an HTTP 409 response.
var ErrAlreadyQueued = errors.New("already queued")

// ErrAlreadyPurchased is returned by enqueue when the user already
// purchased a ticket for the event. One ticket per user per event.
var ErrAlreadyPurchased = errors.New("already purchased")

// ErrInsufficientCapacity is returned by Reserve when no unit is
// available. It is an expected outcome of the promotion race, not an
// error to surface to users: the entry simply stays WAITING.
var ErrInsufficientCapacity = errors.New("insufficient capacity")

// ErrNoActiveOffer is returned by finalize when the caller's entry is
// not currently OFFERED, or its offer deadline has passed. The user
// must rejoin the queue.
var ErrNoActiveOffer = errors.New("no active offer")

// ErrInvariantViolation is returned when a ledger mutation would drive
// reserved_count negative or over capacity. It indicates inconsistent
// counters and must be logged and investigated, never silently
// corrected.
var ErrInvariantViolation = errors.New("ledger invariant violation")
