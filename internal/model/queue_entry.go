package model

import "time"

// Queue entry statuses.  An entry is "active" while WAITING or
// OFFERED; every other status is terminal.  Entries are never
// deleted, only transitioned, so the table doubles as an audit trail
// of admission history.
const (
    StatusWaiting   = "WAITING"   // queued, no offer yet
    StatusOffered   = "OFFERED"   // holds one reserved unit until offer_expires_at
    StatusPurchased = "PURCHASED" // offer converted into a ticket
    StatusExpired   = "EXPIRED"   // offer lapsed unfinalized, unit released
    StatusCancelled = "CANCELLED" // user withdrew or the event started
)

// QueueEntry records one user's place in the waiting list of one
// event.  At most one active entry may exist per (event, user) pair
// and at most one PURCHASED entry per pair.  Position is derived, not
// stored: the entry's rank among WAITING entries for the same event,
// ordered by JoinedAt ascending with ties broken by ID.
//
// Fields:
//  ID             – primary key identifier.
//  EventID        – event being queued for.
//  UserID         – opaque identifier of the authenticated caller.
//  Status         – one of the Status* constants above.
//  OfferExpiresAt – deadline of the current offer; nil unless OFFERED.
//  JoinedAt       – when the user joined; the FIFO fairness key.
//  UpdatedAt      – when the last transition was recorded.
type QueueEntry struct {
    ID             uint64     // queue_entries.id
    EventID        uint64     // queue_entries.event_id
    UserID         string     // queue_entries.user_id
    Status         string     // queue_entries.status
    OfferExpiresAt *time.Time // queue_entries.offer_expires_at (nullable)
    JoinedAt       time.Time  // queue_entries.joined_at
    UpdatedAt      time.Time  // queue_entries.updated_at
}

// Active reports whether the entry still occupies a live queue
// position (WAITING or OFFERED).
func (q *QueueEntry) Active() bool {
    return q.Status == StatusWaiting || q.Status == StatusOffered
}

// OfferLapsed reports whether the entry is OFFERED but past its
// deadline at the given instant.  Stored status may lag the sweeper,
// so every reader applies this predicate rather than trusting the
// status column alone.
func (q *QueueEntry) OfferLapsed(now time.Time) bool {
    return q.Status == StatusOffered && q.OfferExpiresAt != nil && !q.OfferExpiresAt.After(now)
}
