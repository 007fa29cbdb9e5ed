// Package queue defines message payloads exchanged over the message broker
// and the processes that produce and consume them.
package queue

// Admission event kinds carried in AdmissionEvent.Kind.
const (
    KindOfferGranted    = "offer.granted"
    KindOfferExpired    = "offer.expired"
    KindTicketPurchased = "ticket.purchased"
)

// AdmissionEvent is published whenever a queue entry completes a
// transition worth telling the outside world about: a user was granted
// an offer, an offer lapsed, or a ticket was purchased.  It carries
// enough information for downstream consumers to notify users or feed
// analytics without querying the primary database.
type AdmissionEvent struct {
    Kind           string `json:"kind"`
    EventID        uint64 `json:"event_id"`
    UserID         string `json:"user_id"`
    QueueEntryID   uint64 `json:"queue_entry_id"`
    TicketID       uint64 `json:"ticket_id,omitempty"`
    OfferExpiresAt string `json:"offer_expires_at,omitempty"`
    OccurredAt     string `json:"occurred_at"`
}
