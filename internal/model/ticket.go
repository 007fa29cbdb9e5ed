package model

import "time"

// Ticket is the record of a completed purchase.  Exactly one ticket
// is created when a queue entry transitions from OFFERED to
// PURCHASED and it is immutable thereafter.
//
// Fields:
//  ID           – primary key identifier.
//  EventID      – event the ticket admits to.
//  UserID       – purchaser.
//  QueueEntryID – queue entry that was finalized into this ticket.
//  PaymentRef   – opaque payment-confirmation reference; validity is
//                 the payment collaborator's responsibility.
//  IssuedAt     – when the purchase was finalized.
type Ticket struct {
    ID           uint64    // tickets.id
    EventID      uint64    // tickets.event_id
    UserID       string    // tickets.user_id
    QueueEntryID uint64    // tickets.queue_entry_id
    PaymentRef   string    // tickets.payment_ref
    IssuedAt     time.Time // tickets.issued_at
}
