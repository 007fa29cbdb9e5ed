package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/iliyamo/event-ticket-queue/internal/model"
)

// TicketRepo provides access to the tickets table.  A ticket row is
// created exactly once per finalized purchase and never modified.
type TicketRepo struct {
    db *sql.DB
}

// NewTicketRepo returns a new TicketRepo bound to the provided database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

// Create inserts a ticket for a finalized queue entry and populates
// t.ID.  The unique index on (event_id, user_id) backs up the
// one-ticket-per-user rule at the storage layer.
func (r *TicketRepo) Create(ctx context.Context, t *model.Ticket) error {
    const q = `INSERT INTO tickets (event_id, user_id, queue_entry_id, payment_ref, issued_at)
               VALUES (?, ?, ?, ?, ?)`
    res, err := r.db.ExecContext(ctx, q, t.EventID, t.UserID, t.QueueEntryID, t.PaymentRef, t.IssuedAt.UTC())
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    t.ID = uint64(id)
    return nil
}

// GetByEventAndUser returns the user's ticket for the event, or nil
// when none exists.
func (r *TicketRepo) GetByEventAndUser(ctx context.Context, eventID uint64, userID string) (*model.Ticket, error) {
    const q = `SELECT id, event_id, user_id, queue_entry_id, payment_ref, issued_at
               FROM tickets WHERE event_id = ? AND user_id = ?`
    var t model.Ticket
    err := r.db.QueryRowContext(ctx, q, eventID, userID).Scan(
        &t.ID, &t.EventID, &t.UserID, &t.QueueEntryID, &t.PaymentRef, &t.IssuedAt)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, nil
    }
    if err != nil {
        return nil, err
    }
    return &t, nil
}

// ListByUser returns all tickets held by the user, newest first.
func (r *TicketRepo) ListByUser(ctx context.Context, userID string) ([]model.Ticket, error) {
    const q = `SELECT id, event_id, user_id, queue_entry_id, payment_ref, issued_at
               FROM tickets WHERE user_id = ? ORDER BY issued_at DESC, id DESC`
    rows, err := r.db.QueryContext(ctx, q, userID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var tickets []model.Ticket
    for rows.Next() {
        var t model.Ticket
        if err := rows.Scan(&t.ID, &t.EventID, &t.UserID, &t.QueueEntryID, &t.PaymentRef, &t.IssuedAt); err != nil {
            return nil, err
        }
        tickets = append(tickets, t)
    }
    return tickets, rows.Err()
}
