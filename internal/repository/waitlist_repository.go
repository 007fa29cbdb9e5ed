package repository

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/iliyamo/event-ticket-queue/internal/model"
)

// WaitlistRepo provides data access to the queue_entries table: the
// durable, append-only waiting list.  Rows are never deleted, only
// transitioned, and every transition away from an active status is a
// conditional UPDATE guarded on the current status (and, for offers,
// on the deadline).  A guard that matches zero rows means another
// caller won the race; the repository reports that as swapped=false
// rather than an error so callers can treat lost races as no-ops.
type WaitlistRepo struct {
    db *sql.DB
}

// NewWaitlistRepo returns a new WaitlistRepo bound to the provided database.
func NewWaitlistRepo(db *sql.DB) *WaitlistRepo { return &WaitlistRepo{db: db} }

// Enqueue inserts a new WAITING entry for the given user and event.
// The uniqueness rules – at most one active entry and at most one
// PURCHASED entry per (event, user) – are enforced by a conditional
// INSERT ... SELECT so that two concurrent joins cannot both slip
// past the check.  On conflict it re-reads to report ErrAlreadyQueued
// or ErrAlreadyPurchased.
func (r *WaitlistRepo) Enqueue(ctx context.Context, eventID uint64, userID string, now time.Time) (uint64, error) {
    const q = `INSERT INTO queue_entries (event_id, user_id, status, joined_at, updated_at)
               SELECT ?, ?, 'WAITING', ?, ?
               WHERE NOT EXISTS (
                   SELECT 1 FROM queue_entries
                   WHERE event_id = ? AND user_id = ?
                     AND status IN ('WAITING', 'OFFERED', 'PURCHASED')
               )`
    ts := now.UTC()
    res, err := r.db.ExecContext(ctx, q, eventID, userID, ts, ts, eventID, userID)
    if err != nil {
        return 0, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return 0, err
    }
    if n == 1 {
        id, err := res.LastInsertId()
        if err != nil {
            return 0, err
        }
        return uint64(id), nil
    }
    // The NOT EXISTS guard fired; find out which rule blocked us.
    var status string
    err = r.db.QueryRowContext(ctx,
        `SELECT status FROM queue_entries
         WHERE event_id = ? AND user_id = ? AND status IN ('WAITING', 'OFFERED', 'PURCHASED')
         LIMIT 1`,
        eventID, userID,
    ).Scan(&status)
    if errors.Is(err, sql.ErrNoRows) {
        // Blocking row vanished between the INSERT and the re-read; the
        // caller may simply retry.
        return 0, ErrAlreadyQueued
    }
    if err != nil {
        return 0, err
    }
    if status == model.StatusPurchased {
        return 0, ErrAlreadyPurchased
    }
    return 0, ErrAlreadyQueued
}

// ActiveByEventAndUser returns the user's WAITING or OFFERED entry for
// the event, or nil when the user holds no live queue position.
func (r *WaitlistRepo) ActiveByEventAndUser(ctx context.Context, eventID uint64, userID string) (*model.QueueEntry, error) {
    const q = `SELECT id, event_id, user_id, status, offer_expires_at, joined_at, updated_at
               FROM queue_entries
               WHERE event_id = ? AND user_id = ? AND status IN ('WAITING', 'OFFERED')
               LIMIT 1`
    entry, err := r.scanOne(r.db.QueryRowContext(ctx, q, eventID, userID))
    if errors.Is(err, sql.ErrNoRows) {
        return nil, nil
    }
    return entry, err
}

// HasPurchased reports whether the user already holds a PURCHASED
// entry for the event.
func (r *WaitlistRepo) HasPurchased(ctx context.Context, eventID uint64, userID string) (bool, error) {
    const q = `SELECT COUNT(*) FROM queue_entries
               WHERE event_id = ? AND user_id = ? AND status = 'PURCHASED'`
    var n int
    if err := r.db.QueryRowContext(ctx, q, eventID, userID).Scan(&n); err != nil {
        return false, err
    }
    return n > 0, nil
}

// WaitingPosition computes the 1-based rank of a WAITING entry among
// the WAITING entries of its event, ordered by joined_at ascending
// with ties broken by id.  Position is always derived, never stored.
func (r *WaitlistRepo) WaitingPosition(ctx context.Context, entry *model.QueueEntry) (int, error) {
    const q = `SELECT COUNT(*) FROM queue_entries
               WHERE event_id = ? AND status = 'WAITING'
                 AND (joined_at < ? OR (joined_at = ? AND id <= ?))`
    var pos int
    err := r.db.QueryRowContext(ctx, q, entry.EventID, entry.JoinedAt, entry.JoinedAt, entry.ID).Scan(&pos)
    return pos, err
}

// NextWaiting returns up to limit WAITING entries for the event in
// promotion order: oldest joined_at first, ties by id.  This ordering
// is the FIFO fairness guarantee.
func (r *WaitlistRepo) NextWaiting(ctx context.Context, eventID uint64, limit int) ([]model.QueueEntry, error) {
    const q = `SELECT id, event_id, user_id, status, offer_expires_at, joined_at, updated_at
               FROM queue_entries
               WHERE event_id = ? AND status = 'WAITING'
               ORDER BY joined_at ASC, id ASC
               LIMIT ?`
    return r.scanMany(ctx, q, eventID, limit)
}

// StaleOffers returns OFFERED entries across all events whose deadline
// has passed at the given instant.  Consumed by the sweeper's
// expiration pass.
func (r *WaitlistRepo) StaleOffers(ctx context.Context, now time.Time) ([]model.QueueEntry, error) {
    const q = `SELECT id, event_id, user_id, status, offer_expires_at, joined_at, updated_at
               FROM queue_entries
               WHERE status = 'OFFERED' AND offer_expires_at <= ?
               ORDER BY offer_expires_at ASC`
    return r.scanMany(ctx, q, now.UTC())
}

// StaleOffersByEvent returns the lapsed OFFERED entries of a single
// event.  Consumed by the inline request-path sweep, which must not
// pay for a scan of every other event's queue.
func (r *WaitlistRepo) StaleOffersByEvent(ctx context.Context, eventID uint64, now time.Time) ([]model.QueueEntry, error) {
    const q = `SELECT id, event_id, user_id, status, offer_expires_at, joined_at, updated_at
               FROM queue_entries
               WHERE event_id = ? AND status = 'OFFERED' AND offer_expires_at <= ?
               ORDER BY offer_expires_at ASC`
    return r.scanMany(ctx, q, eventID, now.UTC())
}

// ActiveByEvent returns all WAITING and OFFERED entries for the event.
// Consumed by the sweeper when an event reaches its start time and the
// remaining live entries must be cancelled.
func (r *WaitlistRepo) ActiveByEvent(ctx context.Context, eventID uint64) ([]model.QueueEntry, error) {
    const q = `SELECT id, event_id, user_id, status, offer_expires_at, joined_at, updated_at
               FROM queue_entries
               WHERE event_id = ? AND status IN ('WAITING', 'OFFERED')
               ORDER BY joined_at ASC, id ASC`
    return r.scanMany(ctx, q, eventID)
}

// EventIDsWithWaiting returns the distinct events that currently have
// at least one WAITING entry, so the sweeper only visits queues that
// can actually promote.
func (r *WaitlistRepo) EventIDsWithWaiting(ctx context.Context) ([]uint64, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT DISTINCT event_id FROM queue_entries WHERE status = 'WAITING'`)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var ids []uint64
    for rows.Next() {
        var id uint64
        if err := rows.Scan(&id); err != nil {
            return nil, err
        }
        ids = append(ids, id)
    }
    return ids, rows.Err()
}

// MarkOffered performs the WAITING -> OFFERED transition, stamping the
// offer deadline.  Returns false when the entry was no longer WAITING
// at the moment of the write.
func (r *WaitlistRepo) MarkOffered(ctx context.Context, entryID uint64, expiresAt, now time.Time) (bool, error) {
    const q = `UPDATE queue_entries
               SET status = 'OFFERED', offer_expires_at = ?, updated_at = ?
               WHERE id = ? AND status = 'WAITING'`
    return r.cas(ctx, q, expiresAt.UTC(), now.UTC(), entryID)
}

// MarkPurchased performs the OFFERED -> PURCHASED transition.  The
// guard re-checks the deadline inside the same statement, so an
// expired-but-not-yet-swept offer can never be finalized regardless of
// sweep timing.
func (r *WaitlistRepo) MarkPurchased(ctx context.Context, entryID uint64, now time.Time) (bool, error) {
    const q = `UPDATE queue_entries
               SET status = 'PURCHASED', offer_expires_at = NULL, updated_at = ?
               WHERE id = ? AND status = 'OFFERED' AND offer_expires_at > ?`
    return r.cas(ctx, q, now.UTC(), entryID, now.UTC())
}

// MarkExpired performs the OFFERED -> EXPIRED transition for an offer
// past its deadline.  The status guard means a finalize racing the
// sweep on the same entry cannot cause a double release: exactly one
// of the two conditional writes matches.
func (r *WaitlistRepo) MarkExpired(ctx context.Context, entryID uint64, now time.Time) (bool, error) {
    const q = `UPDATE queue_entries
               SET status = 'EXPIRED', offer_expires_at = NULL, updated_at = ?
               WHERE id = ? AND status = 'OFFERED' AND offer_expires_at <= ?`
    return r.cas(ctx, q, now.UTC(), entryID, now.UTC())
}

// MarkCancelled performs the transition from the given active status
// to CANCELLED.  Callers pass the status they observed so the write
// only lands if it still holds.
func (r *WaitlistRepo) MarkCancelled(ctx context.Context, entryID uint64, fromStatus string, now time.Time) (bool, error) {
    const q = `UPDATE queue_entries
               SET status = 'CANCELLED', offer_expires_at = NULL, updated_at = ?
               WHERE id = ? AND status = ?`
    return r.cas(ctx, q, now.UTC(), entryID, fromStatus)
}

// cas runs a conditional UPDATE and reports whether it matched a row.
func (r *WaitlistRepo) cas(ctx context.Context, query string, args ...interface{}) (bool, error) {
    res, err := r.db.ExecContext(ctx, query, args...)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n == 1, nil
}

func (r *WaitlistRepo) scanOne(row *sql.Row) (*model.QueueEntry, error) {
    var e model.QueueEntry
    var expires sql.NullTime
    if err := row.Scan(&e.ID, &e.EventID, &e.UserID, &e.Status, &expires, &e.JoinedAt, &e.UpdatedAt); err != nil {
        return nil, err
    }
    if expires.Valid {
        t := expires.Time
        e.OfferExpiresAt = &t
    }
    return &e, nil
}

func (r *WaitlistRepo) scanMany(ctx context.Context, query string, args ...interface{}) ([]model.QueueEntry, error) {
    rows, err := r.db.QueryContext(ctx, query, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var entries []model.QueueEntry
    for rows.Next() {
        var e model.QueueEntry
        var expires sql.NullTime
        if err := rows.Scan(&e.ID, &e.EventID, &e.UserID, &e.Status, &expires, &e.JoinedAt, &e.UpdatedAt); err != nil {
            return nil, err
        }
        if expires.Valid {
            t := expires.Time
            e.OfferExpiresAt = &t
        }
        entries = append(entries, e)
    }
    return entries, rows.Err()
}
