package repository

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/iliyamo/event-ticket-queue/internal/model"
)

// EventRepo provides access to the events table: the event catalog
// and, on the same row, the inventory ledger counters.  The counter
// mutations Reserve, Release and Commit are each a single conditional
// UPDATE so that concurrent callers can never drive the counters
// negative or over capacity: the guard and the write happen in one
// atomic statement.  No cross-event locking exists; every event row is
// an independent resource pool.
type EventRepo struct {
    db *sql.DB
}

// NewEventRepo returns a new EventRepo bound to the provided database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// Create inserts a new event with zero committed and reserved units
// and populates ev.ID.  TotalCapacity is immutable after creation.
func (r *EventRepo) Create(ctx context.Context, ev *model.Event) error {
    const q = `INSERT INTO events (name, starts_at, total_capacity, committed_count, reserved_count)
               VALUES (?, ?, ?, 0, 0)`
    res, err := r.db.ExecContext(ctx, q, ev.Name, ev.StartsAt.UTC(), ev.TotalCapacity)
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    ev.ID = uint64(id)
    return nil
}

// GetByID loads a single event including its ledger counters.  It
// returns ErrEventNotFound when no row exists.
func (r *EventRepo) GetByID(ctx context.Context, eventID uint64) (*model.Event, error) {
    const q = `SELECT id, name, starts_at, total_capacity, committed_count, reserved_count, created_at
               FROM events WHERE id = ?`
    var ev model.Event
    err := r.db.QueryRowContext(ctx, q, eventID).Scan(
        &ev.ID, &ev.Name, &ev.StartsAt, &ev.TotalCapacity,
        &ev.CommittedCount, &ev.ReservedCount, &ev.CreatedAt,
    )
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrEventNotFound
    }
    if err != nil {
        return nil, err
    }
    return &ev, nil
}

// List returns all events ordered by start time ascending.  Consumed
// by the public listing endpoint; the counters ride along so callers
// can render availability without a second query.
func (r *EventRepo) List(ctx context.Context) ([]model.Event, error) {
    const q = `SELECT id, name, starts_at, total_capacity, committed_count, reserved_count, created_at
               FROM events ORDER BY starts_at ASC, id ASC`
    rows, err := r.db.QueryContext(ctx, q)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var events []model.Event
    for rows.Next() {
        var ev model.Event
        if err := rows.Scan(&ev.ID, &ev.Name, &ev.StartsAt, &ev.TotalCapacity,
            &ev.CommittedCount, &ev.ReservedCount, &ev.CreatedAt); err != nil {
            return nil, err
        }
        events = append(events, ev)
    }
    return events, rows.Err()
}

// StartedEventIDs returns the IDs of events whose scheduled start time
// has passed at the given instant and which still have active queue
// entries.  The sweeper cancels those entries; once an event's queue
// is drained the event drops out of this scan, so the pass never
// revisits the full historical catalog.
func (r *EventRepo) StartedEventIDs(ctx context.Context, now time.Time) ([]uint64, error) {
    const q = `SELECT DISTINCT e.id FROM events e
               JOIN queue_entries q ON q.event_id = e.id
               WHERE e.starts_at <= ? AND q.status IN ('WAITING', 'OFFERED')`
    rows, err := r.db.QueryContext(ctx, q, now.UTC())
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

// Reserve increments reserved_count by one iff a unit is available.
// The capacity check and the increment are one statement, so two
// concurrent reservations can never oversell the last unit.  Returns
// ErrInsufficientCapacity when the event is fully committed or
// reserved, ErrEventNotFound when the event does not exist.
func (r *EventRepo) Reserve(ctx context.Context, eventID uint64) error {
    const q = `UPDATE events SET reserved_count = reserved_count + 1
               WHERE id = ? AND committed_count + reserved_count < total_capacity`
    res, err := r.db.ExecContext(ctx, q, eventID)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 1 {
        return nil
    }
    // Distinguish "sold out" from "no such event".
    if _, err := r.GetByID(ctx, eventID); err != nil {
        return err
    }
    return ErrInsufficientCapacity
}

// Release returns one reserved unit to the pool, called when an offer
// expires or is cancelled without purchase.  A release that would take
// reserved_count negative indicates corrupted counters and returns
// ErrInvariantViolation.
func (r *EventRepo) Release(ctx context.Context, eventID uint64) error {
    const q = `UPDATE events SET reserved_count = reserved_count - 1
               WHERE id = ? AND reserved_count > 0`
    return r.guardedCounterUpdate(ctx, q, eventID)
}

// Commit converts one reserved unit into a committed one when an
// offer is finalized into a purchase.  Guarded exactly like Release.
func (r *EventRepo) Commit(ctx context.Context, eventID uint64) error {
    const q = `UPDATE events
               SET reserved_count = reserved_count - 1, committed_count = committed_count + 1
               WHERE id = ? AND reserved_count > 0`
    return r.guardedCounterUpdate(ctx, q, eventID)
}

// guardedCounterUpdate executes a conditional ledger UPDATE and maps a
// zero-row result onto ErrInvariantViolation, since every caller holds
// a reserved unit the statement should have been able to move.
func (r *EventRepo) guardedCounterUpdate(ctx context.Context, query string, eventID uint64) error {
    res, err := r.db.ExecContext(ctx, query, eventID)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n != 1 {
        return ErrInvariantViolation
    }
    return nil
}
