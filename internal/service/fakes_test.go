package service

import (
    "context"
    "sort"
    "sync"
    "time"

    "github.com/iliyamo/event-ticket-queue/internal/model"
    "github.com/iliyamo/event-ticket-queue/internal/repository"
)

// memStore is an in-memory implementation of EventStore and
// WaitlistStore with the same conditional-write semantics as the MySQL
// repositories: every mutation checks and writes under one lock, so
// races between goroutines resolve exactly like races between
// conditional UPDATEs.
type memStore struct {
    mu          sync.Mutex
    events      map[uint64]*model.Event
    entries     []*model.QueueEntry
    nextEventID uint64
    nextEntryID uint64
}

func newMemStore() *memStore {
    return &memStore{events: make(map[uint64]*model.Event)}
}

func (m *memStore) Create(_ context.Context, ev *model.Event) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    m.nextEventID++
    ev.ID = m.nextEventID
    cp := *ev
    m.events[cp.ID] = &cp
    return nil
}

func (m *memStore) GetByID(_ context.Context, eventID uint64) (*model.Event, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    ev, ok := m.events[eventID]
    if !ok {
        return nil, repository.ErrEventNotFound
    }
    cp := *ev
    return &cp, nil
}

func (m *memStore) List(_ context.Context) ([]model.Event, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    out := make([]model.Event, 0, len(m.events))
    for _, ev := range m.events {
        out = append(out, *ev)
    }
    sort.Slice(out, func(i, j int) bool {
        if !out[i].StartsAt.Equal(out[j].StartsAt) {
            return out[i].StartsAt.Before(out[j].StartsAt)
        }
        return out[i].ID < out[j].ID
    })
    return out, nil
}

func (m *memStore) StartedEventIDs(_ context.Context, now time.Time) ([]uint64, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    // Mirrors the SQL join: only started events with active entries.
    active := make(map[uint64]bool)
    for _, e := range m.entries {
        if e.Active() {
            active[e.EventID] = true
        }
    }
    var ids []uint64
    for id, ev := range m.events {
        if !ev.StartsAt.After(now) && active[id] {
            ids = append(ids, id)
        }
    }
    sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
    return ids, nil
}

func (m *memStore) Reserve(_ context.Context, eventID uint64) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    ev, ok := m.events[eventID]
    if !ok {
        return repository.ErrEventNotFound
    }
    if ev.CommittedCount+ev.ReservedCount >= ev.TotalCapacity {
        return repository.ErrInsufficientCapacity
    }
    ev.ReservedCount++
    return nil
}

func (m *memStore) Release(_ context.Context, eventID uint64) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    ev, ok := m.events[eventID]
    if !ok || ev.ReservedCount == 0 {
        return repository.ErrInvariantViolation
    }
    ev.ReservedCount--
    return nil
}

func (m *memStore) Commit(_ context.Context, eventID uint64) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    ev, ok := m.events[eventID]
    if !ok || ev.ReservedCount == 0 {
        return repository.ErrInvariantViolation
    }
    ev.ReservedCount--
    ev.CommittedCount++
    return nil
}

func (m *memStore) Enqueue(_ context.Context, eventID uint64, userID string, now time.Time) (uint64, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    for _, e := range m.entries {
        if e.EventID != eventID || e.UserID != userID {
            continue
        }
        if e.Status == model.StatusPurchased {
            return 0, repository.ErrAlreadyPurchased
        }
        if e.Active() {
            return 0, repository.ErrAlreadyQueued
        }
    }
    m.nextEntryID++
    entry := &model.QueueEntry{
        ID:        m.nextEntryID,
        EventID:   eventID,
        UserID:    userID,
        Status:    model.StatusWaiting,
        JoinedAt:  now.UTC(),
        UpdatedAt: now.UTC(),
    }
    m.entries = append(m.entries, entry)
    return entry.ID, nil
}

func (m *memStore) ActiveByEventAndUser(_ context.Context, eventID uint64, userID string) (*model.QueueEntry, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    for _, e := range m.entries {
        if e.EventID == eventID && e.UserID == userID && e.Active() {
            cp := *e
            return &cp, nil
        }
    }
    return nil, nil
}

func (m *memStore) WaitingPosition(_ context.Context, entry *model.QueueEntry) (int, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    pos := 0
    for _, e := range m.entries {
        if e.EventID != entry.EventID || e.Status != model.StatusWaiting {
            continue
        }
        if e.JoinedAt.Before(entry.JoinedAt) || (e.JoinedAt.Equal(entry.JoinedAt) && e.ID <= entry.ID) {
            pos++
        }
    }
    return pos, nil
}

func (m *memStore) NextWaiting(_ context.Context, eventID uint64, limit int) ([]model.QueueEntry, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    var waiting []*model.QueueEntry
    for _, e := range m.entries {
        if e.EventID == eventID && e.Status == model.StatusWaiting {
            waiting = append(waiting, e)
        }
    }
    sort.Slice(waiting, func(i, j int) bool {
        if !waiting[i].JoinedAt.Equal(waiting[j].JoinedAt) {
            return waiting[i].JoinedAt.Before(waiting[j].JoinedAt)
        }
        return waiting[i].ID < waiting[j].ID
    })
    if len(waiting) > limit {
        waiting = waiting[:limit]
    }
    out := make([]model.QueueEntry, 0, len(waiting))
    for _, e := range waiting {
        out = append(out, *e)
    }
    return out, nil
}

func (m *memStore) StaleOffers(_ context.Context, now time.Time) ([]model.QueueEntry, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    var out []model.QueueEntry
    for _, e := range m.entries {
        if e.Status == model.StatusOffered && e.OfferExpiresAt != nil && !e.OfferExpiresAt.After(now) {
            out = append(out, *e)
        }
    }
    return out, nil
}

func (m *memStore) StaleOffersByEvent(_ context.Context, eventID uint64, now time.Time) ([]model.QueueEntry, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    var out []model.QueueEntry
    for _, e := range m.entries {
        if e.EventID == eventID && e.Status == model.StatusOffered && e.OfferExpiresAt != nil && !e.OfferExpiresAt.After(now) {
            out = append(out, *e)
        }
    }
    return out, nil
}

func (m *memStore) ActiveByEvent(_ context.Context, eventID uint64) ([]model.QueueEntry, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    var out []model.QueueEntry
    for _, e := range m.entries {
        if e.EventID == eventID && e.Active() {
            out = append(out, *e)
        }
    }
    return out, nil
}

func (m *memStore) EventIDsWithWaiting(_ context.Context) ([]uint64, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    seen := make(map[uint64]bool)
    var ids []uint64
    for _, e := range m.entries {
        if e.Status == model.StatusWaiting && !seen[e.EventID] {
            seen[e.EventID] = true
            ids = append(ids, e.EventID)
        }
    }
    return ids, nil
}

func (m *memStore) MarkOffered(_ context.Context, entryID uint64, expiresAt, now time.Time) (bool, error) {
    return m.cas(entryID, func(e *model.QueueEntry) bool {
        if e.Status != model.StatusWaiting {
            return false
        }
        exp := expiresAt.UTC()
        e.Status = model.StatusOffered
        e.OfferExpiresAt = &exp
        e.UpdatedAt = now.UTC()
        return true
    })
}

func (m *memStore) MarkPurchased(_ context.Context, entryID uint64, now time.Time) (bool, error) {
    return m.cas(entryID, func(e *model.QueueEntry) bool {
        if e.Status != model.StatusOffered || e.OfferExpiresAt == nil || !e.OfferExpiresAt.After(now) {
            return false
        }
        e.Status = model.StatusPurchased
        e.OfferExpiresAt = nil
        e.UpdatedAt = now.UTC()
        return true
    })
}

func (m *memStore) MarkExpired(_ context.Context, entryID uint64, now time.Time) (bool, error) {
    return m.cas(entryID, func(e *model.QueueEntry) bool {
        if e.Status != model.StatusOffered || e.OfferExpiresAt == nil || e.OfferExpiresAt.After(now) {
            return false
        }
        e.Status = model.StatusExpired
        e.OfferExpiresAt = nil
        e.UpdatedAt = now.UTC()
        return true
    })
}

func (m *memStore) MarkCancelled(_ context.Context, entryID uint64, fromStatus string, now time.Time) (bool, error) {
    return m.cas(entryID, func(e *model.QueueEntry) bool {
        if e.Status != fromStatus {
            return false
        }
        e.Status = model.StatusCancelled
        e.OfferExpiresAt = nil
        e.UpdatedAt = now.UTC()
        return true
    })
}

func (m *memStore) cas(entryID uint64, swap func(*model.QueueEntry) bool) (bool, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    for _, e := range m.entries {
        if e.ID == entryID {
            return swap(e), nil
        }
    }
    return false, nil
}

// memTicketStore is the in-memory TicketStore counterpart.
type memTicketStore struct {
    mu      sync.Mutex
    tickets []*model.Ticket
    nextID  uint64
}

func newMemTicketStore() *memTicketStore { return &memTicketStore{} }

func (m *memTicketStore) Create(_ context.Context, t *model.Ticket) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    m.nextID++
    t.ID = m.nextID
    cp := *t
    m.tickets = append(m.tickets, &cp)
    return nil
}

func (m *memTicketStore) GetByEventAndUser(_ context.Context, eventID uint64, userID string) (*model.Ticket, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    for _, t := range m.tickets {
        if t.EventID == eventID && t.UserID == userID {
            cp := *t
            return &cp, nil
        }
    }
    return nil, nil
}

func (m *memTicketStore) ListByUser(_ context.Context, userID string) ([]model.Ticket, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    var out []model.Ticket
    for _, t := range m.tickets {
        if t.UserID == userID {
            out = append(out, *t)
        }
    }
    return out, nil
}

func (m *memTicketStore) count() int {
    m.mu.Lock()
    defer m.mu.Unlock()
    return len(m.tickets)
}

// entryByID returns a copy of any entry regardless of status, for
// asserting on terminal states.
func (m *memStore) entryByID(id uint64) *model.QueueEntry {
    m.mu.Lock()
    defer m.mu.Unlock()
    for _, e := range m.entries {
        if e.ID == id {
            cp := *e
            return &cp
        }
    }
    return nil
}

// capturingPublisher records the kinds of events published, in order.
type capturingPublisher struct {
    mu    sync.Mutex
    kinds []string
}

func (p *capturingPublisher) PublishOfferGranted(context.Context, model.QueueEntry) {
    p.record("offer.granted")
}

func (p *capturingPublisher) PublishOfferExpired(context.Context, model.QueueEntry) {
    p.record("offer.expired")
}

func (p *capturingPublisher) PublishTicketPurchased(context.Context, model.Ticket) {
    p.record("ticket.purchased")
}

func (p *capturingPublisher) record(kind string) {
    p.mu.Lock()
    defer p.mu.Unlock()
    p.kinds = append(p.kinds, kind)
}

func (p *capturingPublisher) recorded() []string {
    p.mu.Lock()
    defer p.mu.Unlock()
    return append([]string(nil), p.kinds...)
}
