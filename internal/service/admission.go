// Package service implements the admission core: joining the waiting
// list, issuing time-limited purchase offers, expiring them and
// finalizing purchases.  All state transitions go through conditional
// writes in the stores, so the service never takes locks of its own;
// losing a race simply turns the losing call into a no-op.
package service

import (
    "context"
    "log"
    "time"

    "github.com/iliyamo/event-ticket-queue/internal/clock"
    "github.com/iliyamo/event-ticket-queue/internal/model"
    "github.com/iliyamo/event-ticket-queue/internal/repository"
)

// EventStore is the inventory ledger plus the event catalog the
// admission flow reads.  Reserve, Release and Commit must each be
// atomic with respect to concurrent callers on the same event.
type EventStore interface {
    Create(ctx context.Context, ev *model.Event) error
    GetByID(ctx context.Context, eventID uint64) (*model.Event, error)
    List(ctx context.Context) ([]model.Event, error)
    StartedEventIDs(ctx context.Context, now time.Time) ([]uint64, error)
    Reserve(ctx context.Context, eventID uint64) error
    Release(ctx context.Context, eventID uint64) error
    Commit(ctx context.Context, eventID uint64) error
}

// WaitlistStore is the durable queue of join requests.  The Mark*
// methods are compare-and-set transitions: they return swapped=false
// when the entry's status changed underneath the caller.
type WaitlistStore interface {
    Enqueue(ctx context.Context, eventID uint64, userID string, now time.Time) (uint64, error)
    ActiveByEventAndUser(ctx context.Context, eventID uint64, userID string) (*model.QueueEntry, error)
    WaitingPosition(ctx context.Context, entry *model.QueueEntry) (int, error)
    NextWaiting(ctx context.Context, eventID uint64, limit int) ([]model.QueueEntry, error)
    StaleOffers(ctx context.Context, now time.Time) ([]model.QueueEntry, error)
    StaleOffersByEvent(ctx context.Context, eventID uint64, now time.Time) ([]model.QueueEntry, error)
    ActiveByEvent(ctx context.Context, eventID uint64) ([]model.QueueEntry, error)
    EventIDsWithWaiting(ctx context.Context) ([]uint64, error)
    MarkOffered(ctx context.Context, entryID uint64, expiresAt, now time.Time) (bool, error)
    MarkPurchased(ctx context.Context, entryID uint64, now time.Time) (bool, error)
    MarkExpired(ctx context.Context, entryID uint64, now time.Time) (bool, error)
    MarkCancelled(ctx context.Context, entryID uint64, fromStatus string, now time.Time) (bool, error)
}

// TicketStore persists finalized purchases.
type TicketStore interface {
    Create(ctx context.Context, t *model.Ticket) error
    GetByEventAndUser(ctx context.Context, eventID uint64, userID string) (*model.Ticket, error)
    ListByUser(ctx context.Context, userID string) ([]model.Ticket, error)
}

// Publisher emits domain events after successful transitions.  A nil
// publisher disables publishing; failures are logged and ignored so
// the admission flow never depends on the broker.
type Publisher interface {
    PublishOfferGranted(ctx context.Context, entry model.QueueEntry)
    PublishOfferExpired(ctx context.Context, entry model.QueueEntry)
    PublishTicketPurchased(ctx context.Context, ticket model.Ticket)
}

// DefaultOfferWindow is how long an admitted user has to complete the
// purchase before the reserved unit returns to the pool.
const DefaultOfferWindow = 15 * time.Minute

// promotionBatch bounds how many WAITING entries one promotion pass
// loads at a time.
const promotionBatch = 64

// AdmissionService coordinates the waiting list, the inventory ledger
// and the ticket store.  It is safe for concurrent use: all shared
// state lives in the stores and every transition is conditional.
type AdmissionService struct {
    events      EventStore
    waitlist    WaitlistStore
    tickets     TicketStore
    publisher   Publisher
    clock       clock.Clock
    offerWindow time.Duration
}

// NewAdmissionService constructs an AdmissionService.  The stores and
// clk must be non-nil; pub may be nil to disable event publishing.
func NewAdmissionService(events EventStore, waitlist WaitlistStore, tickets TicketStore, pub Publisher, clk clock.Clock, offerWindow time.Duration) *AdmissionService {
    if events == nil || waitlist == nil || tickets == nil || clk == nil {
        panic("nil dependency passed to NewAdmissionService")
    }
    if offerWindow <= 0 {
        offerWindow = DefaultOfferWindow
    }
    return &AdmissionService{
        events:      events,
        waitlist:    waitlist,
        tickets:     tickets,
        publisher:   pub,
        clock:       clk,
        offerWindow: offerWindow,
    }
}

// JoinResult reports the outcome of a join: the created entry's id and
// its status after the inline promotion attempt, including the offer
// deadline when the user was admitted immediately.
type JoinResult struct {
    EntryID        uint64
    Status         string
    OfferExpiresAt *time.Time
}

// Join appends the user to the event's waiting list and immediately
// attempts a promotion sweep for that event, so a join against free
// capacity comes back OFFERED without waiting for the background
// sweeper.  Returns ErrAlreadyQueued, ErrAlreadyPurchased,
// ErrEventNotFound or ErrEventStarted.
func (s *AdmissionService) Join(ctx context.Context, eventID uint64, userID string) (*JoinResult, error) {
    now := s.clock.Now()
    ev, err := s.events.GetByID(ctx, eventID)
    if err != nil {
        return nil, err
    }
    if ev.Started(now) {
        return nil, repository.ErrEventStarted
    }
    entryID, err := s.waitlist.Enqueue(ctx, eventID, userID, now)
    if err != nil {
        return nil, err
    }
    s.SweepEvent(ctx, eventID)

    // Re-read to report the post-sweep status.  The entry may already
    // hold an offer, or another caller may have raced us; either way
    // the stored state is authoritative.
    entry, err := s.waitlist.ActiveByEventAndUser(ctx, eventID, userID)
    if err != nil {
        return nil, err
    }
    if entry == nil || entry.ID != entryID {
        return &JoinResult{EntryID: entryID, Status: model.StatusWaiting}, nil
    }
    return &JoinResult{EntryID: entry.ID, Status: entry.Status, OfferExpiresAt: entry.OfferExpiresAt}, nil
}

// StatusView is what getStatus returns to the caller: the entry's
// stored state with the expiry predicate already applied, plus the
// computed position when the entry is still WAITING.
type StatusView struct {
    EntryID        uint64
    Status         string
    Position       int        // 1-based rank among WAITING entries; 0 unless WAITING
    OfferExpiresAt *time.Time // set only while a live offer exists
}

// Status returns the user's active entry for the event, or nil when
// the user holds no live queue position.  An OFFERED entry past its
// deadline is reported as EXPIRED even before the sweeper has caught
// up: readers never trust a stale status column.
func (s *AdmissionService) Status(ctx context.Context, eventID uint64, userID string) (*StatusView, error) {
    entry, err := s.waitlist.ActiveByEventAndUser(ctx, eventID, userID)
    if err != nil {
        return nil, err
    }
    if entry == nil {
        return nil, nil
    }
    now := s.clock.Now()
    if entry.OfferLapsed(now) {
        return &StatusView{EntryID: entry.ID, Status: model.StatusExpired}, nil
    }
    view := &StatusView{EntryID: entry.ID, Status: entry.Status, OfferExpiresAt: entry.OfferExpiresAt}
    if entry.Status == model.StatusWaiting {
        pos, err := s.waitlist.WaitingPosition(ctx, entry)
        if err != nil {
            return nil, err
        }
        view.Position = pos
    }
    return view, nil
}

// Finalize converts the caller's live offer into a purchased ticket.
// The OFFERED -> PURCHASED transition is a conditional write guarded
// on both status and deadline, so a second finalize, or a finalize
// racing the expiry sweep, fails with ErrNoActiveOffer instead of
// double-committing.  Only the presence of paymentRef is checked; its
// validity belongs to the payment collaborator.
func (s *AdmissionService) Finalize(ctx context.Context, eventID uint64, userID, paymentRef string) (*model.Ticket, error) {
    if paymentRef == "" {
        return nil, repository.ErrPaymentRequired
    }
    // Cooperative sweep first: a lapsed offer is expired, its unit
    // released and the next waiting user promoted before the caller's
    // entry is examined, so a stale OFFERED row never pins capacity
    // until the next background pass.
    s.SweepEvent(ctx, eventID)
    now := s.clock.Now()
    entry, err := s.waitlist.ActiveByEventAndUser(ctx, eventID, userID)
    if err != nil {
        return nil, err
    }
    if entry == nil || entry.Status != model.StatusOffered || entry.OfferLapsed(now) {
        return nil, repository.ErrNoActiveOffer
    }
    swapped, err := s.waitlist.MarkPurchased(ctx, entry.ID, now)
    if err != nil {
        return nil, err
    }
    if !swapped {
        // Lost the race against the expiry sweep or a concurrent finalize.
        return nil, repository.ErrNoActiveOffer
    }
    if err := s.events.Commit(ctx, eventID); err != nil {
        log.Printf("admission: ledger commit failed for event=%d entry=%d: %v", eventID, entry.ID, err)
        return nil, err
    }
    ticket := &model.Ticket{
        EventID:      eventID,
        UserID:       userID,
        QueueEntryID: entry.ID,
        PaymentRef:   paymentRef,
        IssuedAt:     now,
    }
    if err := s.tickets.Create(ctx, ticket); err != nil {
        return nil, err
    }
    if s.publisher != nil {
        s.publisher.PublishTicketPurchased(ctx, *ticket)
    }
    return ticket, nil
}

// Cancel withdraws the user's live queue position, releasing the
// reserved unit when an offer was outstanding, and immediately sweeps
// the event so the freed unit promotes the next waiting user.  A
// cancel with no active entry is a no-op: the UI fires it on page
// leave without knowing whether a position exists.
func (s *AdmissionService) Cancel(ctx context.Context, eventID uint64, userID string) error {
    entry, err := s.waitlist.ActiveByEventAndUser(ctx, eventID, userID)
    if err != nil {
        return err
    }
    if entry == nil {
        return nil
    }
    now := s.clock.Now()
    swapped, err := s.waitlist.MarkCancelled(ctx, entry.ID, entry.Status, now)
    if err != nil {
        return err
    }
    if swapped && entry.Status == model.StatusOffered {
        if err := s.events.Release(ctx, eventID); err != nil {
            log.Printf("admission: release after cancel failed for event=%d entry=%d: %v", eventID, entry.ID, err)
            return err
        }
    }
    s.SweepEvent(ctx, eventID)
    return nil
}

// CreateEvent adds an event to the catalog with its immutable total
// capacity.  This is the bootstrap path for the inventory this core
// counts against.
func (s *AdmissionService) CreateEvent(ctx context.Context, name string, startsAt time.Time, capacity uint32) (*model.Event, error) {
    ev := &model.Event{Name: name, StartsAt: startsAt.UTC(), TotalCapacity: capacity}
    if err := s.events.Create(ctx, ev); err != nil {
        return nil, err
    }
    return ev, nil
}

// GetEvent returns one event with its ledger counters.
func (s *AdmissionService) GetEvent(ctx context.Context, eventID uint64) (*model.Event, error) {
    return s.events.GetByID(ctx, eventID)
}

// ListEvents returns the full catalog ordered by start time.
func (s *AdmissionService) ListEvents(ctx context.Context) ([]model.Event, error) {
    return s.events.List(ctx)
}

// TicketsByUser returns the caller's purchased tickets.
func (s *AdmissionService) TicketsByUser(ctx context.Context, userID string) ([]model.Ticket, error) {
    return s.tickets.ListByUser(ctx, userID)
}

// SweepEvent runs the cooperative per-event sweep invoked inline by
// join, finalize and cancel: first expire any lapsed offers so their
// units are visible to this very pass, then promote WAITING entries,
// oldest first, while capacity remains.  For each candidate it
// reserves a unit and then attempts the WAITING -> OFFERED write; when
// the entry changed status in between, the unit is handed back and the
// pass moves on.  Failures are logged and swallowed: an unswept event
// is picked up by the next background pass.
func (s *AdmissionService) SweepEvent(ctx context.Context, eventID uint64) {
    s.expireEvent(ctx, eventID)
    now := s.clock.Now()
    ev, err := s.events.GetByID(ctx, eventID)
    if err != nil {
        log.Printf("admission: sweep load event=%d: %v", eventID, err)
        return
    }
    if ev.Started(now) {
        return
    }
    for {
        entries, err := s.waitlist.NextWaiting(ctx, eventID, promotionBatch)
        if err != nil {
            log.Printf("admission: sweep list waiting event=%d: %v", eventID, err)
            return
        }
        if len(entries) == 0 {
            return
        }
        promoted := 0
        for _, entry := range entries {
            if err := s.events.Reserve(ctx, eventID); err != nil {
                if err != repository.ErrInsufficientCapacity {
                    log.Printf("admission: sweep reserve event=%d: %v", eventID, err)
                }
                return
            }
            expiresAt := now.Add(s.offerWindow)
            swapped, err := s.waitlist.MarkOffered(ctx, entry.ID, expiresAt, now)
            if err != nil {
                log.Printf("admission: sweep offer entry=%d: %v", entry.ID, err)
                s.releaseQuietly(ctx, eventID, entry.ID)
                return
            }
            if !swapped {
                // Entry cancelled or promoted by a concurrent sweep;
                // hand the unit back and keep going.
                s.releaseQuietly(ctx, eventID, entry.ID)
                continue
            }
            promoted++
            if s.publisher != nil {
                offered := entry
                offered.Status = model.StatusOffered
                offered.OfferExpiresAt = &expiresAt
                s.publisher.PublishOfferGranted(ctx, offered)
            }
        }
        if promoted == 0 && len(entries) < promotionBatch {
            return
        }
    }
}

// Sweep runs one full scheduler pass: expire lapsed offers, cancel
// live entries of events that have started, then promote wherever
// capacity remains.  Each entry transition commits independently, so a
// pass interrupted by shutdown leaves valid state.
func (s *AdmissionService) Sweep(ctx context.Context) {
    s.sweepExpired(ctx)
    s.sweepStarted(ctx)
    s.sweepPromotions(ctx)
}

// sweepExpired transitions lapsed offers to EXPIRED and releases their
// reserved units.  The conditional write means an offer finalized
// between the scan and the write is left untouched.
func (s *AdmissionService) sweepExpired(ctx context.Context) {
    s.expireStale(ctx, 0)
}

// expireEvent expires lapsed offers of a single event only, used by
// the inline sweep so a request-path pass stays bounded.
func (s *AdmissionService) expireEvent(ctx context.Context, eventID uint64) {
    s.expireStale(ctx, eventID)
}

// expireStale expires lapsed offers, restricted to one event when
// eventID is non-zero so the inline request-path sweep only scans its
// own queue.
func (s *AdmissionService) expireStale(ctx context.Context, eventID uint64) {
    now := s.clock.Now()
    var stale []model.QueueEntry
    var err error
    if eventID == 0 {
        stale, err = s.waitlist.StaleOffers(ctx, now)
    } else {
        stale, err = s.waitlist.StaleOffersByEvent(ctx, eventID, now)
    }
    if err != nil {
        log.Printf("admission: sweep stale offers: %v", err)
        return
    }
    for _, entry := range stale {
        swapped, err := s.waitlist.MarkExpired(ctx, entry.ID, now)
        if err != nil {
            log.Printf("admission: expire entry=%d: %v", entry.ID, err)
            continue
        }
        if !swapped {
            continue
        }
        if err := s.events.Release(ctx, entry.EventID); err != nil {
            log.Printf("admission: release after expiry failed for event=%d entry=%d: %v", entry.EventID, entry.ID, err)
            continue
        }
        if s.publisher != nil {
            s.publisher.PublishOfferExpired(ctx, entry)
        }
    }
}

// sweepStarted cancels the remaining active entries of events whose
// start time has passed; an admission queue has nothing left to admit
// to once the doors open.
func (s *AdmissionService) sweepStarted(ctx context.Context) {
    now := s.clock.Now()
    ids, err := s.events.StartedEventIDs(ctx, now)
    if err != nil {
        log.Printf("admission: sweep started events: %v", err)
        return
    }
    for _, eventID := range ids {
        entries, err := s.waitlist.ActiveByEvent(ctx, eventID)
        if err != nil {
            log.Printf("admission: sweep active entries event=%d: %v", eventID, err)
            continue
        }
        for _, entry := range entries {
            swapped, err := s.waitlist.MarkCancelled(ctx, entry.ID, entry.Status, now)
            if err != nil {
                log.Printf("admission: cancel entry=%d: %v", entry.ID, err)
                continue
            }
            if swapped && entry.Status == model.StatusOffered {
                if err := s.events.Release(ctx, eventID); err != nil {
                    log.Printf("admission: release after event start failed for event=%d entry=%d: %v", eventID, entry.ID, err)
                }
            }
        }
    }
}

// sweepPromotions runs the per-event promotion pass for every event
// that still has WAITING entries.
func (s *AdmissionService) sweepPromotions(ctx context.Context) {
    ids, err := s.waitlist.EventIDsWithWaiting(ctx)
    if err != nil {
        log.Printf("admission: sweep waiting events: %v", err)
        return
    }
    for _, eventID := range ids {
        s.SweepEvent(ctx, eventID)
    }
}

// releaseQuietly hands a reserved unit back after a lost promotion
// race.  A failure here is an invariant violation and is logged, never
// swallowed silently.
func (s *AdmissionService) releaseQuietly(ctx context.Context, eventID, entryID uint64) {
    if err := s.events.Release(ctx, eventID); err != nil {
        log.Printf("admission: release after lost promotion failed for event=%d entry=%d: %v", eventID, entryID, err)
    }
}
