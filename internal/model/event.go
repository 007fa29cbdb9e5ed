package model

import "time"

// Event represents a ticketed event together with its inventory
// counters.  The capacity fields form the inventory ledger: every
// outstanding offer holds one reserved unit and every purchase holds
// one committed unit.  The ledger invariant is
// CommittedCount + ReservedCount <= TotalCapacity at all times; it is
// enforced by conditional updates in the repository layer, never by
// application-side locks.
//
// Fields:
//  ID             – primary key identifier.
//  Name           – human readable event name.
//  StartsAt       – scheduled start time; joining closes once passed.
//  TotalCapacity  – number of purchasable tickets, immutable.
//  CommittedCount – units converted into purchased tickets.
//  ReservedCount  – units held by outstanding, non-expired offers.
//  CreatedAt      – when the event was created.
type Event struct {
    ID             uint64    // events.id
    Name           string    // events.name
    StartsAt       time.Time // events.starts_at
    TotalCapacity  uint32    // events.total_capacity
    CommittedCount uint32    // events.committed_count
    ReservedCount  uint32    // events.reserved_count
    CreatedAt      time.Time // events.created_at
}

// AvailableUnits returns the number of units not yet committed or
// reserved.  A promotion may only reserve when this is positive.
func (e *Event) AvailableUnits() uint32 {
    used := e.CommittedCount + e.ReservedCount
    if used >= e.TotalCapacity {
        return 0
    }
    return e.TotalCapacity - used
}

// Started reports whether the event's scheduled start time has passed
// at the given instant.  Started events accept no new joins and their
// remaining active queue entries are cancelled by the sweeper.
func (e *Event) Started(now time.Time) bool {
    return !e.StartsAt.After(now)
}
