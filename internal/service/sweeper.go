package service

import (
    "context"
    "log"
    "time"
)

// DefaultSweepInterval is the pause between background scheduler
// passes.  It is the acceptable staleness bound for offer expiry; the
// request path re-checks deadlines itself, so a slow sweep can delay
// promotions but never let an expired offer be purchased.
const DefaultSweepInterval = 5 * time.Second

// Sweeper runs the admission service's full sweep on a fixed interval
// until its context is cancelled.  Each pass commits one entry
// transition at a time, so stopping mid-pass leaves valid state.
type Sweeper struct {
    svc      *AdmissionService
    interval time.Duration
}

// NewSweeper constructs a Sweeper for the given service.  A
// non-positive interval falls back to DefaultSweepInterval.
func NewSweeper(svc *AdmissionService, interval time.Duration) *Sweeper {
    if svc == nil {
        panic("nil service passed to NewSweeper")
    }
    if interval <= 0 {
        interval = DefaultSweepInterval
    }
    return &Sweeper{svc: svc, interval: interval}
}

// Run blocks, sweeping once per interval, until ctx is cancelled.  It
// performs one immediate pass on startup so a restart does not wait a
// full interval to expire offers that lapsed while the process was
// down.
func (w *Sweeper) Run(ctx context.Context) {
    log.Printf("sweeper: running every %s", w.interval)
    w.svc.Sweep(ctx)

    ticker := time.NewTicker(w.interval)
    defer ticker.Stop()
    for {
        select {
        case <-ctx.Done():
            log.Printf("sweeper: stopped: %v", ctx.Err())
            return
        case <-ticker.C:
            w.svc.Sweep(ctx)
        }
    }
}
