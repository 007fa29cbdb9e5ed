package handler

import (
    "context"
    "errors"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/event-ticket-queue/internal/model"
    "github.com/iliyamo/event-ticket-queue/internal/repository"
)

// Catalog is the slice of the admission service the event endpoints
// consume: creating events and reading the catalog with its ledger
// counters.
type Catalog interface {
    CreateEvent(ctx context.Context, name string, startsAt time.Time, capacity uint32) (*model.Event, error)
    GetEvent(ctx context.Context, eventID uint64) (*model.Event, error)
    ListEvents(ctx context.Context) ([]model.Event, error)
}

// EventHandler exposes the event catalog: creation (the bootstrap path
// for inventory) and the read-only listing and availability views the
// display collaborators consume.
type EventHandler struct {
    Svc Catalog
}

// NewEventHandler constructs an EventHandler.  The service must be
// non-nil.
func NewEventHandler(svc Catalog) *EventHandler {
    if svc == nil {
        panic("nil service passed to NewEventHandler")
    }
    return &EventHandler{Svc: svc}
}

// Create handles POST /v1/events.  The body must carry a name, an
// RFC3339 start time in the future, and a non-negative total capacity.
// Capacity is immutable after creation.
func (h *EventHandler) Create(c echo.Context) error {
    if _, err := getUserID(c); err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var body struct {
        Name          string `json:"name"`
        StartsAt      string `json:"starts_at"`
        TotalCapacity uint32 `json:"total_capacity"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if body.Name == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
    }
    startsAt, err := time.Parse(time.RFC3339, body.StartsAt)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "starts_at must be RFC3339"})
    }
    if !startsAt.After(time.Now().UTC()) {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "starts_at must be in the future"})
    }
    ev, err := h.Svc.CreateEvent(c.Request().Context(), body.Name, startsAt, body.TotalCapacity)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create event"})
    }
    return c.JSON(http.StatusCreated, eventBody(ev))
}

// Get handles GET /v1/events/:id.  It returns the event together with
// its ledger counters.
func (h *EventHandler) Get(c echo.Context) error {
    eventID, err := parseEventID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
    }
    ev, err := h.Svc.GetEvent(c.Request().Context(), eventID)
    if err != nil {
        if errors.Is(err, repository.ErrEventNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load event"})
    }
    return c.JSON(http.StatusOK, eventBody(ev))
}

// List handles GET /v1/events.  It returns the full catalog ordered by
// start time; counters ride along so listings can render availability.
func (h *EventHandler) List(c echo.Context) error {
    events, err := h.Svc.ListEvents(c.Request().Context())
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load events"})
    }
    items := make([]echo.Map, 0, len(events))
    for i := range events {
        items = append(items, eventBody(&events[i]))
    }
    return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Availability handles GET /v1/events/:id/availability.  It exposes
// the raw ledger counters for display collaborators: total capacity,
// committed (purchased) units and reserved (offered) units.
func (h *EventHandler) Availability(c echo.Context) error {
    eventID, err := parseEventID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
    }
    ev, err := h.Svc.GetEvent(c.Request().Context(), eventID)
    if err != nil {
        if errors.Is(err, repository.ErrEventNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load event"})
    }
    return c.JSON(http.StatusOK, echo.Map{
        "event_id":        ev.ID,
        "total_capacity":  ev.TotalCapacity,
        "committed_count": ev.CommittedCount,
        "reserved_count":  ev.ReservedCount,
        "available_units": ev.AvailableUnits(),
    })
}

// eventBody renders one event for JSON responses.
func eventBody(ev *model.Event) echo.Map {
    return echo.Map{
        "event_id":        ev.ID,
        "name":            ev.Name,
        "starts_at":       ev.StartsAt.UTC().Format(time.RFC3339),
        "total_capacity":  ev.TotalCapacity,
        "committed_count": ev.CommittedCount,
        "reserved_count":  ev.ReservedCount,
        "available_units": ev.AvailableUnits(),
    }
}
