package handler

import (
    "context"  // context is threaded from the request into the service
    "errors"   // errors.Is comparisons against repository sentinels
    "net/http" // HTTP status codes
    "strconv"  // parsing path parameters
    "time"     // formatting offer deadlines

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/event-ticket-queue/internal/model"
    "github.com/iliyamo/event-ticket-queue/internal/repository"
    "github.com/iliyamo/event-ticket-queue/internal/service"
)

// Admission is the slice of the admission service the HTTP layer
// consumes.  Handlers depend on this interface rather than the
// concrete service so tests can substitute a stub.
type Admission interface {
    Join(ctx context.Context, eventID uint64, userID string) (*service.JoinResult, error)
    Status(ctx context.Context, eventID uint64, userID string) (*service.StatusView, error)
    Finalize(ctx context.Context, eventID uint64, userID, paymentRef string) (*model.Ticket, error)
    Cancel(ctx context.Context, eventID uint64, userID string) error
    TicketsByUser(ctx context.Context, userID string) ([]model.Ticket, error)
}

// AdmissionHandler exposes the waiting-list operations: join, status,
// cancel and finalize.  All routes assume JWT authentication has run
// and may return 401 when no identity is present in the context.
type AdmissionHandler struct {
    Svc Admission
}

// NewAdmissionHandler constructs an AdmissionHandler.  The service
// must be non-nil.
func NewAdmissionHandler(svc Admission) *AdmissionHandler {
    if svc == nil {
        panic("nil service passed to NewAdmissionHandler")
    }
    return &AdmissionHandler{Svc: svc}
}

// Join handles POST /v1/events/:id/queue.  It appends the caller to
// the event's waiting list and reports the resulting status, which is
// OFFERED straight away when capacity is free.  Conflicting state
// (already queued, already purchased, event started) maps to 409.
func (h *AdmissionHandler) Join(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    eventID, err := parseEventID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
    }
    res, err := h.Svc.Join(c.Request().Context(), eventID, userID)
    if err != nil {
        return admissionError(c, err)
    }
    body := echo.Map{
        "entry_id": res.EntryID,
        "status":   res.Status,
    }
    if res.OfferExpiresAt != nil {
        body["offer_expires_at"] = res.OfferExpiresAt.UTC().Format(time.RFC3339)
    }
    return c.JSON(http.StatusCreated, body)
}

// Status handles GET /v1/events/:id/queue.  It returns the caller's
// live queue position: the status, the computed rank while WAITING,
// and the offer deadline while OFFERED.  With no active entry it
// responds 404 so clients can distinguish "not queued" from "waiting".
func (h *AdmissionHandler) Status(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    eventID, err := parseEventID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
    }
    view, err := h.Svc.Status(c.Request().Context(), eventID, userID)
    if err != nil {
        return admissionError(c, err)
    }
    if view == nil {
        return c.JSON(http.StatusNotFound, echo.Map{"error": "no active entry"})
    }
    body := echo.Map{
        "entry_id": view.EntryID,
        "status":   view.Status,
    }
    if view.Status == model.StatusWaiting {
        body["position"] = view.Position
    }
    if view.OfferExpiresAt != nil {
        body["offer_expires_at"] = view.OfferExpiresAt.UTC().Format(time.RFC3339)
    }
    return c.JSON(http.StatusOK, body)
}

// Cancel handles DELETE /v1/events/:id/queue.  It withdraws the
// caller's live queue position, if any, releasing held capacity to the
// next waiting user.  Always 204: the UI fires this on page leave
// without knowing whether a position exists.
func (h *AdmissionHandler) Cancel(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    eventID, err := parseEventID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
    }
    if err := h.Svc.Cancel(c.Request().Context(), eventID, userID); err != nil {
        return admissionError(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// Finalize handles POST /v1/events/:id/purchase.  The request body
// carries the payment confirmation reference produced by the payment
// collaborator.  On success the caller's offer becomes a ticket; an
// expired or missing offer maps to 409.
func (h *AdmissionHandler) Finalize(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    eventID, err := parseEventID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
    }
    var body struct {
        PaymentRef string `json:"payment_ref"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    ticket, err := h.Svc.Finalize(c.Request().Context(), eventID, userID, body.PaymentRef)
    if err != nil {
        return admissionError(c, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{
        "ticket_id":   ticket.ID,
        "event_id":    ticket.EventID,
        "entry_id":    ticket.QueueEntryID,
        "payment_ref": ticket.PaymentRef,
        "issued_at":   ticket.IssuedAt.UTC().Format(time.RFC3339),
    })
}

// MyTickets handles GET /v1/my-tickets.  It returns all tickets the
// caller has purchased, newest first.  When none exist it returns an
// empty array.
func (h *AdmissionHandler) MyTickets(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    tickets, err := h.Svc.TicketsByUser(c.Request().Context(), userID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load tickets"})
    }
    items := make([]echo.Map, 0, len(tickets))
    for _, t := range tickets {
        items = append(items, echo.Map{
            "ticket_id":   t.ID,
            "event_id":    t.EventID,
            "entry_id":    t.QueueEntryID,
            "payment_ref": t.PaymentRef,
            "issued_at":   t.IssuedAt.UTC().Format(time.RFC3339),
        })
    }
    return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// admissionError translates service failures into HTTP responses.
// Capacity races never reach here; they resolve to the entry simply
// staying WAITING.
func admissionError(c echo.Context, err error) error {
    switch {
    case errors.Is(err, repository.ErrEventNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
    case errors.Is(err, repository.ErrAlreadyQueued):
        return c.JSON(http.StatusConflict, echo.Map{"error": "already in queue for this event"})
    case errors.Is(err, repository.ErrAlreadyPurchased):
        return c.JSON(http.StatusConflict, echo.Map{"error": "already purchased a ticket for this event"})
    case errors.Is(err, repository.ErrEventStarted):
        return c.JSON(http.StatusConflict, echo.Map{"error": "event already started"})
    case errors.Is(err, repository.ErrNoActiveOffer):
        return c.JSON(http.StatusConflict, echo.Map{"error": "no active offer; rejoin the queue"})
    case errors.Is(err, repository.ErrPaymentRequired):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "payment_ref is required"})
    default:
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
    }
}

// parseEventID extracts the :id path parameter as an event identifier.
func parseEventID(c echo.Context) (uint64, error) {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || id == 0 {
        return 0, errors.New("invalid event id")
    }
    return id, nil
}

// getUserID fetches the authenticated caller's opaque identifier from
// the context, where the JWT middleware stored it.
func getUserID(c echo.Context) (string, error) {
    if s, ok := c.Get("user_id").(string); ok && s != "" {
        return s, nil
    }
    return "", errors.New("missing user_id in context")
}
