package handler

import (
    "context"
    "fmt"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/event-ticket-queue/internal/model"
    "github.com/iliyamo/event-ticket-queue/internal/repository"
)

// stubCatalog implements Catalog over a single canned event.
type stubCatalog struct {
    event   *model.Event
    created *model.Event
    getErr  error
}

func (s *stubCatalog) CreateEvent(_ context.Context, name string, startsAt time.Time, capacity uint32) (*model.Event, error) {
    s.created = &model.Event{ID: 1, Name: name, StartsAt: startsAt, TotalCapacity: capacity}
    return s.created, nil
}

func (s *stubCatalog) GetEvent(context.Context, uint64) (*model.Event, error) {
    return s.event, s.getErr
}

func (s *stubCatalog) ListEvents(context.Context) ([]model.Event, error) {
    if s.event == nil {
        return nil, nil
    }
    return []model.Event{*s.event}, nil
}

func newEventContext(method, body string) (echo.Context, *httptest.ResponseRecorder) {
    e := echo.New()
    req := httptest.NewRequest(method, "/", strings.NewReader(body))
    if body != "" {
        req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    }
    rec := httptest.NewRecorder()
    c := e.NewContext(req, rec)
    c.SetParamNames("id")
    c.SetParamValues("7")
    c.Set("user_id", "organizer")
    return c, rec
}

func TestCreateEventValidation(t *testing.T) {
    future := time.Now().UTC().Add(48 * time.Hour).Format(time.RFC3339)
    cases := []struct {
        name string
        body string
        code int
    }{
        {"missing name", fmt.Sprintf(`{"starts_at":%q,"total_capacity":10}`, future), http.StatusBadRequest},
        {"bad timestamp", `{"name":"gig","starts_at":"tomorrow","total_capacity":10}`, http.StatusBadRequest},
        {"past start", `{"name":"gig","starts_at":"2020-01-01T00:00:00Z","total_capacity":10}`, http.StatusBadRequest},
        {"valid", fmt.Sprintf(`{"name":"gig","starts_at":%q,"total_capacity":10}`, future), http.StatusCreated},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            h := NewEventHandler(&stubCatalog{})
            c, rec := newEventContext(http.MethodPost, tc.body)
            if err := h.Create(c); err != nil {
                t.Fatalf("create: %v", err)
            }
            if rec.Code != tc.code {
                t.Fatalf("code = %d, want %d (body %s)", rec.Code, tc.code, rec.Body.String())
            }
        })
    }
}

func TestAvailabilityExposesLedgerCounters(t *testing.T) {
    h := NewEventHandler(&stubCatalog{event: &model.Event{
        ID:             7,
        Name:           "gig",
        StartsAt:       time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC),
        TotalCapacity:  100,
        CommittedCount: 40,
        ReservedCount:  10,
    }})
    c, rec := newEventContext(http.MethodGet, "")
    if err := h.Availability(c); err != nil {
        t.Fatalf("availability: %v", err)
    }
    if rec.Code != http.StatusOK {
        t.Fatalf("code = %d, want 200", rec.Code)
    }
    body := decodeBody(t, rec)
    if body["available_units"] != float64(50) {
        t.Fatalf("available_units = %v, want 50", body["available_units"])
    }
    if body["committed_count"] != float64(40) || body["reserved_count"] != float64(10) {
        t.Fatalf("counters = %v", body)
    }
}

func TestGetEventNotFound(t *testing.T) {
    h := NewEventHandler(&stubCatalog{getErr: repository.ErrEventNotFound})
    c, rec := newEventContext(http.MethodGet, "")
    if err := h.Get(c); err != nil {
        t.Fatalf("get: %v", err)
    }
    if rec.Code != http.StatusNotFound {
        t.Fatalf("code = %d, want 404", rec.Code)
    }
}

func TestListEventsAlwaysReturnsItems(t *testing.T) {
    h := NewEventHandler(&stubCatalog{})
    c, rec := newEventContext(http.MethodGet, "")
    if err := h.List(c); err != nil {
        t.Fatalf("list: %v", err)
    }
    body := decodeBody(t, rec)
    items, ok := body["items"].([]interface{})
    if !ok {
        t.Fatalf("items missing: %v", body)
    }
    if len(items) != 0 {
        t.Fatalf("items = %v, want empty", items)
    }
}
