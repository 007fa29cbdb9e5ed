package handler

import (
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/event-ticket-queue/internal/model"
    "github.com/iliyamo/event-ticket-queue/internal/repository"
    "github.com/iliyamo/event-ticket-queue/internal/service"
)

// stubAdmission implements Admission with canned results so handler
// tests exercise only validation, identity and error mapping.
type stubAdmission struct {
    joinResult *service.JoinResult
    joinErr    error
    statusView *service.StatusView
    statusErr  error
    ticket     *model.Ticket
    finalErr   error
    cancelErr  error
    tickets    []model.Ticket
}

func (s *stubAdmission) Join(context.Context, uint64, string) (*service.JoinResult, error) {
    return s.joinResult, s.joinErr
}

func (s *stubAdmission) Status(context.Context, uint64, string) (*service.StatusView, error) {
    return s.statusView, s.statusErr
}

func (s *stubAdmission) Finalize(context.Context, uint64, string, string) (*model.Ticket, error) {
    return s.ticket, s.finalErr
}

func (s *stubAdmission) Cancel(context.Context, uint64, string) error { return s.cancelErr }

func (s *stubAdmission) TicketsByUser(context.Context, string) ([]model.Ticket, error) {
    return s.tickets, nil
}

// newAdmissionContext builds an Echo context for a queue route with
// the :id parameter and, unless anonymous, an authenticated user.
func newAdmissionContext(method, body string, anonymous bool) (echo.Context, *httptest.ResponseRecorder) {
    e := echo.New()
    req := httptest.NewRequest(method, "/", strings.NewReader(body))
    if body != "" {
        req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    }
    rec := httptest.NewRecorder()
    c := e.NewContext(req, rec)
    c.SetParamNames("id")
    c.SetParamValues("7")
    if !anonymous {
        c.Set("user_id", "alice")
    }
    return c, rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
    t.Helper()
    var body map[string]interface{}
    if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
        t.Fatalf("decode body %q: %v", rec.Body.String(), err)
    }
    return body
}

func TestJoinReturnsCreatedWithOffer(t *testing.T) {
    expires := time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC)
    h := NewAdmissionHandler(&stubAdmission{
        joinResult: &service.JoinResult{EntryID: 42, Status: model.StatusOffered, OfferExpiresAt: &expires},
    })
    c, rec := newAdmissionContext(http.MethodPost, "", false)
    if err := h.Join(c); err != nil {
        t.Fatalf("join: %v", err)
    }
    if rec.Code != http.StatusCreated {
        t.Fatalf("code = %d, want 201", rec.Code)
    }
    body := decodeBody(t, rec)
    if body["status"] != model.StatusOffered {
        t.Fatalf("status = %v, want OFFERED", body["status"])
    }
    if body["offer_expires_at"] != "2026-03-01T12:15:00Z" {
        t.Fatalf("offer_expires_at = %v", body["offer_expires_at"])
    }
}

func TestJoinRequiresAuthentication(t *testing.T) {
    h := NewAdmissionHandler(&stubAdmission{})
    c, rec := newAdmissionContext(http.MethodPost, "", true)
    if err := h.Join(c); err != nil {
        t.Fatalf("join: %v", err)
    }
    if rec.Code != http.StatusUnauthorized {
        t.Fatalf("code = %d, want 401", rec.Code)
    }
}

func TestJoinErrorMapping(t *testing.T) {
    cases := []struct {
        name string
        err  error
        code int
    }{
        {"already queued", repository.ErrAlreadyQueued, http.StatusConflict},
        {"already purchased", repository.ErrAlreadyPurchased, http.StatusConflict},
        {"event started", repository.ErrEventStarted, http.StatusConflict},
        {"event not found", repository.ErrEventNotFound, http.StatusNotFound},
        {"internal", context.DeadlineExceeded, http.StatusInternalServerError},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            h := NewAdmissionHandler(&stubAdmission{joinErr: tc.err})
            c, rec := newAdmissionContext(http.MethodPost, "", false)
            if err := h.Join(c); err != nil {
                t.Fatalf("join: %v", err)
            }
            if rec.Code != tc.code {
                t.Fatalf("code = %d, want %d", rec.Code, tc.code)
            }
        })
    }
}

func TestStatusWithoutEntryIsNotFound(t *testing.T) {
    h := NewAdmissionHandler(&stubAdmission{})
    c, rec := newAdmissionContext(http.MethodGet, "", false)
    if err := h.Status(c); err != nil {
        t.Fatalf("status: %v", err)
    }
    if rec.Code != http.StatusNotFound {
        t.Fatalf("code = %d, want 404", rec.Code)
    }
}

func TestStatusIncludesPositionWhileWaiting(t *testing.T) {
    h := NewAdmissionHandler(&stubAdmission{
        statusView: &service.StatusView{EntryID: 9, Status: model.StatusWaiting, Position: 3},
    })
    c, rec := newAdmissionContext(http.MethodGet, "", false)
    if err := h.Status(c); err != nil {
        t.Fatalf("status: %v", err)
    }
    if rec.Code != http.StatusOK {
        t.Fatalf("code = %d, want 200", rec.Code)
    }
    body := decodeBody(t, rec)
    if body["position"] != float64(3) {
        t.Fatalf("position = %v, want 3", body["position"])
    }
}

func TestFinalizeMapsOfferAndPaymentFailures(t *testing.T) {
    t.Run("no active offer", func(t *testing.T) {
        h := NewAdmissionHandler(&stubAdmission{finalErr: repository.ErrNoActiveOffer})
        c, rec := newAdmissionContext(http.MethodPost, `{"payment_ref":"pay_1"}`, false)
        if err := h.Finalize(c); err != nil {
            t.Fatalf("finalize: %v", err)
        }
        if rec.Code != http.StatusConflict {
            t.Fatalf("code = %d, want 409", rec.Code)
        }
    })
    t.Run("missing payment ref", func(t *testing.T) {
        h := NewAdmissionHandler(&stubAdmission{finalErr: repository.ErrPaymentRequired})
        c, rec := newAdmissionContext(http.MethodPost, `{}`, false)
        if err := h.Finalize(c); err != nil {
            t.Fatalf("finalize: %v", err)
        }
        if rec.Code != http.StatusBadRequest {
            t.Fatalf("code = %d, want 400", rec.Code)
        }
    })
}

func TestFinalizeReturnsTicket(t *testing.T) {
    h := NewAdmissionHandler(&stubAdmission{
        ticket: &model.Ticket{ID: 5, EventID: 7, UserID: "alice", QueueEntryID: 42, PaymentRef: "pay_1",
            IssuedAt: time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)},
    })
    c, rec := newAdmissionContext(http.MethodPost, `{"payment_ref":"pay_1"}`, false)
    if err := h.Finalize(c); err != nil {
        t.Fatalf("finalize: %v", err)
    }
    if rec.Code != http.StatusCreated {
        t.Fatalf("code = %d, want 201", rec.Code)
    }
    body := decodeBody(t, rec)
    if body["ticket_id"] != float64(5) || body["payment_ref"] != "pay_1" {
        t.Fatalf("body = %v", body)
    }
}

func TestCancelReturnsNoContent(t *testing.T) {
    h := NewAdmissionHandler(&stubAdmission{})
    c, rec := newAdmissionContext(http.MethodDelete, "", false)
    if err := h.Cancel(c); err != nil {
        t.Fatalf("cancel: %v", err)
    }
    if rec.Code != http.StatusNoContent {
        t.Fatalf("code = %d, want 204", rec.Code)
    }
}

func TestInvalidEventIDRejected(t *testing.T) {
    h := NewAdmissionHandler(&stubAdmission{})
    e := echo.New()
    req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
    rec := httptest.NewRecorder()
    c := e.NewContext(req, rec)
    c.SetParamNames("id")
    c.SetParamValues("zero")
    c.Set("user_id", "alice")
    if err := h.Join(c); err != nil {
        t.Fatalf("join: %v", err)
    }
    if rec.Code != http.StatusBadRequest {
        t.Fatalf("code = %d, want 400", rec.Code)
    }
}
