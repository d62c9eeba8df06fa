package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Takenobou/sfoweb-appointments/internal/calendar"
	"github.com/Takenobou/sfoweb-appointments/internal/config"
	"github.com/Takenobou/sfoweb-appointments/internal/coordinator"
	"github.com/Takenobou/sfoweb-appointments/internal/model"
	"github.com/Takenobou/sfoweb-appointments/internal/scraper"
)

type fakeCoordinator struct {
	snaps     map[string]coordinator.Snapshot
	order     []string
	refreshed []string
}

func (f *fakeCoordinator) Accounts() []string { return f.order }

func (f *fakeCoordinator) Snapshot(name string) (coordinator.Snapshot, bool) {
	s, ok := f.snaps[name]
	return s, ok
}

func (f *fakeCoordinator) Snapshots() []coordinator.Snapshot {
	var out []coordinator.Snapshot
	for _, n := range f.order {
		out = append(out, f.snaps[n])
	}
	return out
}

func (f *fakeCoordinator) Refresh(ctx context.Context, name string) (coordinator.Snapshot, error) {
	s, ok := f.snaps[name]
	if !ok {
		return coordinator.Snapshot{}, coordinator.ErrUnknownAccount
	}
	f.refreshed = append(f.refreshed, name)
	return s, nil
}

type fakeValidator struct {
	got model.Credentials
}

func (f *fakeValidator) ValidateCredentials(ctx context.Context, creds model.Credentials) bool {
	f.got = creds
	return len(creds.Username) >= 3 && len(creds.Password) >= 3
}

type fakeCalendarBuilder struct {
	ics     []byte
	account string
}

func (f *fakeCalendarBuilder) Build(account string, appointments []model.Appointment) ([]byte, error) {
	f.account = account
	return f.ics, nil
}

func newTestServer(t *testing.T, cal CalendarBuilder) (*Server, *fakeCoordinator, *fakeValidator) {
	t.Helper()
	loc, _ := time.LoadLocation("Europe/Copenhagen")
	coord := &fakeCoordinator{
		order: []string{"anna", "bo"},
		snaps: map[string]coordinator.Snapshot{
			"anna": {
				Account: "anna",
				Appointments: []model.Appointment{
					{Date: "2025-06-12", Category: "Selvbestemmer", TimeRange: "14:00-16:00", Comment: "Note"},
					{Date: "2025-06-19", Category: "Selvbestemmer", TimeRange: "13:00-15:00"},
				},
				Available:   true,
				LastUpdated: time.Date(2025, time.June, 1, 9, 0, 0, 0, loc),
				Strategy:    "form",
			},
			"bo": {Account: "bo", Appointments: []model.Appointment{}},
		},
	}
	val := &fakeValidator{}
	if cal == nil {
		cal = &fakeCalendarBuilder{}
	}
	cfg := config.Config{ListenAddr: ":0", Timezone: "Europe/Copenhagen"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, coord, val, cal, NewMetrics(), logger), coord, val
}

func serve(srv *Server, method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, req)
	return rr
}

func TestAppointmentsHandler(t *testing.T) {
	srv, coord, _ := newTestServer(t, nil)

	rr := serve(srv, http.MethodGet, "/api/accounts/anna/appointments", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var payload struct {
		State      int `json:"state"`
		Attributes struct {
			Appointments []model.Appointment `json:"appointments"`
			LastUpdated  string              `json:"last_updated"`
			Available    bool                `json:"available"`
		} `json:"attributes"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.State != 2 || len(payload.Attributes.Appointments) != 2 {
		t.Fatalf("unexpected state %d", payload.State)
	}
	if !payload.Attributes.Available {
		t.Fatalf("expected available")
	}
	if payload.Attributes.LastUpdated != "2025-06-01T09:00:00+02:00" {
		t.Fatalf("unexpected last_updated %s", payload.Attributes.LastUpdated)
	}
	if !strings.Contains(rr.Body.String(), `"description":"2025-06-12 - 14:00-16:00"`) {
		t.Fatalf("expected derived description in %s", rr.Body.String())
	}
	if len(coord.refreshed) != 0 {
		t.Fatalf("plain read must not refresh")
	}

	rr = serve(srv, http.MethodGet, "/api/accounts/anna/appointments?refresh=true", nil)
	if rr.Code != http.StatusOK || len(coord.refreshed) != 1 {
		t.Fatalf("expected forced refresh, got %d %v", rr.Code, coord.refreshed)
	}
}

func TestNextHandler(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	rr := serve(srv, http.MethodGet, "/api/accounts/anna/next", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload struct {
		State      string         `json:"state"`
		Attributes map[string]any `json:"attributes"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.State != "2025-06-12 - 14:00-16:00" {
		t.Fatalf("unexpected state %q", payload.State)
	}
	if payload.Attributes["what"] != "Selvbestemmer" || payload.Attributes["time"] != "14:00-16:00" || payload.Attributes["comment"] != "Note" {
		t.Fatalf("unexpected attributes %v", payload.Attributes)
	}

	rr = serve(srv, http.MethodGet, "/api/accounts/bo/next", nil)
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.State != "No appointments" {
		t.Fatalf("unexpected empty state %q", payload.State)
	}
	if payload.Attributes["available"] != false {
		t.Fatalf("expected unavailable account")
	}
}

func TestUnknownAccount(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	for _, target := range []string{
		"/api/accounts/cy/appointments",
		"/api/accounts/cy/appointments?refresh=1",
		"/api/accounts/cy/next",
		"/api/accounts/cy/calendar.ics",
	} {
		if rr := serve(srv, http.MethodGet, target, nil); rr.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", target, rr.Code)
		}
	}
}

func TestAccountsHandler(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	rr := serve(srv, http.MethodGet, "/api/accounts", nil)
	var payload struct {
		Accounts []accountSummary `json:"accounts"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(payload.Accounts) != 2 || payload.Accounts[0].Name != "anna" || payload.Accounts[0].Appointments != 2 {
		t.Fatalf("unexpected accounts %+v", payload.Accounts)
	}
	if payload.Accounts[1].LastUpdated != nil {
		t.Fatalf("never-updated account must report null last_updated")
	}
}

func TestCalendarHandler(t *testing.T) {
	cal, err := calendar.NewBuilder(calendar.Config{Name: "SFO Aftaler", Timezone: "Europe/Copenhagen"})
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	srv, _, _ := newTestServer(t, cal)

	rr := serve(srv, http.MethodGet, "/api/accounts/anna/calendar.ics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != "text/calendar; charset=utf-8" {
		t.Fatalf("unexpected content-type %s", got)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "BEGIN:VCALENDAR") || strings.Count(body, "BEGIN:VEVENT") != 2 {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestValidateHandler(t *testing.T) {
	srv, _, val := newTestServer(t, nil)

	rr := serve(srv, http.MethodPost, "/api/validate", strings.NewReader(`{"username":"user1","password":"pass1"}`))
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != `{"valid":true}` {
		t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
	}
	if val.got.Username != "user1" {
		t.Fatalf("validator not called with credentials")
	}

	rr = serve(srv, http.MethodPost, "/api/validate", strings.NewReader(`{"username":"","password":"x"}`))
	if strings.TrimSpace(rr.Body.String()) != `{"valid":false}` {
		t.Fatalf("unexpected response %s", rr.Body.String())
	}

	rr = serve(srv, http.MethodPost, "/api/validate", strings.NewReader(`not json`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	srv.metrics.ObserveFetch("anna", scraper.Outcome{
		Appointments: []model.Appointment{{Date: "2025-06-12"}},
		Strategy:     "form",
		Signal:       "indicator",
	}, nil, 2*time.Second)
	srv.metrics.ObserveFetch("anna", scraper.Outcome{}, scraper.ErrUpdateFailed, time.Second)

	rr := serve(srv, http.MethodGet, "/metrics", nil)
	body := rr.Body.String()
	for _, want := range []string{
		"sfoweb_scrapes_total 2",
		"sfoweb_scrape_failures_total 1",
		`sfoweb_appointments{account="anna"} 1`,
		`sfoweb_authentications_total{signal="indicator",strategy="form"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected metrics to contain %q", want)
		}
	}
}

func TestHealthHandler(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	if rr := serve(srv, http.MethodGet, "/healthz", nil); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}
