package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Takenobou/sfoweb-appointments/internal/model"
	"github.com/Takenobou/sfoweb-appointments/internal/transport"
)

const appointmentsPage = `<html><body><h1>Aftaler</h1><a href="/logout">Log ud</a>
<table><tr><th>Dato</th><th>Hvad</th><th>Tid</th><th>Kommentar</th></tr>
<tr><td>2025-06-12</td><td>Selvbestemmer</td><td>14:00-16:00</td><td>Note</td></tr></table></body></html>`

const loginForm = `<form action="/do-login" method="post">
<input type="hidden" name="csrf" value="abc">
<input name="username"><input type="password" name="password">
<input type="submit" name="go" value="Log ind"></form>`

type portal struct {
	mu        sync.Mutex
	submitted []map[string][]string
	mux       *http.ServeMux
}

func newPortal() *portal {
	return &portal{mux: http.NewServeMux()}
}

func (p *portal) record(r *http.Request) {
	_ = r.ParseForm()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitted = append(p.submitted, r.PostForm)
}

func (p *portal) doLogin(w http.ResponseWriter, r *http.Request) {
	p.record(r)
	if r.PostForm.Get("username") == "user1" && r.PostForm.Get("password") == "pass1" {
		http.SetCookie(w, &http.Cookie{Name: "SFO", Value: "ok", Path: "/"})
		http.Redirect(w, r, "/aftaler", http.StatusFound)
		return
	}
	writeHTML(w, `<p>Forkert brugernavn eller adgangskode</p>`+loginForm)
}

func (p *portal) aftaler(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie("SFO"); err != nil || c.Value != "ok" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	writeHTML(w, appointmentsPage)
}

func writeHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, body)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSession(t *testing.T) *transport.Session {
	t.Helper()
	sess, err := transport.New(transport.Config{}, discardLogger()).NewSession()
	require.NoError(t, err)
	return sess
}

func newAuthenticator(ts *httptest.Server, opts ...Option) *Authenticator {
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	return New(Config{LoginURL: ts.URL + "/", ProbeURL: ts.URL + "/aftaler"}, opts...)
}

func TestLoginWithFormOnLoginPage(t *testing.T) {
	p := newPortal()
	p.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) { writeHTML(w, loginForm) })
	p.mux.HandleFunc("POST /do-login", p.doLogin)
	p.mux.HandleFunc("GET /aftaler", p.aftaler)
	ts := httptest.NewServer(p.mux)
	defer ts.Close()

	res, err := newAuthenticator(ts).Login(context.Background(), newSession(t), model.Credentials{Username: "user1", Password: "pass1"})
	require.NoError(t, err)
	assert.True(t, res.Authenticated)
	assert.Equal(t, "form", res.Strategy)
	assert.Equal(t, SignalIndicator, res.Verdict.Signal)

	require.Len(t, p.submitted, 1)
	assert.Equal(t, "abc", p.submitted[0]["csrf"][0])
	assert.Equal(t, "Log ind", p.submitted[0]["go"][0])
}

func TestLoginFollowsParentLink(t *testing.T) {
	p := newPortal()
	p.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, `<a href="/staff">Personale</a><a href="/parent">Forældre</a>`)
	})
	p.mux.HandleFunc("GET /parent", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, `<form action="/do-login"><input name="username"><input type="password" name="password"></form>`)
	})
	p.mux.HandleFunc("POST /do-login", p.doLogin)
	p.mux.HandleFunc("GET /aftaler", p.aftaler)
	ts := httptest.NewServer(p.mux)
	defer ts.Close()

	res, err := newAuthenticator(ts).Login(context.Background(), newSession(t), model.Credentials{Username: "user1", Password: "pass1"})
	require.NoError(t, err)
	assert.True(t, res.Authenticated)
	assert.Equal(t, "form", res.Strategy)
}

func TestLoginWrongPasswordIsNotAnError(t *testing.T) {
	p := newPortal()
	p.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) { writeHTML(w, loginForm) })
	p.mux.HandleFunc("POST /do-login", p.doLogin)
	p.mux.HandleFunc("GET /aftaler", p.aftaler)
	ts := httptest.NewServer(p.mux)
	defer ts.Close()

	res, err := newAuthenticator(ts).Login(context.Background(), newSession(t), model.Credentials{Username: "user1", Password: "wrong"})
	require.NoError(t, err)
	assert.False(t, res.Authenticated)
	assert.Empty(t, res.Strategy)
}

func TestLoginViaScriptAPI(t *testing.T) {
	p := newPortal()
	p.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, `<div id="app"></div><script>fetch('/api/v1/login', {method: 'POST'})</script>`)
	})
	p.mux.HandleFunc("POST /api/v1/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		if body["email"] == "user1" && body["password"] == "pass1" {
			_, _ = io.WriteString(w, `{"token":"t0k"}`)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"invalid"}`)
	})
	ts := httptest.NewServer(p.mux)
	defer ts.Close()

	res, err := newAuthenticator(ts).Login(context.Background(), newSession(t), model.Credentials{Username: "user1", Password: "pass1"})
	require.NoError(t, err)
	assert.True(t, res.Authenticated)
	assert.Equal(t, "api", res.Strategy)
	assert.Equal(t, SignalAPI, res.Verdict.Signal)
	assert.Contains(t, res.Verdict.Evidence, "json email")
	assert.Equal(t, 1, res.Candidates)
}

func TestLoginViaSSOPath(t *testing.T) {
	p := newPortal()
	p.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) { writeHTML(w, `<p>SFO</p>`) })
	p.mux.HandleFunc("GET /sso/login", func(w http.ResponseWriter, r *http.Request) { writeHTML(w, loginForm) })
	p.mux.HandleFunc("POST /do-login", p.doLogin)
	p.mux.HandleFunc("GET /aftaler", p.aftaler)
	ts := httptest.NewServer(p.mux)
	defer ts.Close()

	res, err := newAuthenticator(ts).Login(context.Background(), newSession(t), model.Credentials{Username: "user1", Password: "pass1"})
	require.NoError(t, err)
	assert.True(t, res.Authenticated)
	assert.Equal(t, "oauth", res.Strategy)
}

func TestLoginAssumedSignalIsFlagged(t *testing.T) {
	p := newPortal()
	p.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) { writeHTML(w, loginForm) })
	p.mux.HandleFunc("POST /do-login", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, "<p>"+strings.Repeat("Nyt fra institutionen. ", 40)+"</p>")
	})
	ts := httptest.NewServer(p.mux)
	defer ts.Close()

	var logs strings.Builder
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	a := New(Config{LoginURL: ts.URL + "/"}, WithLogger(logger))
	res, err := a.Login(context.Background(), newSession(t), model.Credentials{Username: "user1", Password: "pass1"})
	require.NoError(t, err)
	assert.True(t, res.Authenticated)
	assert.Equal(t, SignalAssumed, res.Verdict.Signal)
	assert.Contains(t, logs.String(), `"signal":"assumed"`)
	assert.NotContains(t, logs.String(), "pass1")
}

func TestLoginUnreachablePortalIsTransportError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()

	_, err := newAuthenticator(ts).Login(context.Background(), newSession(t), model.Credentials{Username: "user1", Password: "pass1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, transport.ErrTransport))
}

type fakeStrategy struct {
	name    string
	verdict Verdict
	calls   *[]string
}

func (f fakeStrategy) Name() string { return f.name }

func (f fakeStrategy) Attempt(ctx context.Context, p *Pass) Verdict {
	*f.calls = append(*f.calls, f.name)
	return f.verdict
}

func TestLoginStopsAtFirstSuccessfulStrategy(t *testing.T) {
	var calls []string
	a := New(Config{}, WithLogger(discardLogger()), WithStrategies(
		fakeStrategy{name: "one", calls: &calls},
		fakeStrategy{name: "two", verdict: Verdict{Authenticated: true, Signal: SignalIndicator}, calls: &calls},
		fakeStrategy{name: "three", verdict: Verdict{Authenticated: true}, calls: &calls},
	))

	res, err := a.Login(context.Background(), nil, model.Credentials{})
	require.NoError(t, err)
	assert.Equal(t, "two", res.Strategy)
	assert.Equal(t, []string{"one", "two"}, calls)
}
