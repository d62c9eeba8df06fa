package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

const responseKey = "transport.response"

var errNoResponse = errors.New("no response captured")

// Response is a completed HTTP exchange. Status codes of 4xx and 5xx arrive
// here like any other.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// URL is the final location after redirects.
	URL *url.URL
}

func newResponse(r *colly.Response) *Response {
	resp := &Response{
		StatusCode: r.StatusCode,
		Body:       r.Body,
		Header:     http.Header{},
	}
	if r.Headers != nil {
		resp.Header = r.Headers.Clone()
	}
	if r.Request != nil && r.Request.URL != nil {
		u := *r.Request.URL
		resp.URL = &u
	}
	return resp
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// IsJSON reports whether the payload is JSON by content type or shape.
func (r *Response) IsJSON() bool {
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil {
		if mt == "application/json" || strings.HasSuffix(mt, "+json") {
			return true
		}
	}
	trimmed := bytes.TrimSpace(r.Body)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed)
}

// Session carries cookies across the requests of one fetch or validate call.
// A Session is not safe for concurrent use.
type Session struct {
	collector *colly.Collector
	jar       *cookiejar.Jar
	header    http.Header
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// Do issues one request. Extra headers override the session defaults. A
// non-nil error is always an *Error.
func (s *Session) Do(ctx context.Context, method, rawURL string, body io.Reader, header http.Header) (*Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, &Error{Method: method, URL: RedactURL(rawURL), Err: err}
	}

	hdr := s.header.Clone()
	for k, v := range header {
		hdr[http.CanonicalHeaderKey(k)] = v
	}

	start := time.Now()
	cctx := colly.NewContext()
	s.collector.Context = ctx
	if err := s.collector.Request(method, rawURL, body, cctx, hdr); err != nil {
		s.logger.Debug("request failed",
			slog.String("method", method),
			slog.String("url", RedactURL(rawURL)),
			slog.String("error", err.Error()),
		)
		return nil, &Error{Method: method, URL: RedactURL(rawURL), Err: err}
	}

	resp, ok := cctx.GetAny(responseKey).(*Response)
	if !ok {
		return nil, &Error{Method: method, URL: RedactURL(rawURL), Err: errNoResponse}
	}

	s.logger.Debug("request complete",
		slog.String("method", method),
		slog.String("url", RedactURL(rawURL)),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(resp.Body)),
		slog.Duration("took", time.Since(start)),
	)
	if !resp.OK() {
		s.logger.Debug("non-success response headers",
			slog.String("url", RedactURL(rawURL)),
			slog.Any("headers", RedactHeaders(resp.Header)),
		)
	}
	return resp, nil
}

// Get fetches a page.
func (s *Session) Get(ctx context.Context, rawURL string) (*Response, error) {
	return s.Do(ctx, http.MethodGet, rawURL, nil, nil)
}

// PostForm submits url-encoded form values.
func (s *Session) PostForm(ctx context.Context, rawURL string, values url.Values) (*Response, error) {
	header := http.Header{"Content-Type": {"application/x-www-form-urlencoded"}}
	return s.Do(ctx, http.MethodPost, rawURL, strings.NewReader(values.Encode()), header)
}

// PostJSON submits payload as a JSON document.
func (s *Session) PostJSON(ctx context.Context, rawURL string, payload any) (*Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	header := http.Header{
		"Content-Type":     {"application/json"},
		"Accept":           {"application/json, text/plain, */*"},
		"X-Requested-With": {"XMLHttpRequest"},
	}
	return s.Do(ctx, http.MethodPost, rawURL, bytes.NewReader(data), header)
}

// Cookies returns the cookies the session would send to u.
func (s *Session) Cookies(u *url.URL) []*http.Cookie {
	return s.jar.Cookies(u)
}
