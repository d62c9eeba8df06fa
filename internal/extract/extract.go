// Package extract turns portal pages and payloads into appointment records.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/Takenobou/sfoweb-appointments/internal/discover"
	"github.com/Takenobou/sfoweb-appointments/internal/model"
	"github.com/Takenobou/sfoweb-appointments/internal/transport"
)

// ErrMalformedResponse means a body could not be parsed by any strategy.
var ErrMalformedResponse = errors.New("malformed response")

// Method names the parser that produced a result.
type Method string

const (
	MethodNone  Method = ""
	MethodTable Method = "table"
	MethodJSON  Method = "json"
	MethodScan  Method = "scan"
	MethodEmpty Method = "empty"
)

// Config controls candidate URLs and relevance filtering.
type Config struct {
	PrimaryURL    string
	AlternateURLs []string
	// CategoryMarker filters table rows; empty disables filtering.
	CategoryMarker          string
	CategoryCaseInsensitive bool
	FilterJSONByCategory    bool
	EmptyPhrases            []string
	MinCells                int
	ScanLimit               int
	EndpointLimit           int
	EndpointPatterns        []*regexp.Regexp
}

// Result is what one candidate yielded.
type Result struct {
	Appointments []model.Appointment
	Method       Method
	Source       string
}

// Settled reports whether the result ends the walk over candidates: records
// were found, the portal reported none, or its appointment table held
// nothing relevant.
func (r Result) Settled() bool {
	return len(r.Appointments) > 0 || r.Method == MethodEmpty || r.Method == MethodTable
}

// Extractor fetches and parses appointment resources.
type Extractor struct {
	cfg    Config
	logger *slog.Logger
}

// New applies defaults and returns an Extractor.
func New(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MinCells <= 0 {
		cfg.MinCells = 3
	}
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = 10
	}
	if cfg.EndpointLimit <= 0 {
		cfg.EndpointLimit = 3
	}
	if cfg.EndpointPatterns == nil {
		cfg.EndpointPatterns = discover.DefaultAppointmentEndpointPatterns
	}
	return &Extractor{cfg: cfg, logger: logger}
}

// Candidates returns the primary URL followed by the alternates, resolved
// against the primary and de-duplicated.
func (e *Extractor) Candidates() []string {
	base, _ := url.Parse(e.cfg.PrimaryURL)
	var out []string
	seen := map[string]struct{}{}
	for _, raw := range append([]string{e.cfg.PrimaryURL}, e.cfg.AlternateURLs...) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if base != nil {
			if ref, err := url.Parse(raw); err == nil {
				raw = base.ResolveReference(ref).String()
			}
		}
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		out = append(out, raw)
	}
	return out
}

// Fetch walks the candidates until one yields a settled result. Exhausting
// all candidates without records is not an error unless none of them could
// be reached.
func (e *Extractor) Fetch(ctx context.Context, sess *transport.Session) (Result, error) {
	var errs []error
	reached := 0

	for _, candidate := range e.Candidates() {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("extraction interrupted: %w", err)
		}

		resp, err := sess.Get(ctx, candidate)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		reached++
		if !resp.OK() {
			e.logger.Debug("candidate unavailable", slog.String("url", transport.RedactURL(candidate)), slog.Int("status", resp.StatusCode))
			continue
		}

		res, err := e.ParseResponse(ctx, sess, resp, candidate)
		if err != nil {
			e.logger.Debug("candidate unparseable", slog.String("url", transport.RedactURL(candidate)), slog.String("error", err.Error()))
			continue
		}
		if res.Settled() {
			if res.Source == "" {
				res.Source = candidate
			}
			e.logger.Info("appointments extracted",
				slog.String("source", transport.RedactURL(res.Source)),
				slog.String("method", string(res.Method)),
				slog.Int("count", len(res.Appointments)),
			)
			return res, nil
		}
	}

	if reached == 0 && len(errs) > 0 {
		return Result{Appointments: []model.Appointment{}}, fmt.Errorf("appointments unreachable: %w", errors.Join(errs...))
	}
	e.logger.Info("no appointments found", slog.Int("candidates", len(e.Candidates())))
	return Result{Appointments: []model.Appointment{}}, nil
}

// ParseResponse runs table, JSON and loose-scan parsing over one response in
// that order. JSON bodies are parsed directly. A page whose tables were read
// never reaches the later parsers.
func (e *Extractor) ParseResponse(ctx context.Context, sess *transport.Session, resp *transport.Response, requested string) (Result, error) {
	if resp.IsJSON() {
		items, err := e.ParseJSON(resp.Body)
		if err != nil {
			return Result{}, err
		}
		return Result{Appointments: items, Method: MethodJSON}, nil
	}

	base := resp.URL
	if base == nil {
		var err error
		if base, err = url.Parse(requested); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}
	page, err := discover.Parse(base, resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if res := e.ParseTables(page); res.Settled() {
		return res, nil
	}

	if sess != nil {
		for _, endpoint := range discover.ScriptEndpoints(page, e.cfg.EndpointPatterns, e.cfg.EndpointLimit) {
			items, ok := e.fetchJSON(ctx, sess, endpoint)
			if ok && len(items) > 0 {
				return Result{Appointments: items, Method: MethodJSON, Source: endpoint}, nil
			}
		}
	}

	if items := e.Scan(page); len(items) > 0 {
		return Result{Appointments: items, Method: MethodScan}, nil
	}
	return Result{Appointments: []model.Appointment{}}, nil
}

func (e *Extractor) fetchJSON(ctx context.Context, sess *transport.Session, endpoint string) ([]model.Appointment, bool) {
	resp, err := sess.Get(ctx, endpoint)
	if err != nil || !resp.OK() {
		return nil, false
	}
	items, err := e.ParseJSON(resp.Body)
	if err != nil {
		e.logger.Debug("api endpoint returned unusable payload", slog.String("url", transport.RedactURL(endpoint)), slog.String("error", err.Error()))
		return nil, false
	}
	return items, true
}

func (e *Extractor) matchesMarker(category string) bool {
	marker := e.cfg.CategoryMarker
	if marker == "" {
		return true
	}
	if e.cfg.CategoryCaseInsensitive {
		return strings.Contains(discover.Fold(category), discover.Fold(marker))
	}
	return strings.Contains(category, marker)
}
