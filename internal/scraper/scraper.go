package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Takenobou/sfoweb-appointments/internal/auth"
	"github.com/Takenobou/sfoweb-appointments/internal/extract"
	"github.com/Takenobou/sfoweb-appointments/internal/model"
	"github.com/Takenobou/sfoweb-appointments/internal/transport"
)

var (
	// ErrUpdateFailed wraps every failure of a fetch cycle. The cycle still
	// returns an empty, non-nil list.
	ErrUpdateFailed = errors.New("appointments update failed")
	// ErrAuthenticationFailed is re-exported for callers that only import
	// the facade.
	ErrAuthenticationFailed = auth.ErrAuthenticationFailed
)

const (
	defaultFetchTimeout        = 120 * time.Second
	defaultValidateTimeout     = 30 * time.Second
	defaultMinCredentialLength = 3
)

// Config describes the portal and how to scrape it.
type Config struct {
	LoginURL        string
	LoginCandidates []string
	AppointmentsURL string
	AlternateURLs   []string
	OAuthPaths      []string

	UserAgent          string
	RequestTimeout     time.Duration
	FetchTimeout       time.Duration
	ValidateTimeout    time.Duration
	InsecureSkipVerify bool
	RequestsPerSecond  float64
	RequestBurst       int

	CategoryMarker          string
	CategoryCaseInsensitive bool
	FilterJSONByCategory    bool
	EmptyPhrases            []string

	SortChronologically bool
	ValidateProbe       bool
	MinCredentialLength int
	Timezone            string
}

// Outcome is one fetch cycle's records plus how they were obtained.
type Outcome struct {
	Appointments []model.Appointment
	Strategy     string
	Signal       auth.Signal
	Method       extract.Method
	Source       string
}

// Scraper sequences authentication and extraction over a fresh session per
// call. It holds no per-call state and is safe for concurrent use.
type Scraper struct {
	cfg       Config
	location  *time.Location
	client    *transport.Client
	auth      *auth.Authenticator
	extractor *extract.Extractor
	logger    *slog.Logger
	now       func() time.Time
}

// New constructs a Scraper instance.
func New(cfg Config, logger *slog.Logger) (*Scraper, error) {
	if cfg.LoginURL == "" || cfg.AppointmentsURL == "" {
		return nil, errors.New("login URL and appointments URL are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Europe/Copenhagen"
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.ValidateTimeout <= 0 {
		cfg.ValidateTimeout = defaultValidateTimeout
	}
	if cfg.MinCredentialLength <= 0 {
		cfg.MinCredentialLength = defaultMinCredentialLength
	}

	client := transport.New(transport.Config{
		UserAgent:          cfg.UserAgent,
		RequestTimeout:     cfg.RequestTimeout,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		RequestsPerSecond:  cfg.RequestsPerSecond,
		Burst:              cfg.RequestBurst,
	}, logger)

	// A page showing the tracked category or the empty-portal notice is only
	// reachable when logged in.
	judge := auth.DefaultPageJudge()
	if cfg.CategoryMarker != "" {
		judge.Positive = append(judge.Positive, cfg.CategoryMarker)
	}
	judge.Positive = append(judge.Positive, cfg.EmptyPhrases...)

	authenticator := auth.New(auth.Config{
		LoginURL:        cfg.LoginURL,
		LoginCandidates: cfg.LoginCandidates,
		ProbeURL:        cfg.AppointmentsURL,
		OAuthPaths:      cfg.OAuthPaths,
	}, auth.WithLogger(logger), auth.WithPageJudge(judge))

	extractor := extract.New(extract.Config{
		PrimaryURL:              cfg.AppointmentsURL,
		AlternateURLs:           cfg.AlternateURLs,
		CategoryMarker:          cfg.CategoryMarker,
		CategoryCaseInsensitive: cfg.CategoryCaseInsensitive,
		FilterJSONByCategory:    cfg.FilterJSONByCategory,
		EmptyPhrases:            cfg.EmptyPhrases,
	}, logger)

	return &Scraper{
		cfg:       cfg,
		location:  loc,
		client:    client,
		auth:      authenticator,
		extractor: extractor,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// FetchAppointments returns the portal's current appointment list. On any
// failure the list is empty and the error wraps ErrUpdateFailed.
func (s *Scraper) FetchAppointments(ctx context.Context, creds model.Credentials) ([]model.Appointment, error) {
	out, err := s.Fetch(ctx, creds)
	return out.Appointments, err
}

// Fetch runs one full cycle and reports provenance alongside the records.
func (s *Scraper) Fetch(ctx context.Context, creds model.Credentials) (out Outcome, err error) {
	logger := s.logger.With(slog.Any("credentials", creds))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("fetch panicked", slog.Any("panic", r))
			out = Outcome{Appointments: []model.Appointment{}}
			err = fmt.Errorf("%w: internal error: %v", ErrUpdateFailed, r)
		}
	}()

	empty := Outcome{Appointments: []model.Appointment{}}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	sess, err := s.client.NewSession()
	if err != nil {
		return empty, fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}

	res, err := s.auth.Login(ctx, sess, creds)
	if err != nil {
		logger.Error("authentication aborted", slog.String("error", err.Error()))
		return empty, fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}
	if !res.Authenticated {
		logger.Error("authentication failed")
		return empty, fmt.Errorf("%w: %w", ErrUpdateFailed, ErrAuthenticationFailed)
	}
	empty.Strategy, empty.Signal = res.Strategy, res.Verdict.Signal

	extracted, err := s.extractor.Fetch(ctx, sess)
	if err != nil {
		logger.Error("extraction failed", slog.String("error", err.Error()))
		return empty, fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}

	items := extracted.Appointments
	if items == nil {
		items = []model.Appointment{}
	}
	if s.cfg.SortChronologically {
		model.SortByDate(items, s.now().In(s.location), s.location)
	}

	return Outcome{
		Appointments: items,
		Strategy:     res.Strategy,
		Signal:       res.Verdict.Signal,
		Method:       extracted.Method,
		Source:       extracted.Source,
	}, nil
}
