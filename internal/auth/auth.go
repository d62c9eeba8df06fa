// Package auth logs a session into the portal by trying an ordered list of
// strategies and judging each outcome heuristically.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Takenobou/sfoweb-appointments/internal/discover"
	"github.com/Takenobou/sfoweb-appointments/internal/model"
	"github.com/Takenobou/sfoweb-appointments/internal/transport"
)

// ErrAuthenticationFailed means no strategy produced a positive verdict.
var ErrAuthenticationFailed = errors.New("authentication failed")

// Config locates the portal's login surface.
type Config struct {
	LoginURL string
	// LoginCandidates are tried after LoginURL when it is unreachable.
	LoginCandidates []string
	// ProbeURL is requested after an accepted submission to confirm the
	// session. Usually the appointments page.
	ProbeURL   string
	OAuthPaths []string
}

// Result describes a successful login.
type Result struct {
	Authenticated bool
	Strategy      string
	Verdict       Verdict
	Candidates    int
}

// Authenticator runs strategies in priority order.
type Authenticator struct {
	cfg        Config
	discoverer *discover.Discoverer
	pageJudge  Judge
	apiJudge   Judge
	strategies []Strategy
	logger     *slog.Logger
}

// Option customises an Authenticator.
type Option func(*Authenticator)

// WithStrategies replaces the default strategy order.
func WithStrategies(s ...Strategy) Option {
	return func(a *Authenticator) { a.strategies = s }
}

// WithPageJudge replaces the HTML page judge.
func WithPageJudge(j Judge) Option {
	return func(a *Authenticator) { a.pageJudge = j }
}

// WithAPIJudge replaces the login API judge.
func WithAPIJudge(j Judge) Option {
	return func(a *Authenticator) { a.apiJudge = j }
}

// WithDiscoverer replaces the keyword sets used to find links and forms.
func WithDiscoverer(d *discover.Discoverer) Option {
	return func(a *Authenticator) { a.discoverer = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authenticator) {
		if l != nil {
			a.logger = l
		}
	}
}

// New builds an Authenticator with form, API and OAuth strategies in that
// order.
func New(cfg Config, opts ...Option) *Authenticator {
	a := &Authenticator{
		cfg:        cfg,
		discoverer: discover.New(),
		pageJudge:  DefaultPageJudge(),
		apiJudge:   DefaultAPIJudge(),
		logger:     slog.Default(),
		strategies: []Strategy{
			FormStrategy{},
			APIStrategy{},
			OAuthStrategy{Paths: cfg.OAuthPaths},
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Login tries each strategy until one is judged authenticated. A failed
// login is reported through Result, not an error; the error is set only
// when no request of the pass reached the portal at all.
func (a *Authenticator) Login(ctx context.Context, sess *transport.Session, creds model.Credentials) (Result, error) {
	pass := newPass(a, sess, creds)
	logger := a.logger.With(slog.Any("credentials", creds))

	for _, s := range a.strategies {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("authentication interrupted: %w", err)
		}

		v := s.Attempt(ctx, pass)
		if !v.Authenticated {
			logger.Debug("strategy failed", slog.String("strategy", s.Name()), slog.String("reason", v.Evidence))
			continue
		}

		attrs := []any{
			slog.String("strategy", s.Name()),
			slog.String("signal", string(v.Signal)),
			slog.String("evidence", v.Evidence),
		}
		if v.Signal == SignalAssumed {
			logger.Warn("authentication assumed from absent login markers", attrs...)
		} else {
			logger.Info("authenticated", attrs...)
		}
		return Result{
			Authenticated: true,
			Strategy:      s.Name(),
			Verdict:       v,
			Candidates:    len(pass.candidates),
		}, nil
	}

	if pass.responses == 0 && len(pass.errs) > 0 {
		return Result{}, fmt.Errorf("portal unreachable: %w", errors.Join(pass.errs...))
	}
	logger.Warn("all authentication strategies failed", slog.Int("candidates", len(pass.candidates)))
	return Result{Candidates: len(pass.candidates)}, nil
}

func (a *Authenticator) loginCandidates() []string {
	out := []string{}
	seen := map[string]struct{}{}
	for _, u := range append([]string{a.cfg.LoginURL}, a.cfg.LoginCandidates...) {
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
