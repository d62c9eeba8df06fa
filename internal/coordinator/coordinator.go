package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/Takenobou/sfoweb-appointments/internal/auth"
	"github.com/Takenobou/sfoweb-appointments/internal/extract"
	"github.com/Takenobou/sfoweb-appointments/internal/model"
	"github.com/Takenobou/sfoweb-appointments/internal/scraper"
)

const defaultSchedule = "@every 6h"

// ErrUnknownAccount is returned for names that are not configured.
var ErrUnknownAccount = errors.New("unknown account")

// Fetcher runs one fetch cycle for a set of credentials.
type Fetcher interface {
	Fetch(ctx context.Context, creds model.Credentials) (scraper.Outcome, error)
}

// Observer is told about every finished cycle.
type Observer interface {
	ObserveFetch(account string, out scraper.Outcome, err error, took time.Duration)
}

// Account is a named set of credentials to poll.
type Account struct {
	Name        string
	Credentials model.Credentials
}

// Snapshot is the last known state of one account.
type Snapshot struct {
	Account      string              `json:"account"`
	Appointments []model.Appointment `json:"appointments"`
	Available    bool                `json:"last_update_success"`
	LastUpdated  time.Time           `json:"last_updated"`
	LastAttempt  time.Time           `json:"last_attempt"`
	LastError    string              `json:"last_error,omitempty"`
	Strategy     string              `json:"strategy,omitempty"`
	Signal       auth.Signal         `json:"signal,omitempty"`
	Method       extract.Method      `json:"method,omitempty"`
	Source       string              `json:"source,omitempty"`
}

// Config controls polling.
type Config struct {
	// Schedule is a robfig/cron expression, e.g. "@every 6h" or "0 7 * * *".
	Schedule string
	Location *time.Location
	// Concurrency caps how many accounts refresh at once. Zero means all.
	Concurrency int
}

type entry struct {
	account Account
	// run serialises fetch cycles for the account.
	run  sync.Mutex
	mu   sync.RWMutex
	snap Snapshot
}

// Coordinator polls the portal for each account on a schedule and keeps the
// last known appointments.
type Coordinator struct {
	cfg      Config
	fetcher  Fetcher
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	order   []string
	entries map[string]*entry

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	initial sync.WaitGroup
}

// New builds a Coordinator. Account names must be unique.
func New(cfg Config, fetcher Fetcher, accounts []Account, observer Observer, logger *slog.Logger) (*Coordinator, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = defaultSchedule
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid poll schedule %q: %w", cfg.Schedule, err)
	}

	c := &Coordinator{
		cfg:      cfg,
		fetcher:  fetcher,
		observer: observer,
		logger:   logger,
		now:      time.Now,
		entries:  make(map[string]*entry, len(accounts)),
	}
	for _, a := range accounts {
		if _, dup := c.entries[a.Name]; dup {
			return nil, fmt.Errorf("duplicate account %q", a.Name)
		}
		c.order = append(c.order, a.Name)
		c.entries[a.Name] = &entry{
			account: a,
			snap:    Snapshot{Account: a.Name, Appointments: []model.Appointment{}},
		}
	}
	return c, nil
}

// Accounts lists account names in configuration order.
func (c *Coordinator) Accounts() []string {
	return append([]string(nil), c.order...)
}

// Snapshot returns a copy of the account's last known state.
func (c *Coordinator) Snapshot(name string) (Snapshot, bool) {
	e, ok := c.entries[name]
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshot(), true
}

// Snapshots returns every account's state in configuration order.
func (c *Coordinator) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.entries[name].snapshot())
	}
	return out
}

// Refresh runs one cycle for the account now, waiting for any cycle already
// in flight for it. A failed cycle keeps the previous appointments.
func (c *Coordinator) Refresh(ctx context.Context, name string) (Snapshot, error) {
	e, ok := c.entries[name]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownAccount, name)
	}

	e.run.Lock()
	defer e.run.Unlock()

	started := c.now()
	out, err := c.fetcher.Fetch(ctx, e.account.Credentials)
	took := c.now().Sub(started)

	e.mu.Lock()
	e.snap.LastAttempt = started
	if err != nil {
		e.snap.Available = false
		e.snap.LastError = err.Error()
	} else {
		e.snap.Appointments = append([]model.Appointment{}, out.Appointments...)
		e.snap.Available = true
		e.snap.LastUpdated = started
		e.snap.LastError = ""
		e.snap.Strategy, e.snap.Signal = out.Strategy, out.Signal
		e.snap.Method, e.snap.Source = out.Method, out.Source
	}
	e.mu.Unlock()

	if c.observer != nil {
		c.observer.ObserveFetch(name, out, err, took)
	}

	logger := c.logger.With(slog.String("account", name), slog.Duration("took", took))
	if err != nil {
		logger.Warn("refresh failed", slog.String("error", err.Error()))
	} else {
		logger.Info("refresh complete", slog.Int("appointments", len(out.Appointments)), slog.String("strategy", out.Strategy))
	}
	return e.snapshot(), err
}

// RefreshAll refreshes every account, concurrently across accounts.
func (c *Coordinator) RefreshAll(ctx context.Context) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	if c.cfg.Concurrency > 0 {
		g.SetLimit(c.cfg.Concurrency)
	}
	for _, name := range c.order {
		g.Go(func() error {
			if _, err := c.Refresh(ctx, name); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Start kicks off an initial refresh in the background and schedules the
// recurring ones. It does not block.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return errors.New("coordinator already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	cl := cronLogger{logger: c.logger}
	sched := cron.New(
		cron.WithLocation(c.cfg.Location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := sched.AddFunc(c.cfg.Schedule, func() { _ = c.RefreshAll(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule refresh: %w", err)
	}

	c.cron, c.cancel = sched, cancel
	c.initial.Add(1)
	go func() {
		defer c.initial.Done()
		_ = c.RefreshAll(ctx)
	}()
	sched.Start()

	c.logger.Info("polling started", slog.String("schedule", c.cfg.Schedule), slog.Int("accounts", len(c.order)))
	return nil
}

// Stop cancels in-flight cycles and waits for them to return.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron == nil {
		return
	}
	c.cancel()
	<-c.cron.Stop().Done()
	c.initial.Wait()
	c.cron, c.cancel = nil, nil
}

func (e *entry) snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.snap
	s.Appointments = append([]model.Appointment{}, e.snap.Appointments...)
	return s
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{slog.String("error", err.Error())}, keysAndValues...)...)
}
