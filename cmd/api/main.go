package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Takenobou/sfoweb-appointments/internal/calendar"
	"github.com/Takenobou/sfoweb-appointments/internal/config"
	"github.com/Takenobou/sfoweb-appointments/internal/coordinator"
	"github.com/Takenobou/sfoweb-appointments/internal/logging"
	"github.com/Takenobou/sfoweb-appointments/internal/scraper"
	"github.com/Takenobou/sfoweb-appointments/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load("", nil)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.RequireAccounts(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, closer, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer closer.Close()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	scraperClient, err := scraper.New(scraper.ConfigFrom(cfg), logger)
	if err != nil {
		return err
	}

	calendarBuilder, err := calendar.NewBuilder(calendar.Config{
		Name:        cfg.CalendarName,
		Description: cfg.CalendarDescription,
		Timezone:    cfg.Timezone,
	})
	if err != nil {
		return err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return err
	}

	accounts := make([]coordinator.Account, 0, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		accounts = append(accounts, coordinator.Account{Name: a.Name, Credentials: a.Credentials()})
	}

	metrics := server.NewMetrics()
	coord, err := coordinator.New(coordinator.Config{
		Schedule: cfg.PollSchedule,
		Location: loc,
	}, scraperClient, accounts, metrics, logger)
	if err != nil {
		return err
	}
	if err := coord.Start(ctx); err != nil {
		return err
	}
	defer coord.Stop()

	srv := server.New(cfg, coord, scraperClient, calendarBuilder, metrics, logger)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
