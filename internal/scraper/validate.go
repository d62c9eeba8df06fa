package scraper

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/Takenobou/sfoweb-appointments/internal/model"
)

// ValidateCredentials performs the cheap setup-time check: both fields
// present and long enough, plus an optional reachability probe of the login
// page. It never attempts a login.
func (s *Scraper) ValidateCredentials(ctx context.Context, creds model.Credentials) bool {
	username := strings.TrimSpace(creds.Username)
	if utf8.RuneCountInString(username) < s.cfg.MinCredentialLength ||
		utf8.RuneCountInString(creds.Password) < s.cfg.MinCredentialLength {
		s.logger.Info("credentials rejected", slog.Any("credentials", creds), slog.String("reason", "too short"))
		return false
	}
	if !s.cfg.ValidateProbe {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ValidateTimeout)
	defer cancel()

	sess, err := s.client.NewSession()
	if err != nil {
		return false
	}
	resp, err := sess.Get(ctx, s.cfg.LoginURL)
	if err != nil {
		s.logger.Warn("login page unreachable", slog.String("error", err.Error()))
		return false
	}
	if resp.StatusCode >= 400 {
		s.logger.Warn("login page returned error status", slog.Int("status", resp.StatusCode))
		return false
	}
	return true
}
