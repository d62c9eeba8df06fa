package model

import (
	"log/slog"
	"strings"
	"unicode/utf8"
)

// Credentials are the portal login pair. They are passed by value into every
// call and never persisted.
type Credentials struct {
	Username string
	Password string
}

// Empty reports whether either half is missing.
func (c Credentials) Empty() bool {
	return strings.TrimSpace(c.Username) == "" || c.Password == ""
}

// String never includes the password.
func (c Credentials) String() string {
	return MaskUsername(c.Username) + ":***"
}

// LogValue implements slog.LogValuer so credentials can be attached to log
// records without leaking them.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("username", MaskUsername(c.Username)),
		slog.String("password", "***"),
	)
}

// MaskUsername keeps the first two runes and replaces the rest.
func MaskUsername(username string) string {
	username = strings.TrimSpace(username)
	if username == "" {
		return ""
	}
	if utf8.RuneCountInString(username) <= 2 {
		return "***"
	}
	r := []rune(username)
	return string(r[:2]) + "***"
}
