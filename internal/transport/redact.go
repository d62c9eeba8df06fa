package transport

import (
	"net/http"
	"net/url"
	"slices"
	"strings"
)

var (
	sensitiveExactKeys = []string{
		"token", "auth", "key", "secret", "pass", "password", "passwd", "pwd",
		"code", "state", "ticket", "session", "sessionid", "jsessionid",
		"access_token", "refresh_token", "id_token", "client_secret", "api_key",
		"username", "user", "brugernavn", "adgangskode", "email",
	}
	sensitiveSuffixes = []string{"_token", "_secret", "_password", "_passwd", "_key"}
)

// RedactURL masks userinfo and sensitive query values so URLs can be logged.
// Unparseable input is returned as a fixed placeholder.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	if u.User != nil {
		u.User = url.User("***")
	}

	q := u.Query()
	if len(q) == 0 {
		return u.String()
	}
	changed := false
	for key := range q {
		if isSensitiveKey(key) {
			q.Set(key, "***")
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// RedactHeaders returns a copy of h with credentials and cookies masked.
func RedactHeaders(h http.Header) http.Header {
	if h == nil {
		return nil
	}
	masked := h.Clone()
	for _, key := range []string{"Authorization", "Proxy-Authorization", "Cookie", "Set-Cookie"} {
		if masked.Get(key) != "" {
			masked.Set(key, "***")
		}
	}
	return masked
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	if slices.Contains(sensitiveExactKeys, lower) {
		return true
	}
	for _, suffix := range sensitiveSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
