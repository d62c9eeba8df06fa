package auth

import "github.com/Takenobou/sfoweb-appointments/internal/discover"

// Signal names what decided a verdict.
type Signal string

const (
	SignalNone      Signal = ""
	SignalIndicator Signal = "indicator"
	SignalAPI       Signal = "api"
	// SignalAssumed is the weakest signal: no login markers on a page long
	// enough not to be a bare login screen.
	SignalAssumed Signal = "assumed"
)

// Verdict is the outcome of judging one response.
type Verdict struct {
	Authenticated bool
	Signal        Signal
	// Evidence is the keyword or reason behind the verdict.
	Evidence string
}

// Judge classifies response text as authenticated or not using keyword sets.
// It is a heuristic; the portal publishes no contract to check against.
type Judge struct {
	Positive     []string
	Negative     []string
	LoginMarkers []string
	// MinLength enables the assumed-authenticated fallback for texts longer
	// than this many bytes. Zero disables it.
	MinLength int
}

// DefaultPageJudge judges HTML pages returned after a form login.
func DefaultPageJudge() Judge {
	return Judge{
		Positive: []string{
			"dashboard", "aftaler", "appointments", "kalender", "calendar", "schedule",
			"logout", "log out", "logud", "log ud", "log af", "profil", "velkommen", "welcome", "min side",
		},
		Negative: []string{
			"invalid", "ugyldig", "forkert", "login failed", "login error", "log ind fejlede", "fejl ved login",
			"wrong", "mislykkedes", "denied", "afvist",
		},
		LoginMarkers: []string{
			"password", "adgangskode", "username", "brugernavn", "log på", "log ind", "login", "sign in",
		},
		MinLength: 500,
	}
}

// DefaultAPIJudge judges JSON or plain responses from login APIs.
func DefaultAPIJudge() Judge {
	return Judge{
		Positive: []string{"token", "jwt", "session", "success", "authenticated", "user", "profile", "dashboard", "true"},
		Negative: []string{"error", "invalid", "wrong", "failed", "unauthorized", "forbidden", "denied"},
	}
}

// Judge accepts on a positive indicator without a negative one, or else on
// the length fallback. A negative indicator does not block the fallback.
func (j Judge) Judge(text string) Verdict {
	folded := discover.Fold(text)

	hit, positive := discover.ContainsAny(folded, j.Positive)
	miss, negative := discover.ContainsAny(folded, j.Negative)
	if positive && !negative {
		return Verdict{Authenticated: true, Signal: SignalIndicator, Evidence: hit}
	}

	if j.MinLength > 0 && len(folded) > j.MinLength {
		if marker, ok := discover.ContainsAny(folded, j.LoginMarkers); ok {
			return Verdict{Evidence: "login marker: " + marker}
		}
		return Verdict{Authenticated: true, Signal: SignalAssumed, Evidence: "no login markers"}
	}

	if negative {
		return Verdict{Evidence: "negative indicator: " + miss}
	}
	return Verdict{Evidence: "no positive indicator"}
}
