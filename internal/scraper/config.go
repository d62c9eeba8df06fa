package scraper

import "github.com/Takenobou/sfoweb-appointments/internal/config"

// ConfigFrom maps the loaded runtime configuration onto the facade's.
func ConfigFrom(c config.Config) Config {
	return Config{
		LoginURL:                c.LoginURL,
		LoginCandidates:         c.LoginCandidates,
		AppointmentsURL:         c.AppointmentsURL,
		AlternateURLs:           c.AlternateURLs,
		OAuthPaths:              c.OAuthPaths,
		UserAgent:               c.UserAgent,
		RequestTimeout:          c.RequestTimeout,
		FetchTimeout:            c.FetchTimeout,
		ValidateTimeout:         c.ValidateTimeout,
		InsecureSkipVerify:      c.InsecureSkipVerify,
		RequestsPerSecond:       c.RequestsPerSecond,
		RequestBurst:            c.RequestBurst,
		CategoryMarker:          c.CategoryMarker,
		CategoryCaseInsensitive: c.CategoryCaseInsensitive,
		FilterJSONByCategory:    c.FilterJSONByCategory,
		EmptyPhrases:            c.EmptyPhrases,
		SortChronologically:     c.SortChronologically,
		ValidateProbe:           c.ValidateProbe,
		MinCredentialLength:     c.MinCredentialLength,
		Timezone:                c.Timezone,
	}
}
