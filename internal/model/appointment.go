package model

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Appointment is one booking row as rendered by the portal. Fields hold the
// portal's own text; nothing is normalised beyond whitespace trimming.
type Appointment struct {
	Date      string
	Category  string
	TimeRange string
	Comment   string
	// Unstructured holds the full element text for records found by the
	// loose element scan, where no column mapping exists.
	Unstructured string
}

// Description is the primary display value: "date - time_range", falling back
// to whichever part is present, or to the unstructured text.
func (a Appointment) Description() string {
	if a.Unstructured != "" {
		return a.Unstructured
	}

	var parts []string
	for _, p := range []string{a.Date, a.TimeRange} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return strings.TrimSpace(a.Category)
	}
	return strings.Join(parts, " - ")
}

type appointmentJSON struct {
	Date        string `json:"date"`
	Category    string `json:"category"`
	TimeRange   string `json:"time_range"`
	Comment     string `json:"comment"`
	Description string `json:"description"`
}

// MarshalJSON renders the record with its derived description.
func (a Appointment) MarshalJSON() ([]byte, error) {
	return json.Marshal(appointmentJSON{
		Date:        a.Date,
		Category:    a.Category,
		TimeRange:   a.TimeRange,
		Comment:     a.Comment,
		Description: a.Description(),
	})
}

// UnmarshalJSON accepts the shape produced by MarshalJSON. A description that
// differs from the one derivable from date and time_range is kept as
// unstructured text.
func (a *Appointment) UnmarshalJSON(data []byte) error {
	var raw appointmentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Appointment{
		Date:      raw.Date,
		Category:  raw.Category,
		TimeRange: raw.TimeRange,
		Comment:   raw.Comment,
	}
	if raw.Description != "" && raw.Description != a.Description() {
		a.Unstructured = raw.Description
	}
	return nil
}

var (
	isoDate    = regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`)
	nordicDate = regexp.MustCompile(`(\d{1,2})[./\-](\d{1,2})(?:[./\-](\d{2,4}))?`)
	clockTime  = regexp.MustCompile(`(\d{1,2})[:.](\d{2})`)
)

// DatePattern matches the date-like tokens the portal renders. Use
// FindDateToken to locate one in free text.
var DatePattern = regexp.MustCompile(`\d{4}-\d{1,2}-\d{1,2}|\d{1,2}[./\-]\d{1,2}(?:[./\-]\d{2,4})?`)

// FindDateToken returns the first date token in text. Tokens touching a
// digit or a colon, like the "00-16" in "08:00-16:00", are skipped, as are
// tokens that name no calendar day.
func FindDateToken(text string) string {
	ref := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	for _, loc := range DatePattern.FindAllStringIndex(text, -1) {
		if loc[0] > 0 && clockAdjacent(text[loc[0]-1]) {
			continue
		}
		if loc[1] < len(text) && clockAdjacent(text[loc[1]]) {
			continue
		}
		token := text[loc[0]:loc[1]]
		if _, ok := (Appointment{Date: token}).ParseDate(ref, time.UTC); ok {
			return token
		}
	}
	return ""
}

func clockAdjacent(b byte) bool {
	return b == ':' || (b >= '0' && b <= '9')
}

// ParseDate extracts the first date token from the record's date text (or
// the unstructured text when the date is empty). Two-field dates without a
// year are resolved against ref's year.
func (a Appointment) ParseDate(ref time.Time, loc *time.Location) (time.Time, bool) {
	text := a.Date
	if strings.TrimSpace(text) == "" {
		text = a.Unstructured
	}
	if loc == nil {
		loc = time.Local
	}

	if m := isoDate.FindStringSubmatch(text); m != nil {
		return buildDate(atoi(m[1]), atoi(m[2]), atoi(m[3]), loc)
	}

	m := nordicDate.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	year := ref.Year()
	if m[3] != "" {
		year = atoi(m[3])
		if len(m[3]) == 2 {
			year += 2000
		}
	}
	return buildDate(year, atoi(m[2]), atoi(m[1]), loc)
}

// ParseTimes returns the start and, when present, end clock times of the
// time range on the given day.
func (a Appointment) ParseTimes(day time.Time) (start, end time.Time, ok bool) {
	matches := clockTime.FindAllStringSubmatch(a.TimeRange, 2)
	if len(matches) == 0 {
		return time.Time{}, time.Time{}, false
	}

	at := func(m []string) (time.Time, bool) {
		h, mm := atoi(m[1]), atoi(m[2])
		if h > 23 || mm > 59 {
			return time.Time{}, false
		}
		return time.Date(day.Year(), day.Month(), day.Day(), h, mm, 0, 0, day.Location()), true
	}

	start, ok = at(matches[0])
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	if len(matches) > 1 {
		if e, eok := at(matches[1]); eok && e.After(start) {
			end = e
		}
	}
	return start, end, true
}

func buildDate(year, month, day int, loc *time.Location) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// atoi is only fed regexp digit groups.
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
