package calendar

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	ics "github.com/arran4/golang-ical"

	"github.com/Takenobou/sfoweb-appointments/internal/model"
)

const (
	productID       = "-//sfoweb-ics//EN"
	uidDomain       = "sfoweb-ics"
	defaultDuration = time.Hour
)

var slugRegex = regexp.MustCompile(`[^a-z0-9]+`)

// Config defines calendar level metadata.
type Config struct {
	Name        string
	Description string
	Timezone    string
}

// Builder transforms scraped appointments into an .ics payload.
type Builder struct {
	cfg      Config
	location *time.Location
	now      func() time.Time
}

// NewBuilder initialises a calendar builder with timezone handling.
func NewBuilder(cfg Config) (*Builder, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("calendar name is required")
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Europe/Copenhagen"
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	return &Builder{
		cfg:      cfg,
		location: loc,
		now:      time.Now,
	}, nil
}

// Build renders one account's appointments. Records without a parseable
// date are skipped; records without a parseable time become all-day events.
func (b *Builder) Build(account string, appointments []model.Appointment) ([]byte, error) {
	now := b.now().In(b.location)

	cal := ics.NewCalendar()
	cal.SetProductId(productID)
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ics.MethodPublish)
	cal.SetName(b.cfg.Name)
	cal.SetXWRTimezone(b.location.String())
	if b.cfg.Description != "" {
		cal.SetDescription(b.cfg.Description)
		cal.SetXWRCalDesc(b.cfg.Description)
	}

	used := make(map[string]int)
	for _, appt := range appointments {
		day, ok := appt.ParseDate(now, b.location)
		if !ok {
			continue
		}

		start, end, timed := appt.ParseTimes(day)
		base := eventID(account, appt, day, start, timed)
		id := base
		if n := used[base]; n > 0 {
			id = strings.Replace(base, "@", fmt.Sprintf("-%d@", n+1), 1)
		}
		used[base]++

		event := cal.AddEvent(id)
		event.SetSummary(summary(appt))
		if desc := eventDescription(appt); desc != "" {
			event.SetDescription(desc)
		}
		if appt.Category != "" {
			event.SetProperty(ics.ComponentPropertyCategories, appt.Category)
		}
		event.SetDtStampTime(now)

		if timed {
			if end.IsZero() {
				end = start.Add(defaultDuration)
			}
			event.SetStartAt(start)
			event.SetEndAt(end)
			addAlarm(event, "-PT1H")
		} else {
			event.SetAllDayStartAt(day)
			event.SetAllDayEndAt(day.AddDate(0, 0, 1))
			addAlarm(event, "-PT6H")
		}
	}

	return []byte(cal.Serialize()), nil
}

func addAlarm(event *ics.VEvent, trigger string) {
	alarm := event.AddAlarm()
	alarm.SetAction(ics.ActionDisplay)
	alarm.SetDescription("SFO appointment reminder")
	alarm.SetTrigger(trigger)
}

func summary(appt model.Appointment) string {
	if appt.Category == "" {
		return "SFO: " + appt.Description()
	}
	return "SFO: " + titleCase(appt.Category)
}

func eventDescription(appt model.Appointment) string {
	var sections []string
	if tr := strings.TrimSpace(appt.TimeRange); tr != "" {
		sections = append(sections, "TIME\n"+tr)
	}
	if comment := strings.TrimSpace(appt.Comment); comment != "" {
		sections = append(sections, formatNoteSection(comment))
	}
	if appt.Unstructured != "" {
		sections = append(sections, appt.Unstructured)
	}
	return strings.Join(sections, "\n\n")
}

func formatNoteSection(note string) string {
	var b strings.Builder
	b.WriteString("NOTE")
	for _, line := range strings.Split(note, "\n") {
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "\n• %s", text)
	}
	return b.String()
}

func eventID(account string, appt model.Appointment, day, start time.Time, timed bool) string {
	stamp := day.Format("20060102")
	if timed {
		stamp += start.Format("1504")
	}
	kind := slug(appt.Category)
	if kind == "" {
		kind = "appointment"
	}
	return fmt.Sprintf("%s-%s-%s@%s", slug(account), kind, stamp, uidDomain)
}

func slug(value string) string {
	lower := strings.ToLower(value)
	lower = slugRegex.ReplaceAllString(lower, "-")
	return strings.Trim(lower, "-")
}

func titleCase(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "Appointment"
	}

	words := strings.Fields(value)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		if r == utf8.RuneError && size == 0 {
			continue
		}

		words[i] = strings.ToUpper(string(r)) + strings.ToLower(w[size:])
	}

	return strings.Join(words, " ")
}
