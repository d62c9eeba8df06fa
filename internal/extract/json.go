package extract

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Takenobou/sfoweb-appointments/internal/model"
)

// Keys searched for the record list and, per attribute, the synonyms tried
// in order.
var (
	ListKeys     = []string{"appointments", "aftaler", "events", "calendar", "data", "items", "results"}
	DateKeys     = []string{"date", "dato", "start", "startDate", "start_date", "appointment_date"}
	CategoryKeys = []string{"category", "type", "what", "title", "description", "beskrivelse", "navn", "name", "subject"}
	TimeKeys     = []string{"time_range", "time", "tid", "start_time", "startTime", "hour"}
	CommentKeys  = []string{"comment", "kommentar", "note", "notes", "remarks"}
)

// ParseJSON maps a JSON array, or an object holding one under a list key,
// to appointments.
func (e *Extractor) ParseJSON(body []byte) ([]model.Appointment, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformedResponse)
	}
	root := gjson.ParseBytes(body)

	list, ok := findList(root)
	if !ok {
		return nil, fmt.Errorf("%w: no appointment list in payload", ErrMalformedResponse)
	}

	items := []model.Appointment{}
	list.ForEach(func(_, rec gjson.Result) bool {
		if !rec.IsObject() {
			return true
		}
		item := model.Appointment{
			Date:      firstString(rec, DateKeys),
			Category:  firstString(rec, CategoryKeys),
			TimeRange: firstString(rec, TimeKeys),
			Comment:   firstString(rec, CommentKeys),
		}
		if item.Date == "" && item.Category == "" {
			return true
		}
		if e.cfg.FilterJSONByCategory && !e.matchesMarker(item.Category) {
			return true
		}
		items = append(items, item)
		return true
	})
	return items, nil
}

func findList(root gjson.Result) (gjson.Result, bool) {
	if root.IsArray() {
		return root, true
	}
	if !root.IsObject() {
		return gjson.Result{}, false
	}
	for _, key := range ListKeys {
		v := root.Get(gjson.Escape(key))
		if v.IsArray() {
			return v, true
		}
		if v.IsObject() {
			if nested, ok := findList(v); ok {
				return nested, true
			}
		}
	}
	return gjson.Result{}, false
}

func firstString(rec gjson.Result, keys []string) string {
	for _, key := range keys {
		v := rec.Get(gjson.Escape(key))
		if !v.Exists() || v.Type == gjson.Null {
			continue
		}
		if s := strings.TrimSpace(v.String()); s != "" {
			return s
		}
	}
	return ""
}
