package model

import (
	"sort"
	"time"
)

// SortByDate orders appointments by their parsed date and start time. Records
// whose date cannot be parsed keep their relative order after the rest.
func SortByDate(items []Appointment, ref time.Time, loc *time.Location) {
	type keyed struct {
		at time.Time
		ok bool
	}
	keys := make(map[int]keyed, len(items))
	idx := make([]int, len(items))
	for i, item := range items {
		idx[i] = i
		day, ok := item.ParseDate(ref, loc)
		if ok {
			if start, _, tok := item.ParseTimes(day); tok {
				day = start
			}
		}
		keys[i] = keyed{at: day, ok: ok}
	}

	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		if ka.ok != kb.ok {
			return ka.ok
		}
		if !ka.ok {
			return false
		}
		return ka.at.Before(kb.at)
	})

	sorted := make([]Appointment, len(items))
	for i, j := range idx {
		sorted[i] = items[j]
	}
	copy(items, sorted)
}
