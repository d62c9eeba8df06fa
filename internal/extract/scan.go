package extract

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/Takenobou/sfoweb-appointments/internal/discover"
	"github.com/Takenobou/sfoweb-appointments/internal/model"
)

// ScanSelectors are tried in order; the first selector producing records
// wins.
var ScanSelectors = []string{
	"div[class*=appointment]",
	"div[class*=event]",
	"div[class*=aftale]",
	"div[class*=calendar]",
	"li[class*=appointment]",
	"li[class*=event]",
	".appointment-item",
	".event-item",
	".calendar-item",
	"li, p, td, div:not(:has(div, li, p, table))",
}

const minScanTextLength = 11

// Scan treats elements whose text carries a date token as unstructured
// records.
func (e *Extractor) Scan(page *discover.Page) []model.Appointment {
	for _, selector := range ScanSelectors {
		var items []model.Appointment
		seen := map[string]struct{}{}

		page.Doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := discover.CollapseSpace(s.Text())
			if len(text) < minScanTextLength {
				return true
			}
			token := model.FindDateToken(text)
			if token == "" {
				return true
			}
			if _, dup := seen[text]; dup {
				return true
			}
			seen[text] = struct{}{}
			items = append(items, model.Appointment{Date: token, Unstructured: text})
			return len(items) < e.cfg.ScanLimit
		})

		if len(items) > 0 {
			return items
		}
	}
	return nil
}
