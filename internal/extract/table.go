package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Takenobou/sfoweb-appointments/internal/discover"
	"github.com/Takenobou/sfoweb-appointments/internal/model"
)

// ParseTables reads every table on the page. The first row of each table is
// a header. A table whose only data row carries an empty-portal phrase adds
// no records; the page is MethodEmpty when no other table yields any. Tables
// holding appointment rows of which none carry the marker yield an empty
// MethodTable result.
func (e *Extractor) ParseTables(page *discover.Page) Result {
	var (
		items    []model.Appointment
		rowsSeen bool
		notice   bool
	)

	tables := page.Doc.Find("table")
	for i := range tables.Nodes {
		table := tables.Eq(i)
		rows := ownRows(table)
		if len(rows) == 0 {
			continue
		}

		data := rows
		if len(rows) > 1 {
			data = rows[1:]
		}
		if len(data) == 1 && e.isEmptyNotice(data[0].Text()) {
			notice = true
			continue
		}
		if len(rows) == 1 {
			continue
		}

		for _, row := range data {
			item, ok := e.parseRow(row)
			if !ok {
				continue
			}
			rowsSeen = true
			if e.matchesMarker(item.Category) {
				items = append(items, item)
			}
		}
	}

	switch {
	case len(items) > 0:
		return Result{Appointments: items, Method: MethodTable}
	case notice:
		return Result{Appointments: []model.Appointment{}, Method: MethodEmpty}
	case rowsSeen:
		return Result{Appointments: []model.Appointment{}, Method: MethodTable}
	}
	return Result{}
}

// parseRow maps a row of at least MinCells cells with a date; the category
// is not checked here.
func (e *Extractor) parseRow(row *goquery.Selection) (model.Appointment, bool) {
	var cells []string
	row.ChildrenFiltered("td, th").Each(func(_ int, c *goquery.Selection) {
		cells = append(cells, discover.CollapseSpace(c.Text()))
	})
	if len(cells) < e.cfg.MinCells {
		return model.Appointment{}, false
	}

	item := model.Appointment{
		Date:      cells[0],
		Category:  cellAt(cells, 1),
		TimeRange: cellAt(cells, 2),
		Comment:   cellAt(cells, 3),
	}
	if item.Date == "" {
		return model.Appointment{}, false
	}
	return item, true
}

func (e *Extractor) isEmptyNotice(text string) bool {
	_, ok := discover.ContainsAny(discover.Fold(text), e.cfg.EmptyPhrases)
	return ok
}

// ownRows returns the rows belonging to table itself, not to nested tables.
func ownRows(table *goquery.Selection) []*goquery.Selection {
	var rows []*goquery.Selection
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.Closest("table").IsSelection(table) {
			rows = append(rows, tr)
		}
	})
	return rows
}

func cellAt(cells []string, i int) string {
	if i < len(cells) {
		return strings.TrimSpace(cells[i])
	}
	return ""
}
