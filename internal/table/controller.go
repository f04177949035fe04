package table

import (
	"sort"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/domain"
)

// Sort indicator glyphs appended to the sorted column's header text.
const (
	ascIndicator  = " ▲"
	descIndicator = " ▼"
)

// Controller owns the live table's sort state and column visibility. It is
// the only component that rewrites header cells, and it only ever appends or
// strips the sort indicator.
type Controller struct {
	mu         sync.Mutex
	table      *goquery.Selection
	headers    []string
	visibility map[string]bool
	sortState  domain.SortState
	logger     *zap.Logger
}

// NewController takes ownership of the table's headers. Visibility starts
// all-visible, keyed by header text; duplicate or blank header text is an
// accepted ambiguity and is not deduplicated.
func NewController(table *goquery.Selection, logger *zap.Logger) *Controller {
	c := &Controller{
		table:      table,
		visibility: map[string]bool{},
		sortState:  domain.SortState{Column: -1, Direction: domain.SortAscending},
		logger:     logger,
	}
	headerCells(table).Each(func(_ int, cell *goquery.Selection) {
		name := strings.TrimSpace(cell.Text())
		c.headers = append(c.headers, name)
		c.visibility[name] = true
	})
	return c
}

func headerCells(table *goquery.Selection) *goquery.Selection {
	cells := table.Find("thead th")
	if cells.Length() > 0 {
		return cells
	}
	return table.Find("tr").First().Find("th, td")
}

// Headers returns the header text captured at construction, without sort
// indicators.
func (c *Controller) Headers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.headers))
	copy(out, c.headers)
	return out
}

// SortState returns the current sort column and direction.
func (c *Controller) SortState() domain.SortState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sortState
}

// ResetSort returns the table to the unsorted state. Called whenever the
// table is rebuilt.
func (c *Controller) ResetSort() {
	c.mu.Lock()
	c.sortState = domain.SortState{Column: -1, Direction: domain.SortAscending}
	c.mu.Unlock()
	c.updateSortIndicator()
}

// SortByColumn selects a column ascending, or toggles direction when the same
// column is selected twice in a row.
func (c *Controller) SortByColumn(index int) {
	c.mu.Lock()
	if c.sortState.Column == index {
		if c.sortState.Direction == domain.SortAscending {
			c.sortState.Direction = domain.SortDescending
		} else {
			c.sortState.Direction = domain.SortAscending
		}
	} else {
		c.sortState = domain.SortState{Column: index, Direction: domain.SortAscending}
	}
	c.mu.Unlock()
	c.updateSortIndicator()
}

// SortRecords returns a stably ordered copy of records under the current sort
// state. Unsorted state returns the records in their given order.
func (c *Controller) SortRecords(records []domain.Record) []domain.Record {
	c.mu.Lock()
	state := c.sortState
	c.mu.Unlock()

	out := make([]domain.Record, len(records))
	copy(out, records)
	if state.Column < 0 {
		return out
	}

	sort.SliceStable(out, func(i, j int) bool {
		return compareValues(
			recordValue(out[i], state.Column),
			recordValue(out[j], state.Column),
			state.Direction,
		) < 0
	})
	return out
}

func recordValue(rec domain.Record, column int) cellValue {
	if column == 0 {
		return rankValue(rec)
	}
	if rec.Row == nil {
		return cellValue{kind: kindBlank}
	}
	cells := rec.Row.Find("td")
	if column >= cells.Length() {
		return cellValue{kind: kindBlank}
	}
	return coerceCell(cells.Eq(column).Text())
}

// ToggleColumn sets visibility for every column whose header matches name.
func (c *Controller) ToggleColumn(name string, visible bool) {
	c.mu.Lock()
	if _, known := c.visibility[name]; known {
		c.visibility[name] = visible
	}
	c.mu.Unlock()
	c.applyVisibility()
}

// SetAllColumns shows or hides every column atomically.
func (c *Controller) SetAllColumns(visible bool) {
	c.mu.Lock()
	for name := range c.visibility {
		c.visibility[name] = visible
	}
	c.mu.Unlock()
	c.applyVisibility()
}

// Visibility returns a copy of the column visibility map.
func (c *Controller) Visibility() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]bool, len(c.visibility))
	for k, v := range c.visibility {
		out[k] = v
	}
	return out
}

// RenderBody replaces the table body's rows with clones of the given records'
// rows and re-applies the current visibility mask. A table without a tbody is
// left untouched.
func (c *Controller) RenderBody(records []domain.Record) {
	tbody := c.table.Find("tbody").First()
	if tbody.Length() == 0 {
		return
	}
	tbody.Empty()
	for _, rec := range records {
		if rec.Row != nil {
			tbody.AppendSelection(rec.Row.Clone())
		}
	}
	c.applyVisibility()
}

// applyVisibility hides or shows each column's header cell and every body
// cell at that index. Visibility survives sorting and aggregation because
// every re-render ends here.
func (c *Controller) applyVisibility() {
	c.mu.Lock()
	hidden := make([]bool, len(c.headers))
	for i, name := range c.headers {
		hidden[i] = !c.visibility[name]
	}
	c.mu.Unlock()

	setCellDisplay := func(i int, cell *goquery.Selection) {
		if i >= len(hidden) {
			return
		}
		if hidden[i] {
			cell.SetAttr("style", "display: none;")
		} else {
			cell.RemoveAttr("style")
		}
	}
	headerCells(c.table).Each(setCellDisplay)
	c.table.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		row.Find("td").Each(setCellDisplay)
	})
}

// updateSortIndicator maintains a dedicated indicator element inside the
// header cells. Existing header markup is never rewritten; the indicator is
// the only node the controller adds or removes.
func (c *Controller) updateSortIndicator() {
	c.mu.Lock()
	state := c.sortState
	c.mu.Unlock()

	headerCells(c.table).Each(func(i int, cell *goquery.Selection) {
		cell.Find("span[data-sort-indicator]").Remove()
		if i != state.Column {
			return
		}
		glyph := ascIndicator
		if state.Direction == domain.SortDescending {
			glyph = descIndicator
		}
		cell.AppendHtml(`<span data-sort-indicator="">` + glyph + `</span>`)
	})
}

// StripIndicator removes the sort glyph from a header text.
func StripIndicator(header string) string {
	header = strings.TrimSuffix(header, ascIndicator)
	header = strings.TrimSuffix(header, descIndicator)
	return strings.TrimSpace(header)
}
