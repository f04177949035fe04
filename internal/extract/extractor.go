package extract

import (
	"math"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/domain"
)

// cellText flattens a cell into normalized text: text nodes joined in
// document order, non-breaking spaces replaced with plain spaces, whitespace
// runs collapsed. Markup often splits a value and its unit into separate
// nodes, which would otherwise defeat the unit patterns.
func cellText(sel *goquery.Selection) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			parts = append(parts, n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, node := range sel.Nodes {
		walk(node)
	}
	joined := strings.ReplaceAll(strings.Join(parts, " "), "\u00a0", " ")
	return strings.Join(strings.Fields(joined), " ")
}

// minViableCells is the smallest row shape still treated as a leaderboard entry.
const minViableCells = 3

// Extractor turns leaderboard table rows into Records. It holds no state
// beyond its tunables and is safe for concurrent use.
type Extractor struct {
	vam vamFallback
}

// Options tunes the bare-number climbing speed fallback. Zero values keep
// the defaults.
type Options struct {
	VAMMin float64
	VAMMax float64
}

func New(opts Options) *Extractor {
	vam := defaultVAMFallback
	if opts.VAMMin > 0 {
		vam.Min = opts.VAMMin
	}
	if opts.VAMMax > 0 {
		vam.Max = opts.VAMMax
	}
	return &Extractor{vam: vam}
}

// ParseRow extracts a Record from one table row. It returns false only when
// the row has fewer than three cells; a missing numeric field never fails the
// row, the field just keeps its zero default.
func (e *Extractor) ParseRow(row *goquery.Selection, positionalIndex int) (domain.Record, bool) {
	cells := row.Find("td")
	if cells.Length() < minViableCells {
		return domain.Record{}, false
	}

	rec := domain.Record{Row: row}
	rec.Rank = extractRank(cells, positionalIndex)
	rec.Name = extractName(cells)
	rec.Date = extractDate(cells)
	rec.Speed, _ = scanMetric(cells, speedRule)

	if hr, ok := scanMetric(cells, heartRateRule); ok {
		v := int(math.Round(hr))
		rec.HeartRate = &v
	}
	if pw, ok := scanMetric(cells, powerRule); ok {
		v := int(math.Round(pw))
		rec.Power = &v
	}

	climb, ok := scanMetric(cells, climbSpeedRule)
	if !ok {
		climb = e.vamFromBareNumber(cells)
	}
	rec.AverageClimbingSpeed = climb

	rec.Time, rec.TimeInSeconds = extractTime(cells)
	return rec, true
}

// ParseTable extracts every viable row of the table's body, skipping rows
// that fail the minimal shape check.
func (e *Extractor) ParseTable(table *goquery.Selection) []domain.Record {
	var records []domain.Record
	table.Find("tbody tr").Each(func(i int, row *goquery.Selection) {
		if rec, ok := e.ParseRow(row, i); ok {
			records = append(records, rec)
		}
	})
	return records
}

// ParseDocument extracts records from the first leaderboard-shaped table of a
// parsed page. A document without such a table yields no records, not an error.
func (e *Extractor) ParseDocument(doc *goquery.Document) []domain.Record {
	table := FindTable(doc)
	if table == nil {
		return nil
	}
	return e.ParseTable(table)
}

// FindTable locates the leaderboard table: the first table whose body has at
// least one row with the minimal viable cell count.
func FindTable(doc *goquery.Document) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		viable := false
		table.Find("tbody tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
			if row.Find("td").Length() >= minViableCells {
				viable = true
				return false
			}
			return true
		})
		if viable {
			found = table
			return false
		}
		return true
	})
	return found
}

func extractRank(cells *goquery.Selection, positionalIndex int) int {
	first := cells.Eq(0)
	text := cellText(first)
	if m := rankDigits.FindString(text); m != "" {
		if n, err := strconv.Atoi(m); err == nil && n >= 1 {
			return n
		}
	}
	// Top placement is often rendered as an avatar instead of a number.
	if hasAvatarMarker(first) {
		return 1
	}
	return positionalIndex + 1
}

func extractName(cells *goquery.Selection) string {
	name := ""
	limit := nameLinkScanCells
	if cells.Length() < limit {
		limit = cells.Length()
	}
	for i := 0; i < limit && name == ""; i++ {
		cells.Eq(i).Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			if athleteLinkPattern.MatchString(a.AttrOr("href", "")) {
				name = strings.TrimSpace(a.Text())
				return false
			}
			return true
		})
	}
	if name == "" {
		name = cellText(cells.Eq(nameCellIndex))
	}
	return name
}

func extractDate(cells *goquery.Selection) string {
	last := dateWindow.Last
	if last >= cells.Length() {
		last = cells.Length() - 1
	}
	for i := dateWindow.First; i <= last; i++ {
		text := cellText(cells.Eq(i))
		for _, p := range datePatterns {
			if p.MatchString(text) {
				return text
			}
		}
	}
	return ""
}

// scanMetric walks the rule's cell window in document order and returns the
// first pattern hit.
func scanMetric(cells *goquery.Selection, rule metricRule) (float64, bool) {
	last := rule.Window.Last
	if last >= cells.Length() {
		last = cells.Length() - 1
	}
	for i := rule.Window.First; i <= last; i++ {
		text := cellText(cells.Eq(i))
		for _, p := range rule.Patterns {
			if m := p.FindStringSubmatch(text); m != nil {
				if v, err := parseNumber(m[1]); err == nil {
					return v, true
				}
			}
		}
	}
	return 0, false
}

// vamFromBareNumber is the last-resort climbing speed heuristic: a bare
// unitless number in the fallback column, inside the plausible range, with no
// date/time markers in the cell text.
func (e *Extractor) vamFromBareNumber(cells *goquery.Selection) float64 {
	if e.vam.Cell >= cells.Length() {
		return 0
	}
	text := cellText(cells.Eq(e.vam.Cell))
	if text == "" || e.vam.Reject.MatchString(text) || !e.vam.Bare.MatchString(text) {
		return 0
	}
	v, err := parseNumber(text)
	if err != nil || v < e.vam.Min || v > e.vam.Max {
		return 0
	}
	return v
}

func extractTime(cells *goquery.Selection) (string, int) {
	n := cells.Length()
	start := n - timeWindowSize
	if start < 0 {
		start = 0
	}
	for i := start; i < n; i++ {
		text := cellText(cells.Eq(i))
		if m := timePattern.FindStringSubmatch(text); m != nil {
			return m[0], timeToSeconds(m)
		}
	}
	return "", 0
}

func timeToSeconds(m []string) int {
	hours := 0
	if m[1] != "" {
		hours, _ = strconv.Atoi(m[1])
	}
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	return hours*3600 + minutes*60 + seconds
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
}
