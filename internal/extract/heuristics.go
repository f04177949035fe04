package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// The host markup's column order is not considered stable, so every field is
// fuzzy-located: scanned over a bounded cell window against an ordered list of
// unit-suffixed patterns. Each heuristic lives here as a named table so it can
// be tested and tuned on its own.

// cellWindow bounds a scan over row cells, both ends inclusive. A Last beyond
// the row is clamped to the final cell.
type cellWindow struct {
	First int
	Last  int
}

// metricRule locates one numeric field. The first pattern to match, walking
// cells in document order, wins. Capture group 1 holds the numeric text.
type metricRule struct {
	Name     string
	Window   cellWindow
	Patterns []*regexp.Regexp
}

var speedRule = metricRule{
	Name:   "speed",
	Window: cellWindow{First: 2, Last: 5},
	Patterns: []*regexp.Regexp{
		regexp.MustCompile(`([\d,]+(?:\.\d+)?)\s*km/h`),
		regexp.MustCompile(`([\d,]+(?:\.\d+)?)\s*mph`),
	},
}

var heartRateRule = metricRule{
	Name:   "heart_rate",
	Window: cellWindow{First: 2, Last: 6},
	Patterns: []*regexp.Regexp{
		regexp.MustCompile(`([\d,]+)\s*bpm`),
		regexp.MustCompile(`♥\s*([\d,]+)`),
		regexp.MustCompile(`([\d,]+)\s*♥`),
	},
}

var powerRule = metricRule{
	Name:   "power",
	Window: cellWindow{First: 2, Last: 7},
	Patterns: []*regexp.Regexp{
		regexp.MustCompile(`([\d,]+(?:\.\d+)?)\s*W\b`),
		regexp.MustCompile(`([\d,]+(?:\.\d+)?)\s*watts`),
	},
}

var climbSpeedRule = metricRule{
	Name:   "average_climbing_speed",
	Window: cellWindow{First: 2, Last: 7},
	Patterns: []*regexp.Regexp{
		regexp.MustCompile(`([\d,]+(?:\.\d+)?)\s*m/min`),
		regexp.MustCompile(`VAM\s*:?\s*([\d,]+(?:\.\d+)?)`),
	},
}

// vamFallback treats a bare unitless number in a fixed column as climbing
// speed, but only inside a plausible range and only when the cell carries no
// date or time markers. Without the guard, dates and durations in adjacent
// columns would be misread as the metric.
type vamFallback struct {
	Cell     int
	Min, Max float64
	Bare     *regexp.Regexp
	Reject   *regexp.Regexp
}

var defaultVAMFallback = vamFallback{
	Cell:   4,
	Min:    100,
	Max:    5000,
	Bare:   regexp.MustCompile(`^[\d,]+(?:\.\d+)?$`),
	Reject: regexp.MustCompile(`[:/年月日-]`),
}

// athleteLinkPattern identifies profile links whose path carries an athlete id.
var athleteLinkPattern = regexp.MustCompile(`/athletes/\d+`)

// avatarMarkers are class or src substrings implying a first-place avatar cell.
var avatarMarkers = []string{"avatar", "profile"}

// timePattern matches MM:SS with an optional leading hour component.
var timePattern = regexp.MustCompile(`(?:(\d+):)?(\d{1,2}):(\d{2})`)

// timeWindowSize limits the elapsed-time scan to the trailing cells of a row.
const timeWindowSize = 3

// datePatterns recognize the display formats the host emits for ride dates.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}年\d{1,2}月\d{1,2}日`),
	regexp.MustCompile(`\d{4}/\d{1,2}/\d{1,2}`),
	regexp.MustCompile(`\d{1,2} [A-Z][a-z]{2} \d{4}`),
	regexp.MustCompile(`[A-Z][a-z]{2} \d{1,2}, \d{4}`),
}

// dateWindow bounds the date scan to the early columns, past the rank cell.
var dateWindow = cellWindow{First: 1, Last: 4}

// nameCellIndex is the designated name column when no athlete link is found.
const nameCellIndex = 1

// nameLinkScanCells is how many leading cells are scanned for an athlete link.
const nameLinkScanCells = 3

// rankDigits pulls a literal rank out of the rank cell's text.
var rankDigits = regexp.MustCompile(`^\d+`)

// hasAvatarMarker reports whether the cell contains an avatar-like image,
// judged by img presence plus class/src markers.
func hasAvatarMarker(cell *goquery.Selection) bool {
	found := false
	cell.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		class := strings.ToLower(img.AttrOr("class", ""))
		src := strings.ToLower(img.AttrOr("src", ""))
		for _, marker := range avatarMarkers {
			if strings.Contains(class, marker) || strings.Contains(src, marker) {
				found = true
				return false
			}
		}
		return true
	})
	if found {
		return true
	}
	class := strings.ToLower(cell.AttrOr("class", ""))
	for _, marker := range avatarMarkers {
		if strings.Contains(class, marker) {
			return true
		}
	}
	return false
}
