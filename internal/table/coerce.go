package table

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/domain"
)

// Cell values are coerced in priority order before comparison: number (comma
// thousands stripped), date, duration, lowercased string. Blank cells compare
// last regardless of direction.

type valueKind int

const (
	kindBlank valueKind = iota
	kindNumber
	kindDate
	kindDuration
	kindText
)

type cellValue struct {
	kind valueKind
	num  float64
	text string
	raw  string
}

var (
	numberValue   = regexp.MustCompile(`^-?[\d,]+(?:\.\d+)?$`)
	dateValue     = regexp.MustCompile(`^(\d{4})年(\d{1,2})月(\d{1,2})日$`)
	durationValue = regexp.MustCompile(`^(?:(\d+):)?(\d{1,2}):(\d{2})$`)
	placeholders  = map[string]bool{"-": true, "–": true, "—": true}
)

func coerceCell(text string) cellValue {
	s := strings.TrimSpace(text)
	if s == "" || placeholders[s] {
		return cellValue{kind: kindBlank, raw: s}
	}
	if numberValue.MatchString(s) {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64); err == nil {
			return cellValue{kind: kindNumber, num: v, raw: s}
		}
	}
	if m := dateValue.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		return cellValue{kind: kindDate, num: float64(y*10000 + mo*100 + d), raw: s}
	}
	if m := durationValue.FindStringSubmatch(s); m != nil {
		hours := 0
		if m[1] != "" {
			hours, _ = strconv.Atoi(m[1])
		}
		minutes, _ := strconv.Atoi(m[2])
		seconds, _ := strconv.Atoi(m[3])
		return cellValue{kind: kindDuration, num: float64(hours*3600 + minutes*60 + seconds), raw: s}
	}
	return cellValue{kind: kindText, text: strings.ToLower(s), raw: s}
}

// rankValue special-cases the rank column: the extractor already resolved
// avatar markers and positional fallbacks into Record.Rank.
func rankValue(rec domain.Record) cellValue {
	if rec.Rank <= 0 {
		return cellValue{kind: kindBlank}
	}
	return cellValue{kind: kindNumber, num: float64(rec.Rank), raw: strconv.Itoa(rec.Rank)}
}

// A collate.Collator is stateful; the package-level instance is shared across
// controllers and must be serialized.
var (
	collator   = collate.New(language.Und)
	collatorMu sync.Mutex
)

func collateStrings(a, b string) int {
	collatorMu.Lock()
	defer collatorMu.Unlock()
	return collator.CompareString(a, b)
}

// compareValues orders two coerced values. Blanks sort after everything in
// both directions; the direction flip below therefore applies only to the
// non-blank comparison. Cross-type pairs fall back to locale-aware collation.
func compareValues(a, b cellValue, dir domain.SortDirection) int {
	if a.kind == kindBlank && b.kind == kindBlank {
		return 0
	}
	if a.kind == kindBlank {
		return 1
	}
	if b.kind == kindBlank {
		return -1
	}

	var cmp int
	switch {
	case a.kind == kindText && b.kind == kindText:
		cmp = strings.Compare(a.text, b.text)
	case a.kind == b.kind:
		cmp = compareFloats(a.num, b.num)
	default:
		cmp = collateStrings(a.raw, b.raw)
	}
	if dir == domain.SortDescending {
		cmp = -cmp
	}
	return cmp
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
