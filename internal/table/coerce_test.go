package table

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/domain"
)

func TestCoerceCellNumbers(t *testing.T) {
	v := coerceCell("1,234.5")
	require.Equal(t, kindNumber, v.kind)
	require.Equal(t, 1234.5, v.num)
}

func TestCoerceCellDate(t *testing.T) {
	v := coerceCell("2024年1月15日")
	require.Equal(t, kindDate, v.kind)
	require.Equal(t, float64(20240115), v.num)
}

func TestCoerceCellDuration(t *testing.T) {
	v := coerceCell("1:02:03")
	require.Equal(t, kindDuration, v.kind)
	require.Equal(t, float64(3723), v.num)

	v = coerceCell("5:30")
	require.Equal(t, kindDuration, v.kind)
	require.Equal(t, float64(330), v.num)
}

func TestCoerceCellText(t *testing.T) {
	v := coerceCell("Jane DOE")
	require.Equal(t, kindText, v.kind)
	require.Equal(t, "jane doe", v.text)
}

func TestCoerceCellBlankAndPlaceholder(t *testing.T) {
	require.Equal(t, kindBlank, coerceCell("").kind)
	require.Equal(t, kindBlank, coerceCell("  ").kind)
	require.Equal(t, kindBlank, coerceCell("-").kind)
}

func TestCompareBlanksLastBothDirections(t *testing.T) {
	blank := coerceCell("")
	num := coerceCell("42")
	for _, dir := range []domain.SortDirection{domain.SortAscending, domain.SortDescending} {
		require.Positive(t, compareValues(blank, num, dir), "blank must sort after values (%s)", dir)
		require.Negative(t, compareValues(num, blank, dir), "values must sort before blanks (%s)", dir)
		require.Zero(t, compareValues(blank, blank, dir))
	}
}

func TestCompareDirectionFlip(t *testing.T) {
	a := coerceCell("10")
	b := coerceCell("20")
	require.Negative(t, compareValues(a, b, domain.SortAscending))
	require.Positive(t, compareValues(a, b, domain.SortDescending))
}

func TestCompareCrossTypeFallsBackToCollation(t *testing.T) {
	num := coerceCell("42")
	text := coerceCell("abc")
	asc := compareValues(num, text, domain.SortAscending)
	desc := compareValues(num, text, domain.SortDescending)
	require.NotZero(t, asc)
	require.Equal(t, -asc, desc)
}
