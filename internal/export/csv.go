package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/domain"
	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/table"
)

// utf8BOM prefixes the output so spreadsheet tools pick up the encoding.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// WriteCSV writes the record set as UTF-8 CSV with a byte-order-mark prefix.
// The header row is the live table's header text with sort indicators
// stripped; each record renders in the fixed column order rank, name, date,
// speed, heart rate, average climbing speed, power, time, with absent
// optional fields left empty.
func WriteCSV(w io.Writer, headers []string, records []domain.Record) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}

	cw := csv.NewWriter(w)
	row := make([]string, len(headers))
	for i, h := range headers {
		row[i] = table.StripIndicator(h)
	}
	if err := cw.Write(row); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, rec := range records {
		if err := cw.Write(recordFields(rec)); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func recordFields(rec domain.Record) []string {
	return []string{
		strconv.Itoa(rec.Rank),
		rec.Name,
		rec.Date,
		formatFloat(rec.Speed),
		formatOptionalInt(rec.HeartRate),
		formatFloat(rec.AverageClimbingSpeed),
		formatOptionalInt(rec.Power),
		rec.Time,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

var unsafeFilename = regexp.MustCompile(`[^\p{L}\p{N}_-]+`)

// Filename derives the export file name from the page title's leading token
// and a compact timestamp.
func Filename(pageTitle string, now time.Time) string {
	prefix := "leaderboard"
	if fields := strings.Fields(pageTitle); len(fields) > 0 {
		if p := unsafeFilename.ReplaceAllString(fields[0], ""); p != "" {
			prefix = p
		}
	}
	return fmt.Sprintf("%s_%s.csv", prefix, now.Format("20060102150405"))
}
