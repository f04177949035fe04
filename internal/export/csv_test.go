package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/domain"
)

func intPtr(v int) *int { return &v }

func TestWriteCSV(t *testing.T) {
	records := []domain.Record{
		{Rank: 1, Name: "Doe, Jane", Date: "2024年1月15日", Speed: 38.2,
			HeartRate: intPtr(185), AverageClimbingSpeed: 1050, Power: intPtr(250),
			Time: "5:30", TimeInSeconds: 330},
		{Rank: 2, Name: "Bob", Time: "5:45", TimeInSeconds: 345},
	}
	headers := []string{"Rank", "Name", "Date", "Speed ▲", "HR", "VAM", "Power", "Time"}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, headers, records))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "\uFEFF"), "output must start with a BOM")

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, len(records)+1)

	// Sort indicator stripped from the header row.
	require.Equal(t, "\uFEFFRank,Name,Date,Speed,HR,VAM,Power,Time", lines[0])

	// Comma-bearing name quoted, optional fields present.
	require.Equal(t, `1,"Doe, Jane",2024年1月15日,38.2,185,1050,250,5:30`, lines[1])

	// Absent optional fields render empty.
	require.Equal(t, "2,Bob,,0,,0,,5:45", lines[2])
}

func TestWriteCSVQuotesEmbeddedQuotes(t *testing.T) {
	records := []domain.Record{{Rank: 1, Name: `Jane "Flash" Doe`, Time: "5:30"}}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []string{"Rank", "Name"}, records))
	require.Contains(t, buf.String(), `"Jane ""Flash"" Doe"`)
}

func TestFilename(t *testing.T) {
	now := time.Date(2024, 1, 15, 13, 45, 30, 0, time.UTC)
	require.Equal(t, "Alpe_20240115134530.csv", Filename("Alpe du Zwift | Leaderboard", now))
	require.Equal(t, "leaderboard_20240115134530.csv", Filename("", now))
	require.Equal(t, "leaderboard_20240115134530.csv", Filename("///", now))
}
