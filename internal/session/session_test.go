package session

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/config"
	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/domain"
)

const leaderboardURL = "https://www.example.com/segments/42/leaderboard"

func leaderboardPage(title string, names ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body>", title)
	b.WriteString("<table><thead><tr><th>Rank</th><th>Name</th><th>Time</th></tr></thead><tbody>")
	for i, name := range names {
		fmt.Fprintf(&b, `<tr><td>%d</td><td><a href="/athletes/%d">%s</a></td><td>5:%02d</td></tr>`, i+1, i+1, name, i)
	}
	b.WriteString("</tbody></table></body></html>")
	return b.String()
}

type stubLoader struct {
	body string
	err  error
	hits int
}

func (s *stubLoader) Get(ctx context.Context, url string) ([]byte, error) {
	s.hits++
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.body), nil
}

type stubRenderer struct {
	body string
	hits int
}

func (s *stubRenderer) FetchRendered(ctx context.Context, url string, headers map[string]string) (string, error) {
	s.hits++
	return s.body, nil
}

type noopFetcher struct{}

func (noopFetcher) Do(ctx context.Context, spec domain.PageRequestSpec) ([]byte, error) {
	return nil, fmt.Errorf("no network in this test")
}

func testConfig() *config.Config {
	return &config.Config{
		PageFetchDelayMS: 1,
		FallbackToPost:   true,
		VAMMin:           100,
		VAMMax:           5000,
	}
}

func newManager(loader *stubLoader) *Manager {
	return NewManager(Deps{
		Loader:  loader,
		Fetcher: noopFetcher{},
		Logger:  zap.NewNop(),
		Config:  testConfig(),
	})
}

func TestLoadBuildsSessionAroundTable(t *testing.T) {
	loader := &stubLoader{body: leaderboardPage("Alpe Climb Leaderboard", "Alice", "Bob")}
	m := newManager(loader)

	resp, err := m.Load(context.Background(), leaderboardURL)
	require.NoError(t, err)
	require.Equal(t, leaderboardURL, resp.URL)
	require.Equal(t, "Alpe Climb Leaderboard", resp.Title)
	require.Equal(t, []string{"Rank", "Name", "Time"}, resp.Headers)
	require.Equal(t, 2, resp.Rows)
	require.Equal(t, 1, resp.TotalPages)

	sess, ok := m.Current()
	require.True(t, ok)
	require.True(t, sess.HasTable())
}

func TestLoadRejectsMalformedURL(t *testing.T) {
	m := newManager(&stubLoader{body: "<html></html>"})
	_, err := m.Load(context.Background(), "not a url")
	require.Error(t, err)
	_, ok := m.Current()
	require.False(t, ok)
}

func TestLoadWithoutTableKeepsOperationsUnavailable(t *testing.T) {
	loader := &stubLoader{body: "<html><head><title>Activity Feed</title></head><body><p>no table here</p></body></html>"}
	m := newManager(loader)

	resp, err := m.Load(context.Background(), leaderboardURL)
	require.NoError(t, err)
	require.Empty(t, resp.Headers)
	require.Zero(t, resp.Rows)

	sess, ok := m.Current()
	require.True(t, ok)
	require.False(t, sess.HasTable())

	_, err = sess.Records()
	require.ErrorIs(t, err, ErrNoTable)
	require.ErrorIs(t, sess.SortByColumn(0), ErrNoTable)
	require.ErrorIs(t, sess.ToggleColumn("Name", false), ErrNoTable)
	_, err = sess.StartAggregation()
	require.ErrorIs(t, err, ErrNoTable)
	_, err = sess.ExportCSV(&bytes.Buffer{}, time.Now())
	require.ErrorIs(t, err, ErrNoTable)
}

func TestLoadUsesRendererWhenConfigured(t *testing.T) {
	loader := &stubLoader{body: "<html></html>"}
	renderer := &stubRenderer{body: leaderboardPage("Rendered", "Alice")}
	cfg := testConfig()
	cfg.RenderJS = true
	m := NewManager(Deps{
		Loader:   loader,
		Renderer: renderer,
		Fetcher:  noopFetcher{},
		Logger:   zap.NewNop(),
		Config:   cfg,
	})

	resp, err := m.Load(context.Background(), leaderboardURL)
	require.NoError(t, err)
	require.Equal(t, "Rendered", resp.Title)
	require.Equal(t, 1, renderer.hits)
	require.Zero(t, loader.hits)
}

func TestHandleEventRebuildsAndResetsSortState(t *testing.T) {
	loader := &stubLoader{body: leaderboardPage("Board", "Alice", "Bob")}
	m := newManager(loader)

	_, err := m.Load(context.Background(), leaderboardURL)
	require.NoError(t, err)
	sess, _ := m.Current()
	require.NoError(t, sess.SortByColumn(1))

	_, err = m.HandleEvent(context.Background(), EventTableReplaced)
	require.NoError(t, err)
	require.Equal(t, 2, loader.hits)

	rebuilt, ok := m.Current()
	require.True(t, ok)
	require.NotSame(t, sess, rebuilt)

	records, err := rebuilt.Records()
	require.NoError(t, err)
	// Fresh session: no sort applied, document order preserved.
	require.Equal(t, "Alice", records[0].Name)
	require.Equal(t, "Bob", records[1].Name)
}

func TestHandleEventWithoutSession(t *testing.T) {
	m := newManager(&stubLoader{body: "<html></html>"})
	_, err := m.HandleEvent(context.Background(), EventPaginationAppeared)
	require.ErrorIs(t, err, ErrNoSession)
}

func TestSortByColumnReordersRecordsAndBody(t *testing.T) {
	loader := &stubLoader{body: leaderboardPage("Board", "Bob", "Alice")}
	m := newManager(loader)
	_, err := m.Load(context.Background(), leaderboardURL)
	require.NoError(t, err)
	sess, _ := m.Current()

	require.NoError(t, sess.SortByColumn(1))
	records, err := sess.Records()
	require.NoError(t, err)
	require.Equal(t, "Alice", records[0].Name)
	require.Equal(t, "Bob", records[1].Name)

	require.Error(t, sess.SortByColumn(99))
}

func TestColumnVisibilityRoundTrip(t *testing.T) {
	loader := &stubLoader{body: leaderboardPage("Board", "Alice")}
	m := newManager(loader)
	_, err := m.Load(context.Background(), leaderboardURL)
	require.NoError(t, err)
	sess, _ := m.Current()

	require.NoError(t, sess.ToggleColumn("Time", false))
	vis, err := sess.Visibility()
	require.NoError(t, err)
	require.False(t, vis["Time"])
	require.True(t, vis["Name"])

	require.NoError(t, sess.SetAllColumns(true))
	vis, err = sess.Visibility()
	require.NoError(t, err)
	require.True(t, vis["Time"])
}

func TestStartAggregationSinglePageCompletes(t *testing.T) {
	loader := &stubLoader{body: leaderboardPage("Board", "Alice", "Bob")}
	m := newManager(loader)
	_, err := m.Load(context.Background(), leaderboardURL)
	require.NoError(t, err)
	sess, _ := m.Current()

	_, err = sess.StartAggregation()
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, statusErr := sess.AggregationStatus()
		return statusErr == nil && status.Phase == domain.AggregationCompleted
	}, time.Second, 5*time.Millisecond)

	records, err := sess.Records()
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func pagedLeaderboard(totalPages int, names ...string) string {
	page := leaderboardPage("Board", names...)
	var pagination strings.Builder
	pagination.WriteString(`<ul class="pagination">`)
	for p := 1; p <= totalPages; p++ {
		fmt.Fprintf(&pagination, `<li><a href="?page=%d">%d</a></li>`, p, p)
	}
	pagination.WriteString("</ul>")
	return strings.Replace(page, "</body>", pagination.String()+"</body>", 1)
}

type pagedFetcher struct {
	pages map[string]string
	gate  chan struct{} // first fetch waits here when set
}

func (f *pagedFetcher) Do(ctx context.Context, spec domain.PageRequestSpec) ([]byte, error) {
	if f.gate != nil {
		<-f.gate
	}
	if body, ok := f.pages[spec.Params["page"]]; ok {
		return []byte(body), nil
	}
	return nil, fmt.Errorf("unexpected page %s", spec.Params["page"])
}

func TestSortAndReadDuringAggregation(t *testing.T) {
	gate := make(chan struct{})
	fetcher := &pagedFetcher{
		pages: map[string]string{"2": leaderboardPage("Board", "Carol", "Dave")},
		gate:  gate,
	}
	m := NewManager(Deps{
		Loader:  &stubLoader{body: pagedLeaderboard(2, "Alice", "Bob")},
		Fetcher: fetcher,
		Logger:  zap.NewNop(),
		Config:  testConfig(),
	})
	_, err := m.Load(context.Background(), leaderboardURL)
	require.NoError(t, err)
	sess, _ := m.Current()

	_, err = sess.StartAggregation()
	require.NoError(t, err)

	// Hammer the table while the page 2 fetch is held open, then release it.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_ = sess.SortByColumn(1)
			_, _ = sess.Records()
			_ = sess.ToggleColumn("Time", i%2 == 0)
		}
	}()
	close(gate)
	<-done

	require.Eventually(t, func() bool {
		status, statusErr := sess.AggregationStatus()
		return statusErr == nil && status.Phase == domain.AggregationCompleted
	}, time.Second, 5*time.Millisecond)

	records, err := sess.Records()
	require.NoError(t, err)
	require.Len(t, records, 4)
}

func TestExportCSVUsesTitleForFilename(t *testing.T) {
	loader := &stubLoader{body: leaderboardPage("Alpe Climb", "Alice")}
	m := newManager(loader)
	_, err := m.Load(context.Background(), leaderboardURL)
	require.NoError(t, err)
	sess, _ := m.Current()

	var buf bytes.Buffer
	now := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	name, err := sess.ExportCSV(&buf, now)
	require.NoError(t, err)
	require.Equal(t, "Alpe_20240301093000.csv", name)
	require.True(t, strings.HasPrefix(buf.String(), "\uFEFF"))
	require.Contains(t, buf.String(), "Alice")
}
