package resolve

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/domain"
)

func newResolver(t *testing.T, html, pageURL string) *Resolver {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	u, err := url.Parse(pageURL)
	require.NoError(t, err)
	return New(doc, u, zap.NewNop())
}

const leaderboardURL = "https://www.example.com/segments/1234/leaderboard"

func TestTotalPagesFromAnchors(t *testing.T) {
	html := `<ul class="pagination">
		<li><a href="?page=3">3</a></li>
		<li><a href="?page=1">1</a></li>
		<li><a href="?page=7">7</a></li>
		<li><a href="?page=2024">2024</a></li>
	</ul>`
	r := newResolver(t, html, leaderboardURL)
	require.Equal(t, 7, r.TotalPages())
}

func TestTotalPagesFromNumericText(t *testing.T) {
	html := `<div class="pagination"><span>1</span> <span>…</span> <span>12</span></div>`
	r := newResolver(t, html, leaderboardURL)
	require.Equal(t, 12, r.TotalPages())
}

func TestTotalPagesIgnoresImplausibleNumbers(t *testing.T) {
	html := `<div class="pagination"><span>1</span> <span>2024</span></div>`
	r := newResolver(t, html, leaderboardURL)
	require.Equal(t, 1, r.TotalPages())
}

func TestTotalPagesWidensToDocument(t *testing.T) {
	html := `<div class="content"><a href="?page=4">next</a></div>`
	r := newResolver(t, html, leaderboardURL)
	require.Equal(t, 4, r.TotalPages())
}

func TestTotalPagesDefaultsToOne(t *testing.T) {
	r := newResolver(t, "<p>no pagination here</p>", leaderboardURL)
	require.Equal(t, 1, r.TotalPages())
}

func TestFindPaginationPrefersSpecificSelectors(t *testing.T) {
	html := `<div class="pagination">outer</div>
		<nav class="pagination"><ul class="pagination"><li>inner</li></ul></nav>`
	r := newResolver(t, html, leaderboardURL)
	sel, ok := r.FindPagination()
	require.True(t, ok)
	require.Equal(t, "inner", strings.TrimSpace(sel.Text()))
}

func TestDetectActiveFilterDedicatedElement(t *testing.T) {
	html := `<span data-active-filter data-filter-type="date_range" data-filter-value="this_year"></span>
		<ul class="filters"><li class="active">Following</li></ul>`
	r := newResolver(t, html, leaderboardURL)
	filter, ok := r.DetectActiveFilter()
	require.True(t, ok)
	require.Equal(t, domain.FilterState{FilterType: "date_range", FilterValue: "this_year"}, filter)
}

func TestDetectActiveFilterClassFallback(t *testing.T) {
	html := `<ul class="filters"><li class="active">Following</li></ul>`
	r := newResolver(t, html, leaderboardURL)
	filter, ok := r.DetectActiveFilter()
	require.True(t, ok)
	require.Equal(t, "Following", filter.FilterValue)
}

func TestDetectActiveFilterAbsent(t *testing.T) {
	r := newResolver(t, "<p>nothing</p>", leaderboardURL)
	_, ok := r.DetectActiveFilter()
	require.False(t, ok)
}

func TestExtractFilterParamsPaginationWinsConflicts(t *testing.T) {
	html := `<ul class="pagination">
		<li><a href="?page=2&filter=club&club_id=99">2</a></li>
	</ul>`
	r := newResolver(t, html, leaderboardURL+"?filter=overall&per_page=25")
	params := r.ExtractFilterParams()
	// Disagreement on filter discards the URL side entirely.
	require.Equal(t, map[string]string{"filter": "club", "club_id": "99"}, params)
}

func TestExtractFilterParamsMergesWhenNoConflict(t *testing.T) {
	html := `<ul class="pagination">
		<li><a href="?page=2&filter=overall&date_range=this_year">2</a></li>
	</ul>`
	r := newResolver(t, html, leaderboardURL+"?filter=overall&per_page=25")
	params := r.ExtractFilterParams()
	require.Equal(t, map[string]string{
		"filter":     "overall",
		"date_range": "this_year",
		"per_page":   "25",
	}, params)
}

func TestExtractFilterParamsAllowListOnly(t *testing.T) {
	r := newResolver(t, "<p></p>", leaderboardURL+"?filter=overall&utm_source=mail&user_id=7")
	params := r.ExtractFilterParams()
	require.Equal(t, map[string]string{"filter": "overall"}, params)
}

func TestBuildPageRequestGet(t *testing.T) {
	r := newResolver(t, "<p></p>", leaderboardURL+"?filter=overall")
	spec := r.BuildPageRequest(3)
	require.Equal(t, "GET", spec.Method)
	require.Equal(t, leaderboardURL, spec.URL)
	require.Equal(t, "3", spec.Params["page"])
	require.Equal(t, "overall", spec.Params["filter"])
	require.Equal(t, "XMLHttpRequest", spec.Headers["X-Requested-With"])
	require.Equal(t, "no-cache", spec.Headers["Cache-Control"])
	require.NotEmpty(t, spec.Headers["Accept"])
}

func TestBuildPostPageRequestCarriesCSRF(t *testing.T) {
	html := `<head><meta name="csrf-token" content="tok123"></head>`
	r := newResolver(t, html, leaderboardURL)
	spec := r.BuildPostPageRequest(2)
	require.Equal(t, "POST", spec.Method)
	require.Equal(t, "tok123", spec.Params["authenticity_token"])
	require.Equal(t, "tok123", spec.Headers["X-CSRF-Token"])
	require.Equal(t, "2", spec.Params["page"])
}

func TestBuildPostPageRequestWithoutCSRF(t *testing.T) {
	r := newResolver(t, "<p></p>", leaderboardURL)
	spec := r.BuildPostPageRequest(2)
	require.Equal(t, "POST", spec.Method)
	_, hasToken := spec.Params["authenticity_token"]
	require.False(t, hasToken)
}

func TestBuildPageRequestFreshPerCall(t *testing.T) {
	r := newResolver(t, "<p></p>", leaderboardURL)
	a := r.BuildPageRequest(2)
	b := r.BuildPageRequest(3)
	require.Equal(t, "2", a.Params["page"])
	require.Equal(t, "3", b.Params["page"])
}
