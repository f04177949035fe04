package resolve

import (
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/domain"
	"github.com/aoisupersix/strava-leaderboard-enhanced/pkg/utils"
)

// paginationSelectors are candidate containers for the host's pagination
// control, most specific first.
var paginationSelectors = []string{
	"nav.pagination ul.pagination",
	"ul.pagination",
	"nav.pagination",
	"div.pagination",
	"ul.page-numbers",
	".paging",
}

// dedicatedFilterSelectors locate the host's explicit active-filter element,
// the authoritative signal when present.
var dedicatedFilterSelectors = []string{
	"[data-active-filter]",
	".active-filters .filter",
	".leaderboard-filters .selected-filter",
}

// activeClassSelectors are the fallback scan for a filter marked only by an
// active/selected class.
var activeClassSelectors = []string{
	".filters .active",
	".filters .selected",
	".clickable-filters .selected",
	"li.active a[data-filter-type]",
	".btn-group .active",
}

// allowedParams is the fixed allow-list of parameter names ever propagated to
// outbound requests. Anything else on the page's forms or URL stays behind.
var allowedParams = []string{
	"club_id", "filter", "per_page", "partial", "date_range", "age_group", "weight_class",
}

const (
	pageParam = "page"
	// Numbers at or above this are treated as pagination false positives
	// (years, ride ids) rather than page counts.
	maxPlausiblePages = 1000
)

var numberText = regexp.MustCompile(`\b(\d+)\b`)

// Resolver answers pagination and filter questions against one parsed page
// and builds outbound requests that replicate the host's view state.
type Resolver struct {
	doc     *goquery.Document
	pageURL *url.URL
	logger  *zap.Logger
}

func New(doc *goquery.Document, pageURL *url.URL, logger *zap.Logger) *Resolver {
	return &Resolver{doc: doc, pageURL: pageURL, logger: logger}
}

// FindPagination returns the first element matching a pagination selector
// candidate, or false when the page has none.
func (r *Resolver) FindPagination() (*goquery.Selection, bool) {
	for _, selector := range paginationSelectors {
		sel := r.doc.Find(selector).First()
		if sel.Length() > 0 {
			return sel, true
		}
	}
	return nil, false
}

// TotalPages discovers how many leaderboard pages exist. It takes the maximum
// page number found in candidate containers, from both anchor hrefs carrying
// the page parameter and plain numeric text; the search widens to the whole
// document only when no candidate yields more than one page. Never below 1.
func (r *Resolver) TotalPages() int {
	total := 1
	for _, selector := range paginationSelectors {
		r.doc.Find(selector).Each(func(_ int, container *goquery.Selection) {
			if n := scanContainer(container); n > total {
				total = n
			}
		})
	}
	if total > 1 {
		return total
	}

	// No candidate container yielded anything; fall back to any anchor on
	// the page that carries a page parameter.
	r.doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if n := pageFromHref(a.AttrOr("href", "")); n > total {
			total = n
		}
	})
	return total
}

func scanContainer(container *goquery.Selection) int {
	max := 0
	container.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if n := pageFromHref(a.AttrOr("href", "")); n > max {
			max = n
		}
	})
	for _, m := range numberText.FindAllStringSubmatch(container.Text(), -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n < maxPlausiblePages && n > max {
			max = n
		}
	}
	return max
}

func pageFromHref(href string) int {
	parsed, err := url.Parse(href)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(parsed.Query().Get(pageParam))
	if err != nil || n >= maxPlausiblePages {
		return 0
	}
	return n
}

// DetectActiveFilter reports the leaderboard filter the host page currently
// displays. The dedicated active-filter element wins over class-based hints.
func (r *Resolver) DetectActiveFilter() (domain.FilterState, bool) {
	for _, selector := range dedicatedFilterSelectors {
		sel := r.doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		return filterFromSelection(sel), true
	}
	for _, selector := range activeClassSelectors {
		sel := r.doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		return filterFromSelection(sel), true
	}
	return domain.FilterState{}, false
}

func filterFromSelection(sel *goquery.Selection) domain.FilterState {
	state := domain.FilterState{
		FilterType:  sel.AttrOr("data-filter-type", ""),
		FilterValue: sel.AttrOr("data-filter-value", ""),
	}
	text := strings.TrimSpace(sel.Text())
	if state.FilterValue == "" {
		// "Type: Value" display text, or the whole text as the value.
		if before, after, found := strings.Cut(text, ":"); found {
			if state.FilterType == "" {
				state.FilterType = strings.TrimSpace(before)
			}
			state.FilterValue = strings.TrimSpace(after)
		} else {
			state.FilterValue = text
		}
	}
	return state
}

// ExtractFilterParams collects the allow-listed parameters describing the
// current view. Parameters embedded in live pagination links are the most
// accurate signal and take precedence over the current URL's own query; a
// disagreement on the filter value discards the URL side entirely.
func (r *Resolver) ExtractFilterParams() map[string]string {
	fromLinks := r.paginationLinkParams()
	fromURL := allowListed(r.pageURL.Query())

	if len(fromLinks) == 0 {
		return fromURL
	}
	if len(fromURL) == 0 {
		return fromLinks
	}
	if lv, ok := fromLinks["filter"]; ok {
		if uv, ok := fromURL["filter"]; ok && lv != uv {
			r.logger.Debug("pagination links disagree with page url on filter, trusting links",
				zap.String("link_filter", lv), zap.String("url_filter", uv))
			return fromLinks
		}
	}
	merged := make(map[string]string, len(fromURL)+len(fromLinks))
	for k, v := range fromURL {
		merged[k] = v
	}
	for k, v := range fromLinks {
		merged[k] = v
	}
	return merged
}

func (r *Resolver) paginationLinkParams() map[string]string {
	pagination, ok := r.FindPagination()
	if !ok {
		return nil
	}
	var params map[string]string
	pagination.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		abs, err := utils.ToAbsoluteURL(r.pageURL, a.AttrOr("href", ""))
		if err != nil {
			return true
		}
		parsed, err := url.Parse(abs)
		if err != nil {
			return true
		}
		values := allowListed(parsed.Query())
		if len(values) == 0 {
			return true
		}
		params = values
		return false
	})
	return params
}

func allowListed(values url.Values) map[string]string {
	params := map[string]string{}
	for _, name := range allowedParams {
		if v := values.Get(name); v != "" {
			params[name] = v
		}
	}
	return params
}

// CSRFToken reads the host page's CSRF meta tag.
func (r *Resolver) CSRFToken() (string, bool) {
	token := r.doc.Find(`meta[name="csrf-token"]`).AttrOr("content", "")
	return token, token != ""
}

// BuildPageRequest constructs the GET variant for one page: the leaderboard
// path with the allow-listed filter parameters and the page number as query.
// GET mirrors normal link navigation and is tried before POST.
func (r *Resolver) BuildPageRequest(page int) domain.PageRequestSpec {
	params := r.ExtractFilterParams()
	if params == nil {
		params = map[string]string{}
	}
	params[pageParam] = strconv.Itoa(page)
	return domain.PageRequestSpec{
		URL:     r.baseEndpoint(),
		Method:  http.MethodGet,
		Params:  params,
		Headers: baseHeaders(),
	}
}

// BuildPostPageRequest constructs the POST fallback: the same parameters as a
// form body plus the CSRF token, carried both as the authenticity_token field
// and as the X-CSRF-Token header.
func (r *Resolver) BuildPostPageRequest(page int) domain.PageRequestSpec {
	spec := r.BuildPageRequest(page)
	spec.Method = http.MethodPost
	if token, ok := r.CSRFToken(); ok {
		spec.Params["authenticity_token"] = token
		spec.Headers["X-CSRF-Token"] = token
	}
	return spec
}

func (r *Resolver) baseEndpoint() string {
	endpoint := *r.pageURL
	endpoint.RawQuery = ""
	endpoint.Fragment = ""
	return endpoint.String()
}

func baseHeaders() map[string]string {
	return map[string]string{
		"X-Requested-With": "XMLHttpRequest",
		"Accept":           "text/html, application/xhtml+xml",
		"Cache-Control":    "no-cache",
	}
}
