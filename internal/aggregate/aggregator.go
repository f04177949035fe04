package aggregate

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/domain"
	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/extract"
	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/monitoring"
	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/resolve"
	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/table"
)

// PageFetcher executes one outbound page request.
type PageFetcher interface {
	Do(ctx context.Context, spec domain.PageRequestSpec) ([]byte, error)
}

// PageCache stores fetched page bodies keyed by request identity. Optional.
type PageCache interface {
	GetPage(ctx context.Context, identity string) ([]byte, bool)
	SavePage(ctx context.Context, identity string, body []byte) error
}

// SnapshotStore persists completed aggregation runs. Optional.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, sourceURL string, filter *domain.FilterState, records []domain.Record) error
}

// Aggregator fetches every page of a leaderboard sequentially and merges the
// records into one set. At most one run is in flight per table instance; a
// concurrent call observes the in-progress flag and returns the current
// accumulation instead of starting a second network sequence.
type Aggregator struct {
	extractor  *extract.Extractor
	resolver   *resolve.Resolver
	controller *table.Controller
	fetcher    PageFetcher
	cache      PageCache
	snapshots  SnapshotStore
	metrics    *monitoring.Metrics
	logger     *zap.Logger

	doc            *goquery.Document
	sourceURL      string
	delay          time.Duration
	fallbackToPost bool

	// docMu serializes every traversal or mutation of the held document.
	// It is shared with the session owning the document so API operations
	// and a background aggregation run never touch the tree concurrently.
	docMu *sync.Mutex

	mu          sync.Mutex
	inProgress  bool
	accumulated []domain.Record
	status      domain.AggregationStatus

	cancelled atomic.Bool
}

// Options wires an Aggregator. Cache, Snapshots and Metrics may be nil.
type Options struct {
	Extractor  *extract.Extractor
	Resolver   *resolve.Resolver
	Controller *table.Controller
	Fetcher    PageFetcher
	Cache      PageCache
	Snapshots  SnapshotStore
	Metrics    *monitoring.Metrics
	Logger     *zap.Logger

	Document       *goquery.Document
	SourceURL      string
	Delay          time.Duration
	FallbackToPost bool

	// DocLock guards the shared document. Optional; a private lock is used
	// when the aggregator is the document's only user.
	DocLock *sync.Mutex
}

func New(opts Options) *Aggregator {
	if opts.DocLock == nil {
		opts.DocLock = &sync.Mutex{}
	}
	return &Aggregator{
		docMu:          opts.DocLock,
		extractor:      opts.Extractor,
		resolver:       opts.Resolver,
		controller:     opts.Controller,
		fetcher:        opts.Fetcher,
		cache:          opts.Cache,
		snapshots:      opts.Snapshots,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
		doc:            opts.Document,
		sourceURL:      opts.SourceURL,
		delay:          opts.Delay,
		fallbackToPost: opts.FallbackToPost,
		status:         domain.AggregationStatus{Phase: domain.AggregationIdle},
	}
}

// Status returns the observable aggregation state.
func (a *Aggregator) Status() domain.AggregationStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Records returns a copy of the most recent accumulation.
func (a *Aggregator) Records() []domain.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cloneRecords(a.accumulated)
}

// Cancel requests cooperative cancellation. It takes effect between page
// fetches; an in-flight fetch always completes first.
func (a *Aggregator) Cancel() {
	a.cancelled.Store(true)
}

// LoadAllPages fetches pages 2..N strictly sequentially after parsing the
// current page, pacing fetches with a fixed delay to spare the host server.
// The table body is only rewritten once the full merge lands; cancellation
// and errors leave the table untouched.
func (a *Aggregator) LoadAllPages(ctx context.Context) ([]domain.Record, error) {
	a.mu.Lock()
	if a.inProgress {
		snapshot := cloneRecords(a.accumulated)
		a.mu.Unlock()
		a.logger.Info("aggregation already in progress, returning current accumulation",
			zap.Int("records", len(snapshot)))
		return snapshot, nil
	}
	a.inProgress = true
	a.cancelled.Store(false)
	a.accumulated = nil
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.inProgress = false
		a.mu.Unlock()
	}()

	a.docMu.Lock()
	total := a.resolver.TotalPages()
	current := a.extractor.ParseDocument(a.doc)
	a.docMu.Unlock()
	a.update(domain.AggregationRunning, 1, total, current, "")

	if total <= 1 {
		a.finish(ctx, current, total)
		return current, nil
	}

	accumulated := current
	for page := 2; page <= total; page++ {
		if a.cancelled.Load() {
			a.logger.Info("aggregation cancelled",
				zap.Int("fetched_pages", page-1), zap.Int("records", len(accumulated)))
			a.update(domain.AggregationCancelled, page-1, total, accumulated, "")
			a.countOutcome("cancelled")
			return accumulated, nil
		}
		if page > 2 {
			select {
			case <-time.After(a.delay):
			case <-ctx.Done():
				a.update(domain.AggregationCancelled, page-1, total, accumulated, "")
				a.countOutcome("cancelled")
				return accumulated, nil
			}
		}

		records, err := a.fetchPage(ctx, page)
		if err != nil {
			a.logger.Error("aggregation failed", zap.Int("page", page), zap.Error(err))
			a.update(domain.AggregationFailed, page-1, total, accumulated, err.Error())
			a.countOutcome("failed")
			return nil, fmt.Errorf("load page %d: %w", page, err)
		}

		accumulated = append(accumulated, records...)
		a.update(domain.AggregationRunning, page, total, accumulated, "")
	}

	a.finish(ctx, accumulated, total)
	return accumulated, nil
}

// fetchPage tries GET first since it mirrors normal link navigation. POST is
// the fallback, used when GET fails outright or parses zero records.
func (a *Aggregator) fetchPage(ctx context.Context, page int) ([]domain.Record, error) {
	spec := a.resolver.BuildPageRequest(page)
	records, getErr := a.fetchAndParse(ctx, spec)
	if getErr == nil && len(records) > 0 {
		return records, nil
	}
	if getErr != nil {
		a.countError("get_failed")
	}

	if !a.fallbackToPost {
		return records, getErr
	}

	a.logger.Debug("falling back to POST",
		zap.Int("page", page), zap.Error(getErr), zap.Int("get_records", len(records)))
	post := a.resolver.BuildPostPageRequest(page)
	postRecords, postErr := a.fetchAndParse(ctx, post)
	if postErr != nil {
		a.countError("post_failed")
		if getErr != nil {
			return nil, fmt.Errorf("GET (%v) and POST both failed: %w", getErr, postErr)
		}
		// GET succeeded at the transport level; when POST cannot do better,
		// the page is accepted as empty.
		a.logger.Warn("POST fallback failed after empty GET, accepting empty page",
			zap.Int("page", page), zap.Error(postErr))
		return records, nil
	}
	return postRecords, nil
}

func (a *Aggregator) fetchAndParse(ctx context.Context, spec domain.PageRequestSpec) ([]domain.Record, error) {
	identity := requestIdentity(spec)
	var body []byte
	cached := false
	if a.cache != nil && spec.Method == http.MethodGet {
		body, cached = a.cache.GetPage(ctx, identity)
	}
	if !cached {
		start := time.Now()
		fetched, err := a.fetcher.Do(ctx, spec)
		if a.metrics != nil {
			a.metrics.FetchDuration.Observe(time.Since(start).Seconds())
		}
		if err != nil {
			return nil, err
		}
		body = fetched
		if a.metrics != nil {
			a.metrics.IncPagesFetched(spec.Method)
		}
		if a.cache != nil && spec.Method == http.MethodGet {
			if cacheErr := a.cache.SavePage(ctx, identity, body); cacheErr != nil {
				a.logger.Warn("failed to cache page", zap.Error(cacheErr))
			}
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page body: %w", err)
	}
	return a.extractor.ParseDocument(doc), nil
}

// finish renders the merged set into the live table, hides the native
// pagination (it no longer reflects the merged view) and persists the run.
func (a *Aggregator) finish(ctx context.Context, records []domain.Record, total int) {
	a.docMu.Lock()
	a.controller.RenderBody(a.controller.SortRecords(records))
	if pagination, ok := a.resolver.FindPagination(); ok {
		pagination.SetAttr("style", "display: none;")
	}
	a.docMu.Unlock()

	if a.snapshots != nil {
		filter, hasFilter := a.resolver.DetectActiveFilter()
		var filterPtr *domain.FilterState
		if hasFilter {
			filterPtr = &filter
		}
		if err := a.snapshots.SaveSnapshot(ctx, a.sourceURL, filterPtr, records); err != nil {
			a.logger.Warn("failed to persist aggregation snapshot", zap.Error(err))
		}
	}

	a.update(domain.AggregationCompleted, total, total, records, "")
	a.countOutcome("completed")
	a.logger.Info("aggregation completed",
		zap.Int("pages", total), zap.Int("records", len(records)))
}

func (a *Aggregator) update(phase domain.AggregationPhase, current, total int, records []domain.Record, failReason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accumulated = records
	a.status = domain.AggregationStatus{
		Phase:       phase,
		CurrentPage: current,
		TotalPages:  total,
		Records:     len(records),
		FailReason:  failReason,
		UpdatedAt:   time.Now(),
	}
}

func (a *Aggregator) countOutcome(outcome string) {
	if a.metrics != nil {
		a.metrics.IncAggregations(outcome)
	}
}

func (a *Aggregator) countError(errorType string) {
	if a.metrics != nil {
		a.metrics.IncFetchErrors(errorType)
	}
}

// requestIdentity canonicalizes a request spec for cache keying.
func requestIdentity(spec domain.PageRequestSpec) string {
	keys := make([]string, 0, len(spec.Params))
	for k := range spec.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(spec.Method)
	b.WriteByte(' ')
	b.WriteString(spec.URL)
	for _, k := range keys {
		b.WriteByte('&')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(spec.Params[k])
	}
	return b.String()
}

func cloneRecords(records []domain.Record) []domain.Record {
	out := make([]domain.Record, len(records))
	copy(out, records)
	return out
}
