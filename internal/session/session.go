package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/aggregate"
	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/config"
	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/domain"
	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/export"
	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/extract"
	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/monitoring"
	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/resolve"
	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/table"
)

// Event is an external page-lifecycle signal. The session layer reacts to
// events; it does not watch for page mutations itself.
type Event string

const (
	EventTableReplaced      Event = "table-replaced"
	EventPaginationAppeared Event = "pagination-appeared"
)

// ErrNoSession is returned when no leaderboard page has been loaded yet.
var ErrNoSession = errors.New("no leaderboard session loaded")

// ErrNoTable is returned for table operations on a page without a viable
// leaderboard table.
var ErrNoTable = errors.New("page has no leaderboard table")

// PageLoader fetches the initial page over plain HTTP.
type PageLoader interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// DocumentRenderer fetches the initial page through a headless browser.
type DocumentRenderer interface {
	FetchRendered(ctx context.Context, url string, headers map[string]string) (string, error)
}

// Deps carries everything a session needs. Renderer, Cache, Snapshots and
// Metrics may be nil.
type Deps struct {
	Loader    PageLoader
	Renderer  DocumentRenderer
	Fetcher   aggregate.PageFetcher
	Cache     aggregate.PageCache
	Snapshots aggregate.SnapshotStore
	Metrics   *monitoring.Metrics
	Logger    *zap.Logger
	Config    *config.Config
}

// Session owns one loaded leaderboard page: the parsed document and the
// components built around its table. When the host replaces the table the
// whole component set is rebuilt and sort state resets.
//
// docMu serializes all document access. The background aggregation goroutine
// shares the same lock through the aggregator, so the tree only ever has one
// reader or writer at a time.
type Session struct {
	url        *url.URL
	title      string
	docMu      *sync.Mutex
	doc        *goquery.Document
	extractor  *extract.Extractor
	resolver   *resolve.Resolver
	controller *table.Controller
	aggregator *aggregate.Aggregator
	logger     *zap.Logger
}

// Manager holds the current session and rebuilds it on lifecycle events.
type Manager struct {
	mu      sync.Mutex
	current *Session
	deps    Deps
}

func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps}
}

// Load fetches the page and takes over its leaderboard table. A page without
// a viable table still produces a session; the table-bound operations just
// stay unavailable.
func (m *Manager) Load(ctx context.Context, rawURL string) (domain.SessionResponse, error) {
	pageURL, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return domain.SessionResponse{}, fmt.Errorf("invalid leaderboard url: %w", err)
	}

	body, err := m.fetchInitial(ctx, rawURL)
	if err != nil {
		return domain.SessionResponse{}, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return domain.SessionResponse{}, fmt.Errorf("parse page: %w", err)
	}

	sess := m.buildSession(doc, pageURL)
	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()

	m.deps.Logger.Info("session loaded",
		zap.String("url", rawURL),
		zap.Bool("has_table", sess.HasTable()))
	return sess.Summary(), nil
}

func (m *Manager) fetchInitial(ctx context.Context, rawURL string) (string, error) {
	if m.deps.Config != nil && m.deps.Config.RenderJS && m.deps.Renderer != nil {
		return m.deps.Renderer.FetchRendered(ctx, rawURL, map[string]string{
			"Cache-Control": "no-cache",
		})
	}
	body, err := m.deps.Loader.Get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (m *Manager) buildSession(doc *goquery.Document, pageURL *url.URL) *Session {
	cfg := m.deps.Config
	extractorOpts := extract.Options{}
	delay := 500 * time.Millisecond
	fallback := true
	if cfg != nil {
		extractorOpts = extract.Options{VAMMin: float64(cfg.VAMMin), VAMMax: float64(cfg.VAMMax)}
		delay = cfg.PageFetchDelay()
		fallback = cfg.FallbackToPost
	}

	sess := &Session{
		url:       pageURL,
		title:     strings.TrimSpace(doc.Find("title").First().Text()),
		docMu:     &sync.Mutex{},
		doc:       doc,
		extractor: extract.New(extractorOpts),
		resolver:  resolve.New(doc, pageURL, m.deps.Logger),
		logger:    m.deps.Logger,
	}

	tbl := extract.FindTable(doc)
	if tbl == nil {
		return sess
	}
	sess.controller = table.NewController(tbl, m.deps.Logger)
	sess.aggregator = aggregate.New(aggregate.Options{
		Extractor:      sess.extractor,
		Resolver:       sess.resolver,
		Controller:     sess.controller,
		Fetcher:        m.deps.Fetcher,
		Cache:          m.deps.Cache,
		Snapshots:      m.deps.Snapshots,
		Metrics:        m.deps.Metrics,
		Logger:         m.deps.Logger,
		Document:       doc,
		SourceURL:      pageURL.String(),
		Delay:          delay,
		FallbackToPost: fallback,
		DocLock:        sess.docMu,
	})
	return sess
}

// Current returns the loaded session, if any.
func (m *Manager) Current() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.current != nil
}

// HandleEvent reacts to a page-lifecycle signal by reloading the page and
// rebuilding the component set around the new table.
func (m *Manager) HandleEvent(ctx context.Context, ev Event) (domain.SessionResponse, error) {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()
	if current == nil {
		return domain.SessionResponse{}, ErrNoSession
	}
	m.deps.Logger.Info("handling page event", zap.String("event", string(ev)))
	return m.Load(ctx, current.url.String())
}

// HasTable reports whether table-bound operations are available.
func (s *Session) HasTable() bool {
	return s.controller != nil
}

// Summary describes the loaded page.
func (s *Session) Summary() domain.SessionResponse {
	s.docMu.Lock()
	defer s.docMu.Unlock()

	resp := domain.SessionResponse{
		URL:   s.url.String(),
		Title: s.title,
	}
	if filter, ok := s.resolver.DetectActiveFilter(); ok {
		resp.Filter = &filter
	}
	if !s.HasTable() {
		return resp
	}
	resp.Headers = s.controller.Headers()
	resp.Rows = len(s.extractor.ParseDocument(s.doc))
	resp.TotalPages = s.resolver.TotalPages()
	return resp
}

// Records returns whichever record set the aggregator currently holds (the
// merged set after aggregation, the single current page otherwise) ordered
// by the current sort state.
func (s *Session) Records() ([]domain.Record, error) {
	if !s.HasTable() {
		return nil, ErrNoTable
	}
	s.docMu.Lock()
	defer s.docMu.Unlock()
	return s.currentRecords(), nil
}

// currentRecords resolves the active record set. Callers hold docMu.
func (s *Session) currentRecords() []domain.Record {
	records := s.aggregator.Records()
	if len(records) == 0 {
		records = s.extractor.ParseDocument(s.doc)
	}
	return s.controller.SortRecords(records)
}

// SortByColumn applies a header click and re-renders the body in the new
// order.
func (s *Session) SortByColumn(index int) error {
	if !s.HasTable() {
		return ErrNoTable
	}
	if index < 0 || index >= len(s.controller.Headers()) {
		return fmt.Errorf("column index %d out of range", index)
	}
	s.docMu.Lock()
	defer s.docMu.Unlock()
	s.controller.SortByColumn(index)
	s.controller.RenderBody(s.currentRecords())
	return nil
}

// SortState reports the current sort column and direction.
func (s *Session) SortState() (domain.SortState, error) {
	if !s.HasTable() {
		return domain.SortState{}, ErrNoTable
	}
	return s.controller.SortState(), nil
}

// ToggleColumn shows or hides one column by header name.
func (s *Session) ToggleColumn(name string, visible bool) error {
	if !s.HasTable() {
		return ErrNoTable
	}
	s.docMu.Lock()
	defer s.docMu.Unlock()
	s.controller.ToggleColumn(name, visible)
	return nil
}

// SetAllColumns shows or hides every column.
func (s *Session) SetAllColumns(visible bool) error {
	if !s.HasTable() {
		return ErrNoTable
	}
	s.docMu.Lock()
	defer s.docMu.Unlock()
	s.controller.SetAllColumns(visible)
	return nil
}

// Visibility returns the current column visibility map.
func (s *Session) Visibility() (map[string]bool, error) {
	if !s.HasTable() {
		return nil, ErrNoTable
	}
	return s.controller.Visibility(), nil
}

// StartAggregation kicks off a multi-page load in the background and returns
// the immediately observable status. Repeat triggers while a run is in flight
// are no-ops by the aggregator's own guard.
func (s *Session) StartAggregation() (domain.AggregationStatus, error) {
	if !s.HasTable() {
		return domain.AggregationStatus{}, ErrNoTable
	}
	go func() {
		if _, err := s.aggregator.LoadAllPages(context.Background()); err != nil {
			s.logger.Error("aggregation run failed", zap.Error(err))
		}
	}()
	return s.aggregator.Status(), nil
}

// AggregationStatus reports the aggregator's observable state.
func (s *Session) AggregationStatus() (domain.AggregationStatus, error) {
	if !s.HasTable() {
		return domain.AggregationStatus{}, ErrNoTable
	}
	return s.aggregator.Status(), nil
}

// CancelAggregation requests cooperative cancellation of the current run.
func (s *Session) CancelAggregation() error {
	if !s.HasTable() {
		return ErrNoTable
	}
	s.aggregator.Cancel()
	return nil
}

// ExportCSV writes the current record set as CSV and returns the filename.
func (s *Session) ExportCSV(w io.Writer, now time.Time) (string, error) {
	if !s.HasTable() {
		return "", ErrNoTable
	}
	s.docMu.Lock()
	defer s.docMu.Unlock()
	if err := export.WriteCSV(w, s.controller.Headers(), s.currentRecords()); err != nil {
		return "", err
	}
	return export.Filename(s.title, now), nil
}
