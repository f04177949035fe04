package domain

import (
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Record holds one leaderboard entry extracted from a table row.
type Record struct {
	Rank                 int     `json:"rank"`
	Name                 string  `json:"name"`
	Date                 string  `json:"date"`
	Speed                float64 `json:"speed"`
	HeartRate            *int    `json:"heart_rate,omitempty"`
	AverageClimbingSpeed float64 `json:"average_climbing_speed"`
	Power                *int    `json:"power,omitempty"`
	Time                 string  `json:"time"`
	TimeInSeconds        int     `json:"time_in_seconds"`

	// Row is the originating table row. The component currently rendering
	// the record owns it; merge paths must clone it, never move it.
	Row *goquery.Selection `json:"-"`
}

// FilterState describes the leaderboard filter currently active on the host page.
type FilterState struct {
	FilterType  string `json:"filter_type"`
	FilterValue string `json:"filter_value"`
}

// PageRequestSpec fully describes one outbound page fetch. Specs are built
// fresh per page number and never cached, since filter state can change
// between calls.
type PageRequestSpec struct {
	URL     string
	Method  string
	Params  map[string]string // query params for GET, form body for POST
	Headers map[string]string
}

// SortDirection is the order applied to a sorted column.
type SortDirection string

const (
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

// SortState tracks which column the table is ordered by. Column -1 means
// unsorted; the state resets whenever the table is rebuilt.
type SortState struct {
	Column    int           `json:"column"`
	Direction SortDirection `json:"direction"`
}

// AggregationPhase is the lifecycle phase of a multi-page load.
type AggregationPhase string

const (
	AggregationIdle      AggregationPhase = "idle"
	AggregationRunning   AggregationPhase = "aggregating"
	AggregationCompleted AggregationPhase = "completed"
	AggregationCancelled AggregationPhase = "cancelled"
	AggregationFailed    AggregationPhase = "failed"
)

// AggregationStatus is the observable state of the aggregator.
type AggregationStatus struct {
	Phase       AggregationPhase `json:"phase"`
	CurrentPage int              `json:"current_page"`
	TotalPages  int              `json:"total_pages"`
	Records     int              `json:"records"`
	FailReason  string           `json:"fail_reason,omitempty"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// SessionRequest is the payload to load a leaderboard page.
type SessionRequest struct {
	URL string `json:"url"`
}

// SessionResponse summarizes the table taken over by a session.
type SessionResponse struct {
	URL        string       `json:"url"`
	Title      string       `json:"title"`
	Headers    []string     `json:"headers"`
	Rows       int          `json:"rows"`
	TotalPages int          `json:"total_pages"`
	Filter     *FilterState `json:"filter,omitempty"`
}

// SortRequest applies a header click to the given zero-based column.
type SortRequest struct {
	Column int `json:"column"`
}

// EventRequest signals a page lifecycle event observed on the host page.
type EventRequest struct {
	Event string `json:"event"`
}

// ColumnToggleRequest toggles visibility of a single column by header name.
type ColumnToggleRequest struct {
	Column  string `json:"column"`
	Visible bool   `json:"visible"`
}

// ColumnBulkRequest sets visibility of every column at once.
type ColumnBulkRequest struct {
	Visible bool `json:"visible"`
}
