package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/domain"
	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/session"
)

func (s *Server) handleLoadSession(w http.ResponseWriter, r *http.Request) {
	var req domain.SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.URL == "" {
		s.respondWithError(w, http.StatusBadRequest, "URL cannot be empty")
		return
	}

	resp, err := s.sessions.Load(r.Context(), req.URL)
	if err != nil {
		s.logger.Error("failed to load leaderboard page", zap.String("url", req.URL), zap.Error(err))
		s.respondWithError(w, http.StatusBadGateway, "Could not load leaderboard page: "+err.Error())
		return
	}
	s.respondWithJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleSessionSummary(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w)
	if !ok {
		return
	}
	s.respondWithJSON(w, http.StatusOK, sess.Summary())
}

func (s *Server) handlePageEvent(w http.ResponseWriter, r *http.Request) {
	var req domain.EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ev := session.Event(req.Event)
	if ev != session.EventTableReplaced && ev != session.EventPaginationAppeared {
		s.respondWithError(w, http.StatusBadRequest, "Unknown event: "+req.Event)
		return
	}

	resp, err := s.sessions.HandleEvent(r.Context(), ev)
	if err != nil {
		s.respondWithDomainError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w)
	if !ok {
		return
	}
	records, err := sess.Records()
	if err != nil {
		s.respondWithDomainError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(records),
		"records": records,
	})
}

func (s *Server) handleSort(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w)
	if !ok {
		return
	}
	var req domain.SortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := sess.SortByColumn(req.Column); err != nil {
		s.respondWithDomainError(w, err)
		return
	}
	state, _ := sess.SortState()
	s.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"sort": state,
	})
}

func (s *Server) handleStartAggregation(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w)
	if !ok {
		return
	}
	status, err := sess.StartAggregation()
	if err != nil {
		s.respondWithDomainError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusAccepted, status)
}

func (s *Server) handleAggregationStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w)
	if !ok {
		return
	}
	status, err := sess.AggregationStatus()
	if err != nil {
		s.respondWithDomainError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, status)
}

func (s *Server) handleCancelAggregation(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w)
	if !ok {
		return
	}
	if err := sess.CancelAggregation(); err != nil {
		s.respondWithDomainError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusAccepted, map[string]string{"message": "Cancellation requested"})
}

func (s *Server) handleColumnVisibility(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w)
	if !ok {
		return
	}
	vis, err := sess.Visibility()
	if err != nil {
		s.respondWithDomainError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, vis)
}

func (s *Server) handleToggleColumn(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w)
	if !ok {
		return
	}
	var req domain.ColumnToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Column == "" {
		s.respondWithError(w, http.StatusBadRequest, "Column cannot be empty")
		return
	}
	if err := sess.ToggleColumn(req.Column, req.Visible); err != nil {
		s.respondWithDomainError(w, err)
		return
	}
	vis, _ := sess.Visibility()
	s.respondWithJSON(w, http.StatusOK, vis)
}

func (s *Server) handleBulkColumns(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w)
	if !ok {
		return
	}
	var req domain.ColumnBulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := sess.SetAllColumns(req.Visible); err != nil {
		s.respondWithDomainError(w, err)
		return
	}
	vis, _ := sess.Visibility()
	s.respondWithJSON(w, http.StatusOK, vis)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w)
	if !ok {
		return
	}

	var buf bytes.Buffer
	filename, err := sess.ExportCSV(&buf, time.Now())
	if err != nil {
		s.respondWithDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Error("failed to stream csv export", zap.Error(err))
	}
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	healthStatus := make(map[string]string)
	healthy := true

	if s.pgStore == nil {
		healthStatus["postgres"] = "disabled"
	} else if err := s.pgStore.Ping(ctx); err != nil {
		healthStatus["postgres"] = "unhealthy"
		healthy = false
		s.logger.Error("health check failed for postgres", zap.Error(err))
	} else {
		healthStatus["postgres"] = "healthy"
	}

	if s.redisStore == nil {
		healthStatus["redis"] = "disabled"
	} else if err := s.redisStore.Ping(ctx); err != nil {
		healthStatus["redis"] = "unhealthy"
		healthy = false
		s.logger.Error("health check failed for redis", zap.Error(err))
	} else {
		healthStatus["redis"] = "healthy"
	}

	if !healthy {
		s.respondWithJSON(w, http.StatusServiceUnavailable, healthStatus)
		return
	}
	s.respondWithJSON(w, http.StatusOK, healthStatus)
}

// --- Helper Functions ---

func (s *Server) requireSession(w http.ResponseWriter) (*session.Session, bool) {
	sess, ok := s.sessions.Current()
	if !ok {
		s.respondWithError(w, http.StatusNotFound, "No leaderboard session loaded")
		return nil, false
	}
	return sess, true
}

func (s *Server) respondWithDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNoSession):
		s.respondWithError(w, http.StatusNotFound, "No leaderboard session loaded")
	case errors.Is(err, session.ErrNoTable):
		s.respondWithError(w, http.StatusConflict, "Loaded page has no leaderboard table")
	default:
		s.respondWithError(w, http.StatusBadRequest, err.Error())
	}
}

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
