package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"market-data-service/internal/analytics"
	"market-data-service/internal/domain"
	"market-data-service/internal/storage"
)

// errorResponse is the JSON error envelope. Consumers check for the
// error field before using data.
type errorResponse struct {
	Error string `json:"error"`
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTypes lists the series present in the store.
func (s *Server) handleTypes(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.ListDataTypes(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if counts == nil {
		counts = []*domain.DataTypeCount{}
	}
	s.writeJSON(w, http.StatusOK, counts)
}

// handleLatest returns the most recent observation for a series.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	dataType, ok := s.dataTypeParam(w, r)
	if !ok {
		return
	}

	o, err := s.store.GetLatest(r.Context(), dataType)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("no observations for %s", dataType))
			return
		}
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, o)
}

// handleSeries returns (date, average) points for charting, ascending by
// date. The optional since parameter bounds the range from below.
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	dataType, ok := s.dataTypeParam(w, r)
	if !ok {
		return
	}

	since, ok := s.sinceParam(w, r)
	if !ok {
		return
	}

	observations, err := s.store.GetRange(r.Context(), dataType, since)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"data_type": dataType,
		"points":    domain.SeriesPoints(observations),
	})
}

// handleAtDates returns the observations for an explicit list of dates,
// in the order the dates were given.
func (s *Server) handleAtDates(w http.ResponseWriter, r *http.Request) {
	dataType, ok := s.dataTypeParam(w, r)
	if !ok {
		return
	}

	raw := r.URL.Query().Get("dates")
	if raw == "" {
		s.writeError(w, http.StatusBadRequest, "dates parameter required")
		return
	}

	var dates []time.Time
	for _, part := range strings.Split(raw, ",") {
		d, err := parseDate(strings.TrimSpace(part))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid date %q", part))
			return
		}
		dates = append(dates, d)
	}

	observations, err := s.store.GetAtDates(r.Context(), dataType, dates)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if observations == nil {
		observations = []*domain.Observation{}
	}
	s.writeJSON(w, http.StatusOK, observations)
}

// handleInflation returns the year-over-year percent change of a series.
func (s *Server) handleInflation(w http.ResponseWriter, r *http.Request) {
	dataType, ok := s.dataTypeParam(w, r)
	if !ok {
		return
	}

	result, err := analytics.YearOverYear(r.Context(), s.store, dataType)
	if err != nil {
		switch {
		case errors.Is(err, analytics.ErrNoObservations):
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("no observations for %s", dataType))
		case errors.Is(err, analytics.ErrMissingPeriod):
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("no year-ago base period for %s", dataType))
		default:
			s.writeStoreError(w, err)
		}
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleStats returns min/max/mean of a series range.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	dataType, ok := s.dataTypeParam(w, r)
	if !ok {
		return
	}

	since, ok := s.sinceParam(w, r)
	if !ok {
		return
	}

	observations, err := s.store.GetRange(r.Context(), dataType, since)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"data_type": dataType,
		"stats":     analytics.SeriesStats(observations),
	})
}

// dataTypeParam extracts and validates the {type} route parameter.
func (s *Server) dataTypeParam(w http.ResponseWriter, r *http.Request) (domain.DataType, bool) {
	dataType := domain.DataType(chi.URLParam(r, "type"))
	if !dataType.Valid() {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown data type %q", dataType))
		return "", false
	}
	return dataType, true
}

// sinceParam parses the optional since query parameter; absent means the
// whole series.
func (s *Server) sinceParam(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return time.Time{}, true
	}
	since, err := parseDate(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid since date %q", raw))
		return time.Time{}, false
	}
	return since, true
}

// parseDate accepts YYYY-MM-DD or RFC 3339.
func parseDate(value string) (time.Time, error) {
	if d, err := time.Parse("2006-01-02", value); err == nil {
		return d, nil
	}
	return time.Parse(time.RFC3339, value)
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("write response")
	}
}

// writeError writes the JSON error envelope.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// writeStoreError maps unexpected storage failures to a 500.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	s.log.WithError(err).Error("query failed")
	s.writeError(w, http.StatusInternalServerError, "query failed")
}
