// Package api exposes the street lookup and snow status operations over
// HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/boreal-data/neige-cli/internal/geobase"
	"github.com/boreal-data/neige-cli/internal/model"
	"github.com/boreal-data/neige-cli/internal/observability"
	"github.com/boreal-data/neige-cli/internal/resolver"
	"github.com/boreal-data/neige-cli/internal/store"
)

// StatusSource answers live status questions. *planif.Poller satisfies it.
type StatusSource interface {
	Latest(streetID int) (model.SnowStatus, bool)
	Available() bool
	LastPoll() time.Time
}

// Server wires the resolver, geobase, poller, and store into an HTTP
// handler.
type Server struct {
	geobase  *geobase.Store
	resolver *resolver.Resolver
	store    store.Store
	statuses StatusSource
	metrics  *observability.Metrics

	router chi.Router
}

// NewServer builds the HTTP handler. statuses and metrics may be nil.
func NewServer(gb *geobase.Store, res *resolver.Resolver, st store.Store, statuses StatusSource, metrics *observability.Metrics) *Server {
	s := &Server{
		geobase:  gb,
		resolver: res,
		store:    st,
		statuses: statuses,
		metrics:  metrics,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE"},
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/search", s.handleSearch)
		r.Get("/nearest", s.handleNearest)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/streets", s.handleListStreets)
		r.Post("/streets", s.handleSaveStreet)
		r.Delete("/streets/{id}", s.handleRemoveStreet)
		r.Get("/status/{id}", s.handleStatus)
	})

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.statuses != nil {
		resp["feed_available"] = s.statuses.Available()
		if lp := s.statuses.LastPoll(); !lp.IsZero() {
			resp["last_poll"] = lp
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// searchResult is the wire shape of one ranked hit.
type searchResult struct {
	StreetID     int    `json:"street_id"`
	StreetName   string `json:"street_name"`
	Side         string `json:"side"`
	AddressStart int    `json:"address_start"`
	AddressEnd   int    `json:"address_end"`
	Borough      string `json:"borough"`
	DisplayName  string `json:"display_name"`
	Score        int    `json:"score"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("street")
	if query == "" {
		query = r.URL.Query().Get("q")
	}
	if query == "" {
		writeError(w, http.StatusBadRequest, "street is required")
		return
	}
	civic := 0
	if raw := r.URL.Query().Get("civic"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "civic must be a non-negative integer")
			return
		}
		civic = n
	}

	started := time.Now()
	matches, err := s.resolver.Search(r.Context(), query, civic)
	s.observeSearch(started, matches, err)
	if err != nil {
		if eris.Is(err, geobase.ErrDataUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "street dataset unavailable")
			return
		}
		zap.L().Error("api: search failed", zap.String("q", query), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	results := make([]searchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, toSearchResult(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func toSearchResult(m resolver.Match) searchResult {
	seg := m.Segment
	return searchResult{
		StreetID:     seg.ID,
		StreetName:   seg.Name,
		Side:         string(seg.Side),
		AddressStart: seg.AddressStart,
		AddressEnd:   seg.AddressEnd,
		Borough:      seg.Borough,
		DisplayName:  seg.DisplayName(),
		Score:        m.Score,
	}
}

func (s *Server) observeSearch(started time.Time, matches []resolver.Match, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.SearchDuration.Observe(time.Since(started).Seconds())
	switch {
	case err != nil:
		s.metrics.SearchRequests.WithLabelValues("error").Inc()
	case len(matches) == 0:
		s.metrics.SearchRequests.WithLabelValues("miss").Inc()
	default:
		s.metrics.SearchRequests.WithLabelValues("hit").Inc()
	}
}

func (s *Server) handleNearest(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if errLat != nil || errLon != nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}
	limit := 5
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	segments, err := s.resolver.Nearest(r.Context(), lat, lon, limit)
	if err != nil {
		if eris.Is(err, geobase.ErrDataUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "street dataset unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	results := make([]searchResult, 0, len(segments))
	for _, seg := range segments {
		results = append(results, toSearchResult(resolver.Match{Segment: seg}))
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.geobase.Refresh(r.Context())
	if err != nil {
		zap.L().Error("api: refresh failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "dataset refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"segments":   len(snap.Segments),
		"fetched_at": snap.FetchedAt,
	})
}

func (s *Server) handleListStreets(w http.ResponseWriter, r *http.Request) {
	streets, err := s.store.ListStreets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list streets failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"streets": streets})
}

func (s *Server) handleSaveStreet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StreetID int `json:"street_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StreetID == 0 {
		writeError(w, http.StatusBadRequest, "street_id is required")
		return
	}

	seg, err := s.resolver.ByID(r.Context(), req.StreetID)
	if err != nil {
		if eris.Is(err, geobase.ErrDataUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "street dataset unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if seg == nil {
		writeError(w, http.StatusNotFound, "unknown street id")
		return
	}

	saved, err := s.store.SaveStreet(r.Context(), seg.ID, seg.DisplayName())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "save street failed")
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleRemoveStreet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be an integer")
		return
	}
	if err := s.store.RemoveStreet(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "remove street failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be an integer")
		return
	}

	resp := map[string]any{"street_id": id}
	if s.statuses != nil {
		resp["feed_available"] = s.statuses.Available()
		if st, ok := s.statuses.Latest(id); ok {
			resp["status"] = st
		}
	}
	if _, found := resp["status"]; !found {
		// Fall back to the last recorded status when the poller has not
		// seen this street yet.
		st, err := s.store.LatestStatus(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "status lookup failed")
			return
		}
		if st != nil {
			resp["status"] = st
		}
	}

	if raw := r.URL.Query().Get("history"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			limit = 10
		}
		history, err := s.store.ListStatusHistory(r.Context(), id, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "status history failed")
			return
		}
		resp["history"] = history
	}

	writeJSON(w, http.StatusOK, resp)
}
