// Package api exposes lookup over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/bioscope/internal/lookup"
	"github.com/sells-group/bioscope/internal/model"
	"github.com/sells-group/bioscope/internal/resilience"
)

// Service is satisfied by *lookup.Service.
type Service interface {
	AggregateAndEnrich(ctx context.Context, center model.Coordinate, opts lookup.Options) (*lookup.Response, error)
	ResolveMitigation(ctx context.Context, riskType string, level model.ThreatCode, description string) model.MitigationResult
}

// Config configures the router.
type Config struct {
	AllowedOrigins []string
	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Breakers, when set, are reported by GET /health.
	Breakers *resilience.Breakers
}

// Handler serves the lookup endpoints.
type Handler struct {
	svc Service
	cfg Config
}

// NewRouter builds the HTTP handler.
func NewRouter(svc Service, cfg Config) http.Handler {
	h := &Handler{svc: svc, cfg: cfg}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.handleHealth)
	r.Get("/search", h.handleSearchQuery)
	r.Post("/search", h.handleSearch)
	r.Post("/mitigation", h.handleMitigation)
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Offset    int      `json:"offset"`
}

// MitigationRequest is the body of POST /mitigation.
type MitigationRequest struct {
	RiskType    string `json:"risk_type"`
	ThreatLevel string `json:"threat_level"`
	Description string `json:"description"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if h.cfg.Breakers != nil {
		states := make(map[string]string)
		for name, st := range h.cfg.Breakers.Snapshot() {
			states[name] = st.String()
		}
		body["breakers"] = states
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		writeError(w, http.StatusBadRequest, "latitude and longitude are required")
		return
	}
	h.search(w, r, model.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude}, req.Offset)
}

func (h *Handler) handleSearchQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	if errLat != nil || errLon != nil {
		writeError(w, http.StatusBadRequest, "lat and lon must be numbers")
		return
	}
	offset := 0
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "offset must be an integer")
			return
		}
		offset = n
	}
	h.search(w, r, model.Coordinate{Latitude: lat, Longitude: lon}, offset)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request, center model.Coordinate, offset int) {
	resp, err := h.svc.AggregateAndEnrich(r.Context(), center, lookup.Options{Offset: offset})
	if err != nil {
		if errors.Is(err, model.ErrInvalidQuery) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		zap.L().Error("api: search failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleMitigation(w http.ResponseWriter, r *http.Request) {
	var req MitigationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.RiskType) == "" {
		writeError(w, http.StatusBadRequest, "risk_type is required")
		return
	}
	if strings.TrimSpace(req.ThreatLevel) == "" {
		req.ThreatLevel = string(model.ThreatLow)
	}
	level, err := model.ParseThreatCode(req.ThreatLevel)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown threat_level")
		return
	}
	writeJSON(w, http.StatusOK, h.svc.ResolveMitigation(r.Context(), req.RiskType, level, req.Description))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
