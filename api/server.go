// Package api provides the local HTTP server for finmarket.
//
// It exposes the news feed, favorites and chart embed to a mobile shell or
// browser over JSON, pushes feed and favorites changes over WebSocket, and
// serves Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seenimoa/finmarket/internal/chart"
	"github.com/seenimoa/finmarket/internal/config"
	"github.com/seenimoa/finmarket/internal/favorites"
	"github.com/seenimoa/finmarket/internal/feed"
	"github.com/seenimoa/finmarket/internal/infra"
	"github.com/seenimoa/finmarket/internal/newsclient"
	"github.com/seenimoa/finmarket/pkg/models"
	"github.com/seenimoa/finmarket/pkg/utils"
)

// Remote is the part of the news client the server calls directly.
type Remote interface {
	FetchNewsSummary(ctx context.Context, id int64) (*models.NewsDetail, error)
	Health(ctx context.Context) (*models.Health, error)
}

// Deps are the collaborators a Server is built from.
type Deps struct {
	Config    *config.Config
	Feed      *feed.Controller
	Favorites *favorites.Controller
	Remote    Remote
	Chart     chart.Widget
	Metrics   *Metrics
	Logger    *slog.Logger
	Version   string
}

// Server is the HTTP API server.
type Server struct {
	router  chi.Router
	cfg     *config.Config
	feed    *feed.Controller
	favs    *favorites.Controller
	remote  Remote
	chart   chart.Widget
	metrics *Metrics
	logger  *slog.Logger
	version string
	wsHub   *WSHub
}

// NewServer creates a configured API server with all routes and middleware.
func NewServer(d Deps) *Server {
	s := &Server{
		cfg:     d.Config,
		feed:    d.Feed,
		favs:    d.Favorites,
		remote:  d.Remote,
		chart:   d.Chart,
		metrics: d.Metrics,
		logger:  d.Logger,
		version: d.Version,
	}
	if s.cfg == nil {
		s.cfg = &config.Config{}
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	if s.logger == nil {
		s.logger = infra.Discard()
	}
	if s.version == "" {
		s.version = "dev"
	}
	s.wsHub = NewWSHub(s.logger, func(n int) { s.metrics.WSClients.Set(float64(n)) })
	s.router = s.buildRouter()
	return s
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WSHub {
	return s.wsHub
}

// Run starts the WebSocket hub and forwards feed transitions to it until
// ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	go s.wsHub.Run(ctx)

	states, unsubscribe := s.feed.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			s.wsHub.Broadcast(WSMessage{Type: "feed", Data: st})
		}
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go s.Run(runCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.instrument)

	// CORS
	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// The WebSocket route must not be wrapped by the timeout middleware.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/health", s.handleHealth)

			// Feed
			r.Get("/feed", s.handleFeed)
			r.Post("/feed/category", s.handleSelectCategory)
			r.Post("/feed/refresh", s.handleRefresh)
			r.Get("/feed/search", s.handleSearch)

			// News detail
			r.Get("/news/{id}/summary", s.handleNewsSummary)

			// Favorites
			r.Get("/favorites", s.handleFavorites)
			r.Post("/favorites/reload", s.handleReloadFavorites)
			r.Post("/favorites/{symbol}/toggle", s.handleToggleFavorite)

			// Chart embed
			r.Get("/chart/{symbol}", s.handleChart)
			r.Get("/chart/{symbol}/url", s.handleChartURL)

			// Configuration
			r.Get("/config", s.handleGetConfig)
			r.Get("/config/keys", s.handleGetConfigKeys)
		})
	})

	return r
}

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"elapsed", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// CategoryRequest is the body for POST /api/v1/feed/category.
type CategoryRequest struct {
	Category string `json:"category"`
}

// SearchResult is returned by GET /api/v1/feed/search.
type SearchResult struct {
	Query    string            `json:"query"`
	Category models.Category   `json:"category"`
	Items    []models.NewsItem `json:"items"`
}

// FavoritesResult is returned by GET /api/v1/favorites.
type FavoritesResult struct {
	Query   string   `json:"query,omitempty"`
	Symbols []string `json:"symbols"`
	Total   int      `json:"total"`
}

// ChartLink is returned by GET /api/v1/chart/{symbol}/url.
type ChartLink struct {
	Symbol    string `json:"symbol"`
	Qualified string `json:"qualified"`
	URL       string `json:"url"`
}

// HealthResult is returned by GET /health.
type HealthResult struct {
	Status      string         `json:"status"`
	Version     string         `json:"version"`
	Time        time.Time      `json:"time"`
	FeedPhase   feed.Phase     `json:"feed_phase"`
	Favorites   int            `json:"favorites"`
	WSClients   int            `json:"ws_clients"`
	Remote      *models.Health `json:"remote,omitempty"`
	RemoteError string         `json:"remote_error,omitempty"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	res := HealthResult{
		Status:    "ok",
		Version:   s.version,
		Time:      time.Now().UTC(),
		FeedPhase: s.feed.Snapshot().Phase,
		Favorites: s.favs.Len(),
		WSClients: s.wsHub.ClientCount(),
	}
	if s.remote != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		h, err := s.remote.Health(ctx)
		if err != nil {
			res.Status = "degraded"
			res.RemoteError = err.Error()
		} else {
			res.Remote = h
		}
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: res})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	st := s.feed.Snapshot()
	if st.Phase == feed.PhaseIdle {
		var err error
		if st, err = s.feed.Refresh(r.Context()); err != nil {
			writeFeedError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: st})
}

func (s *Server) handleSelectCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cat, err := models.ParseCategory(req.Category)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	st, err := s.feed.SelectCategory(r.Context(), cat)
	if err != nil {
		writeFeedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: st})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	st, err := s.feed.Refresh(r.Context())
	if err != nil {
		writeFeedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: st})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: SearchResult{
			Query:    q,
			Category: s.feed.Category(),
			Items:    s.feed.Search(q),
		},
	})
}

func (s *Server) handleNewsSummary(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be an integer")
		return
	}
	if s.remote == nil {
		writeError(w, http.StatusServiceUnavailable, "remote service not configured")
		return
	}

	detail, err := s.remote.FetchNewsSummary(r.Context(), id)
	if err != nil {
		writeError(w, remoteStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: detail})
}

func (s *Server) handleFavorites(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	symbols := slices.Collect(s.favs.Filter(q))
	if symbols == nil {
		symbols = []string{}
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: FavoritesResult{
			Query:   q,
			Symbols: symbols,
			Total:   s.favs.Len(),
		},
	})
}

// handleReloadFavorites re-reads the store, as a screen does on activation.
// A storage error still answers with the (empty) projection.
func (s *Server) handleReloadFavorites(w http.ResponseWriter, r *http.Request) {
	resp := APIResponse{Success: true}
	if err := s.favs.Load(r.Context()); err != nil {
		resp.Error = err.Error()
	}
	symbols := s.favs.Symbols()
	resp.Data = FavoritesResult{Symbols: symbols, Total: len(symbols)}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	symbol := utils.CleanSymbol(chi.URLParam(r, "symbol"))

	ev, err := s.favs.Toggle(r.Context(), symbol)
	switch {
	case errors.Is(err, favorites.ErrInvalidSymbol):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.metrics.RecordToggle("failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := "removed"
	if ev.Added {
		result = "added"
	}
	s.metrics.RecordToggle(result)

	s.wsHub.Broadcast(WSMessage{Type: "favorites", Data: ev})
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: ev})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	html, err := s.chart.HTML(chi.URLParam(r, "symbol"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(html)) //nolint:errcheck
}

func (s *Server) handleChartURL(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: ChartLink{
			Symbol:    symbol,
			Qualified: s.chart.Qualified(symbol),
			URL:       s.chart.URL(symbol),
		},
	})
}

// ============================================================
// Helpers
// ============================================================

// remoteStatus maps a client error to the status the server answers with.
func remoteStatus(err error) int {
	var e *newsclient.Error
	if errors.As(err, &e) {
		switch e.Kind {
		case newsclient.KindService:
			if e.StatusCode == http.StatusNotFound {
				return http.StatusNotFound
			}
			return http.StatusBadGateway
		case newsclient.KindDecode:
			return http.StatusBadGateway
		case newsclient.KindTransport:
			return http.StatusServiceUnavailable
		}
	}
	return http.StatusInternalServerError
}

// writeFeedError answers for a feed call the client stopped waiting for.
func writeFeedError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, feed.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "feed retrieval still in progress")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write JSON response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}
