// Package server exposes the ranked event list and per-event diagnostics over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/rewired-gh/bookrisk/internal/logger"
	"github.com/rewired-gh/bookrisk/internal/metrics"
	"github.com/rewired-gh/bookrisk/internal/models"
	"github.com/rewired-gh/bookrisk/internal/prefs"
	"github.com/rewired-gh/bookrisk/internal/riskapi"
)

// EventSource is the subset of the main backend API the server reads.
type EventSource interface {
	BookRiskFocus(ctx context.Context, from, to time.Time, opts riskapi.FocusOptions) ([]models.EventRankRecord, error)
	Leagues(ctx context.Context, from, to time.Time, q string, opts riskapi.WindowOptions) ([]models.LeagueItem, error)
	LeagueEvents(ctx context.Context, league string, from, to time.Time, opts riskapi.WindowOptions) ([]models.EventRankRecord, error)
	EventMeta(ctx context.Context, marketID string) (*models.EventMeta, error)
	Timeseries(ctx context.Context, marketID string, from, to time.Time, intervalMinutes int) ([]models.TimeseriesPoint, error)
	Buckets(ctx context.Context, marketID string, from, to *time.Time, eventAware bool) ([]models.BucketSummary, error)
	LatestRaw(ctx context.Context, marketID string) (*models.RawBook, error)
}

// StreamSource is the subset of the streaming backend API the server reads.
// Raw ticks are only served there.
type StreamSource interface {
	MarketTicks(ctx context.Context, marketID string, from, to time.Time, limit int) ([]models.TickRow, error)
	AvailableBuckets(ctx context.Context, marketID string) (*models.AvailableBuckets, error)
	DataHorizon(ctx context.Context) (*models.DataHorizon, error)
	ReplaySnapshot(ctx context.Context, marketID string, at *time.Time) (*models.ReplaySnapshot, error)
	EventsByDate(ctx context.Context, date string) ([]models.EventRankRecord, error)
}

// Config holds server and listing defaults.
type Config struct {
	Addr           string
	RequestTimeout time.Duration
	AllowedOrigins []string

	Lookback        time.Duration
	Window          time.Duration
	IncludeInPlay   bool
	Limit           int
	RequireBookRisk bool
	ExcludeStale    bool
	ExtremeOdds     float64
}

type Server struct {
	api     EventSource
	stream  StreamSource
	prefs   *prefs.SortStates
	metrics *metrics.Metrics
	cfg     Config
	router  chi.Router
	now     func() time.Time
}

func New(api EventSource, stream StreamSource, sortStates *prefs.SortStates, m *metrics.Metrics, cfg Config) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	s := &Server{
		api:     api,
		stream:  stream,
		prefs:   sortStates,
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(s.cfg.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ranked", s.handleRanked)
		r.Get("/sort-state", s.handleGetSortState)
		r.Put("/sort-state", s.handlePutSortState)
		r.Get("/leagues", s.handleLeagues)
		r.Get("/leagues/{league}/events", s.handleLeagueEvents)
		r.Get("/data-horizon", s.handleDataHorizon)
		r.Get("/events/by-date", s.handleEventsByDate)
		r.Get("/events/{marketID}/meta", s.handleMeta)
		r.Get("/events/{marketID}/timeseries", s.handleTimeseries)
		r.Get("/events/{marketID}/buckets", s.handleBuckets)
		r.Get("/events/{marketID}/available-buckets", s.handleAvailableBuckets)
		r.Get("/events/{marketID}/ticks", s.handleTicks)
		r.Get("/events/{marketID}/replay", s.handleReplay)
		r.Get("/events/{marketID}/depth", s.handleDepth)
	})

	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("View server listening on %s", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.RecordHTTPRequest(route, status)
		logger.WithField("request_id", chimiddleware.GetReqID(r.Context())).
			Debugf("%s %s %d %v", r.Method, route, status, time.Since(start))
	})
}
