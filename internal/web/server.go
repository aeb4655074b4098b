// Package web serves the experimentation engine as a JSON HTTP API.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/emiliopalmerini/abacus/internal/experiment"
	"github.com/emiliopalmerini/abacus/internal/ports"
)

type Server struct {
	services   *experiment.Services
	calculator ports.StatisticsCalculator
	baseAlpha  float64
	logger     *slog.Logger
	router     chi.Router
}

// NewServer builds the API router. calculator serves the statistics and
// winner endpoints; nil falls back to the in-process engine.
func NewServer(services *experiment.Services, calculator ports.StatisticsCalculator, baseAlpha float64, logger *slog.Logger) *Server {
	if calculator == nil {
		calculator = services.Calculator
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		services:   services,
		calculator: calculator,
		baseAlpha:  baseAlpha,
		logger:     logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/experiments", func(r chi.Router) {
			r.Get("/", s.handleListExperiments)
			r.Post("/", s.handleCreateExperiment)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetExperiment)
				r.Patch("/", s.handleUpdateExperiment)
				r.Delete("/", s.handleDeleteExperiment)
				r.Put("/split", s.handleUpdateSplit)

				r.Post("/start", s.handleTransition(s.services.Registry.Start))
				r.Post("/pause", s.handleTransition(s.services.Registry.Pause))
				r.Post("/resume", s.handleTransition(s.services.Registry.Resume))
				r.Post("/stop", s.handleTransition(s.services.Registry.Stop))
				r.Post("/complete", s.handleConclude)

				r.Get("/variant", s.handleGetVariant)
				r.Get("/events", s.handleListEvents)
				r.Post("/events", s.handleTrackEvent)
				r.Get("/statistics", s.handleCalculateStatistics)
				r.Get("/statistics/latest", s.handleLatestStatistics)
				r.Get("/decision", s.handleDecision)
				r.Get("/winner", s.handleWinner)
				r.Post("/rebalance", s.handleRebalance)
			})
		})

		// Feature keys resolve through their linked experiment.
		r.Get("/variant/{key}", s.handleGetVariant)

		r.Post("/sample-size", s.handleSampleSize)

		r.Route("/features", func(r chi.Router) {
			r.Get("/", s.handleListFeatures)
			r.Post("/", s.handleCreateFeature)
			r.Post("/{id}/link", s.handleLinkFeature)
			r.Delete("/{id}/link", s.handleUnlinkFeature)
		})
	})

	s.router = r
}

// Start listens on port until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, port int) error {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting server", "addr", fmt.Sprintf("http://localhost:%d", port))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server shutdown", "error", err)
		}
	}()

	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
