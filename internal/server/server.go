// Package server exposes the HTTP surface: lane resolution and stub streams
// for the DVR, the admin/filter API, artifact downloads, live refresh logs,
// and operational endpoints.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/fieldlane/fieldlane/internal/config"
	"github.com/fieldlane/fieldlane/internal/detector"
	"github.com/fieldlane/fieldlane/internal/hls"
	"github.com/fieldlane/fieldlane/internal/refresh"
	"github.com/fieldlane/fieldlane/internal/resolver"
	"github.com/fieldlane/fieldlane/internal/store"
)

// Server wires handlers to their collaborators.
type Server struct {
	Cfg      *config.Config
	Store    *store.Store
	Resolver *resolver.Resolver
	Runner   *refresh.Runner
	Ring     *refresh.Ring
	Detector *detector.Detector
	Stub     *hls.Stub
	Log      zerolog.Logger
}

// Router builds the full route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.Log))

	// DVR-facing surface.
	r.Get("/lane/{lane}/stream.m3u8", s.handleLanePlaylist)
	r.Get("/lane/{lane}/segment.ts", s.handleLaneSegment)
	r.Get("/whatson/{lane}", s.handleWhatsOn)

	// Guide artifacts. The DVR's source config points here.
	fileServer := http.StripPrefix("/files/", http.FileServer(http.Dir(s.Cfg.OutputDir)))
	r.Get("/files/*", fileServer.ServeHTTP)

	r.Route("/api", func(api chi.Router) {
		api.Get("/lane/{lane}/deeplink", s.handleLaneDeeplink)
		api.Get("/lane/{lane}/launch", s.handleLaneLaunch)
		api.Get("/adb/lanes/{code}/{n}/deeplink", s.handleADBDeeplink)

		api.Get("/status", s.handleStatus)
		api.Post("/refresh", s.handleRefresh)
		api.Get("/auto-refresh", s.handleGetAutoRefresh)
		api.Put("/auto-refresh", s.handleSetAutoRefresh)

		api.Get("/filters", s.handleGetFilters)
		api.Put("/filters", s.handleSetFilters)
		api.Get("/filters/preferences", s.handleGetFilters)
		api.Put("/filters/preferences", s.handleSetFilters)
		api.Get("/filters/priorities", s.handleGetPriorities)
		api.Put("/filters/priorities", s.handleSetPriorities)
		api.Get("/filters/available", s.handleFiltersAvailable)
		api.Get("/filters/selection-examples", s.handleFilterExamples)
		api.Get("/filters/examples", s.handleFilterExamples)

		api.Get("/provider_lanes", s.handleGetProviderLanes)
		api.Put("/provider_lanes", s.handleSetProviderLanes)

		api.Get("/events", s.handleEvents)
		api.Get("/events/stats", s.handleEventStats)
		api.Get("/events/{id}", s.handleEvent)

		api.Delete("/auth/{upstream}", s.handleResetAuth)

		api.Get("/logs/stream", s.handleLogStream)
	})

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// requestLogger is a slim chi middleware over zerolog; noisy paths (playlist
// polling) log at trace.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			next.ServeHTTP(ww, req)
			ev := log.Debug()
			if req.URL.Path == "/metrics" || req.URL.Path == "/healthz" {
				ev = log.Trace()
			}
			ev.Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", ww.Status()).
				Dur("dur", time.Since(start)).
				Msg("http")
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
