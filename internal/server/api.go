package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fieldlane/fieldlane/internal/config"
	"github.com/fieldlane/fieldlane/internal/prefs"
	"github.com/fieldlane/fieldlane/internal/refresh"
	"github.com/fieldlane/fieldlane/internal/store"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.Runner.Status()
	stats, err := s.Store.Stats(r.Context(), time.Now())
	resp := map[string]any{
		"refresh": st,
	}
	if err == nil {
		resp["catalog"] = stats
	}
	if v, verr := s.Store.SchemaVersion(r.Context()); verr == nil {
		resp["schema_version"] = v
	}
	if b, berr := s.Store.AuthBlobFor(r.Context(), "tuner"); berr == nil {
		resp["device_id"] = b.DeviceID
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh starts a manual run in the background and returns 202, or 409
// when one is already in flight.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	// Probe first so the caller gets the 409 synchronously.
	if s.Runner.Status().Running {
		writeError(w, http.StatusConflict, refresh.ErrBusy.Error())
		return
	}
	go func() {
		if err := s.Runner.Run(contextWithLogger(s.Log), "manual"); err != nil && !errors.Is(err, refresh.ErrBusy) {
			s.Log.Error().Err(err).Msg("manual refresh failed")
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleGetAutoRefresh(w http.ResponseWriter, r *http.Request) {
	p, err := prefs.Load(r.Context(), s.Store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled": p.AutoRefresh,
		"time":    p.AutoRefreshTime,
	})
}

func (s *Server) handleSetAutoRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool   `json:"enabled"`
		Time    string `json:"time"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Time != "" {
		if _, err := config.ParseClock(body.Time); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("bad time %q", body.Time))
			return
		}
	}
	p, err := prefs.Load(r.Context(), s.Store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	p.AutoRefresh = body.Enabled
	if body.Time != "" {
		p.AutoRefreshTime = body.Time
	}
	if err := p.Save(r.Context(), s.Store); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": p.AutoRefresh, "time": p.AutoRefreshTime})
}

func (s *Server) handleGetFilters(w http.ResponseWriter, r *http.Request) {
	p, err := prefs.Load(r.Context(), s.Store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleSetFilters replaces the preference set wholesale; the UI always sends
// the full document. Changes affect artifacts on the next refresh.
func (s *Server) handleSetFilters(w http.ResponseWriter, r *http.Request) {
	var p prefs.Preferences
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch p.Language {
	case "", "en", "es", "both":
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("bad language %q", p.Language))
		return
	}
	if p.Language == "" {
		p.Language = "both"
	}
	if p.AutoRefreshTime == "" {
		p.AutoRefreshTime = "04:30"
	}
	if err := p.Save(r.Context(), s.Store); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleGetPriorities(w http.ResponseWriter, r *http.Request) {
	p, err := prefs.Load(r.Context(), s.Store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if p.ServicePriorities == nil {
		p.ServicePriorities = map[string]int{}
	}
	writeJSON(w, http.StatusOK, p.ServicePriorities)
}

// handleSetPriorities replaces the service priority overrides wholesale,
// leaving the rest of the preference document untouched.
func (s *Server) handleSetPriorities(w http.ResponseWriter, r *http.Request) {
	var overrides map[string]int
	if err := decodeJSON(r, &overrides); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := prefs.Load(r.Context(), s.Store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	p.ServicePriorities = overrides
	if err := p.Save(r.Context(), s.Store); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p.ServicePriorities)
}

func (s *Server) handleFiltersAvailable(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	events, err := s.Store.EventsInWindow(r.Context(), now, 0, s.Cfg.DaysAhead)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, prefs.ComputeAvailable(events, now))
}

func (s *Server) handleFilterExamples(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	p, err := prefs.Load(r.Context(), s.Store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	events, err := s.Store.EventsInWindow(r.Context(), now, 0, s.Cfg.DaysAhead)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, p.Examples(events, now, limit))
}

func (s *Server) handleGetProviderLanes(w http.ResponseWriter, r *http.Request) {
	cfgs, err := s.Store.ProviderLanes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cfgs == nil {
		cfgs = []store.ProviderLaneConfig{}
	}
	writeJSON(w, http.StatusOK, cfgs)
}

func (s *Server) handleSetProviderLanes(w http.ResponseWriter, r *http.Request) {
	var cfgs []store.ProviderLaneConfig
	if err := decodeJSON(r, &cfgs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, c := range cfgs {
		if c.ProviderCode == "" || c.ADBLaneCount < 0 {
			writeError(w, http.StatusBadRequest, "bad provider lane config")
			return
		}
		if err := s.Store.SetProviderLanes(r.Context(), c); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": len(cfgs)})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	events, err := s.Store.EventsInWindow(r.Context(), now, s.Cfg.DaysBack, s.Cfg.DaysAhead)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	type row struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		Sport    string `json:"sport,omitempty"`
		League   string `json:"league,omitempty"`
		StartUTC string `json:"start_utc"`
		EndUTC   string `json:"end_utc"`
		Services int    `json:"services"`
	}
	out := make([]row, 0, len(events))
	for _, e := range events {
		out = append(out, row{
			ID: e.ID, Title: e.Title, Sport: e.Sport(), League: e.League(),
			StartUTC: e.StartUTC, EndUTC: e.EndUTC, Services: len(e.Playables),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	e, err := s.Store.EventByID(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown event")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleEventStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Store.Stats(r.Context(), time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleResetAuth drops an upstream's stored session so the next ingest
// bootstraps a fresh one.
func (s *Server) handleResetAuth(w http.ResponseWriter, r *http.Request) {
	upstream := chi.URLParam(r, "upstream")
	if upstream == "" {
		writeError(w, http.StatusBadRequest, "missing upstream")
		return
	}
	if err := s.Store.DeleteAuthBlob(r.Context(), upstream); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"upstream": upstream, "status": "cleared"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.Store.SchemaVersion(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
