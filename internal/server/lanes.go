package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fieldlane/fieldlane/internal/deeplink"
	"github.com/fieldlane/fieldlane/internal/hls"
	"github.com/fieldlane/fieldlane/internal/metrics"
	"github.com/fieldlane/fieldlane/internal/prefs"
	"github.com/fieldlane/fieldlane/internal/resolver"
)

func laneParam(r *http.Request) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "lane"))
	return n, err == nil && n > 0
}

// formatParam reads deeplink_format= (or format=); default scheme.
func formatParam(r *http.Request) deeplink.Format {
	v := r.URL.Query().Get("deeplink_format")
	if v == "" {
		v = r.URL.Query().Get("format")
	}
	if v == "http" {
		return deeplink.FormatHTTP
	}
	return deeplink.FormatScheme
}

// handleLanePlaylist serves the rolling stub playlist and notifies the
// detector that the lane was tuned.
func (s *Server) handleLanePlaylist(w http.ResponseWriter, r *http.Request) {
	lane, ok := laneParam(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	metrics.LaneTunes.WithLabelValues(strconv.Itoa(lane)).Inc()
	if s.Detector != nil {
		s.Detector.OnLaneTuned(r.Context(), lane)
	}
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(hls.Playlist(lane, s.Cfg.ServerBaseURL(), time.Now())))
}

func (s *Server) handleLaneSegment(w http.ResponseWriter, r *http.Request) {
	if s.Stub == nil || !s.Stub.HasSegment() {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "video/mp2t")
	http.ServeFile(w, r, s.Stub.SegmentPath())
}

// atParam reads at= (RFC 3339); now when absent.
func atParam(r *http.Request) (time.Time, bool) {
	v := r.URL.Query().Get("at")
	if v == "" {
		return time.Now(), true
	}
	at, err := time.Parse(time.RFC3339, v)
	return at, err == nil
}

// handleWhatsOn returns the resolved lane state as JSON; ok:false with 200
// when the lane is idle. at= resolves at an arbitrary instant.
// format=txt&param=deeplink_url|event_uid|deeplink_url_full returns one bare
// field for detector clients (empty body when idle).
func (s *Server) handleWhatsOn(w http.ResponseWriter, r *http.Request) {
	lane, ok := laneParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad lane")
		return
	}
	at, ok := atParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad at time")
		return
	}
	ans, err := s.Resolver.WhatsOn(r.Context(), lane, at, formatParam(r))
	if err != nil && !errors.Is(err, resolver.ErrNoEvent) {
		metrics.DeeplinkResolves.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	metrics.DeeplinkResolves.WithLabelValues(resolveResult(ans, err)).Inc()
	if r.URL.Query().Get("format") == "txt" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		var v string
		if ans != nil && ans.OK {
			switch r.URL.Query().Get("param") {
			case "event_uid":
				v = ans.EventUID
			case "deeplink_url_full":
				v = ans.DeeplinkURLFull
			default:
				v = ans.DeeplinkURL
			}
		}
		_, _ = w.Write([]byte(v + "\n"))
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func resolveResult(ans *resolver.Answer, err error) string {
	switch {
	case errors.Is(err, resolver.ErrNoEvent):
		return "empty"
	case ans != nil && ans.IsFallback:
		return "fallback"
	default:
		return "ok"
	}
}

// handleLaneDeeplink returns only the deeplink, as text or JSON.
func (s *Server) handleLaneDeeplink(w http.ResponseWriter, r *http.Request) {
	lane, ok := laneParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad lane")
		return
	}
	ans, err := s.Resolver.WhatsOn(r.Context(), lane, time.Now(), formatParam(r))
	if errors.Is(err, resolver.ErrNoEvent) {
		metrics.DeeplinkResolves.WithLabelValues("empty").Inc()
		writeError(w, http.StatusNotFound, "nothing on lane")
		return
	}
	if err != nil {
		metrics.DeeplinkResolves.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	metrics.DeeplinkResolves.WithLabelValues(resolveResult(ans, nil)).Inc()
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(ans.DeeplinkURL + "\n"))
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

// handleLaneLaunch 302-redirects to the lane's deeplink. Chrome-capture
// clients use this as the "stream" URL. Never cached: the target changes as
// the schedule advances. allow_fallback=0 suppresses the padding-window
// answer.
func (s *Server) handleLaneLaunch(w http.ResponseWriter, r *http.Request) {
	lane, ok := laneParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad lane")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	ans, err := s.Resolver.WhatsOn(r.Context(), lane, time.Now(), formatParam(r))
	af := r.URL.Query().Get("allow_fallback")
	if err == nil && ans.IsFallback && (af == "0" || af == "false") {
		err = resolver.ErrNoEvent
	}
	if errors.Is(err, resolver.ErrNoEvent) || (err == nil && ans.DeeplinkURL == "") {
		writeError(w, http.StatusNotFound, "nothing on lane")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	http.Redirect(w, r, ans.DeeplinkURL, http.StatusFound)
}

// handleADBDeeplink resolves a provider lane. format=text returns the bare
// URL (the M3U stream target for these lanes).
func (s *Server) handleADBDeeplink(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if code == "" || err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, "bad provider lane")
		return
	}
	userPrefs, err := prefs.Load(r.Context(), s.Store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ans, err := s.Resolver.WhatsOnADB(r.Context(), code, n, time.Now(), userPrefs, formatParam(r))
	if errors.Is(err, resolver.ErrNoEvent) {
		writeError(w, http.StatusNotFound, "nothing on lane")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write([]byte(ans.DeeplinkURL + "\n"))
		return
	}
	writeJSON(w, http.StatusOK, ans)
}
