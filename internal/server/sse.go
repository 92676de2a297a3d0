package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldlane/fieldlane/internal/logx"
)

// heartbeatInterval keeps proxies from closing an idle log stream.
const heartbeatInterval = 15 * time.Second

// handleLogStream streams refresh log lines as server-sent events. Each event
// id is the line's monotonic sequence number; a reconnecting client passes
// ?since=N (or Last-Event-ID) to replay what it missed from the ring.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	since := int64(0)
	if v := r.URL.Query().Get("since"); v != "" {
		since, _ = strconv.ParseInt(v, 10, 64)
	} else if v := r.Header.Get("Last-Event-ID"); v != "" {
		since, _ = strconv.ParseInt(v, 10, 64)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Subscribe before replay so nothing falls in the gap; duplicates are
	// filtered by sequence below.
	ch := s.Ring.Subscribe()
	defer s.Ring.Unsubscribe(ch)

	lastSent := since
	for _, ln := range s.Ring.Since(since) {
		writeSSE(w, ln.Seq, ln)
		lastSent = ln.Seq
	}
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case ln := <-ch:
			if ln.Seq <= lastSent {
				continue
			}
			writeSSE(w, ln.Seq, ln)
			lastSent = ln.Seq
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, id int64, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "id: %d\ndata: %s\n\n", id, data)
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func contextWithLogger(log zerolog.Logger) context.Context {
	return logx.WithContext(context.Background(), log)
}
