package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fieldlane/fieldlane/internal/catalog"
	"github.com/fieldlane/fieldlane/internal/config"
	"github.com/fieldlane/fieldlane/internal/ingest"
	"github.com/fieldlane/fieldlane/internal/refresh"
	"github.com/fieldlane/fieldlane/internal/resolver"
	"github.com/fieldlane/fieldlane/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{
		OutputDir: t.TempDir(), LogDir: t.TempDir(), BinDir: t.TempDir(),
		ListenHost: "127.0.0.1", ListenPort: 8089,
		LaneCount: 2, LaneStartNumber: 9000, DaysAhead: 7, DaysBack: 1,
		PaddingMinutes: 45, PlaceholderBlockMinutes: 60,
	}
	ring := refresh.NewRing()
	s := &Server{
		Cfg:      cfg,
		Store:    st,
		Resolver: &resolver.Resolver{Store: st, Padding: 45 * time.Minute},
		Runner:   &refresh.Runner{Cfg: cfg, Store: st, Ring: ring},
		Ring:     ring,
		Log:      zerolog.Nop(),
	}
	return s, st
}

func seedLane(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	e := &catalog.Event{
		ID: "apple-1", PVID: "1", Title: "Arsenal vs Chelsea",
		StartMS: now.Add(-time.Hour).UnixMilli(), EndMS: now.Add(time.Hour).UnixMilli(),
		Playables: []catalog.Playable{{
			EventID: "apple-1", PlayableID: "p1", Provider: "pplus",
			LogicalService: "pplus", DeeplinkPlay: "pplus://www.paramountplus.com/live/a",
		}},
	}
	e.StampTimes()
	require.NoError(t, st.UpsertEvent(ctx, e))
	require.NoError(t, st.ReplaceLanePlan(ctx,
		[]store.Lane{
			{ID: 1, DisplayName: "Event Lane 1", LogicalNumber: 9000},
			{ID: 2, DisplayName: "Event Lane 2", LogicalNumber: 9001},
		},
		[]store.LaneSlot{{
			LaneID: 1, EventID: "apple-1",
			StartUTC: e.StartUTC, EndUTC: e.EndUTC,
			StartMS:  e.StartMS, EndMS: e.EndMS,
			ChosenPlayableID: "p1", ChosenProvider: "pplus",
			ChosenLogicalService: "pplus",
			ChosenDeeplink:       "pplus://www.paramountplus.com/live/a",
		}}))
}

func TestWhatsOnEndpoint(t *testing.T) {
	s, st := newTestServer(t)
	seedLane(t, st)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/whatson/1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ans resolver.Answer
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ans))
	require.True(t, ans.OK)
	require.Equal(t, "Arsenal vs Chelsea", ans.Title)
	require.Equal(t, "pplus://www.paramountplus.com/live/a", ans.DeeplinkURL)

	// Idle lane: still 200, ok:false.
	resp2, err := http.Get(ts.URL + "/whatson/2")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	var idle resolver.Answer
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&idle))
	require.False(t, idle.OK)
}

func TestLaneDeeplinkFormats(t *testing.T) {
	s, st := newTestServer(t)
	seedLane(t, st)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/lane/1/deeplink?format=text&deeplink_format=http")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	require.Equal(t, "https://www.paramountplus.com/live/a\n", buf.String())

	// Empty lane: 404.
	resp2, err := http.Get(ts.URL + "/api/lane/2/deeplink")
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestLaneLaunchRedirect(t *testing.T) {
	s, st := newTestServer(t)
	seedLane(t, st)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(ts.URL + "/api/lane/1/launch?deeplink_format=http")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "https://www.paramountplus.com/live/a", resp.Header.Get("Location"))
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
}

func TestWhatsOnAtAndTxtParams(t *testing.T) {
	s, st := newTestServer(t)
	seedLane(t, st)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/whatson/1?format=txt&param=event_uid")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	require.Equal(t, "apple-1\n", buf.String())

	// at= resolves at an arbitrary instant; two days out nothing is scheduled.
	future := time.Now().UTC().Add(48 * time.Hour).Format(time.RFC3339)
	resp2, err := http.Get(ts.URL + "/whatson/1?at=" + url.QueryEscape(future))
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	var idle resolver.Answer
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&idle))
	require.False(t, idle.OK)

	resp3, err := http.Get(ts.URL + "/whatson/1?at=yesterday")
	require.NoError(t, err)
	resp3.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp3.StatusCode)
}

// An event that ended ten minutes ago still redirects from the padding
// window, unless the caller opts out with allow_fallback=0.
func TestLaneLaunchFallbackSuppressed(t *testing.T) {
	s, st := newTestServer(t)
	ctx := context.Background()
	now := time.Now().UTC()
	start, end := now.Add(-2*time.Hour), now.Add(-10*time.Minute)
	paddedEnd := end.Add(45 * time.Minute)
	e := &catalog.Event{
		ID: "apple-2", PVID: "2", Title: "Late kickoff",
		StartMS: start.UnixMilli(), EndMS: end.UnixMilli(),
		Playables: []catalog.Playable{{
			EventID: "apple-2", PlayableID: "p2", Provider: "pplus",
			LogicalService: "pplus", DeeplinkPlay: "pplus://www.paramountplus.com/live/b",
		}},
	}
	e.StampTimes()
	require.NoError(t, st.UpsertEvent(ctx, e))
	require.NoError(t, st.ReplaceLanePlan(ctx,
		[]store.Lane{{ID: 1, DisplayName: "Event Lane 1", LogicalNumber: 9000}},
		[]store.LaneSlot{
			{
				LaneID: 1, EventID: "apple-2",
				StartUTC: start.Format(time.RFC3339), EndUTC: paddedEnd.Format(time.RFC3339),
				StartMS:  start.UnixMilli(), EndMS: paddedEnd.UnixMilli(),
				ChosenPlayableID: "p2", ChosenProvider: "pplus",
				ChosenLogicalService: "pplus",
				ChosenDeeplink:       "pplus://www.paramountplus.com/live/b",
			},
			{
				LaneID:   1,
				StartUTC: paddedEnd.Format(time.RFC3339), EndUTC: paddedEnd.Add(6 * time.Hour).Format(time.RFC3339),
				StartMS:  paddedEnd.UnixMilli(), EndMS: paddedEnd.Add(6 * time.Hour).UnixMilli(),
				IsPlaceholder: true,
			},
		}))
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(ts.URL + "/api/lane/1/launch")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	resp, err = client.Get(ts.URL + "/api/lane/1/launch?allow_fallback=0")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFiltersRoundtrip(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	body := `{"enabled_services":["pplus","sportscenter"],"language_preference":"es","disabled_sports":["Golf"]}`
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/filters", strings.NewReader(body))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	getResp, err := http.Get(ts.URL + "/api/filters")
	require.NoError(t, err)
	defer getResp.Body.Close()
	var got map[string]any
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&got))
	require.Equal(t, "es", got["language_preference"])
	require.ElementsMatch(t, []any{"pplus", "sportscenter"}, got["enabled_services"])

	// Unknown language is rejected.
	req, _ = http.NewRequest(http.MethodPut, ts.URL+"/api/filters", strings.NewReader(`{"language_preference":"fr"}`))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPrioritiesRoundtrip(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/filters/priorities", strings.NewReader(`{"pplus":90,"espn_plus":80}`))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	getResp, err := http.Get(ts.URL + "/api/filters/priorities")
	require.NoError(t, err)
	defer getResp.Body.Close()
	var got map[string]int
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&got))
	require.Equal(t, map[string]int{"pplus": 90, "espn_plus": 80}, got)

	// The rest of the preference document is untouched.
	prefResp, err := http.Get(ts.URL + "/api/filters/preferences")
	require.NoError(t, err)
	defer prefResp.Body.Close()
	var doc map[string]any
	require.NoError(t, json.NewDecoder(prefResp.Body).Decode(&doc))
	require.Equal(t, "both", doc["language_preference"])
}

func TestEventStatsAndSelectionExamples(t *testing.T) {
	s, st := newTestServer(t)
	seedLane(t, st)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/events/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats store.EventStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	require.Equal(t, 1, stats.Events)

	resp2, err := http.Get(ts.URL + "/api/filters/selection-examples")
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestAutoRefreshValidation(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/auto-refresh", strings.NewReader(`{"enabled":true,"time":"25:99"}`))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodPut, ts.URL+"/api/auto-refresh", strings.NewReader(`{"enabled":true,"time":"06:15"}`))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	getResp, err := http.Get(ts.URL + "/api/auto-refresh")
	require.NoError(t, err)
	defer getResp.Body.Close()
	var got map[string]any
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&got))
	require.Equal(t, true, got["enabled"])
	require.Equal(t, "06:15", got["time"])
}

func TestProviderLanesRoundtrip(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	body := `[{"provider_code":"sportscenter","adb_enabled":true,"adb_lane_count":4}]`
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/provider_lanes", strings.NewReader(body))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	getResp, err := http.Get(ts.URL + "/api/provider_lanes")
	require.NoError(t, err)
	defer getResp.Body.Close()
	var cfgs []store.ProviderLaneConfig
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&cfgs))
	require.Len(t, cfgs, 1)
	require.Equal(t, "sportscenter", cfgs[0].ProviderCode)
	require.Equal(t, 4, cfgs[0].ADBLaneCount)

	// Missing provider code is rejected.
	req, _ = http.NewRequest(http.MethodPut, ts.URL+"/api/provider_lanes", strings.NewReader(`[{"adb_lane_count":2}]`))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEventsEndpoint(t *testing.T) {
	s, st := newTestServer(t)
	seedLane(t, st)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	var rows []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	require.Len(t, rows, 1)
	require.Equal(t, "apple-1", rows[0]["id"])

	resp2, err := http.Get(ts.URL + "/api/events/nope")
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestResetAuth(t *testing.T) {
	s, st := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, st.SaveAuthBlob(ctx, &store.AuthBlob{Upstream: "appletv", UserID: "u1"}))

	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/auth/appletv", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = st.AuthBlobFor(ctx, "appletv")
	require.ErrorIs(t, err, store.ErrNotFound)
}

// blockingIngester parks until its context is cancelled, holding the pipeline
// in the ingest step.
type blockingIngester struct{}

func (blockingIngester) Name() string { return "blocking" }

func (blockingIngester) Run(ctx context.Context, env *ingest.Env) (*ingest.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRefreshConflict(t *testing.T) {
	s, _ := newTestServer(t)
	s.Runner.Ingesters = []ingest.Ingester{blockingIngester{}}
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Runner.Run(ctx, "manual")
		close(done)
	}()
	// Wait for the run to take the single-flight slot.
	deadline := time.Now().Add(2 * time.Second)
	for !s.Runner.Status().Running {
		if time.Now().After(deadline) {
			t.Fatal("run never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Post(ts.URL+"/api/refresh", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish after cancel")
	}
	require.False(t, s.Runner.Status().Running)
}

func TestLogStreamReplay(t *testing.T) {
	s, _ := newTestServer(t)
	s.Ring.Append("step: ingest")
	s.Ring.Append("step: lanes")
	s.Ring.Append("step: emit")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/logs/stream?since=1", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	require.NotContains(t, body, "id: 1\n")
	require.Contains(t, body, "id: 2\n")
	require.Contains(t, body, "id: 3\n")
	require.Contains(t, body, "step: lanes")
}
