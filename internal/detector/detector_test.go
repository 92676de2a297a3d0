package detector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fieldlane/fieldlane/internal/dvr"
)

func newDVRServer(t *testing.T, clients []dvr.ClientInfo) *dvr.Client {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/dvr/clients/info" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(clients)
	}))
	t.Cleanup(ts.Close)
	return dvr.New(ts.URL)
}

func serverPort(t *testing.T, ts *httptest.Server) int {
	t.Helper()
	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return port
}

// The DVR reports no channel for the Apple TV; only its own status API ties
// it to the lane. The web client matches on channel but is not launchable.
func TestClientOnLaneStatusConfirm(t *testing.T) {
	playerTS := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/status", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "playing", "channel": "9002"})
	}))
	defer playerTS.Close()

	fresh := time.Now().UTC().Format(time.RFC3339)
	dc := newDVRServer(t, []dvr.ClientInfo{
		{Hostname: "living-room", IP: "127.0.0.1", Platform: "Apple TV", SeenAt: fresh},
		{Hostname: "laptop", IP: "127.0.0.1", Platform: "web", ChannelID: "fdl.lane2", SeenAt: fresh},
	})
	d := New(nil, dc, t.TempDir(), serverPort(t, playerTS), 0)

	got, err := d.clientOnLane(context.Background(), 2)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "living-room", got.Hostname)
}

// A stale seen_at still makes the candidate list when nothing fresher exists,
// and an unreachable status API falls back to the DVR's channel report.
func TestClientOnLaneStaleSeenFallback(t *testing.T) {
	stale := time.Now().Add(-10 * time.Minute).UTC().Format(time.RFC3339)
	dc := newDVRServer(t, []dvr.ClientInfo{
		{Hostname: "den", IP: "127.0.0.1", Platform: "FireTV", ChannelID: "fdl.lane3", SeenAt: stale},
	})
	d := New(nil, dc, t.TempDir(), 1, 0)

	got, err := d.clientOnLane(context.Background(), 3)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "den", got.Hostname)
}

func TestClientOnLaneIgnoresUnsupportedPlatforms(t *testing.T) {
	fresh := time.Now().UTC().Format(time.RFC3339)
	dc := newDVRServer(t, []dvr.ClientInfo{
		{Hostname: "laptop", IP: "127.0.0.1", Platform: "web", ChannelID: "fdl.lane1", SeenAt: fresh},
	})
	d := New(nil, dc, t.TempDir(), 1, 0)

	got, err := d.clientOnLane(context.Background(), 1)
	require.NoError(t, err)
	require.Nil(t, got)
}
