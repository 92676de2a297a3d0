package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fieldlane/fieldlane/internal/store"
)

func TestFeedIngester(t *testing.T) {
	raws := []RawEvent{rawSoccerEvent("live-1"), rawSoccerEvent("")}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(raws)
	}))
	defer ts.Close()

	st, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer st.Close()

	fi := &FeedIngester{
		Prefix:  "appletv",
		URL:     ts.URL,
		Headers: map[string]string{"X-Api-Key": "secret"},
	}
	env := &Env{Store: st, Now: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)}
	res, err := fi.Run(context.Background(), env)
	require.NoError(t, err)
	require.Equal(t, 1, res.Upserted)
	require.Equal(t, 1, res.Dropped)

	got, err := st.EventByID(context.Background(), "appletv-live-1")
	require.NoError(t, err)
	require.Equal(t, "Arsenal vs Chelsea", got.Title)
}

func TestFeedIngesterUpstreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	st, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer st.Close()

	fi := &FeedIngester{Prefix: "espn", URL: ts.URL}
	_, err = fi.Run(context.Background(), &Env{Store: st, Now: time.Now()})
	require.Error(t, err)
}
