package dvr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetGroupHiddenPath(t *testing.T) {
	var gotMethod, gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
	}))
	defer ts.Close()

	c := New(ts.URL)
	require.NoError(t, c.SetGroupHidden(context.Background(), "g1", true))
	require.Equal(t, http.MethodPut, gotMethod)
	require.Equal(t, "/dvr/groups/g1/visibility/hidden", gotPath)

	require.NoError(t, c.SetGroupHidden(context.Background(), "g1", false))
	require.Equal(t, "/dvr/groups/g1/visibility/visible", gotPath)
}

func TestHideGroupsByPrefix(t *testing.T) {
	var hidden []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/dvr/groups":
			_ = json.NewEncoder(w).Encode([]Group{
				{ID: "a", Name: "Event Lane 1"},
				{ID: "b", Name: "Event Lane 2", Hidden: true},
				{ID: "c", Name: "Other"},
			})
		case r.Method == http.MethodPut:
			hidden = append(hidden, r.URL.Path)
		}
	}))
	defer ts.Close()

	c := New(ts.URL)
	n, err := c.HideGroupsByPrefix(context.Background(), "Event Lane")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []string{"/dvr/groups/a/visibility/hidden"}, hidden)
}

func TestSeenWithin(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	ci := &ClientInfo{SeenAt: now.Add(-30 * time.Second).Format(time.RFC3339)}
	require.True(t, ci.SeenWithin(90*time.Second, now))

	ci.SeenAt = now.Add(-3 * time.Minute).Format(time.RFC3339)
	require.False(t, ci.SeenWithin(90*time.Second, now))

	ci.SeenAt = ""
	require.False(t, ci.SeenWithin(90*time.Second, now))
}

func TestIsSupportedPlatform(t *testing.T) {
	for plat, want := range map[string]bool{
		"Apple TV": true, "tvOS": true, "AndroidTV": true,
		"Fire TV": true, "web": false, "macOS": false,
	} {
		ci := &ClientInfo{Platform: plat}
		if got := ci.IsSupportedPlatform(); got != want {
			t.Errorf("IsSupportedPlatform(%q) = %v, want %v", plat, got, want)
		}
	}
}
