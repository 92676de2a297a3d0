package deeplink

import "testing"

func TestToHTTP(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		locale string
		want   string
	}{
		{"http passthrough", "https://www.peacocktv.com/watch/playback/live", "", "https://www.peacocktv.com/watch/playback/live"},
		{"amazon gti", "aiv://aiv/detail?gti=amzn1.dv.gti.abc-123&time=live", "", "https://app.primevideo.com/detail?gti=amzn1.dv.gti.abc-123"},
		{"amazon no gti", "aiv://aiv/detail", "", ""},
		{"espn playID", "sportscenter://x-callback-url/showWatchStream?playID=9eb9b68b-11c6-4da0-9492-df997dbbf897", "", "https://www.espn.com/watch/player/_/id/9eb9b68b-11c6-4da0-9492-df997dbbf897"},
		{"espn playChannel only", "sportscenter://x-callback-url/showWatchStream?playChannel=espn1", "", ""},
		{"paramount", "pplus://www.paramountplus.com/live-tv/stream/abc", "", "https://www.paramountplus.com/live-tv/stream/abc"},
		{"cbs tve", "cbstve://www.cbs.com/live/xyz", "", "https://www.cbs.com/live/xyz"},
		{"dazn", "open.dazn.com://event/abc123", "", "https://open.dazn.com/event/abc123"},
		{"vix spanish default", "vixapp://live/canal5?play", "", "https://vix.com/es/live/canal5?play"},
		{"vix english locale", "vixapp://live/canal5?play", "en_US", "https://vix.com/en/live/canal5?play"},
		{"fox sports lowercased", "fsapp://live/FS1?tab=live", "", "https://www.foxsports.com/live/fs1?tab=live"},
		{"fox one channel", "foxone://channel/FS1", "", "https://www.foxsports.com/live/fs1"},
		{"tnt", "watchtnt://play", "", "https://www.tntdrama.com/watchtntplay"},
		{"trutv", "watchtru://play", "", "https://www.trutv.com/watchtrutvplay"},
		{"gametime stays scheme", "gametime://watch/123?itscg=30200", "", ""},
		{"nbc sports schedule", "nbcsportstve://live/abc", "", "https://www.nbcsports.com/watch/schedule"},
		{"cbs sports app", "cbssportsapp://home/watch/NFL-123", "", "https://www.cbssports.com/watch/nfl/NFL-123"},
		{"cbs sports unknown league", "cbssportsapp://home/watch/XFL-9", "", "https://www.cbssports.com/watch/xfl/XFL-9"},
		{"nfl hub", "nflctv://game/555", "", "https://www.nfl.com/plus/"},
		{"generic www fallback", "peacock://www.peacocktv.com/watch/live", "", "https://www.peacocktv.com/watch/live"},
		{"unknown scheme no www", "mystery://something/else", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ToHTTP(tc.raw, tc.locale); got != tc.want {
				t.Errorf("ToHTTP(%q, %q) = %q, want %q", tc.raw, tc.locale, got, tc.want)
			}
		})
	}
}

func TestStripTracking(t *testing.T) {
	in := "gametime://watch/123?itscg=30200&itsct=tv_box&foo=bar"
	got := StripTracking(in)
	want := "gametime://watch/123?foo=bar"
	if got != want {
		t.Errorf("StripTracking = %q, want %q", got, want)
	}
	if got := StripTracking("gametime://watch/123"); got != "gametime://watch/123" {
		t.Errorf("no-query input changed: %q", got)
	}
	if got := StripTracking("gametime://watch/123?itscg=30200"); got != "gametime://watch/123" {
		t.Errorf("all-tracking query should drop entirely, got %q", got)
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"College Football": "college-football",
		"NFL":              "nfl",
		"  A  B  ":         "a-b",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}
