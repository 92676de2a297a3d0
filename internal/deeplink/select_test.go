package deeplink

import (
	"testing"

	"github.com/fieldlane/fieldlane/internal/catalog"
)

func event(playables ...catalog.Playable) *catalog.Event {
	return &catalog.Event{ID: "apple-1", PVID: "1", Title: "Test Match", Playables: playables}
}

func TestSelectAmazonPenalty(t *testing.T) {
	e := event(
		catalog.Playable{PlayableID: "a", LogicalService: "aiv", DeeplinkPlay: "aiv://aiv/detail?gti=amzn1.dv.gti.x"},
		catalog.Playable{PlayableID: "b", LogicalService: "pplus", DeeplinkPlay: "pplus://www.paramountplus.com/live"},
	)
	sel := Select(e, Options{AmazonPenalty: true})
	if sel == nil {
		t.Fatal("no selection")
	}
	if sel.Playable.LogicalService != "pplus" {
		t.Errorf("penalized Amazon still won: %s", sel.Playable.LogicalService)
	}

	// Amazon alone is not penalized.
	solo := event(catalog.Playable{PlayableID: "a", LogicalService: "aiv", DeeplinkPlay: "aiv://aiv/detail?gti=amzn1.dv.gti.x"})
	sel = Select(solo, Options{AmazonPenalty: true})
	if sel == nil || sel.Playable.LogicalService != "aiv" {
		t.Fatalf("solo Amazon should win: %+v", sel)
	}
}

func TestSelectEnabledAllowlist(t *testing.T) {
	e := event(
		catalog.Playable{PlayableID: "a", LogicalService: "espn_plus", DeeplinkPlay: "sportscenter://x?playChannel=e1"},
		catalog.Playable{PlayableID: "b", LogicalService: "max", DeeplinkPlay: "https://play.max.com/x"},
	)
	sel := Select(e, Options{EnabledServices: []string{"max"}})
	if sel == nil || sel.Playable.LogicalService != "max" {
		t.Fatalf("allowlist ignored: %+v", sel)
	}
	if sel.Reason != "only enabled service" {
		t.Errorf("reason = %q", sel.Reason)
	}
	if Select(e, Options{EnabledServices: []string{"peacock_web"}}) != nil {
		t.Error("nothing enabled should yield nil")
	}
}

func TestSelectSpanishOnlyRelaxation(t *testing.T) {
	// Only an es_MX feed exists; an "en" preference must still pick it.
	e := event(catalog.Playable{
		PlayableID:   "a",
		LogicalService: "espn_plus",
		Locale:       "es_MX",
		DeeplinkPlay: "sportscenter://x-callback-url/showWatchStream?playChannel=espnd",
	})
	sel := Select(e, Options{Language: "en"})
	if sel == nil {
		t.Fatal("Spanish-only event dropped under en preference")
	}
	// ESPN correction kicks in via the event pvid fallback.
	want := "sportscenter://x-callback-url/showWatchStream?playID=1"
	if sel.URL != want {
		t.Errorf("URL = %q, want %q", sel.URL, want)
	}
}

func TestSelectPriorityOverride(t *testing.T) {
	e := event(
		catalog.Playable{PlayableID: "a", LogicalService: "pplus", DeeplinkPlay: "pplus://www.paramountplus.com/a"},
		catalog.Playable{PlayableID: "b", LogicalService: "max", DeeplinkPlay: "https://play.max.com/b"},
	)
	sel := Select(e, Options{ServicePriorities: map[string]int{"max": 500}})
	if sel == nil || sel.Playable.LogicalService != "max" {
		t.Fatalf("override ignored: %+v", sel)
	}
}

func TestForFormat(t *testing.T) {
	s := &Selection{URL: "pplus://www.x.com/a", HTTPURL: "https://www.x.com/a"}
	if got := s.ForFormat(FormatHTTP); got != "https://www.x.com/a" {
		t.Errorf("http format = %q", got)
	}
	if got := s.ForFormat(FormatScheme); got != "pplus://www.x.com/a" {
		t.Errorf("scheme format = %q", got)
	}
	noHTTP := &Selection{URL: "gametime://watch/1"}
	if got := noHTTP.ForFormat(FormatHTTP); got != "gametime://watch/1" {
		t.Errorf("fallback to scheme = %q", got)
	}
}
