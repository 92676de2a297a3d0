package deeplink

import (
	"testing"

	"github.com/fieldlane/fieldlane/internal/catalog"
)

func TestCorrectESPNGraphToken(t *testing.T) {
	p := catalog.Playable{
		ESPNGraphID: "espn-watch:9eb9b68b-11c6-4da0-9492-df997dbbf897:bb816546",
	}
	raw := "sportscenter://x-callback-url/showWatchStream?playChannel=espn1"
	got := CorrectESPN(raw, p, "ev-1")
	want := "sportscenter://x-callback-url/showWatchStream?playID=9eb9b68b-11c6-4da0-9492-df997dbbf897"
	if got != want {
		t.Fatalf("CorrectESPN = %q, want %q", got, want)
	}
	if http := ToHTTP(got, ""); http != "https://www.espn.com/watch/player/_/id/9eb9b68b-11c6-4da0-9492-df997dbbf897" {
		t.Fatalf("http form = %q", http)
	}
}

func TestESPNPlayIDSources(t *testing.T) {
	// Apple tvs.sbd playable id carries a UUID.
	p := catalog.Playable{PlayableID: "tvs.sbd.9001:c0ffee00-1111-2222-3333-444455556666"}
	if got := ESPNPlayID(p, ""); got != "c0ffee00-1111-2222-3333-444455556666" {
		t.Errorf("sbd uuid = %q", got)
	}
	// Spanish feed falls back to the event's own id.
	es := catalog.Playable{Locale: "es_MX"}
	if got := ESPNPlayID(es, "event-pvid-9"); got != "event-pvid-9" {
		t.Errorf("es_MX fallback = %q", got)
	}
	// No candidate at all.
	if got := ESPNPlayID(catalog.Playable{}, "x"); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestCorrectESPNAlreadyCorrected(t *testing.T) {
	raw := "sportscenter://x-callback-url/showWatchStream?playID=abc"
	p := catalog.Playable{ESPNGraphID: "espn-watch:zzz"}
	if got := CorrectESPN(raw, p, ""); got != raw {
		t.Errorf("already-corrected link rewritten: %q", got)
	}
}

func TestCorrectDispatch(t *testing.T) {
	// Non-ESPN, non-Gametime links pass through untouched.
	raw := "pplus://www.paramountplus.com/live"
	if got := Correct(raw, catalog.Playable{}, ""); got != raw {
		t.Errorf("pplus changed: %q", got)
	}
	gt := "gametime://watch/5?itscg=30200"
	if got := Correct(gt, catalog.Playable{}, ""); got != "gametime://watch/5" {
		t.Errorf("gametime strip = %q", got)
	}
}
