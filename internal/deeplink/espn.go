package deeplink

import (
	"regexp"
	"strings"

	"github.com/fieldlane/fieldlane/internal/catalog"
)

// Apple enriches ESPN playables scraped from tv.apple.com with a graph token
// "espn-watch:{playID}[:{hash}]". The playID inside is the only identifier
// the ESPN app resolves reliably; the playChannel= form Apple hands out dies
// on a "channel not available" screen. Correcting the link is the single most
// load-bearing fix in the emit path, so it is applied both at selection time
// and again by every emitter.

const espnCorrectedPrefix = "sportscenter://x-callback-url/showWatchStream?playID="

var (
	espnGraphToken = regexp.MustCompile(`^espn-watch:([^:]+)`)
	appleSBDToken  = regexp.MustCompile(`tvs\.sbd\.\d+:([0-9a-fA-F-]{36})`)
)

// ESPNPlayID extracts the playID to use for an ESPN playable:
// graph token first, then a UUID embedded in an Apple tvs.sbd playable id,
// then — for locale feeds the app cannot route (es_MX rows under an "en"
// preference) — the event's own external id, which resolves the main English
// stream. Returns "" when no candidate exists.
func ESPNPlayID(p catalog.Playable, eventPVID string) string {
	if m := espnGraphToken.FindStringSubmatch(p.ESPNGraphID); m != nil {
		return m[1]
	}
	if m := appleSBDToken.FindStringSubmatch(p.PlayableID); m != nil {
		return m[1]
	}
	if strings.EqualFold(p.Locale, "es_MX") && eventPVID != "" {
		return eventPVID
	}
	return ""
}

// CorrectESPN rewrites a sportscenter:// playChannel deeplink to the
// showWatchStream?playID= form when a playID can be derived. Non-ESPN links
// and already-corrected links pass through untouched.
func CorrectESPN(raw string, p catalog.Playable, eventPVID string) string {
	l := Parse(raw)
	if l.Kind != KindESPN {
		return raw
	}
	if l.queryParam("playID") != "" {
		return raw
	}
	playID := ESPNPlayID(p, eventPVID)
	if playID == "" {
		return raw
	}
	return espnCorrectedPrefix + playID
}

// Correct applies every provider-specific fix to a selected deeplink:
// ESPN playChannel→playID rewrite and Gametime tracking-param strip.
func Correct(raw string, p catalog.Playable, eventPVID string) string {
	l := Parse(raw)
	switch l.Kind {
	case KindESPN:
		return CorrectESPN(raw, p, eventPVID)
	case KindGametime:
		return StripTracking(raw)
	}
	return raw
}
