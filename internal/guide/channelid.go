package guide

import (
	"fmt"
	"strings"
	"time"

	"github.com/fieldlane/fieldlane/internal/catalog"
)

// Channel ids must match between XMLTV and M3U or the DVR cannot link guide
// data to streams. One rule, used by both emitters: "fdl." + a sanitized
// stable token.

// Sanitize reduces a token to [a-z0-9.-]; runs of anything else collapse to
// one hyphen.
func Sanitize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastHyphen := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// DirectChannelID derives the stable channel id for a direct (per-event)
// channel: event id first, then pvid, then title+start as a last resort.
func DirectChannelID(e *catalog.Event) string {
	token := e.ID
	if token == "" {
		token = e.PVID
	}
	if token == "" {
		token = fmt.Sprintf("%s.%s", e.Title, time.UnixMilli(e.StartMS).UTC().Format("20060102150405"))
	}
	return "fdl." + Sanitize(token)
}

// LaneChannelID is the channel id for generic lane N.
func LaneChannelID(laneID int) string {
	return fmt.Sprintf("fdl.lane%d", laneID)
}

// ADBChannelID is the channel id for a provider-scoped lane.
func ADBChannelID(providerCode string, laneNumber int) string {
	return fmt.Sprintf("fdl.%s%02d", Sanitize(providerCode), laneNumber)
}
