// Package services owns logical-service identity: the mapping from raw
// provider schemes and URLs to stable service codes, plus the display-name,
// priority and lane-aggregation tables keyed by those codes.
//
// A logical service is distinct from a URL scheme: an https deeplink may be
// Peacock, Max or F1TV depending on its hostname, while `aiv://` may resolve
// to one of several Amazon channel subscriptions.
package services

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/fieldlane/fieldlane/internal/catalog"
)

// hostTable classifies web deeplinks by hostname. Longest-suffix match wins so
// f1tv.formula1.com beats a hypothetical formula1.com row.
var hostTable = map[string]string{
	"peacocktv.com":      "peacock_web",
	"max.com":            "max",
	"play.max.com":       "max",
	"f1tv.formula1.com":  "f1tv",
	"tv.apple.com":       "apple_tv",
	"espn.com":           "espn_web",
	"plus.espn.com":      "espn_plus",
	"paramountplus.com":  "pplus_web",
	"cbssports.com":      "cbs_sports_web",
	"foxsports.com":      "fox_sports_web",
	"dazn.com":           "dazn_web",
	"open.dazn.com":      "dazn_web",
	"kayosports.com.au":  "kayo",
	"beinsports.com":     "bein",
	"connect.beinsports.com": "bein",
	"fanatiz.com":        "fanatiz",
	"victoryplus.com":    "victory",
	"watch.gotham.tv":    "gotham",
	"gothamsports.com":   "gotham",
	"primevideo.com":     "aiv",
	"app.primevideo.com": "aiv",
	"amazon.com":         "aiv",
	"nbcsports.com":      "nbc_sports_web",
	"vix.com":            "vix_web",
	"nfl.com":            "nfl_web",
	"tntdrama.com":       "tnt_web",
	"trutv.com":          "trutv_web",
}

// appleLeagueRouting splits the single tv.apple.com identity by league so the
// per-league Apple subscriptions can be filtered and prioritized separately.
var appleLeagueRouting = map[string]string{
	"MLS": "apple_mls",
	"MLB": "apple_mlb",
	"NBA": "apple_nba",
	"NHL": "apple_nhl",
}

// Map resolves the stable logical service for a playable.
//
// App-scheme providers (aiv, sportscenter, pplus, …) pass through unchanged:
// the scheme itself is the identity. Web providers ("", http, https) are
// classified by the hostname of the first non-empty URL; tv.apple.com is
// further routed by the event's league classification. The default is
// "https" (Web — Other).
func Map(rawProvider, deeplinkPlay, deeplinkOpen, playableURL string, class []catalog.Classification) string {
	raw := strings.ToLower(strings.TrimSpace(rawProvider))
	if raw != "" && raw != "http" && raw != "https" {
		return raw
	}
	host := firstHost(deeplinkPlay, deeplinkOpen, playableURL)
	if host == "" {
		return "https"
	}
	code := lookupHost(host)
	if code == "" {
		return "https"
	}
	if code == "apple_tv" {
		for _, c := range class {
			if c.Type != "league" {
				continue
			}
			if routed, ok := appleLeagueRouting[strings.ToUpper(c.Value)]; ok {
				return routed
			}
		}
		return "apple_other"
	}
	return code
}

func firstHost(urls ...string) string {
	for _, raw := range urls {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Hostname() == "" {
			continue
		}
		return strings.ToLower(u.Hostname())
	}
	return ""
}

func lookupHost(host string) string {
	host = strings.TrimPrefix(host, "www.")
	for h := host; h != ""; {
		if code, ok := hostTable[h]; ok {
			return code
		}
		idx := strings.Index(h, ".")
		if idx < 0 {
			break
		}
		h = h[idx+1:]
	}
	return ""
}

var gtiPattern = regexp.MustCompile(`amzn1\.dv\.gti\.[0-9a-fA-F-]+`)

// ExtractGTI pulls the Amazon Global Title Identifier out of an aiv deeplink,
// or returns "".
func ExtractGTI(deeplink string) string {
	return gtiPattern.FindString(deeplink)
}

// RemapAmazon resolves an aiv playable to its channel-specific sub-service
// (aiv_peacock, aiv_max, …) using the persisted GTI→service map produced by
// the Amazon channel crawler. Unknown GTIs keep plain "aiv".
func RemapAmazon(logical, deeplink string, lookup func(gti string) (string, bool)) string {
	if logical != "aiv" || lookup == nil {
		return logical
	}
	gti := ExtractGTI(deeplink)
	if gti == "" {
		return logical
	}
	if sub, ok := lookup(gti); ok && sub != "" {
		return sub
	}
	return logical
}

// IsAmazon reports whether a logical service is Amazon-backed (base aiv or
// any channel sub-service). Used by the Amazon-penalty preference.
func IsAmazon(logical string) bool {
	return logical == "aiv" || strings.HasPrefix(logical, "aiv_")
}
