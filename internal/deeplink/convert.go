package deeplink

import (
	"net/url"
	"strings"
)

// cbsLeagueSlugs maps CBS league tokens (the "LET" in cbssportsapp paths) to
// the slug cbssports.com expects. Unlisted tokens fall through to Slugify.
var cbsLeagueSlugs = map[string]string{
	"nfl":    "nfl",
	"ncaaf":  "college-football",
	"ncaab":  "college-basketball",
	"nba":    "nba",
	"mlb":    "mlb",
	"nhl":    "nhl",
	"soccer": "soccer",
	"golf":   "golf",
	"wnba":   "wnba",
}

// ToHTTP converts a scheme deeplink to the equivalent web URL for clients
// that cannot open app schemes (Android/Fire TV sideload, Chrome capture).
// Pure string work, no network. Returns "" when no conversion exists; the
// caller decides whether to keep the scheme URL or skip the playable.
//
// locale steers locale-scoped web hosts (ViX); pass the playable's locale or
// "".
func ToHTTP(raw, locale string) string {
	l := Parse(raw)
	switch l.Kind {
	case KindHTTP:
		return l.Raw

	case KindAmazon:
		// aiv://aiv/detail?gti=X&… → https://app.primevideo.com/detail?gti=X
		if gti := l.queryParam("gti"); gti != "" {
			return "https://app.primevideo.com/detail?gti=" + url.QueryEscape(gti)
		}
		return ""

	case KindESPN:
		// sportscenter://…playID=U… → https://www.espn.com/watch/player/_/id/U
		if playID := l.queryParam("playID"); playID != "" {
			return "https://www.espn.com/watch/player/_/id/" + url.PathEscape(playID)
		}
		return ""

	case KindParamount, KindCBSTVE:
		// pplus://host/path → https://host/path (same for cbstve)
		rest := strings.TrimPrefix(l.rest(), "/")
		if rest == "" {
			return ""
		}
		return "https://" + rest

	case KindDAZN:
		// open.dazn.com://path → https://open.dazn.com/path
		rest := strings.TrimPrefix(l.rest(), "/")
		return strings.TrimSuffix("https://open.dazn.com/"+rest, "/")

	case KindVix:
		// vixapp://live/ID?play → https://vix.com/{locale}/live/ID?play
		seg := "es"
		if strings.HasPrefix(strings.ToLower(locale), "en") {
			seg = "en"
		}
		rest := strings.TrimPrefix(l.rest(), "/")
		if rest == "" {
			return ""
		}
		return "https://vix.com/" + seg + "/" + rest

	case KindFoxSports:
		// fsapp://live/FS1?… → https://www.foxsports.com/live/fs1?…
		rest := strings.TrimPrefix(l.rest(), "/")
		path, query, _ := strings.Cut(rest, "?")
		out := "https://www.foxsports.com/" + strings.ToLower(path)
		if query != "" {
			out += "?" + query
		}
		return out

	case KindFoxOne:
		// foxone://channel/FS1 → https://www.foxsports.com/live/fs1
		rest := strings.TrimPrefix(l.rest(), "/")
		if ch, ok := strings.CutPrefix(rest, "channel/"); ok && ch != "" {
			return "https://www.foxsports.com/live/" + strings.ToLower(ch)
		}
		return ""

	case KindTNT:
		// watchtnt://play… → https://www.tntdrama.com/watchtnt…
		return "https://www.tntdrama.com/watchtnt" + strings.TrimPrefix(l.rest(), "/")

	case KindTruTV:
		return "https://www.trutv.com/watchtrutv" + strings.TrimPrefix(l.rest(), "/")

	case KindGametime:
		// Gametime has no web player; stay on the scheme but strip Apple
		// campaign tracking query params.
		return ""

	case KindNBCSports:
		// No stable event-level web URL is known; land on the live schedule.
		return "https://www.nbcsports.com/watch/schedule"

	case KindCBSSports:
		// cbssportsapp://home/watch/NFL-123?… →
		// https://www.cbssports.com/watch/nfl/NFL-123
		rest := strings.TrimPrefix(l.rest(), "/")
		rest, _, _ = strings.Cut(rest, "?")
		last := rest
		if idx := strings.LastIndex(rest, "/"); idx >= 0 {
			last = rest[idx+1:]
		}
		if last == "" {
			return ""
		}
		league, _, _ := strings.Cut(last, "-")
		slug, ok := cbsLeagueSlugs[strings.ToLower(league)]
		if !ok {
			slug = Slugify(league)
		}
		return "https://www.cbssports.com/watch/" + slug + "/" + last

	case KindNFL:
		// Event-level NFL+ web URLs are not addressable; land on the hub.
		return "https://www.nfl.com/plus/"
	}

	// Last resort: scheme://www.domain/… reads like a web URL with the wrong
	// scheme.
	rest := strings.TrimPrefix(l.rest(), "/")
	if strings.HasPrefix(rest, "www.") && strings.Contains(rest, ".") {
		return "https://" + rest
	}
	return ""
}

// appleTrackingParams are the campaign query keys Gametime deeplinks carry
// when scraped from Apple TV; the app rejects links that include them.
var appleTrackingParams = map[string]bool{
	"itscg": true, "itsct": true, "mttnsubad": true, "mttn3pid": true,
	"mttnagencyid": true, "mttnsiteid": true, "mttnsub1": true, "cid": true,
}

// StripTracking removes Apple campaign tracking params from a scheme URL,
// keeping everything else intact. Used for gametime:// which must stay a
// scheme link.
func StripTracking(raw string) string {
	base, query, found := strings.Cut(raw, "?")
	if !found {
		return raw
	}
	vals, err := url.ParseQuery(query)
	if err != nil {
		return base
	}
	for k := range vals {
		if appleTrackingParams[strings.ToLower(k)] {
			vals.Del(k)
		}
	}
	if enc := vals.Encode(); enc != "" {
		return base + "?" + enc
	}
	return base
}

// Slugify lowercases and hyphenates a token for URL path use.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastHyphen := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
