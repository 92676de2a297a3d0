// Package deeplink models provider deeplinks as a tagged variant and owns the
// three operations every emitter and resolver needs: ESPN graph correction,
// scheme→HTTP conversion, and preference-driven selection among an event's
// playables.
package deeplink

import (
	"net/url"
	"strings"
)

// Kind tags the provider family a deeplink belongs to. Conversion and
// correction dispatch on Kind instead of re-parsing strings at every call
// site.
type Kind int

const (
	KindUnknown Kind = iota
	KindHTTP         // already a web URL
	KindAmazon       // aiv://
	KindESPN         // sportscenter://
	KindParamount    // pplus://
	KindCBSTVE       // cbstve://
	KindCBSSports    // cbssportsapp://
	KindDAZN         // open.dazn.com://
	KindVix          // vixapp://
	KindFoxSports    // fsapp://
	KindFoxOne       // foxone://
	KindTNT          // watchtnt://
	KindTruTV        // watchtru://
	KindGametime     // gametime://
	KindNBCSports    // nbcsportstve://
	KindNFL          // nflctv://
)

var schemeKinds = map[string]Kind{
	"http":          KindHTTP,
	"https":         KindHTTP,
	"aiv":           KindAmazon,
	"sportscenter":  KindESPN,
	"pplus":         KindParamount,
	"cbstve":        KindCBSTVE,
	"cbssportsapp":  KindCBSSports,
	"open.dazn.com": KindDAZN,
	"vixapp":        KindVix,
	"fsapp":         KindFoxSports,
	"foxone":        KindFoxOne,
	"watchtnt":      KindTNT,
	"watchtru":      KindTruTV,
	"gametime":      KindGametime,
	"nbcsportstve":  KindNBCSports,
	"nflctv":        KindNFL,
}

// Link is a parsed deeplink. Raw is always the original string; the parsed
// URL may be nil for schemes net/url cannot digest.
type Link struct {
	Kind   Kind
	Scheme string
	Raw    string
	URL    *url.URL
}

// Parse classifies a deeplink string. Never fails: unparseable input comes
// back as KindUnknown with Raw preserved so callers can still emit it.
func Parse(raw string) Link {
	raw = strings.TrimSpace(raw)
	l := Link{Kind: KindUnknown, Raw: raw}
	if raw == "" {
		return l
	}
	// Some providers use dotted schemes (open.dazn.com://...) that net/url
	// refuses; split manually first.
	if idx := strings.Index(raw, "://"); idx > 0 {
		l.Scheme = strings.ToLower(raw[:idx])
	}
	if k, ok := schemeKinds[l.Scheme]; ok {
		l.Kind = k
	}
	if u, err := url.Parse(raw); err == nil {
		l.URL = u
		if l.Scheme == "" {
			l.Scheme = strings.ToLower(u.Scheme)
			if k, ok := schemeKinds[l.Scheme]; ok {
				l.Kind = k
			}
		}
	}
	return l
}

// IsHTTP reports whether the link is already a plain web URL.
func (l Link) IsHTTP() bool { return l.Kind == KindHTTP }

// rest returns everything after "scheme://".
func (l Link) rest() string {
	if idx := strings.Index(l.Raw, "://"); idx >= 0 {
		return l.Raw[idx+3:]
	}
	return l.Raw
}

// queryParam returns a query parameter from the raw string, tolerating
// schemes the URL parser mangles.
func (l Link) queryParam(key string) string {
	if l.URL != nil {
		if v := l.URL.Query().Get(key); v != "" {
			return v
		}
	}
	qIdx := strings.Index(l.Raw, "?")
	if qIdx < 0 {
		return ""
	}
	vals, err := url.ParseQuery(l.Raw[qIdx+1:])
	if err != nil {
		return ""
	}
	return vals.Get(key)
}
