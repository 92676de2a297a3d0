package deeplink

import (
	"sort"
	"strings"

	"github.com/fieldlane/fieldlane/internal/catalog"
	"github.com/fieldlane/fieldlane/internal/services"
)

// amazonPenalty is subtracted from every Amazon candidate when the user has
// the penalty enabled and at least one non-Amazon candidate survives
// filtering. Large enough to outrank any priority override.
const amazonPenalty = 1000

// Options carries the user preferences the selection engine honors.
type Options struct {
	EnabledServices   []string       // empty = allow all
	ServicePriorities map[string]int // overrides; higher = better
	AmazonPenalty     bool
	Language          string // "en" | "es" | "both"
}

// Format selects the URL shape of the returned deeplink.
type Format int

const (
	FormatScheme Format = iota // app-scheme URL (Apple TV)
	FormatHTTP                 // converted web URL (Android/Fire TV, Chrome)
)

// Selection is the outcome of choosing one playable for an event.
type Selection struct {
	Playable  catalog.Playable
	URL       string // corrected scheme URL
	HTTPURL   string // converted web URL, "" when no conversion exists
	Score     int
	Reason    string // human-readable, for the selection-examples endpoint
	Survivors int    // how many playables survived filtering
}

func (o Options) enabled(logical string) bool {
	if len(o.EnabledServices) == 0 {
		return true
	}
	for _, s := range o.EnabledServices {
		if s == logical {
			return true
		}
	}
	return false
}

func (o Options) localeAllowed(locale string) bool {
	switch o.Language {
	case "", "both":
		return true
	case "en":
		return locale == "" || strings.HasPrefix(strings.ToLower(locale), "en")
	case "es":
		return locale == "" || strings.HasPrefix(strings.ToLower(locale), "es")
	}
	return true
}

func (o Options) score(logical string) int {
	if v, ok := o.ServicePriorities[logical]; ok {
		return v
	}
	return services.DefaultPriority(logical)
}

// Select picks the best playable for an event under opts and returns it with
// its corrected scheme URL and converted HTTP URL. Returns nil when no
// playable survives filtering.
//
// Ordering: priority score (user override, else service default), with the
// Amazon penalty applied when a non-Amazon alternative exists. Ties break on
// the playable's stored priority, then on insertion order.
func Select(e *catalog.Event, opts Options) *Selection {
	type candidate struct {
		p     catalog.Playable
		score int
		idx   int
	}
	var cands []candidate
	nonAmazon := false
	for i, p := range e.Playables {
		if !opts.enabled(p.LogicalService) {
			continue
		}
		if !opts.localeAllowed(p.Locale) {
			continue
		}
		if p.BestURL() == "" {
			continue
		}
		if !services.IsAmazon(p.LogicalService) {
			nonAmazon = true
		}
		cands = append(cands, candidate{p: p, score: opts.score(p.LogicalService), idx: i})
	}
	// A Spanish-only event under an "en" preference must still emit: relax the
	// locale filter rather than dropping the event (the ESPN correction later
	// rewrites the playID so the app lands on the English stream).
	if len(cands) == 0 && opts.Language != "" && opts.Language != "both" {
		for i, p := range e.Playables {
			if !opts.enabled(p.LogicalService) || p.BestURL() == "" {
				continue
			}
			if !services.IsAmazon(p.LogicalService) {
				nonAmazon = true
			}
			cands = append(cands, candidate{p: p, score: opts.score(p.LogicalService), idx: i})
		}
	}
	if len(cands) == 0 {
		return nil
	}

	penalized := false
	if opts.AmazonPenalty && nonAmazon {
		for i := range cands {
			if services.IsAmazon(cands[i].p.LogicalService) {
				cands[i].score -= amazonPenalty
				penalized = true
			}
		}
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		if cands[i].p.Priority != cands[j].p.Priority {
			return cands[i].p.Priority > cands[j].p.Priority
		}
		return cands[i].idx < cands[j].idx
	})

	best := cands[0]
	raw := Correct(best.p.BestURL(), best.p, e.PVID)
	httpURL := best.p.HTTPDeeplink
	if conv := ToHTTP(raw, best.p.Locale); conv != "" {
		httpURL = conv
	}

	reason := "highest priority among enabled"
	if len(cands) == 1 {
		reason = "only enabled service"
	}
	if penalized && !services.IsAmazon(best.p.LogicalService) {
		reason += " (Amazon deprioritized)"
	}

	return &Selection{
		Playable:  best.p,
		URL:       raw,
		HTTPURL:   httpURL,
		Score:     best.score,
		Reason:    reason,
		Survivors: len(cands),
	}
}

// ForFormat returns the URL for the requested format, falling back to the
// scheme URL when no HTTP conversion exists.
func (s *Selection) ForFormat(f Format) string {
	if f == FormatHTTP && s.HTTPURL != "" {
		return s.HTTPURL
	}
	return s.URL
}
