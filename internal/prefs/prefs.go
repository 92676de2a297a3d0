// Package prefs loads and persists user preferences and computes the
// filter-UI data derived from them.
package prefs

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/fieldlane/fieldlane/internal/catalog"
	"github.com/fieldlane/fieldlane/internal/deeplink"
	"github.com/fieldlane/fieldlane/internal/services"
	"github.com/fieldlane/fieldlane/internal/store"
)

// Recognized preference keys. Values are stored as JSON in user_prefs.
const (
	KeyEnabledServices   = "enabled_services"
	KeyDisabledSports    = "disabled_sports"
	KeyDisabledLeagues   = "disabled_leagues"
	KeyServicePriorities = "service_priorities"
	KeyAmazonPenalty     = "amazon_penalty"
	KeyLanguage          = "language_preference"
	KeyAutoRefresh       = "auto_refresh_enabled"
	KeyAutoRefreshTime   = "auto_refresh_time"
)

// Preferences is the typed view over the user_prefs table.
type Preferences struct {
	EnabledServices   []string       `json:"enabled_services"`   // empty = allow all
	DisabledSports    []string       `json:"disabled_sports"`
	DisabledLeagues   []string       `json:"disabled_leagues"`
	ServicePriorities map[string]int `json:"service_priorities"` // higher = better
	AmazonPenalty     bool           `json:"amazon_penalty"`
	Language          string         `json:"language_preference"` // "en" | "es" | "both"
	AutoRefresh       bool           `json:"auto_refresh_enabled"`
	AutoRefreshTime   string         `json:"auto_refresh_time"` // "HH:MM" local
}

// Load reads all recognized keys; unset keys keep zero values (Language
// defaults to "both").
func Load(ctx context.Context, st *store.Store) (*Preferences, error) {
	p := &Preferences{Language: "both", AutoRefreshTime: "04:30"}
	for key, dst := range map[string]any{
		KeyEnabledServices:   &p.EnabledServices,
		KeyDisabledSports:    &p.DisabledSports,
		KeyDisabledLeagues:   &p.DisabledLeagues,
		KeyServicePriorities: &p.ServicePriorities,
		KeyAmazonPenalty:     &p.AmazonPenalty,
		KeyLanguage:          &p.Language,
		KeyAutoRefresh:       &p.AutoRefresh,
		KeyAutoRefreshTime:   &p.AutoRefreshTime,
	} {
		if err := st.GetPref(ctx, key, dst); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return p, nil
}

// Save persists every key.
func (p *Preferences) Save(ctx context.Context, st *store.Store) error {
	for key, val := range map[string]any{
		KeyEnabledServices:   p.EnabledServices,
		KeyDisabledSports:    p.DisabledSports,
		KeyDisabledLeagues:   p.DisabledLeagues,
		KeyServicePriorities: p.ServicePriorities,
		KeyAmazonPenalty:     p.AmazonPenalty,
		KeyLanguage:          p.Language,
		KeyAutoRefresh:       p.AutoRefresh,
		KeyAutoRefreshTime:   p.AutoRefreshTime,
	} {
		if err := st.SetPref(ctx, key, val); err != nil {
			return err
		}
	}
	return nil
}

// SelectOptions converts preferences into deeplink selection options.
func (p *Preferences) SelectOptions() deeplink.Options {
	return deeplink.Options{
		EnabledServices:   p.EnabledServices,
		ServicePriorities: p.ServicePriorities,
		AmazonPenalty:     p.AmazonPenalty,
		Language:          p.Language,
	}
}

// AllowsEvent applies the content filters: an event whose sport or league is
// disabled is dropped before deeplink selection ever sees it.
func (p *Preferences) AllowsEvent(e *catalog.Event) bool {
	for _, c := range e.Class {
		switch c.Type {
		case "sport":
			for _, d := range p.DisabledSports {
				if d == c.Value {
					return false
				}
			}
		case "league":
			for _, d := range p.DisabledLeagues {
				if d == c.Value {
					return false
				}
			}
		}
	}
	for _, g := range e.Genres {
		for _, d := range p.DisabledSports {
			if d == g {
				return false
			}
		}
	}
	return true
}

// ServiceOption is one provider entry for the filter UI, with its upcoming
// event count.
type ServiceOption struct {
	Code        string `json:"code"`
	DisplayName string `json:"display_name"`
	Priority    int    `json:"priority"`
	EventCount  int    `json:"event_count"`
}

// Available is what the filter editor renders: providers, sports and leagues
// present in the upcoming window.
type Available struct {
	Services []ServiceOption `json:"services"`
	Sports   []string        `json:"sports"`
	Leagues  []string        `json:"leagues"`
}

// ComputeAvailable scans future events for filterable values.
func ComputeAvailable(events []*catalog.Event, now time.Time) *Available {
	svcEvents := map[string]map[string]bool{}
	sports := map[string]bool{}
	leagues := map[string]bool{}
	for _, e := range events {
		if e.EndMS <= now.UnixMilli() {
			continue
		}
		for _, c := range e.Class {
			switch c.Type {
			case "sport":
				sports[c.Value] = true
			case "league":
				leagues[c.Value] = true
			}
		}
		for _, g := range e.Genres {
			sports[g] = true
		}
		for _, p := range e.Playables {
			if svcEvents[p.LogicalService] == nil {
				svcEvents[p.LogicalService] = map[string]bool{}
			}
			svcEvents[p.LogicalService][e.ID] = true
		}
	}
	av := &Available{}
	for code, evs := range svcEvents {
		av.Services = append(av.Services, ServiceOption{
			Code:        code,
			DisplayName: services.DisplayName(code),
			Priority:    services.DefaultPriority(code),
			EventCount:  len(evs),
		})
	}
	sort.Slice(av.Services, func(i, j int) bool {
		if av.Services[i].EventCount != av.Services[j].EventCount {
			return av.Services[i].EventCount > av.Services[j].EventCount
		}
		return av.Services[i].Code < av.Services[j].Code
	})
	for s := range sports {
		av.Sports = append(av.Sports, s)
	}
	for l := range leagues {
		av.Leagues = append(av.Leagues, l)
	}
	sort.Strings(av.Sports)
	sort.Strings(av.Leagues)
	return av
}

// SelectionExample shows, for one event, which services were available and
// which one selection picked under the current preferences. This is the
// debuggability hook for the deeplink engine.
type SelectionExample struct {
	EventID   string   `json:"event_id"`
	Title     string   `json:"title"`
	StartUTC  string   `json:"start_utc"`
	Available []string `json:"available_services"`
	Chosen    string   `json:"chosen_service,omitempty"`
	Deeplink  string   `json:"deeplink,omitempty"`
	Reason    string   `json:"reason"`
}

// Examples builds selection examples for up to limit upcoming events.
func (p *Preferences) Examples(events []*catalog.Event, now time.Time, limit int) []SelectionExample {
	if limit <= 0 {
		limit = 10
	}
	var out []SelectionExample
	for _, e := range events {
		if len(out) >= limit {
			break
		}
		if e.EndMS <= now.UnixMilli() || len(e.Playables) == 0 {
			continue
		}
		ex := SelectionExample{EventID: e.ID, Title: e.Title, StartUTC: e.StartUTC}
		seen := map[string]bool{}
		for _, pl := range e.Playables {
			if !seen[pl.LogicalService] {
				seen[pl.LogicalService] = true
				ex.Available = append(ex.Available, pl.LogicalService)
			}
		}
		sort.Strings(ex.Available)
		if !p.AllowsEvent(e) {
			ex.Reason = "event dropped by sport/league filter"
			out = append(out, ex)
			continue
		}
		sel := deeplink.Select(e, p.SelectOptions())
		if sel == nil {
			ex.Reason = "no playable survives enabled-services filter"
		} else {
			ex.Chosen = sel.Playable.LogicalService
			ex.Deeplink = sel.URL
			ex.Reason = sel.Reason
		}
		out = append(out, ex)
	}
	return out
}
