package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fieldlane/fieldlane/internal/catalog"
	"github.com/fieldlane/fieldlane/internal/deeplink"
	"github.com/fieldlane/fieldlane/internal/services"
	"github.com/fieldlane/fieldlane/internal/store"
)

// RawEvent is the provider-agnostic shape adapters decode upstream payloads
// into before shared normalization runs.
type RawEvent struct {
	ExternalID    string        `json:"external_id"`
	Title         string        `json:"title"`
	ShortTitle    string        `json:"short_title"`
	Synopsis      string        `json:"synopsis"`
	BriefSynopsis string        `json:"brief_synopsis"`
	ChannelName   string        `json:"channel_name"`
	ChannelID     string        `json:"channel_id"`
	StartMS       int64         `json:"start_ms"`
	EndMS         int64         `json:"end_ms"`
	IsFree        bool          `json:"is_free"`
	IsPremium     bool          `json:"is_premium"`
	IsReair       bool          `json:"is_reair"`
	Category      string        `json:"category"`
	SportHints    []string      `json:"sport_hints"` // raw sport/genre strings from the source
	League        string        `json:"league"`
	Images        []RawImage    `json:"images"`
	Playables     []RawPlayable `json:"playables"`
	RawPayload    string        `json:"raw_payload"`
}

type RawImage struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type RawPlayable struct {
	PlayableID   string `json:"playable_id"`
	Provider     string `json:"provider"` // raw scheme or "https"
	ServiceName  string `json:"service_name"`
	DeeplinkPlay string `json:"deeplink_play"`
	DeeplinkOpen string `json:"deeplink_open"`
	PlayableURL  string `json:"playable_url"`
	Variant      string `json:"variant"`
	ContentID    string `json:"content_id"`
	Locale       string `json:"locale"`
	ESPNGraphID  string `json:"espn_graph_id"`
}

// AmazonLookup resolves a GTI to an aiv sub-service code.
type AmazonLookup func(gti string) (string, bool)

// Normalize turns a raw upstream event into a catalog row, or returns a
// non-empty drop reason. prefix namespaces ids per provider (inv: id =
// "{prefix}-{externalId}"). The logical service is always recomputed here,
// never trusted from upstream.
func Normalize(raw *RawEvent, prefix string, now time.Time, amazon AmazonLookup) (*catalog.Event, string) {
	if raw.ExternalID == "" {
		return nil, "missing external id"
	}
	sports := catalog.NormalizeSports(append([]string{raw.Category}, raw.SportHints...))
	if reason := catalog.DropReason(raw.Title, raw.Category, sports, now); reason != "" {
		return nil, reason
	}
	if raw.StartMS <= 0 || raw.EndMS <= raw.StartMS {
		return nil, "invalid times"
	}

	e := &catalog.Event{
		ID:            fmt.Sprintf("%s-%s", prefix, raw.ExternalID),
		PVID:          raw.ExternalID,
		Title:         strings.TrimSpace(raw.Title),
		ShortTitle:    strings.TrimSpace(raw.ShortTitle),
		Synopsis:      strings.TrimSpace(raw.Synopsis),
		BriefSynopsis: strings.TrimSpace(raw.BriefSynopsis),
		ChannelName:   raw.ChannelName,
		ChannelID:     raw.ChannelID,
		StartMS:       raw.StartMS,
		EndMS:         raw.EndMS,
		IsFree:        raw.IsFree,
		IsPremium:     raw.IsPremium,
		IsReair:       raw.IsReair,
		Genres:        sports,
		RawPayload:    raw.RawPayload,
		LastSeen:      now,
	}
	e.StampTimes()

	for _, s := range sports {
		e.Class = append(e.Class, catalog.Classification{Type: "sport", Value: s})
	}
	if raw.League != "" {
		e.Class = append(e.Class, catalog.Classification{Type: "league", Value: raw.League})
	}

	var candidates []string
	for _, img := range raw.Images {
		e.Images = append(e.Images, catalog.EventImage{EventID: e.ID, Type: img.Type, URL: img.URL})
		candidates = append(candidates, img.URL)
	}
	sport := ""
	if len(sports) > 0 {
		sport = sports[0]
	}
	e.HeroImageURL = catalog.HeroImage(sport, candidates...)

	for _, rp := range raw.Playables {
		p := catalog.Playable{
			EventID:      e.ID,
			PlayableID:   rp.PlayableID,
			Provider:     rp.Provider,
			ServiceName:  rp.ServiceName,
			DeeplinkPlay: rp.DeeplinkPlay,
			DeeplinkOpen: rp.DeeplinkOpen,
			PlayableURL:  rp.PlayableURL,
			Variant:      rp.Variant,
			ContentID:    rp.ContentID,
			Locale:       rp.Locale,
			ESPNGraphID:  rp.ESPNGraphID,
			CreatedAt:    now,
		}
		if p.PlayableID == "" {
			p.PlayableID = fmt.Sprintf("%s-p%d", e.ID, len(e.Playables))
		}
		logical := services.Map(rp.Provider, rp.DeeplinkPlay, rp.DeeplinkOpen, rp.PlayableURL, e.Class)
		if amazon != nil {
			logical = services.RemapAmazon(logical, p.BestURL(), amazon)
		}
		p.LogicalService = logical
		p.Priority = services.DefaultPriority(logical)
		p.HTTPDeeplink = deeplink.ToHTTP(p.BestURL(), p.Locale)
		e.Playables = append(e.Playables, p)
	}

	return e, ""
}

// UpsertNormalized pushes a batch of raw events through Normalize and into
// the store. Returns (upserted, dropped, failures).
func UpsertNormalized(ctx context.Context, st *store.Store, raws []RawEvent, prefix string, now time.Time, amazon AmazonLookup) (int, int, []string) {
	upserted, dropped := 0, 0
	var failures []string
	for i := range raws {
		e, reason := Normalize(&raws[i], prefix, now, amazon)
		if reason != "" {
			dropped++
			continue
		}
		if err := st.UpsertEvent(ctx, e); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", e.ID, err))
			continue
		}
		upserted++
	}
	return upserted, dropped, failures
}
