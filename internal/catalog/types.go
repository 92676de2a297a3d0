// Package catalog defines the normalized event model shared by ingesters,
// the lane scheduler and the guide emitters.
package catalog

import (
	"fmt"
	"time"
)

// Classification tags an event with a sport or league.
type Classification struct {
	Type  string `json:"type"` // "sport" | "league"
	Value string `json:"value"`
}

// Event is one airing of a single title at a single start/stop.
// StartMS/EndMS (epoch milliseconds) are authoritative for ordering; the ISO
// strings are carried for artifact output and debugging.
type Event struct {
	ID            string // "{providerPrefix}-{externalId}"
	PVID          string // provider's external id; events without one are never emitted
	Title         string
	ShortTitle    string
	Synopsis      string
	BriefSynopsis string
	ChannelName   string // human-readable channel / league label
	ChannelID     string // raw source tag
	StartUTC      string // ISO-8601
	EndUTC        string
	StartMS       int64
	EndMS         int64
	RuntimeSecs   int64
	IsFree        bool
	IsPremium     bool
	IsReair       bool
	HeroImageURL  string
	Genres        []string // normalized sports only; leagues never land here
	Class         []Classification
	RawPayload    string // opaque upstream JSON, kept for live-detection heuristics
	LastSeen      time.Time

	Playables []Playable
	Images    []EventImage
}

// Start returns the authoritative start time.
func (e *Event) Start() time.Time { return time.UnixMilli(e.StartMS).UTC() }

// End returns the authoritative end time.
func (e *Event) End() time.Time { return time.UnixMilli(e.EndMS).UTC() }

// Sport returns the first sport classification, or "".
func (e *Event) Sport() string {
	for _, c := range e.Class {
		if c.Type == "sport" {
			return c.Value
		}
	}
	if len(e.Genres) > 0 {
		return e.Genres[0]
	}
	return ""
}

// League returns the first league classification, or "".
func (e *Event) League() string {
	for _, c := range e.Class {
		if c.Type == "league" {
			return c.Value
		}
	}
	return ""
}

// Validate enforces the ingest invariants every stored event must satisfy.
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event missing id")
	}
	if e.PVID == "" {
		return fmt.Errorf("event %s missing pvid", e.ID)
	}
	if e.StartMS <= 0 || e.EndMS <= 0 {
		return fmt.Errorf("event %s missing epoch times", e.ID)
	}
	if e.EndMS <= e.StartMS {
		return fmt.Errorf("event %s end %d <= start %d", e.ID, e.EndMS, e.StartMS)
	}
	if e.StartUTC == "" || e.EndUTC == "" {
		return fmt.Errorf("event %s missing ISO times", e.ID)
	}
	return nil
}

// StampTimes fills the redundant time fields from StartMS/EndMS so invariant 1
// and 2 hold by construction. Ingesters call this after setting epoch times.
func (e *Event) StampTimes() {
	e.StartUTC = time.UnixMilli(e.StartMS).UTC().Format(time.RFC3339)
	e.EndUTC = time.UnixMilli(e.EndMS).UTC().Format(time.RFC3339)
	e.RuntimeSecs = (e.EndMS - e.StartMS) / 1000
}

// Playable is one way to watch an event: a deeplink plus routing metadata.
// (EventID, PlayableID) is the composite key.
type Playable struct {
	EventID        string
	PlayableID     string
	Provider       string // raw scheme: aiv, sportscenter, pplus, https, …
	ServiceName    string // human label from the source
	LogicalService string // stable code from the service mapper; recomputed at ingest
	DeeplinkPlay   string // preferred scheme URL
	DeeplinkOpen   string // fallback scheme URL
	HTTPDeeplink   string // converted HTTP URL; "" when no conversion exists
	PlayableURL    string // native web URL if any
	Variant        string // title / feed variant label
	ContentID      string
	Locale         string // en_US, es_MX, ""
	Priority       int    // higher = preferred (legacy rows are inverted at load)
	ESPNGraphID    string // "espn-watch:{playID}[:{hash}]" enrichment, when known
	CreatedAt      time.Time
}

// BestURL returns the first non-empty deeplink in preference order.
func (p *Playable) BestURL() string {
	for _, u := range []string{p.DeeplinkPlay, p.DeeplinkOpen, p.PlayableURL} {
		if u != "" {
			return u
		}
	}
	return ""
}

// EventImage is a de-duplicated (event, type, url) triple.
type EventImage struct {
	EventID string
	Type    string
	URL     string
}
