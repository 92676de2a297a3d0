// Package resolver answers "what's on lane L at time T" and turns the answer
// into a deeplink, including the padding-window fallback that keeps a lane
// watchable for a few minutes after its event ends.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fieldlane/fieldlane/internal/catalog"
	"github.com/fieldlane/fieldlane/internal/deeplink"
	"github.com/fieldlane/fieldlane/internal/prefs"
	"github.com/fieldlane/fieldlane/internal/services"
	"github.com/fieldlane/fieldlane/internal/store"
)

// ErrNoEvent means the lane has nothing applicable at the requested time.
// Not a failure: the HTTP layer maps it to ok:false / empty body.
var ErrNoEvent = errors.New("no event on lane")

// Answer is a resolved lane slot.
type Answer struct {
	OK          bool   `json:"ok"`
	Lane        int    `json:"lane"`
	EventUID    string `json:"event_uid,omitempty"`
	Title       string `json:"title,omitempty"`
	DeeplinkURL string `json:"deeplink_url,omitempty"`
	// DeeplinkURLFull is always the HTTP form when one exists, regardless of
	// the requested format; detector clients use it to build browser links.
	DeeplinkURLFull string `json:"deeplink_url_full,omitempty"`
	IsFallback      bool   `json:"is_fallback"`
	IsPlaceholder   bool   `json:"is_placeholder,omitempty"`
	LogicalService  string `json:"logical_service,omitempty"`
}

// Resolver reads lane plans and the catalog.
type Resolver struct {
	Store   *store.Store
	Padding time.Duration // fallback window after a real slot ends
}

// WhatsOn resolves the generic lane at time t. A lane keeps answering with
// the just-ended event's deeplink, flagged IsFallback, for the padding window
// after the event's real end; past that window the lane reads idle even when
// the padded slot still covers t (generic lanes only; ADB lanes intentionally
// do not fall back).
func (r *Resolver) WhatsOn(ctx context.Context, laneID int, t time.Time, format deeplink.Format) (*Answer, error) {
	slot, err := r.Store.CurrentLaneSlot(ctx, laneID, t)
	if errors.Is(err, store.ErrNotFound) {
		return &Answer{OK: false, Lane: laneID}, ErrNoEvent
	}
	if err != nil {
		return nil, fmt.Errorf("lane %d lookup: %w", laneID, err)
	}

	onPlaceholder := slot.IsPlaceholder
	if onPlaceholder {
		prev, perr := r.Store.PreviousRealSlot(ctx, laneID, t)
		if perr != nil {
			return &Answer{OK: false, Lane: laneID, IsPlaceholder: true}, ErrNoEvent
		}
		slot = prev
	}

	ans, e, err := r.answerFor(ctx, laneID, slot, format)
	if err != nil {
		return nil, err
	}
	// Stored slot ends include the scheduling padding; the fallback window is
	// measured from the event's real end.
	realEnd := realEventEnd(e, slot, r.Padding)
	switch {
	case t.Before(realEnd):
		return ans, nil
	case t.Sub(realEnd) <= r.Padding:
		ans.IsFallback = true
		return ans, nil
	}
	return &Answer{OK: false, Lane: laneID, IsPlaceholder: onPlaceholder}, ErrNoEvent
}

// realEventEnd recovers the event's actual end. When the catalog row is gone
// (hygiene pruned it) the padded slot end minus the padding stands in.
func realEventEnd(e *catalog.Event, slot *store.LaneSlot, padding time.Duration) time.Time {
	if e != nil && e.EndMS > 0 {
		return time.UnixMilli(e.EndMS)
	}
	return time.UnixMilli(slot.EndMS).Add(-padding)
}

func (r *Resolver) answerFor(ctx context.Context, laneID int, slot *store.LaneSlot, format deeplink.Format) (*Answer, *catalog.Event, error) {
	ans := &Answer{
		OK:             true,
		Lane:           laneID,
		EventUID:       slot.EventID,
		LogicalService: slot.ChosenLogicalService,
	}
	e, err := r.Store.EventByID(ctx, slot.EventID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, nil, err
	}
	if e != nil {
		ans.Title = e.Title
	}

	scheme := slot.ChosenDeeplink
	httpURL := ""
	if e != nil {
		// Re-run correction at resolve time: the frozen link may predate an
		// enrichment (ESPN graph ids often arrive on a later refresh).
		if p := playableByID(e, slot.ChosenPlayableID); p != nil {
			scheme = deeplink.Correct(scheme, *p, e.PVID)
			httpURL = deeplink.ToHTTP(scheme, p.Locale)
		}
	}
	if httpURL == "" {
		httpURL = deeplink.ToHTTP(scheme, "")
	}
	ans.DeeplinkURLFull = httpURL
	if format == deeplink.FormatHTTP && httpURL != "" {
		ans.DeeplinkURL = httpURL
	} else {
		ans.DeeplinkURL = scheme
	}
	return ans, e, nil
}

func playableByID(e *catalog.Event, playableID string) *catalog.Playable {
	for i := range e.Playables {
		if e.Playables[i].PlayableID == playableID {
			return &e.Playables[i]
		}
	}
	return nil
}

// WhatsOnADB resolves a provider-scoped lane. User filters are enforced: if
// the provider has no service in the enabled set, the lane reads as empty.
// The deeplink is selected at resolve time from the event's playables scoped
// to the provider's services (ADB slots do not freeze deeplinks).
func (r *Resolver) WhatsOnADB(ctx context.Context, providerCode string, laneNumber int, t time.Time, userPrefs *prefs.Preferences, format deeplink.Format) (*Answer, error) {
	svcSet := services.ADBServices(providerCode)
	if userPrefs != nil && len(userPrefs.EnabledServices) > 0 {
		var kept []string
		for _, s := range svcSet {
			for _, en := range userPrefs.EnabledServices {
				if s == en {
					kept = append(kept, s)
					break
				}
			}
		}
		if len(kept) == 0 {
			return &Answer{OK: false}, ErrNoEvent
		}
		svcSet = kept
	}

	slot, err := r.Store.CurrentADBSlot(ctx, providerCode, laneNumber, t)
	if errors.Is(err, store.ErrNotFound) {
		return &Answer{OK: false, Lane: laneNumber}, ErrNoEvent
	}
	if err != nil {
		return nil, fmt.Errorf("adb lane %s/%d lookup: %w", providerCode, laneNumber, err)
	}
	e, err := r.Store.EventByID(ctx, slot.EventID)
	if errors.Is(err, store.ErrNotFound) {
		return &Answer{OK: false, Lane: laneNumber}, ErrNoEvent
	}
	if err != nil {
		return nil, err
	}

	opts := deeplink.Options{EnabledServices: svcSet}
	if userPrefs != nil {
		opts.ServicePriorities = userPrefs.ServicePriorities
		opts.AmazonPenalty = userPrefs.AmazonPenalty
		opts.Language = userPrefs.Language
	}
	sel := deeplink.Select(e, opts)
	if sel == nil {
		return &Answer{OK: false, Lane: laneNumber}, ErrNoEvent
	}
	return &Answer{
		OK:              true,
		Lane:            laneNumber,
		EventUID:        e.ID,
		Title:           e.Title,
		DeeplinkURL:     sel.ForFormat(format),
		DeeplinkURLFull: sel.HTTPURL,
		LogicalService:  sel.Playable.LogicalService,
	}, nil
}
