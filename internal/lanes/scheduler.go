// Package lanes packs eligible events onto a bounded set of virtual channels
// with an offline greedy first-fit over start-sorted intervals. Plans are
// rebuilt from scratch each refresh; packing is deterministic given the same
// input sequence.
package lanes

import (
	"fmt"
	"strings"
	"time"

	"github.com/fieldlane/fieldlane/internal/catalog"
	"github.com/fieldlane/fieldlane/internal/deeplink"
	"github.com/fieldlane/fieldlane/internal/prefs"
	"github.com/fieldlane/fieldlane/internal/store"
)

// PlaceholderTitle labels idle guide blocks.
const PlaceholderTitle = "Nothing Scheduled"

// maxEventDuration: anything longer is a sentinel end time upstream uses for
// "unknown", not a real airing.
const maxEventDuration = 12 * time.Hour

// fakeChannels are upstream rows that look like events but are really
// channel-shaped filler; they never get a lane.
var fakeChannels = map[string]bool{
	"SportsCenter 24/7":  true,
	"Feature Channel":    true,
	"Big Event Channel":  true,
	"DAZN 1":             true,
	"DAZN 2":             true,
	"24/7 Live":          true,
}

// Params controls the generic pool packing.
type Params struct {
	LaneCount            int
	LaneStartNumber      int
	DaysAhead            int
	Padding              time.Duration
	PlaceholderBlock     time.Duration
	PlaceholderExtraDays int
}

// Plan is a computed generic-pool packing, ready for store.ReplaceLanePlan.
type Plan struct {
	Lanes   []store.Lane
	Slots   []store.LaneSlot
	Placed  int
	Dropped int // oversubscription: every lane was busy past the event start
}

// Eligible reports whether an event may be scheduled at all.
func Eligible(e *catalog.Event, now time.Time) bool {
	if e.PVID == "" {
		return false
	}
	if e.EndMS <= e.StartMS {
		return false
	}
	if e.End().Sub(e.Start()) > maxEventDuration {
		return false
	}
	if e.EndMS <= now.UnixMilli() {
		return false
	}
	if e.Start().After(now.AddDate(0, 0, 365)) {
		return false
	}
	if fakeChannels[strings.TrimSpace(e.ChannelName)] {
		return false
	}
	return true
}

// Build packs events onto p.LaneCount lanes. Events must arrive in the
// store's window order (start, end, title, id); Build re-sorts defensively by
// start only, stably, so equal starts keep catalog order.
//
// For each event the best playable is chosen up front under userPrefs and
// frozen into the slot. When the user has an explicit enabled-services
// allowlist and nothing survives, the event is skipped rather than scheduled
// without a deeplink.
func Build(events []*catalog.Event, userPrefs *prefs.Preferences, now time.Time, p Params) *Plan {
	plan := &Plan{}
	for i := 0; i < p.LaneCount; i++ {
		plan.Lanes = append(plan.Lanes, store.Lane{
			ID:            i + 1,
			DisplayName:   fmt.Sprintf("Event Lane %d", i+1),
			LogicalNumber: p.LaneStartNumber + i,
		})
	}

	horizon := now.AddDate(0, 0, p.DaysAhead)
	type placed struct {
		e   *catalog.Event
		sel *deeplink.Selection
	}
	var eligible []placed
	for _, e := range events {
		if !Eligible(e, now) || e.Start().After(horizon) {
			continue
		}
		if userPrefs != nil && !userPrefs.AllowsEvent(e) {
			continue
		}
		var sel *deeplink.Selection
		if userPrefs != nil {
			sel = deeplink.Select(e, userPrefs.SelectOptions())
			if sel == nil && len(userPrefs.EnabledServices) > 0 {
				continue
			}
		} else {
			sel = deeplink.Select(e, deeplink.Options{})
		}
		eligible = append(eligible, placed{e: e, sel: sel})
	}
	stableSortByStart(eligible, func(p placed) int64 { return p.e.StartMS })

	// laneEnd[i] starts at the global placeholder origin so early placeholder
	// blocks and the first real slots share a boundary.
	phStart := now.Add(-time.Hour).Truncate(time.Hour)
	laneEnd := make([]time.Time, p.LaneCount)
	for i := range laneEnd {
		laneEnd[i] = phStart
	}
	laneSlots := make([][]store.LaneSlot, p.LaneCount)

	for _, pe := range eligible {
		start := pe.e.Start()
		lane := -1
		for i := 0; i < p.LaneCount; i++ {
			if !laneEnd[i].After(start) {
				lane = i
				break
			}
		}
		if lane < 0 {
			plan.Dropped++
			continue
		}
		endPadded := pe.e.End().Add(p.Padding)
		slot := store.LaneSlot{
			LaneID:   lane + 1,
			EventID:  pe.e.ID,
			StartUTC: start.Format(time.RFC3339),
			EndUTC:   endPadded.Format(time.RFC3339),
			StartMS:  start.UnixMilli(),
			EndMS:    endPadded.UnixMilli(),
		}
		if pe.sel != nil {
			slot.ChosenPlayableID = pe.sel.Playable.PlayableID
			slot.ChosenProvider = pe.sel.Playable.Provider
			slot.ChosenLogicalService = pe.sel.Playable.LogicalService
			slot.ChosenDeeplink = pe.sel.URL
		}
		laneSlots[lane] = append(laneSlots[lane], slot)
		laneEnd[lane] = endPadded
		plan.Placed++
	}

	// Placeholder horizon: past the latest padded end plus the extra days,
	// rounded up to the hour so the guide ends on a clean boundary.
	latest := phStart
	for _, end := range laneEnd {
		if end.After(latest) {
			latest = end
		}
	}
	phEnd := ceilHour(latest.AddDate(0, 0, p.PlaceholderExtraDays))

	for lane := 0; lane < p.LaneCount; lane++ {
		slots := fillPlaceholders(lane+1, laneSlots[lane], phStart, phEnd, p.PlaceholderBlock)
		plan.Slots = append(plan.Slots, slots...)
	}
	return plan
}

// fillPlaceholders interleaves idle blocks between a lane's real slots so the
// DVR sees a continuous guide from phStart to phEnd.
func fillPlaceholders(laneID int, real []store.LaneSlot, phStart, phEnd time.Time, block time.Duration) []store.LaneSlot {
	var out []store.LaneSlot
	cursor := phStart
	emitIdle := func(until time.Time) {
		for cursor.Before(until) {
			end := cursor.Add(block)
			if end.After(until) {
				end = until
			}
			out = append(out, store.LaneSlot{
				LaneID:        laneID,
				StartUTC:      cursor.Format(time.RFC3339),
				EndUTC:        end.Format(time.RFC3339),
				StartMS:       cursor.UnixMilli(),
				EndMS:         end.UnixMilli(),
				IsPlaceholder: true,
			})
			cursor = end
		}
	}
	for _, slot := range real {
		emitIdle(time.UnixMilli(slot.StartMS).UTC())
		out = append(out, slot)
		if end := time.UnixMilli(slot.EndMS).UTC(); end.After(cursor) {
			cursor = end
		}
	}
	emitIdle(phEnd)
	return out
}

func ceilHour(t time.Time) time.Time {
	tr := t.Truncate(time.Hour)
	if tr.Equal(t) {
		return t
	}
	return tr.Add(time.Hour)
}

// stableSortByStart is an insertion sort: input is near-sorted already (the
// store emits start order) and stability is part of the packing contract.
func stableSortByStart[T any](items []T, key func(T) int64) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && key(items[j]) < key(items[j-1]); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}
