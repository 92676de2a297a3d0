package lanes

import (
	"fmt"
	"time"

	"github.com/fieldlane/fieldlane/internal/catalog"
	"github.com/fieldlane/fieldlane/internal/prefs"
	"github.com/fieldlane/fieldlane/internal/services"
	"github.com/fieldlane/fieldlane/internal/store"
)

// adbSnap is the guide grid granularity for provider lanes. Snapping start
// down and stop up keeps XMLTV output stable across refreshes even when
// upstream times jitter by a minute.
const adbSnap = 15 * time.Minute

// ADBPlan is one provider's packing.
type ADBPlan struct {
	ProviderCode string
	Slots        []store.ADBSlot
	Placed       int
	Dropped      int
	Skipped      bool // provider filtered out entirely by enabled_services
}

// BuildADB packs one provider's events onto laneCount provider-scoped lanes.
//
// The provider's service set comes from the aggregation table; when the user
// has an enabled-services allowlist the set is intersected with it, and an
// empty intersection skips the provider outright.
func BuildADB(providerCode string, laneCount int, events []*catalog.Event, userPrefs *prefs.Preferences, now time.Time, daysAhead int) *ADBPlan {
	plan := &ADBPlan{ProviderCode: providerCode}
	svcSet := map[string]bool{}
	for _, s := range services.ADBServices(providerCode) {
		svcSet[s] = true
	}
	if len(svcSet) == 0 {
		svcSet[providerCode] = true
	}
	if userPrefs != nil && len(userPrefs.EnabledServices) > 0 {
		enabled := map[string]bool{}
		for _, s := range userPrefs.EnabledServices {
			if svcSet[s] {
				enabled[s] = true
			}
		}
		if len(enabled) == 0 {
			plan.Skipped = true
			return plan
		}
		svcSet = enabled
	}

	horizon := now.AddDate(0, 0, daysAhead)
	type row struct {
		e          *catalog.Event
		start, end time.Time
	}
	var eligible []row
	for _, e := range events {
		if !Eligible(e, now) || e.Start().After(horizon) {
			continue
		}
		if userPrefs != nil && !userPrefs.AllowsEvent(e) {
			continue
		}
		inSet := false
		for _, p := range e.Playables {
			if svcSet[p.LogicalService] {
				inSet = true
				break
			}
		}
		if !inSet {
			continue
		}
		start := e.Start().Truncate(adbSnap)
		end := ceilTo(e.End(), adbSnap)
		eligible = append(eligible, row{e: e, start: start, end: end})
	}
	stableSortByStart(eligible, func(r row) int64 { return r.start.UnixMilli() })

	laneEnd := make([]time.Time, laneCount)
	for _, r := range eligible {
		lane := -1
		for i := 0; i < laneCount; i++ {
			if laneEnd[i].IsZero() || !laneEnd[i].After(r.start) {
				lane = i
				break
			}
		}
		if lane < 0 {
			plan.Dropped++
			continue
		}
		plan.Slots = append(plan.Slots, store.ADBSlot{
			ProviderCode: providerCode,
			LaneNumber:   lane + 1,
			ChannelID:    fmt.Sprintf("%s%02d", providerCode, lane+1),
			EventID:      r.e.ID,
			StartUTC:     r.start.Format(time.RFC3339),
			StopUTC:      r.end.Format(time.RFC3339),
			StartMS:      r.start.UnixMilli(),
			EndMS:        r.end.UnixMilli(),
		})
		laneEnd[lane] = r.end
		plan.Placed++
	}
	return plan
}

func ceilTo(t time.Time, d time.Duration) time.Time {
	tr := t.Truncate(d)
	if tr.Equal(t) {
		return t
	}
	return tr.Add(d)
}
