package lanes

import (
	"testing"
	"time"

	"github.com/fieldlane/fieldlane/internal/catalog"
	"github.com/fieldlane/fieldlane/internal/prefs"
	"github.com/fieldlane/fieldlane/internal/store"
)

func ev(id string, start, end time.Time) *catalog.Event {
	e := &catalog.Event{
		ID:      id,
		PVID:    id,
		Title:   "Event " + id,
		StartMS: start.UnixMilli(),
		EndMS:   end.UnixMilli(),
		Playables: []catalog.Playable{{
			EventID: id, PlayableID: id + "-p", Provider: "pplus",
			LogicalService: "pplus", DeeplinkPlay: "pplus://www.paramountplus.com/" + id,
		}},
	}
	e.StampTimes()
	return e
}

func realSlots(plan *Plan) map[int][]store.LaneSlot {
	out := map[int][]store.LaneSlot{}
	for _, sl := range plan.Slots {
		if !sl.IsPlaceholder {
			out[sl.LaneID] = append(out[sl.LaneID], sl)
		}
	}
	return out
}

func TestEligible(t *testing.T) {
	now := time.Now().UTC()
	good := ev("a", now.Add(time.Hour), now.Add(2*time.Hour))
	if !Eligible(good, now) {
		t.Error("good event ineligible")
	}

	cases := map[string]*catalog.Event{
		"no pvid":       {ID: "x", StartMS: now.Add(time.Hour).UnixMilli(), EndMS: now.Add(2 * time.Hour).UnixMilli()},
		"zero duration": ev("z", now.Add(time.Hour), now.Add(time.Hour)),
		"too long":      ev("l", now.Add(time.Hour), now.Add(14*time.Hour)),
		"already ended": ev("e", now.Add(-3*time.Hour), now.Add(-time.Hour)),
	}
	for name, e := range cases {
		if Eligible(e, now) {
			t.Errorf("%s should be ineligible", name)
		}
	}

	fake := ev("f", now.Add(time.Hour), now.Add(2*time.Hour))
	fake.ChannelName = "DAZN 1"
	if Eligible(fake, now) {
		t.Error("fake 24/7 channel should be ineligible")
	}
}

// Two lanes, three events: A 18:00-20:00, B 19:00-21:00, C 20:50-22:00.
// With 45m padding A holds lane 1 until 20:45, so C (start 20:50) reuses
// lane 1; B sits on lane 2.
func TestBuildFirstFitPacking(t *testing.T) {
	now := time.Date(2026, 8, 24, 17, 0, 0, 0, time.UTC)
	day := func(h, m int) time.Time { return time.Date(2026, 8, 24, h, m, 0, 0, time.UTC) }
	events := []*catalog.Event{
		ev("a", day(18, 0), day(20, 0)),
		ev("b", day(19, 0), day(21, 0)),
		ev("c", day(20, 50), day(22, 0)),
	}
	plan := Build(events, nil, now, Params{
		LaneCount: 2, LaneStartNumber: 9000, DaysAhead: 7,
		Padding: 45 * time.Minute, PlaceholderBlock: time.Hour, PlaceholderExtraDays: 1,
	})
	if plan.Placed != 3 || plan.Dropped != 0 {
		t.Fatalf("placed=%d dropped=%d", plan.Placed, plan.Dropped)
	}
	byLane := realSlots(plan)
	if len(byLane[1]) != 2 || byLane[1][0].EventID != "a" || byLane[1][1].EventID != "c" {
		t.Errorf("lane 1 = %+v", byLane[1])
	}
	if len(byLane[2]) != 1 || byLane[2][0].EventID != "b" {
		t.Errorf("lane 2 = %+v", byLane[2])
	}
	// Padding is frozen into the slot end.
	if got := byLane[1][0].EndMS; got != day(20, 45).UnixMilli() {
		t.Errorf("slot end = %d, want padded %d", got, day(20, 45).UnixMilli())
	}
	// The deeplink decision is frozen too.
	if byLane[1][0].ChosenDeeplink == "" || byLane[1][0].ChosenLogicalService != "pplus" {
		t.Errorf("chosen fields missing: %+v", byLane[1][0])
	}
}

func TestBuildOversubscriptionDrops(t *testing.T) {
	now := time.Date(2026, 8, 24, 17, 0, 0, 0, time.UTC)
	start := now.Add(time.Hour)
	events := []*catalog.Event{
		ev("a", start, start.Add(2*time.Hour)),
		ev("b", start, start.Add(2*time.Hour)),
		ev("c", start, start.Add(2*time.Hour)),
	}
	plan := Build(events, nil, now, Params{
		LaneCount: 2, LaneStartNumber: 9000, DaysAhead: 7,
		Padding: 45 * time.Minute, PlaceholderBlock: time.Hour,
	})
	if plan.Placed != 2 || plan.Dropped != 1 {
		t.Fatalf("placed=%d dropped=%d", plan.Placed, plan.Dropped)
	}
}

func TestBuildPlaceholderCoverage(t *testing.T) {
	now := time.Date(2026, 8, 24, 17, 0, 0, 0, time.UTC)
	events := []*catalog.Event{ev("a", now.Add(2*time.Hour), now.Add(4*time.Hour))}
	plan := Build(events, nil, now, Params{
		LaneCount: 1, LaneStartNumber: 9000, DaysAhead: 7,
		Padding: 30 * time.Minute, PlaceholderBlock: time.Hour, PlaceholderExtraDays: 1,
	})
	// The lane must be continuously covered: each slot starts where the
	// previous ended.
	var prev int64
	for i, sl := range plan.Slots {
		if i > 0 && sl.StartMS != prev {
			t.Fatalf("gap before slot %d: %d != %d", i, sl.StartMS, prev)
		}
		prev = sl.EndMS
	}
	first := plan.Slots[0]
	if !first.IsPlaceholder {
		t.Error("coverage should start with a placeholder before the event")
	}
	wantStart := now.Add(-time.Hour).Truncate(time.Hour)
	if first.StartMS != wantStart.UnixMilli() {
		t.Errorf("coverage origin = %d, want %d", first.StartMS, wantStart.UnixMilli())
	}
}

func TestBuildAllowlistSkipsUnservedEvents(t *testing.T) {
	now := time.Date(2026, 8, 24, 17, 0, 0, 0, time.UTC)
	e := ev("a", now.Add(time.Hour), now.Add(2*time.Hour))
	p := &prefs.Preferences{EnabledServices: []string{"max"}, Language: "both"}
	plan := Build([]*catalog.Event{e}, p, now, Params{
		LaneCount: 1, LaneStartNumber: 9000, DaysAhead: 7,
		Padding: 30 * time.Minute, PlaceholderBlock: time.Hour,
	})
	if plan.Placed != 0 {
		t.Errorf("pplus-only event placed despite max-only allowlist")
	}
}

func TestBuildADBSnapping(t *testing.T) {
	now := time.Date(2026, 8, 24, 17, 0, 0, 0, time.UTC)
	// 18:07-19:52 snaps to 18:00-20:00.
	e := ev("a", time.Date(2026, 8, 24, 18, 7, 0, 0, time.UTC), time.Date(2026, 8, 24, 19, 52, 0, 0, time.UTC))
	plan := BuildADB("pplus", 2, []*catalog.Event{e}, nil, now, 7)
	if plan.Placed != 1 {
		t.Fatalf("placed=%d", plan.Placed)
	}
	sl := plan.Slots[0]
	if sl.StartMS != time.Date(2026, 8, 24, 18, 0, 0, 0, time.UTC).UnixMilli() {
		t.Errorf("start not snapped down: %d", sl.StartMS)
	}
	if sl.EndMS != time.Date(2026, 8, 24, 20, 0, 0, 0, time.UTC).UnixMilli() {
		t.Errorf("end not snapped up: %d", sl.EndMS)
	}
	if sl.ChannelID != "pplus01" {
		t.Errorf("channel id = %q", sl.ChannelID)
	}
}

func TestBuildADBSkippedWhenFilteredOut(t *testing.T) {
	now := time.Date(2026, 8, 24, 17, 0, 0, 0, time.UTC)
	e := ev("a", now.Add(time.Hour), now.Add(2*time.Hour))
	p := &prefs.Preferences{EnabledServices: []string{"max"}, Language: "both"}
	plan := BuildADB("pplus", 2, []*catalog.Event{e}, p, now, 7)
	if !plan.Skipped {
		t.Error("provider with no enabled services should be skipped")
	}
	if len(plan.Slots) != 0 {
		t.Errorf("skipped provider produced slots: %d", len(plan.Slots))
	}
}
