package guide

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fieldlane/fieldlane/internal/catalog"
	"github.com/fieldlane/fieldlane/internal/deeplink"
	"github.com/fieldlane/fieldlane/internal/store"
)

func guideEvent(id string) *catalog.Event {
	e := &catalog.Event{
		ID:       id,
		PVID:     "pv-" + id,
		Title:    "Arsenal vs Chelsea",
		Synopsis: "London derby.",
		StartMS:  time.Date(2026, 8, 24, 18, 0, 0, 0, time.UTC).UnixMilli(),
		EndMS:    time.Date(2026, 8, 24, 20, 0, 0, 0, time.UTC).UnixMilli(),
		Class: []catalog.Classification{
			{Type: "sport", Value: "Soccer"},
			{Type: "league", Value: "Premier League"},
		},
		HeroImageURL: "https://img.example.com/hero.jpg",
		Playables: []catalog.Playable{{
			EventID: id, PlayableID: id + "-p", Provider: "pplus",
			LogicalService: "pplus", DeeplinkPlay: "pplus://www.paramountplus.com/live/" + id,
		}},
	}
	e.StampTimes()
	return e
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"Apple-TV Event #42": "apple-tv-event-42",
		"  fdl.lane1  ":      "fdl.lane1",
		"ESPN+/Deportes":     "espn-deportes",
		"---":                "",
	}
	for in, want := range cases {
		if got := Sanitize(in); got != want {
			t.Errorf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestChannelIDs(t *testing.T) {
	e := guideEvent("apple-umc.cmc.abc")
	if got := DirectChannelID(e); got != "fdl.apple-umc.cmc.abc" {
		t.Errorf("direct id = %q", got)
	}
	noID := &catalog.Event{PVID: "PV 9"}
	if got := DirectChannelID(noID); got != "fdl.pv-9" {
		t.Errorf("pvid fallback = %q", got)
	}
	if got := LaneChannelID(3); got != "fdl.lane3" {
		t.Errorf("lane id = %q", got)
	}
	if got := ADBChannelID("sportscenter", 2); got != "fdl.sportscenter02" {
		t.Errorf("adb id = %q", got)
	}
}

func TestEnhanceDescIdempotent(t *testing.T) {
	e := guideEvent("a")
	first := EnhanceDesc(e, "Paramount+", "Home")
	want := "Soccer - (Premier League) - London derby. - Available on Paramount+ (Home)"
	if first != want {
		t.Fatalf("desc = %q, want %q", first, want)
	}
	// A second pass over an already-decorated synopsis must not stack.
	e.Synopsis = first
	if second := EnhanceDesc(e, "Paramount+", "Home"); second != want {
		t.Errorf("re-run stacked decoration: %q", second)
	}
}

func TestEnhanceDescFallsBackToTitle(t *testing.T) {
	e := guideEvent("a")
	e.Synopsis, e.BriefSynopsis = "", ""
	got := EnhanceDesc(e, "", "")
	if !strings.Contains(got, "Arsenal vs Chelsea") {
		t.Errorf("desc = %q", got)
	}
}

func TestIsLive(t *testing.T) {
	e := guideEvent("a")
	if !isLive(e) {
		t.Error("sports event without markers should default live")
	}
	e.RawPayload = `{"airing_type":"replay"}`
	if isLive(e) {
		t.Error("replay airing marked live")
	}
	e.RawPayload = `{"playbackType":"live"}`
	// Marker matching is case-insensitive on the payload.
	if !isLive(e) {
		t.Error("live playback marker ignored")
	}
}

func TestWriteLanesXMLTV(t *testing.T) {
	e := guideEvent("a")
	lanesIn := []store.Lane{{ID: 1, DisplayName: "Event Lane 1", LogicalNumber: 9000}}
	slots := []store.LaneSlot{
		{
			LaneID: 1, EventID: "a",
			StartMS: e.StartMS, EndMS: e.EndMS + 45*60*1000,
			ChosenLogicalService: "pplus",
		},
		{
			LaneID:        1,
			StartMS:       e.EndMS + 45*60*1000,
			EndMS:         e.EndMS + 105*60*1000,
			IsPlaceholder: true,
		},
	}
	var buf bytes.Buffer
	if err := WriteLanesXMLTV(&buf, lanesIn, slots, map[string]*catalog.Event{"a": e}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, `channel="fdl.lane1"`) {
		t.Error("lane channel missing")
	}
	if !strings.Contains(out, "Arsenal vs Chelsea") {
		t.Error("event title missing")
	}
	if !strings.Contains(out, "Nothing Scheduled") {
		t.Error("placeholder programme missing")
	}
	// Placeholder blocks are filler, never flagged live.
	if strings.Count(out, "<live>") != 1 {
		t.Errorf("live tags = %d, want 1 (real slot only)", strings.Count(out, "<live>"))
	}
	// The slot's padded stop time is what the guide shows.
	if !strings.Contains(out, time.UnixMilli(slots[0].EndMS).UTC().Format("20060102150405 +0000")) {
		t.Error("padded stop time missing")
	}
}

func TestWriteLanesM3U(t *testing.T) {
	lanesIn := []store.Lane{
		{ID: 1, DisplayName: "Event Lane 1", LogicalNumber: 9000},
		{ID: 2, DisplayName: "Event Lane 2", LogicalNumber: 9001},
	}
	var buf bytes.Buffer
	if err := WriteLanesM3U(&buf, lanesIn, "http://10.0.0.2:5004/", false); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "#EXTM3U\n") {
		t.Error("missing header")
	}
	if !strings.Contains(out, "http://10.0.0.2:5004/lane/1/stream.m3u8") {
		t.Errorf("stub stream URL missing:\n%s", out)
	}
	if !strings.Contains(out, `tvg-chno="9000"`) {
		t.Error("logical number missing")
	}

	buf.Reset()
	if err := WriteLanesM3U(&buf, lanesIn, "http://10.0.0.2:5004", true); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "/api/lane/1/launch?deeplink_format=http") {
		t.Error("chrome variant should point at the launch redirect")
	}
}

func TestWriteDirectM3U(t *testing.T) {
	e := guideEvent("a")
	sel := &deeplink.Selection{
		Playable: e.Playables[0],
		URL:      e.Playables[0].DeeplinkPlay,
		HTTPURL:  "https://www.paramountplus.com/live/a",
	}
	var buf bytes.Buffer
	if err := WriteDirectM3U(&buf, []*catalog.Event{e}, map[string]*deeplink.Selection{"a": sel}, false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "pplus://www.paramountplus.com/live/a") {
		t.Error("scheme URL missing")
	}

	// forbidSchemes swaps in the HTTP form.
	buf.Reset()
	if err := WriteDirectM3U(&buf, []*catalog.Event{e}, map[string]*deeplink.Selection{"a": sel}, true); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "pplus://") {
		t.Error("scheme URL leaked into http-only playlist")
	}
	if !strings.Contains(buf.String(), "https://www.paramountplus.com/live/a") {
		t.Error("http URL missing")
	}

	// No HTTP form: the event is dropped from the http-only playlist.
	sel.HTTPURL = ""
	buf.Reset()
	if err := WriteDirectM3U(&buf, []*catalog.Event{e}, map[string]*deeplink.Selection{"a": sel}, true); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "EXTINF") {
		t.Error("event without http form should be skipped")
	}
}

func TestWriteADBM3U(t *testing.T) {
	plans := map[string][]store.ADBSlot{"pplus": {{ProviderCode: "pplus", LaneNumber: 1, EventID: "a"}}}
	counts := map[string]int{"pplus": 2}
	var buf bytes.Buffer
	if err := WriteADBM3U(&buf, plans, counts, "http://10.0.0.2:5004", ""); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "/api/adb/lanes/pplus/1/deeplink?format=text") {
		t.Errorf("adb deeplink URL missing:\n%s", out)
	}
	if strings.Count(out, "#EXTINF") != 2 {
		t.Errorf("want 2 lane entries, got:\n%s", out)
	}
}

func TestBookendProgrammes(t *testing.T) {
	e := guideEvent("a")
	from := e.Start().Add(-2 * time.Hour)
	pre := bookendProgrammes(e, "fdl.x", from, e.Start(), time.UTC)
	if len(pre) != 2 {
		t.Fatalf("pre blocks = %d, want 2", len(pre))
	}
	for _, p := range pre {
		if p.Title != "Event Not Started" {
			t.Errorf("pre title = %q", p.Title)
		}
	}
	// Coverage is contiguous and ends exactly at the event start.
	if pre[len(pre)-1].Stop != fmtXMLTV(e.StartMS) {
		t.Errorf("last pre block stops at %s", pre[len(pre)-1].Stop)
	}

	post := bookendProgrammes(e, "fdl.x", e.End(), e.End().Add(90*time.Minute), time.UTC)
	if len(post) == 0 || post[0].Title != "Event Ended" {
		t.Fatalf("post blocks = %+v", post)
	}
	if post[0].Start != fmtXMLTV(e.EndMS) {
		t.Errorf("first post block starts at %s", post[0].Start)
	}
}
