// Package guide serializes the catalog and lane plans into the M3U and XMLTV
// artifacts the DVR consumes. Output is deterministic for a given catalog and
// lane state, and every file is written atomically so readers always see the
// last complete artifact.
package guide

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fieldlane/fieldlane/internal/catalog"
	"github.com/fieldlane/fieldlane/internal/deeplink"
	"github.com/fieldlane/fieldlane/internal/services"
	"github.com/fieldlane/fieldlane/internal/store"
)

// xmltvTime is the 14-char XMLTV timestamp, always UTC.
const xmltvTime = "20060102150405 +0000"

type tvDoc struct {
	XMLName    xml.Name    `xml:"tv"`
	Generator  string      `xml:"generator-info-name,attr"`
	Channels   []tvChannel `xml:"channel"`
	Programmes []programme `xml:"programme"`
}

type tvChannel struct {
	ID    string   `xml:"id,attr"`
	Names []string `xml:"display-name"`
	Icon  *icon    `xml:"icon,omitempty"`
}

type programme struct {
	Start      string   `xml:"start,attr"`
	Stop       string   `xml:"stop,attr"`
	Channel    string   `xml:"channel,attr"`
	Title      string   `xml:"title"`
	SubTitle   string   `xml:"sub-title,omitempty"`
	Desc       string   `xml:"desc,omitempty"`
	Categories []string `xml:"category"`
	Icon       *icon    `xml:"icon,omitempty"`
	Live       *empty   `xml:"live,omitempty"`
	New        *empty   `xml:"new,omitempty"`
}

type icon struct {
	Src string `xml:"src,attr"`
}

type empty struct{}

func fmtXMLTV(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(xmltvTime)
}

// isLive applies the live-detection heuristics: an explicit airing/playback
// marker in the raw payload wins; otherwise sports events default to live.
func isLive(e *catalog.Event) bool {
	raw := strings.ToLower(e.RawPayload)
	if strings.Contains(raw, `"airing_type"`) || strings.Contains(raw, `"airingtype"`) {
		return strings.Contains(raw, "live")
	}
	if strings.Contains(raw, `"playbacktype":"live"`) || strings.Contains(raw, `"islive":true`) {
		return true
	}
	if strings.Contains(raw, `"playbacktype"`) || strings.Contains(raw, `"islive"`) {
		return false
	}
	return true
}

// EnhanceDesc builds the long description
// "{Sport} - ({LeagueOrDetail}) - {base} - Available on {Provider}[ ({feed})]",
// stripping any prior-run decoration from base first so re-runs don't stack
// prefixes.
func EnhanceDesc(e *catalog.Event, providerLabel, feed string) string {
	base := strings.TrimSpace(e.Synopsis)
	if base == "" {
		base = strings.TrimSpace(e.BriefSynopsis)
	}
	if base == "" {
		base = e.Title
	}
	base = stripDecoration(base)
	sport := e.Sport()
	detail := e.League()
	if detail == "" {
		detail = e.ChannelName
	}
	var b strings.Builder
	if sport != "" {
		b.WriteString(sport)
		b.WriteString(" - ")
	}
	if detail != "" {
		fmt.Fprintf(&b, "(%s) - ", detail)
	}
	b.WriteString(base)
	if providerLabel != "" {
		b.WriteString(" - Available on ")
		b.WriteString(providerLabel)
		if feed != "" {
			fmt.Fprintf(&b, " (%s)", feed)
		}
	}
	return b.String()
}

func stripDecoration(s string) string {
	if idx := strings.Index(s, " - Available on "); idx >= 0 {
		s = s[:idx]
	}
	// Prior-run "{Sport} - ({Detail}) - " prefix.
	for _, sport := range catalog.Sports {
		prefix := sport + " - ("
		if strings.HasPrefix(s, prefix) {
			if close := strings.Index(s, ") - "); close >= 0 {
				s = s[close+4:]
			}
			break
		}
	}
	return strings.TrimSpace(s)
}

func categoriesFor(e *catalog.Event, providerLabel string) []string {
	cats := []string{}
	if providerLabel != "" {
		cats = append(cats, providerLabel)
	}
	cats = append(cats, "Sports", "Sports Event")
	seen := map[string]bool{}
	for _, c := range cats {
		seen[c] = true
	}
	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			cats = append(cats, v)
		}
	}
	add(e.Sport())
	add(e.League())
	for _, g := range e.Genres {
		add(g)
	}
	return cats
}

func programmeFor(e *catalog.Event, channelID string, sel *deeplink.Selection) programme {
	providerLabel := ""
	feed := ""
	if sel != nil {
		providerLabel = services.DisplayName(sel.Playable.LogicalService)
		feed = sel.Playable.Variant
	}
	p := programme{
		Start:      fmtXMLTV(e.StartMS),
		Stop:       fmtXMLTV(e.EndMS),
		Channel:    channelID,
		Title:      e.Title,
		SubTitle:   e.ShortTitle,
		Desc:       EnhanceDesc(e, providerLabel, feed),
		Categories: categoriesFor(e, providerLabel),
	}
	if e.HeroImageURL != "" {
		p.Icon = &icon{Src: e.HeroImageURL}
	}
	if isLive(e) {
		p.Live = &empty{}
	}
	if !e.IsReair {
		p.New = &empty{}
	}
	return p
}

// bookendProgrammes emits "Event Not Started" blocks before an event and
// "Event Ended" blocks after it, in one-hour steps, so the DVR guide has no
// gaps around a direct channel. Attribute times stay UTC; descriptions show
// the event time in loc for humans.
func bookendProgrammes(e *catalog.Event, channelID string, from, to time.Time, loc *time.Location) []programme {
	var out []programme
	localStart := e.Start().In(loc).Format("Mon Jan 2 3:04 PM MST")
	step := time.Hour
	for cur := from.Truncate(step); cur.Before(e.Start()); cur = cur.Add(step) {
		end := cur.Add(step)
		if end.After(e.Start()) {
			end = e.Start()
		}
		out = append(out, programme{
			Start:      cur.UTC().Format(xmltvTime),
			Stop:       end.UTC().Format(xmltvTime),
			Channel:    channelID,
			Title:      "Event Not Started",
			Desc:       fmt.Sprintf("%s begins %s.", e.Title, localStart),
			Categories: []string{"Sports"},
		})
	}
	for cur := e.End(); cur.Before(to); {
		end := ceilHour(cur)
		if end.Equal(cur) {
			end = cur.Add(step)
		}
		if end.After(to) {
			end = to
		}
		out = append(out, programme{
			Start:      cur.UTC().Format(xmltvTime),
			Stop:       end.UTC().Format(xmltvTime),
			Channel:    channelID,
			Title:      "Event Ended",
			Desc:       fmt.Sprintf("%s has ended.", e.Title),
			Categories: []string{"Sports"},
		})
		cur = end
	}
	return out
}

func ceilHour(t time.Time) time.Time {
	tr := t.Truncate(time.Hour)
	if tr.Equal(t) {
		return t
	}
	return tr.Add(time.Hour)
}

func writeTV(w io.Writer, doc tvDoc) error {
	doc.Generator = "fieldlane"
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// WriteDirectXMLTV emits one channel per event plus bookend placeholders.
// Events without a pvid are silently skipped, as everywhere in emission.
func WriteDirectXMLTV(w io.Writer, events []*catalog.Event, selections map[string]*deeplink.Selection, now time.Time, loc *time.Location) error {
	doc := tvDoc{}
	for _, e := range events {
		if e.PVID == "" {
			continue
		}
		chID := DirectChannelID(e)
		ch := tvChannel{ID: chID, Names: []string{e.Title}}
		if e.HeroImageURL != "" {
			ch.Icon = &icon{Src: e.HeroImageURL}
		}
		doc.Channels = append(doc.Channels, ch)
		doc.Programmes = append(doc.Programmes, bookendProgrammes(e, chID, now.Add(-2*time.Hour), e.Start(), loc)...)
		doc.Programmes = append(doc.Programmes, programmeFor(e, chID, selections[e.ID]))
		doc.Programmes = append(doc.Programmes, bookendProgrammes(e, chID, e.End(), e.End().Add(6*time.Hour), loc)...)
	}
	return writeTV(w, doc)
}

// WriteLanesXMLTV emits the generic lane channels with their packed slots and
// placeholder blocks. Placeholder programmes carry no live tag.
func WriteLanesXMLTV(w io.Writer, lanesList []store.Lane, slots []store.LaneSlot, eventsByID map[string]*catalog.Event) error {
	doc := tvDoc{}
	for _, l := range lanesList {
		doc.Channels = append(doc.Channels, tvChannel{
			ID:    LaneChannelID(l.ID),
			Names: []string{l.DisplayName, fmt.Sprintf("%d", l.LogicalNumber)},
		})
	}
	for _, sl := range slots {
		chID := LaneChannelID(sl.LaneID)
		if sl.IsPlaceholder {
			doc.Programmes = append(doc.Programmes, programme{
				Start:      fmtXMLTV(sl.StartMS),
				Stop:       fmtXMLTV(sl.EndMS),
				Channel:    chID,
				Title:      "Nothing Scheduled",
				Desc:       "No event is scheduled on this lane right now.",
				Categories: []string{"Sports"},
			})
			continue
		}
		e := eventsByID[sl.EventID]
		if e == nil || e.PVID == "" {
			continue
		}
		p := programmeFor(e, chID, nil)
		// Slot times include padding; the guide shows the scheduled block.
		p.Start = fmtXMLTV(sl.StartMS)
		p.Stop = fmtXMLTV(sl.EndMS)
		if sl.ChosenLogicalService != "" {
			label := services.DisplayName(sl.ChosenLogicalService)
			p.Desc = EnhanceDesc(e, label, "")
			p.Categories = categoriesFor(e, label)
		}
		doc.Programmes = append(doc.Programmes, p)
	}
	return writeTV(w, doc)
}

// WriteADBXMLTV emits every enabled provider's lanes in one document.
func WriteADBXMLTV(w io.Writer, plans map[string][]store.ADBSlot, laneCounts map[string]int, eventsByID map[string]*catalog.Event) error {
	doc := tvDoc{}
	codes := make([]string, 0, len(plans))
	for code := range plans {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		for n := 1; n <= laneCounts[code]; n++ {
			doc.Channels = append(doc.Channels, tvChannel{
				ID:    ADBChannelID(code, n),
				Names: []string{fmt.Sprintf("%s Lane %d", services.DisplayName(code), n)},
			})
		}
		for _, sl := range plans[code] {
			e := eventsByID[sl.EventID]
			if e == nil || e.PVID == "" {
				continue
			}
			p := programmeFor(e, ADBChannelID(code, sl.LaneNumber), nil)
			p.Start = fmtXMLTV(sl.StartMS)
			p.Stop = fmtXMLTV(sl.EndMS)
			doc.Programmes = append(doc.Programmes, p)
		}
	}
	return writeTV(w, doc)
}
