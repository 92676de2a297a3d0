package guide

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"github.com/fieldlane/fieldlane/internal/catalog"
	"github.com/fieldlane/fieldlane/internal/deeplink"
	"github.com/fieldlane/fieldlane/internal/logx"
	"github.com/fieldlane/fieldlane/internal/prefs"
	"github.com/fieldlane/fieldlane/internal/store"
)

// Artifact file names under the output dir. The DVR's source config points at
// these, so the names are part of the external contract.
const (
	FileDirectM3U      = "direct.m3u"
	FileDirectXMLTV    = "direct.xml"
	FileLanesM3U       = "multisource_lanes.m3u"
	FileLanesXMLTV     = "multisource_lanes.xml"
	FileLanesChromeM3U = "multisource_lanes_chrome.m3u"
	FileADBM3U         = "adb_lanes.m3u"
	FileADBXMLTV       = "adb_lanes.xml"
	FileMissingLinks   = "missing_direct_deeplinks.json"
)

// Emitter writes the full artifact set from the store.
type Emitter struct {
	Store     *store.Store
	OutputDir string
	BaseURL   string // resolver base the lane playlists point at
	DaysBack  int
	DaysAhead int
	Location  *time.Location
}

// missingLink records an event that could not be given a direct deeplink;
// emitted as a diagnostic artifact for the admin UI.
type missingLink struct {
	EventID  string `json:"event_id"`
	Title    string `json:"title"`
	StartUTC string `json:"start_utc"`
	Reason   string `json:"reason"`
}

// Emit regenerates every artifact. Each file is written atomically and
// independently, so a failure partway leaves earlier files fresh and later
// files at their previous good version.
func (em *Emitter) Emit(ctx context.Context, userPrefs *prefs.Preferences, now time.Time) error {
	log := logx.Component(ctx, "guide")
	if err := os.MkdirAll(em.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	loc := em.Location
	if loc == nil {
		loc = time.UTC
	}

	events, err := em.Store.EventsInWindow(ctx, now, em.DaysBack, em.DaysAhead)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}

	// One selection pass shared by every artifact, so M3U and XMLTV agree.
	opts := deeplink.Options{}
	if userPrefs != nil {
		opts = userPrefs.SelectOptions()
	}
	selections := map[string]*deeplink.Selection{}
	var missing []missingLink
	var directEvents []*catalog.Event
	for _, e := range events {
		if e.PVID == "" {
			continue
		}
		if userPrefs != nil && !userPrefs.AllowsEvent(e) {
			continue
		}
		sel := deeplink.Select(e, opts)
		if sel == nil {
			missing = append(missing, missingLink{
				EventID: e.ID, Title: e.Title, StartUTC: e.StartUTC,
				Reason: "no playable survives filters",
			})
			continue
		}
		selections[e.ID] = sel
		directEvents = append(directEvents, e)
	}

	eventsByID := map[string]*catalog.Event{}
	for _, e := range events {
		eventsByID[e.ID] = e
	}

	lanesList, err := em.Store.Lanes(ctx)
	if err != nil {
		return fmt.Errorf("load lanes: %w", err)
	}
	slots, err := em.Store.LaneSlots(ctx, 0)
	if err != nil {
		return fmt.Errorf("load lane slots: %w", err)
	}

	adbPlans := map[string][]store.ADBSlot{}
	adbCounts := map[string]int{}
	provCfgs, err := em.Store.ProviderLanes(ctx)
	if err != nil {
		return fmt.Errorf("load provider lanes: %w", err)
	}
	for _, cfg := range provCfgs {
		if !cfg.ADBEnabled || cfg.ADBLaneCount <= 0 {
			continue
		}
		rows, err := em.Store.ADBSlots(ctx, cfg.ProviderCode)
		if err != nil {
			return fmt.Errorf("load adb slots %s: %w", cfg.ProviderCode, err)
		}
		adbPlans[cfg.ProviderCode] = rows
		adbCounts[cfg.ProviderCode] = cfg.ADBLaneCount
	}

	write := func(name string, gen func(*bytes.Buffer) error) error {
		var buf bytes.Buffer
		if err := gen(&buf); err != nil {
			return fmt.Errorf("render %s: %w", name, err)
		}
		path := filepath.Join(em.OutputDir, name)
		if err := atomicWrite(path, buf.Bytes()); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		log.Debug().Str("file", name).Int("bytes", buf.Len()).Msg("artifact written")
		return nil
	}

	if err := write(FileDirectM3U, func(b *bytes.Buffer) error {
		return WriteDirectM3U(b, directEvents, selections, false)
	}); err != nil {
		return err
	}
	if err := write(FileDirectXMLTV, func(b *bytes.Buffer) error {
		return WriteDirectXMLTV(b, directEvents, selections, now, loc)
	}); err != nil {
		return err
	}
	if err := write(FileLanesM3U, func(b *bytes.Buffer) error {
		return WriteLanesM3U(b, lanesList, em.BaseURL, false)
	}); err != nil {
		return err
	}
	if err := write(FileLanesChromeM3U, func(b *bytes.Buffer) error {
		return WriteLanesM3U(b, lanesList, em.BaseURL, true)
	}); err != nil {
		return err
	}
	if err := write(FileLanesXMLTV, func(b *bytes.Buffer) error {
		return WriteLanesXMLTV(b, lanesList, slots, eventsByID)
	}); err != nil {
		return err
	}
	if err := write(FileADBM3U, func(b *bytes.Buffer) error {
		return WriteADBM3U(b, adbPlans, adbCounts, em.BaseURL, "")
	}); err != nil {
		return err
	}
	for code := range adbPlans {
		code := code
		name := fmt.Sprintf("adb_lanes_%s.m3u", code)
		if err := write(name, func(b *bytes.Buffer) error {
			return WriteADBM3U(b, adbPlans, adbCounts, em.BaseURL, code)
		}); err != nil {
			return err
		}
	}
	if err := write(FileADBXMLTV, func(b *bytes.Buffer) error {
		return WriteADBXMLTV(b, adbPlans, adbCounts, eventsByID)
	}); err != nil {
		return err
	}

	if missing == nil {
		missing = []missingLink{}
	}
	diag, err := json.MarshalIndent(missing, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal diagnostics: %w", err)
	}
	if err := atomicWrite(filepath.Join(em.OutputDir, FileMissingLinks), append(diag, '\n')); err != nil {
		return fmt.Errorf("write diagnostics: %w", err)
	}

	log.Info().
		Int("direct_channels", len(directEvents)).
		Int("lanes", len(lanesList)).
		Int("adb_providers", len(adbPlans)).
		Int("missing_deeplinks", len(missing)).
		Msg("guide artifacts emitted")
	return nil
}

// atomicWrite lands data at path via fsync+rename so readers never observe a
// torn artifact.
func atomicWrite(path string, data []byte) error {
	pf, err := renameio.NewPendingFile(path)
	if err != nil {
		return err
	}
	defer pf.Cleanup()
	if _, err := pf.Write(data); err != nil {
		return err
	}
	return pf.CloseAtomicallyReplace()
}

// PruneDebugArtifacts keeps the newest keep files matching prefix in dir and
// removes the rest. Used for amazon_scrape_{ts}.csv and similar ingest
// leftovers.
func PruneDebugArtifacts(dir, prefix string, keep int) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	var names []string
	for _, ent := range entries {
		if !ent.IsDir() && strings.HasPrefix(ent.Name(), prefix) {
			names = append(names, ent.Name())
		}
	}
	// Timestamped names sort chronologically.
	sort.Strings(names)
	removed := 0
	for i := 0; i < len(names)-keep; i++ {
		if err := os.Remove(filepath.Join(dir, names[i])); err == nil {
			removed++
		}
	}
	return removed, nil
}
