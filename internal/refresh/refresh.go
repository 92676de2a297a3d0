// Package refresh orchestrates the full pipeline: ingest, catalog hygiene,
// lane planning, artifact emission, and DVR hooks. One run at a time; the
// ring buffer streams progress to the admin UI.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fieldlane/fieldlane/internal/config"
	"github.com/fieldlane/fieldlane/internal/detector"
	"github.com/fieldlane/fieldlane/internal/dvr"
	"github.com/fieldlane/fieldlane/internal/guide"
	"github.com/fieldlane/fieldlane/internal/ingest"
	"github.com/fieldlane/fieldlane/internal/lanes"
	"github.com/fieldlane/fieldlane/internal/logx"
	"github.com/fieldlane/fieldlane/internal/metrics"
	"github.com/fieldlane/fieldlane/internal/prefs"
	"github.com/fieldlane/fieldlane/internal/store"
)

// ErrBusy means a run is already in flight; HTTP maps it to 409.
var ErrBusy = errors.New("refresh already running")

// Status is the externally visible pipeline state.
type Status struct {
	Running      bool             `json:"running"`
	Trigger      string           `json:"trigger,omitempty"` // manual | auto
	Step         string           `json:"step,omitempty"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	LastRun      *time.Time       `json:"last_run,omitempty"`
	LastOutcome  string           `json:"last_outcome,omitempty"` // ok | error
	LastError    string           `json:"last_error,omitempty"`
	LastTrigger  string           `json:"last_trigger,omitempty"`
	IngestStats  []*ingest.Result `json:"ingest_stats,omitempty"`
	EventsStored int              `json:"events_stored"`
	SlotsPlanned int              `json:"slots_planned"`
}

// Runner executes refreshes. All fields are set once at startup.
type Runner struct {
	Cfg       *config.Config
	Store     *store.Store
	Emitter   *guide.Emitter
	DVR       *dvr.Client
	Detector  *detector.Detector
	Ingesters []ingest.Ingester
	Ring      *Ring

	mu      sync.Mutex
	running bool
	status  Status
}

// Status returns a copy of the current state.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Run executes the whole pipeline. Single-flight: a second caller gets
// ErrBusy immediately. trigger is "manual" or "auto".
func (r *Runner) Run(ctx context.Context, trigger string) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrBusy
	}
	r.running = true
	started := time.Now()
	r.status.Running = true
	r.status.Trigger = trigger
	r.status.StartedAt = &started
	r.status.Step = "starting"
	r.mu.Unlock()

	err := r.run(ctx, trigger)

	r.mu.Lock()
	finished := time.Now()
	r.running = false
	r.status.Running = false
	r.status.Trigger = ""
	r.status.Step = ""
	r.status.StartedAt = nil
	r.status.LastRun = &finished
	r.status.LastTrigger = trigger
	if err != nil {
		r.status.LastOutcome = "error"
		r.status.LastError = err.Error()
	} else {
		r.status.LastOutcome = "ok"
		r.status.LastError = ""
	}
	r.mu.Unlock()

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RefreshRuns.WithLabelValues(trigger, outcome).Inc()
	metrics.RefreshDuration.Observe(finished.Sub(started).Seconds())
	return err
}

func (r *Runner) step(name string) {
	r.mu.Lock()
	r.status.Step = name
	r.mu.Unlock()
	if r.Ring != nil {
		r.Ring.Append("step: " + name)
	}
}

func (r *Runner) run(ctx context.Context, trigger string) error {
	log := logx.Component(ctx, "refresh").With().Str("trigger", trigger).Logger()
	ctx = logx.WithContext(ctx, log)
	now := time.Now().UTC()
	log.Info().Msg("refresh started")

	// 1. Ingest. Adapter failures are recorded, not fatal.
	r.step("ingest")
	env := &ingest.Env{
		Store:       r.Store,
		SnapshotDir: r.Cfg.BinDir,
		DebugDir:    r.Cfg.LogDir,
		Now:         now,
		TotalBudget: 20 * time.Minute,
	}
	results := ingest.RunAll(ctx, env, r.Ingesters)
	for _, res := range results {
		metrics.IngestUpserts.WithLabelValues(res.Provider).Add(float64(res.Upserted))
		metrics.IngestDrops.WithLabelValues(res.Provider).Add(float64(res.Dropped))
		for _, f := range res.Failures {
			log.Warn().Str("provider", res.Provider).Str("failure", f).Msg("ingest failure")
		}
	}
	r.mu.Lock()
	r.status.IngestStats = results
	r.mu.Unlock()

	// 2. Catalog hygiene: collapse duplicate external ids, drop stale rows.
	r.step("dedupe")
	if n, err := r.Store.DedupeByPVID(ctx); err != nil {
		return fmt.Errorf("dedupe: %w", err)
	} else if n > 0 {
		log.Info().Int("removed", n).Msg("duplicate events collapsed")
	}
	cutoff := now.AddDate(0, 0, -(r.Cfg.DaysBack + 1))
	if n, err := r.Store.PruneEventsBefore(ctx, cutoff); err != nil {
		return fmt.Errorf("prune: %w", err)
	} else if n > 0 {
		log.Info().Int("pruned", n).Msg("stale events removed")
	}

	// 3. Lane planning under current preferences.
	r.step("lanes")
	userPrefs, err := prefs.Load(ctx, r.Store)
	if err != nil {
		return fmt.Errorf("load prefs: %w", err)
	}
	events, err := r.Store.EventsInWindow(ctx, now, r.Cfg.DaysBack, r.Cfg.DaysAhead)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	plan := lanes.Build(events, userPrefs, now, lanes.Params{
		LaneCount:            r.Cfg.LaneCount,
		LaneStartNumber:      r.Cfg.LaneStartNumber,
		DaysAhead:            r.Cfg.DaysAhead,
		Padding:              time.Duration(r.Cfg.PaddingMinutes) * time.Minute,
		PlaceholderBlock:     time.Duration(r.Cfg.PlaceholderBlockMinutes) * time.Minute,
		PlaceholderExtraDays: r.Cfg.PlaceholderExtraDays,
	})
	if err := r.Store.ReplaceLanePlan(ctx, plan.Lanes, plan.Slots); err != nil {
		return fmt.Errorf("store lane plan: %w", err)
	}
	log.Info().Int("placed", plan.Placed).Int("dropped", plan.Dropped).
		Int("slots", len(plan.Slots)).Msg("lane plan built")

	real, placeholder := 0, 0
	for _, sl := range plan.Slots {
		if sl.IsPlaceholder {
			placeholder++
		} else {
			real++
		}
	}
	metrics.LaneSlotsPlanned.WithLabelValues("real").Set(float64(real))
	metrics.LaneSlotsPlanned.WithLabelValues("placeholder").Set(float64(placeholder))
	metrics.EventsStored.Set(float64(len(events)))

	// 4. Provider lane packings.
	r.step("adb-lanes")
	provCfgs, err := r.Store.ProviderLanes(ctx)
	if err != nil {
		return fmt.Errorf("load provider lanes: %w", err)
	}
	for _, cfg := range provCfgs {
		if !cfg.ADBEnabled || cfg.ADBLaneCount <= 0 {
			continue
		}
		adb := lanes.BuildADB(cfg.ProviderCode, cfg.ADBLaneCount, events, userPrefs, now, r.Cfg.DaysAhead)
		if adb.Skipped {
			log.Debug().Str("provider", cfg.ProviderCode).Msg("provider filtered out; lanes cleared")
		}
		if err := r.Store.ReplaceADBLanes(ctx, cfg.ProviderCode, adb.Slots); err != nil {
			return fmt.Errorf("store adb plan %s: %w", cfg.ProviderCode, err)
		}
	}

	// 5. Emit all guide artifacts.
	r.step("emit")
	if err := r.Emitter.Emit(ctx, userPrefs, now); err != nil {
		return fmt.Errorf("emit: %w", err)
	}
	if r.Cfg.DebugKeep > 0 {
		if n, err := guide.PruneDebugArtifacts(r.Cfg.LogDir, ingest.AmazonScrapePrefix, r.Cfg.DebugKeep); err == nil && n > 0 {
			log.Debug().Int("removed", n).Msg("old debug artifacts pruned")
		}
	}

	// 6. DVR hooks, best-effort: its absence must not fail the run.
	r.step("dvr")
	if r.Detector != nil {
		if err := r.Detector.Bootstrap(ctx, r.Cfg.LaneCount); err != nil {
			log.Warn().Err(err).Msg("sidecar bootstrap failed")
		}
	}
	if r.DVR != nil {
		if n, err := r.DVR.HideGroupsByPrefix(ctx, "Event Lane"); err != nil {
			log.Warn().Err(err).Msg("group hiding failed")
		} else if n > 0 {
			log.Info().Int("hidden", n).Msg("lane groups hidden in guide")
		}
		if err := r.DVR.Scan(ctx); err != nil {
			log.Warn().Err(err).Msg("dvr scan failed")
		}
	}

	r.mu.Lock()
	r.status.EventsStored = len(events)
	r.status.SlotsPlanned = len(plan.Slots)
	r.mu.Unlock()
	log.Info().Msg("refresh complete")
	return nil
}
