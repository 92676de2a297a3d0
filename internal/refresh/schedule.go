package refresh

import (
	"context"
	"time"

	"github.com/fieldlane/fieldlane/internal/config"
	"github.com/fieldlane/fieldlane/internal/logx"
	"github.com/fieldlane/fieldlane/internal/prefs"
)

// misfireGrace: a wakeup this late (suspend, clock step) still counts as the
// scheduled run rather than waiting a full day.
const misfireGrace = 5 * time.Minute

// Scheduler fires the daily auto refresh. Enablement and the HH:MM time are
// re-read from preferences on every cycle so UI changes apply without a
// restart.
type Scheduler struct {
	Runner *Runner
	Loc    *time.Location
}

// RunLoop blocks until ctx is done.
func (s *Scheduler) RunLoop(ctx context.Context) {
	log := logx.Component(ctx, "scheduler")
	loc := s.Loc
	if loc == nil {
		loc = time.Local
	}
	for {
		p, err := prefs.Load(ctx, s.Runner.Store)
		if err != nil {
			log.Warn().Err(err).Msg("prefs load failed; retrying in a minute")
			if !sleepCtx(ctx, time.Minute) {
				return
			}
			continue
		}
		clock, err := config.ParseClock(p.AutoRefreshTime)
		if err != nil {
			log.Warn().Str("time", p.AutoRefreshTime).Err(err).Msg("bad auto-refresh time; using 04:30")
			clock = config.Clock{Hour: 4, Minute: 30}
		}

		now := time.Now().In(loc)
		next := nextOccurrence(now, clock, loc)
		log.Debug().Time("next", next).Bool("enabled", p.AutoRefresh).Msg("auto refresh armed")
		if !sleepCtx(ctx, time.Until(next)) {
			return
		}

		// Re-check enablement after the sleep; the toggle may have flipped.
		p, err = prefs.Load(ctx, s.Runner.Store)
		if err != nil || !p.AutoRefresh {
			continue
		}
		late := time.Since(next)
		if late > misfireGrace {
			log.Warn().Dur("late", late).Msg("missed auto-refresh window; skipping")
			continue
		}
		if err := s.Runner.Run(ctx, "auto"); err != nil && err != ErrBusy {
			log.Error().Err(err).Msg("auto refresh failed")
		}
	}
}

// nextOccurrence is the next time clock comes around in loc, strictly after
// now.
func nextOccurrence(now time.Time, c config.Clock, loc *time.Location) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), c.Hour, c.Minute, 0, 0, loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d < 0 {
		d = 0
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
