// Package ingest defines the provider-ingester contract and the shared
// normalization every adapter runs its rows through before they reach the
// catalog. Adapters differ only in how they fetch; what they store is uniform.
package ingest

import (
	"context"
	"time"

	"github.com/fieldlane/fieldlane/internal/store"
)

// Ingester is one provider adapter. Implementations must be idempotent under
// re-runs: the same upstream state produces the same upserts.
type Ingester interface {
	Name() string
	Run(ctx context.Context, env *Env) (*Result, error)
}

// Env is what the orchestrator hands every ingester run.
type Env struct {
	Store       *store.Store
	SnapshotDir string // raw upstream captures, when an adapter works offline
	DebugDir    string // scrape debug artifacts (CSV), pruned elsewhere
	Now         time.Time
	// PerItemBudget bounds the time spent on a single upstream item or search
	// term; TotalBudget bounds the whole run. Zero means no bound.
	PerItemBudget time.Duration
	TotalBudget   time.Duration
}

// Result summarizes one run for logging and the refresh status API.
type Result struct {
	Provider string   `json:"provider"`
	Upserted int      `json:"upserted"`
	Dropped  int      `json:"dropped"`
	Failures []string `json:"failures,omitempty"`
}

// RunAll executes every ingester in order, collecting per-provider results.
// One adapter failing does not stop the rest; its error lands in Failures.
func RunAll(ctx context.Context, env *Env, ingesters []Ingester) []*Result {
	var out []*Result
	for _, ing := range ingesters {
		runCtx := ctx
		var cancel context.CancelFunc
		if env.TotalBudget > 0 {
			runCtx, cancel = context.WithTimeout(ctx, env.TotalBudget)
		}
		res, err := ing.Run(runCtx, env)
		if cancel != nil {
			cancel()
		}
		if res == nil {
			res = &Result{Provider: ing.Name()}
		}
		if err != nil {
			res.Failures = append(res.Failures, err.Error())
		}
		out = append(out, res)
		if ctx.Err() != nil {
			break
		}
	}
	return out
}
