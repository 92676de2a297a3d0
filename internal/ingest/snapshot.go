package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fieldlane/fieldlane/internal/logx"
)

// SnapshotIngester replays captured upstream payloads from disk. Each
// {prefix}.json (or {prefix}_*.json) file under the snapshot dir holds a
// []RawEvent batch. Used for offline refreshes, backfills, and tests; the
// normalization path is identical to live adapters.
type SnapshotIngester struct {
	Prefix string // provider id prefix, also the snapshot filename stem
}

func (si *SnapshotIngester) Name() string { return "snapshot:" + si.Prefix }

func (si *SnapshotIngester) Run(ctx context.Context, env *Env) (*Result, error) {
	log := logx.Component(ctx, "ingest")
	res := &Result{Provider: si.Prefix}

	paths, err := si.snapshotFiles(env.SnapshotDir)
	if err != nil {
		return res, err
	}
	if len(paths) == 0 {
		log.Debug().Str("provider", si.Prefix).Msg("no snapshot files")
		return res, nil
	}

	amazon, err := env.Store.AmazonChannelLookup(ctx)
	if err != nil {
		return res, fmt.Errorf("load amazon map: %w", err)
	}

	for _, path := range paths {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		data, err := os.ReadFile(path)
		if err != nil {
			res.Failures = append(res.Failures, fmt.Sprintf("%s: %v", filepath.Base(path), err))
			continue
		}
		var raws []RawEvent
		if err := json.Unmarshal(data, &raws); err != nil {
			res.Failures = append(res.Failures, fmt.Sprintf("%s: decode: %v", filepath.Base(path), err))
			continue
		}
		up, dr, fails := UpsertNormalized(ctx, env.Store, raws, si.Prefix, env.Now, amazon)
		res.Upserted += up
		res.Dropped += dr
		res.Failures = append(res.Failures, fails...)
	}

	log.Info().
		Str("provider", si.Prefix).
		Int("upserted", res.Upserted).
		Int("dropped", res.Dropped).
		Int("failures", len(res.Failures)).
		Msg("snapshot ingest done")
	return res, nil
}

func (si *SnapshotIngester) snapshotFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, ent := range entries {
		name := ent.Name()
		if ent.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		stem := strings.TrimSuffix(name, ".json")
		if stem == si.Prefix || strings.HasPrefix(stem, si.Prefix+"_") {
			out = append(out, filepath.Join(dir, name))
		}
	}
	return out, nil
}
