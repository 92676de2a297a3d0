package ingest

import (
	"context"
	"fmt"

	"github.com/fieldlane/fieldlane/internal/logx"
)

// FeedIngester pulls a provider's event feed over HTTP. The endpoint serves a
// JSON array of RawEvent; everything else (throttling, retry, brotli) comes
// from the shared fetch path.
type FeedIngester struct {
	Prefix  string // id namespace, e.g. "appletv"
	URL     string
	Headers map[string]string
}

func (fi *FeedIngester) Name() string { return fi.Prefix }

func (fi *FeedIngester) Run(ctx context.Context, env *Env) (*Result, error) {
	log := logx.Component(ctx, "ingest").With().Str("provider", fi.Prefix).Logger()
	res := &Result{Provider: fi.Prefix}

	f := &Fetcher{Headers: fi.Headers}
	var raws []RawEvent
	if err := f.GetJSON(ctx, fi.URL, &raws); err != nil {
		return res, fmt.Errorf("fetch feed: %w", err)
	}

	amazon, err := env.Store.AmazonChannelLookup(ctx)
	if err != nil {
		return res, fmt.Errorf("amazon lookup: %w", err)
	}
	up, dropped, failures := UpsertNormalized(ctx, env.Store, raws, fi.Prefix, env.Now, amazon)
	res.Upserted, res.Dropped, res.Failures = up, dropped, failures
	log.Info().Int("upserted", up).Int("dropped", dropped).Msg("feed ingested")
	return res, nil
}
