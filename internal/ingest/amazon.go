package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fieldlane/fieldlane/internal/logx"
	"github.com/fieldlane/fieldlane/internal/store"
)

// amazonScrapePrefix names the debug artifacts; PruneDebugArtifacts trims
// them by this prefix.
const AmazonScrapePrefix = "amazon_scrape_"

// ReadAmazonChannelsCSV parses a crawled GTI map: header row, then
// gti,logical_service,channel_name. Rows missing a gti or service are
// skipped, not fatal.
func ReadAmazonChannelsCSV(r io.Reader) ([]store.AmazonChannel, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse amazon csv: %w", err)
	}
	var out []store.AmazonChannel
	for i, rec := range records {
		if i == 0 && len(rec) > 0 && strings.EqualFold(rec[0], "gti") {
			continue
		}
		if len(rec) < 2 || rec[0] == "" || rec[1] == "" {
			continue
		}
		ch := store.AmazonChannel{GTI: rec[0], LogicalService: rec[1]}
		if len(rec) > 2 {
			ch.ChannelName = rec[2]
		}
		out = append(out, ch)
	}
	return out, nil
}

// AmazonChannelIngester loads the headless crawler's CSV output into the GTI
// map and leaves a timestamped debug copy. The crawler itself runs out of
// process; this adapter only consumes its artifact.
type AmazonChannelIngester struct {
	CSVPath string
}

func (ai *AmazonChannelIngester) Name() string { return "amazon_channels" }

func (ai *AmazonChannelIngester) Run(ctx context.Context, env *Env) (*Result, error) {
	log := logx.Component(ctx, "ingest")
	res := &Result{Provider: ai.Name()}

	f, err := os.Open(ai.CSVPath)
	if os.IsNotExist(err) {
		log.Debug().Str("path", ai.CSVPath).Msg("no amazon channel csv")
		return res, nil
	}
	if err != nil {
		return res, err
	}
	defer f.Close()

	rows, err := ReadAmazonChannelsCSV(f)
	if err != nil {
		return res, err
	}
	if err := env.Store.UpsertAmazonChannels(ctx, rows); err != nil {
		return res, fmt.Errorf("store amazon channels: %w", err)
	}
	res.Upserted = len(rows)

	if env.DebugDir != "" {
		if err := ai.writeDebugCopy(env, rows); err != nil {
			log.Warn().Err(err).Msg("amazon debug copy failed")
		}
	}
	log.Info().Int("channels", len(rows)).Msg("amazon channel map refreshed")
	return res, nil
}

func (ai *AmazonChannelIngester) writeDebugCopy(env *Env, rows []store.AmazonChannel) error {
	if err := os.MkdirAll(env.DebugDir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("%s%s.csv", AmazonScrapePrefix, env.Now.UTC().Format("20060102T150405"))
	f, err := os.Create(filepath.Join(env.DebugDir, name))
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write([]string{"gti", "logical_service", "channel_name"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write([]string{r.GTI, r.LogicalService, r.ChannelName}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
