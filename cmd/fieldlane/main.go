// Command fieldlane aggregates live sports events into a virtual-channel
// lineup for a DVR: it ingests provider catalogs, packs events onto lanes,
// emits M3U/XMLTV guide artifacts, and serves lane resolution at watch time.
//
// Subcommands:
//
//	run      serve HTTP and run the auto-refresh scheduler (default)
//	serve    serve HTTP only, no scheduler
//	refresh  run one full pipeline pass and exit
//	emit     regenerate guide artifacts from the current store and exit
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldlane/fieldlane/internal/config"
	"github.com/fieldlane/fieldlane/internal/detector"
	"github.com/fieldlane/fieldlane/internal/dvr"
	"github.com/fieldlane/fieldlane/internal/guide"
	"github.com/fieldlane/fieldlane/internal/hls"
	"github.com/fieldlane/fieldlane/internal/ingest"
	"github.com/fieldlane/fieldlane/internal/logx"
	"github.com/fieldlane/fieldlane/internal/prefs"
	"github.com/fieldlane/fieldlane/internal/refresh"
	"github.com/fieldlane/fieldlane/internal/resolver"
	"github.com/fieldlane/fieldlane/internal/server"
	"github.com/fieldlane/fieldlane/internal/store"
)

func main() {
	cmd := "run"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	if err := run(cmd); err != nil {
		fmt.Fprintln(os.Stderr, "fieldlane:", err)
		os.Exit(1)
	}
}

type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	store    *store.Store
	ring     *refresh.Ring
	runner   *refresh.Runner
	resolver *resolver.Resolver
	detector *detector.Detector
	stub     *hls.Stub
}

func run(cmd string) error {
	if err := config.LoadEnvFile(".env"); err != nil {
		return err
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	ring := refresh.NewRing()
	log := logx.New(cfg.LogLevel, cfg.LogFormat, ring)
	ctx := logx.WithContext(context.Background(), log)

	st, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	ident, err := ensureIdentity(ctx, st)
	if err != nil {
		return err
	}
	log = log.With().Str("device_id", ident.DeviceID).Logger()
	ctx = logx.WithContext(ctx, log)

	dvrClient := dvr.New(cfg.DVRBaseURL())
	res := &resolver.Resolver{
		Store:   st,
		Padding: time.Duration(cfg.PaddingMinutes) * time.Minute,
	}
	det := detector.New(res, dvrClient, cfg.DVRImportDir, cfg.DVRClientAPIPort, cfg.DetectorDebounce)
	stub := &hls.Stub{BinDir: cfg.BinDir}
	emitter := &guide.Emitter{
		Store:     st,
		OutputDir: cfg.OutputDir,
		BaseURL:   cfg.ServerBaseURL(),
		DaysBack:  cfg.DaysBack,
		DaysAhead: cfg.DaysAhead,
		Location:  cfg.Location(),
	}
	runner := &refresh.Runner{
		Cfg:       cfg,
		Store:     st,
		Emitter:   emitter,
		DVR:       dvrClient,
		Detector:  det,
		Ingesters: defaultIngesters(cfg),
		Ring:      ring,
	}

	a := &app{
		cfg: cfg, log: log, store: st, ring: ring,
		runner: runner, resolver: res, detector: det, stub: stub,
	}

	switch cmd {
	case "run":
		return a.serve(ctx, true)
	case "serve":
		return a.serve(ctx, false)
	case "refresh":
		return runner.Run(ctx, "manual")
	case "emit":
		return a.emitOnce(ctx, emitter)
	case "help", "-h", "--help":
		fmt.Println("usage: fieldlane [run|serve|refresh|emit]")
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// ensureIdentity loads or creates the daemon's persistent device identity.
// The generated device id survives restarts and is what the DVR host sees.
func ensureIdentity(ctx context.Context, st *store.Store) (*store.AuthBlob, error) {
	b, err := st.AuthBlobFor(ctx, "tuner")
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	b = &store.AuthBlob{Upstream: "tuner"}
	if err := st.SaveAuthBlob(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// defaultIngesters builds the adapter set. Snapshot adapters pick up any
// captured payloads present; the amazon channel loader consumes the crawler's
// CSV when one exists; configured live feeds run last so their rows win the
// freshest-seen dedupe.
func defaultIngesters(cfg *config.Config) []ingest.Ingester {
	ings := []ingest.Ingester{
		&ingest.AmazonChannelIngester{CSVPath: cfg.BinDir + "/amazon_channels.csv"},
		&ingest.SnapshotIngester{Prefix: "appletv"},
		&ingest.SnapshotIngester{Prefix: "espn"},
		&ingest.SnapshotIngester{Prefix: "victory"},
	}
	for prefix, url := range cfg.Feeds {
		ings = append(ings, &ingest.FeedIngester{Prefix: prefix, URL: url})
	}
	return ings
}

func (a *app) serve(ctx context.Context, withScheduler bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.stub.EnsureSegment(ctx); err != nil {
		a.log.Warn().Err(err).Msg("stub segment unavailable")
	}
	if err := a.detector.Bootstrap(ctx, a.cfg.LaneCount); err != nil {
		a.log.Warn().Err(err).Msg("sidecar bootstrap failed")
	}

	if withScheduler {
		// Seed the toggle from env on first boot only; afterwards the UI owns it.
		if p, err := prefs.Load(ctx, a.store); err == nil && a.cfg.AutoRefreshEnabled && !p.AutoRefresh {
			p.AutoRefresh = true
			p.AutoRefreshTime = a.cfg.AutoRefreshTime
			if err := p.Save(ctx, a.store); err != nil {
				a.log.Warn().Err(err).Msg("seeding auto-refresh pref failed")
			}
		}
		sched := &refresh.Scheduler{Runner: a.runner, Loc: a.cfg.Location()}
		go sched.RunLoop(ctx)
	}

	srv := &server.Server{
		Cfg:      a.cfg,
		Store:    a.store,
		Resolver: a.resolver,
		Runner:   a.runner,
		Ring:     a.ring,
		Detector: a.detector,
		Stub:     a.stub,
		Log:      a.log,
	}
	httpSrv := &http.Server{
		Addr:              net.JoinHostPort(a.cfg.ListenHost, fmt.Sprint(a.cfg.ListenPort)),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", httpSrv.Addr).Msg("listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	a.log.Info().Msg("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutCtx)
}

func (a *app) emitOnce(ctx context.Context, emitter *guide.Emitter) error {
	p, err := prefs.Load(ctx, a.store)
	if err != nil {
		return err
	}
	return emitter.Emit(ctx, p, time.Now().UTC())
}
