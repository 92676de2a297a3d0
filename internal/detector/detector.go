// Package detector reacts to a lane being tuned. When the DVR requests a
// lane's stub stream, the detector figures out which player device tuned it,
// resolves the lane's current deeplink, and pushes the link to the device via
// a sidecar file plus the player control API. Everything downstream of the
// resolve is best-effort: a failed launch leaves the viewer on the stub, not
// with an error.
package detector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fieldlane/fieldlane/internal/deeplink"
	"github.com/fieldlane/fieldlane/internal/dvr"
	"github.com/fieldlane/fieldlane/internal/logx"
	"github.com/fieldlane/fieldlane/internal/resolver"
)

// settleDelay gives the DVR time to register the new tune before we ask it
// which client is on the lane.
const settleDelay = 2 * time.Second

// seenWindow bounds how stale a client's seen_at may be to count as a tune
// candidate. Past it the DVR is probably reporting a long-gone session.
const seenWindow = 90 * time.Second

// Detector watches lane tunes and launches apps on the tuned device.
type Detector struct {
	Resolver      *resolver.Resolver
	DVR           *dvr.Client
	ImportDir     string // DVR import dir where .strmlnk sidecars land
	ClientAPIPort int
	Debounce      time.Duration

	mu       sync.Mutex
	lastFire map[int]time.Time
	inflight map[int]bool
}

// New builds a detector. Debounce <= 0 disables debouncing.
func New(res *resolver.Resolver, dc *dvr.Client, importDir string, clientPort int, debounce time.Duration) *Detector {
	return &Detector{
		Resolver:      res,
		DVR:           dc,
		ImportDir:     importDir,
		ClientAPIPort: clientPort,
		Debounce:      debounce,
		lastFire:      make(map[int]time.Time),
		inflight:      make(map[int]bool),
	}
}

// OnLaneTuned is called from the stream handler whenever lane laneID is
// requested. It debounces per lane (the DVR refetches playlists constantly)
// and runs the launch sequence in the background.
func (d *Detector) OnLaneTuned(ctx context.Context, laneID int) {
	d.mu.Lock()
	now := time.Now()
	if d.inflight[laneID] || (d.Debounce > 0 && now.Sub(d.lastFire[laneID]) < d.Debounce) {
		d.mu.Unlock()
		return
	}
	d.lastFire[laneID] = now
	d.inflight[laneID] = true
	d.mu.Unlock()

	log := logx.Component(ctx, "detector").With().Int("lane", laneID).Logger()
	go func() {
		defer func() {
			d.mu.Lock()
			d.inflight[laneID] = false
			d.mu.Unlock()
		}()
		lctx, cancel := context.WithTimeout(logx.WithContext(context.Background(), log), 30*time.Second)
		defer cancel()
		if err := d.launch(lctx, laneID); err != nil {
			log.Warn().Err(err).Msg("lane launch failed")
		}
	}()
}

func (d *Detector) launch(ctx context.Context, laneID int) error {
	log := logx.Component(ctx, "detector")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(settleDelay):
	}

	client, err := d.clientOnLane(ctx, laneID)
	if err != nil {
		return fmt.Errorf("find client: %w", err)
	}
	if client == nil {
		log.Debug().Msg("no client on lane; skipping launch")
		return nil
	}

	format := deeplink.FormatScheme
	if client.IsAndroid() {
		format = deeplink.FormatHTTP
	}
	ans, err := d.Resolver.WhatsOn(ctx, laneID, time.Now(), format)
	if err == resolver.ErrNoEvent {
		log.Debug().Msg("nothing on lane; leaving stub playing")
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve lane: %w", err)
	}
	if ans.DeeplinkURL == "" {
		log.Debug().Str("event", ans.EventUID).Msg("event has no deeplink")
		return nil
	}

	if err := d.WriteSidecar(laneID, ans.DeeplinkURL); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	// Reprocess so the DVR picks up the new sidecar target, then tell the
	// device to jump to the recording entry that fronts it.
	if rec := d.recordingForLane(ctx, laneID); rec != "" {
		if err := d.DVR.Reprocess(ctx, rec); err != nil {
			log.Warn().Err(err).Str("recording", rec).Msg("reprocess failed")
		}
		player := dvr.NewPlayer(client.IP, d.ClientAPIPort)
		if err := player.PlayRecording(ctx, rec); err != nil {
			log.Warn().Err(err).Msg("player launch failed")
		} else {
			log.Info().
				Str("event", ans.EventUID).
				Str("device", client.Hostname).
				Str("deeplink", ans.DeeplinkURL).
				Bool("fallback", ans.IsFallback).
				Msg("launched app on device")
		}
	}
	return nil
}

// clientOnLane finds the player that tuned the lane. Candidates are the
// launchable platforms seen by the DVR within seenWindow (all launchable
// platforms when no seen_at is fresh); each is confirmed against its own
// status API, since the DVR's channel view lags the device. When no candidate
// confirms, the DVR's reported channel suffix decides.
func (d *Detector) clientOnLane(ctx context.Context, laneID int) (*dvr.ClientInfo, error) {
	clients, err := d.DVR.Clients(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var candidates []*dvr.ClientInfo
	for i := range clients {
		if clients[i].IsSupportedPlatform() && clients[i].SeenWithin(seenWindow, now) {
			candidates = append(candidates, &clients[i])
		}
	}
	if len(candidates) == 0 {
		for i := range clients {
			if clients[i].IsSupportedPlatform() {
				candidates = append(candidates, &clients[i])
			}
		}
	}

	want := strconv.Itoa(laneID)
	for _, c := range candidates {
		st, err := dvr.NewPlayer(c.IP, d.ClientAPIPort).Status(ctx)
		if err != nil || !strings.EqualFold(st.Status, "playing") {
			continue
		}
		if strings.HasSuffix(strings.TrimSpace(st.Channel), want) {
			return c, nil
		}
	}
	for _, c := range candidates {
		ch := c.ChannelID
		if ch == "" {
			ch = c.ChannelName
		}
		if strings.HasSuffix(strings.TrimSpace(ch), want) {
			return c, nil
		}
	}
	return nil, nil
}

// recordingForLane finds the DVR file backed by the lane's sidecar.
func (d *Detector) recordingForLane(ctx context.Context, laneID int) string {
	files, err := d.DVR.Files(ctx)
	if err != nil {
		return ""
	}
	want := sidecarName(laneID)
	for _, f := range files {
		if filepath.Base(f.Path) == want {
			return f.ID
		}
	}
	return ""
}

func sidecarName(laneID int) string {
	return fmt.Sprintf("lane%d.strmlnk", laneID)
}

// WriteSidecar writes the lane's .strmlnk file containing the deeplink URL.
// The DVR treats the file as a pseudo-recording whose playback opens the URL.
func (d *Detector) WriteSidecar(laneID int, target string) error {
	if err := os.MkdirAll(d.ImportDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(d.ImportDir, sidecarName(laneID))
	return os.WriteFile(path, []byte(target+"\n"), 0o644)
}

// Bootstrap seeds one sidecar per lane pointing at about:blank and asks the
// DVR to scan, so the recording entries exist before the first real launch.
func (d *Detector) Bootstrap(ctx context.Context, laneCount int) error {
	log := logx.Component(ctx, "detector")
	for n := 1; n <= laneCount; n++ {
		path := filepath.Join(d.ImportDir, sidecarName(n))
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := d.WriteSidecar(n, "about:blank"); err != nil {
			return fmt.Errorf("bootstrap lane %d: %w", n, err)
		}
	}
	if err := d.DVR.Scan(ctx); err != nil {
		log.Warn().Err(err).Msg("bootstrap scan failed")
	}
	return nil
}
