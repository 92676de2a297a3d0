// Package hls serves the stub streams behind the generic lanes. The DVR tunes
// a lane like any live channel; it receives a rolling playlist of black video
// segments while the detector launches the real app on the client. The stream
// only has to be valid long enough for playback to hand off.
package hls

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/fieldlane/fieldlane/internal/logx"
)

const (
	// SegmentDuration is the advertised length of every stub segment.
	SegmentDuration = 10 * time.Second
	// SegmentFile is the single shared TS segment all lanes serve.
	SegmentFile = "segment.ts"
	// windowSize is how many segment entries each playlist carries.
	windowSize = 3
)

// Stub owns the shared black segment and renders per-request playlists.
type Stub struct {
	BinDir string
}

// SegmentPath is where the shared segment lives (or should live).
func (s *Stub) SegmentPath() string {
	return filepath.Join(s.BinDir, SegmentFile)
}

// EnsureSegment builds the black TS segment with ffmpeg if it is not already
// on disk. Missing ffmpeg is not fatal: lanes then 404 on segment requests and
// chrome-style clients, which never fetch segments, keep working.
func (s *Stub) EnsureSegment(ctx context.Context) error {
	path := s.SegmentPath()
	if fi, err := os.Stat(path); err == nil && fi.Size() > 0 {
		return nil
	}
	if err := os.MkdirAll(s.BinDir, 0o755); err != nil {
		return fmt.Errorf("create bin dir: %w", err)
	}
	log := logx.Component(ctx, "hls")
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		log.Warn().Msg("ffmpeg not found; lane segment requests will 404")
		return nil
	}
	// 60s of black 1280x720 with silent audio, MPEG-TS. Players loop it via
	// the rolling playlist.
	args := []string{
		"-y",
		"-f", "lavfi", "-i", "color=c=black:s=1280x720:r=30",
		"-f", "lavfi", "-i", "anullsrc=channel_layout=stereo:sample_rate=48000",
		"-t", "60",
		"-c:v", "libx264", "-preset", "ultrafast", "-tune", "stillimage",
		"-c:a", "aac",
		"-f", "mpegts",
		path,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg segment build: %w", err)
	}
	log.Info().Str("path", path).Msg("stub segment built")
	return nil
}

// HasSegment reports whether the shared segment exists and is non-empty.
func (s *Stub) HasSegment() bool {
	fi, err := os.Stat(s.SegmentPath())
	return err == nil && fi.Size() > 0
}

// Playlist renders a live-style media playlist at time now. The media
// sequence is derived from wall time so a player that refetches sees the
// window advance; there is no EXT-X-ENDLIST, so playback never "finishes".
func Playlist(laneID int, baseURL string, now time.Time) string {
	seq := now.Unix() / int64(SegmentDuration.Seconds())
	var b []byte
	b = append(b, "#EXTM3U\n#EXT-X-VERSION:3\n"...)
	b = append(b, fmt.Sprintf("#EXT-X-TARGETDURATION:%d\n", int(SegmentDuration.Seconds()))...)
	b = append(b, fmt.Sprintf("#EXT-X-MEDIA-SEQUENCE:%d\n", seq)...)
	for i := 0; i < windowSize; i++ {
		b = append(b, fmt.Sprintf("#EXTINF:%.1f,\n", SegmentDuration.Seconds())...)
		b = append(b, fmt.Sprintf("%s/lane/%d/segment.ts?seq=%d\n", baseURL, laneID, seq+int64(i))...)
	}
	return string(b)
}
