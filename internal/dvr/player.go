package dvr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fieldlane/fieldlane/internal/httpclient"
)

// PlayerClient talks directly to one player device's control API (distinct
// from the DVR server API).
type PlayerClient struct {
	BaseURL string // e.g. http://192.168.1.50:57000
	HTTP    *http.Client
}

// NewPlayer builds a client for a device at ip:port.
func NewPlayer(ip string, port int) *PlayerClient {
	return &PlayerClient{
		BaseURL: fmt.Sprintf("http://%s:%d", ip, port),
		HTTP:    httpclient.WithTimeout(10 * time.Second),
	}
}

// PlayerStatus is the device's current playback state.
type PlayerStatus struct {
	Status  string `json:"status"`
	Channel string `json:"channel"` // logical channel number as displayed
	Title   string `json:"now_title"`
}

// Status fetches what the device is playing right now.
func (p *PlayerClient) Status(ctx context.Context) (*PlayerStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/api/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("player status: %d", resp.StatusCode)
	}
	var st PlayerStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, err
	}
	return &st, nil
}

// PlayRecording starts playback of a DVR recording on the device.
func (p *PlayerClient) PlayRecording(ctx context.Context, recordingID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/api/play/recording/"+recordingID, nil)
	if err != nil {
		return err
	}
	resp, err := p.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("player play: %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}
