// Package dvr is a thin REST client for the downstream DVR server and its
// player clients. Everything here is best-effort from the pipeline's point of
// view: a DVR that is down should never fail a refresh.
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

// Client talks to one DVR server.
type Client struct {
	BaseURL string // e.g. http://127.0.0.1:8085
	HTTP    *http.Client
}

// New returns a client with a short timeout; DVR calls sit on the refresh
// path and must not stall it.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTP:    httpclient.WithTimeout(15 * time.Second),
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("dvr %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("dvr %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// RecordingFile is one entry from /dvr/files.
type RecordingFile struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// Files lists the DVR's known recording files.
func (c *Client) Files(ctx context.Context) ([]RecordingFile, error) {
	var files []RecordingFile
	if err := c.do(ctx, http.MethodGet, "/dvr/files", nil, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// Reprocess asks the DVR to re-run metadata matching for one file.
func (c *Client) Reprocess(ctx context.Context, fileID string) error {
	return c.do(ctx, http.MethodPut, "/dvr/files/"+fileID+"/reprocess", nil, nil)
}

// Scan triggers a library scan of the DVR's import directories.
func (c *Client) Scan(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/dvr/scanner/scan", nil, nil)
}

// ClientInfo is one connected player from /dvr/clients/info.
type ClientInfo struct {
	Hostname     string `json:"hostname"`
	IP           string `json:"local_ip"`
	Platform     string `json:"platform"`
	ChannelID    string `json:"channel_id"`
	ChannelName  string `json:"channel_name"`
	NowPlaying   string `json:"now_playing"`
	ClientAPIURL string `json:"client_api_url"`
	SeenAt       string `json:"seen_at"`
}

// IsAndroid reports whether this player runs an Android-family platform,
// which the detector uses to pick the deeplink format.
func (ci *ClientInfo) IsAndroid() bool {
	p := strings.ToLower(ci.Platform)
	return strings.Contains(p, "android") || strings.Contains(p, "firetv") || strings.Contains(p, "fire tv")
}

// IsSupportedPlatform reports whether this player can take a deeplink launch:
// Apple TV or an Android-family box. Web and desktop clients cannot.
func (ci *ClientInfo) IsSupportedPlatform() bool {
	p := strings.ToLower(ci.Platform)
	return strings.Contains(p, "apple") || strings.Contains(p, "tvos") || ci.IsAndroid()
}

// SeenWithin reports whether the DVR saw this client within window of now.
// A missing or unparseable timestamp reads as not seen.
func (ci *ClientInfo) SeenWithin(window time.Duration, now time.Time) bool {
	seen, err := time.Parse(time.RFC3339, ci.SeenAt)
	if err != nil {
		return false
	}
	return now.Sub(seen) <= window
}

// Clients lists players currently connected to the DVR.
func (c *Client) Clients(ctx context.Context) ([]ClientInfo, error) {
	var infos []ClientInfo
	if err := c.do(ctx, http.MethodGet, "/dvr/clients/info", nil, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// Group is a guide channel group from /dvr/groups.
type Group struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Hidden bool   `json:"hidden"`
}

// Groups lists all channel groups, including hidden ones.
func (c *Client) Groups(ctx context.Context) ([]Group, error) {
	var groups []Group
	if err := c.do(ctx, http.MethodGet, "/dvr/groups?all=true", nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// SetGroupHidden toggles a group's guide visibility. The DVR takes the target
// state in the path, not a body.
func (c *Client) SetGroupHidden(ctx context.Context, groupID string, hidden bool) error {
	state := "hidden"
	if !hidden {
		state = "visible"
	}
	return c.do(ctx, http.MethodPut, "/dvr/groups/"+groupID+"/visibility/"+state, nil, nil)
}

// HideGroupsByPrefix hides every visible group whose name starts with prefix.
// Returns how many were hidden.
func (c *Client) HideGroupsByPrefix(ctx context.Context, prefix string) (int, error) {
	groups, err := c.Groups(ctx)
	if err != nil {
		return 0, err
	}
	hidden := 0
	for _, g := range groups {
		if g.Hidden || !strings.HasPrefix(g.Name, prefix) {
			continue
		}
		if err := c.SetGroupHidden(ctx, g.ID, true); err != nil {
			return hidden, err
		}
		hidden++
	}
	return hidden, nil
}
