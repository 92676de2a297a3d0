package ingest

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/fieldlane/fieldlane/internal/httpclient"
)

// Fetcher is the shared upstream HTTP path: per-host throttling, once-retry
// on 429/5xx, and transparent brotli/gzip decode (several provider APIs only
// speak br).
type Fetcher struct {
	Client  *http.Client
	Headers map[string]string
}

// Get fetches url and returns the decoded body. Non-200 after retry is an
// error; callers treat it as an ingest-transient failure.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	release, err := httpclient.GlobalThrottle.Acquire(ctx, url)
	if err != nil {
		return nil, err
	}
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept-Encoding", "br, gzip")
	for k, v := range f.Headers {
		req.Header.Set(k, v)
	}
	resp, err := httpclient.DoWithRetry(ctx, f.Client, req, httpclient.DefaultRetryPolicy)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return decodeBody(resp)
}

// GetJSON fetches url and unmarshals the body into out.
func (f *Fetcher) GetJSON(ctx context.Context, url string, out any) error {
	body, err := f.Get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

func decodeBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "br":
		r = brotli.NewReader(resp.Body)
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	}
	return io.ReadAll(r)
}
