// Package httpclient is the shared outbound HTTP plumbing: one tuned client,
// a once-retry policy for 429/5xx, and per-host throttling so ingest runs do
// not hammer provider APIs.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// Outbound traffic is a handful of provider APIs polled in bursts during a
// refresh plus the DVR on the local network, so the pool stays small and the
// per-host limit lines up with the host throttle.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultIdleConnTimeout = 60 * time.Second
	MaxIdleConnsPerHost    = 8
)

var defaultClient = newClient(DefaultTimeout)

func newClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        32,
			MaxIdleConnsPerHost: MaxIdleConnsPerHost,
			IdleConnTimeout:     DefaultIdleConnTimeout,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// Default returns the shared tuned HTTP client used by ingest, the DVR
// client, and the refresh pipeline.
func Default() *http.Client { return defaultClient }

// WithTimeout returns a client with Default's transport tuning and a
// different overall timeout. DVR and player calls use short timeouts so a
// dead host cannot stall a refresh or a launch.
func WithTimeout(timeout time.Duration) *http.Client {
	return newClient(timeout)
}
