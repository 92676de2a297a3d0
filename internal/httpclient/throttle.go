package httpclient

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// HostThrottle is a process-global per-host limiter combining a concurrency
// semaphore with a request-rate limiter. Every outbound path in the process
// shares the same throttle for a given host, so parallel ingest goroutines
// cannot collectively exceed a provider's tolerance.
//
//	release, err := GlobalThrottle.Acquire(ctx, u)
//	if err != nil { return err }
//	defer release()
type HostThrottle struct {
	mu       sync.Mutex
	sems     map[string]chan struct{}
	limiters map[string]*rate.Limiter
	limit    int
	rps      rate.Limit
	burst    int
}

// GlobalThrottle caps each host at 4 concurrent requests and 8 req/s.
var GlobalThrottle = NewHostThrottle(4, 8, 8)

func NewHostThrottle(concurrency int, rps float64, burst int) *HostThrottle {
	if concurrency < 1 {
		concurrency = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &HostThrottle{
		sems:     make(map[string]chan struct{}),
		limiters: make(map[string]*rate.Limiter),
		limit:    concurrency,
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Acquire blocks until the host's rate limiter admits the request and a
// concurrency slot is free, then returns a release func. host may be a full
// URL; only scheme+host are used as the key.
func (h *HostThrottle) Acquire(ctx context.Context, host string) (func(), error) {
	key := normalizeHost(host)
	sem, lim := h.slotFor(key)
	if err := lim.Wait(ctx); err != nil {
		return nil, err
	}
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *HostThrottle) slotFor(key string) (chan struct{}, *rate.Limiter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sems[key]
	if !ok {
		s = make(chan struct{}, h.limit)
		h.sems[key] = s
	}
	l, ok := h.limiters[key]
	if !ok {
		l = rate.NewLimiter(h.rps, h.burst)
		h.limiters[key] = l
	}
	return s, l
}

func normalizeHost(host string) string {
	if u, err := url.Parse(host); err == nil && u.Host != "" {
		return u.Scheme + "://" + u.Host
	}
	return host
}
