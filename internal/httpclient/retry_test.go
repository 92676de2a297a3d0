package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestDoWithRetry429(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	resp, err := DoWithRetry(context.Background(), ts.Client(), req, DefaultRetryPolicy)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestDoWithRetry5xxOnce(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	policy := RetryPolicy{Retry5xx: true, Backoff5xx: time.Millisecond}
	resp, err := DoWithRetry(context.Background(), ts.Client(), req, policy)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	// Retried exactly once; still failing is returned to the caller.
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestDoWithRetryHeadersCarried(t *testing.T) {
	var calls atomic.Int32
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		gotAuth = r.Header.Get("Authorization")
	}))
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	req.Header.Set("Authorization", "Bearer tok")
	policy := RetryPolicy{Retry5xx: true, Backoff5xx: time.Millisecond}
	resp, err := DoWithRetry(context.Background(), ts.Client(), req, policy)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if gotAuth != "Bearer tok" {
		t.Errorf("auth header lost on retry: %q", gotAuth)
	}
}

func TestDoWithRetryNo4xxRetry(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	resp, err := DoWithRetry(context.Background(), ts.Client(), req, DefaultRetryPolicy)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if calls.Load() != 1 {
		t.Errorf("404 retried: calls = %d", calls.Load())
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("5", time.Minute); got != 5*time.Second {
		t.Errorf("seconds = %v", got)
	}
	// Over the cap.
	if got := parseRetryAfter("600", time.Minute); got != time.Minute {
		t.Errorf("cap = %v", got)
	}
	// HTTP-date in the past waits zero.
	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC1123)
	if got := parseRetryAfter(past, time.Minute); got != 0 {
		t.Errorf("past date = %v", got)
	}
	// Garbage and empty default to one second.
	if got := parseRetryAfter("soon", time.Minute); got != time.Second {
		t.Errorf("garbage = %v", got)
	}
	if got := parseRetryAfter("", time.Minute); got != time.Second {
		t.Errorf("empty = %v", got)
	}
}

func TestHostThrottleLimitsConcurrency(t *testing.T) {
	th := NewHostThrottle(2, 100, 100)
	ctx := context.Background()

	rel1, err := th.Acquire(ctx, "http://host-a")
	if err != nil {
		t.Fatal(err)
	}
	rel2, err := th.Acquire(ctx, "http://host-a")
	if err != nil {
		t.Fatal(err)
	}

	// Third slot on the same host blocks until one is released.
	blocked, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := th.Acquire(blocked, "http://host-a"); err == nil {
		t.Fatal("third acquire should block past the deadline")
	}

	// A different host is unaffected.
	relB, err := th.Acquire(ctx, "http://host-b")
	if err != nil {
		t.Fatal(err)
	}
	relB()

	rel1()
	rel3, err := th.Acquire(ctx, "http://host-a")
	if err != nil {
		t.Fatal(err)
	}
	rel3()
	rel2()
}
