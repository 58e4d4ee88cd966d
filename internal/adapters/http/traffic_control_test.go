package httpadapter

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimitMiddlewareReturns429ForPortal(t *testing.T) {
	env := newTestEnv(t, Options{
		PortalRateLimitRPS:   1,
		PortalRateLimitBurst: 1,
	})

	res1 := env.do(httptest.NewRequest(http.MethodGet, "/v1/portal/abc", nil))
	if res1.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", res1.Code)
	}

	res2 := env.do(httptest.NewRequest(http.MethodGet, "/v1/portal/abc", nil))
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header for 429 response")
	}

	other := httptest.NewRequest(http.MethodGet, "/v1/portal/abc", nil)
	other.RemoteAddr = "198.51.100.7:4242"
	if res := env.do(other); res.Code != http.StatusOK {
		t.Fatalf("other client expected 200, got %d", res.Code)
	}

	for i := 0; i < 3; i++ {
		if res := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)); res.Code != http.StatusOK {
			t.Fatalf("non-portal route must not be limited, got %d", res.Code)
		}
	}
}

func TestIPRateLimiterForgetsIdleVisitors(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	limiter := newIPRateLimiter(1, 1)
	limiter.now = func() time.Time { return now }

	if delay := limiter.reserve("192.0.2.1"); delay != 0 {
		t.Fatalf("first request expected no delay, got %s", delay)
	}
	if delay := limiter.reserve("192.0.2.1"); delay <= 0 {
		t.Fatalf("second request expected a delay")
	}

	now = now.Add(visitorIdleTTL + time.Minute)
	limiter.reserve("192.0.2.2")
	if _, ok := limiter.visitors["192.0.2.1"]; ok {
		t.Fatalf("expected idle visitor to be evicted")
	}
}

func TestBackpressureMiddlewareReturns503WhenSaturated(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int, 1)

	var rejected []string
	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.WriteHeader(http.StatusNoContent)
	})
	handler := backpressureMiddleware(base, 1, 20*time.Millisecond, func(reason string) {
		rejected = append(rejected, reason)
	})

	go func() {
		req := httptest.NewRequest(http.MethodGet, "/v1/cases/case-1", nil)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		done <- res.Code
	}()

	<-started

	req2 := httptest.NewRequest(http.MethodGet, "/v1/cases/case-1", nil)
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for saturated backpressure gate, got %d", res2.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(bytes.NewReader(res2.Body.Bytes())).Decode(&resp); err != nil {
		t.Fatalf("decode overload response: %v", err)
	}
	if resp["error"] == "" || resp["code"] != "overloaded" {
		t.Fatalf("expected overload error in response, got %v", resp)
	}
	if len(rejected) != 1 || rejected[0] != "overloaded" {
		t.Fatalf("expected one overloaded rejection, got %v", rejected)
	}

	close(release)

	select {
	case code := <-done:
		if code != http.StatusNoContent {
			t.Fatalf("first request expected 204, got %d", code)
		}
	case <-time.After(1 * time.Second):
		t.Fatalf("timed out waiting for first request completion")
	}
}
