package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPProber_StatusOK(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	}))
	defer s.Close()

	out := NewHTTPProber("test").Probe(context.Background(), s.URL)
	if !out.Success {
		t.Fatalf("want success, got %+v", out)
	}
	if out.StatusCode == nil || *out.StatusCode != 200 {
		t.Fatalf("want status 200, got %v", out.StatusCode)
	}
	if out.ResponseTimeMS == nil || *out.ResponseTimeMS < 0 {
		t.Fatalf("want measured response time, got %v", out.ResponseTimeMS)
	}
}

func TestHTTPProber_Status500(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", 500)
	}))
	defer s.Close()

	out := NewHTTPProber("test").Probe(context.Background(), s.URL)
	if out.Success {
		t.Fatalf("want failure, got %+v", out)
	}
	if out.StatusCode == nil || *out.StatusCode != 500 {
		t.Fatalf("want status 500, got %v", out.StatusCode)
	}
	if !strings.HasPrefix(out.FailureReason, "500") {
		t.Fatalf("want reason to start with 500, got %q", out.FailureReason)
	}
}

func TestHTTPProber_ConnectionRefusedHasNoTiming(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := s.URL
	s.Close()

	p := NewHTTPProber("test")
	p.Diagnose = nil
	out := p.Probe(context.Background(), addr)
	if out.Success {
		t.Fatalf("want failure")
	}
	if out.StatusCode != nil || out.ResponseTimeMS != nil {
		t.Fatalf("transport errors carry no code or timing, got %+v", out)
	}
	if !strings.HasPrefix(out.FailureReason, "connection failed") {
		t.Fatalf("unexpected reason %q", out.FailureReason)
	}
}

func TestRun_TimeoutBecomesFailure(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
	}))
	defer s.Close()

	out := Run(context.Background(), NewHTTPProber("test"), s.URL, 50*time.Millisecond, nil)
	if out.Success {
		t.Fatalf("want failure due to timeout, got %+v", out)
	}
	if out.FailureReason != ReasonTimeout {
		t.Fatalf("want reason %q, got %q", ReasonTimeout, out.FailureReason)
	}
	if out.CheckedAt.IsZero() {
		t.Fatalf("want CheckedAt stamped")
	}
}

func TestRun_StuckProberStillTimesOut(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	stuck := ProberFunc(func(ctx context.Context, url string) Result {
		<-block
		return Result{Success: true}
	})

	start := time.Now()
	out := Run(context.Background(), stuck, "https://example.com", 20*time.Millisecond, nil)
	if out.FailureReason != ReasonTimeout {
		t.Fatalf("want timeout, got %+v", out)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("Run did not honour its deadline")
	}
}

func TestCheckDNS_InvalidAndLiteral(t *testing.T) {
	if got := CheckDNS(context.Background(), "https://x").Class; got != DNSInvalidName {
		t.Fatalf("want %s, got %s", DNSInvalidName, got)
	}
	if got := CheckDNS(context.Background(), "127.0.0.1").Class; got != DNSResolves {
		t.Fatalf("want %s, got %s", DNSResolves, got)
	}
}
