package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

type HTTPProber struct {
	Client    *http.Client
	UserAgent string
	// Diagnose, when set, is consulted on transport errors to annotate the
	// failure reason with the DNS class of the host.
	Diagnose func(ctx context.Context, host string) DNSStatus
}

func NewHTTPProber(userAgent string) *HTTPProber {
	return &HTTPProber{
		// the per-probe deadline comes from the context
		Client:    &http.Client{},
		UserAgent: userAgent,
		Diagnose:  CheckDNS,
	}
}

func (h *HTTPProber) Probe(ctx context.Context, target string) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{FailureReason: "invalid url: " + err.Error()}
	}
	if h.UserAgent != "" {
		req.Header.Set("User-Agent", h.UserAgent)
	}

	start := time.Now()
	resp, err := h.Client.Do(req)
	if err != nil {
		return Result{FailureReason: h.transportReason(ctx, target, err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	ms := int(time.Since(start) / time.Millisecond)

	code := resp.StatusCode
	r := Result{StatusCode: &code, ResponseTimeMS: &ms}
	if code >= 200 && code < 400 {
		r.Success = true
		return r
	}
	r.FailureReason = strconv.Itoa(code) + " " + http.StatusText(code)
	return r
}

func (h *HTTPProber) transportReason(ctx context.Context, target string, err error) string {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return ReasonTimeout
	}
	reason := "connection failed: " + err.Error()
	var ue *url.Error
	if errors.As(err, &ue) {
		reason = "connection failed: " + ue.Err.Error()
	}
	if h.Diagnose == nil {
		return reason
	}
	if dns := h.Diagnose(ctx, extractHost(target)); dns.Class != "" && dns.Class != DNSResolves {
		reason = fmt.Sprintf("%s dns=%s", reason, dns.Class)
	}
	return reason
}

func extractHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}
