package httpapi

import (
	"testing"
	"time"
)

func TestIsValidHTTPURL(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"https://example.com", true},
		{"http://EXAMPLE.com", true},
		{"ftp://x", false},
		{"", false},
		{"https://", false},
	}
	for _, c := range cases {
		if got := isValidHTTPURL(c.in); got != c.want {
			t.Fatalf("isValidHTTPURL(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestNormalizeHTTPURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"https://EXAMPLE.com/", "https://example.com"},
		{"http://example.com:80", "http://example.com"},
		{"https://example.com:443/", "https://example.com"},
		{"https://example.com/p/", "https://example.com/p/"},
	}
	for _, c := range cases {
		if got := normalizeHTTPURL(c.in); got != c.want {
			t.Fatalf("normalizeHTTPURL(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestMonitorFromPayload_DefaultsNameToHost(t *testing.T) {
	now := time.Date(2025, 8, 18, 0, 0, 0, 0, time.UTC)
	m := monitorFromPayload(monitorPayload{URL: "HTTPS://Status.Example.com:443/"}, 5, now)
	if m.URL != "https://status.example.com" {
		t.Fatalf("url: got %q", m.URL)
	}
	if m.Name != "status.example.com" || m.Public() || m.IntervalMinutes != 5 {
		t.Fatalf("unexpected monitor %+v", m)
	}
}
