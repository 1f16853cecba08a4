package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hamed0406/uptimecore/internal/domain"
)

func TestCertChecker_ReadsLeaf(t *testing.T) {
	s := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer s.Close()

	pool := s.Client().Transport.(*http.Transport).TLSClientConfig.RootCAs
	c := NewCertChecker()
	c.RootCAs = pool

	st := c.Check(context.Background(), s.URL)
	if st.ExpiresAt == nil {
		t.Fatalf("want expiry, got %+v", st)
	}
	if st.Status != domain.CertValid && st.Status != domain.CertExpiring {
		t.Fatalf("want valid certificate, got %+v", st)
	}
}

func TestCertChecker_ExpiringWindow(t *testing.T) {
	s := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer s.Close()

	c := NewCertChecker()
	c.RootCAs = s.Client().Transport.(*http.Transport).TLSClientConfig.RootCAs
	first := c.Check(context.Background(), s.URL)
	if first.ExpiresAt == nil {
		t.Fatalf("want expiry, got %+v", first)
	}
	// pretend we are a week before expiry
	c.Now = func() time.Time { return first.ExpiresAt.Add(-7 * 24 * time.Hour) }
	if got := c.Check(context.Background(), s.URL); got.Status != domain.CertExpiring {
		t.Fatalf("want expiring, got %s", got.Status)
	}
}

func TestCertChecker_RejectsPlainHTTP(t *testing.T) {
	st := NewCertChecker().Check(context.Background(), "http://example.com")
	if st.Status != domain.CertInvalid {
		t.Fatalf("want invalid, got %s", st.Status)
	}
}
