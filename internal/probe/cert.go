package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/url"
	"time"

	"github.com/hamed0406/uptimecore/internal/domain"
)

// CertChecker reads the TLS leaf certificate served for a monitor's URL.
type CertChecker struct {
	Dialer       *net.Dialer
	ExpiringDays int
	RootCAs      *x509.CertPool // nil uses the system pool
	Now          func() time.Time
}

func NewCertChecker() *CertChecker {
	return &CertChecker{
		Dialer:       &net.Dialer{Timeout: 10 * time.Second},
		ExpiringDays: 14,
		Now:          time.Now,
	}
}

func (c *CertChecker) Check(ctx context.Context, rawURL string) domain.CertificateState {
	now := c.Now().UTC()
	st := domain.CertificateState{CheckedAt: now}

	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		st.Status = domain.CertInvalid
		st.Reason = "invalid url"
		return st
	}
	if u.Scheme != "https" {
		st.Status = domain.CertInvalid
		st.Reason = "not an https url"
		return st
	}
	port := u.Port()
	if port == "" {
		port = "443"
	}

	d := &tls.Dialer{NetDialer: c.Dialer, Config: &tls.Config{ServerName: u.Hostname(), RootCAs: c.RootCAs}}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(u.Hostname(), port))
	if err != nil {
		st.Status = domain.CertInvalid
		st.Reason = err.Error()
		var invalid x509.CertificateInvalidError
		if errors.As(err, &invalid) && invalid.Reason == x509.Expired {
			st.Status = domain.CertExpired
		}
		return st
	}
	defer conn.Close()

	certs := conn.(*tls.Conn).ConnectionState().PeerCertificates
	if len(certs) == 0 {
		st.Status = domain.CertInvalid
		st.Reason = "no peer certificate"
		return st
	}
	leaf := certs[0]
	exp := leaf.NotAfter.UTC()
	st.ExpiresAt = &exp
	st.Issuer = leaf.Issuer.CommonName

	switch {
	case now.After(exp):
		st.Status = domain.CertExpired
	case exp.Sub(now) < time.Duration(c.ExpiringDays)*24*time.Hour:
		st.Status = domain.CertExpiring
	default:
		st.Status = domain.CertValid
	}
	return st
}
