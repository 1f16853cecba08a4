package notify

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/hamed0406/uptimecore/internal/domain"
)

// Mail sends plain-text mail over SMTP; the destination is the recipient.
type Mail struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string

	// send is smtp.SendMail unless replaced in tests
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewMail(host string, port int, user, password, from string) *Mail {
	if from == "" {
		from = user
	}
	return &Mail{Host: host, Port: port, User: user, Password: password, From: from, send: smtp.SendMail}
}

func (m *Mail) Send(ctx context.Context, to string, p domain.Payload) error {
	if m.Host == "" || to == "" {
		return fmt.Errorf("mail: %w", ErrChannelDisabled)
	}
	var auth smtp.Auth
	if m.User != "" {
		auth = smtp.PlainAuth("", m.User, m.Password, m.Host)
	}
	addr := m.Host + ":" + strconv.Itoa(m.Port)
	msg := m.message(to, p)

	done := make(chan error, 1)
	go func() { done <- m.send(addr, auth, m.From, []string{to}, msg) }()
	select {
	case <-ctx.Done():
		return fmt.Errorf("mail: %w", ctx.Err())
	case err := <-done:
		return smtpError(err)
	}
}

func (m *Mail) message(to string, p domain.Payload) []byte {
	var b strings.Builder
	b.WriteString("From: " + m.From + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", Title(p)) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(Text(p), "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

// smtpError maps the throttling replies (421, 450, 451) to RateLimitedError.
func smtpError(err error) error {
	if err == nil {
		return nil
	}
	var te *textproto.Error
	if errors.As(err, &te) && (te.Code == 421 || te.Code == 450 || te.Code == 451) {
		return &RateLimitedError{Err: fmt.Errorf("mail: %w", err)}
	}
	return fmt.Errorf("mail: %w", err)
}
