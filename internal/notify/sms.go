package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hamed0406/uptimecore/internal/domain"
)

// SMS posts {to, message} to a generic HTTP gateway with a bearer token.
type SMS struct {
	GatewayURL string
	Token      string
	Client     *http.Client
}

func NewSMS(gatewayURL, token string) *SMS {
	return &SMS{GatewayURL: gatewayURL, Token: token, Client: &http.Client{Timeout: 10 * time.Second}}
}

type smsPayload struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

func (s *SMS) Send(ctx context.Context, phone string, p domain.Payload) error {
	if s.GatewayURL == "" || phone == "" {
		return fmt.Errorf("sms: %w", ErrChannelDisabled)
	}
	text := Title(p)
	if p.Message != "" {
		text += " (" + p.Message + ")"
	}
	body, _ := json.Marshal(smsPayload{To: phone, Message: text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.GatewayURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("sms: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitedError{RetryAfter: retryAfterHeader(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("sms: non-2xx status %d", resp.StatusCode)
	}
	return nil
}
