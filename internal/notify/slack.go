package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/hamed0406/uptimecore/internal/domain"
)

// Slack posts to the incoming-webhook URL stored as the channel destination.
type Slack struct {
	Client *http.Client
}

func NewSlack() *Slack {
	return &Slack{Client: &http.Client{Timeout: 10 * time.Second}}
}

type slackPayload struct {
	Text string `json:"text"`
}

func (s *Slack) Send(ctx context.Context, webhook string, p domain.Payload) error {
	if webhook == "" {
		return fmt.Errorf("slack: %w", ErrChannelDisabled)
	}
	body, _ := json.Marshal(slackPayload{Text: "*" + Title(p) + "*\n" + Text(p)})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitedError{RetryAfter: retryAfterHeader(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("slack: non-2xx status %d", resp.StatusCode)
	}
	return nil
}

func retryAfterHeader(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
