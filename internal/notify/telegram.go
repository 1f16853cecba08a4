package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/hamed0406/uptimecore/internal/domain"
)

// Telegram sends through the Bot API; the channel destination is the chat id.
type Telegram struct {
	Token   string
	APIBase string
	Client  *http.Client
}

func NewTelegram(token, apiBase string) *Telegram {
	if apiBase == "" {
		apiBase = "https://api.telegram.org"
	}
	return &Telegram{
		Token:   token,
		APIBase: strings.TrimRight(apiBase, "/"),
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// telegramHTML renders p for parse_mode HTML; Telegram rejects messages
// with a bare & or < so everything outside the tags is escaped.
func telegramHTML(p domain.Payload) string {
	return "<b>" + html.EscapeString(Title(p)) + "</b>\n\n" + html.EscapeString(Text(p))
}

func (t *Telegram) Send(ctx context.Context, chatID string, p domain.Payload) error {
	if t.Token == "" || chatID == "" {
		return fmt.Errorf("telegram: %w", ErrChannelDisabled)
	}
	body, _ := json.Marshal(telegramMessage{
		ChatID:    chatID,
		Text:      telegramHTML(p),
		ParseMode: "HTML",
	})
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.APIBase, t.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	defer resp.Body.Close()

	var out telegramResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode == http.StatusTooManyRequests || out.ErrorCode == http.StatusTooManyRequests {
		wait := time.Duration(out.Parameters.RetryAfter) * time.Second
		if wait == 0 {
			wait = retryAfterHeader(resp.Header.Get("Retry-After"))
		}
		return &RateLimitedError{RetryAfter: wait, Err: fmt.Errorf("telegram: %s", out.Description)}
	}
	if resp.StatusCode/100 != 2 || !out.OK {
		return fmt.Errorf("telegram: status %d: %s", resp.StatusCode, out.Description)
	}
	return nil
}
