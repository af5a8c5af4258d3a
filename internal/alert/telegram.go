package alert

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropwatch/dropwatch/internal/engine"
)

const defaultTelegramTimeout = 10 * time.Second

// TelegramSink posts alerts to a Telegram chat via the bot sendMessage API.
type TelegramSink struct {
	baseURL string
	token   string
	chatID  string
	client  *http.Client
}

// TelegramOption customizes a TelegramSink.
type TelegramOption func(*TelegramSink)

// WithTelegramBaseURL overrides the API host, for tests.
func WithTelegramBaseURL(base string) TelegramOption {
	return func(s *TelegramSink) { s.baseURL = strings.TrimRight(base, "/") }
}

// WithTelegramClient overrides the HTTP client.
func WithTelegramClient(client *http.Client) TelegramOption {
	return func(s *TelegramSink) { s.client = client }
}

// NewTelegramSink builds a sink for one bot token and chat.
func NewTelegramSink(token, chatID string, opts ...TelegramOption) (*TelegramSink, error) {
	if token == "" || chatID == "" {
		return nil, fmt.Errorf("telegram token and chat id are required")
	}
	s := &TelegramSink{
		baseURL: "https://api.telegram.org",
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: defaultTelegramTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Notify sends subject and body as one HTML-formatted message.
func (s *TelegramSink) Notify(ctx context.Context, _ engine.AlertCategory, subject, body string) error {
	return s.send(ctx, fmt.Sprintf("<b>%s</b>\n%s", html.EscapeString(subject), html.EscapeString(body)))
}

func (s *TelegramSink) send(ctx context.Context, text string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.token)
	form := url.Values{
		"chat_id":    {s.chatID},
		"text":       {text},
		"parse_mode": {"HTML"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return nil
}
