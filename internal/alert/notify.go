package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"propdesk/internal/config"
	"propdesk/internal/models"
)

type Notifier interface {
	Notify(ctx context.Context, a models.Alert) error
}

// Multi notifies every channel and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, a models.Alert) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewNotifier builds the channels configured in cfg; nil when none is.
func NewNotifier(cfg config.NotifyConfig) Notifier {
	var out Multi
	if strings.TrimSpace(cfg.WebhookURL) != "" {
		out = append(out, NewWebhook(cfg.WebhookURL, cfg.Timeout))
	}
	if strings.TrimSpace(cfg.TelegramBotToken) != "" && strings.TrimSpace(cfg.TelegramChatID) != "" {
		out = append(out, NewTelegram(cfg.TelegramBaseURL, cfg.TelegramBotToken, cfg.TelegramChatID, cfg.Timeout))
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func newClient(timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return resty.New().SetTimeout(timeout)
}

type Webhook struct {
	URL    string
	client *resty.Client
}

func NewWebhook(url string, timeout time.Duration) *Webhook {
	return &Webhook{URL: url, client: newClient(timeout)}
}

func (w *Webhook) Notify(ctx context.Context, a models.Alert) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(a).
		Post(w.URL)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

type Telegram struct {
	BaseURL string
	Token   string
	ChatID  string
	client  *resty.Client
}

func NewTelegram(baseURL, token, chatID string, timeout time.Duration) *Telegram {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.telegram.org"
	}
	return &Telegram{BaseURL: strings.TrimRight(baseURL, "/"), Token: token, ChatID: chatID, client: newClient(timeout)}
}

func (t *Telegram) Notify(ctx context.Context, a models.Alert) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.BaseURL, t.Token)
	payload := map[string]any{
		"chat_id":    t.ChatID,
		"text":       formatMessage(a),
		"parse_mode": "HTML",
	}
	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(url)
	if err != nil {
		return fmt.Errorf("telegram API request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("telegram API returned status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func formatMessage(a models.Alert) string {
	return fmt.Sprintf("<b>[%s] %s</b>\naccount: %s\n%s",
		strings.ToUpper(string(a.Severity)), a.Title, a.AccountID, a.Message)
}
