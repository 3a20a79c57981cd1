// Package notify delivers user notifications over Telegram. Delivery is
// best-effort: an unconfigured notifier is a no-op and failures are
// logged, never propagated into the trading loops.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kelseyhightower/envconfig"
	logger "github.com/sirupsen/logrus"
)

type Config struct {
	BotToken string        `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatID   string        `envconfig:"TELEGRAM_CHAT_ID"`
	BaseURL  string        `envconfig:"TELEGRAM_BASE_URL" default:"https://api.telegram.org"`
	Timeout  time.Duration `envconfig:"TELEGRAM_TIMEOUT" default:"10s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// Notifier sends plain-text messages to the configured chat.
type Notifier struct {
	cfg  Config
	http *resty.Client
}

// NewNotifier builds a notifier from configuration.
func NewNotifier(cfg Config) *Notifier {
	return &Notifier{
		cfg: cfg,
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout),
	}
}

// Enabled reports whether the notifier has somewhere to deliver to.
func (n *Notifier) Enabled() bool {
	return n.cfg.BotToken != "" && n.cfg.ChatID != ""
}

// Notify delivers one message. It never returns an error to the caller;
// failures are logged and swallowed so a broken notifier cannot block
// trade accounting.
func (n *Notifier) Notify(ctx context.Context, text string) {
	if !n.Enabled() {
		return
	}

	resp, err := n.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id": n.cfg.ChatID,
			"text":    text,
		}).
		Post(fmt.Sprintf("/bot%s/sendMessage", n.cfg.BotToken))
	if err != nil {
		logger.WithError(err).Warn("Notification delivery failed")
		return
	}
	if resp.StatusCode() != 200 {
		logger.WithField("status", resp.StatusCode()).Warn("Notification rejected by Telegram")
	}
}
