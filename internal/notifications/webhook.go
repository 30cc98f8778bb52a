package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kjannette/stonks-backend/internal/httputil"
	"github.com/kjannette/stonks-backend/internal/money"
)

const defaultAppName = "Stonks"

// Trade is what a notification says about one committed trade.
type Trade struct {
	Username   string
	Side       string
	Symbol     string
	Shares     int64
	PriceCents int64
	TotalCents int64
	Stub       bool
}

// Message renders the one-line chat text for a trade.
func (t Trade) Message() string {
	msg := fmt.Sprintf("%s %s %d %s @ %s (total %s)",
		t.Username, pastTense(t.Side), abs(t.Shares), t.Symbol,
		money.FormatCents(t.PriceCents), money.FormatCents(t.TotalCents))
	if t.Stub {
		msg += " [stub price]"
	}
	return msg
}

type Sender struct {
	webhookURL string
	appName    string
	httpClient *http.Client
	retry      httputil.RetryConfig
	log        zerolog.Logger
}

func NewSender(webhookURL, appName string, log zerolog.Logger) *Sender {
	if appName == "" {
		appName = defaultAppName
	}
	s := &Sender{
		webhookURL: webhookURL,
		appName:    appName,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log.With().Str("component", "notifications").Logger(),
	}
	s.retry = httputil.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    5 * time.Second,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			s.log.Debug().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("retrying webhook")
		},
	}
	return s
}

// NotifyTrade posts a trade message. Failures are logged and swallowed.
func (s *Sender) NotifyTrade(ctx context.Context, t Trade) {
	s.Send(ctx, t.Message())
}

func (s *Sender) Send(ctx context.Context, msg string) {
	formatted := fmt.Sprintf("[%s] %s", s.appName, msg)
	s.log.Info().Msg(formatted)

	if s.webhookURL == "" {
		return
	}

	payload := s.formatPayload(formatted)
	body, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal webhook payload")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := httputil.Do(ctx, s.httpClient, s.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to send notification after retries")
		return
	}
	resp.Body.Close()
}

func (s *Sender) formatPayload(msg string) map[string]string {
	if strings.Contains(s.webhookURL, "discord") {
		return map[string]string{
			"content":  msg,
			"username": s.appName,
		}
	}
	return map[string]string{
		"text":     fmt.Sprintf("`%s`", msg),
		"username": s.appName,
	}
}

func (s *Sender) Enabled() bool {
	return s.webhookURL != ""
}

func pastTense(side string) string {
	switch side {
	case "buy":
		return "bought"
	case "sell":
		return "sold"
	}
	return side
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
