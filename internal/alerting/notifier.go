package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Notification 封装一次价格拒绝的告警上下文。
type Notification struct {
	Tick time.Time
	Pair string
	// Kind is the error category, e.g. "freshness error".
	Kind   string
	Reason string
	// Amount is the priced base amount, already formatted.
	Amount string
	FeedID string
}

// Key identifies the alert for cooldown purposes.
func (n Notification) Key() string {
	return "rateoracle:alert:" + n.Pair + ":" + n.Kind
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Time("tick", note.Tick).
		Str("pair", note.Pair).
		Str("kind", note.Kind).
		Msg("alert sent via telegram")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Rate Oracle Alert]\n")
	builder.WriteString(fmt.Sprintf("Tick: %s UTC\n", note.Tick.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Pair: %s\n", note.Pair))
	if note.Kind != "" {
		builder.WriteString(fmt.Sprintf("Kind: %s\n", note.Kind))
	}
	builder.WriteString(fmt.Sprintf("Reason: %s\n", note.Reason))
	if note.Amount != "" {
		builder.WriteString(fmt.Sprintf("Amount: %s\n", note.Amount))
	}
	if note.FeedID != "" {
		builder.WriteString(fmt.Sprintf("Feed: %s\n", note.FeedID))
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
