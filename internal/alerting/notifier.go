package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"quote-drift-tracker/internal/analysis"
)

// ErrThrottled 表示发送频率超限，本条告警被丢弃。
var ErrThrottled = errors.New("alert throttled")

// Notification 封装机会告警上下文。
type Notification struct {
	OpportunityID     string
	At                time.Time
	Pair              string
	PriceDriftPct     float64
	DriftThresholdPct float64
	TimingAdvantage   time.Duration
	EstimatedProfit   decimal.Decimal
	Previous          string
	Current           string
	AdditionalMsg     string
}

// FromOpportunity builds the notification for a detected opportunity.
func FromOpportunity(opp analysis.Opportunity, pair string, thresholdPct float64) Notification {
	return Notification{
		OpportunityID:     opp.ID,
		At:                opp.At,
		Pair:              pair,
		PriceDriftPct:     opp.PriceDrift,
		DriftThresholdPct: thresholdPct,
		TimingAdvantage:   opp.TimingAdvantage,
		EstimatedProfit:   opp.EstimatedProfit,
		Previous:          opp.Previous.String(),
		Current:           opp.Current.String(),
	}
}

// Direction classifies the drift sign.
func (n Notification) Direction() string {
	switch {
	case n.PriceDriftPct > 0:
		return "up"
	case n.PriceDriftPct < 0:
		return "down"
	default:
		return "flat"
	}
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramOptions 配置 Telegram 推送。
type TelegramOptions struct {
	BotToken string
	ChatID   string
	BaseURL  string
	Timeout  time.Duration
	// MinInterval spaces consecutive messages; bursts up to Burst are allowed.
	MinInterval time.Duration
	Burst       int
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	limiter  *rate.Limiter
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(opts TelegramOptions, logger zerolog.Logger) *TelegramNotifier {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 5
	}
	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}

	return &TelegramNotifier{
		botToken: opts.BotToken,
		chatID:   opts.ChatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本；超出频率限制时返回 ErrThrottled。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	if !n.limiter.Allow() {
		n.logger.Warn().Str("opportunity", note.OpportunityID).Msg("告警过于频繁，已丢弃")
		return ErrThrottled
	}

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
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Time("at", note.At).
		Str("opportunity", note.OpportunityID).
		Str("direction", note.Direction()).
		Msg("告警已发送 (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	pair := note.Pair
	if pair == "" {
		pair = "quote"
	}
	builder.WriteString(fmt.Sprintf("[%s Drift Opportunity]\n", pair))
	builder.WriteString(fmt.Sprintf("At: %s UTC\n", note.At.UTC().Format("2006-01-02 15:04:05.000")))
	builder.WriteString(fmt.Sprintf("Drift: %.4f%% (threshold %.4f%%)\n", note.PriceDriftPct, note.DriftThresholdPct))
	builder.WriteString(fmt.Sprintf("Direction: %s\n", note.Direction()))
	builder.WriteString(fmt.Sprintf("Timing advantage: %.1fms\n", float64(note.TimingAdvantage)/float64(time.Millisecond)))
	builder.WriteString(fmt.Sprintf("Estimated profit: %s\n", note.EstimatedProfit.StringFixed(2)))
	if note.Previous != "" || note.Current != "" {
		builder.WriteString(fmt.Sprintf("Samples: %s -> %s\n", note.Previous, note.Current))
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
