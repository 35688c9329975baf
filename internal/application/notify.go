package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/brunoruyu/lic-detect/internal/domain"
)

// AlertProvider delivers one formatted alert to a channel.
type AlertProvider interface {
	// Name returns the provider name for logging
	Name() string

	// IsEnabled returns whether the provider is configured and active
	IsEnabled() bool

	// Send delivers the message
	Send(ctx context.Context, text string) error
}

// Dispatcher fans one alert out to every enabled provider. Delivery failures
// are logged and never unwind the signal that triggered them.
type Dispatcher struct {
	providers []AlertProvider
	log       zerolog.Logger
}

// NewDispatcher creates a dispatcher over the given providers.
func NewDispatcher(log zerolog.Logger, providers ...AlertProvider) *Dispatcher {
	return &Dispatcher{
		providers: providers,
		log:       log.With().Str("component", "dispatcher").Logger(),
	}
}

// SignalAlert formats and sends the new-signal message.
func (d *Dispatcher) SignalAlert(ctx context.Context, sig *domain.Signal) {
	d.send(ctx, FormatSignalMessage(sig))
}

// TradeAlert formats and sends the trade-transition message.
func (d *Dispatcher) TradeAlert(ctx context.Context, trade domain.Trade) {
	d.send(ctx, FormatTradeMessage(trade))
}

func (d *Dispatcher) send(ctx context.Context, text string) {
	for _, p := range d.providers {
		if !p.IsEnabled() {
			continue
		}
		if err := p.Send(ctx, text); err != nil {
			d.log.Error().Err(err).Str("provider", p.Name()).Msg("alert delivery failed")
		}
	}
}

// FormatSignalMessage renders the alert body for a new signal.
func FormatSignalMessage(sig *domain.Signal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔔 %s %s\n", sig.Direction, sig.Instrument)
	fmt.Fprintf(&b, "Entry: %.2f | Target: %.2f | Stop: %.2f\n",
		sig.EntryPrice, sig.TargetPrice, sig.StopPrice)
	fmt.Fprintf(&b, "Confidence: %.1f%%\n", sig.Confidence*100)
	fmt.Fprintf(&b, "Auction: %s\n", sig.AuctionDate.Format("2006-01-02"))
	for i, reason := range sig.Reasons {
		fmt.Fprintf(&b, "%d. %s\n", i+1, reason)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatTradeMessage renders the alert body for a trade transition.
func FormatTradeMessage(trade domain.Trade) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Trade %s: %s\n", trade.Status, trade.Instrument)
	fmt.Fprintf(&b, "Entry: %.2f", trade.EntryPrice)
	if trade.ExitPrice != nil {
		fmt.Fprintf(&b, " | Exit: %.2f (%s)", *trade.ExitPrice, trade.ExitReason)
	}
	if trade.PnL != nil {
		fmt.Fprintf(&b, "\nPnL: %+.2f", *trade.PnL)
	}
	return b.String()
}

// TelegramProvider sends alerts through the Telegram Bot API.
type TelegramProvider struct {
	client *resty.Client
	token  string
	chatID string
}

// NewTelegramProvider creates the provider. An empty token or chat id leaves
// it disabled rather than failing.
func NewTelegramProvider(token, chatID string) *TelegramProvider {
	return &TelegramProvider{
		client: resty.New().SetBaseURL("https://api.telegram.org"),
		token:  token,
		chatID: chatID,
	}
}

// Name returns the provider name.
func (tp *TelegramProvider) Name() string { return "telegram" }

// IsEnabled reports whether a token and chat id are configured.
func (tp *TelegramProvider) IsEnabled() bool {
	return tp.token != "" && tp.chatID != ""
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// Send posts a sendMessage call.
func (tp *TelegramProvider) Send(ctx context.Context, text string) error {
	var out telegramResponse
	resp, err := tp.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id": tp.chatID,
			"text":    text,
		}).
		SetResult(&out).
		Post(fmt.Sprintf("/bot%s/sendMessage", tp.token))
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	if resp.StatusCode() != 200 || !out.OK {
		return fmt.Errorf("telegram rejected message: status %d %s", resp.StatusCode(), out.Description)
	}
	return nil
}

// LogProvider writes alerts to the structured log. Always enabled; it is the
// fallback channel when Telegram is not configured.
type LogProvider struct {
	log zerolog.Logger
}

// NewLogProvider creates the log-backed provider.
func NewLogProvider(log zerolog.Logger) *LogProvider {
	return &LogProvider{log: log}
}

// Name returns the provider name.
func (lp *LogProvider) Name() string { return "log" }

// IsEnabled always reports true.
func (lp *LogProvider) IsEnabled() bool { return true }

// Send writes the alert at info level.
func (lp *LogProvider) Send(_ context.Context, text string) error {
	lp.log.Info().Str("alert", text).Msg("alert")
	return nil
}
