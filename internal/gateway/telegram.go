// Package gateway delivers outbound messages through the Telegram Bot API.
package gateway

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/herald-bot/internal/metrics"
	"github.com/xaenox/herald-bot/internal/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Sender is the part of tgbotapi.BotAPI the gateway needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends messages and reports every failure to the caller.
type Telegram struct {
	api     Sender
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewTelegram creates a gateway allowing perSecond sends with a burst of the
// same size. perSecond <= 0 disables limiting.
func NewTelegram(api Sender, perSecond float64, logger *zap.Logger) *Telegram {
	limit := rate.Inf
	burst := 1
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = int(perSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &Telegram{
		api:     api,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

func (t *Telegram) Send(ctx context.Context, msg models.OutboundMessage) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	out := tgbotapi.NewMessage(msg.RecipientID, msg.Text)
	if msg.Format == models.FormatMarkdown {
		out.ParseMode = tgbotapi.ModeMarkdown
	}

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		_, err := t.api.Send(out)
		done <- err
	}()

	select {
	case err := <-done:
		metrics.OutboundSendDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			return fmt.Errorf("send to %d: %w", msg.RecipientID, err)
		}
		return nil
	case <-ctx.Done():
		// The transport call has no context; it finishes in the background.
		t.logger.Warn("Send abandoned",
			zap.Int64("chat_id", msg.RecipientID),
			zap.Duration("elapsed", time.Since(start)))
		return fmt.Errorf("send to %d: %w", msg.RecipientID, ctx.Err())
	}
}
