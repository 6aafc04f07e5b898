package bot

import (
	"context"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/herald-bot/internal/models"
	"github.com/xaenox/herald-bot/pkg/config"
	"go.uber.org/zap"
)

const (
	pollTimeout    = int(config.LongPollTimeout / time.Second)
	messageTimeout = 2 * time.Minute
)

type Bot struct {
	api        *tgbotapi.BotAPI
	dispatcher *Dispatcher
	gateway    Gateway
	logger     *zap.Logger
	inflight   sync.WaitGroup
}

func New(api *tgbotapi.BotAPI, dispatcher *Dispatcher, gateway Gateway, logger *zap.Logger) *Bot {
	return &Bot{
		api:        api,
		dispatcher: dispatcher,
		gateway:    gateway,
		logger:     logger,
	}
}

// Start long-polls for updates until ctx is done, handling each message on its
// own goroutine. It waits for in-flight messages before returning.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("Bot is polling for updates", zap.String("username", b.api.Self.UserName))

	defer b.inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}

			b.inflight.Add(1)
			go b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	defer b.inflight.Done()

	// Let in-flight replies finish after shutdown starts.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), messageTimeout)
	defer cancel()

	ev := eventFromMessage(message)
	reply := b.dispatcher.Handle(ctx, ev)

	if err := b.gateway.Send(ctx, reply); err != nil {
		b.logger.Error("Failed to send reply",
			zap.Error(err),
			zap.Int64("chat_id", reply.RecipientID),
			zap.Int64("user_id", ev.SenderID))
	}
}

func eventFromMessage(message *tgbotapi.Message) models.InboundEvent {
	ev := models.InboundEvent{
		ConversationID: message.Chat.ID,
		SenderID:       message.Chat.ID,
		Text:           message.Text,
	}
	if message.From != nil {
		ev.SenderID = message.From.ID
	}
	return ev
}
