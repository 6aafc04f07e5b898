package bot

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/xaenox/herald-bot/internal/metrics"
	"github.com/xaenox/herald-bot/internal/models"
	"github.com/xaenox/herald-bot/internal/state"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AnnouncementPrefix starts every broadcast message.
const AnnouncementPrefix = "📢 "

type BroadcastResult struct {
	Recipients int
	Sent       int
	Failed     int
}

// Broadcaster fans a scheduled announcement out to every user with
// engagement points at the moment it fires.
type Broadcaster struct {
	state       *state.Store
	gateway     Gateway
	concurrency int
	sendTimeout time.Duration
	logger      *zap.Logger
}

func NewBroadcaster(st *state.Store, gateway Gateway, concurrency int, sendTimeout time.Duration, logger *zap.Logger) *Broadcaster {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Broadcaster{
		state:       st,
		gateway:     gateway,
		concurrency: concurrency,
		sendTimeout: sendTimeout,
		logger:      logger,
	}
}

// Deliver adapts Broadcast to the scheduler callback.
func (b *Broadcaster) Deliver(ctx context.Context, job models.ScheduledJob) {
	b.Broadcast(ctx, job)
}

// Broadcast sends the job's announcement to each recipient independently. A
// failed or hung send only affects its own recipient.
func (b *Broadcaster) Broadcast(ctx context.Context, job models.ScheduledJob) BroadcastResult {
	recipients := b.state.Users()
	text := AnnouncementPrefix + job.Payload

	var sent, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(b.concurrency)

	for _, id := range recipients {
		id := id
		g.Go(func() error {
			if err := b.sendOne(ctx, models.Plain(id, text)); err != nil {
				failed.Add(1)
				metrics.BroadcastDeliveries.WithLabelValues("failed").Inc()
				b.logger.Error("Failed to send scheduled announcement",
					zap.Error(err),
					zap.String("job_id", job.ID),
					zap.Int64("user_id", id))
				return nil
			}
			sent.Add(1)
			metrics.BroadcastDeliveries.WithLabelValues("sent").Inc()
			b.logger.Debug("Sent scheduled announcement",
				zap.String("job_id", job.ID),
				zap.Int64("user_id", id))
			return nil
		})
	}
	g.Wait()

	result := BroadcastResult{
		Recipients: len(recipients),
		Sent:       int(sent.Load()),
		Failed:     int(failed.Load()),
	}
	b.logger.Info("Broadcast finished",
		zap.String("job_id", job.ID),
		zap.Int("recipients", result.Recipients),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed))

	return result
}

func (b *Broadcaster) sendOne(ctx context.Context, msg models.OutboundMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("send panicked: %v", r)
		}
	}()

	if b.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.sendTimeout)
		defer cancel()
	}
	return b.gateway.Send(ctx, msg)
}
