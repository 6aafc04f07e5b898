package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xaenox/herald-bot/internal/command"
	"github.com/xaenox/herald-bot/internal/directory"
	"github.com/xaenox/herald-bot/internal/metrics"
	"github.com/xaenox/herald-bot/internal/models"
	"github.com/xaenox/herald-bot/internal/state"
	"github.com/xaenox/herald-bot/internal/weather"
	"go.uber.org/zap"
)

type WeatherService interface {
	Current(ctx context.Context, location string) (*weather.Report, error)
}

type ChatService interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Scheduler interface {
	Schedule(payload string, fireAt time.Time, createdBy int64) (models.ScheduledJob, error)
}

// Gateway transmits outbound messages. Implementations return every failure.
type Gateway interface {
	Send(ctx context.Context, msg models.OutboundMessage) error
}

type Deps struct {
	Router    *command.Router
	State     *state.Store
	Directory *directory.Directory
	Weather   WeatherService
	Chat      ChatService
	Scheduler Scheduler
	// Location is used to read schedule timestamps. Defaults to time.Local.
	Location *time.Location
	Logger   *zap.Logger
}

// Dispatcher routes inbound events to handlers and turns their results into
// replies.
type Dispatcher struct {
	router    *command.Router
	state     *state.Store
	directory *directory.Directory
	weather   WeatherService
	chat      ChatService
	scheduler Scheduler
	location  *time.Location
	logger    *zap.Logger
}

func NewDispatcher(deps Deps) *Dispatcher {
	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}
	return &Dispatcher{
		router:    deps.Router,
		state:     deps.State,
		directory: deps.Directory,
		weather:   deps.Weather,
		chat:      deps.Chat,
		scheduler: deps.Scheduler,
		location:  loc,
		logger:    deps.Logger,
	}
}

// Handle produces the reply for ev. It never panics and never returns an
// error: handler failures become user-facing replies.
func (d *Dispatcher) Handle(ctx context.Context, ev models.InboundEvent) (reply models.OutboundMessage) {
	cmd := d.router.Classify(ev.Text)
	metrics.CommandsDispatched.WithLabelValues(cmd.Kind.String()).Inc()

	defer func() {
		if r := recover(); r != nil {
			reply = d.errorReply(ev, cmd, unexpectedError("⚠ Something went wrong. Please try again later.", fmt.Errorf("panic: %v", r)))
		}
	}()

	reply, err := d.dispatch(ctx, ev, cmd)
	if err != nil {
		return d.errorReply(ev, cmd, err)
	}
	return reply
}

func (d *Dispatcher) dispatch(ctx context.Context, ev models.InboundEvent, cmd command.Command) (models.OutboundMessage, error) {
	switch cmd.Kind {
	case command.KindHelp:
		return d.handleHelp(ev), nil
	case command.KindWeather:
		return d.handleWeather(ctx, ev, cmd.Args)
	case command.KindLeaderboard:
		return d.handleLeaderboard(ev), nil
	case command.KindAddAdmin:
		return d.handleAddAdmin(ctx, ev, cmd.Args)
	case command.KindRemoveAdmin:
		return d.handleRemoveAdmin(ctx, ev, cmd.Args)
	case command.KindSchedule:
		return d.handleSchedule(ev, cmd.Args)
	case command.KindFallback:
		return d.handleChat(ctx, ev, cmd.Args)
	}
	return models.OutboundMessage{}, unexpectedError("⚠ Unknown command.", fmt.Errorf("unhandled command kind %d", cmd.Kind))
}

func (d *Dispatcher) errorReply(ev models.InboundEvent, cmd command.Command, err error) models.OutboundMessage {
	var e *Error
	if !errors.As(err, &e) {
		e = &Error{Kind: KindUnexpected, Message: "⚠ Something went wrong. Please try again later.", Err: err}
	}

	d.logError(ev, cmd.Kind, e)
	metrics.HandlerErrors.WithLabelValues(cmd.Kind.String(), e.Kind.String()).Inc()

	return models.Plain(ev.ConversationID, e.Message)
}

func (d *Dispatcher) logError(ev models.InboundEvent, kind command.Kind, e *Error) {
	fields := []zap.Field{
		zap.String("command", kind.String()),
		zap.String("kind", e.Kind.String()),
		zap.Int64("user_id", ev.SenderID),
		zap.Int64("chat_id", ev.ConversationID),
	}
	if e.Err != nil {
		fields = append(fields, zap.Error(e.Err))
	}

	switch e.Kind {
	case KindValidation, KindAuthorization:
		d.logger.Info("Command rejected", fields...)
	case KindUpstream:
		d.logger.Warn("Upstream service error", fields...)
	default:
		d.logger.Error("Handler failed", fields...)
	}
}
