package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/herald-bot/internal/chat"
	"github.com/xaenox/herald-bot/internal/command"
	"github.com/xaenox/herald-bot/internal/metrics"
	"github.com/xaenox/herald-bot/internal/models"
	"github.com/xaenox/herald-bot/internal/weather"
	"go.uber.org/zap"
)

const (
	// ScheduleLayout is the accepted /schedule timestamp format.
	ScheduleLayout = "2006-01-02 15:04:05"
	// ScheduleSeparator splits the announcement from its timestamp.
	ScheduleSeparator = "|"

	leaderboardSize = 5
)

const helpText = `🤖 *Bot Commands Guide:*

📌 *Weather Commands*
  - ` + "`/weather <city>`" + ` → Get weather details for a city.

📌 *Admin Commands*
  - ` + "`/addadmin <ID>`" + ` → Add a new admin (Admins only)
  - ` + "`/removeadmin <ID>`" + ` → Remove an admin (Admins only)

📌 *Leaderboard Commands*
  - ` + "`/leaderboard`" + ` → Show the top users.

📌 *Announcements*
  - ` + "`/schedule Message | YYYY-MM-DD HH:MM:SS`" + ` → Schedule a message (Admins only)

📌 *Chat with AI*
  - Simply type a message to chat with the bot.

Use these commands to interact with me! 🚀`

func (d *Dispatcher) handleHelp(ev models.InboundEvent) models.OutboundMessage {
	return models.Markdown(ev.ConversationID, helpText)
}

func (d *Dispatcher) handleWeather(ctx context.Context, ev models.InboundEvent, location string) (models.OutboundMessage, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return models.OutboundMessage{}, validationError("⚠ Please provide a city name. Example: /weather London")
	}

	report, err := d.weather.Current(ctx, location)
	if err != nil {
		var svcErr *weather.ServiceError
		var tErr *weather.TransportError
		switch {
		case errors.As(err, &svcErr):
			return models.OutboundMessage{}, upstreamError("⚠ Error: "+svcErr.Message, err)
		case errors.As(err, &tErr):
			return models.OutboundMessage{}, transportError("⚠ Weather service is currently unavailable.", err)
		default:
			return models.OutboundMessage{}, unexpectedError("⚠ Weather lookup failed. Please try again later.", err)
		}
	}

	return models.Markdown(ev.ConversationID, formatWeather(report)), nil
}

func formatWeather(r *weather.Report) string {
	place := escapeMarkdown(fmt.Sprintf("%s, %s", r.Place, r.Country))
	return fmt.Sprintf("🌍 *Weather in %s*:\n"+
		"🌡 *Temperature*: %s°C\n"+
		"☁ *Condition*: %s\n"+
		"💧 *Humidity*: %d%%\n"+
		"🌬 *Wind Speed*: %s m/s",
		place,
		formatDecimal(r.Temperature),
		escapeMarkdown(capitalize(r.Description)),
		r.Humidity,
		formatDecimal(r.WindSpeed),
	)
}

// formatDecimal prints v in shortest form but keeps one decimal on whole
// values, so 15 renders as "15.0".
func formatDecimal(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func escapeMarkdown(text string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, text)
}

func (d *Dispatcher) handleChat(ctx context.Context, ev models.InboundEvent, prompt string) (models.OutboundMessage, error) {
	points := d.state.AddPoint(ev.SenderID)
	metrics.EngagementPoints.Inc()
	d.logger.Debug("Engagement point awarded",
		zap.Int64("user_id", ev.SenderID),
		zap.Int("points", points))

	reply, err := d.chat.Complete(ctx, prompt)
	if err != nil {
		var svcErr *chat.ServiceError
		var tErr *chat.TransportError
		switch {
		case errors.Is(err, chat.ErrInvalidCredentials):
			return models.OutboundMessage{}, upstreamError("⚠ Invalid API Key. Please check your OpenRouter API key.", err)
		case errors.Is(err, chat.ErrRateLimited):
			return models.OutboundMessage{}, upstreamError("⚠ OpenRouter API rate limit exceeded. Try again later.", err)
		case errors.As(err, &svcErr):
			return models.OutboundMessage{}, upstreamError("⚠ OpenRouter Error: "+svcErr.Detail, err)
		case errors.As(err, &tErr):
			return models.OutboundMessage{}, transportError("⚠ API Connection Error. Please try again later.", err)
		default:
			return models.OutboundMessage{}, unexpectedError("⚠ Unexpected Error while generating a reply.", err)
		}
	}

	if strings.TrimSpace(reply) == "" {
		return models.OutboundMessage{}, unexpectedError("⚠ Unexpected Error while generating a reply.", chat.ErrEmptyCompletion)
	}

	return models.Plain(ev.ConversationID, reply), nil
}

func (d *Dispatcher) handleLeaderboard(ev models.InboundEvent) models.OutboundMessage {
	entries := d.state.Leaderboard(leaderboardSize)
	if len(entries) == 0 {
		return models.Plain(ev.ConversationID, "🏆 No engagement points recorded yet.")
	}

	var sb strings.Builder
	sb.WriteString("🏆 *Top 5 Engaged Users*\n\n")
	for i, e := range entries {
		fmt.Fprintf(&sb, "%d. User %d - %d points\n", i+1, e.UserID, e.Points)
	}

	return models.Markdown(ev.ConversationID, sb.String())
}

// parseAdminTarget expects exactly one integer token.
func parseAdminTarget(args, name string) (int64, error) {
	fields := strings.Fields(args)
	if len(fields) != 1 {
		return 0, validationError(fmt.Sprintf("⚠ Invalid format. Use: /%s <Telegram ID>", name))
	}

	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, validationError("⚠ Invalid Telegram ID format.")
	}
	return id, nil
}

func (d *Dispatcher) handleAddAdmin(ctx context.Context, ev models.InboundEvent, args string) (models.OutboundMessage, error) {
	if !d.state.IsAdmin(ev.SenderID) {
		return models.OutboundMessage{}, authorizationError("⚠ Only existing admins can add new admins.")
	}

	target, err := parseAdminTarget(args, "addadmin")
	if err != nil {
		return models.OutboundMessage{}, err
	}

	added, err := d.directory.Add(ctx, target)
	if !added {
		return models.OutboundMessage{}, validationError("⚠ This user is already an admin.")
	}
	if err != nil {
		d.logError(ev, command.KindAddAdmin, persistenceError("admin added in memory only", err))
	}

	d.logger.Info("Admin added",
		zap.Int64("admin_id", target),
		zap.Int64("added_by", ev.SenderID))

	return models.Plain(ev.ConversationID, fmt.Sprintf("✅ Admin %d added successfully!", target)), nil
}

func (d *Dispatcher) handleRemoveAdmin(ctx context.Context, ev models.InboundEvent, args string) (models.OutboundMessage, error) {
	if !d.state.IsAdmin(ev.SenderID) {
		return models.OutboundMessage{}, authorizationError("⚠ Only existing admins can remove other admins.")
	}

	target, err := parseAdminTarget(args, "removeadmin")
	if err != nil {
		return models.OutboundMessage{}, err
	}

	removed, err := d.directory.Remove(ctx, target)
	if !removed {
		return models.OutboundMessage{}, validationError("⚠ Admin ID not found.")
	}
	if err != nil {
		d.logError(ev, command.KindRemoveAdmin, persistenceError("admin removed in memory only", err))
	}

	d.logger.Info("Admin removed",
		zap.Int64("admin_id", target),
		zap.Int64("removed_by", ev.SenderID))

	return models.Plain(ev.ConversationID, fmt.Sprintf("✅ Admin %d removed successfully!", target)), nil
}

func (d *Dispatcher) handleSchedule(ev models.InboundEvent, args string) (models.OutboundMessage, error) {
	if !d.state.IsAdmin(ev.SenderID) {
		return models.OutboundMessage{}, authorizationError("⚠ You are not authorized to schedule announcements.")
	}

	usage := validationError("⚠ Invalid format. Use: /schedule Message | YYYY-MM-DD HH:MM:SS")

	announcement, timestamp, found := strings.Cut(args, ScheduleSeparator)
	if !found {
		return models.OutboundMessage{}, usage
	}
	announcement = strings.TrimSpace(announcement)
	timestamp = strings.TrimSpace(timestamp)

	if announcement == "" {
		return models.OutboundMessage{}, validationError("⚠ Announcement text cannot be empty.")
	}

	fireAt, err := time.ParseInLocation(ScheduleLayout, timestamp, d.location)
	if err != nil {
		return models.OutboundMessage{}, usage
	}

	job, err := d.scheduler.Schedule(announcement, fireAt, ev.SenderID)
	if err != nil {
		return models.OutboundMessage{}, unexpectedError("❌ Error: the announcement could not be scheduled.", err)
	}

	d.logger.Info("Announcement scheduled",
		zap.String("job_id", job.ID),
		zap.Int64("user_id", ev.SenderID),
		zap.Time("fire_at", job.FireAt))

	return models.Plain(ev.ConversationID,
		fmt.Sprintf("✅ Scheduled Announcement: '%s' at %s", announcement, fireAt.Format(ScheduleLayout))), nil
}
