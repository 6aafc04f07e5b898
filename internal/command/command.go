// Package command classifies inbound text into one of the bot's fixed
// commands or the chat fallback.
package command

import (
	"strings"
	"unicode"
)

// Prefix marks the start of a command token.
const Prefix = "/"

type Kind int

const (
	KindFallback Kind = iota
	KindHelp
	KindWeather
	KindLeaderboard
	KindAddAdmin
	KindRemoveAdmin
	KindSchedule
)

func (k Kind) String() string {
	switch k {
	case KindHelp:
		return "help"
	case KindWeather:
		return "weather"
	case KindLeaderboard:
		return "leaderboard"
	case KindAddAdmin:
		return "addadmin"
	case KindRemoveAdmin:
		return "removeadmin"
	case KindSchedule:
		return "schedule"
	default:
		return "fallback"
	}
}

// Command is the result of classifying one inbound text.
type Command struct {
	Kind Kind
	// Name is the matched command word without the prefix; empty for the fallback.
	Name string
	// Args is the text after the command token, trimmed. For the fallback it
	// holds the whole inbound text unchanged.
	Args string
}

type Router struct {
	commands    map[string]Kind
	botUsername string
}

// NewRouter builds the command table. botUsername, when set, allows the
// "/command@botusername" form used in group chats.
func NewRouter(botUsername string) *Router {
	r := &Router{
		commands:    make(map[string]Kind),
		botUsername: botUsername,
	}
	for _, k := range []Kind{KindHelp, KindWeather, KindLeaderboard, KindAddAdmin, KindRemoveAdmin, KindSchedule} {
		r.commands[k.String()] = k
	}
	return r
}

// Classify maps text to a command. Only a prefixed token that exactly matches
// a registered name, delimited by whitespace or end of text, is a command.
func (r *Router) Classify(text string) Command {
	fallback := Command{Kind: KindFallback, Args: text}

	if !strings.HasPrefix(text, Prefix) {
		return fallback
	}

	token, rest := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		token, rest = text[:i], text[i:]
	}
	name := strings.TrimPrefix(token, Prefix)

	if at := strings.IndexByte(name, '@'); at >= 0 {
		if r.botUsername == "" || name[at+1:] != r.botUsername {
			return fallback
		}
		name = name[:at]
	}

	kind, ok := r.commands[name]
	if !ok {
		return fallback
	}

	return Command{Kind: kind, Name: name, Args: strings.TrimSpace(rest)}
}

// Names lists the registered command names.
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.commands))
	for _, k := range []Kind{KindHelp, KindWeather, KindLeaderboard, KindAddAdmin, KindRemoveAdmin, KindSchedule} {
		if _, ok := r.commands[k.String()]; ok {
			names = append(names, k.String())
		}
	}
	return names
}
