package models

import "time"

// Format tells the outbound gateway how to render message text
type Format int

const (
	FormatPlain Format = iota
	FormatMarkdown
)

// InboundEvent represents a single text message received from the chat transport
type InboundEvent struct {
	SenderID       int64  `json:"sender_id"`
	ConversationID int64  `json:"conversation_id"`
	Text           string `json:"text"`
}

// OutboundMessage represents a message ready to be handed to the outbound gateway
type OutboundMessage struct {
	RecipientID int64  `json:"recipient_id"`
	Text        string `json:"text"`
	Format      Format `json:"format"`
}

// ScheduledJob represents a deferred broadcast announcement
type ScheduledJob struct {
	ID        string    `json:"id"`
	Payload   string    `json:"payload"`
	FireAt    time.Time `json:"fire_at"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// AdminDocument represents one entry of the admin directory collection
type AdminDocument struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// RoleAdmin is the role tag carried by admin directory documents.
const RoleAdmin = "admin"

// LeaderboardEntry is one ranked row of the engagement leaderboard
type LeaderboardEntry struct {
	UserID int64 `json:"user_id"`
	Points int   `json:"points"`
}

// Plain builds a plain-text reply.
func Plain(recipientID int64, text string) OutboundMessage {
	return OutboundMessage{RecipientID: recipientID, Text: text, Format: FormatPlain}
}

// Markdown builds a reply rendered with Telegram's legacy Markdown.
func Markdown(recipientID int64, text string) OutboundMessage {
	return OutboundMessage{RecipientID: recipientID, Text: text, Format: FormatMarkdown}
}
