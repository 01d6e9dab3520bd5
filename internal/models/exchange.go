package models

import "time"

// Exchange records one completed (question, answer) pair. Rows are
// immutable after insert.
type Exchange struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	UserMessage string    `json:"user_message"`
	BotResponse string    `json:"bot_response"`
	TokensUsed  int       `json:"tokens_used"`
	CreatedAt   time.Time `json:"created_at"`
}
