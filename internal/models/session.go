package models

import "time"

// Session groups a sequence of exchanges under one conversation thread.
// TotalTokens is kept equal to the sum of TokensUsed over the session's
// exchanges; both are updated in the same transaction.
type Session struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	TotalTokens int        `json:"total_tokens"`
}
