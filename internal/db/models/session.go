package models

import "time"

// SessionRecord is the persisted snapshot of one tab's running session.
// PerMessage holds the bounded exchange history as a JSON array; the session
// package owns its encoding.
type SessionRecord struct {
	TabID                 string `gorm:"primaryKey"`
	ConversationID        string
	Model                 string
	TotalPromptTokens     int
	TotalCompletionTokens int
	TotalReasoningTokens  int
	TotalImageInputs      int
	TotalImageOutputs     int
	TextCostUSD           float64
	ImageCostUSD          float64
	ReasoningCostUSD      float64
	TotalCostUSD          float64
	TagID                 string
	TagName               string
	TagColor              string
	PerMessage            string `gorm:"type:text"`
	LastUpdatedAt         int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}
