package models

import "time"

// Setting stores application configuration documents as JSON blobs, keyed by
// name ("settings" holds the pricing table, tags, and UI/privacy prefs).
type Setting struct {
	Key       string `gorm:"primaryKey"`
	Value     string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
