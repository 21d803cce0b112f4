package models

import "time"

// DailyHistory is the append-only rollup for one calendar day. ModelTotals
// and TagTotals are JSON objects keyed by model name and tag ID.
type DailyHistory struct {
	Date        string `gorm:"primaryKey"` // YYYY-MM-DD
	ModelTotals string `gorm:"type:text"`
	TagTotals   string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
