package db

import (
	"errors"
	"log"

	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/db/models"
	"gorm.io/gorm"
)

// OnWriteError, when set, is invoked once per failed write. Set it before
// serving starts.
var OnWriteError func()

func noteWriteError(err error) error {
	if err != nil && OnWriteError != nil {
		OnWriteError()
	}
	return err
}

// ===== Session Record Functions =====

// SaveSessionRecord upserts a session record keyed by tab ID.
func SaveSessionRecord(db *gorm.DB, record *models.SessionRecord) error {
	return noteWriteError(db.Save(record).Error)
}

// LoadSessionRecord returns the persisted record for a tab, or nil if none exists.
func LoadSessionRecord(db *gorm.DB, tabID string) (*models.SessionRecord, error) {
	var record models.SessionRecord
	result := db.Where("tab_id = ?", tabID).First(&record)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &record, nil
}

// DeleteSessionRecord removes the persisted record for a tab.
func DeleteSessionRecord(db *gorm.DB, tabID string) error {
	return noteWriteError(db.Where("tab_id = ?", tabID).Delete(&models.SessionRecord{}).Error)
}

// ===== Daily History Functions =====

// LoadDailyHistory returns the rollup for a date (YYYY-MM-DD), or nil if none exists.
func LoadDailyHistory(db *gorm.DB, date string) (*models.DailyHistory, error) {
	var entry models.DailyHistory
	result := db.Where("date = ?", date).First(&entry)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &entry, nil
}

// SaveDailyHistory upserts a daily rollup.
func SaveDailyHistory(db *gorm.DB, entry *models.DailyHistory) error {
	return noteWriteError(db.Save(entry).Error)
}

// LoadDailyHistoryRange returns rollups with start <= date <= end, ordered by date.
func LoadDailyHistoryRange(db *gorm.DB, start, end string) ([]models.DailyHistory, error) {
	var entries []models.DailyHistory
	result := db.Where("date >= ? AND date <= ?", start, end).Order("date ASC").Find(&entries)
	if result.Error != nil {
		return nil, result.Error
	}
	return entries, nil
}

// ===== Settings Functions =====

// GetSetting returns the value for a settings key, or "" if not set.
func GetSetting(db *gorm.DB, key string) string {
	var setting models.Setting
	if err := db.Where("key = ?", key).First(&setting).Error; err != nil {
		return ""
	}
	return setting.Value
}

// SetSetting upserts a settings key.
func SetSetting(db *gorm.DB, key, value string) error {
	var setting models.Setting
	result := db.Where("key = ?", key).First(&setting)
	if result.Error != nil {
		return noteWriteError(db.Create(&models.Setting{Key: key, Value: value}).Error)
	}
	setting.Value = value
	if err := db.Save(&setting).Error; err != nil {
		log.Printf("[DB] Failed to update setting %s: %v", key, err)
		return noteWriteError(err)
	}
	return nil
}
