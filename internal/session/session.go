// Package session maintains the per-tab running aggregate of metered
// exchanges, with write-through persistence and rehydrate-on-read so a
// process restart loses at most the in-memory cache.
package session

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/db"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/db/models"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/meter"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/pricing"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/settings"
	"gorm.io/gorm"
)

// historyLimit bounds the per-session exchange history.
const historyLimit = 100

// ErrUnknownTag is returned by SetTag for a tag ID absent from settings.
var ErrUnknownTag = errors.New("unknown tag")

// Session is one tab's running aggregate since the last reset.
type Session struct {
	TabID                 string
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
	PerMessage            []meter.ExchangeMetrics
	LastUpdatedAt         int64
}

// Snapshot is the wire representation of a session's totals.
type Snapshot struct {
	TabID                 string        `json:"tabId"`
	ConversationID        string        `json:"conversationId,omitempty"`
	Model                 string        `json:"model"`
	TotalPromptTokens     int           `json:"totalPromptTokens"`
	TotalCompletionTokens int           `json:"totalCompletionTokens"`
	TotalReasoningTokens  int           `json:"totalReasoningTokens"`
	TotalImageInputs      int           `json:"totalImageInputs"`
	TotalImageOutputs     int           `json:"totalImageOutputs"`
	TextCostUSD           float64       `json:"textCostUSD"`
	ImageCostUSD          float64       `json:"imageCostUSD"`
	ReasoningCostUSD      float64       `json:"reasoningCostUSD"`
	TotalCostUSD          float64       `json:"totalCostUSD"`
	TotalTokens           int           `json:"totalTokens"`
	MessageCount          int           `json:"messageCount"`
	HasMultimodal         bool          `json:"hasMultimodal"`
	Tag                   *settings.Tag `json:"tag,omitempty"`
	LastUpdatedAt         int64         `json:"lastUpdatedAt"`
}

// Aggregator owns the tab-to-session map. All mutations persist write-through;
// persistence failures are logged and never fail the in-memory operation.
type Aggregator struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	rehydrated map[string]bool
	db         *gorm.DB
	settings   *settings.Store
	now        func() time.Time
}

// NewAggregator creates an aggregator backed by the given database.
func NewAggregator(database *gorm.DB, store *settings.Store) *Aggregator {
	return &Aggregator{
		sessions:   make(map[string]*Session),
		rehydrated: make(map[string]bool),
		db:         database,
		settings:   store,
		now:        time.Now,
	}
}

// RecordFinal folds a finalized exchange into the tab's session and returns
// the updated snapshot. All counters accumulate additively, prompt tokens
// included; each request carries the full conversation so the running prompt
// total reflects cumulative context actually sent.
func (a *Aggregator) RecordFinal(tabID string, m meter.ExchangeMetrics) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.ensureLocked(tabID, m)
	s.TotalPromptTokens += m.PromptTokens
	s.TotalCompletionTokens += m.CompletionTokens
	s.TotalReasoningTokens += m.EstimatedReasoningTokens
	s.TotalImageInputs += m.ImageInputCount
	s.TotalImageOutputs += m.ImageOutputCount
	s.TextCostUSD = pricing.Round6(s.TextCostUSD + m.InputCostUSD + m.OutputCostUSD)
	s.ImageCostUSD = pricing.Round6(s.ImageCostUSD + m.ImageCostUSD)
	s.ReasoningCostUSD = pricing.Round6(s.ReasoningCostUSD + m.ReasoningCostUSD)
	s.TotalCostUSD = pricing.Round6(s.TextCostUSD + s.ImageCostUSD + s.ReasoningCostUSD)
	if m.Model != "" {
		s.Model = m.Model
	}
	if m.ConversationID != "" {
		s.ConversationID = m.ConversationID
	}

	s.PerMessage = append(s.PerMessage, m)
	if len(s.PerMessage) > historyLimit {
		s.PerMessage = s.PerMessage[len(s.PerMessage)-historyLimit:]
	}
	s.LastUpdatedAt = a.nowMillis(m.Timestamp)

	a.persistLocked(s)
	a.rollupLocked(m, s.TagID)
	return a.snapshotLocked(s)
}

// RecordPartial ensures the session exists and returns its snapshot. Partial
// updates are advisory; running totals are untouched so a later final never
// double-counts.
func (a *Aggregator) RecordPartial(tabID string, m meter.ExchangeMetrics) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.ensureLocked(tabID, m)
	return a.snapshotLocked(s)
}

// Reset persists the session one last time, then drops it from memory and
// durable storage.
func (a *Aggregator) Reset(tabID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if s, ok := a.sessions[tabID]; ok {
		a.persistLocked(s)
	}
	delete(a.sessions, tabID)
	delete(a.rehydrated, tabID)
	if err := db.DeleteSessionRecord(a.db, tabID); err != nil {
		log.Printf("[Session] Failed to delete persisted session for %s: %v", tabID, err)
	}
}

// GetSession returns the tab's snapshot, rehydrating once from storage if the
// in-memory map has no entry.
func (a *Aggregator) GetSession(tabID string) (Snapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.sessions[tabID]
	if !ok {
		s = a.rehydrateLocked(tabID)
		if s == nil {
			return Snapshot{}, false
		}
	}
	return a.snapshotLocked(s), true
}

// History returns up to limit most recent exchange records for a tab.
func (a *Aggregator) History(tabID string, limit int) []meter.ExchangeMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.sessions[tabID]
	if !ok {
		s = a.rehydrateLocked(tabID)
		if s == nil {
			return nil
		}
	}
	history := s.PerMessage
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return append([]meter.ExchangeMetrics(nil), history...)
}

// SetTag assigns a tag to the tab's session. An empty tagID clears the
// assignment; otherwise the tag must exist in the current tag set.
func (a *Aggregator) SetTag(tabID, tagID string) (Snapshot, error) {
	var tag settings.Tag
	if tagID != "" {
		found, ok := a.settings.FindTag(tagID)
		if !ok {
			return Snapshot{}, ErrUnknownTag
		}
		tag = found
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.sessions[tabID]
	if !ok {
		s = a.rehydrateLocked(tabID)
	}
	if s == nil {
		s = a.ensureLocked(tabID, meter.ExchangeMetrics{})
	}
	s.TagID = tag.ID
	s.TagName = tag.Name
	s.TagColor = tag.Color
	s.LastUpdatedAt = a.nowMillis(0)
	a.persistLocked(s)
	return a.snapshotLocked(s), nil
}

// ensureLocked lazily creates the session, seeded from the first exchange.
func (a *Aggregator) ensureLocked(tabID string, m meter.ExchangeMetrics) *Session {
	if s, ok := a.sessions[tabID]; ok {
		return s
	}
	if s := a.rehydrateLocked(tabID); s != nil {
		return s
	}
	model := m.Model
	if model == "" {
		model = meter.DefaultModel
	}
	s := &Session{
		TabID:          tabID,
		ConversationID: m.ConversationID,
		Model:          model,
		LastUpdatedAt:  a.nowMillis(m.Timestamp),
	}
	a.sessions[tabID] = s
	return s
}

// rehydrateLocked tries durable storage once per tab; later misses return nil
// without touching the database again.
func (a *Aggregator) rehydrateLocked(tabID string) *Session {
	if a.rehydrated[tabID] {
		return nil
	}
	a.rehydrated[tabID] = true

	record, err := db.LoadSessionRecord(a.db, tabID)
	if err != nil {
		log.Printf("[Session] Rehydrate failed for %s: %v", tabID, err)
		return nil
	}
	if record == nil {
		return nil
	}
	s := sessionFromRecord(record)
	a.sessions[tabID] = s
	log.Printf("[Session] Rehydrated session for tab %s (%d messages)", tabID, len(s.PerMessage))
	return s
}

func (a *Aggregator) persistLocked(s *Session) {
	if err := db.SaveSessionRecord(a.db, recordFromSession(s)); err != nil {
		log.Printf("[Session] Failed to persist session for %s: %v", s.TabID, err)
	}
}

func (a *Aggregator) snapshotLocked(s *Session) Snapshot {
	snap := Snapshot{
		TabID:                 s.TabID,
		ConversationID:        s.ConversationID,
		Model:                 s.Model,
		TotalPromptTokens:     s.TotalPromptTokens,
		TotalCompletionTokens: s.TotalCompletionTokens,
		TotalReasoningTokens:  s.TotalReasoningTokens,
		TotalImageInputs:      s.TotalImageInputs,
		TotalImageOutputs:     s.TotalImageOutputs,
		TextCostUSD:           s.TextCostUSD,
		ImageCostUSD:          s.ImageCostUSD,
		ReasoningCostUSD:      s.ReasoningCostUSD,
		TotalCostUSD:          s.TotalCostUSD,
		TotalTokens:           s.TotalPromptTokens + s.TotalCompletionTokens + s.TotalReasoningTokens,
		MessageCount:          len(s.PerMessage),
		HasMultimodal:         s.TotalImageInputs > 0 || s.TotalImageOutputs > 0,
		LastUpdatedAt:         s.LastUpdatedAt,
	}
	if s.TagID != "" {
		snap.Tag = &settings.Tag{ID: s.TagID, Name: s.TagName, Color: s.TagColor}
	}
	return snap
}

func (a *Aggregator) nowMillis(fromMetrics int64) int64 {
	if fromMetrics > 0 {
		return fromMetrics
	}
	return a.now().UnixMilli()
}

func recordFromSession(s *Session) *models.SessionRecord {
	perMessage, err := json.Marshal(s.PerMessage)
	if err != nil {
		log.Printf("[Session] Failed to encode history for %s: %v", s.TabID, err)
		perMessage = []byte("[]")
	}
	return &models.SessionRecord{
		TabID:                 s.TabID,
		ConversationID:        s.ConversationID,
		Model:                 s.Model,
		TotalPromptTokens:     s.TotalPromptTokens,
		TotalCompletionTokens: s.TotalCompletionTokens,
		TotalReasoningTokens:  s.TotalReasoningTokens,
		TotalImageInputs:      s.TotalImageInputs,
		TotalImageOutputs:     s.TotalImageOutputs,
		TextCostUSD:           s.TextCostUSD,
		ImageCostUSD:          s.ImageCostUSD,
		ReasoningCostUSD:      s.ReasoningCostUSD,
		TotalCostUSD:          s.TotalCostUSD,
		TagID:                 s.TagID,
		TagName:               s.TagName,
		TagColor:              s.TagColor,
		PerMessage:            string(perMessage),
		LastUpdatedAt:         s.LastUpdatedAt,
	}
}

func sessionFromRecord(record *models.SessionRecord) *Session {
	s := &Session{
		TabID:                 record.TabID,
		ConversationID:        record.ConversationID,
		Model:                 record.Model,
		TotalPromptTokens:     record.TotalPromptTokens,
		TotalCompletionTokens: record.TotalCompletionTokens,
		TotalReasoningTokens:  record.TotalReasoningTokens,
		TotalImageInputs:      record.TotalImageInputs,
		TotalImageOutputs:     record.TotalImageOutputs,
		TextCostUSD:           record.TextCostUSD,
		ImageCostUSD:          record.ImageCostUSD,
		ReasoningCostUSD:      record.ReasoningCostUSD,
		TotalCostUSD:          record.TotalCostUSD,
		TagID:                 record.TagID,
		TagName:               record.TagName,
		TagColor:              record.TagColor,
		LastUpdatedAt:         record.LastUpdatedAt,
	}
	if record.PerMessage != "" {
		if err := json.Unmarshal([]byte(record.PerMessage), &s.PerMessage); err != nil {
			log.Printf("[Session] Failed to decode history for %s: %v", record.TabID, err)
		}
	}
	return s
}
