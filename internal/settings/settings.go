package settings

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/db"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/pricing"
	"gorm.io/gorm"
)

const settingsKey = "settings"

// Tag labels a session for reporting. IDs are stable; stats reference them.
type Tag struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Color string `json:"color" yaml:"color"`
}

// UIPrefs mirror the overlay client's display preferences.
type UIPrefs struct {
	Position string `json:"position" yaml:"position"`
	Compact  bool   `json:"compact" yaml:"compact"`
	ShowTTFB bool   `json:"showTTFB" yaml:"show_ttfb"`
}

// PrivacyPrefs gate what the meter persists.
type PrivacyPrefs struct {
	StoreHistory   bool `json:"storeHistory" yaml:"store_history"`
	RedactUserText bool `json:"redactUserText" yaml:"redact_user_text"`
}

// Settings is the full configuration document, persisted as one JSON blob.
type Settings struct {
	Pricing []pricing.Rule `json:"pricing" yaml:"pricing"`
	Tags    []Tag          `json:"tags" yaml:"tags"`
	UI      UIPrefs        `json:"ui" yaml:"ui"`
	Privacy PrivacyPrefs   `json:"privacy" yaml:"privacy"`
}

// Defaults returns the seed document used on first run.
func Defaults() Settings {
	return Settings{
		Pricing: pricing.DefaultTable(),
		Tags: []Tag{
			{ID: "work", Name: "Work", Color: "#00d4ff"},
			{ID: "personal", Name: "Personal", Color: "#00ff88"},
			{ID: "research", Name: "Research", Color: "#ff00ff"},
			{ID: "acme", Name: "Acme Corp", Color: "#ffa500"},
		},
		UI: UIPrefs{
			Position: "bottom-right",
			ShowTTFB: true,
		},
		Privacy: PrivacyPrefs{
			StoreHistory: true,
		},
	}
}

// Store holds the live settings document, backed by the database and an
// optional YAML override file.
type Store struct {
	mu      sync.RWMutex
	db      *gorm.DB
	current Settings
}

// NewStore loads persisted settings (seeding defaults on first run) and
// applies any YAML file overrides on top.
func NewStore(database *gorm.DB) *Store {
	s := &Store{db: database, current: Defaults()}

	if raw := db.GetSetting(database, settingsKey); raw != "" {
		var loaded Settings
		if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
			log.Printf("[Settings] Failed to parse stored settings, using defaults: %v", err)
		} else {
			s.current = normalize(loaded)
		}
	} else {
		s.persistLocked()
		log.Printf("[Settings] Seeded default settings (%d pricing rules, %d tags)",
			len(s.current.Pricing), len(s.current.Tags))
	}

	if err := s.applyFileOverrides(); err != nil {
		log.Printf("[Settings] File overrides not applied: %v", err)
	}
	return s
}

// Get returns a copy of the current document.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySettings(s.current)
}

// Pricing returns the active pricing table.
func (s *Store) Pricing() []pricing.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]pricing.Rule(nil), s.current.Pricing...)
}

// Update replaces the document and persists it.
func (s *Store) Update(next Settings) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next = normalize(next)
	if len(next.Tags) != len(uniqueTagIDs(next.Tags)) {
		return Settings{}, fmt.Errorf("duplicate tag IDs in settings update")
	}
	s.current = next
	s.persistLocked()
	return copySettings(s.current), nil
}

// persistLocked writes the document through to the database. Persistence
// failures are logged, not surfaced: the in-memory document stays live.
func (s *Store) persistLocked() {
	data, err := json.Marshal(s.current)
	if err != nil {
		log.Printf("[Settings] Failed to encode settings: %v", err)
		return
	}
	if err := db.SetSetting(s.db, settingsKey, string(data)); err != nil {
		log.Printf("[Settings] Failed to persist settings: %v", err)
	}
}

// normalize fills gaps a partial document leaves so the rest of the pipeline
// never sees empty pricing or a zero UI position.
func normalize(in Settings) Settings {
	if len(in.Pricing) == 0 {
		in.Pricing = pricing.DefaultTable()
	}
	if in.UI.Position == "" {
		in.UI.Position = "bottom-right"
	}
	return in
}

func copySettings(in Settings) Settings {
	out := in
	out.Pricing = append([]pricing.Rule(nil), in.Pricing...)
	out.Tags = append([]Tag(nil), in.Tags...)
	return out
}

func uniqueTagIDs(tags []Tag) map[string]struct{} {
	ids := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		ids[tag.ID] = struct{}{}
	}
	return ids
}
