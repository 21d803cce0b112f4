package settings

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const defaultTagColor = "#00d4ff"

// Tags returns the current tag list.
func (s *Store) Tags() []Tag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Tag(nil), s.current.Tags...)
}

// FindTag returns the tag with the given ID.
func (s *Store) FindTag(id string) (Tag, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tag := range s.current.Tags {
		if tag.ID == id {
			return tag, true
		}
	}
	return Tag{}, false
}

// CreateTag adds a new tag. A missing ID is generated; a missing color falls
// back to the default accent.
func (s *Store) CreateTag(tag Tag) (Tag, error) {
	tag.Name = strings.TrimSpace(tag.Name)
	if tag.Name == "" {
		return Tag{}, fmt.Errorf("tag name is required")
	}
	if tag.ID == "" {
		tag.ID = uuid.New().String()
	}
	if tag.Color == "" {
		tag.Color = defaultTagColor
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.current.Tags {
		if existing.ID == tag.ID {
			return Tag{}, fmt.Errorf("tag %s already exists", tag.ID)
		}
	}
	s.current.Tags = append(s.current.Tags, tag)
	s.persistLocked()
	return tag, nil
}

// UpdateTag changes a tag's name or color. The ID is immutable so that
// history rollups keyed by tag ID stay attributable.
func (s *Store) UpdateTag(id string, update Tag) (Tag, error) {
	if update.ID != "" && update.ID != id {
		return Tag{}, fmt.Errorf("tag ID cannot be changed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.current.Tags {
		if existing.ID != id {
			continue
		}
		if name := strings.TrimSpace(update.Name); name != "" {
			existing.Name = name
		}
		if update.Color != "" {
			existing.Color = update.Color
		}
		s.current.Tags[i] = existing
		s.persistLocked()
		return existing, nil
	}
	return Tag{}, fmt.Errorf("tag %s not found", id)
}

// DeleteTag removes a tag from the list. Persisted history that references
// the tag ID is left intact.
func (s *Store) DeleteTag(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.current.Tags {
		if existing.ID != id {
			continue
		}
		s.current.Tags = append(s.current.Tags[:i], s.current.Tags[i+1:]...)
		s.persistLocked()
		return nil
	}
	return fmt.Errorf("tag %s not found", id)
}
