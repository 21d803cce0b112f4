package settings

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/pricing"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// fileOverrides is the YAML override document. Only the sections present in
// the file replace the stored values.
type fileOverrides struct {
	Pricing []pricing.Rule `yaml:"pricing"`
	Tags    []Tag          `yaml:"tags"`
	UI      *UIPrefs       `yaml:"ui"`
	Privacy *PrivacyPrefs  `yaml:"privacy"`
}

// applyFileOverrides layers the YAML file (if any) over the current document.
func (s *Store) applyFileOverrides() error {
	path, err := resolveOverridesPath()
	if err != nil {
		return err
	}
	if path == "" {
		return nil
	}
	return s.loadOverridesFile(path)
}

func (s *Store) loadOverridesFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read settings file %q: %w", path, err)
	}

	var overrides fileOverrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("failed to parse settings file %q: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(overrides.Pricing) > 0 {
		s.current.Pricing = append([]pricing.Rule(nil), overrides.Pricing...)
	}
	if len(overrides.Tags) > 0 {
		s.current.Tags = append([]Tag(nil), overrides.Tags...)
	}
	if overrides.UI != nil {
		s.current.UI = *overrides.UI
	}
	if overrides.Privacy != nil {
		s.current.Privacy = *overrides.Privacy
	}
	s.current = normalize(s.current)
	s.persistLocked()
	log.Printf("[Settings] Applied overrides from %s", path)
	return nil
}

func resolveOverridesPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("METER_SETTINGS_FILE")); explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}

	candidates := []string{
		"config/meter_settings.yaml",
		"./config/meter_settings.yaml",
		"/etc/meter/settings.yaml",
		"/usr/local/etc/meter/settings.yaml",
	}
	if homeDir, err := os.UserHomeDir(); err == nil && homeDir != "" {
		candidates = append(candidates,
			filepath.Join(homeDir, ".config", "meter", "settings.yaml"),
			filepath.Join(homeDir, ".meter", "settings.yaml"),
		)
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

// Watch reloads the overrides file whenever it changes. Editors often emit
// bursts of events for one save, so reloads are debounced.
func (s *Store) Watch(stop <-chan struct{}) error {
	path, err := resolveOverridesPath()
	if err != nil || path == "" {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create settings watcher: %w", err)
	}
	// Watch the directory: some editors replace the file on save, which
	// drops a watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	log.Printf("[Settings] Watching %s for changes", path)

	go func() {
		defer watcher.Close()
		var debounce *time.Timer
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(250*time.Millisecond, func() {
					if err := s.loadOverridesFile(path); err != nil {
						log.Printf("[Settings] Reload failed: %v", err)
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[Settings] Watcher error: %v", err)
			case <-stop:
				return
			}
		}
	}()
	return nil
}
