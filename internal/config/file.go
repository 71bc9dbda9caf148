package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"agon/internal/model"
)

type presetFile struct {
	Presets map[string]model.Config `yaml:"presets"`
}

// LoadPresetFile merges the presets from a YAML file into the store, shadowing
// builtins of the same name. Returns the sorted names that were merged.
func (s *Store) LoadPresetFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preset file: %w", err)
	}

	var pf presetFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse preset file %s: %w", path, err)
	}
	if len(pf.Presets) == 0 {
		return nil, fmt.Errorf("preset file %s defines no presets", path)
	}

	// Validate every name before touching the store, so a bad entry leaves
	// no partial merge behind.
	names := make([]string, 0, len(pf.Presets))
	for name := range pf.Presets {
		if name == "" || name == PresetCustom {
			return nil, fmt.Errorf("preset file %s: reserved preset name %q", path, name)
		}
		names = append(names, name)
	}

	s.mu.Lock()
	for name, cfg := range pf.Presets {
		s.presets[name] = cfg
	}
	s.mu.Unlock()

	sort.Strings(names)
	s.log.WithFields(logrus.Fields{"path": path, "presets": len(names)}).Info("Preset file merged")
	return names, nil
}

// SavePreset stores the current configuration under a preset name and writes
// it to a YAML file, preserving any presets already in that file. The name
// also becomes loadable in this store immediately.
func (s *Store) SavePreset(path, name string) error {
	if name == "" || name == PresetCustom {
		return fmt.Errorf("reserved preset name %q", name)
	}

	pf := presetFile{Presets: map[string]model.Config{}}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &pf); err != nil {
			return fmt.Errorf("parse existing preset file %s: %w", path, err)
		}
		if pf.Presets == nil {
			pf.Presets = map[string]model.Config{}
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read preset file: %w", err)
	}

	s.mu.Lock()
	current := s.current
	s.presets[name] = current
	s.mu.Unlock()

	pf.Presets[name] = current
	data, err := yaml.Marshal(pf)
	if err != nil {
		return fmt.Errorf("marshal presets: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write preset file: %w", err)
	}
	s.log.WithFields(logrus.Fields{"path": path, "preset": name}).Info("Preset saved")
	return nil
}
