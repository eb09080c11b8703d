package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ImportProfile is a saved CSV column mapping. Keys are camelCase on
// disk; other front-ends read the same file.
type ImportProfile struct {
	ColumnMappings ColumnMappings `json:"columnMappings"`
	DateFormat     string         `json:"dateFormat,omitempty"`
	SkipRows       int            `json:"skipRows,omitempty"`
	Options        ProfileOptions `json:"options"`
}

// ColumnMappings names the CSV header for each role. Empty means
// auto-detect.
type ColumnMappings struct {
	Date        string `json:"date,omitempty"`
	Amount      string `json:"amount,omitempty"`
	Description string `json:"description,omitempty"`
	Credit      string `json:"credit,omitempty"`
	Debit       string `json:"debit,omitempty"`
	Balance     string `json:"balance,omitempty"`
}

// ProfileOptions adjust amount normalization during import.
type ProfileOptions struct {
	FlipSigns     bool `json:"flipSigns,omitempty"`
	DebitNegative bool `json:"debitNegative,omitempty"`
	// NumberFormat selects the amount format: us (default), eu or
	// eu_space.
	NumberFormat string `json:"numberFormat,omitempty"`
}

// Settings is the app-wide settings.json file. Only the sections the
// core manages are typed; everything else is carried through untouched
// on save.
type Settings struct {
	path string
	raw  map[string]json.RawMessage
}

type appSection struct {
	DemoMode bool `json:"demoMode"`
}

type importProfilesSection struct {
	Profiles map[string]ImportProfile `json:"profiles"`
}

// LoadSettings reads settings.json; a missing file yields empty
// settings.
func LoadSettings(path string) (*Settings, error) {
	s := &Settings{path: path, raw: map[string]json.RawMessage{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	if err := json.Unmarshal(data, &s.raw); err != nil {
		return nil, fmt.Errorf("parsing settings: %w", err)
	}
	return s, nil
}

// Save writes the file back, preserving sections the core does not
// manage.
func (s *Settings) Save() error {
	data, err := json.MarshalIndent(s.raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}

// DemoMode reports whether the settings file selects the demo
// database.
func (s *Settings) DemoMode() bool {
	var app appSection
	if raw, ok := s.raw["app"]; ok {
		_ = json.Unmarshal(raw, &app)
	}
	return app.DemoMode
}

// SetDemoMode updates the app section, preserving its other fields.
func (s *Settings) SetDemoMode(enabled bool) error {
	return s.patchSection("app", "demoMode", enabled)
}

// ImportProfiles returns the saved CSV import profiles by name.
func (s *Settings) ImportProfiles() map[string]ImportProfile {
	var section importProfilesSection
	if raw, ok := s.raw["importProfiles"]; ok {
		_ = json.Unmarshal(raw, &section)
	}
	if section.Profiles == nil {
		section.Profiles = map[string]ImportProfile{}
	}
	return section.Profiles
}

// SaveImportProfile stores a profile under a name.
func (s *Settings) SaveImportProfile(name string, profile ImportProfile) error {
	profiles := s.ImportProfiles()
	profiles[name] = profile
	return s.patchSection("importProfiles", "profiles", profiles)
}

// DeleteImportProfile removes a saved profile. Reports whether it
// existed.
func (s *Settings) DeleteImportProfile(name string) (bool, error) {
	profiles := s.ImportProfiles()
	if _, ok := profiles[name]; !ok {
		return false, nil
	}
	delete(profiles, name)
	return true, s.patchSection("importProfiles", "profiles", profiles)
}

// patchSection sets one key inside a top-level section without
// dropping the section's unknown fields.
func (s *Settings) patchSection(section, key string, value any) error {
	obj := map[string]json.RawMessage{}
	if raw, ok := s.raw[section]; ok {
		if err := json.Unmarshal(raw, &obj); err != nil {
			return fmt.Errorf("parsing settings section %q: %w", section, err)
		}
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding settings value: %w", err)
	}
	obj[key] = encoded
	raw, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encoding settings section %q: %w", section, err)
	}
	s.raw[section] = raw
	return nil
}
