package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treeline-app/treeline/internal/config"
)

func TestSettings_MissingFile(t *testing.T) {
	s, err := config.LoadSettings(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)
	assert.False(t, s.DemoMode())
	assert.Empty(t, s.ImportProfiles())
}

func TestSettings_PreservesUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	seed := `{
		"app": {"demoMode": false, "theme": "dark"},
		"plugins": {"enabled": ["budget"]}
	}`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	s, err := config.LoadSettings(path)
	require.NoError(t, err)
	require.NoError(t, s.SetDemoMode(true))
	require.NoError(t, s.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var parsed map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, true, parsed["app"]["demoMode"])
	assert.Equal(t, "dark", parsed["app"]["theme"])
	assert.Contains(t, parsed, "plugins")
}

func TestSettings_ImportProfiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s, err := config.LoadSettings(path)
	require.NoError(t, err)

	profile := config.ImportProfile{
		ColumnMappings: config.ColumnMappings{Date: "Posted", Amount: "Value"},
		DateFormat:     "%m/%d/%Y",
		SkipRows:       2,
		Options:        config.ProfileOptions{DebitNegative: true},
	}
	require.NoError(t, s.SaveImportProfile("mybank", profile))
	require.NoError(t, s.Save())

	reloaded, err := config.LoadSettings(path)
	require.NoError(t, err)
	got := reloaded.ImportProfiles()
	require.Contains(t, got, "mybank")
	assert.Equal(t, profile, got["mybank"])

	deleted, err := reloaded.DeleteImportProfile("mybank")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = reloaded.DeleteImportProfile("mybank")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestParseBoolFlag(t *testing.T) {
	type testCase struct {
		input     string
		wantValue bool
		wantOK    bool
	}

	tests := []testCase{
		{input: "true", wantValue: true, wantOK: true},
		{input: "1", wantValue: true, wantOK: true},
		{input: "YES", wantValue: true, wantOK: true},
		{input: "false", wantValue: false, wantOK: true},
		{input: "0", wantValue: false, wantOK: true},
		{input: "No", wantValue: false, wantOK: true},
		{input: "", wantOK: false},
		{input: "maybe", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			value, ok := config.ParseBoolFlag(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantValue, value)
			}
		})
	}
}
