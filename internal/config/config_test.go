package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Config{DB: "./tabletop.db", Format: "text", MaxSteps: 1000}, cfg)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("TABLETOP_DB", "/tmp/games.db")
	t.Setenv("TABLETOP_FORMAT", "json")
	t.Setenv("TABLETOP_VERBOSE", "true")
	t.Setenv("TABLETOP_MAX_STEPS", "50")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Config{DB: "/tmp/games.db", Format: "json", Verbose: true, MaxSteps: 50}, cfg)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"bad int", "TABLETOP_MAX_STEPS", "lots"},
		{"zero steps", "TABLETOP_MAX_STEPS", "0"},
		{"bad bool", "TABLETOP_VERBOSE", "maybe"},
		{"bad format", "TABLETOP_FORMAT", "yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "parse env:")
		})
	}
}
