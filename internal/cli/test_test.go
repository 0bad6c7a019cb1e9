package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenariosDir = "../harness/testdata/scenarios"

func TestTestCommand_Scenarios(t *testing.T) {
	out, err := runCLI(t, "test", scenariosDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ build_and_gather")
	assert.Contains(t, out, "✓ consent_rollback")
	assert.Contains(t, out, "✓ draw_and_decline")
	assert.Contains(t, out, "Test Summary: 3 passed, 0 failed, 3 total")
}

func TestTestCommand_FilterJSON(t *testing.T) {
	out, err := runCLI(t, "test", scenariosDir, "--filter", "consent*", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Total)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "consent_rollback", resp.Data.Scenarios[0].Name)
	assert.True(t, resp.Data.Scenarios[0].Pass)
}

func TestTestCommand_UpdateThenCompare(t *testing.T) {
	golden := t.TempDir()

	out, err := runCLI(t, "test", scenariosDir, "--golden", golden, "--update", "--filter", "build*")
	require.NoError(t, err)
	assert.Contains(t, out, "(golden updated)")

	written, err := os.ReadFile(filepath.Join(golden, "build_and_gather.golden"))
	require.NoError(t, err)
	want, err := os.ReadFile("../harness/testdata/golden/build_and_gather.golden")
	require.NoError(t, err)
	assert.Equal(t, string(want), string(written))

	require.NoError(t, os.WriteFile(filepath.Join(golden, "build_and_gather.golden"), []byte("stale\n"), 0o644))
	out, err = runCLI(t, "test", scenariosDir, "--golden", golden, "--filter", "build*")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "does not match golden file")
}

func TestTestCommand_FailingScenario(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(`
name: bad
description: "bob cannot act first"
players: [alice, bob]
steps:
  - op: start
    player: bob
    action: gather
`), 0o644))

	out, err := runCLI(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ bad")
	assert.Contains(t, out, "WRONG_PLAYER")
}

func TestTestCommand_MissingDir(t *testing.T) {
	_, err := runCLI(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_NoScenarios(t *testing.T) {
	out, err := runCLI(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}
