package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// playedGame is g1 after alice built in the forest.
func playedGame(t *testing.T) string {
	t.Helper()
	db := newGame(t)
	_, err := runCLI(t, "start", "g1", "build", "--db", db, "-p", "alice")
	require.NoError(t, err)
	_, err = runCLI(t, "continue", "g1", "--db", db, "-p", "alice", "-c", "site=forest")
	require.NoError(t, err)
	return db
}

func TestExport_Stable(t *testing.T) {
	db := playedGame(t)

	first, err := runCLI(t, "export", "g1", "--db", db)
	require.NoError(t, err)
	second, err := runCLI(t, "export", "g1", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Contains(t, first, `"game_id":"g1"`)
}

func TestExportImport_RoundTrip(t *testing.T) {
	db := playedGame(t)
	logFile := filepath.Join(t.TempDir(), "g1.log")

	_, err := runCLI(t, "export", "g1", "--db", db, "-o", logFile)
	require.NoError(t, err)

	other := tempDB(t)
	out, err := runCLI(t, "import", logFile, "--db", other)
	require.NoError(t, err)
	assert.Contains(t, out, "imported g1 (1 nodes)")

	exported, err := os.ReadFile(logFile)
	require.NoError(t, err)
	again, err := runCLI(t, "export", "g1", "--db", other)
	require.NoError(t, err)
	assert.Equal(t, string(exported), again)

	// a second import collides
	_, err = runCLI(t, "import", logFile, "--db", other)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestImport_RejectsGarbage(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "bad.log")
	require.NoError(t, os.WriteFile(logFile, []byte("not a log\n"), 0o644))

	_, err := runCLI(t, "import", logFile, "--db", tempDB(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestImport_MissingFile(t *testing.T) {
	_, err := runCLI(t, "import", "/nonexistent/g1.log", "--db", tempDB(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestExport_UnknownGame(t *testing.T) {
	_, err := runCLI(t, "export", "nope", "--db", tempDB(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestList(t *testing.T) {
	db := playedGame(t)

	out, err := runCLI(t, "list", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "g1")

	out, err = runCLI(t, "list", "--db", db, "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Status string `json:"status"`
		Data   []struct {
			ID      string `json:"id"`
			Catalog string `json:"catalog"`
			Nodes   int    `json:"nodes"`
			Events  int    `json:"events"`
			LastSeq int64  `json:"last_seq"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "g1", resp.Data[0].ID)
	assert.Equal(t, DefaultCatalog, resp.Data[0].Catalog)
	assert.Equal(t, 1, resp.Data[0].Nodes)
	assert.Equal(t, 2, resp.Data[0].Events)
	assert.Equal(t, int64(2), resp.Data[0].LastSeq)
}

func TestList_Empty(t *testing.T) {
	out, err := runCLI(t, "list", "--db", tempDB(t))
	require.NoError(t, err)
	assert.Equal(t, "No games found in database.\n", out)
}
