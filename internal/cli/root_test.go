package cli

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return buf.String(), err
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "games.db")
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "tabletop", cmd.Use)
	assert.Contains(t, cmd.Long, "replayed")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{
		"new", "start", "continue", "cancel", "consent", "decline", "view",
		"list", "replay", "export", "import", "test",
	}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	catalogFlag := cmd.PersistentFlags().Lookup("catalog")
	require.NotNil(t, catalogFlag)
	assert.Equal(t, DefaultCatalog, catalogFlag.DefValue)

	for _, name := range []string{"db", "max-steps", "metrics"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestPlayerCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"start", "continue", "cancel", "consent", "decline", "view"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			playerFlag := sub.Flags().Lookup("player")
			require.NotNil(t, playerFlag)
			assert.Equal(t, "p", playerFlag.Shorthand)
		})
	}

	continueCmd, _, err := cmd.Find([]string{"continue"})
	require.NoError(t, err)
	choiceFlag := continueCmd.Flags().Lookup("choice")
	require.NotNil(t, choiceFlag)
	assert.Equal(t, "c", choiceFlag.Shorthand)
}

func TestInvalidFormat(t *testing.T) {
	_, err := runCLI(t, "list", "--db", tempDB(t), "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestInvalidMaxSteps(t *testing.T) {
	_, err := runCLI(t, "list", "--db", tempDB(t), "--max-steps", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--max-steps")
}

func TestUnknownCatalogue(t *testing.T) {
	_, err := runCLI(t, "new", "--db", tempDB(t), "--catalog", "chess", "--players", "alice")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "unknown catalogue")
}
