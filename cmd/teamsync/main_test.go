package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	groups := filepath.Join(dir, "groups.json")
	require.NoError(t, os.WriteFile(groups, []byte(`{"groups": {
		"CS101": [
			{"external_id": "1", "attributes": {"username": "alice", "email": "alice@example.com"}},
			{"external_id": "2", "attributes": {"username": "bob", "email": "bob@example.com"}}
		]
	}}`), 0o600))

	t.Setenv("LDAP_FILE_SHIM", groups)
	t.Setenv("MM_FILE_SHIM", filepath.Join(dir, "mm.json"))
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DB_DSN", filepath.Join(dir, "teamsync.db"))
	t.Setenv("ENCRYPTION_KEY", strings.Repeat("ab", 32))
	t.Setenv("LOG_LEVEL", "error")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--as", "prof"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSyncWorkflow(t *testing.T) {
	setupEnv(t)

	sealed, err := execute(t, "token", "encrypt", "mm-token")
	require.NoError(t, err)
	sealed = strings.TrimSpace(sealed)
	require.NotEmpty(t, sealed)

	out, err := execute(t, "token", "set", sealed)
	require.NoError(t, err)
	assert.Contains(t, out, "Token for prof is saved.")

	out, err = execute(t, "sync", "CS101 -> cs101")
	require.NoError(t, err)
	assert.Contains(t, out, "Team cs101 is created.")
	assert.Contains(t, out, "Added 2 members to the team cs101.")
	assert.Contains(t, out, "Sync finished: 1 succeeded, 0 failed.")

	out, err = execute(t, "mapping", "list")
	require.NoError(t, err)
	assert.Equal(t, "CS101 -> cs101\n", out)

	out, err = execute(t, "teams", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "cs101")

	out, err = execute(t, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "success")
	assert.Contains(t, out, "(+2)")

	out, err = execute(t, "mapping", "remove", "CS101 -> cs101")
	require.NoError(t, err)
	assert.Contains(t, out, "is removed")
}

func TestSyncFailureExitsNonZero(t *testing.T) {
	setupEnv(t)

	sealed, err := execute(t, "token", "encrypt", "mm-token")
	require.NoError(t, err)
	_, err = execute(t, "token", "set", strings.TrimSpace(sealed))
	require.NoError(t, err)

	out, err := execute(t, "sync", "NOPE101 -> nope")
	assert.ErrorIs(t, err, errSyncFailed)
	assert.Contains(t, out, "Sync finished: 0 succeeded, 1 failed.")
}

func TestSyncWithoutToken(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "sync", "CS101 -> cs101")
	assert.ErrorIs(t, err, errSyncFailed)
}

func TestKeygen(t *testing.T) {
	out, err := execute(t, "token", "keygen")
	require.NoError(t, err)
	assert.Len(t, strings.TrimSpace(out), 64)
}
