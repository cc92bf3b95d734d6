package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecotrend/go-ecotrend-ista/internal/constants"
)

func TestUsageError(t *testing.T) {
	app, err := New()
	require.NoError(t, err)

	// Test when SilenceUsage is true
	app.cmd.SilenceUsage = true
	assert.False(t, app.UsageError())

	// Test when SilenceUsage is false
	app.cmd.SilenceUsage = false
	assert.True(t, app.UsageError())
}

func TestRootCmd(t *testing.T) {
	app, err := New()
	require.NoError(t, err)

	cmd := app.RootCmd()

	assert.NotNil(t, cmd, "Returned root cmd should not be nil")
	assert.Equal(t, constants.RecorderCmdName, cmd.Name())
}

func TestRunRequiresEmail(t *testing.T) {
	app, err := New()
	require.NoError(t, err)

	app.cmd.SetArgs([]string{})
	require.Error(t, app.Run(), "Run without an account email should fail")
}

func TestRunRequiresDaemonConfig(t *testing.T) {
	app, err := New()
	require.NoError(t, err)

	app.cmd.SetArgs([]string{"--email", "demo@ista.de"})
	require.Error(t, app.Run(), "Run without a daemon config should fail")
}

func TestMigrateArgumentValidation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fakeMigration := filepath.Join(dir, "fake.sql")
	require.NoError(t, os.WriteFile(fakeMigration, []byte(""), 0600), "Setup: couldn't write fake migration file")

	tests := map[string]struct {
		args []string

		wantUsageErr bool
	}{
		"No path":           {args: []string{"migrate"}, wantUsageErr: true},
		"Non-existent path": {args: []string{"migrate", filepath.Join(dir, "non-existent-folder")}, wantUsageErr: true},
		"Path to file":      {args: []string{"migrate", fakeMigration}, wantUsageErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			app, err := New()
			require.NoError(t, err, "Setup: failed to create app")
			app.cmd.SetArgs(tc.args)

			err = app.Run()
			require.Error(t, err, "Migrate with invalid arguments should fail")
			assert.Equal(t, tc.wantUsageErr, app.UsageError(), "Unexpected usage error state")
		})
	}
}
