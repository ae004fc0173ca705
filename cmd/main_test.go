package main

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withConfigFile(t *testing.T, contents string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	prev := *configFile
	*configFile = path
	t.Cleanup(func() { *configFile = prev })
}

func TestRunReturnsConfigError(t *testing.T) {
	withConfigFile(t, "database:\n  driver: mysql\n")

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestRunReturnsDatabaseError(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing", "canteen.db")
	withConfigFile(t, "database:\n  driver: sqlite3\n  source: "+missing+"\n")

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize sqlite3 database")
}

func TestSetupLogger(t *testing.T) {
	ctx := context.Background()
	assert.True(t, setupLogger("debug").Enabled(ctx, slog.LevelDebug))
	assert.False(t, setupLogger("info").Enabled(ctx, slog.LevelDebug))
	assert.False(t, setupLogger("WARN").Enabled(ctx, slog.LevelInfo))
	assert.True(t, setupLogger("error").Enabled(ctx, slog.LevelError))
}

func TestAllowOrigins(t *testing.T) {
	assert.Nil(t, allowOrigins(nil))

	check := allowOrigins([]string{"http://localhost:3000"})
	req := httptest.NewRequest("GET", "/api/orders/x/stream", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, check(req))

	assert.True(t, allowOrigins([]string{"*"})(req))
}
