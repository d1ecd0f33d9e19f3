package testutils

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/stretchr/testify/require"
)

// TestContext creates a test context with timeout and a quiet logger attached.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return zerowrap.WithCtx(ctx, zerowrap.New(zerowrap.Config{Level: "warn"}))
}

// WriteFile writes content under dir, creating parent directories.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// AssertEventuallyTrue retries a condition until it's true or times out
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration, message string) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Condition never became true: %s", message)
}

// LoadFixtureConfig returns a sandboxer.toml fixture by name.
func LoadFixtureConfig(t *testing.T, filename string) string {
	switch filename {
	case "minimal.toml":
		return `[logging]
level = "debug"`
	case "invalid.toml":
		return `[logging
level = "info"`
	default:
		return `data_dir = "/tmp/sandboxer"

[logging]
level = "info"
format = "json"

[engine]
host = "unix:///var/run/docker.sock"

[timeouts]
build = "5m"
start = "45s"
stop = "20s"
lock = "10s"

[image]
pull_policy = "always"

[security]
allow_privileged = true
allow_engine_socket = false

[preflight]
check_ports = false

[env]
files = ["/etc/sandboxer/sandbox.env"]`
	}
}
