package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultURL, cfg.URL())
	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	assert.Equal(t, 3*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, "global", cfg.DefaultRoom)
}

func TestURLFallsBackToOrigin(t *testing.T) {
	cases := map[string]string{
		"https://blog.example.com":     "wss://blog.example.com",
		"http://localhost:5173/":       "ws://localhost:5173",
		"https://blog.example.com/app": "wss://blog.example.com/app",
		"not a url":                    DefaultURL,
	}
	for origin, expected := range cases {
		cfg := Default()
		cfg.Origin = origin
		assert.Equal(t, expected, cfg.URL(), origin)
	}

	cfg := Default()
	cfg.Origin = "https://blog.example.com"
	cfg.SocketURL = "ws://socket.example.com:8080"
	assert.Equal(t, "ws://socket.example.com:8080", cfg.URL())
}

func TestLoadLayersFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "realtime.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
socket_url: ws://file.example.com
max_reconnect_attempts: 2
reconnect_delay: 1s
default_room: lobby
`), 0o600))

	t.Setenv("REALTIME_MAX_RECONNECT_ATTEMPTS", "7")
	t.Setenv("REALTIME_TYPING_TTL", "2s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://file.example.com", cfg.URL())
	assert.Equal(t, 7, cfg.MaxReconnectAttempts)
	assert.Equal(t, time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 2*time.Second, cfg.TypingTTL)
	assert.Equal(t, "lobby", cfg.DefaultRoom)
	assert.Equal(t, 5*time.Second, cfg.SweepInterval)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("REALTIME_SOCKET_URL", "http://example.com")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	mutations := []func(*Config){
		func(c *Config) { c.MaxReconnectAttempts = -1 },
		func(c *Config) { c.ReconnectDelay = 0 },
		func(c *Config) { c.TypingTTL = 0 },
		func(c *Config) { c.SweepInterval = -time.Second },
		func(c *Config) { c.SocketURL = "ws://" },
		func(c *Config) { c.WriteQueueSize = -1 },
	}
	for i, mutate := range mutations {
		cfg := Default()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), "case %d", i)
	}
}
