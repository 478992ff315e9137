package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"discuss/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DISCUSS_TOKEN", "secret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Token)
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, 3*time.Second, cfg.TypingTTL)
	assert.Equal(t, 2*time.Second, cfg.TypingGrace)
	assert.Equal(t, 3, cfg.NearBottomLines)
	assert.Equal(t, transport.ReconnectManual, cfg.Reconnect)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 30*time.Second, cfg.CacheStale)
	assert.False(t, cfg.Dev)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("DISCUSS_TOKEN", "secret")
	t.Setenv("DISCUSS_API_URL", "https://chat.example.com/api")
	t.Setenv("DISCUSS_SOCKET_URL", "wss://chat.example.com/ws")
	t.Setenv("DISCUSS_USER_ID", "42")
	t.Setenv("DISCUSS_PAGE_SIZE", "20")
	t.Setenv("DISCUSS_RECONNECT", "backoff")
	t.Setenv("DISCUSS_TYPING_TTL", "4s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example.com/api", cfg.APIURL)
	assert.Equal(t, "wss://chat.example.com/ws", cfg.SocketURL)
	assert.Equal(t, int64(42), cfg.UserID)
	assert.Equal(t, 20, cfg.PageSize)
	assert.Equal(t, transport.ReconnectBackoff, cfg.Reconnect)
	assert.Equal(t, 4*time.Second, cfg.TypingTTL)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "discuss.yaml")
	data := "token: from-file\npage_size: 25\nhistory_db: /tmp/history.db\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))

	t.Setenv("DISCUSS_PAGE_SIZE", "30")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Token)
	assert.Equal(t, 30, cfg.PageSize, "environment overrides the file")
	assert.Equal(t, "/tmp/history.db", cfg.HistoryDB)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("DISCUSS_TOKEN", "secret")
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_BadReconnect(t *testing.T) {
	t.Setenv("DISCUSS_TOKEN", "secret")
	t.Setenv("DISCUSS_RECONNECT", "forever")
	_, err := Load("")
	assert.ErrorContains(t, err, "DISCUSS_RECONNECT")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			APIURL:         "http://localhost:8080/api",
			SocketURL:      "ws://localhost:8080/ws",
			Token:          "secret",
			PageSize:       50,
			TypingTTL:      3 * time.Second,
			TypingGrace:    2 * time.Second,
			RequestTimeout: time.Second,
			CacheStale:     time.Second,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no token", func(c *Config) { c.Token = "" }, "DISCUSS_TOKEN"},
		{"socket scheme", func(c *Config) { c.SocketURL = "http://localhost/ws" }, "DISCUSS_SOCKET_URL"},
		{"api scheme", func(c *Config) { c.APIURL = "localhost:8080" }, "DISCUSS_API_URL"},
		{"page size", func(c *Config) { c.PageSize = 0 }, "DISCUSS_PAGE_SIZE"},
		{"typing ttl", func(c *Config) { c.TypingTTL = 0 }, "DISCUSS_TYPING_TTL"},
		{"negative grace", func(c *Config) { c.TypingGrace = -time.Second }, "DISCUSS_TYPING_GRACE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}
