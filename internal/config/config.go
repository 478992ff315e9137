package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"discuss/internal/transport"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "DISCUSS"

type Config struct {
	APIURL          string
	SocketURL       string
	Token           string
	UserID          int64
	PageSize        int
	TypingTTL       time.Duration
	TypingGrace     time.Duration
	NearBottomLines int
	Reconnect       transport.ReconnectPolicy
	RequestTimeout  time.Duration
	CacheStale      time.Duration
	HistoryDB       string
	LogFile         string
	Dev             bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_url", "http://localhost:8080/api")
	v.SetDefault("socket_url", "ws://localhost:8080/ws")
	v.SetDefault("token", "")
	v.SetDefault("user_id", 0)
	v.SetDefault("page_size", 50)
	v.SetDefault("typing_ttl", "3s")
	v.SetDefault("typing_grace", "2s")
	v.SetDefault("near_bottom_lines", 3)
	v.SetDefault("reconnect", string(transport.ReconnectManual))
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("cache_stale", "30s")
	v.SetDefault("history_db", "discuss.db")
	v.SetDefault("log_file", "discuss.log")
	v.SetDefault("dev", false)
}

// Load reads .env, the optional config file at path and DISCUSS_* variables,
// later sources winning.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	policy, ok := transport.ParseReconnectPolicy(v.GetString("reconnect"))
	if !ok {
		return nil, fmt.Errorf("DISCUSS_RECONNECT must be %q or %q", transport.ReconnectManual, transport.ReconnectBackoff)
	}

	cfg := &Config{
		APIURL:          v.GetString("api_url"),
		SocketURL:       v.GetString("socket_url"),
		Token:           v.GetString("token"),
		UserID:          v.GetInt64("user_id"),
		PageSize:        v.GetInt("page_size"),
		TypingTTL:       v.GetDuration("typing_ttl"),
		TypingGrace:     v.GetDuration("typing_grace"),
		NearBottomLines: v.GetInt("near_bottom_lines"),
		Reconnect:       policy,
		RequestTimeout:  v.GetDuration("request_timeout"),
		CacheStale:      v.GetDuration("cache_stale"),
		HistoryDB:       v.GetString("history_db"),
		LogFile:         v.GetString("log_file"),
		Dev:             v.GetBool("dev"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("DISCUSS_TOKEN is required")
	}
	if err := validURL(c.APIURL, "http", "https"); err != nil {
		return fmt.Errorf("DISCUSS_API_URL: %w", err)
	}
	if err := validURL(c.SocketURL, "ws", "wss"); err != nil {
		return fmt.Errorf("DISCUSS_SOCKET_URL: %w", err)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("DISCUSS_PAGE_SIZE must be greater than 0")
	}
	if c.TypingTTL <= 0 {
		return fmt.Errorf("DISCUSS_TYPING_TTL must be greater than 0")
	}
	if c.TypingGrace < 0 {
		return fmt.Errorf("DISCUSS_TYPING_GRACE must not be negative")
	}
	if c.NearBottomLines < 0 {
		return fmt.Errorf("DISCUSS_NEAR_BOTTOM_LINES must not be negative")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("DISCUSS_REQUEST_TIMEOUT must be greater than 0")
	}
	if c.CacheStale <= 0 {
		return fmt.Errorf("DISCUSS_CACHE_STALE must be greater than 0")
	}
	return nil
}

func validURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%q is not a %s URL", raw, schemes[0])
}
