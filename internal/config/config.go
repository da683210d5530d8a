// Package config loads runtime settings for the chat server from an optional
// YAML file and environment variables, falling back to defaults for anything
// missing or invalid.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Env            string
	Port           string
	AllowedOrigins []string
	MaxMessageSize int64
	SendBuffer     int
	RateLimit      RateLimitConfig
	Rooms          []chat.RoomConfig
}

const (
	defaultPort           = ":8080"
	defaultMaxMessageSize = 4096
	defaultSendBuffer     = 256
	defaultBurst          = 5
	defaultRefillInterval = time.Second
)

// Default returns a Config populated with default values for all settings.
func Default() *Config {
	return &Config{
		Env:            "dev",
		Port:           defaultPort,
		AllowedOrigins: []string{"http://localhost:8080"},
		MaxMessageSize: defaultMaxMessageSize,
		SendBuffer:     defaultSendBuffer,
		RateLimit: RateLimitConfig{
			Burst:          defaultBurst,
			RefillInterval: defaultRefillInterval,
		},
		Rooms: chat.DefaultRooms(),
	}
}

// Load reads roomchat.yaml from the given search paths (default "." and
// "./config") and overlays environment variables. A missing file is not an
// error.
func Load(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}

	v := viper.New()
	v.SetConfigName("roomchat")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	bindings := map[string]string{
		"env":                   "APP_ENV",
		"port":                  "SERVER_PORT",
		"allowed_origins":       "ALLOWED_ORIGINS",
		"max_message_size":      "MAX_MESSAGE_SIZE",
		"send_buffer":           "SEND_BUFFER",
		"rate_limit.burst":      "RATE_LIMIT_BURST",
		"rate_limit.refill_sec": "RATE_LIMIT_REFILL_INTERVAL",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := Default()

	if env := strings.TrimSpace(v.GetString("env")); env != "" {
		cfg.Env = env
	}
	if port := strings.TrimSpace(v.GetString("port")); port != "" {
		cfg.Port = port
	}
	if origins := readOrigins(v); len(origins) > 0 {
		cfg.AllowedOrigins = origins
	}
	if size := v.GetInt64("max_message_size"); size > 0 {
		cfg.MaxMessageSize = size
	}
	if buf := v.GetInt("send_buffer"); buf > 0 {
		cfg.SendBuffer = buf
	}
	if burst := v.GetInt("rate_limit.burst"); burst > 0 {
		cfg.RateLimit.Burst = burst
	}
	if secs := v.GetInt("rate_limit.refill_sec"); secs > 0 {
		cfg.RateLimit.RefillInterval = time.Duration(secs) * time.Second
	}

	if v.IsSet("rooms") {
		var rooms []roomEntry
		if err := v.UnmarshalKey("rooms", &rooms); err != nil {
			return nil, fmt.Errorf("decode rooms: %w", err)
		}
		if catalog := roomCatalog(rooms); len(catalog) > 0 {
			cfg.Rooms = catalog
		}
	}

	return cfg, nil
}

// roomEntry is one item of the "rooms" list in the config file.
type roomEntry struct {
	ID          string `mapstructure:"id"`
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
}

// roomCatalog converts file entries to the chat catalog, trimming
// surrounding whitespace.
func roomCatalog(entries []roomEntry) []chat.RoomConfig {
	catalog := make([]chat.RoomConfig, 0, len(entries))
	for _, e := range entries {
		catalog = append(catalog, chat.RoomConfig{
			ID:          strings.TrimSpace(e.ID),
			Name:        strings.TrimSpace(e.Name),
			Description: strings.TrimSpace(e.Description),
		})
	}
	return catalog
}

// readOrigins accepts either a YAML list or a comma separated string.
func readOrigins(v *viper.Viper) []string {
	switch raw := v.Get("allowed_origins").(type) {
	case nil:
		return nil
	case string:
		return parseOrigins(raw)
	default:
		return parseOrigins(strings.Join(v.GetStringSlice("allowed_origins"), ","))
	}
}

func parseOrigins(origins string) []string {
	var out []string
	for _, part := range strings.Split(origins, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
