package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings.
type Config struct {
	Database  *DatabaseConfig
	HTTP      *HTTPConfig
	WebSocket *WebSocketConfig
	Auth      *AuthConfig
	Chat      *ChatConfig
}

type DatabaseConfig struct {
	Path    string
	Timeout time.Duration
}

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type WebSocketConfig struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
}

type AuthConfig struct {
	JWTSecret string
}

type ChatConfig struct {
	// EventsPerMinute caps inbound chat/typing events per connection.
	EventsPerMinute int
}

// DefaultConfig returns production defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./data/skillbarter.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Auth: &AuthConfig{
			JWTSecret: "dev-only-change-me",
		},
		Chat: &ChatConfig{
			EventsPerMinute: 100,
		},
	}
}

// Load builds the configuration from defaults overlaid with environment
// variables. A .env file is loaded first when present (non-fatal if missing).
func Load() *Config {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if host := os.Getenv("SKILLBARTER_HTTP_HOST"); host != "" {
		cfg.HTTP.Host = host
	}
	if port := os.Getenv("SKILLBARTER_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.HTTP.Port = p
		}
	}
	if timeout := os.Getenv("SKILLBARTER_HTTP_READ_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.HTTP.ReadTimeout = d
		}
	}
	if timeout := os.Getenv("SKILLBARTER_HTTP_WRITE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.HTTP.WriteTimeout = d
		}
	}
	if path := os.Getenv("SKILLBARTER_DATABASE_PATH"); path != "" {
		cfg.Database.Path = path
	}
	if timeout := os.Getenv("SKILLBARTER_DATABASE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.Database.Timeout = d
		}
	}
	if interval := os.Getenv("SKILLBARTER_WEBSOCKET_PING_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.WebSocket.PingInterval = d
		}
	}
	if timeout := os.Getenv("SKILLBARTER_WEBSOCKET_READ_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.WebSocket.ReadTimeout = d
		}
	}
	if timeout := os.Getenv("SKILLBARTER_WEBSOCKET_WRITE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.WebSocket.WriteTimeout = d
		}
	}
	if size := os.Getenv("SKILLBARTER_WEBSOCKET_BUFFER_SIZE"); size != "" {
		if n, err := strconv.Atoi(size); err == nil {
			cfg.WebSocket.BufferSize = n
		}
	}
	if secret := os.Getenv("SKILLBARTER_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if limit := os.Getenv("SKILLBARTER_CHAT_EVENTS_PER_MINUTE"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			cfg.Chat.EventsPerMinute = n
		}
	}

	return cfg
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Database == nil || c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 || c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket timeouts must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.Auth == nil || c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret cannot be empty")
	}
	if c.Chat == nil || c.Chat.EventsPerMinute <= 0 {
		return fmt.Errorf("chat rate limit must be positive")
	}
	return nil
}
