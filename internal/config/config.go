package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full server configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Limits    LimitsConfig    `yaml:"limits"`
	Rooms     RoomsConfig     `yaml:"rooms"`
	Canvas    CanvasConfig    `yaml:"canvas"`
	Auth      AuthConfig      `yaml:"auth"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// AllowedOrigins: empty or "*" accepts every Origin
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

type WebSocketConfig struct {
	PingPeriod time.Duration `yaml:"ping_period"`
	PongWait   time.Duration `yaml:"pong_wait"`
	WriteWait  time.Duration `yaml:"write_wait"`
	SendBuffer int           `yaml:"send_buffer"`
}

type LimitsConfig struct {
	MaxMessageBytes   int           `yaml:"max_message_bytes"`
	MaxObjectDepth    int           `yaml:"max_object_depth"`
	MaxObjectKeys     int           `yaml:"max_object_keys"`
	MessagesPerSecond float64       `yaml:"messages_per_second"`
	Burst             int           `yaml:"burst"`
	HandshakeInterval time.Duration `yaml:"handshake_interval"`
	HandshakeBurst    int           `yaml:"handshake_burst"`
}

type RoomsConfig struct {
	EmptyTTL        time.Duration `yaml:"empty_ttl"`
	CleanupSchedule string        `yaml:"cleanup_schedule"`
}

type CanvasConfig struct {
	Store         string `yaml:"store"` // memory, sqlite or postgres
	DSN           string `yaml:"dsn"`
	FlushSchedule string `yaml:"flush_schedule"`
}

type AuthConfig struct {
	// JWTSecret enables HS256 token checks on the handshake when set
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// Default: settings used when nothing overrides them
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":3000",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		WebSocket: WebSocketConfig{
			PingPeriod: 54 * time.Second,
			PongWait:   60 * time.Second,
			WriteWait:  10 * time.Second,
			SendBuffer: 256,
		},
		Limits: LimitsConfig{
			MaxMessageBytes:   512 * 1024,
			MaxObjectDepth:    16,
			MaxObjectKeys:     10000,
			MessagesPerSecond: 60,
			Burst:             120,
			HandshakeInterval: 6 * time.Second, // 10 per minute
			HandshakeBurst:    5,
		},
		Rooms: RoomsConfig{
			EmptyTTL:        time.Hour,
			CleanupSchedule: "@every 15m",
		},
		Canvas: CanvasConfig{
			Store:         "memory",
			FlushSchedule: "@every 5s",
		},
	}
}

// Load: defaults, then the YAML file at path (if any, with ${VAR} expansion),
// then environment overrides. Variables from a .env file are loaded first
// without replacing ones already set.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := loadDotEnv(envFiles...); err != nil {
		return nil, err
	}

	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		dec := yaml.NewDecoder(strings.NewReader(expanded))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.Server.Addr = ":" + port
	}
	if addr := strings.TrimSpace(os.Getenv("COLLAB_ADDR")); addr != "" {
		cfg.Server.Addr = addr
	}
	if domains := os.Getenv("DOMAINS"); domains != "" {
		cfg.Server.AllowedOrigins = splitList(domains)
	}
	if v := os.Getenv("COLLAB_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("COLLAB_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("COLLAB_CANVAS_STORE"); v != "" {
		cfg.Canvas.Store = v
	}
	if v := os.Getenv("COLLAB_CANVAS_DSN"); v != "" {
		cfg.Canvas.DSN = v
	}
	if v := os.Getenv("COLLAB_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("COLLAB_MESSAGES_PER_SECOND"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("COLLAB_MESSAGES_PER_SECOND: %w", err)
		}
		cfg.Limits.MessagesPerSecond = rate
	}
	return nil
}

// Validate: rejects settings the server cannot run with
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.WebSocket.PongWait <= 0 || c.WebSocket.PingPeriod <= 0 {
		errs = append(errs, errors.New("websocket.ping_period and websocket.pong_wait must be positive"))
	} else if c.WebSocket.PingPeriod >= c.WebSocket.PongWait {
		errs = append(errs, errors.New("websocket.ping_period must be shorter than websocket.pong_wait"))
	}
	if c.WebSocket.SendBuffer < 1 {
		errs = append(errs, errors.New("websocket.send_buffer must be at least 1"))
	}
	switch strings.ToLower(c.Canvas.Store) {
	case "", "memory", "none":
	case "sqlite", "postgres", "postgresql":
		if strings.TrimSpace(c.Canvas.DSN) == "" {
			errs = append(errs, fmt.Errorf("canvas.dsn is required for the %s store", c.Canvas.Store))
		}
	default:
		errs = append(errs, fmt.Errorf("canvas.store %q is not supported", c.Canvas.Store))
	}
	return errors.Join(errs...)
}

// AllowsAnyOrigin: true when no origin restriction is configured
func (s ServerConfig) AllowsAnyOrigin() bool {
	if len(s.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range s.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
