package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Mode values for ServerConfig.Mode.
const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Cache      CacheConfig      `yaml:"cache"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Prediction PredictionConfig `yaml:"prediction"`
	Broadcast  BroadcastConfig  `yaml:"broadcast"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	Mode            string   `yaml:"mode"`
	RequestIPHeader string   `yaml:"request_ip_header"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	Timezone        string   `yaml:"timezone"`
}

// Production reports whether error details must be hidden from clients.
func (s ServerConfig) Production() bool { return s.Mode == ModeProduction }

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string        `yaml:"driver"`
	DSN                    string        `yaml:"dsn"`
	MaxOpenConns           int           `yaml:"max_open_conns"`
	MaxIdleConns           int           `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int           `yaml:"conn_max_lifetime_minutes"`
	QueryTimeoutMs         int           `yaml:"query_timeout_ms"`
	QueryTimeout           time.Duration `yaml:"-"`
	Seed                   bool          `yaml:"seed"`
}

// CacheConfig selects and tunes the listing cache backend.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // "memory" or "redis"
	TTLSeconds int           `yaml:"ttl_seconds"`
	TTL        time.Duration `yaml:"-"`
	RedisURL   string        `yaml:"redis_url"`
}

// RateLimitConfig bounds requests per client over a window.
type RateLimitConfig struct {
	WindowSeconds int           `yaml:"window_seconds"`
	Window        time.Duration `yaml:"-"`
	MaxRequests   int           `yaml:"max_requests"`
}

// PredictionConfig describes the external scorer and its worker pool.
type PredictionConfig struct {
	Command        string        `yaml:"command"`
	Args           []string      `yaml:"args"`
	Dir            string        `yaml:"dir"`
	Workers        int           `yaml:"workers"`
	QueueSize      int           `yaml:"queue_size"`
	TimeoutMs      int           `yaml:"timeout_ms"`
	Timeout        time.Duration `yaml:"-"`
	QueueTimeoutMs int           `yaml:"queue_timeout_ms"`
	QueueTimeout   time.Duration `yaml:"-"`
}

// BroadcastConfig tunes the live channel and its optional MQTT mirror.
type BroadcastConfig struct {
	SendBuffer int        `yaml:"send_buffer"`
	MQTT       MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig is used when broadcast events are mirrored to a broker.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
	// SendsPerSecond caps push sends across all workers; zero means unthrottled.
	SendsPerSecond float64 `yaml:"sends_per_second"`
}

// Load reads the configuration from the given path, then applies .env and
// environment overrides and fills in defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, err
		}
	case errors.Is(err, fs.ErrNotExist):
		// Environment-only deployments have no YAML file.
	default:
		return nil, err
	}

	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.RedisURL = v
		if cfg.Cache.Driver == "" {
			cfg.Cache.Driver = "redis"
		}
	}
	if v := os.Getenv("APP_MODE"); v != "" {
		cfg.Server.Mode = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PYTHON_PATH"); v != "" {
		cfg.Prediction.Command = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 5001
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = ModeDevelopment
	}
	if cfg.Server.Timezone == "" {
		cfg.Server.Timezone = "Asia/Jakarta"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.MaxOpenConns <= 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns <= 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.QueryTimeoutMs <= 0 {
		cfg.Database.QueryTimeoutMs = 2000
	}
	cfg.Database.QueryTimeout = time.Duration(cfg.Database.QueryTimeoutMs) * time.Millisecond

	if cfg.Cache.Driver == "" {
		cfg.Cache.Driver = "memory"
	}
	if cfg.Cache.TTLSeconds <= 0 {
		cfg.Cache.TTLSeconds = 60
	}
	cfg.Cache.TTL = time.Duration(cfg.Cache.TTLSeconds) * time.Second

	if cfg.RateLimit.WindowSeconds <= 0 {
		cfg.RateLimit.WindowSeconds = 15 * 60
	}
	cfg.RateLimit.Window = time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
	if cfg.RateLimit.MaxRequests <= 0 {
		cfg.RateLimit.MaxRequests = 100
	}

	if cfg.Prediction.Command == "" {
		cfg.Prediction.Command = "python3"
	}
	if len(cfg.Prediction.Args) == 0 {
		cfg.Prediction.Args = []string{"predict.py", "predict"}
	}
	if cfg.Prediction.Workers <= 0 {
		cfg.Prediction.Workers = 4
	}
	if cfg.Prediction.QueueSize <= 0 {
		cfg.Prediction.QueueSize = 16
	}
	if cfg.Prediction.TimeoutMs <= 0 {
		cfg.Prediction.TimeoutMs = 5000
	}
	cfg.Prediction.Timeout = time.Duration(cfg.Prediction.TimeoutMs) * time.Millisecond
	if cfg.Prediction.QueueTimeoutMs <= 0 {
		cfg.Prediction.QueueTimeoutMs = 1000
	}
	cfg.Prediction.QueueTimeout = time.Duration(cfg.Prediction.QueueTimeoutMs) * time.Millisecond

	if cfg.Broadcast.SendBuffer <= 0 {
		cfg.Broadcast.SendBuffer = 16
	}
	if cfg.Broadcast.MQTT.Topic == "" {
		cfg.Broadcast.MQTT.Topic = "parkir/update"
	}
	if cfg.Broadcast.MQTT.ClientID == "" {
		cfg.Broadcast.MQTT.ClientID = "parkird"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}
}
