// Package config loads the parley configuration from an optional YAML file, an optional
// .env file and PARLEY_* environment variables, in increasing order of precedence.
package config

import "time"

// Config is the application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Data    DataConfig    `mapstructure:"data"`
	Session SessionConfig `mapstructure:"session"`
	Redis   RedisConfig   `mapstructure:"redis"`
	NLU     NLUConfig     `mapstructure:"nlu"`
	API     APIConfig     `mapstructure:"api"`
	AI      AIConfig      `mapstructure:"ai"`
	Runtime RuntimeConfig `mapstructure:"runtime"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Metrics         bool          `mapstructure:"metrics"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DataConfig locates project data: a directory with versions/ and programs/.
type DataConfig struct {
	Dir   string `mapstructure:"dir"`
	Watch bool   `mapstructure:"watch"`
}

// Session store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreBolt   = "bolt"
	StoreRedis  = "redis"
)

type SessionConfig struct {
	Store   string        `mapstructure:"store"`
	Path    string        `mapstructure:"path"`
	TTL     time.Duration `mapstructure:"ttl"`
	LockTTL time.Duration `mapstructure:"lock_ttl"`
	// EncryptionKey is a base64 AES-256 key. Empty disables encryption at rest.
	EncryptionKey   string   `mapstructure:"encryption_key"`
	FallbackKeys    []string `mapstructure:"fallback_keys"`
	PIIPatterns     []string `mapstructure:"pii_patterns"`
	DistributedLock bool     `mapstructure:"distributed_lock"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// NLUConfig selects the classifier. An empty endpoint classifies in process.
type NLUConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type APIConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRequestLength  int64         `mapstructure:"max_request_length"`
	MaxResponseLength int64         `mapstructure:"max_response_length"`
	ThrottleDelay     time.Duration `mapstructure:"throttle_delay"`
	ThrottleThreshold int           `mapstructure:"throttle_threshold"`
	ThrottleWindow    time.Duration `mapstructure:"throttle_window"`
	// RateLimiter is "memory" (per process) or "redis" (shared by replicas).
	RateLimiter string   `mapstructure:"rate_limiter"`
	Blocklist   []string `mapstructure:"blocklist"`
}

// AIConfig configures the generative model. An empty endpoint disables generative nodes
// and generative no-match.
type AIConfig struct {
	Endpoint string         `mapstructure:"endpoint"`
	APIKey   string         `mapstructure:"api_key"`
	Model    string         `mapstructure:"model"`
	Timeout  time.Duration  `mapstructure:"timeout"`
	PlanGate PlanGateConfig `mapstructure:"plan_gate"`
}

type PlanGateConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedPlans     []string `mapstructure:"allowed_plans"`
	RestrictedModels []string `mapstructure:"restricted_models"`
	Message          string   `mapstructure:"message"`
}

type RuntimeConfig struct {
	MaxSteps    int  `mapstructure:"max_steps"`
	MaxDepth    int  `mapstructure:"max_depth"`
	DebugTraces bool `mapstructure:"debug_traces"`
	MaxInput    int  `mapstructure:"max_input"`
}
