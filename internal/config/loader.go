package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aretw0/parley/internal/apicall"
	"github.com/aretw0/parley/internal/interact"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/adapters/redis"
	"github.com/aretw0/parley/pkg/ai"
	"github.com/aretw0/parley/pkg/session"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: server.addr is read from PARLEY_SERVER_ADDR.
const EnvPrefix = "PARLEY"

// Load reads the configuration. path may be empty, in which case parley.yaml is looked up
// in the working directory and ./configs, and its absence is not an error. A .env file in
// the working directory is loaded into the environment first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("parley")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.metrics", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatText)

	v.SetDefault("data.dir", ".")
	v.SetDefault("data.watch", false)

	v.SetDefault("session.store", StoreMemory)
	v.SetDefault("session.path", ".parley/sessions")
	v.SetDefault("session.ttl", time.Duration(0))
	v.SetDefault("session.lock_ttl", session.DefaultLockTTL)
	v.SetDefault("session.encryption_key", "")
	v.SetDefault("session.fallback_keys", []string{})
	v.SetDefault("session.pii_patterns", []string{})
	v.SetDefault("session.distributed_lock", false)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", redis.DefaultPrefix)

	v.SetDefault("nlu.endpoint", "")
	v.SetDefault("nlu.timeout", 10*time.Second)

	v.SetDefault("api.timeout", apicall.DefaultTimeout)
	v.SetDefault("api.max_request_length", apicall.DefaultMaxBodyLength)
	v.SetDefault("api.max_response_length", apicall.DefaultMaxBodyLength)
	v.SetDefault("api.throttle_delay", apicall.DefaultThrottleDelay)
	v.SetDefault("api.throttle_threshold", apicall.DefaultThrottleThreshold)
	v.SetDefault("api.throttle_window", apicall.DefaultThrottleWindow)
	v.SetDefault("api.rate_limiter", StoreMemory)
	v.SetDefault("api.blocklist", []string{})

	v.SetDefault("ai.endpoint", "")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "")
	v.SetDefault("ai.timeout", ai.DefaultTimeout)
	v.SetDefault("ai.plan_gate.enabled", false)
	v.SetDefault("ai.plan_gate.allowed_plans", []string{})
	v.SetDefault("ai.plan_gate.restricted_models", []string{})
	v.SetDefault("ai.plan_gate.message", "")

	v.SetDefault("runtime.max_steps", runtime.DefaultMaxSteps)
	v.SetDefault("runtime.max_depth", runtime.DefaultMaxStackDepth)
	v.SetDefault("runtime.debug_traces", false)
	v.SetDefault("runtime.max_input", interact.DefaultMaxInputSize)
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case logging.FormatText, logging.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	switch c.Session.Store {
	case StoreMemory, StoreFile, StoreBolt, StoreRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown session.store %q", c.Session.Store))
	}
	switch c.API.RateLimiter {
	case StoreMemory, StoreRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown api.rate_limiter %q", c.API.RateLimiter))
	}
	if c.Session.EncryptionKey != "" {
		if _, _, err := c.Session.Keys(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Runtime.MaxSteps < 0 || c.Runtime.MaxDepth < 0 {
		errs = append(errs, errors.New("runtime limits must not be negative"))
	}
	return errors.Join(errs...)
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.Session.Store == StoreRedis || c.Session.DistributedLock || c.API.RateLimiter == StoreRedis
}

// Keys decodes the active and fallback encryption keys.
func (s SessionConfig) Keys() (active []byte, fallback [][]byte, err error) {
	active, err = decodeKey(s.EncryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("session.encryption_key: %w", err)
	}
	for i, k := range s.FallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, nil, fmt.Errorf("session.fallback_keys[%d]: %w", i, err)
		}
		fallback = append(fallback, key)
	}
	return active, fallback, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
