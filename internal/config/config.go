package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"k8s.io/utils/env"

	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/constant"
)

// Config holds application configuration.
type Config struct {
	// Name of the instance, used for self-signed certificates and logs.
	Name string `yaml:"name"`

	// Server configuration
	Address   string    `yaml:"address"`
	Port      string    `yaml:"port"`
	DebugMode bool      `yaml:"debug"`
	LogLevel  string    `yaml:"logLevel"`
	Secure    bool      `yaml:"secure"`
	TLS       TLSConfig `yaml:"tls"`

	// Storage configuration
	StorageMode     StorageMode `yaml:"storage"`
	DataPath        string      `yaml:"dataPath"`
	DBConnectionURL string      `yaml:"dbConnectionURL"`

	// Authentication
	AdminAPIKey   string `yaml:"adminAPIKey"`
	JWTSigningKey string `yaml:"jwtSigningKey"`

	// Verification cache
	CacheDriver   CacheDriver   `yaml:"cacheDriver"`
	RedisAddr     string        `yaml:"redisAddr"`
	RedisDB       int           `yaml:"redisDB"`
	CacheTTL      time.Duration `yaml:"cacheTTL"`
	BucketSize    time.Duration `yaml:"bucketSize"`
	Retention     time.Duration `yaml:"retention"`
	PruneInterval time.Duration `yaml:"pruneInterval"`

	// Key generation defaults
	KeyPrefix     string `yaml:"keyPrefix"`
	KeyByteLength int    `yaml:"keyByteLength"`

	// Per-key verification rate limit in requests per second; zero disables it.
	VerifyRateLimit float64 `yaml:"verifyRateLimit"`
	VerifyRateBurst int     `yaml:"verifyRateBurst"`

	configFile string
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and environment variables, then binds flags on the command line
// flag set. Call flag.Parse afterwards and then Validate.
func Load() (*Config, error) {
	c := defaults()

	if path := env.GetString("CONFIG_FILE", ""); path != "" {
		if err := c.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := c.loadEnv(); err != nil {
		return nil, err
	}

	c.bindFlags(flag.CommandLine)

	return c, nil
}

func defaults() *Config {
	return &Config{
		Name:            constant.DefaultInstanceName,
		Port:            constant.DefaultPort,
		LogLevel:        "info",
		StorageMode:     StorageModeInMemory,
		DataPath:        constant.DefaultDataPath,
		CacheDriver:     CacheDriverMemory,
		RedisAddr:       "localhost:6379",
		CacheTTL:        constant.DefaultCacheTTL,
		BucketSize:      constant.DefaultBucketSize,
		Retention:       constant.DefaultRetention,
		PruneInterval:   constant.DefaultPruneInterval,
		KeyPrefix:       constant.DefaultKeyPrefix,
		KeyByteLength:   constant.DefaultKeyByteLength,
		VerifyRateBurst: 1,
		TLS: TLSConfig{
			MinVersion: defaultTLSVersion,
		},
	}
}

// LoadFile merges a YAML file into the configuration. Fields absent from the
// file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.configFile = path
	return nil
}

func (c *Config) loadEnv() error {
	c.Name = env.GetString("INSTANCE_NAME", c.Name)
	c.Address = env.GetString("ADDRESS", c.Address)
	c.Port = env.GetString("PORT", c.Port)
	c.LogLevel = env.GetString("LOG_LEVEL", c.LogLevel)
	c.DataPath = env.GetString("DATA_PATH", c.DataPath)
	c.DBConnectionURL = env.GetString("DB_CONNECTION_URL", c.DBConnectionURL)
	c.AdminAPIKey = env.GetString("ADMIN_API_KEY", c.AdminAPIKey)
	c.JWTSigningKey = env.GetString("JWT_SIGNING_KEY", c.JWTSigningKey)
	c.RedisAddr = env.GetString("REDIS_ADDR", c.RedisAddr)
	c.KeyPrefix = env.GetString("KEY_PREFIX", c.KeyPrefix)

	var err error
	if c.DebugMode, err = env.GetBool("DEBUG_MODE", c.DebugMode); err != nil {
		return fmt.Errorf("invalid DEBUG_MODE: %w", err)
	}
	if c.Secure, err = env.GetBool("SECURE", c.Secure); err != nil {
		return fmt.Errorf("invalid SECURE: %w", err)
	}
	if c.RedisDB, err = env.GetInt("REDIS_DB", c.RedisDB); err != nil {
		return fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	if c.KeyByteLength, err = env.GetInt("KEY_BYTE_LENGTH", c.KeyByteLength); err != nil {
		return fmt.Errorf("invalid KEY_BYTE_LENGTH: %w", err)
	}
	if c.CacheTTL, err = getDuration("CACHE_TTL", c.CacheTTL); err != nil {
		return fmt.Errorf("invalid CACHE_TTL: %w", err)
	}
	if c.BucketSize, err = getDuration("BUCKET_SIZE", c.BucketSize); err != nil {
		return fmt.Errorf("invalid BUCKET_SIZE: %w", err)
	}
	if c.Retention, err = getDuration("VERIFICATION_RETENTION", c.Retention); err != nil {
		return fmt.Errorf("invalid VERIFICATION_RETENTION: %w", err)
	}
	if c.PruneInterval, err = getDuration("PRUNE_INTERVAL", c.PruneInterval); err != nil {
		return fmt.Errorf("invalid PRUNE_INTERVAL: %w", err)
	}
	if c.VerifyRateLimit, err = env.GetFloat64("VERIFY_RATE_LIMIT", c.VerifyRateLimit); err != nil {
		return fmt.Errorf("invalid VERIFY_RATE_LIMIT: %w", err)
	}
	if c.VerifyRateBurst, err = env.GetInt("VERIFY_RATE_BURST", c.VerifyRateBurst); err != nil {
		return fmt.Errorf("invalid VERIFY_RATE_BURST: %w", err)
	}

	if v := env.GetString("STORAGE_MODE", ""); v != "" {
		if err := c.StorageMode.Set(v); err != nil {
			return err
		}
	}
	if v := env.GetString("CACHE_DRIVER", ""); v != "" {
		if err := c.CacheDriver.Set(v); err != nil {
			return err
		}
	}

	return c.TLS.loadEnv()
}

// bindFlags binds flags to the already-loaded values so flags take precedence.
func (c *Config) bindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Name, "name", c.Name, "Name of the instance")
	fs.StringVar(&c.Address, "address", c.Address, "Address to listen on (overrides --port)")
	fs.StringVar(&c.Port, "port", c.Port, "Port to listen on")
	fs.BoolVar(&c.DebugMode, "debug", c.DebugMode, "Enable debug mode")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn, error")
	fs.BoolVar(&c.Secure, "secure", c.Secure, "Serve over TLS")

	fs.Var(&c.StorageMode, "storage", "Storage mode: in-memory, disk, external")
	fs.StringVar(&c.DataPath, "data-path", c.DataPath, "SQLite file used with --storage=disk")
	fs.StringVar(&c.DBConnectionURL, "db-connection-url", c.DBConnectionURL, "PostgreSQL URL used with --storage=external")

	fs.Var(&c.CacheDriver, "cache", "Verification cache driver: memory, redis, none")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "Redis address used with --cache=redis")
	fs.DurationVar(&c.CacheTTL, "cache-ttl", c.CacheTTL, "How long verification buckets are cached")
	fs.DurationVar(&c.BucketSize, "bucket-size", c.BucketSize, "Width of one verification bucket")
	fs.DurationVar(&c.Retention, "retention", c.Retention, "How long raw verification events are kept")
	fs.DurationVar(&c.PruneInterval, "prune-interval", c.PruneInterval, "How often expired events are pruned and credits refilled")
	fs.Float64Var(&c.VerifyRateLimit, "verify-rate", c.VerifyRateLimit, "Per-key verifications per second (0 disables)")
	fs.IntVar(&c.VerifyRateBurst, "verify-burst", c.VerifyRateBurst, "Per-key verification burst")

	fs.StringVar(&c.KeyPrefix, "key-prefix", c.KeyPrefix, "Default prefix for generated keys")
	fs.IntVar(&c.KeyByteLength, "key-bytes", c.KeyByteLength, "Default random byte length of generated keys")

	c.TLS.bindFlags(fs)
}

// ConfigFile returns the YAML file the configuration was merged from, if any.
func (c *Config) ConfigFile() string {
	return c.configFile
}

// ListenAddress returns Address when set, otherwise ":<Port>".
func (c *Config) ListenAddress() string {
	if c.Address != "" {
		return c.Address
	}
	return ":" + c.Port
}

// Validate checks that the configuration is consistent.
func (c *Config) Validate() error {
	if err := c.TLS.validate(); err != nil {
		return err
	}
	if c.Secure && !c.TLS.Enabled() {
		return errors.New("--secure requires either --tls-cert/--tls-key or --tls-self-signed")
	}

	if c.StorageMode == StorageModeExternal && strings.TrimSpace(c.DBConnectionURL) == "" {
		return errors.New("--db-connection-url is required when using --storage=external")
	}
	if c.CacheDriver == CacheDriverRedis && strings.TrimSpace(c.RedisAddr) == "" {
		return errors.New("--redis-addr is required when using --cache=redis")
	}

	if c.BucketSize <= 0 || c.BucketSize > constant.VerificationWindow {
		return fmt.Errorf("bucket size must be within (0, %s], got %s", constant.VerificationWindow, c.BucketSize)
	}
	if c.Retention < constant.VerificationWindow {
		return fmt.Errorf("retention must be at least %s, got %s", constant.VerificationWindow, c.Retention)
	}

	if c.PruneInterval <= 0 {
		return fmt.Errorf("prune interval must be positive, got %s", c.PruneInterval)
	}
	if c.VerifyRateLimit < 0 {
		return fmt.Errorf("verify rate limit must not be negative, got %v", c.VerifyRateLimit)
	}
	if c.VerifyRateLimit > 0 && c.VerifyRateBurst < 1 {
		return errors.New("--verify-burst must be at least 1 when --verify-rate is set")
	}

	if strings.TrimSpace(c.KeyPrefix) == "" || strings.Contains(c.KeyPrefix, "_") {
		return fmt.Errorf("key prefix %q must be non-empty and must not contain '_'", c.KeyPrefix)
	}
	if c.KeyByteLength < constant.MinKeyByteLength || c.KeyByteLength > constant.MaxKeyByteLength {
		return fmt.Errorf("key byte length must be between %d and %d, got %d",
			constant.MinKeyByteLength, constant.MaxKeyByteLength, c.KeyByteLength)
	}

	return nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := env.GetString(key, "")
	if v == "" {
		return defaultValue, nil
	}
	return time.ParseDuration(v)
}
