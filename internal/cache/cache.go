// Package cache provides a small key/value cache with in-process and Redis backends.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("cache: key not found")

// Client is the cache surface used by the verification source.
type Client interface {
	// Get returns ErrNotFound when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value. A zero ttl uses the client default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver     string // "memory" | "redis"
	Addr       string
	Password   string
	DB         int
	Prefix     string
	DefaultTTL time.Duration
}

const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverNone   = "none"
)

// New builds the backend named by cfg.Driver. DriverNone returns a nil Client.
func New(ctx context.Context, cfg Config) (Client, error) {
	switch cfg.Driver {
	case DriverMemory, "":
		return NewMemory(cfg.DefaultTTL), nil
	case DriverRedis:
		return NewRedis(ctx, cfg)
	case DriverNone:
		return nil, nil //nolint:nilnil // caching disabled
	default:
		return nil, fmt.Errorf("cache: unknown driver %q", cfg.Driver)
	}
}
