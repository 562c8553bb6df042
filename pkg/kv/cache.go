package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned by Get for absent (or expired) keys.
var ErrNotFound = errors.New("key not found")

// Cache is the local store shared by the HTTP ingress and the replication
// engine. Implementations serialize all access internally.
type Cache interface {
	// Insert upserts key. It always succeeds from the caller's perspective.
	Insert(key, value string)
	// Get returns ErrNotFound when key is absent.
	Get(key string) (string, error)
	// Remove deletes key; removing an absent key is a no-op.
	Remove(key string)
	// Len reports the number of live entries.
	Len() int
}

// Sweeper is implemented by backends that expire entries and can drop them
// in the background.
type Sweeper interface {
	Sweep(ctx context.Context, interval time.Duration, logger *zap.Logger)
}

const (
	BackendLRU      = "lru"
	BackendWeighted = "weighted"
)

// Config selects and sizes a backend.
type Config struct {
	Backend string

	// Capacity bounds the lru backend by entry count.
	Capacity int

	// MaxBytes bounds the weighted backend by total key+value bytes;
	// TTL, when > 0, expires weighted entries after insertion.
	MaxBytes int
	TTL      time.Duration
}

// New builds the backend named by cfg.Backend.
func New(cfg Config) (Cache, error) {
	switch cfg.Backend {
	case BackendLRU, "":
		return NewLRU(cfg.Capacity)
	case BackendWeighted:
		if cfg.MaxBytes <= 0 {
			return nil, fmt.Errorf("kv: weighted backend needs a positive byte capacity, got %d", cfg.MaxBytes)
		}
		return NewWeighted(cfg.MaxBytes, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("kv: unknown backend %q", cfg.Backend)
	}
}
