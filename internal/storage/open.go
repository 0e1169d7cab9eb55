package storage

import (
	"context"
	"fmt"
	"strings"
)

// Options selects and configures a MentionStore backend
type Options struct {
	Backend       string // memory, postgres or redis
	DatabaseURL   string
	MaxConns      int
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Open builds the configured MentionStore
func Open(ctx context.Context, opts Options) (MentionStore, error) {
	switch strings.ToLower(opts.Backend) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "postgres":
		return NewPostgresStore(ctx, opts.DatabaseURL, opts.MaxConns)
	case "redis":
		return NewRedisStore(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
