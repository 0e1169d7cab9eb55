package sources

import (
	"context"
	"errors"

	"github.com/azure/reddit-brand-monitor/internal/models"
)

// ErrNotConfigured is returned by Run when a source is missing required settings
var ErrNotConfigured = errors.New("source is not configured")

// Emitter receives raw items in the order the remote feed yields them
type Emitter func(ctx context.Context, item models.RawItem)

// Source interface defines the contract for all feed adapters.
// Run loops until ctx is cancelled; it returns an error only when the source
// cannot start at all.
type Source interface {
	GetName() string
	IsEnabled() bool
	Run(ctx context.Context, emit Emitter) error
}
