package storage

import (
	"context"
	"errors"

	"github.com/azure/reddit-brand-monitor/internal/models"
)

// ErrUnknownBackend is returned by Open for an unsupported STORE_BACKEND
var ErrUnknownBackend = errors.New("unknown store backend")

// MentionStore persists mentions keyed by (id, brand).
//
// UpsertBatch inserts new rows and refreshes score and sentiment on existing
// ones. A stored sentiment is never replaced by an empty one.
type MentionStore interface {
	UpsertBatch(ctx context.Context, mentions []models.Mention) error
	GetAllIDs(ctx context.Context) (map[string]struct{}, error)
	DeleteByID(ctx context.Context, id string) (int64, error)
	QueryMentions(ctx context.Context, filter models.MentionFilter, page models.Page) (*models.MentionPage, error)
	Close() error
}

// ArchiveInterface stores opaque batch snapshots
type ArchiveInterface interface {
	Store(ctx context.Context, name string, data []byte) error
	Retrieve(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}
