package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/azure/reddit-brand-monitor/internal/models"
	"github.com/azure/reddit-brand-monitor/internal/ratelimit"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const (
	listingChunkSize = 5
	listingLimit     = "100"
	minCommentLength = 10
)

// RedditListingSource polls the public JSON comment listing for batches of
// communities
type RedditListingSource struct {
	communities []string
	client      *resty.Client
	limiter     *ratelimit.Limiter
	baseURL     string
	ChunkSize   int
	Pacing      Pacing
}

// NewRedditListingSource creates the listing-polling adapter
func NewRedditListingSource(userAgent string, communities []string, limiter *ratelimit.Limiter) *RedditListingSource {
	return &RedditListingSource{
		communities: communities,
		client:      newRedditClient(userAgent),
		limiter:     limiter,
		baseURL:     redditWebBase,
		ChunkSize:   listingChunkSize,
		Pacing: Pacing{
			BetweenUnits:  2 * time.Second,
			BetweenCycles: 15 * time.Second,
			ErrorBackoff:  10 * time.Second,
			Throttled:     60 * time.Second,
		},
	}
}

func (l *RedditListingSource) GetName() string {
	return string(models.SourceListing)
}

func (l *RedditListingSource) IsEnabled() bool {
	return len(l.communities) > 0
}

func (l *RedditListingSource) Run(ctx context.Context, emit Emitter) error {
	if !l.IsEnabled() {
		return fmt.Errorf("reddit listing: no communities configured: %w", ErrNotConfigured)
	}

	chunks := chunkCommunities(l.communities, l.ChunkSize)
	logrus.Infof("Starting Reddit listing monitor over %d chunks", len(chunks))

	for ctx.Err() == nil {
		for _, chunk := range chunks {
			if ctx.Err() != nil {
				return nil
			}

			path := strings.Join(chunk, "+")
			items, err := l.fetchChunk(ctx, path)
			switch {
			case err == nil:
				emitAll(ctx, emit, items)
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, errThrottled):
				logrus.Warnf("Reddit listing rate limited on r/%s, sleeping %v", path, l.Pacing.Throttled)
				sleepContext(ctx, l.Pacing.Throttled)
			default:
				logrus.Errorf("Reddit listing error for r/%s: %v", path, err)
				sleepContext(ctx, l.Pacing.ErrorBackoff)
			}

			sleepContext(ctx, l.Pacing.BetweenUnits)
		}

		sleepContext(ctx, l.Pacing.BetweenCycles)
	}

	return nil
}

func (l *RedditListingSource) fetchChunk(ctx context.Context, path string) ([]models.RawItem, error) {
	if err := l.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	resp, err := l.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"limit": listingLimit, "raw_json": "1"}).
		Get(fmt.Sprintf("%s/r/%s/comments.json", l.baseURL, path))
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	items, err := parseListing(resp.Body(), models.SourceListing)
	if err != nil {
		return nil, err
	}

	kept := items[:0]
	for _, item := range items {
		// very short comments are noise
		if item.Kind == models.KindComment && len(item.Body) < minCommentLength {
			continue
		}
		kept = append(kept, item)
	}

	return kept, nil
}
