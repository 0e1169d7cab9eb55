package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/azure/reddit-brand-monitor/internal/models"
	"github.com/go-resty/resty/v2"
)

const (
	defaultUserAgent = "RedditBrandMonitor/1.0"
	requestTimeout   = 10 * time.Second
	redditWebBase    = "https://www.reddit.com"
	redditOAuthBase  = "https://oauth.reddit.com"
	redditTokenURL   = "https://www.reddit.com/api/v1/access_token"
)

// errThrottled marks a 429 answer from a remote feed
var errThrottled = errors.New("remote feed throttled the request")

// Pacing holds the sleeps an adapter takes between units of work
type Pacing struct {
	BetweenUnits  time.Duration // between chunks or communities
	BetweenCycles time.Duration // after a full pass
	Empty         time.Duration // when a poll yields nothing new
	ErrorBackoff  time.Duration // after an ordinary failure
	Throttled     time.Duration // after a 429
}

type redditListing struct {
	Data struct {
		Children []struct {
			Kind string      `json:"kind"`
			Data redditThing `json:"data"`
		} `json:"children"`
		After string `json:"after"`
	} `json:"data"`
}

type redditThing struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Title     string  `json:"title"`
	Selftext  string  `json:"selftext"`
	Body      string  `json:"body"`
	Author    string  `json:"author"`
	Subreddit string  `json:"subreddit"`
	Permalink string  `json:"permalink"`
	Created   float64 `json:"created_utc"`
	Score     int     `json:"score"`
}

func newRedditClient(userAgent string) *resty.Client {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return resty.New().
		SetTimeout(requestTimeout).
		SetHeader("User-Agent", userAgent)
}

func parseListing(body []byte, source models.SourceKind) ([]models.RawItem, error) {
	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("failed to parse reddit listing: %w", err)
	}

	items := make([]models.RawItem, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		thing := child.Data
		if thing.ID == "" {
			continue
		}

		item := models.RawItem{
			ID:        thing.ID,
			Permalink: redditWebBase + thing.Permalink,
			CreatedAt: time.Unix(int64(thing.Created), 0).UTC(),
			Community: thing.Subreddit,
			Author:    thing.Author,
			Score:     thing.Score,
			Source:    source,
		}

		switch child.Kind {
		case "t3":
			item.Kind = models.KindPost
			item.Title = thing.Title
			item.Body = thing.Selftext
		default:
			item.Kind = models.KindComment
			item.Body = thing.Body
		}

		items = append(items, item)
	}

	return items, nil
}

// chunkCommunities splits communities into groups that fit one combined request
func chunkCommunities(communities []string, size int) [][]string {
	var cleaned []string
	for _, c := range communities {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if strings.EqualFold(c, "all") {
			return [][]string{{"all"}}
		}
		cleaned = append(cleaned, c)
	}

	if size <= 0 {
		size = len(cleaned)
	}

	var chunks [][]string
	for i := 0; i < len(cleaned); i += size {
		j := i + size
		if j > len(cleaned) {
			j = len(cleaned)
		}
		chunks = append(chunks, cleaned[i:j])
	}
	return chunks
}

func checkStatus(resp *resty.Response) error {
	switch {
	case resp.StatusCode() == 429:
		return errThrottled
	case resp.StatusCode() != 200:
		return fmt.Errorf("reddit returned status %d", resp.StatusCode())
	}
	return nil
}

// emitAll hands items to emit in order and stops as soon as ctx is done, so
// nothing is emitted after a shutdown begins. It returns how many were emitted.
func emitAll(ctx context.Context, emit Emitter, items []models.RawItem) int {
	for i, item := range items {
		if ctx.Err() != nil {
			return i
		}
		emit(ctx, item)
	}
	return len(items)
}

// sleepContext waits for d and reports false when ctx ended first
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
