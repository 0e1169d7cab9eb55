package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/azure/reddit-brand-monitor/internal/models"
	"github.com/azure/reddit-brand-monitor/internal/ratelimit"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const streamWindowSize = 1000

// RedditStreamSource follows new comments and submissions through the
// authenticated Reddit API, yielding each item once as it appears.
type RedditStreamSource struct {
	clientID     string
	clientSecret string
	communities  []string
	client       *resty.Client
	limiter      *ratelimit.Limiter

	tokenURL string
	apiBase  string
	Pacing   Pacing

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time

	recent map[string]*recentIDs
}

type redditAuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// NewRedditStreamSource creates the streaming adapter
func NewRedditStreamSource(clientID, clientSecret, userAgent string, communities []string, limiter *ratelimit.Limiter) *RedditStreamSource {
	return &RedditStreamSource{
		clientID:     clientID,
		clientSecret: clientSecret,
		communities:  communities,
		client:       newRedditClient(userAgent),
		limiter:      limiter,
		tokenURL:     redditTokenURL,
		apiBase:      redditOAuthBase,
		Pacing: Pacing{
			Empty:        time.Second,
			ErrorBackoff: 10 * time.Second,
			Throttled:    60 * time.Second,
		},
		recent: map[string]*recentIDs{
			"comments": newRecentIDs(streamWindowSize),
			"new":      newRecentIDs(streamWindowSize),
		},
	}
}

func (r *RedditStreamSource) GetName() string {
	return string(models.SourceStreaming)
}

func (r *RedditStreamSource) IsEnabled() bool {
	return r.clientID != "" && r.clientSecret != ""
}

func (r *RedditStreamSource) Run(ctx context.Context, emit Emitter) error {
	if !r.IsEnabled() {
		return fmt.Errorf("reddit stream: missing REDDIT_CLIENT_ID/REDDIT_CLIENT_SECRET: %w", ErrNotConfigured)
	}

	path := strings.Join(r.communities, "+")
	if path == "" {
		path = "all"
	}
	logrus.Infof("Starting Reddit stream for r/%s", path)

	for ctx.Err() == nil {
		yielded := 0

		for _, endpoint := range []string{"comments", "new"} {
			items, err := r.poll(ctx, path, endpoint)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if errors.Is(err, errThrottled) {
					logrus.Warnf("Reddit stream rate limited, sleeping %v", r.Pacing.Throttled)
					sleepContext(ctx, r.Pacing.Throttled)
				} else {
					logrus.Errorf("Reddit stream error on /%s: %v", endpoint, err)
					sleepContext(ctx, r.Pacing.ErrorBackoff)
				}
				continue
			}

			yielded += emitAll(ctx, emit, items)
		}

		if yielded == 0 {
			sleepContext(ctx, r.Pacing.Empty)
		}
	}

	return nil
}

// poll fetches one page from an endpoint and returns the items not yielded
// before, oldest first. The first page of each endpoint only primes the window.
func (r *RedditStreamSource) poll(ctx context.Context, path, endpoint string) ([]models.RawItem, error) {
	token, err := r.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("reddit authentication failed: %w", err)
	}

	if err := r.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token).
		SetQueryParams(map[string]string{"limit": "100", "raw_json": "1"}).
		Get(fmt.Sprintf("%s/r/%s/%s", r.apiBase, path, endpoint))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() == 401 {
		r.invalidateToken()
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	items, err := parseListing(resp.Body(), models.SourceStreaming)
	if err != nil {
		return nil, err
	}

	window := r.recent[endpoint]
	priming := !window.primed

	var fresh []models.RawItem
	for i := len(items) - 1; i >= 0; i-- {
		if window.add(items[i].ID) && !priming {
			fresh = append(fresh, items[i])
		}
	}
	window.primed = true

	return fresh, nil
}

func (r *RedditStreamSource) token(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.accessToken != "" && time.Now().Before(r.expiresAt) {
		return r.accessToken, nil
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetBasicAuth(r.clientID, r.clientSecret).
		SetFormData(map[string]string{
			"grant_type": "client_credentials",
		}).
		Post(r.tokenURL)
	if err != nil {
		return "", err
	}
	if err := checkStatus(resp); err != nil {
		return "", err
	}

	var authResp redditAuthResponse
	if err := json.Unmarshal(resp.Body(), &authResp); err != nil {
		return "", err
	}
	if authResp.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response")
	}

	lifetime := time.Duration(authResp.ExpiresIn) * time.Second
	if lifetime <= time.Minute {
		lifetime = 50 * time.Minute
	}
	r.accessToken = authResp.AccessToken
	r.expiresAt = time.Now().Add(lifetime - time.Minute)

	return r.accessToken, nil
}

func (r *RedditStreamSource) invalidateToken() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accessToken = ""
}

// recentIDs remembers the last N ids yielded by one endpoint
type recentIDs struct {
	primed bool
	order  []string
	set    map[string]struct{}
	limit  int
}

func newRecentIDs(limit int) *recentIDs {
	return &recentIDs{set: make(map[string]struct{}, limit), limit: limit}
}

// add records id and reports whether it was new
func (w *recentIDs) add(id string) bool {
	if _, ok := w.set[id]; ok {
		return false
	}
	if len(w.order) >= w.limit {
		delete(w.set, w.order[0])
		w.order = w.order[1:]
	}
	w.order = append(w.order, id)
	w.set[id] = struct{}{}
	return true
}
