package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/azure/reddit-brand-monitor/internal/config"
	"github.com/azure/reddit-brand-monitor/internal/matcher"
	"github.com/azure/reddit-brand-monitor/internal/models"
	"github.com/azure/reddit-brand-monitor/internal/monitoring"
	"github.com/azure/reddit-brand-monitor/internal/notifications"
	"github.com/azure/reddit-brand-monitor/internal/ratelimit"
	"github.com/azure/reddit-brand-monitor/internal/sentiment"
	"github.com/azure/reddit-brand-monitor/internal/sources"
	"github.com/azure/reddit-brand-monitor/internal/storage"
	"github.com/sirupsen/logrus"
)

// App holds the assembled pipeline and the resources it owns
type App struct {
	Config   *config.Config
	Store    storage.MentionStore
	Notifier *notifications.Service
	Monitor  *monitoring.Service
}

// New wires every component from cfg. The caller must Close the App.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := storage.Open(ctx, storage.Options{
		Backend:       cfg.StoreBackend,
		DatabaseURL:   cfg.DatabaseURL,
		MaxConns:      cfg.DatabaseMaxConns,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.StoreBackend, err)
	}

	m, err := matcher.New(cfg.Brands)
	if err != nil {
		store.Close()
		return nil, err
	}

	archive, err := NewArchive(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	notifier := notifications.NewService(cfg)
	components := monitoring.Components{
		Store:      store,
		Sources:    NewSources(cfg),
		Matcher:    m,
		Classifier: NewClassifier(cfg),
		Archive:    archive,
	}
	if notifier.Enabled() {
		components.Notifier = notifier
	}

	return &App{
		Config:   cfg,
		Store:    store,
		Notifier: notifier,
		Monitor:  monitoring.NewService(cfg, components),
	}, nil
}

// Close stops the pipeline if it is running and releases the store
func (a *App) Close() error {
	if a.Monitor.IsRunning() {
		if err := a.Monitor.Stop(); err != nil {
			logrus.Errorf("Failed to stop monitoring: %v", err)
		}
	}
	return a.Store.Close()
}

// NewSources builds the adapters selected by SOURCES, each with its own
// request budget
func NewSources(cfg *config.Config) []sources.Source {
	var out []sources.Source

	if cfg.SourceEnabled(string(models.SourceStreaming)) {
		out = append(out, sources.NewRedditStreamSource(
			cfg.RedditClientID, cfg.RedditClientSecret, cfg.RedditUserAgent, cfg.Subreddits,
			ratelimit.New("reddit-oauth", cfg.StreamRPM),
		))
	}
	if cfg.SourceEnabled(string(models.SourceListing)) {
		out = append(out, sources.NewRedditListingSource(
			cfg.RedditUserAgent, cfg.Subreddits,
			ratelimit.New("reddit-json", cfg.ListingRPM),
		))
	}
	if cfg.SourceEnabled(string(models.SourceSyndication)) {
		out = append(out, sources.NewRedditFeedSource(
			cfg.RedditUserAgent, cfg.Subreddits,
			ratelimit.New("reddit-rss", cfg.SyndicationRPM),
		))
	}

	return out
}

// NewClassifier picks the enrichment provider
func NewClassifier(cfg *config.Config) sentiment.Classifier {
	limiter := ratelimit.New("sentiment", cfg.EnrichRPM)

	switch strings.ToLower(cfg.SentimentProvider) {
	case "openai":
		return sentiment.NewOpenAIClassifier(sentiment.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		}, limiter)
	case "none":
		return sentiment.Neutral{}
	default:
		return sentiment.NewHuggingFaceClassifier(cfg.HFAPIToken, cfg.HFModelURL, limiter)
	}
}

// NewArchive connects the blob archive when a storage account is set.
// It returns a nil interface otherwise.
func NewArchive(ctx context.Context, cfg *config.Config) (storage.ArchiveInterface, error) {
	if cfg.StorageAccount == "" {
		return nil, nil
	}

	archive, err := storage.NewAzureArchive(ctx, cfg.StorageAccount, cfg.StorageContainer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize archive: %w", err)
	}
	return archive, nil
}
