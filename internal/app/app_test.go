package app

import (
	"context"
	"testing"

	"github.com/azure/reddit-brand-monitor/internal/config"
	"github.com/azure/reddit-brand-monitor/internal/sentiment"
	"github.com/azure/reddit-brand-monitor/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSources(t *testing.T) {
	tests := []struct {
		name     string
		enabled  []string
		expected []string
	}{
		{name: "all", enabled: []string{"streaming", "listing", "syndication"}, expected: []string{"streaming", "listing", "syndication"}},
		{name: "keyless only", enabled: []string{"syndication", "listing"}, expected: []string{"listing", "syndication"}},
		{name: "none", enabled: nil, expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{EnabledSources: tt.enabled, Subreddits: []string{"aves"}, RedditUserAgent: "test"}

			var names []string
			for _, src := range NewSources(cfg) {
				names = append(names, src.GetName())
			}
			assert.Equal(t, tt.expected, names)
		})
	}
}

func TestNewClassifier(t *testing.T) {
	assert.IsType(t, &sentiment.HuggingFaceClassifier{}, NewClassifier(&config.Config{SentimentProvider: "huggingface"}))
	assert.IsType(t, &sentiment.HuggingFaceClassifier{}, NewClassifier(&config.Config{}))
	assert.IsType(t, &sentiment.OpenAIClassifier{}, NewClassifier(&config.Config{SentimentProvider: "OpenAI"}))
	assert.IsType(t, sentiment.Neutral{}, NewClassifier(&config.Config{SentimentProvider: "none"}))
}

func TestNewArchive_Disabled(t *testing.T) {
	archive, err := NewArchive(context.Background(), &config.Config{})
	require.NoError(t, err)
	assert.Nil(t, archive)
}

func TestNew_MemoryBackend(t *testing.T) {
	cfg := &config.Config{
		StoreBackend:       "memory",
		Brands:             config.DefaultBrands,
		EnabledSources:     []string{"listing"},
		Subreddits:         []string{"aves"},
		SentimentProvider:  "none",
		BufferSize:         10,
		AlertAfterFailures: 3,
	}

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryStore{}, a.Store)
	assert.False(t, a.Monitor.IsRunning())
	assert.NoError(t, a.Close())
}

func TestNew_InvalidBrandPattern(t *testing.T) {
	cfg := &config.Config{Brands: map[string]string{"broken": "(unclosed"}}
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(context.Background(), &config.Config{StoreBackend: "cassandra"})
	assert.ErrorIs(t, err, storage.ErrUnknownBackend)
}
