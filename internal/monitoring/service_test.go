package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/azure/reddit-brand-monitor/internal/config"
	"github.com/azure/reddit-brand-monitor/internal/matcher"
	"github.com/azure/reddit-brand-monitor/internal/models"
	"github.com/azure/reddit-brand-monitor/internal/sources"
	"github.com/azure/reddit-brand-monitor/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeSource emits a fixed list of items, then idles until cancelled
type fakeSource struct {
	name    string
	enabled bool
	err     error
	items   []models.RawItem
	emitted chan struct{}
}

func newFakeSource(name string, items ...models.RawItem) *fakeSource {
	return &fakeSource{name: name, enabled: true, items: items, emitted: make(chan struct{})}
}

func (f *fakeSource) GetName() string { return f.name }
func (f *fakeSource) IsEnabled() bool { return f.enabled }

func (f *fakeSource) Run(ctx context.Context, emit sources.Emitter) error {
	if f.err != nil {
		close(f.emitted)
		return f.err
	}
	for _, item := range f.items {
		emit(ctx, item)
	}
	close(f.emitted)
	<-ctx.Done()
	return nil
}

func (f *fakeSource) wait(t *testing.T) {
	t.Helper()
	select {
	case <-f.emitted:
	case <-time.After(2 * time.Second):
		t.Fatalf("source %s did not emit", f.name)
	}
}

type countingClassifier struct {
	calls int64
}

func (c *countingClassifier) Classify(_ context.Context, _ string) models.Sentiment {
	atomic.AddInt64(&c.calls, 1)
	return models.SentimentPositive
}

// MockNotifier is a mock implementation of notifications.NotificationInterface
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendDigest(digest *models.Digest) error {
	args := m.Called(digest)
	return args.Error(0)
}

func (m *MockNotifier) SendAlert(alert *models.Alert) error {
	args := m.Called(alert)
	return args.Error(0)
}

func testConfig() *config.Config {
	return &config.Config{BufferSize: 10, FlushInterval: 30 * time.Second, AlertAfterFailures: 3}
}

func testMatcher(t *testing.T) *matcher.Matcher {
	t.Helper()
	m, err := matcher.New(config.DefaultBrands)
	require.NoError(t, err)
	return m
}

func comment(id, body string, source models.SourceKind) models.RawItem {
	return models.RawItem{
		ID:        id,
		Kind:      models.KindComment,
		Body:      body,
		Permalink: fmt.Sprintf("https://www.reddit.com/r/aves/comments/p1/x/%s/", id),
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Community: "aves",
		Author:    "alice",
		Score:     4,
		Source:    source,
	}
}

func TestService_DuplicateAcrossSourcesPersistedOnce(t *testing.T) {
	store := storage.NewMemoryStore()
	classifier := &countingClassifier{}

	streaming := newFakeSource("streaming", comment("c1", "check out badinka.com", models.SourceStreaming))
	listing := newFakeSource("listing",
		comment("c1", "check out badinka.com", models.SourceListing),
		comment("c2", "nothing to see here", models.SourceListing),
	)

	svc := NewService(testConfig(), Components{
		Store:      store,
		Sources:    []sources.Source{streaming, listing},
		Matcher:    testMatcher(t),
		Classifier: classifier,
	})
	require.NoError(t, svc.Start(context.Background()))
	assert.True(t, svc.IsRunning())

	streaming.wait(t)
	listing.wait(t)
	require.NoError(t, svc.Stop())
	assert.False(t, svc.IsRunning())

	assert.Equal(t, 1, store.Len())
	stored, ok := store.Get("c1", "badinka")
	require.True(t, ok)
	assert.Equal(t, models.SentimentPositive, stored.Sentiment)
	assert.Equal(t, "alice", stored.Author)
	assert.Equal(t, int64(1), atomic.LoadInt64(&classifier.calls))

	metrics := svc.Snapshot()
	assert.Equal(t, 1, metrics.Duplicates)
	assert.Equal(t, 2, metrics.SeenIDs)
	assert.Equal(t, 2, metrics.ItemsBySource["streaming"]+metrics.ItemsBySource["listing"])
	assert.Equal(t, map[string]int{"badinka": 1}, metrics.MentionsByBrand)
	assert.Equal(t, 1, metrics.Buffer.Persisted)
}

func TestService_TwoBrandsTwoMentions(t *testing.T) {
	store := storage.NewMemoryStore()
	src := newFakeSource("listing", comment("c9", "@badinka vs #iHeartRaves, which is better?", models.SourceListing))

	svc := NewService(testConfig(), Components{
		Store:      store,
		Sources:    []sources.Source{src},
		Matcher:    testMatcher(t),
		Classifier: &countingClassifier{},
	})
	require.NoError(t, svc.Start(context.Background()))
	src.wait(t)
	require.NoError(t, svc.Stop())

	assert.Equal(t, 2, store.Len())
	_, ok := store.Get("c9", "badinka")
	assert.True(t, ok)
	_, ok = store.Get("c9", "iheartraves")
	assert.True(t, ok)
}

func TestService_SeedsFromStore(t *testing.T) {
	store := storage.NewMemoryStore()
	existing := comment("c1", "old badinka post", models.SourceListing).Draft("badinka")
	existing.Sentiment = models.SentimentNegative
	require.NoError(t, store.UpsertBatch(context.Background(), []models.Mention{existing}))

	classifier := &countingClassifier{}
	src := newFakeSource("streaming", comment("c1", "old badinka post", models.SourceStreaming))

	svc := NewService(testConfig(), Components{
		Store:      store,
		Sources:    []sources.Source{src},
		Matcher:    testMatcher(t),
		Classifier: classifier,
	})
	require.NoError(t, svc.Start(context.Background()))
	src.wait(t)
	require.NoError(t, svc.Stop())

	stored, _ := store.Get("c1", "badinka")
	assert.Equal(t, models.SentimentNegative, stored.Sentiment)
	assert.Equal(t, int64(0), atomic.LoadInt64(&classifier.calls))
	assert.Equal(t, 1, svc.Snapshot().Duplicates)
}

func TestService_MisconfiguredSourceDoesNotStopOthers(t *testing.T) {
	store := storage.NewMemoryStore()

	broken := newFakeSource("streaming")
	broken.err = fmt.Errorf("missing credentials: %w", sources.ErrNotConfigured)
	disabled := newFakeSource("syndication")
	disabled.enabled = false
	healthy := newFakeSource("listing", comment("c5", "my badinka order arrived", models.SourceListing))

	svc := NewService(testConfig(), Components{
		Store:      store,
		Sources:    []sources.Source{broken, disabled, healthy},
		Matcher:    testMatcher(t),
		Classifier: &countingClassifier{},
	})
	require.NoError(t, svc.Start(context.Background()))
	healthy.wait(t)

	assert.Eventually(t, func() bool {
		_, ok := svc.Snapshot().SourceErrors["streaming"]
		return ok
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, svc.Stop())

	errs := svc.Snapshot().SourceErrors
	assert.Contains(t, errs["streaming"], "not configured")
	assert.Equal(t, "not configured", errs["syndication"])
	assert.Equal(t, 1, store.Len())
}

func TestService_StartStopLifecycle(t *testing.T) {
	svc := NewService(testConfig(), Components{
		Store:   storage.NewMemoryStore(),
		Matcher: testMatcher(t),
	})

	assert.ErrorIs(t, svc.Stop(), ErrNotRunning)
	require.NoError(t, svc.Start(context.Background()))
	assert.ErrorIs(t, svc.Start(context.Background()), ErrAlreadyRunning)
	require.NoError(t, svc.Stop())

	// restart keeps the seen-set
	require.NoError(t, svc.Start(context.Background()))
	require.NoError(t, svc.Stop())
}

func TestService_ItemDroppedAtShutdownIsSeenAgainAfterRestart(t *testing.T) {
	store := storage.NewMemoryStore()
	src := &lateSource{restarted: make(chan struct{})}

	svc := NewService(testConfig(), Components{
		Store:      store,
		Sources:    []sources.Source{src},
		Matcher:    testMatcher(t),
		Classifier: &countingClassifier{},
	})
	require.NoError(t, svc.Start(context.Background()))
	require.NoError(t, svc.Stop())

	require.NoError(t, svc.Start(context.Background()))
	select {
	case <-src.restarted:
	case <-time.After(2 * time.Second):
		t.Fatal("source was not restarted")
	}
	require.NoError(t, svc.Stop())

	_, ok := store.Get("c1", "badinka")
	assert.True(t, ok)
}

func TestService_StatusAvailableWhileSeeding(t *testing.T) {
	store := &blockingStore{release: make(chan struct{})}
	svc := NewService(testConfig(), Components{Store: store, Matcher: testMatcher(t)})

	started := make(chan error, 1)
	go func() { started <- svc.Start(context.Background()) }()

	polled := make(chan struct{})
	go func() {
		svc.IsRunning()
		svc.Snapshot()
		close(polled)
	}()

	select {
	case <-polled:
	case <-time.After(time.Second):
		t.Fatal("status calls blocked behind the seed load")
	}

	close(store.release)
	require.NoError(t, <-started)
	assert.True(t, svc.IsRunning())
	require.NoError(t, svc.Stop())
}

func TestService_StartFailsWhenSeedFails(t *testing.T) {
	store := new(failingStore)
	svc := NewService(testConfig(), Components{Store: store, Matcher: testMatcher(t)})

	err := svc.Start(context.Background())
	require.Error(t, err)
	assert.False(t, svc.IsRunning())
}

func TestService_RunDigest(t *testing.T) {
	store := storage.NewMemoryStore()
	now := time.Now().UTC()

	recent := comment("c1", "badinka haul", models.SourceListing)
	recent.CreatedAt = now.Add(-time.Hour)
	old := comment("c2", "badinka from last week", models.SourceListing)
	old.CreatedAt = now.Add(-7 * 24 * time.Hour)

	m1 := recent.Draft("badinka")
	m1.Sentiment = models.SentimentPositive
	m2 := recent.Draft("iheartraves")
	m2.Sentiment = models.SentimentNeutral
	require.NoError(t, store.UpsertBatch(context.Background(), []models.Mention{m1, m2, old.Draft("badinka")}))

	notifier := new(MockNotifier)
	notifier.On("SendDigest", mock.MatchedBy(func(d *models.Digest) bool {
		return d.Total == 2 &&
			d.ByBrand["badinka"] == 1 && d.ByBrand["iheartraves"] == 1 &&
			d.BySentiment["positive"] == 1 && len(d.Mentions) == 2
	})).Return(nil)

	svc := NewService(testConfig(), Components{Store: store, Matcher: testMatcher(t), Notifier: notifier})
	require.NoError(t, svc.RunDigest(context.Background()))
	notifier.AssertExpectations(t)
}

func TestService_GetMetricsIsJSON(t *testing.T) {
	svc := NewService(testConfig(), Components{Store: storage.NewMemoryStore(), Matcher: testMatcher(t)})
	out := svc.GetMetrics()
	assert.Contains(t, out, `"running": false`)
	assert.Contains(t, out, `"buffer"`)
}

type failingStore struct {
	storage.MemoryStore
}

func (f *failingStore) GetAllIDs(context.Context) (map[string]struct{}, error) {
	return nil, errors.New("connection refused")
}

// lateSource emits only once its first run is cancelled, like a poll that
// completes during shutdown. Later runs emit the same item normally.
type lateSource struct {
	runs      int32
	restarted chan struct{}
}

func (l *lateSource) GetName() string { return "listing" }
func (l *lateSource) IsEnabled() bool { return true }

func (l *lateSource) Run(ctx context.Context, emit sources.Emitter) error {
	item := comment("c1", "check out badinka.com", models.SourceListing)
	if atomic.AddInt32(&l.runs, 1) == 1 {
		<-ctx.Done()
		emit(ctx, item)
		return nil
	}
	emit(ctx, item)
	close(l.restarted)
	<-ctx.Done()
	return nil
}

type blockingStore struct {
	storage.MemoryStore
	release chan struct{}
}

func (b *blockingStore) GetAllIDs(ctx context.Context) (map[string]struct{}, error) {
	<-b.release
	return map[string]struct{}{}, nil
}
