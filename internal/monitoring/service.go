package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/azure/reddit-brand-monitor/internal/buffer"
	"github.com/azure/reddit-brand-monitor/internal/config"
	"github.com/azure/reddit-brand-monitor/internal/dedup"
	"github.com/azure/reddit-brand-monitor/internal/matcher"
	"github.com/azure/reddit-brand-monitor/internal/models"
	"github.com/azure/reddit-brand-monitor/internal/notifications"
	"github.com/azure/reddit-brand-monitor/internal/sentiment"
	"github.com/azure/reddit-brand-monitor/internal/sources"
	"github.com/azure/reddit-brand-monitor/internal/storage"
	"github.com/sirupsen/logrus"
)

var (
	ErrAlreadyRunning = errors.New("monitoring is already running")
	ErrNotRunning     = errors.New("monitoring is not running")
)

// Components are the collaborators the pipeline is assembled from.
// Archive and Notifier are optional.
type Components struct {
	Store      storage.MentionStore
	Sources    []sources.Source
	Matcher    *matcher.Matcher
	Classifier sentiment.Classifier
	Archive    storage.ArchiveInterface
	Notifier   notifications.NotificationInterface
}

// Service runs the ingestion pipeline: every enabled source feeds the shared
// seen-set and brand matcher, and matched drafts go to the mention buffer.
type Service struct {
	config     *config.Config
	components Components

	// lifecycle serializes Start and Stop; mu guards the fields below and is
	// never held across store calls
	lifecycle sync.Mutex

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	seen    *dedup.Filter
	buffer  *buffer.Buffer
	metrics *Metrics
}

// Metrics holds pipeline counters
type Metrics struct {
	Running         bool              `json:"running"`
	StartedAt       time.Time         `json:"started_at"`
	ItemsBySource   map[string]int    `json:"items_by_source"` // first sightings
	Duplicates      int               `json:"duplicates"`
	MentionsByBrand map[string]int    `json:"mentions_by_brand"`
	SourceErrors    map[string]string `json:"source_errors,omitempty"`
	SeenIDs         int               `json:"seen_ids"`
	Buffer          buffer.Stats      `json:"buffer"`
}

// NewService creates a new monitoring service
func NewService(cfg *config.Config, components Components) *Service {
	return &Service{
		config:     cfg,
		components: components,
		metrics:    newMetrics(),
	}
}

func newMetrics() *Metrics {
	return &Metrics{
		ItemsBySource:   make(map[string]int),
		MentionsByBrand: make(map[string]int),
		SourceErrors:    make(map[string]string),
	}
}

// Start seeds the seen-set from the store (first start only) and launches
// the buffer and one goroutine per source
func (s *Service) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.RLock()
	running, seeded := s.running, s.seen != nil
	s.mu.RUnlock()

	if running {
		return ErrAlreadyRunning
	}

	var seen *dedup.Filter
	if !seeded {
		ids, err := s.components.Store.GetAllIDs(ctx)
		if err != nil {
			return fmt.Errorf("failed to load existing ids: %w", err)
		}
		seen = dedup.NewFilter(ids)
		logrus.Infof("Seeded seen-set with %d stored ids", len(ids))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if seen != nil {
		s.seen = seen
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	var alerter buffer.Alerter
	if s.components.Notifier != nil {
		alerter = s.components.Notifier
	}
	s.buffer = buffer.New(s.components.Store, s.components.Classifier, s.components.Archive, alerter, buffer.Options{
		Threshold:          s.config.BufferSize,
		AlertAfterFailures: s.config.AlertAfterFailures,
	})
	go s.buffer.Run(runCtx)

	started := 0
	for _, src := range s.components.Sources {
		if !src.IsEnabled() {
			logrus.Warnf("Source %s is not configured, skipping", src.GetName())
			s.metrics.SourceErrors[src.GetName()] = "not configured"
			continue
		}

		started++
		s.wg.Add(1)
		go s.runSource(runCtx, src)
	}

	s.running = true
	s.metrics.Running = true
	s.metrics.StartedAt = time.Now().UTC()

	logrus.Infof("Monitoring started with %d of %d sources for brands %v", started, len(s.components.Sources), s.components.Matcher.Brands())
	return nil
}

func (s *Service) runSource(ctx context.Context, src sources.Source) {
	defer s.wg.Done()

	logger := logrus.WithField("source", src.GetName())
	logger.Info("Source started")

	err := src.Run(ctx, s.handleItem)
	switch {
	case err == nil:
		logger.Info("Source stopped")
	case errors.Is(err, sources.ErrNotConfigured):
		logger.Errorf("Source cannot start: %v", err)
		s.recordSourceError(src.GetName(), err)
	default:
		logger.Errorf("Source failed: %v", err)
		s.recordSourceError(src.GetName(), err)
	}
}

// handleItem is the emitter handed to every source
func (s *Service) handleItem(ctx context.Context, item models.RawItem) {
	if item.ID == "" {
		return
	}

	if !s.seen.CheckAndMark(item.ID) {
		s.countDuplicate()
		return
	}
	s.countItem(item.Source)

	brands := s.components.Matcher.Match(item.Text())
	if len(brands) == 0 {
		return
	}

	drafts := make([]models.Mention, 0, len(brands))
	for _, brand := range brands {
		drafts = append(drafts, item.Draft(brand))
	}

	logrus.WithFields(logrus.Fields{
		"id":     item.ID,
		"source": item.Source,
		"brands": brands,
	}).Info("Brand mention found")

	if err := s.currentBuffer().Add(ctx, drafts...); err != nil {
		logrus.Warnf("Dropping %d drafts for %s: %v", len(drafts), item.ID, err)
		s.seen.Forget(item.ID)
		return
	}
	s.countMentions(brands)
}

// Stop cancels the sources and waits for the buffer's final flush
func (s *Service) Stop() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	cancel, buf := s.cancel, s.buffer
	s.running = false
	s.metrics.Running = false
	s.mu.Unlock()

	logrus.Info("Stopping monitoring")
	cancel()
	s.wg.Wait()
	<-buf.Done()
	logrus.Info("Monitoring stopped")
	return nil
}

func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// RequestFlush forwards the periodic trigger to the current buffer
func (s *Service) RequestFlush() {
	if buf := s.currentBuffer(); buf != nil {
		buf.RequestFlush()
	}
}

// GetMetrics returns current metrics as JSON
func (s *Service) GetMetrics() string {
	data, _ := json.MarshalIndent(s.Snapshot(), "", "  ")
	return string(data)
}

// Snapshot returns a copy of the current metrics
func (s *Service) Snapshot() Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := *s.metrics
	out.ItemsBySource = copyCounts(s.metrics.ItemsBySource)
	out.MentionsByBrand = copyCounts(s.metrics.MentionsByBrand)
	out.SourceErrors = make(map[string]string, len(s.metrics.SourceErrors))
	for k, v := range s.metrics.SourceErrors {
		out.SourceErrors[k] = v
	}
	if s.seen != nil {
		out.SeenIDs = s.seen.Len()
	}
	if s.buffer != nil {
		out.Buffer = s.buffer.Stats()
	}
	return out
}

// RunDigest summarises the mentions stored over the last day and sends them
// through the notification channels
func (s *Service) RunDigest(ctx context.Context) error {
	if s.components.Notifier == nil {
		return fmt.Errorf("no notifier configured")
	}

	digest, err := s.BuildDigest(ctx, 24*time.Hour)
	if err != nil {
		return err
	}

	logrus.Infof("Sending digest with %d mentions", digest.Total)
	return s.components.Notifier.SendDigest(digest)
}

// BuildDigest aggregates stored mentions created within window
func (s *Service) BuildDigest(ctx context.Context, window time.Duration) (*models.Digest, error) {
	now := time.Now().UTC()
	filter := models.MentionFilter{Since: now.Add(-window)}

	digest := &models.Digest{
		GeneratedAt: now,
		Period:      fmt.Sprintf("last %d hours", int(window.Hours())),
		ByBrand:     make(map[string]int),
		BySentiment: make(map[string]int),
	}

	const perPage, maxPages = 100, 50
	for page := 1; page <= maxPages; page++ {
		result, err := s.components.Store.QueryMentions(ctx, filter, models.Page{Number: page, PerPage: perPage})
		if err != nil {
			return nil, fmt.Errorf("failed to query mentions: %w", err)
		}

		for _, m := range result.Results {
			digest.ByBrand[m.Brand]++
			digest.BySentiment[string(m.Sentiment)]++
			if len(digest.Mentions) < 10 {
				digest.Mentions = append(digest.Mentions, m)
			}
		}
		digest.Total = result.Total

		if page*perPage >= result.Total {
			break
		}
	}

	return digest, nil
}

func (s *Service) currentBuffer() *buffer.Buffer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buffer
}

func (s *Service) countItem(source models.SourceKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.ItemsBySource[string(source)]++
}

func (s *Service) countDuplicate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.Duplicates++
}

func (s *Service) countMentions(brands []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range brands {
		s.metrics.MentionsByBrand[b]++
	}
}

func (s *Service) recordSourceError(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.SourceErrors[name] = err.Error()
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
