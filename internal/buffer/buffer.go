package buffer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/azure/reddit-brand-monitor/internal/models"
	"github.com/azure/reddit-brand-monitor/internal/sentiment"
	"github.com/azure/reddit-brand-monitor/internal/storage"
	"github.com/sirupsen/logrus"
)

const (
	DefaultThreshold  = 50
	finalFlushTimeout = 30 * time.Second
	flushTimeout      = 5 * time.Minute
)

// ErrClosed is returned by Add once the buffer has shut down
var ErrClosed = errors.New("mention buffer is closed")

// Alerter is told when persistence keeps failing
type Alerter interface {
	SendAlert(alert *models.Alert) error
}

// Options tunes a Buffer. Zero values select the defaults.
type Options struct {
	Threshold          int
	AlertAfterFailures int
}

// Stats is a snapshot of buffer activity
type Stats struct {
	Pending             int       `json:"pending"`
	Flushing            bool      `json:"flushing"`
	Flushes             int       `json:"flushes"`
	FailedFlushes       int       `json:"failed_flushes"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Persisted           int       `json:"persisted"`
	LastFlush           time.Time `json:"last_flush"`
}

type flushResult struct {
	batch []models.Mention
	err   error
}

// Buffer collects mention drafts and writes them in batches. A single owner
// goroutine (Run) holds the pending slice; at most one flush is in flight.
// A failed batch goes back in front of the pending drafts, already enriched,
// and is retried on the next trigger.
type Buffer struct {
	store      storage.MentionStore
	classifier sentiment.Classifier
	archive    storage.ArchiveInterface
	alerter    Alerter
	opts       Options

	adds     chan []models.Mention
	flushReq chan struct{}
	done     chan struct{}

	mu    sync.Mutex
	stats Stats
}

// New creates a buffer. archive and alerter may be nil.
func New(store storage.MentionStore, classifier sentiment.Classifier, archive storage.ArchiveInterface, alerter Alerter, opts Options) *Buffer {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if classifier == nil {
		classifier = sentiment.Neutral{}
	}
	return &Buffer{
		store:      store,
		classifier: classifier,
		archive:    archive,
		alerter:    alerter,
		opts:       opts,
		adds:       make(chan []models.Mention),
		flushReq:   make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Add hands drafts to the owner goroutine. It blocks while a threshold
// flush is being started.
func (b *Buffer) Add(ctx context.Context, drafts ...models.Mention) error {
	if len(drafts) == 0 {
		return nil
	}
	select {
	case b.adds <- drafts:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return ErrClosed
	}
}

// RequestFlush asks for a flush of whatever is pending. Requests made while
// one is already queued are coalesced.
func (b *Buffer) RequestFlush() {
	select {
	case b.flushReq <- struct{}{}:
	default:
	}
}

// Done is closed when Run has returned
func (b *Buffer) Done() <-chan struct{} {
	return b.done
}

func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Pending returns the number of drafts waiting for a flush
func (b *Buffer) Pending() int {
	return b.Stats().Pending
}

// Run owns the buffer until ctx is cancelled, then waits for the in-flight
// flush and makes one final attempt with a fresh context.
func (b *Buffer) Run(ctx context.Context) {
	defer close(b.done)

	var pending []models.Mention
	var inflight chan flushResult
	// set while the last flush failed; the next attempt then waits for an
	// explicit flush request instead of the size threshold
	var failing bool

	start := func() {
		batch := pending
		pending = nil
		inflight = make(chan flushResult, 1)
		b.update(func(s *Stats) {
			s.Pending = 0
			s.Flushing = true
		})

		results := inflight
		go func() {
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			defer cancel()
			results <- b.flush(flushCtx, batch)
		}()
	}

	settle := func(res flushResult) {
		inflight = nil
		failing = res.err != nil
		if res.err != nil {
			pending = append(res.batch, pending...)
		}
		b.record(res, len(pending))
	}

	for {
		select {
		case drafts := <-b.adds:
			pending = append(pending, drafts...)
			b.update(func(s *Stats) { s.Pending = len(pending) })
			if inflight == nil && !failing && len(pending) >= b.opts.Threshold {
				start()
			}

		case <-b.flushReq:
			if inflight == nil && len(pending) > 0 {
				start()
			}

		case res := <-inflight:
			settle(res)
			if res.err == nil && len(pending) >= b.opts.Threshold {
				start()
			}

		case <-ctx.Done():
			if inflight != nil {
				settle(<-inflight)
			}
			if len(pending) == 0 {
				return
			}

			logrus.Infof("Final flush of %d pending mentions", len(pending))
			finalCtx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
			res := b.flush(finalCtx, pending)
			cancel()
			pending = nil
			if res.err != nil {
				pending = res.batch
			}
			b.record(res, len(pending))
			if res.err != nil {
				logrus.Errorf("Final flush failed, %d mentions lost: %v", len(res.batch), res.err)
			}
			return
		}
	}
}

// flush enriches drafts that have no sentiment yet, in order, then upserts
// the batch. The returned batch carries the enrichment either way.
func (b *Buffer) flush(ctx context.Context, batch []models.Mention) flushResult {
	start := time.Now()

	enriched := 0
	for i := range batch {
		if batch[i].Sentiment != "" {
			continue
		}
		batch[i].Sentiment = b.classifier.Classify(ctx, batch[i].Text())
		enriched++
	}

	if err := b.store.UpsertBatch(ctx, batch); err != nil {
		return flushResult{batch: batch, err: fmt.Errorf("upsert %d mentions: %w", len(batch), err)}
	}

	logrus.WithFields(logrus.Fields{
		"mentions": len(batch),
		"enriched": enriched,
		"duration": time.Since(start).String(),
	}).Info("Flushed mentions")

	if b.archive != nil {
		if name, err := storage.ArchiveBatch(ctx, b.archive, batch, time.Now()); err != nil {
			logrus.Warnf("Failed to archive flushed batch: %v", err)
		} else {
			logrus.Debugf("Archived flushed batch as %s", name)
		}
	}

	return flushResult{batch: batch}
}

func (b *Buffer) record(res flushResult, pending int) {
	var failures int
	b.update(func(s *Stats) {
		s.Pending = pending
		s.Flushing = false
		if res.err != nil {
			s.FailedFlushes++
			s.ConsecutiveFailures++
			failures = s.ConsecutiveFailures
			return
		}
		s.Flushes++
		s.ConsecutiveFailures = 0
		s.Persisted += len(res.batch)
		s.LastFlush = time.Now().UTC()
	})

	if res.err == nil {
		return
	}

	logrus.Errorf("Flush failed (%d in a row), keeping %d mentions for retry: %v", failures, pending, res.err)
	if b.alerter != nil && b.opts.AlertAfterFailures > 0 && failures == b.opts.AlertAfterFailures {
		alert := &models.Alert{
			ID:        fmt.Sprintf("flush-failure-%d", time.Now().Unix()),
			Type:      "critical",
			Title:     "Mention persistence is failing",
			Message:   fmt.Sprintf("%d consecutive flushes failed; %d mentions are waiting. Last error: %v", failures, pending, res.err),
			CreatedAt: time.Now().UTC(),
		}
		go func() {
			if err := b.alerter.SendAlert(alert); err != nil {
				logrus.Errorf("Failed to send persistence alert: %v", err)
			}
		}()
	}
}

func (b *Buffer) update(fn func(s *Stats)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.stats)
}
