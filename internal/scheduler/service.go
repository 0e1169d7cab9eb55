package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Flusher is the buffer side of the periodic trigger
type Flusher interface {
	RequestFlush()
}

// MetricsReporter exposes pipeline counters for the periodic status log
type MetricsReporter interface {
	GetMetrics() string
}

// DigestRunner builds and sends the periodic mention digest
type DigestRunner interface {
	RunDigest(ctx context.Context) error
}

// Service runs the periodic flush trigger and status log
type Service struct {
	flusher         Flusher
	metrics         MetricsReporter
	flushInterval   time.Duration
	metricsInterval time.Duration
	cron            *cron.Cron
}

// NewService creates a scheduler. metrics may be nil.
func NewService(flusher Flusher, metrics MetricsReporter, flushInterval, metricsInterval time.Duration) *Service {
	return &Service{
		flusher:         flusher,
		metrics:         metrics,
		flushInterval:   flushInterval,
		metricsInterval: metricsInterval,
		cron:            cron.New(cron.WithSeconds()),
	}
}

// Start registers the jobs and starts the cron runner
func (s *Service) Start() error {
	if s.flushInterval < time.Second {
		return fmt.Errorf("flush interval must be at least 1s, got %v", s.flushInterval)
	}

	_, err := s.cron.AddFunc(every(s.flushInterval), func() {
		logrus.Debug("Scheduled flush")
		s.flusher.RequestFlush()
	})
	if err != nil {
		return err
	}

	if s.metrics != nil && s.metricsInterval >= time.Second {
		_, err = s.cron.AddFunc(every(s.metricsInterval), func() {
			logrus.Infof("Pipeline status: %s", s.metrics.GetMetrics())
		})
		if err != nil {
			return err
		}
	}

	s.cron.Start()
	logrus.Infof("Scheduler started: flush every %v", s.flushInterval)
	return nil
}

// ScheduleDigest adds the digest job using a six-field cron spec
// (seconds first). An empty spec leaves the digest disabled.
func (s *Service) ScheduleDigest(spec string, runner DigestRunner) error {
	if spec == "" {
		return nil
	}

	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if err := runner.RunDigest(ctx); err != nil {
			logrus.Errorf("Digest failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid digest schedule %q: %w", spec, err)
	}

	logrus.Infof("Digest scheduled: %s", spec)
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		logrus.Info("Scheduler stopped")
	}
}

func every(d time.Duration) string {
	return "@every " + d.String()
}
