package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFlusher struct {
	requests int64
}

func (f *countingFlusher) RequestFlush() {
	atomic.AddInt64(&f.requests, 1)
}

type staticMetrics struct {
	reads int64
}

func (m *staticMetrics) GetMetrics() string {
	atomic.AddInt64(&m.reads, 1)
	return `{"pending":0}`
}

func TestService_PeriodicFlush(t *testing.T) {
	flusher := &countingFlusher{}
	metrics := &staticMetrics{}

	s := NewService(flusher, metrics, time.Second, time.Second)
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&flusher.requests) >= 2
	}, 5*time.Second, 50*time.Millisecond)
	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&metrics.reads) >= 1
	}, 5*time.Second, 50*time.Millisecond)
}

func TestService_RejectsSubSecondInterval(t *testing.T) {
	s := NewService(&countingFlusher{}, nil, 100*time.Millisecond, 0)
	assert.Error(t, s.Start())
}

type countingDigest struct {
	runs int64
}

func (d *countingDigest) RunDigest(context.Context) error {
	atomic.AddInt64(&d.runs, 1)
	return nil
}

func TestService_ScheduleDigest(t *testing.T) {
	digest := &countingDigest{}

	s := NewService(&countingFlusher{}, nil, time.Minute, 0)
	require.NoError(t, s.ScheduleDigest("* * * * * *", digest))
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&digest.runs) >= 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestService_ScheduleDigestValidation(t *testing.T) {
	s := NewService(&countingFlusher{}, nil, time.Minute, 0)
	assert.NoError(t, s.ScheduleDigest("", &countingDigest{}))
	assert.Error(t, s.ScheduleDigest("0 9 * * *", &countingDigest{}))
	assert.NoError(t, s.ScheduleDigest("0 0 9 * * MON-FRI", &countingDigest{}))
}

func TestEvery(t *testing.T) {
	assert.Equal(t, "@every 30s", every(30*time.Second))
	assert.Equal(t, "@every 5m0s", every(5*time.Minute))
}
