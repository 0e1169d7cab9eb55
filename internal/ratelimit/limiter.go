package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Window is the length of the sliding admission window
const Window = time.Minute

// Limiter admits at most Budget requests in any rolling one-minute window.
// Use one Limiter per remote endpoint; budgets are set by each remote service.
type Limiter struct {
	name   string
	budget int

	mu     sync.Mutex
	grants []time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a limiter for the named endpoint. A budget of zero or less
// disables limiting.
func New(name string, requestsPerMinute int) *Limiter {
	return &Limiter{
		name:   name,
		budget: requestsPerMinute,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Acquire blocks until a request is admitted or ctx is done
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.budget <= 0 {
		return ctx.Err()
	}

	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)

		if len(l.grants) < l.budget {
			l.grants = append(l.grants, now)
			l.mu.Unlock()
			return nil
		}

		wait := Window - now.Sub(l.grants[0])
		l.mu.Unlock()

		logrus.Debugf("Rate limit reached for %s, sleeping for %v", l.name, wait)
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// InWindow returns the number of grants in the current window
func (l *Limiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())
	return len(l.grants)
}

// prune drops grants that are a full window old. Callers hold l.mu.
func (l *Limiter) prune(now time.Time) {
	keep := 0
	for keep < len(l.grants) && now.Sub(l.grants[keep]) >= Window {
		keep++
	}
	if keep > 0 {
		l.grants = append(l.grants[:0], l.grants[keep:]...)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
