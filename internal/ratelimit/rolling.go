package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/RussellLuo/slidingwindow"
	"github.com/puzpuzpuz/xsync/v3"
)

const idleSweepInterval = time.Minute

type rollingClient struct {
	minute   *slidingwindow.Limiter
	hour     *slidingwindow.Limiter
	stop     []slidingwindow.StopFunc
	lastSeen time.Time
	mu       sync.Mutex
}

func localWindow() (slidingwindow.Window, slidingwindow.StopFunc) {
	return slidingwindow.NewLocalWindow()
}

// RollingLimiter keeps a sliding minute window and a sliding hour window per
// client in process memory. Clients idle for longer than an hour are
// forgotten.
type RollingLimiter struct {
	clients *xsync.MapOf[string, *rollingClient]
	mu      sync.RWMutex
	limits  Limits
	now     func() time.Time
	stopCh  chan struct{}
	once    sync.Once
}

// NewRollingLimiter creates a RollingLimiter and starts its idle sweeper.
// Call Close to stop it.
func NewRollingLimiter(limits Limits) *RollingLimiter {
	l := &RollingLimiter{
		clients: xsync.NewMapOf[string, *rollingClient](),
		limits:  limits,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

func (l *RollingLimiter) newClient() *rollingClient {
	limits := l.Limits()
	minute, stopMinute := slidingwindow.NewLimiter(time.Minute, int64(limits.PerMinute), localWindow)
	hour, stopHour := slidingwindow.NewLimiter(time.Hour, int64(limits.PerHour), localWindow)
	return &rollingClient{
		minute: minute,
		hour:   hour,
		stop:   []slidingwindow.StopFunc{stopMinute, stopHour},
	}
}

// Allow implements Limiter.
func (l *RollingLimiter) Allow(_ context.Context, clientID string) (*Result, error) {
	c, _ := l.clients.LoadOrCompute(clientID, l.newClient)

	now := l.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen = now

	if !c.minute.AllowN(now, 1) {
		return reject(int(c.minute.Limit()), WindowMinute), nil
	}
	if !c.hour.AllowN(now, 1) {
		return reject(int(c.hour.Limit()), WindowHour), nil
	}
	return &Result{Allowed: true, Limit: int(c.minute.Limit()), Remaining: -1}, nil
}

// SetLimits implements Limiter.
func (l *RollingLimiter) SetLimits(limits Limits) {
	l.mu.Lock()
	l.limits = limits
	l.mu.Unlock()

	l.clients.Range(func(_ string, c *rollingClient) bool {
		c.minute.SetLimit(int64(limits.PerMinute))
		c.hour.SetLimit(int64(limits.PerHour))
		return true
	})
}

// Limits implements Limiter.
func (l *RollingLimiter) Limits() Limits {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limits
}

// Clients returns the number of tracked clients.
func (l *RollingLimiter) Clients() int {
	return l.clients.Size()
}

func (l *RollingLimiter) sweepLoop() {
	ticker := time.NewTicker(idleSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep(time.Hour)
		case <-l.stopCh:
			return
		}
	}
}

func (l *RollingLimiter) sweep(idle time.Duration) {
	cutoff := l.now().Add(-idle)
	l.clients.Range(func(id string, c *rollingClient) bool {
		c.mu.Lock()
		stale := c.lastSeen.Before(cutoff)
		c.mu.Unlock()
		if stale {
			l.clients.Delete(id)
			for _, stop := range c.stop {
				stop()
			}
		}
		return true
	})
}

// Close stops the sweeper.
func (l *RollingLimiter) Close() error {
	l.once.Do(func() {
		close(l.stopCh)
	})
	return nil
}
