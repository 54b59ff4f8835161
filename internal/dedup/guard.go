package dedup

import (
	"sync"
	"time"

	"storefront-sync/internal/observability"

	"golang.org/x/time/rate"
)

const (
	// Time after which an idle guard record is removed
	cleanupInterval = 5 * time.Minute
	// Record is considered idle if not attempted for this duration
	recordTTL = 15 * time.Minute
)

// guardEntry wraps a rate.Limiter with its window and last attempt time
type guardEntry struct {
	limiter    *rate.Limiter
	window     time.Duration
	lastAccess time.Time
}

// Guard suppresses redundant concurrent reads of the same resource. It is
// advisory: a denied caller gets no result to wait on, it simply skips its
// own fetch and relies on whatever the permitted caller produces.
type Guard struct {
	entries map[string]*guardEntry
	mu      sync.Mutex
	stopCh  chan struct{}
}

// NewGuard creates a fetch deduplication guard with automatic cleanup of
// idle records.
func NewGuard() *Guard {
	g := &Guard{
		entries: make(map[string]*guardEntry),
		stopCh:  make(chan struct{}),
	}

	go g.cleanupLoop()

	return g
}

// Attempt reports whether the caller may issue a fetch for resourceKey.
// The first attempt inside any window of the given length is permitted and
// recorded; later attempts inside the same window are suppressed. Changing
// the window for an existing key resets its record.
func (g *Guard) Attempt(resourceKey string, window time.Duration) bool {
	g.mu.Lock()
	entry, exists := g.entries[resourceKey]
	if !exists || entry.window != window {
		entry = &guardEntry{
			limiter: rate.NewLimiter(rate.Every(window), 1),
			window:  window,
		}
		g.entries[resourceKey] = entry
	}
	entry.lastAccess = time.Now()
	permit := entry.limiter.Allow()
	g.mu.Unlock()

	decision := "permitted"
	if !permit {
		decision = "suppressed"
	}
	observability.DedupAttemptsTotal.WithLabelValues(resourceKey, decision).Inc()

	return permit
}

// cleanupLoop periodically removes idle records to prevent unbounded growth
func (g *Guard) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopCh:
			return
		case <-ticker.C:
			g.cleanup()
		}
	}
}

// cleanup removes records that haven't been attempted recently
func (g *Guard) cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	for key, entry := range g.entries {
		if now.Sub(entry.lastAccess) > recordTTL {
			delete(g.entries, key)
		}
	}
}

// Stop stops the cleanup goroutine
func (g *Guard) Stop() {
	close(g.stopCh)
}
