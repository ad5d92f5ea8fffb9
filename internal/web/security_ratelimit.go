package web

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds configuration for the chat rate limiter.
type RateLimitConfig struct {
	// MessagesPerSecond is the sustained rate of chat messages per session key.
	// Zero or negative disables rate limiting.
	MessagesPerSecond float64
	// BurstSize is the maximum burst size allowed
	BurstSize int
	// CleanupInterval is how often to clean up old entries
	CleanupInterval time.Duration
	// EntryTTL is how long to keep entries after last access
	EntryTTL time.Duration
}

// DefaultRateLimitConfig returns sensible defaults for rate limiting.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MessagesPerSecond: 2,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
		EntryTTL:          10 * time.Minute,
	}
}

type rateLimitEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// ChatRateLimiter limits chat messages per session key. Every call to the
// agent costs model tokens, so a single browser tab cannot flood it.
// It is safe for concurrent use.
type ChatRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rateLimitEntry
	config   RateLimitConfig

	stopCleanup chan struct{}
	cleanupDone chan struct{}
	closeOnce   sync.Once
}

// NewChatRateLimiter creates a rate limiter with the given configuration.
func NewChatRateLimiter(config RateLimitConfig) *ChatRateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultRateLimitConfig().CleanupInterval
	}
	if config.EntryTTL <= 0 {
		config.EntryTTL = DefaultRateLimitConfig().EntryTTL
	}
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}
	rl := &ChatRateLimiter{
		limiters:    make(map[string]*rateLimitEntry),
		config:      config,
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (rl *ChatRateLimiter) Close() {
	rl.closeOnce.Do(func() {
		close(rl.stopCleanup)
		<-rl.cleanupDone
	})
}

// Allow reports whether a chat message for key may proceed now.
func (rl *ChatRateLimiter) Allow(key string) bool {
	if rl.config.MessagesPerSecond <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.limiters[key]
	if !exists {
		entry = &rateLimitEntry{
			limiter: rate.NewLimiter(rate.Limit(rl.config.MessagesPerSecond), rl.config.BurstSize),
		}
		rl.limiters[key] = entry
	}
	entry.lastAccess = time.Now()

	return entry.limiter.Allow()
}

func (rl *ChatRateLimiter) cleanupLoop() {
	defer close(rl.cleanupDone)

	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCleanup:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// cleanup removes entries that haven't been accessed recently.
func (rl *ChatRateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.config.EntryTTL)
	for key, entry := range rl.limiters {
		if entry.lastAccess.Before(cutoff) {
			delete(rl.limiters, key)
		}
	}
}

// Len returns the number of tracked session keys.
func (rl *ChatRateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
