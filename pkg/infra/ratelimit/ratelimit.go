// Package ratelimit provides a per-key token bucket used to throttle API
// clients by remote address.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

type Limiter interface {
	Allow(key string) (bool, error)
	Reset(key string)
}

// TokenBucketLimiter refills each key's bucket at rate tokens per second up
// to capacity. Buckets are created on first use.
type TokenBucketLimiter struct {
	rate     float64
	capacity float64
	mu       sync.Mutex
	buckets  map[string]*bucket
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

func New(rate float64, capacity int) Limiter {
	if rate <= 0 {
		rate = 1.0
	}
	if capacity <= 0 {
		capacity = 1
	}
	return &TokenBucketLimiter{
		rate:     rate,
		capacity: float64(capacity),
		buckets:  make(map[string]*bucket),
	}
}

func (l *TokenBucketLimiter) Allow(key string) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("key cannot be empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, exists := l.buckets[key]
	if !exists {
		l.buckets[key] = &bucket{tokens: l.capacity - 1, lastUpdate: now}
		return true, nil
	}

	b.tokens += now.Sub(b.lastUpdate).Seconds() * l.rate
	if b.tokens > l.capacity {
		b.tokens = l.capacity
	}
	b.lastUpdate = now

	if b.tokens >= 1 {
		b.tokens--
		return true, nil
	}
	return false, nil
}

func (l *TokenBucketLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.buckets, key)
}
