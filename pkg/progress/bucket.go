// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package progress implements the Progress Emitter (spec.md §4.5): a
// rate-limited, priority-aware event stream with finding batching,
// screenshot compression, heartbeat pacing, and completion-time
// estimation. It is adapted from the teacher's pkg/llm.RateLimiter
// token-bucket, narrowed from per-request-priority LLM call admission
// to per-event-priority progress event admission.
package progress

import (
	"sync"
	"time"
)

// TokenBucket is a capacity/refill-rate limiter shared across every
// Emit call on one Emitter (spec.md §5: "its token bucket is a shared
// atomic counter").
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewTokenBucket creates a bucket starting full, per spec.md §4.5's
// defaults (capacity=10, refill=5/sec).
func NewTokenBucket(capacity float64, refillRate float64) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// TryAcquire consumes one token if available, returning false
// otherwise. It never blocks — the caller queues on failure.
func (b *TokenBucket) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (b *TokenBucket) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
}

// Available reports the current (possibly fractional) token count,
// useful for tests and metrics.
func (b *TokenBucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return b.tokens
}
