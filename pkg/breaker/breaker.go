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

// Package breaker implements the per-analyzer circuit breaker gate used
// by the Analyzer Supervisor (spec.md §4.2 step 2). It is adapted from
// the teacher's pkg/fabric.CircuitBreaker, renamed to the
// CLOSED/OPEN/HALF_OPEN vocabulary spec.md §3 uses, and swaps the
// teacher's hand-rolled exponential backoff loop for
// github.com/cenkalti/backoff/v5's ExponentialBackOff.
package breaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/Jinish2170/elliotAI-sub001/pkg/audit"
)

// State is the circuit breaker's current gate.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config configures one analyzer's breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures before
	// CLOSED -> OPEN; a timeout counts as one failure like any other.
	// Default 3 (spec.md §4.2).
	FailureThreshold int

	// SuccessThreshold is the number of consecutive HALF_OPEN
	// successes before HALF_OPEN -> CLOSED. Default 1.
	SuccessThreshold int

	// HalfOpenMaxCalls bounds how many probes HALF_OPEN admits.
	// Default 1.
	HalfOpenMaxCalls int

	// BaseOpenDuration is the OPEN timeout before the first
	// HALF_OPEN probe; doubles per subsequent open cycle
	// (exponential backoff), capped at MaxOpenDuration.
	BaseOpenDuration time.Duration
	MaxOpenDuration  time.Duration

	OnStateChange func(analyzer audit.AnalyzerKind, from, to State)
}

// DefaultConfig returns spec.md §4.2's defaults: failure_threshold=3,
// open_duration base 30s doubled per cycle, half_open_max_calls=1,
// success_threshold=1.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		HalfOpenMaxCalls: 1,
		BaseOpenDuration: 30 * time.Second,
		MaxOpenDuration:  5 * time.Minute,
	}
}

// Breaker is one analyzer's independent circuit breaker.
type Breaker struct {
	mu sync.Mutex

	analyzer audit.AnalyzerKind
	config   Config
	logger   *zap.Logger

	state            State
	consecutiveFails int
	consecutiveSucc  int
	openedAt         time.Time
	openDuration     time.Duration
	consecutiveOpens int
	halfOpenProbes   int

	backoffPolicy backoff.BackOff
}

// New creates a breaker for one analyzer slot.
func New(analyzer audit.AnalyzerKind, config Config, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Breaker{
		analyzer: analyzer,
		config:   config,
		logger:   logger,
		state:    Closed,
	}
	b.backoffPolicy = b.newBackoffPolicy()
	return b
}

func (b *Breaker) newBackoffPolicy() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = b.config.BaseOpenDuration
	eb.MaxInterval = b.config.MaxOpenDuration
	eb.Multiplier = 2.0
	eb.RandomizationFactor = 0
	return eb
}

// State returns the current gate (thread-safe).
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed right now, transitioning
// OPEN -> HALF_OPEN when the backoff interval has elapsed. When it
// returns false, err explains the remaining wait.
func (b *Breaker) Allow() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true, nil

	case Open:
		elapsed := time.Since(b.openedAt)
		wait := b.openDuration
		if elapsed >= wait {
			b.transition(HalfOpen)
			// This call is the first half-open probe.
			b.halfOpenProbes = 1
			return true, nil
		}
		return false, fmt.Errorf("circuit breaker open for %s: retry after %v", b.analyzer, wait-elapsed)

	case HalfOpen:
		if b.halfOpenProbes >= b.config.HalfOpenMaxCalls {
			return false, fmt.Errorf("circuit breaker half-open for %s: probe budget exhausted", b.analyzer)
		}
		b.halfOpenProbes++
		return true, nil

	default:
		return false, fmt.Errorf("circuit breaker: unknown state")
	}
}

// RecordSuccess reports a successful call outcome.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.consecutiveFails = 0
	case HalfOpen:
		b.consecutiveSucc++
		if b.consecutiveSucc >= b.config.SuccessThreshold {
			b.consecutiveOpens = 0
			b.consecutiveFails = 0
			b.consecutiveSucc = 0
			b.backoffPolicy.Reset()
			b.transition(Closed)
		}
	}
}

// RecordFailure reports a failed or timed-out call outcome.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.consecutiveFails++
		if b.consecutiveFails >= b.config.FailureThreshold {
			b.open()
		}
	case HalfOpen:
		b.open()
	}
}

func (b *Breaker) open() {
	b.consecutiveOpens++
	b.consecutiveSucc = 0
	b.openedAt = time.Now()
	d := b.backoffPolicy.NextBackOff()
	if d <= 0 {
		d = b.config.MaxOpenDuration
	}
	b.openDuration = d
	b.transition(Open)
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.logger.Info("circuit_breaker_transition",
		zap.String("analyzer", string(b.analyzer)),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Int("consecutive_opens", b.consecutiveOpens))
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.analyzer, from, to)
	}
}

// Manager owns one Breaker per analyzer kind, created lazily.
type Manager struct {
	mu       sync.RWMutex
	config   Config
	logger   *zap.Logger
	breakers map[audit.AnalyzerKind]*Breaker
}

// NewManager creates a Manager applying config to every breaker it
// lazily creates.
func NewManager(config Config, logger *zap.Logger) *Manager {
	return &Manager{
		config:   config,
		logger:   logger,
		breakers: make(map[audit.AnalyzerKind]*Breaker),
	}
}

// For returns (creating if necessary) the Breaker for kind.
func (m *Manager) For(kind audit.AnalyzerKind) *Breaker {
	m.mu.RLock()
	b, ok := m.breakers[kind]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[kind]; ok {
		return b
	}
	b = New(kind, m.config, m.logger)
	m.breakers[kind] = b
	return b
}

// States returns a snapshot of every known analyzer's breaker state.
func (m *Manager) States() map[audit.AnalyzerKind]State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[audit.AnalyzerKind]State, len(m.breakers))
	for k, b := range m.breakers {
		out[k] = b.State()
	}
	return out
}
