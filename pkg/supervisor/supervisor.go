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

// Package supervisor implements the Analyzer Supervisor (spec.md §4.2):
// it wraps every analyzer call with an adaptive timeout, a per-analyzer
// circuit breaker, and a well-formed fallback on failure so that no
// analyzer outage can ever starve the orchestration loop of a usable
// result. It is adapted from the teacher's pkg/llm.RateLimiter.Do and
// pkg/fabric.CircuitBreaker.Execute gate-then-call-then-record shape.
package supervisor

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Jinish2170/elliotAI-sub001/pkg/audit"
	"github.com/Jinish2170/elliotAI-sub001/pkg/breaker"
	"github.com/Jinish2170/elliotAI-sub001/pkg/telemetry"
)

// Config wires a Supervisor's collaborators. Breakers and History are
// created by the caller (usually the orchestrator) so their lifetime
// spans the whole process, not a single audit.
type Config struct {
	Breakers *breaker.Manager
	History  *ExecutionHistory
	Logger   *zap.Logger
	Tracer   telemetry.Tracer
	Features audit.Features

	// TimeoutOverrides replaces a (analyzer) slot's strategy-table
	// default before the adaptive EMA check runs, per internal/config.
	TimeoutOverrides map[audit.AnalyzerKind]time.Duration
}

// Supervisor mediates every call into an Analyzer.
type Supervisor struct {
	breakers *breaker.Manager
	history  *ExecutionHistory
	logger   *zap.Logger
	tracer   telemetry.Tracer
	features audit.Features
	overrides map[audit.AnalyzerKind]time.Duration
}

// New constructs a Supervisor. A nil Logger/Tracer defaults to no-ops,
// matching the teacher's NewOrchestrator guard.
func New(cfg Config) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.NoopTracer{}
	}
	breakers := cfg.Breakers
	if breakers == nil {
		breakers = breaker.NewManager(breaker.DefaultConfig(), logger)
	}
	history := cfg.History
	if history == nil {
		history = NewExecutionHistory(0)
	}
	return &Supervisor{
		breakers:  breakers,
		history:   history,
		logger:    logger,
		tracer:    tracer,
		features:  cfg.Features,
		overrides: cfg.TimeoutOverrides,
	}
}

// Outcome is what Execute returns: exactly one of Result or Degraded is
// non-nil, never both and never neither.
type Outcome struct {
	Result   *audit.Result
	Degraded *audit.DegradedResult
}

// Execute runs one analyzer call under the Supervisor's protection. It
// never returns an error for an ordinary analyzer failure — those are
// converted into a DegradedResult per spec.md §4.2 step 4, "the
// Supervisor must always produce a usable output." The returned error
// is reserved for caller-side misuse (a nil analyzer) or ctx already
// being done on entry.
func (s *Supervisor) Execute(ctx context.Context, siteType string, analyzer audit.Analyzer, input audit.AnalyzerInput) (Outcome, error) {
	if analyzer == nil {
		return Outcome{}, errors.New("supervisor: nil analyzer")
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	kind := analyzer.Kind()
	ctx, span := s.tracer.StartSpan(ctx, "supervisor.execute")
	span.SetAttribute("analyzer", string(kind))
	span.SetAttribute("site_type", siteType)
	defer s.tracer.EndSpan(span)

	timeout := s.resolveTimeout(siteType, kind, input.Complexity)
	b := s.breakers.For(kind)

	if s.features.CircuitBreaker {
		if ok, err := b.Allow(); !ok {
			s.logger.Warn("supervisor_breaker_rejected",
				zap.String("analyzer", string(kind)), zap.Error(err))
			return s.fallback(ctx, analyzer, input, audit.FailureBreakerOpen, false)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := analyzer.Execute(callCtx, input)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		if s.features.CircuitBreaker {
			b.RecordSuccess()
		}
		s.history.Record(siteType, kind, elapsed)
		s.tracer.RecordMetric("analyzer_duration_seconds", elapsed.Seconds(), map[string]string{"analyzer": string(kind)})
		return Outcome{Result: result}, nil

	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		if s.features.CircuitBreaker {
			b.RecordFailure()
		}
		s.logger.Warn("supervisor_analyzer_timeout",
			zap.String("analyzer", string(kind)), zap.Duration("timeout", timeout))
		return s.fallback(ctx, analyzer, input, audit.FailureTimeout, true)

	case errors.Is(ctx.Err(), context.Canceled):
		// Cancellation is the caller's decision, not the analyzer's
		// failure: the breaker is not credited a failure, and the
		// result is always the canned PARTIAL/0.5 degraded result
		// rather than whatever the analyzer's own fallback producer
		// would choose.
		s.logger.Warn("supervisor_analyzer_cancelled", zap.String("analyzer", string(kind)))
		return Outcome{Degraded: &audit.DegradedResult{
			ResultData:     map[string]any{},
			FallbackMode:   audit.FallbackPartial,
			MissingData:    []string{"all"},
			QualityPenalty: 0.5,
		}}, nil

	default:
		if s.features.CircuitBreaker {
			b.RecordFailure()
		}
		s.logger.Warn("supervisor_analyzer_error",
			zap.String("analyzer", string(kind)), zap.Error(err))
		return s.fallback(ctx, analyzer, input, audit.FailureException, false)
	}
}

func (s *Supervisor) fallback(ctx context.Context, analyzer audit.Analyzer, input audit.AnalyzerInput, mode audit.FailureMode, timedOut bool) (Outcome, error) {
	if !analyzer.SupportsFallback() {
		degraded := &audit.DegradedResult{
			ResultData:     map[string]any{},
			FallbackMode:   audit.FallbackNone,
			MissingData:    []string{"all"},
			QualityPenalty: audit.QualityPenaltyFor(audit.FallbackNone, timedOut),
		}
		return Outcome{Degraded: degraded}, nil
	}

	degraded, err := analyzer.FallbackFor(ctx, input, mode)
	if err != nil || degraded == nil {
		degraded = &audit.DegradedResult{
			ResultData:     map[string]any{},
			FallbackMode:   audit.FallbackNone,
			MissingData:    []string{"all"},
			QualityPenalty: audit.QualityPenaltyFor(audit.FallbackNone, timedOut),
		}
		s.logger.Error("supervisor_fallback_producer_failed", zap.Error(err))
	}
	if degraded.QualityPenalty == 0 {
		degraded.QualityPenalty = audit.QualityPenaltyFor(degraded.FallbackMode, timedOut)
	}
	return Outcome{Degraded: degraded}, nil
}

// resolveTimeout implements spec.md §4.2 step 1: pick the strategy-table
// default for the page's complexity band, apply any static override,
// then apply the EMA-driven adjustment when AdaptiveTimeout is enabled
// and the learned mean diverges from the default by more than 20%.
func (s *Supervisor) resolveTimeout(siteType string, kind audit.AnalyzerKind, complexity audit.ComplexitySignals) time.Duration {
	band := complexity.Band()
	table := audit.DefaultTimeoutTable[band]

	base := table.Defaults[kind]
	if override, ok := s.overrides[kind]; ok {
		base = override
	}
	tierMin := table.TierMinimums[kind]

	if !s.features.AdaptiveTimeout {
		return base
	}

	mean, ok := s.history.Mean(siteType, kind)
	if !ok {
		return base
	}

	diff := mean - base
	if diff < 0 {
		diff = -diff
	}
	if float64(diff) <= 0.2*float64(base) {
		return base
	}

	adjusted := time.Duration(float64(mean) * 1.2)
	if adjusted < tierMin {
		return tierMin
	}
	return adjusted
}
