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

// Package orchestration implements the Orchestrator (spec.md §4.1): the
// iterative, tier-aware state machine that drives Scout, Security,
// Vision, Graph, OSINT, and Judge through the Analyzer Supervisor,
// enforces the audit's iteration/page/time budget, consolidates
// findings through the Consensus Engine, and streams progress through
// the Progress Emitter. It is adapted from the teacher's
// pkg/orchestration.Orchestrator / IterativePipelineExecutor
// loop-with-routing-function shape, generalized from a fixed pipeline
// pattern to the audit's backtracking state machine.
package orchestration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Jinish2170/elliotAI-sub001/pkg/audit"
	"github.com/Jinish2170/elliotAI-sub001/pkg/breaker"
	"github.com/Jinish2170/elliotAI-sub001/pkg/consensus"
	"github.com/Jinish2170/elliotAI-sub001/pkg/progress"
	"github.com/Jinish2170/elliotAI-sub001/pkg/security"
	"github.com/Jinish2170/elliotAI-sub001/pkg/storage"
	"github.com/Jinish2170/elliotAI-sub001/pkg/supervisor"
	"github.com/Jinish2170/elliotAI-sub001/pkg/telemetry"
)

// Config wires the Orchestrator's long-lived collaborators. Scout,
// Vision, Graph, Judge, and OSINT are concrete analyzer implementations
// (browser automation, VLM calls, entity/OSINT lookups, verdict
// synthesis); this repository only consumes them through the Analyzer
// interface (spec.md §1 "deliberately out of scope"). OSINT is
// optional — nil disables that source entirely.
type Config struct {
	Scout  audit.Analyzer
	Vision audit.Analyzer
	Graph  audit.Analyzer
	Judge  audit.Analyzer
	OSINT  audit.Analyzer

	// SecurityModules is the DEEP/MEDIUM/FAST module catalog, treated
	// as configuration data rather than a fixed contract (spec.md §9).
	SecurityModules []security.ModuleSpec

	// Breakers and History are process-wide collaborators so circuit
	// and EMA state outlive any single audit (spec.md §9).
	Breakers *breaker.Manager
	History  *supervisor.ExecutionHistory

	// Cache, when set, backs the CACHED fallback mode for every
	// configured analyzer via a transparent wrapper (caching_analyzer.go).
	Cache *storage.Cache

	// Sink is the shared SSE publishing target every audit's Progress
	// Emitter writes to.
	Sink progress.Sink

	// JanitorSpec is the cron schedule the background history janitor
	// sweeps on (spec.md §9's "EMA and breaker state live inside the
	// Supervisor instance ... depending on configuration"). Empty
	// defaults to "@every 10m"; it is never disabled, matching the
	// teacher's always-on housekeeping goroutines.
	JanitorSpec string

	// CWECVSSMapper enriches surviving security findings with a cwe_id
	// and cvss_score (spec.md §4.3 step 1c). Nil disables enrichment.
	CWECVSSMapper audit.CWECVSSMapper

	Logger *zap.Logger
	Tracer telemetry.Tracer
}

// Orchestrator drives audits. One instance is shared across concurrent
// audits; each Audit call owns its own AuditState, Consensus Engine,
// and Progress Emitter.
type Orchestrator struct {
	scout  audit.Analyzer
	vision audit.Analyzer
	graph  audit.Analyzer
	judge  audit.Analyzer
	osint  audit.Analyzer

	modules []security.ModuleSpec
	sched   *security.Scheduler

	breakers *breaker.Manager
	history  *supervisor.ExecutionHistory
	cache    *storage.Cache
	sink     progress.Sink
	janitor  *supervisor.Janitor

	logger *zap.Logger
	tracer telemetry.Tracer
}

// New constructs an Orchestrator. Scout and Judge are mandatory; every
// other analyzer slot degrades gracefully when left nil (its phase is
// simply skipped, which the supervisor layer already treats as "no
// output" rather than an error).
func New(cfg Config) *Orchestrator {
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
		history = supervisor.NewExecutionHistory(0)
	}

	janitor, err := supervisor.NewJanitor(history, logger, cfg.JanitorSpec)
	if err != nil {
		logger.Error("orchestrator_janitor_schedule_invalid", zap.Error(err), zap.String("spec", cfg.JanitorSpec))
		janitor = nil
	} else {
		janitor.Start()
	}

	o := &Orchestrator{
		scout:    wrapWithCache(cfg.Scout, cfg.Cache),
		vision:   wrapWithCache(cfg.Vision, cfg.Cache),
		graph:    wrapWithCache(cfg.Graph, cfg.Cache),
		judge:    wrapWithCache(cfg.Judge, cfg.Cache),
		osint:    wrapWithCache(cfg.OSINT, cfg.Cache),
		modules:  cfg.SecurityModules,
		sched:    security.New(logger, cfg.CWECVSSMapper),
		breakers: breakers,
		history:  history,
		cache:    cfg.Cache,
		sink:     cfg.Sink,
		janitor:  janitor,
		logger:   logger,
		tracer:   tracer,
	}
	return o
}

// Close stops the background history janitor. Callers that own an
// Orchestrator for the lifetime of a long-running process should call
// this on shutdown; it is safe to call on an Orchestrator with no
// janitor (e.g. invalid JanitorSpec).
func (o *Orchestrator) Close() {
	if o.janitor != nil {
		o.janitor.Stop()
	}
}

// Preferences is the per-audit configuration surface (spec.md §6).
type Preferences struct {
	AdaptiveTimeout   bool
	CircuitBreaker    bool
	ProgressStreaming bool
	DualVerdict       bool

	TimeoutOverrides    map[audit.AnalyzerKind]time.Duration
	MinConsensusSources int

	RateLimitPerSec float64
	RateLimitBurst  float64
}

func (p Preferences) features() audit.Features {
	return audit.Features{
		AdaptiveTimeout:   p.AdaptiveTimeout,
		CircuitBreaker:    p.CircuitBreaker,
		ProgressStreaming: p.ProgressStreaming,
		DualVerdict:       p.DualVerdict,
	}
}

// Audit runs one audit to completion. It always closes the Progress
// Emitter and never leaves a goroutine running after return, regardless
// of which branch terminates the state machine (spec.md §4.1).
func (o *Orchestrator) Audit(ctx context.Context, url string, tier audit.Tier, prefs Preferences) (*AuditResult, error) {
	state := audit.NewState(url, tier, prefs.features())

	minSources := prefs.MinConsensusSources
	if minSources <= 0 {
		minSources = 2
	}
	cengine := consensus.New(minSources)

	emitterCfg := progress.Config{
		Logger:   o.logger,
		Sink:     o.sink,
		StreamID: uuid.New().String(),
		SiteType: "unknown",
	}
	if prefs.RateLimitBurst > 0 {
		emitterCfg.BucketCapacity = prefs.RateLimitBurst
	}
	if prefs.RateLimitPerSec > 0 {
		emitterCfg.RefillRate = prefs.RateLimitPerSec
	}
	emitter := progress.New(emitterCfg)

	sup := supervisor.New(supervisor.Config{
		Breakers:         o.breakers,
		History:          o.history,
		Logger:           o.logger,
		Tracer:           o.tracer,
		Features:         state.Features,
		TimeoutOverrides: prefs.TimeoutOverrides,
	})

	run := &auditRun{
		o:       o,
		state:   state,
		cengine: cengine,
		emitter: emitter,
		sup:     sup,
		deadline: audit.Budgets[tier].Deadline,
	}

	emitter.Emit(audit.NewEvent(audit.EventPhaseStart, audit.PriorityMedium, "audit", map[string]any{"url": url, "tier": string(tier)}))

	fatalErr := run.loop(ctx)

	result := run.buildResult()

	emitter.Emit(audit.NewEvent(audit.EventAuditResult, audit.PriorityCritical, "", result))
	closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	emitter.Close(closeCtx)
	cancel()

	result.Metadata.DroppedEvents = emitter.DroppedCount()
	return result, fatalErr
}
