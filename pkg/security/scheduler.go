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

package security

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Jinish2170/elliotAI-sub001/pkg/audit"
	"github.com/Jinish2170/elliotAI-sub001/pkg/breaker"
	"github.com/Jinish2170/elliotAI-sub001/pkg/supervisor"
)

// Scheduler runs a security module catalog tier by tier. It holds its
// own breaker.Manager and ExecutionHistory so that a module's breaker
// persists across audits (spec.md §4.3 step 1a: every module is run
// "via the Analyzer Supervisor, treating each module as a mini-analyzer
// with its own breaker") and may be shared across concurrent audits.
type Scheduler struct {
	logger   *zap.Logger
	breakers *breaker.Manager
	history  *supervisor.ExecutionHistory
	mapper   audit.CWECVSSMapper
}

// New constructs a Scheduler. A nil logger defaults to no-op. A nil
// mapper disables the cwe_id/cvss_score enrichment step — findings are
// returned exactly as their module produced them.
func New(logger *zap.Logger, mapper audit.CWECVSSMapper) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		logger:   logger,
		breakers: breaker.NewManager(breaker.DefaultConfig(), logger),
		history:  supervisor.NewExecutionHistory(0),
		mapper:   mapper,
	}
}

// moduleKind mints the per-module Supervisor/breaker slot, keyed
// distinctly from the six core AnalyzerKinds so a chronically failing
// module trips only its own breaker.
func moduleKind(moduleID string) audit.AnalyzerKind {
	return audit.AnalyzerKind("security_module:" + moduleID)
}

// Run executes modules tier by tier in Order. auditDeadline is the
// remaining wall-clock budget for the whole audit (not just security);
// it drives the DEEP skip-ahead rule in spec.md §4.3 step 2. Returned
// findings are sorted per spec.md §4.3's deterministic ordering:
// (severity desc, cvss_score desc, category asc).
func (s *Scheduler) Run(ctx context.Context, modules []ModuleSpec, input audit.AnalyzerInput, auditDeadline time.Duration) ([]audit.Finding, []ModuleOutcome) {
	overrides := make(map[audit.AnalyzerKind]time.Duration, len(modules))
	for _, m := range modules {
		overrides[moduleKind(m.ID)] = m.timeoutFor()
	}
	sup := supervisor.New(supervisor.Config{
		Breakers:         s.breakers,
		History:          s.history,
		Logger:           s.logger,
		Features:         audit.Features{CircuitBreaker: true, AdaptiveTimeout: true},
		TimeoutOverrides: overrides,
	})

	byTier := make(map[Tier][]ModuleSpec)
	for _, m := range modules {
		byTier[m.Tier] = append(byTier[m.Tier], m)
	}

	var allOutcomes []ModuleOutcome
	var allFindings []audit.Finding
	start := time.Now()

	for _, tier := range Order {
		tierModules := byTier[tier]
		if len(tierModules) == 0 {
			continue
		}

		policy := Policies[tier]

		if tier == TierDeep && time.Since(start)+policy.Deadline > auditDeadline {
			s.logger.Warn("security_deep_tier_skipped",
				zap.Duration("elapsed", time.Since(start)),
				zap.Duration("remaining_budget", auditDeadline))
			for _, m := range tierModules {
				allOutcomes = append(allOutcomes, ModuleOutcome{
					ModuleID: m.ID,
					Tier:     tier,
					Degraded: &audit.DegradedResult{
						ResultData:     map[string]any{},
						FallbackMode:   audit.FallbackSimplified,
						MissingData:    []string{m.ID},
						QualityPenalty: audit.QualityPenaltyFor(audit.FallbackSimplified, false),
					},
				})
			}
			continue
		}

		outcomes := s.runTier(ctx, sup, tier, tierModules, input, policy.Deadline)
		allOutcomes = append(allOutcomes, outcomes...)
		for _, o := range outcomes {
			allFindings = append(allFindings, o.Findings...)
		}
	}

	s.applyCWECVSS(allFindings)
	sortFindings(allFindings)
	return allFindings, allOutcomes
}

// applyCWECVSS enriches every surviving finding with a cwe_id/cvss_score
// via the injected mapper (spec.md §4.3 step 1c), without overwriting
// a value a module already set.
func (s *Scheduler) applyCWECVSS(findings []audit.Finding) {
	if s.mapper == nil {
		return
	}
	for i := range findings {
		f := &findings[i]
		cweID, cvss := s.mapper(f.Category, f.Severity, f.Evidence)
		if f.CWEID == "" {
			f.CWEID = cweID
		}
		if f.CVSSScore == nil {
			f.CVSSScore = &cvss
		}
	}
}

// runTier executes every module in one tier concurrently, bounded by a
// semaphore sized to the tier (spec.md §5: "no more than the number of
// modules in the currently executing tier"), and enforces the tier
// deadline.
func (s *Scheduler) runTier(ctx context.Context, sup *supervisor.Supervisor, tier Tier, modules []ModuleSpec, input audit.AnalyzerInput, deadline time.Duration) []ModuleOutcome {
	tierCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	sem := semaphore.NewWeighted(int64(len(modules)))
	outcomes := make([]ModuleOutcome, len(modules))

	var wg sync.WaitGroup
	for i, m := range modules {
		if err := sem.Acquire(tierCtx, 1); err != nil {
			outcomes[i] = s.timedOutOutcome(m)
			continue
		}
		wg.Add(1)
		go func(i int, m ModuleSpec) {
			defer wg.Done()
			defer sem.Release(1)
			outcomes[i] = s.runModule(tierCtx, sup, m, input)
		}(i, m)
	}
	wg.Wait()

	return outcomes
}

// runModule runs one module as a mini-analyzer under the Scheduler's
// own Supervisor: the module gets its own timeout (from its tier
// policy or override), its own breaker slot keyed by module ID, and a
// well-formed DegradedResult on failure — the same protection model
// spec.md §4.2 gives every top-level analyzer.
func (s *Scheduler) runModule(ctx context.Context, sup *supervisor.Supervisor, m ModuleSpec, input audit.AnalyzerInput) ModuleOutcome {
	outcome, err := sup.Execute(ctx, "", &moduleAnalyzer{spec: m}, input)
	if err != nil {
		s.logger.Warn("security_module_call_error", zap.String("module", m.ID), zap.Error(err))
		return ModuleOutcome{ModuleID: m.ID, Tier: m.Tier, Err: err, Degraded: noneDegraded(m.ID)}
	}
	if outcome.Result != nil {
		return ModuleOutcome{ModuleID: m.ID, Tier: m.Tier, Findings: outcome.Result.Findings}
	}

	degraded := outcome.Degraded
	degraded.MissingData = []string{m.ID}
	s.logger.Warn("security_module_degraded",
		zap.String("module", m.ID), zap.String("fallback_mode", string(degraded.FallbackMode)))
	return ModuleOutcome{ModuleID: m.ID, Tier: m.Tier, Degraded: degraded}
}

func (s *Scheduler) timedOutOutcome(m ModuleSpec) ModuleOutcome {
	s.logger.Warn("security_module_timeout", zap.String("module", m.ID))
	return ModuleOutcome{
		ModuleID: m.ID,
		Tier:     m.Tier,
		Degraded: &audit.DegradedResult{
			ResultData:     map[string]any{},
			FallbackMode:   audit.FallbackNone,
			MissingData:    []string{m.ID},
			QualityPenalty: audit.QualityPenaltyFor(audit.FallbackNone, true),
		},
	}
}

func noneDegraded(moduleID string) *audit.DegradedResult {
	return &audit.DegradedResult{
		ResultData:     map[string]any{},
		FallbackMode:   audit.FallbackNone,
		MissingData:    []string{moduleID},
		QualityPenalty: audit.QualityPenaltyFor(audit.FallbackNone, false),
	}
}

// sortFindings orders findings by (severity desc, cvss_score desc,
// category asc) per spec.md §4.3, making output deterministic for
// testing regardless of tier-internal goroutine completion order.
func sortFindings(findings []audit.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		av, bv := cvssOf(a), cvssOf(b)
		if av != bv {
			return av > bv
		}
		return a.Category < b.Category
	})
}

func cvssOf(f audit.Finding) float64 {
	if f.CVSSScore == nil {
		return 0
	}
	return *f.CVSSScore
}
