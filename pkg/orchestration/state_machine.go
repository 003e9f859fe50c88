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

package orchestration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Jinish2170/elliotAI-sub001/pkg/audit"
	"github.com/Jinish2170/elliotAI-sub001/pkg/consensus"
	"github.com/Jinish2170/elliotAI-sub001/pkg/progress"
	"github.com/Jinish2170/elliotAI-sub001/pkg/supervisor"
)

// FatalError is returned from Audit only for the two error kinds
// spec.md §4.1 reserves for a non-nil return: CancelledByCaller and
// FatalInternal. Every other outcome — including forced verdicts from
// budget exhaustion — is reported through AuditResult, not an error.
type FatalError struct {
	Kind    audit.ErrorKind
	Message string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("orchestration: %s: %s", e.Kind, e.Message)
}

// routeAction is the sum type route_after_judge resolves to (spec.md §9
// "a sum type determines the next transition").
type routeAction string

const (
	routeEnd          routeAction = "end"
	routeLoop         routeAction = "loop"
	routeForceVerdict routeAction = "force_verdict"
)

// auditRun holds everything scoped to one Audit call — the mutable
// AuditState, its private Consensus Engine and Progress Emitter, and
// the Supervisor instance built from that call's Preferences.
type auditRun struct {
	o       *Orchestrator
	state   *audit.State
	cengine *consensus.Engine
	emitter *progress.Emitter
	sup     *supervisor.Supervisor

	deadline time.Duration

	// judgeMetrics is the most recent Judge Result.Metrics, carrying the
	// trust_score / signal_breakdown / dual-verdict fields buildResult
	// reads at the end of the run.
	judgeMetrics map[string]float64

	// agentMu guards completedAgents, which runSecurityVisionOSINT's
	// concurrent goroutines update when ExecutionMode is parallel-tier.
	agentMu         sync.Mutex
	completedAgents map[audit.AnalyzerKind]bool
}

// iterationRoster is the set of agents this iteration reports status
// for via EmitAgentStatus (spec.md §4.5's eta_seconds source set).
// Graph and Judge never call EmitAgentStatus, so they are excluded.
func (r *auditRun) iterationRoster() []audit.AnalyzerKind {
	roster := []audit.AnalyzerKind{audit.AnalyzerScout, audit.AnalyzerSecurity}
	if r.o.vision != nil {
		roster = append(roster, audit.AnalyzerVision)
	}
	if r.o.osint != nil {
		roster = append(roster, audit.AnalyzerOSINT)
	}
	return roster
}

// resetAgentTracking starts a fresh completed-agent set for the
// iteration about to run; call once per iteration before runScout.
func (r *auditRun) resetAgentTracking() {
	r.agentMu.Lock()
	r.completedAgents = make(map[audit.AnalyzerKind]bool)
	r.agentMu.Unlock()
}

// notYetCompleted returns the iteration roster minus every agent
// already marked complete, optionally also excluding self (used when
// self has just finished and should no longer count as pending).
func (r *auditRun) notYetCompleted(self audit.AnalyzerKind, selfJustCompleted bool) []audit.AnalyzerKind {
	r.agentMu.Lock()
	defer r.agentMu.Unlock()

	var out []audit.AnalyzerKind
	for _, k := range r.iterationRoster() {
		if r.completedAgents[k] {
			continue
		}
		if selfJustCompleted && k == self {
			continue
		}
		out = append(out, k)
	}
	return out
}

func (r *auditRun) markAgentCompleted(kind audit.AnalyzerKind) {
	r.agentMu.Lock()
	r.completedAgents[kind] = true
	r.agentMu.Unlock()
}

func (r *auditRun) elapsed() time.Duration { return time.Since(r.state.StartTime) }

func (r *auditRun) remaining() time.Duration {
	left := r.deadline - r.elapsed()
	if left < 0 {
		return 0
	}
	return left
}

func (r *auditRun) budgetExceeded() bool {
	return r.state.Iteration >= r.state.MaxIterations ||
		r.elapsed() >= r.deadline ||
		len(r.state.InvestigatedURLs) >= r.state.MaxPages
}

// loop drives the state machine described in spec.md §4.1 until a
// terminal status is reached. It returns a non-nil error only for
// CancelledByCaller or FatalInternal.
func (r *auditRun) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			r.state.Status = audit.StatusAborted
			r.state.RecordError("orchestrator", audit.ErrCancelledByCaller, err.Error())
			return &FatalError{Kind: audit.ErrCancelledByCaller, Message: err.Error()}
		}

		if r.budgetExceeded() {
			r.state.ForceVerdict = true
			r.finalizeWithJudge(ctx, true)
			r.state.Status = audit.StatusCompleted
			return nil
		}

		r.state.Iteration++
		r.resetAgentTracking()

		target, ok := r.nextTarget()
		if !ok {
			// Nothing left to investigate; render whatever verdict the
			// accumulated evidence supports.
			r.finalizeWithJudge(ctx, false)
			r.state.Status = audit.StatusCompleted
			return nil
		}

		if aborted := r.runScout(ctx, target); aborted {
			r.state.Status = audit.StatusError
			return nil
		}

		r.state.MarkInvestigated(target)

		r.runSecurityVisionOSINT(ctx, target)
		r.runGraph(ctx, target)
		r.ingestFindings(target)

		decision, degraded := r.runJudge(ctx, false)
		if degraded {
			// Judge itself is unusable this iteration; force the verdict
			// rather than spin — a failed Judge can never route forward.
			r.finalizeWithJudge(ctx, true)
			r.state.Status = audit.StatusCompleted
			return nil
		}
		r.state.JudgeDecision = decision
		for _, u := range decision.NewPendingURLs {
			r.state.EnqueuePending(u)
		}

		switch r.routeAfterJudge(decision) {
		case routeEnd:
			r.state.Status = audit.StatusCompleted
			return nil
		case routeForceVerdict:
			r.state.ForceVerdict = true
			r.finalizeWithJudge(ctx, true)
			r.state.Status = audit.StatusCompleted
			return nil
		case routeLoop:
			continue
		}
	}
}

// nextTarget pops the next pending URL to investigate, or reports none
// remain.
func (r *auditRun) nextTarget() (string, bool) {
	if len(r.state.PendingURLs) == 0 {
		return "", false
	}
	return r.state.PendingURLs[0], true
}

// routeAfterJudge implements spec.md §4.1's route_after_judge, including
// its tie-break rule: prefer terminal states, and between REQUEST_MORE
// and FORCE_VERDICT prefer FORCE_VERDICT once either budget is
// exhausted.
func (r *auditRun) routeAfterJudge(decision *audit.JudgeDecision) routeAction {
	if decision == nil || decision.Action == audit.ActionRenderVerdict || r.state.Status.IsTerminal() {
		return routeEnd
	}
	if decision.Action == audit.ActionRequestMoreInvestigation &&
		len(r.state.InvestigatedURLs) < r.state.MaxPages &&
		len(r.state.PendingURLs) > 0 {
		return routeLoop
	}
	return routeForceVerdict
}

// finalizeWithJudge calls Judge once more with forceVerdict set, for
// the FORCE_VERDICT and budget-exhaustion paths. A failure here leaves
// state.JudgeDecision as it was: the previous iteration's decision if
// there is one, otherwise nil.
func (r *auditRun) finalizeWithJudge(ctx context.Context, forced bool) {
	decision, degraded := r.runJudge(ctx, forced)
	if !degraded {
		decision.Forced = forced
		r.state.JudgeDecision = decision
	}
}

// runScout executes one Scout pass over target and reports whether
// route_after_scout requires aborting the whole audit (scout_failures
// ≥ 3 with no successful scout result yet).
func (r *auditRun) runScout(ctx context.Context, target string) (abort bool) {
	if r.o.scout == nil {
		return false
	}
	r.emitter.EmitAgentStatus(audit.AnalyzerScout, "started", r.notYetCompleted(audit.AnalyzerScout, false))

	outcome, err := r.sup.Execute(ctx, r.state.SiteType, r.o.scout, audit.AnalyzerInput{URL: target})
	if err != nil {
		r.state.RecordError("scout", audit.ErrFatalInternal, err.Error())
		return false
	}

	if outcome.Result != nil {
		r.state.ScoutFailures = 0
		r.state.ScoutResults[target] = &audit.AnalyzerOutput{Origin: "scout", Findings: outcome.Result.Findings, Metrics: outcome.Result.Metrics}
		if outcome.Result.SiteType != "" {
			r.state.SiteType = outcome.Result.SiteType
			r.state.SiteTypeConfidence = outcome.Result.SiteTypeConfidence
		}
		r.markAgentCompleted(audit.AnalyzerScout)
		r.emitter.EmitAgentStatus(audit.AnalyzerScout, "completed", r.notYetCompleted(audit.AnalyzerScout, true))
		return false
	}

	r.state.ScoutFailures++
	r.state.RecordError("scout", audit.ErrAnalyzerTransient, "scout produced a degraded result")
	r.state.RecordDegraded("scout", outcome.Degraded.QualityPenalty)
	r.state.ScoutResults[target] = &audit.AnalyzerOutput{Origin: "scout", Degraded: outcome.Degraded}
	r.emitter.Emit(audit.NewEvent(audit.EventPhaseError, audit.PriorityHigh, "scout", outcome.Degraded))

	return r.state.ScoutFailures >= 3 && len(successfulScouts(r.state.ScoutResults)) == 0
}

func successfulScouts(results map[string]*audit.AnalyzerOutput) []*audit.AnalyzerOutput {
	var out []*audit.AnalyzerOutput
	for _, o := range results {
		if o.Degraded == nil {
			out = append(out, o)
		}
	}
	return out
}

// runSecurityVisionOSINT executes the SECURITY ∥ VISION leg of one
// iteration. When ExecutionMode is parallel-tier, Security, Vision, and
// OSINT (if configured) run concurrently; in cooperative mode they run
// in sequence. Either way, results only land in AuditState at this
// phase's boundary — no sibling ever observes partially-merged state
// (spec.md §4.1).
func (r *auditRun) runSecurityVisionOSINT(ctx context.Context, target string) {
	scout := r.state.ScoutResults[target]
	input := audit.AnalyzerInput{URL: target, ScoutResult: scout}

	sec := &securityAnalyzer{sched: r.o.sched, modules: r.o.modules, auditDeadline: r.remaining}

	type call struct {
		kind audit.Analyzer
		key  string
	}
	calls := []call{{sec, "security"}}
	if r.o.vision != nil {
		calls = append(calls, call{r.o.vision, "vision"})
	}
	if r.o.osint != nil {
		calls = append(calls, call{r.o.osint, "osint"})
	}

	run := func(c call) {
		r.emitter.EmitAgentStatus(c.kind.Kind(), "started", r.notYetCompleted(c.kind.Kind(), false))
		start := time.Now()
		outcome, err := r.sup.Execute(ctx, r.state.SiteType, c.kind, input)
		r.emitter.RecordAgentDuration(c.kind.Kind(), time.Since(start))
		if err != nil {
			r.state.RecordError(c.key, audit.ErrFatalInternal, err.Error())
			return
		}
		r.mergeAnalyzerOutcome(c.key, target, outcome)
		r.markAgentCompleted(c.kind.Kind())
		r.emitter.EmitAgentStatus(c.kind.Kind(), "completed", r.notYetCompleted(c.kind.Kind(), true))
	}

	if r.state.ExecutionMode == audit.ExecutionParallelTier {
		var wg sync.WaitGroup
		for _, c := range calls {
			wg.Add(1)
			go func(c call) {
				defer wg.Done()
				run(c)
			}(c)
		}
		wg.Wait()
		return
	}

	for _, c := range calls {
		run(c)
	}
}

func (r *auditRun) mergeAnalyzerOutcome(key, target string, outcome supervisor.Outcome) {
	if outcome.Result != nil {
		if key == "vision" {
			r.state.VisionResult = &audit.AnalyzerOutput{Origin: key, Findings: outcome.Result.Findings, Metrics: outcome.Result.Metrics}
			return
		}
		r.state.SecurityResults[key+":"+target] = &audit.AnalyzerOutput{Origin: key, Findings: outcome.Result.Findings, Metrics: outcome.Result.Metrics}
		return
	}

	r.state.RecordDegraded(key, outcome.Degraded.QualityPenalty)
	r.emitter.Emit(audit.NewEvent(audit.EventPhaseError, audit.PriorityHigh, key, outcome.Degraded))
	out := &audit.AnalyzerOutput{Origin: key, Degraded: outcome.Degraded}
	if key == "vision" {
		r.state.VisionResult = out
		return
	}
	r.state.SecurityResults[key+":"+target] = out
}

func (r *auditRun) runGraph(ctx context.Context, target string) {
	if r.o.graph == nil {
		return
	}
	input := audit.AnalyzerInput{URL: target, ScoutResult: r.state.ScoutResults[target]}
	outcome, err := r.sup.Execute(ctx, r.state.SiteType, r.o.graph, input)
	if err != nil {
		r.state.RecordError("graph", audit.ErrFatalInternal, err.Error())
		return
	}
	if outcome.Result != nil {
		r.state.GraphResult = &audit.AnalyzerOutput{Origin: "graph", Findings: outcome.Result.Findings, Metrics: outcome.Result.Metrics}
		return
	}
	r.state.RecordDegraded("graph", outcome.Degraded.QualityPenalty)
	r.state.GraphResult = &audit.AnalyzerOutput{Origin: "graph", Degraded: outcome.Degraded}
}

// ingestFindings feeds every Security/Vision/OSINT finding produced
// this iteration into the Consensus Engine. Scout, Graph, and Judge
// findings are never consensus inputs (spec.md §3 limits source_agent
// to {vision, osint, security}).
func (r *auditRun) ingestFindings(target string) {
	if r.state.VisionResult != nil {
		for _, f := range r.state.VisionResult.Findings {
			r.cengine.Ingest(f)
		}
	}
	for _, key := range []string{"security", "osint"} {
		out, ok := r.state.SecurityResults[key+":"+target]
		if !ok {
			continue
		}
		for _, f := range out.Findings {
			r.cengine.Ingest(f)
		}
	}
}

// runJudge executes the Judge analyzer, supplying the current
// consensus snapshot. degraded=true means Judge itself produced a
// DegradedResult instead of a decision.
func (r *auditRun) runJudge(ctx context.Context, forceVerdict bool) (decision *audit.JudgeDecision, degraded bool) {
	if r.o.judge == nil {
		return nil, true
	}

	var findings []audit.Finding
	for _, res := range r.cengine.Snapshot() {
		findings = append(findings, res.Sources...)
	}

	input := audit.AnalyzerInput{URL: r.state.URL, ConsensusFindings: findings, ForceVerdict: forceVerdict}
	outcome, err := r.sup.Execute(ctx, r.state.SiteType, r.o.judge, input)
	if err != nil {
		r.state.RecordError("judge", audit.ErrFatalInternal, err.Error())
		return nil, true
	}
	if outcome.Result == nil || outcome.Result.Decision == nil {
		if outcome.Degraded != nil {
			r.state.RecordDegraded("judge", outcome.Degraded.QualityPenalty)
		}
		return nil, true
	}
	r.judgeMetrics = outcome.Result.Metrics
	return outcome.Result.Decision, false
}
