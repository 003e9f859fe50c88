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

// Package audit contains the domain types shared across the orchestration,
// supervisor, security, consensus, and progress packages. It exists to
// break import cycles, the same role loom's pkg/types plays for pkg/agent
// and pkg/llm.
package audit

import "time"

// Tier selects the audit's overall budgets.
type Tier string

const (
	TierQuick    Tier = "quick"
	TierStandard Tier = "standard"
	TierDeep     Tier = "deep"
)

// Budget holds the iteration/page/time limits for a Tier.
type Budget struct {
	MaxIterations int
	MaxPages      int
	Deadline      time.Duration
}

// Budgets maps each Tier to its default Budget. internal/config does not
// load budgets; callers that want other limits change this map.
var Budgets = map[Tier]Budget{
	TierQuick:    {MaxIterations: 1, MaxPages: 1, Deadline: 45 * time.Second},
	TierStandard: {MaxIterations: 3, MaxPages: 5, Deadline: 3 * time.Minute},
	TierDeep:     {MaxIterations: 5, MaxPages: 10, Deadline: 8 * time.Minute},
}

// Status is the terminal-or-not state of an audit.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
	StatusError     Status = "error"
)

// IsTerminal reports whether the status is a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusAborted || s == StatusError
}

// ExecutionMode selects how a phase's independent subtasks are scheduled.
type ExecutionMode string

const (
	ExecutionCooperative ExecutionMode = "cooperative"
	ExecutionParallelTier ExecutionMode = "parallel-tier"
)

// Features are the optional flags supplied in the audit's configuration
// surface (spec.md §6).
type Features struct {
	AdaptiveTimeout    bool
	CircuitBreaker     bool
	ProgressStreaming  bool
	DualVerdict        bool
}

// AuditError is one append-only entry in AuditState.Errors.
type AuditError struct {
	Phase   string
	Kind    ErrorKind
	Message string
	Time    time.Time
}

// ErrorKind is the error taxonomy from spec.md §7. These are kinds, not
// Go error types: every analyzer failure is normalized into one of these
// before it crosses the Supervisor boundary.
type ErrorKind string

const (
	ErrAnalyzerTransient ErrorKind = "analyzer_transient"
	ErrAnalyzerPermanent ErrorKind = "analyzer_permanent"
	ErrBudgetExceeded    ErrorKind = "budget_exceeded"
	ErrConflict          ErrorKind = "conflict"
	ErrFatalInternal     ErrorKind = "fatal_internal"
	ErrCancelledByCaller ErrorKind = "cancelled_by_caller"
)

// State is the single mutable record owned exclusively by the Orchestrator.
// It is mutated only between phase boundaries; analyzers and every other
// component only ever see an immutable snapshot (Snapshot()).
type State struct {
	URL  string
	Tier Tier

	Iteration     int
	MaxIterations int
	MaxPages      int

	Status Status

	PendingURLs      []string
	InvestigatedURLs map[string]struct{}

	ScoutResults    map[string]*AnalyzerOutput
	SecurityResults map[string]*AnalyzerOutput
	VisionResult    *AnalyzerOutput
	GraphResult     *AnalyzerOutput
	JudgeDecision   *JudgeDecision

	SiteType           string
	SiteTypeConfidence float64

	Errors []AuditError

	ScoutFailures int
	NimCallsUsed  int
	StartTime     time.Time
	ElapsedSec    float64

	ExecutionMode ExecutionMode
	Features      Features

	ForceVerdict bool

	// QualityPenalties accumulates every DegradedResult.QualityPenalty
	// seen during the audit, combined multiplicatively at END (§9,
	// Open Question 3).
	QualityPenalties []float64

	// DegradedAgents lists analyzer origins that produced at least one
	// DegradedResult during this audit, surfaced in AuditResult.Metadata.
	DegradedAgents map[string]struct{}
}

// NewState constructs an initial AuditState for the given URL and tier.
func NewState(url string, tier Tier, features Features) *State {
	b := Budgets[tier]
	return &State{
		URL:              url,
		Tier:             tier,
		Iteration:        0,
		MaxIterations:    b.MaxIterations,
		MaxPages:         b.MaxPages,
		Status:           StatusRunning,
		PendingURLs:      []string{url},
		InvestigatedURLs: make(map[string]struct{}),
		ScoutResults:     make(map[string]*AnalyzerOutput),
		SecurityResults:  make(map[string]*AnalyzerOutput),
		StartTime:        time.Now(),
		ExecutionMode:    ExecutionCooperative,
		Features:         features,
		DegradedAgents:   make(map[string]struct{}),
	}
}

// MarkInvestigated moves a URL from pending to investigated. Once a URL
// is investigated it is never re-added to PendingURLs (invariant from
// spec.md §3).
func (s *State) MarkInvestigated(url string) {
	s.InvestigatedURLs[url] = struct{}{}
	filtered := s.PendingURLs[:0]
	for _, u := range s.PendingURLs {
		if u != url {
			filtered = append(filtered, u)
		}
	}
	s.PendingURLs = filtered
}

// EnqueuePending appends a newly discovered URL unless it has already
// been investigated or is already queued.
func (s *State) EnqueuePending(url string) {
	if _, seen := s.InvestigatedURLs[url]; seen {
		return
	}
	for _, u := range s.PendingURLs {
		if u == url {
			return
		}
	}
	s.PendingURLs = append(s.PendingURLs, url)
}

// RecordError appends an AuditError; errors are append-only.
func (s *State) RecordError(phase string, kind ErrorKind, message string) {
	s.Errors = append(s.Errors, AuditError{
		Phase:   phase,
		Kind:    kind,
		Message: message,
		Time:    time.Now(),
	})
}

// RecordDegraded tracks a DegradedResult's quality penalty and the
// origin agent that produced it.
func (s *State) RecordDegraded(agent string, penalty float64) {
	s.QualityPenalties = append(s.QualityPenalties, penalty)
	s.DegradedAgents[agent] = struct{}{}
}

// QualityMultiplier combines every recorded quality penalty
// multiplicatively into an overall score multiplier, clamped to
// [0.3, 1.0] per SPEC_FULL.md §12.3.
func (s *State) QualityMultiplier() float64 {
	multiplier := 1.0
	for _, p := range s.QualityPenalties {
		multiplier *= 1 - p
	}
	if multiplier < 0.3 {
		return 0.3
	}
	if multiplier > 1.0 {
		return 1.0
	}
	return multiplier
}

// AnalyzerOutput is the normalized result merged into State at a phase
// boundary — either a genuine analyzer Result or a Supervisor-produced
// DegradedResult, tagged so downstream consumers can tell which.
type AnalyzerOutput struct {
	Origin    string
	Findings  []Finding
	Degraded  *DegradedResult
	Error     *AuditError
	Metrics   map[string]float64
}

// JudgeDecision is the Judge analyzer's routing directive.
type JudgeDecision struct {
	Action         JudgeAction
	NewPendingURLs []string
	Forced         bool
}

// JudgeAction is the sum type driving route_after_judge.
type JudgeAction string

const (
	ActionRenderVerdict        JudgeAction = "render_verdict"
	ActionRequestMoreInvestigation JudgeAction = "request_more_investigation"
)
