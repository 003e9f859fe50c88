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
	"sort"

	"github.com/Jinish2170/elliotAI-sub001/pkg/audit"
	"github.com/Jinish2170/elliotAI-sub001/pkg/consensus"
)

// DualVerdict is the optional technical/non-technical verdict pair,
// populated only when Preferences.DualVerdict is set and Judge supplied
// both scores (spec.md §6).
type DualVerdict struct {
	TechnicalScore    float64
	NonTechnicalScore float64
}

// Metadata is AuditResult's bookkeeping block (spec.md §6).
type Metadata struct {
	Iterations     int
	Pages          int
	ElapsedSeconds float64
	Forced         bool
	DegradedAgents []string
	DroppedEvents  int
	ExecutionMode  audit.ExecutionMode
}

// AuditResult is the Orchestrator's public output (spec.md §6).
type AuditResult struct {
	URL    string
	Status audit.Status

	TrustScore      float64
	RiskLevel       string
	SignalBreakdown map[string]float64

	ConfirmedFindings   []consensus.Result
	ConflictedFindings  []consensus.Result
	UnconfirmedFindings []consensus.Result

	DualVerdict *DualVerdict

	Metadata Metadata
	Errors   []audit.AuditError
}

// buildResult assembles the final AuditResult from the run's terminal
// AuditState and Consensus Engine snapshot (spec.md §4.1 "Completion").
func (r *auditRun) buildResult() *AuditResult {
	multiplier := r.state.QualityMultiplier()

	trustVal, scoreOK := r.judgeMetrics["trust_score"]
	trustScore := clampScore(trustVal * multiplier)

	riskLevel := riskLevelFor(trustScore, scoreOK)

	breakdown := make(map[string]float64, len(r.judgeMetrics))
	for k, v := range r.judgeMetrics {
		if k == "trust_score" || k == "trust_score_technical" || k == "trust_score_non_technical" {
			continue
		}
		breakdown[k] = v
	}

	var dual *DualVerdict
	if r.state.Features.DualVerdict {
		tech, techOK := r.judgeMetrics["trust_score_technical"]
		nonTech, nonTechOK := r.judgeMetrics["trust_score_non_technical"]
		if techOK && nonTechOK {
			dual = &DualVerdict{TechnicalScore: clampScore(tech * multiplier), NonTechnicalScore: clampScore(nonTech * multiplier)}
		}
	}

	confirmed := r.cengine.GetConfirmed()
	conflicted := r.cengine.GetConflicted()
	unconfirmed := r.cengine.GetUnconfirmed()

	degraded := make([]string, 0, len(r.state.DegradedAgents))
	for agent := range r.state.DegradedAgents {
		degraded = append(degraded, agent)
	}
	sort.Strings(degraded)

	forced := r.state.JudgeDecision != nil && r.state.JudgeDecision.Forced

	return &AuditResult{
		URL:                 r.state.URL,
		Status:              r.state.Status,
		TrustScore:          trustScore,
		RiskLevel:           riskLevel,
		SignalBreakdown:     breakdown,
		ConfirmedFindings:   confirmed,
		ConflictedFindings:  conflicted,
		UnconfirmedFindings: unconfirmed,
		DualVerdict:         dual,
		Metadata: Metadata{
			Iterations:     r.state.Iteration,
			Pages:          len(r.state.InvestigatedURLs),
			ElapsedSeconds: r.elapsed().Seconds(),
			Forced:         forced || r.state.ForceVerdict,
			DegradedAgents: degraded,
			ExecutionMode:  r.state.ExecutionMode,
		},
		Errors: r.state.Errors,
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// riskLevelFor derives the qualitative risk band from a trust score,
// except when no score could be computed at all (spec.md §7's
// user-visible failure behavior: "trust_score=0, risk_level=unknown").
func riskLevelFor(trustScore float64, scoreOK bool) string {
	if !scoreOK {
		return "unknown"
	}
	switch {
	case trustScore >= 70:
		return "low"
	case trustScore >= 40:
		return "medium"
	default:
		return "high"
	}
}
