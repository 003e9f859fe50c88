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
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/r3labs/sse/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jinish2170/elliotAI-sub001/pkg/audit"
	"github.com/Jinish2170/elliotAI-sub001/pkg/security"
)

// simpleAnalyzer is a fixed-response stand-in for a concrete analyzer.
type simpleAnalyzer struct {
	kind             audit.AnalyzerKind
	result           *audit.Result
	err              error
	supportsFallback bool
}

func (s *simpleAnalyzer) Kind() audit.AnalyzerKind { return s.kind }

func (s *simpleAnalyzer) Execute(_ context.Context, _ audit.AnalyzerInput) (*audit.Result, error) {
	return s.result, s.err
}

func (s *simpleAnalyzer) SupportsFallback() bool { return s.supportsFallback }

func (s *simpleAnalyzer) FallbackFor(_ context.Context, _ audit.AnalyzerInput, mode audit.FailureMode) (*audit.DegradedResult, error) {
	return &audit.DegradedResult{
		ResultData:     map[string]any{"degraded": true},
		FallbackMode:   audit.FallbackSimplified,
		QualityPenalty: audit.QualityPenaltyFor(audit.FallbackSimplified, mode == audit.FailureTimeout),
	}, nil
}

// failingAnalyzer always errors and never supports fallback, so the
// Supervisor always returns FallbackNone/0.7 — used for the
// circuit-breaker degradation scenario.
type failingAnalyzer struct {
	kind  audit.AnalyzerKind
	calls int32
}

func (f *failingAnalyzer) Kind() audit.AnalyzerKind { return f.kind }

func (f *failingAnalyzer) Execute(_ context.Context, _ audit.AnalyzerInput) (*audit.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	return nil, errors.New("analyzer boom")
}

func (f *failingAnalyzer) SupportsFallback() bool { return false }

func (f *failingAnalyzer) FallbackFor(context.Context, audit.AnalyzerInput, audit.FailureMode) (*audit.DegradedResult, error) {
	return nil, nil
}

// scriptedJudge lets each test drive Judge's decision call by call.
type scriptedJudge struct {
	mu     sync.Mutex
	calls  int
	script func(call int, forceVerdict bool) (*audit.Result, error)
}

func (j *scriptedJudge) Kind() audit.AnalyzerKind { return audit.AnalyzerJudge }

func (j *scriptedJudge) Execute(_ context.Context, input audit.AnalyzerInput) (*audit.Result, error) {
	j.mu.Lock()
	j.calls++
	call := j.calls
	j.mu.Unlock()
	return j.script(call, input.ForceVerdict)
}

func (j *scriptedJudge) callCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.calls
}

func (j *scriptedJudge) SupportsFallback() bool { return false }

func (j *scriptedJudge) FallbackFor(context.Context, audit.AnalyzerInput, audit.FailureMode) (*audit.DegradedResult, error) {
	return nil, nil
}

// countingScout wraps simpleAnalyzer's behavior but tracks how many
// distinct URLs it was asked to investigate.
type countingScout struct {
	mu   sync.Mutex
	urls []string
}

func (s *countingScout) Kind() audit.AnalyzerKind { return audit.AnalyzerScout }

func (s *countingScout) Execute(_ context.Context, input audit.AnalyzerInput) (*audit.Result, error) {
	s.mu.Lock()
	s.urls = append(s.urls, input.URL)
	s.mu.Unlock()
	return &audit.Result{SiteType: "spa", SiteTypeConfidence: 0.9}, nil
}

func (s *countingScout) callURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.urls))
	copy(out, s.urls)
	return out
}

func (s *countingScout) SupportsFallback() bool { return false }

func (s *countingScout) FallbackFor(context.Context, audit.AnalyzerInput, audit.FailureMode) (*audit.DegradedResult, error) {
	return nil, nil
}

type fakeSink struct {
	mu     sync.Mutex
	events []*sse.Event
}

func (f *fakeSink) Publish(_ string, event *sse.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeSink) lastType() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return ""
	}
	return string(f.events[len(f.events)-1].Event)
}

func renderVerdict(trustScore float64) func(int, bool) (*audit.Result, error) {
	return func(int, bool) (*audit.Result, error) {
		return &audit.Result{Decision: &audit.JudgeDecision{Action: audit.ActionRenderVerdict}, Metrics: map[string]float64{"trust_score": trustScore}}, nil
	}
}

func TestAudit_HappyPathQuickTier(t *testing.T) {
	scout := &countingScout{}
	judge := &scriptedJudge{script: renderVerdict(85)}
	sink := &fakeSink{}

	o := New(Config{
		Scout: scout,
		Graph: &simpleAnalyzer{kind: audit.AnalyzerGraph, result: &audit.Result{}},
		Judge: judge,
		Sink:  sink,
	})

	result, err := o.Audit(context.Background(), "https://safe.example", audit.TierQuick, Preferences{})
	require.NoError(t, err)

	assert.Equal(t, audit.StatusCompleted, result.Status)
	assert.Equal(t, 1, result.Metadata.Iterations)
	assert.GreaterOrEqual(t, result.TrustScore, 70.0)
	assert.False(t, result.Metadata.Forced)
	assert.Empty(t, result.Metadata.DegradedAgents)
	assert.Len(t, scout.callURLs(), 1)
	assert.Equal(t, "audit_complete", sink.lastType())
}

func TestAudit_MultiIterationBacktrack(t *testing.T) {
	scout := &countingScout{}
	const nextURL = "https://suspicious.example/page2"
	judge := &scriptedJudge{script: func(call int, forced bool) (*audit.Result, error) {
		if call == 1 {
			return &audit.Result{Decision: &audit.JudgeDecision{Action: audit.ActionRequestMoreInvestigation, NewPendingURLs: []string{nextURL}}}, nil
		}
		return &audit.Result{Decision: &audit.JudgeDecision{Action: audit.ActionRenderVerdict}, Metrics: map[string]float64{"trust_score": 50}}, nil
	}}

	o := New(Config{Scout: scout, Judge: judge})

	result, err := o.Audit(context.Background(), "https://suspicious.example", audit.TierStandard, Preferences{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Metadata.Iterations)
	assert.Equal(t, 2, result.Metadata.Pages)
	assert.Equal(t, 2, judge.callCount())
	assert.ElementsMatch(t, []string{"https://suspicious.example", nextURL}, scout.callURLs())
}

func TestAudit_BudgetExhaustionForcesVerdict(t *testing.T) {
	scout := &countingScout{}
	judge := &scriptedJudge{script: func(call int, forced bool) (*audit.Result, error) {
		if forced {
			return &audit.Result{Decision: &audit.JudgeDecision{Action: audit.ActionRenderVerdict}, Metrics: map[string]float64{"trust_score": 40}}, nil
		}
		return &audit.Result{Decision: &audit.JudgeDecision{
			Action:         audit.ActionRequestMoreInvestigation,
			NewPendingURLs: []string{fmt.Sprintf("https://deep.example/%d", call)},
		}}, nil
	}}

	o := New(Config{Scout: scout, Judge: judge})

	result, err := o.Audit(context.Background(), "https://deep.example", audit.TierDeep, Preferences{})
	require.NoError(t, err)

	assert.Equal(t, audit.StatusCompleted, result.Status)
	assert.True(t, result.Metadata.Forced, "budget exhaustion must flag the result as forced")
	assert.LessOrEqual(t, result.Metadata.Iterations, audit.Budgets[audit.TierDeep].MaxIterations, "iteration must never exceed max_iterations")
}

func TestAudit_AnalyzerFailureDegradesWithoutHangingBudget(t *testing.T) {
	scout := &countingScout{}
	vision := &failingAnalyzer{kind: audit.AnalyzerVision}
	judge := &scriptedJudge{script: func(call int, forced bool) (*audit.Result, error) {
		if call == 4 || forced {
			return &audit.Result{Decision: &audit.JudgeDecision{Action: audit.ActionRenderVerdict}, Metrics: map[string]float64{"trust_score": 90}}, nil
		}
		return &audit.Result{Decision: &audit.JudgeDecision{
			Action:         audit.ActionRequestMoreInvestigation,
			NewPendingURLs: []string{fmt.Sprintf("https://degraded.example/%d", call)},
		}}, nil
	}}

	o := New(Config{Scout: scout, Vision: vision, Judge: judge})

	result, err := o.Audit(context.Background(), "https://degraded.example", audit.TierDeep, Preferences{CircuitBreaker: true})
	require.NoError(t, err)

	assert.LessOrEqual(t, atomic.LoadInt32(&vision.calls), int32(3), "once the breaker opens, Vision must not be invoked again")
	assert.Contains(t, result.Metadata.DegradedAgents, "vision")
	assert.Greater(t, result.TrustScore, 0.0, "a capped quality penalty must still allow a trust score")
}

func TestAudit_ConflictDetectionSurfacesConflictedFinding(t *testing.T) {
	secModule := security.ModuleSpec{
		ID:       "forms",
		Tier:     security.TierFast,
		Category: "forms_insecure",
		Run: func(context.Context, audit.AnalyzerInput) ([]audit.Finding, error) {
			return []audit.Finding{{
				ID: "sec-1", Category: "forms_insecure", PatternType: "unencrypted_field",
				Severity: audit.SeverityHigh, Confidence: 0.9,
				SourceAgent: audit.SourceSecurity, RegionOrURL: "footer_form",
			}}, nil
		},
	}
	vision := &simpleAnalyzer{kind: audit.AnalyzerVision, result: &audit.Result{Findings: []audit.Finding{{
		ID: "vis-1", Category: "forms_insecure", PatternType: "unencrypted_field",
		Severity: audit.SeverityInfo, Confidence: 0.5,
		SourceAgent: audit.SourceVision, RegionOrURL: "footer_form",
	}}}}
	judge := &scriptedJudge{script: renderVerdict(60)}

	o := New(Config{
		Scout:           &countingScout{},
		Vision:          vision,
		Judge:           judge,
		SecurityModules: []security.ModuleSpec{secModule},
	})

	result, err := o.Audit(context.Background(), "https://conflict.example", audit.TierQuick, Preferences{})
	require.NoError(t, err)

	require.Len(t, result.ConflictedFindings, 1)
	assert.NotEmpty(t, result.ConflictedFindings[0].ConflictNotes)
	assert.Empty(t, result.ConfirmedFindings)
}

func TestAudit_CancelledContextReturnsFatalError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := New(Config{Scout: &countingScout{}, Judge: &scriptedJudge{script: renderVerdict(50)}})

	result, err := o.Audit(ctx, "https://cancelled.example", audit.TierQuick, Preferences{})
	require.Error(t, err)
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, audit.ErrCancelledByCaller, fatal.Kind)
	assert.Equal(t, audit.StatusAborted, result.Status)
}
