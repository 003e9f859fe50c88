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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jinish2170/elliotAI-sub001/pkg/audit"
	"github.com/Jinish2170/elliotAI-sub001/pkg/breaker"
)

func cvss(v float64) *float64 { return &v }

func instantModule(id string, tier Tier, category string, severity audit.Severity, cvssScore float64) ModuleSpec {
	return ModuleSpec{
		ID: id, Tier: tier, Category: category,
		Run: func(ctx context.Context, input audit.AnalyzerInput) ([]audit.Finding, error) {
			return []audit.Finding{{
				ID: id, Category: category, Severity: severity,
				CVSSScore: cvss(cvssScore), SourceAgent: audit.SourceSecurity,
			}}, nil
		},
	}
}

func slowModule(id string, tier Tier, delay time.Duration) ModuleSpec {
	return ModuleSpec{
		ID: id, Tier: tier,
		Run: func(ctx context.Context, input audit.AnalyzerInput) ([]audit.Finding, error) {
			select {
			case <-time.After(delay):
				return []audit.Finding{{ID: id, Severity: audit.SeverityLow}}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
}

func TestScheduler_RunsAllTiersAndSortsDeterministically(t *testing.T) {
	s := New(nil, nil)
	modules := []ModuleSpec{
		instantModule("headers", TierFast, "zzz", audit.SeverityLow, 2.0),
		instantModule("owasp-a1", TierMedium, "aaa", audit.SeverityCritical, 9.8),
		instantModule("tls", TierFast, "aaa", audit.SeverityCritical, 9.8),
		instantModule("gdpr", TierDeep, "mmm", audit.SeverityMedium, 5.0),
	}

	findings, outcomes := s.Run(context.Background(), modules, audit.AnalyzerInput{}, 2*time.Minute)

	require.Len(t, findings, 4)
	require.Len(t, outcomes, 4)
	// Both critical/9.8 findings must sort before the medium one; they
	// also share category "aaa", so the stable sort keeps the FAST-tier
	// tls finding ahead of the MEDIUM-tier owasp-a1 one.
	assert.Equal(t, "tls", findings[0].ID)
	assert.Equal(t, "owasp-a1", findings[1].ID)
	assert.Equal(t, "gdpr", findings[2].ID)
	assert.Equal(t, "headers", findings[3].ID)
}

func TestScheduler_TierDeadlineDegradesSlowModule(t *testing.T) {
	s := New(nil, nil)
	modules := []ModuleSpec{
		slowModule("slow-fast-check", TierFast, 5*time.Second),
	}
	policy := Policies[TierFast]
	policy.Deadline = 20 * time.Millisecond
	Policies[TierFast] = policy
	defer func() { Policies[TierFast] = TierPolicy{DefaultTimeout: 5 * time.Second, Deadline: 10 * time.Second} }()

	findings, outcomes := s.Run(context.Background(), modules, audit.AnalyzerInput{}, time.Minute)

	assert.Empty(t, findings)
	require.Len(t, outcomes, 1)
	require.NotNil(t, outcomes[0].Degraded)
	assert.Equal(t, audit.FallbackNone, outcomes[0].Degraded.FallbackMode)
}

func TestScheduler_DeepSkipAheadWhenBudgetTight(t *testing.T) {
	s := New(nil, nil)
	modules := []ModuleSpec{
		instantModule("fast-check", TierFast, "a", audit.SeverityLow, 1.0),
		instantModule("deep-check", TierDeep, "b", audit.SeverityHigh, 7.0),
	}

	// Deadline too tight for DEEP's own 60s tier deadline.
	findings, outcomes := s.Run(context.Background(), modules, audit.AnalyzerInput{}, 5*time.Second)

	require.Len(t, findings, 1, "only the FAST module should have produced a finding")
	assert.Equal(t, "fast-check", findings[0].ID)

	var deepOutcome *ModuleOutcome
	for i := range outcomes {
		if outcomes[i].ModuleID == "deep-check" {
			deepOutcome = &outcomes[i]
		}
	}
	require.NotNil(t, deepOutcome)
	require.NotNil(t, deepOutcome.Degraded)
	assert.Equal(t, audit.FallbackSimplified, deepOutcome.Degraded.FallbackMode)
}

func TestScheduler_BoundedParallelismWithinTier(t *testing.T) {
	s := New(nil, nil)
	modules := []ModuleSpec{
		slowModule("m1", TierFast, 30*time.Millisecond),
		slowModule("m2", TierFast, 30*time.Millisecond),
		slowModule("m3", TierFast, 30*time.Millisecond),
	}

	start := time.Now()
	findings, _ := s.Run(context.Background(), modules, audit.AnalyzerInput{}, time.Minute)
	elapsed := time.Since(start)

	assert.Len(t, findings, 3)
	assert.Less(t, elapsed, 100*time.Millisecond, "same-tier modules must run concurrently, not sequentially")
}

func failingModule(id string, tier Tier) ModuleSpec {
	return ModuleSpec{
		ID: id, Tier: tier,
		Run: func(ctx context.Context, input audit.AnalyzerInput) ([]audit.Finding, error) {
			return nil, assert.AnError
		},
	}
}

func TestScheduler_ChronicallyFailingModuleOpensBreakerAcrossRuns(t *testing.T) {
	s := New(nil, nil)
	modules := []ModuleSpec{failingModule("flaky", TierFast)}

	// Default FailureThreshold is 3: three Run calls each failing once
	// should trip the module's own breaker.
	for i := 0; i < 3; i++ {
		_, outcomes := s.Run(context.Background(), modules, audit.AnalyzerInput{}, time.Minute)
		require.Len(t, outcomes, 1)
		require.NotNil(t, outcomes[0].Degraded)
	}

	assert.Equal(t, breaker.Open, s.breakers.For(moduleKind("flaky")).State(),
		"a module failing on every audit must trip its own persistent breaker")
}

func TestScheduler_MapperFillsEmptyCWECVSSWithoutClobbering(t *testing.T) {
	calls := 0
	mapper := func(category string, severity audit.Severity, evidence map[string]any) (string, float64) {
		calls++
		return "CWE-79", 6.1
	}
	s := New(nil, mapper)
	modules := []ModuleSpec{
		instantModule("headers", TierFast, "aaa", audit.SeverityLow, 2.0),
	}

	findings, _ := s.Run(context.Background(), modules, audit.AnalyzerInput{}, time.Minute)

	require.Len(t, findings, 1)
	assert.Equal(t, "CWE-79", findings[0].CWEID)
	require.NotNil(t, findings[0].CVSSScore)
	assert.Equal(t, 2.0, *findings[0].CVSSScore, "mapper must not overwrite a manually-set cvss_score")
	assert.Equal(t, 1, calls)
}
