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
	"time"

	"github.com/Jinish2170/elliotAI-sub001/pkg/audit"
	"github.com/Jinish2170/elliotAI-sub001/pkg/security"
)

// securityAnalyzer is the Analyzer-shaped front for the Security Tier
// Scheduler (C3), so the Supervisor (C2) still wraps the whole security
// phase with its own timeout/breaker slot while the FAST/MEDIUM/DEEP
// module fan-out happens underneath (spec.md §2's "Supervisor(Security
// via Tier Scheduler)").
type securityAnalyzer struct {
	sched         *security.Scheduler
	modules       []security.ModuleSpec
	auditDeadline func() time.Duration
}

func (s *securityAnalyzer) Kind() audit.AnalyzerKind { return audit.AnalyzerSecurity }

func (s *securityAnalyzer) Execute(ctx context.Context, input audit.AnalyzerInput) (*audit.Result, error) {
	findings, outcomes := s.sched.Run(ctx, s.modules, input, s.auditDeadline())

	degradedCount := 0
	for _, o := range outcomes {
		if o.Degraded != nil {
			degradedCount++
		}
	}
	return &audit.Result{
		Findings: findings,
		Metrics: map[string]float64{
			"modules_run":      float64(len(outcomes)),
			"modules_degraded": float64(degradedCount),
		},
	}, nil
}

func (s *securityAnalyzer) SupportsFallback() bool { return false }

func (s *securityAnalyzer) FallbackFor(ctx context.Context, input audit.AnalyzerInput, mode audit.FailureMode) (*audit.DegradedResult, error) {
	return nil, nil
}
