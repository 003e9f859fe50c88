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

	"github.com/Jinish2170/elliotAI-sub001/pkg/audit"
)

// moduleAnalyzer adapts one ModuleSpec into an audit.Analyzer so the
// Scheduler can drive it through the same Supervisor/breaker protection
// every top-level analyzer gets (spec.md §4.3 step 1a). It declines to
// produce its own fallback so the Supervisor's generic FallbackNone
// path runs, matching the degraded-result shape the Scheduler already
// produced before this wiring existed.
type moduleAnalyzer struct {
	spec ModuleSpec
}

func (m *moduleAnalyzer) Kind() audit.AnalyzerKind {
	return moduleKind(m.spec.ID)
}

func (m *moduleAnalyzer) Execute(ctx context.Context, input audit.AnalyzerInput) (*audit.Result, error) {
	findings, err := m.spec.Run(ctx, input)
	if err != nil {
		return nil, err
	}
	return &audit.Result{Findings: findings}, nil
}

func (m *moduleAnalyzer) SupportsFallback() bool { return false }

func (m *moduleAnalyzer) FallbackFor(ctx context.Context, input audit.AnalyzerInput, mode audit.FailureMode) (*audit.DegradedResult, error) {
	return nil, nil
}
