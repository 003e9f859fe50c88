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

package audit

import "context"

// AnalyzerInput is what every analyzer call receives, regardless of
// analyzer kind (spec.md §6 "Analyzer interface").
type AnalyzerInput struct {
	URL            string
	ScoutResult    *AnalyzerOutput
	EnabledModules []string
	Complexity     ComplexitySignals

	// ConsensusFindings is the Consensus Engine's current snapshot,
	// supplied to the Judge so its verdict can weigh confirmed,
	// conflicted, and unconfirmed findings. Empty for every other kind.
	ConsensusFindings []Finding

	// ForceVerdict is set on the Judge's final call once the Orchestrator
	// has exhausted its iteration/page/time budget (spec.md §4.1).
	ForceVerdict bool
}

// Result is a successful analyzer outcome. Different analyzer kinds are
// tagged variants of the same interface (spec.md §9): only Scout sets
// SiteType/SiteTypeConfidence, only Judge sets Decision, but every kind
// shares the one Execute contract.
type Result struct {
	Findings []Finding
	Metrics  map[string]float64
	Error    error

	// SiteType and SiteTypeConfidence are set by Scout after its first
	// successful pass (spec.md §3).
	SiteType           string
	SiteTypeConfidence float64

	// Decision is set by Judge: the routing directive that drives
	// route_after_judge.
	Decision *JudgeDecision
}

// Analyzer is the capability every concrete analyzer (Scout, Vision,
// Security module, Graph, Judge, OSINT) plugs into. Concrete
// implementations are out of this repository's scope (spec.md §1);
// this interface is the contract the Supervisor drives.
type Analyzer interface {
	// Kind identifies which Supervisor timeout/breaker slot this
	// analyzer occupies.
	Kind() AnalyzerKind

	// Execute performs the analyzer's work, honoring ctx cancellation
	// within a bounded delay.
	Execute(ctx context.Context, input AnalyzerInput) (*Result, error)

	// SupportsFallback reports whether FallbackFor may be called.
	SupportsFallback() bool

	// FallbackFor produces a DegradedResult for the given failure mode.
	// Only called when SupportsFallback() is true.
	FallbackFor(ctx context.Context, input AnalyzerInput, mode FailureMode) (*DegradedResult, error)
}

// FailureMode is why the Supervisor is invoking a fallback producer.
type FailureMode string

const (
	FailureTimeout      FailureMode = "timeout"
	FailureBreakerOpen  FailureMode = "breaker_open"
	FailureException    FailureMode = "exception"
	FailureCancellation FailureMode = "cancellation"
)

// CWECVSSMapper is the injected collaborator that maps a security
// finding's category/severity/evidence to a CWE identifier and CVSS
// score. Its implementation is opaque to the core (spec.md §6).
type CWECVSSMapper func(category string, severity Severity, evidence map[string]any) (cweID string, cvssScore float64)
