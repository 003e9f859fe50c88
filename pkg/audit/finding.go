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

// Severity is a Finding's severity band.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// severityRank orders severities for sorting and for the "non-trivial
// vs safe" conflict rule in the Consensus Engine.
var severityRank = map[Severity]int{
	SeverityCritical: 5,
	SeverityHigh:     4,
	SeverityMedium:   3,
	SeverityLow:      2,
	SeverityInfo:     1,
}

// Rank returns a total order over severities, highest first.
func (s Severity) Rank() int { return severityRank[s] }

// IsNonTrivial reports whether the severity is anything above info.
func (s Severity) IsNonTrivial() bool { return s != SeverityInfo }

// SourceAgent is the kind of analyzer that produced a Finding.
type SourceAgent string

const (
	SourceVision   SourceAgent = "vision"
	SourceOSINT    SourceAgent = "osint"
	SourceSecurity SourceAgent = "security"
)

// Finding is a single, immutable observation from an analyzer.
type Finding struct {
	ID            string
	Category      string
	PatternType   string
	Severity      Severity
	Confidence    float64 // [0,1]
	Evidence      map[string]any
	SourceAgent   SourceAgent
	RegionOrURL   string
	CWEID         string
	CVSSScore     *float64 // [0,10], optional
}

// DegradedResult is the well-formed, never-empty placeholder the
// Analyzer Supervisor returns when a primary analyzer call fails.
type DegradedResult struct {
	ResultData     map[string]any
	FallbackMode   FallbackMode
	MissingData    []string
	QualityPenalty float64
}

// FallbackMode is the degraded-mode taxonomy from spec.md §3/§4.2.
type FallbackMode string

const (
	FallbackNone        FallbackMode = "none"
	FallbackSimplified  FallbackMode = "simplified"
	FallbackCached      FallbackMode = "cached"
	FallbackPartial     FallbackMode = "partial"
	FallbackAlternative FallbackMode = "alternative"
)

// QualityPenaltyFor returns the mandated penalty for a fallback outcome,
// per spec.md §4.2 step 4.
func QualityPenaltyFor(mode FallbackMode, timedOut bool) float64 {
	switch {
	case mode == FallbackNone:
		return 0.7
	case timedOut:
		return 0.5
	default:
		return 0.2
	}
}
