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

import "time"

// AnalyzerKind names the six analyzer slots the Supervisor knows about.
type AnalyzerKind string

const (
	AnalyzerScout    AnalyzerKind = "scout"
	AnalyzerVision   AnalyzerKind = "vision"
	AnalyzerSecurity AnalyzerKind = "security"
	AnalyzerGraph    AnalyzerKind = "graph"
	AnalyzerJudge    AnalyzerKind = "judge"
	AnalyzerOSINT    AnalyzerKind = "osint"
)

// ComplexityBand is the FAST/STANDARD/CONSERVATIVE strategy bucket a
// page's weighted complexity score maps to.
type ComplexityBand string

const (
	BandFast         ComplexityBand = "fast"
	BandStandard     ComplexityBand = "standard"
	BandConservative ComplexityBand = "conservative"
)

// ComplexitySignals are the raw page-shape signals the weighted
// complexity score is computed from (spec.md §4.2 step 1).
type ComplexitySignals struct {
	DOMNodes          int
	ScriptCount       int
	LazyLoadIndicator bool
	IframeCount       int
	LoadTimeMs        int64
}

// complexity weights, applied after each signal is divided by its fixed
// cap below and clamped to [0,1].
const (
	weightDOMNodes    = 0.35
	weightScriptCount = 0.25
	weightLazyLoad    = 0.20
	weightIframes     = 0.10
	weightLoadTime    = 0.10
)

// normalizationCaps bound each raw signal before weighting so one
// outlier page can't blow the score past 1.0.
const (
	capDOMNodes    = 3000.0
	capScriptCount = 80.0
	capIframes     = 10.0
	capLoadTimeMs  = 15000.0
)

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Score computes the weighted complexity score in [0,1].
func (c ComplexitySignals) Score() float64 {
	lazy := 0.0
	if c.LazyLoadIndicator {
		lazy = 1.0
	}
	score := weightDOMNodes*clamp01(float64(c.DOMNodes)/capDOMNodes) +
		weightScriptCount*clamp01(float64(c.ScriptCount)/capScriptCount) +
		weightLazyLoad*lazy +
		weightIframes*clamp01(float64(c.IframeCount)/capIframes) +
		weightLoadTime*clamp01(float64(c.LoadTimeMs)/capLoadTimeMs)
	return clamp01(score)
}

// Band maps a complexity score to its strategy bucket.
func (c ComplexitySignals) Band() ComplexityBand {
	score := c.Score()
	switch {
	case score < 0.30:
		return BandFast
	case score <= 0.60:
		return BandStandard
	default:
		return BandConservative
	}
}

// TimeoutConfig holds the per-analyzer default timeout for a strategy
// band, plus the tier-wide floor that an adaptive timeout may never
// fall below.
type TimeoutConfig struct {
	Defaults     map[AnalyzerKind]time.Duration
	TierMinimums map[AnalyzerKind]time.Duration
}

// DefaultTimeoutTable is the FAST/STANDARD/CONSERVATIVE strategy table
// from spec.md §3/§4.2. Values are deliberately conservative defaults;
// internal/config can override them.
var DefaultTimeoutTable = map[ComplexityBand]TimeoutConfig{
	BandFast: {
		Defaults: map[AnalyzerKind]time.Duration{
			AnalyzerScout: 5 * time.Second, AnalyzerVision: 8 * time.Second,
			AnalyzerSecurity: 10 * time.Second, AnalyzerGraph: 5 * time.Second,
			AnalyzerJudge: 5 * time.Second, AnalyzerOSINT: 8 * time.Second,
		},
		TierMinimums: map[AnalyzerKind]time.Duration{
			AnalyzerScout: 2 * time.Second, AnalyzerVision: 3 * time.Second,
			AnalyzerSecurity: 3 * time.Second, AnalyzerGraph: 2 * time.Second,
			AnalyzerJudge: 2 * time.Second, AnalyzerOSINT: 3 * time.Second,
		},
	},
	BandStandard: {
		Defaults: map[AnalyzerKind]time.Duration{
			AnalyzerScout: 10 * time.Second, AnalyzerVision: 15 * time.Second,
			AnalyzerSecurity: 20 * time.Second, AnalyzerGraph: 10 * time.Second,
			AnalyzerJudge: 10 * time.Second, AnalyzerOSINT: 15 * time.Second,
		},
		TierMinimums: map[AnalyzerKind]time.Duration{
			AnalyzerScout: 5 * time.Second, AnalyzerVision: 8 * time.Second,
			AnalyzerSecurity: 8 * time.Second, AnalyzerGraph: 5 * time.Second,
			AnalyzerJudge: 5 * time.Second, AnalyzerOSINT: 8 * time.Second,
		},
	},
	BandConservative: {
		Defaults: map[AnalyzerKind]time.Duration{
			AnalyzerScout: 20 * time.Second, AnalyzerVision: 30 * time.Second,
			AnalyzerSecurity: 45 * time.Second, AnalyzerGraph: 20 * time.Second,
			AnalyzerJudge: 15 * time.Second, AnalyzerOSINT: 30 * time.Second,
		},
		TierMinimums: map[AnalyzerKind]time.Duration{
			AnalyzerScout: 10 * time.Second, AnalyzerVision: 15 * time.Second,
			AnalyzerSecurity: 15 * time.Second, AnalyzerGraph: 10 * time.Second,
			AnalyzerJudge: 10 * time.Second, AnalyzerOSINT: 15 * time.Second,
		},
	},
}
