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

package progress

import (
	"sync"
	"time"

	"github.com/Jinish2170/elliotAI-sub001/pkg/audit"
)

const etaAlpha = 0.2

// defaultAgentDurations are spec.md §4.5's built-in estimates for an
// agent that has no recorded history yet.
var defaultAgentDurations = map[audit.AnalyzerKind]time.Duration{
	audit.AnalyzerScout:  20 * time.Second,
	audit.AnalyzerVision: 30 * time.Second,
	audit.AnalyzerGraph:  10 * time.Second,
	audit.AnalyzerJudge:  10 * time.Second,
	audit.AnalyzerOSINT:  25 * time.Second,
}

type etaKey struct {
	siteType string
	agent    audit.AnalyzerKind
}

// ETATracker learns per-(site_type, agent) execution durations via EMA
// and estimates the remaining time for an in-flight audit.
type ETATracker struct {
	mu      sync.Mutex
	history map[etaKey]time.Duration
}

// NewETATracker constructs an empty tracker.
func NewETATracker() *ETATracker {
	return &ETATracker{history: make(map[etaKey]time.Duration)}
}

// Record folds an observed duration into the learned mean for
// (siteType, agent).
func (t *ETATracker) Record(siteType string, agent audit.AnalyzerKind, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := etaKey{siteType, agent}
	prev, ok := t.history[key]
	if !ok {
		t.history[key] = d
		return
	}
	t.history[key] = time.Duration(etaAlpha*float64(d) + (1-etaAlpha)*float64(prev))
}

// estimate returns the learned or default duration for (siteType, agent).
func (t *ETATracker) estimate(siteType string, agent audit.AnalyzerKind) time.Duration {
	t.mu.Lock()
	d, ok := t.history[etaKey{siteType, agent}]
	t.mu.Unlock()
	if ok {
		return d
	}
	if def, ok := defaultAgentDurations[agent]; ok {
		return def
	}
	return 15 * time.Second
}

// Remaining sums the estimate for every agent not yet completed, per
// spec.md §4.5's "current remaining time ... is sum(ema[site_type, a]
// for a in not_yet_completed_agents)".
func (t *ETATracker) Remaining(siteType string, notYetCompleted []audit.AnalyzerKind) time.Duration {
	var total time.Duration
	for _, agent := range notYetCompleted {
		total += t.estimate(siteType, agent)
	}
	return total
}
