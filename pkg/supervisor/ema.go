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

package supervisor

import (
	"sync"
	"time"

	"github.com/Jinish2170/elliotAI-sub001/pkg/audit"
)

// emaAlpha is the smoothing factor spec.md §4.2 step 1 mandates.
const emaAlpha = 0.2

// historyKey identifies one (site_type, analyzer) learning slot.
type historyKey struct {
	siteType string
	analyzer audit.AnalyzerKind
}

// historyEntry tracks one slot's learned execution time.
type historyEntry struct {
	mean       time.Duration
	samples    int
	lastUpdate time.Time
}

// ExecutionHistory is the Supervisor's EMA tracker over historical
// execution times per (site_type, analyzer), used to adapt timeouts.
// It is created by the caller and may be shared by several Supervisors
// (the orchestrator passes one instance to every audit); the janitor
// evicts idle entries from it. All access is guarded by mu.
type ExecutionHistory struct {
	mu      sync.Mutex
	entries map[historyKey]*historyEntry
	// maxIdle bounds how long an entry survives without an update
	// before the janitor evicts it (see janitor.go).
	maxIdle time.Duration
}

// NewExecutionHistory creates an empty tracker.
func NewExecutionHistory(maxIdle time.Duration) *ExecutionHistory {
	if maxIdle <= 0 {
		maxIdle = 30 * time.Minute
	}
	return &ExecutionHistory{
		entries: make(map[historyKey]*historyEntry),
		maxIdle: maxIdle,
	}
}

// Record folds a new observed duration into the EMA for (siteType, analyzer).
func (h *ExecutionHistory) Record(siteType string, analyzer audit.AnalyzerKind, d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := historyKey{siteType, analyzer}
	e, ok := h.entries[key]
	if !ok {
		h.entries[key] = &historyEntry{mean: d, samples: 1, lastUpdate: time.Now()}
		return
	}
	e.mean = time.Duration(emaAlpha*float64(d) + (1-emaAlpha)*float64(e.mean))
	e.samples++
	e.lastUpdate = time.Now()
}

// Mean returns the learned mean duration for (siteType, analyzer), and
// whether any history exists for it (one sample is enough).
func (h *ExecutionHistory) Mean(siteType string, analyzer audit.AnalyzerKind) (time.Duration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.entries[historyKey{siteType, analyzer}]
	if !ok {
		return 0, false
	}
	return e.mean, true
}

// EvictStale removes entries that haven't been updated within maxIdle,
// keeping a long-lived process's history map bounded. Invoked by the
// background janitor (janitor.go).
func (h *ExecutionHistory) EvictStale(now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	evicted := 0
	for key, e := range h.entries {
		if now.Sub(e.lastUpdate) > h.maxIdle {
			delete(h.entries, key)
			evicted++
		}
	}
	return evicted
}

// Len reports how many (site_type, analyzer) slots are tracked.
func (h *ExecutionHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
