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

package consensus

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/Jinish2170/elliotAI-sub001/pkg/audit"
)

// Status is a ConsensusResult's place in the finding-status state
// machine (spec.md §4.4).
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusUnconfirmed Status = "UNCONFIRMED"
	StatusConfirmed   Status = "CONFIRMED"
	StatusConflicted  Status = "CONFLICTED"
)

// allowedTransitions encodes the state machine graph; any transition
// absent from this set is a programming error, per spec.md §4.4.
var allowedTransitions = map[Status]map[Status]bool{
	StatusPending:     {StatusUnconfirmed: true},
	StatusUnconfirmed: {StatusConfirmed: true, StatusConflicted: true},
	StatusConfirmed:   {StatusConflicted: true},
	StatusConflicted:  {},
}

// Result is one ConsensusResult: the aggregate view of every finding
// sharing a normalized key.
type Result struct {
	FindingKey           FindingKey
	Sources              []audit.Finding
	Status               Status
	AggregatedConfidence float64
	ConfidenceBreakdown  map[string]float64
	ConflictNotes        []string
}

// entry pairs a Result with its own mutex, so different keys update
// independently while same-key updates serialize (spec.md §5: "Consensus
// updates are serialized per-key; different keys may update in any
// order").
type entry struct {
	mu     sync.Mutex
	result Result
}

// Engine is the process-wide (well: audit-wide) consensus map. One
// Engine instance is owned exclusively by a single audit session.
type Engine struct {
	mapMu sync.RWMutex
	byKey map[FindingKey]*entry
	// buckets maps (category, pattern_type) to the list of normalized
	// region strings already seen, so Ingest can fuzzy-match a
	// near-duplicate region onto an existing key (spec.md §4.4's "exact
	// strategy is left to the implementer, but two equivalent findings
	// ... must collide").
	buckets map[string][]string

	minSources int
}

// New constructs an empty Engine. minSources is the source_agreement
// denominator (default 2, from internal/config.MinConsensusSources);
// CONFIRMED status always needs two distinct source agents, whatever
// minSources is.
func New(minSources int) *Engine {
	if minSources <= 0 {
		minSources = 2
	}
	return &Engine{
		byKey:      make(map[FindingKey]*entry),
		buckets:    make(map[string][]string),
		minSources: minSources,
	}
}

func bucketOf(k FindingKey) string {
	return k.Category + "\x00" + k.PatternType
}

// Ingest applies the update rule from spec.md §4.4 atomically for the
// finding's resolved key.
func (e *Engine) Ingest(f audit.Finding) {
	key := e.resolveKey(f)
	ent := e.entryFor(key)

	ent.mu.Lock()
	defer ent.mu.Unlock()

	r := &ent.result
	if r.Status == "" {
		r.Status = StatusPending
		r.FindingKey = key
	}

	if conflicts(r.Sources, f) {
		var others []string
		for _, s := range r.Sources {
			if s.SourceAgent != f.SourceAgent && !slices.Contains(others, string(s.SourceAgent)) {
				others = append(others, string(s.SourceAgent))
			}
		}
		note := fmt.Sprintf("%s reported severity=%s while %v reported a conflicting severity for the same finding", f.SourceAgent, f.Severity, others)
		r.ConflictNotes = append(r.ConflictNotes, note)
		r.Sources = append(r.Sources, f)
		e.transition(r, StatusConflicted)
		e.recompute(r)
		return
	}

	r.Sources = append(r.Sources, f)
	if r.Status == StatusPending {
		e.transition(r, StatusUnconfirmed)
	}

	// CONFIRMED is gated on the literal n >= 2 from spec.md §4.4 step 3;
	// minSources stays reserved for the source_agreement ratio below so a
	// non-default MinConsensusSources can never keep a 2-source finding
	// UNCONFIRMED while applyHardBands' own hardcoded n>=2 floor pushes
	// its confidence above the UNCONFIRMED ceiling.
	n := distinctSourceAgents(r.Sources)
	if n >= 2 && r.Status == StatusUnconfirmed {
		e.transition(r, StatusConfirmed)
	}

	e.recompute(r)
}

// conflicts implements step 1 of the update rule: a non-trivial
// finding conflicts with an existing "safe" (info) finding for the
// same key, or vice versa.
func conflicts(existing []audit.Finding, f audit.Finding) bool {
	for _, s := range existing {
		if f.Severity.IsNonTrivial() != s.Severity.IsNonTrivial() {
			return true
		}
	}
	return false
}

func distinctSourceAgents(sources []audit.Finding) int {
	seen := make(map[audit.SourceAgent]struct{}, len(sources))
	for _, s := range sources {
		seen[s.SourceAgent] = struct{}{}
	}
	return len(seen)
}

// transition applies to->r.Status only if allowed by the state graph;
// an illegal transition is a programming error and panics, matching
// spec.md §4.4's "Any attempt to transition contrary to this graph is
// a programming error."
func (e *Engine) transition(r *Result, to Status) {
	if r.Status == to {
		return
	}
	if !allowedTransitions[r.Status][to] {
		panic(fmt.Sprintf("consensus: illegal status transition %s -> %s", r.Status, to))
	}
	r.Status = to
}

var severityWeight = map[audit.Severity]float64{
	audit.SeverityCritical: 1.0,
	audit.SeverityHigh:     0.8,
	audit.SeverityMedium:   0.6,
	audit.SeverityLow:      0.4,
	audit.SeverityInfo:     0.2,
}

// recompute implements step 4/5 of the update rule.
func (e *Engine) recompute(r *Result) {
	if r.Status == StatusConflicted {
		// Conflicted results are never elevated into a confirmed band;
		// leave the breakdown populated for explainability but don't
		// apply the hard-band clamps meant for PENDING/UNCONFIRMED/CONFIRMED.
		r.ConfidenceBreakdown = map[string]float64{
			"source_agreement":  0,
			"severity_factor":   0,
			"context_confidence": 0,
			"source_count":      float64(distinctSourceAgents(r.Sources)),
		}
		r.AggregatedConfidence = 0
		return
	}

	n := distinctSourceAgents(r.Sources)
	sourceAgreement := float64(n) / float64(e.minSources)
	if sourceAgreement > 1 {
		sourceAgreement = 1
	}

	maxSeverity := r.Sources[0].Severity
	var confidenceSum float64
	for _, s := range r.Sources {
		if s.Severity.Rank() > maxSeverity.Rank() {
			maxSeverity = s.Severity
		}
		confidenceSum += s.Confidence
	}
	severityFactor := severityWeight[maxSeverity]
	contextConfidence := confidenceSum / float64(len(r.Sources))

	raw := 60*sourceAgreement + 25*severityFactor + 15*contextConfidence

	clamped := applyHardBands(raw, n, maxSeverity)

	r.AggregatedConfidence = clamped
	r.ConfidenceBreakdown = map[string]float64{
		"source_agreement":   sourceAgreement,
		"severity_factor":    severityFactor,
		"context_confidence": contextConfidence,
		"source_count":       float64(n),
	}
}

// applyHardBands enforces spec.md §4.4 step 4's threshold clamping.
func applyHardBands(raw float64, n int, maxSeverity audit.Severity) float64 {
	highOrAbove := maxSeverity == audit.SeverityCritical || maxSeverity == audit.SeverityHigh

	switch {
	case n >= 2 && highOrAbove:
		if raw < 75 {
			return 75
		}
	case n >= 2 && maxSeverity == audit.SeverityMedium:
		if raw < 50 {
			raw = 50
		}
		if raw > 75 {
			raw = 75
		}
	case n == 1 && highOrAbove:
		if raw < 40 {
			raw = 40
		}
		if raw > 49 {
			raw = 49
		}
	case n == 1 && maxSeverity == audit.SeverityMedium:
		if raw < 20 {
			raw = 20
		}
		if raw > 49 {
			raw = 49
		}
	}
	if raw > 100 {
		return 100
	}
	if raw < 0 {
		return 0
	}
	return raw
}

// resolveKey returns f's exact normalized key, or an existing
// near-duplicate key found via fuzzy region matching within the same
// (category, pattern_type) bucket.
func (e *Engine) resolveKey(f audit.Finding) FindingKey {
	key := KeyFor(f)

	e.mapMu.Lock()
	defer e.mapMu.Unlock()

	if _, ok := e.byKey[key]; ok {
		return key
	}

	bucket := bucketOf(key)
	if match, ok := fuzzyRegionMatch(key.Region, e.buckets[bucket]); ok {
		return FindingKey{Category: key.Category, PatternType: key.PatternType, Region: match}
	}

	e.buckets[bucket] = append(e.buckets[bucket], key.Region)
	return key
}

func (e *Engine) entryFor(key FindingKey) *entry {
	e.mapMu.Lock()
	defer e.mapMu.Unlock()
	ent, ok := e.byKey[key]
	if !ok {
		ent = &entry{}
		e.byKey[key] = ent
	}
	return ent
}

// Snapshot returns a stable, independent copy of every known result,
// for use by Judge or reporting (spec.md §4.4).
func (e *Engine) Snapshot() []Result {
	e.mapMu.RLock()
	entries := make([]*entry, 0, len(e.byKey))
	for _, ent := range e.byKey {
		entries = append(entries, ent)
	}
	e.mapMu.RUnlock()

	out := make([]Result, 0, len(entries))
	for _, ent := range entries {
		ent.mu.Lock()
		out = append(out, cloneResult(ent.result))
		ent.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FindingKey.Category < out[j].FindingKey.Category
	})
	return out
}

func cloneResult(r Result) Result {
	sources := make([]audit.Finding, len(r.Sources))
	copy(sources, r.Sources)
	breakdown := make(map[string]float64, len(r.ConfidenceBreakdown))
	for k, v := range r.ConfidenceBreakdown {
		breakdown[k] = v
	}
	notes := make([]string, len(r.ConflictNotes))
	copy(notes, r.ConflictNotes)
	r.Sources = sources
	r.ConfidenceBreakdown = breakdown
	r.ConflictNotes = notes
	return r
}

// GetConfirmed returns every CONFIRMED result.
func (e *Engine) GetConfirmed() []Result { return e.filterStatus(StatusConfirmed) }

// GetConflicted returns every CONFLICTED result.
func (e *Engine) GetConflicted() []Result { return e.filterStatus(StatusConflicted) }

// GetUnconfirmed returns every UNCONFIRMED result.
func (e *Engine) GetUnconfirmed() []Result { return e.filterStatus(StatusUnconfirmed) }

func (e *Engine) filterStatus(status Status) []Result {
	var out []Result
	for _, r := range e.Snapshot() {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}

// FormatConfidence renders "XX%: N sources agree, <severity_label>" for
// the result at key, per spec.md §4.4's helper query.
func (e *Engine) FormatConfidence(key FindingKey) (string, bool) {
	e.mapMu.RLock()
	ent, ok := e.byKey[key]
	e.mapMu.RUnlock()
	if !ok {
		return "", false
	}

	ent.mu.Lock()
	r := cloneResult(ent.result)
	ent.mu.Unlock()

	if len(r.Sources) == 0 {
		return "", false
	}
	maxSeverity := r.Sources[0].Severity
	for _, s := range r.Sources {
		if s.Severity.Rank() > maxSeverity.Rank() {
			maxSeverity = s.Severity
		}
	}
	n := int(r.ConfidenceBreakdown["source_count"])
	return fmt.Sprintf("%.0f%%: %d sources agree, %s", r.AggregatedConfidence, n, maxSeverity), true
}

// Tier maps a confidence score to its qualitative band, using ≥ lower
// bounds per spec.md §4.4.
func Tier(score float64) string {
	switch {
	case score >= 80:
		return "critical"
	case score >= 60:
		return "likely"
	case score >= 40:
		return "suspicious"
	case score >= 20:
		return "moderate"
	default:
		return "low"
	}
}
