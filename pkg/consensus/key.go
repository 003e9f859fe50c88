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

// Package consensus implements the Consensus & Confidence Engine
// (spec.md §4.4): it aggregates findings from multiple analyzers under
// a normalized key, runs the finding-status state machine, and
// computes an explainable confidence score.
package consensus

import (
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/Jinish2170/elliotAI-sub001/pkg/audit"
)

// FindingKey is the normalized signature two equivalent findings from
// different analyzers must collide on, per spec.md §4.4.
type FindingKey struct {
	Category    string
	PatternType string
	Region      string
}

// normalize lowercases and trims a raw evidence string so trivial
// formatting differences between analyzers (trailing slash, case,
// whitespace) don't split one real finding into two keys.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// KeyFor derives a finding's normalized key. Region/URL collision uses
// exact match on the normalized string; near-duplicate region strings
// (e.g. a later "#login-form" against an earlier "div#login-form" from
// a different analyzer describing the same DOM element) are folded
// together via a fuzzy match against previously seen keys in
// Engine.resolveKey, since exact normalization alone cannot catch that
// class of near-duplicate. The fuzzy match only folds a region whose
// characters all appear, in order, inside an earlier region, so
// "#login-form" and "#login_form" stay separate keys.
func KeyFor(f audit.Finding) FindingKey {
	return FindingKey{
		Category:    normalize(f.Category),
		PatternType: normalize(f.PatternType),
		Region:      normalize(f.RegionOrURL),
	}
}

// fuzzyRegionMatch reports whether region is a near-duplicate of any
// existing key's region sharing the same category/pattern_type, using
// github.com/sahilm/fuzzy for a cheap token-subsequence match.
func fuzzyRegionMatch(region string, candidates []string) (string, bool) {
	if region == "" || len(candidates) == 0 {
		return "", false
	}
	matches := fuzzy.Find(region, candidates)
	if len(matches) == 0 {
		return "", false
	}
	best := matches[0]
	// Require most of the query's characters to have matched, so
	// "login form" doesn't collide with an unrelated "form data" region.
	if best.Score < len(region)-2 {
		return "", false
	}
	return candidates[best.Index], true
}
