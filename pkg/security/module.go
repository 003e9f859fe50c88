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

// Package security implements the Security Tier Scheduler (spec.md
// §4.3): it runs the registered catalog of security modules grouped
// into FAST/MEDIUM/DEEP tiers, enforcing a per-tier deadline and
// producing deterministically-sorted findings. Concrete module bodies
// (OWASP, PCI DSS, GDPR, TLS, cookie, CSP, header checks, ...) are
// configuration data, not part of this package — spec.md §11 treats
// the DEEP catalog as a target, not a fixed contract.
package security

import (
	"context"
	"time"

	"github.com/Jinish2170/elliotAI-sub001/pkg/audit"
)

// Tier is the FAST/MEDIUM/DEEP grouping a module belongs to.
type Tier string

const (
	TierFast   Tier = "FAST"
	TierMedium Tier = "MEDIUM"
	TierDeep   Tier = "DEEP"
)

// Order is the fixed tier execution sequence.
var Order = []Tier{TierFast, TierMedium, TierDeep}

// TierPolicy is one tier's timeout/deadline/parallelism policy, per the
// table in spec.md §4.3.
type TierPolicy struct {
	// DefaultTimeout is applied to a module that doesn't set its own.
	DefaultTimeout time.Duration
	// Deadline bounds the whole tier's wall-clock execution.
	Deadline time.Duration
}

// Policies is the default FAST/MEDIUM/DEEP policy table.
var Policies = map[Tier]TierPolicy{
	TierFast:   {DefaultTimeout: 5 * time.Second, Deadline: 10 * time.Second},
	TierMedium: {DefaultTimeout: 14 * time.Second, Deadline: 30 * time.Second},
	TierDeep:   {DefaultTimeout: 30 * time.Second, Deadline: 60 * time.Second},
}

// ModuleSpec is one registered security module.
type ModuleSpec struct {
	ID       string
	Tier     Tier
	Category string
	// Timeout overrides the tier's DefaultTimeout when non-zero.
	Timeout time.Duration
	// Run performs the module's check. It must honor ctx cancellation.
	Run func(ctx context.Context, input audit.AnalyzerInput) ([]audit.Finding, error)
}

// timeoutFor resolves the effective per-call timeout for m.
func (m ModuleSpec) timeoutFor() time.Duration {
	if m.Timeout > 0 {
		return m.Timeout
	}
	return Policies[m.Tier].DefaultTimeout
}

// ModuleOutcome records one module's result, whether it completed,
// timed out, or was skipped by the DEEP skip-ahead rule.
type ModuleOutcome struct {
	ModuleID string
	Tier     Tier
	Findings []audit.Finding
	Degraded *audit.DegradedResult
	Err      error
}
