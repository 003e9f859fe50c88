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

// EventPriority orders ProgressEvents for the token-bucket rate
// limiter's drop policy. Lower value is higher priority; CRITICAL is
// never dropped.
type EventPriority int

const (
	PriorityCritical EventPriority = 0
	PriorityHigh     EventPriority = 1
	PriorityMedium   EventPriority = 2
	PriorityLow      EventPriority = 3
)

// EventType enumerates the event kinds published by the Progress
// Emitter (spec.md §6).
type EventType string

const (
	EventPhaseStart          EventType = "phase_start"
	EventPhaseComplete       EventType = "phase_complete"
	EventPhaseError          EventType = "phase_error"
	EventAgentStatus         EventType = "agent_status"
	EventFinding             EventType = "finding"
	EventFindingsBatch       EventType = "findings_batch"
	EventScreenshot          EventType = "screenshot"
	EventStatsUpdate         EventType = "stats_update"
	EventLogEntry            EventType = "log_entry"
	EventHeartbeat           EventType = "heartbeat"
	EventInterestingHighlight EventType = "interesting_highlight"
	EventAuditResult         EventType = "audit_result"
	EventAuditComplete       EventType = "audit_complete"
)

// ProgressEvent is the JSON-serializable unit the Progress Emitter
// publishes. Payload is intentionally `any` — concrete payload shapes
// (phase update, finding batch, screenshot thumbnail, agent status,
// error, heartbeat, highlight) are built by the progress package.
type ProgressEvent struct {
	Type        EventType     `json:"type"`
	Priority    EventPriority `json:"priority"`
	TimestampMs int64         `json:"timestamp_ms"`
	Phase       string        `json:"phase,omitempty"`
	Payload     any           `json:"payload,omitempty"`
}

// NewEvent stamps the current time in milliseconds.
func NewEvent(typ EventType, priority EventPriority, phase string, payload any) ProgressEvent {
	return ProgressEvent{
		Type:        typ,
		Priority:    priority,
		TimestampMs: time.Now().UnixMilli(),
		Phase:       phase,
		Payload:     payload,
	}
}
