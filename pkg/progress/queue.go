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

	"github.com/Jinish2170/elliotAI-sub001/pkg/audit"
)

// EventQueue is the bounded, priority-ordered backlog an Emitter drains
// against its token bucket. When full, the lowest-priority queued
// event is evicted to make room if its priority is no higher than the
// arriving event's; otherwise the arriving event is dropped. CRITICAL
// events are never evicted and are always admitted even past capacity
// (spec.md §4.5).
type EventQueue struct {
	mu       sync.Mutex
	capacity int
	buckets  map[audit.EventPriority][]audit.ProgressEvent
	dropped  int
}

// priorityOrder is highest-priority-first for draining, and its
// reverse is eviction order (lowest priority evicted first).
var priorityOrder = []audit.EventPriority{
	audit.PriorityCritical, audit.PriorityHigh, audit.PriorityMedium, audit.PriorityLow,
}

// NewEventQueue creates an empty bounded queue.
func NewEventQueue(capacity int) *EventQueue {
	return &EventQueue{
		capacity: capacity,
		buckets:  make(map[audit.EventPriority][]audit.ProgressEvent),
	}
}

func (q *EventQueue) lenLocked() int {
	n := 0
	for _, b := range q.buckets {
		n += len(b)
	}
	return n
}

// Push enqueues ev, evicting the oldest queued event of the lowest
// priority present, if that priority is no higher than ev's, when the
// queue is at capacity. Returns false if ev itself was dropped instead
// (only possible for a non-CRITICAL event arriving when every queued
// event has a higher priority than ev).
func (q *EventQueue) Push(ev audit.ProgressEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.lenLocked() < q.capacity {
		q.buckets[ev.Priority] = append(q.buckets[ev.Priority], ev)
		return true
	}

	// Evict the lowest-priority queued event, scanning from LOW up to
	// (but excluding) CRITICAL, and never past ev's own priority.
	for i := len(priorityOrder) - 1; i > 0; i-- {
		p := priorityOrder[i]
		if p < ev.Priority {
			break
		}
		if len(q.buckets[p]) > 0 {
			q.buckets[p] = q.buckets[p][1:]
			q.dropped++
			q.buckets[ev.Priority] = append(q.buckets[ev.Priority], ev)
			return true
		}
	}

	if ev.Priority == audit.PriorityCritical {
		q.buckets[ev.Priority] = append(q.buckets[ev.Priority], ev)
		return true
	}

	q.dropped++
	return false
}

// Pop removes and returns the highest-priority, oldest-enqueued event,
// or ok=false if the queue is empty.
func (q *EventQueue) Pop() (ev audit.ProgressEvent, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, p := range priorityOrder {
		if len(q.buckets[p]) > 0 {
			ev = q.buckets[p][0]
			q.buckets[p] = q.buckets[p][1:]
			return ev, true
		}
	}
	return audit.ProgressEvent{}, false
}

// Len reports the total number of queued events across all priorities.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// Dropped reports the cumulative number of events this queue has
// dropped, surfaced in AuditResult.Metadata's dropped-events count.
func (q *EventQueue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
