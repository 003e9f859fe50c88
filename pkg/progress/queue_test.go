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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jinish2170/elliotAI-sub001/pkg/audit"
)

func ev(p audit.EventPriority) audit.ProgressEvent {
	return audit.NewEvent(audit.EventHeartbeat, p, "", nil)
}

func TestEventQueue_DrainsHighestPriorityFirst(t *testing.T) {
	q := NewEventQueue(10)
	require.True(t, q.Push(ev(audit.PriorityLow)))
	require.True(t, q.Push(ev(audit.PriorityCritical)))
	require.True(t, q.Push(ev(audit.PriorityMedium)))

	first, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, audit.PriorityCritical, first.Priority)

	second, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, audit.PriorityMedium, second.Priority)
}

func TestEventQueue_EvictsLowestPriorityWhenFull(t *testing.T) {
	q := NewEventQueue(2)
	require.True(t, q.Push(ev(audit.PriorityLow)))
	require.True(t, q.Push(ev(audit.PriorityMedium)))

	require.True(t, q.Push(ev(audit.PriorityHigh)))
	assert.Equal(t, 1, q.Dropped())
	assert.Equal(t, 2, q.Len())

	_, ok := q.Pop()
	require.True(t, ok)
	second, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, audit.PriorityHigh, second.Priority, "the newly admitted HIGH event must survive eviction")
}

func TestEventQueue_CriticalNeverEvictedAndAlwaysAdmitted(t *testing.T) {
	q := NewEventQueue(1)
	require.True(t, q.Push(ev(audit.PriorityCritical)))

	// Queue is full of nothing but CRITICAL; a non-critical arrival
	// must be the one dropped, not the existing CRITICAL event.
	ok := q.Push(ev(audit.PriorityLow))
	assert.False(t, ok)
	assert.Equal(t, 1, q.Dropped())

	remaining, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, audit.PriorityCritical, remaining.Priority)

	// A second CRITICAL must still be admitted even though the queue
	// was full of a CRITICAL event before popping.
	q2 := NewEventQueue(1)
	q2.Push(ev(audit.PriorityCritical))
	ok = q2.Push(ev(audit.PriorityCritical))
	assert.True(t, ok, "CRITICAL events are never dropped, even over capacity")
	assert.Equal(t, 2, q2.Len())
}
