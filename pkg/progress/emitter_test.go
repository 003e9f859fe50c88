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
	"context"
	"sync"
	"testing"
	"time"

	"github.com/r3labs/sse/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jinish2170/elliotAI-sub001/pkg/audit"
)

// fakeSink records every published event for assertions.
type fakeSink struct {
	mu     sync.Mutex
	events []*sse.Event
}

func (f *fakeSink) Publish(streamID string, event *sse.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func (f *fakeSink) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = string(e.Event)
	}
	return out
}

func newTestEmitter(sink Sink) *Emitter {
	return New(Config{
		Sink:              sink,
		StreamID:          "audit-test",
		SiteType:          "spa",
		BucketCapacity:    10,
		RefillRate:        5,
		QueueCapacity:     50,
		HeartbeatInterval: time.Hour, // disabled for most tests
		DrainTick:         5 * time.Millisecond,
		CloseGracePeriod:  200 * time.Millisecond,
	})
}

func TestEmitter_PublishesImmediatelyWhenTokensAvailable(t *testing.T) {
	sink := &fakeSink{}
	e := newTestEmitter(sink)
	defer e.Close(context.Background())

	e.EmitHeartbeat()
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestEmitter_FindingBatchFlushesAtFive(t *testing.T) {
	sink := &fakeSink{}
	e := newTestEmitter(sink)
	defer e.Close(context.Background())

	for i := 0; i < 4; i++ {
		e.EmitFinding(audit.Finding{ID: "f"})
	}
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, sink.count(), "batch must not flush before 5 findings")

	e.EmitFinding(audit.Finding{ID: "f5"})
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "findings_batch", sink.types()[0])
}

func TestEmitter_ExplicitFlushEmitsPartialBatch(t *testing.T) {
	sink := &fakeSink{}
	e := newTestEmitter(sink)
	defer e.Close(context.Background())

	e.EmitFinding(audit.Finding{ID: "only-one"})
	e.Flush()
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestEmitter_CloseEmitsAuditCompleteLast(t *testing.T) {
	sink := &fakeSink{}
	e := newTestEmitter(sink)

	e.EmitHeartbeat()
	e.Close(context.Background())

	require.NotEmpty(t, sink.types())
	assert.Equal(t, "audit_complete", sink.types()[len(sink.types())-1])
}

func TestEmitter_NoOpAfterClose(t *testing.T) {
	sink := &fakeSink{}
	e := newTestEmitter(sink)
	e.Close(context.Background())

	before := sink.count()
	e.EmitHeartbeat()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, sink.count(), "Emit after Close must be a no-op")
}

func TestEmitter_DropsUnderSustainedBurstWithoutBlocking(t *testing.T) {
	sink := &fakeSink{}
	e := New(Config{
		Sink: sink, StreamID: "burst", SiteType: "spa",
		BucketCapacity: 2, RefillRate: 1, QueueCapacity: 3,
		HeartbeatInterval: time.Hour, DrainTick: 5 * time.Millisecond,
	})
	defer e.Close(context.Background())

	for i := 0; i < 20; i++ {
		e.Emit(audit.NewEvent(audit.EventLogEntry, audit.PriorityLow, "", i))
	}

	assert.Greater(t, e.DroppedCount(), 0, "a burst far exceeding bucket+queue capacity must drop events rather than block")
}
