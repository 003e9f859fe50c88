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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"

	"github.com/Jinish2170/elliotAI-sub001/pkg/audit"
)

// Sink is the publishing target an Emitter writes to. *sse.Server
// satisfies it via Publish(streamID string, event *sse.Event); tests
// substitute a recording fake.
type Sink interface {
	Publish(streamID string, event *sse.Event)
}

// Config wires one Emitter instance, one per audit session.
type Config struct {
	Logger   *zap.Logger
	Sink     Sink
	StreamID string
	SiteType string

	BucketCapacity      float64
	RefillRate          float64
	QueueCapacity       int
	GzipThresholdBytes  int
	HeartbeatInterval   time.Duration
	FindingBatchSize    int
	CloseGracePeriod    time.Duration
	DrainTick           time.Duration
}

func (c *Config) applyDefaults() {
	if c.BucketCapacity == 0 {
		c.BucketCapacity = 10
	}
	if c.RefillRate == 0 {
		c.RefillRate = 5
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = 50
	}
	if c.GzipThresholdBytes == 0 {
		c.GzipThresholdBytes = 2048
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 7 * time.Second
	}
	if c.FindingBatchSize == 0 {
		c.FindingBatchSize = 5
	}
	if c.CloseGracePeriod == 0 {
		c.CloseGracePeriod = 2 * time.Second
	}
	if c.DrainTick == 0 {
		c.DrainTick = 100 * time.Millisecond
	}
}

// Emitter is the Progress Emitter (C5): rate-limited, priority-aware,
// with finding batching, screenshot compression, heartbeat pacing, and
// ETA estimation.
type Emitter struct {
	cfg    Config
	bucket *TokenBucket
	queue  *EventQueue
	eta    *ETATracker
	logger *zap.Logger

	mu            sync.Mutex
	findingBuffer []audit.Finding
	lastEmit      time.Time
	closed        bool
	notCompleted  []audit.AnalyzerKind

	stop chan struct{}
	done chan struct{}
}

// New constructs and starts an Emitter's background drain/heartbeat loop.
func New(cfg Config) *Emitter {
	cfg.applyDefaults()
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Emitter{
		cfg:      cfg,
		bucket:   NewTokenBucket(cfg.BucketCapacity, cfg.RefillRate),
		queue:    NewEventQueue(cfg.QueueCapacity),
		eta:      NewETATracker(),
		logger:   logger,
		lastEmit: time.Now(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *Emitter) run() {
	defer close(e.done)
	drainTicker := time.NewTicker(e.cfg.DrainTick)
	defer drainTicker.Stop()
	heartbeatTicker := time.NewTicker(time.Second)
	defer heartbeatTicker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-drainTicker.C:
			e.drainOnce()
		case <-heartbeatTicker.C:
			e.maybeHeartbeat()
		}
	}
}

func (e *Emitter) drainOnce() {
	if !e.bucket.TryAcquire() {
		return
	}
	ev, ok := e.queue.Pop()
	if !ok {
		return
	}
	e.publish(ev)
}

func (e *Emitter) maybeHeartbeat() {
	e.mu.Lock()
	idle := time.Since(e.lastEmit)
	e.mu.Unlock()
	if idle >= e.cfg.HeartbeatInterval {
		e.emitInternal(audit.NewEvent(audit.EventHeartbeat, audit.PriorityLow, "", nil))
	}
}

// Emit publishes a caller-constructed event, queueing it if the token
// bucket is currently empty.
func (e *Emitter) Emit(ev audit.ProgressEvent) {
	e.emitInternal(ev)
}

func (e *Emitter) emitInternal(ev audit.ProgressEvent) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return
	}
	e.publishOrQueue(ev)
}

func (e *Emitter) publishOrQueue(ev audit.ProgressEvent) {
	if e.bucket.TryAcquire() {
		e.publish(ev)
		return
	}
	if !e.queue.Push(ev) {
		e.logger.Warn("progress_event_dropped", zap.String("type", string(ev.Type)), zap.Int("priority", int(ev.Priority)))
	}
}

func (e *Emitter) publish(ev audit.ProgressEvent) {
	e.mu.Lock()
	e.lastEmit = time.Now()
	e.mu.Unlock()

	raw, err := json.Marshal(ev)
	if err != nil {
		e.logger.Error("progress_event_marshal_failed", zap.Error(err))
		return
	}
	if err := validateEnvelope(raw); err != nil {
		e.logger.Error("progress_event_invalid", zap.Error(err))
		return
	}

	payload := raw
	encoding := "identity"
	if len(raw) > e.cfg.GzipThresholdBytes {
		if compressed, err := gzipBytes(raw); err == nil {
			payload = compressed
			encoding = "gzip"
		}
	}

	if e.cfg.Sink == nil {
		return
	}
	e.cfg.Sink.Publish(e.cfg.StreamID, &sse.Event{
		Event: []byte(ev.Type),
		Data:  payload,
	})
	e.logger.Debug("progress_event_published",
		zap.String("type", string(ev.Type)), zap.String("encoding", encoding))
}

func gzipBytes(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EmitFinding buffers a finding, flushing a findings_batch event once
// the buffer reaches FindingBatchSize (spec.md §4.5's finding batching).
func (e *Emitter) EmitFinding(f audit.Finding) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.findingBuffer = append(e.findingBuffer, f)
	shouldFlush := len(e.findingBuffer) >= e.cfg.FindingBatchSize
	e.mu.Unlock()

	if shouldFlush {
		e.Flush()
	}
}

// Flush emits any buffered findings as a single findings_batch event.
func (e *Emitter) Flush() {
	e.mu.Lock()
	if len(e.findingBuffer) == 0 {
		e.mu.Unlock()
		return
	}
	batch := e.findingBuffer
	e.findingBuffer = nil
	e.mu.Unlock()

	e.publishOrQueue(audit.NewEvent(audit.EventFindingsBatch, audit.PriorityHigh, "", batch))
}

// EmitAgentStatus emits an agent_status event carrying an eta field
// computed from the ETATracker.
func (e *Emitter) EmitAgentStatus(agent audit.AnalyzerKind, state string, notYetCompleted []audit.AnalyzerKind) {
	eta := e.eta.Remaining(e.cfg.SiteType, notYetCompleted)
	e.emitInternal(audit.NewEvent(audit.EventAgentStatus, audit.PriorityMedium, "", map[string]any{
		"agent":       agent,
		"state":       state,
		"eta_seconds": eta.Seconds(),
	}))
}

// RecordAgentDuration feeds a completed agent's wall-clock time into
// the ETATracker for future estimates.
func (e *Emitter) RecordAgentDuration(agent audit.AnalyzerKind, d time.Duration) {
	e.eta.Record(e.cfg.SiteType, agent, d)
}

// EmitScreenshot compresses the screenshot read from r to the fixed
// thumbnail shape and emits it as a screenshot event.
func (e *Emitter) EmitScreenshot(r io.Reader, phase string) error {
	thumb, err := compressScreenshot(r)
	if err != nil {
		return err
	}
	e.emitInternal(audit.NewEvent(audit.EventScreenshot, audit.PriorityLow, phase, map[string]any{
		"thumbnail_jpeg": thumb,
	}))
	return nil
}

// EmitHighlight emits a pre-registered "interesting highlight" on
// demand. Idle-based pacing never calls it; that path emits a bare
// heartbeat (see maybeHeartbeat).
func (e *Emitter) EmitHighlight(text string) {
	e.emitInternal(audit.NewEvent(audit.EventInterestingHighlight, audit.PriorityLow, "", map[string]any{"text": text}))
}

// EmitHeartbeat emits a bare heartbeat event on demand, independent of
// the automatic idle-based pacing.
func (e *Emitter) EmitHeartbeat() {
	e.emitInternal(audit.NewEvent(audit.EventHeartbeat, audit.PriorityLow, "", nil))
}

// DroppedCount returns the cumulative number of events this Emitter
// has dropped, for AuditResult.Metadata.
func (e *Emitter) DroppedCount() int { return e.queue.Dropped() }

// Close stops the background loop, then drains buffered findings and
// the queued backlog respecting the token bucket for up to
// CloseGracePeriod, then emits audit_complete. After Close,
// Emit/EmitFinding/etc. are no-ops.
func (e *Emitter) Close(ctx context.Context) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	close(e.stop)
	<-e.done

	e.Flush()

	deadline := time.Now().Add(e.cfg.CloseGracePeriod)
	for e.queue.Len() > 0 && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			deadline = time.Now()
		default:
		}
		if e.bucket.TryAcquire() {
			if ev, ok := e.queue.Pop(); ok {
				e.publish(ev)
				continue
			}
		}
		time.Sleep(20 * time.Millisecond)
	}

	e.publish(audit.NewEvent(audit.EventAuditComplete, audit.PriorityCritical, "", map[string]any{
		"dropped_events": e.queue.Dropped(),
	}))
}
