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

package telemetry

import "context"

// NoopTracer discards everything. It is the default when no Tracer is
// configured, matching observability.NewNoOpTracer() in the teacher.
type NoopTracer struct{}

// NewNoopTracer returns a Tracer that does nothing.
func NewNoopTracer() Tracer { return NoopTracer{} }

func (NoopTracer) StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	span := &Span{Name: name}
	return ContextWithSpan(ctx, span), span
}

func (NoopTracer) EndSpan(*Span) {}

func (NoopTracer) RecordMetric(string, float64, map[string]string) {}

func (NoopTracer) RecordEvent(context.Context, string, map[string]any) {}

func (NoopTracer) Flush(context.Context) error { return nil }
