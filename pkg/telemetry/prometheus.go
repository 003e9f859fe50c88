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

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusTracer records span durations as a histogram and arbitrary
// metrics as gauges, registered against a caller-supplied registry so
// multiple audits in one process don't collide on metric names.
type PrometheusTracer struct {
	spanDuration *prometheus.HistogramVec
	gauges       *prometheus.GaugeVec
	events       *prometheus.CounterVec
}

// NewPrometheusTracer registers the tracer's collectors with reg and
// returns the Tracer. Pass prometheus.NewRegistry() for test isolation
// or prometheus.DefaultRegisterer in production.
func NewPrometheusTracer(reg prometheus.Registerer, namespace string) *PrometheusTracer {
	t := &PrometheusTracer{
		spanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "span_duration_seconds",
			Help:      "Duration of traced audit operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"span"}),
		gauges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "metric_value",
			Help:      "Point-in-time metrics recorded by the audit engine.",
		}, []string{"metric"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Standalone events recorded by the audit engine.",
		}, []string{"event"}),
	}
	reg.MustRegister(t.spanDuration, t.gauges, t.events)
	return t
}

type promSpanKey struct{}

func (t *PrometheusTracer) StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	span := &Span{Name: name, StartedAt: time.Now()}
	span.SetAttribute("span.name", name)
	return context.WithValue(ContextWithSpan(ctx, span), promSpanKey{}, t), span
}

func (t *PrometheusTracer) EndSpan(span *Span) {
	if span == nil {
		return
	}
	t.spanDuration.WithLabelValues(span.Name).Observe(time.Since(span.StartedAt).Seconds())
}

func (t *PrometheusTracer) RecordMetric(name string, value float64, labels map[string]string) {
	t.gauges.WithLabelValues(name).Set(value)
}

func (t *PrometheusTracer) RecordEvent(_ context.Context, name string, _ map[string]any) {
	t.events.WithLabelValues(name).Inc()
}

func (t *PrometheusTracer) Flush(context.Context) error { return nil }
