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

package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jinish2170/elliotAI-sub001/pkg/audit"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCache_PutThenGetRoundTrips(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	want := &audit.Result{
		Findings: []audit.Finding{{ID: "f1", Category: "forms_insecure", Severity: audit.SeverityHigh}},
		Metrics:  map[string]float64{"trust_score": 72},
	}
	require.NoError(t, c.Put(ctx, audit.AnalyzerSecurity, "https://example.com", want))

	got, age, ok, err := c.Get(ctx, audit.AnalyzerSecurity, "https://example.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.GreaterOrEqual(t, age.Seconds(), 0.0)
	require.Len(t, got.Findings, 1)
	assert.Equal(t, "f1", got.Findings[0].ID)
	assert.Equal(t, 72.0, got.Metrics["trust_score"])
}

func TestCache_PutOverwritesPriorEntryForSameKey(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, audit.AnalyzerVision, "https://example.com", &audit.Result{Metrics: map[string]float64{"trust_score": 10}}))
	require.NoError(t, c.Put(ctx, audit.AnalyzerVision, "https://example.com", &audit.Result{Metrics: map[string]float64{"trust_score": 90}}))

	got, _, ok, err := c.Get(ctx, audit.AnalyzerVision, "https://example.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 90.0, got.Metrics["trust_score"])
}

func TestCache_GetMissReturnsOkFalseWithoutError(t *testing.T) {
	c := openTestCache(t)

	got, _, ok, err := c.Get(context.Background(), audit.AnalyzerScout, "https://unseen.example")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestCache_CachedFallbackHit(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, audit.AnalyzerOSINT, "https://example.com", &audit.Result{
		Findings: []audit.Finding{{ID: "f1"}},
	}))

	degraded, ok := c.CachedFallback(ctx, audit.AnalyzerOSINT, "https://example.com")
	require.True(t, ok)
	require.NotNil(t, degraded)
	assert.Equal(t, audit.FallbackCached, degraded.FallbackMode)
	assert.Greater(t, degraded.QualityPenalty, 0.0)
}

func TestCache_CachedFallbackMiss(t *testing.T) {
	c := openTestCache(t)

	degraded, ok := c.CachedFallback(context.Background(), audit.AnalyzerGraph, "https://unseen.example")
	assert.False(t, ok)
	assert.Nil(t, degraded)
}

func TestCache_IndependentKeysDoNotCollide(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, audit.AnalyzerSecurity, "https://a.example", &audit.Result{Metrics: map[string]float64{"trust_score": 20}}))
	require.NoError(t, c.Put(ctx, audit.AnalyzerSecurity, "https://b.example", &audit.Result{Metrics: map[string]float64{"trust_score": 80}}))

	a, _, ok, err := c.Get(ctx, audit.AnalyzerSecurity, "https://a.example")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 20.0, a.Metrics["trust_score"])

	b, _, ok, err := c.Get(ctx, audit.AnalyzerSecurity, "https://b.example")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 80.0, b.Metrics["trust_score"])
}
