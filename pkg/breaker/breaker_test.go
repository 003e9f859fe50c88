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
package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jinish2170/elliotAI-sub001/pkg/audit"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BaseOpenDuration = 20 * time.Millisecond
	cfg.MaxOpenDuration = 200 * time.Millisecond
	return cfg
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New(audit.AnalyzerVision, testConfig(), nil)

	for i := 0; i < 2; i++ {
		ok, err := b.Allow()
		require.True(t, ok)
		require.NoError(t, err)
		b.RecordFailure()
	}
	assert.Equal(t, Closed, b.State(), "below threshold should stay closed")

	ok, err := b.Allow()
	require.True(t, ok)
	b.RecordFailure()
	assert.Equal(t, Open, b.State(), "threshold failures should open the breaker")

	ok, err = b.Allow()
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestBreaker_HalfOpenAdmitsProbesThenCloses(t *testing.T) {
	b := New(audit.AnalyzerSecurity, testConfig(), nil)

	for i := 0; i < 3; i++ {
		b.Allow()
		b.RecordFailure()
	}
	require.Equal(t, Open, b.State())

	time.Sleep(30 * time.Millisecond)

	ok, err := b.Allow()
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, HalfOpen, b.State())

	b.RecordSuccess()
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New(audit.AnalyzerScout, testConfig(), nil)
	for i := 0; i < 3; i++ {
		b.Allow()
		b.RecordFailure()
	}
	time.Sleep(30 * time.Millisecond)
	ok, _ := b.Allow()
	require.True(t, ok)
	require.Equal(t, HalfOpen, b.State())

	b.RecordFailure()
	assert.Equal(t, Open, b.State())
}

func TestBreaker_ExponentialBackoffGrows(t *testing.T) {
	b := New(audit.AnalyzerGraph, testConfig(), nil)
	for i := 0; i < 3; i++ {
		b.Allow()
		b.RecordFailure()
	}
	first := b.openDuration

	time.Sleep(30 * time.Millisecond)
	b.Allow() // half-open
	b.RecordFailure()
	second := b.openDuration

	assert.Greater(t, second, first, "backoff must grow on repeated opens")
	assert.LessOrEqual(t, second, b.config.MaxOpenDuration)
}

func TestManager_IndependentBreakersPerAnalyzer(t *testing.T) {
	m := NewManager(testConfig(), nil)

	visionBreaker := m.For(audit.AnalyzerVision)
	for i := 0; i < 3; i++ {
		visionBreaker.Allow()
		visionBreaker.RecordFailure()
	}

	securityBreaker := m.For(audit.AnalyzerSecurity)
	ok, err := securityBreaker.Allow()
	require.True(t, ok)
	require.NoError(t, err)

	states := m.States()
	assert.Equal(t, Open, states[audit.AnalyzerVision])
	assert.Equal(t, Closed, states[audit.AnalyzerSecurity])
}
