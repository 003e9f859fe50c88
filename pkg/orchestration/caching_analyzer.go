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

package orchestration

import (
	"context"

	"github.com/Jinish2170/elliotAI-sub001/pkg/audit"
	"github.com/Jinish2170/elliotAI-sub001/pkg/storage"
)

// cachingAnalyzer decorates an analyzer with the CACHED fallback mode
// backed by pkg/storage: a successful call is persisted, and a failure
// the delegate can't otherwise handle falls back to whatever was last
// cached for (kind, url) before giving up to FallbackNone. This is the
// Fallback registry's CACHED producer (spec.md §6), kept out of the
// Supervisor itself so CACHED support is opt-in per deployment.
type cachingAnalyzer struct {
	delegate audit.Analyzer
	cache    *storage.Cache
}

func wrapWithCache(delegate audit.Analyzer, cache *storage.Cache) audit.Analyzer {
	if delegate == nil || cache == nil {
		return delegate
	}
	return &cachingAnalyzer{delegate: delegate, cache: cache}
}

func (c *cachingAnalyzer) Kind() audit.AnalyzerKind { return c.delegate.Kind() }

func (c *cachingAnalyzer) Execute(ctx context.Context, input audit.AnalyzerInput) (*audit.Result, error) {
	result, err := c.delegate.Execute(ctx, input)
	if err == nil && result != nil {
		_ = c.cache.Put(ctx, c.Kind(), input.URL, result)
	}
	return result, err
}

func (c *cachingAnalyzer) SupportsFallback() bool { return true }

func (c *cachingAnalyzer) FallbackFor(ctx context.Context, input audit.AnalyzerInput, mode audit.FailureMode) (*audit.DegradedResult, error) {
	if c.delegate.SupportsFallback() {
		if degraded, err := c.delegate.FallbackFor(ctx, input, mode); err == nil && degraded != nil {
			return degraded, nil
		}
	}
	if degraded, ok := c.cache.CachedFallback(ctx, c.Kind(), input.URL); ok {
		return degraded, nil
	}
	return &audit.DegradedResult{
		ResultData:     map[string]any{},
		FallbackMode:   audit.FallbackNone,
		MissingData:    []string{"all"},
		QualityPenalty: audit.QualityPenaltyFor(audit.FallbackNone, mode == audit.FailureTimeout),
	}, nil
}
