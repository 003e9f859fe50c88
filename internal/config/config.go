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

// Package config loads the audit engine's configuration surface
// (timeout overrides, feature flags, minimum consensus sources,
// rate-limiter parameters; tier budgets are not configurable here)
// from a YAML file and environment overrides via viper, matching the
// configuration layering used elsewhere in the example pack.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Jinish2170/elliotAI-sub001/pkg/audit"
)

// Config is the fully-resolved configuration surface from spec.md §6.
type Config struct {
	Features            audit.Features
	TimeoutOverrides    map[audit.AnalyzerKind]time.Duration
	MinConsensusSources int
	RateLimiterMaxRate  float64
	RateLimiterBurst    int
}

// Default returns the engine's built-in defaults, used when no config
// file is present.
func Default() Config {
	return Config{
		Features: audit.Features{
			AdaptiveTimeout:   true,
			CircuitBreaker:    true,
			ProgressStreaming: true,
			DualVerdict:       false,
		},
		TimeoutOverrides:    map[audit.AnalyzerKind]time.Duration{},
		MinConsensusSources: 2,
		RateLimiterMaxRate:  5,
		RateLimiterBurst:    10,
	}
}

// Load reads configuration from path (if non-empty) layered with
// AUDITOR_-prefixed environment variables, falling back to Default()
// for anything unset.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("AUDITOR")
	// Map dotted keys to env names, e.g. rate_limiter.max_rate ->
	// AUDITOR_RATE_LIMITER_MAX_RATE.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("features.adaptive_timeout", cfg.Features.AdaptiveTimeout)
	v.SetDefault("features.circuit_breaker", cfg.Features.CircuitBreaker)
	v.SetDefault("features.progress_streaming", cfg.Features.ProgressStreaming)
	v.SetDefault("features.dual_verdict", cfg.Features.DualVerdict)
	v.SetDefault("min_consensus_sources", cfg.MinConsensusSources)
	v.SetDefault("rate_limiter.max_rate", cfg.RateLimiterMaxRate)
	v.SetDefault("rate_limiter.burst", cfg.RateLimiterBurst)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	cfg.Features.AdaptiveTimeout = v.GetBool("features.adaptive_timeout")
	cfg.Features.CircuitBreaker = v.GetBool("features.circuit_breaker")
	cfg.Features.ProgressStreaming = v.GetBool("features.progress_streaming")
	cfg.Features.DualVerdict = v.GetBool("features.dual_verdict")
	cfg.MinConsensusSources = v.GetInt("min_consensus_sources")
	cfg.RateLimiterMaxRate = v.GetFloat64("rate_limiter.max_rate")
	cfg.RateLimiterBurst = v.GetInt("rate_limiter.burst")

	overrides := v.GetStringMap("timeout_overrides")
	for k := range overrides {
		d := v.GetDuration("timeout_overrides." + k)
		if d > 0 {
			cfg.TimeoutOverrides[audit.AnalyzerKind(k)] = d
		}
	}

	return cfg, nil
}
