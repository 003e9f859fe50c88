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

package supervisor

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Janitor periodically evicts stale EMA history entries so a
// long-running process's memory footprint stays bounded across many
// audits against many distinct sites. It runs independently of any
// single audit's lifetime.
type Janitor struct {
	cron    *cron.Cron
	history *ExecutionHistory
	logger  *zap.Logger
}

// NewJanitor schedules history eviction on the given cron spec (e.g.
// "@every 10m"). The janitor does not start until Start is called.
func NewJanitor(history *ExecutionHistory, logger *zap.Logger, spec string) (*Janitor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	j := &Janitor{
		cron:    cron.New(),
		history: history,
		logger:  logger,
	}
	if spec == "" {
		spec = "@every 10m"
	}
	_, err := j.cron.AddFunc(spec, j.sweep)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Janitor) sweep() {
	evicted := j.history.EvictStale(time.Now())
	if evicted > 0 {
		j.logger.Info("supervisor_history_swept",
			zap.Int("evicted", evicted), zap.Int("remaining", j.history.Len()))
	}
}

// Start begins the background schedule. Stop must be called to release
// the underlying goroutine.
func (j *Janitor) Start() { j.cron.Start() }

// Stop halts the schedule and waits for any in-flight sweep to finish.
func (j *Janitor) Stop() { <-j.cron.Stop().Done() }
