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

// Package logging builds the zap.Logger used across the engine. It
// follows the teacher's pattern of defaulting to zap.NewNop() whenever
// a caller doesn't supply a logger, so components never nil-check.
package logging

import "go.uber.org/zap"

// New builds a production JSON logger, or a development console logger
// when dev is true.
func New(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// OrDefault returns logger if non-nil, otherwise a no-op logger —
// the same guard NewOrchestrator applies to Config.Logger.
func OrDefault(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
