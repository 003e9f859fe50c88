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
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// envelopeSchema is the minimal shape every published event must
// satisfy, per spec.md §6: "Each event carries at minimum: type,
// timestamp_ms, priority, phase (if applicable), payload."
const envelopeSchema = `{
	"type": "object",
	"required": ["type", "timestamp_ms", "priority"],
	"properties": {
		"type": {"type": "string", "minLength": 1},
		"timestamp_ms": {"type": "integer"},
		"priority": {"type": "integer", "minimum": 0, "maximum": 3}
	}
}`

var envelopeSchemaLoader = gojsonschema.NewStringLoader(envelopeSchema)

// validateEnvelope checks that a marshaled event satisfies the shared
// event envelope shape before it reaches the wire.
func validateEnvelope(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("progress: event is not valid JSON: %w", err)
	}
	result, err := gojsonschema.Validate(envelopeSchemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("progress: schema validation error: %w", err)
	}
	if !result.Valid() {
		return fmt.Errorf("progress: event failed schema validation: %v", result.Errors())
	}
	return nil
}
