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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucket_DrainsThenRefills(t *testing.T) {
	b := NewTokenBucket(10, 5)
	for i := 0; i < 10; i++ {
		assert.True(t, b.TryAcquire(), "token %d should be available from a full bucket", i)
	}
	assert.False(t, b.TryAcquire(), "bucket should be empty after draining capacity")

	time.Sleep(220 * time.Millisecond) // ~1.1 tokens at 5/sec
	assert.True(t, b.TryAcquire(), "bucket should refill over time")
}

func TestTokenBucket_NeverExceedsCapacity(t *testing.T) {
	b := NewTokenBucket(2, 50)
	time.Sleep(100 * time.Millisecond) // far more than enough tokens at this rate
	assert.LessOrEqual(t, b.Available(), 2.0)
}
