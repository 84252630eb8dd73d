// Copyright 2025 samber.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://github.com/samber/ro/blob/main/licenses/LICENSE.apache.md
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package streams

import (
	"fmt"
	"testing"
)

// boundedDemandSubscriber requests demand explicitly instead of the
// default Unbounded, so overflow behavior (which only triggers under
// exhausted demand) is actually exercised.
type boundedDemandSubscriber[T any] struct {
	recordingSubscriber[T]
}

func newBoundedDemandSubscriber[T any](initial int64) *boundedDemandSubscriber[T] {
	s := &boundedDemandSubscriber[T]{}
	s.initialReq = initial
	return s
}

func TestOverflowBufferQueuesPastDemandThenFails(t *testing.T) {
	rec := newBoundedDemandSubscriber[int](0)

	pipeline := Overflow[int](OverflowBuffer, 2, nil)(fromSlice([]int{1, 2, 3, 4}))
	pipeline.Subscribe(rec)

	_, completed, failure := rec.snapshot()
	if completed {
		t.Fatalf("did not expect completion")
	}
	if failure == nil {
		t.Fatalf("expected a back-pressure failure once the 2-item buffer overflowed")
	}
}

func TestOverflowDropDiscardsWithoutDemand(t *testing.T) {
	var dropped []int
	rec := newBoundedDemandSubscriber[int](0)

	pipeline := Overflow[int](OverflowDrop, 0, func(item int) { dropped = append(dropped, item) })(fromSlice([]int{1, 2, 3}))
	pipeline.Subscribe(rec)

	items, completed, failure := rec.snapshot()
	if failure != nil {
		t.Fatalf("unexpected failure: %v", failure)
	}
	if !completed {
		t.Fatalf("expected completion")
	}
	if len(items) != 0 {
		t.Fatalf("expected no items delivered without demand: %v", items)
	}
	if fmt.Sprint(dropped) != "[1 2 3]" {
		t.Fatalf("expected every item to be reported dropped: %v", dropped)
	}
}

func TestOverflowKeepLastRetainsOnlyMostRecent(t *testing.T) {
	rec := newBoundedDemandSubscriber[int](0)

	pipeline := Overflow[int](OverflowKeepLast, 0, nil)(fromSlice([]int{1, 2, 3}))
	pipeline.Subscribe(rec)

	rec.mu.Lock()
	sub := rec.sub
	rec.mu.Unlock()

	// the source has already run to completion with zero demand, so
	// everything but the last item was overwritten in the pending slot;
	// requesting now should flush exactly that last item before the
	// deferred terminal signal follows.
	sub.Request(1)

	items, completed, failure := rec.snapshot()
	if failure != nil {
		t.Fatalf("unexpected failure: %v", failure)
	}
	if !completed {
		t.Fatalf("expected completion once the pending value was flushed")
	}
	if fmt.Sprint(items) != "[3]" {
		t.Fatalf("expected only the most recent item: %v", items)
	}
}
