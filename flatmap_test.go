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
	"sort"
	"testing"
)

func TestFlatMapMergesAllInnerItems(t *testing.T) {
	mapper := func(n int) (Publisher[int], error) {
		return fromSlice([]int{n * 10, n*10 + 1}), nil
	}

	rec := newRecordingSubscriber[int]()
	FlatMap(mapper)(fromSlice([]int{1, 2, 3})).Subscribe(rec)

	items, completed, failure := rec.snapshot()
	if failure != nil {
		t.Fatalf("unexpected failure: %v", failure)
	}
	if !completed {
		t.Fatalf("expected completion")
	}
	if len(items) != 6 {
		t.Fatalf("expected 6 merged items, got %v", items)
	}

	sort.Ints(items)
	want := []int{10, 11, 20, 21, 30, 31}
	if fmt.Sprint(items) != fmt.Sprint(want) {
		t.Fatalf("unexpected merged set: %v", items)
	}
}

func TestFlatMapEagerFailureCancelsOutstandingInners(t *testing.T) {
	boom := fmt.Errorf("inner boom")
	mapper := func(n int) (Publisher[int], error) {
		if n == 2 {
			return failSource[int](boom), nil
		}
		return fromSlice([]int{n}), nil
	}

	rec := newRecordingSubscriber[int]()
	FlatMap(mapper)(fromSlice([]int{1, 2, 3})).Subscribe(rec)

	_, completed, failure := rec.snapshot()
	if completed {
		t.Fatalf("did not expect completion")
	}
	if failure == nil {
		t.Fatalf("expected the inner failure to propagate")
	}
}

func TestFlatMapPostponedFailureWaitsForAllInners(t *testing.T) {
	boom := fmt.Errorf("postponed boom")
	mapper := func(n int) (Publisher[int], error) {
		if n == 2 {
			return failSource[int](boom), nil
		}
		return fromSlice([]int{n, n}), nil
	}

	rec := newRecordingSubscriber[int]()
	FlatMap(mapper, WithPostponedFailures())(fromSlice([]int{1, 2, 3})).Subscribe(rec)

	items, completed, failure := rec.snapshot()
	if completed {
		t.Fatalf("did not expect completion")
	}
	if failure == nil {
		t.Fatalf("expected the accumulated failure to surface")
	}
	// items from the non-failing inner streams (1 and 3) should still have
	// made it through before the postponed failure surfaced.
	if len(items) == 0 {
		t.Fatalf("expected surviving inner items to be delivered")
	}
}

func TestFlatMapRejectsNilPublisherFromMapper(t *testing.T) {
	mapper := func(n int) (Publisher[int], error) { return nil, nil }

	rec := newRecordingSubscriber[int]()
	FlatMap(mapper)(fromSlice([]int{1})).Subscribe(rec)

	_, _, failure := rec.snapshot()
	if failure == nil {
		t.Fatalf("expected a protocol-violation failure for a nil inner publisher")
	}
}

func TestFlatMapBoundedConcurrencyStillDrainsEverything(t *testing.T) {
	mapper := func(n int) (Publisher[int], error) {
		return fromSlice([]int{n}), nil
	}

	rec := newRecordingSubscriber[int]()
	FlatMap(mapper, WithMaxConcurrency(2))(fromSlice([]int{1, 2, 3, 4, 5})).Subscribe(rec)

	items, completed, failure := rec.snapshot()
	if failure != nil {
		t.Fatalf("unexpected failure: %v", failure)
	}
	if !completed {
		t.Fatalf("expected completion")
	}
	if len(items) != 5 {
		t.Fatalf("expected all 5 items even with bounded concurrency, got %v", items)
	}
}

func TestFlatMapEmptyUpstreamCompletesImmediately(t *testing.T) {
	rec := newRecordingSubscriber[int]()
	FlatMap(func(n int) (Publisher[int], error) {
		return fromSlice([]int{n}), nil
	})(emptySource[int]()).Subscribe(rec)

	items, completed, failure := rec.snapshot()
	if failure != nil {
		t.Fatalf("unexpected failure: %v", failure)
	}
	if !completed {
		t.Fatalf("expected completion for an empty upstream")
	}
	if len(items) != 0 {
		t.Fatalf("expected no items: %v", items)
	}
}
