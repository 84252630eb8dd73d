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

func TestMapTransformsEachItem(t *testing.T) {
	rec := newRecordingSubscriber[int]()
	pipeline := Map(func(n int) (int, error) { return n * 2, nil })(fromSlice([]int{1, 2, 3}))
	pipeline.Subscribe(rec)

	items, completed, failure := rec.snapshot()
	if failure != nil {
		t.Fatalf("unexpected failure: %v", failure)
	}
	if !completed {
		t.Fatalf("expected completion")
	}
	if fmt.Sprint(items) != "[2 4 6]" {
		t.Fatalf("unexpected items: %v", items)
	}
}

func TestMapPropagatesFunctionError(t *testing.T) {
	boom := fmt.Errorf("boom")
	rec := newRecordingSubscriber[int]()
	pipeline := Map(func(n int) (int, error) {
		if n == 2 {
			return 0, boom
		}
		return n, nil
	})(fromSlice([]int{1, 2, 3}))
	pipeline.Subscribe(rec)

	items, completed, failure := rec.snapshot()
	if completed {
		t.Fatalf("did not expect completion")
	}
	if failure == nil {
		t.Fatalf("expected a failure")
	}
	if fmt.Sprint(items) != "[1]" {
		t.Fatalf("unexpected items before failure: %v", items)
	}
}

func TestMapCapturesPanic(t *testing.T) {
	rec := newRecordingSubscriber[int]()
	pipeline := Map(func(n int) (int, error) {
		panic("kaboom")
	})(fromSlice([]int{1}))
	pipeline.Subscribe(rec)

	_, _, failure := rec.snapshot()
	if failure == nil {
		t.Fatalf("expected a failure from the panic")
	}
}

func TestFilterKeepsOnlyMatching(t *testing.T) {
	rec := newRecordingSubscriber[int]()
	pipeline := Filter(func(n int) (bool, error) { return n%2 == 0, nil })(fromSlice([]int{1, 2, 3, 4, 5, 6}))
	pipeline.Subscribe(rec)

	items, completed, failure := rec.snapshot()
	if failure != nil {
		t.Fatalf("unexpected failure: %v", failure)
	}
	if !completed {
		t.Fatalf("expected completion")
	}
	if fmt.Sprint(items) != "[2 4 6]" {
		t.Fatalf("unexpected items: %v", items)
	}
}

func TestTakeWhileStopsAtFirstFalse(t *testing.T) {
	rec := newRecordingSubscriber[int]()
	pipeline := TakeWhile(func(n int) bool { return n < 3 })(fromSlice([]int{1, 2, 3, 4}))
	pipeline.Subscribe(rec)

	items, completed, failure := rec.snapshot()
	if failure != nil {
		t.Fatalf("unexpected failure: %v", failure)
	}
	if !completed {
		t.Fatalf("expected completion once predicate turns false")
	}
	if fmt.Sprint(items) != "[1 2]" {
		t.Fatalf("unexpected items: %v", items)
	}
}

func TestSkipDropsFirstN(t *testing.T) {
	rec := newRecordingSubscriber[int]()
	pipeline := Skip[int](2)(fromSlice([]int{1, 2, 3, 4}))
	pipeline.Subscribe(rec)

	items, completed, _ := rec.snapshot()
	if !completed {
		t.Fatalf("expected completion")
	}
	if fmt.Sprint(items) != "[3 4]" {
		t.Fatalf("unexpected items: %v", items)
	}
}

func TestIgnoreForwardsOnlyTerminal(t *testing.T) {
	rec := newRecordingSubscriber[struct{}]()
	pipeline := Ignore[int]()(fromSlice([]int{1, 2, 3}))
	pipeline.Subscribe(rec)

	items, completed, failure := rec.snapshot()
	if failure != nil {
		t.Fatalf("unexpected failure: %v", failure)
	}
	if !completed {
		t.Fatalf("expected completion")
	}
	if len(items) != 0 {
		t.Fatalf("expected no items, got %v", items)
	}
}

func TestRequestNonPositiveIsProtocolViolation(t *testing.T) {
	rec := &recordingSubscriber[int]{initialReq: 0}
	pipeline := Map(func(n int) (int, error) { return n, nil })(fromSlice([]int{1}))
	pipeline.Subscribe(rec)

	rec.mu.Lock()
	sub := rec.sub
	rec.mu.Unlock()

	sub.Request(0)

	_, _, failure := rec.snapshot()
	if failure == nil {
		t.Fatalf("expected a protocol-violation failure for request(0)")
	}
	var streamErr *Error
	if !asError(failure, &streamErr) || streamErr.Kind != KindProtocolViolation {
		t.Fatalf("expected KindProtocolViolation, got %v", failure)
	}
}

// asError is a tiny errors.As stand-in kept local to this test file to
// avoid importing errors just for one assertion helper.
func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
