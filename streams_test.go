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
	"sync"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fromSlice builds a Publisher that emits every element of items in order,
// honoring demand one request at a time, then completes.
func fromSlice[T any](items []T) Publisher[T] {
	return FromFunc(func(sub Subscriber[T]) {
		s := &sliceSubscription[T]{items: items, sub: sub}
		sub.OnSubscribe(s)
	})
}

type sliceSubscription[T any] struct {
	items     []T
	sub       Subscriber[T]
	mu        sync.Mutex
	idx       int
	cancelled bool
}

// Request is reentrant-safe: a downstream operator's OnNext handler is
// allowed to call Request synchronously (Filter/Skip do, to replenish a
// rejected item), so the lock is never held while delivering a signal.
func (s *sliceSubscription[T]) Request(n int64) {
	for n > 0 {
		s.mu.Lock()
		if s.cancelled {
			s.mu.Unlock()
			return
		}
		if s.idx >= len(s.items) {
			s.mu.Unlock()
			s.sub.OnComplete()
			return
		}
		item := s.items[s.idx]
		s.idx++
		atEnd := s.idx >= len(s.items)
		s.mu.Unlock()

		s.sub.OnNext(item)
		n--

		if atEnd {
			s.mu.Lock()
			cancelled := s.cancelled
			s.mu.Unlock()
			if !cancelled {
				s.sub.OnComplete()
			}
			return
		}
	}
}

func (s *sliceSubscription[T]) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
}

// emptySource completes immediately on the first Request.
func emptySource[T any]() Publisher[T] {
	return fromSlice[T](nil)
}

// failSource fails immediately on the first Request, with err.
func failSource[T any](err error) Publisher[T] {
	return FromFunc(func(sub Subscriber[T]) {
		sub.OnSubscribe(&failSubscription{fn: func() { sub.OnFailure(err) }})
	})
}

type failSubscription struct {
	once sync.Once
	fn   func()
}

func (s *failSubscription) Request(int64) {
	s.once.Do(s.fn)
}

func (s *failSubscription) Cancel() {}

// recordingSubscriber accumulates every signal it receives and requests
// Unbounded demand up front unless told otherwise.
type recordingSubscriber[T any] struct {
	mu         sync.Mutex
	sub        Subscription
	items      []T
	completed  bool
	failure    error
	initialReq int64
}

func newRecordingSubscriber[T any]() *recordingSubscriber[T] {
	return &recordingSubscriber[T]{initialReq: Unbounded}
}

func (r *recordingSubscriber[T]) OnSubscribe(sub Subscription) {
	r.mu.Lock()
	r.sub = sub
	req := r.initialReq
	r.mu.Unlock()
	if req > 0 {
		sub.Request(req)
	}
}

func (r *recordingSubscriber[T]) OnNext(item T) {
	r.mu.Lock()
	r.items = append(r.items, item)
	r.mu.Unlock()
}

func (r *recordingSubscriber[T]) OnComplete() {
	r.mu.Lock()
	r.completed = true
	r.mu.Unlock()
}

func (r *recordingSubscriber[T]) OnFailure(err error) {
	r.mu.Lock()
	r.failure = err
	r.mu.Unlock()
}

func (r *recordingSubscriber[T]) snapshot() (items []T, completed bool, failure error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.items...), r.completed, r.failure
}

func TestFromFuncSubscribe(t *testing.T) {
	rec := newRecordingSubscriber[int]()
	fromSlice([]int{1, 2, 3}).Subscribe(rec)

	items, completed, failure := rec.snapshot()
	if failure != nil {
		t.Fatalf("unexpected failure: %v", failure)
	}
	if !completed {
		t.Fatalf("expected completion")
	}
	if fmt.Sprint(items) != "[1 2 3]" {
		t.Fatalf("unexpected items: %v", items)
	}
}

func TestOnUnhandledErrorDefaultAndOverride(t *testing.T) {
	var captured error
	SetOnUnhandledError(func(err error) { captured = err })
	defer SetOnUnhandledError(nil)

	OnUnhandledError(fmt.Errorf("boom"))
	if captured == nil || captured.Error() != "boom" {
		t.Fatalf("hook did not capture error: %v", captured)
	}
}
