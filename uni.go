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

import "sync/atomic"

// UniSubscriber receives exactly one terminal signal: either OnItem (ok
// true for a real item, false for an empty resolution) or OnFailure.
type UniSubscriber[T any] interface {
	OnItem(item T, ok bool)
	OnFailure(err error)
}

// Uni resolves to a single item, an empty result, or a failure. It is
// built from a Multi via FromPublisher: the first item cancels the
// upstream immediately, since nothing past it will ever be observed.
type Uni[T any] struct {
	pub Publisher[T]
}

// FromPublisher adapts a Multi-shaped Publisher into a Uni that resolves
// to its first item (cancelling the source right after), to empty if the
// source completes without ever emitting, or to the source's failure.
func FromPublisher[T any](pub Publisher[T]) Uni[T] {
	return Uni[T]{pub: pub}
}

// Subscribe runs the Uni, returning a Subscription whose Cancel aborts the
// underlying source. Request is a no-op: a Uni has no downstream demand
// protocol of its own, it always requests exactly one item up front.
func (u Uni[T]) Subscribe(sub UniSubscriber[T]) Subscription {
	op := &uniFromPublisherOp[T]{downstream: sub}
	u.pub.Subscribe(op)
	return op
}

type uniFromPublisherOp[T any] struct {
	upstream   upstreamRef
	downstream UniSubscriber[T]
	done       atomic.Bool
}

func (o *uniFromPublisherOp[T]) OnSubscribe(sub Subscription) {
	if o.upstream.setOnce(sub) {
		sub.Request(1)
	}
}

func (o *uniFromPublisherOp[T]) OnNext(item T) {
	if o.done.CompareAndSwap(false, true) {
		o.upstream.cancel()
		o.downstream.OnItem(item, true)
	}
}

func (o *uniFromPublisherOp[T]) OnComplete() {
	if o.done.CompareAndSwap(false, true) {
		var zero T
		o.downstream.OnItem(zero, false)
	}
}

func (o *uniFromPublisherOp[T]) OnFailure(err error) {
	if o.done.CompareAndSwap(false, true) {
		o.downstream.OnFailure(err)
	}
}

func (o *uniFromPublisherOp[T]) Request(int64) {}

func (o *uniFromPublisherOp[T]) Cancel() {
	o.upstream.cancel()
}
