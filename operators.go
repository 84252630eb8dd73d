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

// This file holds the operators the overview calls "individually trivial":
// each is a mechanical adapter over processorBase, included for a usable
// surface but not where the interesting backpressure logic lives (that is
// FlatMap, EmitOn, Concat and the overflow strategies).

// Map transforms each item through fn. A returned error, or a panic inside
// fn, terminates the stream with that failure.
func Map[T, R any](fn func(item T) (R, error)) func(Publisher[T]) Publisher[R] {
	return func(upstream Publisher[T]) Publisher[R] {
		return FromFunc(func(downstream Subscriber[R]) {
			op := &mapOp[T, R]{fn: fn}
			op.downstream = downstream
			upstream.Subscribe(op)
		})
	}
}

type mapOp[T, R any] struct {
	processorBase[T, R]
	fn func(T) (R, error)
}

func (o *mapOp[T, R]) OnNext(item T) {
	if o.isDone() {
		return
	}

	var (
		out   R
		fnErr error
	)
	captureErr := capturePanic(func() {
		out, fnErr = o.fn(item)
	})
	if captureErr != nil {
		o.failAndCancel(captureErr)
		return
	}
	if fnErr != nil {
		o.failAndCancel(newUserFailure(fnErr))
		return
	}

	o.downstream.OnNext(out)
}

// Filter keeps only items for which predicate returns true. Rejected items
// are replenished transparently: the downstream's demand count is
// unaffected by a rejection, so one extra upstream item is requested per
// rejection to keep the in-flight item count matched to open demand.
func Filter[T any](predicate func(item T) (bool, error)) func(Publisher[T]) Publisher[T] {
	return func(upstream Publisher[T]) Publisher[T] {
		return FromFunc(func(downstream Subscriber[T]) {
			op := &filterOp[T]{fn: predicate}
			op.downstream = downstream
			upstream.Subscribe(op)
		})
	}
}

type filterOp[T any] struct {
	processorBase[T, T]
	fn func(T) (bool, error)
}

func (o *filterOp[T]) OnNext(item T) {
	if o.isDone() {
		return
	}

	var (
		keep  bool
		fnErr error
	)
	captureErr := capturePanic(func() {
		keep, fnErr = o.fn(item)
	})
	if captureErr != nil {
		o.failAndCancel(captureErr)
		return
	}
	if fnErr != nil {
		o.failAndCancel(newUserFailure(fnErr))
		return
	}

	if keep {
		o.downstream.OnNext(item)
		return
	}
	o.upstream.request(1)
}

// TakeWhile forwards items while predicate holds, then completes and
// cancels the upstream on the first item for which it does not.
func TakeWhile[T any](predicate func(item T) bool) func(Publisher[T]) Publisher[T] {
	return func(upstream Publisher[T]) Publisher[T] {
		return FromFunc(func(downstream Subscriber[T]) {
			op := &takeWhileOp[T]{fn: predicate}
			op.downstream = downstream
			upstream.Subscribe(op)
		})
	}
}

type takeWhileOp[T any] struct {
	processorBase[T, T]
	fn func(T) bool
}

func (o *takeWhileOp[T]) OnNext(item T) {
	if o.isDone() {
		return
	}

	var ok bool
	captureErr := capturePanic(func() {
		ok = o.fn(item)
	})
	if captureErr != nil {
		o.failAndCancel(captureErr)
		return
	}

	if !ok {
		o.completeAndCancel()
		return
	}
	o.downstream.OnNext(item)
}

// Skip discards the first n items, forwarding every item after that. Each
// skipped item is replenished the same way Filter replenishes a rejection.
func Skip[T any](n int64) func(Publisher[T]) Publisher[T] {
	return func(upstream Publisher[T]) Publisher[T] {
		return FromFunc(func(downstream Subscriber[T]) {
			op := &skipOp[T]{remaining: n}
			op.downstream = downstream
			upstream.Subscribe(op)
		})
	}
}

type skipOp[T any] struct {
	processorBase[T, T]
	remaining int64
}

func (o *skipOp[T]) OnNext(item T) {
	if o.isDone() {
		return
	}

	if o.remaining > 0 {
		o.remaining--
		o.upstream.request(1)
		return
	}
	o.downstream.OnNext(item)
}

// Ignore discards every item, forwarding only completion or failure. Used
// when a pipeline is run purely for its side effects.
func Ignore[T any]() func(Publisher[T]) Publisher[struct{}] {
	return func(upstream Publisher[T]) Publisher[struct{}] {
		return FromFunc(func(downstream Subscriber[struct{}]) {
			op := &ignoreOp[T]{}
			op.downstream = downstream
			upstream.Subscribe(op)
		})
	}
}

type ignoreOp[T any] struct {
	processorBase[T, struct{}]
}

func (o *ignoreOp[T]) OnNext(T) {
	if o.isDone() {
		return
	}
	o.upstream.request(1)
}
