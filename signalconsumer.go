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

// SignalConsumerCallbacks are fired, in addition to the normal forwarding
// of each signal, as a pipeline passes through SignalConsumer. Every field
// is optional. OnTermination fires exactly once, however the stream ends
// (completion, failure, or cancellation), carrying the failure if any.
type SignalConsumerCallbacks[T any] struct {
	OnSubscribe   func(subscription Subscription)
	OnItem        func(item T)
	OnFailure     func(err error)
	OnComplete    func()
	OnRequest     func(n int64)
	OnCancel      func()
	OnTermination func(err error, cancelled bool)
}

// SignalConsumer taps every signal flowing through a pipeline without
// otherwise altering it, for side effects like metrics or tracing. A panic
// in OnItem fails the stream and cancels the upstream, a panic in OnFailure
// is composed with the original failure, and a panic in OnComplete is
// delivered as a failure instead of completion. Panics in the other
// callbacks are not recovered.
func SignalConsumer[T any](cb SignalConsumerCallbacks[T]) func(Publisher[T]) Publisher[T] {
	return func(upstream Publisher[T]) Publisher[T] {
		return FromFunc(func(downstream Subscriber[T]) {
			op := &signalConsumerOp[T]{cb: cb}
			op.downstream = downstream
			upstream.Subscribe(op)
		})
	}
}

type signalConsumerOp[T any] struct {
	processorBase[T, T]
	cb         SignalConsumerCallbacks[T]
	terminated atomic.Bool
}

func (o *signalConsumerOp[T]) OnSubscribe(sub Subscription) {
	if o.upstream.setOnce(sub) {
		if o.cb.OnSubscribe != nil {
			o.cb.OnSubscribe(o)
		}
		o.downstream.OnSubscribe(o)
	}
}

func (o *signalConsumerOp[T]) Request(n int64) {
	if o.cb.OnRequest != nil {
		o.cb.OnRequest(n)
	}
	if n <= 0 {
		o.failAndCancel(newProtocolViolation("request(n) called with n <= 0"))
		return
	}
	o.upstream.request(n)
}

func (o *signalConsumerOp[T]) Cancel() {
	if o.cb.OnCancel != nil {
		o.cb.OnCancel()
	}
	o.upstream.cancel()
	o.fireTermination(nil, true)
}

func (o *signalConsumerOp[T]) OnNext(item T) {
	if o.isDone() {
		return
	}

	if o.cb.OnItem != nil {
		if captureErr := capturePanic(func() { o.cb.OnItem(item) }); captureErr != nil {
			o.failAndCancel(captureErr)
			return
		}
	}
	o.downstream.OnNext(item)
}

// failAndCancel shadows processorBase's version so every failure path
// through this operator -- including a panicking OnItem callback -- also
// fires the termination hook exactly once, the same as OnComplete and
// OnFailure already do below.
func (o *signalConsumerOp[T]) failAndCancel(err error) {
	if o.done.CompareAndSwap(false, true) {
		o.upstream.cancel()
		o.downstream.OnFailure(err)
		o.fireTermination(err, false)
	}
}

func (o *signalConsumerOp[T]) OnComplete() {
	if !o.done.CompareAndSwap(false, true) {
		return
	}

	if o.cb.OnComplete != nil {
		if captureErr := capturePanic(o.cb.OnComplete); captureErr != nil {
			o.downstream.OnFailure(captureErr)
			o.fireTermination(captureErr, false)
			return
		}
	}
	o.downstream.OnComplete()
	o.fireTermination(nil, false)
}

func (o *signalConsumerOp[T]) OnFailure(err error) {
	if !o.done.CompareAndSwap(false, true) {
		return
	}

	delivered := err
	if o.cb.OnFailure != nil {
		if captureErr := capturePanic(func() { o.cb.OnFailure(err) }); captureErr != nil {
			delivered = newCompositeFailure(err, captureErr)
		}
	}
	o.downstream.OnFailure(delivered)
	o.fireTermination(delivered, false)
}

func (o *signalConsumerOp[T]) fireTermination(err error, cancelled bool) {
	if o.terminated.CompareAndSwap(false, true) && o.cb.OnTermination != nil {
		o.cb.OnTermination(err, cancelled)
	}
}
