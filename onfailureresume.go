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

// OnFailureResume switches to a fallback Publisher, produced from the
// original failure by resume, instead of propagating that failure
// downstream. A nil fallback (or resume itself failing) delivers a
// failure; the fallback's own terminal signal otherwise flows straight
// through once it is subscribed.
func OnFailureResume[T any](resume func(err error) Publisher[T]) func(Publisher[T]) Publisher[T] {
	return func(upstream Publisher[T]) Publisher[T] {
		return FromFunc(func(downstream Subscriber[T]) {
			op := &onFailureResumeOp[T]{downstream: downstream, resume: resume}
			upstream.Subscribe(op)
		})
	}
}

type onFailureResumeOp[T any] struct {
	downstream     Subscriber[T]
	resume         func(error) Publisher[T]
	upstream       upstreamRef
	done           atomic.Bool
	requested      demand
	subscribedOnce bool
}

func (o *onFailureResumeOp[T]) OnSubscribe(sub Subscription) {
	o.upstream.reset()
	if !o.upstream.setOnce(sub) {
		return
	}

	if !o.subscribedOnce {
		o.subscribedOnce = true
		o.downstream.OnSubscribe(o)
		return
	}
	if r := o.requested.get(); r > 0 {
		sub.Request(r)
	}
}

func (o *onFailureResumeOp[T]) Request(n int64) {
	if n <= 0 {
		o.failAndCancel(newProtocolViolation("request(n) called with n <= 0"))
		return
	}
	o.requested.add(n)
	o.upstream.request(n)
}

func (o *onFailureResumeOp[T]) Cancel() {
	o.upstream.cancel()
}

func (o *onFailureResumeOp[T]) failAndCancel(err error) {
	if o.done.CompareAndSwap(false, true) {
		o.upstream.cancel()
		o.downstream.OnFailure(err)
	}
}

func (o *onFailureResumeOp[T]) OnNext(item T) {
	o.downstream.OnNext(item)
	o.requested.sub(1)
}

func (o *onFailureResumeOp[T]) OnComplete() {
	if o.done.CompareAndSwap(false, true) {
		o.downstream.OnComplete()
	}
}

func (o *onFailureResumeOp[T]) OnFailure(err error) {
	fallback, captureErr := o.applyResume(err)
	if captureErr != nil {
		if o.done.CompareAndSwap(false, true) {
			o.downstream.OnFailure(newCompositeFailure(err, captureErr))
		}
		return
	}
	if fallback == nil {
		if o.done.CompareAndSwap(false, true) {
			o.downstream.OnFailure(err)
		}
		return
	}

	// Re-subscribe through the same operator: OnSubscribe's subscribedOnce
	// guard keeps downstream.OnSubscribe from firing again, and the
	// fallback's own OnComplete/OnFailure/OnNext flow straight through.
	fallback.Subscribe(o)
}

func (o *onFailureResumeOp[T]) applyResume(err error) (pub Publisher[T], captureErr error) {
	captureErr = capturePanic(func() {
		pub = o.resume(err)
	})
	return pub, captureErr
}
