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

// processorBase is embedded by every single-upstream, single-downstream
// operator. It supplies the Subscription half of the protocol (forwarding
// Request/Cancel to the upstream subscription) so each concrete operator
// only has to implement OnNext, and optionally override OnComplete /
// OnFailure when it needs to do more than pass the signal through.
type processorBase[T, R any] struct {
	upstream   upstreamRef
	downstream Subscriber[R]
	done       atomic.Bool
}

func (p *processorBase[T, R]) OnSubscribe(sub Subscription) {
	if p.upstream.setOnce(sub) {
		p.downstream.OnSubscribe(p)
	}
}

// Request validates n before forwarding; n <= 0 is a protocol violation
// per I1, terminating the stream with a failure rather than passing the
// bad value upstream.
func (p *processorBase[T, R]) Request(n int64) {
	if n <= 0 {
		p.failAndCancel(newProtocolViolation("request(n) called with n <= 0"))
		return
	}
	p.upstream.request(n)
}

func (p *processorBase[T, R]) Cancel() {
	p.upstream.cancel()
}

func (p *processorBase[T, R]) isDone() bool {
	return p.done.Load()
}

// failAndCancel delivers a failure downstream at most once, cancelling the
// upstream subscription first so no further items arrive.
func (p *processorBase[T, R]) failAndCancel(err error) {
	if p.done.CompareAndSwap(false, true) {
		p.upstream.cancel()
		p.downstream.OnFailure(err)
	}
}

// complete delivers completion downstream at most once.
func (p *processorBase[T, R]) complete() {
	if p.done.CompareAndSwap(false, true) {
		p.downstream.OnComplete()
	}
}

// completeAndCancel is used by operators that terminate the stream on
// their own initiative before the upstream naturally completes (TakeWhile
// hitting a false predicate).
func (p *processorBase[T, R]) completeAndCancel() {
	if p.done.CompareAndSwap(false, true) {
		p.upstream.cancel()
		p.downstream.OnComplete()
	}
}

func (p *processorBase[T, R]) OnComplete() {
	p.complete()
}

func (p *processorBase[T, R]) OnFailure(err error) {
	p.failAndCancel(err)
}
