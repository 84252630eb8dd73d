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
	"sync/atomic"

	"github.com/corestream/streams/internal/queue"
	"github.com/corestream/streams/internal/xsync"
)

// OverflowStrategy selects how an Overflow stage behaves when the
// upstream produces items faster than the downstream has requested them.
type OverflowStrategy int

const (
	// OverflowBuffer queues excess items up to capacity, failing with a
	// back-pressure error once the buffer is full.
	OverflowBuffer OverflowStrategy = iota
	// OverflowDrop discards the newest item when there is no open demand,
	// optionally reporting it through onDrop.
	OverflowDrop
	// OverflowKeepLast retains only the single most recent item produced
	// while there was no open demand, replacing any value already held.
	OverflowKeepLast
)

// Overflow applies strategy whenever the upstream produces faster than the
// downstream requests. capacity is only meaningful for OverflowBuffer.
// onDrop, if non-nil, is called (only under OverflowDrop) with every item
// that gets discarded.
func Overflow[T any](strategy OverflowStrategy, capacity int, onDrop func(item T)) func(Publisher[T]) Publisher[T] {
	return func(upstream Publisher[T]) Publisher[T] {
		return FromFunc(func(downstream Subscriber[T]) {
			op := &overflowOp[T]{
				downstream: downstream,
				strategy:   strategy,
				onDrop:     onDrop,
			}
			switch strategy {
			case OverflowBuffer:
				op.queue = queue.New[T](capacity)
			case OverflowKeepLast:
				// A single pending slot touched from both the producing
				// goroutine (OnNext) and a consumer calling Request: a real
				// lock, not the no-op variant.
				op.mu = xsync.NewMutexWithLock()
			}
			upstream.Subscribe(op)
		})
	}
}

type overflowOp[T any] struct {
	downstream Subscriber[T]
	strategy   OverflowStrategy
	onDrop     func(T)

	upstream  upstreamRef
	done      atomic.Bool
	requested demand
	wip       atomic.Int64

	queue *queue.Ring[T] // OverflowBuffer only

	mu       xsync.Mutex // guards keepLast/hasLast; OverflowKeepLast only
	keepLast T
	hasLast  bool

	failure           error
	terminalDelivered atomic.Bool
}

func (o *overflowOp[T]) OnSubscribe(sub Subscription) {
	if o.upstream.setOnce(sub) {
		o.downstream.OnSubscribe(o)
		// The whole point of an overflow strategy is to decouple upstream
		// production from downstream demand: the upstream always runs at
		// full speed, and the strategy decides what happens to an item
		// that arrives with no open downstream demand to absorb it.
		sub.Request(Unbounded)
	}
}

func (o *overflowOp[T]) OnNext(item T) {
	switch o.strategy {
	case OverflowBuffer:
		if !o.queue.Offer(item) {
			o.bufferOverflow(newBackpressureFailure("overflow: buffer full"))
			return
		}
		o.drain()

	case OverflowDrop:
		if o.requested.get() > 0 {
			o.downstream.OnNext(item)
			o.requested.sub(1)
			return
		}
		if o.onDrop != nil {
			o.onDrop(item)
		}

	case OverflowKeepLast:
		if o.requested.get() > 0 {
			o.downstream.OnNext(item)
			o.requested.sub(1)
			return
		}
		o.mu.Lock()
		o.keepLast = item
		o.hasLast = true
		o.mu.Unlock()
	}
}

func (o *overflowOp[T]) Request(n int64) {
	if n <= 0 {
		err := newProtocolViolation("request(n) called with n <= 0")
		if o.strategy == OverflowBuffer {
			o.bufferOverflow(err)
			return
		}
		// Drop and KeepLast never allocate o.queue, so routing a protocol
		// violation through bufferOverflow's drain() would poll a nil
		// *queue.Ring. Deliver the failure directly instead.
		o.failure = err
		o.done.Store(true)
		o.upstream.cancel()
		o.deliverTerminal()
		return
	}

	o.requested.add(n)

	if o.strategy == OverflowKeepLast {
		o.mu.Lock()
		if o.hasLast && o.requested.get() > 0 {
			v := o.keepLast
			var zero T
			o.keepLast = zero
			o.hasLast = false
			o.mu.Unlock()
			o.downstream.OnNext(v)
			o.requested.sub(1)
		} else {
			o.mu.Unlock()
		}
	}

	if o.strategy == OverflowBuffer {
		o.drain()
	}

	if o.done.Load() {
		o.flushTerminalIfReady()
	}
}

func (o *overflowOp[T]) Cancel() {
	o.upstream.cancel()
}

func (o *overflowOp[T]) OnComplete() {
	o.done.Store(true)
	o.flushTerminalIfReady()
}

func (o *overflowOp[T]) OnFailure(err error) {
	o.failure = err
	o.done.Store(true)
	o.flushTerminalIfReady()
}

// flushTerminalIfReady delivers the terminal signal once it is safe to:
// immediately for Drop, immediately for Buffer once its queue has drained,
// and for KeepLast only once any pending last value has actually been
// delivered to real demand (a pending value is never force-flushed past
// zero demand just because the stream is ending).
func (o *overflowOp[T]) flushTerminalIfReady() {
	switch o.strategy {
	case OverflowBuffer:
		o.drain()
	case OverflowKeepLast:
		o.mu.Lock()
		pending := o.hasLast
		o.mu.Unlock()
		if !pending {
			o.deliverTerminal()
		}
	case OverflowDrop:
		o.deliverTerminal()
	}
}

func (o *overflowOp[T]) deliverTerminal() {
	if !o.terminalDelivered.CompareAndSwap(false, true) {
		return
	}
	if o.failure != nil {
		o.downstream.OnFailure(o.failure)
		return
	}
	o.downstream.OnComplete()
}

func (o *overflowOp[T]) drain() {
	if o.wip.Add(1) != 1 {
		return
	}
	for {
		for o.requested.get() > 0 {
			v, ok := o.queue.Poll()
			if !ok {
				break
			}
			o.downstream.OnNext(v)
			o.requested.sub(1)
		}

		if o.done.Load() && o.queue.IsEmpty() {
			o.deliverTerminal()
		}

		if o.wip.Add(-1) == 0 {
			return
		}
	}
}

func (o *overflowOp[T]) bufferOverflow(err error) {
	o.failure = err
	o.done.Store(true)
	o.upstream.cancel()
	o.queue.Clear()
	o.drain()
}
