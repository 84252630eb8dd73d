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
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/corestream/streams/internal/queue"
)

// ErrExecutorRejected is wrapped into the failure delivered downstream
// when an Executor.Submit call fails.
var ErrExecutorRejected = errors.New("emit-on: executor rejected task")

// Executor runs a task, usually by handing it to a worker pool or a
// single dedicated goroutine. Submit returning an error means the task was
// not and will not be run.
type Executor interface {
	Submit(task func()) error
}

// ExecutorFunc adapts a plain function into an Executor.
type ExecutorFunc func(task func()) error

func (f ExecutorFunc) Submit(task func()) error { return f(task) }

const emitOnQueueCapacity = 16
const emitOnLimit = emitOnQueueCapacity

// EmitOn hands off signal delivery (OnNext/OnComplete/OnFailure) to the
// given Executor, so the downstream subscriber only ever observes signals
// from tasks run on that executor rather than on whatever goroutine the
// upstream happens to produce on. The one exception is the failure reported
// when the Executor rejects a task: it is delivered on the goroutine that
// tried to submit it. A small bounded queue decouples upstream
// production from executor scheduling latency; a full queue is reported as
// a back-pressure failure rather than blocking the producer.
func EmitOn[T any](executor Executor) func(Publisher[T]) Publisher[T] {
	return func(upstream Publisher[T]) Publisher[T] {
		return FromFunc(func(downstream Subscriber[T]) {
			op := &emitOnOp[T]{
				downstream: downstream,
				executor:   executor,
				queue:      queue.New[T](emitOnQueueCapacity),
			}
			upstream.Subscribe(op)
		})
	}
}

type emitOnOp[T any] struct {
	downstream Subscriber[T]
	executor   Executor
	upstream   upstreamRef
	queue      *queue.Ring[T]

	done      atomic.Bool
	cancelled atomic.Bool
	failure   atomic.Pointer[error]

	requested demand
	wip       atomic.Int64

	// produced is only ever touched from run(), which never executes
	// concurrently with itself (guarded by wip), so it needs no atomics.
	produced int64
}

func (o *emitOnOp[T]) OnSubscribe(sub Subscription) {
	if o.upstream.setOnce(sub) {
		o.downstream.OnSubscribe(o)
		// Upstream pull-rate is governed by the fixed prefetch window
		// (emitOnLimit), not by downstream demand directly; priming it
		// here starts the hand-off independently of when Request(n)
		// first arrives from downstream.
		sub.Request(emitOnLimit)
	}
}

func (o *emitOnOp[T]) OnNext(item T) {
	if !o.queue.Offer(item) {
		o.storeFailure(newBackpressureFailure("emit-on: queue full"))
		o.done.Store(true)
		o.upstream.cancel()
	}
	o.schedule()
}

func (o *emitOnOp[T]) OnComplete() {
	o.done.Store(true)
	o.schedule()
}

func (o *emitOnOp[T]) OnFailure(err error) {
	o.storeFailure(err)
	o.done.Store(true)
	o.schedule()
}

func (o *emitOnOp[T]) storeFailure(err error) {
	o.failure.CompareAndSwap(nil, &err)
}

func (o *emitOnOp[T]) loadFailure() error {
	if p := o.failure.Load(); p != nil {
		return *p
	}
	return nil
}

// Request, like every other signal here, only ever has its effect applied
// on the executor thread inside run(): a protocol violation is stored and
// scheduled rather than delivered inline, so termination always happens
// through the same serialized path.
func (o *emitOnOp[T]) Request(n int64) {
	if n <= 0 {
		o.storeFailure(newProtocolViolation("request(n) called with n <= 0"))
		o.done.Store(true)
		o.upstream.cancel()
		o.schedule()
		return
	}
	o.requested.add(n)
	o.schedule()
}

func (o *emitOnOp[T]) Cancel() {
	o.cancelled.Store(true)
	o.upstream.cancel()
}

func (o *emitOnOp[T]) schedule() {
	if o.wip.Add(1) != 1 {
		return
	}
	if err := o.executor.Submit(o.run); err != nil {
		o.upstream.cancel()
		o.downstream.OnFailure(newUserFailure(fmt.Errorf("%w: %v", ErrExecutorRejected, err)))
	}
}

// run drains the queue against open demand, entirely on the executor's
// goroutine. It re-enters itself (without recursion) via the wip counter
// whenever a signal arrived while a previous pass was finishing.
func (o *emitOnOp[T]) run() {
	for {
		if o.cancelled.Load() {
			return
		}

		r := o.requested.get()
		var emitted int64
		for r == Unbounded || emitted < r {
			v, ok := o.queue.Poll()
			if !ok {
				break
			}
			o.downstream.OnNext(v)
			emitted++

			o.produced++
			if o.produced == emitOnLimit {
				o.produced = 0
				o.upstream.request(emitOnLimit)
			}
		}
		if emitted > 0 {
			o.requested.sub(emitted)
		}

		if o.done.Load() && o.queue.IsEmpty() {
			if err := o.loadFailure(); err != nil {
				o.downstream.OnFailure(err)
			} else {
				o.downstream.OnComplete()
			}
			return
		}

		missed := o.wip.Add(-1)
		if missed == 0 {
			return
		}
	}
}
