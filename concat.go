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

// ConcatConfig tunes Concat.
type ConcatConfig struct {
	// PostponeFailurePropagation, when true, lets a failed member be
	// skipped in favor of subscribing the next one, surfacing the
	// accumulated failure(s) only once every source has been tried.
	PostponeFailurePropagation bool
}

type ConcatOption func(*ConcatConfig)

func WithConcatPostponedFailures() ConcatOption {
	return func(c *ConcatConfig) { c.PostponeFailurePropagation = true }
}

// Concat subscribes to sources one at a time, in order, switching to the
// next source as soon as the current one completes, and carrying any
// unfulfilled downstream demand across that switch.
func Concat[T any](sources []Publisher[T], opts ...ConcatOption) Publisher[T] {
	var cfg ConcatConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return FromFunc(func(downstream Subscriber[T]) {
		op := &concatOp[T]{downstream: downstream, sources: sources, cfg: cfg}
		downstream.OnSubscribe(op)
		op.subscribeNext()
	})
}

type concatOp[T any] struct {
	downstream Subscriber[T]
	sources    []Publisher[T]
	cfg        ConcatConfig

	idx       int
	upstream  upstreamRef
	done      atomic.Bool
	cancelled atomic.Bool
	requested demand
	failures  failureAccumulator
}

func (c *concatOp[T]) Request(n int64) {
	if n <= 0 {
		c.failAndCancel(newProtocolViolation("request(n) called with n <= 0"))
		return
	}
	c.requested.add(n)
	c.upstream.request(n)
}

func (c *concatOp[T]) Cancel() {
	c.cancelled.Store(true)
	c.upstream.cancel()
}

func (c *concatOp[T]) failAndCancel(err error) {
	if c.done.CompareAndSwap(false, true) {
		c.upstream.cancel()
		c.downstream.OnFailure(err)
	}
}

func (c *concatOp[T]) subscribeNext() {
	if c.cancelled.Load() || c.done.Load() {
		return
	}
	if c.idx >= len(c.sources) {
		c.deliverTerminal()
		return
	}

	src := c.sources[c.idx]
	c.idx++
	c.upstream.reset()
	src.Subscribe(&concatMemberSubscriber[T]{parent: c})
}

func (c *concatOp[T]) deliverTerminal() {
	if !c.done.CompareAndSwap(false, true) {
		return
	}
	if err := c.failures.swapTerminated(); err != nil {
		c.downstream.OnFailure(err)
		return
	}
	c.downstream.OnComplete()
}

type concatMemberSubscriber[T any] struct {
	parent *concatOp[T]
}

func (m *concatMemberSubscriber[T]) OnSubscribe(sub Subscription) {
	if m.parent.upstream.setOnce(sub) {
		if r := m.parent.requested.get(); r > 0 {
			sub.Request(r)
		}
	}
}

func (m *concatMemberSubscriber[T]) OnNext(item T) {
	m.parent.downstream.OnNext(item)
	m.parent.requested.sub(1)
}

func (m *concatMemberSubscriber[T]) OnComplete() {
	m.parent.subscribeNext()
}

func (m *concatMemberSubscriber[T]) OnFailure(err error) {
	m.parent.failures.add(err)
	if !m.parent.cfg.PostponeFailurePropagation {
		m.parent.done.Store(true)
		m.parent.downstream.OnFailure(m.parent.failures.swapTerminated())
		return
	}
	m.parent.subscribeNext()
}
