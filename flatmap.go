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
	"sync"
	"sync/atomic"

	"github.com/corestream/streams/internal/queue"
)

// DefaultFlatMapPrefetch is the number of items requested from each inner
// stream up front when no explicit prefetch is configured.
const DefaultFlatMapPrefetch = 128

// FlatMapConfig tunes a FlatMap pipeline stage.
type FlatMapConfig struct {
	// MaxConcurrency caps how many inner streams run at once. <= 0 means
	// unbounded: every item the upstream produces is mapped and subscribed
	// to immediately.
	MaxConcurrency int64
	// Prefetch is the demand requested up front from each inner stream,
	// replenished once 75% of it has been consumed. Left at 0, it defaults
	// to MaxConcurrency (or DefaultFlatMapPrefetch when MaxConcurrency is
	// unbounded), so a bounded WithMaxConcurrency(n) primes each inner
	// stream with exactly n unless Prefetch is set explicitly.
	Prefetch int64
	// PostponeFailurePropagation, when true, lets the upstream and the other
	// inner streams keep running after an inner stream fails; the accumulated
	// failure (singular or composite) is only delivered once every inner
	// stream has finished. When false (the default) the first failure
	// cancels everything immediately.
	PostponeFailurePropagation bool
	// MainQueueCapacity bounds the lazily created main queue that buffers
	// items belonging to an inner stream already swept from the registry.
	MainQueueCapacity int
	// InnerQueueCapacity bounds each inner stream's own item queue.
	InnerQueueCapacity int
}

// FlatMapOption mutates a FlatMapConfig; applied in order over the default.
type FlatMapOption func(*FlatMapConfig)

func WithMaxConcurrency(n int64) FlatMapOption {
	return func(c *FlatMapConfig) { c.MaxConcurrency = n }
}

func WithPostponedFailures() FlatMapOption {
	return func(c *FlatMapConfig) { c.PostponeFailurePropagation = true }
}

func WithMainQueueCapacity(n int) FlatMapOption {
	return func(c *FlatMapConfig) { c.MainQueueCapacity = n }
}

func WithInnerQueueCapacity(n int) FlatMapOption {
	return func(c *FlatMapConfig) { c.InnerQueueCapacity = n }
}

func defaultFlatMapConfig() FlatMapConfig {
	return FlatMapConfig{
		MaxConcurrency:     Unbounded,
		Prefetch:           DefaultFlatMapPrefetch,
		MainQueueCapacity:  256,
		InnerQueueCapacity: DefaultFlatMapPrefetch,
	}
}

// FlatMap maps each upstream item to an inner Publisher and merges their
// items into a single downstream sequence, running up to MaxConcurrency
// inner streams at a time. This is the operator the rest of the package
// exists to support: bounded fan-out, per-inner demand, a round-robin drain
// across inner queues, and one of two failure-propagation policies.
func FlatMap[T, R any](mapper func(T) (Publisher[R], error), opts ...FlatMapOption) func(Publisher[T]) Publisher[R] {
	cfg := defaultFlatMapConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = Unbounded
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = DefaultFlatMapPrefetch
	}

	return func(upstream Publisher[T]) Publisher[R] {
		return FromFunc(func(downstream Subscriber[R]) {
			op := &flatMapOp[T, R]{
				mapper:     mapper,
				downstream: downstream,
				cfg:        cfg,
			}
			upstream.Subscribe(op)
		})
	}
}

type flatMapOp[T, R any] struct {
	upstream  upstreamRef
	done      atomic.Bool
	cancelled atomic.Bool
	wip       atomic.Int64
	requested demand

	mu        sync.Mutex
	inners    []*flatMapInner[T, R]
	lastIndex int

	mainQueue     *queue.Ring[R]
	mainQueueOnce sync.Once

	failures failureAccumulator

	mapper     func(T) (Publisher[R], error)
	downstream Subscriber[R]
	cfg        FlatMapConfig
}

func (o *flatMapOp[T, R]) prefetch() int64      { return o.cfg.Prefetch }
func (o *flatMapOp[T, R]) prefetchLimit() int64 { return o.cfg.Prefetch - o.cfg.Prefetch/4 }

func (o *flatMapOp[T, R]) mainQueueRing() *queue.Ring[R] {
	o.mainQueueOnce.Do(func() {
		o.mainQueue = queue.New[R](o.cfg.MainQueueCapacity)
	})
	return o.mainQueue
}

func (o *flatMapOp[T, R]) initialRequest() int64 {
	if o.cfg.MaxConcurrency == Unbounded {
		return Unbounded
	}
	return o.cfg.MaxConcurrency
}

func (o *flatMapOp[T, R]) OnSubscribe(sub Subscription) {
	if o.upstream.setOnce(sub) {
		o.downstream.OnSubscribe(o)
		sub.Request(o.initialRequest())
	}
}

func (o *flatMapOp[T, R]) OnNext(item T) {
	if o.done.Load() || o.cancelled.Load() {
		return
	}

	pub, err := o.applyMapper(item)
	if err != nil {
		o.terminateWithFailure(err)
		return
	}
	if pub == nil {
		o.terminateWithFailure(newProtocolViolation("flat-map mapper returned a nil publisher"))
		return
	}

	in := &flatMapInner[T, R]{
		owner: o,
		queue: queue.New[R](o.cfg.InnerQueueCapacity),
	}

	o.mu.Lock()
	if o.done.Load() || o.cancelled.Load() {
		o.mu.Unlock()
		return
	}
	in.index = len(o.inners)
	o.inners = append(o.inners, in)
	o.mu.Unlock()

	pub.Subscribe(in)
}

func (o *flatMapOp[T, R]) applyMapper(item T) (pub Publisher[R], err error) {
	captureErr := capturePanic(func() {
		pub, err = o.mapper(item)
	})
	if captureErr != nil {
		return nil, captureErr
	}
	if err != nil {
		return nil, newUserFailure(err)
	}
	return pub, nil
}

func (o *flatMapOp[T, R]) OnComplete() {
	if o.done.CompareAndSwap(false, true) {
		o.drain()
	}
}

func (o *flatMapOp[T, R]) OnFailure(err error) {
	o.terminateWithFailure(err)
}

func (o *flatMapOp[T, R]) terminateWithFailure(err error) {
	o.failures.add(err)
	if o.done.CompareAndSwap(false, true) {
		o.upstream.cancel()
	}
	o.drain()
}

func (o *flatMapOp[T, R]) Request(n int64) {
	if n <= 0 {
		o.terminateWithFailure(newProtocolViolation("request(n) called with n <= 0"))
		return
	}
	o.requested.add(n)
	o.drain()
}

func (o *flatMapOp[T, R]) Cancel() {
	if o.cancelled.CompareAndSwap(false, true) {
		if o.wip.Add(1) == 1 {
			o.cleanupOnCancel()
		}
	}
}

// drain is the shared, getAndIncrement-guarded entry point used by
// Request, OnComplete, OnFailure and inner-stream callbacks: only the
// caller that observes the counter go 0->1 actually runs the loop, every
// other concurrent caller's intent is captured by the "missed" count it
// leaves behind.
func (o *flatMapOp[T, R]) drain() {
	if o.wip.Add(1) != 1 {
		return
	}
	o.drainLoop()
}

// tryEmitFast is the inner-stream fast path: when nobody else is draining
// and there is open demand with an empty inner queue, it emits the item
// immediately on the calling (inner-stream) goroutine instead of queueing
// it and waking the drain loop, per the "fast path" note in the design.
func (o *flatMapOp[T, R]) tryEmitFast(in *flatMapInner[T, R], item R) {
	if o.wip.CompareAndSwap(0, 1) {
		if !o.done.Load() && !o.cancelled.Load() && o.requested.get() > 0 && in.queueEmpty() {
			o.downstream.OnNext(item)
			o.requested.sub(1)
			in.requestMore(1)

			if o.wip.Add(-1) == 0 {
				return
			}
			o.drainLoop()
			return
		}

		if !in.offer(item) {
			o.recordInnerQueueFull(in)
		}
		o.drainLoop()
		return
	}

	if !in.offer(item) {
		o.recordInnerQueueFull(in)
	}
	o.drain()
}

// recordInnerQueueFull reports a full inner queue as a back-pressure
// failure: the inner stream that overflowed is marked done so the drain
// loop sweeps it, the failure is recorded the same way any other
// terminating failure is, and the upstream is cancelled. The caller is
// responsible for driving the drain loop afterward (it already holds the
// drain slot or is about to request one).
func (o *flatMapOp[T, R]) recordInnerQueueFull(in *flatMapInner[T, R]) {
	in.done.Store(true)
	o.failures.add(newBackpressureFailure("flat-map: inner queue full"))
	o.done.CompareAndSwap(false, true)
	o.upstream.cancel()
}

func (o *flatMapOp[T, R]) drainLoop() {
	for {
		if o.cancelled.Load() {
			o.cleanupOnCancel()
			return
		}
		if o.done.Load() {
			if o.maybeTerminate() {
				return
			}
		}

		o.drainMainQueue()
		replenish := o.drainInners()

		if o.requested.get() == 0 {
			replenish += o.sweepDoneEmptyInners()
		}

		if replenish > 0 && !o.done.Load() && !o.cancelled.Load() {
			o.upstream.request(replenish)
		}

		if o.done.Load() {
			if o.maybeTerminate() {
				return
			}
		}

		missed := o.wip.Add(-1)
		if missed == 0 {
			return
		}
		// a concurrent producer incremented wip while we were draining;
		// loop again, the counter already reflects every missed signal.
	}
}

// maybeTerminate checks whether the stream can deliver its terminal signal
// now. Under the eager policy a recorded failure always wins immediately;
// under the postponed policy the terminal (failure-or-complete) is only
// surfaced once every inner stream has actually finished draining.
func (o *flatMapOp[T, R]) maybeTerminate() bool {
	if !o.cfg.PostponeFailurePropagation && o.failures.hasFailure() {
		if err := o.failures.swapTerminated(); err != nil {
			o.clearMainQueue()
			o.cancelAllInners()
			o.downstream.OnFailure(err)
			return true
		}
	}

	if !o.isFullyDrained() {
		return false
	}

	if err := o.failures.swapTerminated(); err != nil {
		o.downstream.OnFailure(err)
		return true
	}

	o.downstream.OnComplete()
	return true
}

func (o *flatMapOp[T, R]) isFullyDrained() bool {
	o.mu.Lock()
	n := len(o.inners)
	o.mu.Unlock()

	return n == 0 && o.mainQueueRing().IsEmpty()
}

func (o *flatMapOp[T, R]) drainMainQueue() {
	ring := o.mainQueueRing()
	for o.requested.get() > 0 {
		v, ok := ring.Poll()
		if !ok {
			return
		}
		o.downstream.OnNext(v)
		o.requested.sub(1)
	}
}

// drainInners round-robins across the live inner streams starting from
// lastIndex, pulling up to the remaining downstream demand from each in
// turn, and returns the total upstream replenishment earned by inner
// streams that finished draining and were swept from the registry.
func (o *flatMapOp[T, R]) drainInners() int64 {
	o.mu.Lock()
	snapshot := make([]*flatMapInner[T, R], len(o.inners))
	copy(snapshot, o.inners)
	start := o.lastIndex
	o.mu.Unlock()

	if len(snapshot) == 0 {
		return 0
	}

	var replenish int64
	var toRemove []*flatMapInner[T, R]

	for i := 0; i < len(snapshot); i++ {
		idx := (start + i) % len(snapshot)
		in := snapshot[idx]

		drained := int64(0)
		for o.requested.get() > 0 {
			v, ok := in.queue.Poll()
			if !ok {
				break
			}
			o.downstream.OnNext(v)
			o.requested.sub(1)
			drained++
		}
		if drained > 0 {
			in.requestMore(drained)
		}

		if in.done.Load() && in.queueEmpty() {
			toRemove = append(toRemove, in)
		}
	}

	o.mu.Lock()
	for _, in := range toRemove {
		o.removeInnerLocked(in)
		replenish++
	}
	if len(o.inners) > 0 {
		o.lastIndex = (start + 1) % len(o.inners)
	} else {
		o.lastIndex = 0
	}
	o.mu.Unlock()

	return replenish
}

// sweepDoneEmptyInners removes any finished, empty inner left over after
// drainInners when there was no downstream demand to drive the main loop
// through them (requested == 0 means drainInners's poll loop never ran).
func (o *flatMapOp[T, R]) sweepDoneEmptyInners() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	var replenish int64
	kept := o.inners[:0]
	for _, in := range o.inners {
		if in.done.Load() && in.queueEmpty() {
			in.removed.Store(true)
			replenish++
			continue
		}
		kept = append(kept, in)
	}
	o.inners = kept
	if o.lastIndex > len(o.inners) {
		o.lastIndex = 0
	}

	return replenish
}

func (o *flatMapOp[T, R]) removeInnerLocked(target *flatMapInner[T, R]) {
	for i, in := range o.inners {
		if in == target {
			in.removed.Store(true)
			o.inners = append(o.inners[:i], o.inners[i+1:]...)
			return
		}
	}
}

func (o *flatMapOp[T, R]) cancelAllInners() {
	o.mu.Lock()
	snapshot := o.inners
	o.inners = nil
	o.mu.Unlock()

	for _, in := range snapshot {
		in.cancel()
	}
}

func (o *flatMapOp[T, R]) cleanupOnCancel() {
	o.clearMainQueue()
	o.upstream.cancel()
	o.cancelAllInners()
}

func (o *flatMapOp[T, R]) clearMainQueue() {
	o.mainQueueRing().Clear()
}

// offerMain buffers an item that arrived for an inner stream already swept
// from the registry (it finished between the item being produced and the
// drain loop catching up), so it is not silently dropped.
func (o *flatMapOp[T, R]) offerMain(item R) bool {
	return o.mainQueueRing().Offer(item)
}

// innerNext is called from an inner stream's own OnNext after its owner's
// fast path declined to take it directly.
func (o *flatMapOp[T, R]) innerNext(in *flatMapInner[T, R], item R) {
	if in.removed.Load() {
		o.offerMain(item)
		o.drain()
		return
	}
	o.tryEmitFast(in, item)
}

func (o *flatMapOp[T, R]) innerError(in *flatMapInner[T, R], err error) {
	if o.cfg.PostponeFailurePropagation {
		o.failures.add(err)
		o.drain()
		return
	}
	o.terminateWithFailure(err)
}

// flatMapInner subscribes to one inner Publisher produced by the mapper
// and feeds items back to its owning flatMapOp.
type flatMapInner[T, R any] struct {
	owner    *flatMapOp[T, R]
	index    int
	upstream upstreamRef
	queue    *queue.Ring[R]
	done     atomic.Bool
	removed  atomic.Bool
	produced int64
}

func (in *flatMapInner[T, R]) OnSubscribe(sub Subscription) {
	if in.upstream.setOnce(sub) {
		sub.Request(in.owner.prefetch())
	}
}

func (in *flatMapInner[T, R]) OnNext(item R) {
	in.owner.innerNext(in, item)
}

func (in *flatMapInner[T, R]) OnComplete() {
	in.done.Store(true)
	in.owner.drain()
}

func (in *flatMapInner[T, R]) OnFailure(err error) {
	in.done.Store(true)
	in.owner.innerError(in, err)
}

func (in *flatMapInner[T, R]) offer(item R) bool {
	return in.queue.Offer(item)
}

func (in *flatMapInner[T, R]) queueEmpty() bool {
	return in.queue.IsEmpty()
}

// requestMore accounts for n items just delivered downstream, replenishing
// the inner stream once the running total reaches the 75% threshold.
func (in *flatMapInner[T, R]) requestMore(n int64) {
	produced := atomic.AddInt64(&in.produced, n)
	limit := in.owner.prefetchLimit()
	if produced >= limit {
		atomic.AddInt64(&in.produced, -limit)
		in.upstream.request(limit)
	}
}

func (in *flatMapInner[T, R]) cancel() {
	in.upstream.cancel()
}
