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
	"math"
	"sync/atomic"

	"github.com/corestream/streams/internal/constraints"
)

// Unbounded is the sticky sentinel meaning "no further limit": once a
// demand counter reaches it, every further add is a no-op and every
// subtract leaves it unchanged.
const Unbounded int64 = math.MaxInt64

// demand is a monotonically increasing-then-consumed counter with
// saturating addition up to Unbounded. All methods are safe for concurrent
// use; callers never need an external lock around them.
type demand struct {
	n atomic.Int64
}

// add performs a saturating add, returning the new value. n must be > 0;
// callers validate that before calling add.
func (d *demand) add(n int64) int64 {
	for {
		cur := d.n.Load()
		if cur == Unbounded {
			return Unbounded
		}

		next := cur + n
		if next < cur || next >= Unbounded { // overflow, or saturated
			next = Unbounded
		}

		if d.n.CompareAndSwap(cur, next) {
			return next
		}
	}
}

// sub decrements by k, an amount already known to have been emitted. A
// sticky Unbounded value is left untouched; the result never goes below 0.
func (d *demand) sub(k int64) int64 {
	for {
		cur := d.n.Load()
		if cur == Unbounded {
			return Unbounded
		}

		next := constraints.Clamp(cur-k, 0, Unbounded)

		if d.n.CompareAndSwap(cur, next) {
			return next
		}
	}
}

func (d *demand) get() int64 {
	return d.n.Load()
}

// sentinelSubscription is the CANCELLED marker an upstreamRef slot is
// swapped to. Compared by identity against the loaded box's sub field.
type sentinelSubscription struct{}

func (sentinelSubscription) Request(int64) {}
func (sentinelSubscription) Cancel()        {}

var cancelledSubscription Subscription = sentinelSubscription{}

// upstreamBox is the indirection atomic.Pointer needs to treat "no
// subscription yet" (nil *upstreamBox) and "subscription present" as
// distinguishable states via a single CompareAndSwap.
type upstreamBox struct {
	sub Subscription
}

// upstreamRef holds the single upstream Subscription an operator forwards
// Request/Cancel to. It enforces "subscribed at most once" via CAS and
// "cancelled at most once" via an atomic swap-to-sentinel, matching §4.1:
// cancel() transitions the slot to CANCELLED and, if a live subscription
// was swapped out, cancels it.
type upstreamRef struct {
	ptr atomic.Pointer[upstreamBox]
}

// setOnce installs sub as the upstream subscription. It returns false (and
// cancels sub) if a subscription was already set, or if the slot was
// already CANCELLED -- satisfying I3/I4's "second on_subscribe cancels the
// extra subscription" requirement.
func (u *upstreamRef) setOnce(sub Subscription) bool {
	if u.ptr.CompareAndSwap(nil, &upstreamBox{sub: sub}) {
		return true
	}
	sub.Cancel()
	return false
}

// request forwards n to the upstream subscription, a no-op if none is set
// yet or the slot has been cancelled.
func (u *upstreamRef) request(n int64) {
	if box := u.ptr.Load(); box != nil && box.sub != cancelledSubscription {
		box.sub.Request(n)
	}
}

// cancel idempotently swaps the slot to CANCELLED, cancelling whatever
// live subscription was present.
func (u *upstreamRef) cancel() {
	box := u.ptr.Swap(&upstreamBox{sub: cancelledSubscription})
	if box != nil && box.sub != nil && box.sub != cancelledSubscription {
		box.sub.Cancel()
	}
}

// isCancelled reports whether cancel() has already run on this slot.
func (u *upstreamRef) isCancelled() bool {
	box := u.ptr.Load()
	return box != nil && box.sub == cancelledSubscription
}

// reset clears the slot back to "no subscription yet", used by operators
// that subscribe to a second upstream after the first has already
// terminated naturally (concat's switch-on-completion, on-failure-resume's
// fallback stream).
func (u *upstreamRef) reset() {
	u.ptr.Store(nil)
}
