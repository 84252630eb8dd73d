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

// Package streams implements the back-pressured subscription protocol and
// operator runtime shared by Multi (an unbounded item sequence terminated by
// completion or failure) and Uni (resolves to exactly one item-or-failure).
// Both shapes are lazy: nothing runs until a Subscriber subscribes, and each
// subscription is independent of every other.
package streams

import (
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Subscriber is a sink that receives, in strict order: exactly one
// OnSubscribe, zero or more OnNext, then at most one of OnComplete or
// OnFailure.
type Subscriber[T any] interface {
	OnSubscribe(subscription Subscription)
	OnNext(item T)
	OnComplete()
	OnFailure(err error)
}

// Subscription is the handle a Subscriber holds to govern the flow of
// items from its Publisher: Request to authorize more items, Cancel to stop
// receiving them. Cancel is idempotent and safe to call from any thread.
type Subscription interface {
	Request(n int64)
	Cancel()
}

// Publisher is a factory: given a Subscriber it produces an independent
// Subscription bound to that Subscriber. Subscribing the same Publisher
// more than once yields independent runs.
type Publisher[T any] interface {
	Subscribe(subscriber Subscriber[T])
}

// publisherFunc adapts a plain function into a Publisher.
type publisherFunc[T any] func(subscriber Subscriber[T])

func (f publisherFunc[T]) Subscribe(subscriber Subscriber[T]) { f(subscriber) }

// FromFunc builds a Publisher from a subscribe function. Exported because
// every operator constructor in this package is, itself, just a Publisher
// built this way -- it is also the quickest way for a caller to adapt an
// arbitrary source into the protocol.
func FromFunc[T any](subscribe func(subscriber Subscriber[T])) Publisher[T] {
	return publisherFunc[T](subscribe)
}

var (
	// onUnhandledError holds the hook OnUnhandledError dispatches a failure
	// with nowhere left to go to. No operator in this package calls it
	// itself. Overridable for tests and embedding applications.
	onUnhandledError atomic.Value // func(error)
)

func init() {
	onUnhandledError.Store(DefaultOnUnhandledError)
}

// SetOnUnhandledError overrides the unhandled-error hook. Passing nil
// restores the default, which logs through zerolog's global logger.
func SetOnUnhandledError(fn func(err error)) {
	if fn == nil {
		fn = DefaultOnUnhandledError
	}
	onUnhandledError.Store(fn)
}

// OnUnhandledError invokes the currently configured unhandled-error hook.
func OnUnhandledError(err error) {
	onUnhandledError.Load().(func(error))(err)
}

// DefaultOnUnhandledError logs the error at Error level via zerolog's
// global logger.
func DefaultOnUnhandledError(err error) {
	if err != nil {
		log.Error().Err(err).Msg("streams: unhandled error")
	}
}

// SetGlobalLevel is a thin convenience wrapper so embedding applications
// can tune verbosity of the package's own diagnostic logging without
// reaching into zerolog directly.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}
