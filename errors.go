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

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/corestream/streams/internal/xerrors"
)

// ErrorKind classifies a terminal failure. Distinguishing kinds lets a
// caller tell a genuine user-function failure apart from a protocol
// violation or a back-pressure overflow without string-matching messages.
type ErrorKind int

const (
	// KindUserFailure wraps an error returned or panicked out of a
	// mapper/predicate/callback supplied by the caller.
	KindUserFailure ErrorKind = iota
	// KindProtocolViolation covers a nil mapper result or a request(n)
	// with n <= 0 -- a caller bug, not a data error.
	KindProtocolViolation
	// KindBackpressure marks a queue-full condition despite the demand
	// discipline being followed; distinct from a user error.
	KindBackpressure
	// KindComposite wraps two or more colliding errors (e.g. a resume
	// handler itself failing while handling the original failure).
	KindComposite
)

// Error is the concrete error type every terminal failure in this package
// is delivered as.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func newUserFailure(err error) error {
	return &Error{Kind: KindUserFailure, Err: err}
}

func newProtocolViolation(msg string) error {
	return &Error{Kind: KindProtocolViolation, Err: errors.New(msg)}
}

func newBackpressureFailure(msg string) error {
	return &Error{Kind: KindBackpressure, Err: errors.New(msg)}
}

// newCompositeFailure joins 2+ errors into one KindComposite Error. It
// returns nil if every argument is nil, and returns the lone error
// unwrapped (not composite) if exactly one is non-nil.
func newCompositeFailure(errs ...error) error {
	joined := xerrors.Join(errs...)
	if joined == nil {
		return nil
	}
	nonNil := 0
	for _, e := range errs {
		if e != nil {
			nonNil++
		}
	}
	if nonNil == 1 {
		return joined
	}
	return &Error{Kind: KindComposite, Err: joined}
}

// recoverValueToError converts whatever recover() produced into an error.
func recoverValueToError(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	return fmt.Errorf("%v", v)
}

// capturePanic runs fn, converting any panic into a KindUserFailure error
// instead of letting it unwind through operator internals. Grounded on
// samber/ro's observer callback guard (lo.TryCatchWithErrorValue).
func capturePanic(fn func()) (err error) {
	lo.TryCatchWithErrorValue(
		func() error {
			fn()
			return nil
		},
		func(e any) {
			err = newUserFailure(recoverValueToError(e))
		},
	)
	return err
}
