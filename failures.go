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

import "sync"

type failureKind int

const (
	failureNone failureKind = iota
	failureSingle
	failureComposite
	failureTerminated
)

// failureAccumulator collects failures surfaced by concurrently running
// inner streams (flat-map) or sequential members (concat) under a postponed
// failure-propagation policy, so they can all be reported together once the
// stream actually drains rather than aborting on the first one.
type failureAccumulator struct {
	mu        sync.Mutex
	kind      failureKind
	single    error
	composite []error
}

// add records err. A no-op once the accumulator has already been swapped
// to terminated (the stream already reported its final failure).
func (f *failureAccumulator) add(err error) {
	if err == nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.kind {
	case failureNone:
		f.kind = failureSingle
		f.single = err
	case failureSingle:
		f.kind = failureComposite
		f.composite = []error{f.single, err}
		f.single = nil
	case failureComposite:
		f.composite = append(f.composite, err)
	case failureTerminated:
		// already reported, drop
	}
}

// swapTerminated returns the accumulated failure (nil if none) and marks
// the accumulator terminated so any later add is discarded.
func (f *failureAccumulator) swapTerminated() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var err error
	switch f.kind {
	case failureSingle:
		err = f.single
	case failureComposite:
		err = newCompositeFailure(f.composite...)
	}

	f.kind = failureTerminated
	f.single = nil
	f.composite = nil

	return err
}

// hasFailure reports whether a failure has been recorded, without
// consuming it.
func (f *failureAccumulator) hasFailure() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.kind == failureSingle || f.kind == failureComposite
}
