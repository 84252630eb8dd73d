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

// Package xsync provides the Mutex abstraction the core package uses for
// the overflow operator's keep-last slot: a real mutex for the common case,
// and a no-op mutex for call sites that are already protected by the WIP
// discipline and want to avoid paying for synchronization twice.
package xsync

import "sync"

// Mutex is the minimal locking surface the core package needs.
type Mutex interface {
	Lock()
	Unlock()
	TryLock() bool
}

type realMutex struct {
	mu sync.Mutex
}

// NewMutexWithLock returns a Mutex backed by a real sync.Mutex.
func NewMutexWithLock() Mutex {
	return &realMutex{}
}

func (m *realMutex) Lock()         { m.mu.Lock() }
func (m *realMutex) Unlock()       { m.mu.Unlock() }
func (m *realMutex) TryLock() bool { return m.mu.TryLock() }

type noopMutex struct{}

// NewMutexWithoutLock returns a Mutex whose Lock/Unlock/TryLock are no-ops.
// Used where a single-producer guarantee already makes locking unnecessary
// but the call site shape must stay identical to the locked path.
func NewMutexWithoutLock() Mutex {
	return noopMutex{}
}

func (noopMutex) Lock()         {}
func (noopMutex) Unlock()       {}
func (noopMutex) TryLock() bool { return true }
