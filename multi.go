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

// Multi is a thin, named wrapper around Publisher: an unbounded sequence
// of items terminated by completion or failure. It exists so pipelines can
// be written against the Multi/Uni vocabulary rather than the bare
// Publisher/Uni types, without adding a builder surface of its own.
type Multi[T any] struct {
	pub Publisher[T]
}

// FromMultiPublisher wraps an existing Publisher as a Multi.
func FromMultiPublisher[T any](pub Publisher[T]) Multi[T] {
	return Multi[T]{pub: pub}
}

func (m Multi[T]) Subscribe(subscriber Subscriber[T]) {
	m.pub.Subscribe(subscriber)
}

// AsPublisher returns the underlying Publisher, for passing to operator
// constructors that take a Publisher directly.
func (m Multi[T]) AsPublisher() Publisher[T] {
	return m.pub
}
