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

// Package xerrors provides Join, which the core package calls when more
// than one failure collides (e.g. a failure callback panicking while a
// terminal error is already in flight), and Wrap. Built on github.com/pkg/errors
// rather than the standard library's errors.Join, matching the rest of the
// module's error-wrapping idiom.
package xerrors

import "github.com/pkg/errors"

// Multi carries more than one error that occurred together. It is returned
// by Join when given 2+ non-nil errors.
type Multi struct {
	Errors []error
}

func (m *Multi) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}

	s := m.Errors[0].Error()
	for _, e := range m.Errors[1:] {
		s += "; " + e.Error()
	}

	return s
}

func (m *Multi) Unwrap() []error {
	return m.Errors
}

// Join combines non-nil errors. It returns nil for zero errors, the error
// itself for exactly one, and a *Multi for two or more.
func Join(errs ...error) error {
	nonNil := make([]error, 0, len(errs))
	for _, e := range errs {
		if e != nil {
			nonNil = append(nonNil, e)
		}
	}

	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return &Multi{Errors: nonNil}
	}
}

// Wrap annotates err with a message, preserving the chain for errors.Is/As.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}
