// SPDX-License-Identifier: Apache-2.0
/*
Copyright (C) 2025 The Falco Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package tables

import (
	"errors"
	"sync/atomic"
)

// ErrTokenExpired is returned when using a reader or writer token
// that has already been released.
var ErrTokenExpired = errors.New("table access token expired")

type token struct {
	live atomic.Bool
}

func newToken() *token {
	t := &token{}
	t.live.Store(true)
	return t
}

// Reader is a token granting read access to imported tables. Readers are
// issued by the capture driver for the duration of a single callback
// invocation, and expire as soon as the callback returns. Plugins must
// not retain readers across invocations.
type Reader struct {
	t *token
}

func (r *Reader) check() error {
	if r == nil || r.t == nil || !r.t.live.Load() {
		return ErrTokenExpired
	}
	return nil
}

// Release invalidates the token.
func (r *Reader) Release() {
	if r != nil && r.t != nil {
		r.t.live.Store(false)
	}
}

// Writer is a token granting write access to the public fields of imported
// tables, with the same lifetime rules of Reader. Writers are issued only
// to event parsing callbacks.
type Writer struct {
	t *token
}

func (w *Writer) check() error {
	if w == nil || w.t == nil || !w.t.live.Load() {
		return ErrTokenExpired
	}
	return nil
}

// Reader returns a reader token sharing the lifetime of this writer.
func (w *Writer) Reader() *Reader {
	if w == nil {
		return nil
	}
	return &Reader{t: w.t}
}

// Release invalidates the token, and all the readers derived from it.
func (w *Writer) Release() {
	if w != nil && w.t != nil {
		w.t.live.Store(false)
	}
}
