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

package capture

import (
	"github.com/falcosecurity/plugin-runtime-go/pkg/event"
)

// Event is an event yielded by a capture session. Events are read-only.
type Event struct {
	num    uint64
	source string
	raw    *event.RawEvent
	async  bool
}

// EventNum returns the number assigned to the event within the session,
// starting from 1.
func (e *Event) EventNum() uint64 {
	return e.num
}

// EventSource returns the name of the event source the event belongs to.
func (e *Event) EventSource() string {
	return e.source
}

// Raw returns the event with its header already decoded.
func (e *Event) Raw() *event.RawEvent {
	return e.raw
}

// Async returns true if the event has been emitted by an async plugin.
func (e *Event) Async() bool {
	return e.async
}
