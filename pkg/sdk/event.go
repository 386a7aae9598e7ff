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

package sdk

import (
	"github.com/falcosecurity/plugin-runtime-go/pkg/event"
)

// EventReader represents an event that has already been produced and
// accepted by the capture driver. This interface is meant to be used in
// the parsing, extraction and string rendering flows.
//
// Events are read-only: the raw event bytes must never be modified,
// and the typed payload can be decoded on demand with event.Load.
type EventReader interface {
	// EventNum returns the number assigned to the event by the capture
	// driver. Event numbers start from 1 and are monotonically increasing
	// within a capture session.
	EventNum() uint64
	//
	// EventSource returns the name of the event source the event
	// belongs to.
	EventSource() string
	//
	// Raw returns the event with its header already decoded.
	Raw() *event.RawEvent
}

// InMemoryEventReader is an in-memory implementation of EventReader, useful
// for testing plugin callbacks without a capture driver.
type InMemoryEventReader struct {
	ValEventNum    uint64
	ValEventSource string
	ValRaw         *event.RawEvent
}

func (i *InMemoryEventReader) EventNum() uint64 {
	return i.ValEventNum
}

func (i *InMemoryEventReader) EventSource() string {
	return i.ValEventSource
}

func (i *InMemoryEventReader) Raw() *event.RawEvent {
	return i.ValRaw
}
