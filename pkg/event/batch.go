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

package event

import (
	"errors"
	"fmt"
)

// ErrBatchFull is returned when adding an event to a batch that already
// reached its capacity.
var ErrBatchFull = errors.New("event batch is full")

// Batch is an ordered, append-only group of encoded events produced by a
// single call to NextBatch of a source plugin instance.
//
// Batches are allocated by the capture driver and reused across calls.
// Once NextBatch returns, the events in the batch are owned by the driver
// and the batch must not be retained by the plugin.
type Batch struct {
	evts     [][]byte
	capacity int
	pluginID uint32
}

// NewBatch creates a new batch able to contain up to capacity events.
// The given plugin ID is the one of the source plugin filling the batch.
func NewBatch(capacity int, pluginID uint32) *Batch {
	if capacity <= 0 {
		capacity = 1
	}
	return &Batch{
		evts:     make([][]byte, 0, capacity),
		capacity: capacity,
		pluginID: pluginID,
	}
}

// Len returns the number of events in the batch.
func (b *Batch) Len() int {
	return len(b.evts)
}

// Cap returns the maximum number of events in the batch.
func (b *Batch) Cap() int {
	return b.capacity
}

// Full returns true if no more events can be added to the batch.
func (b *Batch) Full() bool {
	return len(b.evts) >= b.capacity
}

// PluginID returns the ID of the source plugin filling the batch.
func (b *Batch) PluginID() uint32 {
	return b.pluginID
}

// Get returns the encoded event at the given position.
func (b *Batch) Get(i int) []byte {
	return b.evts[i]
}

// Reset removes all the events from the batch.
func (b *Batch) Reset() {
	for i := range b.evts {
		b.evts[i] = nil
	}
	b.evts = b.evts[:0]
}

// Add appends an already encoded event to the batch. The event header is
// validated, and the buffer is copied.
func (b *Batch) Add(buf []byte) error {
	if b.Full() {
		return ErrBatchFull
	}
	raw, err := LoadRaw(buf)
	if err != nil {
		return err
	}
	if raw.Len() > MaxEventSize {
		return fmt.Errorf("%w: event of %d bytes exceeds maximum size", ErrMalformedHeader, raw.Len())
	}
	b.evts = append(b.evts, append([]byte(nil), raw.Bytes()...))
	return nil
}

// AddEvent encodes the given payload and appends it to the batch.
func (b *Batch) AddEvent(meta Metadata, p Payload) error {
	if b.Full() {
		return ErrBatchFull
	}
	buf := Encode(meta, p)
	if len(buf) > MaxEventSize {
		return fmt.Errorf("%w: event of %d bytes exceeds maximum size", ErrMalformedHeader, len(buf))
	}
	b.evts = append(b.evts, buf)
	return nil
}

// AddPluginEvent appends a new plugin event carrying the given data,
// stamped with the ID of the source plugin filling the batch.
func (b *Batch) AddPluginEvent(ts uint64, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	return b.AddEvent(Metadata{Timestamp: ts, ThreadID: NoThreadID}, PluginEvent{
		PluginID: Ptr(b.pluginID),
		Data:     data,
	})
}
