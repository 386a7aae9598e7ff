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
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the size in bytes of the header of every encoded event.
//
// The header layout is (all integers are little-endian):
//
//	| ts u64 | tid u64 | len u32 | type u16 | nparams u32 |
//
// where len is the total length of the event, header included.
const HeaderSize = 26

// MaxEventSize is the maximum size of an encoded event.
const MaxEventSize = 8 * 1024 * 1024

// NoThreadID is the thread ID used for events not bound to any thread.
const NoThreadID = ^uint64(0)

var (
	// ErrMalformedHeader is returned when a buffer does not contain a
	// well-formed event header.
	ErrMalformedHeader = errors.New("malformed event header")
	// ErrMalformedParams is returned when the parameters of an event can't
	// be decoded.
	ErrMalformedParams = errors.New("malformed event parameters")
	// ErrTypeMismatch is returned when loading an event as a type different
	// from the one it was encoded with.
	ErrTypeMismatch = errors.New("event type mismatch")
	// ErrUnknownType is returned when decoding an event type that is not
	// known by this package.
	ErrUnknownType = errors.New("unknown event type")
)

// Metadata contains the information shared by all the event types.
type Metadata struct {
	Timestamp uint64
	ThreadID  uint64
}

// Payload is implemented by all the event types. A payload encodes its
// parameters in the order they are declared by its type.
type Payload interface {
	Type() Type
	MarshalParams(w *ParamWriter)
}

// Unmarshaler is implemented by the event types that can be decoded.
type Unmarshaler interface {
	UnmarshalParams(r *ParamReader) error
}

// Event is a strongly-typed view of an encoded event.
type Event[T any] struct {
	Metadata
	Params T
}

// RawEvent is an event whose header has been decoded, but whose parameters
// are still in their encoded form.
type RawEvent struct {
	Metadata
	Type    Type
	NParams uint32
	buf     []byte
}

// Len returns the total encoded length of the event.
func (r *RawEvent) Len() int {
	return len(r.buf)
}

// Bytes returns the encoded event. The returned slice must not be modified.
func (r *RawEvent) Bytes() []byte {
	return r.buf
}

// Params returns a reader over the encoded parameters of the event.
func (r *RawEvent) Params() *ParamReader {
	return &ParamReader{buf: r.buf[HeaderSize:], left: r.NParams}
}

// Encode serializes the given payload into a newly allocated buffer.
func Encode(meta Metadata, p Payload) []byte {
	return AppendEncode(nil, meta, p)
}

// AppendEncode serializes the given payload appending it to dst, and returns
// the extended buffer.
func AppendEncode(dst []byte, meta Metadata, p Payload) []byte {
	start := len(dst)
	w := &ParamWriter{buf: append(dst, make([]byte, HeaderSize)...)}
	p.MarshalParams(w)
	hdr := w.buf[start : start+HeaderSize]
	binary.LittleEndian.PutUint64(hdr[0:], meta.Timestamp)
	binary.LittleEndian.PutUint64(hdr[8:], meta.ThreadID)
	binary.LittleEndian.PutUint32(hdr[16:], uint32(len(w.buf)-start))
	binary.LittleEndian.PutUint16(hdr[20:], uint16(p.Type()))
	binary.LittleEndian.PutUint32(hdr[22:], w.n)
	return w.buf
}

// LoadRaw decodes the header of the event encoded in buf. Only the bytes of
// the event are retained, in case buf is longer than the event.
// The returned event references buf without copying it.
func LoadRaw(buf []byte) (*RawEvent, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("%w: buffer of %d bytes is shorter than header", ErrMalformedHeader, len(buf))
	}
	l := binary.LittleEndian.Uint32(buf[16:])
	if l < HeaderSize || uint64(l) > uint64(len(buf)) {
		return nil, fmt.Errorf("%w: invalid event length %d", ErrMalformedHeader, l)
	}
	return &RawEvent{
		Metadata: Metadata{
			Timestamp: binary.LittleEndian.Uint64(buf[0:]),
			ThreadID:  binary.LittleEndian.Uint64(buf[8:]),
		},
		Type:    Type(binary.LittleEndian.Uint16(buf[20:])),
		NParams: binary.LittleEndian.Uint32(buf[22:]),
		buf:     buf[:l],
	}, nil
}

// Load promotes a raw event to a strongly-typed view. ErrTypeMismatch is
// returned if the event has not been encoded with the type T.
func Load[T any, PT interface {
	*T
	Payload
	Unmarshaler
}](raw *RawEvent) (*Event[T], error) {
	res := &Event[T]{Metadata: raw.Metadata}
	p := PT(&res.Params)
	if p.Type() != raw.Type {
		return nil, fmt.Errorf("%w: expected %s, found %s", ErrTypeMismatch, p.Type(), raw.Type)
	}
	if err := p.UnmarshalParams(raw.Params()); err != nil {
		return nil, err
	}
	return res, nil
}

// Decode decodes the payload of a raw event of any of the types
// known by this package.
func (r *RawEvent) Decode() (Payload, error) {
	newPayload, ok := payloadTypes[r.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, uint16(r.Type))
	}
	p := newPayload()
	if err := p.UnmarshalParams(r.Params()); err != nil {
		return nil, err
	}
	return p, nil
}

// String returns a human-readable representation of the event.
func (r *RawEvent) String() string {
	p, err := r.Decode()
	if err != nil {
		return fmt.Sprintf("%s <undecodable: %s>", r.Type, err.Error())
	}
	if s, ok := p.(fmt.Stringer); ok {
		return s.String()
	}
	return r.Type.String()
}
