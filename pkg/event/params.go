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
	"fmt"
)

// absentParam is the length prefix marking a parameter as not present.
// No parameter can be this long, since events are bounded by MaxEventSize.
const absentParam = ^uint32(0)

// ParamWriter encodes the parameters of an event. Each parameter is
// prefixed by its length as a little-endian u32. Absent parameters are
// encoded with a length of 0xFFFFFFFF and no data.
type ParamWriter struct {
	buf []byte
	n   uint32
}

func (w *ParamWriter) absent() {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, absentParam)
	w.n++
}

// Bytes writes a byte slice parameter. A nil slice is encoded as absent,
// whereas an empty non-nil slice is encoded as present and empty.
func (w *ParamWriter) Bytes(v []byte) {
	if v == nil {
		w.absent()
		return
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(v)))
	w.buf = append(w.buf, v...)
	w.n++
}

// String writes a string parameter, or an absent one if v is nil.
func (w *ParamWriter) String(v *string) {
	if v == nil {
		w.absent()
		return
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(*v)))
	w.buf = append(w.buf, *v...)
	w.n++
}

// Uint64 writes a u64 parameter, or an absent one if v is nil.
func (w *ParamWriter) Uint64(v *uint64) {
	if v == nil {
		w.absent()
		return
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, 8)
	w.buf = binary.LittleEndian.AppendUint64(w.buf, *v)
	w.n++
}

// Int64 writes a s64 parameter, or an absent one if v is nil.
func (w *ParamWriter) Int64(v *int64) {
	if v == nil {
		w.absent()
		return
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, 8)
	w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(*v))
	w.n++
}

// Uint32 writes a u32 parameter, or an absent one if v is nil.
func (w *ParamWriter) Uint32(v *uint32) {
	if v == nil {
		w.absent()
		return
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, 4)
	w.buf = binary.LittleEndian.AppendUint32(w.buf, *v)
	w.n++
}

// ParamReader decodes the parameters of an event in the same order they
// have been encoded. Reading past the last encoded parameter yields absent
// values, so that events encoded with fewer parameters can still be decoded.
type ParamReader struct {
	buf  []byte
	left uint32
	idx  int
}

func (r *ParamReader) next() ([]byte, bool, error) {
	if r.left == 0 {
		return nil, false, nil
	}
	if len(r.buf) < 4 {
		return nil, false, fmt.Errorf("%w: param #%d: truncated length", ErrMalformedParams, r.idx)
	}
	l := binary.LittleEndian.Uint32(r.buf)
	r.buf = r.buf[4:]
	r.left--
	r.idx++
	if l == absentParam {
		return nil, false, nil
	}
	if uint64(l) > uint64(len(r.buf)) {
		return nil, false, fmt.Errorf("%w: param #%d: length %d exceeds event", ErrMalformedParams, r.idx-1, l)
	}
	v := r.buf[:l:l]
	r.buf = r.buf[l:]
	return v, true, nil
}

func (r *ParamReader) fixed(size int) ([]byte, error) {
	v, ok, err := r.next()
	if err != nil || !ok {
		return nil, err
	}
	if len(v) != size {
		return nil, fmt.Errorf("%w: param #%d: expected %d bytes, found %d", ErrMalformedParams, r.idx-1, size, len(v))
	}
	return v, nil
}

// Bytes reads a byte slice parameter. The result is nil if the parameter
// is absent, and a non-nil slice otherwise. The returned slice references
// the event buffer.
func (r *ParamReader) Bytes() ([]byte, error) {
	v, ok, err := r.next()
	if err != nil || !ok {
		return nil, err
	}
	if v == nil {
		v = []byte{}
	}
	return v, nil
}

// String reads a string parameter, or nil if absent.
func (r *ParamReader) String() (*string, error) {
	v, ok, err := r.next()
	if err != nil || !ok {
		return nil, err
	}
	s := string(v)
	return &s, nil
}

// Uint64 reads a u64 parameter, or nil if absent.
func (r *ParamReader) Uint64() (*uint64, error) {
	v, err := r.fixed(8)
	if err != nil || v == nil {
		return nil, err
	}
	res := binary.LittleEndian.Uint64(v)
	return &res, nil
}

// Int64 reads a s64 parameter, or nil if absent.
func (r *ParamReader) Int64() (*int64, error) {
	v, err := r.fixed(8)
	if err != nil || v == nil {
		return nil, err
	}
	res := int64(binary.LittleEndian.Uint64(v))
	return &res, nil
}

// Uint32 reads a u32 parameter, or nil if absent.
func (r *ParamReader) Uint32() (*uint32, error) {
	v, err := r.fixed(4)
	if err != nil || v == nil {
		return nil, err
	}
	res := binary.LittleEndian.Uint32(v)
	return &res, nil
}
