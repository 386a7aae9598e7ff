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
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// StreamWriter writes a sequence of encoded events to an underlying writer.
// Events are written back to back, and are delimited by the length
// contained in their header.
type StreamWriter struct {
	w *bufio.Writer
}

// NewStreamWriter creates a new StreamWriter writing to w.
func NewStreamWriter(w io.Writer) *StreamWriter {
	return &StreamWriter{w: bufio.NewWriter(w)}
}

// Write writes one encoded event.
func (s *StreamWriter) Write(raw *RawEvent) error {
	_, err := s.w.Write(raw.Bytes())
	return err
}

// Flush writes any buffered data to the underlying writer.
func (s *StreamWriter) Flush() error {
	return s.w.Flush()
}

// StreamReader reads a sequence of encoded events written by StreamWriter.
type StreamReader struct {
	r *bufio.Reader
}

// NewStreamReader creates a new StreamReader reading from r.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{r: bufio.NewReader(r)}
}

// Next reads the next event of the stream. io.EOF is returned when the
// stream ends at an event boundary, whereas a truncated event results in
// ErrMalformedHeader.
func (s *StreamReader) Next() (*RawEvent, error) {
	hdr := make([]byte, HeaderSize)
	if _, err := io.ReadFull(s.r, hdr); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated header", ErrMalformedHeader)
		}
		return nil, err
	}
	l := binary.LittleEndian.Uint32(hdr[16:])
	if l < HeaderSize || l > MaxEventSize {
		return nil, fmt.Errorf("%w: invalid event length %d", ErrMalformedHeader, l)
	}
	buf := make([]byte, l)
	copy(buf, hdr)
	if _, err := io.ReadFull(s.r, buf[HeaderSize:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated event", ErrMalformedHeader)
		}
		return nil, err
	}
	return LoadRaw(buf)
}
