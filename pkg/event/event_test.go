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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMeta = Metadata{Timestamp: 1, ThreadID: 1}

func roundTrip[T any, PT interface {
	*T
	Payload
	Unmarshaler
}](t *testing.T, in T) {
	buf := Encode(testMeta, PT(&in))
	raw, err := LoadRaw(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), raw.Len())
	assert.Equal(t, PT(&in).Type(), raw.Type)
	assert.Equal(t, testMeta, raw.Metadata)

	evt, err := Load[T, PT](raw)
	require.NoError(t, err)
	assert.Equal(t, testMeta, evt.Metadata)
	assert.Equal(t, in, evt.Params)
}

func TestRoundTrip(t *testing.T) {
	t.Run("open", func(t *testing.T) {
		roundTrip(t, SyscallOpenE{Name: Ptr("/etc/passwd"), Flags: Ptr(uint32(2)), Mode: Ptr(uint32(0o644))})
		roundTrip(t, SyscallOpenX{
			Fd:    Ptr(int64(5)),
			Name:  Ptr("/etc/passwd"),
			Flags: Ptr(uint32(2)),
			Mode:  Ptr(uint32(0o644)),
			Dev:   Ptr(uint32(0)),
			Ino:   Ptr(uint64(0)),
		})
	})
	t.Run("read", func(t *testing.T) {
		roundTrip(t, SyscallReadE{Fd: Ptr(int64(5)), Size: Ptr(uint32(5))})
		roundTrip(t, SyscallReadX{Res: Ptr(int64(5)), Data: []byte("hello")})
	})
	t.Run("close", func(t *testing.T) {
		roundTrip(t, SyscallCloseE{Fd: Ptr(int64(-1))})
		roundTrip(t, SyscallCloseX{Res: Ptr(int64(0))})
	})
	t.Run("plugin", func(t *testing.T) {
		roundTrip(t, PluginEvent{PluginID: Ptr(uint32(999)), Data: []byte{1, 2, 3}})
	})
	t.Run("async", func(t *testing.T) {
		roundTrip(t, AsyncEvent{PluginID: Ptr(uint32(0)), Name: Ptr("async"), Data: []byte("hello world")})
	})
}

func TestAbsentParams(t *testing.T) {
	t.Run("single", func(t *testing.T) {
		in := SyscallOpenX{Fd: Ptr(int64(5)), Flags: Ptr(uint32(2)), Ino: Ptr(uint64(7))}
		raw, err := LoadRaw(Encode(testMeta, in))
		require.NoError(t, err)
		evt, err := Load[SyscallOpenX](raw)
		require.NoError(t, err)
		assert.Nil(t, evt.Params.Name)
		assert.Nil(t, evt.Params.Mode)
		assert.Nil(t, evt.Params.Dev)
		assert.Equal(t, int64(5), *evt.Params.Fd)
		assert.Equal(t, uint64(7), *evt.Params.Ino)
	})
	t.Run("empty vs absent", func(t *testing.T) {
		raw, err := LoadRaw(Encode(testMeta, SyscallReadX{Res: Ptr(int64(0)), Data: []byte{}}))
		require.NoError(t, err)
		evt, err := Load[SyscallReadX](raw)
		require.NoError(t, err)
		assert.NotNil(t, evt.Params.Data)
		assert.Empty(t, evt.Params.Data)

		raw, err = LoadRaw(Encode(testMeta, SyscallReadX{Res: Ptr(int64(0))}))
		require.NoError(t, err)
		evt, err = Load[SyscallReadX](raw)
		require.NoError(t, err)
		assert.Nil(t, evt.Params.Data)

		emptyName := ""
		raw, err = LoadRaw(Encode(testMeta, AsyncEvent{Name: &emptyName}))
		require.NoError(t, err)
		aevt, err := Load[AsyncEvent](raw)
		require.NoError(t, err)
		require.NotNil(t, aevt.Params.Name)
		assert.Equal(t, "", *aevt.Params.Name)
		assert.Nil(t, aevt.Params.PluginID)
	})
	t.Run("trailing", func(t *testing.T) {
		// an event encoded with fewer parameters than its type declares
		buf := Encode(testMeta, SyscallCloseE{Fd: Ptr(int64(3))})
		binary.LittleEndian.PutUint16(buf[20:], uint16(TypeSyscallReadE))
		raw, err := LoadRaw(buf)
		require.NoError(t, err)
		evt, err := Load[SyscallReadE](raw)
		require.NoError(t, err)
		assert.Equal(t, int64(3), *evt.Params.Fd)
		assert.Nil(t, evt.Params.Size)
	})
}

func TestTypeMismatch(t *testing.T) {
	raw, err := LoadRaw(Encode(testMeta, SyscallReadE{Fd: Ptr(int64(5)), Size: Ptr(uint32(5))}))
	require.NoError(t, err)

	_, err = Load[SyscallOpenX](raw)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	_, err = Load[SyscallCloseE](raw)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	_, err = Load[PluginEvent](raw)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	evt, err := Load[SyscallReadE](raw)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), *evt.Params.Size)
}

func TestMalformed(t *testing.T) {
	_, err := LoadRaw(nil)
	assert.ErrorIs(t, err, ErrMalformedHeader)
	_, err = LoadRaw(make([]byte, HeaderSize-1))
	assert.ErrorIs(t, err, ErrMalformedHeader)

	buf := Encode(testMeta, SyscallReadX{Res: Ptr(int64(5)), Data: []byte("hello")})
	_, err = LoadRaw(buf[:len(buf)-1])
	assert.ErrorIs(t, err, ErrMalformedHeader)

	// a longer buffer is accepted, and only the event bytes are retained
	raw, err := LoadRaw(append(buf, 0xAA, 0xBB))
	require.NoError(t, err)
	assert.Equal(t, len(buf), raw.Len())

	// a parameter length exceeding the event
	bad := append([]byte(nil), buf...)
	binary.LittleEndian.PutUint32(bad[HeaderSize+12:], 1000)
	raw, err = LoadRaw(bad)
	require.NoError(t, err)
	_, err = Load[SyscallReadX](raw)
	assert.ErrorIs(t, err, ErrMalformedParams)

	// a fixed-size parameter with the wrong size
	bad = append([]byte(nil), buf...)
	binary.LittleEndian.PutUint32(bad[HeaderSize:], 4)
	raw, err = LoadRaw(bad)
	require.NoError(t, err)
	_, err = raw.Decode()
	assert.True(t, errors.Is(err, ErrMalformedParams))
}

func TestDecodeAndString(t *testing.T) {
	raw, err := LoadRaw(Encode(testMeta, SyscallOpenX{Fd: Ptr(int64(5)), Name: Ptr("/etc/passwd"), Mode: Ptr(uint32(0o644))}))
	require.NoError(t, err)
	p, err := raw.Decode()
	require.NoError(t, err)
	assert.Equal(t, TypeSyscallOpenX, p.Type())
	assert.Equal(t, "OPEN_X fd=5 name=/etc/passwd flags=<NA> mode=0644 dev=<NA> ino=<NA>", raw.String())

	raw, err = LoadRaw(Encode(testMeta, AsyncEvent{PluginID: Ptr(uint32(0)), Name: Ptr("async"), Data: []byte("hello")}))
	require.NoError(t, err)
	assert.Equal(t, `ASYNCEVENT_E plugin_id=0 name=async data="hello"`, raw.String())

	buf := Encode(testMeta, SyscallCloseX{})
	binary.LittleEndian.PutUint16(buf[20:], 9999)
	raw, err = LoadRaw(buf)
	require.NoError(t, err)
	_, err = raw.Decode()
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestParseType(t *testing.T) {
	typ, ok := ParseType("open_x")
	assert.True(t, ok)
	assert.Equal(t, TypeSyscallOpenX, typ)
	_, ok = ParseType("nope")
	assert.False(t, ok)
	assert.Equal(t, "UNKNOWN(1)", Type(1).String())
}
