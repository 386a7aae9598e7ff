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

package extract

import (
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/falcosecurity/plugin-runtime-go/pkg/event"
	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk"
	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk/plugins"
	"github.com/falcosecurity/plugin-runtime-go/pkg/tables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTest = errors.New("test error")

type testPlugin struct {
	plugins.BasePlugin
	fields  []sdk.FieldEntry
	extract func(req sdk.ExtractRequest, evt sdk.EventReader) error
}

func (p *testPlugin) Info() *plugins.Info {
	return &plugins.Info{Name: "test"}
}

func (p *testPlugin) Init(in *plugins.InitInput) error {
	return nil
}

func (p *testPlugin) Fields() []sdk.FieldEntry {
	return p.fields
}

func (p *testPlugin) Extract(req sdk.ExtractRequest, evt sdk.EventReader) error {
	return p.extract(req, evt)
}

func syscallEvent(t *testing.T, p event.Payload) sdk.EventReader {
	raw, err := event.LoadRaw(event.Encode(event.Metadata{Timestamp: 1, ThreadID: 1}, p))
	require.NoError(t, err)
	return &sdk.InMemoryEventReader{ValEventNum: 1, ValEventSource: "syscall", ValRaw: raw}
}

func newFdPlugin() *testPlugin {
	return &testPlugin{
		fields: []sdk.FieldEntry{
			{
				Type:       "string",
				Name:       "syscall.fd",
				EventTypes: []uint16{uint16(event.TypeSyscallOpenX)},
			},
		},
		extract: func(req sdk.ExtractRequest, evt sdk.EventReader) error {
			e, err := event.Load[event.SyscallOpenX](evt.Raw())
			if err != nil {
				return err
			}
			if e.Params.Fd == nil {
				return sdk.ErrMissingData
			}
			req.SetValue(fmt.Sprintf("%d", *e.Params.Fd))
			return nil
		},
	}
}

func TestExtractFilter(t *testing.T) {
	d := NewDispatcher()
	require.NoError(t, d.Add("fd", newFdPlugin(), []string{"syscall"}))

	open := syscallEvent(t, event.SyscallOpenX{Fd: event.Ptr(int64(5)), Name: event.Ptr("/etc/passwd")})
	v, ok, err := d.Extract("syscall.fd", open, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "5", v)

	// the field is filtered to open events
	read := syscallEvent(t, event.SyscallReadE{Fd: event.Ptr(int64(5))})
	v, ok, err = d.Extract("syscall.fd", read, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)

	// missing data means absent
	noFd := syscallEvent(t, event.SyscallOpenX{Name: event.Ptr("/etc/passwd")})
	_, ok, err = d.Extract("syscall.fd", noFd, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	// the field is filtered to the syscall source
	other := &sdk.InMemoryEventReader{ValEventSource: "other", ValRaw: open.Raw()}
	_, ok, err = d.Extract("syscall.fd", other, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExtractQueryErrors(t *testing.T) {
	d := NewDispatcher()
	require.NoError(t, d.Add("fd", newFdPlugin(), nil))
	require.NoError(t, d.Add("args", &testPlugin{
		fields: []sdk.FieldEntry{
			{Type: "uint64", Name: "test.index", Arg: sdk.FieldEntryArg{IsRequired: true, IsIndex: true}},
			{Type: "string", Name: "test.key", Arg: sdk.FieldEntryArg{IsKey: true}},
		},
		extract: func(req sdk.ExtractRequest, evt sdk.EventReader) error {
			if req.FieldID() == 0 {
				req.SetValue(req.ArgIndex())
			} else if req.ArgPresent() {
				req.SetValue(req.ArgKey())
			}
			return nil
		},
	}, nil))
	evt := syscallEvent(t, event.SyscallOpenX{Fd: event.Ptr(int64(5))})

	_, _, err := d.Extract("syscall.unknown", evt, nil)
	assert.ErrorIs(t, err, ErrUnknownField)
	_, _, err = d.Extract("syscall.fd[1]", evt, nil)
	assert.ErrorIs(t, err, ErrInvalidArg)
	_, _, err = d.Extract("test.index", evt, nil)
	assert.ErrorIs(t, err, ErrInvalidArg)
	_, _, err = d.Extract("test.index[abc]", evt, nil)
	assert.ErrorIs(t, err, ErrInvalidArg)
	_, _, err = d.Extract("test.index[]", evt, nil)
	assert.ErrorIs(t, err, ErrInvalidArg)
	assert.ErrorIs(t, d.Check("test.index"), ErrInvalidArg)
	assert.NoError(t, d.Check("test.index[3]"))

	v, ok, err := d.Extract("test.index[3]", evt, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(3), v)

	v, ok, err = d.Extract(`test.key["a b"]`, evt, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a b", v)

	// optional argument not given, no value set
	_, ok, err = d.Extract("test.key", evt, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExtractErrors(t *testing.T) {
	var value interface{}
	var extractErr error
	d := NewDispatcher()
	require.NoError(t, d.Add("test", &testPlugin{
		fields: []sdk.FieldEntry{
			{Type: "uint64", Name: "test.u64"},
			{Type: "ipaddr", Name: "test.ips", IsList: true},
		},
		extract: func(req sdk.ExtractRequest, evt sdk.EventReader) error {
			req.SetValue(value)
			return extractErr
		},
	}, nil))
	evt := syscallEvent(t, event.SyscallCloseE{})

	extractErr = errTest
	_, _, err := d.Extract("test.u64", evt, nil)
	assert.ErrorIs(t, err, errTest)

	extractErr = fmt.Errorf("wrapped: %w", sdk.ErrMissingData)
	_, ok, err := d.Extract("test.u64", evt, nil)
	assert.NoError(t, err)
	assert.False(t, ok)

	extractErr = nil
	value = "not a number"
	_, _, err = d.Extract("test.u64", evt, nil)
	assert.ErrorIs(t, err, ErrFieldType)

	value = []net.IP{net.ParseIP("127.0.0.1")}
	v, ok, err := d.Extract("test.ips", evt, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, v, 1)

	value = net.ParseIP("127.0.0.1")
	_, _, err = d.Extract("test.ips", evt, nil)
	assert.ErrorIs(t, err, ErrFieldType)
}

func TestDispatcherAdd(t *testing.T) {
	d := NewDispatcher()
	require.NoError(t, d.Add("a", &testPlugin{fields: []sdk.FieldEntry{
		{Type: "uint64", Name: "b.field"},
		{Type: "uint64", Name: "a.field"},
	}}, []string{"src"}))

	err := d.Add("b", &testPlugin{fields: []sdk.FieldEntry{
		{Type: "uint64", Name: "c.field"},
		{Type: "uint64", Name: "a.field"},
	}}, nil)
	assert.ErrorIs(t, err, ErrDuplicateField)
	_, ok := d.Field("c.field")
	assert.False(t, ok)

	assert.Error(t, d.Add("c", &testPlugin{}, nil))

	fields := d.Fields()
	require.Len(t, fields, 2)
	assert.Equal(t, "a.field", fields[0].Name)
	assert.Equal(t, "b.field", fields[1].Name)
	assert.Equal(t, "a", fields[0].Owner)
	assert.Equal(t, []string{"src"}, fields[0].Sources)
}

func TestExtractTableReader(t *testing.T) {
	type entry struct {
		Count uint64 `table:"count"`
	}
	reg := tables.NewRegistry()
	exp, err := tables.Export[uint64, entry](reg, "counts")
	require.NoError(t, err)
	e := exp.CreateEntry()
	e.Count = 7
	exp.Insert(1, e)

	var acc struct {
		Count tables.Field[uint64]
	}
	imp, err := tables.Import[uint64](reg, "counts", &acc)
	require.NoError(t, err)

	d := NewDispatcher()
	require.NoError(t, d.Add("test", &testPlugin{
		fields: []sdk.FieldEntry{{Type: "uint64", Name: "test.count", Arg: sdk.FieldEntryArg{IsRequired: true, IsIndex: true}}},
		extract: func(req sdk.ExtractRequest, evt sdk.EventReader) error {
			e, err := imp.GetEntry(req.TableReader(), req.ArgIndex())
			if err != nil {
				return err
			}
			v, err := acc.Count.Get(req.TableReader(), e)
			if err != nil {
				return err
			}
			req.SetValue(v)
			return nil
		},
	}, nil))

	r := reg.NewReader()
	v, ok, err := d.Extract("test.count[1]", syscallEvent(t, event.SyscallCloseE{}), r)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(7), v)

	r.Release()
	_, _, err = d.Extract("test.count[1]", syscallEvent(t, event.SyscallCloseE{}), r)
	assert.ErrorIs(t, err, tables.ErrTokenExpired)
}

func TestParseQuery(t *testing.T) {
	q, err := ParseQuery("gen.count[3]")
	require.NoError(t, err)
	assert.Equal(t, Query{Field: "gen.count", Arg: "3", HasArg: true}, q)
	assert.Equal(t, "gen.count[3]", q.String())

	q, err = ParseQuery(`map.value["x]y"]`)
	require.NoError(t, err)
	assert.Equal(t, "x]y", q.Arg)
	assert.True(t, q.Quoted)

	for _, s := range []string{"", "[1]", "a.b[1", "a.b]", "a.b[1][2]", `a.b["x]`} {
		_, err := ParseQuery(s)
		assert.ErrorIs(t, err, ErrInvalidArg, s)
	}
}
