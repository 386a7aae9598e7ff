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
	"fmt"
	"strings"
)

// Type is the discriminant of an event type.
type Type uint16

// The event types known by this package. The values match the ones
// used in the scap capture format.
const (
	TypeSyscallOpenE  Type = 2
	TypeSyscallOpenX  Type = 3
	TypeSyscallCloseE Type = 4
	TypeSyscallCloseX Type = 5
	TypeSyscallReadE  Type = 6
	TypeSyscallReadX  Type = 7
	TypePluginEvent   Type = 322
	TypeAsyncEvent    Type = 402
)

var typeNames = map[Type]string{
	TypeSyscallOpenE:  "OPEN_E",
	TypeSyscallOpenX:  "OPEN_X",
	TypeSyscallCloseE: "CLOSE_E",
	TypeSyscallCloseX: "CLOSE_X",
	TypeSyscallReadE:  "READ_E",
	TypeSyscallReadX:  "READ_X",
	TypePluginEvent:   "PLUGINEVENT_E",
	TypeAsyncEvent:    "ASYNCEVENT_E",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint16(t))
}

// ParseType returns the event type with the given name, as returned by
// Type.String.
func ParseType(name string) (Type, bool) {
	for t, n := range typeNames {
		if strings.EqualFold(n, name) {
			return t, true
		}
	}
	return 0, false
}

type decodable interface {
	Payload
	Unmarshaler
}

var payloadTypes = map[Type]func() decodable{
	TypeSyscallOpenE:  func() decodable { return &SyscallOpenE{} },
	TypeSyscallOpenX:  func() decodable { return &SyscallOpenX{} },
	TypeSyscallCloseE: func() decodable { return &SyscallCloseE{} },
	TypeSyscallCloseX: func() decodable { return &SyscallCloseX{} },
	TypeSyscallReadE:  func() decodable { return &SyscallReadE{} },
	TypeSyscallReadX:  func() decodable { return &SyscallReadX{} },
	TypePluginEvent:   func() decodable { return &PluginEvent{} },
	TypeAsyncEvent:    func() decodable { return &AsyncEvent{} },
}

// Ptr returns a pointer to a copy of v. This is handy for filling the
// optional parameters of the event types.
func Ptr[T any](v T) *T {
	return &v
}

// PluginEvent is an event produced by a source plugin. Data is opaque and
// can only be interpreted by the plugins knowing the event source.
type PluginEvent struct {
	PluginID *uint32
	Data     []byte
}

func (e PluginEvent) Type() Type { return TypePluginEvent }

func (e PluginEvent) MarshalParams(w *ParamWriter) {
	w.Uint32(e.PluginID)
	w.Bytes(e.Data)
}

func (e *PluginEvent) UnmarshalParams(r *ParamReader) (err error) {
	if e.PluginID, err = r.Uint32(); err != nil {
		return
	}
	e.Data, err = r.Bytes()
	return
}

func (e PluginEvent) String() string {
	return fmt.Sprintf("%s plugin_id=%s data=%s", e.Type(), fmtUint32(e.PluginID), fmtBytes(e.Data))
}

// AsyncEvent is an event emitted asynchronously by a plugin with async
// events capability.
type AsyncEvent struct {
	PluginID *uint32
	Name     *string
	Data     []byte
}

func (e AsyncEvent) Type() Type { return TypeAsyncEvent }

func (e AsyncEvent) MarshalParams(w *ParamWriter) {
	w.Uint32(e.PluginID)
	w.String(e.Name)
	w.Bytes(e.Data)
}

func (e *AsyncEvent) UnmarshalParams(r *ParamReader) (err error) {
	if e.PluginID, err = r.Uint32(); err != nil {
		return
	}
	if e.Name, err = r.String(); err != nil {
		return
	}
	e.Data, err = r.Bytes()
	return
}

func (e AsyncEvent) String() string {
	return fmt.Sprintf("%s plugin_id=%s name=%s data=%s", e.Type(), fmtUint32(e.PluginID), fmtString(e.Name), fmtBytes(e.Data))
}

// SyscallOpenE is the enter event of the open syscall.
type SyscallOpenE struct {
	Name  *string
	Flags *uint32
	Mode  *uint32
}

func (e SyscallOpenE) Type() Type { return TypeSyscallOpenE }

func (e SyscallOpenE) MarshalParams(w *ParamWriter) {
	w.String(e.Name)
	w.Uint32(e.Flags)
	w.Uint32(e.Mode)
}

func (e *SyscallOpenE) UnmarshalParams(r *ParamReader) (err error) {
	if e.Name, err = r.String(); err != nil {
		return
	}
	if e.Flags, err = r.Uint32(); err != nil {
		return
	}
	e.Mode, err = r.Uint32()
	return
}

func (e SyscallOpenE) String() string {
	return fmt.Sprintf("%s name=%s flags=%s mode=%s", e.Type(), fmtString(e.Name), fmtUint32(e.Flags), fmtOctal(e.Mode))
}

// SyscallOpenX is the exit event of the open syscall.
type SyscallOpenX struct {
	Fd    *int64
	Name  *string
	Flags *uint32
	Mode  *uint32
	Dev   *uint32
	Ino   *uint64
}

func (e SyscallOpenX) Type() Type { return TypeSyscallOpenX }

func (e SyscallOpenX) MarshalParams(w *ParamWriter) {
	w.Int64(e.Fd)
	w.String(e.Name)
	w.Uint32(e.Flags)
	w.Uint32(e.Mode)
	w.Uint32(e.Dev)
	w.Uint64(e.Ino)
}

func (e *SyscallOpenX) UnmarshalParams(r *ParamReader) (err error) {
	if e.Fd, err = r.Int64(); err != nil {
		return
	}
	if e.Name, err = r.String(); err != nil {
		return
	}
	if e.Flags, err = r.Uint32(); err != nil {
		return
	}
	if e.Mode, err = r.Uint32(); err != nil {
		return
	}
	if e.Dev, err = r.Uint32(); err != nil {
		return
	}
	e.Ino, err = r.Uint64()
	return
}

func (e SyscallOpenX) String() string {
	return fmt.Sprintf("%s fd=%s name=%s flags=%s mode=%s dev=%s ino=%s", e.Type(),
		fmtInt64(e.Fd), fmtString(e.Name), fmtUint32(e.Flags), fmtOctal(e.Mode), fmtUint32(e.Dev), fmtUint64(e.Ino))
}

// SyscallCloseE is the enter event of the close syscall.
type SyscallCloseE struct {
	Fd *int64
}

func (e SyscallCloseE) Type() Type { return TypeSyscallCloseE }

func (e SyscallCloseE) MarshalParams(w *ParamWriter) {
	w.Int64(e.Fd)
}

func (e *SyscallCloseE) UnmarshalParams(r *ParamReader) (err error) {
	e.Fd, err = r.Int64()
	return
}

func (e SyscallCloseE) String() string {
	return fmt.Sprintf("%s fd=%s", e.Type(), fmtInt64(e.Fd))
}

// SyscallCloseX is the exit event of the close syscall.
type SyscallCloseX struct {
	Res *int64
}

func (e SyscallCloseX) Type() Type { return TypeSyscallCloseX }

func (e SyscallCloseX) MarshalParams(w *ParamWriter) {
	w.Int64(e.Res)
}

func (e *SyscallCloseX) UnmarshalParams(r *ParamReader) (err error) {
	e.Res, err = r.Int64()
	return
}

func (e SyscallCloseX) String() string {
	return fmt.Sprintf("%s res=%s", e.Type(), fmtInt64(e.Res))
}

// SyscallReadE is the enter event of the read syscall.
type SyscallReadE struct {
	Fd   *int64
	Size *uint32
}

func (e SyscallReadE) Type() Type { return TypeSyscallReadE }

func (e SyscallReadE) MarshalParams(w *ParamWriter) {
	w.Int64(e.Fd)
	w.Uint32(e.Size)
}

func (e *SyscallReadE) UnmarshalParams(r *ParamReader) (err error) {
	if e.Fd, err = r.Int64(); err != nil {
		return
	}
	e.Size, err = r.Uint32()
	return
}

func (e SyscallReadE) String() string {
	return fmt.Sprintf("%s fd=%s size=%s", e.Type(), fmtInt64(e.Fd), fmtUint32(e.Size))
}

// SyscallReadX is the exit event of the read syscall.
type SyscallReadX struct {
	Res  *int64
	Data []byte
}

func (e SyscallReadX) Type() Type { return TypeSyscallReadX }

func (e SyscallReadX) MarshalParams(w *ParamWriter) {
	w.Int64(e.Res)
	w.Bytes(e.Data)
}

func (e *SyscallReadX) UnmarshalParams(r *ParamReader) (err error) {
	if e.Res, err = r.Int64(); err != nil {
		return
	}
	e.Data, err = r.Bytes()
	return
}

func (e SyscallReadX) String() string {
	return fmt.Sprintf("%s res=%s data=%s", e.Type(), fmtInt64(e.Res), fmtBytes(e.Data))
}

const none = "<NA>"

func fmtString(v *string) string {
	if v == nil {
		return none
	}
	return *v
}

func fmtBytes(v []byte) string {
	if v == nil {
		return none
	}
	return fmt.Sprintf("%q", v)
}

func fmtUint32(v *uint32) string {
	if v == nil {
		return none
	}
	return fmt.Sprint(*v)
}

func fmtOctal(v *uint32) string {
	if v == nil {
		return none
	}
	return fmt.Sprintf("0%o", *v)
}

func fmtUint64(v *uint64) string {
	if v == nil {
		return none
	}
	return fmt.Sprint(*v)
}

func fmtInt64(v *int64) string {
	if v == nil {
		return none
	}
	return fmt.Sprint(*v)
}
