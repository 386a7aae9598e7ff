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
	"github.com/falcosecurity/plugin-runtime-go/pkg/tables"
)

// The types of the values that can be extracted from fields.
// The numeric values are shared with the event parameter types of the
// wire format.
const (
	FieldTypeUint64  uint32 = 8
	FieldTypeCharBuf uint32 = 9
	FieldTypeRelTime uint32 = 20
	FieldTypeAbsTime uint32 = 21
	FieldTypeBool    uint32 = 25
	FieldTypeIPAddr  uint32 = 40
	FieldTypeIPNet   uint32 = 41
)

var fieldTypeNames = map[string]uint32{
	"uint64":  FieldTypeUint64,
	"string":  FieldTypeCharBuf,
	"reltime": FieldTypeRelTime,
	"abstime": FieldTypeAbsTime,
	"bool":    FieldTypeBool,
	"ipaddr":  FieldTypeIPAddr,
	"ipnet":   FieldTypeIPNet,
}

// FieldType returns the numeric type of the field type name used in
// FieldEntry, and false if the name is not a supported type.
func FieldType(name string) (uint32, bool) {
	t, ok := fieldTypeNames[name]
	return t, ok
}

// FieldEntryArg describes the argument accepted by a field, if any.
type FieldEntryArg struct {
	IsRequired bool `json:"isRequired"`
	IsIndex    bool `json:"isIndex"`
	IsKey      bool `json:"isKey"`
}

// FieldEntry represents a single field entry that a plugin with field
// extraction capability can expose.
//
// EventTypes and EventSources restrict the events against which the field
// can be extracted. An empty list means all event types or all the event
// sources declared by the plugin, respectively.
type FieldEntry struct {
	Type         string        `json:"type"`
	Name         string        `json:"name"`
	IsList       bool          `json:"isList"`
	Arg          FieldEntryArg `json:"arg"`
	Display      string        `json:"display"`
	Desc         string        `json:"desc"`
	Properties   []string      `json:"properties"`
	EventTypes   []uint16      `json:"eventTypes,omitempty"`
	EventSources []string      `json:"eventSources,omitempty"`
}

// ExtractRequest represents a request for extracting the value of a single
// field from an event. Requests are created by the field extraction
// dispatcher and are valid only for the duration of one Extract call.
type ExtractRequest interface {
	// FieldID returns id of the field, as of its index in the list of fields
	// returned by Fields.
	FieldID() uint64
	//
	// FieldType returns the type of the field for which the value extraction
	// is requested. For now, the supported types are:
	//  - sdk.FieldTypeBool
	//  - sdk.FieldTypeUint64
	//  - sdk.FieldTypeCharBuf
	//  - sdk.FieldTypeRelTime
	//  - sdk.FieldTypeAbsTime
	//  - sdk.FieldTypeIPAddr
	//  - sdk.FieldTypeIPNet
	FieldType() uint32
	//
	// Field returns the name of the field for which the value extraction
	// is requested.
	Field() string
	//
	// ArgKey must be used when the field arg is a generic string (like a key
	// in a lookup operation). This field must have the `isKey` flag enabled.
	ArgKey() string
	//
	// ArgIndex must be used when the field arg is an index (0<=index<=2^64-1).
	// This field must have the `isIndex` flag enabled.
	ArgIndex() uint64
	//
	// ArgPresent clearly defines when an argument is valid or not.
	ArgPresent() bool
	//
	// IsList returns true if the field extracts lists of values.
	IsList() bool
	//
	// SetValue sets the extracted value for the requested field.
	//
	// Coherently to the FieldType of the extraction request, the passed
	// value must be one of the following types (or slices of them, in case
	// IsList() returns true):
	//  - sdk.FieldTypeBool: bool
	//  - sdk.FieldTypeUint64: uint64
	//  - sdk.FieldTypeCharBuf: string
	//  - sdk.FieldTypeRelTime: time.Duration
	//  - sdk.FieldTypeAbsTime: time.Time
	//  - sdk.FieldTypeIPAddr: net.IP
	//  - sdk.FieldTypeIPNet: net.IPNet
	SetValue(v interface{})
	//
	// TableReader returns the reader token that can be used to read from
	// the imported tables for the duration of the extraction.
	TableReader() *tables.Reader
}
