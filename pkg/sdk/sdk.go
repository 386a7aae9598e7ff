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
	"errors"
)

// DefaultBatchSize is the default number of events in the event batches
// allocated by the capture driver for each call to NextBatch.
const DefaultBatchSize = 64

// DefaultAsyncQueueSize is the default capacity of the queue shared by all
// the plugins with async events capability.
const DefaultAsyncQueueSize = 128

// SyscallPluginID is the plugin ID reserved for the built-in syscall
// event source.
const SyscallPluginID uint32 = 0

// SyscallEventSource is the name of the event source reserved for the
// built-in syscall event source.
const SyscallEventSource = "syscall"

// ErrEOF must be returned by NextBatch to signal that an event source has
// been exhausted. This is the expected termination of a capture session
// and is not considered a failure.
var ErrEOF = errors.New("eof")

// ErrTimeout must be returned by NextBatch when no new event is currently
// available but the event source is still alive. The events already added to
// the batch are still valid.
var ErrTimeout = errors.New("timeout")

// ErrMissingData must be returned (optionally wrapped) by extractors when
// the value requested is not available for the given event. The field gets
// reported as having no value instead of failing.
var ErrMissingData = errors.New("missing data")

// ErrClosed is returned when using a resource that has already been closed
// or stopped.
var ErrClosed = errors.New("closed")

// PluginState represents the state of a plugin as passed by the capture
// driver to the instance callbacks.
type PluginState interface {
}

// InstanceState represents the state of a capture instance opened by
// a source plugin.
type InstanceState interface {
}

// Closer is an interface wrapping the basic Close method.
// Close deinitializes the resources opened or allocated by a capture instance.
type Closer interface {
	Close()
}

// Destroyer is an interface wrapping the basic Destroy method.
// Destroy deinitializes the resources opened or allocated by a plugin.
type Destroyer interface {
	Destroy()
}

// Stringer is an interface wrapping the basic String method.
// String takes an event and returns a human-readable representation of it.
type Stringer interface {
	String(evt EventReader) (string, error)
}

// Progresser is an interface wrapping the basic Progress method.
// Progress returns a percentage indicator referring to the production
// progress of an event source, along with its string representation.
type Progresser interface {
	Progress(pState PluginState) (float64, string)
}

// SchemaInfo represent a schema describing a structured data type.
type SchemaInfo struct {
	Schema string
}

// InitSchema is an interface wrapping the basic InitSchema method.
// InitSchema returns a JSON schema describing the configuration expected
// at initialization time. The configuration gets validated against it before
// being passed to the plugin.
type InitSchema interface {
	InitSchema() *SchemaInfo
}

// ConfigSetter is an interface wrapping the basic SetConfig method.
// SetConfig updates the configuration of an already initialized plugin. The
// configuration gets validated against the init schema, if any.
type ConfigSetter interface {
	SetConfig(config string) error
}

// LastError is a compact interface wrapping the basic LastError and
// SetLastError methods. This is used by the runtime to keep track of the
// last error produced by the callbacks of a plugin.
type LastError interface {
	LastError() error
	SetLastError(err error)
}

// OpenParam represents a valid parameter for the Open method of
// source plugins.
type OpenParam struct {
	Value     string `json:"value"`
	Desc      string `json:"desc"`
	Separator string `json:"separator"`
}

// OpenParams is an interface wrapping the basic OpenParams method.
// OpenParams returns a list of suggested parameters accepted by Open.
type OpenParams interface {
	OpenParams() ([]OpenParam, error)
}
