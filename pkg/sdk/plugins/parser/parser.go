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

// Package parser defines the event parsing capability. Plugins with this
// capability observe every event produced in a capture session before it
// is handed to the consumer, and can update the state tables accordingly.
package parser

import (
	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk"
	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk/plugins"
	"github.com/falcosecurity/plugin-runtime-go/pkg/tables"
)

type Plugin interface {
	plugins.Plugin
	// ParseEventTypes returns the event types the plugin wants to parse.
	// An empty list means all the event types.
	ParseEventTypes() []uint16
	// ParseEventSources returns the event sources the plugin wants to
	// parse. An empty list means all the event sources.
	ParseEventSources() []string
	// Parse parses an event. The writer token grants access to the
	// imported tables and is valid only during the call. A non-nil error
	// is fatal for the capture session.
	Parse(evt sdk.EventReader, w *tables.Writer) error
}

// Accepts returns true if the given plugin wants to parse events with the
// given type and source.
func Accepts(p Plugin, evtType uint16, evtSource string) bool {
	return matches(p.ParseEventTypes(), evtType) && matches(p.ParseEventSources(), evtSource)
}

func matches[T comparable](filter []T, v T) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == v {
			return true
		}
	}
	return false
}
