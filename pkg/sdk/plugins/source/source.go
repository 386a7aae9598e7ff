/*
Copyright (C) 2021 The Falco Authors.

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

// Package source defines the event sourcing capability. Plugins with this
// capability open capture instances producing new events of the event
// source declared in their Info.
package source

import (
	"github.com/falcosecurity/plugin-runtime-go/pkg/event"
	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk"
	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk/plugins"
)

type Plugin interface {
	plugins.Plugin
	sdk.Stringer
	Open(params string) (Instance, error)
	// (optional) sdk.OpenParams
}

// Instance is a capture instance opened by a source plugin.
type Instance interface {
	// NextBatch fills the given batch with new events. The batch is empty
	// when passed, and the events added to it are consumed by the capture
	// driver even when sdk.ErrTimeout or sdk.ErrEOF are returned. Any other
	// non-nil error is fatal for the capture session, and the events in the
	// batch are discarded.
	NextBatch(pState sdk.PluginState, evts *event.Batch) error
	// (optional) sdk.Closer
	// (optional) sdk.Progresser
}
