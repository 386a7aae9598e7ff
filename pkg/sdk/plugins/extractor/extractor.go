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

// Package extractor defines the field extraction capability. Plugins with
// this capability declare a list of fields, and extract their values from
// the events of the sources listed in Info.ExtractEventSources (all sources
// if empty).
package extractor

import (
	"fmt"
	"regexp"

	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk"
	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk/plugins"
)

var fieldNameRegexp = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z0-9_]+)+$`)

type Plugin interface {
	plugins.Plugin
	Fields() []sdk.FieldEntry
	// Extract sets the value of the field requested with req for the given
	// event. Setting no value means that the field has no value for the
	// event, as does returning sdk.ErrMissingData.
	Extract(req sdk.ExtractRequest, evt sdk.EventReader) error
}

// CheckFields returns a non-nil error if the given list of fields is
// not well-formed.
func CheckFields(fields []sdk.FieldEntry) error {
	if len(fields) == 0 {
		return fmt.Errorf("plugin declares no field")
	}
	names := make(map[string]bool)
	for _, f := range fields {
		if !fieldNameRegexp.MatchString(f.Name) {
			return fmt.Errorf("invalid field name: '%s'", f.Name)
		}
		if names[f.Name] {
			return fmt.Errorf("field '%s' is declared twice", f.Name)
		}
		names[f.Name] = true
		if _, ok := sdk.FieldType(f.Type); !ok {
			return fmt.Errorf("field '%s' has unsupported type '%s'", f.Name, f.Type)
		}
		if f.Arg.IsRequired && !f.Arg.IsIndex && !f.Arg.IsKey {
			return fmt.Errorf("field '%s' requires an argument, but accepts neither an index nor a key", f.Name)
		}
	}
	return nil
}
