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

package capture

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/falcosecurity/plugin-runtime-go/pkg/event"
	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk"
)

// ExtractField answers a field query against an event of the session.
// The returned boolean is false if the field has no value for the event.
// A fresh table reader token is used for each call.
func (d *Driver) ExtractField(query string, evt sdk.EventReader) (interface{}, bool, error) {
	r := d.reg.Tables().NewReader()
	defer r.Release()
	v, ok, err := d.reg.Dispatcher().Extract(query, evt, r)
	switch {
	case err != nil:
		d.metrics.extractions.Add(sdk.Labels{"result": "error"}, 1)
	case ok:
		d.metrics.extractions.Add(sdk.Labels{"result": "hit"}, 1)
	default:
		d.metrics.extractions.Add(sdk.Labels{"result": "miss"}, 1)
	}
	return v, ok, err
}

// CheckField returns a non-nil error if the field query can't be answered
// by the extractor plugins of the session.
func (d *Driver) CheckField(query string) error {
	return d.reg.Dispatcher().Check(query)
}

// FieldAsString is like ExtractField, but renders the extracted value as
// a string. List values are rendered as "(a,b,c)".
func (d *Driver) FieldAsString(query string, evt sdk.EventReader) (string, bool, error) {
	v, ok, err := d.ExtractField(query, evt)
	if err != nil || !ok {
		return "", ok, err
	}
	return FormatValue(v), true, nil
}

// EventToString renders an event in a human-readable form. Events produced
// by the source plugin are rendered by the plugin itself, and all the
// others through the event codec.
func (d *Driver) EventToString(evt sdk.EventReader) (string, error) {
	if e, ok := evt.(*Event); ok && !e.async && d.src != nil {
		s, err := d.src.Source().String(evt)
		if err != nil {
			d.src.SetLastError(err)
			return "", fmt.Errorf("plugin '%s': rendering event %d: %w", d.src.Name(), evt.EventNum(), err)
		}
		return s, nil
	}
	if evt.Raw().Type == event.TypePluginEvent && d.src != nil {
		return d.src.Source().String(evt)
	}
	return evt.Raw().String(), nil
}

// FormatValue renders a value extracted from a field as a string.
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case uint64:
		return strconv.FormatUint(val, 10)
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case time.Duration:
		return strconv.FormatInt(int64(val), 10)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case net.IP:
		return val.String()
	case net.IPNet:
		return val.String()
	case []uint64:
		return formatList(val)
	case []string:
		return formatList(val)
	case []bool:
		return formatList(val)
	case []time.Duration:
		return formatList(val)
	case []time.Time:
		return formatList(val)
	case []net.IP:
		return formatList(val)
	case []net.IPNet:
		return formatList(val)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func formatList[T any](l []T) string {
	parts := make([]string, len(l))
	for i, v := range l {
		parts[i] = FormatValue(v)
	}
	return "(" + strings.Join(parts, ",") + ")"
}
