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

package rules

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTest = errors.New("test error")

// testExtractor serves fields from a per-event map
type testExtractor struct {
	values map[uint64]map[string]interface{}
}

func (t *testExtractor) ExtractField(query string, evt sdk.EventReader) (interface{}, bool, error) {
	if query == "test.fail" {
		return nil, false, errTest
	}
	v, ok := t.values[evt.EventNum()][query]
	return v, ok, nil
}

func (t *testExtractor) FieldAsString(query string, evt sdk.EventReader) (string, bool, error) {
	v, ok, err := t.ExtractField(query, evt)
	if err != nil || !ok {
		return "", ok, err
	}
	return fmt.Sprint(v), true, nil
}

func (t *testExtractor) EventToString(evt sdk.EventReader) (string, error) {
	return fmt.Sprintf("event #%d", evt.EventNum()), nil
}

func (t *testExtractor) CheckField(query string) error {
	if strings.HasPrefix(query, "test.") {
		return nil
	}
	return fmt.Errorf("unknown field '%s'", query)
}

const testRules = `
- rule: big_number
  desc: a large number is generated
  condition: field("test.num") > 5
  output: "number %{test.num} (count=%{test.count[1]}, %{evt})"
  priority: WARNING
- rule: has_count
  condition: has("test.count[1]") && source == "test"
  output: "count is %{test.count[1]}"
- rule: disabled
  condition: "true"
  output: never
  enabled: false
- rule: failing_field
  condition: field("test.fail") == nil && field("test.num") == 3
  output: "value %{test.fail} for %{test.num}"
`

func evt(n uint64) sdk.EventReader {
	return &sdk.InMemoryEventReader{ValEventNum: n, ValEventSource: "test"}
}

func TestEngine(t *testing.T) {
	rules, err := Load(strings.NewReader(testRules))
	require.NoError(t, err)
	require.Len(t, rules, 4)

	ex := &testExtractor{values: map[uint64]map[string]interface{}{
		1: {"test.num": uint64(3)},
		2: {"test.num": uint64(7), "test.count[1]": uint64(2)},
		3: {"test.num": uint64(9)},
	}}
	e, err := NewEngine(rules, ex)
	require.NoError(t, err)
	assert.Equal(t, 3, e.Len())

	// failing fields have no value, the rule is still evaluated
	matches := e.Evaluate(evt(1))
	require.Len(t, matches, 1)
	assert.Equal(t, "failing_field", matches[0].Rule)
	assert.Equal(t, "value <NA> for 3", matches[0].Output)


	matches = e.Evaluate(evt(2))
	require.Len(t, matches, 2)
	assert.Equal(t, Match{
		Rule:     "big_number",
		Priority: "warning",
		Output:   "number 7 (count=2, event #2)",
		EventNum: 2,
	}, matches[0])
	assert.Equal(t, "has_count", matches[1].Rule)
	assert.Equal(t, "notice", matches[1].Priority)
	assert.Equal(t, "count is 2", matches[1].Output)

	matches = e.Evaluate(evt(3))
	require.Len(t, matches, 1)
	assert.Equal(t, "number 9 (count=<NA>, event #3)", matches[0].Output)
}

func TestEngineErrors(t *testing.T) {
	ex := &testExtractor{}
	invalid := map[string]Rule{
		"no name":          {Condition: "true"},
		"no condition":     {Name: "r"},
		"bad priority":     {Name: "r", Condition: "true", Priority: "urgent"},
		"syntax error":     {Name: "r", Condition: "field(("},
		"not boolean":      {Name: "r", Condition: `"string"`},
		"unknown variable": {Name: "r", Condition: "unknown > 1"},
		"unknown field":    {Name: "r", Condition: "true", Output: "%{other.field}"},
	}
	for name, r := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := NewEngine([]Rule{r}, ex)
			assert.Error(t, err)
		})
	}

	_, err := NewEngine([]Rule{{Name: "r", Condition: "true"}, {Name: "r", Condition: "false"}}, ex)
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testRules), 0o644))
	rules, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, rules, 4)
	assert.Equal(t, "big_number", rules[0].Name)

	rules, err = Load(strings.NewReader(""))
	assert.NoError(t, err)
	assert.Empty(t, rules)

	_, err = Load(strings.NewReader("- rule: a\n  unknown: b\n"))
	assert.Error(t, err)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
