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

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
plugins:
  - name: random_generator
    init_config:
      range: 10
  - name: syscall
    init_config: '{}'
    open_params: /tmp/capture.bin
  - name: asyncgen
capture:
  source: random_generator
  batch_size: 16
  max_events: 20
rules_file: rules.yaml
log_level: debug
`

func TestLoad(t *testing.T) {
	c, err := Load(strings.NewReader(testConfig))
	require.NoError(t, err)
	require.Len(t, c.Plugins, 3)
	assert.Equal(t, "random_generator", c.Plugins[0].Name)
	assert.JSONEq(t, `{"range":10}`, string(c.Plugins[0].InitConfig))
	assert.Equal(t, InitConfig("{}"), c.Plugins[1].InitConfig)
	assert.Equal(t, "/tmp/capture.bin", c.Plugins[1].OpenParams)
	assert.Empty(t, c.Plugins[2].InitConfig)
	assert.Equal(t, "random_generator", c.Capture.Source)
	assert.Equal(t, 16, c.Capture.BatchSize)
	assert.Equal(t, uint64(20), c.Capture.MaxEvents)
	assert.Equal(t, "rules.yaml", c.RulesFile)
	assert.NoError(t, c.Validate())

	c, err = Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, c.Plugins)

	_, err = Load(strings.NewReader("unknown: 1\n"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o644))
	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, c.Plugins, 3)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestApplyEnv(t *testing.T) {
	c, err := Load(strings.NewReader(testConfig))
	require.NoError(t, err)

	t.Setenv("RUNNER_LOG_LEVEL", "warn")
	t.Setenv("RUNNER_BATCH_SIZE", "4")
	t.Setenv("RUNNER_MAX_EVENTS", "100")
	t.Setenv("RUNNER_METRICS_ADDR", ":9090")
	require.NoError(t, c.ApplyEnv())
	assert.Equal(t, "warn", c.LogLevel)
	assert.Equal(t, 4, c.Capture.BatchSize)
	assert.Equal(t, uint64(100), c.Capture.MaxEvents)
	assert.Equal(t, ":9090", c.MetricsAddr)
	// not set in the environment
	assert.Equal(t, "random_generator", c.Capture.Source)
	assert.Equal(t, "rules.yaml", c.RulesFile)

	t.Setenv("RUNNER_BATCH_SIZE", "many")
	assert.Error(t, c.ApplyEnv())
}

func TestValidate(t *testing.T) {
	tests := map[string]*Config{
		"no name": {Plugins: []PluginConfig{{}}},
		"duplicate": {Plugins: []PluginConfig{
			{Name: "a"}, {Name: "a"},
		}},
		"bad json":       {Plugins: []PluginConfig{{Name: "a", InitConfig: "{"}}},
		"batch size":     {Capture: CaptureConfig{BatchSize: -1}},
		"queue size":     {Capture: CaptureConfig{AsyncQueueSize: -1}},
		"log level name": {LogLevel: "verbose"},
	}
	for name, c := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, c.Validate())
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	l, err := ParseLogLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, l)

	l, err = ParseLogLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)

	l, err = ParseLogLevel("ERROR")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelError, l)

	_, err = ParseLogLevel("loud")
	assert.Error(t, err)
}
