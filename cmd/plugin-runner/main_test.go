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

package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const syscallConfig = `
plugins:
  - name: syscall
  - name: syscall_extract
log_level: error
`

const syscallRules = `
- rule: fd_used
  condition: has("syscall.fd")
  output: "fd %{syscall.fd} used by %{evt}"
  priority: info
`

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func runner(t *testing.T, args ...string) (string, error) {
	var stdout bytes.Buffer
	err := run(context.Background(), args, &stdout, io.Discard)
	return stdout.String(), err
}

func TestPrint(t *testing.T) {
	out, err := runner(t, "-c", writeFile(t, "config.yaml", syscallConfig), "-print")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "#1 syscall OPEN_X fd=5"), lines[0])
	assert.True(t, strings.HasPrefix(lines[4], "#5 syscall CLOSE_X"), lines[4])
}

func TestRules(t *testing.T) {
	config := syscallConfig + "rules_file: " + writeFile(t, "rules.yaml", syscallRules) + "\n"
	out, err := runner(t, "-c", writeFile(t, "config.yaml", config))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	for _, l := range lines {
		assert.True(t, strings.HasPrefix(l, "informational fd_used: fd 5 used by "), l)
	}
	assert.Contains(t, lines[1], "READ_E")
}

func TestMaxEvents(t *testing.T) {
	config := syscallConfig + "capture:\n  max_events: 2\n"
	out, err := runner(t, "-c", writeFile(t, "config.yaml", config), "-print")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)
}

func TestDumpAndReplay(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "capture.bin")
	config := writeFile(t, "config.yaml", syscallConfig)
	expected, err := runner(t, "-c", config, "-print", "-w", dump)
	require.NoError(t, err)

	// the replay needs no syscall plugin in the configuration
	config = writeFile(t, "replay.yaml", "plugins:\n  - name: syscall_extract\nlog_level: error\n")
	out, err := runner(t, "-c", config, "-print", "-r", dump)
	require.NoError(t, err)
	assert.Equal(t, expected, out)
}

func TestRandomGenerator(t *testing.T) {
	config := `
plugins:
  - name: random_generator
    init_config:
      range: 10
  - name: random_histogram
capture:
  max_events: 20
log_level: error
`
	out, err := runner(t, "-c", writeFile(t, "config.yaml", config), "-print")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 20)
	assert.Contains(t, lines[0], "random_generator number: ")
}

func TestList(t *testing.T) {
	config := `
plugins:
  - name: random_generator
    init_config: '{"range": 3}'
  - name: random_histogram
log_level: error
`
	out, err := runner(t, "-c", writeFile(t, "config.yaml", config), "-list")
	require.NoError(t, err)
	assert.Contains(t, out, "plugin random_generator 0.1.0\n")
	assert.Contains(t, out, "field gen.count (uint64) from random_histogram\n")
	assert.Contains(t, out, "field gen.num (uint64) from random_generator\n")
	assert.Contains(t, out, "table random_histogram\n")
}

func TestErrors(t *testing.T) {
	_, err := runner(t)
	assert.Error(t, err)

	_, err = runner(t, "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = runner(t, "-c", writeFile(t, "config.yaml", "plugins:\n  - name: unknown\n"))
	assert.ErrorContains(t, err, "unknown plugin 'unknown'")

	_, err = runner(t, "-c", writeFile(t, "config.yaml", "plugins:\n  - name: noop\n"))
	assert.ErrorContains(t, err, "plugin supports no capability")

	_, err = runner(t, "-c", writeFile(t, "config.yaml", "plugins: []\n"))
	assert.Error(t, err)
}
