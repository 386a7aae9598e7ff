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

package plugins

import (
	"errors"
	"log/slog"
	"testing"
)

func TestBaseLastError(t *testing.T) {
	b := BaseLastError{}
	str := "test error"
	value := errors.New(str)

	if b.LastError() != nil {
		t.Errorf("LastError: expected nil")
	}
	b.SetLastError(value)
	if b.LastError() != value {
		t.Errorf("LastError: value does not match")
	}
}

func TestBaseLogger(t *testing.T) {
	b := BaseLogger{}
	if b.Logger() != slog.Default() {
		t.Errorf("Logger: expected default logger")
	}
	l := slog.Default().With("plugin", "test")
	b.SetLogger(l)
	if b.Logger() != l {
		t.Errorf("Logger: value does not match")
	}
}

func TestDecodeConfig(t *testing.T) {
	type config struct {
		Range uint64 `json:"range"`
	}

	var c config
	if err := DecodeConfig(`{"range": 10}`, &c); err != nil {
		t.Fatal(err)
	}
	if c.Range != 10 {
		t.Errorf("expected range %d, but found %d", 10, c.Range)
	}

	c = config{Range: 3}
	if err := DecodeConfig("", &c); err != nil {
		t.Fatal(err)
	}
	if c.Range != 3 {
		t.Errorf("empty config should not change defaults")
	}

	for _, bad := range []string{`{"rang": 10}`, `{"range": "ten"}`, `{"range": 10} {}`, `[`} {
		if err := DecodeConfig(bad, &c); err == nil {
			t.Errorf("expected error for config %s", bad)
		}
	}
}
