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
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk"
	"github.com/falcosecurity/plugin-runtime-go/pkg/tables"
)

type Info struct {
	ID                  uint32
	Name                string
	Description         string
	EventSource         string
	Contact             string
	Version             string
	RequiredAPIVersion  string
	ExtractEventSources []string
}

// InitInput contains what is passed to a plugin when initialized.
type InitInput struct {
	// Config is the configuration of the plugin. If the plugin implements
	// sdk.InitSchema, the configuration is already validated against it.
	Config string
	//
	// Tables is the registry of the state tables of the session. This is
	// nil unless the plugin supports either the field extraction or the
	// event parsing capability.
	Tables *tables.Registry
	//
	// Logger is the logger the plugin should use.
	Logger *slog.Logger
	//
	// Metrics is the factory of the metrics published by the plugin.
	Metrics sdk.MetricFactory
}

type Plugin interface {
	Info() *Info
	Init(in *InitInput) error
	// (optional): sdk.Destroyer
	// (optional): sdk.InitSchema
	// (optional): sdk.ConfigSetter
	// (optional): sdk.LastError
}

type BaseLastError struct {
	lastErr error
}

func (b *BaseLastError) LastError() error {
	return b.lastErr
}

func (b *BaseLastError) SetLastError(err error) {
	b.lastErr = err
}

type BaseLogger struct {
	logger *slog.Logger
}

// Logger returns the logger set with SetLogger, or slog.Default().
func (b *BaseLogger) Logger() *slog.Logger {
	if b.logger == nil {
		return slog.Default()
	}
	return b.logger
}

func (b *BaseLogger) SetLogger(l *slog.Logger) {
	b.logger = l
}

type BasePlugin struct {
	BaseLastError
	BaseLogger
}

// DecodeConfig decodes a JSON configuration into v. An empty configuration
// is decoded as an empty JSON object. Unknown fields are rejected, so that
// mistyped options are never silently replaced by defaults.
func DecodeConfig(config string, v interface{}) error {
	if len(strings.TrimSpace(config)) == 0 {
		config = "{}"
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(config)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("invalid config: unexpected data after JSON value")
	}
	return nil
}
