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

// Package config defines the configuration of a host running capture
// sessions. The configuration is read from a YAML file, and can be
// overridden with environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the configuration of a host.
type Config struct {
	Plugins     []PluginConfig `yaml:"plugins"`
	Capture     CaptureConfig  `yaml:"capture"`
	RulesFile   string         `yaml:"rules_file"`
	LogLevel    string         `yaml:"log_level"`
	MetricsAddr string         `yaml:"metrics_addr"`
}

// PluginConfig selects a plugin to register, along with its init
// configuration and its open parameters.
type PluginConfig struct {
	Name       string     `yaml:"name"`
	InitConfig InitConfig `yaml:"init_config"`
	OpenParams string     `yaml:"open_params"`
}

// InitConfig is the init configuration of a plugin, in JSON. In the YAML
// file it can be either a string or a structured value, which gets
// converted to JSON.
type InitConfig string

func (c *InitConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!str" {
		*c = InitConfig(node.Value)
		return nil
	}
	var v interface{}
	if err := node.Decode(&v); err != nil {
		return err
	}
	if v == nil {
		*c = ""
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("init config is not representable as JSON: %w", err)
	}
	*c = InitConfig(b)
	return nil
}

// CaptureConfig configures the capture session.
type CaptureConfig struct {
	Source         string `yaml:"source"`
	BatchSize      int    `yaml:"batch_size"`
	AsyncQueueSize int    `yaml:"async_queue_size"`
	// MaxEvents stops the capture after the given number of events.
	// Zero means no limit.
	MaxEvents uint64 `yaml:"max_events"`
}

// Env holds the environment variables overriding the configuration.
type Env struct {
	LogLevel       string `env:"RUNNER_LOG_LEVEL"`
	Source         string `env:"RUNNER_SOURCE"`
	BatchSize      int    `env:"RUNNER_BATCH_SIZE"`
	AsyncQueueSize int    `env:"RUNNER_ASYNC_QUEUE_SIZE"`
	MaxEvents      uint64 `env:"RUNNER_MAX_EVENTS"`
	MetricsAddr    string `env:"RUNNER_METRICS_ADDR"`
	RulesFile      string `env:"RUNNER_RULES_FILE"`
}

// Load decodes a configuration from YAML. Unknown keys are rejected.
func Load(r io.Reader) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &c, nil
}

// LoadFile decodes a configuration from a YAML file.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// ApplyEnv overrides the configuration with the environment variables
// that are set.
func (c *Config) ApplyEnv() error {
	var e Env
	if err := env.Parse(&e); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	if len(e.LogLevel) > 0 {
		c.LogLevel = e.LogLevel
	}
	if len(e.Source) > 0 {
		c.Capture.Source = e.Source
	}
	if e.BatchSize != 0 {
		c.Capture.BatchSize = e.BatchSize
	}
	if e.AsyncQueueSize != 0 {
		c.Capture.AsyncQueueSize = e.AsyncQueueSize
	}
	if e.MaxEvents != 0 {
		c.Capture.MaxEvents = e.MaxEvents
	}
	if len(e.MetricsAddr) > 0 {
		c.MetricsAddr = e.MetricsAddr
	}
	if len(e.RulesFile) > 0 {
		c.RulesFile = e.RulesFile
	}
	return nil
}

// Validate returns a non-nil error if the configuration is not valid.
func (c *Config) Validate() error {
	var errs []error
	names := make(map[string]bool)
	for i, p := range c.Plugins {
		if len(p.Name) == 0 {
			errs = append(errs, fmt.Errorf("plugin #%d has no name", i))
			continue
		}
		if names[p.Name] {
			errs = append(errs, fmt.Errorf("plugin '%s' is listed twice", p.Name))
		}
		names[p.Name] = true
		if len(p.InitConfig) > 0 && !json.Valid([]byte(p.InitConfig)) {
			errs = append(errs, fmt.Errorf("plugin '%s' has an init config that is not valid JSON", p.Name))
		}
	}
	if c.Capture.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("invalid batch size %d", c.Capture.BatchSize))
	}
	if c.Capture.AsyncQueueSize < 0 {
		errs = append(errs, fmt.Errorf("invalid async queue size %d", c.Capture.AsyncQueueSize))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseLogLevel parses a log level name. An empty name means info.
func ParseLogLevel(s string) (slog.Level, error) {
	var l slog.Level
	if len(s) == 0 {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return l, fmt.Errorf("invalid log level '%s'", s)
	}
	return l, nil
}
