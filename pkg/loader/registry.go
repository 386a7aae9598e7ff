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

package loader

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/falcosecurity/plugin-runtime-go/pkg/extract"
	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk"
	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk/plugins"
	"github.com/falcosecurity/plugin-runtime-go/pkg/tables"
)

var (
	// ErrDuplicatePlugin is returned when registering a plugin whose name,
	// ID or event source is already taken by another registered plugin.
	ErrDuplicatePlugin = errors.New("duplicate plugin")
	// ErrUnknownPlugin is returned when referring to a plugin that is not
	// registered.
	ErrUnknownPlugin = errors.New("unknown plugin")
	// ErrRegistryClosed is returned when using a registry after Close.
	ErrRegistryClosed = errors.New("plugin registry is closed")
)

// Registry is the set of plugins loaded by a host. It owns the state tables
// shared by the plugins and the field extraction dispatcher.
type Registry struct {
	m          sync.Mutex
	logger     *slog.Logger
	metrics    sdk.MetricFactory
	tables     *tables.Registry
	dispatcher *extract.Dispatcher
	plugins    []*Plugin
	byName     map[string]*Plugin
	closed     bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger of the registry. Each plugin receives a child
// logger carrying its name.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithMetrics sets the metric factory passed to the plugins.
func WithMetrics(m sdk.MetricFactory) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		logger:     slog.Default(),
		metrics:    &sdk.DiscardMetricFactory{},
		tables:     tables.NewRegistry(),
		dispatcher: extract.NewDispatcher(),
		byName:     make(map[string]*Plugin),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func capNames(p *Plugin) string {
	var caps []string
	if p.HasCapSourcing() {
		caps = append(caps, "sourcing")
	}
	if p.HasCapExtraction() {
		caps = append(caps, "extraction")
	}
	if p.HasCapParsing() {
		caps = append(caps, "parsing")
	}
	if p.HasCapAsync() {
		caps = append(caps, "async")
	}
	return strings.Join(caps, ",")
}

// Register validates and initializes a plugin with the given configuration,
// and adds it to the registry. On failure, the plugin is not registered.
func (r *Registry) Register(p plugins.Plugin, config string) (*Plugin, error) {
	lp, err := NewValidPlugin(p)
	if err != nil {
		if p != nil {
			if info := p.Info(); info != nil && len(info.Name) > 0 {
				return nil, fmt.Errorf("plugin '%s': %w", info.Name, err)
			}
		}
		return nil, err
	}

	r.m.Lock()
	defer r.m.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if err := r.checkConflicts(lp); err != nil {
		return nil, err
	}

	logger := r.logger.With("plugin", lp.Name())
	err = lp.Init(&plugins.InitInput{
		Config:  config,
		Tables:  r.tables,
		Logger:  logger,
		Metrics: r.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("plugin '%s': init: %w", lp.Name(), err)
	}

	if lp.HasCapExtraction() {
		sources := lp.info.ExtractEventSources
		if len(sources) == 0 && lp.HasCapSourcing() {
			sources = []string{lp.info.EventSource}
		}
		if err := r.dispatcher.Add(lp.Name(), lp.extractor, sources); err != nil {
			lp.Unload()
			return nil, err
		}
	}

	r.plugins = append(r.plugins, lp)
	r.byName[lp.Name()] = lp
	logger.Info("plugin registered", "version", lp.info.Version, "capabilities", capNames(lp))
	return lp, nil
}

func (r *Registry) checkConflicts(lp *Plugin) error {
	if _, ok := r.byName[lp.Name()]; ok {
		return fmt.Errorf("%w: name '%s' is already registered", ErrDuplicatePlugin, lp.Name())
	}
	if lp.HasCapSourcing() {
		for _, o := range r.plugins {
			if !o.HasCapSourcing() {
				continue
			}
			if o.info.ID == lp.info.ID {
				return fmt.Errorf("%w: plugin ID %d of '%s' is already used by '%s'", ErrDuplicatePlugin, lp.info.ID, lp.Name(), o.Name())
			}
			if o.info.EventSource == lp.info.EventSource {
				return fmt.Errorf("%w: event source '%s' of '%s' is already provided by '%s'", ErrDuplicatePlugin, lp.info.EventSource, lp.Name(), o.Name())
			}
		}
	}
	for _, f := range lp.fields {
		if o, ok := r.dispatcher.Field(f.Name); ok {
			return fmt.Errorf("plugin '%s': %w: '%s' is already declared by '%s'", lp.Name(), extract.ErrDuplicateField, f.Name, o.Owner)
		}
	}
	return nil
}

// SetConfig reconfigures the registered plugin with the given name.
func (r *Registry) SetConfig(name, config string) error {
	p, err := r.Plugin(name)
	if err != nil {
		return err
	}
	if err := p.SetConfig(config); err != nil {
		return fmt.Errorf("plugin '%s': set config: %w", name, err)
	}
	r.logger.Info("plugin reconfigured", "plugin", name)
	return nil
}

// Plugin returns the registered plugin with the given name.
func (r *Registry) Plugin(name string) (*Plugin, error) {
	r.m.Lock()
	defer r.m.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	p, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownPlugin, name)
	}
	return p, nil
}

func (r *Registry) filter(fn func(*Plugin) bool) []*Plugin {
	r.m.Lock()
	defer r.m.Unlock()
	var res []*Plugin
	for _, p := range r.plugins {
		if fn(p) {
			res = append(res, p)
		}
	}
	return res
}

// Plugins returns all the registered plugins, in registration order.
func (r *Registry) Plugins() []*Plugin {
	return r.filter(func(*Plugin) bool { return true })
}

// Sources returns the plugins with event sourcing capability.
func (r *Registry) Sources() []*Plugin {
	return r.filter((*Plugin).HasCapSourcing)
}

// Parsers returns the plugins with event parsing capability.
func (r *Registry) Parsers() []*Plugin {
	return r.filter((*Plugin).HasCapParsing)
}

// Asyncs returns the plugins with async events capability.
func (r *Registry) Asyncs() []*Plugin {
	return r.filter((*Plugin).HasCapAsync)
}

// Tables returns the registry of the state tables shared by the plugins.
func (r *Registry) Tables() *tables.Registry {
	return r.tables
}

// Dispatcher returns the dispatcher of the fields of the extractor plugins.
func (r *Registry) Dispatcher() *extract.Dispatcher {
	return r.dispatcher
}

// Logger returns the logger of the registry.
func (r *Registry) Logger() *slog.Logger {
	return r.logger
}

// Metrics returns the metric factory of the registry.
func (r *Registry) Metrics() sdk.MetricFactory {
	return r.metrics
}

// Close destroys all the registered plugins, in reverse registration
// order. Invoking Close multiple times has no effect.
func (r *Registry) Close() error {
	r.m.Lock()
	defer r.m.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	for i := len(r.plugins) - 1; i >= 0; i-- {
		r.plugins[i].Unload()
		r.logger.Debug("plugin destroyed", "plugin", r.plugins[i].Name())
	}
	return nil
}
