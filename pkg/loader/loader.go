// SPDX-License-Identifier: Apache-2.0
/*
Copyright (C) 2023 The Falco Authors.

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

	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk"
	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk/plugins"
	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk/plugins/async"
	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk/plugins/extractor"
	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk/plugins/parser"
	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk/plugins/source"
	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/mod/semver"
)

// APIVersion is the version of the plugin API supported by the loader.
// Plugins declaring a RequiredAPIVersion must be compatible with it.
const APIVersion = "3.0.0"

var (
	errNotInitialized = errors.New("plugin is not initialized")
	errNoSourcingCap  = errors.New("plugin does not support event sourcing capability")
)

type logSetter interface {
	SetLogger(l *slog.Logger)
}

// Plugin wraps a plugin registered in a Registry, exposing its
// capabilities and descriptive data.
type Plugin struct {
	m           sync.Mutex
	p           plugins.Plugin
	info        plugins.Info
	initSchema  *sdk.SchemaInfo
	fields      []sdk.FieldEntry
	source      source.Plugin
	extractor   extractor.Plugin
	parser      parser.Plugin
	async       async.Plugin
	initialized bool
	validated   bool
	validErr    error
}

func errAppend(left, right error) error {
	if left == nil {
		return right
	}
	if right == nil {
		return left
	}
	return fmt.Errorf("%s, %s", left.Error(), right.Error())
}

// NewValidPlugin is the same as NewPlugin(), but returns an error if
// the plugin is not valid. It is equivalent to invoking NewPlugin()
// and Plugin.Validate() in sequence.
func NewValidPlugin(p plugins.Plugin) (*Plugin, error) {
	res, err := NewPlugin(p)
	if err != nil {
		return nil, err
	}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

// NewPlugin wraps a plugin, detecting the capabilities it supports and
// reading its static descriptive data. This neither validates nor
// initializes the plugin.
func NewPlugin(p plugins.Plugin) (*Plugin, error) {
	if p == nil {
		return nil, errors.New("plugin is nil")
	}
	info := p.Info()
	if info == nil {
		return nil, errors.New("plugin returned no info")
	}
	res := &Plugin{p: p, info: *info}
	res.source, _ = p.(source.Plugin)
	res.extractor, _ = p.(extractor.Plugin)
	res.parser, _ = p.(parser.Plugin)
	res.async, _ = p.(async.Plugin)
	if s, ok := p.(sdk.InitSchema); ok {
		res.initSchema = s.InitSchema()
	}
	if res.extractor != nil {
		res.fields = res.extractor.Fields()
	}
	return res, nil
}

func checkVersion(v string) error {
	// only full major.minor.patch versions are accepted
	core := strings.SplitN(strings.SplitN(v, "+", 2)[0], "-", 2)[0]
	if !semver.IsValid("v"+v) || strings.Count(core, ".") != 2 {
		return fmt.Errorf("'%s' is not a semantic version", v)
	}
	return nil
}

func checkRequiredAPIVersion(v string) error {
	if err := checkVersion(v); err != nil {
		return fmt.Errorf("invalid required API version: %w", err)
	}
	req, cur := "v"+v, "v"+APIVersion
	if semver.Major(req) != semver.Major(cur) || semver.Compare(req, cur) > 0 {
		return fmt.Errorf("required API version %s is not compatible with %s", v, APIVersion)
	}
	return nil
}

func (p *Plugin) validate() error {
	if !p.validated {
		var err error
		if len(p.info.Name) == 0 {
			err = errAppend(err, errors.New("plugin name is empty"))
		}
		if len(p.info.Description) == 0 {
			err = errAppend(err, errors.New("plugin description is empty"))
		}
		if len(p.info.Contact) == 0 {
			err = errAppend(err, errors.New("plugin contact is empty"))
		}
		if len(p.info.Version) == 0 {
			err = errAppend(err, errors.New("plugin version is empty"))
		} else if vErr := checkVersion(p.info.Version); vErr != nil {
			err = errAppend(err, fmt.Errorf("invalid plugin version: %w", vErr))
		}
		if len(p.info.RequiredAPIVersion) > 0 {
			err = errAppend(err, checkRequiredAPIVersion(p.info.RequiredAPIVersion))
		}
		if !p.HasCapSourcing() && !p.HasCapExtraction() && !p.HasCapParsing() && !p.HasCapAsync() {
			err = errAppend(err, errors.New("plugin supports no capability"))
		}
		if p.HasCapSourcing() {
			err = errAppend(err, p.validateSourcing())
		}
		if p.HasCapExtraction() {
			err = errAppend(err, extractor.CheckFields(p.fields))
		}
		p.validErr = err
		p.validated = true
	}
	return p.validErr
}

func (p *Plugin) validateSourcing() error {
	if len(p.info.EventSource) == 0 {
		return errors.New("plugin with event sourcing capability has no event source")
	}
	if p.info.ID == sdk.SyscallPluginID && p.info.EventSource != sdk.SyscallEventSource {
		return fmt.Errorf("plugin ID %d is reserved for the '%s' event source", sdk.SyscallPluginID, sdk.SyscallEventSource)
	}
	if p.info.ID != sdk.SyscallPluginID && p.info.EventSource == sdk.SyscallEventSource {
		return fmt.Errorf("event source '%s' is reserved for plugin ID %d", sdk.SyscallEventSource, sdk.SyscallPluginID)
	}
	return nil
}

// Validate returns nil if the Plugin is well-formed and compatible with
// the plugin API version supported by the loader. Otherwise, returns an
// error describing what makes the plugin invalid.
func (p *Plugin) Validate() error {
	p.m.Lock()
	defer p.m.Unlock()
	return p.validate()
}

// HasCapExtraction returns true if the plugin supports the
// field extraction capability.
func (p *Plugin) HasCapExtraction() bool {
	return p.extractor != nil
}

// HasCapSourcing returns true if the plugin supports the
// event sourcing capability.
func (p *Plugin) HasCapSourcing() bool {
	return p.source != nil
}

// HasCapParsing returns true if the plugin supports the
// event parsing capability.
func (p *Plugin) HasCapParsing() bool {
	return p.parser != nil
}

// HasCapAsync returns true if the plugin supports the
// async events capability.
func (p *Plugin) HasCapAsync() bool {
	return p.async != nil
}

// Name returns the name of the plugin.
func (p *Plugin) Name() string {
	return p.info.Name
}

// Info returns a pointer to a Info struct, containing all the general
// information about this plugin.
func (p *Plugin) Info() *plugins.Info {
	return &p.info
}

// InitSchema implements the sdk.InitSchema interface. Returns a
// schema describing the data expected to be passed as a configuration
// during the plugin initialization.
// Can return nil if the schema is not available.
func (p *Plugin) InitSchema() *sdk.SchemaInfo {
	return p.initSchema
}

// Fields return the list of extractor fields exported by this plugin.
// If the plugin does not support the field extraction capability, this
// returns an empty list.
func (p *Plugin) Fields() []sdk.FieldEntry {
	return p.fields
}

// Plugin returns the wrapped plugin.
func (p *Plugin) Plugin() plugins.Plugin {
	return p.p
}

// Source returns the event sourcing capability, or nil.
func (p *Plugin) Source() source.Plugin {
	return p.source
}

// Extractor returns the field extraction capability, or nil.
func (p *Plugin) Extractor() extractor.Plugin {
	return p.extractor
}

// Parser returns the event parsing capability, or nil.
func (p *Plugin) Parser() parser.Plugin {
	return p.parser
}

// Async returns the async events capability, or nil.
func (p *Plugin) Async() async.Plugin {
	return p.async
}

// Initialized returns true if the plugin has been initialized and not
// yet destroyed.
func (p *Plugin) Initialized() bool {
	p.m.Lock()
	defer p.m.Unlock()
	return p.initialized
}

// OpenParams implements the sdk.OpenParams interface.
// Returns a list of suggested open parameters.
// Returns a non-nil error in one of the following conditions:
//   - Plugin is not initialized
//   - Plugin does not support the event sourcing capability
func (p *Plugin) OpenParams() ([]sdk.OpenParam, error) {
	p.m.Lock()
	defer p.m.Unlock()
	if !p.HasCapSourcing() {
		return nil, errNoSourcingCap
	}
	if !p.initialized {
		return nil, errNotInitialized
	}
	if o, ok := p.p.(sdk.OpenParams); ok {
		return o.OpenParams()
	}
	return nil, nil
}

// LastError returns the last error recorded by the plugin, if it
// implements sdk.LastError.
func (p *Plugin) LastError() error {
	p.m.Lock()
	defer p.m.Unlock()
	if !p.initialized {
		return errNotInitialized
	}
	if l, ok := p.p.(sdk.LastError); ok {
		return l.LastError()
	}
	return nil
}

// SetLastError records an error in the plugin, if it implements
// sdk.LastError.
func (p *Plugin) SetLastError(err error) {
	if l, ok := p.p.(sdk.LastError); ok {
		l.SetLastError(err)
	}
}

// Init initializes this plugin with the given input. A successful call
// to init returns a nil error.
//
// If the plugin supports an init config schema (e.g. Plugin.InitSchema
// returns a non-nil value), the config string is validated with the schema
// and a non-nil error is returned for validation failures.
//
// The plugin get validated before getting initialized, and a non-nil error is
// returned in case of validation errors. Invoking Init() multiple times on
// the same plugin returns an error.
//
// Once initialized, the plugin gets destroyed when calling Unload().
func (p *Plugin) Init(in *plugins.InitInput) error {
	p.m.Lock()
	defer p.m.Unlock()
	if p.initialized {
		return fmt.Errorf("plugin is already initialized")
	}
	err := p.validate()
	if err != nil {
		return fmt.Errorf("plugin is not valid: %s", err.Error())
	}

	cfg := *in
	cfg.Config, err = p.validateInitConfig(in.Config)
	if err != nil {
		return fmt.Errorf("invalid plugin config: %s", err.Error())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &sdk.DiscardMetricFactory{}
	}
	if !p.HasCapExtraction() && !p.HasCapParsing() {
		cfg.Tables = nil
	}
	if l, ok := p.p.(logSetter); ok {
		l.SetLogger(cfg.Logger)
	}

	if err := p.p.Init(&cfg); err != nil {
		p.SetLastError(err)
		p.destroy()
		return err
	}
	p.initialized = true
	return nil
}

// SetConfig updates the configuration of an initialized plugin. The
// configuration is validated against the init schema, if any. Plugins not
// implementing sdk.ConfigSetter can't be reconfigured.
func (p *Plugin) SetConfig(config string) error {
	p.m.Lock()
	defer p.m.Unlock()
	if !p.initialized {
		return errNotInitialized
	}
	s, ok := p.p.(sdk.ConfigSetter)
	if !ok {
		return fmt.Errorf("plugin does not support reconfiguration")
	}
	config, err := p.validateInitConfig(config)
	if err != nil {
		return fmt.Errorf("invalid plugin config: %s", err.Error())
	}
	if err := s.SetConfig(config); err != nil {
		p.SetLastError(err)
		return err
	}
	return nil
}

// only JSON schemas are supported
func (p *Plugin) validateInitConfig(config string) (string, error) {
	if p.initSchema != nil {
		if len(config) == 0 {
			config = "{}"
		}
		schema := gojsonschema.NewStringLoader(p.initSchema.Schema)
		document := gojsonschema.NewStringLoader(config)
		result, err := gojsonschema.Validate(schema, document)
		if err != nil {
			return "", err
		}
		if !result.Valid() {
			// report the first violation only
			return "", errors.New(result.Errors()[0].String())
		}
	}
	return config, nil
}

// Unload destroys the plugin, if initialized. Invoking Unload multiple
// times has no effect.
func (p *Plugin) Unload() {
	p.m.Lock()
	defer p.m.Unlock()
	if p.initialized {
		p.destroy()
		p.initialized = false
	}
}

func (p *Plugin) destroy() {
	if d, ok := p.p.(sdk.Destroyer); ok {
		d.Destroy()
	}
}
