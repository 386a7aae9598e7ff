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
	"fmt"
	"sort"

	"github.com/falcosecurity/plugin-runtime-go/examples/asyncgen"
	"github.com/falcosecurity/plugin-runtime-go/examples/noop"
	"github.com/falcosecurity/plugin-runtime-go/examples/randomgen"
	"github.com/falcosecurity/plugin-runtime-go/examples/syscalls"
	"github.com/falcosecurity/plugin-runtime-go/pkg/config"
	"github.com/falcosecurity/plugin-runtime-go/pkg/loader"
	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk/plugins"
)

// builtins are the plugins the runner can register, by name.
var builtins = map[string]func() plugins.Plugin{
	"syscall":          func() plugins.Plugin { return &syscalls.Source{} },
	"syscall_extract":  func() plugins.Plugin { return &syscalls.Extractor{} },
	"random_generator": func() plugins.Plugin { return &randomgen.Generator{} },
	"random_histogram": func() plugins.Plugin { return &randomgen.Counter{} },
	"asyncgen":         func() plugins.Plugin { return &asyncgen.Plugin{} },
	"noop":             func() plugins.Plugin { return &noop.Plugin{} },
}

func builtinNames() []string {
	var res []string
	for name := range builtins {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

// registerPlugins registers the configured plugins, in order.
func registerPlugins(reg *loader.Registry, cfgs []config.PluginConfig) error {
	for _, c := range cfgs {
		newPlugin, ok := builtins[c.Name]
		if !ok {
			return fmt.Errorf("unknown plugin '%s', available plugins are %v", c.Name, builtinNames())
		}
		if _, err := reg.Register(newPlugin(), string(c.InitConfig)); err != nil {
			return err
		}
	}
	return nil
}

// openParams returns the open parameters configured for the source plugin
// providing the given event source, or for the only source plugin if
// the event source is empty.
func openParams(reg *loader.Registry, cfgs []config.PluginConfig, evtSource string) string {
	srcs := reg.Sources()
	var name string
	for _, s := range srcs {
		if s.Info().EventSource == evtSource || (len(evtSource) == 0 && len(srcs) == 1) {
			name = s.Name()
		}
	}
	for _, c := range cfgs {
		if len(name) > 0 && c.Name == name {
			return c.OpenParams
		}
	}
	return ""
}
