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

// Package sdk provides the definitions shared between the plugin runtime
// and the plugins hosted in it: the sentinel errors of the capture flow,
// the optional interfaces plugins can implement, the description of
// extractable fields and the metrics plugins can publish.
//
// Plugins are written against the capability packages under
// pkg/sdk/plugins (source, extractor, parser, async), and are loaded by
// the host through pkg/loader. See pkg/capture for the capture loop that
// drives them.
package sdk
