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

// Package tables implements the state tables shared between plugins.
//
// A table is a named key-entry store owned by the plugin that exports it.
// The owner accesses entries through their concrete Go type, while other
// plugins import the table and access entries through typed field
// accessors resolved once at import time. Each field of the entry schema
// has a visibility: public fields can be read and written by importers,
// read-only fields can only be read, and private fields are accessible
// only by the owner.
//
// Importers access tables only through Reader and Writer tokens, which are
// issued by the capture driver for the duration of a single callback and
// must not be retained.
package tables
