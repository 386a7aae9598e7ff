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

// Package event implements the binary encoding of the events flowing
// through the capture pipeline.
//
// Every event is a header followed by a type-specific sequence of
// parameters. Each parameter is individually optional: absent parameters
// are distinguishable from present ones holding zero or empty values.
// Decoding happens in two steps: LoadRaw decodes the header only, and Load
// promotes the raw event to a strongly-typed view after checking its type.
package event
