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

package sdk

import (
	"github.com/falcosecurity/plugin-runtime-go/pkg/tables"
)

// InMemoryExtractRequest is an in-memory implementation of
// sdk.ExtractRequest that allows changing its internal values.
type InMemoryExtractRequest struct {
	ValFieldID     uint64
	ValFieldType   uint32
	ValField       string
	ValArgKey      string
	ValArgIndex    uint64
	ValArgPresent  bool
	ValIsList      bool
	ValValue       interface{}
	ValTableReader *tables.Reader
}

func (i *InMemoryExtractRequest) FieldID() uint64 {
	return i.ValFieldID
}

func (i *InMemoryExtractRequest) FieldType() uint32 {
	return i.ValFieldType
}

func (i *InMemoryExtractRequest) Field() string {
	return i.ValField
}

func (i *InMemoryExtractRequest) ArgKey() string {
	return i.ValArgKey
}

func (i *InMemoryExtractRequest) ArgIndex() uint64 {
	return i.ValArgIndex
}

func (i *InMemoryExtractRequest) ArgPresent() bool {
	return i.ValArgPresent
}

func (i *InMemoryExtractRequest) IsList() bool {
	return i.ValIsList
}

func (i *InMemoryExtractRequest) SetValue(v interface{}) {
	i.ValValue = v
}

func (i *InMemoryExtractRequest) TableReader() *tables.Reader {
	return i.ValTableReader
}
