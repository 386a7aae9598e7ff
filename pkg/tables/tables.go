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

package tables

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrDuplicateName is returned when exporting a table with a name
	// that is already registered.
	ErrDuplicateName = errors.New("duplicate table name")
	// ErrNotFound is returned when a table or an entry does not exist.
	ErrNotFound = errors.New("not found")
	// ErrSchemaMismatch is returned when importing a table with a key type
	// or a set of fields not matching the ones of the exported table.
	ErrSchemaMismatch = errors.New("table schema mismatch")
	// ErrPermissionDenied is returned when importing a field with an access
	// not allowed by its visibility.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidSchema is returned when exporting a table whose entry type
	// does not describe a valid schema.
	ErrInvalidSchema = errors.New("invalid table schema")
)

// Key is the set of types that can be used as table keys.
type Key interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~string
}

// Visibility defines how a field of a table can be accessed by
// the plugins importing the table.
type Visibility int

const (
	// Public fields can be read and written by importers.
	Public Visibility = iota
	// ReadOnly fields can only be read by importers.
	ReadOnly
	// Private fields are accessible only by the exporter.
	Private
)

func (v Visibility) String() string {
	switch v {
	case Public:
		return "public"
	case ReadOnly:
		return "readonly"
	case Private:
		return "private"
	default:
		return fmt.Sprintf("Visibility(%d)", int(v))
	}
}

// FieldInfo describes a field of a table entry.
type FieldInfo struct {
	Name       string
	Type       reflect.Type
	Visibility Visibility
	index      []int
}

// TableInfo describes a table registered in a Registry, as seen by
// importers.
type TableInfo struct {
	Name    string
	KeyType reflect.Type
	Fields  []FieldInfo
}

type tableMeta struct {
	id      uint64
	name    string
	keyType reflect.Type
	fields  []FieldInfo
}

func (t *tableMeta) field(name string) (FieldInfo, bool) {
	for _, f := range t.fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldInfo{}, false
}

func (t *tableMeta) info() TableInfo {
	res := TableInfo{Name: t.name, KeyType: t.keyType}
	for _, f := range t.fields {
		if f.Visibility != Private {
			res.Fields = append(res.Fields, f)
		}
	}
	return res
}

// table is the type-erased view of an exported table.
type table interface {
	meta() *tableMeta
	find(key interface{}) (reflect.Value, bool)
	size() int
	each(fn func(key interface{}, v reflect.Value) bool)
}

// Registry owns all the tables of a capture session. Table names are
// unique within a registry. Tables are independent from each other, and
// accessing one never locks the others.
type Registry struct {
	m      sync.RWMutex
	tables map[string]table
	lastID uint64
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]table)}
}

func (r *Registry) add(name string, create func(id uint64) table) (table, error) {
	r.m.Lock()
	defer r.m.Unlock()
	if _, ok := r.tables[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	r.lastID++
	t := create(r.lastID)
	r.tables[name] = t
	return t, nil
}

func (r *Registry) get(name string) (table, bool) {
	r.m.RLock()
	defer r.m.RUnlock()
	t, ok := r.tables[name]
	return t, ok
}

// Tables returns the description of all the tables in the registry,
// sorted by name. Private fields are omitted.
func (r *Registry) Tables() []TableInfo {
	r.m.RLock()
	defer r.m.RUnlock()
	var res []TableInfo
	for _, t := range r.tables {
		res = append(res, t.meta().info())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

// NewReader returns a new reader token, valid until released.
func (r *Registry) NewReader() *Reader {
	return &Reader{t: newToken()}
}

// NewWriter returns a new writer token, valid until released.
func (r *Registry) NewWriter() *Writer {
	return &Writer{t: newToken()}
}

// schemaOf derives the schema of a table from the struct type of
// its entries. The fields that are part of the schema are the ones with
// a `table` tag, in the form `table:"name[,public|readonly|private]"`.
// Fields with no explicit visibility are public.
func schemaOf(t reflect.Type) ([]FieldInfo, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: entry type %s is not a struct", ErrInvalidSchema, t)
	}
	var res []FieldInfo
	names := make(map[string]bool)
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag, ok := sf.Tag.Lookup("table")
		if !ok {
			continue
		}
		if !sf.IsExported() {
			return nil, fmt.Errorf("%w: field %s must be exported", ErrInvalidSchema, sf.Name)
		}
		parts := strings.Split(tag, ",")
		f := FieldInfo{
			Name:       strings.TrimSpace(parts[0]),
			Type:       sf.Type,
			Visibility: Public,
			index:      sf.Index,
		}
		if len(f.Name) == 0 {
			return nil, fmt.Errorf("%w: field %s has empty name", ErrInvalidSchema, sf.Name)
		}
		if names[f.Name] {
			return nil, fmt.Errorf("%w: duplicate field name %s", ErrInvalidSchema, f.Name)
		}
		names[f.Name] = true
		if len(parts) > 1 {
			switch strings.TrimSpace(parts[1]) {
			case "public":
				f.Visibility = Public
			case "readonly":
				f.Visibility = ReadOnly
			case "private":
				f.Visibility = Private
			default:
				return nil, fmt.Errorf("%w: field %s has unknown visibility %s", ErrInvalidSchema, f.Name, parts[1])
			}
		}
		res = append(res, f)
	}
	return res, nil
}
