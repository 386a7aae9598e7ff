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
	"strings"
)

// ErrForeignEntry is returned when using a field accessor with an entry
// belonging to a table other than the one the accessor was imported from.
var ErrForeignEntry = errors.New("entry belongs to another table")

var errNotBound = errors.New("field accessor is not bound to any table")

// Entry is an opaque reference to an entry of an imported table. Its fields
// can only be accessed through the accessors resolved at import time, and
// with the same token the entry was obtained with.
type Entry struct {
	tableID uint64
	v       reflect.Value
	t       *token
}

type binder interface {
	bind(md *tableMeta, f FieldInfo)
	valueType() reflect.Type
	writable() bool
}

// Field is an accessor for reading a field of the entries of an
// imported table.
type Field[V any] struct {
	tableID uint64
	name    string
	index   []int
}

func (f *Field[V]) bind(md *tableMeta, fi FieldInfo) {
	f.tableID = md.id
	f.name = fi.Name
	f.index = fi.index
}

func (f *Field[V]) valueType() reflect.Type {
	return reflect.TypeOf((*V)(nil)).Elem()
}

func (f *Field[V]) writable() bool {
	return false
}

func (f *Field[V]) value(e Entry, t *token) (reflect.Value, error) {
	if f.tableID == 0 {
		return reflect.Value{}, errNotBound
	}
	if e.tableID != f.tableID || !e.v.IsValid() {
		return reflect.Value{}, fmt.Errorf("%w: field %s", ErrForeignEntry, f.name)
	}
	if e.t != t || !e.t.live.Load() {
		return reflect.Value{}, fmt.Errorf("%w: entry obtained with another token", ErrTokenExpired)
	}
	return e.v.Elem().FieldByIndex(f.index), nil
}

// Name returns the name of the field the accessor is bound to.
func (f *Field[V]) Name() string {
	return f.name
}

// Get reads the value of the field from the given entry.
func (f *Field[V]) Get(r *Reader, e Entry) (V, error) {
	var res V
	if err := r.check(); err != nil {
		return res, err
	}
	v, err := f.value(e, r.t)
	if err != nil {
		return res, err
	}
	return v.Interface().(V), nil
}

// WritableField is an accessor for reading and writing a public field
// of the entries of an imported table.
type WritableField[V any] struct {
	Field[V]
}

func (f *WritableField[V]) writable() bool {
	return true
}

// Set writes the value of the field in the given entry.
func (f *WritableField[V]) Set(w *Writer, e Entry, value V) error {
	if err := w.check(); err != nil {
		return err
	}
	v, err := f.value(e, w.t)
	if err != nil {
		return err
	}
	v.Set(reflect.ValueOf(&value).Elem())
	return nil
}

// Imported is a table accessed by a plugin other than its owner.
type Imported[K Key] struct {
	t  table
	md *tableMeta
}

// Import retrieves the table with the given name from the registry, and
// resolves the field accessors declared in the struct pointed by accessors.
//
// Each exported field of type Field[V] or WritableField[V] in the struct is
// bound to the table field with the name in its `table` tag, or with its
// lowercase name if the tag is missing. Resolution is all-or-nothing: if any
// accessor can't be bound, no accessor is bound and an error is returned:
//   - ErrNotFound if the table does not exist
//   - ErrSchemaMismatch if the key type is not K, a field does not exist,
//     or has a type other than V
//   - ErrPermissionDenied if a field is private, or if a WritableField
//     is requested for a read-only field
//
// Passing a nil accessors is allowed.
func Import[K Key](reg *Registry, name string, accessors interface{}) (*Imported[K], error) {
	t, ok := reg.get(name)
	if !ok {
		return nil, fmt.Errorf("%w: table %s", ErrNotFound, name)
	}
	md := t.meta()
	keyType := reflect.TypeOf((*K)(nil)).Elem()
	if keyType != md.keyType {
		return nil, fmt.Errorf("%w: table %s has key type %s, not %s", ErrSchemaMismatch, name, md.keyType, keyType)
	}

	type binding struct {
		b binder
		f FieldInfo
	}
	var bindings []binding
	if accessors != nil {
		rv := reflect.ValueOf(accessors)
		if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
			return nil, fmt.Errorf("%w: accessors must be a pointer to struct, found %T", ErrSchemaMismatch, accessors)
		}
		rv = rv.Elem()
		for i := 0; i < rv.NumField(); i++ {
			sf := rv.Type().Field(i)
			if !sf.IsExported() {
				continue
			}
			b, ok := rv.Field(i).Addr().Interface().(binder)
			if !ok {
				continue
			}
			fname := sf.Tag.Get("table")
			if len(fname) == 0 {
				fname = strings.ToLower(sf.Name)
			}
			f, ok := md.field(fname)
			if !ok {
				return nil, fmt.Errorf("%w: table %s has no field %s", ErrSchemaMismatch, name, fname)
			}
			if f.Visibility == Private {
				return nil, fmt.Errorf("%w: field %s of table %s is private", ErrPermissionDenied, fname, name)
			}
			if f.Type != b.valueType() {
				return nil, fmt.Errorf("%w: field %s of table %s has type %s, not %s", ErrSchemaMismatch, fname, name, f.Type, b.valueType())
			}
			if b.writable() && f.Visibility != Public {
				return nil, fmt.Errorf("%w: field %s of table %s is %s", ErrPermissionDenied, fname, name, f.Visibility)
			}
			bindings = append(bindings, binding{b: b, f: f})
		}
	}
	for _, b := range bindings {
		b.b.bind(md, b.f)
	}
	return &Imported[K]{t: t, md: md}, nil
}

// Name returns the name of the table.
func (t *Imported[K]) Name() string {
	return t.md.name
}

// Fields returns the fields of the table visible to importers.
func (t *Imported[K]) Fields() []FieldInfo {
	return t.md.info().Fields
}

// GetEntry returns the entry stored at the given key, or ErrNotFound.
func (t *Imported[K]) GetEntry(r *Reader, key K) (Entry, error) {
	if err := r.check(); err != nil {
		return Entry{}, err
	}
	v, ok := t.t.find(key)
	if !ok {
		return Entry{}, fmt.Errorf("%w: entry %v of table %s", ErrNotFound, key, t.md.name)
	}
	return Entry{tableID: t.md.id, v: v, t: r.t}, nil
}

// Len returns the number of entries in the table.
func (t *Imported[K]) Len(r *Reader) (int, error) {
	if err := r.check(); err != nil {
		return 0, err
	}
	return t.t.size(), nil
}

// Range calls fn for each entry of the table, in no particular order,
// until fn returns false.
func (t *Imported[K]) Range(r *Reader, fn func(key K, e Entry) bool) error {
	if err := r.check(); err != nil {
		return err
	}
	t.t.each(func(key interface{}, v reflect.Value) bool {
		return fn(key.(K), Entry{tableID: t.md.id, v: v, t: r.t})
	})
	return nil
}
