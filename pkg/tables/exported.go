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
	"reflect"
	"sync"
)

// Exported is a table owned by the plugin that exported it. The owner
// accesses entries through their concrete type, including private fields.
type Exported[K Key, E any] struct {
	m       sync.RWMutex
	md      *tableMeta
	entries map[K]*E
}

// Export creates a new table in the registry, with keys of type K and
// entries of type E. The schema of the table is derived from the `table`
// tags of the fields of E, which must be a struct.
func Export[K Key, E any](reg *Registry, name string) (*Exported[K, E], error) {
	fields, err := schemaOf(reflect.TypeOf((*E)(nil)).Elem())
	if err != nil {
		return nil, err
	}
	var res *Exported[K, E]
	_, err = reg.add(name, func(id uint64) table {
		res = &Exported[K, E]{
			md: &tableMeta{
				id:      id,
				name:    name,
				keyType: reflect.TypeOf((*K)(nil)).Elem(),
				fields:  fields,
			},
			entries: make(map[K]*E),
		}
		return res
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Name returns the name of the table.
func (t *Exported[K, E]) Name() string {
	return t.md.name
}

// Schema returns the fields of the table entries, including private ones.
func (t *Exported[K, E]) Schema() []FieldInfo {
	return append([]FieldInfo(nil), t.md.fields...)
}

// Lookup returns the entry stored at the given key. The returned entry is
// a live reference into the table storage: changes to it are immediately
// visible through the table.
func (t *Exported[K, E]) Lookup(key K) (*E, bool) {
	t.m.RLock()
	defer t.m.RUnlock()
	e, ok := t.entries[key]
	return e, ok
}

// CreateEntry returns a new zero-valued entry, not yet part of the table.
func (t *Exported[K, E]) CreateEntry() *E {
	return new(E)
}

// Insert stores the entry at the given key, replacing any existing entry.
func (t *Exported[K, E]) Insert(key K, entry *E) {
	if entry == nil {
		entry = new(E)
	}
	t.m.Lock()
	defer t.m.Unlock()
	t.entries[key] = entry
}

// Erase removes the entry at the given key, and returns false if the
// key was not present.
func (t *Exported[K, E]) Erase(key K) bool {
	t.m.Lock()
	defer t.m.Unlock()
	_, ok := t.entries[key]
	delete(t.entries, key)
	return ok
}

// Len returns the number of entries in the table.
func (t *Exported[K, E]) Len() int {
	t.m.RLock()
	defer t.m.RUnlock()
	return len(t.entries)
}

// Range calls fn for each entry of the table, in no particular order,
// until fn returns false. The table must not be modified by fn.
func (t *Exported[K, E]) Range(fn func(key K, entry *E) bool) {
	t.m.RLock()
	defer t.m.RUnlock()
	for k, e := range t.entries {
		if !fn(k, e) {
			return
		}
	}
}

func (t *Exported[K, E]) meta() *tableMeta {
	return t.md
}

func (t *Exported[K, E]) find(key interface{}) (reflect.Value, bool) {
	e, ok := t.Lookup(key.(K))
	if !ok {
		return reflect.Value{}, false
	}
	return reflect.ValueOf(e), true
}

func (t *Exported[K, E]) size() int {
	return t.Len()
}

func (t *Exported[K, E]) each(fn func(key interface{}, v reflect.Value) bool) {
	t.Range(func(k K, e *E) bool {
		return fn(k, reflect.ValueOf(e))
	})
}
