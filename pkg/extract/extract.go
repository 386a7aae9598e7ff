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

// Package extract implements the field extraction dispatcher, which routes
// field queries to the extractor plugins declaring the queried fields.
package extract

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk"
	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk/plugins/extractor"
	"github.com/falcosecurity/plugin-runtime-go/pkg/tables"
)

var (
	// ErrUnknownField is returned when querying a field declared by no
	// plugin.
	ErrUnknownField = errors.New("unknown field")
	// ErrDuplicateField is returned when adding a plugin declaring a field
	// that is already declared by another plugin.
	ErrDuplicateField = errors.New("duplicate field")
	// ErrInvalidArg is returned when a field query carries an argument not
	// accepted by the field, or lacks a required one.
	ErrInvalidArg = errors.New("invalid field argument")
	// ErrFieldType is returned when an extractor sets a value of a type
	// different from the declared one.
	ErrFieldType = errors.New("field value type mismatch")
)

// FieldInfo describes a field registered in a dispatcher.
type FieldInfo struct {
	sdk.FieldEntry
	// Owner is the name of the plugin declaring the field.
	Owner string
	// Sources are the event sources the field can be extracted from.
	// An empty list means all the event sources.
	Sources []string
}

type rule struct {
	FieldInfo
	id     uint64
	ftype  uint32
	plugin extractor.Plugin
}

func (r *rule) accepts(evt sdk.EventReader) bool {
	if len(r.EventTypes) > 0 {
		found := false
		for _, t := range r.EventTypes {
			if t == uint16(evt.Raw().Type) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(r.Sources) > 0 {
		for _, s := range r.Sources {
			if s == evt.EventSource() {
				return true
			}
		}
		return false
	}
	return true
}

// Dispatcher routes field queries to the plugins declaring the fields.
// Fields are looked up by exact name. A Dispatcher is not safe for
// concurrent use.
type Dispatcher struct {
	rules map[string]*rule
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{rules: make(map[string]*rule)}
}

// Add registers the fields of an extractor plugin. Fields declaring no
// event sources are extracted from the given default sources (all, if
// empty). No field is registered if any of them is malformed or already
// declared by another plugin.
func (d *Dispatcher) Add(owner string, p extractor.Plugin, defaultSources []string) error {
	fields := p.Fields()
	if err := extractor.CheckFields(fields); err != nil {
		return fmt.Errorf("plugin '%s': %w", owner, err)
	}
	for _, f := range fields {
		if r, ok := d.rules[f.Name]; ok {
			return fmt.Errorf("%w: '%s' is declared by both '%s' and '%s'", ErrDuplicateField, f.Name, r.Owner, owner)
		}
	}
	for i, f := range fields {
		ftype, _ := sdk.FieldType(f.Type)
		sources := f.EventSources
		if len(sources) == 0 {
			sources = defaultSources
		}
		d.rules[f.Name] = &rule{
			FieldInfo: FieldInfo{FieldEntry: f, Owner: owner, Sources: sources},
			id:        uint64(i),
			ftype:     ftype,
			plugin:    p,
		}
	}
	return nil
}

// Fields returns all the registered fields, sorted by name.
func (d *Dispatcher) Fields() []FieldInfo {
	res := make([]FieldInfo, 0, len(d.rules))
	for _, r := range d.rules {
		res = append(res, r.FieldInfo)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

// Field returns the registered field with the given name.
func (d *Dispatcher) Field(name string) (FieldInfo, bool) {
	r, ok := d.rules[name]
	if !ok {
		return FieldInfo{}, false
	}
	return r.FieldInfo, true
}

// Check returns a non-nil error if the query can't be answered for any
// event, either because the field is unknown or the argument is invalid.
func (d *Dispatcher) Check(query string) error {
	q, err := ParseQuery(query)
	if err != nil {
		return err
	}
	_, err = d.newRequest(q, nil)
	return err
}

// Extract answers a field query against an event. The returned boolean is
// false if the field has no value for the event, which happens when the
// event does not match the filters of the field or when the extractor
// reports missing data. Query errors and extractor failures are returned
// as errors, and affect only the queried field.
//
// The reader token is passed to the extractor for reading tables, and can
// be nil if no table is accessed.
func (d *Dispatcher) Extract(query string, evt sdk.EventReader, r *tables.Reader) (interface{}, bool, error) {
	q, err := ParseQuery(query)
	if err != nil {
		return nil, false, err
	}
	return d.ExtractQuery(q, evt, r)
}

// ExtractQuery is like Extract, but accepts an already parsed query.
func (d *Dispatcher) ExtractQuery(q Query, evt sdk.EventReader, r *tables.Reader) (interface{}, bool, error) {
	req, err := d.newRequest(q, r)
	if err != nil {
		return nil, false, err
	}
	if !req.rule.accepts(evt) {
		return nil, false, nil
	}
	if err := req.rule.plugin.Extract(req, evt); err != nil {
		if errors.Is(err, sdk.ErrMissingData) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("plugin '%s': extracting '%s': %w", req.rule.Owner, q, err)
	}
	if !req.set || req.value == nil {
		return nil, false, nil
	}
	if err := checkValue(req.ftype, req.rule.IsList, req.value); err != nil {
		return nil, false, fmt.Errorf("plugin '%s': extracting '%s': %w", req.rule.Owner, q, err)
	}
	return req.value, true, nil
}

func (d *Dispatcher) newRequest(q Query, reader *tables.Reader) (*request, error) {
	r, ok := d.rules[q.Field]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownField, q.Field)
	}
	req := &request{rule: r, ftype: r.ftype, reader: reader}
	if !q.HasArg {
		if r.Arg.IsRequired {
			return nil, fmt.Errorf("%w: field '%s' requires an argument", ErrInvalidArg, q.Field)
		}
		return req, nil
	}
	if !r.Arg.IsIndex && !r.Arg.IsKey {
		return nil, fmt.Errorf("%w: field '%s' accepts no argument", ErrInvalidArg, q.Field)
	}
	req.argPresent = true
	req.argKey = q.Arg
	if r.Arg.IsIndex && !q.Quoted {
		idx, err := strconv.ParseUint(q.Arg, 10, 64)
		if err == nil {
			req.argIndex = idx
		} else if !r.Arg.IsKey {
			return nil, fmt.Errorf("%w: field '%s' requires a numeric index", ErrInvalidArg, q.Field)
		}
	} else if !r.Arg.IsKey {
		return nil, fmt.Errorf("%w: field '%s' requires a numeric index", ErrInvalidArg, q.Field)
	}
	return req, nil
}

func checkValue(ftype uint32, list bool, v interface{}) error {
	ok := false
	switch ftype {
	case sdk.FieldTypeUint64:
		ok = is[uint64](v, list)
	case sdk.FieldTypeCharBuf:
		ok = is[string](v, list)
	case sdk.FieldTypeBool:
		ok = is[bool](v, list)
	case sdk.FieldTypeRelTime:
		ok = is[time.Duration](v, list)
	case sdk.FieldTypeAbsTime:
		ok = is[time.Time](v, list)
	case sdk.FieldTypeIPAddr:
		ok = is[net.IP](v, list)
	case sdk.FieldTypeIPNet:
		ok = is[net.IPNet](v, list)
	}
	if !ok {
		return fmt.Errorf("%w: unexpected value of type %T", ErrFieldType, v)
	}
	return nil
}

func is[T any](v interface{}, list bool) bool {
	if list {
		_, ok := v.([]T)
		return ok
	}
	_, ok := v.(T)
	return ok
}

type request struct {
	rule       *rule
	ftype      uint32
	argKey     string
	argIndex   uint64
	argPresent bool
	reader     *tables.Reader
	value      interface{}
	set        bool
}

func (r *request) FieldID() uint64 {
	return r.rule.id
}

func (r *request) FieldType() uint32 {
	return r.ftype
}

func (r *request) Field() string {
	return r.rule.Name
}

func (r *request) ArgKey() string {
	return r.argKey
}

func (r *request) ArgIndex() uint64 {
	return r.argIndex
}

func (r *request) ArgPresent() bool {
	return r.argPresent
}

func (r *request) IsList() bool {
	return r.rule.IsList
}

func (r *request) SetValue(v interface{}) {
	r.value = v
	r.set = true
}

func (r *request) TableReader() *tables.Reader {
	return r.reader
}
