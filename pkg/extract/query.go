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

package extract

import (
	"fmt"
	"strconv"
	"strings"
)

// Query is a parsed field query, in the form `name` or `name[arg]`.
type Query struct {
	Field  string
	Arg    string
	HasArg bool
	// Quoted is true if the argument was a quoted string, which is always
	// interpreted as a key.
	Quoted bool
}

// ParseQuery parses a field query. Arguments can be quoted with double
// quotes, in which case they are unquoted with Go string literal rules.
func ParseQuery(s string) (Query, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '[')
	if open < 0 {
		if len(s) == 0 || strings.ContainsRune(s, ']') {
			return Query{}, fmt.Errorf("%w: invalid field query '%s'", ErrInvalidArg, s)
		}
		return Query{Field: s}, nil
	}
	if open == 0 || !strings.HasSuffix(s, "]") {
		return Query{}, fmt.Errorf("%w: invalid field query '%s'", ErrInvalidArg, s)
	}
	q := Query{Field: s[:open], Arg: s[open+1 : len(s)-1], HasArg: true}
	if len(q.Arg) == 0 {
		return Query{}, fmt.Errorf("%w: empty argument in field query '%s'", ErrInvalidArg, s)
	}
	if strings.HasPrefix(q.Arg, `"`) {
		arg, err := strconv.Unquote(q.Arg)
		if err != nil {
			return Query{}, fmt.Errorf("%w: invalid quoted argument in field query '%s'", ErrInvalidArg, s)
		}
		q.Arg = arg
		q.Quoted = true
	} else if strings.ContainsAny(q.Arg, "[]") {
		return Query{}, fmt.Errorf("%w: invalid field query '%s'", ErrInvalidArg, s)
	}
	return q, nil
}

// String returns the query in its textual form.
func (q Query) String() string {
	if !q.HasArg {
		return q.Field
	}
	if q.Quoted {
		return q.Field + "[" + strconv.Quote(q.Arg) + "]"
	}
	return q.Field + "[" + q.Arg + "]"
}
