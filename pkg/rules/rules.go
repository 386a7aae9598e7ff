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

// Package rules implements a minimal rule engine consuming the events of a
// capture session. Rule conditions are expressions evaluated over the fields
// extracted from each event, and rule outputs are rendered by interpolating
// field values.
package rules

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk"
	"gopkg.in/yaml.v3"
)

// NoValue is the rendering of fields with no value.
const NoValue = "<NA>"

var priorities = []string{
	"emergency", "alert", "critical", "error", "warning", "notice", "informational", "debug",
}

var placeholderRegexp = regexp.MustCompile(`%\{([^}]+)\}`)

// Rule is a rule as defined in a rules file.
type Rule struct {
	Name      string `yaml:"rule"`
	Desc      string `yaml:"desc"`
	Condition string `yaml:"condition"`
	Output    string `yaml:"output"`
	Priority  string `yaml:"priority"`
	Enabled   *bool  `yaml:"enabled"`
}

// Load decodes a list of rules from YAML.
func Load(r io.Reader) ([]Rule, error) {
	var rules []Rule
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&rules); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decoding rules: %w", err)
	}
	return rules, nil
}

// LoadFile decodes a list of rules from a YAML file.
func LoadFile(path string) ([]Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Extractor extracts field values from events and renders them.
type Extractor interface {
	ExtractField(query string, evt sdk.EventReader) (interface{}, bool, error)
	FieldAsString(query string, evt sdk.EventReader) (string, bool, error)
	EventToString(evt sdk.EventReader) (string, error)
	CheckField(query string) error
}

// Match is a rule matching an event.
type Match struct {
	Rule     string
	Priority string
	Output   string
	EventNum uint64
}

type compiled struct {
	rule    Rule
	program *vm.Program
}

// Engine evaluates a set of rules against events.
type Engine struct {
	rules  []*compiled
	ex     Extractor
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// compileEnv describes the evaluation environment for type checking.
var compileEnv = map[string]interface{}{
	"field":  func(string) interface{} { return nil },
	"has":    func(string) bool { return false },
	"evt":    "",
	"evtnum": uint64(0),
	"source": "",
}

// NewEngine compiles the given rules. Disabled rules are skipped. All the
// fields referenced in the outputs must be known by the extractor.
func NewEngine(rules []Rule, ex Extractor, opts ...Option) (*Engine, error) {
	e := &Engine{ex: ex, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	names := make(map[string]bool)
	for _, r := range rules {
		if r.Enabled != nil && !*r.Enabled {
			continue
		}
		c, err := e.compile(r)
		if err != nil {
			return nil, err
		}
		if names[r.Name] {
			return nil, fmt.Errorf("rule '%s' is defined twice", r.Name)
		}
		names[r.Name] = true
		e.rules = append(e.rules, c)
	}
	return e, nil
}

func (e *Engine) compile(r Rule) (*compiled, error) {
	if len(r.Name) == 0 {
		return nil, errors.New("rule with no name")
	}
	if len(strings.TrimSpace(r.Condition)) == 0 {
		return nil, fmt.Errorf("rule '%s' has no condition", r.Name)
	}
	prio, err := parsePriority(r.Priority)
	if err != nil {
		return nil, fmt.Errorf("rule '%s': %w", r.Name, err)
	}
	r.Priority = prio
	program, err := expr.Compile(r.Condition, expr.Env(compileEnv), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("rule '%s': compiling condition: %w", r.Name, err)
	}
	c := &compiled{rule: r, program: program}
	for _, m := range placeholderRegexp.FindAllStringSubmatch(r.Output, -1) {
		if m[1] == "evt" {
			continue
		}
		if err := e.ex.CheckField(m[1]); err != nil {
			return nil, fmt.Errorf("rule '%s': output: %w", r.Name, err)
		}
	}
	return c, nil
}

func parsePriority(p string) (string, error) {
	if len(p) == 0 {
		return "notice", nil
	}
	p = strings.ToLower(p)
	for _, v := range priorities {
		if v == p || (v == "informational" && p == "info") {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown priority '%s'", p)
}

// Len returns the number of enabled rules.
func (e *Engine) Len() int {
	return len(e.rules)
}

// Evaluate evaluates all the rules against an event, returning the
// matching ones in definition order. Rules failing evaluation are logged
// and considered not matching. Fields failing extraction are logged and
// have no value, as if absent from the event.
func (e *Engine) Evaluate(evt sdk.EventReader) []Match {
	if len(e.rules) == 0 {
		return nil
	}
	evtStr, err := e.ex.EventToString(evt)
	if err != nil {
		e.logger.Warn("event rendering failed", "evtnum", evt.EventNum(), "error", err.Error())
		evtStr = NoValue
	}
	var res []Match
	for _, c := range e.rules {
		ok, err := e.eval(c, evt, evtStr)
		if err != nil {
			e.logger.Warn("rule evaluation failed", "rule", c.rule.Name, "evtnum", evt.EventNum(), "error", err.Error())
			continue
		}
		if !ok {
			continue
		}
		out, err := e.render(c, evt, evtStr)
		if err != nil {
			e.logger.Warn("rule output rendering failed", "rule", c.rule.Name, "evtnum", evt.EventNum(), "error", err.Error())
			continue
		}
		res = append(res, Match{Rule: c.rule.Name, Priority: c.rule.Priority, Output: out, EventNum: evt.EventNum()})
	}
	return res
}

func (e *Engine) eval(c *compiled, evt sdk.EventReader, evtStr string) (bool, error) {
	field := func(q string) interface{} {
		v, ok, err := e.ex.ExtractField(q, evt)
		if err != nil {
			e.logger.Warn("field extraction failed", "rule", c.rule.Name, "field", q, "evtnum", evt.EventNum(), "error", err.Error())
			return nil
		}
		if !ok {
			return nil
		}
		return v
	}
	env := map[string]interface{}{
		"field": field,
		"has": func(q string) bool {
			return field(q) != nil
		},
		"evt":    evtStr,
		"evtnum": evt.EventNum(),
		"source": evt.EventSource(),
	}
	out, err := expr.Run(c.program, env)
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}

func (e *Engine) render(c *compiled, evt sdk.EventReader, evtStr string) (string, error) {
	out := placeholderRegexp.ReplaceAllStringFunc(c.rule.Output, func(m string) string {
		q := m[2 : len(m)-1]
		if q == "evt" {
			return evtStr
		}
		s, ok, fErr := e.ex.FieldAsString(q, evt)
		if fErr != nil {
			e.logger.Warn("field extraction failed", "rule", c.rule.Name, "field", q, "evtnum", evt.EventNum(), "error", fErr.Error())
			return NoValue
		}
		if !ok {
			return NoValue
		}
		return s
	})
	return out, nil
}
