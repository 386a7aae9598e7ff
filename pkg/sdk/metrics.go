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

package sdk

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Labels is a set of label name/value pairs identifying one of the
// series of a metric vector.
type Labels map[string]string

// Counter is a metric that can only increase.
type Counter interface {
	// Add adds the given value to the counter. It panics if the value is < 0.
	Add(float64)
}

// CounterVec is a set of counters partitioned by label values.
type CounterVec interface {
	Add(Labels, float64)
}

// Gauge is a metric that can arbitrarily go up and down.
type Gauge interface {
	// Set sets the Gauge to an arbitrary value.
	Set(float64)
	// Add adds the given value to the Gauge. (The value can be negative,
	// resulting in a decrease of the Gauge.)
	Add(float64)
}

// GaugeVec is a set of gauges partitioned by label values.
type GaugeVec interface {
	Set(Labels, float64)
	Add(Labels, float64)
}

// MetricFactory creates the metrics published by plugins and by the runtime.
// Creating the same metric twice returns the previously created one.
type MetricFactory interface {
	NewCounter(name string) Counter
	NewCounterVec(name string, labelNames []string) CounterVec
	NewGauge(name string) Gauge
	NewGaugeVec(name string, labelNames []string) GaugeVec
	// Len returns the number of metrics created so far.
	Len() int
}

type discardMetric struct{}

type discardMetricVec struct{}

func (d *discardMetric) Set(float64) {}

func (d *discardMetric) Add(float64) {}

func (d *discardMetricVec) Set(Labels, float64) {}

func (d *discardMetricVec) Add(Labels, float64) {}

// DiscardMetricFactory is a MetricFactory whose metrics are all no-ops.
type DiscardMetricFactory struct {
	m    discardMetric
	mVec discardMetricVec
}

func (d *DiscardMetricFactory) NewCounter(name string) Counter {
	return &d.m
}

func (d *DiscardMetricFactory) NewCounterVec(name string, labelNames []string) CounterVec {
	return &d.mVec
}

func (d *DiscardMetricFactory) NewGauge(name string) Gauge {
	return &d.m
}

func (d *DiscardMetricFactory) NewGaugeVec(name string, labelNames []string) GaugeVec {
	return &d.mVec
}

func (d *DiscardMetricFactory) Len() int {
	return 0
}

type counterVec struct {
	v *prometheus.CounterVec
}

func (c *counterVec) Add(l Labels, v float64) {
	c.v.With(prometheus.Labels(l)).Add(v)
}

type gaugeVec struct {
	v *prometheus.GaugeVec
}

func (g *gaugeVec) Set(l Labels, v float64) {
	g.v.With(prometheus.Labels(l)).Set(v)
}

func (g *gaugeVec) Add(l Labels, v float64) {
	g.v.With(prometheus.Labels(l)).Add(v)
}

type metricKind int

const (
	kindCounter metricKind = iota
	kindCounterVec
	kindGauge
	kindGaugeVec
)

func (k metricKind) String() string {
	switch k {
	case kindCounter:
		return "counter"
	case kindCounterVec:
		return "counter vector"
	case kindGauge:
		return "gauge"
	default:
		return "gauge vector"
	}
}

type promMetric struct {
	kind metricKind
	m    interface{}
}

type promMetricFactory struct {
	m         sync.Mutex
	reg       prometheus.Registerer
	namespace string
	subsystem string
	logger    *slog.Logger
	metrics   map[string]promMetric
	discard   DiscardMetricFactory
}

// NewPrometheusMetricFactory returns a MetricFactory whose metrics are
// registered into the given Prometheus registerer. Metric names are
// sanitized and prefixed with the given namespace and subsystem.
//
// Metrics that can't be registered, or that reuse the name of a metric
// of another kind, are logged with slog.Default() and replaced with
// no-op metrics.
func NewPrometheusMetricFactory(reg prometheus.Registerer, namespace, subsystem string) MetricFactory {
	return &promMetricFactory{
		reg:       reg,
		namespace: sanitizeMetricName(namespace),
		subsystem: sanitizeMetricName(subsystem),
		logger:    slog.Default(),
		metrics:   make(map[string]promMetric),
	}
}

func (p *promMetricFactory) Len() int {
	p.m.Lock()
	defer p.m.Unlock()
	return len(p.metrics)
}

func (p *promMetricFactory) NewCounter(name string) Counter {
	m, ok := p.get(name, kindCounter, func(name string) prometheus.Collector {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: p.subsystem,
			Name:      name,
			Help:      name,
		})
	})
	if !ok {
		return p.discard.NewCounter(name)
	}
	return m.(Counter)
}

func (p *promMetricFactory) NewCounterVec(name string, labelNames []string) CounterVec {
	m, ok := p.get(name, kindCounterVec, func(name string) prometheus.Collector {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: p.subsystem,
			Name:      name,
			Help:      name,
		}, labelNames)
	})
	if !ok {
		return p.discard.NewCounterVec(name, labelNames)
	}
	return m.(CounterVec)
}

func (p *promMetricFactory) NewGauge(name string) Gauge {
	m, ok := p.get(name, kindGauge, func(name string) prometheus.Collector {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: p.subsystem,
			Name:      name,
			Help:      name,
		})
	})
	if !ok {
		return p.discard.NewGauge(name)
	}
	return m.(Gauge)
}

func (p *promMetricFactory) NewGaugeVec(name string, labelNames []string) GaugeVec {
	m, ok := p.get(name, kindGaugeVec, func(name string) prometheus.Collector {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: p.subsystem,
			Name:      name,
			Help:      name,
		}, labelNames)
	})
	if !ok {
		return p.discard.NewGaugeVec(name, labelNames)
	}
	return m.(GaugeVec)
}

// get returns the metric with the given name, creating and registering it
// if needed. It returns false if the metric can't be used as the given kind.
func (p *promMetricFactory) get(name string, kind metricKind, create func(string) prometheus.Collector) (interface{}, bool) {
	p.m.Lock()
	defer p.m.Unlock()
	name = sanitizeMetricName(name)
	if m, ok := p.metrics[name]; ok {
		if m.kind != kind {
			p.logger.Warn("metric already created with another kind, discarding it",
				"metric", name, "kind", kind.String(), "existing", m.kind.String())
			return nil, false
		}
		return m.m, true
	}
	c := create(name)
	if err := p.reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			p.logger.Warn("can't register metric, discarding it", "metric", name, "error", err.Error())
			return nil, false
		}
		c = are.ExistingCollector
		if k, ok := kindOf(c); !ok || k != kind {
			p.logger.Warn("metric already registered with another kind, discarding it", "metric", name, "kind", kind.String())
			return nil, false
		}
	}
	var m interface{}
	switch v := c.(type) {
	case *prometheus.CounterVec:
		m = &counterVec{v: v}
	case *prometheus.GaugeVec:
		m = &gaugeVec{v: v}
	default:
		m = c
	}
	p.metrics[name] = promMetric{kind: kind, m: m}
	return m, true
}

func kindOf(c prometheus.Collector) (metricKind, bool) {
	switch c.(type) {
	case *prometheus.CounterVec:
		return kindCounterVec, true
	case *prometheus.GaugeVec:
		return kindGaugeVec, true
	case prometheus.Gauge:
		// before Counter, gauges have its methods too
		return kindGauge, true
	case prometheus.Counter:
		return kindCounter, true
	}
	return 0, false
}

// sanitizeMetricName replaces the characters not allowed in metric
// names with underscores.
func sanitizeMetricName(name string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, name)
}
