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
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestDiscardMetricFactory(t *testing.T) {
	f := &DiscardMetricFactory{}
	assert.NotPanics(t, func() {
		f.NewCounter("c").Add(1)
		f.NewGauge("g").Set(1)
		f.NewGauge("g").Add(-1)
		f.NewCounterVec("cv", []string{"l"}).Add(Labels{"l": "v"}, 1)
		f.NewGaugeVec("gv", []string{"l"}).Set(Labels{"l": "v"}, 1)
	})
	assert.Equal(t, 0, f.Len())
}

func TestPrometheusMetricFactory(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := NewPrometheusMetricFactory(reg, "plugin", "random-gen")

	c := f.NewCounter("events.total")
	c.Add(2)
	f.NewCounter("events.total").Add(3)
	assert.Equal(t, 5.0, testutil.ToFloat64(c.(prometheus.Counter)))

	g := f.NewGauge("entries")
	g.Set(10)
	g.Add(-4)
	assert.Equal(t, 6.0, testutil.ToFloat64(g.(prometheus.Gauge)))

	cv := f.NewCounterVec("by_type", []string{"type"})
	cv.Add(Labels{"type": "open"}, 1)
	cv.Add(Labels{"type": "open"}, 1)
	cv.Add(Labels{"type": "read"}, 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(cv.(*counterVec).v.WithLabelValues("open")))

	assert.Equal(t, 3, f.Len())

	n, err := testutil.GatherAndCount(reg, "plugin_random_gen_events_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPrometheusMetricFactoryConflicts(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := NewPrometheusMetricFactory(reg, "plugin", "")

	c := f.NewCounter("events")
	c.Add(1)
	assert.NotPanics(t, func() {
		f.NewGauge("events").Set(5)
		f.NewCounterVec("events", []string{"type"}).Add(Labels{"type": "open"}, 1)
		f.NewGaugeVec("events", []string{"type"}).Add(Labels{"type": "open"}, 1)
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(c.(prometheus.Counter)))
	assert.Equal(t, 1, f.Len())

	// registered outside of the factory with another kind
	reg.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "plugin", Name: "taken", Help: "taken"}))
	assert.NotPanics(t, func() {
		f.NewCounter("taken").Add(1)
	})
	assert.Equal(t, 1, f.Len())

	// label names can't be empty
	assert.NotPanics(t, func() {
		f.NewCounterVec("bad_labels", []string{""}).Add(Labels{"": "x"}, 1)
	})
}

func TestFieldType(t *testing.T) {
	v, ok := FieldType("uint64")
	assert.True(t, ok)
	assert.Equal(t, FieldTypeUint64, v)
	v, ok = FieldType("string")
	assert.True(t, ok)
	assert.Equal(t, FieldTypeCharBuf, v)
	_, ok = FieldType("float")
	assert.False(t, ok)
}
