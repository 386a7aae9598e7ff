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

// Package capture implements the capture driver, which runs a capture
// session over the plugins of a loader.Registry. The driver pulls batches
// of events from the selected source plugin, injects the events emitted
// by async plugins, feeds every event to the parser plugins, and yields
// the events to the consumer one at a time.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/falcosecurity/plugin-runtime-go/pkg/event"
	"github.com/falcosecurity/plugin-runtime-go/pkg/loader"
	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk"
	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk/plugins/async"
	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk/plugins/parser"
	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk/plugins/source"
	"github.com/google/uuid"
)

var (
	// ErrNoProducer is returned when opening a session over a registry
	// with neither source nor async plugins.
	ErrNoProducer = errors.New("no event producer is registered")
	// ErrUnknownSource is returned when the requested event source is not
	// provided by any registered plugin.
	ErrUnknownSource = errors.New("unknown event source")
)

// Options configures a capture session.
type Options struct {
	// Source is the event source of the session. If empty, the only
	// registered source plugin is used. If no source plugin is registered,
	// the session only yields the events of the async plugins.
	Source string
	// Params are the open parameters passed to the source plugin.
	Params string
	// BatchSize is the capacity of the event batches. Defaults to
	// sdk.DefaultBatchSize.
	BatchSize int
	// AsyncQueueSize is the capacity of the async events queue. Defaults
	// to sdk.DefaultAsyncQueueSize.
	AsyncQueueSize int
	// Logger defaults to the logger of the registry.
	Logger *slog.Logger
	// Metrics defaults to the metric factory of the registry.
	Metrics sdk.MetricFactory
}

type metrics struct {
	events       sdk.CounterVec
	batches      sdk.Counter
	asyncEvents  sdk.Counter
	parseErrors  sdk.Counter
	extractions  sdk.CounterVec
	pluginErrors sdk.CounterVec
}

func newMetrics(f sdk.MetricFactory) *metrics {
	return &metrics{
		events:       f.NewCounterVec("capture_events_total", []string{"source"}),
		batches:      f.NewCounter("capture_batches_total"),
		asyncEvents:  f.NewCounter("capture_async_events_total"),
		parseErrors:  f.NewCounter("capture_parse_errors_total"),
		extractions:  f.NewCounterVec("capture_extractions_total", []string{"result"}),
		pluginErrors: f.NewCounterVec("capture_plugin_errors_total", []string{"plugin"}),
	}
}

// Driver runs a capture session. A Driver is not safe for concurrent use:
// to interrupt a NextEvent call blocked waiting for events, cancel its
// context and then call Close.
type Driver struct {
	reg      *loader.Registry
	id       uuid.UUID
	logger   *slog.Logger
	metrics  *metrics
	state    State
	err      error
	source   string
	src      *loader.Plugin
	inst     source.Instance
	batch    *event.Batch
	parsers  []*loader.Plugin
	asyncQ   *async.Queue
	asyncs   []*loader.Plugin
	handlers []*async.Handler
	queue    []*Event
	qpos     int
	evtNum   uint64
	flushed  bool
}

// Open opens a capture session over the plugins of the given registry.
// The source plugin of the requested event source is opened, and the
// async plugins interested in it are started.
func Open(ctx context.Context, reg *loader.Registry, opts Options) (*Driver, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = sdk.DefaultBatchSize
	}
	if opts.AsyncQueueSize <= 0 {
		opts.AsyncQueueSize = sdk.DefaultAsyncQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = reg.Logger()
	}
	if opts.Metrics == nil {
		opts.Metrics = reg.Metrics()
	}

	d := &Driver{
		reg:     reg,
		id:      uuid.New(),
		state:   Idle,
		metrics: newMetrics(opts.Metrics),
		parsers: reg.Parsers(),
		asyncQ:  async.NewQueue(opts.AsyncQueueSize),
	}

	src, err := selectSource(reg, opts.Source)
	if err != nil {
		return nil, err
	}
	d.src = src
	switch {
	case src != nil:
		d.source = src.Info().EventSource
	case len(opts.Source) > 0:
		d.source = opts.Source
	default:
		// async events belong to the built-in event source when
		// no source plugin is selected
		d.source = sdk.SyscallEventSource
	}
	d.logger = opts.Logger.With("session", d.id.String(), "source", d.source)

	for _, p := range reg.Asyncs() {
		if matchSource(p.Async().AsyncEventSources(), d.source) {
			d.asyncs = append(d.asyncs, p)
		}
	}
	if d.src == nil && len(d.asyncs) == 0 {
		return nil, ErrNoProducer
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if d.src != nil {
		d.inst, err = d.src.Source().Open(opts.Params)
		if err != nil {
			d.src.SetLastError(err)
			return nil, fmt.Errorf("plugin '%s': open: %w", d.src.Name(), err)
		}
		d.batch = event.NewBatch(opts.BatchSize, d.src.Info().ID)
	}

	for i, p := range d.asyncs {
		h := d.asyncQ.NewHandler(p.Info().ID, p.Async().AsyncEvents())
		if err := p.Async().StartAsync(h); err != nil {
			h.Stop()
			p.SetLastError(err)
			d.asyncs = d.asyncs[:i]
			d.release()
			return nil, fmt.Errorf("plugin '%s': start async: %w", p.Name(), err)
		}
		d.handlers = append(d.handlers, h)
		d.logger.Debug("async plugin started", "plugin", p.Name())
	}

	d.setState(Capturing)
	return d, nil
}

func selectSource(reg *loader.Registry, name string) (*loader.Plugin, error) {
	srcs := reg.Sources()
	if len(name) == 0 {
		switch len(srcs) {
		case 0:
			return nil, nil
		case 1:
			return srcs[0], nil
		default:
			return nil, fmt.Errorf("%d event sources are registered, one must be selected", len(srcs))
		}
	}
	for _, s := range srcs {
		if s.Info().EventSource == name {
			return s, nil
		}
	}
	if len(reg.Asyncs()) > 0 {
		// async-only session on a named source
		return nil, nil
	}
	return nil, fmt.Errorf("%w: '%s'", ErrUnknownSource, name)
}

func matchSource(sources []string, s string) bool {
	if len(sources) == 0 {
		return true
	}
	for _, src := range sources {
		if src == s {
			return true
		}
	}
	return false
}

func (d *Driver) setState(s State) {
	if d.state != s {
		d.logger.Debug("capture state changed", "from", d.state.String(), "to", s.String())
		d.state = s
	}
}

// SessionID returns the unique identifier of the session.
func (d *Driver) SessionID() string {
	return d.id.String()
}

// State returns the current state of the session.
func (d *Driver) State() State {
	return d.state
}

// Source returns the name of the event source of the session.
func (d *Driver) Source() string {
	return d.source
}

// Err returns the terminal condition of a closed session, which is
// either sdk.ErrEOF or a fatal error. It returns nil if the session
// is not closed.
func (d *Driver) Err() error {
	if d.state != Closed {
		return nil
	}
	return d.err
}

// NextEvent returns the next event of the session. Once the session is
// closed, the terminal condition is returned by this and every following
// call: sdk.ErrEOF when the event source is exhausted, or the fatal error
// that terminated the session.
//
// Cancelling ctx interrupts the call, returning the context error. This
// does not terminate the session.
func (d *Driver) NextEvent(ctx context.Context) (*Event, error) {
	for {
		if d.qpos < len(d.queue) {
			evt := d.queue[d.qpos]
			d.queue[d.qpos] = nil
			d.qpos++
			return evt, nil
		}

		switch d.state {
		case Idle:
			return nil, errors.New("capture session is not open")
		case Closed:
			return nil, d.err
		case Draining:
			if !d.flushed {
				// deliver what the async plugins emitted before end of stream
				d.flushed = true
				d.queue = d.queue[:0]
				d.qpos = 0
				if err := d.flushAsync(); err != nil {
					d.terminate(err)
					return nil, d.err
				}
				continue
			}
			d.terminate(sdk.ErrEOF)
			return nil, d.err
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d.queue = d.queue[:0]
		d.qpos = 0
		if err := d.drainAsync(); err != nil {
			d.terminate(err)
			return nil, d.err
		}

		if d.inst == nil {
			if len(d.queue) > 0 {
				continue
			}
			select {
			case buf := <-d.asyncQ.C():
				if err := d.push(buf, true); err != nil {
					d.terminate(err)
					return nil, d.err
				}
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}

		if err := d.nextBatch(); err != nil {
			if !errors.Is(err, sdk.ErrEOF) {
				d.terminate(err)
				return nil, d.err
			}
			d.setState(Draining)
		}
	}
}

// drainAsync moves the events waiting in the async queue to the event
// queue, without blocking. At most one queue worth of events is moved,
// so that busy async plugins can't starve the event source.
func (d *Driver) drainAsync() error {
	for n := d.asyncQ.Cap(); n > 0; n-- {
		select {
		case buf := <-d.asyncQ.C():
			if err := d.push(buf, true); err != nil {
				return err
			}
		default:
			return nil
		}
	}
	return nil
}

// flushAsync stops the async handlers and moves all the events left in
// the async queue to the event queue.
func (d *Driver) flushAsync() error {
	for _, h := range d.handlers {
		h.Stop()
	}
	for {
		select {
		case buf := <-d.asyncQ.C():
			if err := d.push(buf, true); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (d *Driver) nextBatch() error {
	d.batch.Reset()
	err := d.inst.NextBatch(d.src.Plugin(), d.batch)
	d.metrics.batches.Add(1)
	if err != nil && !errors.Is(err, sdk.ErrTimeout) && !errors.Is(err, sdk.ErrEOF) {
		d.src.SetLastError(err)
		d.metrics.pluginErrors.Add(sdk.Labels{"plugin": d.src.Name()}, 1)
		return fmt.Errorf("plugin '%s': next batch: %w", d.src.Name(), err)
	}
	for i := 0; i < d.batch.Len(); i++ {
		if pErr := d.push(d.batch.Get(i), false); pErr != nil {
			return pErr
		}
	}
	if errors.Is(err, sdk.ErrEOF) {
		return sdk.ErrEOF
	}
	return nil
}

// push decodes an event, feeds it to the parser plugins, and queues it.
func (d *Driver) push(buf []byte, isAsync bool) error {
	raw, err := event.LoadRaw(buf)
	if err != nil {
		return fmt.Errorf("decoding event: %w", err)
	}
	d.evtNum++
	evt := &Event{num: d.evtNum, source: d.source, raw: raw, async: isAsync}
	for _, p := range d.parsers {
		if !parser.Accepts(p.Parser(), uint16(raw.Type), d.source) {
			continue
		}
		w := d.reg.Tables().NewWriter()
		err := p.Parser().Parse(evt, w)
		w.Release()
		if err != nil {
			p.SetLastError(err)
			d.metrics.parseErrors.Add(1)
			d.metrics.pluginErrors.Add(sdk.Labels{"plugin": p.Name()}, 1)
			return fmt.Errorf("plugin '%s': parsing event %d: %w", p.Name(), evt.num, err)
		}
	}
	if isAsync {
		d.metrics.asyncEvents.Add(1)
	}
	d.metrics.events.Add(sdk.Labels{"source": d.source}, 1)
	d.queue = append(d.queue, evt)
	return nil
}

// terminate moves the session to the Closed state with the given terminal
// condition, discarding the queued events and releasing the resources.
func (d *Driver) terminate(err error) {
	if d.state == Closed {
		return
	}
	if !errors.Is(err, sdk.ErrEOF) {
		d.logger.Error("capture session failed", "error", err.Error())
	} else {
		d.logger.Info("capture session reached end of stream", "events", d.evtNum)
	}
	d.err = err
	d.release()
	d.setState(Closed)
}

// release stops the async plugins and closes the source instance.
func (d *Driver) release() error {
	for i := range d.queue {
		d.queue[i] = nil
	}
	d.queue = d.queue[:0]
	d.qpos = 0

	var errs []error
	for _, h := range d.handlers {
		h.Stop()
	}
	d.asyncQ.Close()
	for i := len(d.asyncs) - 1; i >= 0; i-- {
		p := d.asyncs[i]
		if err := p.Async().StopAsync(); err != nil {
			p.SetLastError(err)
			errs = append(errs, fmt.Errorf("plugin '%s': stop async: %w", p.Name(), err))
		}
		d.logger.Debug("async plugin stopped", "plugin", p.Name())
	}
	d.asyncs = nil
	d.handlers = nil

	if d.inst != nil {
		if c, ok := d.inst.(sdk.Closer); ok {
			c.Close()
		}
		d.inst = nil
	}
	return errors.Join(errs...)
}

// Close terminates the session. Queued events are discarded, the async
// plugins are stopped, and the source instance is closed. If the session
// was not already terminated by a fatal error, its terminal condition
// becomes sdk.ErrEOF. Invoking Close multiple times has no effect.
func (d *Driver) Close() error {
	if d.state == Closed {
		return nil
	}
	if d.err == nil {
		d.err = sdk.ErrEOF
	}
	err := d.release()
	d.setState(Closed)
	d.logger.Info("capture session closed", "events", d.evtNum)
	return err
}

// Progress returns the progress of the event source, if the source
// instance reports it.
func (d *Driver) Progress() (float64, string, bool) {
	if d.inst == nil {
		return 0, "", false
	}
	p, ok := d.inst.(sdk.Progresser)
	if !ok {
		return 0, "", false
	}
	pct, str := p.Progress(d.src.Plugin())
	return pct, str, true
}
