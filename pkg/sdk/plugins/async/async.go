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

// Package async defines the async events capability. Plugins with this
// capability emit events from their own goroutines, which are injected by
// the capture driver into the stream of events of the session.
package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/falcosecurity/plugin-runtime-go/pkg/event"
	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk"
	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk/plugins"
)

// ErrUndeclaredEvent is returned when emitting an async event whose name is
// not in the list declared by the plugin.
var ErrUndeclaredEvent = errors.New("undeclared async event")

type Plugin interface {
	plugins.Plugin
	// AsyncEvents returns the names of the async events the plugin can
	// emit. An empty list means any name.
	AsyncEvents() []string
	// AsyncEventSources returns the event sources of the capture sessions
	// in which the plugin is started. An empty list means all.
	AsyncEventSources() []string
	// StartAsync is invoked once when a capture session starts. The handler
	// can be used from any goroutine until StopAsync is invoked.
	StartAsync(h *Handler) error
	// StopAsync is invoked when the capture session is closed, and must
	// terminate all the background work started by StartAsync.
	StopAsync() error
}

// Queue is the bounded FIFO queue shared by all the async plugins of a
// capture session. Events are stored in their encoded form.
type Queue struct {
	c      chan []byte
	ctx    context.Context
	cancel context.CancelFunc
}

// NewQueue creates a queue able to hold up to size events. Emitters block
// while the queue is full.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = sdk.DefaultAsyncQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{c: make(chan []byte, size), ctx: ctx, cancel: cancel}
}

// C returns the channel from which the queued events are received.
func (q *Queue) C() <-chan []byte {
	return q.c
}

// Cap returns the capacity of the queue.
func (q *Queue) Cap() int {
	return cap(q.c)
}

// Close stops all the handlers created from the queue. Events already in
// the queue can still be received.
func (q *Queue) Close() {
	q.cancel()
}

// NewHandler creates a new handler for the plugin with the given ID,
// allowed to emit the given event names (any, if empty).
func (q *Queue) NewHandler(pluginID uint32, events []string) *Handler {
	ctx, cancel := context.WithCancel(q.ctx)
	h := &Handler{
		q:        q,
		pluginID: pluginID,
		ctx:      ctx,
		cancel:   cancel,
		now:      func() uint64 { return uint64(time.Now().UnixNano()) },
	}
	if len(events) > 0 {
		h.events = make(map[string]bool, len(events))
		for _, e := range events {
			h.events[e] = true
		}
	}
	return h
}

// Handler is the endpoint through which an async plugin emits its events.
// All its methods are safe for concurrent use.
type Handler struct {
	mu       sync.RWMutex
	q        *Queue
	pluginID uint32
	events   map[string]bool
	ctx      context.Context
	cancel   context.CancelFunc
	now      func() uint64
}

// Context returns a context that is cancelled when the handler is stopped.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// PluginID returns the ID of the plugin owning the handler.
func (h *Handler) PluginID() uint32 {
	return h.pluginID
}

// Emit enqueues an async event, blocking while the queue is full. A nil
// PluginID is replaced with the one of the emitting plugin. Emitting after
// the handler is stopped returns sdk.ErrClosed.
func (h *Handler) Emit(evt event.AsyncEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.ctx.Err() != nil {
		return sdk.ErrClosed
	}
	if h.events != nil {
		if evt.Name == nil || !h.events[*evt.Name] {
			name := "<NA>"
			if evt.Name != nil {
				name = *evt.Name
			}
			return fmt.Errorf("%w: '%s'", ErrUndeclaredEvent, name)
		}
	}
	if evt.PluginID == nil {
		evt.PluginID = event.Ptr(h.pluginID)
	}
	buf := event.Encode(event.Metadata{Timestamp: h.now(), ThreadID: event.NoThreadID}, evt)
	if len(buf) > event.MaxEventSize {
		return fmt.Errorf("%w: event of %d bytes exceeds maximum size", event.ErrMalformedHeader, len(buf))
	}
	select {
	case h.q.c <- buf:
		return nil
	case <-h.ctx.Done():
		return sdk.ErrClosed
	}
}

// Stop makes the handler reject all the following emissions, and unblocks
// the ones waiting for room in the queue. When Stop returns, no emission
// is in flight: every event is either in the queue or rejected.
func (h *Handler) Stop() {
	h.cancel()
	h.mu.Lock()
	h.mu.Unlock()
}

// BackgroundTask runs a function periodically on its own goroutine.
// Async plugins can use it to implement StartAsync and StopAsync.
type BackgroundTask struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Start runs fn every interval until Stop is called, the context is
// cancelled, or fn returns a non-nil error.
func (b *BackgroundTask) Start(ctx context.Context, interval time.Duration, fn func(ctx context.Context) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done != nil {
		return fmt.Errorf("background task already started")
	}
	if interval <= 0 {
		return fmt.Errorf("invalid background task interval: %s", interval)
	}
	ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})
	b.err = nil
	go b.run(ctx, interval, fn, b.done)
	return nil
}

func (b *BackgroundTask) run(ctx context.Context, interval time.Duration, fn func(ctx context.Context) error, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				if !errors.Is(err, sdk.ErrClosed) && ctx.Err() == nil {
					b.mu.Lock()
					b.err = err
					b.mu.Unlock()
				}
				return
			}
		}
	}
}

// Stop terminates the task and waits for its goroutine to return. The
// error that terminated the task, if any, is returned.
func (b *BackgroundTask) Stop() error {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.mu.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	<-done
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancel, b.done = nil, nil
	return b.err
}

// Running returns true if the task has been started and not stopped.
func (b *BackgroundTask) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done != nil
}
