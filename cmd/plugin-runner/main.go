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

// plugin-runner registers a set of plugins and drives a capture session
// over them, printing the events or the rules they match.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/falcosecurity/plugin-runtime-go/pkg/capture"
	"github.com/falcosecurity/plugin-runtime-go/pkg/config"
	"github.com/falcosecurity/plugin-runtime-go/pkg/event"
	"github.com/falcosecurity/plugin-runtime-go/pkg/loader"
	"github.com/falcosecurity/plugin-runtime-go/pkg/rules"
	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type options struct {
	configFile string
	print      bool
	list       bool
	dumpFile   string
	replayFile string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	var o options
	fs := flag.NewFlagSet("plugin-runner", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configFile, "c", "", "path of the YAML configuration file")
	fs.BoolVar(&o.print, "print", false, "print every event")
	fs.BoolVar(&o.list, "list", false, "list the registered plugins and fields, then exit")
	fs.StringVar(&o.dumpFile, "w", "", "write the captured events to a capture file")
	fs.StringVar(&o.replayFile, "r", "", "replay the syscall events of a capture file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if len(o.configFile) == 0 {
		return nil, errors.New("a configuration file is required (-c)")
	}
	return &o, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	cfg, err := config.LoadFile(opts.configFile)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if len(opts.replayFile) > 0 {
		setupReplay(cfg, opts.replayFile)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	promReg := prometheus.NewRegistry()
	if len(cfg.MetricsAddr) > 0 {
		shutdown := serveMetrics(cfg.MetricsAddr, promReg, logger)
		defer shutdown()
	}

	reg := loader.NewRegistry(
		loader.WithLogger(logger),
		loader.WithMetrics(sdk.NewPrometheusMetricFactory(promReg, "plugin_runner", "")),
	)
	defer reg.Close()
	if err := registerPlugins(reg, cfg.Plugins); err != nil {
		return err
	}
	if opts.list {
		return listPlugins(reg, stdout)
	}

	d, err := capture.Open(ctx, reg, capture.Options{
		Source:         cfg.Capture.Source,
		Params:         openParams(reg, cfg.Plugins, cfg.Capture.Source),
		BatchSize:      cfg.Capture.BatchSize,
		AsyncQueueSize: cfg.Capture.AsyncQueueSize,
	})
	if err != nil {
		return err
	}
	defer d.Close()

	var engine *rules.Engine
	if len(cfg.RulesFile) > 0 {
		rs, err := rules.LoadFile(cfg.RulesFile)
		if err != nil {
			return err
		}
		if engine, err = rules.NewEngine(rs, d, rules.WithLogger(logger)); err != nil {
			return err
		}
		logger.Info("rules loaded", "rules", engine.Len())
	}

	var dump *event.StreamWriter
	if len(opts.dumpFile) > 0 {
		f, err := os.Create(opts.dumpFile)
		if err != nil {
			return err
		}
		defer f.Close()
		dump = event.NewStreamWriter(f)
		defer dump.Flush()
	}

	var n uint64
	for cfg.Capture.MaxEvents == 0 || n < cfg.Capture.MaxEvents {
		evt, err := d.NextEvent(ctx)
		if err != nil {
			if errors.Is(err, sdk.ErrEOF) || ctx.Err() != nil {
				break
			}
			return err
		}
		n++
		if dump != nil {
			if err := dump.Write(evt.Raw()); err != nil {
				return err
			}
		}
		if opts.print {
			s, err := d.EventToString(evt)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "#%d %s %s\n", evt.EventNum(), evt.EventSource(), s)
		}
		if engine != nil {
			for _, m := range engine.Evaluate(evt) {
				fmt.Fprintf(stdout, "%s %s: %s\n", m.Priority, m.Rule, m.Output)
			}
		}
	}
	logger.Info("capture completed", "events", n)
	if dump != nil {
		return dump.Flush()
	}
	return nil
}

// setupReplay makes the syscall source replay the given capture file.
func setupReplay(cfg *config.Config, path string) {
	cfg.Capture.Source = sdk.SyscallEventSource
	for i := range cfg.Plugins {
		if cfg.Plugins[i].Name == "syscall" {
			cfg.Plugins[i].OpenParams = path
			return
		}
	}
	cfg.Plugins = append([]config.PluginConfig{{Name: "syscall", OpenParams: path}}, cfg.Plugins...)
}

func listPlugins(reg *loader.Registry, w io.Writer) error {
	for _, p := range reg.Plugins() {
		fmt.Fprintf(w, "plugin %s %s\n", p.Name(), p.Info().Version)
	}
	for _, f := range reg.Dispatcher().Fields() {
		fmt.Fprintf(w, "field %s (%s) from %s\n", f.Name, f.Type, f.Owner)
	}
	for _, t := range reg.Tables().Tables() {
		fmt.Fprintf(w, "table %s\n", t.Name)
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
