// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// osald boots an OSAL context on one of the backends, runs a small set of
// demo tasks on it and serves the ledger counters over OpenMetrics. The
// console carries the debug menu.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/u-root/u-osal/config"
	"github.com/u-root/u-osal/pkg/console"
	"github.com/u-root/u-osal/pkg/logger"
	"github.com/u-root/u-osal/pkg/metric"
	"github.com/u-root/u-osal/pkg/osal"
	"github.com/u-root/u-osal/pkg/osal/posix"
	"github.com/u-root/u-osal/pkg/osal/rtos"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

var (
	backend    = flag.String("backend", "rtos", "Backend to run on: rtos or posix")
	configPath = flag.String("config", "/etc/osald.yaml", "YAML file overriding the built-in configuration")
	menu       = flag.Bool("menu", true, "Serve the debug menu on the console")

	log = logger.LogContainer.GetSimpleLogger()
)

func newBackend(name string, cfg *config.Config) (osal.Backend, error) {
	switch name {
	case "rtos":
		return rtos.New(cfg, nil), nil
	case "posix":
		return posix.New(cfg, nil, nil), nil
	}
	return nil, fmt.Errorf("unknown backend %q", name)
}

func run(ctx context.Context) (err error) {
	cfg, err := config.Load(afero.NewOsFs(), *configPath)
	if err != nil {
		return err
	}
	b, err := newBackend(*backend, cfg)
	if err != nil {
		return err
	}
	con, err := console.Open(cfg.Console)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, con.Close()) }()

	reg := prometheus.NewRegistry()
	o, err := osal.Init(b, cfg, osal.WithRegisterer(reg), osal.WithConsole(con))
	if err != nil {
		return fmt.Errorf("osal.Init: %v", err)
	}
	defer func() { err = multierr.Append(err, osal.Teardown()) }()

	mux := http.NewServeMux()
	metric.StartMetrics(mux, reg)
	srv := &http.Server{Addr: cfg.MetricsAddress, Handler: mux}

	d := &demo{os: o}
	if k, ok := b.(*rtos.Kernel); ok {
		d.raise = k.Raise
	}
	if _, err := o.Start(false, d.main, mainStackBytes, cfg.DefaultTaskPriority); err != nil {
		return fmt.Errorf("start %s: %v", b.Name(), err)
	}
	if *menu {
		if _, err := o.CreateTask(func(ctx context.Context, _ any) { debugMenu(ctx, o) }, menuStackBytes, nil, cfg.DefaultTaskPriority, "debug menu"); err != nil {
			log.Warnf("No debug menu: %v", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("Serving metrics on %s", cfg.MetricsAddress)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return multierr.Combine(srv.Shutdown(sctx), o.Shutdown())
	})
	return g.Wait()
}

func main() {
	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx); err != nil {
		log.Errorf("osald: %v", err)
		os.Exit(1)
	}
}
