// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package osal is an OS abstraction layer for management controller
// firmware. One OS context fronts a Backend (the rtos or posix package)
// and gives tasks, mutexes, semaphores, mailboxes, event flags, timers,
// interrupts and guarded memory/console primitives the same behaviour and
// error taxonomy on both, while keeping a debug ledger of every resource.
package osal

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/u-root/u-osal/config"
	"github.com/u-root/u-osal/pkg/console"
	"github.com/u-root/u-osal/pkg/logger"
)

var log = logger.LogContainer.GetSimpleLogger()

const (
	upperFirewall = 0xBABECAFE
	lowerFirewall = 0xDEADFACE

	MainTaskName = "OSAL Main Task"
)

type state int32

const (
	uninitialized state = iota
	started
	operating
)

// OS is the abstraction layer context. It is framed by two firewall words
// that every public operation checks; if either was overwritten the call
// fails with ErrOsImplementation.
type OS struct {
	upper uint32

	backend    Backend
	cfg        *config.Config
	con        *console.Console
	reg        *Registry
	state      atomic.Int32
	roundRobin atomic.Bool

	// One lock per utility category so that unrelated utilities never
	// contend with each other. Unused until the scheduler starts.
	allocMu   sync.Mutex
	freeMu    sync.Mutex
	setMu     sync.Mutex
	copyMu    sync.Mutex
	printMu   sync.Mutex
	getcharMu sync.Mutex

	lower uint32
}

type options struct {
	registerer prometheus.Registerer
	console    *console.Console
}

type Option func(*options)

// WithRegisterer exports the ledger counters and heap gauges through r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registerer = r }
}

// WithConsole replaces stdio as the Printf/GetChar device.
func WithConsole(c *console.Console) Option {
	return func(o *options) { o.console = c }
}

// New returns an initialised but not yet started context on b. A nil cfg
// means config.DefaultConfig.
func New(b Backend, cfg *config.Config, opts ...Option) (*OS, error) {
	if b == nil {
		return nil, ErrParams
	}
	if cfg == nil {
		cfg = config.DefaultConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParams, err)
	}
	var op options
	for _, f := range opts {
		f(&op)
	}
	if op.console == nil {
		op.console = console.New(nopReader{}, nopWriter{})
	}
	registerHeapGauges(op.registerer, b)
	return &OS{
		upper:   upperFirewall,
		backend: b,
		cfg:     cfg,
		con:     op.console,
		reg:     newRegistry(newMetrics(op.registerer)),
		lower:   lowerFirewall,
	}, nil
}

var (
	defaultMu sync.Mutex
	defaultOS *OS
)

// Init creates the process-wide context returned by Default.
func Init(b Backend, cfg *config.Config, opts ...Option) (*OS, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultOS != nil {
		return nil, fmt.Errorf("%w: already initialised on %s", ErrOsImplementation, defaultOS.backend.Name())
	}
	o, err := New(b, cfg, opts...)
	if err != nil {
		return nil, err
	}
	defaultOS = o
	return o, nil
}

// Default returns the context created by Init, or nil.
func Default() *OS {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultOS
}

// Teardown shuts the process-wide context down and forgets it.
func Teardown() error {
	defaultMu.Lock()
	o := defaultOS
	defaultOS = nil
	defaultMu.Unlock()
	if o == nil || !o.started() {
		return nil
	}
	return o.Shutdown()
}

func (o *OS) firewall() error {
	if o == nil {
		return ErrInvalidHandle
	}
	if o.upper != upperFirewall || o.lower != lowerFirewall {
		log.Errorw("OSAL context corrupted, refusing call",
			"upper", fmt.Sprintf("%#08x", o.upper),
			"lower", fmt.Sprintf("%#08x", o.lower))
		return ErrOsImplementation
	}
	return nil
}

// ready is the entry check of every scheduler-backed operation.
func (o *OS) ready() error {
	if err := o.firewall(); err != nil {
		return err
	}
	if !o.started() {
		return ErrOsNotStarted
	}
	return nil
}

func (o *OS) started() bool {
	return state(o.state.Load()) != uninitialized
}

// Operating reports whether the main task has begun running.
func (o *OS) Operating() bool {
	return state(o.state.Load()) == operating
}

func (o *OS) Config() *config.Config {
	return o.cfg
}

func (o *OS) Registry() *Registry {
	return o.reg
}

// Start starts the backend scheduler and creates the main task running
// entry. With roundRobin set every task, including the main task, runs at
// the default priority. Unlike a firmware scheduler Start returns once the
// main task is created.
func (o *OS) Start(roundRobin bool, entry TaskFunc, stackBytes uint32, priority uint32) (Task, error) {
	if err := o.firewall(); err != nil {
		return Task{}, err
	}
	if entry == nil || !validStack(stackBytes) || priority > o.cfg.MaxPriority {
		return Task{}, ErrParams
	}
	if !o.state.CompareAndSwap(int32(uninitialized), int32(started)) {
		return Task{}, fmt.Errorf("%w: already started", ErrOsImplementation)
	}
	o.roundRobin.Store(roundRobin)
	if err := o.backend.Start(); err != nil {
		o.state.Store(int32(uninitialized))
		log.Warnf("Failed to start %s scheduler: %v", o.backend.Name(), err)
		return Task{}, translate(err)
	}
	log.Infof("Started %s scheduler (round robin: %v)", o.backend.Name(), roundRobin)

	main := func(ctx context.Context, param any) {
		o.state.CompareAndSwap(int32(started), int32(operating))
		entry(ctx, param)
	}
	t, err := o.createTask(main, stackBytes, nil, priority, MainTaskName)
	if err != nil {
		o.state.Store(int32(uninitialized))
		if serr := o.backend.Shutdown(); serr != nil {
			log.Warnf("Shutting down %s after failed start: %v", o.backend.Name(), serr)
		}
		return Task{}, err
	}
	return t, nil
}

// Shutdown stops the backend. Handles created before become unusable.
func (o *OS) Shutdown() error {
	if err := o.firewall(); err != nil {
		return err
	}
	if state(o.state.Swap(int32(uninitialized))) == uninitialized {
		return ErrOsNotStarted
	}
	log.Infof("Shutting down %s scheduler", o.backend.Name())
	return translate(o.backend.Shutdown())
}

// Version reports the OS under the backend.
func (o *OS) Version() (Version, error) {
	if err := o.firewall(); err != nil {
		return Version{}, err
	}
	v, err := o.backend.Version()
	if err != nil {
		return Version{}, translate(err)
	}
	return v, nil
}

func (o *OS) UptimeTicks() (uint64, error) {
	if err := o.ready(); err != nil {
		return 0, err
	}
	return o.backend.UptimeTicks(), nil
}

func (o *OS) UptimeMs() (uint64, error) {
	if err := o.ready(); err != nil {
		return 0, err
	}
	return o.backend.UptimeMs(), nil
}

// ClearAllStats empties the debug registry.
func (o *OS) ClearAllStats() {
	if o.firewall() != nil {
		return
	}
	o.reg.ClearAll()
}

func validStack(n uint32) bool {
	return n != 0 && n%4 == 0
}

type nopReader struct{}

func (nopReader) Read([]byte) (int, error) { return 0, errNoConsole }

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

var errNoConsole = fmt.Errorf("no console attached")
