// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package posix is the thread based backend of the OSAL. Every task is a
// goroutine locked to its own OS thread and, where the process may, run
// under SCHED_FIFO.
//
// The backend keeps the platform's quirks: bounded waits shorter than
// PosixMinimumTimeout are raised to it, SleepMs rejects anything shorter
// than that minimum, task deletion only forgets the handle, suspend,
// resume and interrupts are unsupported.
package posix

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/jmhodges/clock"
	"github.com/spf13/afero"
	"github.com/u-root/u-osal/config"
	"github.com/u-root/u-osal/pkg/logger"
	"github.com/u-root/u-osal/pkg/osal"
	"go.uber.org/multierr"
)

var log = logger.LogContainer.GetSimpleLogger()

const (
	Name        = "Linux"
	versionFile = "/proc/version"
)

// Posix implements osal.Backend.
type Posix struct {
	cfg *config.Config
	clk clock.Clock
	fs  afero.Fs

	mu      sync.Mutex
	running bool
	startAt time.Time
	timers  map[*timer]struct{}
	minFree uint64

	ctx    context.Context
	cancel context.CancelFunc

	critical sync.Mutex
}

// New returns a backend that is not yet started. Nil arguments select
// config.DefaultConfig, the wall clock and the host file system.
func New(cfg *config.Config, clk clock.Clock, fs afero.Fs) *Posix {
	if cfg == nil {
		cfg = config.DefaultConfig
	}
	if clk == nil {
		clk = clock.New()
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Posix{
		cfg:    cfg,
		clk:    clk,
		fs:     fs,
		timers: make(map[*timer]struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (p *Posix) Name() string { return Name }

// Version parses the kernel release out of /proc/version, falling back to
// uname(2).
func (p *Posix) Version() (osal.Version, error) {
	v := osal.Version{Name: Name}
	b, err := afero.ReadFile(p.fs, versionFile)
	if err == nil {
		if _, err = fmt.Sscanf(string(b), "Linux version %d.%d.%d", &v.Major, &v.Minor, &v.Build); err == nil {
			return v, nil
		}
	}
	log.Debugf("Cannot parse %s (%v), asking uname", versionFile, err)
	if _, err := fmt.Sscanf(kernelRelease(), "%d.%d.%d", &v.Major, &v.Minor, &v.Build); err != nil {
		return osal.Version{}, fmt.Errorf("kernel release: %v", err)
	}
	return v, nil
}

func (p *Posix) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || p.ctx.Err() != nil {
		return fmt.Errorf("backend cannot be started twice")
	}
	p.running = true
	p.startAt = p.clk.Now()
	return nil
}

// Shutdown disarms every timer and cancels every task context.
func (p *Posix) Shutdown() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return fmt.Errorf("backend not running")
	}
	p.running = false
	timers := make([]*timer, 0, len(p.timers))
	for t := range p.timers {
		timers = append(timers, t)
	}
	p.mu.Unlock()

	var err error
	for _, t := range timers {
		err = multierr.Append(err, t.Destroy())
	}
	p.cancel()
	return err
}

func (p *Posix) UptimeTicks() uint64 {
	return uint64(p.since() / p.cfg.PosixTickPeriod)
}

func (p *Posix) UptimeMs() uint64 {
	return uint64(p.since() / time.Millisecond)
}

func (p *Posix) since() time.Duration {
	p.mu.Lock()
	at := p.startAt
	p.mu.Unlock()
	return p.clk.Since(at)
}

func (p *Posix) SleepTicks(n uint32) error {
	p.clk.Sleep(time.Duration(n) * p.cfg.PosixTickPeriod)
	return nil
}

// SleepMs refuses sleeps shorter than the minimum timeout.
func (p *Posix) SleepMs(ms uint32) error {
	d := time.Duration(ms) * time.Millisecond
	if d < p.cfg.PosixMinimumTimeout {
		return osal.ErrParams
	}
	p.clk.Sleep(d)
	return nil
}

func (p *Posix) EnterCritical() {
	p.critical.Lock()
}

func (p *Posix) ExitCritical() {
	p.critical.Unlock()
}

// Alloc takes memory from the Go heap, which never runs out short of the
// process dying.
func (p *Posix) Alloc(size int) []byte {
	return make([]byte, size)
}

func (p *Posix) Free(b []byte) {}

// HeapStats reports the runtime heap. The low water mark is the least
// idle heap seen by any call.
func (p *Posix) HeapStats() osal.HeapStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	free := ms.HeapIdle - ms.HeapReleased
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.minFree == 0 || free < p.minFree {
		p.minFree = free
	}
	return osal.HeapStats{Total: ms.HeapSys, Free: free, MinEverFree: p.minFree}
}

func (p *Posix) SetupInterrupt(id uint8, h osal.InterruptHandler, ref any) error {
	return osal.ErrInvalidHandle
}

func (p *Posix) EnableInterrupt(id uint8) error {
	return osal.ErrInvalidHandle
}

func (p *Posix) DisableInterrupt(id uint8) error {
	return osal.ErrInvalidHandle
}

// waitContext bounds a blocking call by t on the backend clock. The wait
// is raised to the minimum timeout first.
func (p *Posix) waitContext(t osal.Timeout) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(p.ctx)
	if t.Forever() {
		return ctx, cancel
	}
	tm := p.clk.NewTimer(t.Clamp(p.cfg.PosixMinimumTimeout))
	go func() {
		defer tm.Stop()
		select {
		case <-tm.C:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
