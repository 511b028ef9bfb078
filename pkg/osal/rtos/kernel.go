// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rtos is the real-time backend of the OSAL: a tick driven kernel
// with a static task pool, native wait queues, ring buffer queues, event
// groups, a timer service task, an interrupt controller and a bounded heap.
//
// Tasks are goroutines. The kernel cannot preempt them, so priorities are
// recorded but do not order execution, and waiters are woken in the order
// they started waiting.
//
// Deleting a task cancels its context but cannot stop its goroutine. A task
// blocked on a kernel object stays queued after Delete and may still be
// handed a post, so task bodies must watch ctx and leave once it is done.
package rtos

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmhodges/clock"
	"github.com/u-root/u-osal/config"
	"github.com/u-root/u-osal/pkg/logger"
	"github.com/u-root/u-osal/pkg/osal"
)

var log = logger.LogContainer.GetSimpleLogger()

const (
	Name = "RTOS"

	VersionMajor = 1
	VersionMinor = 2
	VersionBuild = 0
)

// Kernel implements osal.Backend.
type Kernel struct {
	cfg *config.Config
	clk clock.Clock

	// mu guards every kernel object: counts, queues and wait lists.
	mu      sync.Mutex
	running bool
	stopped bool
	startAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	pool   *taskPool
	heap   *memHeap
	timers *timerService
	irq    *intController

	// critical masks interrupts: the ISR goroutine holds it while a handler
	// runs.
	critical sync.Mutex
	yields   atomic.Uint64
}

// New returns a kernel that is not yet scheduling. A nil cfg means
// config.DefaultConfig and a nil clk the wall clock.
func New(cfg *config.Config, clk clock.Clock) *Kernel {
	if cfg == nil {
		cfg = config.DefaultConfig
	}
	if clk == nil {
		clk = clock.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	k := &Kernel{
		cfg:    cfg,
		clk:    clk,
		ctx:    ctx,
		cancel: cancel,
		pool:   newTaskPool(cfg.MaxTasks),
		heap:   newMemHeap(cfg.HeapBytes),
	}
	k.timers = newTimerService(k)
	k.irq = newIntController(k, cfg.MaxInterrupts)
	return k
}

func (k *Kernel) Name() string { return Name }

func (k *Kernel) Version() (osal.Version, error) {
	return osal.Version{Name: Name, Major: VersionMajor, Minor: VersionMinor, Build: VersionBuild}, nil
}

// Start launches the timer service and the interrupt dispatcher. A kernel
// can only be started once.
func (k *Kernel) Start() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.running || k.stopped {
		return fmt.Errorf("kernel cannot be started twice")
	}
	k.running = true
	k.startAt = k.clk.Now()
	k.wg.Add(2)
	go func() {
		defer k.wg.Done()
		k.timers.run(k.ctx)
	}()
	go func() {
		defer k.wg.Done()
		k.irq.run(k.ctx)
	}()
	log.Debugf("Kernel started with %d task slots and a %d byte heap", k.cfg.MaxTasks, k.cfg.HeapBytes)
	return nil
}

// Shutdown cancels every task context, fails every pending wait and stops
// the service goroutines.
func (k *Kernel) Shutdown() error {
	k.mu.Lock()
	if !k.running {
		k.mu.Unlock()
		return fmt.Errorf("kernel not running")
	}
	k.running = false
	k.stopped = true
	k.mu.Unlock()

	k.cancel()
	k.wg.Wait()
	if n := k.pool.inUse(); n > 0 {
		log.Debugf("Kernel stopped with %d task slots in use", n)
	}
	return nil
}

func (k *Kernel) UptimeTicks() uint64 {
	return uint64(k.since() / k.cfg.TickPeriod)
}

func (k *Kernel) UptimeMs() uint64 {
	return uint64(k.since() / time.Millisecond)
}

func (k *Kernel) since() time.Duration {
	k.mu.Lock()
	at := k.startAt
	k.mu.Unlock()
	return k.clk.Since(at)
}

func (k *Kernel) SleepTicks(n uint32) error {
	k.clk.Sleep(time.Duration(n) * k.cfg.TickPeriod)
	return nil
}

// SleepMs sleeps for ms converted to whole ticks, truncating. A sleep
// shorter than one tick still lasts one tick.
func (k *Kernel) SleepMs(ms uint32) error {
	return k.SleepTicks(uint32(osal.Milliseconds(ms).Ticks(k.cfg.TickPeriod)))
}

func (k *Kernel) EnterCritical() {
	k.critical.Lock()
}

func (k *Kernel) ExitCritical() {
	k.critical.Unlock()
}

// YieldRequests counts the context switches requested by FromISR calls
// that woke a waiting task.
func (k *Kernel) YieldRequests() uint64 {
	return k.yields.Load()
}

func (k *Kernel) yieldFromISR() {
	k.yields.Add(1)
}

// waitTime converts a bounded timeout to the tick aligned duration the
// kernel waits for.
func (k *Kernel) waitTime(t osal.Timeout) time.Duration {
	return time.Duration(t.Ticks(k.cfg.TickPeriod)) * k.cfg.TickPeriod
}
