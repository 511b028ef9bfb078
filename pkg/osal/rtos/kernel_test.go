// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtos

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/u-root/u-osal/config"
	"github.com/u-root/u-osal/pkg/osal"
	"github.com/u-root/u-osal/pkg/osal/osaltest"
)

func TestContract(t *testing.T) {
	osaltest.Run(t, osaltest.Backend{
		New: func(t *testing.T) *osal.OS {
			o, err := osal.New(New(nil, nil), nil)
			if err != nil {
				t.Fatalf("osal.New: %v", err)
			}
			return o
		},
		MaxTasks: config.DefaultConfig.MaxTasks,
	})
}

func startKernel(t *testing.T, cfg *config.Config, clk clock.Clock) *Kernel {
	t.Helper()
	k := New(cfg, clk)
	if err := k.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { k.Shutdown() })
	return k
}

// waitFor polls cond for up to a few seconds.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func (k *Kernel) waiting(l *waitList) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(*l)
}

func TestStartStop(t *testing.T) {
	k := New(nil, clock.NewFake())
	if err := k.Shutdown(); err == nil {
		t.Errorf("Expected Shutdown of an idle kernel to fail")
	}
	if err := k.Start(); err != nil {
		t.Fatal(err)
	}
	if err := k.Start(); err == nil {
		t.Errorf("Expected second Start to fail")
	}
	if err := k.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if err := k.Start(); err == nil {
		t.Errorf("Expected Start after Shutdown to fail")
	}
	v, _ := k.Version()
	if v.Name != Name || v.Major != VersionMajor {
		t.Errorf("Unexpected version %v", v)
	}
}

func TestUptime(t *testing.T) {
	clk := clock.NewFake()
	k := startKernel(t, nil, clk)
	clk.Add(1500 * time.Millisecond)
	if n := k.UptimeTicks(); n != 1500 {
		t.Errorf("Expected 1500 ticks, got %d", n)
	}
	if n := k.UptimeMs(); n != 1500 {
		t.Errorf("Expected 1500 ms, got %d", n)
	}
}

func TestSleepTruncatesToTicks(t *testing.T) {
	cfg := *config.DefaultConfig
	cfg.TickPeriod = 10 * time.Millisecond
	clk := clock.NewFake()
	k := startKernel(t, &cfg, clk)
	for _, tc := range []struct {
		ms   uint32
		want time.Duration
	}{
		{1, 10 * time.Millisecond},
		{10, 10 * time.Millisecond},
		{25, 20 * time.Millisecond},
	} {
		before := clk.Now()
		if err := k.SleepMs(tc.ms); err != nil {
			t.Fatal(err)
		}
		if d := clk.Since(before); d != tc.want {
			t.Errorf("SleepMs(%d) slept %v, want %v", tc.ms, d, tc.want)
		}
	}
	before := clk.Now()
	k.SleepTicks(3)
	if d := clk.Since(before); d != 30*time.Millisecond {
		t.Errorf("SleepTicks(3) slept %v", d)
	}
}

func TestTaskPool(t *testing.T) {
	cfg := *config.DefaultConfig
	cfg.MaxTasks = 2
	k := startKernel(t, &cfg, nil)
	park := osal.TaskSpec{Name: "park", StackBytes: 64, Entry: func(ctx context.Context) { <-ctx.Done() }}

	if _, err := k.NewTask(osal.TaskSpec{Name: "big", StackBytes: cfg.TaskMaxStackBytes + 4, Entry: park.Entry}); !errors.Is(err, osal.ErrParams) {
		t.Errorf("Expected oversized stack to fail with ErrParams, got %v", err)
	}
	a, err := k.NewTask(park)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := k.NewTask(park); err != nil {
		t.Fatal(err)
	}
	if _, err := k.NewTask(park); !errors.Is(err, osal.ErrOsImplementation) {
		t.Errorf("Expected exhausted pool to fail with ErrOsImplementation, got %v", err)
	}
	if n := k.pool.inUse(); n != 2 {
		t.Errorf("Expected 2 slots in use, got %d", n)
	}
	if err := a.Delete(); err != nil {
		t.Fatal(err)
	}
	if err := a.Delete(); !errors.Is(err, osal.ErrInvalidHandle) {
		t.Errorf("Expected second Delete to fail, got %v", err)
	}
	if err := a.Suspend(); !errors.Is(err, osal.ErrInvalidHandle) {
		t.Errorf("Expected Suspend of a deleted task to fail, got %v", err)
	}
	if n := k.pool.inUse(); n != 1 {
		t.Errorf("Expected Delete to free one slot, got %d in use", n)
	}
}

func TestDeleteCancelsTask(t *testing.T) {
	k := startKernel(t, nil, nil)
	done := make(chan struct{})
	tk, err := k.NewTask(osal.TaskSpec{Name: "t", StackBytes: 64, Entry: func(ctx context.Context) {
		<-ctx.Done()
		close(done)
	}})
	if err != nil {
		t.Fatal(err)
	}
	tk.Delete()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("Task context not cancelled by Delete")
	}
}

func TestSuspendedTaskHeldUntilResume(t *testing.T) {
	k := startKernel(t, nil, nil)
	ran := make(chan struct{})
	tk := &tcb{k: k, cancel: func() {}}
	if err := tk.Suspend(); err != nil {
		t.Fatal(err)
	}
	go tk.run(k.ctx, func(context.Context) { close(ran) })
	select {
	case <-ran:
		t.Fatalf("Suspended task ran")
	case <-time.After(50 * time.Millisecond):
	}
	if err := tk.Resume(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatalf("Resumed task never ran")
	}
}

func TestInterruptHandoff(t *testing.T) {
	k := startKernel(t, nil, nil)
	impl, _ := k.NewSemaphore(0, 1)
	s := impl.(*semaphore)

	if k.Raise(9) {
		t.Errorf("Expected Raise without a handler to be dropped")
	}
	if err := k.SetupInterrupt(9, func(ref any) { ref.(*semaphore).PostFromISR() }, s); err != nil {
		t.Fatal(err)
	}
	if k.Raise(9) {
		t.Errorf("Expected Raise of a disabled interrupt to be dropped")
	}
	if err := k.EnableInterrupt(9); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Pend(osal.WaitForever) }()
	waitFor(t, "the task to block", func() bool { return k.waiting(&s.waiters) == 1 })
	if !k.Raise(9) {
		t.Fatalf("Raise of an enabled interrupt dropped")
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("ISR post never woke the task")
	}
	if n := k.YieldRequests(); n != 1 {
		t.Errorf("Expected one yield request, got %d", n)
	}

	// Without a waiter the post only raises the count.
	if !k.Raise(9) {
		t.Fatalf("Raise dropped")
	}
	waitFor(t, "the count to rise", func() bool {
		k.mu.Lock()
		defer k.mu.Unlock()
		return s.count == 1
	})
	if n := k.YieldRequests(); n != 1 {
		t.Errorf("Expected no further yield request, got %d", n)
	}
}

func TestCriticalMasksInterrupts(t *testing.T) {
	k := startKernel(t, nil, nil)
	ran := make(chan struct{}, 1)
	k.SetupInterrupt(1, func(any) { ran <- struct{}{} }, nil)
	k.EnableInterrupt(1)

	k.EnterCritical()
	k.Raise(1)
	select {
	case <-ran:
		t.Fatalf("Handler ran inside a critical section")
	case <-time.After(50 * time.Millisecond):
	}
	k.ExitCritical()
	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatalf("Handler did not run after the critical section")
	}
}

func TestStartRetryAfterBadPriority(t *testing.T) {
	o, err := osal.New(New(nil, nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	entry := func(ctx context.Context, _ any) { <-ctx.Done() }
	if _, err := o.Start(false, entry, 4096, config.DefaultConfig.MaxPriority+1); !errors.Is(err, osal.ErrParams) {
		t.Fatalf("Expected ErrParams, got %v", err)
	}
	if _, err := o.Start(false, entry, 4096, 5); err != nil {
		t.Fatalf("Kernel unusable after a rejected Start: %v", err)
	}
	o.Shutdown()
}

func TestDeletedTaskKeepsPendingWait(t *testing.T) {
	k := startKernel(t, nil, nil)
	impl, _ := k.NewSemaphore(0, 1)
	s := impl.(*semaphore)
	took := make(chan error, 1)
	tk, err := k.NewTask(osal.TaskSpec{Name: "t", StackBytes: 64, Entry: func(ctx context.Context) {
		took <- s.Pend(osal.WaitForever)
	}})
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "task to block", func() bool { return k.waiting(&s.waiters) == 1 })
	if err := tk.Delete(); err != nil {
		t.Fatal(err)
	}
	if n := k.waiting(&s.waiters); n != 1 {
		t.Fatalf("Expected the deleted task to stay queued, %d waiters", n)
	}
	if err := s.Post(); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-took:
		if err != nil {
			t.Errorf("Deleted task's Pend: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Post did not reach the deleted task's wait")
	}
	if err := s.Pend(osal.NoWait); !errors.Is(err, osal.ErrOsImplementation) {
		t.Errorf("Expected the post to be consumed by the deleted task, got %v", err)
	}
}

func TestTimeoutRace(t *testing.T) {
	k := startKernel(t, nil, nil)
	impl, _ := k.NewSemaphore(0, 1)
	s := impl.(*semaphore)
	// A post landing around the expiry must never be lost: either the pend
	// gets it or the count holds it.
	for i := 0; i < 50; i++ {
		done := make(chan error, 1)
		go func() { done <- s.Pend(osal.Milliseconds(2)) }()
		time.Sleep(2 * time.Millisecond)
		s.Post()
		err := <-done
		k.mu.Lock()
		count := s.count
		k.mu.Unlock()
		switch {
		case err == nil && count != 0:
			t.Fatalf("Round %d: pend succeeded and count is %d", i, count)
		case err != nil && count != 1:
			t.Fatalf("Round %d: pend expired and count is %d", i, count)
		}
		if count == 1 {
			s.Pend(osal.NoWait)
		}
	}
}

func TestEventWaitersConsumeInOrder(t *testing.T) {
	k := startKernel(t, nil, nil)
	impl, _ := k.NewEventFlag()
	e := impl.(*eventGroup)
	first := make(chan error, 1)
	second := make(chan error, 1)
	go func() { first <- e.Pend(0x1, osal.WaitForever) }()
	waitFor(t, "first waiter", func() bool { return k.waiting(&e.waiters) == 1 })
	go func() { second <- e.Pend(0x1, osal.WaitForever) }()
	waitFor(t, "second waiter", func() bool { return k.waiting(&e.waiters) == 2 })

	e.Post(0x1 | 0x2)
	if err := <-first; err != nil {
		t.Fatal(err)
	}
	select {
	case <-second:
		t.Fatalf("One post satisfied two waiters")
	case <-time.After(50 * time.Millisecond):
	}
	k.mu.Lock()
	bits := e.bits
	k.mu.Unlock()
	if bits != 0x2 {
		t.Errorf("Expected only 0x2 left set, got %#x", bits)
	}
	e.PostFromISR(0x1)
	if err := <-second; err != nil {
		t.Fatal(err)
	}
	if n := k.YieldRequests(); n != 1 {
		t.Errorf("Expected one yield request, got %d", n)
	}
}

func TestHeap(t *testing.T) {
	cfg := *config.DefaultConfig
	cfg.HeapBytes = 100
	k := startKernel(t, &cfg, nil)
	a := k.Alloc(60)
	if len(a) != 60 {
		t.Fatalf("Alloc(60) = %d bytes", len(a))
	}
	if b := k.Alloc(50); b != nil {
		t.Errorf("Expected Alloc beyond the heap to fail")
	}
	if _, err := k.NewMailbox(10, 5); !errors.Is(err, osal.ErrInsufficientMemory) {
		t.Errorf("Expected mailbox beyond the heap to fail with ErrInsufficientMemory, got %v", err)
	}
	k.Free(a)
	k.Free(make([]byte, 4))
	if h := k.HeapStats(); h.Total != 100 || h.Free != 100 || h.MinEverFree != 40 {
		t.Errorf("Unexpected heap stats %+v", h)
	}
	mb, err := k.NewMailbox(10, 5)
	if err != nil {
		t.Fatal(err)
	}
	if h := k.HeapStats(); h.Free != 50 {
		t.Errorf("Expected the mailbox ring on the heap, %d free", h.Free)
	}
	mb.Destroy()
	if h := k.HeapStats(); h.Free != 100 {
		t.Errorf("Expected Destroy to return the ring, %d free", h.Free)
	}
}

func TestTimerServiceFakeClock(t *testing.T) {
	clk := clock.NewFake()
	k := startKernel(t, nil, clk)
	fired := make(chan struct{}, 10)
	impl, _ := k.NewTimer(osal.Periodic, func() { fired <- struct{}{} })
	tm := impl.(*swTimer)
	if err := tm.Start(100); err != nil {
		t.Fatal(err)
	}
	// The daemon arms its wakeup asynchronously, so keep moving time one
	// period at a time until the callbacks show up.
	got := 0
	for i := 0; got < 3 && i < 200; i++ {
		clk.Add(100 * time.Millisecond)
		select {
		case <-fired:
			got++
		case <-time.After(20 * time.Millisecond):
		}
	}
	if got < 3 {
		t.Fatalf("Periodic timer fired %d times", got)
	}
	if err := tm.Stop(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "the stop command", func() bool { return len(k.timers.cmds) == 0 })
}
