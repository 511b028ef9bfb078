// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package posix

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/spf13/afero"
	"github.com/u-root/u-osal/config"
	"github.com/u-root/u-osal/pkg/osal"
	"github.com/u-root/u-osal/pkg/osal/osaltest"
)

func TestContract(t *testing.T) {
	if testing.Short() {
		t.Skip("timed waits take a second each on this backend")
	}
	osaltest.Run(t, osaltest.Backend{
		New: func(t *testing.T) *osal.OS {
			o, err := osal.New(New(nil, nil, nil), nil)
			if err != nil {
				t.Fatalf("osal.New: %v", err)
			}
			return o
		},
		MinTimeout: config.DefaultConfig.PosixMinimumTimeout,
	})
}

func startPosix(t *testing.T, clk clock.Clock, fs afero.Fs) *Posix {
	t.Helper()
	p := New(nil, clk, fs)
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { p.Shutdown() })
	return p
}

// advance moves clk forward in steps until done reports true and returns
// how far it went.
func advance(t *testing.T, clk clock.FakeClock, step time.Duration, done func() bool) time.Duration {
	t.Helper()
	var total time.Duration
	deadline := time.Now().Add(3 * time.Second)
	for !done() {
		if time.Now().After(deadline) {
			t.Fatalf("Gave up after advancing the clock %v", total)
		}
		clk.Add(step)
		total += step
		time.Sleep(time.Millisecond)
	}
	return total
}

func TestVersion(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, versionFile, []byte("Linux version 6.1.15-u-bmc (root@build) (gcc 12.2.0) #1 SMP\n"), 0o444); err != nil {
		t.Fatal(err)
	}
	v, err := New(nil, clock.NewFake(), fs).Version()
	if err != nil {
		t.Fatal(err)
	}
	if v != (osal.Version{Name: Name, Major: 6, Minor: 1, Build: 15}) {
		t.Errorf("Unexpected version %v", v)
	}
}

func TestVersionFallsBackToUname(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("uname fallback is linux only")
	}
	v, err := New(nil, clock.NewFake(), afero.NewMemMapFs()).Version()
	if err != nil {
		t.Fatal(err)
	}
	if v.Name != Name || v.Major == 0 {
		t.Errorf("Unexpected version %v", v)
	}
}

func TestStartStop(t *testing.T) {
	p := New(nil, clock.NewFake(), afero.NewMemMapFs())
	if err := p.Shutdown(); err == nil {
		t.Errorf("Expected Shutdown of an idle backend to fail")
	}
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	if err := p.Start(); err == nil {
		t.Errorf("Expected second Start to fail")
	}
	if err := p.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if err := p.Start(); err == nil {
		t.Errorf("Expected Start after Shutdown to fail")
	}
}

func TestSleepMsMinimum(t *testing.T) {
	clk := clock.NewFake()
	p := startPosix(t, clk, afero.NewMemMapFs())
	if err := p.SleepMs(500); !errors.Is(err, osal.ErrParams) {
		t.Errorf("SleepMs(500): expected ErrParams, got %v", err)
	}
	if err := p.SleepMs(1000); err != nil {
		t.Fatal(err)
	}
	if ms := p.UptimeMs(); ms != 1000 {
		t.Errorf("Expected 1000ms uptime, got %d", ms)
	}
	if ticks := p.UptimeTicks(); ticks != 100 {
		t.Errorf("Expected 100 ticks of 10ms, got %d", ticks)
	}
}

func TestTimedWaitRaisedToMinimum(t *testing.T) {
	clk := clock.NewFake()
	p := startPosix(t, clk, afero.NewMemMapFs())
	s, _ := p.NewSemaphore(0, 1)
	var done atomic.Bool
	var err error
	go func() {
		err = s.Pend(osal.Milliseconds(10))
		done.Store(true)
	}()
	waited := advance(t, clk, 100*time.Millisecond, done.Load)
	if !errors.Is(err, osal.ErrOsImplementation) {
		t.Errorf("Expected expiry to be ErrOsImplementation, got %v", err)
	}
	if waited < time.Second {
		t.Errorf("10ms wait expired after only %v", waited)
	}
}

func TestSemaphoreMax(t *testing.T) {
	p := startPosix(t, clock.NewFake(), afero.NewMemMapFs())
	s, _ := p.NewSemaphore(1, 1)
	if err := s.PostFromISR(); !errors.Is(err, osal.ErrOsImplementation) {
		t.Errorf("Post at max: expected ErrOsImplementation, got %v", err)
	}
	if err := s.Pend(osal.NoWait); err != nil {
		t.Fatal(err)
	}
	if err := s.PostFromISR(); err != nil {
		t.Errorf("Post below max: %v", err)
	}
}

func TestTasksCannotSuspend(t *testing.T) {
	p := startPosix(t, clock.NewFake(), afero.NewMemMapFs())
	ran := make(chan struct{})
	tk, err := p.NewTask(osal.TaskSpec{Name: "t", Entry: func(context.Context) { close(ran) }, StackBytes: 64, Priority: 1})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatalf("Task never ran")
	}
	if err := tk.Suspend(); !errors.Is(err, osal.ErrOsImplementation) {
		t.Errorf("Suspend: expected ErrOsImplementation, got %v", err)
	}
	if err := tk.Resume(); !errors.Is(err, osal.ErrOsImplementation) {
		t.Errorf("Resume: expected ErrOsImplementation, got %v", err)
	}
	if err := tk.Delete(); err != nil {
		t.Errorf("Delete: %v", err)
	}
}

func TestInterruptsUnsupported(t *testing.T) {
	p := startPosix(t, clock.NewFake(), afero.NewMemMapFs())
	if err := p.SetupInterrupt(3, func(any) {}, nil); !errors.Is(err, osal.ErrInvalidHandle) {
		t.Errorf("SetupInterrupt: expected ErrInvalidHandle, got %v", err)
	}
	if err := p.EnableInterrupt(3); !errors.Is(err, osal.ErrInvalidHandle) {
		t.Errorf("EnableInterrupt: expected ErrInvalidHandle, got %v", err)
	}
	if err := p.DisableInterrupt(3); !errors.Is(err, osal.ErrInvalidHandle) {
		t.Errorf("DisableInterrupt: expected ErrInvalidHandle, got %v", err)
	}
}

func TestTimerOffset(t *testing.T) {
	clk := clock.NewFake()
	p := startPosix(t, clk, afero.NewMemMapFs())
	var fired atomic.Int32
	tm, _ := p.NewTimer(osal.OneShot, func() { fired.Add(1) })
	if err := tm.Start(4); !errors.Is(err, osal.ErrParams) {
		t.Errorf("Start(4): expected ErrParams, got %v", err)
	}
	if err := tm.Start(100); err != nil {
		t.Fatal(err)
	}
	waited := advance(t, clk, 5*time.Millisecond, func() bool { return fired.Load() == 1 })
	if waited < 95*time.Millisecond {
		t.Errorf("100ms one-shot fired after %v", waited)
	}
	clk.Add(time.Second)
	time.Sleep(10 * time.Millisecond)
	if n := fired.Load(); n != 1 {
		t.Errorf("One-shot fired %d times", n)
	}
}

func TestPeriodicTimerKeepsOffsetInterval(t *testing.T) {
	clk := clock.NewFake()
	p := startPosix(t, clk, afero.NewMemMapFs())
	var fired atomic.Int32
	tm, _ := p.NewTimer(osal.Periodic, func() { fired.Add(1) })
	if err := tm.Start(20); err != nil {
		t.Fatal(err)
	}
	// Three expiries 15ms apart. A 20ms interval after the first would need
	// 55ms.
	waited := advance(t, clk, time.Millisecond, func() bool { return fired.Load() >= 3 })
	if waited < 45*time.Millisecond || waited >= 55*time.Millisecond {
		t.Errorf("Three expiries of a 20ms timer took %v, expected 45ms", waited)
	}
	if err := tm.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestShutdownDestroysTimers(t *testing.T) {
	p := New(nil, clock.NewFake(), afero.NewMemMapFs())
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		tm, _ := p.NewTimer(osal.Periodic, func() {})
		if err := tm.Start(50); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if n := len(p.timers); n != 0 {
		t.Errorf("Expected no timers after Shutdown, %d left", n)
	}
}
