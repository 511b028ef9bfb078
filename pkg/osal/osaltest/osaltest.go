// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package osaltest holds the behaviour every OSAL backend has to show.
// Backend packages call Run from their tests.
package osaltest

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/u-root/u-osal/pkg/osal"
)

// Backend describes the backend under test.
type Backend struct {
	// New returns a fresh context that has not been started.
	New func(t *testing.T) *osal.OS
	// MinTimeout is the shortest bounded wait the backend performs.
	MinTimeout time.Duration
	// MaxTasks is the size of the static task pool, or zero when task
	// creation is not pooled.
	MaxTasks int
}

// slack absorbs scheduling noise on loaded test machines.
const slack = 2 * time.Second

func start(t *testing.T, b Backend) *osal.OS {
	t.Helper()
	o := b.New(t)
	running := make(chan struct{})
	if _, err := o.Start(false, func(ctx context.Context, _ any) {
		close(running)
		<-ctx.Done()
	}, 4096, 5); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-running:
	case <-time.After(slack):
		t.Fatalf("Main task did not run")
	}
	t.Cleanup(func() {
		if err := o.Shutdown(); err != nil {
			t.Logf("Shutdown: %v", err)
		}
	})
	return o
}

// Run runs the whole suite against b.
func Run(t *testing.T, b Backend) {
	for _, tc := range []struct {
		name string
		fn   func(*testing.T, Backend)
	}{
		{"NotStarted", testNotStarted},
		{"NullDestroy", testNullDestroy},
		{"SemaphoreScenario", testSemaphoreScenario},
		{"TimeoutBounds", testTimeoutBounds},
		{"WaitForever", testWaitForever},
		{"MutexRelease", testMutexRelease},
		{"MutualExclusion", testMutualExclusion},
		{"MailboxFIFO", testMailboxFIFO},
		{"MailboxCapacity", testMailboxCapacity},
		{"MailboxBlocking", testMailboxBlocking},
		{"EventFlagLaw", testEventFlagLaw},
		{"EventFlagWake", testEventFlagWake},
		{"Timers", testTimers},
		{"ClearAll", testClearAll},
		{"TaskParams", testTaskParams},
		{"TaskPool", testTaskPool},
		{"Uptime", testUptime},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) { tc.fn(t, b) })
	}
}

func testNotStarted(t *testing.T, b Backend) {
	o := b.New(t)
	if _, err := o.CreateSemaphore(0, 1, "early"); !errors.Is(err, osal.ErrOsNotStarted) {
		t.Errorf("Expected ErrOsNotStarted, got %v", err)
	}
	if err := o.SleepTicks(1); !errors.Is(err, osal.ErrOsNotStarted) {
		t.Errorf("Expected ErrOsNotStarted, got %v", err)
	}
}

func testNullDestroy(t *testing.T, b Backend) {
	o := start(t, b)

	var m osal.Mutex
	var s osal.Semaphore
	var mb osal.Mailbox
	var ev osal.EventFlag
	var tm osal.Timer
	var tk osal.Task
	for name, destroy := range map[string]func() error{
		"mutex":     m.Destroy,
		"semaphore": s.Destroy,
		"mailbox":   mb.Destroy,
		"event":     ev.Destroy,
		"timer":     tm.Destroy,
		"task":      tk.Delete,
	} {
		if err := destroy(); !errors.Is(err, osal.ErrInvalidHandle) {
			t.Errorf("Destroy of null %s: expected ErrInvalidHandle, got %v", name, err)
		}
	}

	var err error
	if m, err = o.CreateMutex("m"); err != nil {
		t.Fatal(err)
	}
	if s, err = o.CreateSemaphore(0, 1, "s"); err != nil {
		t.Fatal(err)
	}
	if mb, err = o.CreateMailbox(2, 8, "mb"); err != nil {
		t.Fatal(err)
	}
	if ev, err = o.CreateEventFlag("ev"); err != nil {
		t.Fatal(err)
	}
	if tm, err = o.CreateTimer(osal.OneShot, func(osal.Timer) {}, "tm"); err != nil {
		t.Fatal(err)
	}
	if tk, err = o.CreateTask(func(ctx context.Context, _ any) { <-ctx.Done() }, 1024, nil, 3, "tk"); err != nil {
		t.Fatal(err)
	}
	for name, destroy := range map[string]func() error{
		"mutex":     m.Destroy,
		"semaphore": s.Destroy,
		"mailbox":   mb.Destroy,
		"event":     ev.Destroy,
		"timer":     tm.Destroy,
		"task":      tk.Delete,
	} {
		if err := destroy(); err != nil {
			t.Errorf("Destroy of live %s: %v", name, err)
		}
		if err := destroy(); !errors.Is(err, osal.ErrInvalidHandle) {
			t.Errorf("Second destroy of %s: expected ErrInvalidHandle, got %v", name, err)
		}
	}
	if !m.IsNil() || !s.IsNil() || !mb.IsNil() || !ev.IsNil() || !tm.IsNil() || !tk.IsNil() {
		t.Errorf("Expected every destroyed handle to be null")
	}
	for _, k := range []osal.Kind{osal.KindMutex, osal.KindSemaphore, osal.KindMailbox, osal.KindEvent, osal.KindTimer} {
		entries := o.Registry().Entries(k)
		if len(entries) != 1 || entries[0].Status != osal.Deleted {
			t.Errorf("Expected one Deleted %v entry, got %+v", k, entries)
		}
	}
}

func testSemaphoreScenario(t *testing.T, b Backend) {
	o := start(t, b)
	s, err := o.CreateSemaphore(0, 1, "binary")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Pend(osal.NoWait); osal.CodeOf(err) != osal.OsImplementation {
		t.Errorf("Pend on empty semaphore: expected OsImplementation, got %v", err)
	}
	if err := s.Post(); err != nil {
		t.Errorf("Post: %v", err)
	}
	if err := s.Pend(osal.NoWait); err != nil {
		t.Errorf("Pend after Post: %v", err)
	}

	c, err := o.CreateSemaphore(2, 3, "counting")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Post(); err != nil {
		t.Errorf("Post below max: %v", err)
	}
	if err := c.Post(); osal.CodeOf(err) != osal.OsImplementation {
		t.Errorf("Post at max: expected OsImplementation, got %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := c.Pend(osal.NoWait); err != nil {
			t.Errorf("Pend %d: %v", i, err)
		}
	}
	if err := c.Pend(osal.NoWait); osal.CodeOf(err) != osal.OsImplementation {
		t.Errorf("Pend on drained semaphore: expected OsImplementation, got %v", err)
	}
	e, _ := o.Registry().FindByHandle(osal.KindSemaphore, c)
	if e.PostCount != 1 || e.PendCount != 3 {
		t.Errorf("Expected 1 post and 3 pends recorded, got %+v", e)
	}
}

func testTimeoutBounds(t *testing.T, b Backend) {
	o := start(t, b)
	s, err := o.CreateSemaphore(0, 1, "never posted")
	if err != nil {
		t.Fatal(err)
	}
	m, err := o.CreateMutex("held")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Take(osal.NoWait); err != nil {
		t.Fatal(err)
	}

	began := time.Now()
	if err := s.Pend(osal.NoWait); osal.CodeOf(err) != osal.OsImplementation {
		t.Errorf("Pend(NoWait): expected OsImplementation, got %v", err)
	}
	if err := m.Take(osal.NoWait); osal.CodeOf(err) != osal.OsImplementation {
		t.Errorf("Take(NoWait) of a held mutex: expected OsImplementation, got %v", err)
	}
	if d := time.Since(began); d > slack {
		t.Errorf("NoWait calls blocked for %v", d)
	}

	want := 20 * time.Millisecond
	if b.MinTimeout > want {
		want = b.MinTimeout
	}
	for name, wait := range map[string]func(osal.Timeout) error{
		"Semaphore.Pend": s.Pend,
		"Mutex.Take":     m.Take,
	} {
		began := time.Now()
		err := wait(osal.Milliseconds(20))
		d := time.Since(began)
		if osal.CodeOf(err) != osal.OsImplementation {
			t.Errorf("%s: expected expiry to be OsImplementation, got %v", name, err)
		}
		if d < want {
			t.Errorf("%s: returned after %v, expected at least %v", name, d, want)
		}
		if d > want+slack {
			t.Errorf("%s: returned after %v, expected at most %v", name, d, want+slack)
		}
	}
}

func testWaitForever(t *testing.T, b Backend) {
	o := start(t, b)
	s, err := o.CreateSemaphore(0, 1, "handoff")
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	if _, err := o.CreateTask(func(context.Context, any) {
		done <- s.Pend(osal.WaitForever)
	}, 1024, nil, 4, "waiter"); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		t.Fatalf("Pend(WaitForever) returned %v before any Post", err)
	case <-time.After(50 * time.Millisecond):
	}
	if err := s.Post(); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Pend(WaitForever): %v", err)
		}
	case <-time.After(slack):
		t.Fatalf("Pend(WaitForever) not woken by Post")
	}
}

func testMutexRelease(t *testing.T, b Backend) {
	o := start(t, b)
	m, err := o.CreateMutex("m")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Release(); osal.CodeOf(err) != osal.OsImplementation {
		t.Errorf("Release of a free mutex: expected OsImplementation, got %v", err)
	}
	if err := m.Take(osal.WaitForever); err != nil {
		t.Fatal(err)
	}
	if err := m.Release(); err != nil {
		t.Fatal(err)
	}
	e, _ := o.Registry().FindByHandle(osal.KindMutex, m)
	if e.TakeCount != 1 || e.ReleaseCount != 1 {
		t.Errorf("Expected 1 take and 1 release recorded, got %+v", e)
	}
}

func testMutualExclusion(t *testing.T, b Backend) {
	o := start(t, b)
	m, err := o.CreateMutex("shared")
	if err != nil {
		t.Fatal(err)
	}
	const workers, rounds = 4, 200
	var inside, overlaps int32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		if _, err := o.CreateTask(func(context.Context, any) {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				if err := m.Take(osal.WaitForever); err != nil {
					t.Errorf("Take: %v", err)
					return
				}
				if atomic.AddInt32(&inside, 1) != 1 {
					atomic.AddInt32(&overlaps, 1)
				}
				atomic.AddInt32(&inside, -1)
				if err := m.Release(); err != nil {
					t.Errorf("Release: %v", err)
					return
				}
			}
		}, 1024, nil, 4, "worker"); err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()
	if overlaps != 0 {
		t.Errorf("Two holders inside the mutex %d times", overlaps)
	}
	e, _ := o.Registry().FindByHandle(osal.KindMutex, m)
	if e.TakeCount != workers*rounds || e.ReleaseCount != workers*rounds {
		t.Errorf("Expected %d takes and releases, got %+v", workers*rounds, e)
	}
}

func testMailboxFIFO(t *testing.T, b Backend) {
	o := start(t, b)
	mb, err := o.CreateMailbox(3, 4, "fifo")
	if err != nil {
		t.Fatal(err)
	}
	items := [][]byte{[]byte("aaaa"), []byte("bbbb"), []byte("cccc")}
	for _, item := range items {
		if err := mb.Post(item, osal.NoWait); err != nil {
			t.Fatal(err)
		}
	}
	buf := make([]byte, 4)
	for _, want := range items {
		if err := mb.Pend(buf, osal.NoWait); err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(buf, want) {
			t.Errorf("Expected %q, got %q", want, buf)
		}
	}
	if err := mb.Pend(buf, osal.NoWait); osal.CodeOf(err) != osal.OsImplementation {
		t.Errorf("Pend on empty mailbox: expected OsImplementation, got %v", err)
	}
}

func testMailboxCapacity(t *testing.T, b Backend) {
	o := start(t, b)
	const n = 4
	mb, err := o.CreateMailbox(n, 1, "bounded")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		if err := mb.Post([]byte{byte(i)}, osal.NoWait); err != nil {
			t.Fatalf("Post %d of %d: %v", i+1, n, err)
		}
	}
	if err := mb.Post([]byte{n}, osal.NoWait); osal.CodeOf(err) != osal.OsImplementation {
		t.Errorf("Post beyond capacity: expected OsImplementation, got %v", err)
	}
	if err := mb.PostFromISR([]byte{n}); osal.CodeOf(err) != osal.OsImplementation {
		t.Errorf("PostFromISR beyond capacity: expected OsImplementation, got %v", err)
	}
	buf := make([]byte, 1)
	if err := mb.Pend(buf, osal.NoWait); err != nil {
		t.Fatal(err)
	}
	if err := mb.Post([]byte{n}, osal.NoWait); err != nil {
		t.Errorf("Post after one Pend: %v", err)
	}
	if err := mb.Post([]byte{n + 1}, osal.NoWait); osal.CodeOf(err) != osal.OsImplementation {
		t.Errorf("Second Post after one Pend: expected OsImplementation, got %v", err)
	}
	e, _ := o.Registry().FindByHandle(osal.KindMailbox, mb)
	if e.ItemCount != n || e.TxCount != n+1 || e.RxCount != 1 {
		t.Errorf("Unexpected mailbox ledger %+v", e)
	}
}

func testMailboxBlocking(t *testing.T, b Backend) {
	o := start(t, b)
	mb, err := o.CreateMailbox(1, 2, "handoff")
	if err != nil {
		t.Fatal(err)
	}
	got := make(chan []byte, 1)
	if _, err := o.CreateTask(func(context.Context, any) {
		buf := make([]byte, 2)
		if err := mb.Pend(buf, osal.WaitForever); err != nil {
			t.Errorf("Pend: %v", err)
		}
		got <- buf
	}, 1024, nil, 4, "consumer"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := mb.Post([]byte{7, 8}, osal.WaitForever); err != nil {
		t.Fatal(err)
	}
	select {
	case buf := <-got:
		if !bytes.Equal(buf, []byte{7, 8}) {
			t.Errorf("Expected 0708, got %x", buf)
		}
	case <-time.After(slack):
		t.Fatalf("Blocked consumer never received the item")
	}

	// A full mailbox holds a blocked producer until a consumer makes room.
	if err := mb.Post([]byte{1, 1}, osal.NoWait); err != nil {
		t.Fatal(err)
	}
	posted := make(chan error, 1)
	go func() { posted <- mb.Post([]byte{2, 2}, osal.WaitForever) }()
	select {
	case err := <-posted:
		t.Fatalf("Post into a full mailbox returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	buf := make([]byte, 2)
	if err := mb.Pend(buf, osal.NoWait); err != nil || buf[0] != 1 {
		t.Fatalf("Pend: %x, %v", buf, err)
	}
	select {
	case err := <-posted:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(slack):
		t.Fatalf("Blocked producer never completed")
	}
	if err := mb.Pend(buf, osal.NoWait); err != nil || buf[0] != 2 {
		t.Errorf("Expected the blocked producer's item, got %x, %v", buf, err)
	}
}

func testEventFlagLaw(t *testing.T, b Backend) {
	o := start(t, b)
	ev, err := o.CreateEventFlag("law")
	if err != nil {
		t.Fatal(err)
	}
	if err := ev.Post(0x1); err != nil {
		t.Fatal(err)
	}
	if err := ev.Pend(0x3, osal.NoWait); osal.CodeOf(err) != osal.OsImplementation {
		t.Errorf("Pend with half the mask set: expected OsImplementation, got %v", err)
	}
	if err := ev.PostFromISR(0x2 | 0x8); err != nil {
		t.Fatal(err)
	}
	if err := ev.Pend(0x3, osal.NoWait); err != nil {
		t.Errorf("Pend with the full mask set: %v", err)
	}
	if err := ev.Pend(0x1, osal.NoWait); osal.CodeOf(err) != osal.OsImplementation {
		t.Errorf("Expected satisfied bits to be cleared, got %v", err)
	}
	if err := ev.Pend(0x8, osal.NoWait); err != nil {
		t.Errorf("Expected unrelated bit to survive, got %v", err)
	}
}

func testEventFlagWake(t *testing.T, b Backend) {
	o := start(t, b)
	ev, err := o.CreateEventFlag("wake")
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	if _, err := o.CreateTask(func(context.Context, any) {
		done <- ev.Pend(0x5, osal.WaitForever)
	}, 1024, nil, 4, "flag waiter"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := ev.Post(0x1); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		t.Fatalf("Pend returned on a partial mask: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	if err := ev.Post(0x4); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Pend: %v", err)
		}
	case <-time.After(slack):
		t.Fatalf("Waiter not woken once every bit was set")
	}
	if err := ev.Pend(0x1, osal.NoWait); osal.CodeOf(err) != osal.OsImplementation {
		t.Errorf("Expected the waiter to have cleared its bits, got %v", err)
	}
}

func testTimers(t *testing.T, b Backend) {
	o := start(t, b)
	var oneShots, periodics int32
	fired := make(chan struct{}, 1)
	one, err := o.CreateTimer(osal.OneShot, func(osal.Timer) {
		atomic.AddInt32(&oneShots, 1)
		select {
		case fired <- struct{}{}:
		default:
		}
	}, "one-shot")
	if err != nil {
		t.Fatal(err)
	}
	per, err := o.CreateTimer(osal.Periodic, func(osal.Timer) { atomic.AddInt32(&periodics, 1) }, "periodic")
	if err != nil {
		t.Fatal(err)
	}

	if err := one.Start(20); err != nil {
		t.Fatal(err)
	}
	select {
	case <-fired:
	case <-time.After(slack):
		t.Fatalf("One-shot timer never fired")
	}
	time.Sleep(100 * time.Millisecond)
	if n := atomic.LoadInt32(&oneShots); n != 1 {
		t.Errorf("One-shot timer fired %d times", n)
	}

	if err := per.Start(20); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(slack)
	for atomic.LoadInt32(&periodics) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := atomic.LoadInt32(&periodics); n < 3 {
		t.Fatalf("Periodic timer fired %d times, expected at least 3", n)
	}
	if err := per.Stop(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	stopped := atomic.LoadInt32(&periodics)
	time.Sleep(100 * time.Millisecond)
	if n := atomic.LoadInt32(&periodics); n != stopped {
		t.Errorf("Periodic timer kept firing after Stop: %d then %d", stopped, n)
	}

	e, _ := o.Registry().FindByHandle(osal.KindTimer, per)
	if e.RunCount != 1 || e.DurationMs != 20 || e.TimerKind != osal.Periodic {
		t.Errorf("Unexpected timer ledger %+v", e)
	}
	if err := per.Destroy(); err != nil {
		t.Errorf("Destroy: %v", err)
	}
}

func testClearAll(t *testing.T, b Backend) {
	o := start(t, b)
	s, err := o.CreateSemaphore(1, 1, "s")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Pend(osal.NoWait); err != nil {
		t.Fatal(err)
	}
	if _, err := o.CreateMailbox(1, 1, "mb"); err != nil {
		t.Fatal(err)
	}
	mem := o.Alloc(32)
	o.Free(&mem)

	for i := 0; i < 2; i++ {
		o.ClearAllStats()
		for _, k := range []osal.Kind{osal.KindTask, osal.KindMutex, osal.KindSemaphore, osal.KindMailbox, osal.KindEvent, osal.KindTimer} {
			if n := len(o.Registry().Entries(k)); n != 0 {
				t.Errorf("Clear %d: %v ledger still holds %d entries", i, k, n)
			}
		}
		if a, f := o.Registry().MemoryCalls(); a != 0 || f != 0 {
			t.Errorf("Clear %d: memory counters %d/%d", i, a, f)
		}
		if err := o.PrintAll(osal.CountOnly, osal.KindAll); err != nil {
			t.Errorf("PrintAll after clear: %v", err)
		}
	}
	if err := s.Post(); err != nil {
		t.Errorf("Semaphore unusable after ClearAll: %v", err)
	}
}

func testTaskParams(t *testing.T, b Backend) {
	o := start(t, b)
	entry := func(context.Context, any) {}
	for name, stack := range map[string]uint32{"zero": 0, "misaligned": 1025} {
		if _, err := o.CreateTask(entry, stack, nil, 1, "bad stack"); !errors.Is(err, osal.ErrParams) {
			t.Errorf("%s stack: expected ErrParams, got %v", name, err)
		}
	}
	if _, err := o.CreateTask(entry, 1024, nil, 1, ""); !errors.Is(err, osal.ErrParams) {
		t.Errorf("Unnamed task: expected ErrParams, got %v", err)
	}
	if err := o.SleepMs(0); !errors.Is(err, osal.ErrParams) {
		t.Errorf("SleepMs(0): expected ErrParams, got %v", err)
	}
	if err := o.SleepTicks(1); err != nil {
		t.Errorf("SleepTicks(1): %v", err)
	}
}

func testTaskPool(t *testing.T, b Backend) {
	if b.MaxTasks == 0 {
		t.Skip("backend does not pool tasks")
	}
	o := start(t, b)
	park := func(ctx context.Context, _ any) { <-ctx.Done() }
	var tasks []osal.Task
	// The main task holds one slot already.
	for i := 1; i < b.MaxTasks; i++ {
		tk, err := o.CreateTask(park, 1024, nil, 2, "pooled")
		if err != nil {
			t.Fatalf("Task %d of %d: %v", i+1, b.MaxTasks, err)
		}
		tasks = append(tasks, tk)
	}
	_, err := o.CreateTask(park, 1024, nil, 2, "one too many")
	if c := osal.CodeOf(err); c != osal.OsImplementation && c != osal.InsufficientMemory {
		t.Fatalf("Expected exhaustion to fail, got %v", err)
	}
	if err := tasks[0].Delete(); err != nil {
		t.Fatal(err)
	}
	if _, err := o.CreateTask(park, 1024, nil, 2, "reuses slot"); err != nil {
		t.Errorf("Expected the freed slot to be reusable, got %v", err)
	}
	if _, err := o.CreateTask(park, 1024, nil, 2, "still too many"); err == nil {
		t.Errorf("Expected Delete to free exactly one slot")
	}
}

func testUptime(t *testing.T, b Backend) {
	o := start(t, b)
	a, err := o.UptimeMs()
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	z, err := o.UptimeMs()
	if err != nil {
		t.Fatal(err)
	}
	if z < a+20 {
		t.Errorf("Uptime moved from %d to %d ms over 30ms", a, z)
	}
	if _, err := o.UptimeTicks(); err != nil {
		t.Errorf("UptimeTicks: %v", err)
	}
}
