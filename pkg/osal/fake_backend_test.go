// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package osal

import (
	"context"
	"sync"
	"time"
)

// fakeBackend is just enough of a backend to exercise the OS layer without
// a scheduler. Blocking calls only ever wait on real time.
type fakeBackend struct {
	mu       sync.Mutex
	started  bool
	stopped  bool
	failWith error
	critical int
	freed    int
	suspend  error
	irq      map[uint8]bool
	ctx      context.Context
	cancel   context.CancelFunc
}

func newFakeBackend() *fakeBackend {
	ctx, cancel := context.WithCancel(context.Background())
	return &fakeBackend{irq: make(map[uint8]bool), ctx: ctx, cancel: cancel}
}

func (f *fakeBackend) err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failWith
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Version() (Version, error) {
	return Version{Name: "fake", Major: 1, Minor: 2, Build: 3}, nil
}

func (f *fakeBackend) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}

func (f *fakeBackend) Shutdown() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	f.cancel()
	return nil
}

func (f *fakeBackend) UptimeTicks() uint64 { return 42 }
func (f *fakeBackend) UptimeMs() uint64    { return 42 }

func (f *fakeBackend) NewTask(spec TaskSpec) (TaskImpl, error) {
	if err := f.err(); err != nil {
		return nil, err
	}
	go spec.Entry(f.ctx)
	return &fakeTask{f: f}, nil
}

func (f *fakeBackend) SleepTicks(n uint32) error { return nil }
func (f *fakeBackend) SleepMs(ms uint32) error   { return nil }

func (f *fakeBackend) NewMutex() (MutexImpl, error) {
	if err := f.err(); err != nil {
		return nil, err
	}
	return newFakeSem(1, 1), nil
}

func (f *fakeBackend) NewSemaphore(initial, max uint32) (SemaphoreImpl, error) {
	if err := f.err(); err != nil {
		return nil, err
	}
	return newFakeSem(initial, max), nil
}

func (f *fakeBackend) NewMailbox(length, itemSize uint32) (MailboxImpl, error) {
	if err := f.err(); err != nil {
		return nil, err
	}
	return &fakeMailbox{ch: make(chan []byte, length)}, nil
}

func (f *fakeBackend) NewEventFlag() (EventFlagImpl, error) {
	if err := f.err(); err != nil {
		return nil, err
	}
	return &fakeEvent{}, nil
}

func (f *fakeBackend) NewTimer(kind TimerKind, fire func()) (TimerImpl, error) {
	if err := f.err(); err != nil {
		return nil, err
	}
	return &fakeTimer{fire: fire}, nil
}

func (f *fakeBackend) SetupInterrupt(id uint8, h InterruptHandler, ref any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.irq[id] = false
	return nil
}

func (f *fakeBackend) EnableInterrupt(id uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.irq[id]; !ok {
		return ErrInvalidHandle
	}
	f.irq[id] = true
	return nil
}

func (f *fakeBackend) DisableInterrupt(id uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.irq[id]; !ok {
		return ErrInvalidHandle
	}
	f.irq[id] = false
	return nil
}

func (f *fakeBackend) EnterCritical() {
	f.mu.Lock()
	f.critical++
	f.mu.Unlock()
}

func (f *fakeBackend) ExitCritical() {
	f.mu.Lock()
	f.critical--
	f.mu.Unlock()
}

func (f *fakeBackend) Alloc(size int) []byte { return make([]byte, size) }

func (f *fakeBackend) Free(b []byte) {
	f.mu.Lock()
	f.freed++
	f.mu.Unlock()
}

func (f *fakeBackend) HeapStats() HeapStats {
	return HeapStats{Total: 1024, Free: 512, MinEverFree: 256}
}

type fakeTask struct {
	f *fakeBackend
}

func (t *fakeTask) Delete() error { return nil }

func (t *fakeTask) Suspend() error {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	return t.f.suspend
}

func (t *fakeTask) Resume() error {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	return t.f.suspend
}

type fakeSem struct {
	ch chan struct{}
}

func newFakeSem(initial, max uint32) *fakeSem {
	s := &fakeSem{ch: make(chan struct{}, max)}
	for i := uint32(0); i < initial; i++ {
		s.ch <- struct{}{}
	}
	return s
}

func wait(t Timeout) <-chan time.Time {
	if t.Forever() {
		return nil
	}
	return time.After(time.Duration(t) * time.Millisecond)
}

func (s *fakeSem) Pend(t Timeout) error {
	if t == NoWait {
		select {
		case <-s.ch:
			return nil
		default:
			return ErrOsImplementation
		}
	}
	select {
	case <-s.ch:
		return nil
	case <-wait(t):
		return ErrOsImplementation
	}
}

func (s *fakeSem) Post() error {
	select {
	case s.ch <- struct{}{}:
		return nil
	default:
		return ErrOsImplementation
	}
}

func (s *fakeSem) PostFromISR() error  { return s.Post() }
func (s *fakeSem) Take(t Timeout) error { return s.Pend(t) }
func (s *fakeSem) Release() error       { return s.Post() }
func (s *fakeSem) Destroy() error       { return nil }

type fakeMailbox struct {
	ch chan []byte
}

func (m *fakeMailbox) Pend(buf []byte, t Timeout) error {
	select {
	case item := <-m.ch:
		copy(buf, item)
		return nil
	default:
	}
	if t == NoWait {
		return ErrOsImplementation
	}
	select {
	case item := <-m.ch:
		copy(buf, item)
		return nil
	case <-wait(t):
		return ErrOsImplementation
	}
}

func (m *fakeMailbox) Post(item []byte, t Timeout) error {
	select {
	case m.ch <- append([]byte(nil), item...):
		return nil
	default:
		return ErrOsImplementation
	}
}

func (m *fakeMailbox) PostFromISR(item []byte) error { return m.Post(item, NoWait) }
func (m *fakeMailbox) Destroy() error                { return nil }

type fakeEvent struct {
	mu   sync.Mutex
	bits uint32
}

func (e *fakeEvent) Pend(mask uint32, t Timeout) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.bits&mask != mask {
		return ErrOsImplementation
	}
	e.bits &^= mask
	return nil
}

func (e *fakeEvent) Post(mask uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bits |= mask
	return nil
}

func (e *fakeEvent) PostFromISR(mask uint32) error { return e.Post(mask) }
func (e *fakeEvent) Destroy() error                { return nil }

type fakeTimer struct {
	fire    func()
	running bool
}

func (t *fakeTimer) Start(ms uint32) error { t.running = true; return nil }
func (t *fakeTimer) Stop() error           { t.running = false; return nil }
func (t *fakeTimer) Reset(ms uint32) error { t.running = true; return nil }
func (t *fakeTimer) Destroy() error        { t.running = false; return nil }
