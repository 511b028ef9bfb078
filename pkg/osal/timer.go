// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package osal

// Timer is a software timer handle.
type Timer struct {
	t *timer
}

type timer struct {
	object
	impl TimerImpl
	fn   TimerFunc
}

func (t Timer) ref() Ref {
	if t.t == nil {
		return Ref{}
	}
	return t.t.reg
}

func (t Timer) IsNil() bool {
	return t.t == nil
}

func (t Timer) Name() string {
	if t.t == nil {
		return ""
	}
	return t.t.name
}

// CreateTimer creates a dormant timer calling fn on the backend's timer
// service each time it expires.
func (o *OS) CreateTimer(kind TimerKind, fn TimerFunc, name string) (Timer, error) {
	if err := o.ready(); err != nil {
		return Timer{}, err
	}
	if name == "" || fn == nil || (kind != OneShot && kind != Periodic) {
		return Timer{}, ErrParams
	}
	t := &timer{fn: fn}
	impl, err := o.backend.NewTimer(kind, t.fire)
	if err != nil {
		log.Warnf("Timer %q not created: %v", name, err)
		return Timer{}, translate(err)
	}
	t.impl = impl
	t.init(o, Entry{Kind: KindTimer, Name: name, TimerKind: kind})
	return Timer{t}, nil
}

func (t *timer) fire() {
	if t.closed.Load() {
		return
	}
	t.fn(Timer{t})
}

// Destroy stops the timer and frees it. It may block for the backend's
// timer command wait.
func (t *Timer) Destroy() error {
	if t == nil || t.t == nil {
		return ErrInvalidHandle
	}
	released, err := t.t.release(KindTimer, t.t.impl.Destroy)
	if released {
		*t = Timer{}
	}
	return err
}

// Start sets the period to ms and arms the timer.
func (t Timer) Start(ms uint32) error {
	if t.t == nil {
		return ErrInvalidHandle
	}
	if err := t.t.alive(); err != nil {
		return err
	}
	if ms == 0 {
		return ErrParams
	}
	if err := t.t.impl.Start(ms); err != nil {
		return translate(err)
	}
	t.t.os.reg.count(t.t.reg, "start", func(e *Entry) {
		e.DurationMs = ms
		e.RunCount++
	})
	return nil
}

func (t Timer) Stop() error {
	if t.t == nil {
		return ErrInvalidHandle
	}
	if err := t.t.alive(); err != nil {
		return err
	}
	if err := t.t.impl.Stop(); err != nil {
		return translate(err)
	}
	t.t.os.reg.count(t.t.reg, "stop", nil)
	return nil
}

// Reset changes the period to ms and re-arms the timer from zero.
func (t Timer) Reset(ms uint32) error {
	if t.t == nil {
		return ErrInvalidHandle
	}
	if err := t.t.alive(); err != nil {
		return err
	}
	if ms == 0 {
		return ErrParams
	}
	if err := t.t.impl.Reset(ms); err != nil {
		return translate(err)
	}
	t.t.os.reg.count(t.t.reg, "reset", func(e *Entry) {
		e.DurationMs = ms
		e.RunCount++
	})
	return nil
}
