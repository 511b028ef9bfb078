// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package posix

import (
	"time"

	"github.com/u-root/u-osal/pkg/osal"
)

// timer runs one goroutine per arming. Re-arming or stopping closes the
// previous arming's stop channel.
type timer struct {
	p    *Posix
	kind osal.TimerKind
	fire func()

	// guarded by p.mu
	stop chan struct{}
}

func (p *Posix) NewTimer(kind osal.TimerKind, fire func()) (osal.TimerImpl, error) {
	t := &timer{p: p, kind: kind, fire: fire}
	p.mu.Lock()
	p.timers[t] = struct{}{}
	p.mu.Unlock()
	return t, nil
}

// Start arms the timer. Every expiry, the first and the periodic ones, is
// TimerStartOffsetMs shorter than ms, matching the signal delivery lag of
// the platform timers; periods shorter than the offset are refused.
// Expiries are scheduled from the arming time, so a slow callback does not
// shift later ones.
func (t *timer) Start(ms uint32) error {
	off := t.p.cfg.TimerStartOffsetMs
	if ms < off {
		return osal.ErrParams
	}
	period := time.Duration(ms-off) * time.Millisecond
	if period < time.Millisecond {
		period = time.Millisecond
	}
	next := t.p.clk.Now().Add(period)

	stop := make(chan struct{})
	t.p.mu.Lock()
	if t.stop != nil {
		close(t.stop)
	}
	t.stop = stop
	t.p.mu.Unlock()
	go t.run(next, period, stop)
	return nil
}

func (t *timer) run(next time.Time, period time.Duration, stop chan struct{}) {
	for {
		tm := t.p.clk.NewTimer(next.Sub(t.p.clk.Now()))
		select {
		case <-tm.C:
		case <-stop:
			tm.Stop()
			return
		case <-t.p.ctx.Done():
			tm.Stop()
			return
		}
		t.p.mu.Lock()
		if t.stop != stop {
			t.p.mu.Unlock()
			return
		}
		if t.kind == osal.OneShot {
			t.stop = nil
		}
		t.p.mu.Unlock()
		t.fire()
		if t.kind == osal.OneShot {
			return
		}
		next = next.Add(period)
	}
}

func (t *timer) Reset(ms uint32) error {
	return t.Start(ms)
}

func (t *timer) Stop() error {
	t.p.mu.Lock()
	defer t.p.mu.Unlock()
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	return nil
}

func (t *timer) Destroy() error {
	err := t.Stop()
	t.p.mu.Lock()
	delete(t.p.timers, t)
	t.p.mu.Unlock()
	return err
}
