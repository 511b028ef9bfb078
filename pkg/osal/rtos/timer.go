// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtos

import (
	"container/heap"
	"context"
	"time"

	"github.com/jmhodges/clock"
	"github.com/u-root/u-osal/pkg/osal"
)

type timerOp int

const (
	opStart timerOp = iota
	opStop
	opDelete
)

type timerCmd struct {
	op     timerOp
	t      *swTimer
	period time.Duration
}

// swTimer is owned by the timer service goroutine once created; only kind
// and fire are read elsewhere.
type swTimer struct {
	s      *timerService
	kind   osal.TimerKind
	fire   func()
	period time.Duration
	expiry time.Time
	index  int
}

// timerService is the timer daemon: commands arrive on a bounded queue and
// callbacks run on the daemon goroutine in expiry order.
type timerService struct {
	k      *Kernel
	cmds   chan timerCmd
	active timerQueue
}

func newTimerService(k *Kernel) *timerService {
	return &timerService{k: k, cmds: make(chan timerCmd, k.cfg.TimerQueueLength)}
}

func (k *Kernel) NewTimer(kind osal.TimerKind, fire func()) (osal.TimerImpl, error) {
	return &swTimer{s: k.timers, kind: kind, fire: fire, period: k.cfg.DefaultTimerPeriod, index: -1}, nil
}

func (s *timerService) run(ctx context.Context) {
	clk := s.k.clk
	for {
		now := clk.Now()
		for len(s.active) > 0 && !s.active[0].expiry.After(now) {
			t := s.active[0]
			if t.kind == osal.Periodic {
				t.expiry = t.expiry.Add(t.period)
				heap.Fix(&s.active, 0)
			} else {
				heap.Pop(&s.active)
			}
			t.fire()
		}

		var tm *clock.Timer
		var wake <-chan time.Time
		if len(s.active) > 0 {
			tm = clk.NewTimer(s.active[0].expiry.Sub(now))
			wake = tm.C
		}
		select {
		case c := <-s.cmds:
			s.apply(c, clk.Now())
		case <-wake:
		case <-ctx.Done():
		}
		if tm != nil {
			tm.Stop()
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *timerService) apply(c timerCmd, now time.Time) {
	t := c.t
	switch c.op {
	case opStart:
		t.period = c.period
		t.expiry = now.Add(t.period)
		if t.index >= 0 {
			heap.Fix(&s.active, t.index)
		} else {
			heap.Push(&s.active, t)
		}
	case opStop, opDelete:
		if t.index >= 0 {
			heap.Remove(&s.active, t.index)
		}
	}
}

// send queues c, waiting up to the timer block time for room.
func (s *timerService) send(c timerCmd) error {
	select {
	case <-s.k.ctx.Done():
		return osal.ErrOsImplementation
	case s.cmds <- c:
		return nil
	default:
	}
	tm := s.k.clk.NewTimer(s.k.cfg.TimerBlockTime)
	defer tm.Stop()
	select {
	case s.cmds <- c:
		return nil
	case <-tm.C:
		log.Warnf("Timer command queue full for %v", s.k.cfg.TimerBlockTime)
		return osal.ErrOsImplementation
	case <-s.k.ctx.Done():
		return osal.ErrOsImplementation
	}
}

// Start changes the period and arms the timer from now.
func (t *swTimer) Start(ms uint32) error {
	return t.s.send(timerCmd{op: opStart, t: t, period: t.s.k.waitTime(osal.Milliseconds(ms))})
}

func (t *swTimer) Reset(ms uint32) error {
	return t.Start(ms)
}

func (t *swTimer) Stop() error {
	return t.s.send(timerCmd{op: opStop, t: t})
}

func (t *swTimer) Destroy() error {
	return t.s.send(timerCmd{op: opDelete, t: t})
}

// timerQueue is a min-heap of armed timers keyed by expiry.
type timerQueue []*swTimer

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool { return q[i].expiry.Before(q[j].expiry) }

func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *timerQueue) Push(x any) {
	t := x.(*swTimer)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}
