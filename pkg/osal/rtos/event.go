// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtos

import (
	"github.com/u-root/u-osal/pkg/osal"
)

// eventGroup waits for all requested bits and clears them on exit.
type eventGroup struct {
	k       *Kernel
	bits    uint32
	waiters waitList
}

func (k *Kernel) NewEventFlag() (osal.EventFlagImpl, error) {
	return &eventGroup{k: k}, nil
}

func (e *eventGroup) Pend(mask uint32, t osal.Timeout) error {
	e.k.mu.Lock()
	if e.bits&mask == mask {
		e.bits &^= mask
		e.k.mu.Unlock()
		return nil
	}
	if t == osal.NoWait {
		e.k.mu.Unlock()
		return osal.ErrOsImplementation
	}
	w := newWaiter()
	w.mask = mask
	return e.k.block(&e.waiters, w, t)
}

// set ORs mask in and lets every waiter re-check in wait order. A
// satisfied waiter consumes its bits before the next one looks.
func (e *eventGroup) set(mask uint32, isr bool) error {
	e.k.mu.Lock()
	defer e.k.mu.Unlock()
	e.bits |= mask
	var left waitList
	woke := false
	for _, w := range e.waiters {
		if e.bits&w.mask == w.mask {
			e.bits &^= w.mask
			w.wake()
			woke = true
			continue
		}
		left = append(left, w)
	}
	e.waiters = left
	if woke && isr {
		e.k.yieldFromISR()
	}
	return nil
}

func (e *eventGroup) Post(mask uint32) error {
	return e.set(mask, false)
}

func (e *eventGroup) PostFromISR(mask uint32) error {
	return e.set(mask, true)
}

func (e *eventGroup) Destroy() error {
	return nil
}
