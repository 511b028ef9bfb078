// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtos

import (
	"time"

	"github.com/u-root/u-osal/pkg/osal"
)

// waiter is a task blocked on a kernel object. Whoever removes it from its
// wait list under k.mu owns it and must wake it exactly once.
type waiter struct {
	ready chan struct{}
	// buf is the item a sender hands over, or the buffer a receiver wants
	// filled.
	buf  []byte
	mask uint32
}

func newWaiter() *waiter {
	return &waiter{ready: make(chan struct{}, 1)}
}

func (w *waiter) wake() {
	w.ready <- struct{}{}
}

type waitList []*waiter

func (l *waitList) push(w *waiter) {
	*l = append(*l, w)
}

func (l *waitList) pop() *waiter {
	if len(*l) == 0 {
		return nil
	}
	w := (*l)[0]
	(*l)[0] = nil
	*l = (*l)[1:]
	return w
}

func (l *waitList) remove(w *waiter) bool {
	for i, x := range *l {
		if x == w {
			*l = append((*l)[:i], (*l)[i+1:]...)
			return true
		}
	}
	return false
}

// block queues w on l and waits up to t for it to be woken. It must be
// called with k.mu held and returns with k.mu released.
func (k *Kernel) block(l *waitList, w *waiter, t osal.Timeout) error {
	l.push(w)
	k.mu.Unlock()

	var expired <-chan time.Time
	if !t.Forever() {
		tm := k.clk.NewTimer(k.waitTime(t))
		defer tm.Stop()
		expired = tm.C
	}
	select {
	case <-w.ready:
		return nil
	case <-expired:
	case <-k.ctx.Done():
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if l.remove(w) {
		return osal.ErrOsImplementation
	}
	// Woken between the timeout and taking the lock.
	<-w.ready
	return nil
}
