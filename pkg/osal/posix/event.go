// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package posix

import (
	"sync"

	"github.com/u-root/u-osal/pkg/osal"
)

// event waits for all requested bits and clears them on exit. Every post
// closes changed and replaces it, waking all waiters to re-check; which of
// several competing waiters wins is up to the scheduler.
type event struct {
	p *Posix

	mu      sync.Mutex
	bits    uint32
	changed chan struct{}
}

func (p *Posix) NewEventFlag() (osal.EventFlagImpl, error) {
	return &event{p: p, changed: make(chan struct{})}, nil
}

func (e *event) Pend(mask uint32, t osal.Timeout) error {
	var expired <-chan struct{}
	if t != osal.NoWait {
		ctx, cancel := e.p.waitContext(t)
		defer cancel()
		expired = ctx.Done()
	}
	for {
		e.mu.Lock()
		if e.bits&mask == mask {
			e.bits &^= mask
			e.mu.Unlock()
			return nil
		}
		changed := e.changed
		e.mu.Unlock()
		if expired == nil {
			return osal.ErrOsImplementation
		}
		select {
		case <-changed:
		case <-expired:
			return osal.ErrOsImplementation
		}
	}
}

func (e *event) Post(mask uint32) error {
	e.mu.Lock()
	e.bits |= mask
	close(e.changed)
	e.changed = make(chan struct{})
	e.mu.Unlock()
	return nil
}

func (e *event) PostFromISR(mask uint32) error {
	return e.Post(mask)
}

func (e *event) Destroy() error {
	return nil
}
