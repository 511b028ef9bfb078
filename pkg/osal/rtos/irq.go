// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtos

import (
	"context"
	"sync"

	"github.com/u-root/u-osal/pkg/osal"
)

type vector struct {
	handler osal.InterruptHandler
	ref     any
	enabled bool
}

// intController dispatches raised interrupts on a single ISR goroutine.
// Handlers run with interrupts masked, i.e. holding the critical section.
type intController struct {
	k       *Kernel
	mu      sync.Mutex
	vectors []vector
	pending chan uint8
}

func newIntController(k *Kernel, n int) *intController {
	return &intController{k: k, vectors: make([]vector, n), pending: make(chan uint8, 32)}
}

func (c *intController) run(ctx context.Context) {
	for {
		select {
		case id := <-c.pending:
			c.mu.Lock()
			v := c.vectors[id]
			c.mu.Unlock()
			if v.handler == nil || !v.enabled {
				continue
			}
			c.k.critical.Lock()
			v.handler(v.ref)
			c.k.critical.Unlock()
		case <-ctx.Done():
			return
		}
	}
}

func (k *Kernel) SetupInterrupt(id uint8, h osal.InterruptHandler, ref any) error {
	c := k.irq
	if int(id) >= len(c.vectors) {
		return osal.ErrParams
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vectors[id].handler = h
	c.vectors[id].ref = ref
	return nil
}

func (k *Kernel) EnableInterrupt(id uint8) error {
	return k.irq.setEnabled(id, true)
}

func (k *Kernel) DisableInterrupt(id uint8) error {
	return k.irq.setEnabled(id, false)
}

func (c *intController) setEnabled(id uint8, on bool) error {
	if int(id) >= len(c.vectors) {
		return osal.ErrParams
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vectors[id].enabled = on
	return nil
}

// Raise signals interrupt id as hardware would. It reports false when the
// interrupt has no handler, is disabled or the controller is saturated.
func (k *Kernel) Raise(id uint8) bool {
	c := k.irq
	if int(id) >= len(c.vectors) {
		return false
	}
	c.mu.Lock()
	v := c.vectors[id]
	c.mu.Unlock()
	if v.handler == nil || !v.enabled {
		return false
	}
	select {
	case c.pending <- id:
		return true
	default:
		return false
	}
}
