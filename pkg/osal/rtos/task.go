// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtos

import (
	"context"
	"fmt"

	"github.com/u-root/u-osal/pkg/osal"
)

// tcb is a task control block. Its state is guarded by k.mu.
type tcb struct {
	k        *Kernel
	slot     int
	name     string
	priority uint32
	cancel   context.CancelFunc

	suspended bool
	resumed   chan struct{}
	deleted   bool
}

// NewTask takes a slot from the task pool and starts spec.Entry on its own
// goroutine. The stack size is checked against the pool's slot size.
func (k *Kernel) NewTask(spec osal.TaskSpec) (osal.TaskImpl, error) {
	if spec.StackBytes > k.cfg.TaskMaxStackBytes {
		return nil, osal.ErrParams
	}
	slot, ok := k.pool.take()
	if !ok {
		return nil, fmt.Errorf("%w: all %d task slots in use", osal.ErrOsImplementation, k.cfg.MaxTasks)
	}
	ctx, cancel := context.WithCancel(k.ctx)
	t := &tcb{k: k, slot: slot, name: spec.Name, priority: spec.Priority, cancel: cancel}
	go t.run(ctx, spec.Entry)
	return t, nil
}

func (t *tcb) run(ctx context.Context, entry func(context.Context)) {
	for {
		t.k.mu.Lock()
		if !t.suspended {
			t.k.mu.Unlock()
			break
		}
		resumed := t.resumed
		t.k.mu.Unlock()
		select {
		case <-resumed:
		case <-ctx.Done():
			return
		}
	}
	entry(ctx)
}

// Delete cancels the task context and returns the slot to the pool.
func (t *tcb) Delete() error {
	t.k.mu.Lock()
	if t.deleted {
		t.k.mu.Unlock()
		return osal.ErrInvalidHandle
	}
	t.deleted = true
	if t.suspended {
		t.suspended = false
		close(t.resumed)
	}
	t.k.mu.Unlock()
	t.cancel()
	t.k.pool.put(t.slot)
	return nil
}

// Suspend holds a task that has not begun running until Resume. A running
// task keeps running.
func (t *tcb) Suspend() error {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	if t.deleted {
		return osal.ErrInvalidHandle
	}
	if !t.suspended {
		t.suspended = true
		t.resumed = make(chan struct{})
	}
	return nil
}

func (t *tcb) Resume() error {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	if t.deleted {
		return osal.ErrInvalidHandle
	}
	if t.suspended {
		t.suspended = false
		close(t.resumed)
	}
	return nil
}
