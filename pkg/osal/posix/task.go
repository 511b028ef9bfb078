// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package posix

import (
	"runtime"
	"sync"

	"github.com/u-root/u-osal/pkg/osal"
)

var warnSched sync.Once

type thread struct {
	name string
}

// NewTask starts spec.Entry on a goroutine wired to its own OS thread.
// Stacks below the thread minimum are raised to it; the Go runtime grows
// them on demand anyway.
func (p *Posix) NewTask(spec osal.TaskSpec) (osal.TaskImpl, error) {
	stack := spec.StackBytes
	if stack < p.cfg.PosixMinimumStackBytes {
		stack = p.cfg.PosixMinimumStackBytes
	}
	ctx := p.ctx
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := setFIFO(spec.Priority); err != nil {
			warnSched.Do(func() {
				log.Infof("Tasks run without SCHED_FIFO: %v", err)
			})
		}
		spec.Entry(ctx)
	}()
	log.Debugf("Task %q started with %d byte stack at priority %d", spec.Name, stack, spec.Priority)
	return &thread{name: spec.Name}, nil
}

// Delete forgets the task. The thread itself runs on until its entry
// returns or the backend shuts down.
func (t *thread) Delete() error {
	return nil
}

func (t *thread) Suspend() error {
	return osal.ErrOsImplementation
}

func (t *thread) Resume() error {
	return osal.ErrOsImplementation
}
