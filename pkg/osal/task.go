// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package osal

import "context"

// Task is a task handle. The zero value is the null handle.
type Task struct {
	t *task
}

type task struct {
	object
	impl TaskImpl
}

func (t Task) ref() Ref {
	if t.t == nil {
		return Ref{}
	}
	return t.t.reg
}

func (t Task) IsNil() bool {
	return t.t == nil
}

func (t Task) Name() string {
	if t.t == nil {
		return ""
	}
	return t.t.name
}

// CreateTask starts entry(ctx, param) as a new task. stackBytes must be a
// non-zero multiple of four.
func (o *OS) CreateTask(entry TaskFunc, stackBytes uint32, param any, priority uint32, name string) (Task, error) {
	if err := o.ready(); err != nil {
		return Task{}, err
	}
	return o.createTask(entry, stackBytes, param, priority, name)
}

func (o *OS) createTask(entry TaskFunc, stackBytes uint32, param any, priority uint32, name string) (Task, error) {
	if entry == nil || !validStack(stackBytes) || name == "" || priority > o.cfg.MaxPriority {
		return Task{}, ErrParams
	}
	if o.roundRobin.Load() {
		priority = o.cfg.DefaultTaskPriority
	}
	impl, err := o.backend.NewTask(TaskSpec{
		Name:       name,
		StackBytes: stackBytes,
		Priority:   priority,
		Entry:      func(ctx context.Context) { entry(ctx, param) },
	})
	if err != nil {
		log.Warnf("Task %q not created: %v", name, err)
		return Task{}, translate(err)
	}
	t := &task{impl: impl}
	t.init(o, Entry{Kind: KindTask, Name: name, StackBytes: stackBytes, Priority: priority})
	return Task{t}, nil
}

// Delete removes the task and nulls the handle. What happens to a task
// that is still running is backend specific; see the backend packages.
func (t *Task) Delete() error {
	if t == nil || t.t == nil {
		return ErrInvalidHandle
	}
	released, err := t.t.release(KindTask, t.t.impl.Delete)
	if released {
		*t = Task{}
	}
	return err
}

func (t Task) Suspend() error {
	if t.t == nil {
		return ErrInvalidHandle
	}
	if err := t.t.alive(); err != nil {
		return err
	}
	if err := t.t.impl.Suspend(); err != nil {
		return translate(err)
	}
	t.t.os.reg.setStatus(t.t.reg, Suspended)
	return nil
}

func (t Task) Resume() error {
	if t.t == nil {
		return ErrInvalidHandle
	}
	if err := t.t.alive(); err != nil {
		return err
	}
	if err := t.t.impl.Resume(); err != nil {
		return translate(err)
	}
	t.t.os.reg.setStatus(t.t.reg, Active)
	return nil
}

// SleepTicks blocks the caller for n scheduler ticks.
func (o *OS) SleepTicks(n uint32) error {
	if err := o.ready(); err != nil {
		return err
	}
	if n == 0 {
		return ErrParams
	}
	return translate(o.backend.SleepTicks(n))
}

// SleepMs blocks the caller for ms milliseconds converted to backend ticks.
// The conversion truncates, but never below one tick.
func (o *OS) SleepMs(ms uint32) error {
	if err := o.ready(); err != nil {
		return err
	}
	if ms == 0 {
		return ErrParams
	}
	return translate(o.backend.SleepMs(ms))
}
