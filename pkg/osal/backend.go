// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package osal

import (
	"context"
	"fmt"
)

// Backend is the OS capability an OS context is built on. The rtos and
// posix packages provide one each. Arguments reaching a backend have
// already been validated, and all returned errors should come from the
// taxonomy in this package; anything else is reported as
// ErrOsImplementation.
type Backend interface {
	Name() string
	Version() (Version, error)

	// Start begins scheduling. Tasks created afterwards run immediately.
	Start() error
	// Shutdown stops the scheduler and cancels every task context.
	Shutdown() error
	UptimeTicks() uint64
	UptimeMs() uint64

	NewTask(spec TaskSpec) (TaskImpl, error)
	SleepTicks(n uint32) error
	SleepMs(ms uint32) error

	NewMutex() (MutexImpl, error)
	NewSemaphore(initial, max uint32) (SemaphoreImpl, error)
	NewMailbox(length, itemSize uint32) (MailboxImpl, error)
	NewEventFlag() (EventFlagImpl, error)
	// NewTimer creates a dormant timer. fire runs on the backend's timer
	// service and must not block.
	NewTimer(kind TimerKind, fire func()) (TimerImpl, error)

	SetupInterrupt(id uint8, h InterruptHandler, ref any) error
	EnableInterrupt(id uint8) error
	DisableInterrupt(id uint8) error

	EnterCritical()
	ExitCritical()
	// Alloc returns nil when the backend heap cannot satisfy size.
	Alloc(size int) []byte
	Free(b []byte)
	HeapStats() HeapStats
}

type TaskSpec struct {
	Name       string
	Entry      func(ctx context.Context)
	StackBytes uint32
	Priority   uint32
}

type TaskImpl interface {
	Delete() error
	Suspend() error
	Resume() error
}

type MutexImpl interface {
	Take(t Timeout) error
	Release() error
	Destroy() error
}

type SemaphoreImpl interface {
	Pend(t Timeout) error
	Post() error
	PostFromISR() error
	Destroy() error
}

type MailboxImpl interface {
	// Pend copies the oldest item into buf.
	Pend(buf []byte, t Timeout) error
	Post(item []byte, t Timeout) error
	PostFromISR(item []byte) error
	Destroy() error
}

type EventFlagImpl interface {
	Pend(mask uint32, t Timeout) error
	Post(mask uint32) error
	PostFromISR(mask uint32) error
	Destroy() error
}

type TimerImpl interface {
	Start(ms uint32) error
	Stop() error
	Reset(ms uint32) error
	Destroy() error
}

// Version identifies the OS under a backend.
type Version struct {
	Name  string
	Major int
	Minor int
	Build int
}

func (v Version) String() string {
	return fmt.Sprintf("%s %d.%d.%d", v.Name, v.Major, v.Minor, v.Build)
}

type HeapStats struct {
	Total       uint64
	Free        uint64
	MinEverFree uint64
}

type TimerKind int

const (
	OneShot TimerKind = iota
	Periodic
)

func (k TimerKind) String() string {
	switch k {
	case OneShot:
		return "One-shot"
	case Periodic:
		return "Periodic"
	}
	return fmt.Sprintf("TimerKind(%d)", int(k))
}

// TaskFunc is a task body. ctx is cancelled when the task is deleted on
// backends that support deletion, and when the OS shuts down.
type TaskFunc func(ctx context.Context, param any)

// TimerFunc runs on the timer service when t expires. It must not block.
type TimerFunc func(t Timer)

// InterruptHandler runs in interrupt context with the reference given to
// SetupInterrupt. It must not block.
type InterruptHandler func(ref any)
