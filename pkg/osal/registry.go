// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package osal

import (
	"fmt"
	"sync"
)

// Kind selects a resource ledger, or one of the non-ledger statistic
// groups (OS, Memory, All). The numbering is the one used by the debug menu.
type Kind int

const (
	KindOS Kind = iota
	KindTask
	KindMutex
	KindSemaphore
	KindMailbox
	KindEvent
	KindTimer
	KindMemory
	KindAll
)

var kindNames = [...]string{
	KindOS:        "OS",
	KindTask:      "Task",
	KindMutex:     "Mutex",
	KindSemaphore: "Semaphore",
	KindMailbox:   "Mailbox",
	KindEvent:     "Event",
	KindTimer:     "Timer",
	KindMemory:    "Memory",
	KindAll:       "All",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

func (k Kind) ledger() bool {
	return k >= KindTask && k <= KindTimer
}

type Status int

const (
	Active Status = iota
	Suspended
	Deleted
)

func (s Status) String() string {
	switch s {
	case Active:
		return "Active"
	case Suspended:
		return "Suspended"
	case Deleted:
		return "Deleted"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

type Verbosity int

const (
	CountOnly Verbosity = iota
	ActiveOnly
	Full
)

// Entry is one ledger record. Which counters are meaningful depends on Kind.
type Entry struct {
	Kind   Kind
	Name   string
	Status Status

	// Task
	StackBytes uint32
	Priority   uint32

	// Semaphore
	PostCount int
	PendCount int

	// Mutex
	TakeCount    int
	ReleaseCount int

	// Mailbox
	Length    uint32
	ItemSize  uint32
	RxCount   int
	TxCount   int
	ItemCount int

	// Event
	FlagWait uint32
	FlagSet  uint32

	// Timer
	TimerKind  TimerKind
	DurationMs uint32
	RunCount   int
}

// Ref locates an Entry. It goes stale when the registry is cleared.
type Ref struct {
	kind  Kind
	index int
	gen   uint64
}

// Handle is implemented by every resource handle.
type Handle interface {
	ref() Ref
}

// Registry is the debug ledger: one append-only arena per resource kind
// plus the process-wide alloc/free call counters. Entries are only ever
// dropped all at once by ClearAll.
type Registry struct {
	mu         sync.Mutex
	gen        uint64
	ledgers    [KindTimer + 1][]Entry
	allocCalls int
	freeCalls  int
	m          *metrics
}

func newRegistry(m *metrics) *Registry {
	return &Registry{gen: 1, m: m}
}

func (r *Registry) add(e Entry) Ref {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.Status = Active
	r.ledgers[e.Kind] = append(r.ledgers[e.Kind], e)
	r.m.created.WithLabelValues(e.Kind.String()).Inc()
	return Ref{kind: e.Kind, index: len(r.ledgers[e.Kind]) - 1, gen: r.gen}
}

// lookup must be called with r.mu held.
func (r *Registry) lookup(ref Ref) *Entry {
	if ref.gen != r.gen || !ref.kind.ledger() || ref.index >= len(r.ledgers[ref.kind]) {
		return nil
	}
	return &r.ledgers[ref.kind][ref.index]
}

// count applies fn to the entry behind ref and records op as a metric.
// Stale refs are ignored.
func (r *Registry) count(ref Ref, op string, fn func(e *Entry)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.lookup(ref)
	if e == nil {
		return
	}
	if fn != nil {
		fn(e)
	}
	r.m.ops.WithLabelValues(ref.kind.String(), e.Name, op).Inc()
}

// setStatus moves an entry along Active -> Suspended/Deleted. Deleted is
// terminal.
func (r *Registry) setStatus(ref Ref, s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.lookup(ref)
	if e == nil || e.Status == Deleted {
		return
	}
	e.Status = s
}

func (r *Registry) memAlloc() {
	r.mu.Lock()
	r.allocCalls++
	r.mu.Unlock()
	r.m.memory.WithLabelValues("alloc").Inc()
}

func (r *Registry) memFree() {
	r.mu.Lock()
	r.freeCalls++
	r.mu.Unlock()
	r.m.memory.WithLabelValues("free").Inc()
}

// FindByHandle returns a copy of the ledger entry for h.
func (r *Registry) FindByHandle(kind Kind, h Handle) (Entry, bool) {
	if h == nil {
		return Entry{}, false
	}
	ref := h.ref()
	if ref.kind != kind {
		return Entry{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.lookup(ref)
	if e == nil {
		return Entry{}, false
	}
	return *e, true
}

// Entries returns a snapshot of one ledger in creation order.
func (r *Registry) Entries(kind Kind) []Entry {
	if !kind.ledger() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.ledgers[kind]...)
}

// MemoryCalls returns the number of Alloc and Free calls since the last
// ClearAll.
func (r *Registry) MemoryCalls() (alloc, free int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allocCalls, r.freeCalls
}

// ClearAll drops every ledger entry and zeroes every counter. Live
// resources keep working but are no longer tracked.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	for k := range r.ledgers {
		r.ledgers[k] = nil
	}
	r.allocCalls = 0
	r.freeCalls = 0
	r.m.reset()
}
