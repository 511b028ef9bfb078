// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package osal

// Mutex is a binary lock handle. Recursive taking is not supported.
type Mutex struct {
	m *mutex
}

type mutex struct {
	object
	impl MutexImpl
}

func (m Mutex) ref() Ref {
	if m.m == nil {
		return Ref{}
	}
	return m.m.reg
}

func (m Mutex) IsNil() bool {
	return m.m == nil
}

func (o *OS) CreateMutex(name string) (Mutex, error) {
	if err := o.ready(); err != nil {
		return Mutex{}, err
	}
	if name == "" {
		return Mutex{}, ErrParams
	}
	impl, err := o.backend.NewMutex()
	if err != nil {
		log.Warnf("Mutex %q not created: %v", name, err)
		return Mutex{}, translate(err)
	}
	m := &mutex{impl: impl}
	m.init(o, Entry{Kind: KindMutex, Name: name})
	return Mutex{m}, nil
}

func (m *Mutex) Destroy() error {
	if m == nil || m.m == nil {
		return ErrInvalidHandle
	}
	released, err := m.m.release(KindMutex, m.m.impl.Destroy)
	if released {
		*m = Mutex{}
	}
	return err
}

// Take acquires the mutex, waiting up to t. An expired wait is
// ErrOsImplementation.
func (m Mutex) Take(t Timeout) error {
	if m.m == nil {
		return ErrInvalidHandle
	}
	if err := m.m.alive(); err != nil {
		return err
	}
	if err := m.m.impl.Take(t); err != nil {
		return translate(err)
	}
	m.m.os.reg.count(m.m.reg, "take", func(e *Entry) { e.TakeCount++ })
	return nil
}

func (m Mutex) Release() error {
	if m.m == nil {
		return ErrInvalidHandle
	}
	if err := m.m.alive(); err != nil {
		return err
	}
	if err := m.m.impl.Release(); err != nil {
		return translate(err)
	}
	m.m.os.reg.count(m.m.reg, "release", func(e *Entry) { e.ReleaseCount++ })
	return nil
}

// Semaphore is a counting semaphore handle. A maximum count of one makes it
// binary. Any task may post.
type Semaphore struct {
	s *semaphore
}

type semaphore struct {
	object
	impl SemaphoreImpl
}

func (s Semaphore) ref() Ref {
	if s.s == nil {
		return Ref{}
	}
	return s.s.reg
}

func (s Semaphore) IsNil() bool {
	return s.s == nil
}

func (o *OS) CreateSemaphore(initial, max uint32, name string) (Semaphore, error) {
	if err := o.ready(); err != nil {
		return Semaphore{}, err
	}
	if name == "" || max == 0 || initial > max {
		return Semaphore{}, ErrParams
	}
	impl, err := o.backend.NewSemaphore(initial, max)
	if err != nil {
		log.Warnf("Semaphore %q not created: %v", name, err)
		return Semaphore{}, translate(err)
	}
	s := &semaphore{impl: impl}
	s.init(o, Entry{Kind: KindSemaphore, Name: name})
	return Semaphore{s}, nil
}

func (s *Semaphore) Destroy() error {
	if s == nil || s.s == nil {
		return ErrInvalidHandle
	}
	released, err := s.s.release(KindSemaphore, s.s.impl.Destroy)
	if released {
		*s = Semaphore{}
	}
	return err
}

func (s Semaphore) Pend(t Timeout) error {
	if s.s == nil {
		return ErrInvalidHandle
	}
	if err := s.s.alive(); err != nil {
		return err
	}
	if err := s.s.impl.Pend(t); err != nil {
		return translate(err)
	}
	s.s.os.reg.count(s.s.reg, "pend", func(e *Entry) { e.PendCount++ })
	return nil
}

// Post fails with ErrOsImplementation when the count is already at its
// maximum.
func (s Semaphore) Post() error {
	if s.s == nil {
		return ErrInvalidHandle
	}
	if err := s.s.alive(); err != nil {
		return err
	}
	if err := s.s.impl.Post(); err != nil {
		return translate(err)
	}
	s.s.os.reg.count(s.s.reg, "post", func(e *Entry) { e.PostCount++ })
	return nil
}

// PostFromISR is Post for interrupt context. It never blocks.
func (s Semaphore) PostFromISR() error {
	if s.s == nil {
		return ErrInvalidHandle
	}
	if err := s.s.alive(); err != nil {
		return err
	}
	if err := s.s.impl.PostFromISR(); err != nil {
		return translate(err)
	}
	s.s.os.reg.count(s.s.reg, "post", func(e *Entry) { e.PostCount++ })
	return nil
}
