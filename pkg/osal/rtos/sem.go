// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtos

import (
	"fmt"

	"github.com/u-root/u-osal/pkg/osal"
)

// semaphore is a counting semaphore. A free waiter is handed the count
// directly, so a give never raises count while anybody waits.
type semaphore struct {
	k       *Kernel
	count   uint32
	max     uint32
	waiters waitList
}

func (k *Kernel) NewSemaphore(initial, max uint32) (osal.SemaphoreImpl, error) {
	return &semaphore{k: k, count: initial, max: max}, nil
}

func (s *semaphore) Pend(t osal.Timeout) error {
	s.k.mu.Lock()
	if s.count > 0 {
		s.count--
		s.k.mu.Unlock()
		return nil
	}
	if t == osal.NoWait {
		s.k.mu.Unlock()
		return osal.ErrOsImplementation
	}
	return s.k.block(&s.waiters, newWaiter(), t)
}

func (s *semaphore) give(isr bool) error {
	s.k.mu.Lock()
	defer s.k.mu.Unlock()
	if w := s.waiters.pop(); w != nil {
		w.wake()
		if isr {
			s.k.yieldFromISR()
		}
		return nil
	}
	if s.count >= s.max {
		return fmt.Errorf("%w: count at maximum %d", osal.ErrOsImplementation, s.max)
	}
	s.count++
	return nil
}

func (s *semaphore) Post() error {
	return s.give(false)
}

func (s *semaphore) PostFromISR() error {
	return s.give(true)
}

func (s *semaphore) Destroy() error {
	return nil
}

// mutex is a binary semaphore that starts out free. Giving a free mutex
// fails.
type mutex struct {
	semaphore
}

func (k *Kernel) NewMutex() (osal.MutexImpl, error) {
	return &mutex{semaphore{k: k, count: 1, max: 1}}, nil
}

func (m *mutex) Take(t osal.Timeout) error {
	return m.Pend(t)
}

func (m *mutex) Release() error {
	return m.give(false)
}
