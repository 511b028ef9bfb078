// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package posix

import (
	"fmt"
	"sync"

	"github.com/u-root/u-osal/pkg/osal"
	"golang.org/x/sync/semaphore"
)

// sem is a counting semaphore bounded by max. The weighted semaphore holds
// the permits; count mirrors how many are free so a post at max can be
// refused instead of panicking. count never lags behind the weighted
// semaphore, only ahead of it.
type sem struct {
	p   *Posix
	w   *semaphore.Weighted
	max uint32

	mu    sync.Mutex
	count uint32
}

func (p *Posix) newSem(initial, max uint32) *sem {
	s := &sem{p: p, w: semaphore.NewWeighted(int64(max)), max: max, count: initial}
	if held := int64(max - initial); held > 0 {
		s.w.TryAcquire(held)
	}
	return s
}

func (p *Posix) NewSemaphore(initial, max uint32) (osal.SemaphoreImpl, error) {
	return p.newSem(initial, max), nil
}

func (s *sem) Pend(t osal.Timeout) error {
	if t == osal.NoWait {
		if !s.w.TryAcquire(1) {
			return osal.ErrOsImplementation
		}
	} else {
		ctx, cancel := s.p.waitContext(t)
		err := s.w.Acquire(ctx, 1)
		cancel()
		if err != nil {
			return fmt.Errorf("%w: sem_timedwait: %v", osal.ErrOsImplementation, err)
		}
	}
	s.mu.Lock()
	s.count--
	s.mu.Unlock()
	return nil
}

func (s *sem) Post() error {
	s.mu.Lock()
	if s.count >= s.max {
		s.mu.Unlock()
		return fmt.Errorf("%w: count at maximum %d", osal.ErrOsImplementation, s.max)
	}
	s.count++
	s.mu.Unlock()
	s.w.Release(1)
	return nil
}

func (s *sem) PostFromISR() error {
	return s.Post()
}

func (s *sem) Destroy() error {
	return nil
}

// mutex is a binary semaphore that starts out free. Releasing a free mutex
// fails.
type mutex struct {
	*sem
}

func (p *Posix) NewMutex() (osal.MutexImpl, error) {
	return mutex{p.newSem(1, 1)}, nil
}

func (m mutex) Take(t osal.Timeout) error {
	return m.Pend(t)
}

func (m mutex) Release() error {
	return m.Post()
}
