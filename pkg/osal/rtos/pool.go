// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtos

import (
	"math/bits"
	"sync"
)

// taskPool hands out the fixed set of task slots. A set bit in used marks
// a taken slot.
type taskPool struct {
	mu   sync.Mutex
	size int
	used []uint64
}

func newTaskPool(n int) *taskPool {
	return &taskPool{size: n, used: make([]uint64, (n+63)/64)}
}

// take returns a free slot number, or false when the pool is exhausted.
func (p *taskPool) take() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.used {
		if w == ^uint64(0) {
			continue
		}
		bit := bits.TrailingZeros64(^w)
		n := i*64 + bit
		if n >= p.size {
			return 0, false
		}
		p.used[i] |= 1 << bit
		return n, true
	}
	return 0, false
}

func (p *taskPool) put(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.used[n/64] &^= 1 << (n % 64)
}

func (p *taskPool) inUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, w := range p.used {
		n += bits.OnesCount64(w)
	}
	return n
}
