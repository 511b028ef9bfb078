// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtos

import (
	"sync"

	"github.com/u-root/u-osal/pkg/osal"
)

// memHeap bounds what the kernel and its callers may allocate. Blocks are
// tracked by their first byte, so Free must be handed the slice Alloc
// returned.
type memHeap struct {
	mu      sync.Mutex
	total   int
	free    int
	minEver int
	live    map[*byte]int
}

func newMemHeap(size int) *memHeap {
	return &memHeap{total: size, free: size, minEver: size, live: make(map[*byte]int)}
}

func (h *memHeap) alloc(size int) []byte {
	if size <= 0 {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if size > h.free {
		return nil
	}
	b := make([]byte, size)
	h.live[&b[0]] = size
	h.free -= size
	if h.free < h.minEver {
		h.minEver = h.free
	}
	return b
}

func (h *memHeap) release(b []byte) {
	if len(b) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	size, ok := h.live[&b[0]]
	if !ok {
		log.Warnf("Free of %d bytes not allocated from the kernel heap", len(b))
		return
	}
	delete(h.live, &b[0])
	h.free += size
}

func (h *memHeap) stats() osal.HeapStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return osal.HeapStats{Total: uint64(h.total), Free: uint64(h.free), MinEverFree: uint64(h.minEver)}
}

func (k *Kernel) Alloc(size int) []byte {
	return k.heap.alloc(size)
}

func (k *Kernel) Free(b []byte) {
	k.heap.release(b)
}

func (k *Kernel) HeapStats() osal.HeapStats {
	return k.heap.stats()
}
