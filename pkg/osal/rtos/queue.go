// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtos

import (
	"github.com/u-root/u-osal/pkg/osal"
)

// queue is a ring buffer of length items of itemSize bytes. Receivers only
// wait while it is empty and senders only while it is full, so direct hand
// over never reorders items.
type queue struct {
	k        *Kernel
	itemSize int
	length   int
	ring     []byte
	head     int
	n        int
	recvq    waitList
	sendq    waitList
}

func (k *Kernel) NewMailbox(length, itemSize uint32) (osal.MailboxImpl, error) {
	size := int(length) * int(itemSize)
	ring := k.heap.alloc(size)
	if ring == nil {
		return nil, osal.ErrInsufficientMemory
	}
	return &queue{k: k, itemSize: int(itemSize), length: int(length), ring: ring}, nil
}

func (q *queue) slot(i int) []byte {
	off := ((q.head + i) % q.length) * q.itemSize
	return q.ring[off : off+q.itemSize]
}

// push must be called with k.mu held and room in the ring.
func (q *queue) push(item []byte) {
	copy(q.slot(q.n), item)
	q.n++
}

func (q *queue) Pend(buf []byte, t osal.Timeout) error {
	q.k.mu.Lock()
	if q.n > 0 {
		copy(buf, q.slot(0))
		q.head = (q.head + 1) % q.length
		q.n--
		if w := q.sendq.pop(); w != nil {
			q.push(w.buf)
			w.wake()
		}
		q.k.mu.Unlock()
		return nil
	}
	if t == osal.NoWait {
		q.k.mu.Unlock()
		return osal.ErrOsImplementation
	}
	w := newWaiter()
	w.buf = buf
	return q.k.block(&q.recvq, w, t)
}

func (q *queue) send(item []byte, t osal.Timeout, isr bool) error {
	q.k.mu.Lock()
	if w := q.recvq.pop(); w != nil {
		copy(w.buf, item)
		w.wake()
		if isr {
			q.k.yieldFromISR()
		}
		q.k.mu.Unlock()
		return nil
	}
	if q.n < q.length {
		q.push(item)
		q.k.mu.Unlock()
		return nil
	}
	if t == osal.NoWait {
		q.k.mu.Unlock()
		return osal.ErrOsImplementation
	}
	w := newWaiter()
	w.buf = append([]byte(nil), item...)
	return q.k.block(&q.sendq, w, t)
}

func (q *queue) Post(item []byte, t osal.Timeout) error {
	return q.send(item, t, false)
}

func (q *queue) PostFromISR(item []byte) error {
	return q.send(item, osal.NoWait, true)
}

// Destroy drops every queued item and returns the ring to the heap.
func (q *queue) Destroy() error {
	q.k.mu.Lock()
	q.n = 0
	ring := q.ring
	q.ring = nil
	q.k.mu.Unlock()
	q.k.heap.release(ring)
	return nil
}
