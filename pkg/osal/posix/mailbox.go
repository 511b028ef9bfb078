// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package posix

import (
	"sync"

	"github.com/eapache/queue"
	"github.com/u-root/u-osal/pkg/osal"
	"go.uber.org/multierr"
)

// mailbox is a bounded FIFO of fixed size items. space counts free slots
// and items counts queued ones.
type mailbox struct {
	itemSize uint32
	space    *sem
	items    *sem

	mu sync.Mutex
	q  *queue.Queue
}

func (p *Posix) NewMailbox(length, itemSize uint32) (osal.MailboxImpl, error) {
	return &mailbox{
		itemSize: itemSize,
		space:    p.newSem(length, length),
		items:    p.newSem(0, length),
		q:        queue.New(),
	}, nil
}

func (m *mailbox) Post(item []byte, t osal.Timeout) error {
	if err := m.space.Pend(t); err != nil {
		return err
	}
	b := make([]byte, m.itemSize)
	copy(b, item)
	m.mu.Lock()
	m.q.Add(b)
	m.mu.Unlock()
	return m.items.Post()
}

func (m *mailbox) PostFromISR(item []byte) error {
	return m.Post(item, osal.NoWait)
}

func (m *mailbox) Pend(buf []byte, t osal.Timeout) error {
	if err := m.items.Pend(t); err != nil {
		return err
	}
	m.mu.Lock()
	b := m.q.Remove().([]byte)
	m.mu.Unlock()
	copy(buf, b)
	return m.space.Post()
}

// Destroy drops whatever is still queued.
func (m *mailbox) Destroy() error {
	m.mu.Lock()
	n := m.q.Length()
	for m.q.Length() > 0 {
		m.q.Remove()
	}
	m.mu.Unlock()
	if n > 0 {
		log.Debugf("Mailbox destroyed with %d items queued", n)
	}
	return multierr.Combine(m.space.Destroy(), m.items.Destroy())
}
