// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package osal

// Mailbox is a bounded FIFO of fixed size items.
type Mailbox struct {
	m *mailbox
}

type mailbox struct {
	object
	impl     MailboxImpl
	length   uint32
	itemSize uint32
}

func (m Mailbox) ref() Ref {
	if m.m == nil {
		return Ref{}
	}
	return m.m.reg
}

func (m Mailbox) IsNil() bool {
	return m.m == nil
}

// ItemSize is the number of bytes every Post copies in and every Pend
// copies out.
func (m Mailbox) ItemSize() int {
	if m.m == nil {
		return 0
	}
	return int(m.m.itemSize)
}

func (o *OS) CreateMailbox(length, itemSize uint32, name string) (Mailbox, error) {
	if err := o.ready(); err != nil {
		return Mailbox{}, err
	}
	if name == "" || length == 0 || itemSize == 0 {
		return Mailbox{}, ErrParams
	}
	impl, err := o.backend.NewMailbox(length, itemSize)
	if err != nil {
		log.Warnf("Mailbox %q not created: %v", name, err)
		return Mailbox{}, translate(err)
	}
	m := &mailbox{impl: impl, length: length, itemSize: itemSize}
	m.init(o, Entry{Kind: KindMailbox, Name: name, Length: length, ItemSize: itemSize})
	return Mailbox{m}, nil
}

// Destroy drops every queued item. No Post or Pend may be in flight.
func (m *Mailbox) Destroy() error {
	if m == nil || m.m == nil {
		return ErrInvalidHandle
	}
	released, err := m.m.release(KindMailbox, m.m.impl.Destroy)
	if released {
		*m = Mailbox{}
	}
	return err
}

// Pend copies the oldest item into buf, which must hold ItemSize bytes.
func (m Mailbox) Pend(buf []byte, t Timeout) error {
	if m.m == nil {
		return ErrInvalidHandle
	}
	if err := m.m.alive(); err != nil {
		return err
	}
	if len(buf) < int(m.m.itemSize) {
		return ErrParams
	}
	if err := m.m.impl.Pend(buf[:m.m.itemSize], t); err != nil {
		return translate(err)
	}
	m.m.os.reg.count(m.m.reg, "rx", func(e *Entry) {
		e.RxCount++
		e.ItemCount--
	})
	return nil
}

// Post queues the first ItemSize bytes of item, waiting up to t for room.
func (m Mailbox) Post(item []byte, t Timeout) error {
	if m.m == nil {
		return ErrInvalidHandle
	}
	if err := m.m.alive(); err != nil {
		return err
	}
	if len(item) < int(m.m.itemSize) {
		return ErrParams
	}
	if err := m.m.impl.Post(item[:m.m.itemSize], t); err != nil {
		return translate(err)
	}
	m.m.os.reg.count(m.m.reg, "tx", func(e *Entry) {
		e.TxCount++
		e.ItemCount++
	})
	return nil
}

// PostFromISR is a Post that fails at once when the mailbox is full.
func (m Mailbox) PostFromISR(item []byte) error {
	if m.m == nil {
		return ErrInvalidHandle
	}
	if err := m.m.alive(); err != nil {
		return err
	}
	if len(item) < int(m.m.itemSize) {
		return ErrParams
	}
	if err := m.m.impl.PostFromISR(item[:m.m.itemSize]); err != nil {
		return translate(err)
	}
	m.m.os.reg.count(m.m.reg, "tx", func(e *Entry) {
		e.TxCount++
		e.ItemCount++
	})
	return nil
}
