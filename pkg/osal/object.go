// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package osal

import "sync/atomic"

// object is the part every resource shares: its context, its ledger entry
// and whether it has been destroyed through any copy of its handle.
type object struct {
	os     *OS
	reg    Ref
	name   string
	closed atomic.Bool
}

func (b *object) init(o *OS, e Entry) {
	b.os = o
	b.reg = o.reg.add(e)
	b.name = e.Name
}

func (b *object) alive() error {
	if err := b.os.ready(); err != nil {
		return err
	}
	if b.closed.Load() {
		return ErrInvalidHandle
	}
	return nil
}

// release marks the object destroyed exactly once, flags its ledger entry
// and tears down the backend resource. released reports whether this call
// did it, in which case the caller nulls its handle even if the backend
// complained.
func (b *object) release(kind Kind, destroy func() error) (released bool, err error) {
	if err := b.os.ready(); err != nil {
		return false, err
	}
	if !b.closed.CompareAndSwap(false, true) {
		return false, ErrInvalidHandle
	}
	b.os.reg.setStatus(b.reg, Deleted)
	if err := destroy(); err != nil {
		log.Warnf("%v %q not released cleanly: %v", kind, b.name, err)
		return true, translate(err)
	}
	return true, nil
}
