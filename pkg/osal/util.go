// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package osal

import (
	"fmt"
	"sync"
)

// Until Start these primitives take no locks at all. Afterwards each
// category is serialised by its own mutex.

func (o *OS) lock(mu *sync.Mutex) func() {
	if !o.started() {
		return func() {}
	}
	mu.Lock()
	return mu.Unlock
}

// EnterCritical opens a short critical section. It must not be nested or
// held across a blocking call.
func (o *OS) EnterCritical() {
	if o.firewall() != nil {
		return
	}
	o.backend.EnterCritical()
}

func (o *OS) ExitCritical() {
	if o.firewall() != nil {
		return
	}
	o.backend.ExitCritical()
}

// Alloc returns size bytes from the backend heap, or nil.
func (o *OS) Alloc(size int) []byte {
	if o.firewall() != nil || size <= 0 {
		return nil
	}
	var b []byte
	if o.started() {
		unlock := o.lock(&o.allocMu)
		b = o.backend.Alloc(size)
		unlock()
	} else {
		b = make([]byte, size)
	}
	o.reg.memAlloc()
	return b
}

// Free releases *b and nils it.
func (o *OS) Free(b *[]byte) {
	if o.firewall() != nil || b == nil || *b == nil {
		return
	}
	if o.started() {
		unlock := o.lock(&o.freeMu)
		o.backend.Free(*b)
		unlock()
	}
	*b = nil
	o.reg.memFree()
}

// Set fills the first size bytes of dest with value.
func (o *OS) Set(dest []byte, value byte, size int) error {
	if err := o.firewall(); err != nil {
		return err
	}
	if dest == nil || size < 0 || size > len(dest) {
		return ErrParams
	}
	defer o.lock(&o.setMu)()
	for i := range dest[:size] {
		dest[i] = value
	}
	return nil
}

// Copy copies size bytes from src to dest.
func (o *OS) Copy(dest, src []byte, size int) error {
	if err := o.firewall(); err != nil {
		return err
	}
	if dest == nil || src == nil || size < 0 || size > len(dest) || size > len(src) {
		return ErrParams
	}
	defer o.lock(&o.copyMu)()
	copy(dest[:size], src[:size])
	return nil
}

// Printf writes to the console. Formats longer than the print buffer are
// dropped without output and the expansion is cut to fit the buffer.
func (o *OS) Printf(format string, args ...any) {
	if o.firewall() != nil || len(format) > o.cfg.PrintBufferSize {
		return
	}
	s := fmt.Sprintf(format, args...)
	if len(s) > o.cfg.PrintBufferSize-1 {
		s = s[:o.cfg.PrintBufferSize-1]
	}
	defer o.lock(&o.printMu)()
	if _, err := o.con.Write([]byte(s)); err != nil {
		log.Debugf("Console write failed: %v", err)
	}
}

// GetChar blocks for one console character. It returns 0 when the console
// has nothing more to give.
func (o *OS) GetChar() byte {
	if o.firewall() != nil {
		return 0
	}
	defer o.lock(&o.getcharMu)()
	c, err := o.con.ReadByte()
	if err != nil {
		return 0
	}
	return c
}
