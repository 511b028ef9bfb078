// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package posix

import (
	"golang.org/x/sys/unix"
)

const schedFIFO = 1

// setFIFO moves the calling thread to SCHED_FIFO. OSAL priority 0 maps to
// real-time priority 1.
func setFIFO(priority uint32) error {
	attr := unix.SchedAttr{Policy: schedFIFO, Priority: priority + 1}
	return unix.SchedSetAttr(0, &attr, 0)
}

func kernelRelease() string {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return ""
	}
	return unix.ByteSliceToString(u.Release[:])
}
