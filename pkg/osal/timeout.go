// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package osal

import (
	"math"
	"time"
)

// Timeout bounds a blocking call in milliseconds.
type Timeout uint32

const (
	NoWait      Timeout = 0
	WaitForever Timeout = math.MaxUint32
)

func Milliseconds(ms uint32) Timeout {
	return Timeout(ms)
}

func (t Timeout) Forever() bool {
	return t == WaitForever
}

// Ticks converts t to scheduler ticks of length tick. A wait that is shorter
// than one tick but not NoWait becomes one tick. WaitForever is not a tick
// count and must be checked first.
func (t Timeout) Ticks(tick time.Duration) uint64 {
	if t == NoWait {
		return 0
	}
	n := uint64(time.Duration(t) * time.Millisecond / tick)
	if n == 0 {
		n = 1
	}
	return n
}

// Clamp returns the wait as a duration raised to at least min.
func (t Timeout) Clamp(min time.Duration) time.Duration {
	d := time.Duration(t) * time.Millisecond
	if d < min {
		d = min
	}
	return d
}

func (t Timeout) String() string {
	switch t {
	case NoWait:
		return "no-wait"
	case WaitForever:
		return "forever"
	}
	return (time.Duration(t) * time.Millisecond).String()
}
