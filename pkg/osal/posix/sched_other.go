// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package posix

import "errors"

func setFIFO(priority uint32) error {
	return errors.New("SCHED_FIFO needs linux")
}

func kernelRelease() string {
	return ""
}
