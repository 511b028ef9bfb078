// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package osal

import (
	"strconv"
	"strings"
)

// DebugCommand is an entry of the "osal" debug directory.
type DebugCommand struct {
	Name string
	Run  func() error
}

func (o *OS) DebugCommands() []DebugCommand {
	return []DebugCommand{
		{Name: "print_all_stats", Run: func() error { return o.PrintAll(Full, KindAll) }},
		{Name: "clear_all_stats", Run: func() error { o.ClearAllStats(); return nil }},
		// Lets the operator pick kind and verbosity on the console.
		{Name: "print_stats_custom", Run: o.printStatsCustom},
	}
}

func (o *OS) printStatsCustom() error {
	o.Printf("\r\n     0:OS\r\n     1:Task\r\n     2:Mutex\r\n     3:Semaphore\r\n     4:Mailbox\r\n     5:Event\r\n     6:Timer\r\n     7:Memory\r\n     8:All")
	k, err := o.readInt("\r\nEnter stat type: ", int(KindOS), int(KindAll))
	if err != nil {
		o.Printf("\r\nError retrieving stat type\r\n")
		return err
	}
	v := int(CountOnly)
	if Kind(k) != KindOS && Kind(k) != KindMemory {
		o.Printf("\r\n     0:Counts only\r\n     1:Active only\r\n     2:Full")
		v, err = o.readInt("\r\nEnter verbosity level: ", int(CountOnly), int(Full))
		if err != nil {
			o.Printf("\r\nError retrieving verbosity level\r\n")
			return err
		}
	}
	return o.PrintAll(Verbosity(v), Kind(k))
}

// readInt reads a decimal line from the console and checks it against
// [min, max].
func (o *OS) readInt(prompt string, min, max int) (int, error) {
	o.Printf("%s", prompt)
	var line []byte
	for {
		c := o.GetChar()
		if c == 0 {
			return 0, ErrOsImplementation
		}
		if c == '\r' || c == '\n' {
			if len(line) == 0 {
				continue
			}
			break
		}
		if len(line) >= 16 {
			return 0, ErrParams
		}
		line = append(line, c)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(line)))
	if err != nil || n < min || n > max {
		return 0, ErrParams
	}
	return n, nil
}
