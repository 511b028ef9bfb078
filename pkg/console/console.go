// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package console is the character device behind the OSAL print and
// getchar primitives.
package console

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/tarm/serial"
	"github.com/u-root/u-osal/config"
)

type Console struct {
	r *bufio.Reader
	w io.Writer
	c io.Closer
}

// Open returns the UART named in cfg, or stdio when no device is set.
func Open(cfg config.Console) (*Console, error) {
	if cfg.Device == "" {
		return New(os.Stdin, os.Stdout), nil
	}
	c := &serial.Config{Name: cfg.Device, Baud: cfg.Baud}
	s, err := serial.OpenPort(c)
	if err != nil {
		return nil, fmt.Errorf("serial.OpenPort: %v", err)
	}
	con := New(s, s)
	con.c = s
	return con, nil
}

func New(r io.Reader, w io.Writer) *Console {
	return &Console{r: bufio.NewReader(r), w: w}
}

func (c *Console) Write(p []byte) (int, error) {
	return c.w.Write(p)
}

// ReadByte blocks until a character arrives.
func (c *Console) ReadByte() (byte, error) {
	return c.r.ReadByte()
}

func (c *Console) Close() error {
	if c.c == nil {
		return nil
	}
	return c.c.Close()
}
