// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/binary"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/u-root/u-osal/pkg/osal"
)

const (
	mainStackBytes   = 4096
	workerStackBytes = 2048
	menuStackBytes   = 2048

	sampleMs      = 1000
	statsPeriodMs = 30000
	sampleIRQ     = 5

	statsDue = 1 << 0
)

var postRetry = backoff.ExponentialBackOff{
	InitialInterval:     10 * time.Millisecond,
	RandomizationFactor: 0.5,
	Multiplier:          2,
	MaxInterval:         200 * time.Millisecond,
	MaxElapsedTime:      2 * time.Second,
	Clock:               backoff.SystemClock,
}

// demo is a sampler feeding a logger through a mailbox. On backends with
// interrupts each sample also raises a line whose handler posts a
// semaphore.
type demo struct {
	os    *osal.OS
	raise func(id uint8) bool

	samples osal.Mailbox
	irq     osal.Semaphore
	stats   osal.EventFlag
}

type namedTask struct {
	name string
	fn   osal.TaskFunc
}

func (d *demo) main(ctx context.Context, _ any) {
	o := d.os
	var err error
	if d.samples, err = o.CreateMailbox(8, 4, "samples"); err != nil {
		log.Errorf("Creating samples mailbox: %v", err)
		return
	}
	if d.stats, err = o.CreateEventFlag("stats"); err != nil {
		log.Errorf("Creating stats flag: %v", err)
		return
	}
	if d.raise != nil {
		if d.irq, err = o.CreateSemaphore(0, 1, "irq"); err != nil {
			log.Errorf("Creating irq semaphore: %v", err)
			return
		}
		if err := d.setupIRQ(); err != nil {
			log.Warnf("Interrupt line %d unavailable: %v", sampleIRQ, err)
			d.raise = nil
		}
	}

	tasks := []namedTask{
		{"sampler", d.sampler},
		{"reader", d.reader},
		{"stats", d.printer},
	}
	if d.raise != nil {
		tasks = append(tasks, namedTask{"irq waiter", d.irqWaiter})
	}
	for _, t := range tasks {
		if _, err := o.CreateTask(t.fn, workerStackBytes, nil, o.Config().DefaultTaskPriority, t.name); err != nil {
			log.Errorf("Creating task %q: %v", t.name, err)
			return
		}
	}

	tm, err := o.CreateTimer(osal.Periodic, func(osal.Timer) {
		if err := d.stats.PostFromISR(statsDue); err != nil {
			log.Debugf("Stats flag: %v", err)
		}
	}, "stats")
	if err != nil {
		log.Errorf("Creating stats timer: %v", err)
		return
	}
	if err := tm.Start(statsPeriodMs); err != nil {
		log.Errorf("Starting stats timer: %v", err)
	}
	<-ctx.Done()
}

func (d *demo) setupIRQ() error {
	if err := d.os.SetupInterrupt(sampleIRQ, func(ref any) {
		s := ref.(osal.Semaphore)
		if err := s.PostFromISR(); err != nil {
			log.Debugf("Interrupt overrun: %v", err)
		}
	}, d.irq); err != nil {
		return err
	}
	return d.os.EnableInterrupt(sampleIRQ)
}

func (d *demo) sampler(ctx context.Context, _ any) {
	var n uint32
	item := make([]byte, 4)
	for ctx.Err() == nil {
		n++
		binary.LittleEndian.PutUint32(item, n)
		if err := postWithRetry(ctx, d.samples, item); err != nil {
			log.Warnf("Dropped sample %d: %v", n, err)
		}
		if d.raise != nil && !d.raise(sampleIRQ) {
			log.Debugf("Interrupt %d not raised", sampleIRQ)
		}
		if err := d.os.SleepMs(sampleMs); err != nil {
			log.Errorf("Sampler sleep: %v", err)
			return
		}
	}
}

// postWithRetry posts item without blocking, backing off while the
// mailbox is full. Any other failure ends the retries.
func postWithRetry(ctx context.Context, mb osal.Mailbox, item []byte) error {
	b := postRetry
	b.Reset()
	return backoff.RetryNotify(func() error {
		err := mb.Post(item, osal.NoWait)
		if err != nil && osal.CodeOf(err) != osal.OsImplementation {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(&b, ctx), func(err error, wait time.Duration) {
		log.Debugf("Mailbox full, retrying in %v", wait)
	})
}

func (d *demo) reader(ctx context.Context, _ any) {
	buf := make([]byte, d.samples.ItemSize())
	for {
		if err := d.samples.Pend(buf, osal.WaitForever); err != nil {
			if ctx.Err() == nil {
				log.Errorf("Reading samples: %v", err)
			}
			return
		}
		log.Debugf("Sample %d", binary.LittleEndian.Uint32(buf))
	}
}

func (d *demo) irqWaiter(ctx context.Context, _ any) {
	var n int
	for {
		if err := d.irq.Pend(osal.WaitForever); err != nil {
			if ctx.Err() == nil {
				log.Errorf("Waiting for interrupt: %v", err)
			}
			return
		}
		n++
		if n%10 == 0 {
			log.Infof("Handled %d interrupts", n)
		}
	}
}

func (d *demo) printer(ctx context.Context, _ any) {
	for {
		if err := d.stats.Pend(statsDue, osal.WaitForever); err != nil {
			if ctx.Err() == nil {
				log.Errorf("Waiting for stats: %v", err)
			}
			return
		}
		if err := d.os.PrintAll(osal.CountOnly, osal.KindAll); err != nil {
			log.Warnf("PrintAll: %v", err)
		}
	}
}

// debugMenu offers the debug commands on the console until it runs dry.
func debugMenu(ctx context.Context, o *osal.OS) {
	cmds := o.DebugCommands()
	for ctx.Err() == nil {
		o.Printf("\r\nosal debug:\r\n")
		for i, c := range cmds {
			o.Printf("  %d:%s\r\n", i, c.Name)
		}
		o.Printf("> ")
		line, ok := readLine(o)
		if !ok {
			return
		}
		i, err := strconv.Atoi(line)
		if err != nil || i < 0 || i >= len(cmds) {
			o.Printf("\r\nUnknown command %q\r\n", line)
			continue
		}
		if err := cmds[i].Run(); err != nil {
			o.Printf("\r\n%s: %v\r\n", cmds[i].Name, err)
		}
	}
}

func readLine(o *osal.OS) (string, bool) {
	var line []byte
	for {
		c := o.GetChar()
		switch {
		case c == 0:
			return "", false
		case c == '\r' || c == '\n':
			if len(line) > 0 {
				return string(line), true
			}
		case len(line) < 16:
			line = append(line, c)
		}
	}
}
