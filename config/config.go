// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

type Console struct {
	// Device is a serial port such as /dev/ttyS4. Empty means stdio.
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

type Config struct {
	MaxTasks            int    `yaml:"max_tasks"`
	TaskMaxStackBytes   uint32 `yaml:"task_max_stack_bytes"`
	DefaultTaskPriority uint32 `yaml:"default_task_priority"`
	MaxPriority         uint32 `yaml:"max_priority"`

	TickPeriod         time.Duration `yaml:"tick_period"`
	TimerBlockTime     time.Duration `yaml:"timer_block_time"`
	DefaultTimerPeriod time.Duration `yaml:"default_timer_period"`
	TimerQueueLength   int           `yaml:"timer_queue_length"`
	HeapBytes          int           `yaml:"heap_bytes"`
	MaxInterrupts      int           `yaml:"max_interrupts"`

	PosixTickPeriod        time.Duration `yaml:"posix_tick_period"`
	PosixMinimumTimeout    time.Duration `yaml:"posix_minimum_timeout"`
	PosixMinimumStackBytes uint32        `yaml:"posix_minimum_stack_bytes"`
	TimerStartOffsetMs     uint32        `yaml:"timer_start_offset_ms"`

	PrintBufferSize int     `yaml:"print_buffer_size"`
	Console         Console `yaml:"console"`
	MetricsAddress  string  `yaml:"metrics_address"`
}

var DefaultConfig = &Config{
	// The task pool is static: every task gets one of MaxTasks slots of
	// TaskMaxStackBytes each, nothing is ever taken from the heap.
	MaxTasks:            10,
	TaskMaxStackBytes:   0x2000,
	DefaultTaskPriority: 5,
	MaxPriority:         31,

	TickPeriod:         time.Millisecond,
	TimerBlockTime:     1000 * time.Millisecond,
	DefaultTimerPeriod: 100 * time.Millisecond,
	TimerQueueLength:   10,
	HeapBytes:          256 * 1024,
	MaxInterrupts:      256,

	// Linux hands out 10ms ticks and timed waits shorter than a second are
	// raised to one second.
	PosixTickPeriod:        10 * time.Millisecond,
	PosixMinimumTimeout:    time.Second,
	PosixMinimumStackBytes: 16384,
	TimerStartOffsetMs:     5,

	PrintBufferSize: 256,
	Console: Console{
		Baud: 115200,
	},

	// u-bmc has been allocated port 9370, reuse it
	MetricsAddress: "[::]:9370",
}

// Load returns a copy of DefaultConfig with the YAML file at path laid on
// top of it. A missing file is not an error.
func Load(fs afero.Fs, path string) (*Config, error) {
	c := *DefaultConfig
	b, err := afero.ReadFile(fs, path)
	if os.IsNotExist(err) {
		return &c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %v", path, err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %v", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	return &c, nil
}

// Validate rejects configurations no backend can run with.
func (c *Config) Validate() error {
	switch {
	case c.MaxTasks <= 0 || c.MaxTasks > 64:
		return fmt.Errorf("max_tasks must be within 1..64, got %d", c.MaxTasks)
	case c.TaskMaxStackBytes == 0 || c.TaskMaxStackBytes%4 != 0:
		return fmt.Errorf("task_max_stack_bytes must be a non-zero multiple of 4, got %d", c.TaskMaxStackBytes)
	case c.DefaultTaskPriority > c.MaxPriority:
		return fmt.Errorf("default_task_priority %d above max_priority %d", c.DefaultTaskPriority, c.MaxPriority)
	case c.TickPeriod <= 0 || c.PosixTickPeriod <= 0:
		return fmt.Errorf("tick periods must be positive")
	case c.TimerQueueLength <= 0:
		return fmt.Errorf("timer_queue_length must be positive, got %d", c.TimerQueueLength)
	case c.PrintBufferSize <= 1:
		return fmt.Errorf("print_buffer_size must be above 1, got %d", c.PrintBufferSize)
	case c.MaxInterrupts <= 0 || c.MaxInterrupts > 256:
		return fmt.Errorf("max_interrupts must be within 1..256, got %d", c.MaxInterrupts)
	}
	return nil
}
