// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logger

import (
	"sync"

	"go.uber.org/zap/zapcore"
)

var swap = &swapCore{h: &coreHolder{core: zapcore.NewNopCore()}}

type coreHolder struct {
	mu   sync.RWMutex
	core zapcore.Core
}

// swapCore forwards to whatever core is currently installed, including for
// loggers derived through With before the swap happened.
type swapCore struct {
	h      *coreHolder
	fields []zapcore.Field
}

func (s *swapCore) Swap(c zapcore.Core) zapcore.Core {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	prev := s.h.core
	s.h.core = c
	return prev
}

func (s *swapCore) current() zapcore.Core {
	s.h.mu.RLock()
	c := s.h.core
	s.h.mu.RUnlock()
	if len(s.fields) > 0 {
		c = c.With(s.fields)
	}
	return c
}

func (s *swapCore) Enabled(l zapcore.Level) bool {
	return s.current().Enabled(l)
}

func (s *swapCore) With(fields []zapcore.Field) zapcore.Core {
	f := make([]zapcore.Field, 0, len(s.fields)+len(fields))
	f = append(f, s.fields...)
	f = append(f, fields...)
	return &swapCore{h: s.h, fields: f}
}

func (s *swapCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	return s.current().Check(ent, ce)
}

func (s *swapCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return s.current().Write(ent, fields)
}

func (s *swapCore) Sync() error {
	return s.current().Sync()
}
