// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package osal

// SetupInterrupt installs h for interrupt id, replacing any earlier handler.
// The interrupt stays in its current enabled state.
func (o *OS) SetupInterrupt(id uint8, h InterruptHandler, ref any) error {
	if err := o.ready(); err != nil {
		return err
	}
	if h == nil || int(id) >= o.cfg.MaxInterrupts {
		return ErrParams
	}
	return translate(o.backend.SetupInterrupt(id, h, ref))
}

func (o *OS) EnableInterrupt(id uint8) error {
	if err := o.ready(); err != nil {
		return err
	}
	if int(id) >= o.cfg.MaxInterrupts {
		return ErrParams
	}
	return translate(o.backend.EnableInterrupt(id))
}

func (o *OS) DisableInterrupt(id uint8) error {
	if err := o.ready(); err != nil {
		return err
	}
	if int(id) >= o.cfg.MaxInterrupts {
		return ErrParams
	}
	return translate(o.backend.DisableInterrupt(id))
}
