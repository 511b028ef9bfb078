// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package osal

// EventFlag is a 32 bit event flag group. Pend always waits for every
// requested bit and clears exactly those bits on return.
type EventFlag struct {
	e *eventFlag
}

type eventFlag struct {
	object
	impl EventFlagImpl
}

func (e EventFlag) ref() Ref {
	if e.e == nil {
		return Ref{}
	}
	return e.e.reg
}

func (e EventFlag) IsNil() bool {
	return e.e == nil
}

func (o *OS) CreateEventFlag(name string) (EventFlag, error) {
	if err := o.ready(); err != nil {
		return EventFlag{}, err
	}
	if name == "" {
		return EventFlag{}, ErrParams
	}
	impl, err := o.backend.NewEventFlag()
	if err != nil {
		log.Warnf("Event flag %q not created: %v", name, err)
		return EventFlag{}, translate(err)
	}
	e := &eventFlag{impl: impl}
	e.init(o, Entry{Kind: KindEvent, Name: name})
	return EventFlag{e}, nil
}

func (e *EventFlag) Destroy() error {
	if e == nil || e.e == nil {
		return ErrInvalidHandle
	}
	released, err := e.e.release(KindEvent, e.e.impl.Destroy)
	if released {
		*e = EventFlag{}
	}
	return err
}

// Pend waits up to t until all bits in mask are set, then clears them.
func (e EventFlag) Pend(mask uint32, t Timeout) error {
	if e.e == nil {
		return ErrInvalidHandle
	}
	if err := e.e.alive(); err != nil {
		return err
	}
	if mask == 0 {
		return ErrParams
	}
	if err := e.e.impl.Pend(mask, t); err != nil {
		return translate(err)
	}
	e.e.os.reg.count(e.e.reg, "pend", func(en *Entry) { en.FlagWait = mask })
	return nil
}

// Post sets the bits in mask and wakes every waiter.
func (e EventFlag) Post(mask uint32) error {
	if e.e == nil {
		return ErrInvalidHandle
	}
	if err := e.e.alive(); err != nil {
		return err
	}
	if mask == 0 {
		return ErrParams
	}
	if err := e.e.impl.Post(mask); err != nil {
		return translate(err)
	}
	e.e.os.reg.count(e.e.reg, "post", func(en *Entry) { en.FlagSet = mask })
	return nil
}

func (e EventFlag) PostFromISR(mask uint32) error {
	if e.e == nil {
		return ErrInvalidHandle
	}
	if err := e.e.alive(); err != nil {
		return err
	}
	if mask == 0 {
		return ErrParams
	}
	if err := e.e.impl.PostFromISR(mask); err != nil {
		return translate(err)
	}
	e.e.os.reg.count(e.e.reg, "post", func(en *Entry) { en.FlagSet = mask })
	return nil
}
