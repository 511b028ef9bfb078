// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package osal

import (
	"errors"
	"fmt"
)

// Code is the error taxonomy shared by every backend.
type Code int

const (
	None Code = iota
	Params
	InvalidHandle
	OsImplementation
	OsNotStarted
	InsufficientMemory
)

var codeNames = [...]string{
	None:               "none",
	Params:             "bad parameters",
	InvalidHandle:      "invalid handle",
	OsImplementation:   "os implementation failure",
	OsNotStarted:       "os not started",
	InsufficientMemory: "insufficient memory",
}

func (c Code) String() string {
	if c < 0 || int(c) >= len(codeNames) {
		return fmt.Sprintf("Code(%d)", int(c))
	}
	return codeNames[c]
}

type Error struct {
	Code Code
}

func (e *Error) Error() string {
	return "osal: " + e.Code.String()
}

var (
	ErrParams             = &Error{Params}
	ErrInvalidHandle      = &Error{InvalidHandle}
	ErrOsImplementation   = &Error{OsImplementation}
	ErrOsNotStarted       = &Error{OsNotStarted}
	ErrInsufficientMemory = &Error{InsufficientMemory}
)

// CodeOf maps err onto the taxonomy. Anything outside of it counts as a
// backend failure.
func CodeOf(err error) Code {
	if err == nil {
		return None
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return OsImplementation
}

// translate keeps taxonomy errors as they are and turns every other backend
// error into ErrOsImplementation.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrOsImplementation, err)
}
