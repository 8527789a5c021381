// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package frerr defines the coarse error taxonomy shared by every
// framesrv package, along with the RPC status words each kind maps to.
package frerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of a small set of buckets that
// callers (and RPC transports) can branch on without parsing strings.
type Kind int

const (
	// Unknown is the zero value; it should not be constructed directly.
	Unknown Kind = iota
	HandleNotFound
	HandleExpired
	InvalidHandleFormat
	NoData
	InvalidConfig
	Io
	Compute
	MemoryLimit
	Unsupported
	PartialStore
	Timeout
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case HandleNotFound:
		return "handle_not_found"
	case HandleExpired:
		return "handle_expired"
	case InvalidHandleFormat:
		return "invalid_handle_format"
	case NoData:
		return "no_data"
	case InvalidConfig:
		return "invalid_config"
	case Io:
		return "io"
	case Compute:
		return "compute"
	case MemoryLimit:
		return "memory_limit"
	case Unsupported:
		return "unsupported"
	case PartialStore:
		return "partial_store"
	case Timeout:
		return "timeout"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Status is the coarse RPC status word a Kind maps to, per the
// not-found / invalid-argument / deadline-exceeded / unavailable /
// internal / failed-precondition taxonomy transports are expected to use.
func (k Kind) Status() string {
	switch k {
	case HandleNotFound:
		return "not-found"
	case HandleExpired:
		return "not-found"
	case InvalidHandleFormat:
		return "invalid-argument"
	case InvalidConfig:
		return "invalid-argument"
	case NoData:
		return "failed-precondition"
	case MemoryLimit:
		return "failed-precondition"
	case Unsupported:
		return "failed-precondition"
	case PartialStore:
		return "internal"
	case Timeout:
		return "deadline-exceeded"
	case Cancelled:
		return "unavailable"
	case Io, Compute:
		return "internal"
	default:
		return "internal"
	}
}

// Error is the single error type framesrv packages construct: a Kind
// plus an optional wrapped cause and message.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "handle.Get"
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target has the same Kind, so callers can write
// errors.Is(err, frerr.HandleNotFound) directly against a Kind value.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && e.Kind == k
}

// Kind satisfies the error interface so a bare Kind can be used as an
// errors.Is sentinel without constructing an *Error.
func (k Kind) Error() string { return k.String() }

// New constructs an *Error with the given kind and message.
func New(op string, kind Kind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

// Wrap constructs an *Error with the given kind, wrapping err.
func Wrap(op string, kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// Wrapf constructs an *Error with the given kind, wrapping err and
// attaching a formatted message.
func Wrapf(op string, kind Kind, err error, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Of extracts the Kind of err, or Unknown if err isn't (and doesn't wrap)
// a *Error.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}
