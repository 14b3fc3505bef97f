/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"errors"
	"fmt"
)

// Kind enumerates the error kinds of spec.md §7. Every command-path error
// surfaces as a CommandResult carrying one of these; non-command errors are
// logged and dropped.
type Kind int

const (
	Generic Kind = iota
	InvalidArgument
	NotFound
	Timeout
	Closed
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid argument"
	case NotFound:
		return "not found"
	case Timeout:
		return "timeout"
	case Closed:
		return "closed"
	default:
		return "generic"
	}
}

// Err is the runtime's error value: a Kind (for CommandResult status
// mapping and programmatic matching via errors.As), an operation tag, a
// human message, and an optional wrapped cause.
type Err struct {
	Kind  Kind
	Op    string
	Msg   string
	Cause error
}

func (e *Err) Error() string {
	s := e.Kind.String()
	if e.Op != "" {
		s += " (" + e.Op + ")"
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *Err) Unwrap() error { return e.Cause }

func NewErr(kind Kind, op, format string, a ...any) *Err {
	return &Err{Kind: kind, Op: op, Msg: fmt.Sprintf(format, a...)}
}

func WrapErr(kind Kind, op string, cause error) *Err {
	return &Err{Kind: kind, Op: op, Cause: cause}
}

func KindOf(err error) Kind {
	var e *Err
	if errors.As(err, &e) {
		return e.Kind
	}
	return Generic
}

// Errs aggregates up to maxErrs distinct errors, deduplicated by message,
// same shape as the teacher's cmn/cos.Errs collector.
type Errs struct {
	errs []error
}

const maxErrs = 4

func (e *Errs) Add(err error) {
	if err == nil {
		return
	}
	for _, added := range e.errs {
		if added.Error() == err.Error() {
			return
		}
	}
	if len(e.errs) < maxErrs {
		e.errs = append(e.errs, err)
	}
}

func (e *Errs) Empty() bool { return len(e.errs) == 0 }

func (e *Errs) Err() error {
	if len(e.errs) == 0 {
		return nil
	}
	return errors.Join(e.errs...)
}
