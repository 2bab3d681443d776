// Package fault carries the closed set of failure kinds the processing
// pipeline matches on: transport failures reaching the worker, the worker
// rejecting or dying, operation timeouts, and missing files on disk.
package fault

import (
	"errors"
	"fmt"
)

type Kind string

const (
	Connection Kind = "connection"
	Process    Kind = "process"
	Timeout    Kind = "timeout"
	File       Kind = "file"
)

type Fault struct {
	Kind Kind
	Op   string
	Err  error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s fault: %v", f.Op, f.Kind, f.Err)
	}
	return fmt.Sprintf("%s: %s fault", f.Op, f.Kind)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

func New(kind Kind, op string, err error) *Fault {
	return &Fault{Kind: kind, Op: op, Err: err}
}

func Newf(kind Kind, op, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the fault kind of err, if any fault is in its chain.
func KindOf(err error) (Kind, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return "", false
}

// Is reports whether err carries a fault of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
