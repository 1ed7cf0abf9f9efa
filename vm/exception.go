package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Go-side errors
// ---------------------------------------------------------------------------

var (
	// ErrServiceTerminated is returned when posting to a context that has
	// been shut down or killed.
	ErrServiceTerminated = errors.New("service terminated")
	// ErrInboxFull is returned when a context's inbox is at its limit.
	ErrInboxFull = errors.New("service inbox full")
	// ErrNotPassable is returned when a value may not cross a context
	// boundary.
	ErrNotPassable = errors.New("value is not passable")
	// ErrDeadlock is returned by a synchronous call when no work remains
	// but the result is still pending.
	ErrDeadlock = errors.New("no runnable work and result still pending")
)

// UncaughtError reports an exception that escaped every frame of a call.
type UncaughtError struct {
	Exception *Object
	Origin    *Location
}

func (e *UncaughtError) Error() string {
	return fmt.Sprintf("uncaught %s at %s", e.Exception, e.Origin)
}

// TypeName returns the exception's type name.
func (e *UncaughtError) TypeName() string {
	return e.Exception.binding.Name
}

// ---------------------------------------------------------------------------
// Faults: engine invariant violations
// ---------------------------------------------------------------------------

// FaultCode classifies an engine fault. Codes are unique.
type FaultCode int

const (
	FaultNoChain         FaultCode = iota + 1 // super call without an active resolution chain
	FaultSuperExhausted                       // super call past the end of the chain
	FaultRegisterCount                        // arguments or declarations exceed the frame's registers
	FaultDanglingRef                          // access through a reference to a released register
	FaultBadOperand                           // operand of the wrong kind or out of range
	FaultScope                                // scope or register discipline violated
	FaultGuard                                // guard stack out of balance
	FaultForeignMutation                      // mutation of an object owned by another context
	FaultInternal                             // unexpected Go panic inside the dispatch loop
)

var faultNames = map[FaultCode]string{
	FaultNoChain:         "no-chain",
	FaultSuperExhausted:  "super-exhausted",
	FaultRegisterCount:   "register-count",
	FaultDanglingRef:     "dangling-ref",
	FaultBadOperand:      "bad-operand",
	FaultScope:           "scope",
	FaultGuard:           "guard",
	FaultForeignMutation: "foreign-mutation",
	FaultInternal:        "internal",
}

func (c FaultCode) String() string {
	if name, ok := faultNames[c]; ok {
		return name
	}
	return fmt.Sprintf("fault(%d)", int(c))
}

// Fault is an engine invariant violation. It is raised by panic inside the
// dispatch loop and recovered by the owning context, which terminates.
type Fault struct {
	Code    FaultCode
	Message string
	Where   *Location
}

func newFault(code FaultCode, format string, args ...interface{}) *Fault {
	return &Fault{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *Fault) Error() string {
	if e.Where != nil {
		return fmt.Sprintf("engine fault [%s] at %s: %s", e.Code, e.Where, e.Message)
	}
	return fmt.Sprintf("engine fault [%s]: %s", e.Code, e.Message)
}

// IsFault reports whether err is a fault with the given code.
func IsFault(err error, code FaultCode) bool {
	var f *Fault
	return errors.As(err, &f) && f.Code == code
}

// NativeException is returned by a NativeDispatcher to raise a catchable
// exception of a built-in type.
type NativeException struct {
	Type string
	Text string
}

func (e *NativeException) Error() string {
	return e.Type + ": " + e.Text
}

// exceptionFor maps a Go error to the built-in exception type it raises.
func exceptionFor(err error) (typeName, text string) {
	var ne *NativeException
	switch {
	case errors.As(err, &ne):
		return ne.Type, ne.Text
	case errors.Is(err, ErrOutOfBounds):
		return TypeOutOfBounds, err.Error()
	case errors.Is(err, ErrReadOnly):
		return TypeReadOnly, err.Error()
	case errors.Is(err, ErrNotPassable):
		return TypeIllegalArgument, err.Error()
	case errors.Is(err, ErrServiceTerminated):
		return TypeServiceTerminated, err.Error()
	}
	return TypeIllegalState, err.Error()
}

// raiseError raises the exception corresponding to err.
func (f *Frame) raiseError(err error) Disposition {
	typeName, text := exceptionFor(err)
	return f.raise(f.registry().NewException(typeName, text))
}
