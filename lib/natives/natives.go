// Package natives is the default native library: the Object, Boolean, Int,
// String, Array, Tuple, Service and Console methods the registry declares
// as native.
package natives

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tliron/commonlog"

	"github.com/xtclang/xvm-sub023/vm"
)

var log = commonlog.GetLogger("xvm.natives")

// Library implements vm.NativeDispatcher.
type Library struct {
	*vm.NativeTable

	mu  sync.Mutex
	out io.Writer
}

// New creates the library. Console output goes to out, or standard output
// when out is nil.
func New(out io.Writer) *Library {
	if out == nil {
		out = os.Stdout
	}
	l := &Library{NativeTable: vm.NewNativeTable(), out: out}
	l.registerObjectNatives()
	l.registerBooleanNatives()
	l.registerIntNatives()
	l.registerStringNatives()
	l.registerContainerNatives()
	l.registerServiceNatives()
	l.registerConsoleNatives()
	log.Debugf("registered %d natives", l.Len())
	return l
}

// ---------------------------------------------------------------------------
// Object
// ---------------------------------------------------------------------------

func (l *Library) registerObjectNatives() {
	l.Register("Object.toString/0", func(c vm.NativeCall) (vm.Value, error) {
		return vm.String(c.This.String()), nil
	})
	l.Register("Object.equals/1", func(c vm.NativeCall) (vm.Value, error) {
		return vm.Bool(vm.Equals(c.This, c.Arg(0))), nil
	})
}

// ---------------------------------------------------------------------------
// Boolean
// ---------------------------------------------------------------------------

func (l *Library) registerBooleanNatives() {
	logical := map[string]func(a, b bool) bool{
		"and": func(a, b bool) bool { return a && b },
		"or":  func(a, b bool) bool { return a || b },
		"xor": func(a, b bool) bool { return a != b },
	}
	for name, op := range logical {
		op := op
		l.Register("Boolean."+name+"/1", func(c vm.NativeCall) (vm.Value, error) {
			b, ok := c.Arg(0).(vm.Bool)
			if !ok {
				return nil, mismatch(c, "Boolean")
			}
			return vm.Bool(op(bool(c.This.(vm.Bool)), bool(b))), nil
		})
	}
	l.Register("Boolean.not/0", func(c vm.NativeCall) (vm.Value, error) {
		return !c.This.(vm.Bool), nil
	})
}

// ---------------------------------------------------------------------------
// Int
// ---------------------------------------------------------------------------

var intOps = map[string]vm.BinaryOp{
	"add": vm.OpAdd,
	"sub": vm.OpSub,
	"mul": vm.OpMul,
	"div": vm.OpDiv,
	"mod": vm.OpMod,
	"and": vm.OpAnd,
	"or":  vm.OpOr,
	"xor": vm.OpXor,
	"shl": vm.OpShl,
	"shr": vm.OpShr,
}

func (l *Library) registerIntNatives() {
	for name, op := range intOps {
		op := op
		l.Register("Int."+name+"/1", func(c vm.NativeCall) (vm.Value, error) {
			b, err := c.IntArg(0)
			if err != nil {
				return nil, err
			}
			r, err := vm.IntBinary(op, c.This.(vm.Int), b)
			if err != nil {
				return nil, arith(c, err)
			}
			return r, nil
		})
	}

	l.Register("Int.compare/1", func(c vm.NativeCall) (vm.Value, error) {
		b, err := c.IntArg(0)
		if err != nil {
			return nil, err
		}
		a := c.This.(vm.Int)
		switch {
		case a < b:
			return vm.Int(-1), nil
		case a > b:
			return vm.Int(1), nil
		}
		return vm.Int(0), nil
	})

	unary := map[string]func(a vm.Int) (vm.Int, error){
		"neg":       func(a vm.Int) (vm.Int, error) { return vm.IntUnary(vm.OpNeg, a) },
		"compl":     func(a vm.Int) (vm.Int, error) { return vm.IntUnary(vm.OpCompl, a) },
		"nextValue": func(a vm.Int) (vm.Int, error) { return vm.IntBinary(vm.OpAdd, a, 1) },
		"prevValue": func(a vm.Int) (vm.Int, error) { return vm.IntBinary(vm.OpSub, a, 1) },
		"abs": func(a vm.Int) (vm.Int, error) {
			if a < 0 {
				return vm.IntUnary(vm.OpNeg, a)
			}
			return a, nil
		},
	}
	for name, fn := range unary {
		fn := fn
		l.Register("Int."+name+"/0", func(c vm.NativeCall) (vm.Value, error) {
			r, err := fn(c.This.(vm.Int))
			if err != nil {
				return nil, arith(c, err)
			}
			return r, nil
		})
	}
}

// ---------------------------------------------------------------------------
// String
// ---------------------------------------------------------------------------

func (l *Library) registerStringNatives() {
	l.Register("String.add/1", func(c vm.NativeCall) (vm.Value, error) {
		return c.This.(vm.String) + vm.String(c.Arg(0).String()), nil
	})
	l.Register("String.compare/1", func(c vm.NativeCall) (vm.Value, error) {
		s, ok := c.Arg(0).(vm.String)
		if !ok {
			return nil, mismatch(c, "String")
		}
		return vm.Int(strings.Compare(string(c.This.(vm.String)), string(s))), nil
	})
	l.Register("String.size/0", func(c vm.NativeCall) (vm.Value, error) {
		return vm.Int(len([]rune(string(c.This.(vm.String))))), nil
	})
	l.Register("String.getElement/1", func(c vm.NativeCall) (vm.Value, error) {
		i, err := c.IntArg(0)
		if err != nil {
			return nil, err
		}
		runes := []rune(string(c.This.(vm.String)))
		if i < 0 || int(i) >= len(runes) {
			return nil, &vm.NativeException{Type: vm.TypeOutOfBounds, Text: fmt.Sprintf("index %d of %d characters", i, len(runes))}
		}
		return vm.String(runes[i]), nil
	})
}

// ---------------------------------------------------------------------------
// Array and Tuple
// ---------------------------------------------------------------------------

func (l *Library) registerContainerNatives() {
	l.Register("Array.size/0", func(c vm.NativeCall) (vm.Value, error) {
		return vm.Int(c.This.(*vm.Array).Size()), nil
	})
	l.Register("Array.add/1", func(c vm.NativeCall) (vm.Value, error) {
		a := c.This.(*vm.Array)
		elems := append(a.Elements(), c.Arg(0))
		if a.Immutable() {
			return vm.NewConstArray(elems...), nil
		}
		return vm.NewArray(elems...), nil
	})
	l.Register("Tuple.size/0", func(c vm.NativeCall) (vm.Value, error) {
		return vm.Int(c.This.(*vm.Tuple).Size()), nil
	})
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

func (l *Library) registerServiceNatives() {
	l.Register("Service.shutdown/0", func(c vm.NativeCall) (vm.Value, error) {
		svc, err := c.Service()
		if err != nil {
			return nil, err
		}
		svc.Shutdown()
		return nil, nil
	})
	l.Register("Service.kill/0", func(c vm.NativeCall) (vm.Value, error) {
		svc, err := c.Service()
		if err != nil {
			return nil, err
		}
		svc.Kill()
		return nil, nil
	})
	l.Register("Service.status/0", func(c vm.NativeCall) (vm.Value, error) {
		svc, err := c.Service()
		if err != nil {
			return nil, err
		}
		return vm.String(svc.Status().String()), nil
	})
	l.Register("Service.setTimeout/1", func(c vm.NativeCall) (vm.Value, error) {
		svc, err := c.Service()
		if err != nil {
			return nil, err
		}
		ms, err := c.IntArg(0)
		if err != nil {
			return nil, err
		}
		svc.SetTimeout(time.Duration(ms) * time.Millisecond)
		return nil, nil
	})
	l.Register("Service.setReentrancy/1", func(c vm.NativeCall) (vm.Value, error) {
		svc, err := c.Service()
		if err != nil {
			return nil, err
		}
		r, err := vm.ParseReentrancy(c.Arg(0).String())
		if err != nil {
			return nil, &vm.NativeException{Type: vm.TypeIllegalArgument, Text: err.Error()}
		}
		svc.SetReentrancy(r)
		return nil, nil
	})
}

// ---------------------------------------------------------------------------
// Console
// ---------------------------------------------------------------------------

func (l *Library) registerConsoleNatives() {
	l.Register("Console.print/1", func(c vm.NativeCall) (vm.Value, error) {
		return nil, l.write(c.Arg(0).String())
	})
	l.Register("Console.println/1", func(c vm.NativeCall) (vm.Value, error) {
		return nil, l.write(c.Arg(0).String() + "\n")
	})
}

func (l *Library) write(s string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := io.WriteString(l.out, s)
	return err
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func mismatch(c vm.NativeCall, want string) error {
	return &vm.NativeException{
		Type: vm.TypeTypeMismatch,
		Text: fmt.Sprintf("%s: expected %s, got %s", c.Key(), want, c.Arg(0).Kind()),
	}
}

func arith(c vm.NativeCall, err error) error {
	typ := vm.TypeOutOfBounds
	if errors.Is(err, vm.ErrDivisionByZero) {
		typ = vm.TypeDivisionByZero
	}
	return &vm.NativeException{Type: typ, Text: c.Key() + ": " + err.Error()}
}
