package vm

import (
	"fmt"
	"strings"
)

// Function is a callable value: a static function, a method bound to a
// receiver (MBind), or either with some parameters fixed (FBind).
// Functions are immutable; binding produces a new Function.
type Function struct {
	method *Method
	chain  *ResolutionChain
	depth  int

	// target is the bound receiver; nil for static functions.
	target Value

	// bound holds one slot per method parameter; nil slots are still open.
	bound []Value
}

// NewFunctionValue wraps a static method as a function value.
func NewFunctionValue(m *Method) *Function {
	return &Function{method: m, bound: make([]Value, m.Params)}
}

// bindMethod binds the implementation at depth of chain to target.
func bindMethod(chain *ResolutionChain, depth int, target Value) *Function {
	m := chain.Method(depth)
	return &Function{
		method: m,
		chain:  chain,
		depth:  depth,
		target: target,
		bound:  make([]Value, m.Params),
	}
}

func (fn *Function) Kind() Kind { return KindFunction }

func (fn *Function) String() string {
	var sb strings.Builder
	if fn.target != nil {
		sb.WriteString("bound ")
	}
	sb.WriteString(fn.method.String())
	sb.WriteString("(")
	for i, b := range fn.bound {
		if i > 0 {
			sb.WriteString(", ")
		}
		if b == nil {
			sb.WriteString("_")
		} else {
			sb.WriteString(b.String())
		}
	}
	sb.WriteString(")")
	return sb.String()
}

// Method returns the underlying method.
func (fn *Function) Method() *Method { return fn.method }

// Target returns the bound receiver, or nil.
func (fn *Function) Target() Value { return fn.target }

func (fn *Function) immutable() bool { return true }

// Arity returns the number of parameters still open.
func (fn *Function) Arity() int {
	n := 0
	for _, b := range fn.bound {
		if b == nil {
			n++
		}
	}
	return n
}

// bind fixes open parameters. Positions are indexes among the parameters
// still open, as seen by a caller of fn.
func (fn *Function) bind(positions []int, values []Value) (*Function, error) {
	open := make([]int, 0, len(fn.bound))
	for i, b := range fn.bound {
		if b == nil {
			open = append(open, i)
		}
	}

	out := &Function{
		method: fn.method,
		chain:  fn.chain,
		depth:  fn.depth,
		target: fn.target,
		bound:  make([]Value, len(fn.bound)),
	}
	copy(out.bound, fn.bound)
	for k, pos := range positions {
		if pos < 0 || pos >= len(open) {
			return nil, fmt.Errorf("%s: no open parameter %d", fn.method, pos)
		}
		if out.bound[open[pos]] != nil {
			return nil, fmt.Errorf("%s: parameter %d bound twice", fn.method, pos)
		}
		out.bound[open[pos]] = values[k]
	}
	return out, nil
}

// arguments merges the bound values with the caller's arguments, which fill
// the open parameters in order.
func (fn *Function) arguments(args []Value) ([]Value, error) {
	if len(args) != fn.Arity() {
		return nil, fmt.Errorf("%s: %d arguments for %d open parameters", fn.method, len(args), fn.Arity())
	}
	out := make([]Value, len(fn.bound))
	k := 0
	for i, b := range fn.bound {
		if b != nil {
			out[i] = b
			continue
		}
		out[i] = args[k]
		k++
	}
	return out, nil
}
