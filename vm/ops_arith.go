package vm

import (
	"errors"
	"math"
)

// ---------------------------------------------------------------------------
// Integer fast paths
// ---------------------------------------------------------------------------

var (
	// ErrOverflow is returned when Int arithmetic leaves the 64-bit range.
	ErrOverflow = errors.New("integer overflow")
	// ErrDivisionByZero is returned by Int division and modulo by zero.
	ErrDivisionByZero = errors.New("division by zero")
)

// IntBinary applies op to two Ints. It is shared by the dispatch loop's
// fast path and the native Int methods.
func IntBinary(op BinaryOp, a, b Int) (Int, error) {
	switch op {
	case OpAdd:
		r := a + b
		if (r > a) != (b > 0) {
			return 0, ErrOverflow
		}
		return r, nil
	case OpSub:
		r := a - b
		if (r < a) != (b > 0) {
			return 0, ErrOverflow
		}
		return r, nil
	case OpMul:
		if a == 0 || b == 0 {
			return 0, nil
		}
		r := a * b
		if r/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
			return 0, ErrOverflow
		}
		return r, nil
	case OpDiv:
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		if a == math.MinInt64 && b == -1 {
			return 0, ErrOverflow
		}
		return a / b, nil
	case OpMod:
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		if b == -1 {
			return 0, nil
		}
		return a % b, nil
	case OpAnd:
		return a & b, nil
	case OpOr:
		return a | b, nil
	case OpXor:
		return a ^ b, nil
	case OpShl, OpShr:
		if b < 0 || b > 63 {
			return 0, ErrOutOfBounds
		}
		if op == OpShl {
			return a << uint(b), nil
		}
		return a >> uint(b), nil
	}
	return 0, errors.New("unknown operator " + op.String())
}

// IntUnary applies a unary operator to an Int.
func IntUnary(op UnaryOp, a Int) (Int, error) {
	switch op {
	case OpNeg:
		if a == math.MinInt64 {
			return 0, ErrOverflow
		}
		return -a, nil
	case OpCompl:
		return ^a, nil
	}
	return 0, errors.New("unknown operator " + op.String())
}

func arithError(err error) (typeName string) {
	switch {
	case errors.Is(err, ErrDivisionByZero):
		return TypeDivisionByZero
	case errors.Is(err, ErrOverflow), errors.Is(err, ErrOutOfBounds):
		return TypeOutOfBounds
	}
	return TypeIllegalArgument
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

// binary evaluates l op r and passes the result to k. Ints and Booleans
// are handled inline; every other type dispatches to its op/1 method.
func (f *Frame) binary(op BinaryOp, l, r Value, k func(Value) Disposition) Disposition {
	switch lv := l.(type) {
	case Int:
		if rv, ok := r.(Int); ok {
			v, err := IntBinary(op, lv, rv)
			if err != nil {
				return f.raiseNew(arithError(err), "%s %s %s: %v", lv, op, rv, err)
			}
			return k(v)
		}
	case Bool:
		if rv, ok := r.(Bool); ok {
			switch op {
			case OpAnd:
				return k(lv && rv)
			case OpOr:
				return k(lv || rv)
			case OpXor:
				return k(Bool(lv != rv))
			}
		}
	}
	return f.invokeVirtual(l, Signature{Name: op.String(), Params: 1}, []Value{r}, func(vals []Value) Disposition {
		return k(first(vals))
	})
}

// unary evaluates op v and passes the result to k.
func (f *Frame) unary(op UnaryOp, v Value, k func(Value) Disposition) Disposition {
	switch x := v.(type) {
	case Int:
		if op != OpNot {
			r, err := IntUnary(op, x)
			if err != nil {
				return f.raiseNew(arithError(err), "%s %s: %v", op, x, err)
			}
			return k(r)
		}
	case Bool:
		if op == OpNot {
			return k(!x)
		}
	}
	return f.invokeVirtual(v, Signature{Name: op.String(), Params: 0}, nil, func(vals []Value) Disposition {
		return k(first(vals))
	})
}

// compare evaluates l kind r. Equality uses a user-defined equals/1 when
// the left operand's type has one; ordering uses compare/1.
func (f *Frame) compare(kind CmpKind, l, r Value, k func(Value) Disposition) Disposition {
	if kind == CmpEq || kind == CmpNe {
		if obj, ok := l.(*Object); ok {
			chain := obj.binding.Chain(Signature{Name: "equals", Params: 1})
			if !chain.IsEmpty() && !chain.Top().Native {
				return f.callMethod(chain.Top(), chain, 0, l, []Value{r}, returnDest{}, func(vals []Value) Disposition {
					eq, ok := first(vals).(Bool)
					if !ok {
						return f.raiseNew(TypeTypeMismatch, "equals returned %s", describe(first(vals)))
					}
					return k(Bool(eq == (kind == CmpEq)))
				})
			}
		}
		eq := Equals(l, r)
		return k(Bool(eq == (kind == CmpEq)))
	}

	order := func(c int) Disposition {
		switch kind {
		case CmpLt:
			return k(Bool(c < 0))
		case CmpLe:
			return k(Bool(c <= 0))
		case CmpGt:
			return k(Bool(c > 0))
		case CmpGe:
			return k(Bool(c >= 0))
		}
		return k(Int(c))
	}
	switch lv := l.(type) {
	case Int:
		if rv, ok := r.(Int); ok {
			return order(cmpOrdered(lv, rv))
		}
	case String:
		if rv, ok := r.(String); ok {
			return order(cmpOrdered(lv, rv))
		}
	}
	return f.invokeVirtual(l, Signature{Name: "compare", Params: 1}, []Value{r}, func(vals []Value) Disposition {
		c, ok := first(vals).(Int)
		if !ok {
			return f.raiseNew(TypeTypeMismatch, "compare returned %s", describe(first(vals)))
		}
		return order(int(c))
	})
}

func cmpOrdered[T Int | String](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// test evaluates a condition on v.
func (f *Frame) test(kind CondKind, v Value) (bool, Disposition) {
	switch kind {
	case CondNull:
		return IsNull(v), Next
	case CondNotNull:
		return !IsNull(v), Next
	case CondTrue, CondFalse:
		b, ok := v.(Bool)
		if !ok {
			return false, f.raiseNew(TypeTypeMismatch, "expected a Boolean, got %s", describe(v))
		}
		return bool(b) == (kind == CondTrue), Next
	case CondZero, CondNotZero:
		i, ok := v.(Int)
		if !ok {
			return false, f.raiseNew(TypeTypeMismatch, "expected an Int, got %s", describe(v))
		}
		return (i == 0) == (kind == CondZero), Next
	}
	panic(newFault(FaultBadOperand, "%s: unknown condition %d", f.method, kind))
}

// isType evaluates a type test against a type constant.
func (f *Frame) isType(v Value, typeOp int) bool {
	t, err := f.pool.Type(typeOp)
	if err != nil {
		panic(newFault(FaultBadOperand, "%s: %v", f.method, err))
	}
	return f.registry().IsA(v, t)
}

// ---------------------------------------------------------------------------
// In-place updates
// ---------------------------------------------------------------------------

var inPlaceBinary = map[InPlaceOp]BinaryOp{
	InPlaceAdd: OpAdd,
	InPlaceSub: OpSub,
	InPlaceMul: OpMul,
	InPlaceDiv: OpDiv,
	InPlaceMod: OpMod,
}

func (op InPlaceOp) increments() bool {
	return op == InPlaceInc || op == InPlacePreInc || op == InPlacePostInc
}

func (op InPlaceOp) hasResult() bool {
	switch op {
	case InPlacePreInc, InPlacePreDec, InPlacePostInc, InPlacePostDec:
		return true
	}
	return false
}

// inPlace computes the updated value of old. store writes it back; the
// instruction's result, if any, is the new value for the pre forms and
// old for the post forms.
func (f *Frame) inPlace(kind InPlaceOp, old, arg Value, store func(Value) Disposition, dest int) Disposition {
	k := func(updated Value) Disposition {
		if d := store(updated); d != Next {
			return d
		}
		switch kind {
		case InPlacePreInc, InPlacePreDec:
			return f.set(dest, updated)
		case InPlacePostInc, InPlacePostDec:
			return f.set(dest, old)
		}
		return Next
	}

	if op, ok := inPlaceBinary[kind]; ok {
		return f.binary(op, old, arg, k)
	}
	if i, ok := old.(Int); ok {
		delta := Int(-1)
		if kind.increments() {
			delta = 1
		}
		v, err := IntBinary(OpAdd, i, delta)
		if err != nil {
			return f.raiseNew(TypeOutOfBounds, "%s: %v", i, err)
		}
		return k(v)
	}
	name := "prevValue"
	if kind.increments() {
		name = "nextValue"
	}
	return f.invokeVirtual(old, Signature{Name: name}, nil, func(vals []Value) Disposition {
		return k(first(vals))
	})
}

// execIP updates a register in place.
func (f *Frame) execIP(in IP) Disposition {
	if in.Target < 0 {
		panic(newFault(FaultBadOperand, "%s: in-place target %d is not a register", f.method, in.Target))
	}
	old, d := f.get(in.Target)
	if d != Next {
		return d
	}
	var arg Value
	if _, ok := inPlaceBinary[in.Kind]; ok {
		if arg, d = f.get(in.Arg); d != Next {
			return d
		}
	}
	return f.inPlace(in.Kind, old, arg, func(v Value) Disposition { return f.set(in.Target, v) }, in.Dest)
}
