package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// Value is a runtime value flowing through registers.
//
// The set of implementations is closed:
//   - NullValue, Bool, Int, String: immutable scalars
//   - *Array, *Tuple: indexed containers
//   - *Function: method references, bound and curried functions
//   - *Ref: reference cells to registers, elements, fields or boxes
//   - *Object: class and service instances, exceptions
//   - *Future: a placeholder for a cross-context result
type Value interface {
	Kind() Kind
	String() string
}

// Kind tags a Value's representation.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindString
	KindArray
	KindTuple
	KindFunction
	KindRef
	KindObject
	KindFuture
)

var kindNames = [...]string{
	KindNull:     "Null",
	KindBool:     "Boolean",
	KindInt:      "Int",
	KindString:   "String",
	KindArray:    "Array",
	KindTuple:    "Tuple",
	KindFunction: "Function",
	KindRef:      "Ref",
	KindObject:   "Object",
	KindFuture:   "Future",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// ---------------------------------------------------------------------------
// Scalars
// ---------------------------------------------------------------------------

// NullValue is the type of the Null singleton.
type NullValue struct{}

// Null is the only value of type Nullable.
var Null Value = NullValue{}

func (NullValue) Kind() Kind     { return KindNull }
func (NullValue) String() string { return "Null" }

// Bool is a Boolean value.
type Bool bool

const (
	True  Bool = true
	False Bool = false
)

func (Bool) Kind() Kind { return KindBool }

func (b Bool) String() string {
	if b {
		return "True"
	}
	return "False"
}

// Int is a 64-bit signed integer value.
type Int int64

func (Int) Kind() Kind       { return KindInt }
func (i Int) String() string { return strconv.FormatInt(int64(i), 10) }

// String is an immutable string value.
type String string

func (String) Kind() Kind       { return KindString }
func (s String) String() string { return string(s) }

// IsNull reports whether v is Null (or an unassigned register).
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(NullValue)
	return ok
}

// ---------------------------------------------------------------------------
// Immutability and passability
// ---------------------------------------------------------------------------

// IsImmutable reports whether v can never change once observed.
func IsImmutable(v Value) bool {
	switch val := v.(type) {
	case nil, NullValue, Bool, Int, String:
		return true
	case *Tuple:
		return true
	case *Array:
		return val.immutable
	case *Function:
		return val.immutable()
	case *Object:
		return val.immutable
	}
	return false
}

// isPassable reports whether v may cross a service context boundary:
// immutable values and service-bound objects are passable, everything
// else belongs to exactly one context.
func isPassable(v Value) bool {
	switch val := v.(type) {
	case nil, NullValue, Bool, Int, String:
		return true
	case *Tuple:
		for _, e := range val.elements {
			if !isPassable(e) {
				return false
			}
		}
		return true
	case *Array:
		if !val.immutable {
			return false
		}
		for _, e := range val.elements {
			if !isPassable(e) {
				return false
			}
		}
		return true
	case *Function:
		if val.target != nil && !isPassable(val.target) {
			return false
		}
		for _, a := range val.bound {
			if a != nil && !isPassable(a) {
				return false
			}
		}
		return true
	case *Object:
		return val.immutable || val.binding.IsService()
	case *Future:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Equality
// ---------------------------------------------------------------------------

// Equals implements the engine's structural equality for scalars and
// containers, and identity for objects, functions and references.
func Equals(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	switch x := a.(type) {
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case Int:
		y, ok := b.(Int)
		return ok && x == y
	case String:
		y, ok := b.(String)
		return ok && x == y
	case *Tuple:
		y, ok := b.(*Tuple)
		return ok && equalElements(x.elements, y.elements)
	case *Array:
		y, ok := b.(*Array)
		if !ok {
			return false
		}
		if x == y {
			return true
		}
		return x.immutable && y.immutable && equalElements(x.elements, y.elements)
	}
	return a == b
}

func equalElements(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equals(a[i], b[i]) {
			return false
		}
	}
	return true
}

func formatElements(open, close string, elems []Value) string {
	var sb strings.Builder
	sb.WriteString(open)
	for i, e := range elems {
		if i > 0 {
			sb.WriteString(", ")
		}
		if e == nil {
			sb.WriteString("<unassigned>")
		} else {
			sb.WriteString(e.String())
		}
	}
	sb.WriteString(close)
	return sb.String()
}

// describe renders a value for diagnostics, tolerating unassigned slots.
func describe(v Value) string {
	if v == nil {
		return "<unassigned>"
	}
	return fmt.Sprintf("%s(%s)", v.Kind(), v.String())
}
