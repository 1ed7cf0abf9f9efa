package vm

import "errors"

// ---------------------------------------------------------------------------
// Indexed capability
// ---------------------------------------------------------------------------

// Indexed is the capability behind IGet, ISet, IRef and the IIP family.
// Values implementing it natively are accessed directly; objects whose
// binding declares getElement/setElement are accessed through calls.
type Indexed interface {
	Value
	Size() int64
	ElementAt(index int64) (Value, error)
	SetElementAt(index int64, v Value) error
}

var (
	// ErrOutOfBounds is returned for an index outside [0, Size).
	ErrOutOfBounds = errors.New("index out of bounds")
	// ErrReadOnly is returned when writing to an immutable container.
	ErrReadOnly = errors.New("container is read-only")
)

// ---------------------------------------------------------------------------
// Array
// ---------------------------------------------------------------------------

// Array is a sequence of values. Arrays created by VarS are mutable and
// owned by the creating context; Freeze makes them immutable and passable.
type Array struct {
	elements  []Value
	immutable bool
}

// NewArray creates a mutable array holding a copy of elems.
func NewArray(elems ...Value) *Array {
	a := &Array{elements: make([]Value, len(elems))}
	copy(a.elements, elems)
	return a
}

// NewConstArray creates an immutable array holding a copy of elems.
func NewConstArray(elems ...Value) *Array {
	a := NewArray(elems...)
	a.immutable = true
	return a
}

func (a *Array) Kind() Kind     { return KindArray }
func (a *Array) String() string { return formatElements("[", "]", a.elements) }

// Size returns the number of elements.
func (a *Array) Size() int64 { return int64(len(a.elements)) }

// Immutable reports whether the array rejects writes.
func (a *Array) Immutable() bool { return a.immutable }

// Freeze makes the array immutable.
func (a *Array) Freeze() *Array {
	a.immutable = true
	return a
}

// Elements returns a copy of the array's contents.
func (a *Array) Elements() []Value {
	out := make([]Value, len(a.elements))
	copy(out, a.elements)
	return out
}

// ElementAt returns the element at index.
func (a *Array) ElementAt(index int64) (Value, error) {
	if index < 0 || index >= int64(len(a.elements)) {
		return nil, ErrOutOfBounds
	}
	return a.elements[index], nil
}

// SetElementAt replaces the element at index.
func (a *Array) SetElementAt(index int64, v Value) error {
	if a.immutable {
		return ErrReadOnly
	}
	if index < 0 || index >= int64(len(a.elements)) {
		return ErrOutOfBounds
	}
	a.elements[index] = v
	return nil
}

// ---------------------------------------------------------------------------
// Tuple
// ---------------------------------------------------------------------------

// Tuple is an immutable fixed-size group of values. Tuples carry the
// packed arguments and returns of the T call variants.
type Tuple struct {
	elements []Value
}

// NewTuple creates a tuple holding a copy of elems.
func NewTuple(elems ...Value) *Tuple {
	t := &Tuple{elements: make([]Value, len(elems))}
	copy(t.elements, elems)
	return t
}

func (t *Tuple) Kind() Kind     { return KindTuple }
func (t *Tuple) String() string { return formatElements("(", ")", t.elements) }

// Size returns the number of elements.
func (t *Tuple) Size() int64 { return int64(len(t.elements)) }

// Elements returns a copy of the tuple's contents.
func (t *Tuple) Elements() []Value {
	out := make([]Value, len(t.elements))
	copy(out, t.elements)
	return out
}

// ElementAt returns the element at index.
func (t *Tuple) ElementAt(index int64) (Value, error) {
	if index < 0 || index >= int64(len(t.elements)) {
		return nil, ErrOutOfBounds
	}
	return t.elements[index], nil
}

// SetElementAt always fails: tuples are immutable.
func (t *Tuple) SetElementAt(int64, Value) error {
	return ErrReadOnly
}
