package vm

import (
	"fmt"
	"strings"
)

// Object is an instance of a class, const or service type, or an
// exception.
//
// An object is created in its struct phase: fields are writable and may
// be unassigned. When construction completes it is promoted to its public
// form; instances of const types (and thrown exceptions) are frozen.
type Object struct {
	binding *TypeBinding
	fields  []Value

	structPhase bool
	immutable   bool

	// owner is the context that created the object, or for a service
	// instance, the service's own context. Frozen objects may be shared.
	owner *ServiceContext

	// origin records where an exception was first raised.
	origin *Location
}

// Location identifies an instruction in a method.
type Location struct {
	Method string
	PC     int
	Line   int
}

func (l *Location) String() string {
	if l == nil {
		return "<unknown>"
	}
	if l.Line > 0 {
		return fmt.Sprintf("%s:%d (pc %d)", l.Method, l.Line, l.PC)
	}
	return fmt.Sprintf("%s (pc %d)", l.Method, l.PC)
}

// newObject creates a public-form object with every field at its default.
func newObject(t *TypeBinding, owner *ServiceContext) *Object {
	layout := t.Layout()
	o := &Object{
		binding: t,
		fields:  make([]Value, len(layout)),
		owner:   owner,
	}
	for i, f := range layout {
		o.fields[i] = f.Default
	}
	return o
}

// newStruct creates a struct-phase object for construction.
func newStruct(t *TypeBinding, owner *ServiceContext) *Object {
	o := newObject(t, owner)
	o.structPhase = true
	return o
}

func (o *Object) Kind() Kind { return KindObject }

func (o *Object) String() string {
	if o.binding.Extends(TypeException) {
		if text, ok := o.Field("text"); ok && !IsNull(text) {
			return o.binding.Name + ": " + text.String()
		}
		return o.binding.Name
	}
	var sb strings.Builder
	sb.WriteString(o.binding.Name)
	sb.WriteString("{")
	for i, f := range o.binding.Layout() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(f.Name)
		sb.WriteString("=")
		if v := o.fields[i]; v == nil {
			sb.WriteString("<unassigned>")
		} else if v == Value(o) {
			sb.WriteString("<self>")
		} else {
			sb.WriteString(v.String())
		}
	}
	sb.WriteString("}")
	return sb.String()
}

// Binding returns the object's type.
func (o *Object) Binding() *TypeBinding { return o.binding }

// Immutable reports whether the object has been frozen.
func (o *Object) Immutable() bool { return o.immutable }

// Context returns the owning context, or nil for frozen engine objects.
func (o *Object) Context() *ServiceContext { return o.owner }

// Origin returns where an exception was raised, or nil.
func (o *Object) Origin() *Location { return o.origin }

// Field returns the named field's value. ok is false when the type has no
// such field.
func (o *Object) Field(name string) (Value, bool) {
	i := o.binding.FieldIndex(name)
	if i < 0 {
		return nil, false
	}
	return o.fields[i], true
}

// setField assigns a field without ownership checks.
func (o *Object) setField(name string, v Value) bool {
	i := o.binding.FieldIndex(name)
	if i < 0 {
		return false
	}
	o.fields[i] = v
	return true
}

// unassigned returns the names of fields left unassigned by construction.
func (o *Object) unassigned() []string {
	var names []string
	for i, f := range o.binding.Layout() {
		if o.fields[i] == nil {
			names = append(names, f.Name)
		}
	}
	return names
}

// promote ends the struct phase. Const instances are frozen.
func (o *Object) promote() {
	o.structPhase = false
	if o.binding.IsConst() {
		o.freeze()
	}
}

// freeze makes the object and any mutable arrays it holds immutable.
func (o *Object) freeze() {
	if o.immutable {
		return
	}
	o.immutable = true
	for _, v := range o.fields {
		switch val := v.(type) {
		case *Array:
			val.Freeze()
		case *Object:
			if !val.binding.IsService() {
				val.freeze()
			}
		}
	}
}

// isServiceInstance reports whether o is the instance of a service type.
func (o *Object) isServiceInstance() bool {
	return o.binding.IsService()
}

// ExceptionText returns the text of an exception object.
func ExceptionText(ex *Object) string {
	if ex == nil {
		return ""
	}
	if text, ok := ex.Field("text"); ok && !IsNull(text) {
		return text.String()
	}
	return ""
}
