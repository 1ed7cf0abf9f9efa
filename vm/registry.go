package vm

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownType is returned when a type name cannot be resolved.
var ErrUnknownType = errors.New("unknown type")

// TypeLoader supplies type bindings the registry does not know yet.
type TypeLoader interface {
	LoadType(name string) (*TypeBinding, error)
}

// Names of the well-known types created by the registry.
const (
	TypeObject            = "Object"
	TypeNullable          = "Nullable"
	TypeBoolean           = "Boolean"
	TypeInt               = "Int"
	TypeString            = "String"
	TypeArray             = "Array"
	TypeTuple             = "Tuple"
	TypeFunction          = "Function"
	TypeRef               = "Ref"
	TypeFuture            = "Future"
	TypeConst             = "Const"
	TypeService           = "Service"
	TypeConsole           = "Console"
	TypeException         = "Exception"
	TypeIllegalState      = "IllegalState"
	TypeIllegalArgument   = "IllegalArgument"
	TypeOutOfBounds       = "OutOfBounds"
	TypeReadOnly          = "ReadOnly"
	TypeUnsupported       = "Unsupported"
	TypeDivisionByZero    = "DivisionByZero"
	TypeAssertion         = "Assertion"
	TypeStackOverflow     = "StackOverflow"
	TypeServiceTerminated = "ServiceTerminated"
	TypeTypeMismatch      = "TypeMismatch"
	TypeTimedOut          = "TimedOut"
)

// ---------------------------------------------------------------------------
// Registry: type name -> binding
// ---------------------------------------------------------------------------

// Registry resolves type names to bindings. It is created with the
// well-known types already defined and consults its TypeLoader for names
// it does not know. Bindings are cached for the registry's lifetime.
type Registry struct {
	mu     sync.RWMutex
	types  map[string]*TypeBinding
	loader TypeLoader

	// Well-known bindings
	Object    *TypeBinding
	Nullable  *TypeBinding
	Boolean   *TypeBinding
	Int       *TypeBinding
	String    *TypeBinding
	Array     *TypeBinding
	Tuple     *TypeBinding
	Function  *TypeBinding
	Ref       *TypeBinding
	Future    *TypeBinding
	Const     *TypeBinding
	Service   *TypeBinding
	Console   *TypeBinding
	Exception *TypeBinding
}

// NewRegistry creates a registry holding the well-known types. loader may
// be nil.
func NewRegistry(loader TypeLoader) *Registry {
	r := &Registry{
		types:  make(map[string]*TypeBinding),
		loader: loader,
	}
	r.bootstrap()
	return r
}

func (r *Registry) bootstrap() {
	r.Object = r.mustDefine(NewTypeBinding(TypeObject, FormatClass, nil))
	r.Object.AddNative("toString", 0, 1)
	r.Object.AddNative("equals", 1, 1)

	r.Nullable = r.mustDefine(NewTypeBinding(TypeNullable, FormatNative, r.Object))
	r.Const = r.mustDefine(NewTypeBinding(TypeConst, FormatConst, r.Object))

	r.Boolean = r.mustDefine(NewTypeBinding(TypeBoolean, FormatNative, r.Object))
	for _, op := range []string{"and", "or", "xor"} {
		r.Boolean.AddNative(op, 1, 1)
	}
	r.Boolean.AddNative("not", 0, 1)

	r.Int = r.mustDefine(NewTypeBinding(TypeInt, FormatNative, r.Object))
	for _, op := range []string{"add", "sub", "mul", "div", "mod", "and", "or", "xor", "shl", "shr", "compare"} {
		r.Int.AddNative(op, 1, 1)
	}
	for _, op := range []string{"neg", "compl", "nextValue", "prevValue", "abs"} {
		r.Int.AddNative(op, 0, 1)
	}

	r.String = r.mustDefine(NewTypeBinding(TypeString, FormatNative, r.Object))
	r.String.AddNative("add", 1, 1)
	r.String.AddNative("compare", 1, 1)
	r.String.AddNative("size", 0, 1)
	r.String.AddNative("getElement", 1, 1)

	r.Array = r.mustDefine(NewTypeBinding(TypeArray, FormatNative, r.Object))
	r.Array.AddNative("size", 0, 1)
	r.Array.AddNative("add", 1, 1)
	r.Tuple = r.mustDefine(NewTypeBinding(TypeTuple, FormatNative, r.Object))
	r.Tuple.AddNative("size", 0, 1)

	r.Function = r.mustDefine(NewTypeBinding(TypeFunction, FormatNative, r.Object))
	r.Ref = r.mustDefine(NewTypeBinding(TypeRef, FormatNative, r.Object))
	r.Future = r.mustDefine(NewTypeBinding(TypeFuture, FormatNative, r.Object))

	r.Service = r.mustDefine(NewTypeBinding(TypeService, FormatService, r.Object))
	r.Service.AddNative("shutdown", 0, 0)
	r.Service.AddNative("kill", 0, 0)
	r.Service.AddNative("status", 0, 1)
	r.Service.AddNative("setTimeout", 1, 0)
	r.Service.AddNative("setReentrancy", 1, 0)

	r.Console = r.mustDefine(NewTypeBinding(TypeConsole, FormatNative, r.Object))
	r.Console.AddNative("println", 1, 0).Static = true
	r.Console.AddNative("print", 1, 0).Static = true

	r.Exception = r.mustDefine(NewTypeBinding(TypeException, FormatClass, r.Object,
		Field{Name: "text", Default: Null, Nullable: true},
		Field{Name: "cause", Default: Null, Nullable: true},
	))
	for _, name := range []string{
		TypeIllegalState, TypeIllegalArgument, TypeOutOfBounds, TypeReadOnly,
		TypeUnsupported, TypeDivisionByZero, TypeAssertion, TypeStackOverflow,
		TypeServiceTerminated, TypeTypeMismatch, TypeTimedOut,
	} {
		r.mustDefine(NewTypeBinding(name, FormatClass, r.Exception))
	}
}

func (r *Registry) mustDefine(t *TypeBinding) *TypeBinding {
	if err := r.Define(t); err != nil {
		panic(err)
	}
	return t
}

// Define adds a binding. Redefining a name is an error.
func (r *Registry) Define(t *TypeBinding) error {
	if err := t.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[t.Name]; exists {
		return fmt.Errorf("type %s already defined", t.Name)
	}
	r.types[t.Name] = t
	return nil
}

// Lookup resolves name, consulting the loader for unknown names.
func (r *Registry) Lookup(name string) (*TypeBinding, error) {
	r.mu.RLock()
	t, ok := r.types[name]
	r.mu.RUnlock()
	if ok {
		return t, nil
	}
	if r.loader == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}

	t, err := r.loader.LoadType(name)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}
	if t == nil || t.Name != name {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.types[name]; ok {
		return existing, nil
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	r.types[name] = t
	return t, nil
}

// Names returns the defined type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TypeOf returns the binding describing v.
func (r *Registry) TypeOf(v Value) *TypeBinding {
	switch val := v.(type) {
	case nil, NullValue:
		return r.Nullable
	case Bool:
		return r.Boolean
	case Int:
		return r.Int
	case String:
		return r.String
	case *Array:
		return r.Array
	case *Tuple:
		return r.Tuple
	case *Function:
		return r.Function
	case *Ref:
		return r.Ref
	case *Future:
		return r.Future
	case *Object:
		return val.binding
	}
	return r.Object
}

// IsA reports whether v is an instance of t.
func (r *Registry) IsA(v Value, t *TypeBinding) bool {
	return r.TypeOf(v).IsA(t)
}

// ---------------------------------------------------------------------------
// Engine-raised exceptions
// ---------------------------------------------------------------------------

// NewException creates a frozen exception of the named built-in type.
func (r *Registry) NewException(typeName, text string) *Object {
	t, err := r.Lookup(typeName)
	if err != nil || !t.IsA(r.Exception) {
		t = r.Exception
	}
	ex := newObject(t, nil)
	ex.setField("text", String(text))
	ex.freeze()
	return ex
}
