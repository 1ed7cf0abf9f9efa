package vm

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
)

// ErrNativeRetry asks the engine to run the native again on a later slice.
var ErrNativeRetry = errors.New("native operation not ready")

// NativeCall describes one invocation of a native method.
type NativeCall struct {
	VM      *VM
	Context *ServiceContext
	Method  *Method
	This    Value
	Args    []Value
}

// Key returns the dispatch key "Type.name/N".
func (c NativeCall) Key() string {
	return NativeKey(c.Method)
}

// NativeKey returns the dispatch key of a native method.
func NativeKey(m *Method) string {
	return m.String() + "/" + strconv.Itoa(m.Params)
}

// NativeDispatcher implements native methods. A method with several
// results returns them as a *Tuple.
type NativeDispatcher interface {
	Invoke(call NativeCall) (Value, error)
}

// NativeFunc implements one native method.
type NativeFunc func(call NativeCall) (Value, error)

// NativeTable is a NativeDispatcher backed by a map of dispatch keys.
// The key names the declaring type, so a native declared on Object
// serves every type that does not override it.
type NativeTable struct {
	mu    sync.RWMutex
	funcs map[string]NativeFunc
}

// NewNativeTable creates an empty table.
func NewNativeTable() *NativeTable {
	return &NativeTable{funcs: make(map[string]NativeFunc)}
}

// Register binds key ("Type.name/N") to fn.
func (t *NativeTable) Register(key string, fn NativeFunc) {
	t.mu.Lock()
	t.funcs[key] = fn
	t.mu.Unlock()
}

// Len returns the number of registered natives.
func (t *NativeTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.funcs)
}

// Invoke dispatches call to the registered function.
func (t *NativeTable) Invoke(call NativeCall) (Value, error) {
	t.mu.RLock()
	fn, ok := t.funcs[call.Key()]
	t.mu.RUnlock()
	if !ok {
		return nil, &NativeException{Type: TypeUnsupported, Text: "no native implementation of " + call.Key()}
	}
	return fn(call)
}

// Arg returns argument i, or Null.
func (c NativeCall) Arg(i int) Value {
	if i < len(c.Args) && c.Args[i] != nil {
		return c.Args[i]
	}
	return Null
}

// IntArg returns argument i as an Int.
func (c NativeCall) IntArg(i int) (Int, error) {
	v, ok := c.Arg(i).(Int)
	if !ok {
		return 0, &NativeException{Type: TypeTypeMismatch, Text: fmt.Sprintf("%s: argument %d is %s, not Int", c.Key(), i, describe(c.Arg(i)))}
	}
	return v, nil
}

// Service returns the context owning the receiver, for service natives.
func (c NativeCall) Service() (*ServiceContext, error) {
	obj, ok := c.This.(*Object)
	if !ok || !obj.isServiceInstance() || obj.owner == nil {
		return nil, errors.New(c.Key() + ": receiver is not a service")
	}
	return obj.owner, nil
}
