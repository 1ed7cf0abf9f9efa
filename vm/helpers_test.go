package vm

import (
	"context"
	"errors"
	"testing"
)

// fixture builds a small program around one constant pool and runs it on
// a worker-less engine, so every call drains on the test goroutine.
type fixture struct {
	t     *testing.T
	vm    *VM
	pool  *ConstantPool
	types []*TypeBinding
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		t:    t,
		vm:   NewVM(Config{Quantum: 1000, MaxDepth: 64}, testNatives()),
		pool: NewConstantPool(),
	}
}

// testNatives covers the natives the engine tests reach.
func testNatives() *NativeTable {
	natives := NewNativeTable()
	natives.Register("Object.toString/0", func(c NativeCall) (Value, error) {
		return String(c.This.String()), nil
	})
	natives.Register("Object.equals/1", func(c NativeCall) (Value, error) {
		return Bool(Equals(c.This, c.Arg(0))), nil
	})
	natives.Register("Service.kill/0", func(c NativeCall) (Value, error) {
		svc, err := c.Service()
		if err != nil {
			return nil, err
		}
		svc.Kill()
		return nil, nil
	})
	natives.Register("Service.shutdown/0", func(c NativeCall) (Value, error) {
		svc, err := c.Service()
		if err != nil {
			return nil, err
		}
		svc.Shutdown()
		return nil, nil
	})
	return natives
}

func (fx *fixture) int(i int64) int {
	return fx.pool.Add(IntConstant{Value: i})
}

func (fx *fixture) str(s string) int {
	return fx.pool.Add(StringConstant{Value: s})
}

func (fx *fixture) boolean(b bool) int {
	return fx.pool.Add(BoolConstant{Value: b})
}

func (fx *fixture) typ(name string) int {
	return fx.pool.Add(TypeConstant{Name: name})
}

func (fx *fixture) prop(name string) int {
	return fx.pool.Add(PropertyConstant{Name: name})
}

func (fx *fixture) method(typeName, name string, params int) int {
	return fx.pool.Add(MethodConstant{Type: typeName, Name: name, Params: params})
}

func (fx *fixture) sig(name string, params int) int {
	return fx.pool.Add(SignatureConstant{Name: name, Params: params})
}

func (fx *fixture) ctor(typeName string, params int) int {
	return fx.method(typeName, "construct", params)
}

// class declares a type; it is defined when the fixture is loaded.
func (fx *fixture) class(name string, format Format, super *TypeBinding, fields ...Field) *TypeBinding {
	if super == nil {
		super = fx.vm.Registry().Object
		if format == FormatService {
			super = fx.vm.Registry().Service
		}
	}
	t := NewTypeBinding(name, format, super, fields...)
	fx.types = append(fx.types, t)
	return t
}

// function declares a static function on a "Test" type.
func (fx *fixture) function(name string, params, returns, registers int, code ...Instruction) *Method {
	var host *TypeBinding
	for _, t := range fx.types {
		if t.Name == "Test" {
			host = t
		}
	}
	if host == nil {
		host = fx.class("Test", FormatClass, nil)
	}
	return host.AddMethod(NewFunction(name, params, returns, registers, code...))
}

func (fx *fixture) load() {
	fx.t.Helper()
	if err := fx.vm.Load(&Program{Pool: fx.pool, Types: fx.types}); err != nil {
		fx.t.Fatalf("Load: %v", err)
	}
}

func (fx *fixture) call(m *Method, args ...Value) ([]Value, error) {
	return fx.vm.Call(context.Background(), m, args...)
}

// run calls m and fails the test on error.
func (fx *fixture) run(m *Method, args ...Value) []Value {
	fx.t.Helper()
	got, err := fx.call(m, args...)
	if err != nil {
		fx.t.Fatalf("%s: %v", m, err)
	}
	return got
}

// uncaught calls m and returns the type of the exception it must throw.
func (fx *fixture) uncaught(m *Method, args ...Value) *UncaughtError {
	fx.t.Helper()
	_, err := fx.call(m, args...)
	var ue *UncaughtError
	if !errors.As(err, &ue) {
		fx.t.Fatalf("%s: expected an uncaught exception, got %v", m, err)
	}
	return ue
}

// fault calls m and checks that it faults with code.
func (fx *fixture) fault(m *Method, code FaultCode) {
	fx.t.Helper()
	_, err := fx.call(m)
	if !IsFault(err, code) {
		fx.t.Fatalf("%s: expected fault %s, got %v", m, code, err)
	}
}
