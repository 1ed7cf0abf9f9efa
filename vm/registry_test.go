package vm

import (
	"errors"
	"testing"
)

// loaderFunc adapts a function to TypeLoader.
type loaderFunc func(name string) (*TypeBinding, error)

func (f loaderFunc) LoadType(name string) (*TypeBinding, error) { return f(name) }

func TestRegistryLookupWithoutLoader(t *testing.T) {
	r := NewRegistry(nil)
	if _, err := r.Lookup("Missing"); !errors.Is(err, ErrUnknownType) {
		t.Errorf("err = %v, want ErrUnknownType", err)
	}
	for _, name := range []string{TypeObject, TypeInt, TypeException, TypeServiceTerminated} {
		if _, err := r.Lookup(name); err != nil {
			t.Errorf("well-known %s: %v", name, err)
		}
	}
}

func TestRegistryLoaderIsCached(t *testing.T) {
	var r *Registry
	calls := 0
	r = NewRegistry(loaderFunc(func(name string) (*TypeBinding, error) {
		calls++
		switch name {
		case "Point":
			p := NewTypeBinding("Point", FormatConst, r.Object, Field{Name: "x"})
			p.AddMethod(NewMethod("x", 0, 1, 0, Return1{Arg: ConstArg(0)}))
			return p, nil
		case "Renamed":
			return NewTypeBinding("Other", FormatClass, r.Object), nil
		}
		return nil, errors.New("no such file")
	}))

	first, err := r.Lookup("Point")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	second, err := r.Lookup("Point")
	if err != nil {
		t.Fatal(err)
	}
	if first != second || calls != 1 {
		t.Errorf("loader called %d times, bindings shared = %v", calls, first == second)
	}
	if !first.IsConst() {
		t.Error("Point should be a const type")
	}

	if _, err := r.Lookup("Renamed"); !errors.Is(err, ErrUnknownType) {
		t.Errorf("renamed binding: err = %v, want ErrUnknownType", err)
	}
	if _, err := r.Lookup("Nowhere"); err == nil {
		t.Error("expected the loader's error")
	}
}

func TestRegistryDefine(t *testing.T) {
	r := NewRegistry(nil)
	a := NewTypeBinding("A", FormatClass, r.Object)
	if err := r.Define(a); err != nil {
		t.Fatal(err)
	}
	if err := r.Define(NewTypeBinding("A", FormatClass, r.Object)); err == nil {
		t.Error("expected an error defining A twice")
	}

	broken := NewTypeBinding("Broken", FormatClass, r.Object)
	broken.AddMethod(NewMethod("run", 2, 0, 1, Return0{}))
	if err := r.Define(broken); err == nil {
		t.Error("expected an error for params exceeding registers")
	}

	names := r.Names()
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("names not sorted: %v", names)
		}
	}
}

func TestRegistryHierarchy(t *testing.T) {
	r := NewRegistry(nil)
	tests := []struct {
		value Value
		typ   *TypeBinding
		want  bool
	}{
		{Int(1), r.Int, true},
		{Int(1), r.Object, true},
		{String("s"), r.Int, false},
		{Bool(true), r.Boolean, true},
		{r.NewException(TypeIllegalState, "x"), r.Exception, true},
		{r.NewException(TypeServiceTerminated, "x"), r.Exception, true},
	}
	for _, tt := range tests {
		if got := r.IsA(tt.value, tt.typ); got != tt.want {
			t.Errorf("IsA(%s, %s) = %v, want %v", tt.value, tt.typ.Name, got, tt.want)
		}
	}
}
