package vm

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// record appends marker to the log array in register logReg. log[0] holds
// the next free slot.
func record(fx *fixture, logReg, scratch int, marker string) []Instruction {
	return []Instruction{
		IGet{Target: logReg, Index: fx.int(0), Dest: scratch},
		ISet{Target: logReg, Index: scratch, Arg: fx.str(marker)},
		IIP{Kind: InPlaceInc, Target: logReg, Index: fx.int(0), Arg: ArgIgnore, Dest: ArgIgnore},
	}
}

func code(parts ...[]Instruction) []Instruction {
	var out []Instruction
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func newLog() *Array {
	return NewArray(Int(1), Null, Null, Null, Null, Null)
}

// constructionFixture declares Base(a) and Derived(b) extends Base, each
// with a constructor and a finalizer that record to a log parameter.
func constructionFixture(t *testing.T) (*fixture, *TypeBinding, *TypeBinding) {
	fx := newFixture(t)
	base := fx.class("Base", FormatClass, nil, Field{Name: "a"})
	derived := fx.class("Derived", FormatClass, base, Field{Name: "b"})

	ctor := base.AddMethod(NewConstructor(1, 2, code(
		[]Instruction{LSet{Prop: fx.prop("a"), Arg: fx.int(1)}},
		record(fx, 0, 1, "B-ctor"),
		[]Instruction{Return0{}},
	)...))
	ctor.Finalizer = NewMethod("finally", 1, 0, 2, code(record(fx, 0, 1, "B-fin"), []Instruction{Return0{}})...)

	ctor = derived.AddMethod(NewConstructor(1, 2, code(
		[]Instruction{Construct1{Ctor: fx.ctor("Base", 1), Arg: 0}},
		record(fx, 0, 1, "D-ctor"),
		[]Instruction{LSet{Prop: fx.prop("b"), Arg: fx.int(2)}, Return0{}},
	)...))
	ctor.Finalizer = NewMethod("finally", 1, 0, 2, code(record(fx, 0, 1, "D-fin"), []Instruction{Return0{}})...)
	return fx, base, derived
}

func TestConstructionFinalizerOrder(t *testing.T) {
	fx, _, _ := constructionFixture(t)
	m := fx.function("make", 1, 1, 2,
		New1{Ctor: fx.ctor("Derived", 1), Arg: 0, Dest: 1},
		Return1{Arg: 1},
	)
	fx.load()

	log := newLog()
	got := fx.run(m, log)
	obj, ok := got[0].(*Object)
	if !ok {
		t.Fatalf("result is %T, want *Object", got[0])
	}
	if obj.structPhase {
		t.Error("instance is still in its struct phase")
	}
	a, _ := obj.Field("a")
	b, _ := obj.Field("b")
	if diff := cmp.Diff([]Value{Int(1), Int(2)}, []Value{a, b}); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}

	want := []Value{Int(5), String("B-ctor"), String("D-ctor"), String("B-fin"), String("D-fin"), Null}
	if diff := cmp.Diff(want, log.Elements()); diff != "" {
		t.Errorf("log mismatch (-want +got):\n%s", diff)
	}
}

func TestThrowAfterDelegationRunsCompletedFinalizers(t *testing.T) {
	fx, base, _ := constructionFixture(t)
	broken := fx.class("Broken", FormatClass, base)
	ctor := broken.AddMethod(NewConstructor(1, 2, code(
		[]Instruction{Construct1{Ctor: fx.ctor("Base", 1), Arg: 0}},
		[]Instruction{Assert{Cond: fx.boolean(false)}},
		record(fx, 0, 1, "X-ctor"),
		[]Instruction{Return0{}},
	)...))
	ctor.Finalizer = NewMethod("finally", 1, 0, 2, code(record(fx, 0, 1, "X-fin"), []Instruction{Return0{}})...)
	m := fx.function("make", 1, 1, 2,
		New1{Ctor: fx.ctor("Broken", 1), Arg: 0, Dest: 1},
		Return1{Arg: 1},
	)
	fx.load()

	log := newLog()
	if got := fx.uncaught(m, log).TypeName(); got != TypeAssertion {
		t.Errorf("raised %s, want %s", got, TypeAssertion)
	}
	want := []Value{Int(3), String("B-ctor"), String("B-fin"), Null, Null, Null}
	if diff := cmp.Diff(want, log.Elements()); diff != "" {
		t.Errorf("log mismatch (-want +got):\n%s", diff)
	}
}

func TestUnassignedFieldFailsConstruction(t *testing.T) {
	fx := newFixture(t)
	partial := fx.class("Partial", FormatClass, nil,
		Field{Name: "a"},
		Field{Name: "b", Default: Int(0)},
	)
	partial.AddMethod(NewConstructor(0, 0, Return0{}))
	m := fx.function("make", 0, 1, 1,
		New0{Ctor: fx.ctor("Partial", 0), Dest: 0},
		Return1{Arg: 0},
	)
	fx.load()

	ue := fx.uncaught(m)
	if ue.TypeName() != TypeIllegalState {
		t.Errorf("raised %s, want %s", ue.TypeName(), TypeIllegalState)
	}
	if text := ExceptionText(ue.Exception); !strings.Contains(text, "unassigned fields: a") {
		t.Errorf("text %q does not name the unassigned field", text)
	}
}

func TestConstInstanceIsFrozen(t *testing.T) {
	fx := newFixture(t)
	point := fx.class("Point", FormatConst, fx.vm.Registry().Const, Field{Name: "x"})
	point.AddMethod(NewConstructor(1, 1, LSet{Prop: fx.prop("x"), Arg: 0}, Return0{}))
	m := fx.function("mutate", 0, 0, 1,
		New1{Ctor: fx.ctor("Point", 1), Arg: fx.int(3), Dest: 0},
		PSet{Target: 0, Prop: fx.prop("x"), Arg: fx.int(5)},
		Return0{},
	)
	fx.load()

	if got := fx.uncaught(m).TypeName(); got != TypeReadOnly {
		t.Errorf("raised %s, want %s", got, TypeReadOnly)
	}
}

func TestDelegationOutsideConstruction(t *testing.T) {
	fx, _, _ := constructionFixture(t)
	m := fx.function("delegate", 0, 0, 0,
		Construct1{Ctor: fx.ctor("Base", 1), Arg: fx.int(0)},
		Return0{},
	)
	fx.load()

	if got := fx.uncaught(m).TypeName(); got != TypeIllegalState {
		t.Errorf("raised %s, want %s", got, TypeIllegalState)
	}
}

// ---------------------------------------------------------------------------
// Virtual dispatch and super chains
// ---------------------------------------------------------------------------

// chainFixture declares A, B extends A and C extends B. value() returns 1
// on A; B and C add 10 and 100 to their super's result.
func chainFixture(t *testing.T) *fixture {
	fx := newFixture(t)
	a := fx.class("A", FormatClass, nil)
	b := fx.class("B", FormatClass, a)
	c := fx.class("C", FormatClass, b)

	a.AddMethod(NewMethod("value", 0, 1, 1, Return1{Arg: fx.int(1)}))
	for _, step := range []struct {
		tb    *TypeBinding
		delta int64
	}{{b, 10}, {c, 100}} {
		step.tb.AddMethod(NewMethod("value", 0, 1, 1,
			Call01{Fn: ArgSuper, Dest: 0},
			GP{Kind: OpAdd, Left: 0, Right: fx.int(step.delta), Dest: 0},
			Return1{Arg: 0},
		))
	}
	for _, tb := range []*TypeBinding{a, b, c} {
		tb.AddMethod(NewConstructor(0, 0, Return0{}))
	}
	return fx
}

func TestSuperChain(t *testing.T) {
	fx := chainFixture(t)
	value := fx.sig("value", 0)
	invoke := func(typeName string) *Method {
		return fx.function("value"+typeName, 0, 1, 2,
			New0{Ctor: fx.ctor(typeName, 0), Dest: 0},
			Invoke01{Target: 0, Method: value, Dest: 1},
			Return1{Arg: 1},
		)
	}
	onA, onB, onC := invoke("A"), invoke("B"), invoke("C")
	bound := fx.function("bound", 0, 1, 3,
		New0{Ctor: fx.ctor("C", 0), Dest: 0},
		MBind{Target: 0, Method: value, Dest: 1},
		Call01{Fn: 1, Dest: 2},
		Return1{Arg: 2},
	)
	fx.load()

	tests := []struct {
		name string
		m    *Method
		want Int
	}{
		{"A", onA, 1},
		{"B", onB, 11},
		{"C", onC, 111},
		{"bound method keeps its chain", bound, 111},
	}
	for _, tt := range tests {
		if diff := cmp.Diff([]Value{tt.want}, fx.run(tt.m)); diff != "" {
			t.Errorf("%s: mismatch (-want +got):\n%s", tt.name, diff)
		}
	}
}

func TestSuperFaults(t *testing.T) {
	fx := newFixture(t)
	lone := fx.class("Lone", FormatClass, nil)
	lone.AddMethod(NewMethod("value", 0, 1, 1,
		Call01{Fn: ArgSuper, Dest: 0},
		Return1{Arg: 0},
	))
	lone.AddMethod(NewConstructor(0, 0, Return0{}))
	exhausted := fx.function("exhausted", 0, 1, 2,
		New0{Ctor: fx.ctor("Lone", 0), Dest: 0},
		Invoke01{Target: 0, Method: fx.sig("value", 0), Dest: 1},
		Return1{Arg: 1},
	)
	noChain := fx.function("noChain", 0, 1, 1,
		Call01{Fn: ArgSuper, Dest: 0},
		Return1{Arg: 0},
	)
	fx.load()

	fx.fault(exhausted, FaultSuperExhausted)
	fx.fault(noChain, FaultNoChain)
}

func TestUserEqualsIsDispatched(t *testing.T) {
	fx := newFixture(t)
	ring := fx.class("Ring", FormatClass, nil)
	ring.AddMethod(NewMethod("equals", 1, 1, 1, Return1{Arg: fx.boolean(true)}))
	ring.AddMethod(NewConstructor(0, 0, Return0{}))
	m := fx.function("same", 0, 1, 2,
		New0{Ctor: fx.ctor("Ring", 0), Dest: 0},
		Compare{Kind: CmpEq, Left: 0, Right: fx.int(1), Dest: 1},
		Return1{Arg: 1},
	)
	fx.load()

	if diff := cmp.Diff([]Value{Bool(true)}, fx.run(m)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestInvokeSiteCaching(t *testing.T) {
	fx := chainFixture(t)
	m := fx.function("valueC", 0, 1, 2,
		New0{Ctor: fx.ctor("C", 0), Dest: 0},
		Invoke01{Target: 0, Method: fx.sig("value", 0), Dest: 1},
		Return1{Arg: 1},
	)
	fx.load()

	fx.run(m)
	fx.run(m)

	ic := m.sites.Get(1)
	if ic == nil {
		t.Fatal("no cache at the invoke site")
	}
	if ic.State != CacheMonomorphic || ic.Hits != 1 || ic.Misses != 1 {
		t.Errorf("cache state=%v hits=%d misses=%d, want monomorphic 1/1", ic.State, ic.Hits, ic.Misses)
	}

	stats := CollectICStats(fx.vm.Registry())
	if stats.Monomorphic != 1 || stats.TotalHits != 1 {
		t.Errorf("stats = %+v, want one monomorphic site with one hit", stats)
	}

	c, _ := fx.vm.Registry().Lookup("C")
	impl := c.DeclaredMethod(Signature{Name: "value"})
	if got := fx.vm.Profiler().Count(impl); got != 2 {
		t.Errorf("C.value invoked %d times, want 2", got)
	}
}
