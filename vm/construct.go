package vm

import (
	"strings"
)

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

// An instance is built in its struct phase by a constructor frame. Nested
// constructors reached through Construct delegate on the same struct and
// register their finalizers with the delegating frame. Once the outermost
// constructor returns and every field is assigned, the instance is
// promoted and the finalizers run innermost first. If construction throws,
// the finalizers of the delegations that completed still run against the
// struct, then the exception propagates.

// execNew runs the New forms.
func (f *Frame) execNew(ctorOp int, argOps []int, dest int) Disposition {
	ctor := f.constructor(ctorOp)
	args, d := f.getAll(argOps)
	if d != Next {
		return d
	}
	t := ctor.Owner
	if t.IsService() {
		return f.newService(ctor, args, dest)
	}
	if t.Format == FormatNative || t.Format == FormatInterface || t.Format == FormatMixin {
		return f.raiseNew(TypeUnsupported, "%s cannot be instantiated", t)
	}
	obj := newStruct(t, f.ctx())
	return f.construct(ctor, obj, args, single(dest))
}

// constructor resolves a constructor constant.
func (f *Frame) constructor(op int) *Method {
	ctor, err := f.pool.Method(op)
	if err != nil {
		panic(newFault(FaultBadOperand, "%s: %v", f.method, err))
	}
	if !ctor.Constructor || ctor.Owner == nil {
		panic(newFault(FaultBadOperand, "%s: %s is not a constructor", f.method, ctor))
	}
	return ctor
}

// construct runs ctor on the struct obj and delivers the promoted object
// to ret.
func (f *Frame) construct(ctor *Method, obj *Object, args []Value, ret returnDest) Disposition {
	callee := newFrame(ctor, obj, nil, 0, args)
	callee.ownFinalizer = ctor.Finalizer
	callee.ret = returnDest{kind: retCapture}
	callee.onReturn = func() Disposition {
		return f.completeConstruction(obj, callee, ret)
	}
	callee.onThrow = func(ex *Object) Disposition {
		return f.runFinalizers(obj, callee.finalizers, ex)
	}
	return f.push(callee)
}

func (f *Frame) completeConstruction(obj *Object, callee *Frame, ret returnDest) Disposition {
	if missing := obj.unassigned(); len(missing) > 0 {
		ex := f.registry().NewException(TypeIllegalState,
			obj.binding.Name+": unassigned fields: "+strings.Join(missing, ", "))
		ex.origin = callee.location()
		return f.runFinalizers(obj, callee.finalizers, ex)
	}

	obj.promote()
	if obj.isServiceInstance() && obj.owner != nil {
		obj.owner.setService(obj)
	}
	if d := f.deliver(ret, []Value{obj}); d != Next {
		return d
	}
	return f.runFinalizers(obj, callee.finalizerChain(), nil)
}

// finalizerChain returns the finalizers to run once this constructor
// frame completes: those of its delegations, then its own.
func (f *Frame) finalizerChain() []finalizer {
	chain := make([]finalizer, len(f.finalizers), len(f.finalizers)+1)
	copy(chain, f.finalizers)
	if f.ownFinalizer != nil {
		args := make([]Value, f.method.Params)
		copy(args, f.regs[:f.method.Params])
		chain = append(chain, finalizer{method: f.ownFinalizer, args: args})
	}
	return chain
}

// runFinalizers runs chain in order against obj. When ex is non-nil it is
// raised once every finalizer has run.
func (f *Frame) runFinalizers(obj *Object, chain []finalizer, ex *Object) Disposition {
	if len(chain) == 0 {
		if ex != nil {
			return f.raise(ex)
		}
		return Next
	}
	fin := chain[0]
	callee := newFrame(fin.method, obj, nil, 0, fin.args)
	callee.ret = returnDest{kind: retCapture}
	callee.onReturn = func() Disposition {
		return f.runFinalizers(obj, chain[1:], ex)
	}
	return f.push(callee)
}

// execConstruct runs the Construct forms: delegation from one constructor
// to another on the same struct.
func (f *Frame) execConstruct(ctorOp int, argOps []int) Disposition {
	ctor := f.constructor(ctorOp)
	obj, ok := f.this.(*Object)
	if !ok || !obj.structPhase {
		return f.raiseNew(TypeIllegalState, "%s: delegation outside construction", f.method)
	}
	if !obj.binding.IsA(ctor.Owner) {
		return f.raiseNew(TypeTypeMismatch, "%s does not extend %s", obj.binding, ctor.Owner)
	}
	args, d := f.getAll(argOps)
	if d != Next {
		return d
	}

	callee := newFrame(ctor, obj, nil, 0, args)
	callee.ownFinalizer = ctor.Finalizer
	callee.ret = returnDest{kind: retCapture}
	callee.onReturn = func() Disposition {
		f.finalizers = append(f.finalizers, callee.finalizerChain()...)
		return Next
	}
	callee.onThrow = func(ex *Object) Disposition {
		f.finalizers = append(f.finalizers, callee.finalizers...)
		return f.raise(ex)
	}
	return f.push(callee)
}

// ---------------------------------------------------------------------------
// Services
// ---------------------------------------------------------------------------

// newService creates a context for a service type and constructs the
// instance inside it. The caller awaits the instance.
func (f *Frame) newService(ctor *Method, args []Value, dest int) Disposition {
	svc := f.vm().newServiceContext(ctor.Owner.Name)
	n := len(args)
	argRegs := make([]int, n)
	for i := range argRegs {
		argRegs[i] = i
	}
	boot := &Method{
		Name:      "construct",
		Owner:     ctor.Owner,
		Params:    n,
		Returns:   1,
		Registers: n + 1,
		Static:    true,
		Pool:      ctor.Pool,
		Code: []Instruction{
			newLocal{ctor: ctor, args: argRegs, dest: n},
			Return1{Arg: n},
		},
	}
	fn := &Function{method: boot, bound: padArgs(args, n)}
	return f.marshal(svc, fn, 1, single(dest), nil)
}

// execNewLocal constructs a service instance owned by the running context.
func (f *Frame) execNewLocal(in newLocal) Disposition {
	args, d := f.getAll(in.args)
	if d != Next {
		return d
	}
	obj := newStruct(in.ctor.Owner, f.ctx())
	return f.construct(in.ctor, obj, args, single(in.dest))
}

// foreignPropertyGet reads a property of a service owned by another
// context by posting a request to it.
func (f *Frame) foreignPropertyGet(obj *Object, prop int, dest int) Disposition {
	thunk := &Method{
		Name:      "get",
		Owner:     obj.binding,
		Returns:   1,
		Registers: 1,
		Pool:      f.pool,
		Code: []Instruction{
			PGet{Target: ArgThis, Prop: prop, Dest: 0},
			Return1{Arg: 0},
		},
	}
	return f.marshal(obj.owner, &Function{method: thunk, target: obj}, 1, single(dest), nil)
}

// foreignPropertySet writes a property of a service owned by another
// context.
func (f *Frame) foreignPropertySet(obj *Object, prop int, v Value) Disposition {
	thunk := &Method{
		Name:      "set",
		Owner:     obj.binding,
		Params:    1,
		Registers: 1,
		Pool:      f.pool,
		Code: []Instruction{
			PSet{Target: ArgThis, Prop: prop, Arg: 0},
			Return0{},
		},
	}
	return f.marshal(obj.owner, &Function{method: thunk, target: obj, bound: []Value{v}}, 0, returnDest{}, nil)
}
