package vm

import (
	"errors"
)

// ---------------------------------------------------------------------------
// Call protocol
// ---------------------------------------------------------------------------

// execCall runs one of the Call forms. The target is a function constant,
// a register holding a Function, or ArgSuper.
func (f *Frame) execCall(fnOp int, args argList, ret returnDest) Disposition {
	values, d := f.getArgs(args)
	if d != Next {
		return d
	}

	switch {
	case fnOp == ArgSuper:
		return f.callSuper(values, ret, nil)

	case isConstant(fnOp):
		m, err := f.pool.Method(fnOp)
		if err != nil {
			panic(newFault(FaultBadOperand, "%s: %v", f.method, err))
		}
		if !m.Static {
			panic(newFault(FaultBadOperand, "%s: %s is not a function", f.method, m))
		}
		return f.callMethod(m, nil, 0, nil, values, ret, nil)
	}

	v, d := f.get(fnOp)
	if d != Next {
		return d
	}
	fn, ok := v.(*Function)
	if !ok {
		return f.raiseNew(TypeTypeMismatch, "%s is not a function", describe(v))
	}
	full, err := fn.arguments(values)
	if err != nil {
		return f.raiseNew(TypeIllegalArgument, "%v", err)
	}
	return f.callMethod(fn.method, fn.chain, fn.depth, fn.target, full, ret, nil)
}

// callSuper calls the implementation above the executing one in the
// active resolution chain.
func (f *Frame) callSuper(args []Value, ret returnDest, k func([]Value) Disposition) Disposition {
	if f.chain == nil {
		panic(newFault(FaultNoChain, "%s: super call without a resolution chain", f.method))
	}
	m, ok := f.chain.Super(f.depth)
	if !ok {
		panic(newFault(FaultSuperExhausted, "%s: no implementation above depth %d of %s",
			f.method, f.depth, f.chain.Signature()))
	}
	return f.callMethod(m, f.chain, f.depth+1, f.this, args, ret, k)
}

// execInvoke runs one of the Invoke forms: virtual dispatch on the
// receiver's type through the call site's cache.
func (f *Frame) execInvoke(target, methodOp int, args argList, ret returnDest) Disposition {
	recv, d := f.get(target)
	if d != Next {
		return d
	}
	values, d := f.getArgs(args)
	if d != Next {
		return d
	}
	sig, err := f.pool.Signature(methodOp)
	if err != nil {
		panic(newFault(FaultBadOperand, "%s: %v", f.method, err))
	}

	binding := f.registry().TypeOf(recv)
	site := f.method.site(f.pc)
	chain := site.Lookup(binding)
	if chain == nil {
		chain = binding.Chain(sig)
		site.Update(binding, chain)
	}
	if chain.IsEmpty() {
		return f.raiseNew(TypeUnsupported, "%s has no method %s", binding, sig)
	}
	return f.callMethod(chain.Top(), chain, 0, recv, values, ret, nil)
}

// invokeVirtual dispatches sig on recv and hands the results to k.
func (f *Frame) invokeVirtual(recv Value, sig Signature, args []Value, k func([]Value) Disposition) Disposition {
	binding := f.registry().TypeOf(recv)
	chain := binding.Chain(sig)
	if chain.IsEmpty() {
		return f.raiseNew(TypeUnsupported, "%s has no method %s", binding, sig)
	}
	return f.callMethod(chain.Top(), chain, 0, recv, args, returnDest{}, k)
}

// callMethod invokes m. A receiver owned by another service is reached by
// marshalling; natives run synchronously; anything else pushes a frame.
// When k is non-nil it receives the results instead of ret.
func (f *Frame) callMethod(m *Method, chain *ResolutionChain, depth int, this Value,
	args []Value, ret returnDest, k func([]Value) Disposition) Disposition {

	if obj, ok := this.(*Object); ok && obj.isServiceInstance() && obj.owner != f.ctx() && !f.isServiceControl(m) {
		fn := &Function{method: m, chain: chain, depth: depth, target: obj, bound: padArgs(args, m.Params)}
		return f.marshal(obj.owner, fn, m.Returns, ret, k)
	}

	f.vm().profiler.RecordInvocation(m)
	if m.Native {
		return f.callNative(m, this, args, ret, k)
	}
	if m.Abstract {
		return f.raiseNew(TypeUnsupported, "%s is abstract", m)
	}

	callee := newFrame(m, this, chain, depth, args)
	callee.ret = ret
	if k != nil {
		callee.ret = returnDest{kind: retCapture}
		callee.onReturn = func() Disposition { return k(callee.results) }
	}
	return f.push(callee)
}

// isServiceControl reports whether m is one of the Service natives that
// act on the context handle itself and therefore run in the caller.
func (f *Frame) isServiceControl(m *Method) bool {
	return m.Native && m.Owner == f.registry().Service
}

func padArgs(args []Value, n int) []Value {
	out := make([]Value, n)
	copy(out, args)
	return out
}

// ---------------------------------------------------------------------------
// Native methods
// ---------------------------------------------------------------------------

func (f *Frame) callNative(m *Method, this Value, args []Value, ret returnDest, k func([]Value) Disposition) Disposition {
	natives := f.vm().natives
	if natives == nil {
		return f.raiseNew(TypeUnsupported, "no native library for %s", m)
	}
	for i, a := range args {
		if a == nil {
			args[i] = m.defaultFor(i)
		}
	}

	v, err := natives.Invoke(NativeCall{VM: f.vm(), Context: f.ctx(), Method: m, This: this, Args: args})
	if err != nil {
		if errors.Is(err, ErrNativeRetry) {
			return Pause
		}
		return f.raiseError(err)
	}

	var values []Value
	switch {
	case m.Returns == 0:
	case m.Returns > 1:
		t, ok := v.(*Tuple)
		if !ok {
			return f.raiseNew(TypeIllegalState, "native %s returned %s for %d results", m, describe(v), m.Returns)
		}
		values = t.Elements()
	default:
		if v == nil {
			v = Null
		}
		values = []Value{v}
	}
	if k != nil {
		return k(values)
	}
	return f.deliver(ret, values)
}

// nativeTrampoline wraps native m in a method a fiber can run as its
// bottom frame. Requests from other contexts and from Go arrive this way.
func nativeTrampoline(m *Method) *Method {
	return &Method{
		Name:      m.Name,
		Owner:     m.Owner,
		Params:    m.Params,
		Returns:   m.Returns,
		Registers: m.Params,
		Static:    m.Static,
		Pool:      m.Pool,
		Defaults:  m.Defaults,
		Code:      []Instruction{nativeCall{method: m}},
	}
}

func (f *Frame) execNativeCall(in nativeCall) Disposition {
	args := make([]Value, in.method.Params)
	copy(args, f.regs)
	f.vm().profiler.RecordInvocation(in.method)
	return f.callNative(in.method, f.this, args, returnDest{}, f.doReturn)
}

// ---------------------------------------------------------------------------
// Cross-context marshalling
// ---------------------------------------------------------------------------

// marshal posts fn to target and arranges for its results. A dynamic
// Future register as the sole destination is rebound to the future and
// execution continues; otherwise the instruction awaits the result.
func (f *Frame) marshal(target *ServiceContext, fn *Function, returns int, ret returnDest, k func([]Value) Disposition) Disposition {
	if fn.target != nil && !isPassable(fn.target) {
		return f.raiseNew(TypeIllegalArgument, "target of %s is not passable", fn.method)
	}
	for i, a := range fn.bound {
		if a != nil && !isPassable(a) {
			return f.raiseNew(TypeIllegalArgument, "argument %d of %s is not passable: %s", i, fn.method, describe(a))
		}
	}

	fu := NewFuture()
	if err := target.post(&request{fn: fn, returns: returns, future: fu, from: f.ctx(), caller: f.fiber}); err != nil {
		return f.raiseError(err)
	}
	if d := f.ctx().Timeout(); d > 0 {
		f.ctx().expireAfter(fu, fn.method, d)
	}

	if k == nil && ret.kind == retSingle && f.isFutureRegister(ret.reg) {
		f.bindCell(ret.reg, fu)
		return Next
	}
	f.await = &await{pc: f.pc, future: fu, ret: ret, k: k}
	return f.waitFor(fu)
}
