package vm

// ---------------------------------------------------------------------------
// Declarations and moves
// ---------------------------------------------------------------------------

// declaredType resolves the type operand of a declaration. Non-constant
// operands declare an untyped register.
func (f *Frame) declaredType(a int) *TypeBinding {
	if !isConstant(a) {
		return nil
	}
	t, err := f.pool.Type(a)
	if err != nil {
		panic(newFault(FaultBadOperand, "%s: %v", f.method, err))
	}
	return t
}

// declareInit declares a register and initialises it from operand a.
func (f *Frame) declareInit(typeOp, nameOp, a int) Disposition {
	v, d := f.get(a)
	if d != Next {
		return d
	}
	t := f.declaredType(typeOp)
	if t != nil && !f.registry().IsA(v, t) && !IsNull(v) {
		return f.raiseNew(TypeTypeMismatch, "%s is not a %s", describe(v), t)
	}
	r := f.declare(t, f.optionalName(nameOp), StyleStandard)
	f.regs[r] = v
	return Next
}

func (f *Frame) execVarT(in VarT) Disposition {
	values, d := f.getAll(in.Args)
	if d != Next {
		return d
	}
	r := f.declare(f.declaredType(in.Type), "", StyleStandard)
	f.regs[r] = NewTuple(values...)
	return Next
}

func (f *Frame) execVarS(in VarS) Disposition {
	values, d := f.getAll(in.Args)
	if d != Next {
		return d
	}
	r := f.declare(f.declaredType(in.Type), "", StyleStandard)
	f.regs[r] = NewArray(values...)
	return Next
}

func (f *Frame) execMove(in Move) Disposition {
	v, d := f.get(in.From)
	if d != Next {
		return d
	}
	return f.set(in.To, v)
}

// execMoveRef stores a reference to register From. A dynamic From shares
// its cell; a dynamic To is rebound to the reference.
func (f *Frame) execMoveRef(in MoveRef) Disposition {
	if in.From < 0 {
		panic(newFault(FaultBadOperand, "%s: reference to non-register operand %d", f.method, in.From))
	}
	var c Cell
	if f.isDynamic(in.From) {
		c = f.regs[in.From].(Cell)
	} else {
		c = newRegisterRef(f, in.From)
	}
	return f.storeCell(in.To, c)
}

// execMoveVar copies the cell of dynamic register From.
func (f *Frame) execMoveVar(in MoveVar) Disposition {
	if !f.isDynamic(in.From) {
		panic(newFault(FaultBadOperand, "%s: r%d is not a dynamic register", f.method, in.From))
	}
	return f.storeCell(in.To, f.regs[in.From].(Cell))
}

// storeCell rebinds a dynamic register to c, or stores c as a value.
func (f *Frame) storeCell(to int, c Cell) Disposition {
	if f.isDynamic(to) {
		f.bindCell(to, c)
		return Next
	}
	return f.set(to, c)
}

// ---------------------------------------------------------------------------
// Fields
// ---------------------------------------------------------------------------

// field resolves a property operand against obj.
func (f *Frame) field(obj *Object, prop int) (int, Disposition) {
	name, err := f.pool.Name(prop)
	if err != nil {
		panic(newFault(FaultBadOperand, "%s: %v", f.method, err))
	}
	i := obj.binding.FieldIndex(name)
	if i < 0 {
		return -1, f.raiseNew(TypeUnsupported, "%s has no property %s", obj.binding, name)
	}
	return i, Next
}

// checkWritable verifies that the running context may mutate obj.
func (f *Frame) checkWritable(obj *Object) Disposition {
	if obj.immutable {
		return f.raiseNew(TypeReadOnly, "%s is immutable", obj.binding)
	}
	if obj.owner != nil && obj.owner != f.ctx() {
		panic(newFault(FaultForeignMutation, "%s: mutation of %s owned by %s", f.method, obj.binding, obj.owner.Name))
	}
	return Next
}

func (f *Frame) targetObject(a int) (*Object, Disposition) {
	v, d := f.get(a)
	if d != Next {
		return nil, d
	}
	obj, ok := v.(*Object)
	if !ok {
		return nil, f.raiseNew(TypeUnsupported, "%s has no properties", describe(v))
	}
	return obj, Next
}

// foreign reports whether obj is a service owned by another context.
func (f *Frame) foreign(obj *Object) bool {
	return obj.isServiceInstance() && obj.owner != nil && obj.owner != f.ctx()
}

func (f *Frame) getField(obj *Object, prop, dest int) Disposition {
	if f.foreign(obj) {
		return f.foreignPropertyGet(obj, prop, dest)
	}
	i, d := f.field(obj, prop)
	if d != Next {
		return d
	}
	v := obj.fields[i]
	if v == nil {
		return f.raiseNew(TypeIllegalState, "%s.%s is unassigned", obj.binding, obj.binding.Layout()[i].Name)
	}
	return f.set(dest, v)
}

func (f *Frame) setField(obj *Object, prop int, v Value) Disposition {
	if f.foreign(obj) {
		return f.foreignPropertySet(obj, prop, v)
	}
	i, d := f.field(obj, prop)
	if d != Next {
		return d
	}
	if d := f.checkWritable(obj); d != Next {
		return d
	}
	if IsNull(v) && !obj.binding.Layout()[i].Nullable {
		return f.raiseNew(TypeIllegalArgument, "%s.%s is not nullable", obj.binding, obj.binding.Layout()[i].Name)
	}
	obj.fields[i] = v
	return Next
}

func (f *Frame) execLGet(in LGet) Disposition {
	obj, d := f.targetObject(ArgThis)
	if d != Next {
		return d
	}
	return f.getField(obj, in.Prop, in.Dest)
}

func (f *Frame) execLSet(in LSet) Disposition {
	obj, d := f.targetObject(ArgThis)
	if d != Next {
		return d
	}
	v, d := f.get(in.Arg)
	if d != Next {
		return d
	}
	return f.setField(obj, in.Prop, v)
}

func (f *Frame) execPGet(in PGet) Disposition {
	obj, d := f.targetObject(in.Target)
	if d != Next {
		return d
	}
	return f.getField(obj, in.Prop, in.Dest)
}

func (f *Frame) execPSet(in PSet) Disposition {
	obj, d := f.targetObject(in.Target)
	if d != Next {
		return d
	}
	v, d := f.get(in.Arg)
	if d != Next {
		return d
	}
	return f.setField(obj, in.Prop, v)
}

func (f *Frame) execPRef(in PRef) Disposition {
	obj, d := f.targetObject(in.Target)
	if d != Next {
		return d
	}
	if f.foreign(obj) {
		return f.raiseNew(TypeUnsupported, "reference to a property of service %s", obj.binding)
	}
	i, d := f.field(obj, in.Prop)
	if d != Next {
		return d
	}
	return f.storeCell(in.Dest, newFieldRef(obj, i))
}

// ---------------------------------------------------------------------------
// Indexed access
// ---------------------------------------------------------------------------

// index reads an Int index operand.
func (f *Frame) index(a int) (int64, Disposition) {
	v, d := f.get(a)
	if d != Next {
		return 0, d
	}
	i, ok := v.(Int)
	if !ok {
		return 0, f.raiseNew(TypeTypeMismatch, "index %s is not an Int", describe(v))
	}
	return int64(i), Next
}

// writableContainer checks ownership of a mutable array.
func (f *Frame) writableContainer(c Indexed) Disposition {
	if a, ok := c.(*Array); ok && a.immutable {
		return f.raiseNew(TypeReadOnly, "array is immutable")
	}
	return Next
}

func (f *Frame) execIGet(in IGet) Disposition {
	target, d := f.get(in.Target)
	if d != Next {
		return d
	}
	i, d := f.index(in.Index)
	if d != Next {
		return d
	}
	if c, ok := target.(Indexed); ok {
		v, err := c.ElementAt(i)
		if err != nil {
			return f.raiseNew(arithError(err), "%s[%d]: %v", describe(target), i, err)
		}
		return f.set(in.Dest, v)
	}
	return f.invokeVirtual(target, Signature{Name: "getElement", Params: 1}, []Value{Int(i)}, func(vals []Value) Disposition {
		return f.set(in.Dest, first(vals))
	})
}

func (f *Frame) execISet(in ISet) Disposition {
	target, d := f.get(in.Target)
	if d != Next {
		return d
	}
	i, d := f.index(in.Index)
	if d != Next {
		return d
	}
	v, d := f.get(in.Arg)
	if d != Next {
		return d
	}
	if c, ok := target.(Indexed); ok {
		if d := f.writableContainer(c); d != Next {
			return d
		}
		if err := c.SetElementAt(i, v); err != nil {
			return f.raiseError(err)
		}
		return Next
	}
	return f.invokeVirtual(target, Signature{Name: "setElement", Params: 2}, []Value{Int(i), v}, func([]Value) Disposition {
		return Next
	})
}

func (f *Frame) execIRef(in IRef) Disposition {
	target, d := f.get(in.Target)
	if d != Next {
		return d
	}
	i, d := f.index(in.Index)
	if d != Next {
		return d
	}
	c, ok := target.(Indexed)
	if !ok {
		return f.raiseNew(TypeUnsupported, "reference to an element of %s", describe(target))
	}
	if i < 0 || i >= c.Size() {
		return f.raiseNew(TypeOutOfBounds, "index %d of %d elements", i, c.Size())
	}
	return f.storeCell(in.Dest, newElementRef(c, i))
}

func (f *Frame) execIIP(in IIP) Disposition {
	target, d := f.get(in.Target)
	if d != Next {
		return d
	}
	i, d := f.index(in.Index)
	if d != Next {
		return d
	}
	c, ok := target.(Indexed)
	if !ok {
		return f.raiseNew(TypeUnsupported, "in-place update of an element of %s", describe(target))
	}
	if d := f.writableContainer(c); d != Next {
		return d
	}
	old, err := c.ElementAt(i)
	if err != nil {
		return f.raiseError(err)
	}
	var arg Value
	if _, ok := inPlaceBinary[in.Kind]; ok {
		if arg, d = f.get(in.Arg); d != Next {
			return d
		}
	}
	return f.inPlace(in.Kind, old, arg, func(v Value) Disposition {
		if err := c.SetElementAt(i, v); err != nil {
			return f.raiseError(err)
		}
		return Next
	}, in.Dest)
}

// ---------------------------------------------------------------------------
// Binding
// ---------------------------------------------------------------------------

func (f *Frame) execMBind(in MBind) Disposition {
	recv, d := f.get(in.Target)
	if d != Next {
		return d
	}
	sig, err := f.pool.Signature(in.Method)
	if err != nil {
		panic(newFault(FaultBadOperand, "%s: %v", f.method, err))
	}
	binding := f.registry().TypeOf(recv)
	chain := binding.Chain(sig)
	if chain.IsEmpty() {
		return f.raiseNew(TypeUnsupported, "%s has no method %s", binding, sig)
	}
	return f.set(in.Dest, bindMethod(chain, 0, recv))
}

func (f *Frame) execFBind(in FBind) Disposition {
	v, d := f.get(in.Fn)
	if d != Next {
		return d
	}
	fn, ok := v.(*Function)
	if !ok {
		return f.raiseNew(TypeTypeMismatch, "%s is not a function", describe(v))
	}
	positions := make([]int, len(in.Bindings))
	values := make([]Value, len(in.Bindings))
	for i, b := range in.Bindings {
		positions[i] = b.Index
		if values[i], d = f.get(b.Arg); d != Next {
			return d
		}
	}
	bound, err := fn.bind(positions, values)
	if err != nil {
		return f.raiseNew(TypeIllegalArgument, "%v", err)
	}
	return f.set(in.Dest, bound)
}

// ---------------------------------------------------------------------------
// Raising
// ---------------------------------------------------------------------------

func (f *Frame) execThrow(in Throw) Disposition {
	v, d := f.get(in.Arg)
	if d != Next {
		return d
	}
	ex, ok := v.(*Object)
	if !ok || !ex.binding.IsA(f.registry().Exception) {
		return f.raiseNew(TypeTypeMismatch, "throw of non-exception %s", describe(v))
	}
	ex.freeze()
	return f.raise(ex)
}

func (f *Frame) execAssert(cond, message int) Disposition {
	v, d := f.get(cond)
	if d != Next {
		return d
	}
	ok, d := f.test(CondTrue, v)
	if d != Next {
		return d
	}
	if ok {
		return Next
	}
	text := "assertion failed"
	if message != ArgIgnore {
		if name, err := f.pool.Name(message); err == nil {
			text = name
		}
	}
	return f.raiseNew(TypeAssertion, "%s", text)
}
