package vm

import "fmt"

// ---------------------------------------------------------------------------
// Disposition: the outcome of one instruction
// ---------------------------------------------------------------------------

// Disposition tells the dispatch loop what to do after an instruction.
// Non-negative values are absolute jump addresses.
type Disposition int

const (
	Next            Disposition = -1  // advance to the next instruction
	Return          Disposition = -2  // the frame completed normally
	Exception       Disposition = -3  // an exception was raised in the frame
	ReturnException Disposition = -4  // the frame completed with an exception
	Call            Disposition = -5  // a callee frame was pushed
	Repeat          Disposition = -7  // revisit this instruction once a pending value resolves
	Pause           Disposition = -10 // yield; revisit this instruction on the next slice
)

func jump(addr int) Disposition { return Disposition(addr) }

// ---------------------------------------------------------------------------
// Registers
// ---------------------------------------------------------------------------

// RegisterStyle distinguishes by-value registers from dynamic-reference
// registers, whose reads and writes go through the cell they hold.
type RegisterStyle uint8

const (
	StyleStandard RegisterStyle = iota
	StyleDynamic
)

// RegisterInfo is the metadata of one register.
type RegisterInfo struct {
	Type  *TypeBinding
	Name  string
	Style RegisterStyle

	// gen changes every time the register is declared or released.
	gen uint32
}

// ---------------------------------------------------------------------------
// Return destinations
// ---------------------------------------------------------------------------

type retKind uint8

const (
	retNone    retKind = iota // discard
	retSingle                 // one register
	retMulti                  // one register per value
	retTuple                  // pack the values into one register
	retCapture                // keep the values on the callee for a continuation
)

// returnDest describes where a callee's results go in its caller. reg is
// the destination of retSingle and retTuple; regs that of retMulti.
type returnDest struct {
	kind retKind
	reg  int
	regs []int
}

func single(reg int) returnDest {
	if reg == ArgIgnore {
		return returnDest{}
	}
	return returnDest{kind: retSingle, reg: reg}
}

func packed(reg int) returnDest {
	return returnDest{kind: retTuple, reg: reg}
}

// ---------------------------------------------------------------------------
// Frame: one activation
// ---------------------------------------------------------------------------

// Frame is the execution state of one method invocation: its registers,
// scopes, guards, program counter, pending exception and return
// destination. Frames form a stack through caller links and are only
// touched by the context running their fiber.
type Frame struct {
	fiber  *Fiber
	caller *Frame

	method *Method
	pool   *ConstantPool
	this   Value

	// The resolution chain and depth the method was selected from; used by
	// super calls.
	chain *ResolutionChain
	depth int

	regs    []Value
	info    []RegisterInfo
	nextVar []int // per scope: the next free register

	guards []guard

	pc        int
	line      int
	exception *Object

	ret     returnDest
	results []Value

	await    *await
	deferred *deferredReturn

	// Continuations run in the caller once this frame completes.
	onReturn func() Disposition
	onThrow  func(ex *Object) Disposition

	// Construction state: the constructor's own finalizer and the
	// finalizers registered by completed delegations, innermost first.
	ownFinalizer *Method
	finalizers   []finalizer

	alive bool
}

// await records a cross-context result the instruction at pc is waiting for.
type await struct {
	pc     int
	future *Future
	ret    returnDest
	k      func([]Value) Disposition
}

// deferredReturn holds return values while finally blocks run. depth is the
// guard index of the finally block being run.
type deferredReturn struct {
	values []Value
	depth  int
}

// finalizer is a constructor finalizer bound to its constructor's arguments.
type finalizer struct {
	method *Method
	args   []Value
}

// newFrame creates a frame for m. Arguments fill registers 0..len(args)-1;
// a nil argument (ArgDefault) takes the parameter's default.
func newFrame(m *Method, this Value, chain *ResolutionChain, depth int, args []Value) *Frame {
	if len(args) > m.Registers {
		panic(newFault(FaultRegisterCount, "%s: %d arguments for %d registers", m, len(args), m.Registers))
	}
	if len(args) > m.Params {
		panic(newFault(FaultBadOperand, "%s: %d arguments for %d parameters", m, len(args), m.Params))
	}
	if err := m.checkShape(len(args)); err != nil {
		panic(newFault(FaultRegisterCount, "%v", err))
	}

	f := &Frame{
		method:  m,
		pool:    m.Pool,
		this:    this,
		chain:   chain,
		depth:   depth,
		regs:    make([]Value, m.Registers),
		info:    make([]RegisterInfo, m.Registers),
		nextVar: []int{m.Params},
		alive:   true,
	}
	for i := 0; i < m.Params; i++ {
		var v Value
		if i < len(args) {
			v = args[i]
		}
		if v == nil {
			v = m.defaultFor(i)
		}
		f.info[i].gen = 1
		if i < len(m.ParamNames) {
			f.info[i].Name = m.ParamNames[i]
		}
		if m.IsDynamicParam(i) {
			f.info[i].Style = StyleDynamic
			if c, ok := v.(Cell); ok {
				f.regs[i] = c
			} else {
				f.regs[i] = newBox(v)
			}
			continue
		}
		f.regs[i] = v
	}
	return f
}

// Method returns the executing method.
func (f *Frame) Method() *Method { return f.method }

// PC returns the current instruction address.
func (f *Frame) PC() int { return f.pc }

// Caller returns the calling frame, or nil at the bottom of a fiber.
func (f *Frame) Caller() *Frame { return f.caller }

func (f *Frame) ctx() *ServiceContext { return f.fiber.ctx }

func (f *Frame) vm() *VM { return f.fiber.ctx.vm }

func (f *Frame) registry() *Registry { return f.fiber.ctx.vm.registry }

// location describes the current instruction.
func (f *Frame) location() *Location {
	line := f.line
	if line == 0 {
		line = f.method.SourceLine(f.pc)
	}
	return &Location{Method: f.method.String(), PC: f.pc, Line: line}
}

// release marks the frame dead; references into it become dangling.
func (f *Frame) release() {
	f.alive = false
	f.await = nil
}

// ---------------------------------------------------------------------------
// Operand access
// ---------------------------------------------------------------------------

// get reads operand a. A disposition other than Next means the instruction
// must stop and return it: Repeat when a pending future was read, Exception
// when the read raised.
func (f *Frame) get(a int) (Value, Disposition) {
	switch {
	case a >= 0:
		if !f.isDeclared(a) {
			panic(newFault(FaultScope, "%s: read of undeclared register r%d", f.method, a))
		}
		if f.info[a].Style == StyleDynamic {
			return f.deref(a)
		}
		v := f.regs[a]
		if v == nil {
			panic(newFault(FaultBadOperand, "%s: read of unassigned register r%d", f.method, a))
		}
		return v, Next

	case a == ArgThis:
		if f.this == nil {
			panic(newFault(FaultBadOperand, "%s: no target", f.method))
		}
		return f.this, Next

	case a == ArgDefault:
		return nil, Next

	case isConstant(a):
		v, err := f.pool.Value(a)
		if err != nil {
			panic(newFault(FaultBadOperand, "%s: %v", f.method, err))
		}
		return v, Next
	}
	panic(newFault(FaultBadOperand, "%s: operand %d is not readable", f.method, a))
}

// deref reads through the cell of dynamic register a.
func (f *Frame) deref(a int) (Value, Disposition) {
	switch c := f.regs[a].(type) {
	case *Ref:
		v, err := c.Get()
		if err != nil {
			return nil, f.raiseError(err)
		}
		if v == nil {
			panic(newFault(FaultBadOperand, "%s: read of unassigned variable r%d", f.method, a))
		}
		return v, Next
	case *Future:
		values, ex, done := c.Poll()
		if !done {
			return nil, f.waitFor(c)
		}
		if ex != nil {
			return nil, f.raise(ex)
		}
		if len(values) == 0 || values[0] == nil {
			return Null, Next
		}
		return values[0], Next
	}
	panic(newFault(FaultBadOperand, "%s: dynamic register r%d holds no cell", f.method, a))
}

// getAll reads several operands.
func (f *Frame) getAll(operands []int) ([]Value, Disposition) {
	values := make([]Value, len(operands))
	for i, a := range operands {
		v, d := f.get(a)
		if d != Next {
			return nil, d
		}
		values[i] = v
	}
	return values, Next
}

// getArgs reads a call's arguments.
func (f *Frame) getArgs(args argList) ([]Value, Disposition) {
	switch args.kind {
	case argOne:
		v, d := f.get(args.one)
		if d != Next {
			return nil, d
		}
		return []Value{v}, Next
	case argRegs:
		return f.getAll(args.regs)
	case argTuple:
		v, d := f.get(args.one)
		if d != Next {
			return nil, d
		}
		t, ok := v.(*Tuple)
		if !ok {
			return nil, f.raiseNew(TypeTypeMismatch, "expected a tuple of arguments, got %s", describe(v))
		}
		return t.Elements(), Next
	}
	return nil, Next
}

// set writes v to operand a, declaring the next free register implicitly.
func (f *Frame) set(a int, v Value) Disposition {
	if a == ArgIgnore {
		return Next
	}
	if a < 0 {
		panic(newFault(FaultBadOperand, "%s: operand %d is not assignable", f.method, a))
	}
	f.ensureDeclared(a)
	if f.info[a].Style == StyleDynamic {
		switch c := f.regs[a].(type) {
		case *Ref:
			if err := c.Set(v); err != nil {
				return f.raiseError(err)
			}
			return Next
		default:
			f.regs[a] = newBox(v)
			return Next
		}
	}
	f.regs[a] = v
	return Next
}

// isDynamic reports whether register a is a declared dynamic register.
func (f *Frame) isDynamic(a int) bool {
	return a >= 0 && f.isDeclared(a) && f.info[a].Style == StyleDynamic
}

// isFutureRegister reports whether a is a dynamic register of type Future.
func (f *Frame) isFutureRegister(a int) bool {
	return f.isDynamic(a) && f.info[a].Type == f.registry().Future
}

// bindCell rebinds dynamic register a to cell c.
func (f *Frame) bindCell(a int, c Cell) {
	if !f.isDynamic(a) {
		panic(newFault(FaultBadOperand, "%s: r%d is not a dynamic register", f.method, a))
	}
	f.regs[a] = c
}

// waitFor suspends the fiber until fu resolves.
func (f *Frame) waitFor(fu *Future) Disposition {
	f.fiber.blockedOn = fu
	return Repeat
}

// resumeAwait completes a cross-context call whose result has arrived.
func (f *Frame) resumeAwait() Disposition {
	aw := f.await
	values, ex, done := aw.future.Poll()
	if !done {
		return f.waitFor(aw.future)
	}
	f.await = nil
	if ex != nil {
		return f.raise(ex)
	}
	if aw.k != nil {
		return aw.k(values)
	}
	return f.deliver(aw.ret, values)
}

// deliver stores results according to ret.
func (f *Frame) deliver(ret returnDest, values []Value) Disposition {
	switch ret.kind {
	case retSingle:
		return f.set(ret.reg, first(values))
	case retMulti:
		for i, r := range ret.regs {
			v := Null
			if i < len(values) && values[i] != nil {
				v = values[i]
			}
			if d := f.set(r, v); d != Next {
				return d
			}
		}
	case retTuple:
		return f.set(ret.reg, NewTuple(values...))
	}
	return Next
}

func first(values []Value) Value {
	if len(values) == 0 || values[0] == nil {
		return Null
	}
	return values[0]
}

// ---------------------------------------------------------------------------
// Raising
// ---------------------------------------------------------------------------

// raise makes ex the frame's pending exception.
func (f *Frame) raise(ex *Object) Disposition {
	if ex.origin == nil {
		ex.origin = f.location()
	}
	f.exception = ex
	return Exception
}

// raiseNew raises a new exception of a built-in type.
func (f *Frame) raiseNew(typeName, format string, args ...interface{}) Disposition {
	return f.raise(f.registry().NewException(typeName, fmt.Sprintf(format, args...)))
}
