package vm

// ---------------------------------------------------------------------------
// Guards: structured exception handling
// ---------------------------------------------------------------------------

// guard is one entry of a frame's guard stack. A catch guard lists its
// handlers in declaration order; a finally guard has a finally address.
type guard struct {
	scope    int
	handlers []handler
	finally  int // address of FinallyStart, or -1
}

type handler struct {
	typ  *TypeBinding
	name string
	addr int
}

func (g *guard) isFinally() bool { return g.finally >= 0 }

// pushCatchGuard enters a scope and installs handlers for it.
func (f *Frame) pushCatchGuard(catches []Catch) {
	f.enter()
	g := guard{scope: f.scope(), finally: -1, handlers: make([]handler, len(catches))}
	for i, c := range catches {
		t, err := f.pool.Type(c.Type)
		if err != nil {
			panic(newFault(FaultBadOperand, "%s: catch type: %v", f.method, err))
		}
		g.handlers[i] = handler{typ: t, name: f.optionalName(c.Name), addr: f.pc + c.Rel}
	}
	f.guards = append(f.guards, g)
}

// pushFinallyGuard enters a scope guarded by the finally block at addr.
func (f *Frame) pushFinallyGuard(addr int) {
	f.enter()
	f.guards = append(f.guards, guard{scope: f.scope(), finally: addr})
}

// popGuard removes the innermost guard, which must be of the given kind.
func (f *Frame) popGuard(finally bool) guard {
	n := len(f.guards)
	if n == 0 {
		panic(newFault(FaultGuard, "%s: guard stack is empty", f.method))
	}
	g := f.guards[n-1]
	if g.isFinally() != finally || g.scope != f.scope() {
		panic(newFault(FaultGuard, "%s: unbalanced guard at pc %d", f.method, f.pc))
	}
	f.guards = f.guards[:n-1]
	return g
}

// findGuard looks for a handler of ex, innermost guard first and handlers
// in declaration order. On a match every scope above the guard is cleared,
// the guard's scope is re-entered with ex in a fresh register, and the
// handler address is returned. Finally guards match every exception.
func (f *Frame) findGuard(ex *Object) Disposition {
	for i := len(f.guards) - 1; i >= 0; i-- {
		g := f.guards[i]
		addr, name := -1, ""
		if g.isFinally() {
			addr = g.finally + 1
		} else {
			for _, h := range g.handlers {
				if ex.binding.IsA(h.typ) {
					addr, name = h.addr, h.name
					break
				}
			}
		}
		if addr < 0 {
			continue
		}

		if f.deferred != nil && i < f.deferred.depth {
			// the exception leaves the finally block that was deferring a return
			f.deferred = nil
		}
		f.guards = f.guards[:i]
		f.clearScopes(g.scope - 1)
		f.enter()
		f.introduce(name, ex)
		f.exception = nil
		return jump(addr)
	}
	return ReturnException
}

// doReturn completes the frame with values, first running every finally
// block that encloses the current instruction.
func (f *Frame) doReturn(values []Value) Disposition {
	for i := len(f.guards) - 1; i >= 0; i-- {
		g := f.guards[i]
		if !g.isFinally() {
			continue
		}
		f.deferred = &deferredReturn{values: values, depth: i}
		f.guards = f.guards[:i]
		f.clearScopes(g.scope - 1)
		f.enter()
		f.introduce("", Null)
		return jump(g.finally + 1)
	}
	f.deferred = nil
	f.results = values
	return Return
}

// finallyStart handles fall-through into a finally block.
func (f *Frame) finallyStart() Disposition {
	g := f.popGuard(true)
	if g.finally != f.pc {
		panic(newFault(FaultGuard, "%s: finally at pc %d belongs to pc %d", f.method, f.pc, g.finally))
	}
	f.exit()
	f.enter()
	f.introduce("", Null)
	return Next
}

// finallyEnd closes a finally block: a propagating exception is rethrown,
// a deferred return resumes, otherwise execution continues.
func (f *Frame) finallyEnd() Disposition {
	if f.scope() == 0 {
		panic(newFault(FaultGuard, "%s: finally end outside a finally block", f.method))
	}
	pending := f.regs[f.scopeFloor()]
	f.exit()

	if ex, ok := pending.(*Object); ok {
		return f.raise(ex)
	}
	if d := f.deferred; d != nil && d.depth == len(f.guards) {
		return f.doReturn(d.values)
	}
	return Next
}

// optionalName resolves a name operand; non-constant operands are anonymous.
func (f *Frame) optionalName(a int) string {
	if !isConstant(a) {
		return ""
	}
	name, err := f.pool.Name(a)
	if err != nil {
		panic(newFault(FaultBadOperand, "%s: %v", f.method, err))
	}
	return name
}
