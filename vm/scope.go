package vm

// ---------------------------------------------------------------------------
// Scopes and register lifetime
// ---------------------------------------------------------------------------

// Registers are allocated in declaration order within the current scope
// and released together when the scope exits. A register index is never
// reused while its scope is live, and release bumps the register's
// generation so that references to it are detected as dangling.

// scope returns the index of the current scope; the method body is 0.
func (f *Frame) scope() int { return len(f.nextVar) - 1 }

// nextFree returns the first unallocated register of the current scope.
func (f *Frame) nextFree() int { return f.nextVar[len(f.nextVar)-1] }

// scopeFloor returns the first register owned by the current scope.
func (f *Frame) scopeFloor() int {
	if len(f.nextVar) == 1 {
		return 0
	}
	return f.nextVar[len(f.nextVar)-2]
}

// isDeclared reports whether register a is allocated in a live scope.
func (f *Frame) isDeclared(a int) bool {
	return a >= 0 && a < f.nextFree()
}

// enter pushes a scope whose registers start at the current next-free
// register.
func (f *Frame) enter() {
	f.nextVar = append(f.nextVar, f.nextFree())
}

// exit pops the current scope and releases its registers.
func (f *Frame) exit() {
	if len(f.nextVar) == 1 {
		panic(newFault(FaultScope, "%s: exit from the method scope", f.method))
	}
	top := len(f.nextVar) - 1
	for r := f.nextVar[top-1]; r < f.nextVar[top]; r++ {
		f.releaseRegister(r)
	}
	f.nextVar = f.nextVar[:top]
}

// clearScopes exits scopes until scope s is current.
func (f *Frame) clearScopes(s int) {
	if s < 0 {
		panic(newFault(FaultScope, "%s: no scope %d", f.method, s))
	}
	for f.scope() > s {
		f.exit()
	}
}

func (f *Frame) releaseRegister(r int) {
	f.regs[r] = nil
	f.info[r] = RegisterInfo{gen: f.info[r].gen + 1}
}

// declare allocates the next register of the current scope.
func (f *Frame) declare(t *TypeBinding, name string, style RegisterStyle) int {
	top := len(f.nextVar) - 1
	r := f.nextVar[top]
	if r >= len(f.regs) {
		panic(newFault(FaultRegisterCount, "%s: register r%d exceeds %d registers", f.method, r, len(f.regs)))
	}
	f.nextVar[top]++
	f.regs[r] = nil
	f.info[r] = RegisterInfo{Type: t, Name: name, Style: style, gen: f.info[r].gen + 1}
	if style == StyleDynamic {
		f.regs[r] = newBox(nil)
	}
	return r
}

// ensureDeclared accepts a declared register, or declares a as an anonymous
// register when it is the next free one.
func (f *Frame) ensureDeclared(a int) {
	switch next := f.nextFree(); {
	case a < next:
	case a == next:
		f.declare(nil, "", StyleStandard)
	default:
		panic(newFault(FaultScope, "%s: write to r%d before r%d is declared", f.method, a, next))
	}
}

// introduce declares a register holding v, as done for caught exceptions
// and finally blocks.
func (f *Frame) introduce(name string, v Value) int {
	var t *TypeBinding
	if v != nil && !IsNull(v) {
		t = f.registry().TypeOf(v)
	}
	r := f.declare(t, name, StyleStandard)
	f.regs[r] = v
	return r
}

// RegisterName returns the declared name of register r, if any.
func (f *Frame) RegisterName(r int) string {
	if !f.isDeclared(r) {
		return ""
	}
	return f.info[r].Name
}

// Lookup finds a named register in a live scope, innermost first.
func (f *Frame) Lookup(name string) (Value, bool) {
	for r := f.nextFree() - 1; r >= 0; r-- {
		if f.info[r].Name != name {
			continue
		}
		if f.info[r].Style == StyleDynamic {
			if ref, ok := f.regs[r].(*Ref); ok {
				v, err := ref.Get()
				return v, err == nil && v != nil
			}
			if fu, ok := f.regs[r].(*Future); ok {
				return fu, true
			}
		}
		return f.regs[r], f.regs[r] != nil
	}
	return nil, false
}
