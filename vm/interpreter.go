package vm

import (
	"fmt"
	"strings"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("xvm.vm")

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

// execute runs fb until it completes, suspends, or uses up its quantum.
// It returns the number of instructions executed.
func (c *ServiceContext) execute(fb *Fiber) (ops int) {
	fb.status = FiberRunning
	quantum := c.vm.cfg.Quantum

	for fb.status == FiberRunning {
		if c.terminated.Load() {
			fb.abandon()
			return ops
		}
		if quantum > 0 && ops >= quantum {
			fb.status = FiberPaused
			return ops
		}
		f := fb.top
		ops++
		c.resolve(fb, f.step())
	}
	return ops
}

// resolve applies the disposition d of the top frame.
func (c *ServiceContext) resolve(fb *Fiber, d Disposition) {
	for {
		f := fb.top
		switch {
		case d >= 0:
			f.pc = int(d)
			return
		case d == Next:
			f.pc++
			return
		case d == Call:
			return
		case d == Repeat:
			fb.status = FiberWaiting
			return
		case d == Pause:
			fb.status = FiberPaused
			return

		case d == Return:
			caller := fb.pop()
			if caller == nil {
				fb.finish(f.results)
				return
			}
			d = caller.deliver(f.ret, f.results)
			if d == Next && f.onReturn != nil {
				d = f.onReturn()
			}

		case d == Exception:
			d = f.findGuard(f.exception)

		case d == ReturnException:
			ex := f.exception
			caller := fb.pop()
			if caller == nil {
				fb.fail(ex)
				return
			}
			if f.onThrow != nil {
				d = f.onThrow(ex)
			} else {
				caller.exception = ex
				d = Exception
			}

		default:
			panic(newFault(FaultBadOperand, "%s: unknown disposition %d", f.method, int(d)))
		}
	}
}

// step executes the instruction at pc.
func (f *Frame) step() Disposition {
	if f.await != nil && f.await.pc == f.pc {
		return f.resumeAwait()
	}
	if f.pc < 0 || f.pc >= len(f.method.Code) {
		panic(newFault(FaultBadOperand, "%s: pc %d outside %d instructions", f.method, f.pc, len(f.method.Code)))
	}

	switch in := f.method.Code[f.pc].(type) {
	case callInstruction:
		fn, args, ret := in.callOperands()
		return f.execCall(fn, args, ret)
	case invokeInstruction:
		target, m, args, ret := in.invokeOperands()
		return f.execInvoke(target, m, args, ret)

	// Control flow
	case Nop:
		return Next
	case Line:
		f.line = in.Line
		return Next
	case Enter:
		f.enter()
		return Next
	case Exit:
		f.exit()
		return Next
	case Jump:
		return jump(f.pc + in.Rel)
	case JumpCond:
		v, d := f.get(in.Arg)
		if d != Next {
			return d
		}
		ok, d := f.test(in.Kind, v)
		if d != Next {
			return d
		}
		if ok {
			return jump(f.pc + in.Rel)
		}
		return Next
	case JumpCmp:
		l, r, d := f.pair(in.Left, in.Right)
		if d != Next {
			return d
		}
		return f.compare(in.Kind, l, r, func(v Value) Disposition {
			if v == Bool(true) {
				return jump(f.pc + in.Rel)
			}
			return Next
		})
	case JumpType:
		v, d := f.get(in.Arg)
		if d != Next {
			return d
		}
		if f.isType(v, in.Type) {
			return jump(f.pc + in.Rel)
		}
		return Next

	// Guards
	case GuardStart:
		f.pushCatchGuard(in.Catches)
		return Next
	case GuardEnd:
		f.popGuard(false)
		f.exit()
		return jump(f.pc + in.Rel)
	case CatchStart:
		return Next
	case CatchEnd:
		f.exit()
		return jump(f.pc + in.Rel)
	case GuardAll:
		f.pushFinallyGuard(f.pc + in.FinallyRel)
		return Next
	case FinallyStart:
		return f.finallyStart()
	case FinallyEnd:
		return f.finallyEnd()
	case Throw:
		return f.execThrow(in)
	case Assert:
		return f.execAssert(in.Cond, ArgIgnore)
	case AssertM:
		return f.execAssert(in.Cond, in.Message)

	// Returns
	case Return0:
		return f.doReturn(nil)
	case Return1:
		v, d := f.get(in.Arg)
		if d != Next {
			return d
		}
		return f.doReturn([]Value{v})
	case ReturnN:
		values, d := f.getAll(in.Args)
		if d != Next {
			return d
		}
		return f.doReturn(values)
	case ReturnT:
		v, d := f.get(in.Arg)
		if d != Next {
			return d
		}
		t, ok := v.(*Tuple)
		if !ok {
			return f.raiseNew(TypeTypeMismatch, "expected a tuple, got %s", describe(v))
		}
		return f.doReturn(t.Elements())

	// Declarations and moves
	case Var:
		f.declare(f.declaredType(in.Type), "", StyleStandard)
		return Next
	case VarI:
		return f.declareInit(in.Type, ArgIgnore, in.Arg)
	case VarN:
		f.declare(f.declaredType(in.Type), f.optionalName(in.Name), StyleStandard)
		return Next
	case VarIN:
		return f.declareInit(in.Type, in.Name, in.Arg)
	case VarD:
		f.declare(f.declaredType(in.Type), "", StyleDynamic)
		return Next
	case VarDN:
		f.declare(f.declaredType(in.Type), f.optionalName(in.Name), StyleDynamic)
		return Next
	case VarT:
		return f.execVarT(in)
	case VarS:
		return f.execVarS(in)
	case Move:
		return f.execMove(in)
	case MoveRef:
		return f.execMoveRef(in)
	case MoveVar:
		return f.execMoveVar(in)

	// Tests and operators
	case Test:
		v, d := f.get(in.Arg)
		if d != Next {
			return d
		}
		ok, d := f.test(in.Kind, v)
		if d != Next {
			return d
		}
		return f.set(in.Dest, Bool(ok))
	case Compare:
		l, r, d := f.pair(in.Left, in.Right)
		if d != Next {
			return d
		}
		return f.compare(in.Kind, l, r, func(v Value) Disposition { return f.set(in.Dest, v) })
	case IsType:
		v, d := f.get(in.Arg)
		if d != Next {
			return d
		}
		return f.set(in.Dest, Bool(f.isType(v, in.Type)))
	case GP:
		l, r, d := f.pair(in.Left, in.Right)
		if d != Next {
			return d
		}
		return f.binary(in.Kind, l, r, func(v Value) Disposition { return f.set(in.Dest, v) })
	case GPUnary:
		v, d := f.get(in.Arg)
		if d != Next {
			return d
		}
		return f.unary(in.Kind, v, func(v Value) Disposition { return f.set(in.Dest, v) })
	case IP:
		return f.execIP(in)

	// Fields and elements
	case LGet:
		return f.execLGet(in)
	case LSet:
		return f.execLSet(in)
	case PGet:
		return f.execPGet(in)
	case PSet:
		return f.execPSet(in)
	case PRef:
		return f.execPRef(in)
	case IGet:
		return f.execIGet(in)
	case ISet:
		return f.execISet(in)
	case IRef:
		return f.execIRef(in)
	case IIP:
		return f.execIIP(in)

	// Binding
	case MBind:
		return f.execMBind(in)
	case FBind:
		return f.execFBind(in)

	// Construction
	case New0:
		return f.execNew(in.Ctor, nil, in.Dest)
	case New1:
		return f.execNew(in.Ctor, []int{in.Arg}, in.Dest)
	case NewN:
		return f.execNew(in.Ctor, in.Args, in.Dest)
	case Construct0:
		return f.execConstruct(in.Ctor, nil)
	case Construct1:
		return f.execConstruct(in.Ctor, []int{in.Arg})
	case ConstructN:
		return f.execConstruct(in.Ctor, in.Args)
	case newLocal:
		return f.execNewLocal(in)
	case nativeCall:
		return f.execNativeCall(in)
	}
	panic(newFault(FaultBadOperand, "%s: unsupported instruction %T at pc %d", f.method, f.method.Code[f.pc], f.pc))
}

// pair reads two operands.
func (f *Frame) pair(a, b int) (Value, Value, Disposition) {
	l, d := f.get(a)
	if d != Next {
		return nil, nil, d
	}
	r, d := f.get(b)
	if d != Next {
		return nil, nil, d
	}
	return l, r, Next
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// Disassemble renders m's code, one instruction per line.
func Disassemble(m *Method) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (params=%d returns=%d registers=%d)\n", m, m.Params, m.Returns, m.Registers)
	for pc, in := range m.Code {
		fmt.Fprintf(&sb, "%4d  %-12s %+v\n", pc, in.Opcode(), in)
	}
	return sb.String()
}
