package vm

import (
	"fmt"
	"sync/atomic"
)

// FiberStatus is the scheduling state of a fiber.
type FiberStatus uint8

const (
	FiberReady FiberStatus = iota
	FiberRunning
	FiberWaiting // suspended on a pending future
	FiberPaused  // out of quantum or asked to retry
	FiberDone
)

var fiberStatusNames = [...]string{"ready", "running", "waiting", "paused", "done"}

func (s FiberStatus) String() string { return fiberStatusNames[s] }

var fiberIDs atomic.Uint64

// Fiber is one logical thread of control within a context: a stack of
// frames started by a request. A context runs at most one fiber at a time.
type Fiber struct {
	id     uint64
	ctx    *ServiceContext
	top    *Frame
	depth  int
	status FiberStatus

	// future receives the results of the bottom frame.
	future  *Future
	returns int

	// crossing is set when the results go to another context and must be
	// passable.
	crossing bool

	// caller is the fiber in another context whose call started this one.
	caller *Fiber

	// blockedOn is the future the fiber is suspended on.
	blockedOn *Future

	// uncaught is the exception that ended the fiber, if any.
	uncaught *Object
}

func newFiber(ctx *ServiceContext, fu *Future, returns int) *Fiber {
	return &Fiber{
		id:      fiberIDs.Add(1),
		ctx:     ctx,
		future:  fu,
		returns: returns,
	}
}

// ID returns the fiber's process-unique id.
func (fb *Fiber) ID() uint64 { return fb.id }

// Status returns the fiber's scheduling state.
func (fb *Fiber) Status() FiberStatus { return fb.status }

// Depth returns the number of frames on the fiber's stack.
func (fb *Fiber) Depth() int { return fb.depth }

// start pushes the bottom frame.
func (fb *Fiber) start(f *Frame) {
	f.fiber = fb
	f.ret = returnDest{kind: retCapture}
	fb.top = f
	fb.depth = 1
	fb.status = FiberReady
}

// push makes callee the top frame. Exceeding the depth limit raises
// StackOverflow in the caller instead.
func (f *Frame) push(callee *Frame) Disposition {
	fb := f.fiber
	if max := fb.ctx.vm.cfg.MaxDepth; max > 0 && fb.depth >= max {
		return f.raiseNew(TypeStackOverflow, "call depth exceeds %d", max)
	}
	callee.fiber = fb
	callee.caller = f
	fb.top = callee
	fb.depth++
	return Call
}

// pop removes the top frame and returns its caller.
func (fb *Fiber) pop() *Frame {
	f := fb.top
	f.release()
	fb.top = f.caller
	fb.depth--
	return fb.top
}

// finish completes the fiber's future with the bottom frame's results.
func (fb *Fiber) finish(values []Value) {
	fb.status = FiberDone
	for i, v := range values {
		if fb.crossing && !isPassable(v) {
			fb.future.Fail(fb.ctx.vm.registry.NewException(TypeIllegalArgument,
				fmt.Sprintf("result %d is not passable", i)))
			return
		}
	}
	fb.future.Complete(values...)
}

// fail completes the fiber's future with an exception.
func (fb *Fiber) fail(ex *Object) {
	fb.status = FiberDone
	fb.uncaught = ex
	fb.future.Fail(ex)
}

// abandon releases every frame without running them further.
func (fb *Fiber) abandon() {
	for fb.top != nil {
		fb.pop()
	}
	fb.status = FiberDone
}
