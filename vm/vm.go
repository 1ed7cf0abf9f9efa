package vm

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// VM: the execution engine
// ---------------------------------------------------------------------------

// Config tunes the engine.
type Config struct {
	// Workers is the number of scheduler goroutines started by Start.
	Workers int
	// Quantum is the number of instructions a fiber runs before yielding.
	// Zero means no limit.
	Quantum int
	// MaxDepth bounds the frames of one fiber; deeper calls raise
	// StackOverflow. Zero means no limit.
	MaxDepth int
	// InboxLimit bounds the queued requests of one context. Zero means no
	// limit.
	InboxLimit int
	// Reentrancy is the policy of contexts that do not set their own.
	Reentrancy Reentrancy
	// Timeout bounds how long a call to another context may take. Zero
	// means no limit.
	Timeout time.Duration
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Workers:  runtime.NumCPU(),
		Quantum:  10000,
		MaxDepth: 4096,
	}
}

// VM owns the registry, the native library, the scheduler and every
// service context. There is no global engine state.
type VM struct {
	cfg      Config
	registry *Registry
	natives  NativeDispatcher
	sched    *Scheduler
	profiler *Profiler

	mu       sync.Mutex
	services []*ServiceContext
	main     *ServiceContext
}

// NewVM creates an engine. natives may be nil when no program calls a
// native method.
func NewVM(cfg Config, natives NativeDispatcher) *VM {
	v := &VM{
		cfg:      cfg,
		registry: NewRegistry(nil),
		natives:  natives,
		sched:    newScheduler(),
		profiler: NewProfiler(),
	}
	v.main = v.newServiceContext("main")
	return v
}

// Registry returns the type registry.
func (v *VM) Registry() *Registry { return v.registry }

// Profiler returns the invocation profiler.
func (v *VM) Profiler() *Profiler { return v.profiler }

// Config returns the engine configuration.
func (v *VM) Config() Config { return v.cfg }

// Scheduler returns the context scheduler.
func (v *VM) Scheduler() *Scheduler { return v.sched }

// Start launches the worker pool. Without it, calls run on the calling
// goroutine.
func (v *VM) Start(ctx context.Context) {
	v.sched.Start(ctx, v.cfg.Workers)
}

// Stop kills every context and waits for the workers to exit.
func (v *VM) Stop() error {
	for _, c := range v.Services() {
		c.Kill()
	}
	return v.sched.Stop()
}

// Drain runs queued work on the calling goroutine.
func (v *VM) Drain() int { return v.sched.Drain() }

func (v *VM) newServiceContext(name string) *ServiceContext {
	c := newServiceContext(v, name)
	v.mu.Lock()
	v.services = append(v.services, c)
	v.mu.Unlock()
	log.Infof("%s: created", c)
	return c
}

// NewService creates an empty service context.
func (v *VM) NewService(name string) *ServiceContext {
	return v.newServiceContext(name)
}

// Main returns the context that runs calls made from Go. A terminated
// main context is replaced.
func (v *VM) Main() *ServiceContext {
	v.mu.Lock()
	c := v.main
	v.mu.Unlock()
	if c.terminated.Load() {
		c = v.newServiceContext("main")
		v.mu.Lock()
		v.main = c
		v.mu.Unlock()
	}
	return c
}

// Services returns every context created by the engine.
func (v *VM) Services() []*ServiceContext {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]*ServiceContext, len(v.services))
	copy(out, v.services)
	return out
}

// ---------------------------------------------------------------------------
// Calls from Go
// ---------------------------------------------------------------------------

// Call runs the static method m in the main context and returns its
// results. An exception escaping m is returned as *UncaughtError; an
// engine fault as *Fault.
func (v *VM) Call(ctx context.Context, m *Method, args ...Value) ([]Value, error) {
	if len(args) > m.Params {
		return nil, fmt.Errorf("%s: %d arguments for %d parameters", m, len(args), m.Params)
	}
	fn := &Function{method: m, bound: padArgs(args, m.Params)}
	fu, err := v.Main().Post(fn)
	if err != nil {
		return nil, err
	}
	return v.Await(ctx, fu)
}

// CallFunction runs the static function typeName.name.
func (v *VM) CallFunction(ctx context.Context, typeName, name string, args ...Value) ([]Value, error) {
	t, err := v.registry.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	m := t.DeclaredMethod(Signature{Name: name, Params: len(args)})
	if m == nil || !m.Static {
		return nil, fmt.Errorf("%s has no function %s/%d", typeName, name, len(args))
	}
	return v.Call(ctx, m, args...)
}

// Invoke calls the method name on recv. A service receiver runs in its
// own context; anything else runs in the main context.
func (v *VM) Invoke(ctx context.Context, recv Value, name string, args ...Value) ([]Value, error) {
	binding := v.registry.TypeOf(recv)
	chain := binding.Chain(Signature{Name: name, Params: len(args)})
	if chain.IsEmpty() {
		return nil, fmt.Errorf("%s has no method %s/%d", binding, name, len(args))
	}
	fn := bindMethod(chain, 0, recv)
	copy(fn.bound, args)

	target := v.Main()
	if obj, ok := recv.(*Object); ok && obj.isServiceInstance() && obj.owner != nil {
		target = obj.owner
	}
	fu, err := target.Post(fn)
	if err != nil {
		return nil, err
	}
	return v.Await(ctx, fu)
}

// Await waits for fu. Without workers the queued work runs on the calling
// goroutine, and ErrDeadlock is returned if fu is still pending once
// nothing is runnable.
func (v *VM) Await(ctx context.Context, fu *Future) ([]Value, error) {
	if !v.sched.Running() {
		v.sched.Drain()
		if !fu.IsDone() {
			return nil, ErrDeadlock
		}
		return fu.result()
	}
	return fu.Wait(ctx)
}

// ---------------------------------------------------------------------------
// Introspection
// ---------------------------------------------------------------------------

// Stats is a snapshot of the engine.
type Stats struct {
	Services     []ServiceStats
	Profile      ProfilerStats
	InlineCaches ICStats
}

// Stats returns a snapshot of every context and the dispatch counters.
func (v *VM) Stats() Stats {
	var s Stats
	for _, c := range v.Services() {
		s.Services = append(s.Services, c.Stats())
	}
	s.Profile = v.profiler.Stats()
	s.InlineCaches = CollectICStats(v.registry)
	return s
}
