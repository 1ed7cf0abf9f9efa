package vm

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ServiceStatus is the lifecycle state of a service context.
type ServiceStatus uint8

const (
	StatusIdle         ServiceStatus = iota // no work
	StatusBusy                              // a fiber is running or ready
	StatusBusyWaiting                       // only suspended fibers remain
	StatusShuttingDown                      // finishing queued work, rejecting new requests
	StatusTerminated
)

var statusNames = [...]string{"Idle", "Busy", "BusyWaiting", "ShuttingDown", "Terminated"}

func (s ServiceStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("ServiceStatus(%d)", int(s))
}

// Reentrancy decides when a context may start a new request while
// fibers it already started are suspended or ready.
type Reentrancy uint8

const (
	// ReentrancyPrioritized runs resumed fibers before new requests, except
	// requests made on behalf of one of its own suspended fibers.
	ReentrancyPrioritized Reentrancy = iota
	// ReentrancyOpen starts every request as soon as it is picked up.
	ReentrancyOpen
	// ReentrancyExclusive starts only requests made on behalf of one of its
	// own suspended fibers until every fiber has finished.
	ReentrancyExclusive
	// ReentrancyForbidden starts nothing new until every fiber has
	// finished. A call back into the context waits for its caller and can
	// only end by timing out.
	ReentrancyForbidden
)

var reentrancyNames = [...]string{"prioritized", "open", "exclusive", "forbidden"}

func (r Reentrancy) String() string {
	if int(r) < len(reentrancyNames) {
		return reentrancyNames[r]
	}
	return fmt.Sprintf("Reentrancy(%d)", int(r))
}

// ParseReentrancy converts a policy name; the empty string is
// ReentrancyPrioritized.
func ParseReentrancy(name string) (Reentrancy, error) {
	if name == "" {
		return ReentrancyPrioritized, nil
	}
	for i, n := range reentrancyNames {
		if strings.EqualFold(name, n) {
			return Reentrancy(i), nil
		}
	}
	return 0, fmt.Errorf("unknown reentrancy %q (want one of %s)", name, strings.Join(reentrancyNames[:], ", "))
}

// request is one cross-context invocation waiting in an inbox.
type request struct {
	fn      *Function
	returns int
	future  *Future
	from    *ServiceContext // nil for calls from Go
	caller  *Fiber          // the fiber that made the call, if any
}

// ServiceContext is an actor: it owns objects and runs at most one fiber
// at a time. Requests from other contexts arrive through its inbox and
// each starts a new fiber; fibers suspended on futures are woken through
// the scheduler when the future resolves.
type ServiceContext struct {
	vm   *VM
	ID   uuid.UUID
	Name string

	// service is the instance this context was created for, if any.
	service *Object

	mu           sync.Mutex
	inbox        []*request
	ready        []*Fiber
	waiting      map[*Fiber]struct{}
	owed         map[*Future]struct{}
	running      bool
	shuttingDown bool

	// Policy overrides; negative values defer to the engine Config.
	reentrancy atomic.Int32
	timeout    atomic.Int64

	// runMu is held by the worker executing the context.
	runMu      sync.Mutex
	scheduled  atomic.Bool
	terminated atomic.Bool

	created   time.Time
	cpu       atomic.Int64
	ops       atomic.Uint64
	requests  atomic.Uint64
	contended atomic.Uint64
	fibers    atomic.Uint64
}

func newServiceContext(v *VM, name string) *ServiceContext {
	c := &ServiceContext{
		vm:      v,
		ID:      uuid.New(),
		Name:    name,
		waiting: make(map[*Fiber]struct{}),
		owed:    make(map[*Future]struct{}),
		created: time.Now(),
	}
	c.reentrancy.Store(-1)
	c.timeout.Store(-1)
	return c
}

func (c *ServiceContext) String() string {
	return fmt.Sprintf("%s[%s]", c.Name, c.ID.String()[:8])
}

// Service returns the service instance owned by the context, or nil.
func (c *ServiceContext) Service() *Object {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.service
}

func (c *ServiceContext) setService(obj *Object) {
	c.mu.Lock()
	if c.service == nil {
		c.service = obj
	}
	c.mu.Unlock()
}

// Reentrancy returns the context's reentrancy policy.
func (c *ServiceContext) Reentrancy() Reentrancy {
	if r := c.reentrancy.Load(); r >= 0 {
		return Reentrancy(r)
	}
	return c.vm.cfg.Reentrancy
}

// SetReentrancy changes the policy applied to requests not yet started.
func (c *ServiceContext) SetReentrancy(r Reentrancy) {
	c.reentrancy.Store(int32(r))
	c.vm.sched.schedule(c)
}

// Timeout returns how long calls made by the context wait for a result
// before failing with TimedOut. Zero means no limit.
func (c *ServiceContext) Timeout() time.Duration {
	if d := c.timeout.Load(); d >= 0 {
		return time.Duration(d)
	}
	return c.vm.cfg.Timeout
}

// SetTimeout bounds the calls the context makes from now on. Zero removes
// the limit.
func (c *ServiceContext) SetTimeout(d time.Duration) {
	c.timeout.Store(int64(max(d, 0)))
}

// Status returns the context's lifecycle state.
func (c *ServiceContext) Status() ServiceStatus {
	if c.terminated.Load() {
		return StatusTerminated
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.shuttingDown:
		return StatusShuttingDown
	case c.running || len(c.ready) > 0:
		return StatusBusy
	case len(c.waiting) > 0:
		return StatusBusyWaiting
	case len(c.inbox) > 0:
		return StatusBusy
	}
	return StatusIdle
}

// post queues req. The context must not be shutting down or terminated.
func (c *ServiceContext) post(req *request) error {
	c.mu.Lock()
	if c.terminated.Load() || c.shuttingDown {
		c.mu.Unlock()
		return fmt.Errorf("%s: %w", c.Name, ErrServiceTerminated)
	}
	if limit := c.vm.cfg.InboxLimit; limit > 0 && len(c.inbox) >= limit {
		c.mu.Unlock()
		return fmt.Errorf("%s: %w", c.Name, ErrInboxFull)
	}
	if c.running || len(c.inbox) > 0 {
		c.contended.Add(1)
	}
	c.inbox = append(c.inbox, req)
	c.owed[req.future] = struct{}{}
	c.mu.Unlock()

	c.requests.Add(1)
	log.Debugf("%s: request %s", c, req.fn.method)
	c.vm.sched.schedule(c)
	return nil
}

// Post sends a call of fn to the context from Go code and returns the
// future of its results.
func (c *ServiceContext) Post(fn *Function) (*Future, error) {
	fu := NewFuture()
	if err := c.post(&request{fn: fn, returns: fn.method.Returns, future: fu}); err != nil {
		return nil, err
	}
	return fu, nil
}

// startFiber turns a request into a ready fiber.
func (c *ServiceContext) startFiber(req *request) *Fiber {
	fb := newFiber(c, req.future, req.returns)
	fb.crossing = req.from != nil
	fb.caller = req.caller
	fn := req.fn
	m := fn.method
	if m.Native {
		m = nativeTrampoline(m)
	}
	fb.start(newFrame(m, fn.target, fn.chain, fn.depth, fn.bound))
	c.fibers.Add(1)
	return fb
}

// admit removes from the inbox the requests the reentrancy policy lets
// start now. c.mu must be held.
func (c *ServiceContext) admit() []*request {
	if len(c.inbox) == 0 {
		return nil
	}
	policy := c.Reentrancy()
	inFlight := len(c.ready) + len(c.waiting)
	var take, keep []*request
	for _, req := range c.inbox {
		if inFlight == 0 || c.admits(policy, req) {
			take = append(take, req)
			inFlight++
		} else {
			keep = append(keep, req)
		}
	}
	c.inbox = keep
	return take
}

func (c *ServiceContext) admits(policy Reentrancy, req *request) bool {
	switch policy {
	case ReentrancyOpen:
		return true
	case ReentrancyPrioritized:
		return len(c.ready) == 0 || c.associated(req)
	case ReentrancyExclusive:
		return c.associated(req)
	}
	return false
}

// associated reports whether req was made on behalf of a fiber of c,
// directly or through other contexts.
func (c *ServiceContext) associated(req *request) bool {
	for fb := req.caller; fb != nil; fb = fb.caller {
		if fb.ctx == c {
			return true
		}
	}
	return false
}

// run executes ready fibers until none remain or one yields. It is called
// by the scheduler with runMu held.
func (c *ServiceContext) run() {
	var current *Fiber
	defer func() {
		if r := recover(); r != nil {
			fault, ok := r.(*Fault)
			if !ok {
				fault = newFault(FaultInternal, "%v", r)
			}
			if fault.Where == nil && current != nil && current.top != nil {
				fault.Where = current.top.location()
			}
			log.Errorf("%s: %s", c, fault)
			if current != nil {
				current.abandon()
			}
			c.terminate(fault)
		}
	}()

	for {
		if c.terminated.Load() {
			return
		}
		c.mu.Lock()
		admitted := c.admit()
		c.mu.Unlock()
		for _, req := range admitted {
			fb := c.startFiber(req)
			c.mu.Lock()
			c.ready = append(c.ready, fb)
			c.mu.Unlock()
		}

		c.mu.Lock()
		if len(c.ready) == 0 {
			c.running = false
			done := c.shuttingDown && len(c.waiting) == 0 && len(c.inbox) == 0
			c.mu.Unlock()
			if done {
				c.terminate(nil)
			}
			return
		}
		current = c.ready[0]
		c.ready = c.ready[1:]
		c.running = true
		c.mu.Unlock()

		start := time.Now()
		ops := c.execute(current)
		c.cpu.Add(int64(time.Since(start)))
		c.ops.Add(uint64(ops))

		switch current.status {
		case FiberDone:
			c.mu.Lock()
			delete(c.owed, current.future)
			c.mu.Unlock()
			if ex := current.uncaught; ex != nil && !current.crossing {
				log.Warningf("%s: uncaught %s at %s", c, ex, ex.origin)
			}

		case FiberWaiting:
			fb, fu := current, current.blockedOn
			c.mu.Lock()
			c.waiting[fb] = struct{}{}
			c.mu.Unlock()
			fu.OnDone(func() { c.wake(fb) })

		case FiberPaused:
			c.mu.Lock()
			current.status = FiberReady
			c.ready = append(c.ready, current)
			c.running = false
			c.mu.Unlock()
			c.vm.sched.schedule(c)
			return
		}
	}
}

// wake makes a suspended fiber ready again.
func (c *ServiceContext) wake(fb *Fiber) {
	if c.terminated.Load() {
		return
	}
	c.mu.Lock()
	if _, ok := c.waiting[fb]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.waiting, fb)
	fb.status = FiberReady
	fb.blockedOn = nil
	c.ready = append(c.ready, fb)
	c.mu.Unlock()
	c.vm.sched.schedule(c)
}

// expireAfter fails fu with TimedOut unless it resolves within d. The
// callee keeps running; its late result is dropped.
func (c *ServiceContext) expireAfter(fu *Future, what fmt.Stringer, d time.Duration) {
	timer := time.AfterFunc(d, func() {
		if fu.IsDone() {
			return
		}
		log.Debugf("%s: %s timed out after %s", c, what, d)
		fu.Fail(c.vm.registry.NewException(TypeTimedOut, fmt.Sprintf("%s timed out after %s", what, d)))
	})
	fu.OnDone(func() { timer.Stop() })
}

// Shutdown stops accepting requests; the context terminates once its
// queued and suspended work has finished.
func (c *ServiceContext) Shutdown() {
	c.mu.Lock()
	if c.shuttingDown || c.terminated.Load() {
		c.mu.Unlock()
		return
	}
	c.shuttingDown = true
	c.mu.Unlock()
	log.Infof("%s: shutting down", c)
	c.vm.sched.schedule(c)
}

// Kill terminates the context immediately. Every future it owes fails
// with ServiceTerminated.
func (c *ServiceContext) Kill() {
	c.terminate(nil)
}

// terminate abandons all work and fails the owed futures. cause is the
// fault that brought the context down, if any.
func (c *ServiceContext) terminate(cause error) {
	if !c.terminated.CompareAndSwap(false, true) {
		return
	}
	c.mu.Lock()
	owed := c.owed
	c.owed = make(map[*Future]struct{})
	abandoned := c.ready
	for fb := range c.waiting {
		abandoned = append(abandoned, fb)
	}
	c.ready, c.inbox = nil, nil
	c.waiting = make(map[*Fiber]struct{})
	c.running = false
	c.mu.Unlock()

	for _, fb := range abandoned {
		fb.abandon()
	}
	text := c.Name + " terminated"
	if cause != nil {
		text = fmt.Sprintf("%s terminated: %v", c.Name, cause)
	}
	ex := c.vm.registry.NewException(TypeServiceTerminated, text)
	for fu := range owed {
		fu.failWith(ex, cause)
	}
	log.Infof("%s: terminated (%d pending requests failed)", c, len(owed))
}

// ---------------------------------------------------------------------------
// Introspection
// ---------------------------------------------------------------------------

// ServiceStats is a snapshot of a context's activity.
type ServiceStats struct {
	ID        uuid.UUID
	Name      string
	Status    ServiceStatus
	Uptime    time.Duration
	CPU       time.Duration
	Ops       uint64
	Requests  uint64
	Fibers    uint64
	Ready     int
	Waiting   int
	Queued    int
	Contended uint64
}

// Stats returns a snapshot of the context's counters.
func (c *ServiceContext) Stats() ServiceStats {
	status := c.Status()
	c.mu.Lock()
	ready, waiting, queued := len(c.ready), len(c.waiting), len(c.inbox)
	c.mu.Unlock()
	return ServiceStats{
		ID:        c.ID,
		Name:      c.Name,
		Status:    status,
		Uptime:    time.Since(c.created),
		CPU:       time.Duration(c.cpu.Load()),
		Ops:       c.ops.Load(),
		Requests:  c.requests.Load(),
		Fibers:    c.fibers.Load(),
		Ready:     ready,
		Waiting:   waiting,
		Queued:    queued,
		Contended: c.contended.Load(),
	}
}
