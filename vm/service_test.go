package vm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"
)

// counterFixture declares the Counter service: a count field, increment()
// returning the new count and fail() raising an Assertion.
func counterFixture(t *testing.T) *fixture {
	fx := newFixture(t)
	counter := fx.class("Counter", FormatService, nil, Field{Name: "count", Default: Int(0)})
	count := fx.prop("count")
	counter.AddMethod(NewConstructor(0, 0, Return0{}))
	counter.AddMethod(NewMethod("increment", 0, 1, 2,
		LGet{Prop: count, Dest: 0},
		GP{Kind: OpAdd, Left: 0, Right: fx.int(1), Dest: 1},
		LSet{Prop: count, Arg: 1},
		Return1{Arg: 1},
	))
	counter.AddMethod(NewMethod("fail", 0, 1, 1,
		Assert{Cond: fx.boolean(false)},
		Return1{Arg: fx.int(0)},
	))
	return fx
}

func (fx *fixture) service(name string) *ServiceContext {
	fx.t.Helper()
	for _, c := range fx.vm.Services() {
		if c.Name == name {
			return c
		}
	}
	fx.t.Fatalf("no service context %s", name)
	return nil
}

func TestServiceCallAwaitsResult(t *testing.T) {
	fx := counterFixture(t)
	increment := fx.sig("increment", 0)
	m := fx.function("twice", 0, 2, 3,
		New0{Ctor: fx.ctor("Counter", 0), Dest: 0},
		Invoke01{Target: 0, Method: increment, Dest: 1},
		Invoke01{Target: 0, Method: increment, Dest: 2},
		ReturnN{Args: []int{1, 2}},
	)
	fx.load()

	if diff := cmp.Diff([]Value{Int(1), Int(2)}, fx.run(m)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	svc := fx.service("Counter")
	stats := svc.Stats()
	if stats.Requests != 3 || stats.Fibers != 3 {
		t.Errorf("requests=%d fibers=%d, want 3 and 3", stats.Requests, stats.Fibers)
	}
	if stats.Status != StatusIdle {
		t.Errorf("status = %s, want Idle", stats.Status)
	}
	if obj := svc.Service(); obj == nil || obj.Binding().Name != "Counter" {
		t.Errorf("service instance = %v", obj)
	}
}

func TestFutureRegisterDoesNotBlock(t *testing.T) {
	fx := counterFixture(t)
	increment := fx.sig("increment", 0)
	future := fx.typ(TypeFuture)
	m := fx.function("both", 0, 2, 3,
		New0{Ctor: fx.ctor("Counter", 0), Dest: 0},
		VarD{Type: future},
		VarD{Type: future},
		Invoke01{Target: 0, Method: increment, Dest: 1},
		Invoke01{Target: 0, Method: increment, Dest: 2},
		ReturnN{Args: []int{1, 2}},
	)
	fx.load()

	if diff := cmp.Diff([]Value{Int(1), Int(2)}, fx.run(m)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	// both requests were queued before the service ran
	if got := fx.service("Counter").Stats().Contended; got == 0 {
		t.Error("second request did not find the first still queued")
	}
}

func TestRemoteExceptionIsCatchable(t *testing.T) {
	fx := counterFixture(t)
	m := fx.function("guarded", 0, 1, 2,
		New0{Ctor: fx.ctor("Counter", 0), Dest: 0},
		GuardStart{Catches: []Catch{{Type: fx.typ(TypeAssertion), Name: ArgIgnore, Rel: 3}}},
		Invoke01{Target: 0, Method: fx.sig("fail", 0), Dest: 1},
		GuardEnd{Rel: 3},
		CatchStart{},
		Return1{Arg: fx.str("caught")},
		Return1{Arg: 1},
	)
	fx.load()

	if diff := cmp.Diff([]Value{String("caught")}, fx.run(m)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestKilledServiceRejectsCalls(t *testing.T) {
	fx := counterFixture(t)
	m := fx.function("killThenCall", 0, 1, 2,
		New0{Ctor: fx.ctor("Counter", 0), Dest: 0},
		Invoke00{Target: 0, Method: fx.sig("kill", 0)},
		Invoke01{Target: 0, Method: fx.sig("increment", 0), Dest: 1},
		Return1{Arg: 1},
	)
	fx.load()

	if got := fx.uncaught(m).TypeName(); got != TypeServiceTerminated {
		t.Errorf("raised %s, want %s", got, TypeServiceTerminated)
	}
	if got := fx.service("Counter").Status(); got != StatusTerminated {
		t.Errorf("status = %s, want Terminated", got)
	}
}

func TestKillFailsPendingFutures(t *testing.T) {
	fx := counterFixture(t)
	m := fx.function("pending", 0, 1, 2,
		New0{Ctor: fx.ctor("Counter", 0), Dest: 0},
		VarD{Type: fx.typ(TypeFuture)},
		Invoke01{Target: 0, Method: fx.sig("increment", 0), Dest: 1},
		Invoke00{Target: 0, Method: fx.sig("kill", 0)},
		Return1{Arg: 1},
	)
	fx.load()

	if got := fx.uncaught(m).TypeName(); got != TypeServiceTerminated {
		t.Errorf("raised %s, want %s", got, TypeServiceTerminated)
	}
}

func TestShutdownTerminatesIdleService(t *testing.T) {
	fx := counterFixture(t)
	m := fx.function("make", 0, 1, 1,
		New0{Ctor: fx.ctor("Counter", 0), Dest: 0},
		Return1{Arg: 0},
	)
	fx.load()
	fx.run(m)

	svc := fx.service("Counter")
	svc.Shutdown()
	fx.vm.Drain()
	if got := svc.Status(); got != StatusTerminated {
		t.Fatalf("status = %s, want Terminated", got)
	}
	if _, err := svc.Post(NewFunctionValue(m)); !errors.Is(err, ErrServiceTerminated) {
		t.Errorf("Post after shutdown = %v, want ErrServiceTerminated", err)
	}
}

func TestInboxLimit(t *testing.T) {
	fx := counterFixture(t)
	fx.vm.cfg.InboxLimit = 1
	m := fx.function("make", 0, 1, 1,
		New0{Ctor: fx.ctor("Counter", 0), Dest: 0},
		Return1{Arg: 0},
	)
	fx.load()

	svc := fx.vm.NewService("idle")
	if _, err := svc.Post(NewFunctionValue(m)); err != nil {
		t.Fatalf("first Post: %v", err)
	}
	if _, err := svc.Post(NewFunctionValue(m)); !errors.Is(err, ErrInboxFull) {
		t.Errorf("second Post = %v, want ErrInboxFull", err)
	}
}

func TestServiceSerializesConcurrentCalls(t *testing.T) {
	fx := counterFixture(t)
	fx.vm.cfg.Workers = 4
	m := fx.function("make", 0, 1, 1,
		New0{Ctor: fx.ctor("Counter", 0), Dest: 0},
		Return1{Arg: 0},
	)
	fx.load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fx.vm.Start(ctx)
	defer fx.vm.Stop()

	got, err := fx.vm.Call(ctx, m)
	if err != nil {
		t.Fatalf("make: %v", err)
	}
	counter := got[0]

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			_, err := fx.vm.Invoke(ctx, counter, "increment")
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("increment: %v", err)
	}

	last, err := fx.vm.Invoke(ctx, counter, "increment")
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if diff := cmp.Diff([]Value{Int(51)}, last); diff != "" {
		t.Errorf("final count mismatch (-want +got):\n%s", diff)
	}
}

func TestCallWithoutWorkersDetectsDeadlock(t *testing.T) {
	fx := newFixture(t)
	fu := NewFuture()
	m := fx.function("wait", 1, 1, 1, Return1{Arg: 0})
	m.DynamicParams = []int{0}
	fx.load()

	// the parameter is a future nobody completes
	if _, err := fx.call(m, fu); !errors.Is(err, ErrDeadlock) {
		t.Errorf("err = %v, want ErrDeadlock", err)
	}
}

func TestServiceStatusString(t *testing.T) {
	tests := map[ServiceStatus]string{
		StatusIdle:         "Idle",
		StatusBusy:         "Busy",
		StatusBusyWaiting:  "BusyWaiting",
		StatusShuttingDown: "ShuttingDown",
		StatusTerminated:   "Terminated",
		ServiceStatus(42):  "ServiceStatus(42)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", s, got, want)
		}
	}
}

// post sends name() to the service instance obj from Go and returns the
// pending result.
func (fx *fixture) post(obj *Object, name string) *Future {
	fx.t.Helper()
	chain := obj.Binding().Chain(Signature{Name: name})
	fu, err := obj.owner.Post(bindMethod(chain, 0, obj))
	if err != nil {
		fx.t.Fatalf("posting %s: %v", name, err)
	}
	return fu
}

func TestNativeRequestOnForeignService(t *testing.T) {
	fx := counterFixture(t)
	m := fx.function("describe", 0, 3, 4,
		New0{Ctor: fx.ctor("Counter", 0), Dest: 0},
		Invoke01{Target: 0, Method: fx.sig("toString", 0), Dest: 1},
		Invoke11{Target: 0, Method: fx.sig("equals", 1), Arg: 0, Dest: 2},
		Invoke01{Target: 0, Method: fx.sig("increment", 0), Dest: 3},
		ReturnN{Args: []int{1, 2, 3}},
	)
	fx.load()

	got := fx.run(m)
	if len(got) != 3 {
		t.Fatalf("got %v, want three results", got)
	}
	if _, ok := got[0].(String); !ok {
		t.Errorf("toString returned %v", got[0])
	}
	if diff := cmp.Diff([]Value{Bool(true), Int(1)}, got[1:]); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	svc := fx.service("Counter")
	if got := svc.Status(); got != StatusIdle {
		t.Errorf("status = %s, want Idle", got)
	}

	// natives requested from Go run the same way
	ctx := context.Background()
	obj := svc.Service()
	eq, err := fx.vm.Invoke(ctx, obj, "equals", obj)
	if err != nil {
		t.Fatalf("equals: %v", err)
	}
	if diff := cmp.Diff([]Value{Bool(true)}, eq); diff != "" {
		t.Errorf("equals mismatch (-want +got):\n%s", diff)
	}
	s, err := fx.vm.Invoke(ctx, Int(2), "toString")
	if err != nil {
		t.Fatalf("toString: %v", err)
	}
	if diff := cmp.Diff([]Value{String("2")}, s); diff != "" {
		t.Errorf("toString mismatch (-want +got):\n%s", diff)
	}
}

func TestNativeRetryPauses(t *testing.T) {
	fx := newFixture(t)
	attempts := 0
	fx.vm.natives.(*NativeTable).Register("Poller.poll/0", func(NativeCall) (Value, error) {
		attempts++
		if attempts < 3 {
			return nil, ErrNativeRetry
		}
		return Int(attempts), nil
	})
	poller := fx.class("Poller", FormatClass, nil)
	poll := poller.AddNative("poll", 0, 1)
	poll.Static = true
	m := fx.function("poll", 0, 1, 1,
		Call01{Fn: fx.method("Poller", "poll", 0), Dest: 0},
		Return1{Arg: 0},
	)
	fx.load()

	if diff := cmp.Diff([]Value{Int(3)}, fx.run(m)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	attempts = 0
	if diff := cmp.Diff([]Value{Int(3)}, fx.run(poll)); diff != "" {
		t.Errorf("direct call mismatch (-want +got):\n%s", diff)
	}
}

func TestQuantumPausesLongFibers(t *testing.T) {
	slices := func(quantum int) int {
		fx := counterFixture(t)
		fx.vm.cfg.Quantum = quantum
		increment := fx.sig("increment", 0)
		m := fx.function("thrice", 0, 1, 2,
			New0{Ctor: fx.ctor("Counter", 0), Dest: 0},
			Invoke01{Target: 0, Method: increment, Dest: 1},
			Invoke01{Target: 0, Method: increment, Dest: 1},
			Invoke01{Target: 0, Method: increment, Dest: 1},
			Return1{Arg: 1},
		)
		fx.load()

		fu, err := fx.vm.Main().Post(NewFunctionValue(m))
		if err != nil {
			t.Fatal(err)
		}
		n := fx.vm.Drain()
		got, err := fu.result()
		if err != nil {
			t.Fatalf("quantum %d: %v", quantum, err)
		}
		if diff := cmp.Diff([]Value{Int(3)}, got); diff != "" {
			t.Errorf("quantum %d mismatch (-want +got):\n%s", quantum, diff)
		}
		return n
	}

	// increment runs four instructions, so with a quantum of three every
	// request takes an extra slice
	unlimited, limited := slices(0), slices(3)
	if limited <= unlimited {
		t.Errorf("%d slices with quantum 3, %d without a quantum", limited, unlimited)
	}
}

func TestShutdownFinishesQueuedRequests(t *testing.T) {
	fx := counterFixture(t)
	mk := fx.function("make", 0, 1, 1,
		New0{Ctor: fx.ctor("Counter", 0), Dest: 0},
		Return1{Arg: 0},
	)
	fx.load()
	counter := fx.run(mk)[0].(*Object)

	var pending []*Future
	for i := 0; i < 5; i++ {
		pending = append(pending, fx.post(counter, "increment"))
	}
	svc := fx.service("Counter")
	svc.Shutdown()
	if got := svc.Status(); got != StatusShuttingDown {
		t.Errorf("status = %s, want ShuttingDown", got)
	}
	if _, err := svc.Post(NewFunctionValue(mk)); !errors.Is(err, ErrServiceTerminated) {
		t.Errorf("Post while shutting down = %v, want ErrServiceTerminated", err)
	}

	fx.vm.Drain()
	for i, fu := range pending {
		got, err := fu.result()
		if err != nil {
			t.Errorf("request %d: %v", i, err)
			continue
		}
		if diff := cmp.Diff([]Value{Int(int64(i + 1))}, got); diff != "" {
			t.Errorf("request %d mismatch (-want +got):\n%s", i, diff)
		}
	}
	if got := svc.Status(); got != StatusTerminated {
		t.Errorf("status = %s, want Terminated", got)
	}
}

// ---------------------------------------------------------------------------
// Reentrancy and timeouts
// ---------------------------------------------------------------------------

// gate declares the Gate service: relay() waits on Other.block(), which
// holds its worker until release is closed; roundTrip() has Other call
// back into count(), which answers at once.
type gate struct {
	*fixture
	newGate *Method
	entered chan struct{}
	release chan struct{}
}

func gateFixture(t *testing.T) *gate {
	g := &gate{
		fixture: newFixture(t),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	fx := g.fixture
	fx.vm.cfg.Workers = 4
	fx.vm.natives.(*NativeTable).Register("Other.block/0", func(NativeCall) (Value, error) {
		select {
		case g.entered <- struct{}{}:
		default:
		}
		<-g.release
		return Int(1), nil
	})

	other := fx.class("Other", FormatService, nil)
	other.AddMethod(NewConstructor(0, 0, Return0{}))
	other.AddNative("block", 0, 1)
	other.AddMethod(NewMethod("ping", 1, 1, 2,
		Invoke01{Target: 0, Method: fx.sig("count", 0), Dest: 1},
		Return1{Arg: 1},
	))

	gt := fx.class("Gate", FormatService, nil)
	gt.AddMethod(NewConstructor(0, 0, Return0{}))
	gt.AddMethod(NewMethod("relay", 0, 1, 2,
		New0{Ctor: fx.ctor("Other", 0), Dest: 0},
		Invoke01{Target: 0, Method: fx.sig("block", 0), Dest: 1},
		Return1{Arg: 1},
	))
	gt.AddMethod(NewMethod("roundTrip", 0, 1, 2,
		New0{Ctor: fx.ctor("Other", 0), Dest: 0},
		Invoke11{Target: 0, Method: fx.sig("ping", 1), Arg: ArgThis, Dest: 1},
		Return1{Arg: 1},
	))
	gt.AddMethod(NewMethod("count", 0, 1, 0, Return1{Arg: fx.int(7)}))

	g.newGate = fx.function("newGate", 0, 1, 1,
		New0{Ctor: fx.ctor("Gate", 0), Dest: 0},
		Return1{Arg: 0},
	)
	fx.load()
	return g
}

// start launches the workers and creates a Gate.
func (g *gate) start(ctx context.Context) *Object {
	g.t.Helper()
	g.vm.Start(ctx)
	got, err := g.vm.Call(ctx, g.newGate)
	if err != nil {
		g.t.Fatalf("newGate: %v", err)
	}
	return got[0].(*Object)
}

func TestReentrancyPolicy(t *testing.T) {
	tests := []struct {
		policy      Reentrancy
		interleaves bool
	}{
		{ReentrancyOpen, true},
		{ReentrancyPrioritized, true},
		{ReentrancyExclusive, false},
		{ReentrancyForbidden, false},
	}
	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			g := gateFixture(t)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			obj := g.start(ctx)
			defer g.vm.Stop()
			var once sync.Once
			release := func() { once.Do(func() { close(g.release) }) }
			defer release()

			obj.owner.SetReentrancy(tt.policy)
			relay := g.post(obj, "relay")
			select {
			case <-g.entered:
			case <-ctx.Done():
				t.Fatal("relay never reached Other.block")
			}

			count := g.post(obj, "count")
			select {
			case <-count.Done():
				if !tt.interleaves {
					t.Error("count ran while relay was suspended")
				}
			case <-time.After(200 * time.Millisecond):
				if tt.interleaves {
					t.Error("count waited for relay to finish")
				}
			}

			release()
			got, err := count.Wait(ctx)
			if err != nil {
				t.Fatalf("count: %v", err)
			}
			if diff := cmp.Diff([]Value{Int(7)}, got); diff != "" {
				t.Errorf("count mismatch (-want +got):\n%s", diff)
			}
			if got, err = relay.Wait(ctx); err != nil {
				t.Fatalf("relay: %v", err)
			}
			if diff := cmp.Diff([]Value{Int(1)}, got); diff != "" {
				t.Errorf("relay mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExclusiveAdmitsCallbacks(t *testing.T) {
	g := gateFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	obj := g.start(ctx)
	defer g.vm.Stop()

	obj.owner.SetReentrancy(ReentrancyExclusive)
	got, err := g.vm.Invoke(ctx, obj, "roundTrip")
	if err != nil {
		t.Fatalf("roundTrip: %v", err)
	}
	if diff := cmp.Diff([]Value{Int(7)}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestForbiddenCallbackTimesOut(t *testing.T) {
	g := gateFixture(t)
	g.vm.cfg.Timeout = 100 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	obj := g.start(ctx)
	defer g.vm.Stop()

	obj.owner.SetReentrancy(ReentrancyForbidden)
	_, err := g.vm.Invoke(ctx, obj, "roundTrip")
	var ue *UncaughtError
	if !errors.As(err, &ue) || ue.TypeName() != TypeTimedOut {
		t.Fatalf("err = %v, want an uncaught %s", err, TypeTimedOut)
	}
}

func TestCallTimeout(t *testing.T) {
	g := gateFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	obj := g.start(ctx)
	defer g.vm.Stop()
	defer close(g.release)

	obj.owner.SetTimeout(50 * time.Millisecond)
	if got := obj.owner.Timeout(); got != 50*time.Millisecond {
		t.Errorf("Timeout() = %s", got)
	}
	if got := g.vm.Main().Timeout(); got != 0 {
		t.Errorf("main context timeout = %s, want the engine default of none", got)
	}

	_, err := g.vm.Invoke(ctx, obj, "relay")
	var ue *UncaughtError
	if !errors.As(err, &ue) || ue.TypeName() != TypeTimedOut {
		t.Fatalf("err = %v, want an uncaught %s", err, TypeTimedOut)
	}
	// the gate itself is unharmed
	if got, err := g.vm.Invoke(ctx, obj, "count"); err != nil || !cmp.Equal([]Value{Int(7)}, got) {
		t.Errorf("count after timeout = %v, %v", got, err)
	}
}

func TestParseReentrancy(t *testing.T) {
	tests := map[string]Reentrancy{
		"":          ReentrancyPrioritized,
		"open":      ReentrancyOpen,
		"Exclusive": ReentrancyExclusive,
		"forbidden": ReentrancyForbidden,
	}
	for in, want := range tests {
		got, err := ParseReentrancy(in)
		if err != nil || got != want {
			t.Errorf("ParseReentrancy(%q) = %s, %v; want %s", in, got, err, want)
		}
	}
	if _, err := ParseReentrancy("sometimes"); err == nil {
		t.Error("expected an error for an unknown policy")
	}
}
