package vm

import (
	"sync"
	"testing"
)

func TestProfilerMethodInvocation(t *testing.T) {
	p := NewProfiler()
	p.MethodHotThreshold = 5
	method := NewFunction("test", 0, 0, 0, Return0{})

	if p.RecordInvocation(method) {
		t.Error("Method should not be hot after 1 invocation")
	}
	if got := p.Count(method); got != 1 {
		t.Errorf("Expected 1 invocation, got %d", got)
	}

	var becameHot bool
	for i := 0; i < 4; i++ {
		becameHot = p.RecordInvocation(method)
	}
	if !becameHot {
		t.Error("Method should become hot at threshold")
	}
	if !p.IsMethodHot(method) {
		t.Error("IsMethodHot should return true")
	}

	if p.RecordInvocation(method) {
		t.Error("Method should not re-trigger hot")
	}
}

func TestProfilerNilSafety(t *testing.T) {
	var p *Profiler
	if p.RecordInvocation(NewFunction("test", 0, 0, 0)) {
		t.Error("nil profiler reported a hot method")
	}
	if NewProfiler().RecordInvocation(nil) {
		t.Error("nil method reported hot")
	}
}

func TestProfilerOnHot(t *testing.T) {
	p := NewProfiler()
	p.MethodHotThreshold = 2
	var hot []*Method
	p.OnHot = func(m *Method, _ *MethodProfile) { hot = append(hot, m) }

	a := NewFunction("a", 0, 0, 0)
	b := NewFunction("b", 0, 0, 0)
	for i := 0; i < 3; i++ {
		p.RecordInvocation(a)
	}
	p.RecordInvocation(b)

	if len(hot) != 1 || hot[0] != a {
		t.Errorf("OnHot called for %v, want only a", hot)
	}
}

func TestProfilerStats(t *testing.T) {
	p := NewProfiler()
	p.MethodHotThreshold = 3

	m1 := NewFunction("m1", 0, 0, 0)
	m2 := NewFunction("m2", 0, 0, 0)
	for i := 0; i < 3; i++ {
		p.RecordInvocation(m1)
	}
	p.RecordInvocation(m2)

	stats := p.Stats()
	if stats.TotalMethods != 2 {
		t.Errorf("Expected 2 methods, got %d", stats.TotalMethods)
	}
	if stats.HotMethods != 1 {
		t.Errorf("Expected 1 hot method, got %d", stats.HotMethods)
	}
	if stats.TotalInvocations != 4 {
		t.Errorf("Expected 4 invocations, got %d", stats.TotalInvocations)
	}
}

func TestProfilerTopMethods(t *testing.T) {
	p := NewProfiler()
	counts := map[string]int{"low": 1, "high": 10, "mid": 5, "tie": 5}
	for name, n := range counts {
		m := NewFunction(name, 0, 0, 0)
		for i := 0; i < n; i++ {
			p.RecordInvocation(m)
		}
	}

	top := p.TopMethods(3)
	if len(top) != 3 {
		t.Fatalf("Expected 3 methods, got %d", len(top))
	}
	want := []string{"high", "mid", "tie"}
	for i, mc := range top {
		if mc.Method.Name != want[i] {
			t.Errorf("top[%d] = %s, want %s", i, mc.Method.Name, want[i])
		}
	}
	if top[0].Count != 10 {
		t.Errorf("Expected top count 10, got %d", top[0].Count)
	}
}

func TestProfilerReset(t *testing.T) {
	p := NewProfiler()
	p.MethodHotThreshold = 1
	m := NewFunction("m", 0, 0, 0)
	p.RecordInvocation(m)

	p.Reset()
	if p.Count(m) != 0 || p.IsMethodHot(m) {
		t.Error("Reset should clear method profiles")
	}
	if stats := p.Stats(); stats.TotalMethods != 0 || stats.HotMethods != 0 {
		t.Errorf("Stats after reset = %+v", stats)
	}
}

func TestProfilerConcurrentAccess(t *testing.T) {
	p := NewProfiler()
	p.MethodHotThreshold = 1000
	m := NewFunction("shared", 0, 0, 0)

	var wg sync.WaitGroup
	var hot sync.Map
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if p.RecordInvocation(m) {
					hot.Store(g, true)
				}
			}
		}(g)
	}
	wg.Wait()

	if got := p.Count(m); got != 2000 {
		t.Errorf("Expected 2000 invocations, got %d", got)
	}
	reports := 0
	hot.Range(func(_, _ interface{}) bool {
		reports++
		return true
	})
	if reports != 1 {
		t.Errorf("hot reported by %d goroutines, want 1", reports)
	}
}
