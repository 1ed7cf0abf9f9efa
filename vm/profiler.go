package vm

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Profiler tracks method invocation counts to identify hot code.
// Natives and bytecode methods are both counted; the counts feed
// VM.Stats and the journal.

// MethodProfile holds profiling data for a single method.
type MethodProfile struct {
	InvocationCount uint64 // Atomic counter for invocations
	IsHot           bool   // True once the threshold was reached
}

// Profiler manages profiling for all methods run by a VM.
type Profiler struct {
	methodProfiles sync.Map // *Method -> *MethodProfile

	// MethodHotThreshold is the invocation count at which a method
	// becomes hot. Default: 100.
	MethodHotThreshold uint64

	// OnHot is called once per method when it becomes hot.
	OnHot func(method *Method, profile *MethodProfile)

	hotMethodCount uint64
	hotMu          sync.Mutex
}

// NewProfiler creates a new profiler with the default threshold.
func NewProfiler() *Profiler {
	return &Profiler{MethodHotThreshold: 100}
}

// RecordInvocation increments the invocation count for a method.
// Returns true if this invocation made the method hot.
func (p *Profiler) RecordInvocation(method *Method) bool {
	if p == nil || method == nil {
		return false
	}
	val, _ := p.methodProfiles.LoadOrStore(method, &MethodProfile{})
	profile := val.(*MethodProfile)

	count := atomic.AddUint64(&profile.InvocationCount, 1)
	if count < p.MethodHotThreshold {
		return false
	}

	p.hotMu.Lock()
	becameHot := !profile.IsHot
	profile.IsHot = true
	p.hotMu.Unlock()
	if !becameHot {
		return false
	}
	atomic.AddUint64(&p.hotMethodCount, 1)
	log.Debugf("method %s is hot after %d invocations", method, count)
	if p.OnHot != nil {
		p.OnHot(method, profile)
	}
	return true
}

// Count returns the number of recorded invocations of method.
func (p *Profiler) Count(method *Method) uint64 {
	if val, ok := p.methodProfiles.Load(method); ok {
		return atomic.LoadUint64(&val.(*MethodProfile).InvocationCount)
	}
	return 0
}

// IsMethodHot returns true if the method has reached the hot threshold.
func (p *Profiler) IsMethodHot(method *Method) bool {
	val, ok := p.methodProfiles.Load(method)
	if !ok {
		return false
	}
	p.hotMu.Lock()
	defer p.hotMu.Unlock()
	return val.(*MethodProfile).IsHot
}

// ProfilerStats holds aggregate profiling statistics.
type ProfilerStats struct {
	TotalMethods     int    // Number of methods profiled
	HotMethods       int    // Number of hot methods
	TotalInvocations uint64 // Total method invocations
}

// Stats returns aggregate profiling statistics.
func (p *Profiler) Stats() ProfilerStats {
	var stats ProfilerStats
	p.methodProfiles.Range(func(_, value interface{}) bool {
		profile := value.(*MethodProfile)
		stats.TotalMethods++
		stats.TotalInvocations += atomic.LoadUint64(&profile.InvocationCount)
		return true
	})
	stats.HotMethods = int(atomic.LoadUint64(&p.hotMethodCount))
	return stats
}

// MethodCount pairs a method with its invocation count.
type MethodCount struct {
	Method *Method
	Count  uint64
}

// TopMethods returns the n most frequently invoked methods, most
// invoked first.
func (p *Profiler) TopMethods(n int) []MethodCount {
	var all []MethodCount
	p.methodProfiles.Range(func(key, value interface{}) bool {
		all = append(all, MethodCount{
			Method: key.(*Method),
			Count:  atomic.LoadUint64(&value.(*MethodProfile).InvocationCount),
		})
		return true
	})
	sort.Slice(all, func(i, j int) bool {
		if all[i].Count != all[j].Count {
			return all[i].Count > all[j].Count
		}
		return all[i].Method.String() < all[j].Method.String()
	})
	if n < len(all) {
		all = all[:n]
	}
	return all
}

// Reset clears all profiling data.
func (p *Profiler) Reset() {
	p.methodProfiles.Range(func(key, _ interface{}) bool {
		p.methodProfiles.Delete(key)
		return true
	})
	atomic.StoreUint64(&p.hotMethodCount, 0)
}
