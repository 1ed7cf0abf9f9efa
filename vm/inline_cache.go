package vm

import "sync"

// Inline caching for virtual dispatch
//
// Most Invoke sites see a single receiver type, a few see a handful and
// very few see many. Each site keeps its own cache keyed by the
// instruction address, so a hit skips the binding's chain lookup.

// CacheState represents the current state of an inline cache.
type CacheState uint8

const (
	CacheEmpty       CacheState = iota // No cached lookup yet
	CacheMonomorphic                   // Single (binding, chain) cached
	CachePolymorphic                   // 2-6 entries
	CacheMegamorphic                   // Too many types, use full lookup
)

// MaxPICEntries is the maximum number of entries in a polymorphic inline cache.
const MaxPICEntries = 6

// InlineCacheEntry holds a single cached lookup result.
type InlineCacheEntry struct {
	Binding *TypeBinding
	Chain   *ResolutionChain
}

// InlineCache is the cache of one Invoke site. Methods are shared by
// every context, so the cache is locked.
type InlineCache struct {
	mu      sync.Mutex
	State   CacheState
	Entries [MaxPICEntries]InlineCacheEntry
	Count   int

	Hits   uint64
	Misses uint64
}

// Lookup returns the cached chain for binding, or nil on a miss.
func (ic *InlineCache) Lookup(binding *TypeBinding) *ResolutionChain {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if ic.State == CacheMonomorphic || ic.State == CachePolymorphic {
		for i := 0; i < ic.Count; i++ {
			if ic.Entries[i].Binding == binding {
				ic.Hits++
				return ic.Entries[i].Chain
			}
		}
	}
	ic.Misses++
	return nil
}

// Update records a (binding, chain) pair, upgrading the cache state.
func (ic *InlineCache) Update(binding *TypeBinding, chain *ResolutionChain) {
	if chain == nil || chain.IsEmpty() {
		return // failed lookups are not cached
	}
	ic.mu.Lock()
	defer ic.mu.Unlock()

	switch ic.State {
	case CacheEmpty:
		ic.State = CacheMonomorphic
		ic.Entries[0] = InlineCacheEntry{Binding: binding, Chain: chain}
		ic.Count = 1

	case CacheMonomorphic, CachePolymorphic:
		for i := 0; i < ic.Count; i++ {
			if ic.Entries[i].Binding == binding {
				return
			}
		}
		if ic.Count < MaxPICEntries {
			ic.Entries[ic.Count] = InlineCacheEntry{Binding: binding, Chain: chain}
			ic.Count++
			ic.State = CachePolymorphic
			return
		}
		ic.State = CacheMegamorphic
		for i := range ic.Entries {
			ic.Entries[i] = InlineCacheEntry{}
		}
		ic.Count = 0
	}
}

// HitRate returns the cache hit rate as a percentage (0-100).
func (ic *InlineCache) HitRate() float64 {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	total := ic.Hits + ic.Misses
	if total == 0 {
		return 0
	}
	return float64(ic.Hits) * 100 / float64(total)
}

// Reset clears the cache back to empty state.
func (ic *InlineCache) Reset() {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.State = CacheEmpty
	ic.Count = 0
	ic.Hits = 0
	ic.Misses = 0
	for i := range ic.Entries {
		ic.Entries[i] = InlineCacheEntry{}
	}
}

// InlineCacheTable maps instruction addresses of one method to caches.
type InlineCacheTable struct {
	mu     sync.Mutex
	caches map[int]*InlineCache
}

// NewInlineCacheTable creates a new inline cache table.
func NewInlineCacheTable() *InlineCacheTable {
	return &InlineCacheTable{
		caches: make(map[int]*InlineCache),
	}
}

// GetOrCreate returns the cache for pc, creating one if needed.
func (t *InlineCacheTable) GetOrCreate(pc int) *InlineCache {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ic := t.caches[pc]; ic != nil {
		return ic
	}
	ic := &InlineCache{State: CacheEmpty}
	t.caches[pc] = ic
	return ic
}

// Get returns the cache for pc, or nil if none exists.
func (t *InlineCacheTable) Get(pc int) *InlineCache {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.caches[pc]
}

// Stats returns aggregate statistics for all caches in the table.
func (t *InlineCacheTable) Stats() (mono, poly, mega, empty int, totalHits, totalMisses uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ic := range t.caches {
		ic.mu.Lock()
		switch ic.State {
		case CacheMonomorphic:
			mono++
		case CachePolymorphic:
			poly++
		case CacheMegamorphic:
			mega++
		case CacheEmpty:
			empty++
		}
		totalHits += ic.Hits
		totalMisses += ic.Misses
		ic.mu.Unlock()
	}
	return
}

// site returns the inline cache of the Invoke instruction at pc.
func (m *Method) site(pc int) *InlineCache {
	m.sitesOnce.Do(func() { m.sites = NewInlineCacheTable() })
	return m.sites.GetOrCreate(pc)
}

// ICStats holds aggregate inline cache statistics.
type ICStats struct {
	TotalCallSites  int     // Total number of call sites with caches
	Monomorphic     int     // Call sites in monomorphic state
	Polymorphic     int     // Call sites in polymorphic state
	Megamorphic     int     // Call sites in megamorphic state
	Empty           int     // Call sites never used
	TotalHits       uint64  // Total cache hits
	TotalMisses     uint64  // Total cache misses
	HitRate         float64 // Overall hit rate percentage
	MonomorphicRate float64 // Percentage of call sites that are monomorphic
}

// CollectICStats gathers inline cache statistics from every method of
// every type in the registry.
func CollectICStats(r *Registry) ICStats {
	var stats ICStats
	for _, name := range r.Names() {
		t, err := r.Lookup(name)
		if err != nil {
			continue
		}
		for _, m := range t.Methods() {
			collectFromMethod(m, &stats)
		}
	}

	total := stats.TotalHits + stats.TotalMisses
	if total > 0 {
		stats.HitRate = float64(stats.TotalHits) * 100 / float64(total)
	}
	nonEmpty := stats.TotalCallSites - stats.Empty
	if nonEmpty > 0 {
		stats.MonomorphicRate = float64(stats.Monomorphic) * 100 / float64(nonEmpty)
	}
	return stats
}

func collectFromMethod(m *Method, stats *ICStats) {
	if m.sites == nil {
		return
	}
	mono, poly, mega, empty, hits, misses := m.sites.Stats()
	stats.Monomorphic += mono
	stats.Polymorphic += poly
	stats.Megamorphic += mega
	stats.Empty += empty
	stats.TotalHits += hits
	stats.TotalMisses += misses
	stats.TotalCallSites += mono + poly + mega + empty
}
