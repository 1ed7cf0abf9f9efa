package vm

import (
	"fmt"
	"strconv"
	"sync"
)

// ---------------------------------------------------------------------------
// TypeBinding: a resolved runtime class descriptor
// ---------------------------------------------------------------------------

// Format describes how instances of a type behave at runtime.
type Format uint8

const (
	FormatClass     Format = iota // mutable instances owned by one context
	FormatConst                   // instances become immutable when construction completes
	FormatService                 // every instance lives in its own service context
	FormatMixin                   // contributes methods to types that incorporate it
	FormatInterface               // abstract; contributes default methods only
	FormatNative                  // scalar and container types implemented by the engine
)

var formatNames = [...]string{"class", "const", "service", "mixin", "interface", "native"}

func (f Format) String() string {
	if int(f) < len(formatNames) {
		return formatNames[f]
	}
	return "Format(" + strconv.Itoa(int(f)) + ")"
}

// Field describes an instance field. A nil Default leaves the field
// unassigned in the struct phase.
type Field struct {
	Name     string
	Default  Value
	Nullable bool
}

// Signature keys a method within a type: name and parameter count.
type Signature struct {
	Name   string
	Params int
}

func (s Signature) String() string {
	return s.Name + "/" + strconv.Itoa(s.Params)
}

// TypeBinding is the dispatch key for virtual calls. It owns the methods
// declared by one type and caches the resolution chains computed across
// its inheritance lattice.
type TypeBinding struct {
	Name   string
	Format Format
	Super  *TypeBinding
	Mixins []*TypeBinding // incorporated mixins and implemented interfaces
	Fields []Field        // fields declared by this type (inherited ones come first in the layout)

	methods map[Signature]*Method

	mu         sync.RWMutex
	chains     map[Signature]*ResolutionChain
	layout     []Field
	fieldIndex map[string]int
	linear     []*TypeBinding
}

// NewTypeBinding creates a binding with no methods.
func NewTypeBinding(name string, format Format, super *TypeBinding, fields ...Field) *TypeBinding {
	return &TypeBinding{
		Name:    name,
		Format:  format,
		Super:   super,
		Fields:  fields,
		methods: make(map[Signature]*Method),
		chains:  make(map[Signature]*ResolutionChain),
	}
}

func (t *TypeBinding) String() string { return t.Name }

// IsService reports whether instances of t run in their own context.
func (t *TypeBinding) IsService() bool {
	for c := t; c != nil; c = c.Super {
		if c.Format == FormatService {
			return true
		}
	}
	return false
}

// IsConst reports whether instances become immutable after construction.
func (t *TypeBinding) IsConst() bool {
	for c := t; c != nil; c = c.Super {
		if c.Format == FormatConst {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Method registration
// ---------------------------------------------------------------------------

// AddMethod declares m on this type. The method's owner is set to t.
func (t *TypeBinding) AddMethod(m *Method) *Method {
	m.Owner = t
	t.methods[m.Signature()] = m

	t.mu.Lock()
	t.chains = make(map[Signature]*ResolutionChain)
	t.mu.Unlock()
	return m
}

// AddNative declares a native method with the given name and arity.
func (t *TypeBinding) AddNative(name string, params, returns int) *Method {
	return t.AddMethod(&Method{Name: name, Params: params, Returns: returns, Native: true})
}

// DeclaredMethod returns the method declared directly on t, if any.
func (t *TypeBinding) DeclaredMethod(sig Signature) *Method {
	return t.methods[sig]
}

// Methods returns the methods declared directly on t.
func (t *TypeBinding) Methods() []*Method {
	out := make([]*Method, 0, len(t.methods))
	for _, m := range t.methods {
		out = append(out, m)
	}
	return out
}

// ---------------------------------------------------------------------------
// Inheritance
// ---------------------------------------------------------------------------

// linearization returns t, its mixins, then its super's linearization,
// skipping types already visited. This is the order of the resolution chain.
func (t *TypeBinding) linearization() []*TypeBinding {
	t.mu.RLock()
	lin := t.linear
	t.mu.RUnlock()
	if lin != nil {
		return lin
	}

	seen := make(map[*TypeBinding]bool)
	var walk func(c *TypeBinding)
	walk = func(c *TypeBinding) {
		for ; c != nil; c = c.Super {
			if seen[c] {
				return
			}
			seen[c] = true
			lin = append(lin, c)
			for _, m := range c.Mixins {
				walk(m)
			}
		}
	}
	walk(t)

	t.mu.Lock()
	t.linear = lin
	t.mu.Unlock()
	return lin
}

// IsA reports whether t is other or a subtype of it.
func (t *TypeBinding) IsA(other *TypeBinding) bool {
	if t == nil || other == nil {
		return false
	}
	if t == other {
		return true
	}
	for _, c := range t.linearization() {
		if c == other {
			return true
		}
	}
	return false
}

// Extends reports whether t or a type in its lattice is named name.
func (t *TypeBinding) Extends(name string) bool {
	for _, c := range t.linearization() {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Chain returns the resolution chain for sig, building and caching it on
// first use. The chain is empty when no type in the lattice implements sig.
func (t *TypeBinding) Chain(sig Signature) *ResolutionChain {
	t.mu.RLock()
	chain, ok := t.chains[sig]
	t.mu.RUnlock()
	if ok {
		return chain
	}

	var impls []*Method
	for _, c := range t.linearization() {
		if m := c.methods[sig]; m != nil && !m.Abstract {
			impls = append(impls, m)
		}
	}
	chain = newResolutionChain(sig, impls)

	t.mu.Lock()
	if existing, ok := t.chains[sig]; ok {
		chain = existing
	} else {
		t.chains[sig] = chain
	}
	t.mu.Unlock()
	return chain
}

// ---------------------------------------------------------------------------
// Field layout
// ---------------------------------------------------------------------------

// Layout returns every field of an instance, inherited fields first.
func (t *TypeBinding) Layout() []Field {
	t.mu.RLock()
	layout := t.layout
	t.mu.RUnlock()
	if layout != nil {
		return layout
	}

	if t.Super != nil {
		layout = append(layout, t.Super.Layout()...)
	}
	layout = append(layout, t.Fields...)
	index := make(map[string]int, len(layout))
	for i, f := range layout {
		index[f.Name] = i
	}

	t.mu.Lock()
	t.layout = layout
	t.fieldIndex = index
	t.mu.Unlock()
	return layout
}

// FieldIndex returns the slot index of the named field, or -1.
func (t *TypeBinding) FieldIndex(name string) int {
	t.Layout()
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i, ok := t.fieldIndex[name]; ok {
		return i
	}
	return -1
}

// validate checks the declaration for obvious loader errors.
func (t *TypeBinding) validate() error {
	for c := t.Super; c != nil; c = c.Super {
		if c == t {
			return fmt.Errorf("type %s: circular inheritance", t.Name)
		}
	}
	for sig, m := range t.methods {
		if m.Native || m.Abstract {
			continue
		}
		if m.Params > m.Registers {
			return fmt.Errorf("method %s.%s: %d params exceed %d registers",
				t.Name, sig, m.Params, m.Registers)
		}
		if len(m.Code) == 0 {
			return fmt.Errorf("method %s.%s: no code", t.Name, sig)
		}
	}
	return nil
}
