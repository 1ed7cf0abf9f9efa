package vm

import (
	"fmt"
	"sync"
)

// ---------------------------------------------------------------------------
// Operands
// ---------------------------------------------------------------------------

// Operands are ints. Non-negative operands are registers; the reserved
// sentinels below denote special arguments; anything at or below
// constantOffset refers to the constant pool.
const (
	ArgIgnore  = -2  // unused return value
	ArgDefault = -3  // no value supplied: the callee uses its default
	ArgThis    = -4  // the frame's receiver
	ArgSuper   = -12 // the next implementation in the active resolution chain

	constantOffset = -17
)

// ConstArg encodes constant-pool index i as an operand.
func ConstArg(i int) int { return constantOffset - i }

// isConstant reports whether operand a refers to the constant pool.
func isConstant(a int) bool { return a <= constantOffset }

// constIndex decodes a constant-pool operand.
func constIndex(a int) int { return constantOffset - a }

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

// Constant is a constant-pool entry. The set is closed.
type Constant interface {
	constant()
	String() string
}

// IntConstant is an integer literal.
type IntConstant struct{ Value int64 }

// StringConstant is a string literal; also used for register and
// property names.
type StringConstant struct{ Value string }

// BoolConstant is a Boolean literal.
type BoolConstant struct{ Value bool }

// NullConstant is the Null literal.
type NullConstant struct{}

// TypeConstant names a type binding.
type TypeConstant struct{ Name string }

// MethodConstant identifies a method declared directly on a type; used for
// static function calls, constructors and MBind.
type MethodConstant struct {
	Type   string
	Name   string
	Params int
}

// SignatureConstant is a virtual dispatch key resolved against the
// receiver's binding.
type SignatureConstant struct {
	Name   string
	Params int
}

// PropertyConstant names an instance field.
type PropertyConstant struct{ Name string }

func (IntConstant) constant()       {}
func (StringConstant) constant()    {}
func (BoolConstant) constant()      {}
func (NullConstant) constant()      {}
func (TypeConstant) constant()      {}
func (MethodConstant) constant()    {}
func (SignatureConstant) constant() {}
func (PropertyConstant) constant()  {}

func (c IntConstant) String() string    { return fmt.Sprintf("%d", c.Value) }
func (c StringConstant) String() string { return fmt.Sprintf("%q", c.Value) }
func (c BoolConstant) String() string   { return fmt.Sprintf("%t", c.Value) }
func (NullConstant) String() string     { return "Null" }
func (c TypeConstant) String() string   { return "type:" + c.Name }
func (c MethodConstant) String() string {
	return fmt.Sprintf("method:%s.%s/%d", c.Type, c.Name, c.Params)
}
func (c SignatureConstant) String() string { return fmt.Sprintf("sig:%s/%d", c.Name, c.Params) }
func (c PropertyConstant) String() string  { return "prop:" + c.Name }

// Signature returns the dispatch key.
func (c SignatureConstant) Signature() Signature {
	return Signature{Name: c.Name, Params: c.Params}
}

// ---------------------------------------------------------------------------
// ConstantPool
// ---------------------------------------------------------------------------

// ConstantPool holds a program's constants and caches their resolved
// runtime forms. Resolution is lazy and safe for concurrent use by
// several service contexts.
type ConstantPool struct {
	constants []Constant
	registry  *Registry

	mu      sync.RWMutex
	types   map[int]*TypeBinding
	methods map[int]*Method
}

// NewConstantPool creates a pool over the given constants.
func NewConstantPool(constants ...Constant) *ConstantPool {
	return &ConstantPool{
		constants: constants,
		types:     make(map[int]*TypeBinding),
		methods:   make(map[int]*Method),
	}
}

// Add appends c and returns its operand encoding.
func (p *ConstantPool) Add(c Constant) int {
	p.constants = append(p.constants, c)
	return ConstArg(len(p.constants) - 1)
}

// Len returns the number of constants.
func (p *ConstantPool) Len() int { return len(p.constants) }

// Constants returns the pool's entries.
func (p *ConstantPool) Constants() []Constant { return p.constants }

// At returns the constant for operand a.
func (p *ConstantPool) At(a int) (Constant, error) {
	i := constIndex(a)
	if !isConstant(a) || i >= len(p.constants) {
		return nil, fmt.Errorf("operand %d is not a constant (pool size %d)", a, len(p.constants))
	}
	return p.constants[i], nil
}

// Value returns the runtime value of a literal constant.
func (p *ConstantPool) Value(a int) (Value, error) {
	c, err := p.At(a)
	if err != nil {
		return nil, err
	}
	switch c := c.(type) {
	case IntConstant:
		return Int(c.Value), nil
	case StringConstant:
		return String(c.Value), nil
	case BoolConstant:
		return Bool(c.Value), nil
	case NullConstant:
		return Null, nil
	}
	return nil, fmt.Errorf("constant %s is not a literal", c)
}

// Name returns the string of a StringConstant or PropertyConstant.
func (p *ConstantPool) Name(a int) (string, error) {
	c, err := p.At(a)
	if err != nil {
		return "", err
	}
	switch c := c.(type) {
	case StringConstant:
		return c.Value, nil
	case PropertyConstant:
		return c.Name, nil
	}
	return "", fmt.Errorf("constant %s is not a name", c)
}

// Type resolves a TypeConstant through the registry.
func (p *ConstantPool) Type(a int) (*TypeBinding, error) {
	p.mu.RLock()
	t, ok := p.types[a]
	p.mu.RUnlock()
	if ok {
		return t, nil
	}

	c, err := p.At(a)
	if err != nil {
		return nil, err
	}
	tc, ok := c.(TypeConstant)
	if !ok {
		return nil, fmt.Errorf("constant %s is not a type", c)
	}
	if p.registry == nil {
		return nil, fmt.Errorf("constant pool is not linked")
	}
	t, err = p.registry.Lookup(tc.Name)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.types[a] = t
	p.mu.Unlock()
	return t, nil
}

// Method resolves a MethodConstant to the declared method.
func (p *ConstantPool) Method(a int) (*Method, error) {
	p.mu.RLock()
	m, ok := p.methods[a]
	p.mu.RUnlock()
	if ok {
		return m, nil
	}

	c, err := p.At(a)
	if err != nil {
		return nil, err
	}
	mc, ok := c.(MethodConstant)
	if !ok {
		return nil, fmt.Errorf("constant %s is not a method", c)
	}
	if p.registry == nil {
		return nil, fmt.Errorf("constant pool is not linked")
	}
	t, err := p.registry.Lookup(mc.Type)
	if err != nil {
		return nil, err
	}
	m = t.DeclaredMethod(Signature{Name: mc.Name, Params: mc.Params})
	if m == nil {
		return nil, fmt.Errorf("%s: no such method", mc)
	}

	p.mu.Lock()
	p.methods[a] = m
	p.mu.Unlock()
	return m, nil
}

// Signature returns the dispatch key of a SignatureConstant.
func (p *ConstantPool) Signature(a int) (Signature, error) {
	c, err := p.At(a)
	if err != nil {
		return Signature{}, err
	}
	switch c := c.(type) {
	case SignatureConstant:
		return c.Signature(), nil
	case MethodConstant:
		return Signature{Name: c.Name, Params: c.Params}, nil
	}
	return Signature{}, fmt.Errorf("constant %s is not a signature", c)
}
