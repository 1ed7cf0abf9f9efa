package vm

import (
	"fmt"
	"sync"
)

// ---------------------------------------------------------------------------
// Method: one implementation of a signature
// ---------------------------------------------------------------------------

// Method is a compiled method, function or constructor, or a native
// declaration resolved through the NativeDispatcher.
type Method struct {
	Name  string
	Owner *TypeBinding

	// Shape metadata produced by the compiler.
	Params    int // declared parameters, excluding the receiver
	Returns   int // declared return values
	Registers int // register count of a frame executing this method

	Code []Instruction
	Pool *ConstantPool

	Static      bool // a function: no receiver
	Native      bool
	Abstract    bool
	Constructor bool

	// Finalizer is the "finally" method of a constructor. It runs after the
	// instance is promoted, receiving the constructor's parameter registers.
	Finalizer *Method

	// DynamicParams lists parameter registers declared as dynamic
	// references; the argument passed for them must be a Cell.
	DynamicParams []int

	// ParamNames are optional register names for parameters.
	ParamNames []string

	// Defaults supply parameter values for arguments passed as ArgDefault.
	// A missing entry defaults to Null.
	Defaults []Value

	// SourceMap maps instruction addresses to source lines.
	SourceMap []SourceLoc

	sitesOnce sync.Once
	sites     *InlineCacheTable
}

// SourceLoc maps an instruction address to a source position.
type SourceLoc struct {
	PC   int // instruction address
	Line int // 1-based line number
}

// Signature returns the method's dispatch key.
func (m *Method) Signature() Signature {
	return Signature{Name: m.Name, Params: m.Params}
}

func (m *Method) String() string {
	if m.Owner == nil {
		return m.Name
	}
	return m.Owner.Name + "." + m.Name
}

// IsDynamicParam reports whether parameter register i has dynamic style.
func (m *Method) IsDynamicParam(i int) bool {
	for _, p := range m.DynamicParams {
		if p == i {
			return true
		}
	}
	return false
}

// SourceLine returns the line for an instruction address, or 0.
func (m *Method) SourceLine(pc int) int {
	line := 0
	for _, loc := range m.SourceMap {
		if loc.PC > pc {
			break
		}
		line = loc.Line
	}
	return line
}

// ---------------------------------------------------------------------------
// Construction helpers
// ---------------------------------------------------------------------------

// NewFunction creates a static function with the given shape and code.
func NewFunction(name string, params, returns, registers int, code ...Instruction) *Method {
	return &Method{
		Name:      name,
		Params:    params,
		Returns:   returns,
		Registers: registers,
		Code:      code,
		Static:    true,
	}
}

// NewMethod creates an instance method with the given shape and code.
func NewMethod(name string, params, returns, registers int, code ...Instruction) *Method {
	return &Method{
		Name:      name,
		Params:    params,
		Returns:   returns,
		Registers: registers,
		Code:      code,
	}
}

// NewConstructor creates a constructor. By convention constructors are
// named "construct".
func NewConstructor(params, registers int, code ...Instruction) *Method {
	return &Method{
		Name:        "construct",
		Params:      params,
		Registers:   registers,
		Code:        code,
		Constructor: true,
	}
}

// defaultFor returns the default value of parameter i.
func (m *Method) defaultFor(i int) Value {
	if i < len(m.Defaults) && m.Defaults[i] != nil {
		return m.Defaults[i]
	}
	return Null
}

// checkShape verifies that a frame can be built for nargs arguments.
func (m *Method) checkShape(nargs int) error {
	if m.Native {
		return nil
	}
	if nargs > m.Registers || m.Params > m.Registers {
		return fmt.Errorf("%s: %d arguments for %d registers", m, nargs, m.Registers)
	}
	return nil
}
