// Package image is the interchange form of XVM programs: a serialisable
// Module, its CBOR binary encoding, YAML assembly listings, and the linker
// that turns a Module into a vm.Program.
package image

import (
	"errors"
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/xtclang/xvm-sub023/vm"
)

var log = commonlog.GetLogger("xvm.image")

// ErrIncompatibleImage is returned for an image the engine cannot run.
var ErrIncompatibleImage = errors.New("incompatible image")

// Module is a program in serialisable form. Instruction operands refer to
// constants by their index in Constants, encoded as vm.ConstArg(i).
type Module struct {
	Name    string `cbor:"1,keyasint" yaml:"name"`
	Version string `cbor:"2,keyasint,omitempty" yaml:"version,omitempty"`
	// Engine is a semantic version constraint on vm.Version.
	Engine string `cbor:"3,keyasint,omitempty" yaml:"engine,omitempty"`
	// Entry names the function run by default, as "Type.name".
	Entry     string     `cbor:"4,keyasint,omitempty" yaml:"entry,omitempty"`
	Constants []Constant `cbor:"5,keyasint,omitempty" yaml:"constants,omitempty"`
	Types     []Type     `cbor:"6,keyasint" yaml:"types"`
}

// Constant kinds.
const (
	KindInt       = "int"
	KindString    = "string"
	KindBool      = "bool"
	KindNull      = "null"
	KindType      = "type"
	KindMethod    = "method"
	KindSignature = "signature"
	KindProperty  = "property"
)

// Constant is one constant-pool entry. Which fields are meaningful
// depends on Kind.
type Constant struct {
	Kind   string `cbor:"1,keyasint" yaml:"kind"`
	Int    int64  `cbor:"2,keyasint,omitempty" yaml:"int,omitempty"`
	Text   string `cbor:"3,keyasint,omitempty" yaml:"text,omitempty"`
	Bool   bool   `cbor:"4,keyasint,omitempty" yaml:"bool,omitempty"`
	Name   string `cbor:"5,keyasint,omitempty" yaml:"name,omitempty"`
	Type   string `cbor:"6,keyasint,omitempty" yaml:"type,omitempty"`
	Params int    `cbor:"7,keyasint,omitempty" yaml:"params,omitempty"`
}

// Type declares one type binding.
type Type struct {
	Name    string   `cbor:"1,keyasint" yaml:"name"`
	Format  string   `cbor:"2,keyasint" yaml:"format"`
	Super   string   `cbor:"3,keyasint,omitempty" yaml:"super,omitempty"`
	Mixins  []string `cbor:"4,keyasint,omitempty" yaml:"mixins,omitempty"`
	Fields  []Field  `cbor:"5,keyasint,omitempty" yaml:"fields,omitempty"`
	Methods []Method `cbor:"6,keyasint,omitempty" yaml:"methods,omitempty"`
}

// Field declares an instance field. Default must be a literal constant.
type Field struct {
	Name     string    `cbor:"1,keyasint" yaml:"name"`
	Default  *Constant `cbor:"2,keyasint,omitempty" yaml:"default,omitempty"`
	Nullable bool      `cbor:"3,keyasint,omitempty" yaml:"nullable,omitempty"`
}

// Method kinds.
const (
	MethodVirtual     = "method"
	MethodFunction    = "function"
	MethodConstructor = "constructor"
	MethodNative      = "native"
	MethodAbstract    = "abstract"
)

// Method declares a method, function or constructor.
type Method struct {
	Name      string `cbor:"1,keyasint" yaml:"name"`
	Kind      string `cbor:"2,keyasint" yaml:"kind"`
	Params    int    `cbor:"3,keyasint,omitempty" yaml:"params,omitempty"`
	Returns   int    `cbor:"4,keyasint,omitempty" yaml:"returns,omitempty"`
	Registers int    `cbor:"5,keyasint,omitempty" yaml:"registers,omitempty"`

	ParamNames []string    `cbor:"6,keyasint,omitempty" yaml:"paramNames,omitempty,flow"`
	Defaults   []*Constant `cbor:"7,keyasint,omitempty" yaml:"defaults,omitempty"`
	Dynamic    []int       `cbor:"8,keyasint,omitempty" yaml:"dynamic,omitempty,flow"`
	Finalizer  *Method     `cbor:"9,keyasint,omitempty" yaml:"finalizer,omitempty"`
	Code       []Instr     `cbor:"10,keyasint,omitempty" yaml:"code,omitempty"`
	Lines      [][2]int    `cbor:"11,keyasint,omitempty" yaml:"lines,omitempty,flow"`
}

// Instr is one instruction: the opcode mnemonic and its operands in
// field order. Scalar operands and operator kinds go to Operands, operand
// lists to Lists.
type Instr struct {
	Op       string   `cbor:"1,keyasint" yaml:"op"`
	Operands []int    `cbor:"2,keyasint,omitempty" yaml:"operands,omitempty,flow"`
	Lists    [][]int  `cbor:"3,keyasint,omitempty" yaml:"lists,omitempty,flow"`
	Catches  []Catch  `cbor:"4,keyasint,omitempty" yaml:"catches,omitempty"`
	Bindings [][2]int `cbor:"5,keyasint,omitempty" yaml:"bindings,omitempty,flow"`
}

// Catch is one handler of a GUARD instruction.
type Catch struct {
	Type int `cbor:"1,keyasint" yaml:"type"`
	Name int `cbor:"2,keyasint" yaml:"name"`
	Rel  int `cbor:"3,keyasint" yaml:"rel"`
}

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

// toConstant converts a Module constant to its engine form.
func (c *Constant) toConstant() (vm.Constant, error) {
	switch c.Kind {
	case KindInt:
		return vm.IntConstant{Value: c.Int}, nil
	case KindString:
		return vm.StringConstant{Value: c.Text}, nil
	case KindBool:
		return vm.BoolConstant{Value: c.Bool}, nil
	case KindNull:
		return vm.NullConstant{}, nil
	case KindType:
		return vm.TypeConstant{Name: c.Name}, nil
	case KindMethod:
		return vm.MethodConstant{Type: c.Type, Name: c.Name, Params: c.Params}, nil
	case KindSignature:
		return vm.SignatureConstant{Name: c.Name, Params: c.Params}, nil
	case KindProperty:
		return vm.PropertyConstant{Name: c.Name}, nil
	}
	return nil, fmt.Errorf("unknown constant kind %q", c.Kind)
}

// literal converts a literal Module constant to a value.
func (c *Constant) literal() (vm.Value, error) {
	switch c.Kind {
	case KindInt:
		return vm.Int(c.Int), nil
	case KindString:
		return vm.String(c.Text), nil
	case KindBool:
		return vm.Bool(c.Bool), nil
	case KindNull:
		return vm.Null, nil
	}
	return nil, fmt.Errorf("%s constant is not a literal", c.Kind)
}

func fromConstant(c vm.Constant) (Constant, error) {
	switch c := c.(type) {
	case vm.IntConstant:
		return Constant{Kind: KindInt, Int: c.Value}, nil
	case vm.StringConstant:
		return Constant{Kind: KindString, Text: c.Value}, nil
	case vm.BoolConstant:
		return Constant{Kind: KindBool, Bool: c.Value}, nil
	case vm.NullConstant:
		return Constant{Kind: KindNull}, nil
	case vm.TypeConstant:
		return Constant{Kind: KindType, Name: c.Name}, nil
	case vm.MethodConstant:
		return Constant{Kind: KindMethod, Type: c.Type, Name: c.Name, Params: c.Params}, nil
	case vm.SignatureConstant:
		return Constant{Kind: KindSignature, Name: c.Name, Params: c.Params}, nil
	case vm.PropertyConstant:
		return Constant{Kind: KindProperty, Name: c.Name}, nil
	}
	return Constant{}, fmt.Errorf("unsupported constant %T", c)
}

func fromLiteral(v vm.Value) (*Constant, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case vm.Int:
		return &Constant{Kind: KindInt, Int: int64(v)}, nil
	case vm.String:
		return &Constant{Kind: KindString, Text: string(v)}, nil
	case vm.Bool:
		return &Constant{Kind: KindBool, Bool: bool(v)}, nil
	}
	if vm.IsNull(v) {
		return &Constant{Kind: KindNull}, nil
	}
	return nil, fmt.Errorf("value %s has no literal form", v)
}
