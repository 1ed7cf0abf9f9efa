package vm

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode identifies an instruction form. Every Instruction reports its
// opcode; the table below carries the mnemonic used by listings and images.
type Opcode byte

// Control
const (
	OpNop      Opcode = 0x00 // no operation
	OpLine     Opcode = 0x01 // set the current source line
	OpEnter    Opcode = 0x02 // push a scope
	OpExit     Opcode = 0x03 // pop a scope, releasing its registers
	OpJump     Opcode = 0x04 // unconditional relative jump
	OpJumpCond Opcode = 0x05 // jump on a unary condition
	OpJumpCmp  Opcode = 0x06 // jump on a comparison
	OpJumpType Opcode = 0x07 // jump if the value is of a type
)

// Guards and raising
const (
	OpGuardStart   Opcode = 0x10 // push a catch guard and enter its scope
	OpGuardEnd     Opcode = 0x11 // pop the guard, exit its scope, skip the handlers
	OpCatchStart   Opcode = 0x12 // start of a handler
	OpCatchEnd     Opcode = 0x13 // exit the handler scope and jump to the end
	OpGuardAll     Opcode = 0x14 // push a finally guard and enter its scope
	OpFinallyStart Opcode = 0x15 // start of a finally block
	OpFinallyEnd   Opcode = 0x16 // end of a finally block: rethrow or resume
	OpThrow        Opcode = 0x17 // raise an exception
	OpAssert       Opcode = 0x18 // raise Assertion if false
	OpAssertM      Opcode = 0x19 // raise Assertion with a message if false
)

// Returns
const (
	OpReturn0 Opcode = 0x20
	OpReturn1 Opcode = 0x21
	OpReturnN Opcode = 0x22
	OpReturnT Opcode = 0x23
)

// Declarations and moves
const (
	OpVar     Opcode = 0x30 // declare an unassigned register
	OpVarI    Opcode = 0x31 // declare an initialised register
	OpVarN    Opcode = 0x32 // declare a named register
	OpVarIN   Opcode = 0x33 // declare a named, initialised register
	OpVarD    Opcode = 0x34 // declare a dynamic-reference register
	OpVarDN   Opcode = 0x35 // declare a named dynamic-reference register
	OpVarT    Opcode = 0x36 // declare a register holding a new tuple
	OpVarS    Opcode = 0x37 // declare a register holding a new array
	OpMove    Opcode = 0x38 // copy a value
	OpMoveRef Opcode = 0x39 // produce a reference to a register
	OpMoveVar Opcode = 0x3A // copy a dynamic register's cell
)

// Tests and arithmetic
const (
	OpTest    Opcode = 0x40 // unary test into a Boolean
	OpCompare Opcode = 0x41 // binary comparison into a Boolean or ordering
	OpIsType  Opcode = 0x42 // type test into a Boolean
	OpGP      Opcode = 0x43 // binary operator
	OpGPUnary Opcode = 0x44 // unary operator
	OpIP      Opcode = 0x45 // in-place operator on a register
)

// Fields and indexed access
const (
	OpLGet Opcode = 0x50 // read a field of this
	OpLSet Opcode = 0x51 // write a field of this
	OpPGet Opcode = 0x52 // read a field of an object
	OpPSet Opcode = 0x53 // write a field of an object
	OpPRef Opcode = 0x54 // reference a field of an object
	OpIGet Opcode = 0x55 // read an element
	OpISet Opcode = 0x56 // write an element
	OpIRef Opcode = 0x57 // reference an element
	OpIIP  Opcode = 0x58 // in-place operator on an element
)

// Binding
const (
	OpMBind Opcode = 0x60 // bind a method to a receiver
	OpFBind Opcode = 0x61 // bind function parameters
)

// Function calls: argument arity x return arity
const (
	OpCall00 Opcode = 0x70 + iota
	OpCall01
	OpCall0N
	OpCall0T
	OpCall10
	OpCall11
	OpCall1N
	OpCall1T
	OpCallN0
	OpCallN1
	OpCallNN
	OpCallNT
	OpCallT0
	OpCallT1
	OpCallTN
	OpCallTT
)

// Virtual invocations: argument arity x return arity
const (
	OpInvoke00 Opcode = 0x80 + iota
	OpInvoke01
	OpInvoke0N
	OpInvoke0T
	OpInvoke10
	OpInvoke11
	OpInvoke1N
	OpInvoke1T
	OpInvokeN0
	OpInvokeN1
	OpInvokeNN
	OpInvokeNT
	OpInvokeT0
	OpInvokeT1
	OpInvokeTN
	OpInvokeTT
)

// Construction
const (
	OpNew0       Opcode = 0x90
	OpNew1       Opcode = 0x91
	OpNewN       Opcode = 0x92
	OpConstruct0 Opcode = 0x93
	OpConstruct1 Opcode = 0x94
	OpConstructN Opcode = 0x95
	opNewLocal   Opcode = 0x9F // construct in the current context; service bootstrap only
	opNativeCall Opcode = 0x9E // run a native as the body of a request
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name  string // mnemonic
	Group string // instruction family
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpNop:      {"NOP", "control"},
	OpLine:     {"LINE", "control"},
	OpEnter:    {"ENTER", "scope"},
	OpExit:     {"EXIT", "scope"},
	OpJump:     {"JUMP", "jump"},
	OpJumpCond: {"JMP_COND", "jump"},
	OpJumpCmp:  {"JMP_CMP", "jump"},
	OpJumpType: {"JMP_TYPE", "jump"},

	OpGuardStart:   {"GUARD", "guard"},
	OpGuardEnd:     {"GUARD_END", "guard"},
	OpCatchStart:   {"CATCH", "guard"},
	OpCatchEnd:     {"CATCH_END", "guard"},
	OpGuardAll:     {"GUARD_ALL", "guard"},
	OpFinallyStart: {"FINALLY", "guard"},
	OpFinallyEnd:   {"FINALLY_END", "guard"},
	OpThrow:        {"THROW", "guard"},
	OpAssert:       {"ASSERT", "guard"},
	OpAssertM:      {"ASSERT_M", "guard"},

	OpReturn0: {"RETURN_0", "return"},
	OpReturn1: {"RETURN_1", "return"},
	OpReturnN: {"RETURN_N", "return"},
	OpReturnT: {"RETURN_T", "return"},

	OpVar:     {"VAR", "declare"},
	OpVarI:    {"VAR_I", "declare"},
	OpVarN:    {"VAR_N", "declare"},
	OpVarIN:   {"VAR_IN", "declare"},
	OpVarD:    {"VAR_D", "declare"},
	OpVarDN:   {"VAR_DN", "declare"},
	OpVarT:    {"VAR_T", "declare"},
	OpVarS:    {"VAR_S", "declare"},
	OpMove:    {"MOV", "move"},
	OpMoveRef: {"MOV_REF", "move"},
	OpMoveVar: {"MOV_VAR", "move"},

	OpTest:    {"TEST", "test"},
	OpCompare: {"CMP", "test"},
	OpIsType:  {"IS_TYPE", "test"},
	OpGP:      {"GP", "arith"},
	OpGPUnary: {"GP_UNARY", "arith"},
	OpIP:      {"IP", "arith"},

	OpLGet: {"L_GET", "field"},
	OpLSet: {"L_SET", "field"},
	OpPGet: {"P_GET", "field"},
	OpPSet: {"P_SET", "field"},
	OpPRef: {"P_REF", "field"},
	OpIGet: {"I_GET", "indexed"},
	OpISet: {"I_SET", "indexed"},
	OpIRef: {"I_REF", "indexed"},
	OpIIP:  {"IIP", "indexed"},

	OpMBind: {"MBIND", "bind"},
	OpFBind: {"FBIND", "bind"},

	OpCall00: {"CALL_00", "call"},
	OpCall01: {"CALL_01", "call"},
	OpCall0N: {"CALL_0N", "call"},
	OpCall0T: {"CALL_0T", "call"},
	OpCall10: {"CALL_10", "call"},
	OpCall11: {"CALL_11", "call"},
	OpCall1N: {"CALL_1N", "call"},
	OpCall1T: {"CALL_1T", "call"},
	OpCallN0: {"CALL_N0", "call"},
	OpCallN1: {"CALL_N1", "call"},
	OpCallNN: {"CALL_NN", "call"},
	OpCallNT: {"CALL_NT", "call"},
	OpCallT0: {"CALL_T0", "call"},
	OpCallT1: {"CALL_T1", "call"},
	OpCallTN: {"CALL_TN", "call"},
	OpCallTT: {"CALL_TT", "call"},

	OpInvoke00: {"INVOKE_00", "invoke"},
	OpInvoke01: {"INVOKE_01", "invoke"},
	OpInvoke0N: {"INVOKE_0N", "invoke"},
	OpInvoke0T: {"INVOKE_0T", "invoke"},
	OpInvoke10: {"INVOKE_10", "invoke"},
	OpInvoke11: {"INVOKE_11", "invoke"},
	OpInvoke1N: {"INVOKE_1N", "invoke"},
	OpInvoke1T: {"INVOKE_1T", "invoke"},
	OpInvokeN0: {"INVOKE_N0", "invoke"},
	OpInvokeN1: {"INVOKE_N1", "invoke"},
	OpInvokeNN: {"INVOKE_NN", "invoke"},
	OpInvokeNT: {"INVOKE_NT", "invoke"},
	OpInvokeT0: {"INVOKE_T0", "invoke"},
	OpInvokeT1: {"INVOKE_T1", "invoke"},
	OpInvokeTN: {"INVOKE_TN", "invoke"},
	OpInvokeTT: {"INVOKE_TT", "invoke"},

	OpNew0:       {"NEW_0", "construct"},
	OpNew1:       {"NEW_1", "construct"},
	OpNewN:       {"NEW_N", "construct"},
	OpConstruct0: {"CONSTR_0", "construct"},
	OpConstruct1: {"CONSTR_1", "construct"},
	OpConstructN: {"CONSTR_N", "construct"},
	opNewLocal:   {"NEW_LOCAL", "construct"},
	opNativeCall: {"NATIVE_CALL", "call"},
}

// opcodeByName is the reverse of opcodeTable.
var opcodeByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeTable))
	for op, info := range opcodeTable {
		m[info.Name] = op
	}
	return m
}()

// Info returns metadata for the opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Name returns the mnemonic.
func (op Opcode) Name() string {
	return op.Info().Name
}

func (op Opcode) String() string {
	return op.Name()
}

// OpcodeByName returns the opcode for a mnemonic.
func OpcodeByName(name string) (Opcode, bool) {
	op, ok := opcodeByName[name]
	return op, ok
}
