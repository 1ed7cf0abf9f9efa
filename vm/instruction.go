package vm

// ---------------------------------------------------------------------------
// Instruction: the closed set of instruction forms
// ---------------------------------------------------------------------------

// Instruction is one executable step of a method.
//
// Operands are ints: registers (>= 0), the Arg* sentinels, or constant
// pool references made with ConstArg. Jump offsets (Rel fields) are
// relative to the address of the instruction that holds them.
type Instruction interface {
	Opcode() Opcode
	isInstruction()
}

// Nop does nothing.
type Nop struct{}

// Line sets the current source line, used for exception origins.
type Line struct{ Line int }

// Enter pushes a scope.
type Enter struct{}

// Exit pops the current scope and releases its registers.
type Exit struct{}

// Jump transfers control unconditionally.
type Jump struct{ Rel int }

// CondKind selects the test of a JumpCond or Test instruction.
type CondKind uint8

const (
	CondTrue CondKind = iota
	CondFalse
	CondNull
	CondNotNull
	CondZero
	CondNotZero
)

// JumpCond jumps when Arg satisfies Kind.
type JumpCond struct {
	Kind     CondKind
	Arg, Rel int
}

// CmpKind selects a comparison.
type CmpKind uint8

const (
	CmpEq CmpKind = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
	CmpOrder // three-way: -1, 0 or 1 (Compare only)
)

// JumpCmp jumps when Left Kind Right holds.
type JumpCmp struct {
	Kind             CmpKind
	Left, Right, Rel int
}

// JumpType jumps when Arg is an instance of the Type constant.
type JumpType struct {
	Arg, Type, Rel int
}

// ---------------------------------------------------------------------------
// Guards
// ---------------------------------------------------------------------------

// Catch is one handler of a GuardStart: exceptions of Type are delivered to
// the handler at Rel into a fresh register named Name (a string constant,
// or any non-constant operand for an anonymous register).
type Catch struct {
	Type, Name, Rel int
}

// GuardStart enters a scope and pushes a guard with ordered handlers.
type GuardStart struct{ Catches []Catch }

// GuardEnd pops the guard, exits its scope and jumps past the handlers.
type GuardEnd struct{ Rel int }

// CatchStart marks the first instruction of a handler.
type CatchStart struct{}

// CatchEnd exits the handler scope and jumps past the remaining handlers.
type CatchEnd struct{ Rel int }

// GuardAll enters a scope and pushes a finally guard whose FinallyStart is
// at FinallyRel.
type GuardAll struct{ FinallyRel int }

// FinallyStart begins a finally block. On fall-through it closes the
// guarded scope and opens the finally scope with Null in its first
// register.
type FinallyStart struct{}

// FinallyEnd closes the finally scope. A non-null exception in the
// scope's first register is rethrown; a deferred return resumes.
type FinallyEnd struct{}

// Throw raises the exception in Arg.
type Throw struct{ Arg int }

// Assert raises Assertion when Cond is false.
type Assert struct{ Cond int }

// AssertM raises Assertion with the Message constant when Cond is false.
type AssertM struct {
	Cond, Message int
}

// ---------------------------------------------------------------------------
// Returns
// ---------------------------------------------------------------------------

// Return0 returns no values.
type Return0 struct{}

// Return1 returns Arg.
type Return1 struct{ Arg int }

// ReturnN returns several values.
type ReturnN struct{ Args []int }

// ReturnT returns the elements of the tuple in Arg.
type ReturnT struct{ Arg int }

// ---------------------------------------------------------------------------
// Declarations and moves
// ---------------------------------------------------------------------------

// Var declares an unassigned register of Type. Type is a type constant;
// any other operand declares an untyped register.
type Var struct{ Type int }

// VarI declares a register initialised from Arg.
type VarI struct {
	Type, Arg int
}

// VarN declares a named register.
type VarN struct {
	Type, Name int
}

// VarIN declares a named register initialised from Arg.
type VarIN struct {
	Type, Name, Arg int
}

// VarD declares a dynamic-reference register holding a fresh cell.
type VarD struct{ Type int }

// VarDN declares a named dynamic-reference register.
type VarDN struct {
	Type, Name int
}

// VarT declares a register holding a tuple of Args.
type VarT struct {
	Type int
	Args []int
}

// VarS declares a register holding a new mutable array of Args.
type VarS struct {
	Type int
	Args []int
}

// Move copies From into To.
type Move struct {
	From, To int
}

// MoveRef stores a reference to register From into To. A dynamic To is
// rebound to the reference.
type MoveRef struct {
	From, To int
}

// MoveVar copies the cell of dynamic register From into To.
type MoveVar struct {
	From, To int
}

// ---------------------------------------------------------------------------
// Tests and operators
// ---------------------------------------------------------------------------

// Test stores the Boolean outcome of Kind applied to Arg.
type Test struct {
	Kind      CondKind
	Arg, Dest int
}

// Compare stores Left Kind Right. CmpOrder stores an Int ordering.
type Compare struct {
	Kind              CmpKind
	Left, Right, Dest int
}

// IsType stores whether Arg is an instance of the Type constant.
type IsType struct {
	Arg, Type, Dest int
}

// BinaryOp selects a binary operator.
type BinaryOp uint8

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
)

var binaryNames = [...]string{"add", "sub", "mul", "div", "mod", "and", "or", "xor", "shl", "shr"}

func (op BinaryOp) String() string { return binaryNames[op] }

// GP stores Left Kind Right into Dest.
type GP struct {
	Kind              BinaryOp
	Left, Right, Dest int
}

// UnaryOp selects a unary operator.
type UnaryOp uint8

const (
	OpNeg UnaryOp = iota
	OpCompl
	OpNot
)

var unaryNames = [...]string{"neg", "compl", "not"}

func (op UnaryOp) String() string { return unaryNames[op] }

// GPUnary stores Kind Arg into Dest.
type GPUnary struct {
	Kind      UnaryOp
	Arg, Dest int
}

// InPlaceOp selects an in-place update.
type InPlaceOp uint8

const (
	InPlaceInc     InPlaceOp = iota // x++ (no result)
	InPlaceDec                      // x-- (no result)
	InPlacePreInc                   // ++x
	InPlacePreDec                   // --x
	InPlacePostInc                  // x++
	InPlacePostDec                  // x--
	InPlaceAdd                      // x += arg
	InPlaceSub                      // x -= arg
	InPlaceMul                      // x *= arg
	InPlaceDiv                      // x /= arg
	InPlaceMod                      // x %= arg
)

// IP updates register Target in place. Arg is the right-hand side of the
// assigning forms; Dest receives the pre or post value where applicable.
type IP struct {
	Kind              InPlaceOp
	Target, Arg, Dest int
}

// ---------------------------------------------------------------------------
// Fields
// ---------------------------------------------------------------------------

// LGet reads field Prop of this.
type LGet struct {
	Prop, Dest int
}

// LSet writes Arg to field Prop of this.
type LSet struct {
	Prop, Arg int
}

// PGet reads field Prop of Target.
type PGet struct {
	Target, Prop, Dest int
}

// PSet writes Arg to field Prop of Target.
type PSet struct {
	Target, Prop, Arg int
}

// PRef stores a reference to field Prop of Target.
type PRef struct {
	Target, Prop, Dest int
}

// ---------------------------------------------------------------------------
// Indexed access
// ---------------------------------------------------------------------------

// IGet reads Target[Index].
type IGet struct {
	Target, Index, Dest int
}

// ISet writes Arg to Target[Index].
type ISet struct {
	Target, Index, Arg int
}

// IRef stores a reference to Target[Index].
type IRef struct {
	Target, Index, Dest int
}

// IIP updates Target[Index] in place.
type IIP struct {
	Kind                     InPlaceOp
	Target, Index, Arg, Dest int
}

// ---------------------------------------------------------------------------
// Binding
// ---------------------------------------------------------------------------

// MBind binds the implementation of the Method signature constant for
// Target's type to Target.
type MBind struct {
	Target, Method, Dest int
}

// ParamBinding fixes the open parameter at Index to Arg.
type ParamBinding struct {
	Index, Arg int
}

// FBind binds parameters of function Fn.
type FBind struct {
	Fn       int
	Bindings []ParamBinding
	Dest     int
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

// New0 constructs an instance with constructor Ctor (a method constant).
type New0 struct {
	Ctor, Dest int
}

// New1 constructs an instance with one argument.
type New1 struct {
	Ctor, Arg, Dest int
}

// NewN constructs an instance with several arguments.
type NewN struct {
	Ctor int
	Args []int
	Dest int
}

// Construct0 delegates from a constructor to Ctor on the same struct.
type Construct0 struct{ Ctor int }

// Construct1 delegates with one argument.
type Construct1 struct {
	Ctor, Arg int
}

// ConstructN delegates with several arguments.
type ConstructN struct {
	Ctor int
	Args []int
}

// newLocal constructs a service instance inside the current context. It
// is the body of the request that boots a new service.
type newLocal struct {
	ctor *Method
	args []int
	dest int
}

// nativeCall runs a native method with the frame's parameter registers and
// returns its results. It is the body of a request for a native.
type nativeCall struct {
	method *Method
}

// ---------------------------------------------------------------------------
// Opcodes
// ---------------------------------------------------------------------------

func (Nop) Opcode() Opcode          { return OpNop }
func (Line) Opcode() Opcode         { return OpLine }
func (Enter) Opcode() Opcode        { return OpEnter }
func (Exit) Opcode() Opcode         { return OpExit }
func (Jump) Opcode() Opcode         { return OpJump }
func (JumpCond) Opcode() Opcode     { return OpJumpCond }
func (JumpCmp) Opcode() Opcode      { return OpJumpCmp }
func (JumpType) Opcode() Opcode     { return OpJumpType }
func (GuardStart) Opcode() Opcode   { return OpGuardStart }
func (GuardEnd) Opcode() Opcode     { return OpGuardEnd }
func (CatchStart) Opcode() Opcode   { return OpCatchStart }
func (CatchEnd) Opcode() Opcode     { return OpCatchEnd }
func (GuardAll) Opcode() Opcode     { return OpGuardAll }
func (FinallyStart) Opcode() Opcode { return OpFinallyStart }
func (FinallyEnd) Opcode() Opcode   { return OpFinallyEnd }
func (Throw) Opcode() Opcode        { return OpThrow }
func (Assert) Opcode() Opcode       { return OpAssert }
func (AssertM) Opcode() Opcode      { return OpAssertM }
func (Return0) Opcode() Opcode      { return OpReturn0 }
func (Return1) Opcode() Opcode      { return OpReturn1 }
func (ReturnN) Opcode() Opcode      { return OpReturnN }
func (ReturnT) Opcode() Opcode      { return OpReturnT }
func (Var) Opcode() Opcode          { return OpVar }
func (VarI) Opcode() Opcode         { return OpVarI }
func (VarN) Opcode() Opcode         { return OpVarN }
func (VarIN) Opcode() Opcode        { return OpVarIN }
func (VarD) Opcode() Opcode         { return OpVarD }
func (VarDN) Opcode() Opcode        { return OpVarDN }
func (VarT) Opcode() Opcode         { return OpVarT }
func (VarS) Opcode() Opcode         { return OpVarS }
func (Move) Opcode() Opcode         { return OpMove }
func (MoveRef) Opcode() Opcode      { return OpMoveRef }
func (MoveVar) Opcode() Opcode      { return OpMoveVar }
func (Test) Opcode() Opcode         { return OpTest }
func (Compare) Opcode() Opcode      { return OpCompare }
func (IsType) Opcode() Opcode       { return OpIsType }
func (GP) Opcode() Opcode           { return OpGP }
func (GPUnary) Opcode() Opcode      { return OpGPUnary }
func (IP) Opcode() Opcode           { return OpIP }
func (LGet) Opcode() Opcode         { return OpLGet }
func (LSet) Opcode() Opcode         { return OpLSet }
func (PGet) Opcode() Opcode         { return OpPGet }
func (PSet) Opcode() Opcode         { return OpPSet }
func (PRef) Opcode() Opcode         { return OpPRef }
func (IGet) Opcode() Opcode         { return OpIGet }
func (ISet) Opcode() Opcode         { return OpISet }
func (IRef) Opcode() Opcode         { return OpIRef }
func (IIP) Opcode() Opcode          { return OpIIP }
func (MBind) Opcode() Opcode        { return OpMBind }
func (FBind) Opcode() Opcode        { return OpFBind }
func (New0) Opcode() Opcode         { return OpNew0 }
func (New1) Opcode() Opcode         { return OpNew1 }
func (NewN) Opcode() Opcode         { return OpNewN }
func (Construct0) Opcode() Opcode   { return OpConstruct0 }
func (Construct1) Opcode() Opcode   { return OpConstruct1 }
func (ConstructN) Opcode() Opcode   { return OpConstructN }
func (newLocal) Opcode() Opcode     { return opNewLocal }
func (nativeCall) Opcode() Opcode   { return opNativeCall }

// ---------------------------------------------------------------------------
// Call and invoke families
// ---------------------------------------------------------------------------

// callInstruction is implemented by the sixteen Call forms.
type callInstruction interface {
	Instruction
	callOperands() (fn int, args argList, ret returnDest)
}

// invokeInstruction is implemented by the sixteen Invoke forms.
type invokeInstruction interface {
	Instruction
	invokeOperands() (target, method int, args argList, ret returnDest)
}

type argKind uint8

const (
	argNone  argKind = iota
	argOne           // a single operand
	argRegs          // one operand per argument
	argTuple         // one operand holding a tuple of arguments
)

// argList describes where a call's arguments come from. Single operand
// forms keep the operand in one.
type argList struct {
	kind argKind
	one  int
	regs []int
}

func oneArg(a int) argList         { return argList{kind: argOne, one: a} }
func tupleArg(a int) argList       { return argList{kind: argTuple, one: a} }
func regArgs(a []int) argList      { return argList{kind: argRegs, regs: a} }
func multi(dests []int) returnDest { return returnDest{kind: retMulti, regs: dests} }

// Call00 calls a function with no arguments and no result.
type Call00 struct {
	Fn int
}

// Call01 calls a function with no arguments and one result.
type Call01 struct {
	Fn, Dest int
}

// Call0N calls a function with no arguments and N results.
type Call0N struct {
	Fn    int
	Dests []int
}

// Call0T calls a function with no arguments and results packed in a tuple.
type Call0T struct {
	Fn, Dest int
}

// Call10 calls a function with one argument and no result.
type Call10 struct {
	Fn, Arg int
}

// Call11 calls a function with one argument and one result.
type Call11 struct {
	Fn, Arg, Dest int
}

// Call1N calls a function with one argument and N results.
type Call1N struct {
	Fn, Arg int
	Dests   []int
}

// Call1T calls a function with one argument and results packed in a tuple.
type Call1T struct {
	Fn, Arg, Dest int
}

// CallN0 calls a function with N arguments and no result.
type CallN0 struct {
	Fn   int
	Args []int
}

// CallN1 calls a function with N arguments and one result.
type CallN1 struct {
	Fn, Dest int
	Args     []int
}

// CallNN calls a function with N arguments and N results.
type CallNN struct {
	Fn    int
	Args  []int
	Dests []int
}

// CallNT calls a function with N arguments and results packed in a tuple.
type CallNT struct {
	Fn, Dest int
	Args     []int
}

// CallT0 calls a function with arguments packed in a tuple and no result.
type CallT0 struct {
	Fn, Arg int
}

// CallT1 calls a function with arguments packed in a tuple and one result.
type CallT1 struct {
	Fn, Arg, Dest int
}

// CallTN calls a function with arguments packed in a tuple and N results.
type CallTN struct {
	Fn, Arg int
	Dests   []int
}

// CallTT calls a function with arguments packed in a tuple and results packed in a tuple.
type CallTT struct {
	Fn, Arg, Dest int
}

func (Call00) Opcode() Opcode { return OpCall00 }
func (Call01) Opcode() Opcode { return OpCall01 }
func (Call0N) Opcode() Opcode { return OpCall0N }
func (Call0T) Opcode() Opcode { return OpCall0T }
func (Call10) Opcode() Opcode { return OpCall10 }
func (Call11) Opcode() Opcode { return OpCall11 }
func (Call1N) Opcode() Opcode { return OpCall1N }
func (Call1T) Opcode() Opcode { return OpCall1T }
func (CallN0) Opcode() Opcode { return OpCallN0 }
func (CallN1) Opcode() Opcode { return OpCallN1 }
func (CallNN) Opcode() Opcode { return OpCallNN }
func (CallNT) Opcode() Opcode { return OpCallNT }
func (CallT0) Opcode() Opcode { return OpCallT0 }
func (CallT1) Opcode() Opcode { return OpCallT1 }
func (CallTN) Opcode() Opcode { return OpCallTN }
func (CallTT) Opcode() Opcode { return OpCallTT }

func (in Call00) callOperands() (int, argList, returnDest) {
	return in.Fn, argList{}, returnDest{}
}

func (in Call01) callOperands() (int, argList, returnDest) {
	return in.Fn, argList{}, single(in.Dest)
}

func (in Call0N) callOperands() (int, argList, returnDest) {
	return in.Fn, argList{}, multi(in.Dests)
}

func (in Call0T) callOperands() (int, argList, returnDest) {
	return in.Fn, argList{}, packed(in.Dest)
}

func (in Call10) callOperands() (int, argList, returnDest) {
	return in.Fn, oneArg(in.Arg), returnDest{}
}

func (in Call11) callOperands() (int, argList, returnDest) {
	return in.Fn, oneArg(in.Arg), single(in.Dest)
}

func (in Call1N) callOperands() (int, argList, returnDest) {
	return in.Fn, oneArg(in.Arg), multi(in.Dests)
}

func (in Call1T) callOperands() (int, argList, returnDest) {
	return in.Fn, oneArg(in.Arg), packed(in.Dest)
}

func (in CallN0) callOperands() (int, argList, returnDest) {
	return in.Fn, regArgs(in.Args), returnDest{}
}

func (in CallN1) callOperands() (int, argList, returnDest) {
	return in.Fn, regArgs(in.Args), single(in.Dest)
}

func (in CallNN) callOperands() (int, argList, returnDest) {
	return in.Fn, regArgs(in.Args), multi(in.Dests)
}

func (in CallNT) callOperands() (int, argList, returnDest) {
	return in.Fn, regArgs(in.Args), packed(in.Dest)
}

func (in CallT0) callOperands() (int, argList, returnDest) {
	return in.Fn, tupleArg(in.Arg), returnDest{}
}

func (in CallT1) callOperands() (int, argList, returnDest) {
	return in.Fn, tupleArg(in.Arg), single(in.Dest)
}

func (in CallTN) callOperands() (int, argList, returnDest) {
	return in.Fn, tupleArg(in.Arg), multi(in.Dests)
}

func (in CallTT) callOperands() (int, argList, returnDest) {
	return in.Fn, tupleArg(in.Arg), packed(in.Dest)
}

// Invoke00 invokes a method virtually with no arguments and no result.
type Invoke00 struct {
	Target, Method int
}

// Invoke01 invokes a method virtually with no arguments and one result.
type Invoke01 struct {
	Target, Method, Dest int
}

// Invoke0N invokes a method virtually with no arguments and N results.
type Invoke0N struct {
	Target, Method int
	Dests          []int
}

// Invoke0T invokes a method virtually with no arguments and results packed in a tuple.
type Invoke0T struct {
	Target, Method, Dest int
}

// Invoke10 invokes a method virtually with one argument and no result.
type Invoke10 struct {
	Target, Method, Arg int
}

// Invoke11 invokes a method virtually with one argument and one result.
type Invoke11 struct {
	Target, Method, Arg, Dest int
}

// Invoke1N invokes a method virtually with one argument and N results.
type Invoke1N struct {
	Target, Method, Arg int
	Dests               []int
}

// Invoke1T invokes a method virtually with one argument and results packed in a tuple.
type Invoke1T struct {
	Target, Method, Arg, Dest int
}

// InvokeN0 invokes a method virtually with N arguments and no result.
type InvokeN0 struct {
	Target, Method int
	Args           []int
}

// InvokeN1 invokes a method virtually with N arguments and one result.
type InvokeN1 struct {
	Target, Method, Dest int
	Args                 []int
}

// InvokeNN invokes a method virtually with N arguments and N results.
type InvokeNN struct {
	Target, Method int
	Args           []int
	Dests          []int
}

// InvokeNT invokes a method virtually with N arguments and results packed in a tuple.
type InvokeNT struct {
	Target, Method, Dest int
	Args                 []int
}

// InvokeT0 invokes a method virtually with arguments packed in a tuple and no result.
type InvokeT0 struct {
	Target, Method, Arg int
}

// InvokeT1 invokes a method virtually with arguments packed in a tuple and one result.
type InvokeT1 struct {
	Target, Method, Arg, Dest int
}

// InvokeTN invokes a method virtually with arguments packed in a tuple and N results.
type InvokeTN struct {
	Target, Method, Arg int
	Dests               []int
}

// InvokeTT invokes a method virtually with arguments packed in a tuple and results packed in a tuple.
type InvokeTT struct {
	Target, Method, Arg, Dest int
}

func (Invoke00) Opcode() Opcode { return OpInvoke00 }
func (Invoke01) Opcode() Opcode { return OpInvoke01 }
func (Invoke0N) Opcode() Opcode { return OpInvoke0N }
func (Invoke0T) Opcode() Opcode { return OpInvoke0T }
func (Invoke10) Opcode() Opcode { return OpInvoke10 }
func (Invoke11) Opcode() Opcode { return OpInvoke11 }
func (Invoke1N) Opcode() Opcode { return OpInvoke1N }
func (Invoke1T) Opcode() Opcode { return OpInvoke1T }
func (InvokeN0) Opcode() Opcode { return OpInvokeN0 }
func (InvokeN1) Opcode() Opcode { return OpInvokeN1 }
func (InvokeNN) Opcode() Opcode { return OpInvokeNN }
func (InvokeNT) Opcode() Opcode { return OpInvokeNT }
func (InvokeT0) Opcode() Opcode { return OpInvokeT0 }
func (InvokeT1) Opcode() Opcode { return OpInvokeT1 }
func (InvokeTN) Opcode() Opcode { return OpInvokeTN }
func (InvokeTT) Opcode() Opcode { return OpInvokeTT }

func (in Invoke00) invokeOperands() (int, int, argList, returnDest) {
	return in.Target, in.Method, argList{}, returnDest{}
}

func (in Invoke01) invokeOperands() (int, int, argList, returnDest) {
	return in.Target, in.Method, argList{}, single(in.Dest)
}

func (in Invoke0N) invokeOperands() (int, int, argList, returnDest) {
	return in.Target, in.Method, argList{}, multi(in.Dests)
}

func (in Invoke0T) invokeOperands() (int, int, argList, returnDest) {
	return in.Target, in.Method, argList{}, packed(in.Dest)
}

func (in Invoke10) invokeOperands() (int, int, argList, returnDest) {
	return in.Target, in.Method, oneArg(in.Arg), returnDest{}
}

func (in Invoke11) invokeOperands() (int, int, argList, returnDest) {
	return in.Target, in.Method, oneArg(in.Arg), single(in.Dest)
}

func (in Invoke1N) invokeOperands() (int, int, argList, returnDest) {
	return in.Target, in.Method, oneArg(in.Arg), multi(in.Dests)
}

func (in Invoke1T) invokeOperands() (int, int, argList, returnDest) {
	return in.Target, in.Method, oneArg(in.Arg), packed(in.Dest)
}

func (in InvokeN0) invokeOperands() (int, int, argList, returnDest) {
	return in.Target, in.Method, regArgs(in.Args), returnDest{}
}

func (in InvokeN1) invokeOperands() (int, int, argList, returnDest) {
	return in.Target, in.Method, regArgs(in.Args), single(in.Dest)
}

func (in InvokeNN) invokeOperands() (int, int, argList, returnDest) {
	return in.Target, in.Method, regArgs(in.Args), multi(in.Dests)
}

func (in InvokeNT) invokeOperands() (int, int, argList, returnDest) {
	return in.Target, in.Method, regArgs(in.Args), packed(in.Dest)
}

func (in InvokeT0) invokeOperands() (int, int, argList, returnDest) {
	return in.Target, in.Method, tupleArg(in.Arg), returnDest{}
}

func (in InvokeT1) invokeOperands() (int, int, argList, returnDest) {
	return in.Target, in.Method, tupleArg(in.Arg), single(in.Dest)
}

func (in InvokeTN) invokeOperands() (int, int, argList, returnDest) {
	return in.Target, in.Method, tupleArg(in.Arg), multi(in.Dests)
}

func (in InvokeTT) invokeOperands() (int, int, argList, returnDest) {
	return in.Target, in.Method, tupleArg(in.Arg), packed(in.Dest)
}

// ---------------------------------------------------------------------------
// Markers
// ---------------------------------------------------------------------------

func (Nop) isInstruction()          {}
func (Line) isInstruction()         {}
func (Enter) isInstruction()        {}
func (Exit) isInstruction()         {}
func (Jump) isInstruction()         {}
func (JumpCond) isInstruction()     {}
func (JumpCmp) isInstruction()      {}
func (JumpType) isInstruction()     {}
func (GuardStart) isInstruction()   {}
func (GuardEnd) isInstruction()     {}
func (CatchStart) isInstruction()   {}
func (CatchEnd) isInstruction()     {}
func (GuardAll) isInstruction()     {}
func (FinallyStart) isInstruction() {}
func (FinallyEnd) isInstruction()   {}
func (Throw) isInstruction()        {}
func (Assert) isInstruction()       {}
func (AssertM) isInstruction()      {}
func (Return0) isInstruction()      {}
func (Return1) isInstruction()      {}
func (ReturnN) isInstruction()      {}
func (ReturnT) isInstruction()      {}
func (Var) isInstruction()          {}
func (VarI) isInstruction()         {}
func (VarN) isInstruction()         {}
func (VarIN) isInstruction()        {}
func (VarD) isInstruction()         {}
func (VarDN) isInstruction()        {}
func (VarT) isInstruction()         {}
func (VarS) isInstruction()         {}
func (Move) isInstruction()         {}
func (MoveRef) isInstruction()      {}
func (MoveVar) isInstruction()      {}
func (Test) isInstruction()         {}
func (Compare) isInstruction()      {}
func (IsType) isInstruction()       {}
func (GP) isInstruction()           {}
func (GPUnary) isInstruction()      {}
func (IP) isInstruction()           {}
func (LGet) isInstruction()         {}
func (LSet) isInstruction()         {}
func (PGet) isInstruction()         {}
func (PSet) isInstruction()         {}
func (PRef) isInstruction()         {}
func (IGet) isInstruction()         {}
func (ISet) isInstruction()         {}
func (IRef) isInstruction()         {}
func (IIP) isInstruction()          {}
func (MBind) isInstruction()        {}
func (FBind) isInstruction()        {}
func (New0) isInstruction()         {}
func (New1) isInstruction()         {}
func (NewN) isInstruction()         {}
func (Construct0) isInstruction()   {}
func (Construct1) isInstruction()   {}
func (ConstructN) isInstruction()   {}
func (newLocal) isInstruction()     {}
func (nativeCall) isInstruction()   {}
func (Call00) isInstruction()       {}
func (Call01) isInstruction()       {}
func (Call0N) isInstruction()       {}
func (Call0T) isInstruction()       {}
func (Call10) isInstruction()       {}
func (Call11) isInstruction()       {}
func (Call1N) isInstruction()       {}
func (Call1T) isInstruction()       {}
func (CallN0) isInstruction()       {}
func (CallN1) isInstruction()       {}
func (CallNN) isInstruction()       {}
func (CallNT) isInstruction()       {}
func (CallT0) isInstruction()       {}
func (CallT1) isInstruction()       {}
func (CallTN) isInstruction()       {}
func (CallTT) isInstruction()       {}
func (Invoke00) isInstruction()     {}
func (Invoke01) isInstruction()     {}
func (Invoke0N) isInstruction()     {}
func (Invoke0T) isInstruction()     {}
func (Invoke10) isInstruction()     {}
func (Invoke11) isInstruction()     {}
func (Invoke1N) isInstruction()     {}
func (Invoke1T) isInstruction()     {}
func (InvokeN0) isInstruction()     {}
func (InvokeN1) isInstruction()     {}
func (InvokeNN) isInstruction()     {}
func (InvokeNT) isInstruction()     {}
func (InvokeT0) isInstruction()     {}
func (InvokeT1) isInstruction()     {}
func (InvokeTN) isInstruction()     {}
func (InvokeTT) isInstruction()     {}
