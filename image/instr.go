package image

import (
	"fmt"
	"reflect"

	"github.com/xtclang/xvm-sub023/vm"
)

// prototypes lists one zero value of every instruction an image may carry.
var prototypes = []vm.Instruction{
	vm.Nop{}, vm.Line{}, vm.Enter{}, vm.Exit{}, vm.Jump{}, vm.JumpCond{}, vm.JumpCmp{}, vm.JumpType{},
	vm.GuardStart{}, vm.GuardEnd{}, vm.CatchStart{}, vm.CatchEnd{}, vm.GuardAll{},
	vm.FinallyStart{}, vm.FinallyEnd{}, vm.Throw{}, vm.Assert{}, vm.AssertM{},
	vm.Return0{}, vm.Return1{}, vm.ReturnN{}, vm.ReturnT{},
	vm.Var{}, vm.VarI{}, vm.VarN{}, vm.VarIN{}, vm.VarD{}, vm.VarDN{}, vm.VarT{}, vm.VarS{},
	vm.Move{}, vm.MoveRef{}, vm.MoveVar{},
	vm.Test{}, vm.Compare{}, vm.IsType{}, vm.GP{}, vm.GPUnary{}, vm.IP{},
	vm.LGet{}, vm.LSet{}, vm.PGet{}, vm.PSet{}, vm.PRef{},
	vm.IGet{}, vm.ISet{}, vm.IRef{}, vm.IIP{},
	vm.MBind{}, vm.FBind{},
	vm.New0{}, vm.New1{}, vm.NewN{}, vm.Construct0{}, vm.Construct1{}, vm.ConstructN{},
	vm.Call00{}, vm.Call01{}, vm.Call0N{}, vm.Call0T{}, vm.Call10{}, vm.Call11{}, vm.Call1N{}, vm.Call1T{},
	vm.CallN0{}, vm.CallN1{}, vm.CallNN{}, vm.CallNT{}, vm.CallT0{}, vm.CallT1{}, vm.CallTN{}, vm.CallTT{},
	vm.Invoke00{}, vm.Invoke01{}, vm.Invoke0N{}, vm.Invoke0T{}, vm.Invoke10{}, vm.Invoke11{}, vm.Invoke1N{}, vm.Invoke1T{},
	vm.InvokeN0{}, vm.InvokeN1{}, vm.InvokeNN{}, vm.InvokeNT{}, vm.InvokeT0{}, vm.InvokeT1{}, vm.InvokeTN{}, vm.InvokeTT{},
}

var instrTypes = func() map[vm.Opcode]reflect.Type {
	m := make(map[vm.Opcode]reflect.Type, len(prototypes))
	for _, p := range prototypes {
		m[p.Opcode()] = reflect.TypeOf(p)
	}
	return m
}()

var (
	catchesType  = reflect.TypeOf([]vm.Catch(nil))
	bindingsType = reflect.TypeOf([]vm.ParamBinding(nil))
	intsType     = reflect.TypeOf([]int(nil))
)

// encodeInstr flattens an instruction into its image form.
func encodeInstr(in vm.Instruction) (Instr, error) {
	op := in.Opcode()
	if _, ok := instrTypes[op]; !ok {
		return Instr{}, fmt.Errorf("instruction %s cannot be stored in an image", op)
	}
	out := Instr{Op: op.Name()}
	v := reflect.ValueOf(in)
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		switch {
		case f.Kind() == reflect.Int:
			out.Operands = append(out.Operands, int(f.Int()))
		case f.Kind() == reflect.Uint8:
			out.Operands = append(out.Operands, int(f.Uint()))
		case f.Type() == intsType:
			out.Lists = append(out.Lists, append([]int{}, f.Interface().([]int)...))
		case f.Type() == catchesType:
			for _, c := range f.Interface().([]vm.Catch) {
				out.Catches = append(out.Catches, Catch{Type: c.Type, Name: c.Name, Rel: c.Rel})
			}
		case f.Type() == bindingsType:
			for _, b := range f.Interface().([]vm.ParamBinding) {
				out.Bindings = append(out.Bindings, [2]int{b.Index, b.Arg})
			}
		default:
			return Instr{}, fmt.Errorf("%s: unsupported operand type %s", op, f.Type())
		}
	}
	return out, nil
}

// decodeInstr rebuilds an instruction, checking that every operand is
// consumed.
func decodeInstr(in Instr) (vm.Instruction, error) {
	op, ok := vm.OpcodeByName(in.Op)
	if !ok {
		return nil, fmt.Errorf("unknown opcode %q", in.Op)
	}
	t, ok := instrTypes[op]
	if !ok {
		return nil, fmt.Errorf("instruction %s cannot be loaded from an image", in.Op)
	}

	v := reflect.New(t).Elem()
	operands, lists := in.Operands, in.Lists
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		switch {
		case f.Kind() == reflect.Int || f.Kind() == reflect.Uint8:
			if len(operands) == 0 {
				return nil, fmt.Errorf("%s: missing operand for %s", in.Op, t.Field(i).Name)
			}
			if f.Kind() == reflect.Int {
				f.SetInt(int64(operands[0]))
			} else {
				if operands[0] < 0 || operands[0] > 0xFF {
					return nil, fmt.Errorf("%s: %s %d out of range", in.Op, t.Field(i).Name, operands[0])
				}
				f.SetUint(uint64(operands[0]))
			}
			operands = operands[1:]
		case f.Type() == intsType:
			if len(lists) == 0 {
				return nil, fmt.Errorf("%s: missing operand list for %s", in.Op, t.Field(i).Name)
			}
			f.Set(reflect.ValueOf(append([]int{}, lists[0]...)))
			lists = lists[1:]
		case f.Type() == catchesType:
			catches := make([]vm.Catch, len(in.Catches))
			for j, c := range in.Catches {
				catches[j] = vm.Catch{Type: c.Type, Name: c.Name, Rel: c.Rel}
			}
			f.Set(reflect.ValueOf(catches))
		case f.Type() == bindingsType:
			bindings := make([]vm.ParamBinding, len(in.Bindings))
			for j, b := range in.Bindings {
				bindings[j] = vm.ParamBinding{Index: b[0], Arg: b[1]}
			}
			f.Set(reflect.ValueOf(bindings))
		}
	}
	if len(operands) > 0 || len(lists) > 0 {
		return nil, fmt.Errorf("%s: %d extra operands, %d extra lists", in.Op, len(operands), len(lists))
	}
	return v.Interface().(vm.Instruction), nil
}
