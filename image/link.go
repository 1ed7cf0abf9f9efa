package image

import (
	"fmt"
	"sort"

	"github.com/xtclang/xvm-sub023/vm"
)

var formatByName = func() map[string]vm.Format {
	m := make(map[string]vm.Format)
	for f := vm.FormatClass; f <= vm.FormatNative; f++ {
		m[f.String()] = f
	}
	return m
}()

// Link checks m against the engine version and builds the program it
// describes. Supertypes and mixins are looked up in m first, then in r.
func Link(m *Module, r *vm.Registry) (*vm.Program, error) {
	if err := CheckEngine(m); err != nil {
		return nil, err
	}

	pool := vm.NewConstantPool()
	for i := range m.Constants {
		c, err := m.Constants[i].toConstant()
		if err != nil {
			return nil, fmt.Errorf("%s: constant %d: %w", m.Name, i, err)
		}
		pool.Add(c)
	}

	bindings := make(map[string]*vm.TypeBinding, len(m.Types))
	types := make([]*vm.TypeBinding, 0, len(m.Types))
	for _, t := range m.Types {
		format, ok := formatByName[t.Format]
		if !ok {
			return nil, fmt.Errorf("%s: type %s: unknown format %q", m.Name, t.Name, t.Format)
		}
		if _, dup := bindings[t.Name]; dup {
			return nil, fmt.Errorf("%s: type %s declared twice", m.Name, t.Name)
		}
		fields := make([]vm.Field, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = vm.Field{Name: f.Name, Nullable: f.Nullable}
			if f.Default != nil {
				v, err := f.Default.literal()
				if err != nil {
					return nil, fmt.Errorf("%s: field %s.%s: %w", m.Name, t.Name, f.Name, err)
				}
				fields[i].Default = v
			}
		}
		tb := vm.NewTypeBinding(t.Name, format, nil, fields...)
		bindings[t.Name] = tb
		types = append(types, tb)
	}

	resolve := func(name string) (*vm.TypeBinding, error) {
		if tb, ok := bindings[name]; ok {
			return tb, nil
		}
		return r.Lookup(name)
	}
	for i, t := range m.Types {
		tb := types[i]
		super := t.Super
		if super == "" {
			super = vm.TypeObject
			if tb.Format == vm.FormatService {
				super = vm.TypeService
			}
		}
		var err error
		if tb.Super, err = resolve(super); err != nil {
			return nil, fmt.Errorf("%s: super of %s: %w", m.Name, t.Name, err)
		}
		for _, name := range t.Mixins {
			mixin, err := resolve(name)
			if err != nil {
				return nil, fmt.Errorf("%s: mixin of %s: %w", m.Name, t.Name, err)
			}
			tb.Mixins = append(tb.Mixins, mixin)
		}
		for j := range t.Methods {
			method, err := linkMethod(&t.Methods[j])
			if err != nil {
				return nil, fmt.Errorf("%s: %s.%s: %w", m.Name, t.Name, t.Methods[j].Name, err)
			}
			tb.AddMethod(method)
		}
	}

	log.Infof("linked %s: %d types, %d constants", m.Name, len(types), pool.Len())
	return &vm.Program{Pool: pool, Types: types}, nil
}

func linkMethod(d *Method) (*vm.Method, error) {
	m := &vm.Method{
		Name:          d.Name,
		Params:        d.Params,
		Returns:       d.Returns,
		Registers:     d.Registers,
		ParamNames:    d.ParamNames,
		DynamicParams: d.Dynamic,
	}
	switch d.Kind {
	case MethodVirtual:
	case MethodFunction:
		m.Static = true
	case MethodConstructor:
		m.Constructor = true
	case MethodNative:
		m.Native = true
	case MethodAbstract:
		m.Abstract = true
	default:
		return nil, fmt.Errorf("unknown method kind %q", d.Kind)
	}

	for _, c := range d.Defaults {
		if c == nil {
			m.Defaults = append(m.Defaults, nil)
			continue
		}
		v, err := c.literal()
		if err != nil {
			return nil, fmt.Errorf("default: %w", err)
		}
		m.Defaults = append(m.Defaults, v)
	}

	m.Code = make([]vm.Instruction, len(d.Code))
	for pc, in := range d.Code {
		decoded, err := decodeInstr(in)
		if err != nil {
			return nil, fmt.Errorf("pc %d: %w", pc, err)
		}
		m.Code[pc] = decoded
	}
	for _, l := range d.Lines {
		m.SourceMap = append(m.SourceMap, vm.SourceLoc{PC: l[0], Line: l[1]})
	}

	if d.Finalizer != nil {
		if !m.Constructor {
			return nil, fmt.Errorf("finalizer on a non-constructor")
		}
		fin, err := linkMethod(d.Finalizer)
		if err != nil {
			return nil, fmt.Errorf("finalizer: %w", err)
		}
		m.Finalizer = fin
	}
	return m, nil
}

// ---------------------------------------------------------------------------
// Program -> Module
// ---------------------------------------------------------------------------

// FromProgram describes p as a module. Methods are ordered by signature so
// the encoding of a program is stable.
func FromProgram(name string, p *vm.Program) (*Module, error) {
	m := &Module{Name: name, Engine: "^" + vm.Version}
	if p.Pool != nil {
		for i, c := range p.Pool.Constants() {
			mc, err := fromConstant(c)
			if err != nil {
				return nil, fmt.Errorf("constant %d: %w", i, err)
			}
			m.Constants = append(m.Constants, mc)
		}
	}

	for _, tb := range p.Types {
		t := Type{Name: tb.Name, Format: tb.Format.String()}
		if tb.Super != nil {
			t.Super = tb.Super.Name
		}
		for _, mixin := range tb.Mixins {
			t.Mixins = append(t.Mixins, mixin.Name)
		}
		for _, f := range tb.Fields {
			def, err := fromLiteral(f.Default)
			if err != nil {
				return nil, fmt.Errorf("field %s.%s: %w", tb.Name, f.Name, err)
			}
			t.Fields = append(t.Fields, Field{Name: f.Name, Default: def, Nullable: f.Nullable})
		}

		methods := tb.Methods()
		sort.Slice(methods, func(i, j int) bool {
			return methods[i].Signature().String() < methods[j].Signature().String()
		})
		for _, method := range methods {
			d, err := describeMethod(method)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", method, err)
			}
			t.Methods = append(t.Methods, *d)
		}
		m.Types = append(m.Types, t)
	}
	return m, nil
}

func describeMethod(m *vm.Method) (*Method, error) {
	d := &Method{
		Name:       m.Name,
		Kind:       MethodVirtual,
		Params:     m.Params,
		Returns:    m.Returns,
		Registers:  m.Registers,
		ParamNames: m.ParamNames,
		Dynamic:    m.DynamicParams,
	}
	switch {
	case m.Constructor:
		d.Kind = MethodConstructor
	case m.Native:
		d.Kind = MethodNative
	case m.Abstract:
		d.Kind = MethodAbstract
	case m.Static:
		d.Kind = MethodFunction
	}

	for _, v := range m.Defaults {
		c, err := fromLiteral(v)
		if err != nil {
			return nil, fmt.Errorf("default: %w", err)
		}
		d.Defaults = append(d.Defaults, c)
	}
	for pc, in := range m.Code {
		encoded, err := encodeInstr(in)
		if err != nil {
			return nil, fmt.Errorf("pc %d: %w", pc, err)
		}
		d.Code = append(d.Code, encoded)
	}
	for _, loc := range m.SourceMap {
		d.Lines = append(d.Lines, [2]int{loc.PC, loc.Line})
	}

	if m.Finalizer != nil {
		fin, err := describeMethod(m.Finalizer)
		if err != nil {
			return nil, fmt.Errorf("finalizer: %w", err)
		}
		d.Finalizer = fin
	}
	return d, nil
}
