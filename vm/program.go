package vm

import (
	"fmt"
)

// Program is the loader's output: user types with their methods, and the
// constant pool their code refers to. Static functions are declared on
// types like any other method.
type Program struct {
	Pool  *ConstantPool
	Types []*TypeBinding
}

// Link attaches the program's pool to r and fills in missing method pools.
func (p *Program) Link(r *Registry) {
	if p.Pool == nil {
		p.Pool = NewConstantPool()
	}
	p.Pool.registry = r
	for _, t := range p.Types {
		for _, m := range t.Methods() {
			p.linkMethod(m)
		}
	}
}

func (p *Program) linkMethod(m *Method) {
	if m.Pool == nil {
		m.Pool = p.Pool
	}
	if m.Finalizer != nil {
		if m.Finalizer.Owner == nil {
			m.Finalizer.Owner = m.Owner
		}
		p.linkMethod(m.Finalizer)
	}
}

// Load links p and defines its types.
func (v *VM) Load(p *Program) error {
	p.Link(v.registry)
	for _, t := range p.Types {
		if err := v.registry.Define(t); err != nil {
			return fmt.Errorf("loading program: %w", err)
		}
	}
	log.Infof("loaded %d types, %d constants", len(p.Types), p.Pool.Len())
	return nil
}
