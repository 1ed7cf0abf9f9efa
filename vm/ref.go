package vm

import "fmt"

// Cell is a value that stands in for a variable: the occupant of a
// dynamic-reference register. *Ref and *Future are cells.
type Cell interface {
	Value
	cell()
}

type refKind uint8

const (
	refBox      refKind = iota // a standalone variable
	refRegister                // a register of a live frame
	refElement                 // an element of an indexed container
	refField                   // a field of an object
)

// Ref is a reference cell. Register references are only valid while the
// frame is alive and the register has not been released; every access
// checks this and faults on a dangling reference.
type Ref struct {
	kind refKind

	box Value

	frame *Frame
	reg   int
	gen   uint32

	container Indexed
	index     int64

	object *Object
	field  int
}

func (*Ref) cell() {}

func (r *Ref) Kind() Kind { return KindRef }

func (r *Ref) String() string {
	switch r.kind {
	case refRegister:
		return fmt.Sprintf("&%s[r%d]", r.frame.method, r.reg)
	case refElement:
		return fmt.Sprintf("&[%d]", r.index)
	case refField:
		return fmt.Sprintf("&%s.%s", r.object.binding.Name, r.object.binding.Layout()[r.field].Name)
	}
	return "&" + describe(r.box)
}

// newBox creates a standalone reference holding v.
func newBox(v Value) *Ref { return &Ref{kind: refBox, box: v} }

// newRegisterRef references register reg of f. The register must be
// declared in a live scope.
func newRegisterRef(f *Frame, reg int) *Ref {
	if !f.alive || !f.isDeclared(reg) {
		panic(newFault(FaultDanglingRef, "reference to undeclared register r%d", reg))
	}
	return &Ref{kind: refRegister, frame: f, reg: reg, gen: f.info[reg].gen}
}

func newElementRef(c Indexed, index int64) *Ref {
	return &Ref{kind: refElement, container: c, index: index}
}

func newFieldRef(o *Object, field int) *Ref {
	return &Ref{kind: refField, object: o, field: field}
}

func (r *Ref) checkLive() {
	if r.kind != refRegister {
		return
	}
	f := r.frame
	if !f.alive || r.reg >= len(f.info) || f.info[r.reg].gen != r.gen || !f.isDeclared(r.reg) {
		panic(newFault(FaultDanglingRef, "reference to released register r%d of %s", r.reg, f.method))
	}
}

// Get reads the referent.
func (r *Ref) Get() (Value, error) {
	r.checkLive()
	switch r.kind {
	case refRegister:
		return r.frame.regs[r.reg], nil
	case refElement:
		return r.container.ElementAt(r.index)
	case refField:
		return r.object.fields[r.field], nil
	}
	return r.box, nil
}

// Set writes the referent.
func (r *Ref) Set(v Value) error {
	r.checkLive()
	switch r.kind {
	case refRegister:
		r.frame.regs[r.reg] = v
		return nil
	case refElement:
		return r.container.SetElementAt(r.index, v)
	case refField:
		if r.object.immutable {
			return ErrReadOnly
		}
		r.object.fields[r.field] = v
		return nil
	}
	r.box = v
	return nil
}
