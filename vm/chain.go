package vm

// ---------------------------------------------------------------------------
// ResolutionChain: ordered implementations of one signature
// ---------------------------------------------------------------------------

// ResolutionChain lists the implementations of a signature across an
// inheritance lattice, most derived first. A frame executing chain
// entry d dispatches super calls to entry d+1. Chains are immutable.
type ResolutionChain struct {
	sig     Signature
	methods []*Method
}

func newResolutionChain(sig Signature, methods []*Method) *ResolutionChain {
	return &ResolutionChain{sig: sig, methods: methods}
}

// Signature returns the signature the chain resolves.
func (c *ResolutionChain) Signature() Signature { return c.sig }

// Depth returns the number of implementations.
func (c *ResolutionChain) Depth() int { return len(c.methods) }

// IsEmpty reports whether no implementation exists.
func (c *ResolutionChain) IsEmpty() bool { return len(c.methods) == 0 }

// Method returns the implementation at depth d, or nil.
func (c *ResolutionChain) Method(d int) *Method {
	if d < 0 || d >= len(c.methods) {
		return nil
	}
	return c.methods[d]
}

// Top returns the most derived implementation, or nil.
func (c *ResolutionChain) Top() *Method {
	return c.Method(0)
}

// Super returns the implementation above depth d. The second result is
// false when d is the last entry.
func (c *ResolutionChain) Super(d int) (*Method, bool) {
	m := c.Method(d + 1)
	return m, m != nil
}
