// Package vm implements the XVM execution engine.
//
// This package contains:
//   - Tagged runtime values (scalars, arrays, tuples, functions, references, objects)
//   - Type bindings and resolution chains for virtual and super dispatch
//   - Frames (activations) with scoped registers and guard stacks
//   - The instruction set and the dispatch loop
//   - The two-phase construction protocol with finalizer chains
//   - Service contexts: single-threaded actors multiplexed on a worker pool,
//     with cross-context calls marshalled through futures
package vm

// Version is the engine version images are checked against.
const Version = "1.2.0"
