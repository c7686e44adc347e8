// Package il provides the in-memory structural model that the weaver
// mutates: modules, types, methods, fields, and method bodies made of
// identity-stable instruction nodes.
//
// # Identity Addressing
//
// Branch operands and exception-region boundaries reference instructions by
// *Instruction pointer, never by position. Positions and byte offsets are
// derived values (see [Body.ComputeOffsets]); inserting instructions never
// invalidates an existing reference. This is the central invariant the
// editing layer relies on.
//
// # Key Types
//
//   - [Module]: a loaded module with its types and module-level attributes
//   - [TypeDef], [MethodDef], [FieldDef]: definitions owned by the module
//   - [TypeRef], [MethodRef], [FieldRef]: value-type references usable as
//     instruction operands, comparable across modules
//   - [Body]: a method body: instructions, locals, exception regions
//   - [Instruction]: one opcode plus typed operand; identity matters
//   - [ExceptionRegion]: a protected range and its handler, both bounded by
//     instruction references (half-open, nil end means end of body)
//
// Unlike compiled-code containers that freeze after construction, every type
// here is mutable: the whole point of the model is in-place rewriting. The
// model is not safe for concurrent mutation of one method body; distinct
// bodies are independent.
package il
