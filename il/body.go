package il

import (
	"fmt"

	"github.com/cloudcmds/chronoweave/op"
)

// Instruction is one opcode plus its typed operand. Instructions are
// heap-allocated and addressed by identity: branch operands and exception
// region boundaries hold *Instruction pointers, so inserting instructions
// into a body never invalidates an existing reference.
//
// The operand is one of: nil, int64, float64, string, *LocalVar, FieldRef,
// MethodRef, TypeRef, or *Instruction (branch target). For ldarg/starg the
// operand is the int64 argument slot number.
type Instruction struct {
	Opcode  op.Code
	Operand any
}

// NewInst creates an instruction with the given opcode and operand.
func NewInst(code op.Code, operand any) *Instruction {
	return &Instruction{Opcode: code, Operand: operand}
}

// Target returns the branch target, or nil if the instruction is not a
// branch or has no target set.
func (i *Instruction) Target() *Instruction {
	if t, ok := i.Operand.(*Instruction); ok {
		return t
	}
	return nil
}

// Clone returns a copy of the instruction with the same opcode and operand.
// The operand is shared, not deep-copied: for a branch the clone targets the
// same instruction.
func (i *Instruction) Clone() *Instruction {
	return &Instruction{Opcode: i.Opcode, Operand: i.Operand}
}

// String returns the mnemonic with a short operand rendering.
func (i *Instruction) String() string {
	switch operand := i.Operand.(type) {
	case nil:
		return i.Opcode.String()
	case *Instruction:
		return fmt.Sprintf("%s -> %s", i.Opcode, operand.Opcode)
	case *LocalVar:
		return fmt.Sprintf("%s V_%d", i.Opcode, operand.Index)
	case FieldRef:
		return fmt.Sprintf("%s %s", i.Opcode, operand.FullName())
	case MethodRef:
		return fmt.Sprintf("%s %s", i.Opcode, operand.FullName())
	case TypeRef:
		return fmt.Sprintf("%s %s", i.Opcode, operand.FullName())
	case string:
		return fmt.Sprintf("%s %q", i.Opcode, operand)
	default:
		return fmt.Sprintf("%s %v", i.Opcode, operand)
	}
}

// RegionKind describes the kind of an exception handler region.
type RegionKind int

const (
	RegionCatch RegionKind = iota
	RegionFilter
	RegionFinally
	RegionFault
)

// String returns the lowercase name of the region kind.
func (k RegionKind) String() string {
	switch k {
	case RegionCatch:
		return "catch"
	case RegionFilter:
		return "filter"
	case RegionFinally:
		return "finally"
	case RegionFault:
		return "fault"
	default:
		return "unknown"
	}
}

// ExceptionRegion describes a protected instruction range and its handler.
// Boundaries reference instructions by identity and are half-open: TryEnd
// and HandlerEnd point at the first instruction after the range, with nil
// meaning the range extends to the end of the body.
type ExceptionRegion struct {
	Kind         RegionKind
	CatchType    TypeRef // set for catch regions
	TryStart     *Instruction
	TryEnd       *Instruction
	HandlerStart *Instruction
	HandlerEnd   *Instruction
}

// Body owns a method's instruction sequence, local variable slots, and
// exception handler regions.
type Body struct {
	Instructions []*Instruction
	Locals       []*LocalVar
	Regions      []*ExceptionRegion

	// InitLocals requires the runtime to zero-initialize all local slots
	// before the first instruction executes. Set by the editor once new
	// locals have been introduced.
	InitLocals bool

	// MaxStack is informational metadata carried through from the host.
	MaxStack int
}

// NewBody creates an empty method body.
func NewBody() *Body {
	return &Body{}
}

// IndexOf returns the position of the instruction, or -1 if it is not part
// of this body. Positions are derived values only: they shift under edits
// while identity does not.
func (b *Body) IndexOf(instr *Instruction) int {
	for i, cur := range b.Instructions {
		if cur == instr {
			return i
		}
	}
	return -1
}

// Append adds instructions at the end of the body.
func (b *Body) Append(seq ...*Instruction) {
	b.Instructions = append(b.Instructions, seq...)
}

// InsertAt inserts a contiguous run of instructions at the given position.
// Existing branch targets and region boundaries are unaffected because they
// reference instructions by identity.
func (b *Body) InsertAt(index int, seq ...*Instruction) {
	if index < 0 || index > len(b.Instructions) {
		panic(fmt.Sprintf("il: insert position %d out of range [0,%d]", index, len(b.Instructions)))
	}
	if len(seq) == 0 {
		return
	}
	b.Instructions = append(b.Instructions[:index],
		append(append([]*Instruction{}, seq...), b.Instructions[index:]...)...)
}

// InsertBefore inserts a contiguous run of instructions ahead of mark.
// Branches that pointed at mark still point at mark afterwards: the inserted
// run executes only when control falls through from the preceding
// instruction. Panics if mark is not part of this body; that is a
// programming error, not a runtime condition.
func (b *Body) InsertBefore(mark *Instruction, seq ...*Instruction) {
	index := b.IndexOf(mark)
	if index < 0 {
		panic("il: insert mark is not part of this body")
	}
	b.InsertAt(index, seq...)
}

// InsertAfter inserts a contiguous run of instructions immediately after
// mark. Panics if mark is not part of this body.
func (b *Body) InsertAfter(mark *Instruction, seq ...*Instruction) {
	index := b.IndexOf(mark)
	if index < 0 {
		panic("il: insert mark is not part of this body")
	}
	b.InsertAt(index+1, seq...)
}

// NewLocal declares a new local variable slot at the end of the slot list.
// Existing slots are never renumbered.
func (b *Body) NewLocal(name string, typ TypeRef) *LocalVar {
	local := &LocalVar{Index: len(b.Locals), Name: name, Type: typ}
	b.Locals = append(b.Locals, local)
	return local
}

// ComputeOffsets returns the encoded byte offset of every instruction, using
// each opcode's encoded size. Offsets are derived: they are recomputed on
// demand and never stored on the instruction.
func (b *Body) ComputeOffsets() map[*Instruction]int {
	offsets := make(map[*Instruction]int, len(b.Instructions))
	offset := 0
	for _, instr := range b.Instructions {
		offsets[instr] = offset
		offset += op.GetInfo(instr.Opcode).Size
	}
	return offsets
}

// CodeSize returns the total encoded size of the instruction stream in bytes.
func (b *Body) CodeSize() int {
	size := 0
	for _, instr := range b.Instructions {
		size += op.GetInfo(instr.Opcode).Size
	}
	return size
}

// Validate checks internal consistency: every branch target and region
// boundary must reference an instruction that is part of the body.
func (b *Body) Validate() error {
	member := make(map[*Instruction]bool, len(b.Instructions))
	for _, instr := range b.Instructions {
		member[instr] = true
	}
	for i, instr := range b.Instructions {
		if instr.Opcode.IsBranch() {
			target := instr.Target()
			if target == nil {
				return fmt.Errorf("il: branch at %d has no target", i)
			}
			if !member[target] {
				return fmt.Errorf("il: branch at %d targets an instruction outside the body", i)
			}
		}
	}
	for i, region := range b.Regions {
		for _, bound := range []*Instruction{region.TryStart, region.HandlerStart} {
			if bound == nil || !member[bound] {
				return fmt.Errorf("il: region %d has an invalid start boundary", i)
			}
		}
		for _, bound := range []*Instruction{region.TryEnd, region.HandlerEnd} {
			if bound != nil && !member[bound] {
				return fmt.Errorf("il: region %d has an end boundary outside the body", i)
			}
		}
	}
	return nil
}
