package weaver

import (
	"github.com/cloudcmds/chronoweave/il"
	"github.com/cloudcmds/chronoweave/op"
)

// compactOffsetMin and compactOffsetMax bound the signed 8-bit relative
// offset a compact branch can encode. The offset is relative to the end of
// the branch instruction itself.
const (
	compactOffsetMin = -128
	compactOffsetMax = 127
)

// Editor performs structural edits on a method body while keeping branch
// targets and exception-region boundaries consistent.
//
// Usage is strictly phased: Normalize, then any number of edits, then
// Finalize. Editing before Normalize is a programming error and panics: with
// compact branches still present, target resolution after an insertion would
// be ambiguous.
type Editor struct {
	body        *il.Body
	normalized  bool
	addedLocals bool
}

// NewEditor wraps a method body for editing.
func NewEditor(body *il.Body) *Editor {
	return &Editor{body: body}
}

// Body returns the body under edit.
func (e *Editor) Body() *il.Body {
	return e.body
}

// Normalize converts every compact control-transfer instruction to its
// extended form. Must be called before any structural edit.
func (e *Editor) Normalize() {
	for _, instr := range e.body.Instructions {
		if instr.Opcode.IsCompact() {
			instr.Opcode = instr.Opcode.Extended()
		}
	}
	e.normalized = true
}

func (e *Editor) mustBeNormalized() {
	if !e.normalized {
		panic("weaver: edit attempted before Normalize")
	}
}

// InsertAt inserts a contiguous run of instructions at the given position.
func (e *Editor) InsertAt(index int, seq ...*il.Instruction) {
	e.mustBeNormalized()
	e.body.InsertAt(index, seq...)
}

// InsertBefore inserts a contiguous run of instructions ahead of mark.
// Branches pointing at mark continue to point at mark, never at an inserted
// instruction; a caller that wants control to enter the run from such a
// branch must construct a bridging branch explicitly.
func (e *Editor) InsertBefore(mark *il.Instruction, seq ...*il.Instruction) {
	e.mustBeNormalized()
	e.body.InsertBefore(mark, seq...)
}

// InsertAfter inserts a contiguous run of instructions immediately after mark.
func (e *Editor) InsertAfter(mark *il.Instruction, seq ...*il.Instruction) {
	e.mustBeNormalized()
	e.body.InsertAfter(mark, seq...)
}

// NewLocal declares a new local variable slot. Existing slots are never
// renumbered.
func (e *Editor) NewLocal(name string, typ il.TypeRef) *il.LocalVar {
	e.mustBeNormalized()
	e.addedLocals = true
	return e.body.NewLocal(name, typ)
}

// Finalize re-compacts every branch whose relative offset fits the compact
// encoding and, if new local slots were introduced, marks the body as
// requiring zero-initialization. After Finalize the editor must not be used
// for further edits without a new Normalize call.
func (e *Editor) Finalize() {
	// Compacting one branch shrinks the stream and may bring other branch
	// offsets into compact range, so iterate to a fixpoint. Offsets only
	// ever shrink, which guarantees termination.
	for {
		offsets := e.body.ComputeOffsets()
		changed := false
		for _, instr := range e.body.Instructions {
			if !instr.Opcode.IsBranch() || instr.Opcode.IsCompact() {
				continue
			}
			target := instr.Target()
			if target == nil {
				continue
			}
			compact := instr.Opcode.Compact()
			if compact == instr.Opcode {
				continue
			}
			delta := offsets[target] - (offsets[instr] + op.GetInfo(compact).Size)
			if delta >= compactOffsetMin && delta <= compactOffsetMax {
				instr.Opcode = compact
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	if e.addedLocals {
		e.body.InitLocals = true
	}
	e.normalized = false
}
