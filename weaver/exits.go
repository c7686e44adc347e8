package weaver

import (
	"github.com/cloudcmds/chronoweave/diag"
	"github.com/cloudcmds/chronoweave/il"
	"github.com/cloudcmds/chronoweave/op"
)

// faultLookback is the number of instructions inspected ahead of a control
// transfer when deciding whether it propagates an exception: a call to the
// runtime's report-fault operation within this window marks the transfer as
// an exception-propagating exit.
const faultLookback = 3

// ExitKind tags an exit point as a normal return or an exception
// propagation. Both kinds currently receive identical instrumentation, but
// the detection rules differ and the tag must be computed correctly.
type ExitKind int

const (
	ExitNormal ExitKind = iota
	ExitExceptional
)

// String returns the name of the exit kind.
func (k ExitKind) String() string {
	if k == ExitExceptional {
		return "exceptional"
	}
	return "normal"
}

// ExitPoint is an instruction at which control legitimately leaves the
// method under instrumentation. It is a position to instrument, not an owned
// entity.
type ExitPoint struct {
	Instr *il.Instruction
	Kind  ExitKind
}

// FindExitPoints analyzes a normalized instruction stream and returns its
// exit points in stream order.
//
// The epilogue anchor is found by scanning backward for the last
// unconditional control transfer that is not itself an exception
// propagation; its target is where the synthesized epilogue begins, and
// every unconditional transfer to that anchor is one source-level return.
// The anchor is the transfer's target itself, not the instruction after it:
// matching transfer targets directly is what keeps the shared epilogue ret
// out of the exit set.
// Conditional branches never qualify: they select between paths inside the
// method, they do not represent a produced result. Exception-propagating
// transfers are recognized by a report-fault call within the lookback window
// even though they target a different, handler-local, epilogue.
//
// A body with no unconditional transfers falls back to treating each ret
// instruction as a normal exit (the trivial shape with inline returns). A
// body with no exits of either kind violates the analyzer's structural
// assumptions.
func FindExitPoints(ctx *Context, method string, body *il.Body) ([]ExitPoint, error) {
	instrs := body.Instructions

	var anchor *il.Instruction
	haveTransfers := false
	for i := len(instrs) - 1; i >= 0; i-- {
		instr := instrs[i]
		if !isUnconditional(instr) {
			continue
		}
		haveTransfers = true
		if isFaultTransfer(ctx, instrs, i) {
			continue
		}
		anchor = instr.Target()
		break
	}

	var exits []ExitPoint
	for i, instr := range instrs {
		switch {
		case isUnconditional(instr):
			if isFaultTransfer(ctx, instrs, i) {
				exits = append(exits, ExitPoint{Instr: instr, Kind: ExitExceptional})
			} else if anchor != nil && instr.Target() == anchor {
				exits = append(exits, ExitPoint{Instr: instr, Kind: ExitNormal})
			}
		case instr.Opcode == op.Ret && !haveTransfers:
			exits = append(exits, ExitPoint{Instr: instr, Kind: ExitNormal})
		}
	}

	if len(exits) == 0 {
		return nil, diag.New(diag.StructuralAssumptionViolation, method,
			"no qualifying exit transfer found in %d instructions", len(instrs))
	}
	return exits, nil
}

// isUnconditional reports whether the instruction is an unconditional
// control transfer (br or leave, in either form) with a resolved target.
func isUnconditional(instr *il.Instruction) bool {
	ext := instr.Opcode.Extended()
	if ext != op.Br && ext != op.Leave {
		return false
	}
	return instr.Target() != nil
}

// isFaultTransfer reports whether the control transfer at index i is
// preceded, within the lookback window, by a call to the report-fault
// operation.
func isFaultTransfer(ctx *Context, instrs []*il.Instruction, i int) bool {
	for j := i - 1; j >= 0 && j >= i-faultLookback; j-- {
		instr := instrs[j]
		if instr.Opcode != op.Call && instr.Opcode != op.Callvirt {
			continue
		}
		if ref, ok := instr.Operand.(il.MethodRef); ok && ctx.IsFaultReport(ref) {
			return true
		}
	}
	return false
}
