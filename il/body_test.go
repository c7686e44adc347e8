package il

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cloudcmds/chronoweave/op"
)

func TestInsertBeforePreservesBranchTargets(t *testing.T) {
	body := NewBody()
	ret := NewInst(op.Ret, nil)
	load := NewInst(op.LdcI4, int64(1))
	branch := NewInst(op.Br, ret)
	body.Append(branch, load, ret)

	inserted := NewInst(op.Nop, nil)
	body.InsertBefore(ret, inserted)

	require.Equal(t, 4, len(body.Instructions))
	require.Equal(t, []*Instruction{branch, load, inserted, ret}, body.Instructions)
	// The branch still targets the original instruction, not the insert.
	require.Same(t, ret, branch.Target())
	require.Nil(t, body.Validate())
}

func TestInsertBeforeUnknownMarkPanics(t *testing.T) {
	body := NewBody()
	body.Append(NewInst(op.Ret, nil))
	require.Panics(t, func() {
		body.InsertBefore(NewInst(op.Nop, nil), NewInst(op.Nop, nil))
	})
}

func TestNewLocalNeverRenumbers(t *testing.T) {
	body := NewBody()
	a := body.NewLocal("a", TypeRef{Namespace: "System", Name: "Int32"})
	b := body.NewLocal("b", TypeRef{Namespace: "System", Name: "String"})
	require.Equal(t, 0, a.Index)
	require.Equal(t, 1, b.Index)
	c := body.NewLocal("c", TypeRef{Namespace: "System", Name: "Object"})
	require.Equal(t, 2, c.Index)
	require.Equal(t, 0, a.Index)
	require.Equal(t, 1, b.Index)
}

func TestComputeOffsets(t *testing.T) {
	body := NewBody()
	load := NewInst(op.LdcI4, int64(7)) // 5 bytes
	nop := NewInst(op.Nop, nil)         // 1 byte
	ret := NewInst(op.Ret, nil)         // 1 byte
	body.Append(load, nop, ret)

	offsets := body.ComputeOffsets()
	require.Equal(t, 0, offsets[load])
	require.Equal(t, 5, offsets[nop])
	require.Equal(t, 6, offsets[ret])
	require.Equal(t, 7, body.CodeSize())
}

func TestValidateRejectsForeignTarget(t *testing.T) {
	body := NewBody()
	foreign := NewInst(op.Ret, nil)
	body.Append(NewInst(op.Br, foreign), NewInst(op.Ret, nil))
	require.Error(t, body.Validate())
}

func TestCloneSharesOperand(t *testing.T) {
	target := NewInst(op.Ret, nil)
	branch := NewInst(op.Br, target)
	clone := branch.Clone()
	require.Equal(t, branch.Opcode, clone.Opcode)
	require.Same(t, target, clone.Target())
	require.NotSame(t, branch, clone)
}

func TestRegionBoundariesSurviveEdits(t *testing.T) {
	body := NewBody()
	tryStart := NewInst(op.Nop, nil)
	leave := NewInst(op.Leave, nil)
	handlerStart := NewInst(op.Pop, nil)
	endf := NewInst(op.Endfinally, nil)
	ret := NewInst(op.Ret, nil)
	leave.Operand = ret
	body.Append(tryStart, leave, handlerStart, endf, ret)
	body.Regions = append(body.Regions, &ExceptionRegion{
		Kind:         RegionCatch,
		CatchType:    TypeRef{Namespace: "System", Name: "Exception"},
		TryStart:     tryStart,
		TryEnd:       handlerStart,
		HandlerStart: handlerStart,
		HandlerEnd:   ret,
	})

	// Inserting ahead of the first instruction leaves the try region anchored
	// at the original instruction: the inserted prologue is outside it.
	prologue := NewInst(op.Nop, nil)
	body.InsertAt(0, prologue)
	require.Same(t, tryStart, body.Regions[0].TryStart)
	require.Equal(t, 0, body.IndexOf(prologue))
	require.Equal(t, 1, body.IndexOf(tryStart))
	require.Nil(t, body.Validate())
}
