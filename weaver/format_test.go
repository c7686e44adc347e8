package weaver

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cloudcmds/chronoweave/diag"
	"github.com/cloudcmds/chronoweave/il"
	"github.com/cloudcmds/chronoweave/op"
)

func formatTestMethod() *il.MethodDef {
	t := &il.TypeDef{Namespace: "App", Name: "Calc"}
	return t.AddMethod(&il.MethodDef{
		Name: "Divide",
		Parameters: []*il.Parameter{
			{Index: 0, Name: "num", Type: systemRef("Int32")},
			{Index: 1, Name: "den", Type: systemRef("Int32")},
		},
	})
}

func TestBuildFormatPlan(t *testing.T) {
	method := formatTestMethod()
	tests := []struct {
		template string
		format   string
		names    []string
	}{
		{"plain text", "plain text", nil},
		{"${num}", "{0}", []string{"num"}},
		{"${num} / ${den}", "{0} / {1}", []string{"num", "den"}},
		{"${ num }", "{0}", []string{"num"}},
		{"${num}${num}", "{0}{1}", []string{"num", "num"}},
	}
	for _, tt := range tests {
		plan, err := buildFormatPlan(method, tt.template)
		require.Nil(t, err, tt.template)
		require.Equal(t, tt.format, plan.format, tt.template)
		require.Equal(t, tt.names, plan.names, tt.template)
	}
}

func TestBuildFormatPlanUnresolvedNames(t *testing.T) {
	method := formatTestMethod()
	_, err := buildFormatPlan(method, "${num} ${oops} ${nope}")
	require.NotNil(t, err)

	// Every unresolvable name is reported, not just the first.
	diags := diag.Diagnostics(err)
	require.Len(t, diags, 2)
	require.Equal(t, diag.UnresolvedTemplateName, diags[0].Kind)
	require.Contains(t, diags[0].Message, "oops")
	require.Contains(t, diags[1].Message, "nope")
}

func TestBuildFormatPlanInvalidTemplate(t *testing.T) {
	method := formatTestMethod()
	_, err := buildFormatPlan(method, "${num")
	require.NotNil(t, err)
	diags := diag.Diagnostics(err)
	require.Len(t, diags, 1)
	require.Equal(t, diag.UnresolvedTemplateName, diags[0].Kind)
	require.NotNil(t, diags[0].Cause)
}

func TestFormatPlanEmit(t *testing.T) {
	ctx := testContext()
	method := formatTestMethod()
	plan, err := buildFormatPlan(method, "${num} / ${den}")
	require.Nil(t, err)

	seq, degraded := plan.emit(ctx, func(name string) ([]*il.Instruction, *diag.Diagnostic) {
		p := method.ParameterNamed(name)
		return []*il.Instruction{il.NewInst(op.Ldarg, int64(p.Index))}, nil
	})
	require.Empty(t, degraded)

	// Format string, array allocation, one dup/index/store per slot, then
	// the positional-format call leaving the string on the stack.
	require.Equal(t, op.Ldstr, seq[0].Opcode)
	require.Equal(t, "{0} / {1}", seq[0].Operand)
	require.Equal(t, op.LdcI4, seq[1].Opcode)
	require.Equal(t, int64(2), seq[1].Operand)
	require.Equal(t, op.Newarr, seq[2].Opcode)

	last := seq[len(seq)-1]
	require.Equal(t, op.Call, last.Opcode)
	ref, ok := last.Operand.(il.MethodRef)
	require.True(t, ok)
	require.True(t, ref.Matches(ctx.StringFormat))

	dups, stores := 0, 0
	for _, instr := range seq {
		switch instr.Opcode {
		case op.Dup:
			dups++
		case op.StelemRef:
			stores++
		}
	}
	require.Equal(t, 2, dups)
	require.Equal(t, 2, stores)
}

func TestFormatPlanEmitDegradesToNull(t *testing.T) {
	ctx := testContext()
	method := formatTestMethod()
	plan, err := buildFormatPlan(method, "${num} / ${den}")
	require.Nil(t, err)

	seq, degraded := plan.emit(ctx, func(name string) ([]*il.Instruction, *diag.Diagnostic) {
		if name == "den" {
			return nil, diag.New(diag.MissingStateField, "App.Calc.Divide", "no field %q", name)
		}
		return []*il.Instruction{il.NewInst(op.Ldarg, int64(0))}, nil
	})

	require.Len(t, degraded, 1)
	require.Equal(t, diag.MissingStateField, degraded[0].Kind)

	nulls := 0
	for _, instr := range seq {
		if instr.Opcode == op.Ldnull {
			nulls++
		}
	}
	require.Equal(t, 1, nulls)
}
