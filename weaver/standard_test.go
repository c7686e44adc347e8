package weaver

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/cloudcmds/chronoweave/diag"
	"github.com/cloudcmds/chronoweave/il"
	"github.com/cloudcmds/chronoweave/op"
)

func systemRef(name string) il.TypeRef {
	return il.TypeRef{Namespace: "System", Name: name}
}

// moduleWithLogger builds a module exposing the conventional logger type
// with the requested static Log hooks.
func moduleWithLogger(simple, message bool) *il.Module {
	module := il.NewModule("App")
	logger := module.AddType(&il.TypeDef{Namespace: "App", Name: LoggerTypeName})
	methodBase := il.TypeRef{Namespace: "System.Reflection", Name: "MethodBase"}
	if simple {
		logger.AddMethod(&il.MethodDef{
			Name:   "Log",
			Static: true,
			Parameters: []*il.Parameter{
				{Index: 0, Name: "method", Type: methodBase},
				{Index: 1, Name: "milliseconds", Type: systemRef("Int64")},
			},
		})
	}
	if message {
		logger.AddMethod(&il.MethodDef{
			Name:   "Log",
			Static: true,
			Parameters: []*il.Parameter{
				{Index: 0, Name: "method", Type: methodBase},
				{Index: 1, Name: "milliseconds", Type: systemRef("Int64")},
				{Index: 2, Name: "message", Type: systemRef("String")},
			},
		})
	}
	return module
}

// addComputeMethod attaches App.Calc.Compute(int x), an instance method with
// the two-return release shape, to the module.
func addComputeMethod(module *il.Module) *il.MethodDef {
	calc := module.AddType(&il.TypeDef{Namespace: "App", Name: "Calc"})
	return calc.AddMethod(&il.MethodDef{
		Name: "Compute",
		Parameters: []*il.Parameter{
			{Index: 0, Name: "x", Type: systemRef("Int32")},
		},
		Return: systemRef("Int32"),
		Body:   releaseShapeBody(),
	})
}

func countCalls(body *il.Body, ref il.MethodRef) int {
	n := 0
	for _, instr := range body.Instructions {
		if instr.Opcode != op.Call && instr.Opcode != op.Callvirt {
			continue
		}
		if cur, ok := instr.Operand.(il.MethodRef); ok && cur.Matches(ref) {
			n++
		}
	}
	return n
}

func callIndices(body *il.Body, ref il.MethodRef) []int {
	var found []int
	for i, instr := range body.Instructions {
		if instr.Opcode != op.Call && instr.Opcode != op.Callvirt {
			continue
		}
		if cur, ok := instr.Operand.(il.MethodRef); ok && cur.Matches(ref) {
			found = append(found, i)
		}
	}
	return found
}

func countOpcode(body *il.Body, code op.Code) int {
	n := 0
	for _, instr := range body.Instructions {
		if instr.Opcode == code {
			n++
		}
	}
	return n
}

func hasLdstr(body *il.Body, value string) bool {
	for _, instr := range body.Instructions {
		if instr.Opcode == op.Ldstr && instr.Operand == value {
			return true
		}
	}
	return false
}

func TestInstrumentStandardSimpleHook(t *testing.T) {
	module := moduleWithLogger(true, false)
	method := addComputeMethod(module)
	ctx := NewContext(module, zerolog.Nop())

	require.NoError(t, instrumentStandard(ctx, method, ""))
	body := method.Body

	// One start at entry.
	require.Equal(t, op.Call, body.Instructions[0].Opcode)
	start, ok := body.Instructions[0].Operand.(il.MethodRef)
	require.True(t, ok)
	require.True(t, start.Matches(ctx.StopwatchStartNew))
	require.Equal(t, op.Stloc, body.Instructions[1].Opcode)

	// One stop-and-log per source-level return.
	require.Equal(t, 1, countCalls(body, ctx.StopwatchStartNew))
	require.Equal(t, 2, countCalls(body, ctx.StopwatchStop))
	require.Equal(t, 2, countCalls(body, ctx.StopwatchElapsedMs))
	require.Equal(t, 2, countCalls(body, ctx.Hooks.Simple))
	require.Equal(t, 2, countOpcode(body, op.Ldtoken))
	require.Equal(t, 2, countCalls(body, ctx.MethodFromHandle))

	// The original exits were replaced with no-ops so branch targets held.
	require.Equal(t, 2, countOpcode(body, op.Nop))
	require.NoError(t, body.Validate())

	require.Len(t, body.Locals, 1)
	require.Equal(t, TimerFieldName, body.Locals[0].Name)
	require.True(t, body.InitLocals)
}

func TestInstrumentStandardMessageTemplate(t *testing.T) {
	module := moduleWithLogger(true, true)
	method := addComputeMethod(module)
	ctx := NewContext(module, zerolog.Nop())

	require.NoError(t, instrumentStandard(ctx, method, "x = ${x}"))
	body := method.Body

	// The template is lowered to a positional format string once per exit.
	require.True(t, hasLdstr(body, "x = {0}"))
	require.Equal(t, 2, countCalls(body, ctx.StringFormat))
	require.Equal(t, 2, countCalls(body, ctx.Hooks.Message))
	require.Equal(t, 0, countCalls(body, ctx.Hooks.Simple))

	// The parameter load targets the instance argument slot and is boxed.
	foundLoad := false
	for i, instr := range body.Instructions {
		if instr.Opcode == op.Ldarg && instr.Operand == int64(1) &&
			i+1 < len(body.Instructions) && body.Instructions[i+1].Opcode == op.Box {
			foundLoad = true
		}
	}
	require.True(t, foundLoad)

	require.Len(t, body.Locals, 2)
	require.Equal(t, MessageFieldName, body.Locals[1].Name)
	require.NoError(t, body.Validate())
}

func TestInstrumentStandardMessageHookOnlySingleReturn(t *testing.T) {
	module := moduleWithLogger(false, true)
	calc := module.AddType(&il.TypeDef{Namespace: "App", Name: "Calc"})
	body := il.NewBody()
	body.Append(il.NewInst(op.Ldarg, int64(1)), il.NewInst(op.Ret, nil))
	method := calc.AddMethod(&il.MethodDef{
		Name: "Echo",
		Parameters: []*il.Parameter{
			{Index: 0, Name: "x", Type: systemRef("Int32")},
		},
		Return: systemRef("Int32"),
		Body:   body,
	})
	ctx := NewContext(module, zerolog.Nop())

	require.NoError(t, instrumentStandard(ctx, method, "x was ${x}"))

	// Timer start leads the body; the single return gets one formatted
	// report and the original return still terminates the stream.
	start, ok := body.Instructions[0].Operand.(il.MethodRef)
	require.True(t, ok)
	require.True(t, start.Matches(ctx.StopwatchStartNew))
	require.True(t, hasLdstr(body, "x was {0}"))
	require.Equal(t, 1, countCalls(body, ctx.StringFormat))
	require.Equal(t, 1, countCalls(body, ctx.Hooks.Message))
	require.Equal(t, 0, countCalls(body, ctx.TraceWriteLine))

	formatAt, hookAt := -1, -1
	for i, instr := range body.Instructions {
		ref, ok := instr.Operand.(il.MethodRef)
		if !ok {
			continue
		}
		switch {
		case ref.Matches(ctx.StringFormat):
			formatAt = i
		case ref.Matches(ctx.Hooks.Message):
			hookAt = i
		}
	}
	last := len(body.Instructions) - 1
	require.Greater(t, formatAt, 0)
	require.Greater(t, hookAt, formatAt)
	require.Less(t, hookAt, last)
	require.Equal(t, op.Ret, body.Instructions[last].Opcode)
	require.NoError(t, body.Validate())
}

func TestInstrumentStandardMissingMessageHook(t *testing.T) {
	module := moduleWithLogger(true, false)
	method := addComputeMethod(module)
	ctx := NewContext(module, zerolog.Nop())

	err := instrumentStandard(ctx, method, "x = ${x}")
	require.NotNil(t, err)
	diags := diag.Diagnostics(err)
	require.Len(t, diags, 1)
	require.Equal(t, diag.MissingHook, diags[0].Kind)
	require.Equal(t, "App.Calc.Compute", diags[0].Method)
}

func TestInstrumentStandardUnresolvedTemplateName(t *testing.T) {
	module := moduleWithLogger(true, true)
	method := addComputeMethod(module)
	ctx := NewContext(module, zerolog.Nop())

	err := instrumentStandard(ctx, method, "${x} ${missing}")
	require.NotNil(t, err)
	diags := diag.Diagnostics(err)
	require.Len(t, diags, 1)
	require.Equal(t, diag.UnresolvedTemplateName, diags[0].Kind)
	require.Contains(t, diags[0].Message, "missing")
}

func TestInstrumentStandardFallbackTrace(t *testing.T) {
	module := il.NewModule("App")
	method := addComputeMethod(module)
	ctx := NewContext(module, zerolog.Nop())

	require.NoError(t, instrumentStandard(ctx, method, ""))
	body := method.Body

	// No logger type in the module: the elapsed value goes to the trace
	// sink with the method's display name as the category.
	require.Equal(t, 2, countCalls(body, ctx.TraceWriteLine))
	require.Equal(t, 2, countOpcode(body, op.Box))
	require.True(t, hasLdstr(body, "App.Calc.Compute"))
	require.Equal(t, 0, countOpcode(body, op.Ldtoken))
	require.NoError(t, body.Validate())
}

func TestInstrumentStandardExceptionRegion(t *testing.T) {
	module := moduleWithLogger(true, false)
	calc := module.AddType(&il.TypeDef{Namespace: "App", Name: "Calc"})

	// try { return 1 } catch { return 2 }: a return inside each half of the
	// region, both leaving to the shared epilogue.
	body := il.NewBody()
	end := il.NewInst(op.Ret, nil)
	tryStart := il.NewInst(op.LdcI4, int64(1))
	tryLeave := il.NewInst(op.Leave, end)
	handlerStart := il.NewInst(op.Pop, nil)
	handlerLeave := il.NewInst(op.Leave, end)
	body.Append(tryStart, tryLeave, handlerStart, handlerLeave, end)
	region := &il.ExceptionRegion{
		Kind:         il.RegionCatch,
		CatchType:    systemRef("Exception"),
		TryStart:     tryStart,
		TryEnd:       handlerStart,
		HandlerStart: handlerStart,
		HandlerEnd:   end,
	}
	body.Regions = append(body.Regions, region)

	method := calc.AddMethod(&il.MethodDef{
		Name:   "Guarded",
		Return: systemRef("Int32"),
		Body:   body,
	})
	ctx := NewContext(module, zerolog.Nop())

	require.NoError(t, instrumentStandard(ctx, method, ""))

	// Boundary identities survive, and each stop-and-log lands inside the
	// region half its return left from.
	require.Same(t, tryStart, region.TryStart)
	require.Same(t, handlerStart, region.TryEnd)
	require.Same(t, handlerStart, region.HandlerStart)
	require.Same(t, end, region.HandlerEnd)

	stops := callIndices(body, ctx.StopwatchStop)
	require.Len(t, stops, 2)
	require.GreaterOrEqual(t, stops[0], body.IndexOf(region.TryStart))
	require.Less(t, stops[0], body.IndexOf(region.TryEnd))
	require.GreaterOrEqual(t, stops[1], body.IndexOf(region.HandlerStart))
	require.Less(t, stops[1], body.IndexOf(region.HandlerEnd))
	require.NoError(t, body.Validate())
}

func TestInstrumentStandardNoBody(t *testing.T) {
	module := moduleWithLogger(true, false)
	calc := module.AddType(&il.TypeDef{Namespace: "App", Name: "Calc"})
	method := calc.AddMethod(&il.MethodDef{Name: "Extern"})
	ctx := NewContext(module, zerolog.Nop())

	err := instrumentStandard(ctx, method, "")
	require.NotNil(t, err)
	diags := diag.Diagnostics(err)
	require.Len(t, diags, 1)
	require.Equal(t, diag.StructuralAssumptionViolation, diags[0].Kind)
}

func TestInstrumentStandardTrivialShape(t *testing.T) {
	module := moduleWithLogger(true, false)
	calc := module.AddType(&il.TypeDef{Namespace: "App", Name: "Calc"})
	body := il.NewBody()
	body.Append(il.NewInst(op.LdcI4, int64(42)), il.NewInst(op.Ret, nil))
	method := calc.AddMethod(&il.MethodDef{
		Name:   "Answer",
		Return: systemRef("Int32"),
		Body:   body,
	})
	ctx := NewContext(module, zerolog.Nop())

	require.NoError(t, instrumentStandard(ctx, method, ""))

	// The inline ret is the only exit and still terminates the stream.
	require.Equal(t, 1, countCalls(body, ctx.StopwatchStop))
	last := body.Instructions[len(body.Instructions)-1]
	require.Equal(t, op.Ret, last.Opcode)
	require.NoError(t, body.Validate())
}
