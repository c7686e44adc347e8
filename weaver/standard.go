package weaver

import (
	"github.com/cloudcmds/chronoweave/diag"
	"github.com/cloudcmds/chronoweave/il"
	"github.com/cloudcmds/chronoweave/op"
)

// instrumentStandard rewrites an ordinary method in place: a timer-start
// sequence at entry and a stop-and-log sequence ahead of every exit point.
//
// The method has exactly one entry per invocation, so the start sequence
// needs no guard and the timer lives in a stack local.
func instrumentStandard(ctx *Context, method *il.MethodDef, template string) error {
	identity := method.FullName()
	body := method.Body
	if body == nil {
		return diag.New(diag.StructuralAssumptionViolation, identity, "method has no body")
	}

	plan, hookType, err := prepareEmission(ctx, method, template)
	if err != nil {
		return err
	}

	editor := NewEditor(body)
	editor.Normalize()

	exits, err := FindExitPoints(ctx, identity, body)
	if err != nil {
		return err
	}

	timer := editor.NewLocal(TimerFieldName, ctx.Stopwatch)
	var message *il.LocalVar
	if plan != nil {
		message = editor.NewLocal(MessageFieldName, ctx.StringType)
	}

	editor.InsertAt(0,
		il.NewInst(op.Call, ctx.StopwatchStartNew),
		il.NewInst(op.Stloc, timer),
	)

	for _, exit := range exits {
		substituteExit(editor, exit.Instr, stopAndLogStandard(ctx, method, plan, hookType, timer, message))
	}

	editor.Finalize()
	return nil
}

// prepareEmission validates the optional template and selects the hook
// shape. Shared by both injection engines: template names are always
// validated against the method's declared parameter names.
func prepareEmission(ctx *Context, method *il.MethodDef, template string) (*formatPlan, HookType, error) {
	if template == "" {
		return nil, ctx.Hooks.Best(false), nil
	}
	if !ctx.Hooks.HasMessage {
		return nil, HookNone, diag.New(diag.MissingHook, method.FullName(),
			"a message template is present but the module exposes no hook accepting a message argument")
	}
	plan, err := buildFormatPlan(method, template)
	if err != nil {
		return nil, HookNone, err
	}
	return plan, HookMessage, nil
}

// substituteExit applies the exit rewrite: the original exit instruction
// becomes a no-op so that every branch targeting it stays valid, the
// injected sequence follows it, and a clone with the original opcode and
// operand performs the actual exit.
func substituteExit(editor *Editor, original *il.Instruction, seq []*il.Instruction) {
	clone := original.Clone()
	original.Opcode = op.Nop
	original.Operand = nil
	editor.InsertAfter(original, append(seq, clone)...)
}

// stopAndLogStandard builds the stop-and-log sequence for a standard method.
// The sequence is stack-neutral: whatever the original exit had on the
// evaluation stack (a return value, typically) is untouched beneath it.
func stopAndLogStandard(ctx *Context, method *il.MethodDef, plan *formatPlan, hookType HookType, timer, message *il.LocalVar) []*il.Instruction {
	seq := []*il.Instruction{
		il.NewInst(op.Ldloc, timer),
		il.NewInst(op.Callvirt, ctx.StopwatchStop),
	}
	if plan != nil {
		formatSeq, _ := plan.emit(ctx, func(name string) ([]*il.Instruction, *diag.Diagnostic) {
			// Parameter names were validated up front; loads cannot fail.
			param := method.ParameterNamed(name)
			load := []*il.Instruction{il.NewInst(op.Ldarg, method.ArgSlot(param))}
			if ctx.IsValueType(param.Type) {
				load = append(load, il.NewInst(op.Box, param.Type))
			}
			return load, nil
		})
		seq = append(seq, formatSeq...)
		seq = append(seq, il.NewInst(op.Stloc, message))
	}
	elapsed := func() []*il.Instruction {
		return []*il.Instruction{
			il.NewInst(op.Ldloc, timer),
			il.NewInst(op.Callvirt, ctx.StopwatchElapsedMs),
		}
	}
	loadMessage := func() []*il.Instruction {
		if message != nil {
			return []*il.Instruction{il.NewInst(op.Ldloc, message)}
		}
		return []*il.Instruction{il.NewInst(op.Ldnull, nil)}
	}
	return append(seq, emitLog(ctx, method, hookType, elapsed, loadMessage)...)
}

// emitLog builds the log-emission call for the resolved hook shape. The
// elapsed and loadMessage callbacks supply the engine-specific loads (stack
// local for standard methods, instance field for state machines).
func emitLog(ctx *Context, method *il.MethodDef, hookType HookType, elapsed func() []*il.Instruction, loadMessage func() []*il.Instruction) []*il.Instruction {
	switch hookType {
	case HookSimple:
		seq := methodIdentity(ctx, method)
		seq = append(seq, elapsed()...)
		return append(seq, il.NewInst(op.Call, ctx.Hooks.Simple))
	case HookMessage:
		seq := methodIdentity(ctx, method)
		seq = append(seq, elapsed()...)
		seq = append(seq, loadMessage()...)
		return append(seq, il.NewInst(op.Call, ctx.Hooks.Message))
	default:
		// Fallback trace sink: the elapsed value boxed, with the method's
		// display name baked in as the category string literal.
		seq := elapsed()
		seq = append(seq,
			il.NewInst(op.Box, il.TypeRef{Namespace: "System", Name: "Int64"}),
			il.NewInst(op.Ldstr, method.FullName()),
			il.NewInst(op.Call, ctx.TraceWriteLine),
		)
		return seq
	}
}

// methodIdentity pushes the reflective identity of the instrumented method.
func methodIdentity(ctx *Context, method *il.MethodDef) []*il.Instruction {
	return []*il.Instruction{
		il.NewInst(op.Ldtoken, method.Ref()),
		il.NewInst(op.Call, ctx.MethodFromHandle),
	}
}
