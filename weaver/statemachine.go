package weaver

import (
	"github.com/cloudcmds/chronoweave/diag"
	"github.com/cloudcmds/chronoweave/il"
	"github.com/cloudcmds/chronoweave/op"
)

// StepMethodName is the conventional name of a state machine's step method,
// invoked once per suspension/resumption.
const StepMethodName = "MoveNext"

// instrumentStateMachine rewrites the step method of a suspension-based
// method's paired state machine type. The original method is left untouched;
// it only dispatches into the machine.
//
// Because the step method runs once per resumption and nothing on the
// evaluation stack or in its locals survives a suspension, all injected
// state lives in instance fields on the machine: the timer handle, and the
// formatted message when a template is present. The timer is created lazily
// behind a null check so that resumptions do not reset the clock.
//
// The returned diagnostics are degradations (captured values optimized away
// from the machine); the method is still woven when they are non-empty.
func instrumentStateMachine(ctx *Context, method *il.MethodDef, machine *il.TypeDef, template string) ([]*diag.Diagnostic, error) {
	identity := method.FullName()
	if machine == nil {
		return nil, diag.New(diag.StructuralAssumptionViolation, identity,
			"state machine pairing names a type that is not part of the module")
	}
	step := machine.MethodNamed(StepMethodName)
	if step == nil || step.Body == nil {
		return nil, diag.New(diag.StructuralAssumptionViolation, identity,
			"state machine %s has no %s body", machine.FullName(), StepMethodName)
	}
	body := step.Body

	plan, hookType, err := prepareEmission(ctx, method, template)
	if err != nil {
		return nil, err
	}

	editor := NewEditor(body)
	editor.Normalize()

	exits, err := FindExitPoints(ctx, identity, body)
	if err != nil {
		return nil, err
	}

	// Fields are only added once every failure path is behind us, so a
	// rejected method leaves the machine type untouched.
	timer := machine.AddField(&il.FieldDef{Name: TimerFieldName, Type: ctx.Stopwatch})
	var message il.FieldRef
	if plan != nil {
		message = machine.AddField(&il.FieldDef{Name: MessageFieldName, Type: ctx.StringType})
	}

	entry := entryPoint(ctx, machine, body)
	editor.InsertBefore(entry,
		il.NewInst(op.Ldarg, int64(0)),
		il.NewInst(op.Ldfld, timer),
		il.NewInst(op.Brtrue, entry),
		il.NewInst(op.Ldarg, int64(0)),
		il.NewInst(op.Call, ctx.StopwatchStartNew),
		il.NewInst(op.Stfld, timer),
	)

	// The stop-and-log sequence is built once so each optimized-away field
	// is reported once, then cloned per exit (it contains no branches, so a
	// shallow instruction copy is enough).
	proto, degraded := stopAndLogMachine(ctx, method, machine, plan, hookType, timer, message)
	for _, exit := range exits {
		seq := make([]*il.Instruction, len(proto))
		for i, instr := range proto {
			seq[i] = instr.Clone()
		}
		substituteExit(editor, exit.Instr, seq)
	}

	editor.Finalize()
	return degraded, nil
}

// entryPoint locates the one-time injection point for the guarded timer
// start: the instruction immediately preceding the first read of the
// machine's dispatch-state field, so the guard runs before the machine
// decides whether this call is a fresh start or a resumption. A machine
// produced by a different compiler strategy, with no such read, falls back
// to the first instruction.
func entryPoint(ctx *Context, machine *il.TypeDef, body *il.Body) *il.Instruction {
	stateField, ok := machine.FieldRefNamed(ctx.StateFieldName)
	if !ok {
		return body.Instructions[0]
	}
	for i, instr := range body.Instructions {
		if instr.Opcode != op.Ldfld {
			continue
		}
		if ref, isField := instr.Operand.(il.FieldRef); isField && ref == stateField {
			if i == 0 {
				return instr
			}
			return body.Instructions[i-1]
		}
	}
	return body.Instructions[0]
}

// stopAndLogMachine builds the stop-and-log sequence for a state machine
// step method. It mirrors the standard sequence but reads and writes
// machine instance fields throughout.
func stopAndLogMachine(ctx *Context, method *il.MethodDef, machine *il.TypeDef, plan *formatPlan, hookType HookType, timer, message il.FieldRef) ([]*il.Instruction, []*diag.Diagnostic) {
	identity := method.FullName()
	loadTimer := func() []*il.Instruction {
		return []*il.Instruction{
			il.NewInst(op.Ldarg, int64(0)),
			il.NewInst(op.Ldfld, timer),
		}
	}

	seq := loadTimer()
	seq = append(seq, il.NewInst(op.Callvirt, ctx.StopwatchStop))

	var degraded []*diag.Diagnostic
	if plan != nil {
		// Captured parameters live as machine fields named after the
		// parameter. A field the compiler optimized away degrades that slot
		// to null rather than aborting the method.
		formatSeq, diags := plan.emit(ctx, func(name string) ([]*il.Instruction, *diag.Diagnostic) {
			ref, ok := machine.FieldRefNamed(name)
			if !ok {
				return nil, diag.New(diag.MissingStateField, identity,
					"captured value %q was optimized away from %s", name, machine.FullName())
			}
			load := []*il.Instruction{
				il.NewInst(op.Ldarg, int64(0)),
				il.NewInst(op.Ldfld, ref),
			}
			if ctx.IsValueType(ref.Type) {
				load = append(load, il.NewInst(op.Box, ref.Type))
			}
			return load, nil
		})
		degraded = diags
		seq = append(seq, il.NewInst(op.Ldarg, int64(0)))
		seq = append(seq, formatSeq...)
		seq = append(seq, il.NewInst(op.Stfld, message))
	}

	elapsed := func() []*il.Instruction {
		return append(loadTimer(), il.NewInst(op.Callvirt, ctx.StopwatchElapsedMs))
	}
	loadMessage := func() []*il.Instruction {
		if plan != nil {
			return []*il.Instruction{
				il.NewInst(op.Ldarg, int64(0)),
				il.NewInst(op.Ldfld, message),
			}
		}
		return []*il.Instruction{il.NewInst(op.Ldnull, nil)}
	}
	return append(seq, emitLog(ctx, method, hookType, elapsed, loadMessage)...), degraded
}
