// Package scan implements the selection phase: it walks a module and yields
// the methods eligible for timing instrumentation, classified by shape.
//
// A method is eligible when it, its declaring type, or the module carries
// the Time attribute. Compiler-generated types and the synthesized state
// machine types themselves are never selected directly; a state machine is
// reached through the method it implements.
package scan

import "github.com/cloudcmds/chronoweave/il"

// Attribute names recognized by the selection phase.
const (
	AttrTime                 = "Time"
	AttrAsyncStateMachine    = "AsyncStateMachine"
	AttrIteratorStateMachine = "IteratorStateMachine"
	AttrCompilerGenerated    = "CompilerGenerated"
)

// TargetKind classifies the compiled shape of a selected method.
type TargetKind int

const (
	// TargetStandard is an ordinary method: one entry, no suspension.
	TargetStandard TargetKind = iota
	// TargetSuspension is an asynchronous method compiled into a resumable
	// state machine; the paired type's step method is instrumented instead
	// of the method body.
	TargetSuspension
	// TargetGenerator is a lazy-sequence state machine; the engine refuses
	// to instrument this shape.
	TargetGenerator
)

// String returns the name of the target kind.
func (k TargetKind) String() string {
	switch k {
	case TargetSuspension:
		return "suspension"
	case TargetGenerator:
		return "generator"
	default:
		return "standard"
	}
}

// Target is one method selected for weaving.
type Target struct {
	Method *il.MethodDef
	Kind   TargetKind

	// StateMachine is the paired synthesized type for suspension and
	// generator shapes; nil when the pairing attribute names a type that is
	// not part of the module.
	StateMachine *il.TypeDef

	// Template is the optional message template from the Time attribute
	// argument; empty means no message formatting.
	Template string

	// Explicit is true when the method itself carried the Time attribute,
	// as opposed to inheriting eligibility from its type or the module.
	Explicit bool
}

// Select walks the module and returns its weaving targets in declaration
// order.
func Select(module *il.Module) []Target {
	moduleArg, moduleWide := module.AttributeArg(AttrTime)

	var targets []Target
	for _, t := range module.Types {
		if t.HasAttribute(AttrCompilerGenerated) {
			continue
		}
		typeArg, typeWide := t.AttributeArg(AttrTime)
		for _, m := range t.Methods {
			methodArg, explicit := m.AttributeArg(AttrTime)
			if !explicit && !typeWide && !moduleWide {
				continue
			}
			if m.Body == nil && !isStateMachineHost(m) {
				continue
			}
			target := Target{Method: m, Explicit: explicit}
			switch {
			case explicit:
				target.Template = methodArg
			case typeWide:
				target.Template = typeArg
			default:
				target.Template = moduleArg
			}
			classify(module, &target)
			targets = append(targets, target)
		}
	}
	return targets
}

func classify(module *il.Module, target *Target) {
	if smName, ok := target.Method.AttributeArg(AttrAsyncStateMachine); ok {
		target.Kind = TargetSuspension
		target.StateMachine = module.TypeNamed(smName)
		return
	}
	if smName, ok := target.Method.AttributeArg(AttrIteratorStateMachine); ok {
		target.Kind = TargetGenerator
		target.StateMachine = module.TypeNamed(smName)
		return
	}
	target.Kind = TargetStandard
}

func isStateMachineHost(m *il.MethodDef) bool {
	return m.HasAttribute(AttrAsyncStateMachine) || m.HasAttribute(AttrIteratorStateMachine)
}
