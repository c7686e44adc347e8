package weaver

import "github.com/cloudcmds/chronoweave/il"

// LoggerTypeName is the conventional name of the user-provided logger type
// searched for in the target module.
const LoggerTypeName = "MethodTimeLogger"

// HookType identifies which log-emission call shape is used for a method.
type HookType int

const (
	// HookNone emits via the fallback trace sink.
	HookNone HookType = iota
	// HookSimple calls the two-argument hook: (method identity, elapsed ms).
	HookSimple
	// HookMessage calls the three-argument hook:
	// (method identity, elapsed ms, formatted message).
	HookMessage
)

// String returns the name of the hook type.
func (h HookType) String() string {
	switch h {
	case HookSimple:
		return "simple"
	case HookMessage:
		return "message"
	default:
		return "none"
	}
}

// Hooks holds the logging hook signatures resolved from a module. Resolution
// happens once per batch; the result is read-only afterwards and safe to
// share across concurrently woven methods.
type Hooks struct {
	Simple     il.MethodRef
	HasSimple  bool
	Message    il.MethodRef
	HasMessage bool
}

// Best returns the richest hook shape available given whether a formatted
// message will be emitted.
func (h Hooks) Best(withMessage bool) HookType {
	if withMessage && h.HasMessage {
		return HookMessage
	}
	if h.HasSimple {
		return HookSimple
	}
	if h.HasMessage {
		return HookMessage
	}
	return HookNone
}

// ResolveHooks searches the module for the conventional logger type and
// classifies its static Log methods by arity: two parameters is the simple
// hook, three is the message hook.
func ResolveHooks(module *il.Module) Hooks {
	var hooks Hooks
	for _, t := range module.Types {
		if t.Name != LoggerTypeName {
			continue
		}
		for _, m := range t.Methods {
			if m.Name != "Log" || !m.Static {
				continue
			}
			switch len(m.Parameters) {
			case 2:
				hooks.Simple = m.Ref()
				hooks.HasSimple = true
			case 3:
				hooks.Message = m.Ref()
				hooks.HasMessage = true
			}
		}
	}
	return hooks
}
