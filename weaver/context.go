package weaver

import (
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"

	"github.com/cloudcmds/chronoweave/il"
)

// Default naming conventions for the state machine fields the engine reads
// and adds. Hosts with different compiler conventions can override these on
// the Context.
const (
	DefaultStateFieldName = "<>1__state"
	TimerFieldName        = "__chronoweave_timer__"
	MessageFieldName      = "__chronoweave_message__"
)

// Context carries everything the injection engines need for one batch: the
// module being woven, the resolved logging hooks, the well-known runtime
// member references, and the logger. It is constructed once per batch and
// threaded through every operation; nothing in the engine is process-global.
type Context struct {
	Module  *il.Module
	BatchID string
	Hooks   Hooks
	Log     zerolog.Logger

	// StateFieldName is the name of the dispatch-state field on
	// compiler-synthesized state machine types.
	StateFieldName string

	// IsFaultReport identifies calls to the runtime's report-fault
	// operation, used by the exit-point analyzer to detect
	// exception-propagating exits.
	IsFaultReport func(il.MethodRef) bool

	// IsValueType identifies types whose values need boxing before being
	// stored into an object array.
	IsValueType func(il.TypeRef) bool

	// Well-known runtime member references.
	Stopwatch          il.TypeRef
	ObjectType         il.TypeRef
	StringType         il.TypeRef
	StopwatchStartNew  il.MethodRef
	StopwatchStop      il.MethodRef
	StopwatchElapsedMs il.MethodRef
	StringFormat       il.MethodRef
	MethodFromHandle   il.MethodRef
	TraceWriteLine     il.MethodRef
}

// NewContext builds a batch context for the given module, resolving the
// module's logging hooks once.
func NewContext(module *il.Module, log zerolog.Logger) *Context {
	system := func(name string) il.TypeRef {
		return il.TypeRef{Namespace: "System", Name: name}
	}
	diagnostics := func(name string) il.TypeRef {
		return il.TypeRef{Namespace: "System.Diagnostics", Name: name}
	}
	stopwatch := diagnostics("Stopwatch")
	ctx := &Context{
		Module:         module,
		BatchID:        uuid.Must(uuid.NewV4()).String(),
		Log:            log,
		StateFieldName: DefaultStateFieldName,
		IsFaultReport: func(ref il.MethodRef) bool {
			return ref.Name == "SetException"
		},
		IsValueType: isPrimitiveValueType,
		Stopwatch:   stopwatch,
		ObjectType:  system("Object"),
		StringType:  system("String"),
		StopwatchStartNew: il.MethodRef{
			DeclaringType: stopwatch,
			Name:          "StartNew",
			Return:        stopwatch,
		},
		StopwatchStop: il.MethodRef{
			DeclaringType: stopwatch,
			Name:          "Stop",
		},
		StopwatchElapsedMs: il.MethodRef{
			DeclaringType: stopwatch,
			Name:          "get_ElapsedMilliseconds",
			Return:        system("Int64"),
		},
		StringFormat: il.MethodRef{
			DeclaringType: system("String"),
			Name:          "Format",
			Params:        []il.TypeRef{system("String"), {Namespace: "System", Name: "Object[]"}},
			Return:        system("String"),
		},
		MethodFromHandle: il.MethodRef{
			DeclaringType: il.TypeRef{Namespace: "System.Reflection", Name: "MethodBase"},
			Name:          "GetMethodFromHandle",
			Params:        []il.TypeRef{system("RuntimeMethodHandle")},
			Return:        il.TypeRef{Namespace: "System.Reflection", Name: "MethodBase"},
		},
		TraceWriteLine: il.MethodRef{
			DeclaringType: diagnostics("Trace"),
			Name:          "WriteLine",
			Params:        []il.TypeRef{system("Object"), system("String")},
		},
	}
	ctx.Hooks = ResolveHooks(module)
	return ctx
}

var primitiveValueTypes = map[string]bool{
	"Boolean": true,
	"Byte":    true,
	"SByte":   true,
	"Char":    true,
	"Int16":   true,
	"UInt16":  true,
	"Int32":   true,
	"UInt32":  true,
	"Int64":   true,
	"UInt64":  true,
	"Single":  true,
	"Double":  true,
	"Decimal": true,
	"IntPtr":  true,
	"UIntPtr": true,
}

func isPrimitiveValueType(ref il.TypeRef) bool {
	return ref.Namespace == "System" && primitiveValueTypes[ref.Name]
}
