package weaver

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cloudcmds/chronoweave/il"
)

func TestResolveHooks(t *testing.T) {
	module := moduleWithLogger(true, true)
	hooks := ResolveHooks(module)
	require.True(t, hooks.HasSimple)
	require.True(t, hooks.HasMessage)
	require.Equal(t, "Log", hooks.Simple.Name)
	require.Len(t, hooks.Simple.Params, 2)
	require.Equal(t, "Log", hooks.Message.Name)
	require.Len(t, hooks.Message.Params, 3)
}

func TestResolveHooksSimpleOnly(t *testing.T) {
	hooks := ResolveHooks(moduleWithLogger(true, false))
	require.True(t, hooks.HasSimple)
	require.False(t, hooks.HasMessage)
}

func TestResolveHooksNoLogger(t *testing.T) {
	hooks := ResolveHooks(il.NewModule("App"))
	require.False(t, hooks.HasSimple)
	require.False(t, hooks.HasMessage)
}

func TestResolveHooksIgnoresInstanceAndMisnamed(t *testing.T) {
	module := il.NewModule("App")
	logger := module.AddType(&il.TypeDef{Namespace: "App", Name: LoggerTypeName})
	// Instance methods and other names do not qualify as hooks.
	logger.AddMethod(&il.MethodDef{
		Name: "Log",
		Parameters: []*il.Parameter{
			{Index: 0, Name: "method", Type: systemRef("Object")},
			{Index: 1, Name: "milliseconds", Type: systemRef("Int64")},
		},
	})
	logger.AddMethod(&il.MethodDef{
		Name:   "Write",
		Static: true,
		Parameters: []*il.Parameter{
			{Index: 0, Name: "method", Type: systemRef("Object")},
			{Index: 1, Name: "milliseconds", Type: systemRef("Int64")},
		},
	})
	hooks := ResolveHooks(module)
	require.False(t, hooks.HasSimple)
	require.False(t, hooks.HasMessage)
}

func TestHooksBest(t *testing.T) {
	tests := []struct {
		simple      bool
		message     bool
		withMessage bool
		want        HookType
	}{
		{false, false, false, HookNone},
		{false, false, true, HookNone},
		{true, false, false, HookSimple},
		{true, true, false, HookSimple},
		{true, true, true, HookMessage},
		{false, true, false, HookMessage},
		{false, true, true, HookMessage},
	}
	for _, tt := range tests {
		hooks := Hooks{HasSimple: tt.simple, HasMessage: tt.message}
		require.Equal(t, tt.want, hooks.Best(tt.withMessage))
	}
}

func TestHookTypeString(t *testing.T) {
	require.Equal(t, "none", HookNone.String())
	require.Equal(t, "simple", HookSimple.String())
	require.Equal(t, "message", HookMessage.String())
}
