package diag

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiagnosticError(t *testing.T) {
	d := New(UnresolvedTemplateName, "Sample.Calculator.Add", "name %q not found", "z")
	require.Equal(t, `W2003 (unresolved template name): Sample.Calculator.Add: name "z" not found`, d.Error())
	require.False(t, d.IsSkip())
}

func TestSkipIsInformational(t *testing.T) {
	d := Skip(UnsupportedShape, "Sample.Seq.Items", "lazy-sequence state machine")
	require.True(t, d.IsSkip())
	require.Equal(t, W2001, d.Kind.Code())
}

func TestKindCodes(t *testing.T) {
	tests := []struct {
		kind Kind
		code Code
	}{
		{UnsupportedShape, W2001},
		{MissingHook, W2002},
		{UnresolvedTemplateName, W2003},
		{MissingStateField, W2004},
		{StructuralAssumptionViolation, W2005},
		{Internal, W2006},
	}
	for _, tc := range tests {
		require.Equal(t, tc.code, tc.kind.Code())
		require.NotEmpty(t, Describe(tc.code))
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	d := New(Internal, "T.M", "rewrite failed").WithCause(cause)
	require.ErrorIs(t, d, cause)
}

func TestAppendAndDiagnostics(t *testing.T) {
	var err error
	err = Append(err, New(UnresolvedTemplateName, "T.M", "name a"))
	err = Append(err, New(UnresolvedTemplateName, "T.M", "name b"))
	require.Error(t, err)

	diags := Diagnostics(err)
	require.Equal(t, 2, len(diags))
	require.Contains(t, diags[0].Message, "name a")
	require.Contains(t, diags[1].Message, "name b")

	require.Nil(t, Append(nil))
	require.Empty(t, Diagnostics(nil))
}

func TestMarshalJSON(t *testing.T) {
	d := Skip(UnsupportedShape, "App.Emitter.Items", "lazy-sequence state machine").
		WithCause(errors.New("boom"))
	data, err := json.Marshal(d)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"code": "W2001",
		"kind": "unsupported shape",
		"method": "App.Emitter.Items",
		"message": "lazy-sequence state machine",
		"cause": "boom",
		"skip": true
	}`, string(data))
}
