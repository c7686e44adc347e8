// Package diag defines error types for the weaving engine.
//
// Every failure is reported against the fully-qualified identity of the
// method being processed, with a stable string code so that hosts can match
// diagnostics without parsing messages.
package diag

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Kind represents the category of a weaving diagnostic.
type Kind int

const (
	// UnsupportedShape indicates the target method is a lazy-sequence
	// (generator) state machine, which the engine refuses to instrument.
	UnsupportedShape Kind = iota
	// MissingHook indicates a message template was supplied but the module
	// exposes no logging hook that accepts a message argument.
	MissingHook
	// UnresolvedTemplateName indicates a template references a parameter or
	// field name that does not exist among the available names.
	UnresolvedTemplateName
	// MissingStateField indicates a captured value expected as a
	// state-machine field was optimized away by the compiler.
	MissingStateField
	// StructuralAssumptionViolation indicates the exit-point analyzer could
	// not find any qualifying control-transfer instruction.
	StructuralAssumptionViolation
	// Internal indicates an unexpected failure while rewriting a method,
	// recovered and attributed to that method.
	Internal
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case UnsupportedShape:
		return "unsupported shape"
	case MissingHook:
		return "missing hook"
	case UnresolvedTemplateName:
		return "unresolved template name"
	case MissingStateField:
		return "missing state field"
	case StructuralAssumptionViolation:
		return "structural assumption violation"
	case Internal:
		return "internal error"
	default:
		return "error"
	}
}

// Code is a stable identifier for a diagnostic kind.
type Code string

const (
	W2001 Code = "W2001" // unsupported shape
	W2002 Code = "W2002" // missing hook
	W2003 Code = "W2003" // unresolved template name
	W2004 Code = "W2004" // missing state field
	W2005 Code = "W2005" // structural assumption violation
	W2006 Code = "W2006" // internal error
)

// Code returns the stable code for the kind.
func (k Kind) Code() Code {
	switch k {
	case UnsupportedShape:
		return W2001
	case MissingHook:
		return W2002
	case UnresolvedTemplateName:
		return W2003
	case MissingStateField:
		return W2004
	case StructuralAssumptionViolation:
		return W2005
	default:
		return W2006
	}
}

var codeDescriptions = map[Code]string{
	W2001: "method is a lazy-sequence state machine and cannot be instrumented",
	W2002: "message template supplied but no message-capable logging hook exists",
	W2003: "template references a name not available on this method",
	W2004: "captured value was optimized away from the state machine",
	W2005: "no qualifying exit transfer found in the method body",
	W2006: "unexpected failure while rewriting the method",
}

// Describe returns the short description for a code, or an empty string for
// an unknown code.
func Describe(code Code) string {
	return codeDescriptions[code]
}

// Diagnostic is a structured weaving error attributed to one method.
type Diagnostic struct {
	Kind    Kind
	Method  string // fully-qualified method identity
	Message string
	Cause   error

	// Informational marks a skip rather than a hard error: the method is
	// left unwoven but the batch is not considered failed because of it.
	Informational bool
}

// Error implements the error interface.
func (d *Diagnostic) Error() string {
	if d.Method == "" {
		return fmt.Sprintf("%s (%s): %s", d.Kind.Code(), d.Kind, d.Message)
	}
	return fmt.Sprintf("%s (%s): %s: %s", d.Kind.Code(), d.Kind, d.Method, d.Message)
}

// Unwrap returns the underlying cause, if any.
func (d *Diagnostic) Unwrap() error {
	return d.Cause
}

// MarshalJSON renders the diagnostic with its stable code and a flattened
// cause, suitable for report output.
func (d *Diagnostic) MarshalJSON() ([]byte, error) {
	state := struct {
		Code    Code   `json:"code"`
		Kind    string `json:"kind"`
		Method  string `json:"method,omitempty"`
		Message string `json:"message"`
		Cause   string `json:"cause,omitempty"`
		Skip    bool   `json:"skip,omitempty"`
	}{
		Code:    d.Kind.Code(),
		Kind:    d.Kind.String(),
		Method:  d.Method,
		Message: d.Message,
		Skip:    d.Informational,
	}
	if d.Cause != nil {
		state.Cause = d.Cause.Error()
	}
	return json.Marshal(state)
}

// IsSkip returns true for informational diagnostics.
func (d *Diagnostic) IsSkip() bool {
	return d.Informational
}

// WithCause attaches an underlying cause and returns the diagnostic.
func (d *Diagnostic) WithCause(cause error) *Diagnostic {
	d.Cause = cause
	return d
}

// New creates a diagnostic for the given method with a formatted message.
func New(kind Kind, method string, format string, args ...any) *Diagnostic {
	return &Diagnostic{
		Kind:    kind,
		Method:  method,
		Message: fmt.Sprintf(format, args...),
	}
}

// Skip creates an informational diagnostic for the given method.
func Skip(kind Kind, method string, format string, args ...any) *Diagnostic {
	d := New(kind, method, format, args...)
	d.Informational = true
	return d
}

// Append aggregates diagnostics into a single error, preserving each one.
// A nil err starts a new aggregate.
func Append(err error, diags ...error) error {
	return multierror.Append(err, diags...).ErrorOrNil()
}

// Diagnostics extracts all Diagnostic values from an error, unwrapping
// multierror aggregates. A plain error yields nothing.
func Diagnostics(err error) []*Diagnostic {
	if err == nil {
		return nil
	}
	var out []*Diagnostic
	if merr, ok := err.(*multierror.Error); ok {
		for _, e := range merr.Errors {
			out = append(out, Diagnostics(e)...)
		}
		return out
	}
	if d, ok := err.(*Diagnostic); ok {
		out = append(out, d)
	}
	return out
}
