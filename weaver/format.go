package weaver

import (
	"fmt"
	"strings"

	"github.com/cloudcmds/chronoweave/diag"
	"github.com/cloudcmds/chronoweave/il"
	"github.com/cloudcmds/chronoweave/internal/tmpl"
	"github.com/cloudcmds/chronoweave/op"
)

// formatPlan is a validated message template, lowered to a positional format
// string plus the ordered list of referenced names.
type formatPlan struct {
	format string
	names  []string
}

// buildFormatPlan parses and validates a message template against the
// method's declared parameter names. Every unresolvable name is collected
// and reported; the plan is only returned when all names resolve.
func buildFormatPlan(method *il.MethodDef, template string) (*formatPlan, error) {
	identity := method.FullName()
	parsed, err := tmpl.Parse(template)
	if err != nil {
		return nil, diag.New(diag.UnresolvedTemplateName, identity,
			"invalid message template: %v", err).WithCause(err)
	}
	plan := &formatPlan{}
	var b strings.Builder
	var unresolved error
	for _, fragment := range parsed.Fragments() {
		if !fragment.IsVariable() {
			b.WriteString(fragment.Value())
			continue
		}
		name := strings.TrimSpace(fragment.Value())
		if method.ParameterNamed(name) == nil {
			unresolved = diag.Append(unresolved, diag.New(diag.UnresolvedTemplateName, identity,
				"template references %q which is not a parameter of this method", name))
			continue
		}
		fmt.Fprintf(&b, "{%d}", len(plan.names))
		plan.names = append(plan.names, name)
	}
	if unresolved != nil {
		return nil, unresolved
	}
	plan.format = b.String()
	return plan, nil
}

// slotLoader produces the instruction sequence that pushes the value for one
// referenced name onto the stack, boxed if necessary. A nil diagnostic means
// the load is usable; a non-nil diagnostic means the value is unavailable
// and the slot degrades to null.
type slotLoader func(name string) ([]*il.Instruction, *diag.Diagnostic)

// emit produces the instruction sequence that builds the formatted message
// string and leaves it on the evaluation stack: the positional format
// string, an object array filled with one slot per referenced name, and the
// positional-format call. Slots whose source is unavailable are filled with
// null and the corresponding diagnostics returned alongside.
func (p *formatPlan) emit(ctx *Context, load slotLoader) ([]*il.Instruction, []*diag.Diagnostic) {
	seq := []*il.Instruction{
		il.NewInst(op.Ldstr, p.format),
		il.NewInst(op.LdcI4, int64(len(p.names))),
		il.NewInst(op.Newarr, ctx.ObjectType),
	}
	var degraded []*diag.Diagnostic
	for i, name := range p.names {
		seq = append(seq,
			il.NewInst(op.Dup, nil),
			il.NewInst(op.LdcI4, int64(i)),
		)
		loadSeq, d := load(name)
		if d != nil {
			degraded = append(degraded, d)
			seq = append(seq, il.NewInst(op.Ldnull, nil))
		} else {
			seq = append(seq, loadSeq...)
		}
		seq = append(seq, il.NewInst(op.StelemRef, nil))
	}
	seq = append(seq, il.NewInst(op.Call, ctx.StringFormat))
	return seq, degraded
}
