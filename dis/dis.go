// Package dis renders method bodies as human-readable instruction listings,
// in the usual IL_#### offset-labeled form. It is a read-only view used to
// inspect bodies before and after weaving.
package dis

import (
	"fmt"
	"io"
	"strconv"

	"github.com/cloudcmds/chronoweave/il"
	"github.com/cloudcmds/chronoweave/internal/table"
	"github.com/cloudcmds/chronoweave/op"
)

// Instruction is one disassembled instruction row.
type Instruction struct {
	Offset  int    `json:"offset"`
	Label   string `json:"label"`
	Opcode  string `json:"opcode"`
	Operand string `json:"operand,omitempty"`
}

// Region is one disassembled exception-region row. Ranges are rendered
// half-open, matching the underlying model.
type Region struct {
	Kind      string `json:"kind"`
	CatchType string `json:"catch_type,omitempty"`
	Try       string `json:"try"`
	Handler   string `json:"handler"`
}

// Listing is a fully disassembled method body.
type Listing struct {
	Instructions []Instruction `json:"instructions"`
	Regions      []Region      `json:"regions,omitempty"`
	CodeSize     int           `json:"code_size"`
	MaxStack     int           `json:"max_stack,omitempty"`
	InitLocals   bool          `json:"init_locals,omitempty"`
}

func label(offset int) string {
	return fmt.Sprintf("IL_%04x", offset)
}

// Disassemble produces a listing for the given body. It fails when a branch
// targets an instruction outside the body, since no label exists for it.
func Disassemble(body *il.Body) (*Listing, error) {
	offsets := body.ComputeOffsets()
	listing := &Listing{
		CodeSize:   body.CodeSize(),
		MaxStack:   body.MaxStack,
		InitLocals: body.InitLocals,
	}
	boundary := func(instr *il.Instruction) (string, error) {
		if instr == nil {
			return "end", nil
		}
		offset, ok := offsets[instr]
		if !ok {
			return "", fmt.Errorf("dis: boundary references an instruction outside the body")
		}
		return label(offset), nil
	}

	for _, instr := range body.Instructions {
		offset := offsets[instr]
		row := Instruction{
			Offset: offset,
			Label:  label(offset),
			Opcode: instr.Opcode.String(),
		}
		operand, err := renderOperand(instr, offsets)
		if err != nil {
			return nil, fmt.Errorf("dis: at %s: %w", row.Label, err)
		}
		row.Operand = operand
		listing.Instructions = append(listing.Instructions, row)
	}

	for _, region := range body.Regions {
		row := Region{Kind: region.Kind.String()}
		if !region.CatchType.IsZero() {
			row.CatchType = region.CatchType.FullName()
		}
		tryStart, err := boundary(region.TryStart)
		if err != nil {
			return nil, err
		}
		tryEnd, err := boundary(region.TryEnd)
		if err != nil {
			return nil, err
		}
		handlerStart, err := boundary(region.HandlerStart)
		if err != nil {
			return nil, err
		}
		handlerEnd, err := boundary(region.HandlerEnd)
		if err != nil {
			return nil, err
		}
		row.Try = tryStart + ".." + tryEnd
		row.Handler = handlerStart + ".." + handlerEnd
		listing.Regions = append(listing.Regions, row)
	}
	return listing, nil
}

func renderOperand(instr *il.Instruction, offsets map[*il.Instruction]int) (string, error) {
	switch operand := instr.Operand.(type) {
	case nil:
		if op.GetInfo(instr.Opcode).Operand == op.OperandTarget {
			return "", fmt.Errorf("branch has no target")
		}
		return "", nil
	case *il.Instruction:
		offset, ok := offsets[operand]
		if !ok {
			return "", fmt.Errorf("branch targets an instruction outside the body")
		}
		return label(offset), nil
	case *il.LocalVar:
		return fmt.Sprintf("V_%d", operand.Index), nil
	case il.FieldRef:
		return operand.FullName(), nil
	case il.MethodRef:
		return operand.FullName(), nil
	case il.TypeRef:
		return operand.FullName(), nil
	case string:
		return strconv.Quote(operand), nil
	case int64:
		return strconv.FormatInt(operand, 10), nil
	case float64:
		return strconv.FormatFloat(operand, 'g', -1, 64), nil
	default:
		return fmt.Sprintf("%v", operand), nil
	}
}

// Print renders the listing as aligned tables.
func Print(listing *Listing, out io.Writer) {
	instructions := table.NewTable(out)
	instructions.WithHeader([]string{"OFFSET", "OPCODE", "OPERAND"})
	instructions.WithHeaderAlignment([]table.Alignment{table.AlignCenter, table.AlignCenter, table.AlignCenter})
	instructions.WithColumnAlignment([]table.Alignment{table.AlignLeft, table.AlignLeft, table.AlignLeft})
	for _, row := range listing.Instructions {
		instructions.Append([]string{row.Label, row.Opcode, row.Operand})
	}
	instructions.Render()

	if len(listing.Regions) == 0 {
		return
	}
	fmt.Fprintln(out)
	regions := table.NewTable(out)
	regions.WithHeader([]string{"KIND", "TRY", "HANDLER", "CATCH TYPE"})
	regions.WithHeaderAlignment([]table.Alignment{
		table.AlignCenter, table.AlignCenter, table.AlignCenter, table.AlignCenter,
	})
	for _, row := range listing.Regions {
		regions.Append([]string{row.Kind, row.Try, row.Handler, row.CatchType})
	}
	regions.Render()
}
