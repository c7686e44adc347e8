// Package op defines the opcodes understood by the chronoweave instruction
// stream editor and injection engines.
//
// The set is a CIL-flavored subset: just enough surface to represent compiled
// method bodies, their exception regions, and the timing sequences the weaver
// injects. Control-transfer opcodes exist in two encodings: a compact form
// with a signed 8-bit relative offset (the ".s" mnemonics) and an extended
// form with a full 32-bit offset. The editor operates only on extended form;
// see Extended and Compact for the conversions.
package op

// Code is an integer opcode that identifies an instruction.
type Code uint16

const (
	Invalid Code = 0

	// No operand
	Nop        Code = 1
	Ret        Code = 2
	Dup        Code = 3
	Pop        Code = 4
	Throw      Code = 5
	Rethrow    Code = 6
	Endfinally Code = 7
	Ldnull     Code = 8
	StelemRef  Code = 9

	// Constants
	LdcI4 Code = 20
	LdcI8 Code = 21
	LdcR8 Code = 22
	Ldstr Code = 23

	// Arguments and locals
	Ldarg Code = 30
	Starg Code = 31
	Ldloc Code = 32
	Stloc Code = 33

	// Fields
	Ldfld  Code = 40
	Stfld  Code = 41
	Ldsfld Code = 42
	Stsfld Code = 43

	// Calls
	Call     Code = 50
	Callvirt Code = 51
	Newobj   Code = 52
	Ldftn    Code = 53

	// Types
	Box       Code = 60
	Newarr    Code = 61
	Castclass Code = 62
	Isinst    Code = 63
	Ldtoken   Code = 64

	// Control transfer, compact form (signed 8-bit offset)
	BrS      Code = 70
	BrtrueS  Code = 71
	BrfalseS Code = 72
	LeaveS   Code = 73

	// Control transfer, extended form (signed 32-bit offset)
	Br      Code = 80
	Brtrue  Code = 81
	Brfalse Code = 82
	Leave   Code = 83
)

// OperandKind describes the kind of operand an opcode carries.
type OperandKind int

const (
	OperandNone   OperandKind = iota
	OperandInt                // inline integer constant
	OperandFloat              // inline float constant
	OperandString             // string constant
	OperandVar                // parameter or local variable reference
	OperandField              // field reference
	OperandMethod             // method reference
	OperandType               // type reference
	OperandTarget             // branch target instruction reference
)

// Info contains information about an opcode.
type Info struct {
	Code    Code
	Name    string
	Operand OperandKind
	Size    int // encoded size in bytes, opcode plus operand
}

var infos = make([]Info, 256)

func init() {
	type opInfo struct {
		op      Code
		name    string
		operand OperandKind
		size    int
	}
	ops := []opInfo{
		{Nop, "nop", OperandNone, 1},
		{Ret, "ret", OperandNone, 1},
		{Dup, "dup", OperandNone, 1},
		{Pop, "pop", OperandNone, 1},
		{Throw, "throw", OperandNone, 1},
		{Rethrow, "rethrow", OperandNone, 2},
		{Endfinally, "endfinally", OperandNone, 1},
		{Ldnull, "ldnull", OperandNone, 1},
		{StelemRef, "stelem.ref", OperandNone, 1},
		{LdcI4, "ldc.i4", OperandInt, 5},
		{LdcI8, "ldc.i8", OperandInt, 9},
		{LdcR8, "ldc.r8", OperandFloat, 9},
		{Ldstr, "ldstr", OperandString, 5},
		{Ldarg, "ldarg", OperandVar, 4},
		{Starg, "starg", OperandVar, 4},
		{Ldloc, "ldloc", OperandVar, 4},
		{Stloc, "stloc", OperandVar, 4},
		{Ldfld, "ldfld", OperandField, 5},
		{Stfld, "stfld", OperandField, 5},
		{Ldsfld, "ldsfld", OperandField, 5},
		{Stsfld, "stsfld", OperandField, 5},
		{Call, "call", OperandMethod, 5},
		{Callvirt, "callvirt", OperandMethod, 5},
		{Newobj, "newobj", OperandMethod, 5},
		{Ldftn, "ldftn", OperandMethod, 6},
		{Box, "box", OperandType, 5},
		{Newarr, "newarr", OperandType, 5},
		{Castclass, "castclass", OperandType, 5},
		{Isinst, "isinst", OperandType, 5},
		{Ldtoken, "ldtoken", OperandType, 5},
		{BrS, "br.s", OperandTarget, 2},
		{BrtrueS, "brtrue.s", OperandTarget, 2},
		{BrfalseS, "brfalse.s", OperandTarget, 2},
		{LeaveS, "leave.s", OperandTarget, 2},
		{Br, "br", OperandTarget, 5},
		{Brtrue, "brtrue", OperandTarget, 5},
		{Brfalse, "brfalse", OperandTarget, 5},
		{Leave, "leave", OperandTarget, 5},
	}
	for _, o := range ops {
		infos[o.op] = Info{
			Code:    o.op,
			Name:    o.name,
			Operand: o.operand,
			Size:    o.size,
		}
	}
}

// GetInfo returns information about the given opcode.
func GetInfo(code Code) Info {
	return infos[code]
}

// String returns the IL mnemonic for the opcode.
func (code Code) String() string {
	return infos[code].Name
}

var toExtended = map[Code]Code{
	BrS:      Br,
	BrtrueS:  Brtrue,
	BrfalseS: Brfalse,
	LeaveS:   Leave,
}

var toCompact = map[Code]Code{
	Br:      BrS,
	Brtrue:  BrtrueS,
	Brfalse: BrfalseS,
	Leave:   LeaveS,
}

// IsBranch returns true if the opcode is a control-transfer instruction in
// either form. Leave is included: it is the unwind transfer used to exit
// protected regions.
func (code Code) IsBranch() bool {
	return infos[code].Operand == OperandTarget
}

// IsCompact returns true if the opcode is the compact (offset-limited) form
// of a control-transfer instruction.
func (code Code) IsCompact() bool {
	_, ok := toExtended[code]
	return ok
}

// IsLeave returns true for the exception-unwind transfer in either form.
func (code Code) IsLeave() bool {
	return code == Leave || code == LeaveS
}

// Extended returns the extended form of a compact branch opcode.
// Non-compact opcodes are returned unchanged.
func (code Code) Extended() Code {
	if ext, ok := toExtended[code]; ok {
		return ext
	}
	return code
}

// Compact returns the compact form of an extended branch opcode.
// Opcodes with no compact counterpart are returned unchanged.
func (code Code) Compact() Code {
	if c, ok := toCompact[code]; ok {
		return c
	}
	return code
}
