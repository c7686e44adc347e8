package il

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/cloudcmds/chronoweave/op"
)

// Encoding selects the serialization format for module interchange.
type Encoding int

const (
	// EncodingJSON is the human-readable interchange format.
	EncodingJSON Encoding = iota
	// EncodingBinary is the compact msgpack interchange format.
	EncodingBinary
)

// Serialization state types. Branch targets and region boundaries are
// stored as instruction ordinals and re-linked on load, so a marshal and
// unmarshal round-trip preserves the identity topology of the original.

type typeRefState struct {
	Namespace string `json:"namespace,omitempty" msgpack:"ns,omitempty"`
	Name      string `json:"name" msgpack:"n"`
}

type methodRefState struct {
	DeclaringType typeRefState   `json:"declaring_type" msgpack:"dt"`
	Name          string         `json:"name" msgpack:"n"`
	Params        []typeRefState `json:"params,omitempty" msgpack:"p,omitempty"`
	Return        typeRefState   `json:"return,omitempty" msgpack:"r,omitempty"`
}

type fieldRefState struct {
	DeclaringType typeRefState `json:"declaring_type" msgpack:"dt"`
	Name          string       `json:"name" msgpack:"n"`
	Type          typeRefState `json:"type" msgpack:"t"`
}

type attrState struct {
	Name string `json:"name" msgpack:"n"`
	Arg  string `json:"arg,omitempty" msgpack:"a,omitempty"`
}

type paramState struct {
	Name string       `json:"name" msgpack:"n"`
	Type typeRefState `json:"type" msgpack:"t"`
}

type localState struct {
	Name string       `json:"name,omitempty" msgpack:"n,omitempty"`
	Type typeRefState `json:"type" msgpack:"t"`
}

type instrState struct {
	Op     uint16          `json:"op" msgpack:"o"`
	Int    *int64          `json:"int,omitempty" msgpack:"i,omitempty"`
	Float  *float64        `json:"float,omitempty" msgpack:"f,omitempty"`
	Str    *string         `json:"str,omitempty" msgpack:"s,omitempty"`
	Local  *int            `json:"local,omitempty" msgpack:"l,omitempty"`
	Field  *fieldRefState  `json:"field,omitempty" msgpack:"fl,omitempty"`
	Method *methodRefState `json:"method,omitempty" msgpack:"m,omitempty"`
	Type   *typeRefState   `json:"type,omitempty" msgpack:"t,omitempty"`
	Target *int            `json:"target,omitempty" msgpack:"tg,omitempty"`
}

type regionState struct {
	Kind         int          `json:"kind" msgpack:"k"`
	CatchType    typeRefState `json:"catch_type,omitempty" msgpack:"ct,omitempty"`
	TryStart     int          `json:"try_start" msgpack:"ts"`
	TryEnd       int          `json:"try_end" msgpack:"te"`
	HandlerStart int          `json:"handler_start" msgpack:"hs"`
	HandlerEnd   int          `json:"handler_end" msgpack:"he"`
}

type bodyState struct {
	Locals       []localState  `json:"locals,omitempty" msgpack:"l,omitempty"`
	Instructions []instrState  `json:"instructions" msgpack:"i"`
	Regions      []regionState `json:"regions,omitempty" msgpack:"r,omitempty"`
	InitLocals   bool          `json:"init_locals,omitempty" msgpack:"z,omitempty"`
	MaxStack     int           `json:"max_stack,omitempty" msgpack:"ms,omitempty"`
}

type methodState struct {
	Name       string       `json:"name" msgpack:"n"`
	Parameters []paramState `json:"parameters,omitempty" msgpack:"p,omitempty"`
	Return     typeRefState `json:"return,omitempty" msgpack:"r,omitempty"`
	Static     bool         `json:"static,omitempty" msgpack:"s,omitempty"`
	Attributes []attrState  `json:"attributes,omitempty" msgpack:"a,omitempty"`
	Body       *bodyState   `json:"body,omitempty" msgpack:"b,omitempty"`
}

type typeState struct {
	Namespace  string         `json:"namespace,omitempty" msgpack:"ns,omitempty"`
	Name       string         `json:"name" msgpack:"n"`
	Fields     []fieldState   `json:"fields,omitempty" msgpack:"f,omitempty"`
	Methods    []methodState  `json:"methods,omitempty" msgpack:"m,omitempty"`
	Interfaces []typeRefState `json:"interfaces,omitempty" msgpack:"i,omitempty"`
	Attributes []attrState    `json:"attributes,omitempty" msgpack:"a,omitempty"`
}

type fieldState struct {
	Name   string       `json:"name" msgpack:"n"`
	Type   typeRefState `json:"type" msgpack:"t"`
	Static bool         `json:"static,omitempty" msgpack:"s,omitempty"`
}

type moduleState struct {
	ID         string      `json:"id,omitempty" msgpack:"id,omitempty"`
	Name       string      `json:"name" msgpack:"n"`
	Attributes []attrState `json:"attributes,omitempty" msgpack:"a,omitempty"`
	Types      []typeState `json:"types,omitempty" msgpack:"t,omitempty"`
}

// Marshal serializes a module in the given encoding.
func Marshal(m *Module, encoding Encoding) ([]byte, error) {
	state, err := stateFromModule(m)
	if err != nil {
		return nil, err
	}
	switch encoding {
	case EncodingJSON:
		return json.MarshalIndent(state, "", "  ")
	case EncodingBinary:
		return msgpack.Marshal(state)
	default:
		return nil, fmt.Errorf("il: unknown encoding %d", encoding)
	}
}

// Unmarshal deserializes a module in the given encoding.
func Unmarshal(data []byte, encoding Encoding) (*Module, error) {
	var state moduleState
	switch encoding {
	case EncodingJSON:
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, fmt.Errorf("il: decoding module: %w", err)
		}
	case EncodingBinary:
		if err := msgpack.Unmarshal(data, &state); err != nil {
			return nil, fmt.Errorf("il: decoding module: %w", err)
		}
	default:
		return nil, fmt.Errorf("il: unknown encoding %d", encoding)
	}
	return moduleFromState(&state)
}

func stateFromModule(m *Module) (*moduleState, error) {
	state := &moduleState{
		ID:         m.ID,
		Name:       m.Name,
		Attributes: attrsToState(m.Attributes),
	}
	for _, t := range m.Types {
		ts := typeState{
			Namespace:  t.Namespace,
			Name:       t.Name,
			Attributes: attrsToState(t.Attributes),
		}
		for _, f := range t.Fields {
			ts.Fields = append(ts.Fields, fieldState{
				Name: f.Name, Type: refToState(f.Type), Static: f.Static,
			})
		}
		for _, iface := range t.Interfaces {
			ts.Interfaces = append(ts.Interfaces, refToState(iface))
		}
		for _, method := range t.Methods {
			ms, err := stateFromMethod(method)
			if err != nil {
				return nil, fmt.Errorf("il: marshaling %s: %w", method.FullName(), err)
			}
			ts.Methods = append(ts.Methods, *ms)
		}
		state.Types = append(state.Types, ts)
	}
	return state, nil
}

func stateFromMethod(m *MethodDef) (*methodState, error) {
	state := &methodState{
		Name:       m.Name,
		Return:     refToState(m.Return),
		Static:     m.Static,
		Attributes: attrsToState(m.Attributes),
	}
	for _, p := range m.Parameters {
		state.Parameters = append(state.Parameters, paramState{Name: p.Name, Type: refToState(p.Type)})
	}
	if m.Body == nil {
		return state, nil
	}
	body := &bodyState{InitLocals: m.Body.InitLocals, MaxStack: m.Body.MaxStack}
	for _, local := range m.Body.Locals {
		body.Locals = append(body.Locals, localState{Name: local.Name, Type: refToState(local.Type)})
	}
	ordinals := make(map[*Instruction]int, len(m.Body.Instructions))
	for i, instr := range m.Body.Instructions {
		ordinals[instr] = i
	}
	for i, instr := range m.Body.Instructions {
		is := instrState{Op: uint16(instr.Opcode)}
		switch operand := instr.Operand.(type) {
		case nil:
		case int64:
			is.Int = &operand
		case float64:
			is.Float = &operand
		case string:
			is.Str = &operand
		case *LocalVar:
			idx := operand.Index
			is.Local = &idx
		case FieldRef:
			ref := fieldRefToState(operand)
			is.Field = &ref
		case MethodRef:
			ref := methodRefToState(operand)
			is.Method = &ref
		case TypeRef:
			ref := refToState(operand)
			is.Type = &ref
		case *Instruction:
			ordinal, ok := ordinals[operand]
			if !ok {
				return nil, fmt.Errorf("branch at %d targets an instruction outside the body", i)
			}
			is.Target = &ordinal
		default:
			return nil, fmt.Errorf("instruction at %d has unsupported operand type %T", i, operand)
		}
		body.Instructions = append(body.Instructions, is)
	}
	for _, region := range m.Body.Regions {
		body.Regions = append(body.Regions, regionState{
			Kind:         int(region.Kind),
			CatchType:    refToState(region.CatchType),
			TryStart:     boundaryOrdinal(ordinals, region.TryStart),
			TryEnd:       boundaryOrdinal(ordinals, region.TryEnd),
			HandlerStart: boundaryOrdinal(ordinals, region.HandlerStart),
			HandlerEnd:   boundaryOrdinal(ordinals, region.HandlerEnd),
		})
	}
	state.Body = body
	return state, nil
}

func moduleFromState(state *moduleState) (*Module, error) {
	m := &Module{
		ID:         state.ID,
		Name:       state.Name,
		Attributes: attrsFromState(state.Attributes),
	}
	for _, ts := range state.Types {
		t := &TypeDef{
			Namespace:  ts.Namespace,
			Name:       ts.Name,
			Attributes: attrsFromState(ts.Attributes),
		}
		for _, fs := range ts.Fields {
			t.Fields = append(t.Fields, &FieldDef{Name: fs.Name, Type: refFromState(fs.Type), Static: fs.Static})
		}
		for _, is := range ts.Interfaces {
			t.Interfaces = append(t.Interfaces, refFromState(is))
		}
		for _, ms := range ts.Methods {
			method, err := methodFromState(&ms)
			if err != nil {
				return nil, fmt.Errorf("il: unmarshaling %s.%s: %w", t.FullName(), ms.Name, err)
			}
			t.AddMethod(method)
		}
		m.Types = append(m.Types, t)
	}
	return m, nil
}

func methodFromState(state *methodState) (*MethodDef, error) {
	m := &MethodDef{
		Name:       state.Name,
		Return:     refFromState(state.Return),
		Static:     state.Static,
		Attributes: attrsFromState(state.Attributes),
	}
	for i, ps := range state.Parameters {
		m.Parameters = append(m.Parameters, &Parameter{Index: i, Name: ps.Name, Type: refFromState(ps.Type)})
	}
	if state.Body == nil {
		return m, nil
	}
	body := NewBody()
	body.InitLocals = state.Body.InitLocals
	body.MaxStack = state.Body.MaxStack
	for i, ls := range state.Body.Locals {
		body.Locals = append(body.Locals, &LocalVar{Index: i, Name: ls.Name, Type: refFromState(ls.Type)})
	}
	// First pass allocates the identity nodes so that forward branch targets
	// can be linked in the second pass.
	instrs := make([]*Instruction, len(state.Body.Instructions))
	for i := range state.Body.Instructions {
		instrs[i] = &Instruction{Opcode: op.Code(state.Body.Instructions[i].Op)}
	}
	for i, is := range state.Body.Instructions {
		switch {
		case is.Target != nil:
			if *is.Target < 0 || *is.Target >= len(instrs) {
				return nil, fmt.Errorf("branch at %d targets ordinal %d out of range", i, *is.Target)
			}
			instrs[i].Operand = instrs[*is.Target]
		case is.Local != nil:
			if *is.Local < 0 || *is.Local >= len(body.Locals) {
				return nil, fmt.Errorf("instruction at %d references local %d out of range", i, *is.Local)
			}
			instrs[i].Operand = body.Locals[*is.Local]
		case is.Int != nil:
			instrs[i].Operand = *is.Int
		case is.Float != nil:
			instrs[i].Operand = *is.Float
		case is.Str != nil:
			instrs[i].Operand = *is.Str
		case is.Field != nil:
			instrs[i].Operand = fieldRefFromState(*is.Field)
		case is.Method != nil:
			instrs[i].Operand = methodRefFromState(*is.Method)
		case is.Type != nil:
			instrs[i].Operand = refFromState(*is.Type)
		}
	}
	body.Instructions = instrs
	for i, rs := range state.Body.Regions {
		region := &ExceptionRegion{
			Kind:      RegionKind(rs.Kind),
			CatchType: refFromState(rs.CatchType),
		}
		var err error
		if region.TryStart, err = boundaryFromOrdinal(instrs, rs.TryStart, false); err != nil {
			return nil, fmt.Errorf("region %d: %w", i, err)
		}
		if region.TryEnd, err = boundaryFromOrdinal(instrs, rs.TryEnd, true); err != nil {
			return nil, fmt.Errorf("region %d: %w", i, err)
		}
		if region.HandlerStart, err = boundaryFromOrdinal(instrs, rs.HandlerStart, false); err != nil {
			return nil, fmt.Errorf("region %d: %w", i, err)
		}
		if region.HandlerEnd, err = boundaryFromOrdinal(instrs, rs.HandlerEnd, true); err != nil {
			return nil, fmt.Errorf("region %d: %w", i, err)
		}
		body.Regions = append(body.Regions, region)
	}
	m.Body = body
	return m, nil
}

func boundaryOrdinal(ordinals map[*Instruction]int, instr *Instruction) int {
	if instr == nil {
		return -1
	}
	return ordinals[instr]
}

func boundaryFromOrdinal(instrs []*Instruction, ordinal int, endBoundary bool) (*Instruction, error) {
	if ordinal == -1 {
		if !endBoundary {
			return nil, fmt.Errorf("start boundary is unset")
		}
		return nil, nil
	}
	if ordinal < 0 || ordinal >= len(instrs) {
		return nil, fmt.Errorf("boundary ordinal %d out of range", ordinal)
	}
	return instrs[ordinal], nil
}

func refToState(ref TypeRef) typeRefState {
	return typeRefState{Namespace: ref.Namespace, Name: ref.Name}
}

func refFromState(state typeRefState) TypeRef {
	return TypeRef{Namespace: state.Namespace, Name: state.Name}
}

func methodRefToState(ref MethodRef) methodRefState {
	state := methodRefState{
		DeclaringType: refToState(ref.DeclaringType),
		Name:          ref.Name,
		Return:        refToState(ref.Return),
	}
	for _, p := range ref.Params {
		state.Params = append(state.Params, refToState(p))
	}
	return state
}

func methodRefFromState(state methodRefState) MethodRef {
	ref := MethodRef{
		DeclaringType: refFromState(state.DeclaringType),
		Name:          state.Name,
		Return:        refFromState(state.Return),
	}
	for _, p := range state.Params {
		ref.Params = append(ref.Params, refFromState(p))
	}
	return ref
}

func fieldRefToState(ref FieldRef) fieldRefState {
	return fieldRefState{
		DeclaringType: refToState(ref.DeclaringType),
		Name:          ref.Name,
		Type:          refToState(ref.Type),
	}
}

func fieldRefFromState(state fieldRefState) FieldRef {
	return FieldRef{
		DeclaringType: refFromState(state.DeclaringType),
		Name:          state.Name,
		Type:          refFromState(state.Type),
	}
}

func attrsToState(attrs []Attribute) []attrState {
	var out []attrState
	for _, a := range attrs {
		out = append(out, attrState{Name: a.Name, Arg: a.Arg})
	}
	return out
}

func attrsFromState(states []attrState) []Attribute {
	var out []Attribute
	for _, s := range states {
		out = append(out, Attribute{Name: s.Name, Arg: s.Arg})
	}
	return out
}
