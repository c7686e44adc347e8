package il

import (
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
)

// TypeRef is a value-type reference to a type, usable as an instruction
// operand and comparable with ==.
type TypeRef struct {
	Namespace string
	Name      string
}

// FullName returns the namespace-qualified type name.
func (t TypeRef) FullName() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// IsZero returns true if the reference has not been set.
func (t TypeRef) IsZero() bool {
	return t.Namespace == "" && t.Name == ""
}

// MethodRef is a reference to a method, usable as an instruction operand.
type MethodRef struct {
	DeclaringType TypeRef
	Name          string
	Params        []TypeRef
	Return        TypeRef
}

// FullName returns the declaring-type-qualified method name.
func (m MethodRef) FullName() string {
	return m.DeclaringType.FullName() + "." + m.Name
}

// Signature returns the full name with the parameter list appended.
func (m MethodRef) Signature() string {
	params := make([]string, len(m.Params))
	for i, p := range m.Params {
		params[i] = p.FullName()
	}
	return fmt.Sprintf("%s(%s)", m.FullName(), strings.Join(params, ","))
}

// Matches reports whether two method references identify the same method:
// same declaring type, name, and arity. Parameter types are not compared
// element-wise so that host models with partially-erased generics still
// resolve.
func (m MethodRef) Matches(other MethodRef) bool {
	return m.DeclaringType == other.DeclaringType &&
		m.Name == other.Name &&
		len(m.Params) == len(other.Params)
}

// FieldRef is a reference to a field, usable as an instruction operand and
// comparable with ==.
type FieldRef struct {
	DeclaringType TypeRef
	Name          string
	Type          TypeRef
}

// FullName returns the declaring-type-qualified field name.
func (f FieldRef) FullName() string {
	return f.DeclaringType.FullName() + "." + f.Name
}

// Attribute is a named marker attached to a module, type, or method, with an
// optional single string argument.
type Attribute struct {
	Name string
	Arg  string
}

// Parameter is a declared method parameter. Index is the zero-based position
// in the parameter list, not the argument slot; for instance methods the
// argument slot is Index+1 because slot 0 holds the receiver.
type Parameter struct {
	Index int
	Name  string
	Type  TypeRef
}

// LocalVar is a local variable slot declared by a method body.
type LocalVar struct {
	Index int
	Name  string
	Type  TypeRef
}

// FieldDef is a field owned by a TypeDef.
type FieldDef struct {
	Name   string
	Type   TypeRef
	Static bool
}

// MethodDef is a method owned by a TypeDef.
type MethodDef struct {
	Name       string
	Parameters []*Parameter
	Return     TypeRef
	Static     bool
	Attributes []Attribute
	Body       *Body

	declaring *TypeDef
}

// DeclaringType returns the type that owns this method, or nil for a
// detached method.
func (m *MethodDef) DeclaringType() *TypeDef {
	return m.declaring
}

// FullName returns the declaring-type-qualified method name.
func (m *MethodDef) FullName() string {
	if m.declaring == nil {
		return m.Name
	}
	return m.declaring.FullName() + "." + m.Name
}

// Ref returns a MethodRef identifying this method.
func (m *MethodDef) Ref() MethodRef {
	ref := MethodRef{Name: m.Name, Return: m.Return}
	if m.declaring != nil {
		ref.DeclaringType = m.declaring.Ref()
	}
	for _, p := range m.Parameters {
		ref.Params = append(ref.Params, p.Type)
	}
	return ref
}

// ArgSlot returns the argument slot number for the given parameter,
// accounting for the receiver slot of instance methods.
func (m *MethodDef) ArgSlot(p *Parameter) int64 {
	if m.Static {
		return int64(p.Index)
	}
	return int64(p.Index + 1)
}

// ParameterNamed returns the parameter with the given name, or nil.
func (m *MethodDef) ParameterNamed(name string) *Parameter {
	for _, p := range m.Parameters {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// HasAttribute returns true if the method carries the named attribute.
func (m *MethodDef) HasAttribute(name string) bool {
	return hasAttribute(m.Attributes, name)
}

// AttributeArg returns the argument of the named attribute and whether the
// attribute is present.
func (m *MethodDef) AttributeArg(name string) (string, bool) {
	return attributeArg(m.Attributes, name)
}

// TypeDef is a type owned by a Module.
type TypeDef struct {
	Namespace  string
	Name       string
	Fields     []*FieldDef
	Methods    []*MethodDef
	Interfaces []TypeRef
	Attributes []Attribute
}

// FullName returns the namespace-qualified type name.
func (t *TypeDef) FullName() string {
	return t.Ref().FullName()
}

// Ref returns a TypeRef identifying this type.
func (t *TypeDef) Ref() TypeRef {
	return TypeRef{Namespace: t.Namespace, Name: t.Name}
}

// AddMethod attaches a method to this type and returns it.
func (t *TypeDef) AddMethod(m *MethodDef) *MethodDef {
	m.declaring = t
	t.Methods = append(t.Methods, m)
	return m
}

// AddField attaches a field to this type and returns a reference to it.
func (t *TypeDef) AddField(f *FieldDef) FieldRef {
	t.Fields = append(t.Fields, f)
	return FieldRef{DeclaringType: t.Ref(), Name: f.Name, Type: f.Type}
}

// FieldNamed returns the field with the given name, or nil.
func (t *TypeDef) FieldNamed(name string) *FieldDef {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// FieldRefNamed returns a FieldRef for the named field and whether it exists.
func (t *TypeDef) FieldRefNamed(name string) (FieldRef, bool) {
	f := t.FieldNamed(name)
	if f == nil {
		return FieldRef{}, false
	}
	return FieldRef{DeclaringType: t.Ref(), Name: f.Name, Type: f.Type}, true
}

// MethodNamed returns the first method with the given name, or nil.
func (t *TypeDef) MethodNamed(name string) *MethodDef {
	for _, m := range t.Methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// HasAttribute returns true if the type carries the named attribute.
func (t *TypeDef) HasAttribute(name string) bool {
	return hasAttribute(t.Attributes, name)
}

// AttributeArg returns the argument of the named attribute and whether the
// attribute is present.
func (t *TypeDef) AttributeArg(name string) (string, bool) {
	return attributeArg(t.Attributes, name)
}

// Implements returns true if the type declares the given interface.
func (t *TypeDef) Implements(iface TypeRef) bool {
	for _, i := range t.Interfaces {
		if i == iface {
			return true
		}
	}
	return false
}

// Module is a loaded module: the unit the weaver processes as one batch.
type Module struct {
	ID         string
	Name       string
	Types      []*TypeDef
	Attributes []Attribute
}

// NewModule creates an empty module with a generated unique ID.
func NewModule(name string) *Module {
	return &Module{
		ID:   uuid.Must(uuid.NewV4()).String(),
		Name: name,
	}
}

// AddType attaches a type to the module and returns it.
func (m *Module) AddType(t *TypeDef) *TypeDef {
	m.Types = append(m.Types, t)
	return t
}

// TypeNamed returns the type with the given full name, or nil.
func (m *Module) TypeNamed(fullName string) *TypeDef {
	for _, t := range m.Types {
		if t.FullName() == fullName {
			return t
		}
	}
	return nil
}

// MethodNamed returns the method with the given full name
// ("Namespace.Type.Method"), or nil.
func (m *Module) MethodNamed(fullName string) *MethodDef {
	idx := strings.LastIndex(fullName, ".")
	if idx < 0 {
		return nil
	}
	t := m.TypeNamed(fullName[:idx])
	if t == nil {
		return nil
	}
	return t.MethodNamed(fullName[idx+1:])
}

// HasAttribute returns true if the module carries the named attribute.
func (m *Module) HasAttribute(name string) bool {
	return hasAttribute(m.Attributes, name)
}

// AttributeArg returns the argument of the named module attribute and
// whether the attribute is present.
func (m *Module) AttributeArg(name string) (string, bool) {
	return attributeArg(m.Attributes, name)
}

func hasAttribute(attrs []Attribute, name string) bool {
	_, ok := attributeArg(attrs, name)
	return ok
}

func attributeArg(attrs []Attribute, name string) (string, bool) {
	for _, a := range attrs {
		if a.Name == name {
			return a.Arg, true
		}
	}
	return "", false
}
