// Package ast defines the type-annotated, macro-expanded syntax tree the
// backend consumes. Parsing, macro expansion and file inclusion happen
// upstream; this package only models their output.
package ast

import "strings"

// Type names a value type: u8, i8, u16, i16, bool, void, an enum or struct
// name, &Name for a near pointer to a struct, or &dyn Trait for a
// polymorphic reference.
type Type string

const (
	U8   Type = "u8"
	I8   Type = "i8"
	U16  Type = "u16"
	I16  Type = "i16"
	Bool Type = "bool"
	Void Type = "void"
)

// IsPointer reports whether t is a near pointer or polymorphic reference.
func (t Type) IsPointer() bool { return strings.HasPrefix(string(t), "&") }

// IsDyn reports whether t is a polymorphic trait reference.
func (t Type) IsDyn() bool { return strings.HasPrefix(string(t), "&dyn ") }

// Pointee returns the struct or trait name behind a pointer type.
func (t Type) Pointee() string {
	s := strings.TrimPrefix(string(t), "&")
	return strings.TrimSpace(strings.TrimPrefix(s, "dyn "))
}

// IsSigned reports whether t is a signed integer type.
func (t Type) IsSigned() bool { return t == I8 || t == I16 }

// IsInteger reports whether t is a builtin integer type.
func (t Type) IsInteger() bool { return t == U8 || t == I8 || t == U16 || t == I16 }

// Unit is one compilation unit in declaration order.
type Unit struct {
	Name      string
	Enums     []*Enum
	Structs   []*Struct
	Traits    []*Trait
	Impls     []*Impl
	Globals   []*Global
	Functions []*Function
}

// Enum is a C-like enumeration; variant values are their indexes.
type Enum struct {
	Name     string
	Variants []string
}

// Struct is an aggregate type.
type Struct struct {
	Name   string
	Fields []*Field
}

// Field is a struct member.
type Field struct {
	Name string
	Type Type
}

// Trait is a dispatch capability interface.
type Trait struct {
	Name    string
	Methods []*Method
}

// Method is a trait method signature. The receiver is passed as the first
// parameter of every implementation.
type Method struct {
	Name    string
	Far     bool
	Params  []*Param
	Returns []*Return
}

// Impl implements Trait for the concrete struct Type.
type Impl struct {
	Trait   string
	Type    string
	Methods []*Function
}

// Global is a unit-level variable at an optional fixed address.
type Global struct {
	Name    string
	Type    Type
	Address *int
	Bank    int
}

// Function is a function declaration.
type Function struct {
	Name     string
	Bank     int
	Far      bool
	NoReturn bool
	Params   []*Param
	Returns  []*Return
	Attrs    Attrs
	Body     *Block
}

// Attrs are cross-cutting attributes consumed but not interpreted upstream.
type Attrs struct {
	Preserve  []string // registers (a, b, x, y) or "scratch"
	DataBank  string   // "", "keep", "set"
	Interrupt string   // "", "nmi", "irq", "brk", "cop", "abort", "reset"
}

// Mechanism is how a parameter or return value is passed.
type Mechanism int

const (
	ByStack Mechanism = iota
	ByRegister
	ByVariable
)

func (m Mechanism) String() string {
	switch m {
	case ByRegister:
		return "register"
	case ByVariable:
		return "variable"
	}
	return "stack"
}

// Binding describes where a parameter or return value lives.
type Binding struct {
	Mechanism Mechanism
	Reg       string
	Var       string
}

// Param is a function or method parameter.
type Param struct {
	Name    string
	Type    Type
	Binding Binding
}

// Return is one element of a return signature.
type Return struct {
	Type    Type
	Binding Binding
}

// --- Statements ---

// Stmt is a statement node.
type Stmt interface {
	implStmt()
}

// Block is a statement sequence with an optional trailing value.
type Block struct {
	Stmts []Stmt
	Tail  Expr
}

// Let declares locals. Multiple names destructure a multi-value call.
type Let struct {
	Names   []string
	Type    Type
	Init    Expr
	Address *int // explicit fixed memory address
}

// Assign stores into a local, a global, or a field through a pointer.
type Assign struct {
	Target Expr
	Value  Expr
}

// ExprStmt evaluates an expression for its side effects.
type ExprStmt struct {
	X Expr
}

// If is a conditional statement. Else may be nil, a *Block, or an *If.
type If struct {
	Cond Expr
	Then *Block
	Else Stmt
}

// Loop is an unbounded loop.
type Loop struct {
	Label string
	Body  *Block
}

// While is a pre-tested loop.
type While struct {
	Label string
	Cond  Expr
	Body  *Block
}

// For is a bounded range loop over From..To or From..=To.
type For struct {
	Label     string
	Var       string
	Type      Type
	From      Expr
	To        Expr
	Inclusive bool
	Body      *Block
}

// Break exits the innermost (or labeled) loop, optionally with a value.
type Break struct {
	Label string
	Value Expr
}

// Continue re-tests the innermost (or labeled) loop.
type Continue struct {
	Label string
}

// ReturnStmt returns from the function.
type ReturnStmt struct {
	Values []Expr
}

func (*Block) implStmt()      {}
func (*Let) implStmt()        {}
func (*Assign) implStmt()     {}
func (*ExprStmt) implStmt()   {}
func (*If) implStmt()         {}
func (*Loop) implStmt()       {}
func (*While) implStmt()      {}
func (*For) implStmt()        {}
func (*Break) implStmt()      {}
func (*Continue) implStmt()   {}
func (*ReturnStmt) implStmt() {}

// --- Expressions ---

// Expr is an expression node.
type Expr interface {
	implExpr()
}

// IntLit is an integer literal of the given type (u8 when empty).
type IntLit struct {
	Value int
	Type  Type
}

// BoolLit is a boolean literal.
type BoolLit struct {
	Value bool
}

// Name references a local, parameter or global.
type Name struct {
	Name string
}

// Variant is an enum literal.
type Variant struct {
	Enum    string
	Variant string
}

// Binary is a binary operation.
type Binary struct {
	Op string
	L  Expr
	R  Expr
}

// Unary is a unary operation: -, !, ~.
type Unary struct {
	Op string
	X  Expr
}

// Call is a direct function call.
type Call struct {
	Func string
	Args []Expr
}

// MethodCall calls a trait method on a receiver.
type MethodCall struct {
	Recv   Expr
	Trait  string
	Method string
	Args   []Expr
}

// FieldExpr reads a struct field through a pointer.
type FieldExpr struct {
	X     Expr
	Field string
}

// IfExpr is a conditional in expression position.
type IfExpr struct {
	Cond Expr
	Then *Block
	Else Expr // *BlockExpr or *IfExpr
}

// BlockExpr is a block in expression position.
type BlockExpr struct {
	Block *Block
}

// LoopExpr is a loop in expression position; its value comes from breaks.
type LoopExpr struct {
	Loop *Loop
}

// Match selects an arm by pattern.
type Match struct {
	Scrutinee Expr
	Arms      []*Arm
}

// Arm is a (pattern, outcome) pair.
type Arm struct {
	Pattern Pattern
	Body    Expr
}

// Cast converts between integer widths.
type Cast struct {
	X    Expr
	Type Type
}

// Is compares the tag of a polymorphic reference against a concrete type.
type Is struct {
	X    Expr
	Type string
}

// TagOf reads the tag of a polymorphic reference.
type TagOf struct {
	X Expr
}

func (*IntLit) implExpr()     {}
func (*BoolLit) implExpr()    {}
func (*Name) implExpr()       {}
func (*Variant) implExpr()    {}
func (*Binary) implExpr()     {}
func (*Unary) implExpr()      {}
func (*Call) implExpr()       {}
func (*MethodCall) implExpr() {}
func (*FieldExpr) implExpr()  {}
func (*IfExpr) implExpr()     {}
func (*BlockExpr) implExpr()  {}
func (*LoopExpr) implExpr()   {}
func (*Match) implExpr()      {}
func (*Cast) implExpr()       {}
func (*Is) implExpr()         {}
func (*TagOf) implExpr()      {}

// --- Patterns ---

// Pattern is a match pattern.
type Pattern interface {
	implPattern()
}

// LitPat matches one integer or boolean value.
type LitPat struct {
	Value int
}

// VariantPat matches one enum variant.
type VariantPat struct {
	Enum    string
	Variant string
}

// RangePat matches Lo..Hi or Lo..=Hi.
type RangePat struct {
	Lo        int
	Hi        int
	Inclusive bool
}

// OrPat matches any alternative.
type OrPat struct {
	Alts []Pattern
}

// WildPat matches anything.
type WildPat struct{}

// BindPat matches anything and binds the scrutinee to Name.
type BindPat struct {
	Name string
}

func (*LitPat) implPattern()     {}
func (*VariantPat) implPattern() {}
func (*RangePat) implPattern()   {}
func (*OrPat) implPattern()      {}
func (*WildPat) implPattern()    {}
func (*BindPat) implPattern()    {}

// FindFunction returns the function named name, or nil.
func (u *Unit) FindFunction(name string) *Function {
	for _, f := range u.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// FindEnum returns the enum named name, or nil.
func (u *Unit) FindEnum(name string) *Enum {
	for _, e := range u.Enums {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// FindStruct returns the struct named name, or nil.
func (u *Unit) FindStruct(name string) *Struct {
	for _, s := range u.Structs {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// FindTrait returns the trait named name, or nil.
func (u *Unit) FindTrait(name string) *Trait {
	for _, t := range u.Traits {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// FindGlobal returns the global named name, or nil.
func (u *Unit) FindGlobal(name string) *Global {
	for _, g := range u.Globals {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// VariantIndex returns the value of an enum variant.
func (e *Enum) VariantIndex(name string) (int, bool) {
	for i, v := range e.Variants {
		if v == name {
			return i, true
		}
	}
	return 0, false
}

// MethodSymbol is the symbol of an impl method.
func MethodSymbol(typeName, trait, method string) string {
	return typeName + "__" + trait + "__" + method
}
