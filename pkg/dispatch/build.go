package dispatch

import (
	"fmt"

	"github.com/raymyers/ralph816/pkg/abi"
	"github.com/raymyers/ralph816/pkg/asm"
	"github.com/raymyers/ralph816/pkg/ast"
	"github.com/raymyers/ralph816/pkg/diag"
	"github.com/raymyers/ralph816/pkg/target"
)

// Trap is the destination of table entries with no implementation.
const Trap = "__dispatch_trap"

// Entry widths in bytes.
const (
	NearEntryWidth = 2 // 16-bit code address, entered with JSR (table,X)
	FarEntryWidth  = 4 // JML long trampoline
)

// TagWidth is the size of the hidden tag field.
const TagWidth = 1

// Dispatched calls pass the receiver pointer in y; x carries the scaled tag
// into JSR (table,X) and cannot hold an argument.
const (
	ReceiverReg = "y"
	IndexReg    = "x"
)

// FieldSlot is a laid-out struct field.
type FieldSlot struct {
	Name   string
	Type   ast.Type
	Width  target.Width
	Offset int
}

// Layout is the storage layout of a struct.
type Layout struct {
	Type   string
	Tagged bool
	Fields []FieldSlot
	Size   int
}

// Field returns the named field.
func (l *Layout) Field(name string) (FieldSlot, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSlot{}, false
}

// Table is the dispatch table of one trait method, indexed by tag.
type Table struct {
	Name       string
	Trait      string
	Method     string
	Far        bool
	EntryWidth int
	Entries    []string
}

// Data converts the table to its emitted form.
func (t *Table) Data() asm.DataTable {
	kind := asm.AddrTable
	if t.Far {
		kind = asm.TrampolineTable
	}
	return asm.DataTable{Name: t.Name, Kind: kind, Width: t.EntryWidth, Targets: append([]string(nil), t.Entries...)}
}

// TableName returns the symbol of the dispatch table for trait.method.
func TableName(trait, method string) string {
	return fmt.Sprintf("__vt_%s_%s", trait, method)
}

// Result is the dispatch information of a unit. It is immutable once built.
type Result struct {
	Tables  []*Table
	Layouts map[string]*Layout
	// Far records the calling convention of each valid trait.
	Far map[string]bool

	tables map[string]*Table
}

// Table returns the table for trait.method, or nil.
func (r *Result) Table(trait, method string) *Table {
	return r.tables[trait+"."+method]
}

// Layout returns the layout of a struct, or nil.
func (r *Result) Layout(typeName string) *Layout {
	return r.Layouts[typeName]
}

// Build validates traits and impls, assigns tags in first-implementation
// order, lays out structs and builds the dispatch tables. Errors in one
// trait or impl are collected and exclude that trait from the result; a
// tag overflow is unit-global and returned alone.
func Build(u *ast.Unit, ctx *Context) (*Result, error) {
	res := &Result{
		Layouts: make(map[string]*Layout),
		Far:     make(map[string]bool),
		tables:  make(map[string]*Table),
	}
	var errs diag.List
	bad := make(map[string]bool)

	for _, tr := range u.Traits {
		far, err := traitConvention(tr)
		if err != nil {
			errs.Add(err)
			bad[tr.Name] = true
			continue
		}
		res.Far[tr.Name] = far
	}

	// Validate impls and assign tags.
	seen := make(map[string]bool)
	convention := make(map[string]string) // type -> trait that fixed near/far
	for _, impl := range u.Impls {
		tr := u.FindTrait(impl.Trait)
		if tr == nil {
			errs.Add(diag.Errorf(diag.KindDispatch, diag.ErrUnknownTrait, impl.Type, "impl of unknown trait %s", impl.Trait))
			continue
		}
		if u.FindStruct(impl.Type) == nil {
			errs.Add(diag.Errorf(diag.KindDispatch, diag.ErrImplMismatch, impl.Type, "impl %s for %s: not a struct type", impl.Trait, impl.Type))
			bad[impl.Trait] = true
			continue
		}
		key := impl.Trait + "/" + impl.Type
		if seen[key] {
			errs.Add(diag.Errorf(diag.KindDispatch, diag.ErrImplMismatch, impl.Type, "%s implemented twice", impl.Trait))
			bad[impl.Trait] = true
			continue
		}
		seen[key] = true
		if err := checkImpl(tr, impl); err != nil {
			errs.Add(err)
			bad[impl.Trait] = true
			continue
		}
		if !bad[tr.Name] {
			if prev, ok := convention[impl.Type]; ok && res.Far[prev] != res.Far[tr.Name] {
				errs.Add(diag.Errorf(diag.KindDispatch, diag.ErrMixedImpl, impl.Type,
					"implements near and far traits (%s, %s)", prev, tr.Name))
				bad[tr.Name] = true
				continue
			}
			convention[impl.Type] = tr.Name
		}
		if _, err := ctx.Assign(impl.Type); err != nil {
			return nil, err
		}
	}

	for _, s := range u.Structs {
		l, err := layout(u, s, ctx)
		if err != nil {
			errs.Add(err)
			continue
		}
		res.Layouts[s.Name] = l
	}

	types := ctx.Types()
	for _, tr := range u.Traits {
		if bad[tr.Name] {
			continue
		}
		width := NearEntryWidth
		if res.Far[tr.Name] {
			width = FarEntryWidth
		}
		for _, m := range tr.Methods {
			t := &Table{
				Name:       TableName(tr.Name, m.Name),
				Trait:      tr.Name,
				Method:     m.Name,
				Far:        res.Far[tr.Name],
				EntryWidth: width,
				Entries:    make([]string, len(types)+1),
			}
			t.Entries[InvalidTag] = Trap
			for i, typ := range types {
				t.Entries[i+1] = Trap
				if seen[tr.Name+"/"+typ] {
					t.Entries[i+1] = ast.MethodSymbol(typ, tr.Name, m.Name)
				}
			}
			res.Tables = append(res.Tables, t)
			res.tables[tr.Name+"."+m.Name] = t
		}
	}
	errs.Sort()
	return res, errs.Err()
}

func traitConvention(tr *ast.Trait) (bool, error) {
	if len(tr.Methods) == 0 {
		return false, nil
	}
	far := tr.Methods[0].Far
	for _, m := range tr.Methods[1:] {
		if m.Far != far {
			return false, diag.Errorf(diag.KindDispatch, diag.ErrMixedTrait, tr.Name,
				"methods %s and %s disagree on near/far", tr.Methods[0].Name, m.Name)
		}
	}
	return far, nil
}

func checkImpl(tr *ast.Trait, impl *ast.Impl) error {
	mismatch := func(format string, args ...any) error {
		return diag.Errorf(diag.KindDispatch, diag.ErrImplMismatch, impl.Type,
			"impl %s: %s", impl.Trait, fmt.Sprintf(format, args...))
	}
	byName := make(map[string]*ast.Function)
	for _, fn := range impl.Methods {
		byName[fn.Name] = fn
	}
	for _, m := range tr.Methods {
		fn, ok := byName[m.Name]
		if !ok {
			return mismatch("missing method %s", m.Name)
		}
		if fn.Far != m.Far {
			return mismatch("method %s must be %s", m.Name, nearFar(m.Far))
		}
		// The receiver comes first, then the trait's parameters.
		if len(fn.Params) != len(m.Params)+1 {
			return mismatch("method %s takes %d parameters besides the receiver, trait declares %d",
				m.Name, len(fn.Params)-1, len(m.Params))
		}
		if len(fn.Returns) != len(m.Returns) {
			return mismatch("method %s returns %d values, trait declares %d", m.Name, len(fn.Returns), len(m.Returns))
		}
		if recv := fn.Params[0].Binding; recv.Mechanism != ast.ByRegister || recv.Reg != ReceiverReg {
			return mismatch("method %s must take its receiver in %s", m.Name, ReceiverReg)
		}
		for i, p := range m.Params {
			got := fn.Params[i+1]
			if got.Binding != p.Binding || got.Type != p.Type {
				return mismatch("method %s parameter %s differs from the trait declaration", m.Name, p.Name)
			}
			if p.Binding.Mechanism == ast.ByRegister && p.Binding.Reg == IndexReg {
				return mismatch("method %s parameter %s: %s is reserved for the dispatch index", m.Name, p.Name, IndexReg)
			}
		}
		for i, r := range m.Returns {
			if fn.Returns[i].Binding != r.Binding || fn.Returns[i].Type != r.Type {
				return mismatch("method %s return %d differs from the trait declaration", m.Name, i)
			}
		}
		delete(byName, m.Name)
	}
	for _, fn := range impl.Methods {
		if _, extra := byName[fn.Name]; extra {
			return mismatch("method %s is not part of the trait", fn.Name)
		}
	}
	return nil
}

func nearFar(far bool) string {
	if far {
		return "far"
	}
	return "near"
}

func layout(u *ast.Unit, s *ast.Struct, ctx *Context) (*Layout, error) {
	l := &Layout{Type: s.Name}
	off := 0
	if _, ok := ctx.Tag(s.Name); ok {
		l.Tagged = true
		off = TagWidth
	}
	for _, f := range s.Fields {
		w, ok := abi.TypeWidth(u, f.Type)
		if !ok {
			return nil, diag.Errorf(diag.KindInput, diag.ErrMalformed, s.Name, "field %s: unsupported type %s", f.Name, f.Type)
		}
		l.Fields = append(l.Fields, FieldSlot{Name: f.Name, Type: f.Type, Width: w, Offset: off})
		off += int(w)
	}
	l.Size = off
	return l, nil
}
