// Package match compiles pattern matches: it proves exhaustiveness, picks a
// dispatch strategy (lookup table, jump table or branch chain) from the
// density of the matched values, and emits the chosen dispatch into the
// block graph. First-match semantics hold under every strategy.
package match

import (
	"github.com/raymyers/ralph816/pkg/ast"
	"github.com/raymyers/ralph816/pkg/diag"
	"github.com/raymyers/ralph816/pkg/target"
)

// ScrutKind is the kind of value being matched.
type ScrutKind int

const (
	ScrutInt ScrutKind = iota
	ScrutBool
	ScrutEnum
)

// Arm is one (pattern, outcome) pair.
type Arm struct {
	Pattern ast.Pattern
	// Const marks an outcome that is a compile-time constant Value.
	Const bool
	Value int
}

// Desc describes a match.
type Desc struct {
	Decl     string // enclosing function, for errors
	Kind     ScrutKind
	Width    target.Width
	Signed   bool
	Enum     *ast.Enum
	Arms     []Arm
	ResultW  target.Width // width of constant outcomes
}

// Domain returns the smallest and largest scrutinee values.
func (d *Desc) Domain() (int, int) {
	switch d.Kind {
	case ScrutBool:
		return 0, 1
	case ScrutEnum:
		return 0, len(d.Enum.Variants) - 1
	}
	if d.Signed {
		return -d.Width.SignBit(), d.Width.SignBit() - 1
	}
	return 0, d.Width.Mask()
}

func isCatchAll(p ast.Pattern) bool {
	switch p := p.(type) {
	case *ast.WildPat, *ast.BindPat:
		return true
	case *ast.OrPat:
		for _, alt := range p.Alts {
			if isCatchAll(alt) {
				return true
			}
		}
	}
	return false
}

// valueRange returns the inclusive value range of a literal, variant or
// range pattern.
func (d *Desc) valueRange(p ast.Pattern) (lo, hi int, err error) {
	switch p := p.(type) {
	case *ast.LitPat:
		return p.Value, p.Value, nil
	case *ast.VariantPat:
		if d.Kind != ScrutEnum || p.Enum != d.Enum.Name {
			return 0, 0, diag.Errorf(diag.KindType, diag.ErrBranchTypes, d.Decl, "pattern %s.%s does not match the scrutinee type", p.Enum, p.Variant)
		}
		v, ok := d.Enum.VariantIndex(p.Variant)
		if !ok {
			return 0, 0, diag.Errorf(diag.KindType, diag.ErrUnknownName, d.Decl, "enum %s has no variant %s", p.Enum, p.Variant)
		}
		return v, v, nil
	case *ast.RangePat:
		hi := p.Hi
		if !p.Inclusive {
			hi--
		}
		return p.Lo, hi, nil
	}
	return 0, 0, nil
}

// Check validates every pattern against the scrutinee and proves the match
// exhaustive.
func Check(d *Desc) error {
	if len(d.Arms) == 0 {
		return diag.Errorf(diag.KindExhaustiveness, diag.ErrNotExhaustive, d.Decl, "match has no arms")
	}
	dmin, dmax := d.Domain()
	covered := make(map[int]bool)
	catchAll := false
	var walk func(p ast.Pattern) error
	walk = func(p ast.Pattern) error {
		switch p := p.(type) {
		case *ast.WildPat, *ast.BindPat:
			catchAll = true
			return nil
		case *ast.OrPat:
			for _, alt := range p.Alts {
				if err := walk(alt); err != nil {
					return err
				}
			}
			return nil
		case *ast.VariantPat, *ast.LitPat, *ast.RangePat:
			if _, ok := p.(*ast.VariantPat); !ok && d.Kind == ScrutEnum {
				return diag.Errorf(diag.KindType, diag.ErrBranchTypes, d.Decl, "enum scrutinee matched against a numeric pattern")
			}
			lo, hi, err := d.valueRange(p)
			if err != nil {
				return err
			}
			if lo > hi {
				return diag.Errorf(diag.KindType, diag.ErrBranchTypes, d.Decl, "empty range pattern %d..%d", lo, hi)
			}
			if lo < dmin || hi > dmax {
				return diag.Errorf(diag.KindType, diag.ErrBranchTypes, d.Decl, "pattern %d..=%d outside the scrutinee range %d..=%d", lo, hi, dmin, dmax)
			}
			if d.Kind != ScrutInt {
				for v := lo; v <= hi; v++ {
					covered[v] = true
				}
			}
			return nil
		}
		return diag.Errorf(diag.KindInput, diag.ErrMalformed, d.Decl, "unsupported pattern %T", p)
	}
	for _, arm := range d.Arms {
		if err := walk(arm.Pattern); err != nil {
			return err
		}
	}
	if catchAll {
		return nil
	}
	switch d.Kind {
	case ScrutBool:
		if covered[0] && covered[1] {
			return nil
		}
		return diag.Errorf(diag.KindExhaustiveness, diag.ErrNotExhaustive, d.Decl, "bool match must cover true and false or have a catch-all arm")
	case ScrutEnum:
		for i, v := range d.Enum.Variants {
			if !covered[i] {
				return diag.Errorf(diag.KindExhaustiveness, diag.ErrNotExhaustive, d.Decl, "variant %s.%s not covered", d.Enum.Name, v)
			}
		}
		return nil
	}
	return diag.Errorf(diag.KindExhaustiveness, diag.ErrNotExhaustive, d.Decl, "integer match requires a catch-all or binding arm")
}
